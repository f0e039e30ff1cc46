package lifecycle

import (
	"context"
	"sync"

	"github.com/egzakutacno/deeep-myria/internal/runner"
)

func exitCode(code int) *int { return &code }

// fakeRunner records invocations. When gate is set, Run blocks until the
// gate is closed, after signalling entered.
type fakeRunner struct {
	mu      sync.Mutex
	calls   []runner.Command
	pipes   int
	outcome runner.Outcome
	pipeOut []runner.Outcome
	found   []bool

	entered chan struct{}
	gate    chan struct{}
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{outcome: runner.Outcome{ExitCode: exitCode(0)}}
}

func (f *fakeRunner) Run(_ context.Context, c runner.Command) runner.Outcome {
	f.mu.Lock()
	f.calls = append(f.calls, c)
	out := f.outcome
	f.mu.Unlock()

	if f.gate != nil {
		f.entered <- struct{}{}
		<-f.gate
	}
	return out
}

func (f *fakeRunner) Pipe(_ context.Context, producer, consumer runner.Command) runner.Outcome {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pipes++
	if len(f.pipeOut) == 0 {
		return runner.Outcome{ExitCode: exitCode(0)}
	}
	out := f.pipeOut[0]
	if len(f.pipeOut) > 1 {
		f.pipeOut = f.pipeOut[1:]
	}
	return out
}

// LookPath pops the next scripted answer, repeating the last one.
func (f *fakeRunner) LookPath(string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.found) == 0 {
		return true
	}
	v := f.found[0]
	if len(f.found) > 1 {
		f.found = f.found[1:]
	}
	return v
}

func (f *fakeRunner) runCalls() []runner.Command {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]runner.Command(nil), f.calls...)
}

type recordingObserver struct {
	mu     sync.Mutex
	ops    map[string]int
	states []string
}

func (o *recordingObserver) ObserveLifecycle(op string, ok bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.ops == nil {
		o.ops = map[string]int{}
	}
	key := op + ":fail"
	if ok {
		key = op + ":ok"
	}
	o.ops[key]++
}

func (o *recordingObserver) SetLifecycleState(current string, _ []string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.states = append(o.states, current)
}
