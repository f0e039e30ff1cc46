package probe

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/egzakutacno/deeep-myria/internal/rpc"
	"github.com/egzakutacno/deeep-myria/internal/runner"
)

func exitCode(code int) *int { return &code }

func ok(stdout string) runner.Outcome {
	return runner.Outcome{ExitCode: exitCode(0), Stdout: stdout}
}

type fakeRunner struct {
	mu       sync.Mutex
	outcomes map[string]runner.Outcome
	calls    []runner.Command
}

func (f *fakeRunner) Run(_ context.Context, c runner.Command) runner.Outcome {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, c)
	if out, found := f.outcomes[c.String()]; found {
		return out
	}
	return runner.Outcome{Err: "exec: \"" + c.Name + "\": executable file not found in $PATH"}
}

func (f *fakeRunner) Pipe(ctx context.Context, producer, consumer runner.Command) runner.Outcome {
	return f.Run(ctx, consumer)
}

func (f *fakeRunner) LookPath(string) bool { return true }

type fakeRPC struct {
	responses map[string]rpc.Response
}

func (f *fakeRPC) Call(_ context.Context, method string, _ ...any) rpc.Response {
	if resp, found := f.responses[method]; found {
		return resp
	}
	return rpc.Response{Failure: rpc.FailureRefused, Err: "connection refused"}
}

func result(raw string) rpc.Response {
	return rpc.Response{Result: json.RawMessage(raw), HasResult: true, Failure: rpc.FailureNone}
}
