package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// ErrTimeout is the Outcome.Err text for commands killed at their deadline.
const ErrTimeout = "timeout"

// defaultWaitDelay bounds how long Wait blocks on output pipes held open
// by grandchildren after the direct child has exited or been killed.
const defaultWaitDelay = 2 * time.Second

// Exec runs commands as local processes.
type Exec struct {
	logger    logrus.FieldLogger
	waitDelay time.Duration
}

func NewExec(logger logrus.FieldLogger) *Exec {
	if logger == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		logger = l
	}
	return &Exec{logger: logger, waitDelay: defaultWaitDelay}
}

func (e *Exec) LookPath(name string) bool {
	_, err := exec.LookPath(name)
	return err == nil
}

// Run executes c and waits for it to finish or time out.
func (e *Exec) Run(ctx context.Context, c Command) (out Outcome) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			out = Outcome{Err: fmt.Sprintf("runner fault: %v", r)}
		}
		out.Duration = time.Since(start)
	}()

	ctx, cancel := withTimeout(ctx, c.Timeout)
	defer cancel()

	log := e.logger.WithField("command", c.String())
	log.Debug("Running command")

	cmd := exec.CommandContext(ctx, c.Name, c.Args...)
	cmd.WaitDelay = e.waitDelay

	stdout := newOutputBuffer(c.Prompt)
	var stderr outputBuffer
	cmd.Stdout = stdout
	cmd.Stderr = &stderr

	var stdin io.WriteCloser
	if c.Input != "" {
		var err error
		if stdin, err = cmd.StdinPipe(); err != nil {
			return Outcome{Err: err.Error()}
		}
	}

	if err := cmd.Start(); err != nil {
		log.WithError(err).Debug("Command failed to start")
		return Outcome{Err: err.Error()}
	}

	done := make(chan struct{})
	var feeder sync.WaitGroup
	if stdin != nil {
		feeder.Add(1)
		go func() {
			defer feeder.Done()
			feed(stdin, c, stdout.promptSeen(), done, log)
		}()
	}

	waitErr := cmd.Wait()
	close(done)
	feeder.Wait()

	out = outcome(ctx, waitErr)
	out.Stdout = stdout.String()
	out.Stderr = stderr.String()
	log.WithFields(logrus.Fields{
		"success":  out.Success(),
		"timedOut": out.TimedOut,
	}).Debug("Command finished")
	return out
}

// Pipe runs producer | consumer.
func (e *Exec) Pipe(ctx context.Context, producer, consumer Command) (out Outcome) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			out = Outcome{Err: fmt.Sprintf("runner fault: %v", r)}
		}
		out.Duration = time.Since(start)
	}()

	timeout := consumer.Timeout
	if producer.Timeout > timeout {
		timeout = producer.Timeout
	}
	ctx, cancel := withTimeout(ctx, timeout)
	defer cancel()

	e.logger.WithField("command", producer.String()+" | "+consumer.String()).Debug("Running pipeline")

	prod := exec.CommandContext(ctx, producer.Name, producer.Args...)
	prod.WaitDelay = e.waitDelay
	var prodErr outputBuffer
	prod.Stderr = &prodErr

	cons := exec.CommandContext(ctx, consumer.Name, consumer.Args...)
	cons.WaitDelay = e.waitDelay
	var consOut, consErr outputBuffer
	cons.Stdout = &consOut
	cons.Stderr = &consErr

	pipe, err := prod.StdoutPipe()
	if err != nil {
		return Outcome{Err: err.Error()}
	}
	cons.Stdin = pipe

	if err := prod.Start(); err != nil {
		return Outcome{Err: err.Error()}
	}
	if err := cons.Start(); err != nil {
		_ = prod.Process.Kill()
		_ = prod.Wait()
		return Outcome{Err: err.Error()}
	}

	prodWait := prod.Wait()
	consWait := cons.Wait()

	out = outcome(ctx, consWait)
	out.Stdout = consOut.String()
	out.Stderr = consErr.String()

	prodOut := outcome(ctx, prodWait)
	if !out.TimedOut && !prodOut.Success() {
		reason := strings.TrimSpace(prodErr.String())
		if reason == "" {
			reason = prodOut.Failure()
		}
		out.Err = fmt.Sprintf("%s failed: %s", producer.Name, reason)
	}
	return out
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d > 0 {
		return context.WithTimeout(ctx, d)
	}
	return context.WithCancel(ctx)
}

// outcome classifies the error returned by Wait.
func outcome(ctx context.Context, err error) Outcome {
	if ctxErr := ctx.Err(); ctxErr != nil {
		if errors.Is(ctxErr, context.DeadlineExceeded) {
			return Outcome{Err: ErrTimeout, TimedOut: true}
		}
		return Outcome{Err: ctxErr.Error()}
	}

	if err == nil || errors.Is(err, exec.ErrWaitDelay) {
		code := 0
		return Outcome{ExitCode: &code}
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		code := exitErr.ExitCode()
		if code < 0 {
			return Outcome{Err: exitErr.Error()}
		}
		return Outcome{ExitCode: &code}
	}
	return Outcome{Err: err.Error()}
}

// feed writes the command input exactly once and closes stdin.
func feed(stdin io.WriteCloser, c Command, prompt <-chan struct{}, done <-chan struct{}, log logrus.FieldLogger) {
	defer stdin.Close()

	if c.Prompt != "" {
		var fallback <-chan time.Time
		if c.PromptFallback > 0 {
			t := time.NewTimer(c.PromptFallback)
			defer t.Stop()
			fallback = t.C
		}
		select {
		case <-prompt:
			log.Debug("Prompt detected, sending input")
		case <-fallback:
			log.Debug("Prompt not seen, sending input after fallback delay")
		case <-done:
			return
		}
	}

	input := c.Input
	if !strings.HasSuffix(input, "\n") {
		input += "\n"
	}
	if _, err := io.WriteString(stdin, input); err != nil {
		log.WithError(err).Debug("Writing command input failed")
	}
}

type outputBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer

	prompt string
	seen   chan struct{}
	fired  bool
}

func newOutputBuffer(prompt string) *outputBuffer {
	return &outputBuffer{prompt: prompt, seen: make(chan struct{})}
}

func (b *outputBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	n, err := b.buf.Write(p)
	if b.prompt != "" && !b.fired && bytes.Contains(b.buf.Bytes(), []byte(b.prompt)) {
		b.fired = true
		close(b.seen)
	}
	return n, err
}

func (b *outputBuffer) promptSeen() <-chan struct{} {
	return b.seen
}

func (b *outputBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
