package runner

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Command describes one external invocation.
type Command struct {
	Name string
	Args []string

	// Input is written to stdin. With Prompt set it is written once, the
	// first time stdout contains Prompt or after PromptFallback, whichever
	// comes first; otherwise immediately.
	Input          string
	Prompt         string
	PromptFallback time.Duration

	// Timeout of zero means no deadline beyond the caller's context.
	Timeout time.Duration
}

func (c Command) String() string {
	if len(c.Args) == 0 {
		return c.Name
	}
	return c.Name + " " + strings.Join(c.Args, " ")
}

// Outcome is the result of one external invocation.
// ExitCode is nil when the process never ran or was killed.
type Outcome struct {
	ExitCode *int          `json:"exitCode"`
	Stdout   string        `json:"stdout"`
	Stderr   string        `json:"stderr"`
	Err      string        `json:"error,omitempty"`
	TimedOut bool          `json:"timedOut,omitempty"`
	Duration time.Duration `json:"-"`
}

// Success reports a zero exit code without a runner error.
func (o Outcome) Success() bool {
	return o.Err == "" && o.ExitCode != nil && *o.ExitCode == 0
}

// Failure describes why the invocation did not succeed, preferring
// captured stderr. It returns "" on success.
func (o Outcome) Failure() string {
	if o.Success() {
		return ""
	}
	if o.TimedOut {
		return o.Err
	}
	if s := strings.TrimSpace(o.Stderr); s != "" {
		return s
	}
	if o.Err != "" {
		return o.Err
	}
	if o.ExitCode != nil {
		return fmt.Sprintf("process exited with code %d", *o.ExitCode)
	}
	return "process did not complete"
}

// ProcessRunner runs external commands. Implementations never panic and
// report every failure through the Outcome.
type ProcessRunner interface {
	Run(ctx context.Context, cmd Command) Outcome
	// Pipe connects producer's stdout to consumer's stdin and reports the
	// consumer's outcome; a producer failure is folded into it.
	Pipe(ctx context.Context, producer, consumer Command) Outcome
	// LookPath reports whether name resolves to an executable.
	LookPath(name string) bool
}
