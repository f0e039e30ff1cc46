package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/egzakutacno/deeep-myria/internal/app"
	"github.com/egzakutacno/deeep-myria/internal/config"
	"github.com/egzakutacno/deeep-myria/internal/rpc"
	"github.com/egzakutacno/deeep-myria/internal/runner"
)

type nodeRunner struct {
	mu      sync.Mutex
	running bool
	calls   []runner.Command
}

func (r *nodeRunner) Run(_ context.Context, c runner.Command) runner.Outcome {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, c)

	code := 0
	out := runner.Outcome{ExitCode: &code}
	if c.Name == "pgrep" {
		if !r.running || c.Args[0] == "-P" {
			code = 1
			return runner.Outcome{ExitCode: &code}
		}
		out.Stdout = "811\n"
	}
	return out
}

func (r *nodeRunner) Pipe(context.Context, runner.Command, runner.Command) runner.Outcome {
	code := 0
	return runner.Outcome{ExitCode: &code}
}

func (r *nodeRunner) LookPath(string) bool { return true }

func (r *nodeRunner) nodeCalls() []runner.Command {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []runner.Command
	for _, c := range r.calls {
		if c.Name == "myria-node" {
			out = append(out, c)
		}
	}
	return out
}

type staticRPC struct{ ok bool }

func (s staticRPC) Call(context.Context, string, ...any) rpc.Response {
	if !s.ok {
		return rpc.Response{Failure: rpc.FailureRefused, Err: "connection refused"}
	}
	return rpc.Response{Result: json.RawMessage(`"0x10"`), HasResult: true, Failure: rpc.FailureNone}
}

func isolateEnv(t *testing.T) {
	t.Helper()
	t.Setenv(config.APIKeyEnv, "")
	t.Setenv(config.ConfigPathEnv, "")
	t.Setenv("PORT", "")
	t.Setenv(config.EnvPrefix+"_LOGGING_JOURNAL_PATH", filepath.Join(t.TempDir(), "riptide.log"))
}

func execute(t *testing.T, r *nodeRunner, alive bool, args ...string) (string, error) {
	t.Helper()
	opts := &rootOptions{
		build: func(cfg config.Config, logger *logrus.Logger) *app.App {
			return app.New(cfg, logger, app.WithRunner(r), app.WithRPC(staticRPC{ok: alive}))
		},
	}
	cmd := newRootCmdWith(opts)

	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)

	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), err
}

func TestValidate(t *testing.T) {
	isolateEnv(t)

	t.Run("Defaults", func(t *testing.T) {
		out, err := execute(t, &nodeRunner{}, true, "validate")
		require.NoError(t, err)
		assert.JSONEq(t, `{"valid":true,"errors":[]}`, out)
	})

	t.Run("InvalidFile", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "myria.yaml")
		require.NoError(t, os.WriteFile(path, []byte("node:\n  rpc_port: 0\n"), 0o600))

		out, err := execute(t, &nodeRunner{}, true, "validate", "--config", path)
		assert.ErrorIs(t, err, errNegative)

		var v validation
		require.NoError(t, json.Unmarshal([]byte(out), &v))
		assert.False(t, v.Valid)
		assert.Contains(t, v.Errors, "Valid Myria RPC port is required (got 0)")
	})

	t.Run("MissingFile", func(t *testing.T) {
		_, err := execute(t, &nodeRunner{}, true, "validate", "--config", filepath.Join(t.TempDir(), "absent.yaml"))
		require.Error(t, err)
		assert.NotErrorIs(t, err, errNegative)
	})
}

func TestVerdictCommands(t *testing.T) {
	isolateEnv(t)

	tests := []struct {
		name    string
		args    []string
		running bool
		alive   bool
		field   string
		want    any
		wantErr bool
	}{
		{"LiveUp", []string{"live"}, true, true, "alive", true, false},
		{"LiveDown", []string{"live"}, true, false, "alive", false, true},
		{"HealthUp", []string{"health"}, true, true, "status", "healthy", false},
		{"HealthNoProcess", []string{"health"}, false, true, "status", "unhealthy", true},
		{"ReadyWithoutPorts", []string{"ready"}, true, true, "ready", false, true},
		{"DiagnoseNotReady", []string{"diagnose"}, true, true, "overall_status", "DEGRADED", true},
		{"DiagnoseNodeDown", []string{"diagnose"}, false, false, "overall_status", "CRITICAL", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := execute(t, &nodeRunner{running: tt.running}, tt.alive, tt.args...)
			if tt.wantErr {
				assert.ErrorIs(t, err, errNegative)
			} else {
				assert.NoError(t, err)
			}

			var body map[string]any
			require.NoError(t, json.Unmarshal([]byte(out), &body))
			assert.Equal(t, tt.want, body[tt.field])
		})
	}
}

func TestLifecycleCommands(t *testing.T) {
	isolateEnv(t)

	t.Run("StartWithoutKey", func(t *testing.T) {
		r := &nodeRunner{}
		out, err := execute(t, r, false, "start")
		assert.ErrorIs(t, err, errNegative)
		assert.Contains(t, out, "MYRIA_API_KEY not provided")
		assert.Empty(t, r.nodeCalls())
	})

	t.Run("StartStoppedNode", func(t *testing.T) {
		r := &nodeRunner{}
		out, err := execute(t, r, false, "start", "--key", "k")
		require.NoError(t, err)
		assert.Contains(t, out, `"state": "running"`)
		assert.NotContains(t, out, `"k"`)

		calls := r.nodeCalls()
		require.Len(t, calls, 1)
		assert.Equal(t, []string{"--start"}, calls[0].Args)
		assert.Equal(t, "k", calls[0].Input)
	})

	t.Run("StartRunningNodeRejected", func(t *testing.T) {
		r := &nodeRunner{running: true}
		out, err := execute(t, r, true, "start", "--key", "k")
		assert.ErrorIs(t, err, errNegative)
		assert.Contains(t, out, "invalid lifecycle transition")
		assert.Empty(t, r.nodeCalls())
	})

	t.Run("StopRunningNode", func(t *testing.T) {
		r := &nodeRunner{running: true}
		t.Setenv(config.APIKeyEnv, "env-key")

		_, err := execute(t, r, true, "stop")
		require.NoError(t, err)

		calls := r.nodeCalls()
		require.Len(t, calls, 1)
		assert.Equal(t, []string{"--stop"}, calls[0].Args)
		assert.Equal(t, "env-key", calls[0].Input)
	})

	t.Run("InstallSecret", func(t *testing.T) {
		r := &nodeRunner{}
		out, err := execute(t, r, false, "install-secret", "--key", "k")
		require.NoError(t, err)
		assert.Contains(t, out, `"state": "credential_installed"`)
		assert.Empty(t, r.nodeCalls())
	})
}

func TestVersion(t *testing.T) {
	out, err := execute(t, &nodeRunner{}, true, "version")
	require.NoError(t, err)
	assert.Contains(t, out, `"version"`)
}
