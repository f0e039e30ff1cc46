package lifecycle

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/egzakutacno/deeep-myria/internal/runner"
)

func testPolicy() InstallPolicy {
	return InstallPolicy{
		Binary:      "myria-node",
		ScriptURL:   "https://downloads-builds.myria.com/node/install.sh",
		MaxRetries:  2,
		BaseBackoff: time.Millisecond,
		Timeout:     time.Second,
	}
}

func TestScriptInstaller_AlreadyInstalled(t *testing.T) {
	r := newFakeRunner()
	r.found = []bool{true}

	err := NewScriptInstaller(r, testPolicy(), nil).EnsureInstalled(context.Background())

	require.NoError(t, err)
	assert.Zero(t, r.pipes, "installed binary must not trigger a download")
}

func TestScriptInstaller_InstallsWhenMissing(t *testing.T) {
	r := newFakeRunner()
	r.found = []bool{false, true}

	err := NewScriptInstaller(r, testPolicy(), nil).EnsureInstalled(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 1, r.pipes)
}

func TestScriptInstaller_RetriesThenSucceeds(t *testing.T) {
	r := newFakeRunner()
	r.found = []bool{false, true}
	r.pipeOut = []runner.Outcome{
		{ExitCode: exitCode(8), Stderr: "wget: server returned error"},
		{ExitCode: exitCode(0)},
	}

	err := NewScriptInstaller(r, testPolicy(), nil).EnsureInstalled(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 2, r.pipes)
}

func TestScriptInstaller_GivesUpAfterRetries(t *testing.T) {
	r := newFakeRunner()
	r.found = []bool{false}
	r.pipeOut = []runner.Outcome{{ExitCode: exitCode(1), Stderr: "boom"}}

	err := NewScriptInstaller(r, testPolicy(), nil).EnsureInstalled(context.Background())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "installation failed: boom")
	assert.Equal(t, 3, r.pipes, "first attempt plus two retries")
}

func TestScriptInstaller_SpawnFailureIsPermanent(t *testing.T) {
	r := newFakeRunner()
	r.found = []bool{false}
	r.pipeOut = []runner.Outcome{{Err: `exec: "wget": executable file not found in $PATH`}}

	err := NewScriptInstaller(r, testPolicy(), nil).EnsureInstalled(context.Background())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "wget")
	assert.Equal(t, 1, r.pipes)
}

func TestScriptInstaller_NotOnPathAfterInstall(t *testing.T) {
	r := newFakeRunner()
	r.found = []bool{false}

	err := NewScriptInstaller(r, testPolicy(), nil).EnsureInstalled(context.Background())

	assert.ErrorContains(t, err, "not on PATH")
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "credential_installed", CredentialInstalled.String())
	assert.Equal(t, "unknown", State(42).String())
	assert.Len(t, StateNames(), 7)

	text, err := Failed.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "failed", string(text))
}

func TestParseSecrets(t *testing.T) {
	cred, accepted := ParseSecrets(map[string]string{
		"apiKey":            " secret-api ",
		"MYRIA_NETWORK_KEY": "secret-net",
		"walletKey":         "  ",
		"other":             "x",
	}, "")

	assert.Equal(t, Credential{APIKey: "secret-api", NetworkKey: "secret-net"}, cred)
	assert.Equal(t, []string{KeyAPI, KeyNetwork}, accepted)
	assert.Equal(t, "Credential{apiKey,networkKey}", fmt.Sprintf("%v", cred))
	assert.NotContains(t, fmt.Sprintf("%+v", cred), "secret")

	raw, err := json.Marshal(cred)
	require.NoError(t, err)
	assert.JSONEq(t, `{"apiKey":true,"networkKey":true,"walletKey":false}`, string(raw))
}
