package lifecycle

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"

	"github.com/egzakutacno/deeep-myria/internal/logging"
	"github.com/egzakutacno/deeep-myria/internal/runner"
)

// InstallPolicy controls the download-and-run of the vendor install script.
type InstallPolicy struct {
	Binary      string
	ScriptURL   string
	MaxRetries  int           //retries after the first attempt
	BaseBackoff time.Duration //initial backoff, doubled per retry
	Timeout     time.Duration //per attempt
}

// ScriptInstaller installs the node by piping the install script into bash
// when the binary is not on PATH.
type ScriptInstaller struct {
	runner runner.ProcessRunner
	policy InstallPolicy
	logger logrus.FieldLogger
}

func NewScriptInstaller(r runner.ProcessRunner, policy InstallPolicy, logger logrus.FieldLogger) *ScriptInstaller {
	if logger == nil {
		logger = logging.Discard()
	}
	return &ScriptInstaller{runner: r, policy: policy, logger: logger.WithField("component", "installer")}
}

// EnsureInstalled is a no-op when the binary is already present.
func (i *ScriptInstaller) EnsureInstalled(ctx context.Context) error {
	if i.runner.LookPath(i.policy.Binary) {
		i.logger.Info("Myria already installed")
		return nil
	}
	if i.policy.ScriptURL == "" {
		return fmt.Errorf("%s not found and no install script configured", i.policy.Binary)
	}

	i.logger.WithField("url", i.policy.ScriptURL).Info("Installing Myria")

	attempt := func() error {
		out := i.runner.Pipe(ctx,
			runner.Command{Name: "wget", Args: []string{i.policy.ScriptURL, "-O", "-"}, Timeout: i.policy.Timeout},
			runner.Command{Name: "bash", Timeout: i.policy.Timeout},
		)
		if out.Success() {
			return nil
		}
		err := fmt.Errorf("installation failed: %s", out.Failure())
		if out.ExitCode == nil && !out.TimedOut {
			// wget or bash could not be spawned; retrying will not help
			return backoff.Permanent(err)
		}
		return err
	}

	b := backoff.NewExponentialBackOff()
	if i.policy.BaseBackoff > 0 {
		b.InitialInterval = i.policy.BaseBackoff
	}
	b.MaxElapsedTime = 0
	retries := i.policy.MaxRetries
	if retries < 0 {
		retries = 0
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(retries)), ctx)

	err := backoff.RetryNotify(attempt, policy, func(err error, next time.Duration) {
		i.logger.WithError(err).WithField("retryIn", next.String()).Warn("Myria installation attempt failed")
	})
	if err != nil {
		return err
	}

	if !i.runner.LookPath(i.policy.Binary) {
		return fmt.Errorf("install script succeeded but %s is not on PATH", i.policy.Binary)
	}
	i.logger.Info("Myria installed successfully")
	return nil
}
