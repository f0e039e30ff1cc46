package lifecycle

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/egzakutacno/deeep-myria/internal/logging"
	"github.com/egzakutacno/deeep-myria/internal/runner"
)

// Operation names, used in logs and metrics.
const (
	OpInstallSecret = "install_secret"
	OpStart         = "start"
	OpStop          = "stop"
)

// Result is returned by every lifecycle operation.
type Result struct {
	Success  bool     `json:"success"`
	Error    string   `json:"error,omitempty"`
	Accepted []string `json:"accepted,omitempty"`
	State    State    `json:"state"`
}

// Snapshot is a read-only view of the controller. It never carries
// credential values.
type Snapshot struct {
	State       State           `json:"state"`
	LastError   string          `json:"lastError,omitempty"`
	ChangedAt   time.Time       `json:"changedAt"`
	Busy        bool            `json:"busy"`
	Credentials map[string]bool `json:"credentials"`
}

// Observer receives lifecycle outcomes. *metrics.Registry satisfies it.
type Observer interface {
	ObserveLifecycle(operation string, ok bool)
	SetLifecycleState(current string, all []string)
}

type nopObserver struct{}

func (nopObserver) ObserveLifecycle(string, bool) {}
func (nopObserver) SetLifecycleState(string, []string) {}

// Installer provisions the node binary.
type Installer interface {
	EnsureInstalled(ctx context.Context) error
}

// Options configures a Controller.
type Options struct {
	Binary         string
	Prompt         string
	PromptFallback time.Duration
	CommandTimeout time.Duration

	Installer Installer
	Observer  Observer
	Journal   *logging.Journal
	Logger    logrus.FieldLogger

	// EnvAPIKey returns an API key from the environment; it wins over
	// the secrets passed to InstallSecret. Defaults to MYRIA_API_KEY.
	EnvAPIKey func() string
}

// Controller runs start, stop and install-secret against the node.
// At most one operation is in flight; a concurrent caller is rejected
// immediately with ErrOperationInProgress.
type Controller struct {
	op sync.Mutex

	mu        sync.RWMutex
	state     State
	lastErr   string
	changedAt time.Time
	busy      bool

	cred   *CredentialHolder
	runner runner.ProcessRunner
	opts   Options
	logger logrus.FieldLogger
}

func NewController(r runner.ProcessRunner, cred *CredentialHolder, opts Options) *Controller {
	if cred == nil {
		cred = NewCredentialHolder()
	}
	if opts.Binary == "" {
		opts.Binary = "myria-node"
	}
	if opts.Observer == nil {
		opts.Observer = nopObserver{}
	}
	if opts.EnvAPIKey == nil {
		opts.EnvAPIKey = func() string { return os.Getenv("MYRIA_API_KEY") }
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	c := &Controller{
		state:     Uninitialized,
		changedAt: time.Now().UTC(),
		cred:      cred,
		runner:    r,
		opts:      opts,
		logger:    logger.WithField("component", "lifecycle"),
	}
	c.publishState(Uninitialized)
	return c
}

func (c *Controller) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

func (c *Controller) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Snapshot{
		State:       c.state,
		LastError:   c.lastErr,
		ChangedAt:   c.changedAt,
		Busy:        c.busy,
		Credentials: c.cred.Get().Presence(),
	}
}

// InstallSecret ensures the node is installed and stores the recognized
// credentials. The state moves to CredentialInstalled once an API key is
// held; a running node keeps running with the new credential.
func (c *Controller) InstallSecret(ctx context.Context, secrets map[string]string) Result {
	if !c.acquire() {
		return c.reject(OpInstallSecret)
	}
	defer c.release()
	ctx = context.WithoutCancel(ctx)

	log := c.logger.WithField("operation", OpInstallSecret)
	log.Info("Installing Myria secrets")

	if c.opts.Installer != nil {
		if err := c.opts.Installer.EnsureInstalled(ctx); err != nil {
			msg := fmt.Sprintf("Myria installation failed: %v", err)
			log.WithError(err).Error("Failed to install Myria")
			return c.fail(OpInstallSecret, msg, nil)
		}
	}

	cred, accepted := ParseSecrets(secrets, c.opts.EnvAPIKey())
	c.cred.Merge(cred)
	log = log.WithField("accepted", accepted)

	if !c.cred.Get().HasAPIKey() {
		log.Error("Myria API key not found in environment variables or secrets")
		return c.fail(OpInstallSecret, "MYRIA_API_KEY not provided", accepted)
	}

	if c.State() != Running {
		c.transition(CredentialInstalled, "")
	}
	log.Info("Myria secrets installed")
	c.opts.Journal.Record(logging.EventSecretsInstalled, logging.Fields{"accepted": accepted})
	c.opts.Observer.ObserveLifecycle(OpInstallSecret, true)
	return Result{Success: true, Accepted: accepted, State: c.State()}
}

// Start runs `<binary> --start`, answering the key prompt with the API key.
func (c *Controller) Start(ctx context.Context) Result {
	return c.invoke(ctx, OpStart, "--start", State.canStart, Starting, Running, logging.EventNodeStarted)
}

// Stop runs `<binary> --stop`, answering the key prompt with the API key.
func (c *Controller) Stop(ctx context.Context) Result {
	return c.invoke(ctx, OpStop, "--stop", State.canStop, Stopping, Stopped, logging.EventNodeStopped)
}

func (c *Controller) invoke(ctx context.Context, op, flag string, allowed func(State) bool, during, after State, event string) Result {
	if !c.acquire() {
		return c.reject(op)
	}
	defer c.release()
	ctx = context.WithoutCancel(ctx)

	log := c.logger.WithField("operation", op)

	cred := c.cred.Get()
	if !cred.HasAPIKey() {
		log.Errorf("Cannot %s Myria: API key not installed", op)
		return c.precondition(op, ErrCredentialMissing)
	}
	if from := c.State(); !allowed(from) {
		err := fmt.Errorf("%w: cannot %s from %s", ErrInvalidTransition, op, from)
		log.WithError(err).Warn("Lifecycle operation rejected")
		return c.precondition(op, err)
	}

	c.transition(during, "")
	log.Infof("Running %s %s", c.opts.Binary, flag)

	out := c.runner.Run(ctx, runner.Command{
		Name:           c.opts.Binary,
		Args:           []string{flag},
		Input:          cred.APIKey,
		Prompt:         c.opts.Prompt,
		PromptFallback: c.opts.PromptFallback,
		Timeout:        c.opts.CommandTimeout,
	})
	if !out.Success() {
		msg := out.Failure()
		log.WithFields(logrus.Fields{"error": msg, "timedOut": out.TimedOut}).Errorf("Failed to %s Myria", op)
		c.transition(Failed, msg)
		return c.fail(op, msg, nil)
	}

	c.transition(after, "")
	log.WithField("duration", out.Duration.String()).Infof("Myria node %s succeeded", op)
	c.opts.Journal.Record(event, nil)
	c.opts.Observer.ObserveLifecycle(op, true)
	return Result{Success: true, State: after}
}

// Reconcile aligns the state with the observed node, such as one started
// before this controller existed or one that exited on its own. It is
// skipped while an operation is in flight and never invokes the node
// binary.
func (c *Controller) Reconcile(alive bool) State {
	if !c.acquire() {
		return c.State()
	}
	defer c.release()

	from := c.State()
	switch {
	case alive && from != Running:
		c.transition(Running, "")
	case !alive && from == Running:
		c.transition(Stopped, "")
	default:
		return from
	}
	to := c.State()
	c.logger.WithFields(logrus.Fields{"from": from.String(), "to": to.String(), "alive": alive}).Info("Lifecycle state reconciled with observed node")
	return to
}

func (c *Controller) acquire() bool {
	if !c.op.TryLock() {
		return false
	}
	c.mu.Lock()
	c.busy = true
	c.mu.Unlock()
	return true
}

func (c *Controller) release() {
	c.mu.Lock()
	c.busy = false
	c.mu.Unlock()
	c.op.Unlock()
}

func (c *Controller) reject(op string) Result {
	c.logger.WithField("operation", op).Warn("Lifecycle operation rejected: another operation is in progress")
	c.opts.Observer.ObserveLifecycle(op, false)
	return Result{Success: false, Error: ErrOperationInProgress.Error(), State: c.State()}
}

func (c *Controller) precondition(op string, err error) Result {
	c.opts.Observer.ObserveLifecycle(op, false)
	return Result{Success: false, Error: err.Error(), State: c.State()}
}

func (c *Controller) fail(op, msg string, accepted []string) Result {
	c.opts.Journal.Record(logging.EventLifecycleError, logging.Fields{"operation": op, "error": msg})
	c.opts.Observer.ObserveLifecycle(op, false)
	return Result{Success: false, Error: msg, Accepted: accepted, State: c.State()}
}

func (c *Controller) transition(to State, lastErr string) {
	c.mu.Lock()
	from := c.state
	c.state = to
	c.lastErr = lastErr
	c.changedAt = time.Now().UTC()
	c.mu.Unlock()

	if from != to {
		c.logger.WithFields(logrus.Fields{"from": from.String(), "to": to.String()}).Debug("Lifecycle state changed")
	}
	c.publishState(to)
}

func (c *Controller) publishState(s State) {
	c.opts.Observer.SetLifecycleState(s.String(), StateNames())
}
