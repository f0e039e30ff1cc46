// Package app wires the supervisor components from one configuration.
// Both the HTTP daemon and the CLI build through New.
package app

import (
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/egzakutacno/deeep-myria/internal/api"
	"github.com/egzakutacno/deeep-myria/internal/config"
	"github.com/egzakutacno/deeep-myria/internal/diagnosis"
	"github.com/egzakutacno/deeep-myria/internal/health"
	"github.com/egzakutacno/deeep-myria/internal/lifecycle"
	"github.com/egzakutacno/deeep-myria/internal/logging"
	"github.com/egzakutacno/deeep-myria/internal/metrics"
	"github.com/egzakutacno/deeep-myria/internal/probe"
	"github.com/egzakutacno/deeep-myria/internal/rpc"
	"github.com/egzakutacno/deeep-myria/internal/runner"
	"github.com/egzakutacno/deeep-myria/internal/version"
)

// ServiceName identifies the supervisor in logs and on GET /.
const ServiceName = "myria-supervisor"

// App holds the wired components.
type App struct {
	Config     config.Config
	Logger     *logrus.Logger
	Recorder   *logging.Recorder
	Metrics    *metrics.Registry
	Journal    *logging.Journal
	Runner     runner.ProcessRunner
	RPC        rpc.Client
	Probes     *probe.Set
	Aggregator *health.Aggregator
	Monitor    *health.Monitor
	Controller *lifecycle.Controller
	Diagnosis  *diagnosis.Analyzer
	Handler    *api.Handler
}

// Option overrides a component before wiring.
type Option func(*App)

// WithRunner replaces the exec-backed process runner.
func WithRunner(r runner.ProcessRunner) Option {
	return func(a *App) { a.Runner = r }
}

// WithRPC replaces the HTTP JSON-RPC client.
func WithRPC(c rpc.Client) Option {
	return func(a *App) { a.RPC = c }
}

// New builds every component from cfg. The recorder is attached to
// logger as a hook. cfg is expected to be validated.
func New(cfg config.Config, logger *logrus.Logger, opts ...Option) *App {
	if logger == nil {
		logger = logging.Discard()
	}
	a := &App{Config: cfg, Logger: logger}
	for _, opt := range opts {
		opt(a)
	}

	level, err := logrus.ParseLevel(cfg.Logging.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	a.Recorder = logging.NewRecorder(cfg.Logging.BufferSize, level)
	logger.AddHook(a.Recorder)

	log := logging.WithService(logger, ServiceName)

	a.Metrics = metrics.NewRegistry(version.Version, version.GetShortCommit())
	a.Journal = logging.NewJournal(cfg.Logging.JournalPath, log)

	if a.Runner == nil {
		a.Runner = runner.NewExec(log)
	}
	if a.RPC == nil {
		a.RPC = rpc.NewHTTPClient(cfg.Node.RPCEndpoint(), cfg.Probes.Network, log)
	}

	a.Probes = probe.NewSet(a.Runner, a.RPC, probe.Target{
		Binary:      cfg.Node.Binary,
		ServiceName: cfg.Node.ServiceName,
		RPCPort:     cfg.Node.RPCPort,
		P2PPort:     cfg.Node.P2PPort,
		NetworkID:   cfg.Node.NetworkID,
		ChainID:     cfg.Node.ChainID,
		DataDir:     cfg.Node.DataDir,
	}, probe.Timeouts{
		Local:   cfg.Probes.Local,
		Network: cfg.Probes.Network,
	}, log.WithField("component", "probe"))

	a.Aggregator = health.NewAggregator(a.Probes.Catalog(), health.Options{
		Timeout:  a.Probes.Timeout,
		Observer: a.Metrics,
		Logger:   log.WithField("component", "health"),
		Node: health.NodeInfo{
			DataDir: cfg.Node.DataDir,
			LogDir:  cfg.Node.LogDir,
			RPCPort: cfg.Node.RPCPort,
			P2PPort: cfg.Node.P2PPort,
		},
		Version: version.Version,
	})

	a.Monitor = health.NewMonitor(a.Aggregator, health.MonitorPolicy{
		Interval:         cfg.Heartbeat.Interval,
		FailureThreshold: cfg.Heartbeat.FailureThreshold,
		SuccessThreshold: cfg.Heartbeat.SuccessThreshold,
	}, a.Metrics, a.Journal, log.WithField("component", "monitor"))

	installer := lifecycle.NewScriptInstaller(a.Runner, lifecycle.InstallPolicy{
		Binary:      cfg.Node.Binary,
		ScriptURL:   cfg.Lifecycle.InstallScriptURL,
		MaxRetries:  cfg.Lifecycle.InstallRetries,
		BaseBackoff: cfg.Lifecycle.InstallBackoff,
		Timeout:     cfg.Lifecycle.InstallTimeout,
	}, log)

	a.Controller = lifecycle.NewController(a.Runner, lifecycle.NewCredentialHolder(), lifecycle.Options{
		Binary:         cfg.Node.Binary,
		Prompt:         cfg.Lifecycle.Prompt,
		PromptFallback: cfg.Lifecycle.PromptFallback,
		CommandTimeout: cfg.Lifecycle.CommandTimeout,
		Installer:      installer,
		Observer:       a.Metrics,
		Journal:        a.Journal,
		Logger:         log,
		EnvAPIKey:      config.APIKeyFromEnv,
	})
	a.Monitor.OnLiveness(func(alive bool) { a.Controller.Reconcile(alive) })

	a.Diagnosis = diagnosis.NewAnalyzer(a.Metrics, a.Recorder)

	a.Handler = api.NewHandler(a.Aggregator, a.Controller, a.Recorder, a.Diagnosis, a.Monitor, api.ServiceInfo{
		Name:        ServiceName,
		Version:     version.Version,
		Description: "Health supervisor and lifecycle manager for myria-node",
		RPCPort:     cfg.Node.RPCPort,
		P2PPort:     cfg.Node.P2PPort,
		Network:     cfg.Node.Network,
	}, log)

	return a
}

// Router returns the gin engine serving every supervisor route.
func (a *App) Router() *gin.Engine {
	return api.RegisterRoutes(a.Handler, a.Logger, a.Metrics, a.Metrics.Handler())
}
