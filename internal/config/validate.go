package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// ValidationError lists every problem found in a configuration.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "invalid configuration: " + strings.Join(e.Problems, "; ")
}

// Validate checks configuration correctness. It does not mutate cfg and
// reports all violations at once.
func Validate(cfg Config) error {
	problems := Check(cfg)
	if len(problems) == 0 {
		return nil
	}
	return &ValidationError{Problems: problems}
}

// Check returns the list of validation problems, empty when cfg is valid.
func Check(cfg Config) []string {
	var problems []string
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	if strings.TrimSpace(cfg.Node.Network) == "" {
		add("Myria network configuration is required")
	}
	if !validPort(cfg.Node.RPCPort) {
		add("Valid Myria RPC port is required (got %d)", cfg.Node.RPCPort)
	}
	if !validPort(cfg.Node.P2PPort) {
		add("Valid Myria P2P port is required (got %d)", cfg.Node.P2PPort)
	}
	if validPort(cfg.Node.RPCPort) && cfg.Node.RPCPort == cfg.Node.P2PPort {
		add("RPC and P2P ports must differ (both %d)", cfg.Node.RPCPort)
	}
	if strings.TrimSpace(cfg.Node.Binary) == "" {
		add("node binary is required")
	}
	if strings.TrimSpace(cfg.Node.RPCHost) == "" {
		add("node rpc_host is required")
	}
	if !validPort(cfg.Server.Port) {
		add("Valid server port is required (got %d)", cfg.Server.Port)
	}

	positive := []struct {
		name string
		d    time.Duration
	}{
		{"probes.local_timeout", cfg.Probes.Local},
		{"probes.network_timeout", cfg.Probes.Network},
		{"heartbeat.interval", cfg.Heartbeat.Interval},
		{"lifecycle.command_timeout", cfg.Lifecycle.CommandTimeout},
		{"lifecycle.install_timeout", cfg.Lifecycle.InstallTimeout},
	}
	for _, p := range positive {
		if p.d <= 0 {
			add("%s must be positive", p.name)
		}
	}
	if cfg.Lifecycle.PromptFallback < 0 {
		add("lifecycle.prompt_fallback must not be negative")
	}
	if cfg.Lifecycle.InstallRetries < 0 {
		add("lifecycle.install_retries must not be negative")
	}
	if cfg.Heartbeat.FailureThreshold < 1 {
		add("heartbeat.failure_threshold must be at least 1")
	}
	if cfg.Heartbeat.SuccessThreshold < 1 {
		add("heartbeat.success_threshold must be at least 1")
	}

	if raw := cfg.Lifecycle.InstallScriptURL; raw != "" {
		u, err := url.Parse(raw)
		if err != nil || u.Scheme != "https" || u.Host == "" {
			add("lifecycle.install_script_url must be an https URL")
		}
	}

	if _, err := logrus.ParseLevel(cfg.Logging.Level); err != nil {
		add("logging.level %q is not a valid level", cfg.Logging.Level)
	}
	if cfg.Logging.BufferSize < 0 {
		add("logging.buffer_size must not be negative")
	}
	return problems
}

func validPort(p int) bool {
	return p >= 1 && p <= 65535
}
