package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix namespaces supervisor settings in the environment,
// e.g. MYRIA_SUPERVISOR_NODE_RPC_PORT.
const EnvPrefix = "MYRIA_SUPERVISOR"

// ConfigPathEnv names an optional YAML file when --config is not given.
const ConfigPathEnv = EnvPrefix + "_CONFIG"

// Load builds the configuration from defaults, an optional YAML file and
// the environment, in increasing order of precedence. PORT, when set,
// overrides server.port. The result is not validated.
func Load(path string) (Config, error) {
	v := viper.New()
	setDefaults(v, Default())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path == "" {
		path = os.Getenv(ConfigPathEnv)
	}
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("reading config file failed (%s): %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("parsing config failed: %w", err)
	}

	if raw := strings.TrimSpace(os.Getenv("PORT")); raw != "" {
		port, err := strconv.Atoi(raw)
		if err != nil {
			return Config{}, fmt.Errorf("invalid PORT %q: %w", raw, err)
		}
		cfg.Server.Port = port
	}
	return cfg, nil
}

// LoadValidated is Load followed by Validate. On a validation failure the
// loaded config is still returned so callers can report it.
func LoadValidated(path string) (Config, error) {
	cfg, err := Load(path)
	if err != nil {
		return Config{}, err
	}
	return cfg, Validate(cfg)
}

func setDefaults(v *viper.Viper, d Config) {
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.read_timeout", d.Server.ReadTimeout)
	v.SetDefault("server.write_timeout", d.Server.WriteTimeout)
	v.SetDefault("server.gin_mode", d.Server.GinMode)

	v.SetDefault("node.binary", d.Node.Binary)
	v.SetDefault("node.service_name", d.Node.ServiceName)
	v.SetDefault("node.rpc_host", d.Node.RPCHost)
	v.SetDefault("node.rpc_port", d.Node.RPCPort)
	v.SetDefault("node.p2p_port", d.Node.P2PPort)
	v.SetDefault("node.network", d.Node.Network)
	v.SetDefault("node.network_id", d.Node.NetworkID)
	v.SetDefault("node.chain_id", d.Node.ChainID)
	v.SetDefault("node.data_dir", d.Node.DataDir)
	v.SetDefault("node.log_dir", d.Node.LogDir)

	v.SetDefault("probes.local_timeout", d.Probes.Local)
	v.SetDefault("probes.network_timeout", d.Probes.Network)

	v.SetDefault("heartbeat.interval", d.Heartbeat.Interval)
	v.SetDefault("heartbeat.failure_threshold", d.Heartbeat.FailureThreshold)
	v.SetDefault("heartbeat.success_threshold", d.Heartbeat.SuccessThreshold)

	v.SetDefault("lifecycle.command_timeout", d.Lifecycle.CommandTimeout)
	v.SetDefault("lifecycle.prompt", d.Lifecycle.Prompt)
	v.SetDefault("lifecycle.prompt_fallback", d.Lifecycle.PromptFallback)
	v.SetDefault("lifecycle.install_script_url", d.Lifecycle.InstallScriptURL)
	v.SetDefault("lifecycle.install_retries", d.Lifecycle.InstallRetries)
	v.SetDefault("lifecycle.install_backoff", d.Lifecycle.InstallBackoff)
	v.SetDefault("lifecycle.install_timeout", d.Lifecycle.InstallTimeout)

	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.buffer_size", d.Logging.BufferSize)
	v.SetDefault("logging.journal_path", d.Logging.JournalPath)
}
