package config

import (
	"net"
	"strconv"
	"time"
)

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	GinMode      string        `mapstructure:"gin_mode"`
}

// NodeConfig describes the supervised myria-node installation.
// Only used to shape probe targets and lifecycle invocations.
type NodeConfig struct {
	Binary      string `mapstructure:"binary"`
	ServiceName string `mapstructure:"service_name"`
	RPCHost     string `mapstructure:"rpc_host"`
	RPCPort     int    `mapstructure:"rpc_port"`
	P2PPort     int    `mapstructure:"p2p_port"`
	Network     string `mapstructure:"network"`
	NetworkID   int    `mapstructure:"network_id"`
	ChainID     string `mapstructure:"chain_id"`
	DataDir     string `mapstructure:"data_dir"`
	LogDir      string `mapstructure:"log_dir"`
}

// ProbeTimeouts bounds every probe invocation.
type ProbeTimeouts struct {
	Local   time.Duration `mapstructure:"local_timeout"`   // pgrep, netstat, df, free, systemctl
	Network time.Duration `mapstructure:"network_timeout"` // JSON-RPC calls
}

// HeartbeatPolicy defines the periodic heartbeat and when the node
// is considered healthy or recovered.
type HeartbeatPolicy struct {
	Interval         time.Duration `mapstructure:"interval"`
	FailureThreshold int           `mapstructure:"failure_threshold"` //consecutive failures to mark unhealthy
	SuccessThreshold int           `mapstructure:"success_threshold"` //consecutive successes to mark healthy again
}

// LifecyclePolicy controls start/stop/install invocations of the node binary.
type LifecyclePolicy struct {
	CommandTimeout   time.Duration `mapstructure:"command_timeout"`
	Prompt           string        `mapstructure:"prompt"`
	PromptFallback   time.Duration `mapstructure:"prompt_fallback"`
	InstallScriptURL string        `mapstructure:"install_script_url"`
	InstallRetries   int           `mapstructure:"install_retries"`
	InstallBackoff   time.Duration `mapstructure:"install_backoff"` // initial backoff between install attempts
	InstallTimeout   time.Duration `mapstructure:"install_timeout"`
}

type LoggingConfig struct {
	Level       string `mapstructure:"level"`
	BufferSize  int    `mapstructure:"buffer_size"`
	JournalPath string `mapstructure:"journal_path"`
}

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Node      NodeConfig      `mapstructure:"node"`
	Probes    ProbeTimeouts   `mapstructure:"probes"`
	Heartbeat HeartbeatPolicy `mapstructure:"heartbeat"`
	Lifecycle LifecyclePolicy `mapstructure:"lifecycle"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// RPCEndpoint returns the node's local JSON-RPC URL.
func (c NodeConfig) RPCEndpoint() string {
	return "http://" + net.JoinHostPort(c.RPCHost, strconv.Itoa(c.RPCPort))
}

func Default() Config {
	return Config{
		Server: ServerConfig{
			Port:         3000,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 60 * time.Second,
			GinMode:      "release",
		},
		Node: NodeConfig{
			Binary:      "myria-node",
			ServiceName: "myria-node",
			RPCHost:     "localhost",
			RPCPort:     8545,
			P2PPort:     30303,
			Network:     "mainnet",
			NetworkID:   1,
			ChainID:     "0x1",
			DataDir:     "/var/lib/myria-node",
			LogDir:      "/var/log/myria-node",
		},
		Probes: ProbeTimeouts{
			Local:   5 * time.Second,
			Network: 10 * time.Second,
		},
		Heartbeat: HeartbeatPolicy{
			Interval:         30 * time.Second,
			FailureThreshold: 3,
			SuccessThreshold: 1,
		},
		Lifecycle: LifecyclePolicy{
			CommandTimeout:   2 * time.Minute,
			Prompt:           "Enter the node API Key:",
			PromptFallback:   2 * time.Second,
			InstallScriptURL: "https://downloads-builds.myria.com/node/install.sh",
			InstallRetries:   3,
			InstallBackoff:   2 * time.Second,
			InstallTimeout:   10 * time.Minute,
		},
		Logging: LoggingConfig{
			Level:       "info",
			BufferSize:  1000,
			JournalPath: "/var/log/myria/riptide.log",
		},
	}
}
