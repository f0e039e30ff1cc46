package health

import (
	"runtime"
	"time"

	"github.com/egzakutacno/deeep-myria/internal/probe"
)

// Status is the heartbeat verdict.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusUnhealthy Status = "unhealthy"
	StatusError     Status = "error"
)

// MemoryStats is the supervisor's own Go heap usage.
type MemoryStats struct {
	Alloc      uint64 `json:"alloc"`
	TotalAlloc uint64 `json:"totalAlloc"`
	Sys        uint64 `json:"sys"`
	HeapInuse  uint64 `json:"heapInuse"`
	NumGC      uint32 `json:"numGC"`
	Goroutines int    `json:"goroutines"`
}

func readMemoryStats() MemoryStats {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return MemoryStats{
		Alloc:      m.Alloc,
		TotalAlloc: m.TotalAlloc,
		Sys:        m.Sys,
		HeapInuse:  m.HeapInuse,
		NumGC:      m.NumGC,
		Goroutines: runtime.NumGoroutine(),
	}
}

// Snapshot is the heartbeat result. Status is healthy iff both the
// process and rpc probes are ok.
type Snapshot struct {
	Service              string         `json:"service"`
	Status               Status         `json:"status"`
	Probes               []probe.Result `json:"probes"`
	Timestamp            time.Time      `json:"timestamp"`
	ProcessUptimeSeconds float64        `json:"uptime"`
	ResourceUsage        map[string]any `json:"resourceUsage,omitempty"`
	Memory               MemoryStats    `json:"memory"`
	PID                  int            `json:"pid"`
	Error                string         `json:"error,omitempty"`
}

// Healthy reports whether the snapshot verdict is healthy.
func (s Snapshot) Healthy() bool { return s.Status == StatusHealthy }

// Probe returns the named probe result, if present.
func (s Snapshot) Probe(name string) (probe.Result, bool) {
	for _, r := range s.Probes {
		if r.Name == name {
			return r, true
		}
	}
	return probe.Result{}, false
}

// Readiness gates traffic admission. Ready is the AND of all checks.
type Readiness struct {
	Ready     bool            `json:"ready"`
	Checks    map[string]bool `json:"checks"`
	Timestamp time.Time       `json:"timestamp"`
	Error     string          `json:"error,omitempty"`
}

// Liveness is the cheap liveness verdict.
type Liveness struct {
	Alive     bool      `json:"alive"`
	Timestamp time.Time `json:"timestamp"`
	Uptime    float64   `json:"uptime"`
	Error     string    `json:"error,omitempty"`
}

// NodeInfo describes the supervised node installation.
type NodeInfo struct {
	Version        string `json:"version"`
	ServiceStatus  string `json:"serviceStatus"`
	DataDir        string `json:"dataDir"`
	LogDir         string `json:"logDir"`
	RPCPort        int    `json:"rpcPort"`
	P2PPort        int    `json:"p2pPort"`
	PortsListening bool   `json:"portsListening"`
	PID            int    `json:"pid,omitempty"`
}

// DetailedStatus is the introspection superset of a heartbeat. It is not
// used for automated gating.
type DetailedStatus struct {
	Service    string         `json:"service"`
	Version    string         `json:"version"`
	Status     string         `json:"status"`
	Health     Status         `json:"health"`
	MyriaNode  NodeInfo       `json:"myriaNode"`
	Network    map[string]any `json:"network"`
	System     map[string]any `json:"system"`
	NodeStatus *probe.Result  `json:"nodeStatus,omitempty"`
	Probes     []probe.Result `json:"probes"`
	Timestamp  time.Time      `json:"timestamp"`
	Error      string         `json:"error,omitempty"`
}

type MyriaMetrics struct {
	RPCResponsive bool   `json:"rpcResponsive"`
	PeerCount     uint64 `json:"peerCount"`
	Syncing       bool   `json:"syncing"`
	BlockNumber   string `json:"blockNumber,omitempty"`
}

type SystemMetrics struct {
	Memory      MemoryStats `json:"memory"`
	Uptime      float64     `json:"uptime"`
	DiskUsage   string      `json:"diskUsage,omitempty"`
	MemoryUsage float64     `json:"memoryUsage"`
	LoadAverage []float64   `json:"loadAverage,omitempty"`
}

// MetricsReport is observational; on an internal fault it is returned
// partially filled with Error set.
type MetricsReport struct {
	Timestamp time.Time     `json:"timestamp"`
	Myria     MyriaMetrics  `json:"myria"`
	System    SystemMetrics `json:"system"`
	Error     string        `json:"error,omitempty"`
}
