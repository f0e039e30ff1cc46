package probe

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
	"golang.org/x/sync/errgroup"

	"github.com/egzakutacno/deeep-myria/internal/rpc"
	"github.com/egzakutacno/deeep-myria/internal/runner"
)

// Target identifies the supervised node.
type Target struct {
	Binary      string
	ServiceName string
	RPCPort     int
	P2PPort     int
	NetworkID   int
	ChainID     string
	DataDir     string
}

// Timeouts bound local commands and network calls.
type Timeouts struct {
	Local   time.Duration
	Network time.Duration
}

// Set builds every probe on top of a process runner and an RPC client.
type Set struct {
	runner   runner.ProcessRunner
	rpc      rpc.Client
	target   Target
	timeouts Timeouts
	logger   logrus.FieldLogger

	// hostStats and self are swapped in tests.
	hostStats func() (HostStats, error)
	self      int
}

func NewSet(r runner.ProcessRunner, c rpc.Client, target Target, timeouts Timeouts, logger logrus.FieldLogger) *Set {
	if logger == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		logger = l
	}
	return &Set{
		runner:    r,
		rpc:       c,
		target:    target,
		timeouts:  timeouts,
		logger:    logger,
		hostStats: readHostStats,
		self:      os.Getpid(),
	}
}

func (s *Set) Target() Target { return s.target }

// Timeout returns the deadline that applies to the named probe.
func (s *Set) Timeout(name string) time.Duration {
	switch name {
	case NameRPC, NameNetwork, NameNodeStatus:
		return s.timeouts.Network
	default:
		return s.timeouts.Local
	}
}

// Catalog returns every probe, each wrapped by Guard.
func (s *Set) Catalog() Catalog {
	return Catalog{
		NameProcess:    Guard(NameProcess, s.process),
		NameRPC:        Guard(NameRPC, s.rpcAlive),
		NamePorts:      Guard(NamePorts, s.ports),
		NameNetwork:    Guard(NameNetwork, s.network),
		NameResources:  Guard(NameResources, s.resources),
		NameSystemd:    Guard(NameSystemd, s.systemd),
		NameService:    Guard(NameService, s.service),
		NameVersion:    Guard(NameVersion, s.version),
		NameNodeStatus: Guard(NameNodeStatus, s.nodeStatus),
	}
}

func (s *Set) local(ctx context.Context, name string, args ...string) runner.Outcome {
	return s.runner.Run(ctx, runner.Command{Name: name, Args: args, Timeout: s.timeouts.Local})
}

// maxProcessName is the kernel's comm length; pgrep -x never matches
// longer names.
const maxProcessName = 15

// process: pgrep by process name, minus the supervisor's own children
// (the version and status probes run the same binary).
func (s *Set) process(ctx context.Context) Result {
	match := []string{"-x", filepath.Base(s.target.Binary)}
	if len(match[1]) > maxProcessName {
		match = []string{"-f", s.target.Binary}
	}
	out := s.local(ctx, "pgrep", match...)
	if out.TimedOut {
		return Failed(NameProcess, ErrTimeout)
	}
	pids := ParsePIDs(out.Stdout)
	if len(pids) > 0 {
		children := s.local(ctx, "pgrep", "-P", strconv.Itoa(s.self))
		pids = lo.Without(pids, ParsePIDs(children.Stdout)...)
	}
	if len(pids) == 0 {
		res := Failed(NameProcess, "Myria node process not found")
		res.Detail["status"] = "not_running"
		if out.ExitCode == nil && out.Err != "" {
			res.Error = out.Err
			res.Detail["status"] = "error"
		}
		return res
	}
	return Result{
		OK: true,
		Detail: map[string]any{
			"status": "running",
			"pid":    pids[0],
			"pids":   pids,
		},
	}
}

// rpcAlive: eth_blockNumber must return a result before the deadline.
func (s *Set) rpcAlive(ctx context.Context) Result {
	resp := s.rpc.Call(ctx, "eth_blockNumber")
	detail := map[string]any{
		"failure":   string(resp.Failure),
		"latencyMs": resp.Latency.Milliseconds(),
	}
	if !resp.OK() {
		return Result{OK: false, Detail: detail, Error: resp.Err}
	}

	if hex, ok := resp.String(); ok {
		detail["blockNumber"] = hex
		if n, err := rpc.HexToUint64(hex); err == nil {
			detail["block"] = n
		}
	} else {
		detail["blockNumber"] = string(resp.Result)
	}
	return Result{OK: true, Detail: detail}
}

// ports: both the RPC and P2P ports must be listening.
func (s *Set) ports(ctx context.Context) Result {
	out := s.local(ctx, "netstat", "-tln")
	if !out.Success() {
		return Failed(NamePorts, "netstat failed: "+out.Failure())
	}
	rpcUp := ListeningOn(out.Stdout, s.target.RPCPort)
	p2pUp := ListeningOn(out.Stdout, s.target.P2PPort)
	res := Result{
		OK: rpcUp && p2pUp,
		Detail: map[string]any{
			"rpcPort":    rpcUp,
			"p2pPort":    p2pUp,
			"rpcPortNum": s.target.RPCPort,
			"p2pPortNum": s.target.P2PPort,
		},
	}
	if !res.OK {
		var missing []string
		if !rpcUp {
			missing = append(missing, strconv.Itoa(s.target.RPCPort))
		}
		if !p2pUp {
			missing = append(missing, strconv.Itoa(s.target.P2PPort))
		}
		res.Error = "ports not listening: " + strings.Join(missing, ", ")
	}
	return res
}

// network: peer count and sync state, queried concurrently.
// Informational; ok unless both calls fail.
func (s *Set) network(ctx context.Context) Result {
	var peers, syncing rpc.Response
	var g errgroup.Group
	g.Go(func() error {
		peers = s.rpc.Call(ctx, "net_peerCount")
		return nil
	})
	g.Go(func() error {
		syncing = s.rpc.Call(ctx, "eth_syncing")
		return nil
	})
	_ = g.Wait()

	detail := map[string]any{
		"connected": peers.OK(),
		"peerCount": uint64(0),
		"syncing":   false,
		"networkId": s.target.NetworkID,
		"chainId":   s.target.ChainID,
	}

	if hex, ok := peers.String(); ok {
		if n, err := rpc.HexToUint64(hex); err == nil {
			detail["peerCount"] = n
		}
	}

	if syncing.OK() {
		v := gjson.ParseBytes(syncing.Result)
		if v.IsObject() {
			detail["syncing"] = true
			progress := map[string]any{}
			for _, key := range []string{"startingBlock", "currentBlock", "highestBlock"} {
				if n, err := rpc.HexToUint64(v.Get(key).String()); err == nil {
					progress[key] = n
				}
			}
			detail["syncProgress"] = progress
		} else {
			detail["syncing"] = v.Type == gjson.True
		}
	}

	if !peers.OK() && !syncing.OK() {
		return Result{OK: false, Detail: detail, Error: "net_peerCount: " + peers.Err + "; eth_syncing: " + syncing.Err}
	}
	return Result{OK: true, Detail: detail}
}

// resources: disk usage of the data dir, host memory usage, load average
// and host uptime. Informational only.
func (s *Set) resources(ctx context.Context) Result {
	var df, free runner.Outcome
	var g errgroup.Group
	g.Go(func() error {
		df = s.local(ctx, "df", "-h", s.target.DataDir)
		return nil
	})
	g.Go(func() error {
		free = s.local(ctx, "free")
		return nil
	})
	_ = g.Wait()

	detail := map[string]any{}
	var problems []string

	if df.Success() {
		if usage, err := ParseDiskUsage(df.Stdout); err == nil {
			detail["diskUsage"] = usage
		} else {
			problems = append(problems, err.Error())
		}
	} else {
		problems = append(problems, "df failed: "+df.Failure())
	}

	if free.Success() {
		if pct, err := ParseMemoryUsage(free.Stdout); err == nil {
			detail["memoryUsage"] = pct
		} else {
			problems = append(problems, err.Error())
		}
	} else {
		problems = append(problems, "free failed: "+free.Failure())
	}

	if host, err := s.hostStats(); err == nil {
		detail["loadAverage"] = host.LoadAverage[:]
		detail["hostUptimeSeconds"] = host.UptimeSeconds
	}

	res := Result{OK: len(problems) == 0, Detail: detail}
	if !res.OK {
		res.Error = strings.Join(problems, "; ")
	}
	return res
}

// systemd: the service manager reports the system as fully running.
func (s *Set) systemd(ctx context.Context) Result {
	out := s.local(ctx, "systemctl", "is-system-running")
	state := strings.TrimSpace(out.Stdout)
	if state == "" {
		state = "unknown"
	}
	res := Result{OK: state == "running", Detail: map[string]any{"state": state}}
	if !res.OK {
		res.Error = "system state is " + state
		if out.TimedOut {
			res.Error = ErrTimeout
		}
	}
	return res
}

// service: systemctl is-active <service>.
func (s *Set) service(ctx context.Context) Result {
	out := s.local(ctx, "systemctl", "is-active", s.target.ServiceName)
	state := strings.TrimSpace(out.Stdout)
	if state == "" {
		state = "inactive"
	}
	res := Result{
		OK:     state == "active",
		Detail: map[string]any{"state": state, "service": s.target.ServiceName},
	}
	if !res.OK {
		res.Error = "service is " + state
		if out.TimedOut {
			res.Error = ErrTimeout
		}
	}
	return res
}

// version: <binary> --version, "unknown" on failure.
func (s *Set) version(ctx context.Context) Result {
	out := s.local(ctx, s.target.Binary, "--version")
	version := strings.TrimSpace(out.Stdout)
	if !out.Success() || version == "" {
		return Result{OK: false, Detail: map[string]any{"version": "unknown"}, Error: out.Failure()}
	}
	return Result{OK: true, Detail: map[string]any{"version": version}}
}

// nodeStatus: <binary> --status, parsed for the current cycle state.
func (s *Set) nodeStatus(ctx context.Context) Result {
	out := s.runner.Run(ctx, runner.Command{
		Name:    s.target.Binary,
		Args:    []string{"--status"},
		Timeout: s.timeouts.Network,
	})
	if !out.Success() || strings.TrimSpace(out.Stdout) == "" {
		reason := out.Failure()
		if reason == "" {
			reason = "empty status output"
		}
		s.logger.WithField("reason", reason).Debug("Node status check failed")
		return Failed(NameNodeStatus, reason)
	}

	ns := ParseNodeStatus(out.Stdout)
	detail := map[string]any{"healthy": ns.Healthy}
	if ns.NodeID != "" {
		detail["nodeId"] = ns.NodeID
	}
	if ns.CycleStatus != "" {
		detail["cycleStatus"] = ns.CycleStatus
	}
	if ns.CycleUptime != "" {
		detail["cycleUptime"] = ns.CycleUptime
	}
	res := Result{OK: ns.Healthy, Detail: detail}
	if !ns.Healthy {
		res.Error = "node status is not running"
	}
	return res
}
