package health

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/egzakutacno/deeep-myria/internal/probe"
)

// Readiness check names.
const (
	CheckMyriaNode = "myriaNode"
	CheckSystemd   = "systemd"
	CheckPorts     = "ports"
)

const serviceName = "myria-node"

// Observer receives probe timings and verdicts. *metrics.Registry
// satisfies it.
type Observer interface {
	ObserveProbe(probe string, ok bool, d time.Duration)
	SetVerdict(verdict string, value bool)
}

type nopObserver struct{}

func (nopObserver) ObserveProbe(string, bool, time.Duration) {}
func (nopObserver) SetVerdict(string, bool) {}

// Options configures an Aggregator. Zero values are usable.
type Options struct {
	// Timeout returns the per-probe deadline; a probe still running at
	// its deadline is reported as ok=false, error="timeout".
	Timeout  func(name string) time.Duration
	Observer Observer
	Logger   logrus.FieldLogger
	Node     NodeInfo
	Version  string
}

// Aggregator folds probe results into heartbeat, readiness and liveness
// verdicts. Every call re-runs its probes; nothing is cached. No method
// panics or returns an error.
type Aggregator struct {
	catalog  probe.Catalog
	timeout  func(string) time.Duration
	observer Observer
	logger   logrus.FieldLogger
	node     NodeInfo
	version  string
	started  time.Time
	pid      int
}

func NewAggregator(catalog probe.Catalog, opts Options) *Aggregator {
	if opts.Timeout == nil {
		opts.Timeout = func(string) time.Duration { return 10 * time.Second }
	}
	if opts.Observer == nil {
		opts.Observer = nopObserver{}
	}
	if opts.Logger == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		opts.Logger = l
	}
	if opts.Version == "" {
		opts.Version = "dev"
	}
	return &Aggregator{
		catalog:  catalog,
		timeout:  opts.Timeout,
		observer: opts.Observer,
		logger:   opts.Logger,
		node:     opts.Node,
		version:  opts.Version,
		started:  time.Now(),
		pid:      os.Getpid(),
	}
}

// Heartbeat runs the process and rpc probes plus resource sampling.
func (a *Aggregator) Heartbeat(ctx context.Context) (snap Snapshot) {
	snap = Snapshot{Service: serviceName, Timestamp: now(), PID: a.pid}
	defer func() {
		if r := recover(); r != nil {
			snap.Status = StatusError
			snap.Error = fault(r)
			a.logger.WithField("error", snap.Error).Error("Heartbeat failed")
		}
	}()

	results := a.run(ctx, probe.NameProcess, probe.NameRPC, probe.NameResources)
	healthy := results[0].OK && results[1].OK

	snap.Status = lo.Ternary(healthy, StatusHealthy, StatusUnhealthy)
	snap.Probes = results
	snap.ResourceUsage = results[2].Detail
	snap.ProcessUptimeSeconds = a.uptime()
	snap.Memory = readMemoryStats()

	a.observer.SetVerdict("healthy", healthy)
	return snap
}

// DetailedStatus runs every probe, including the --status liveness signal.
func (a *Aggregator) DetailedStatus(ctx context.Context) (st DetailedStatus) {
	st = DetailedStatus{Service: serviceName, Version: a.version, Timestamp: now()}
	defer func() {
		if r := recover(); r != nil {
			st.Status = "error"
			st.Health = StatusError
			st.Error = fault(r)
			a.logger.WithField("error", st.Error).Error("Status check failed")
		}
	}()

	results := a.run(ctx,
		probe.NameProcess,
		probe.NameRPC,
		probe.NamePorts,
		probe.NameNetwork,
		probe.NameResources,
		probe.NameService,
		probe.NameVersion,
		probe.NameNodeStatus,
	)
	byName := lo.KeyBy(results, func(r probe.Result) string { return r.Name })

	healthy := byName[probe.NameProcess].OK && byName[probe.NameRPC].OK
	a.observer.SetVerdict("healthy", healthy)

	node := a.node
	node.Version = stringDetail(byName[probe.NameVersion], "version", "unknown")
	node.ServiceStatus = stringDetail(byName[probe.NameService], "state", "inactive")
	node.PortsListening = byName[probe.NamePorts].OK
	if pid, ok := byName[probe.NameProcess].Detail["pid"].(int); ok {
		node.PID = pid
	}

	system := make(map[string]any, len(byName[probe.NameResources].Detail)+1)
	for k, v := range byName[probe.NameResources].Detail {
		system[k] = v
	}
	system["uptime"] = a.uptime()

	nodeStatus := byName[probe.NameNodeStatus]

	st.Status = "running"
	st.Health = lo.Ternary(healthy, StatusHealthy, StatusUnhealthy)
	st.MyriaNode = node
	st.Network = byName[probe.NameNetwork].Detail
	st.System = system
	st.NodeStatus = &nodeStatus
	st.Probes = results
	return st
}

// Readiness ANDs the node, systemd and ports checks.
func (a *Aggregator) Readiness(ctx context.Context) (rd Readiness) {
	rd = Readiness{Timestamp: now()}
	defer func() {
		if r := recover(); r != nil {
			rd = Readiness{Ready: false, Checks: rd.Checks, Timestamp: rd.Timestamp, Error: fault(r)}
			a.logger.WithField("error", rd.Error).Error("Readiness check failed")
		}
	}()

	results := a.run(ctx, probe.NameProcess, probe.NameRPC, probe.NameSystemd, probe.NamePorts)

	rd.Checks = map[string]bool{
		CheckMyriaNode: results[0].OK && results[1].OK,
		CheckSystemd:   results[2].OK,
		CheckPorts:     results[3].OK,
	}
	rd.Ready = Ready(rd.Checks)

	a.observer.SetVerdict("ready", rd.Ready)
	return rd
}

// Ready is the logical AND of all checks; no checks means not ready.
func Ready(checks map[string]bool) bool {
	if len(checks) == 0 {
		return false
	}
	return lo.EveryBy(lo.Values(checks), func(ok bool) bool { return ok })
}

// Liveness is the process and rpc subset of Heartbeat.
func (a *Aggregator) Liveness(ctx context.Context) (lv Liveness) {
	lv = Liveness{Timestamp: now()}
	defer func() {
		if r := recover(); r != nil {
			lv.Alive = false
			lv.Error = fault(r)
			a.logger.WithField("error", lv.Error).Error("Liveness check failed")
		}
	}()

	results := a.run(ctx, probe.NameProcess, probe.NameRPC)
	lv.Alive = results[0].OK && results[1].OK
	lv.Uptime = a.uptime()

	a.observer.SetVerdict("alive", lv.Alive)
	return lv
}

// Metrics merges rpc, network and resource detail.
func (a *Aggregator) Metrics(ctx context.Context) (m MetricsReport) {
	m = MetricsReport{Timestamp: now()}
	defer func() {
		if r := recover(); r != nil {
			m.Error = fault(r)
			a.logger.WithField("error", m.Error).Error("Metrics collection failed")
		}
	}()

	m.System.Memory = readMemoryStats()
	m.System.Uptime = a.uptime()

	results := a.run(ctx, probe.NameRPC, probe.NameNetwork, probe.NameResources)
	rpcRes, network, resources := results[0], results[1], results[2]

	m.Myria.RPCResponsive = rpcRes.OK
	m.Myria.BlockNumber = stringDetail(rpcRes, "blockNumber", "")
	if n, ok := network.Detail["peerCount"].(uint64); ok {
		m.Myria.PeerCount = n
	}
	if s, ok := network.Detail["syncing"].(bool); ok {
		m.Myria.Syncing = s
	}

	m.System.DiskUsage = stringDetail(resources, "diskUsage", "")
	if pct, ok := resources.Detail["memoryUsage"].(float64); ok {
		m.System.MemoryUsage = pct
	}
	if load, ok := resources.Detail["loadAverage"].([]float64); ok {
		m.System.LoadAverage = load
	}
	return m
}

// run fans the named probes out and joins them in the given order.
func (a *Aggregator) run(ctx context.Context, names ...string) []probe.Result {
	results := make([]probe.Result, len(names))

	var g errgroup.Group
	for i, name := range names {
		p, ok := a.catalog[name]
		if !ok {
			results[i] = probe.Failed(name, "probe not registered")
			continue
		}
		g.Go(func() error {
			results[i] = a.runOne(ctx, name, p)
			return nil
		})
	}
	_ = g.Wait()

	for _, r := range results {
		a.observer.ObserveProbe(r.Name, r.OK, time.Duration(r.LatencyMs)*time.Millisecond)
	}
	return results
}

// runOne bounds a single probe by its deadline. A probe that overruns is
// left to finish in the background and its result discarded.
func (a *Aggregator) runOne(ctx context.Context, name string, p probe.Probe) probe.Result {
	ctx, cancel := context.WithTimeout(ctx, a.timeout(name))
	defer cancel()

	start := time.Now()
	done := make(chan probe.Result, 1)
	go func() {
		done <- probe.Guard(name, p)(ctx)
	}()

	select {
	case res := <-done:
		return res
	case <-ctx.Done():
		res := probe.Failed(name, probe.ErrTimeout)
		res.LatencyMs = time.Since(start).Milliseconds()
		a.logger.WithField("probe", name).Debug("Probe timed out")
		return res
	}
}

func (a *Aggregator) uptime() float64 {
	return time.Since(a.started).Seconds()
}

func stringDetail(r probe.Result, key, fallback string) string {
	if s, ok := r.Detail[key].(string); ok && s != "" {
		return s
	}
	return fallback
}

func fault(r any) string {
	if err, ok := r.(error); ok {
		return err.Error()
	}
	return fmt.Sprint(r)
}

func now() time.Time { return time.Now().UTC() }
