package health

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/egzakutacno/deeep-myria/internal/logging"
)

// State is the debounced node health seen by the Monitor.
type State int

const (
	Healthy State = iota
	Unhealthy
)

func (s State) String() string {
	if s == Healthy {
		return "healthy"
	}
	return "unhealthy"
}

// MonitorPolicy defines the heartbeat cadence and when the node is
// considered unhealthy or recovered.
type MonitorPolicy struct {
	Interval         time.Duration
	FailureThreshold int //consecutive failed heartbeats to mark unhealthy
	SuccessThreshold int //consecutive healthy heartbeats to mark healthy again
}

// HeartbeatObserver counts heartbeat runs by status.
type HeartbeatObserver interface {
	ObserveHeartbeat(status string)
}

// LivenessFunc receives the node liveness once a heartbeat verdict has
// held for its threshold.
type LivenessFunc func(alive bool)

// Monitor runs the heartbeat periodically and debounces its verdict.
type Monitor struct {
	agg     *Aggregator
	policy  MonitorPolicy
	logger  logrus.FieldLogger
	journal *logging.Journal
	obs     HeartbeatObserver

	mu           sync.RWMutex
	state        State
	failureCount int
	successCount int
	last         *Snapshot
	onLiveness   LivenessFunc
}

func NewMonitor(agg *Aggregator, policy MonitorPolicy, obs HeartbeatObserver, journal *logging.Journal, logger logrus.FieldLogger) *Monitor {
	if policy.FailureThreshold < 1 {
		policy.FailureThreshold = 1
	}
	if policy.SuccessThreshold < 1 {
		policy.SuccessThreshold = 1
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &Monitor{
		agg:     agg,
		policy:  policy,
		logger:  logger,
		journal: journal,
		obs:     obs,
		state:   Healthy,
	}
}

// Start runs a heartbeat immediately and then every interval.
// It returns when ctx is cancelled.
func (m *Monitor) Start(ctx context.Context) {
	ticker := time.NewTicker(m.policy.Interval)
	defer ticker.Stop()

	m.RunOnce(ctx)
	for {
		select {
		case <-ticker.C:
			m.RunOnce(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// OnLiveness registers fn to be called after every heartbeat whose
// verdict has reached its threshold. Heartbeats that fail internally are
// not reported.
func (m *Monitor) OnLiveness(fn LivenessFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onLiveness = fn
}

// RunOnce performs one heartbeat and applies the thresholds.
func (m *Monitor) RunOnce(ctx context.Context) Snapshot {
	snap := m.agg.Heartbeat(ctx)
	if ctx.Err() != nil {
		return snap
	}
	if m.obs != nil {
		m.obs.ObserveHeartbeat(string(snap.Status))
	}

	m.mu.Lock()
	prev := m.state
	if snap.Healthy() {
		m.successCount++
		m.failureCount = 0
		if m.successCount >= m.policy.SuccessThreshold {
			m.state = Healthy
		}
	} else {
		m.failureCount++
		m.successCount = 0
		if m.failureCount >= m.policy.FailureThreshold {
			m.state = Unhealthy
		}
	}
	current := m.state
	settled := snap.Status != StatusError &&
		(m.successCount >= m.policy.SuccessThreshold || m.failureCount >= m.policy.FailureThreshold)
	onLiveness := m.onLiveness
	m.last = &snap
	m.mu.Unlock()

	if settled && onLiveness != nil {
		onLiveness(snap.Healthy())
	}

	if prev != current {
		fields := logrus.Fields{"from": prev.String(), "to": current.String(), "status": string(snap.Status)}
		if snap.Error != "" {
			fields["error"] = snap.Error
		}
		if current == Healthy {
			m.logger.WithFields(fields).Info("Node health recovered")
		} else {
			m.logger.WithFields(fields).Warn("Node marked unhealthy")
		}
		m.journal.Record(logging.EventHealthChanged, fields)
	}
	return snap
}

// Healthy reports the debounced verdict.
func (m *Monitor) Healthy() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state == Healthy
}

// LastSnapshot returns the most recent heartbeat, if any ran.
func (m *Monitor) LastSnapshot() (Snapshot, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.last == nil {
		return Snapshot{}, false
	}
	return *m.last, true
}
