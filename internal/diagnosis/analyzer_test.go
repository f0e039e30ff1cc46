package diagnosis

import (
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"

	"github.com/egzakutacno/deeep-myria/internal/logging"
	"github.com/egzakutacno/deeep-myria/internal/metrics"
)

func setUp() (*metrics.Registry, *logrus.Logger, *Analyzer) {
	reg := metrics.NewRegistry("test", "abc1234")
	rec := logging.NewRecorder(10, logrus.DebugLevel)
	logger := logging.Discard()
	logger.AddHook(rec)
	return reg, logger, NewAnalyzer(reg, rec)
}

func TestAnalyzer_OK(t *testing.T) {
	reg, _, analyzer := setUp()
	reg.SetVerdict("healthy", true)
	reg.SetVerdict("ready", true)

	report := analyzer.Analyze()

	assert.Equal(t, StatusOK, report.OverallStatus)
	assert.Empty(t, report.Signals)
	assert.Equal(t, "Myria node looks healthy", report.Summary)
}

func TestAnalyzer_NoHeartbeatYetIsOK(t *testing.T) {
	_, _, analyzer := setUp()
	assert.Equal(t, StatusOK, analyzer.Analyze().OverallStatus)
}

func TestAnalyzer_CriticalUnhealthyNode(t *testing.T) {
	reg, _, analyzer := setUp()
	reg.SetVerdict("healthy", false)

	report := analyzer.Analyze()

	assert.Equal(t, StatusCritical, report.OverallStatus)
	assert.Contains(t, report.Signals, "Myria node failed its last heartbeat")
	assert.Len(t, report.Recommendations, len(report.Signals))
}

func TestAnalyzer_DegradedSignals(t *testing.T) {
	reg, _, analyzer := setUp()
	reg.SetVerdict("ready", false)
	reg.ObserveProbe("rpc", false, time.Millisecond)

	report := analyzer.Analyze()

	assert.Equal(t, StatusDegraded, report.OverallStatus)
	assert.Len(t, report.Signals, 2)
	assert.Equal(t, "Myria node health issues detected", report.Summary)
}

func TestAnalyzer_LifecycleFailedState(t *testing.T) {
	reg, _, analyzer := setUp()
	reg.SetLifecycleState("failed", []string{"running", "failed"})

	report := analyzer.Analyze()

	assert.Equal(t, StatusCritical, report.OverallStatus)
	assert.Contains(t, report.Signals, "Last lifecycle operation failed")
}

func TestAnalyzer_LogBasedLifecycleFailures(t *testing.T) {
	_, logger, analyzer := setUp()

	for range 3 {
		logger.WithField("operation", "start").Error("Failed to start Myria")
	}

	report := analyzer.Analyze()

	assert.Equal(t, StatusDegraded, report.OverallStatus)
	assert.Contains(t, report.Signals, lifecycleFailureSignal)
}

func TestAnalyzer_LogBasedPanicDetection(t *testing.T) {
	_, logger, analyzer := setUp()

	logger.Error("Request handler panic")

	report := analyzer.Analyze()

	assert.Equal(t, StatusCritical, report.OverallStatus)
	assert.Contains(t, report.Signals, panicSignal)
}

func TestEscalate(t *testing.T) {
	assert.Equal(t, StatusDegraded, escalate(StatusOK, StatusDegraded))
	assert.Equal(t, StatusCritical, escalate(StatusDegraded, StatusCritical))
	assert.Equal(t, StatusCritical, escalate(StatusCritical, StatusDegraded))
	assert.Equal(t, StatusOK, escalate(StatusOK, StatusOK))
}
