// Package diagnosis turns supervisor metrics and recent logs into a
// human-oriented report. It never affects readiness or liveness.
package diagnosis

import (
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/egzakutacno/deeep-myria/internal/logging"
	"github.com/egzakutacno/deeep-myria/internal/metrics"
)

const (
	logWindow              = 100
	lifecycleFailureLimit  = 3
	lifecycleFailureSignal = "Repeated lifecycle failures detected in logs"
	panicSignal            = "Request handler panics detected in logs"
)

// Analyzer converts metrics + logs into a Report.
type Analyzer struct {
	metrics  *metrics.Registry
	recorder *logging.Recorder
	rules    []Rule
}

// NewAnalyzer creates an analyzer with DefaultRules. recorder may be nil.
func NewAnalyzer(reg *metrics.Registry, recorder *logging.Recorder) *Analyzer {
	return &Analyzer{
		metrics:  reg,
		recorder: recorder,
		rules:    DefaultRules(),
	}
}

// Analyze evaluates metrics and logs and returns a report.
func (a *Analyzer) Analyze() Report {
	snapshot := a.metrics.Snapshot()

	report := Report{
		OverallStatus:   StatusOK,
		Signals:         []string{},
		Recommendations: []string{},
	}

	/* ---------- METRICS-BASED RULES ---------- */

	for _, rule := range a.rules {
		result := rule(snapshot)
		if !result.Triggered {
			continue
		}
		report.add(result)
	}

	/* ---------- LOG-BASED SIGNALS ---------- */

	if a.recorder != nil {
		lifecycleFailures, panics := 0, 0
		for _, entry := range a.recorder.GetLast(logWindow) {
			if entry.Level != logrus.ErrorLevel.String() {
				continue
			}
			if _, ok := entry.Fields["operation"]; ok {
				lifecycleFailures++
			}
			if strings.Contains(strings.ToLower(entry.Message), "panic") {
				panics++
			}
		}

		if lifecycleFailures >= lifecycleFailureLimit {
			report.add(RuleResult{
				Signal:         lifecycleFailureSignal,
				Recommendation: "Check the node API key and the myria-node install",
				Severity:       StatusDegraded,
			})
		}
		if panics > 0 {
			report.add(RuleResult{
				Signal:         panicSignal,
				Recommendation: "Inspect stack traces and stabilize error handling",
				Severity:       StatusCritical,
			})
		}
	}

	/* ---------- SUMMARY ---------- */

	report.Summary = "Myria node looks healthy"
	if report.OverallStatus != StatusOK {
		report.Summary = "Myria node health issues detected"
	}
	return report
}

func (r *Report) add(result RuleResult) {
	r.Signals = append(r.Signals, result.Signal)
	r.Recommendations = append(r.Recommendations, result.Recommendation)
	r.OverallStatus = escalate(r.OverallStatus, result.Severity)
}
