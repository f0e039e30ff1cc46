package diagnosis

// RuleResult represents the outcome of a single rule.
type RuleResult struct {
	Triggered      bool
	Signal         string
	Recommendation string
	Severity       Status
}

// Rule evaluates a flattened metrics snapshot, see metrics.Registry.Snapshot.
type Rule func(snapshot map[string]float64) RuleResult

const (
	keyHealthyVerdict  = "myria_supervisor_node_verdict{verdict=healthy}"
	keyReadyVerdict    = "myria_supervisor_node_verdict{verdict=ready}"
	keyLifecycleFailed = "myria_supervisor_lifecycle_state{state=failed}"
	keyRPCFailures     = "myria_supervisor_probe_runs_total{probe=rpc,result=fail}"
	keyHeartbeatErrors = "myria_supervisor_heartbeat_runs_total{status=error}"
)

// DefaultRules is the rule set used by NewAnalyzer.
func DefaultRules() []Rule {
	return []Rule{
		NodeUnhealthyRule,
		NodeNotReadyRule,
		LifecycleFailedRule,
		RPCFailureRule,
		HeartbeatErrorRule,
	}
}

// isFalse is true only for a verdict that was reported and is negative.
func isFalse(snapshot map[string]float64, key string) bool {
	v, ok := snapshot[key]
	return ok && v == 0
}

func NodeUnhealthyRule(snapshot map[string]float64) RuleResult {
	if !isFalse(snapshot, keyHealthyVerdict) {
		return RuleResult{}
	}
	return RuleResult{
		Triggered:      true,
		Signal:         "Myria node failed its last heartbeat",
		Recommendation: "Check that myria-node is running and its RPC endpoint answers eth_blockNumber",
		Severity:       StatusCritical,
	}
}

func NodeNotReadyRule(snapshot map[string]float64) RuleResult {
	if !isFalse(snapshot, keyReadyVerdict) {
		return RuleResult{}
	}
	return RuleResult{
		Triggered:      true,
		Signal:         "Myria node is not ready for traffic",
		Recommendation: "Check the systemd state and that the RPC and P2P ports are listening",
		Severity:       StatusDegraded,
	}
}

func LifecycleFailedRule(snapshot map[string]float64) RuleResult {
	if snapshot[keyLifecycleFailed] != 1 {
		return RuleResult{}
	}
	return RuleResult{
		Triggered:      true,
		Signal:         "Last lifecycle operation failed",
		Recommendation: "Inspect lastError on /myria/lifecycle and retry start",
		Severity:       StatusCritical,
	}
}

// RPC probe failures can be transient.
func RPCFailureRule(snapshot map[string]float64) RuleResult {
	if snapshot[keyRPCFailures] == 0 {
		return RuleResult{}
	}
	return RuleResult{
		Triggered:      true,
		Signal:         "RPC probe failures recorded",
		Recommendation: "Check the RPC host, port and network timeout",
		Severity:       StatusDegraded,
	}
}

func HeartbeatErrorRule(snapshot map[string]float64) RuleResult {
	if snapshot[keyHeartbeatErrors] == 0 {
		return RuleResult{}
	}
	return RuleResult{
		Triggered:      true,
		Signal:         "Heartbeat faults recorded",
		Recommendation: "Inspect supervisor logs for internal errors",
		Severity:       StatusCritical,
	}
}
