package diagnosis

// Status is the overall supervisor assessment.
type Status string

const (
	StatusOK       Status = "OK"
	StatusDegraded Status = "DEGRADED"
	StatusCritical Status = "CRITICAL"
)

// Report summarizes what the recent metrics and logs say about the node.
type Report struct {
	OverallStatus   Status   `json:"overall_status"`
	Summary         string   `json:"summary"`
	Signals         []string `json:"signals"`
	Recommendations []string `json:"recommendations"`
}

// escalate never lowers the status.
func escalate(current, next Status) Status {
	switch {
	case next == StatusCritical:
		return StatusCritical
	case next == StatusDegraded && current == StatusOK:
		return StatusDegraded
	}
	return current
}
