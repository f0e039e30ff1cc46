package lifecycle

import "errors"

// State of the supervised node as seen by the controller.
type State int

const (
	Uninitialized State = iota
	CredentialInstalled
	Starting
	Running
	Stopping
	Stopped
	Failed
)

var stateNames = [...]string{
	Uninitialized:       "uninitialized",
	CredentialInstalled: "credential_installed",
	Starting:            "starting",
	Running:             "running",
	Stopping:            "stopping",
	Stopped:             "stopped",
	Failed:              "failed",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// StateNames lists every state name in declaration order.
func StateNames() []string {
	return append([]string(nil), stateNames[:]...)
}

// canStart: a failed start may be retried.
func (s State) canStart() bool {
	return s == CredentialInstalled || s == Stopped || s == Failed
}

func (s State) canStop() bool {
	return s == Running
}

// Precondition failures. No external process is invoked when one of
// these is returned.
var (
	ErrCredentialMissing   = errors.New("API key not available")
	ErrOperationInProgress = errors.New("operation in progress")
	ErrInvalidTransition   = errors.New("invalid lifecycle transition")
)
