package call

import "fmt"

// Status is the lifecycle state of an outbound call.
//
// The lifecycle is inferred from session occupancy, which is a heuristic:
// two participants (agent + callee) stands in for "answered", and dropping
// back to one or zero stands in for "ended". The occupancy signal cannot
// distinguish an agent that has not joined yet from a callee that declined,
// so connecting covers both.
type Status string

const (
	// StatusConnecting is the initial state, set when the dispatch is created.
	StatusConnecting Status = "connecting"
	// StatusConnected means both the agent and the callee were observed in the session.
	StatusConnected Status = "connected"
	// StatusDisconnected is terminal. Once a call ends it never transitions again.
	StatusDisconnected Status = "disconnected"
)

// ParseStatus validates a status value received from outside the process
// (e.g. the explicit override endpoint). Only members of the closed set are
// accepted; transition legality is intentionally not checked on that path.
func ParseStatus(s string) (Status, error) {
	switch Status(s) {
	case StatusConnecting, StatusConnected, StatusDisconnected:
		return Status(s), nil
	}
	return "", fmt.Errorf("unrecognized call status %q", s)
}

// Terminal reports whether the status admits no further transitions.
func (s Status) Terminal() bool {
	return s == StatusDisconnected
}

// nextStatus applies the occupancy heuristic to the current status.
//
//	connecting + count>=2  -> connected
//	connecting + count<2   -> connecting (agent alone, or nobody joined yet)
//	connected  + count<2   -> disconnected (callee left, or session emptied)
//	disconnected           -> disconnected (terminal)
func nextStatus(current Status, participantCount int) Status {
	switch current {
	case StatusConnecting:
		if participantCount >= 2 {
			return StatusConnected
		}
		return StatusConnecting
	case StatusConnected:
		if participantCount >= 2 {
			return StatusConnected
		}
		return StatusDisconnected
	default:
		return StatusDisconnected
	}
}
