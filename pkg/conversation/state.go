package conversation

import "time"

// State is the overall conversation state.
type State int

const (
	StateIdle State = iota
	StateListening
	StateConnecting
	StateActive
	StateEnded
	StateError
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateListening:
		return "listening"
	case StateConnecting:
		return "connecting"
	case StateActive:
		return "active"
	case StateEnded:
		return "ended"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// CallLive reports whether a session is connecting or active in this state.
func (s State) CallLive() bool {
	return s == StateConnecting || s == StateActive
}

// StateChange is the most recent transition, carried in snapshots.
type StateChange struct {
	From   State
	To     State
	At     time.Time
	Reason string
}

var validTransitions = map[State][]State{
	StateIdle:       {StateListening, StateConnecting},
	StateListening:  {StateConnecting, StateIdle},
	StateConnecting: {StateActive, StateError, StateEnded},
	StateActive:     {StateEnded, StateError},
	StateEnded:      {StateListening, StateIdle, StateConnecting},
	StateError:      {StateListening, StateIdle, StateConnecting},
}

func transitionValid(from, to State) bool {
	for _, allowed := range validTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// InvalidTransitionError represents an invalid state transition attempt.
type InvalidTransitionError struct {
	From State
	To   State
}

func (e *InvalidTransitionError) Error() string {
	return "invalid state transition from " + e.From.String() + " to " + e.To.String()
}
