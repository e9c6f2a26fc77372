// Package session owns the conversion session lifecycle: the state
// machine, the in-memory registry that is the single source of truth
// for session records, and the controller that drives sessions through
// the engine while folding engine events back into the registry.
package session

// State is a conversion session's lifecycle position.
type State int

const (
	StateCreated State = iota
	StateValidated
	StateQueued
	StateProcessing
	StatePaused
	StateCompleted
	StateFailed
	StateCancelled
)

var stateNames = map[State]string{
	StateCreated:    "created",
	StateValidated:  "validated",
	StateQueued:     "queued",
	StateProcessing: "processing",
	StatePaused:     "paused",
	StateCompleted:  "completed",
	StateFailed:     "failed",
	StateCancelled:  "cancelled",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "unknown"
}

// IsTerminal reports whether no further transitions are possible.
func (s State) IsTerminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateCancelled
}

// IsActive reports whether the session holds engine resources.
func (s State) IsActive() bool {
	return s == StateQueued || s == StateProcessing || s == StatePaused
}

var transitions = map[State][]State{
	StateCreated:    {StateValidated, StateQueued, StateCancelled, StateFailed},
	StateValidated:  {StateQueued, StateCancelled, StateFailed},
	StateQueued:     {StateProcessing, StateCancelled, StateFailed},
	StateProcessing: {StatePaused, StateCompleted, StateFailed, StateCancelled},
	StatePaused:     {StateProcessing, StateCancelled, StateFailed},
}

// CanTransitionTo reports whether the state machine permits moving from
// s to next. Terminal states permit nothing.
func (s State) CanTransitionTo(next State) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}
