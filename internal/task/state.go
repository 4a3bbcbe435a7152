// Package task holds the state machine, execution context and error
// classification for a single orchestrated task. The executor owns one
// Context per task and mutates it only through validated transitions.
package task

import "fmt"

// State is the lifecycle state of a task.
type State string

const (
	StateIdle        State = "idle"
	StateAnalyzing   State = "analyzing"
	StatePlanning    State = "planning"
	StateExecuting   State = "executing"
	StateVerifying   State = "verifying"
	StateCompleted   State = "completed"
	StateFailed      State = "failed"
	StateRollingBack State = "rolling_back"
	StateRecovering  State = "recovering"
	StateEscalated   State = "escalated"
)

// validTransitions is the fixed transition table. A transition not listed
// here is illegal and must fail loudly — there is no silent no-op.
var validTransitions = map[State][]State{
	StateIdle:        {StateAnalyzing},
	StateAnalyzing:   {StatePlanning, StateFailed},
	StatePlanning:    {StateExecuting, StateFailed},
	StateExecuting:   {StateVerifying, StateFailed},
	StateVerifying:   {StateCompleted, StateRollingBack},
	StateRollingBack: {StateRecovering, StateFailed},
	StateRecovering:  {StatePlanning, StateEscalated},
	StateFailed:      {StateRecovering, StateEscalated},
	StateEscalated:   {StateIdle},
	StateCompleted:   {StateIdle},
}

// InvalidTransitionError is returned when a transition outside the table
// is attempted. The executor treats it as fatal for the current attempt.
type InvalidTransitionError struct {
	From State
	To   State
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("transição ilegal: %s → %s (válidas: %v)",
		e.From, e.To, validTransitions[e.From])
}

// CanTransition reports whether moving from one state to another is legal.
func CanTransition(from, to State) bool {
	for _, s := range validTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}
