package workflow

import "github.com/garyjia/expense-desk/internal/domain/entity"

// State is a position in the expense lifecycle
type State string

const (
	StateSubmitted State = entity.StatusSubmitted
	StateProcessed State = entity.StatusProcessed
)

// IsTerminal reports whether no trigger can move the expense to a different state.
// Processed is terminal even though PROCESS may re-fire on it.
func (s State) IsTerminal() bool {
	return s == StateProcessed
}

func (s State) String() string {
	return string(s)
}

// IsValid returns true if the state is part of the lifecycle
func (s State) IsValid() bool {
	switch s {
	case StateSubmitted, StateProcessed:
		return true
	}
	return false
}
