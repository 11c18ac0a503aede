package workflow

import "fmt"

var expenseLifecycle = func() StateMachineBuilder {
	b := NewBuilder()
	b.Configure(StateSubmitted).Permit(TriggerProcess, StateProcessed)
	// Re-processing re-stamps the processed fields instead of failing.
	b.Configure(StateProcessed).Permit(TriggerProcess, StateProcessed)
	return b
}()

// NewExpenseMachine returns a lifecycle machine positioned at the given stored status.
// An empty status is treated as submitted, matching records created before status existed.
func NewExpenseMachine(status string) (StateMachine, error) {
	state := State(status)
	if status == "" {
		state = StateSubmitted
	}
	if !state.IsValid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidState, status)
	}
	return expenseLifecycle.Build(state), nil
}
