package event

// Type identifies the type of domain event
type Type string

const (
	TypeExpenseSubmitted Type = "expense.submitted"
	TypeExpenseProcessed Type = "expense.processed"
	TypeExpenseDeleted   Type = "expense.deleted"
)

func (t Type) String() string {
	return string(t)
}

// IsValid checks if the event type is one of the defined constants
func (t Type) IsValid() bool {
	switch t {
	case TypeExpenseSubmitted, TypeExpenseProcessed, TypeExpenseDeleted:
		return true
	default:
		return false
	}
}
