package event

import (
	"time"

	"github.com/google/uuid"

	"github.com/garyjia/expense-desk/internal/domain/entity"
)

// Payload keys
const (
	KeyReceiptFile = "receipt_file"
)

// Event is a lifecycle notification about one expense
type Event struct {
	ID        string                 `json:"id"`
	Type      Type                   `json:"type"`
	ExpenseID string                 `json:"expense_id"`
	Expense   *entity.Expense        `json:"expense,omitempty"`
	Payload   map[string]interface{} `json:"payload,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// NewEvent creates an event carrying a snapshot of the expense.
func NewEvent(eventType Type, expense *entity.Expense) *Event {
	evt := &Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		Payload:   map[string]interface{}{},
		Timestamp: time.Now(),
	}
	if expense != nil {
		evt.ExpenseID = expense.ID
		evt.Expense = expense.Clone()
	}
	return evt
}

// WithPayload returns a copy of the event with key set; the receiver is not modified.
func (e *Event) WithPayload(key string, value interface{}) *Event {
	payload := make(map[string]interface{}, len(e.Payload)+1)
	for k, v := range e.Payload {
		payload[k] = v
	}
	payload[key] = value

	c := *e
	c.Payload = payload
	return &c
}

// GetPayloadString retrieves a string value from the payload
func (e *Event) GetPayloadString(key string) string {
	if val, ok := e.Payload[key]; ok {
		if str, ok := val.(string); ok {
			return str
		}
	}
	return ""
}
