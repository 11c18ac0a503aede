package event

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/garyjia/expense-desk/internal/domain/entity"
)

func TestType_IsValid(t *testing.T) {
	tests := []struct {
		name      string
		eventType Type
		want      bool
	}{
		{"submitted", TypeExpenseSubmitted, true},
		{"processed", TypeExpenseProcessed, true},
		{"deleted", TypeExpenseDeleted, true},
		{"unknown", Type("expense.archived"), false},
		{"empty", Type(""), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.eventType.IsValid(); got != tt.want {
				t.Errorf("Type.IsValid() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNewEvent_SnapshotsExpense(t *testing.T) {
	amount := decimal.RequireFromString("12.50")
	exp := &entity.Expense{ID: "abc", Description: "Coffee", Amount: &amount}

	evt := NewEvent(TypeExpenseSubmitted, exp)

	if evt.ID == "" {
		t.Error("NewEvent() should assign an ID")
	}
	if evt.ExpenseID != "abc" {
		t.Errorf("ExpenseID = %q, want %q", evt.ExpenseID, "abc")
	}
	if evt.Timestamp.IsZero() {
		t.Error("NewEvent() should set Timestamp")
	}

	exp.Description = "Tea"
	if evt.Expense.Description != "Coffee" {
		t.Errorf("event expense mutated through original: %q", evt.Expense.Description)
	}
}

func TestNewEvent_NilExpense(t *testing.T) {
	evt := NewEvent(TypeExpenseDeleted, nil)
	if evt.ExpenseID != "" || evt.Expense != nil {
		t.Errorf("NewEvent(nil) = %+v, want empty expense fields", evt)
	}
}

func TestEvent_WithPayload(t *testing.T) {
	original := NewEvent(TypeExpenseDeleted, &entity.Expense{ID: "x"})
	updated := original.WithPayload(KeyReceiptFile, "r.png")

	if got := updated.GetPayloadString(KeyReceiptFile); got != "r.png" {
		t.Errorf("GetPayloadString() = %q, want %q", got, "r.png")
	}
	if _, ok := original.Payload[KeyReceiptFile]; ok {
		t.Error("WithPayload() modified the original event")
	}
	if updated.ID != original.ID {
		t.Error("WithPayload() should keep the event ID")
	}
}

func TestEvent_GetPayloadString_WrongType(t *testing.T) {
	evt := NewEvent(TypeExpenseDeleted, nil).WithPayload("n", 42)
	if got := evt.GetPayloadString("n"); got != "" {
		t.Errorf("GetPayloadString() = %q, want empty", got)
	}
	if got := evt.GetPayloadString("missing"); got != "" {
		t.Errorf("GetPayloadString() = %q, want empty", got)
	}
}
