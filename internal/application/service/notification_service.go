package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/garyjia/expense-desk/internal/application/dispatcher"
	"github.com/garyjia/expense-desk/internal/application/port"
	"github.com/garyjia/expense-desk/internal/domain/entity"
	"github.com/garyjia/expense-desk/internal/domain/event"
)

// NotificationService posts chat messages about expense lifecycle events
type NotificationService interface {
	// Register subscribes the service to the events it reports on
	Register(d dispatcher.Dispatcher)

	NotifySubmitted(ctx context.Context, expense *entity.Expense) error
	NotifyProcessed(ctx context.Context, expense *entity.Expense) error
}

type notificationServiceImpl struct {
	sender port.MessageSender
	logger Logger
}

// NewNotificationService creates a new NotificationService
func NewNotificationService(sender port.MessageSender, logger Logger) NotificationService {
	return &notificationServiceImpl{
		sender: sender,
		logger: logger,
	}
}

func (s *notificationServiceImpl) Register(d dispatcher.Dispatcher) {
	d.SubscribeNamed(event.TypeExpenseSubmitted, "notify_submitted", func(ctx context.Context, evt *event.Event) error {
		return s.NotifySubmitted(ctx, evt.Expense)
	})
	d.SubscribeNamed(event.TypeExpenseProcessed, "notify_processed", func(ctx context.Context, evt *event.Event) error {
		return s.NotifyProcessed(ctx, evt.Expense)
	})
}

// NotifySubmitted announces a new submission
func (s *notificationServiceImpl) NotifySubmitted(ctx context.Context, expense *entity.Expense) error {
	if expense == nil {
		return fmt.Errorf("notify submitted: expense is nil")
	}
	return s.send(ctx, expense.ID, buildSubmittedMessage(expense))
}

// NotifyProcessed announces that accounting has processed an expense
func (s *notificationServiceImpl) NotifyProcessed(ctx context.Context, expense *entity.Expense) error {
	if expense == nil {
		return fmt.Errorf("notify processed: expense is nil")
	}
	return s.send(ctx, expense.ID, buildProcessedMessage(expense))
}

func (s *notificationServiceImpl) send(ctx context.Context, expenseID, message string) error {
	if err := s.sender.SendText(ctx, message); err != nil {
		s.logger.Error("Failed to send message", "error", err, "expense_id", expenseID)
		return fmt.Errorf("send message: %w", err)
	}

	s.logger.Info("Notification sent successfully",
		"expense_id", expenseID,
		"message_length", len(message),
	)
	return nil
}

func buildSubmittedMessage(e *entity.Expense) string {
	var sb strings.Builder
	sb.WriteString("📥 New expense submitted\n")
	writeLine(&sb, "ID", e.ID)
	writeLine(&sb, "Submitted by", e.SubmittedBy)
	writeLine(&sb, "Organization", e.Organization)
	writeLine(&sb, "Event", e.Event)
	writeLine(&sb, "Description", e.Description)
	writeLine(&sb, "Category", e.Category)
	if e.Amount != nil {
		writeLine(&sb, "Amount", e.Amount.StringFixed(2))
	}
	if e.ReceiptFile != "" {
		writeLine(&sb, "Receipt", e.ReceiptFile)
	}
	return strings.TrimRight(sb.String(), "\n")
}

func buildProcessedMessage(e *entity.Expense) string {
	var sb strings.Builder
	sb.WriteString("✅ Expense processed\n")
	writeLine(&sb, "ID", e.ID)
	writeLine(&sb, "Description", e.Description)
	writeLine(&sb, "Processed by", e.ProcessedBy)
	writeLine(&sb, "Accounting ref", e.AccountingRef)
	if e.ProcessedDate != nil {
		writeLine(&sb, "Processed at", e.ProcessedDate.UTC().Format("2006-01-02 15:04:05"))
	}
	return strings.TrimRight(sb.String(), "\n")
}

// writeLine skips empty values
func writeLine(sb *strings.Builder, label, value string) {
	if value == "" {
		return
	}
	fmt.Fprintf(sb, "%s: %s\n", label, value)
}

// ReceiptCleaner removes stored receipts once their expense is deleted
type ReceiptCleaner struct {
	receipts port.ReceiptStorage
	logger   Logger
}

// NewReceiptCleaner creates a new ReceiptCleaner
func NewReceiptCleaner(receipts port.ReceiptStorage, logger Logger) *ReceiptCleaner {
	return &ReceiptCleaner{receipts: receipts, logger: logger}
}

// Register subscribes the cleaner to expense.deleted
func (c *ReceiptCleaner) Register(d dispatcher.Dispatcher) {
	d.SubscribeNamed(event.TypeExpenseDeleted, "receipt_cleanup", c.HandleDeleted)
}

// HandleDeleted deletes the receipt named in the event payload. A receipt that is
// already gone is not an error.
func (c *ReceiptCleaner) HandleDeleted(ctx context.Context, evt *event.Event) error {
	name := evt.GetPayloadString(event.KeyReceiptFile)
	if name == "" {
		return nil
	}

	if err := c.receipts.Delete(ctx, name); err != nil {
		if errors.Is(err, entity.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("delete receipt %s: %w", name, err)
	}

	c.logger.Info("Receipt removed", "expense_id", evt.ExpenseID, "receipt_file", name)
	return nil
}
