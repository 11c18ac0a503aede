package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/garyjia/expense-desk/internal/application/dispatcher"
	"github.com/garyjia/expense-desk/internal/application/port"
	"github.com/garyjia/expense-desk/internal/domain/entity"
	"github.com/garyjia/expense-desk/internal/domain/event"
	"github.com/garyjia/expense-desk/internal/domain/workflow"
)

// Logger interface for minimal logging dependency
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// RequiredProfile selects which fields a submission must carry
type RequiredProfile string

const (
	// ProfileMinimal requires description and amount
	ProfileMinimal RequiredProfile = "minimal"
	// ProfileFull requires organization and event
	ProfileFull RequiredProfile = "full"
)

// IsValid reports whether p is a known profile
func (p RequiredProfile) IsValid() bool {
	return p == ProfileMinimal || p == ProfileFull
}

// SubmitInput holds the client-supplied fields of a new expense.
// Status, id and timestamps are never taken from the client.
type SubmitInput struct {
	Organization string
	Event        string
	Description  string
	Vendor       string
	Category     string
	SubmittedBy  string
	Notes        string

	Amount        *decimal.Decimal
	TotalAdvanced *decimal.Decimal
	TotalExpenses *decimal.Decimal
	CashToReturn  *decimal.Decimal

	Date       string
	DateRange  string
	ReportDate string

	LineItems []entity.LineItem
}

// ReceiptUpload is an optional file attached to a submission
type ReceiptUpload struct {
	Filename    string
	ContentType string
	Size        int64
	Content     io.Reader
}

// ProcessInput carries the optional fields of the processed transition
type ProcessInput struct {
	ProcessedBy   string
	AccountingRef string
}

// ExpenseService handles the expense lifecycle
type ExpenseService interface {
	// Submit validates, applies defaults, stores the optional receipt and persists the expense
	Submit(ctx context.Context, input SubmitInput, receipt *ReceiptUpload) (*entity.Expense, error)

	// List returns all expenses, most recently submitted first
	List(ctx context.Context) ([]*entity.Expense, error)

	// Get returns one expense or entity.ErrNotFound
	Get(ctx context.Context, id string) (*entity.Expense, error)

	// MarkProcessed stamps the expense processed. Calling it again re-stamps.
	MarkProcessed(ctx context.Context, id string, input ProcessInput) (*entity.Expense, error)

	// Delete removes the expense permanently
	Delete(ctx context.Context, id string) error

	// OpenReceipt streams a stored receipt back by name
	OpenReceipt(ctx context.Context, name string) (io.ReadCloser, *port.ReceiptInfo, error)
}

type expenseServiceImpl struct {
	store      port.ExpenseStore
	receipts   port.ReceiptStorage
	dispatcher dispatcher.Dispatcher
	logger     Logger

	profile RequiredProfile
	now     func() time.Time
}

// ExpenseOption configures the expense service
type ExpenseOption func(*expenseServiceImpl)

// WithRequiredProfile sets which fields Submit requires
func WithRequiredProfile(p RequiredProfile) ExpenseOption {
	return func(s *expenseServiceImpl) {
		if p.IsValid() {
			s.profile = p
		}
	}
}

// WithClock overrides the time source
func WithClock(now func() time.Time) ExpenseOption {
	return func(s *expenseServiceImpl) {
		s.now = now
	}
}

// WithDispatcher publishes lifecycle events through d
func WithDispatcher(d dispatcher.Dispatcher) ExpenseOption {
	return func(s *expenseServiceImpl) {
		s.dispatcher = d
	}
}

// NewExpenseService creates a new ExpenseService
func NewExpenseService(
	store port.ExpenseStore,
	receipts port.ReceiptStorage,
	logger Logger,
	opts ...ExpenseOption,
) ExpenseService {
	s := &expenseServiceImpl{
		store:    store,
		receipts: receipts,
		logger:   logger,
		profile:  ProfileMinimal,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *expenseServiceImpl) Submit(ctx context.Context, input SubmitInput, receipt *ReceiptUpload) (*entity.Expense, error) {
	if err := s.validate(input); err != nil {
		return nil, err
	}

	now := s.now()
	expense := &entity.Expense{
		Organization:   input.Organization,
		Event:          input.Event,
		Description:    input.Description,
		Vendor:         input.Vendor,
		Category:       defaultString(input.Category, entity.DefaultCategory),
		SubmittedBy:    defaultString(input.SubmittedBy, entity.DefaultSubmittedBy),
		Notes:          input.Notes,
		Amount:         input.Amount,
		TotalAdvanced:  input.TotalAdvanced,
		TotalExpenses:  input.TotalExpenses,
		CashToReturn:   input.CashToReturn,
		Date:           defaultString(input.Date, now.Format(entity.DateLayout)),
		DateRange:      input.DateRange,
		ReportDate:     input.ReportDate,
		LineItems:      input.LineItems,
		Status:         entity.StatusSubmitted,
		SubmissionDate: now.UTC(),
	}

	if receipt != nil {
		name, err := s.saveReceipt(ctx, receipt, now)
		if err != nil {
			return nil, err
		}
		expense.ReceiptFile = name
	}

	id, err := s.store.Insert(ctx, expense)
	if err != nil {
		s.logger.Error("Failed to insert expense", "error", err)
		if expense.ReceiptFile != "" {
			s.discardReceipt(ctx, expense.ReceiptFile)
		}
		return nil, fmt.Errorf("insert expense: %w", err)
	}
	expense.ID = id

	s.logger.Info("Expense submitted",
		"expense_id", id,
		"submitted_by", expense.SubmittedBy,
		"has_receipt", expense.ReceiptFile != "",
	)
	s.publish(ctx, event.NewEvent(event.TypeExpenseSubmitted, expense))

	return expense, nil
}

func (s *expenseServiceImpl) List(ctx context.Context) ([]*entity.Expense, error) {
	expenses, err := s.store.List(ctx)
	if err != nil {
		s.logger.Error("Failed to list expenses", "error", err)
		return nil, fmt.Errorf("list expenses: %w", err)
	}
	return expenses, nil
}

func (s *expenseServiceImpl) Get(ctx context.Context, id string) (*entity.Expense, error) {
	expense, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get expense: %w", err)
	}
	return expense, nil
}

func (s *expenseServiceImpl) MarkProcessed(ctx context.Context, id string, input ProcessInput) (*entity.Expense, error) {
	current, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get expense: %w", err)
	}

	machine, err := workflow.NewExpenseMachine(current.Status)
	if err != nil {
		return nil, fmt.Errorf("expense %s: %w", id, err)
	}
	if err := machine.Fire(ctx, workflow.TriggerProcess); err != nil {
		return nil, fmt.Errorf("process expense %s: %w", id, err)
	}

	status := machine.State().String()
	processedAt := s.now().UTC()
	processedBy := defaultString(input.ProcessedBy, entity.DefaultProcessedBy)
	accountingRef := input.AccountingRef

	updated, err := s.store.UpdateByID(ctx, id, entity.ExpenseUpdate{
		Status:        &status,
		ProcessedDate: &processedAt,
		ProcessedBy:   &processedBy,
		AccountingRef: &accountingRef,
	})
	if err != nil {
		if !errors.Is(err, entity.ErrNotFound) {
			s.logger.Error("Failed to update expense", "error", err, "expense_id", id)
		}
		return nil, fmt.Errorf("update expense: %w", err)
	}

	s.logger.Info("Expense processed",
		"expense_id", id,
		"processed_by", processedBy,
		"reprocessed", current.IsProcessed(),
	)
	s.publish(ctx, event.NewEvent(event.TypeExpenseProcessed, updated))

	return updated, nil
}

func (s *expenseServiceImpl) Delete(ctx context.Context, id string) error {
	// Read first so the deleted event can carry the receipt reference.
	current, err := s.store.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("get expense: %w", err)
	}

	if err := s.store.DeleteByID(ctx, id); err != nil {
		if !errors.Is(err, entity.ErrNotFound) {
			s.logger.Error("Failed to delete expense", "error", err, "expense_id", id)
		}
		return fmt.Errorf("delete expense: %w", err)
	}

	s.logger.Info("Expense deleted", "expense_id", id)
	s.publish(ctx, event.NewEvent(event.TypeExpenseDeleted, current).
		WithPayload(event.KeyReceiptFile, current.ReceiptFile))

	return nil
}

func (s *expenseServiceImpl) OpenReceipt(ctx context.Context, name string) (io.ReadCloser, *port.ReceiptInfo, error) {
	if s.receipts == nil {
		return nil, nil, entity.ErrNotFound
	}
	rc, info, err := s.receipts.Open(ctx, name)
	if err != nil {
		return nil, nil, fmt.Errorf("open receipt: %w", err)
	}
	return rc, info, nil
}

func (s *expenseServiceImpl) validate(input SubmitInput) error {
	var missing []string
	switch s.profile {
	case ProfileFull:
		if isBlank(input.Organization) {
			missing = append(missing, "organization")
		}
		if isBlank(input.Event) {
			missing = append(missing, "event")
		}
	default:
		if isBlank(input.Description) {
			missing = append(missing, "description")
		}
		if input.Amount == nil {
			missing = append(missing, "amount")
		}
	}
	if len(missing) > 0 {
		return entity.NewMissingFieldsError(missing...)
	}
	return nil
}

func (s *expenseServiceImpl) saveReceipt(ctx context.Context, receipt *ReceiptUpload, now time.Time) (string, error) {
	if s.receipts == nil {
		return "", &entity.ValidationError{Fields: []string{"receipt"}, Reason: "receipt uploads are not enabled"}
	}

	name := receiptName(receipt.Filename, now)
	if err := s.receipts.Save(ctx, name, receipt.Content, receipt.Size, receipt.ContentType); err != nil {
		s.logger.Error("Failed to store receipt", "error", err, "file_name", receipt.Filename)
		return "", fmt.Errorf("store receipt: %w", err)
	}

	s.logger.Info("Receipt stored", "receipt_file", name, "size", receipt.Size)
	return name, nil
}

func (s *expenseServiceImpl) discardReceipt(ctx context.Context, name string) {
	if err := s.receipts.Delete(ctx, name); err != nil && !errors.Is(err, entity.ErrNotFound) {
		s.logger.Error("Failed to remove orphaned receipt", "error", err, "receipt_file", name)
	}
}

func (s *expenseServiceImpl) publish(ctx context.Context, evt *event.Event) {
	if s.dispatcher == nil {
		return
	}
	s.dispatcher.DispatchAsync(ctx, evt)
}

// receiptName builds a collision-resistant storage name that keeps the original extension
func receiptName(original string, now time.Time) string {
	ext := strings.ToLower(filepath.Ext(filepath.Base(original)))
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return fmt.Sprintf("%d-%s%s", now.UnixMilli(), suffix, ext)
}

func defaultString(value, fallback string) string {
	if isBlank(value) {
		return fallback
	}
	return value
}

func isBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}
