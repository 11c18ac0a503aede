// Package sqlite implements port.ExpenseStore on an embedded SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/garyjia/expense-desk/internal/application/port"
	"github.com/garyjia/expense-desk/internal/domain/entity"
	"github.com/garyjia/expense-desk/pkg/database"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// Fixed-width UTC timestamps sort correctly as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

const selectColumns = `
	id, organization, event, description, vendor, category, submitted_by, notes,
	amount, total_advanced, total_expenses, cash_to_return,
	date, date_range, report_date, receipt_file, line_items,
	status, submission_date, processed_date, processed_by, accounting_ref`

// Store implements port.ExpenseStore
type Store struct {
	db     *database.DB
	logger *zap.Logger
}

// Open connects to the database at cfg.Path and applies pending migrations
func Open(ctx context.Context, cfg database.Config, logger *zap.Logger) (*Store, error) {
	db, err := database.Open(ctx, cfg, logger)
	if err != nil {
		return nil, entity.Unavailable("open sqlite", err)
	}

	if _, err := database.NewMigrator(db, logger).Run(ctx, migrationFS); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate sqlite: %w", err)
	}

	return NewStore(db, logger), nil
}

// NewStore wraps an already migrated database
func NewStore(db *database.DB, logger *zap.Logger) *Store {
	return &Store{db: db, logger: logger}
}

func (s *Store) Insert(ctx context.Context, expense *entity.Expense) (string, error) {
	items, err := json.Marshal(lineItemsOrEmpty(expense.LineItems))
	if err != nil {
		return "", fmt.Errorf("failed to encode line items: %w", err)
	}

	id := uuid.NewString()
	query := `
		INSERT INTO expenses (` + selectColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = s.db.ExecContext(ctx, query,
		id,
		expense.Organization,
		expense.Event,
		expense.Description,
		expense.Vendor,
		expense.Category,
		expense.SubmittedBy,
		expense.Notes,
		decimalValue(expense.Amount),
		decimalValue(expense.TotalAdvanced),
		decimalValue(expense.TotalExpenses),
		decimalValue(expense.CashToReturn),
		expense.Date,
		expense.DateRange,
		expense.ReportDate,
		expense.ReceiptFile,
		string(items),
		expense.Status,
		formatTime(expense.SubmissionDate),
		timeValue(expense.ProcessedDate),
		expense.ProcessedBy,
		expense.AccountingRef,
	)
	if err != nil {
		s.logger.Error("Failed to insert expense", zap.Error(err))
		return "", entity.Unavailable("insert expense", err)
	}

	expense.ID = id
	return id, nil
}

func (s *Store) List(ctx context.Context) ([]*entity.Expense, error) {
	query := `SELECT ` + selectColumns + ` FROM expenses ORDER BY submission_date DESC, rowid DESC`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		s.logger.Error("Failed to list expenses", zap.Error(err))
		return nil, entity.Unavailable("list expenses", err)
	}
	defer rows.Close()

	var expenses []*entity.Expense
	for rows.Next() {
		e, err := scanExpense(rows)
		if err != nil {
			return nil, err
		}
		expenses = append(expenses, e)
	}
	if err := rows.Err(); err != nil {
		return nil, entity.Unavailable("list expenses", err)
	}
	return expenses, nil
}

func (s *Store) GetByID(ctx context.Context, id string) (*entity.Expense, error) {
	return getByID(ctx, s.db, id)
}

func (s *Store) UpdateByID(ctx context.Context, id string, update entity.ExpenseUpdate) (*entity.Expense, error) {
	var updated *entity.Expense
	err := s.db.WithTransaction(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, `
			UPDATE expenses SET
				status = COALESCE(?, status),
				processed_date = COALESCE(?, processed_date),
				processed_by = COALESCE(?, processed_by),
				accounting_ref = COALESCE(?, accounting_ref)
			WHERE id = ?
		`,
			update.Status,
			timeValue(update.ProcessedDate),
			update.ProcessedBy,
			update.AccountingRef,
			id,
		)
		if err != nil {
			return entity.Unavailable("update expense", err)
		}
		if n, err := result.RowsAffected(); err != nil {
			return entity.Unavailable("update expense", err)
		} else if n == 0 {
			return entity.ErrNotFound
		}

		updated, err = getByID(ctx, tx, id)
		return err
	})
	if err != nil {
		if !errors.Is(err, entity.ErrNotFound) {
			s.logger.Error("Failed to update expense", zap.String("id", id), zap.Error(err))
		}
		return nil, err
	}
	return updated, nil
}

func (s *Store) DeleteByID(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM expenses WHERE id = ?`, id)
	if err != nil {
		s.logger.Error("Failed to delete expense", zap.String("id", id), zap.Error(err))
		return entity.Unavailable("delete expense", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return entity.Unavailable("delete expense", err)
	}
	if n == 0 {
		return entity.ErrNotFound
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return entity.Unavailable("ping sqlite", err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// queryer covers both *database.DB and *sql.Tx
type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

func getByID(ctx context.Context, q queryer, id string) (*entity.Expense, error) {
	row := q.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM expenses WHERE id = ?`, id)
	e, err := scanExpense(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, entity.ErrNotFound
	}
	return e, err
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanExpense(row scanner) (*entity.Expense, error) {
	var (
		e                                        entity.Expense
		amount, advanced, totalExp, cashToReturn decimal.NullDecimal
		items, submitted                         string
		processed                                sql.NullString
	)

	err := row.Scan(
		&e.ID, &e.Organization, &e.Event, &e.Description, &e.Vendor, &e.Category, &e.SubmittedBy, &e.Notes,
		&amount, &advanced, &totalExp, &cashToReturn,
		&e.Date, &e.DateRange, &e.ReportDate, &e.ReceiptFile, &items,
		&e.Status, &submitted, &processed, &e.ProcessedBy, &e.AccountingRef,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, entity.Unavailable("scan expense", err)
	}

	e.Amount = decimalPtr(amount)
	e.TotalAdvanced = decimalPtr(advanced)
	e.TotalExpenses = decimalPtr(totalExp)
	e.CashToReturn = decimalPtr(cashToReturn)

	if e.SubmissionDate, err = time.Parse(timeLayout, submitted); err != nil {
		return nil, fmt.Errorf("failed to parse submission_date %q: %w", submitted, err)
	}
	if processed.Valid {
		t, err := time.Parse(timeLayout, processed.String)
		if err != nil {
			return nil, fmt.Errorf("failed to parse processed_date %q: %w", processed.String, err)
		}
		e.ProcessedDate = &t
	}

	if err := json.Unmarshal([]byte(items), &e.LineItems); err != nil {
		return nil, fmt.Errorf("failed to decode line items: %w", err)
	}
	if len(e.LineItems) == 0 {
		e.LineItems = nil
	}

	return &e, nil
}

func lineItemsOrEmpty(items []entity.LineItem) []entity.LineItem {
	if items == nil {
		return []entity.LineItem{}
	}
	return items
}

func decimalValue(d *decimal.Decimal) interface{} {
	if d == nil {
		return nil
	}
	return d.String()
}

func decimalPtr(d decimal.NullDecimal) *decimal.Decimal {
	if !d.Valid {
		return nil
	}
	v := d.Decimal
	return &v
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func timeValue(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

var _ port.ExpenseStore = (*Store)(nil)
