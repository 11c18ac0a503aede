// Package postgres implements port.ExpenseStore on PostgreSQL through a pgx connection pool.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/garyjia/expense-desk/internal/application/port"
	"github.com/garyjia/expense-desk/internal/domain/entity"
)

// Config holds pool settings
type Config struct {
	URL         string
	MaxConns    int32
	AutoMigrate bool
}

const selectColumns = `
	id::text, organization, event, description, vendor, category, submitted_by, notes,
	amount::text, total_advanced::text, total_expenses::text, cash_to_return::text,
	date, date_range, report_date, receipt_file, line_items::text,
	status, submission_date, processed_date, processed_by, accounting_ref`

// Store implements port.ExpenseStore
type Store struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// Connect opens a pool, verifies it and optionally migrates the schema
func Connect(ctx context.Context, cfg Config, logger *zap.Logger) (*Store, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("postgres url is required")
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse postgres url: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, entity.Unavailable("connect postgres", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, entity.Unavailable("ping postgres", err)
	}

	if cfg.AutoMigrate {
		if err := Migrate(cfg.URL, logger); err != nil {
			pool.Close()
			return nil, err
		}
	}

	logger.Info("Database connection established",
		zap.String("host", poolCfg.ConnConfig.Host),
		zap.String("database", poolCfg.ConnConfig.Database),
		zap.Int32("max_conns", poolCfg.MaxConns))
	return &Store{pool: pool, logger: logger}, nil
}

func (s *Store) Insert(ctx context.Context, expense *entity.Expense) (string, error) {
	items, err := json.Marshal(lineItemsOrEmpty(expense.LineItems))
	if err != nil {
		return "", fmt.Errorf("failed to encode line items: %w", err)
	}

	id := uuid.NewString()
	_, err = s.pool.Exec(ctx, `
		INSERT INTO expenses (
			id, organization, event, description, vendor, category, submitted_by, notes,
			amount, total_advanced, total_expenses, cash_to_return,
			date, date_range, report_date, receipt_file, line_items,
			status, submission_date, processed_date, processed_by, accounting_ref
		) VALUES (
			$1::text::uuid, $2, $3, $4, $5, $6, $7, $8,
			$9::text::numeric, $10::text::numeric, $11::text::numeric, $12::text::numeric,
			$13, $14, $15, $16, $17::text::jsonb,
			$18, $19, $20, $21, $22
		)`,
		id,
		expense.Organization,
		expense.Event,
		expense.Description,
		expense.Vendor,
		expense.Category,
		expense.SubmittedBy,
		expense.Notes,
		decimalText(expense.Amount),
		decimalText(expense.TotalAdvanced),
		decimalText(expense.TotalExpenses),
		decimalText(expense.CashToReturn),
		expense.Date,
		expense.DateRange,
		expense.ReportDate,
		expense.ReceiptFile,
		string(items),
		expense.Status,
		expense.SubmissionDate.UTC(),
		utcPtr(expense.ProcessedDate),
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
	rows, err := s.pool.Query(ctx, `SELECT `+selectColumns+` FROM expenses ORDER BY submission_date DESC, seq DESC`)
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
	if _, err := uuid.Parse(id); err != nil {
		return nil, entity.ErrNotFound
	}

	row := s.pool.QueryRow(ctx, `SELECT `+selectColumns+` FROM expenses WHERE id = $1::text::uuid`, id)
	e, err := scanExpense(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, entity.ErrNotFound
	}
	return e, err
}

func (s *Store) UpdateByID(ctx context.Context, id string, update entity.ExpenseUpdate) (*entity.Expense, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, entity.ErrNotFound
	}

	row := s.pool.QueryRow(ctx, `
		UPDATE expenses SET
			status = COALESCE($2, status),
			processed_date = COALESCE($3, processed_date),
			processed_by = COALESCE($4, processed_by),
			accounting_ref = COALESCE($5, accounting_ref)
		WHERE id = $1::text::uuid
		RETURNING `+selectColumns,
		id,
		update.Status,
		utcPtr(update.ProcessedDate),
		update.ProcessedBy,
		update.AccountingRef,
	)

	e, err := scanExpense(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, entity.ErrNotFound
	}
	if err != nil {
		s.logger.Error("Failed to update expense", zap.String("id", id), zap.Error(err))
		return nil, err
	}
	return e, nil
}

func (s *Store) DeleteByID(ctx context.Context, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return entity.ErrNotFound
	}

	tag, err := s.pool.Exec(ctx, `DELETE FROM expenses WHERE id = $1::text::uuid`, id)
	if err != nil {
		s.logger.Error("Failed to delete expense", zap.String("id", id), zap.Error(err))
		return entity.Unavailable("delete expense", err)
	}
	if tag.RowsAffected() == 0 {
		return entity.ErrNotFound
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return entity.Unavailable("ping postgres", err)
	}
	return nil
}

func (s *Store) Close() error {
	s.logger.Info("Closing database connection")
	s.pool.Close()
	return nil
}

func scanExpense(row pgx.Row) (*entity.Expense, error) {
	var (
		e                                        entity.Expense
		amount, advanced, totalExp, cashToReturn *string
		items                                    string
	)

	err := row.Scan(
		&e.ID, &e.Organization, &e.Event, &e.Description, &e.Vendor, &e.Category, &e.SubmittedBy, &e.Notes,
		&amount, &advanced, &totalExp, &cashToReturn,
		&e.Date, &e.DateRange, &e.ReportDate, &e.ReceiptFile, &items,
		&e.Status, &e.SubmissionDate, &e.ProcessedDate, &e.ProcessedBy, &e.AccountingRef,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, entity.Unavailable("scan expense", err)
	}

	for _, f := range []struct {
		src *string
		dst **decimal.Decimal
	}{
		{amount, &e.Amount},
		{advanced, &e.TotalAdvanced},
		{totalExp, &e.TotalExpenses},
		{cashToReturn, &e.CashToReturn},
	} {
		if *f.dst, err = parseDecimal(f.src); err != nil {
			return nil, err
		}
	}

	e.SubmissionDate = e.SubmissionDate.UTC()
	if e.ProcessedDate != nil {
		t := e.ProcessedDate.UTC()
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

func parseDecimal(s *string) (*decimal.Decimal, error) {
	if s == nil {
		return nil, nil
	}
	d, err := decimal.NewFromString(*s)
	if err != nil {
		return nil, fmt.Errorf("failed to parse numeric %q: %w", *s, err)
	}
	return &d, nil
}

func decimalText(d *decimal.Decimal) *string {
	if d == nil {
		return nil
	}
	s := d.String()
	return &s
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

func lineItemsOrEmpty(items []entity.LineItem) []entity.LineItem {
	if items == nil {
		return []entity.LineItem{}
	}
	return items
}

var _ port.ExpenseStore = (*Store)(nil)
