package port

import (
	"context"

	"github.com/garyjia/expense-desk/internal/domain/entity"
)

// ExpenseStore defines persistence operations for Expense records.
// Implementations return entity.ErrNotFound for unknown ids and wrap backend
// failures with entity.ErrStorageUnavailable.
type ExpenseStore interface {
	// Insert assigns a fresh id, persists the expense and returns the id.
	// The id is also written back into expense.ID.
	Insert(ctx context.Context, expense *entity.Expense) (string, error)

	// List returns a snapshot of all expenses, most recently submitted first
	List(ctx context.Context) ([]*entity.Expense, error)

	// GetByID performs a point lookup
	GetByID(ctx context.Context, id string) (*entity.Expense, error)

	// UpdateByID merges the non-nil fields of update and returns the stored result
	UpdateByID(ctx context.Context, id string, update entity.ExpenseUpdate) (*entity.Expense, error)

	// DeleteByID removes the expense permanently
	DeleteByID(ctx context.Context, id string) error

	// Ping checks that the backend is reachable
	Ping(ctx context.Context) error

	// Close releases connections held by the store
	Close() error
}
