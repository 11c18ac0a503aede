// Package memory provides a process-local ExpenseStore for demos and tests.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/garyjia/expense-desk/internal/application/port"
	"github.com/garyjia/expense-desk/internal/domain/entity"
)

type record struct {
	seq     uint64
	expense *entity.Expense
}

// Store keeps expenses in a map keyed by id. Every operation holds the lock and
// hands out clones, so callers never share memory with the store.
type Store struct {
	mu      sync.RWMutex
	records map[string]record
	nextSeq uint64
	newID   func() string
}

// NewStore creates an empty in-memory store
func NewStore() *Store {
	return &Store{
		records: make(map[string]record),
		newID:   uuid.NewString,
	}
}

func (s *Store) Insert(ctx context.Context, expense *entity.Expense) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", entity.Unavailable("insert expense", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.newID()
	for _, exists := s.records[id]; exists; _, exists = s.records[id] {
		id = s.newID()
	}

	expense.ID = id
	s.nextSeq++
	s.records[id] = record{seq: s.nextSeq, expense: expense.Clone()}
	return id, nil
}

func (s *Store) List(ctx context.Context) ([]*entity.Expense, error) {
	if err := ctx.Err(); err != nil {
		return nil, entity.Unavailable("list expenses", err)
	}

	s.mu.RLock()
	recs := make([]record, 0, len(s.records))
	for _, r := range s.records {
		recs = append(recs, r)
	}
	s.mu.RUnlock()

	sort.Slice(recs, func(i, j int) bool {
		a, b := recs[i].expense.SubmissionDate, recs[j].expense.SubmissionDate
		if !a.Equal(b) {
			return a.After(b)
		}
		return recs[i].seq > recs[j].seq
	})

	out := make([]*entity.Expense, len(recs))
	for i, r := range recs {
		out[i] = r.expense.Clone()
	}
	return out, nil
}

func (s *Store) GetByID(ctx context.Context, id string) (*entity.Expense, error) {
	if err := ctx.Err(); err != nil {
		return nil, entity.Unavailable("get expense", err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.records[id]
	if !ok {
		return nil, entity.ErrNotFound
	}
	return r.expense.Clone(), nil
}

func (s *Store) UpdateByID(ctx context.Context, id string, update entity.ExpenseUpdate) (*entity.Expense, error) {
	if err := ctx.Err(); err != nil {
		return nil, entity.Unavailable("update expense", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.records[id]
	if !ok {
		return nil, entity.ErrNotFound
	}
	r.expense.Apply(update)
	return r.expense.Clone(), nil
}

func (s *Store) DeleteByID(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return entity.Unavailable("delete expense", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[id]; !ok {
		return entity.ErrNotFound
	}
	delete(s.records, id)
	return nil
}

// Len returns the number of stored expenses
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

func (s *Store) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (s *Store) Close() error {
	return nil
}

var _ port.ExpenseStore = (*Store)(nil)
