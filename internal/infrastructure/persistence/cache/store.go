// Package cache wraps an ExpenseStore with a Redis read-through cache for point lookups.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/garyjia/expense-desk/internal/application/port"
	"github.com/garyjia/expense-desk/internal/domain/entity"
)

const keyPrefix = "expense:"

// tombstone marks a deleted id so a lookup that raced the delete cannot refill it
const tombstone = "-"

// Config holds Redis connection settings
type Config struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

// Store caches GetByID results. Cache failures are logged and never fail the call;
// the wrapped store stays the source of truth. Misses fill with SET NX while writes
// overwrite, so a fill carrying a record read before a write never replaces it.
type Store struct {
	inner  port.ExpenseStore
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewClient builds a Redis client and verifies it answers PING
func NewClient(ctx context.Context, cfg Config) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return client, nil
}

// Wrap decorates inner with the cache
func Wrap(inner port.ExpenseStore, client *redis.Client, ttl time.Duration, logger *zap.Logger) *Store {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Store{inner: inner, client: client, ttl: ttl, logger: logger}
}

func key(id string) string {
	return keyPrefix + id
}

func (s *Store) Insert(ctx context.Context, expense *entity.Expense) (string, error) {
	return s.inner.Insert(ctx, expense)
}

func (s *Store) List(ctx context.Context) ([]*entity.Expense, error) {
	return s.inner.List(ctx)
}

func (s *Store) GetByID(ctx context.Context, id string) (*entity.Expense, error) {
	raw, err := s.client.Get(ctx, key(id)).Bytes()
	switch {
	case err == nil && string(raw) == tombstone:
		return s.inner.GetByID(ctx, id)
	case err == nil:
		var cached entity.Expense
		if err := json.Unmarshal(raw, &cached); err == nil {
			return &cached, nil
		}
		s.logger.Warn("Discarding undecodable cache entry", zap.String("id", id))
		s.invalidate(ctx, id)
	case !errors.Is(err, redis.Nil):
		s.logger.Warn("Cache read failed", zap.String("id", id), zap.Error(err))
	}

	expense, err := s.inner.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	s.fill(ctx, expense)
	return expense, nil
}

func (s *Store) UpdateByID(ctx context.Context, id string, update entity.ExpenseUpdate) (*entity.Expense, error) {
	updated, err := s.inner.UpdateByID(ctx, id, update)
	if err != nil {
		s.invalidate(ctx, id)
		return nil, err
	}
	if !s.overwrite(ctx, updated) {
		s.invalidate(ctx, id)
	}
	return updated, nil
}

func (s *Store) DeleteByID(ctx context.Context, id string) error {
	err := s.inner.DeleteByID(ctx, id)
	if setErr := s.client.Set(ctx, key(id), tombstone, s.ttl).Err(); setErr != nil {
		s.logger.Warn("Cache tombstone write failed", zap.String("id", id), zap.Error(setErr))
	}
	return err
}

func (s *Store) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		s.logger.Warn("Cache ping failed", zap.Error(err))
	}
	return s.inner.Ping(ctx)
}

func (s *Store) Close() error {
	cacheErr := s.client.Close()
	if err := s.inner.Close(); err != nil {
		return err
	}
	return cacheErr
}

// fill caches a record read on a miss unless a write got there first
func (s *Store) fill(ctx context.Context, expense *entity.Expense) {
	raw, err := json.Marshal(expense)
	if err != nil {
		s.logger.Warn("Failed to encode cache entry", zap.String("id", expense.ID), zap.Error(err))
		return
	}
	if err := s.client.SetNX(ctx, key(expense.ID), raw, s.ttl).Err(); err != nil {
		s.logger.Warn("Cache write failed", zap.String("id", expense.ID), zap.Error(err))
	}
}

// overwrite replaces the entry with the record a write just produced
func (s *Store) overwrite(ctx context.Context, expense *entity.Expense) bool {
	raw, err := json.Marshal(expense)
	if err != nil {
		s.logger.Warn("Failed to encode cache entry", zap.String("id", expense.ID), zap.Error(err))
		return false
	}
	if err := s.client.Set(ctx, key(expense.ID), raw, s.ttl).Err(); err != nil {
		s.logger.Warn("Cache write failed", zap.String("id", expense.ID), zap.Error(err))
		return false
	}
	return true
}

func (s *Store) invalidate(ctx context.Context, id string) {
	if err := s.client.Del(ctx, key(id)).Err(); err != nil {
		s.logger.Warn("Cache invalidation failed", zap.String("id", id), zap.Error(err))
	}
}

var _ port.ExpenseStore = (*Store)(nil)
