//go:build integration

package gormstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/garyjia/expense-desk/internal/application/port"
	"github.com/garyjia/expense-desk/internal/infrastructure/persistence/storetest"
)

func TestStore_Contract(t *testing.T) {
	dsn := storetest.StartPostgres(t)

	store, err := Open(context.Background(), Config{DSN: dsn, MaxOpenConns: 4, AutoMigrate: true}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	storetest.RunContract(t, func(t *testing.T) port.ExpenseStore {
		require.NoError(t, store.db.Exec(`TRUNCATE expenses`).Error)
		return store
	})
}
