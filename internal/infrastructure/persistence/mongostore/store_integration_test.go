//go:build integration

package mongostore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.uber.org/zap"

	"github.com/garyjia/expense-desk/internal/application/port"
	"github.com/garyjia/expense-desk/internal/domain/entity"
	"github.com/garyjia/expense-desk/internal/infrastructure/persistence/storetest"
)

func TestStore_Contract(t *testing.T) {
	uri := storetest.StartMongo(t)

	store, err := Connect(context.Background(), Config{
		URI:            uri,
		Database:       "expenses_test",
		Collection:     "expenses",
		ConnectTimeout: 10 * time.Second,
	}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	storetest.RunContract(t, func(t *testing.T) port.ExpenseStore {
		_, err := store.collection.DeleteMany(context.Background(), bson.D{})
		require.NoError(t, err)
		return store
	})

	t.Run("NonHexIDIsNotFound", func(t *testing.T) {
		_, err := store.GetByID(context.Background(), "not-hex")
		assert.ErrorIs(t, err, entity.ErrNotFound)
	})
}
