package container

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/garyjia/expense-desk/internal/application/port"
	"github.com/garyjia/expense-desk/internal/application/service"
	"github.com/garyjia/expense-desk/internal/config"
	"github.com/garyjia/expense-desk/internal/domain/event"
	"github.com/garyjia/expense-desk/internal/infrastructure/persistence/memory"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		App:      config.AppConfig{Environment: "test"},
		Server:   config.ServerConfig{Port: 8080, MaxUploadMB: 10},
		Storage:  config.StorageConfig{Backend: config.BackendMemory, RetryDelay: 10 * time.Millisecond},
		Receipts: config.ReceiptsConfig{Backend: config.ReceiptsLocal, Dir: t.TempDir(), MaxImageWidth: 1000},
		Expenses: config.ExpensesConfig{RequiredProfile: "minimal"},
	}
}

func decimalPtr(t *testing.T, s string) *decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	require.NoError(t, err)
	return &d
}

func TestNewContainer_Validation(t *testing.T) {
	_, err := NewContainer(nil, zap.NewNop())
	assert.Error(t, err)

	_, err = NewContainer(testConfig(t), nil)
	assert.Error(t, err)

	cfg := testConfig(t)
	cfg.Storage.Backend = "dynamo"
	_, err = NewContainer(cfg, zap.NewNop())
	assert.Error(t, err)
}

func TestContainer_Lifecycle(t *testing.T) {
	c, err := NewContainer(testConfig(t), zap.NewNop())
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, c.Start(ctx))
	assert.True(t, c.Ready())
	assert.Error(t, c.Start(ctx), "second start must fail")

	require.NotNil(t, c.Services())
	assert.NotNil(t, c.Services().Expense)
	assert.NotNil(t, c.Services().Export)
	assert.Nil(t, c.Services().Notification)
	assert.NotNil(t, c.Receipts())
	assert.Equal(t, 1, c.Dispatcher().HandlerCount(event.TypeExpenseDeleted))

	health := c.Health(ctx)
	assert.True(t, health.Overall)
	assert.True(t, health.Components["database"].Healthy)
	assert.Equal(t, "disabled", health.Components["notifications"].Message)

	expense, err := c.Services().Expense.Submit(ctx, service.SubmitInput{
		Description: "Taxi",
		Amount:      decimalPtr(t, "18.40"),
	}, nil)
	require.NoError(t, err)
	assert.NotEmpty(t, expense.ID)

	require.NoError(t, c.Close())
	assert.False(t, c.Ready())
	assert.Error(t, c.Close())
	assert.Error(t, c.Start(ctx))
}

func TestConnectWithRetry(t *testing.T) {
	attempts := 0
	connect := func(ctx context.Context) (port.ExpenseStore, error) {
		attempts++
		if attempts < 3 {
			return nil, errors.New("connection refused")
		}
		return memory.NewStore(), nil
	}

	store, err := ConnectWithRetry(context.Background(), connect, time.Millisecond, zap.NewNop())
	require.NoError(t, err)
	assert.NotNil(t, store)
	assert.Equal(t, 3, attempts)
}

func TestConnectWithRetry_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	connect := func(ctx context.Context) (port.ExpenseStore, error) {
		return nil, errors.New("connection refused")
	}

	_, err := ConnectWithRetry(ctx, connect, 5*time.Millisecond, zap.NewNop())
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestContainer_StartUsesInjectedConnector(t *testing.T) {
	store := memory.NewStore()
	c, err := NewContainer(testConfig(t), zap.NewNop(), WithStoreConnector(func(ctx context.Context) (port.ExpenseStore, error) {
		return store, nil
	}))
	require.NoError(t, err)
	require.NoError(t, c.Start(context.Background()))
	defer c.Close()

	assert.Same(t, store, c.Store())
}

func TestProvideCache_UnreachableRedisFallsBack(t *testing.T) {
	cfg := testConfig(t)
	cfg.Redis = config.RedisConfig{Addr: "127.0.0.1:1", TTL: time.Minute}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	store := memory.NewStore()
	assert.Same(t, store, ProvideCache(ctx, cfg, store, zap.NewNop()))
}

func TestProvideMessenger_DisabledWithoutLark(t *testing.T) {
	sender, err := ProvideMessenger(testConfig(t), zap.NewNop())
	require.NoError(t, err)
	assert.Nil(t, sender)
}
