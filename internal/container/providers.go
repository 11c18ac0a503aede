package container

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/expense-desk/internal/application/dispatcher"
	"github.com/garyjia/expense-desk/internal/application/port"
	"github.com/garyjia/expense-desk/internal/application/service"
	"github.com/garyjia/expense-desk/internal/config"
	"github.com/garyjia/expense-desk/internal/infrastructure/external/lark"
	"github.com/garyjia/expense-desk/internal/infrastructure/persistence/cache"
	"github.com/garyjia/expense-desk/internal/infrastructure/persistence/gormstore"
	"github.com/garyjia/expense-desk/internal/infrastructure/persistence/memory"
	"github.com/garyjia/expense-desk/internal/infrastructure/persistence/mongostore"
	"github.com/garyjia/expense-desk/internal/infrastructure/persistence/postgres"
	"github.com/garyjia/expense-desk/internal/infrastructure/persistence/sqlite"
	"github.com/garyjia/expense-desk/internal/infrastructure/storage"
	"github.com/garyjia/expense-desk/pkg/utils"
)

// ServiceDeps holds dependencies for creating services
type ServiceDeps struct {
	Store      port.ExpenseStore
	Receipts   port.ReceiptStorage
	Messenger  port.MessageSender
	Dispatcher dispatcher.Dispatcher
	Profile    service.RequiredProfile
	Logger     *zap.Logger
}

// StoreConnector opens the configured record store once
type StoreConnector func(ctx context.Context) (port.ExpenseStore, error)

// ProvideStore returns a connector for the backend named in cfg.Storage.Backend
func ProvideStore(cfg *config.Config, logger *zap.Logger) (StoreConnector, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	switch cfg.Storage.Backend {
	case config.BackendMemory:
		return func(ctx context.Context) (port.ExpenseStore, error) {
			return memory.NewStore(), nil
		}, nil
	case config.BackendSQLite:
		return func(ctx context.Context) (port.ExpenseStore, error) {
			return sqlite.Open(ctx, sqliteConfig(cfg), logger)
		}, nil
	case config.BackendPostgres:
		return func(ctx context.Context) (port.ExpenseStore, error) {
			return postgres.Connect(ctx, postgresConfig(cfg), logger)
		}, nil
	case config.BackendGorm:
		return func(ctx context.Context) (port.ExpenseStore, error) {
			return gormstore.Open(ctx, gormConfig(cfg), logger)
		}, nil
	case config.BackendMongo:
		return func(ctx context.Context) (port.ExpenseStore, error) {
			return mongostore.Connect(ctx, mongoConfig(cfg), logger)
		}, nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}

// ConnectWithRetry calls connect until it succeeds, waiting delay between
// attempts. It only gives up when ctx is done.
func ConnectWithRetry(ctx context.Context, connect StoreConnector, delay time.Duration, logger *zap.Logger) (port.ExpenseStore, error) {
	for attempt := 1; ; attempt++ {
		store, err := connect(ctx)
		if err == nil {
			if attempt > 1 {
				logger.Info("Record store connected", zap.Int("attempt", attempt))
			}
			return store, nil
		}

		logger.Error("Failed to connect record store, retrying",
			zap.Error(err),
			zap.Int("attempt", attempt),
			zap.Duration("retry_in", delay))

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, fmt.Errorf("gave up connecting record store after %d attempts: %w", attempt, ctx.Err())
		case <-timer.C:
		}
	}
}

// ProvideCache wraps store with the Redis read-through cache when configured.
// An unreachable Redis leaves the store unwrapped.
func ProvideCache(ctx context.Context, cfg *config.Config, store port.ExpenseStore, logger *zap.Logger) port.ExpenseStore {
	if !cfg.Redis.Enabled() {
		return store
	}

	cc := cacheConfig(cfg)
	client, err := cache.NewClient(ctx, cc)
	if err != nil {
		logger.Warn("Redis unavailable, continuing without cache",
			zap.String("addr", cc.Addr),
			zap.Error(err))
		return store
	}

	logger.Info("Read-through cache enabled", zap.String("addr", cc.Addr), zap.Duration("ttl", cc.TTL))
	return cache.Wrap(store, client, cc.TTL, logger)
}

// ProvideReceiptStorage creates the receipt backend, wrapped with the image normaliser
// when receipts.max_image_width is positive
func ProvideReceiptStorage(ctx context.Context, cfg *config.Config, logger *zap.Logger) (port.ReceiptStorage, error) {
	var receipts port.ReceiptStorage

	switch cfg.Receipts.Backend {
	case config.ReceiptsLocal:
		local, err := storage.NewLocalReceiptStorage(cfg.Receipts.Dir, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create local receipt storage: %w", err)
		}
		receipts = local
	case config.ReceiptsMinio:
		remote, err := storage.NewMinioReceiptStorage(ctx, minioConfig(cfg), logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create minio receipt storage: %w", err)
		}
		receipts = remote
	default:
		return nil, fmt.Errorf("unknown receipts backend %q", cfg.Receipts.Backend)
	}

	if cfg.Receipts.MaxImageWidth > 0 {
		receipts = storage.NewImageNormalizer(receipts, cfg.Receipts.MaxImageWidth, logger)
	}
	return receipts, nil
}

// ProvideMessenger returns nil when Lark is not configured
func ProvideMessenger(cfg *config.Config, logger *zap.Logger) (port.MessageSender, error) {
	lc := larkConfig(cfg)
	if !lc.Enabled() {
		logger.Info("Lark notifications disabled")
		return nil, nil
	}
	messenger, err := lark.NewMessenger(lc, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create lark messenger: %w", err)
	}
	return messenger, nil
}

// ProvideDispatcher creates the event dispatcher
func ProvideDispatcher(logger *zap.Logger) (dispatcher.Dispatcher, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	return dispatcher.NewDispatcher(
		dispatcher.WithLogger(utils.NewKVLogger(logger.Named("dispatcher"))),
	), nil
}

// ProvideServices creates all application services and subscribes the event
// handlers to the dispatcher
func ProvideServices(deps *ServiceDeps) (*ServiceBundle, error) {
	if deps == nil {
		return nil, fmt.Errorf("service dependencies are required")
	}
	if deps.Store == nil {
		return nil, fmt.Errorf("record store is required")
	}
	if deps.Dispatcher == nil {
		return nil, fmt.Errorf("dispatcher is required")
	}
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	svcLogger := utils.NewKVLogger(deps.Logger)

	bundle := &ServiceBundle{
		Expense: service.NewExpenseService(deps.Store, deps.Receipts, svcLogger,
			service.WithRequiredProfile(deps.Profile),
			service.WithDispatcher(deps.Dispatcher),
		),
		Export: service.NewExportService(deps.Store, svcLogger),
	}

	if deps.Messenger != nil {
		bundle.Notification = service.NewNotificationService(deps.Messenger, svcLogger)
		bundle.Notification.Register(deps.Dispatcher)
	}
	if deps.Receipts != nil {
		service.NewReceiptCleaner(deps.Receipts, svcLogger).Register(deps.Dispatcher)
	}

	return bundle, nil
}
