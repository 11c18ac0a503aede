// Package container provides dependency injection and lifecycle management
// for the expense desk service.
package container

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/expense-desk/internal/application/dispatcher"
	"github.com/garyjia/expense-desk/internal/application/port"
	"github.com/garyjia/expense-desk/internal/application/service"
	"github.com/garyjia/expense-desk/internal/config"
)

// Container manages all application dependencies and lifecycle.
// Components are initialized in dependency order and torn down in reverse.
type Container struct {
	config *config.Config
	logger *zap.Logger

	// Infrastructure
	store     port.ExpenseStore
	receipts  port.ReceiptStorage
	messenger port.MessageSender

	// Application
	dispatcher dispatcher.Dispatcher
	services   *ServiceBundle

	connect StoreConnector

	// Lifecycle
	mu     sync.RWMutex
	ready  atomic.Bool
	closed atomic.Bool
}

// ServiceBundle groups all application services.
// Notification is nil when Lark is not configured.
type ServiceBundle struct {
	Expense      service.ExpenseService
	Export       service.ExportService
	Notification service.NotificationService
}

// HealthStatus represents the health of all components.
type HealthStatus struct {
	Overall    bool                       `json:"overall"`
	Components map[string]ComponentHealth `json:"components"`
}

// ComponentHealth represents health of a single component.
type ComponentHealth struct {
	Healthy bool   `json:"healthy"`
	Message string `json:"message,omitempty"`
}

// Option configures a Container
type Option func(*Container)

// WithStoreConnector replaces the backend chosen by configuration
func WithStoreConnector(connect StoreConnector) Option {
	return func(c *Container) {
		c.connect = connect
	}
}

// NewContainer creates a new container from configuration.
// It does not initialize components - call Start() to initialize.
func NewContainer(cfg *config.Config, logger *zap.Logger, opts ...Option) (*Container, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	c := &Container{
		config: cfg,
		logger: logger,
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.connect == nil {
		connect, err := ProvideStore(cfg, logger)
		if err != nil {
			return nil, err
		}
		c.connect = connect
	}

	return c, nil
}

// Start initializes all components in dependency order:
// 1. Record store (retried until ctx is done) and optional cache
// 2. Receipt storage
// 3. External clients (Lark)
// 4. Event dispatcher
// 5. Application services and event subscriptions
func (c *Container) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return fmt.Errorf("container has been closed")
	}

	if c.ready.Load() {
		return fmt.Errorf("container already started")
	}

	c.logger.Info("Starting container initialization",
		zap.String("backend", c.config.Storage.Backend),
		zap.String("receipts", c.config.Receipts.Backend))

	// Step 1: Record store
	if err := c.initStore(ctx); err != nil {
		return fmt.Errorf("failed to initialize record store: %w", err)
	}
	c.logger.Info("Record store initialized")

	// Step 2: Receipt storage
	if err := c.initReceipts(ctx); err != nil {
		c.closeStore()
		return fmt.Errorf("failed to initialize receipt storage: %w", err)
	}
	c.logger.Info("Receipt storage initialized")

	// Step 3: External clients
	messenger, err := ProvideMessenger(c.config, c.logger)
	if err != nil {
		c.closeStore()
		return fmt.Errorf("failed to initialize external clients: %w", err)
	}
	c.messenger = messenger

	// Step 4: Dispatcher
	disp, err := ProvideDispatcher(c.logger)
	if err != nil {
		c.closeStore()
		return fmt.Errorf("failed to initialize dispatcher: %w", err)
	}
	c.dispatcher = disp

	// Step 5: Services
	services, err := ProvideServices(&ServiceDeps{
		Store:      c.store,
		Receipts:   c.receipts,
		Messenger:  c.messenger,
		Dispatcher: c.dispatcher,
		Profile:    requiredProfile(c.config),
		Logger:     c.logger,
	})
	if err != nil {
		_ = c.dispatcher.Close()
		c.closeStore()
		return fmt.Errorf("failed to initialize services: %w", err)
	}
	c.services = services
	c.logger.Info("Application services initialized")

	c.ready.Store(true)
	c.logger.Info("Container started successfully")

	return nil
}

// Close gracefully shuts down all components in reverse order.
// Pending async event handlers finish before the store is closed.
func (c *Container) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return fmt.Errorf("container already closed")
	}

	c.logger.Info("Closing container")

	var errs []error

	if c.dispatcher != nil {
		if err := c.dispatcher.Close(); err != nil {
			c.logger.Error("Failed to close dispatcher", zap.Error(err))
			errs = append(errs, fmt.Errorf("close dispatcher: %w", err))
		} else {
			c.logger.Info("Dispatcher closed")
		}
	}

	if c.store != nil {
		if err := c.store.Close(); err != nil {
			c.logger.Error("Failed to close record store", zap.Error(err))
			errs = append(errs, fmt.Errorf("close record store: %w", err))
		} else {
			c.logger.Info("Record store closed")
		}
	}

	c.closed.Store(true)
	c.ready.Store(false)

	if len(errs) > 0 {
		c.logger.Error("Container closed with errors", zap.Int("error_count", len(errs)))
		return fmt.Errorf("container closed with %d errors", len(errs))
	}

	c.logger.Info("Container closed successfully")
	return nil
}

// Ready returns true when all components are initialized.
func (c *Container) Ready() bool {
	return c.ready.Load()
}

// Health pings the record store and reports the state of each component.
func (c *Container) Health(ctx context.Context) *HealthStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()

	status := &HealthStatus{
		Overall:    true,
		Components: make(map[string]ComponentHealth),
	}

	if c.store != nil {
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if err := c.store.Ping(pingCtx); err != nil {
			status.Components["database"] = ComponentHealth{
				Healthy: false,
				Message: fmt.Sprintf("ping failed: %v", err),
			}
			status.Overall = false
		} else {
			status.Components["database"] = ComponentHealth{Healthy: true}
		}
	} else {
		status.Components["database"] = ComponentHealth{
			Healthy: false,
			Message: "not initialized",
		}
		status.Overall = false
	}

	if c.dispatcher != nil {
		status.Components["dispatcher"] = ComponentHealth{Healthy: true}
	} else {
		status.Components["dispatcher"] = ComponentHealth{
			Healthy: false,
			Message: "not initialized",
		}
		status.Overall = false
	}

	notifications := ComponentHealth{Healthy: true, Message: "disabled"}
	if c.messenger != nil {
		notifications.Message = "lark"
	}
	status.Components["notifications"] = notifications

	return status
}

func (c *Container) initStore(ctx context.Context) error {
	store, err := ConnectWithRetry(ctx, c.connect, c.config.Storage.RetryDelay, c.logger)
	if err != nil {
		return err
	}
	c.store = ProvideCache(ctx, c.config, store, c.logger)
	return nil
}

func (c *Container) initReceipts(ctx context.Context) error {
	receipts, err := ProvideReceiptStorage(ctx, c.config, c.logger)
	if err != nil {
		return err
	}
	c.receipts = receipts
	return nil
}

func (c *Container) closeStore() {
	if c.store == nil {
		return
	}
	if err := c.store.Close(); err != nil {
		c.logger.Error("Failed to close record store", zap.Error(err))
	}
	c.store = nil
}

// Getters for accessing container components

// Store returns the record store, possibly wrapped by the cache.
func (c *Container) Store() port.ExpenseStore {
	return c.store
}

// Receipts returns the receipt storage.
func (c *Container) Receipts() port.ReceiptStorage {
	return c.receipts
}

// Dispatcher returns the event dispatcher.
func (c *Container) Dispatcher() dispatcher.Dispatcher {
	return c.dispatcher
}

// Services returns all application services.
func (c *Container) Services() *ServiceBundle {
	return c.services
}

// Logger returns the container's logger.
func (c *Container) Logger() *zap.Logger {
	return c.logger
}

// Config returns the container's configuration.
func (c *Container) Config() *config.Config {
	return c.config
}
