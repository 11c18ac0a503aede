package dispatcher

import (
	"context"
	"fmt"
	"sync"

	"github.com/garyjia/expense-desk/internal/domain/event"
)

// Dispatcher routes events to registered handlers
type Dispatcher interface {
	// SubscribeNamed registers a handler under a name used in logs
	SubscribeNamed(eventType event.Type, name string, handler Handler)

	// Dispatch runs handlers in registration order and stops at the first error
	Dispatch(ctx context.Context, evt *event.Event) error

	// DispatchAsync runs every handler in its own goroutine. Handlers keep the
	// context's values but not its cancellation, so they outlive the request.
	DispatchAsync(ctx context.Context, evt *event.Event)

	// HandlerCount returns how many handlers listen for an event type
	HandlerCount(eventType event.Type) int

	// Close rejects new events and waits for in-flight async handlers
	Close() error
}

// Logger interface for minimal logging dependency
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

type eventDispatcher struct {
	// mu guards handlers and closed; async work is added to wg only while holding it
	mu       sync.RWMutex
	handlers map[event.Type][]HandlerInfo
	closed   bool
	logger   Logger

	wg sync.WaitGroup
}

// Option configures the dispatcher
type Option func(*eventDispatcher)

// WithLogger sets a logger for the dispatcher
func WithLogger(logger Logger) Option {
	return func(d *eventDispatcher) {
		d.logger = logger
	}
}

// NewDispatcher creates a new event dispatcher
func NewDispatcher(opts ...Option) Dispatcher {
	d := &eventDispatcher{
		handlers: make(map[event.Type][]HandlerInfo),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *eventDispatcher) SubscribeNamed(eventType event.Type, name string, handler Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.handlers[eventType] = append(d.handlers[eventType], HandlerInfo{
		Name:      name,
		EventType: eventType,
		Handler:   handler,
	})

	d.info("Handler registered", "event_type", eventType, "handler_name", name)
}

func (d *eventDispatcher) HandlerCount(eventType event.Type) int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.handlers[eventType])
}

func (d *eventDispatcher) Dispatch(ctx context.Context, evt *event.Event) error {
	handlers, ok := d.snapshot(evt.Type)
	if !ok {
		return fmt.Errorf("dispatcher is closed")
	}

	for _, h := range handlers {
		if err := d.safeExecute(ctx, evt, h); err != nil {
			d.error("Handler error",
				"event_type", evt.Type,
				"event_id", evt.ID,
				"expense_id", evt.ExpenseID,
				"handler_name", h.Name,
				"error", err,
			)
			return fmt.Errorf("handler %s failed: %w", h.Name, err)
		}
	}
	return nil
}

func (d *eventDispatcher) DispatchAsync(ctx context.Context, evt *event.Event) {
	d.mu.RLock()
	if d.closed {
		d.mu.RUnlock()
		d.error("Cannot dispatch async event, dispatcher is closed",
			"event_type", evt.Type,
			"event_id", evt.ID,
		)
		return
	}
	handlers := append([]HandlerInfo(nil), d.handlers[evt.Type]...)
	d.wg.Add(len(handlers))
	d.mu.RUnlock()

	detached := context.WithoutCancel(ctx)
	for _, h := range handlers {
		go func(h HandlerInfo) {
			defer d.wg.Done()
			if err := d.safeExecute(detached, evt, h); err != nil {
				d.error("Async handler error",
					"event_type", evt.Type,
					"event_id", evt.ID,
					"expense_id", evt.ExpenseID,
					"handler_name", h.Name,
					"error", err,
				)
			}
		}(h)
	}
}

func (d *eventDispatcher) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return fmt.Errorf("dispatcher already closed")
	}
	d.closed = true
	d.mu.Unlock()

	d.info("Closing dispatcher, waiting for async handlers")
	d.wg.Wait()
	d.info("Dispatcher closed")
	return nil
}

// snapshot copies the handlers for eventType; ok is false once the dispatcher is closed
func (d *eventDispatcher) snapshot(eventType event.Type) (handlers []HandlerInfo, ok bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return nil, false
	}
	return append([]HandlerInfo(nil), d.handlers[eventType]...), true
}

// safeExecute runs a handler with panic recovery
func (d *eventDispatcher) safeExecute(ctx context.Context, evt *event.Event, h HandlerInfo) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return h.Handler(ctx, evt)
}

func (d *eventDispatcher) info(msg string, keysAndValues ...interface{}) {
	if d.logger != nil {
		d.logger.Info(msg, keysAndValues...)
	}
}

func (d *eventDispatcher) error(msg string, keysAndValues ...interface{}) {
	if d.logger != nil {
		d.logger.Error(msg, keysAndValues...)
	}
}
