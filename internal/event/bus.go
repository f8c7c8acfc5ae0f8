package event

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// Names of the lifecycle events emitted by the rivers service.
const (
	RiverSave    = "river.save"
	RiverEnable  = "river.enable"
	RiverDisable = "river.disable"
)

// Event is a fire-and-forget notification about a river.
type Event struct {
	Name    string
	RiverID int64
}

// Publisher delivers events to interested handlers. Delivery failures are
// never reported back to the emitting operation.
type Publisher interface {
	Publish(ctx context.Context, evt Event)
}

// NopPublisher drops every event.
type NopPublisher struct{}

// Publish discards the event.
func (NopPublisher) Publish(context.Context, Event) {}

// Handler consumes a single event.
type Handler func(ctx context.Context, evt Event)

// Dispatcher is an in-process publisher delivering events synchronously to
// handlers registered per event name.
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[string][]Handler
	logger   *zap.Logger
}

// NewDispatcher returns a dispatcher with no registered handlers.
func NewDispatcher(logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		handlers: make(map[string][]Handler),
		logger:   logger,
	}
}

// Subscribe registers handler for the named event.
func (d *Dispatcher) Subscribe(name string, handler Handler) {
	if handler == nil {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[name] = append(d.handlers[name], handler)
}

// Publish delivers evt to every handler registered for its name. A panicking
// handler is logged and does not stop delivery to the remaining handlers.
func (d *Dispatcher) Publish(ctx context.Context, evt Event) {
	d.mu.RLock()
	registered := d.handlers[evt.Name]
	d.mu.RUnlock()

	for _, handler := range registered {
		d.deliver(ctx, evt, handler)
	}
}

func (d *Dispatcher) deliver(ctx context.Context, evt Event, handler Handler) {
	defer func() {
		if recovered := recover(); recovered != nil {
			d.logger.Error("event handler panicked",
				zap.String("event", evt.Name),
				zap.Int64("river_id", evt.RiverID),
				zap.Any("panic", recovered))
		}
	}()
	handler(ctx, evt)
}
