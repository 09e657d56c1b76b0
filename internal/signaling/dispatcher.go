package signaling

import (
	"context"
	"log/slog"
	"sync"
)

// HandlerFunc handles one inbound message. Handlers run on the dispatcher
// goroutine and must not block.
type HandlerFunc func(*Message)

// Dispatcher routes messages from a Transport to per-event handlers and
// sends outbound messages through the same transport.
type Dispatcher struct {
	transport Transport
	logger    *slog.Logger

	mu       sync.RWMutex
	handlers map[string]HandlerFunc
}

// NewDispatcher creates a dispatcher over transport.
func NewDispatcher(transport Transport, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		transport: transport,
		logger:    logger,
		handlers:  make(map[string]HandlerFunc),
	}
}

// On replaces the handler for event.
func (d *Dispatcher) On(event string, h HandlerFunc) {
	d.mu.Lock()
	d.handlers[event] = h
	d.mu.Unlock()
}

func (d *Dispatcher) Off(event string) {
	d.mu.Lock()
	delete(d.handlers, event)
	d.mu.Unlock()
}

func (d *Dispatcher) OffAll() {
	d.mu.Lock()
	clear(d.handlers)
	d.mu.Unlock()
}

// Emit sends msg over the transport.
func (d *Dispatcher) Emit(ctx context.Context, msg *Message) error {
	return d.transport.Send(ctx, msg)
}

// Start drains the transport until it closes, then delivers EventDisconnect.
func (d *Dispatcher) Start() {
	for msg := range d.transport.Incoming() {
		d.dispatch(msg)
	}
	d.logger.Debug("signaling transport closed")
	d.dispatch(&Message{Type: EventDisconnect})
}

func (d *Dispatcher) dispatch(msg *Message) {
	if msg.Type == EventError {
		var p ErrorPayload
		if err := msg.Decode(&p); err == nil {
			d.logger.Warn("relay error", "error", p.Error)
		}
	}

	d.mu.RLock()
	h := d.handlers[msg.Type]
	d.mu.RUnlock()

	if h == nil {
		d.logger.Debug("no handler for signaling message", "type", msg.Type)
		return
	}
	h(msg)
}
