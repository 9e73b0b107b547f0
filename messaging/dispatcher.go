package messaging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/agentropic/fabric-go/contracts"
)

// Handler processes a received message.
type Handler interface {
	Handle(ctx context.Context, msg contracts.Message) error
}

// HandlerFunc is a function adapter for Handler.
type HandlerFunc func(ctx context.Context, msg contracts.Message) error

// Handle implements Handler.
func (f HandlerFunc) Handle(ctx context.Context, msg contracts.Message) error {
	return f(ctx, msg)
}

// Middleware processes messages before they reach handlers.
type Middleware func(ctx context.Context, msg contracts.Message, next Handler) error

// Dispatcher routes messages received from a mailbox to handlers registered
// per performative. It is consumer-side glue: the fabric itself never
// branches on performatives, the dispatcher does so on the agent's behalf.
type Dispatcher struct {
	mu         sync.RWMutex
	handlers   map[contracts.Performative][]Handler
	middleware []Middleware
	fallback   Handler
	logger     *slog.Logger
}

// DispatcherOption configures the Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithDispatcherLogger sets the logger.
func WithDispatcherLogger(logger *slog.Logger) DispatcherOption {
	return func(d *Dispatcher) {
		d.logger = logger
	}
}

// WithDispatcherMiddleware adds middleware to the dispatch chain.
func WithDispatcherMiddleware(middleware ...Middleware) DispatcherOption {
	return func(d *Dispatcher) {
		d.middleware = append(d.middleware, middleware...)
	}
}

// WithFallbackHandler sets the handler invoked for performatives with no
// registered handler. Without one, Dispatch fails for such messages.
func WithFallbackHandler(handler Handler) DispatcherOption {
	return func(d *Dispatcher) {
		d.fallback = handler
	}
}

// NewDispatcher creates a dispatcher.
func NewDispatcher(options ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		handlers: make(map[contracts.Performative][]Handler),
		logger:   slog.Default(),
	}

	for _, opt := range options {
		opt(d)
	}

	return d
}

// RegisterHandler registers a handler for a performative.
func (d *Dispatcher) RegisterHandler(performative contracts.Performative, handler Handler) error {
	if !performative.Valid() {
		return fmt.Errorf("unknown performative: %s", performative)
	}
	if handler == nil {
		return fmt.Errorf("handler cannot be nil")
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	d.handlers[performative] = append(d.handlers[performative], handler)

	d.logger.Debug("registered handler", "performative", performative)
	return nil
}

// RegisterHandlerFunc registers a function as a handler.
func (d *Dispatcher) RegisterHandlerFunc(performative contracts.Performative, handler HandlerFunc) error {
	return d.RegisterHandler(performative, handler)
}

// UnregisterHandlers removes all handlers for a performative.
func (d *Dispatcher) UnregisterHandlers(performative contracts.Performative) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.handlers, performative)
}

// RegisteredPerformatives returns the performatives that have handlers.
func (d *Dispatcher) RegisteredPerformatives() []contracts.Performative {
	d.mu.RLock()
	defer d.mu.RUnlock()

	performatives := make([]contracts.Performative, 0, len(d.handlers))
	for p := range d.handlers {
		performatives = append(performatives, p)
	}
	return performatives
}

// Dispatch sends msg through the middleware chain to every handler
// registered for its performative. Handler errors are collected and
// returned joined; a message whose performative has no handler goes to the
// fallback handler, or fails if none is configured.
func (d *Dispatcher) Dispatch(ctx context.Context, msg contracts.Message) error {
	d.mu.RLock()
	handlers := make([]Handler, len(d.handlers[msg.Performative]))
	copy(handlers, d.handlers[msg.Performative])
	fallback := d.fallback
	d.mu.RUnlock()

	if len(handlers) == 0 {
		if fallback != nil {
			return d.chain(fallback).Handle(ctx, msg)
		}
		d.logger.Warn("no handler for performative",
			"performative", msg.Performative,
			"messageId", msg.ID,
		)
		return fmt.Errorf("no handler registered for performative: %s", msg.Performative)
	}

	var errs []error
	for _, handler := range handlers {
		if err := d.chain(handler).Handle(ctx, msg); err != nil {
			d.logger.Error("handler failed",
				"performative", msg.Performative,
				"messageId", msg.ID,
				"error", err,
			)
			errs = append(errs, fmt.Errorf("handler failed for message %s: %w", msg.ID, err))
		}
	}

	return errors.Join(errs...)
}

// Run consumes mailbox until ctx is done, dispatching every received
// message. Dispatch failures are logged and consumption continues; Run
// returns when ctx is cancelled or the mailbox is closed and drained.
func (d *Dispatcher) Run(ctx context.Context, mailbox *Mailbox) error {
	for {
		msg, err := mailbox.Receive(ctx)
		if err != nil {
			if errors.Is(err, contracts.ErrMailboxClosed) {
				return nil
			}
			return err
		}

		if err := d.Dispatch(ctx, msg); err != nil {
			d.logger.Error("dispatch failed",
				"messageId", msg.ID,
				"performative", msg.Performative,
				"error", err,
			)
		}
	}
}

// chain wraps handler with the middleware, outermost first.
func (d *Dispatcher) chain(handler Handler) Handler {
	result := handler
	for i := len(d.middleware) - 1; i >= 0; i-- {
		mw := d.middleware[i]
		next := result
		result = HandlerFunc(func(ctx context.Context, msg contracts.Message) error {
			return mw(ctx, msg, next)
		})
	}
	return result
}
