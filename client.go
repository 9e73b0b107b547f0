// Package fabric provides in-process message passing for multi-agent
// software: typed message envelopes, per-agent mailboxes, a router with
// broadcast and topic publish/subscribe, and a request/reply correlation
// protocol with timeouts.
//
// A Fabric is an explicit, self-contained instance of the delivery fabric.
// Nothing is process-global: create as many independent fabrics as needed
// (one per test, for example) and tear each down with Close.
//
// Basic usage:
//
//	f := fabric.New()
//	defer f.Close()
//
//	alice := contracts.NewAgentID()
//	bob := contracts.NewAgentID()
//	f.Register(alice)
//	inbox := f.Register(bob)
//
//	err := f.Send(ctx, contracts.NewMessage(alice, bob, contracts.Inform, "hello"))
//	msg, err := inbox.Receive(ctx)
//
// Request/reply:
//
//	ex, _ := f.Exchange(alice, bob)
//	req, _ := ex.SendRequest(ctx, contracts.NewMessage(alice, bob, contracts.Request, "time?"))
//	// responder side: receive, then reply with contracts.NewReply(req, contracts.Inform, "noon")
//	reply, err := ex.ReceiveReply(ctx, 5*time.Second)
package fabric

import (
	"context"
	"log/slog"
	"time"

	"github.com/agentropic/fabric-go/contracts"
	"github.com/agentropic/fabric-go/messaging"
)

// Fabric is the entry point: it owns one router and hands out mailboxes,
// exchanges, and delivery operations bound to it.
type Fabric struct {
	router *messaging.Router
	logger *slog.Logger
}

// Config holds fabric configuration.
type Config struct {
	Logger         *slog.Logger
	HistoryLimit   int
	MailboxOptions []messaging.MailboxOption
}

// Option configures the fabric.
type Option func(*Config)

// WithLogger sets the logger used by the router and every component the
// fabric creates.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Config) {
		c.Logger = logger
	}
}

// WithHistoryLimit caps the router's delivery history.
func WithHistoryLimit(limit int) Option {
	return func(c *Config) {
		c.HistoryLimit = limit
	}
}

// WithMailboxOptions sets defaults for every mailbox the fabric creates.
func WithMailboxOptions(options ...messaging.MailboxOption) Option {
	return func(c *Config) {
		c.MailboxOptions = options
	}
}

// New creates an independent fabric.
func New(options ...Option) *Fabric {
	cfg := &Config{
		Logger: slog.Default(),
	}

	for _, opt := range options {
		opt(cfg)
	}

	routerOpts := []messaging.RouterOption{
		messaging.WithRouterLogger(cfg.Logger),
	}
	if cfg.HistoryLimit > 0 {
		routerOpts = append(routerOpts, messaging.WithHistoryLimit(cfg.HistoryLimit))
	}
	if len(cfg.MailboxOptions) > 0 {
		routerOpts = append(routerOpts, messaging.WithMailboxOptions(cfg.MailboxOptions...))
	}

	return &Fabric{
		router: messaging.NewRouter(routerOpts...),
		logger: cfg.Logger,
	}
}

// Router returns the underlying router.
func (f *Fabric) Router() *messaging.Router {
	return f.router
}

// Register creates (or returns) the mailbox for id.
func (f *Fabric) Register(id contracts.AgentID, options ...messaging.MailboxOption) *messaging.Mailbox {
	return f.router.Register(id, options...)
}

// Deregister removes id and returns any messages still queued for it.
func (f *Fabric) Deregister(id contracts.AgentID) []contracts.Message {
	return f.router.Deregister(id)
}

// Send routes msg to its receiver.
func (f *Fabric) Send(ctx context.Context, msg contracts.Message) error {
	return f.router.Route(ctx, msg)
}

// Broadcast delivers a copy of template to each target, reporting per-target
// outcomes.
func (f *Fabric) Broadcast(ctx context.Context, template contracts.Message, targets ...contracts.AgentID) []messaging.DeliveryResult {
	return f.router.Broadcast(ctx, template, targets...)
}

// Subscribe adds id to topic's subscriber set.
func (f *Fabric) Subscribe(id contracts.AgentID, topic string) error {
	return f.router.Subscribe(id, topic)
}

// Unsubscribe removes id from topic's subscriber set.
func (f *Fabric) Unsubscribe(id contracts.AgentID, topic string) {
	f.router.Unsubscribe(id, topic)
}

// Publish fans template out to topic's current subscribers.
func (f *Fabric) Publish(ctx context.Context, topic string, template contracts.Message) []messaging.DeliveryResult {
	return f.router.Publish(ctx, topic, template)
}

// HasRouted reports whether a message with id has been routed successfully.
func (f *Fabric) HasRouted(id contracts.MessageID) bool {
	return f.router.HasRouted(id)
}

// AgentCount returns a snapshot of the number of registered agents.
func (f *Fabric) AgentCount() int {
	return f.router.AgentCount()
}

// Exchange creates a request/reply exchange between requester and responder.
func (f *Fabric) Exchange(requester, responder contracts.AgentID, options ...messaging.ExchangeOption) (*messaging.Exchange, error) {
	opts := append([]messaging.ExchangeOption{messaging.WithExchangeLogger(f.logger)}, options...)
	return messaging.NewExchange(f.router, requester, responder, opts...)
}

// Request sends msg as a request and waits up to timeout for the correlated
// reply. It is a one-shot convenience over Exchange; the responder must be
// consuming its mailbox and replying with contracts.NewReply for the call
// to complete.
func (f *Fabric) Request(ctx context.Context, msg contracts.Message, timeout time.Duration) (contracts.Message, error) {
	ex, err := f.Exchange(msg.Sender, msg.Receiver)
	if err != nil {
		return contracts.Message{}, err
	}

	if _, err := ex.SendRequest(ctx, msg); err != nil {
		return contracts.Message{}, err
	}

	reply, err := ex.ReceiveReply(ctx, timeout)

	// A one-shot exchange has no later chance to hand unmatched traffic
	// back, so requeue it on the requester's mailbox.
	if unmatched := ex.Unmatched(); len(unmatched) > 0 {
		if mb, ok := f.router.Lookup(msg.Sender); ok {
			for _, m := range unmatched {
				if sendErr := mb.Send(ctx, m); sendErr != nil {
					f.logger.Warn("failed to requeue unmatched message",
						"messageId", m.ID,
						"receiver", m.Receiver,
						"error", sendErr,
					)
				}
			}
		}
	}

	return reply, err
}

// Close deregisters every agent and discards their queued messages.
func (f *Fabric) Close() {
	for _, id := range f.router.Agents() {
		f.router.Deregister(id)
	}
}
