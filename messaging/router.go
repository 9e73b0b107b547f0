package messaging

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/agentropic/fabric-go/contracts"
)

const defaultHistoryLimit = 8192

// RouterConfig holds router configuration.
type RouterConfig struct {
	Logger         *slog.Logger
	HistoryLimit   int
	MailboxOptions []MailboxOption
}

// RouterOption configures the Router.
type RouterOption func(*RouterConfig)

// WithRouterLogger sets the logger.
func WithRouterLogger(logger *slog.Logger) RouterOption {
	return func(c *RouterConfig) {
		c.Logger = logger
	}
}

// WithHistoryLimit caps the delivery history at limit entries. Once the cap
// is reached the oldest entries are evicted and HasRouted reports false for
// them; the history is a recent-delivery membership check, not an audit log.
func WithHistoryLimit(limit int) RouterOption {
	return func(c *RouterConfig) {
		c.HistoryLimit = limit
	}
}

// WithMailboxOptions sets the defaults applied to every mailbox the router
// creates in Register.
func WithMailboxOptions(options ...MailboxOption) RouterOption {
	return func(c *RouterConfig) {
		c.MailboxOptions = options
	}
}

// DeliveryResult reports the outcome of one fan-out target. Fan-out is not
// atomic: some targets may have been delivered to while others failed.
type DeliveryResult struct {
	Receiver  contracts.AgentID
	MessageID contracts.MessageID
	Err       error
}

// Router is the delivery engine connecting senders to mailboxes: a registry
// from AgentID to Mailbox, a bounded delivery history for idempotent
// HasRouted queries, and a topic subscriber map for publish/subscribe
// fan-out.
//
// The registry lock never spans a mailbox's own queue operations beyond the
// body of a single Route call, so traffic to distinct agents proceeds
// concurrently.
type Router struct {
	mu          sync.RWMutex
	mailboxes   map[contracts.AgentID]*Mailbox
	topics      map[string]map[contracts.AgentID]struct{}
	history     *deliveryHistory
	logger      *slog.Logger
	mailboxOpts []MailboxOption
}

// NewRouter creates a router.
func NewRouter(options ...RouterOption) *Router {
	cfg := &RouterConfig{
		Logger:       slog.Default(),
		HistoryLimit: defaultHistoryLimit,
	}

	for _, opt := range options {
		opt(cfg)
	}

	return &Router{
		mailboxes:   make(map[contracts.AgentID]*Mailbox),
		topics:      make(map[string]map[contracts.AgentID]struct{}),
		history:     newDeliveryHistory(cfg.HistoryLimit),
		logger:      cfg.Logger,
		mailboxOpts: cfg.MailboxOptions,
	}
}

// Register creates a mailbox for id and inserts it into the registry.
// Registering an already-registered id returns the existing mailbox: an
// agent must never end up with two mailboxes, since that would split its
// inbound stream and break per-agent FIFO ordering.
func (r *Router) Register(id contracts.AgentID, options ...MailboxOption) *Mailbox {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.mailboxes[id]; ok {
		return existing
	}

	opts := append(append([]MailboxOption{WithMailboxLogger(r.logger)}, r.mailboxOpts...), options...)
	mb := NewMailbox(opts...)
	r.mailboxes[id] = mb

	r.logger.Debug("registered agent", "agentId", id, "agentCount", len(r.mailboxes))
	return mb
}

// Deregister removes id from the registry and from all topic subscriber
// sets, closes its mailbox, and returns whatever messages were still
// queued. Routing to id afterwards fails with contracts.ErrAgentNotFound.
func (r *Router) Deregister(id contracts.AgentID) []contracts.Message {
	r.mu.Lock()
	mb, ok := r.mailboxes[id]
	if ok {
		delete(r.mailboxes, id)
	}
	for topic, subscribers := range r.topics {
		delete(subscribers, id)
		if len(subscribers) == 0 {
			delete(r.topics, topic)
		}
	}
	r.mu.Unlock()

	if !ok {
		return nil
	}

	mb.Close()
	drained := mb.Drain()

	r.logger.Debug("deregistered agent", "agentId", id, "drainedMessages", len(drained))
	return drained
}

// Lookup returns the mailbox registered for id.
func (r *Router) Lookup(id contracts.AgentID) (*Mailbox, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	mb, ok := r.mailboxes[id]
	return mb, ok
}

// Route delivers msg to its receiver's mailbox. An unregistered receiver
// fails with a RoutingError wrapping contracts.ErrAgentNotFound and the
// message is dropped, not queued anywhere. On success the message id is
// recorded in the delivery history before Route returns, so a caller that
// observes success also observes HasRouted(msg.ID) == true afterwards.
func (r *Router) Route(ctx context.Context, msg contracts.Message) error {
	r.mu.RLock()
	mb, ok := r.mailboxes[msg.Receiver]
	r.mu.RUnlock()

	if !ok {
		r.logger.Warn("route failed, receiver not registered",
			"messageId", msg.ID,
			"receiver", msg.Receiver,
		)
		return &contracts.RoutingError{
			Op:        "route",
			Receiver:  msg.Receiver,
			MessageID: msg.ID,
			Err:       contracts.ErrAgentNotFound,
		}
	}

	if err := mb.Send(ctx, msg); err != nil {
		// A concurrent Deregister can close the mailbox between the registry
		// lookup and the send. The agent is gone either way, so report it as
		// unknown rather than leaking the mailbox lifecycle.
		if errors.Is(err, contracts.ErrMailboxClosed) {
			if _, stillRegistered := r.Lookup(msg.Receiver); !stillRegistered {
				err = contracts.ErrAgentNotFound
			}
		}
		return &contracts.RoutingError{
			Op:        "route",
			Receiver:  msg.Receiver,
			MessageID: msg.ID,
			Err:       err,
		}
	}

	r.history.record(msg.ID)

	r.logger.Debug("message routed",
		"messageId", msg.ID,
		"sender", msg.Sender,
		"receiver", msg.Receiver,
		"performative", msg.Performative,
	)
	return nil
}

// HasRouted reports whether a Route call for id has completed successfully.
// The answer is monotonic in program order until the entry is evicted from
// the bounded history, after which it reports false again.
func (r *Router) HasRouted(id contracts.MessageID) bool {
	return r.history.seen(id)
}

// Broadcast delivers one copy of template to each target. Every copy gets a
// distinct MessageID via CopyTo, so the delivery history tracks each target
// separately. Failures are reported per target; a missing agent does not
// stop delivery to the rest.
func (r *Router) Broadcast(ctx context.Context, template contracts.Message, targets ...contracts.AgentID) []DeliveryResult {
	results := make([]DeliveryResult, 0, len(targets))

	for _, target := range targets {
		copied := template.CopyTo(target)
		err := r.Route(ctx, copied)
		results = append(results, DeliveryResult{
			Receiver:  target,
			MessageID: copied.ID,
			Err:       err,
		})
	}

	return results
}

// Agents returns a snapshot of the registered agent ids.
func (r *Router) Agents() []contracts.AgentID {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]contracts.AgentID, 0, len(r.mailboxes))
	for id := range r.mailboxes {
		ids = append(ids, id)
	}
	return ids
}

// AgentCount returns a snapshot of the registry size.
func (r *Router) AgentCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.mailboxes)
}

// Subscribe adds id to topic's subscriber set. The agent must be
// registered.
func (r *Router) Subscribe(id contracts.AgentID, topic string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.mailboxes[id]; !ok {
		return &contracts.RoutingError{
			Op:       "subscribe",
			Receiver: id,
			Err:      contracts.ErrAgentNotFound,
		}
	}

	subscribers, ok := r.topics[topic]
	if !ok {
		subscribers = make(map[contracts.AgentID]struct{})
		r.topics[topic] = subscribers
	}
	subscribers[id] = struct{}{}

	r.logger.Debug("agent subscribed", "agentId", id, "topic", topic)
	return nil
}

// Unsubscribe removes id from topic's subscriber set. Historical delivery
// records are unaffected.
func (r *Router) Unsubscribe(id contracts.AgentID, topic string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	subscribers, ok := r.topics[topic]
	if !ok {
		return
	}
	delete(subscribers, id)
	if len(subscribers) == 0 {
		delete(r.topics, topic)
	}
}

// Subscribers returns a snapshot of topic's subscriber set.
func (r *Router) Subscribers(topic string) []contracts.AgentID {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]contracts.AgentID, 0, len(r.topics[topic]))
	for id := range r.topics[topic] {
		ids = append(ids, id)
	}
	return ids
}

// Publish fans template out to the current subscribers of topic with the
// same per-target semantics as Broadcast.
func (r *Router) Publish(ctx context.Context, topic string, template contracts.Message) []DeliveryResult {
	return r.Broadcast(ctx, template, r.Subscribers(topic)...)
}

// deliveryHistory is a bounded membership set of routed message ids.
// Eviction is FIFO: when the cap is hit, the oldest recorded id is
// forgotten.
type deliveryHistory struct {
	mu      sync.RWMutex
	entries map[contracts.MessageID]struct{}
	order   []contracts.MessageID
	limit   int
}

func newDeliveryHistory(limit int) *deliveryHistory {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	return &deliveryHistory{
		entries: make(map[contracts.MessageID]struct{}),
		limit:   limit,
	}
}

func (h *deliveryHistory) record(id contracts.MessageID) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.entries[id]; ok {
		return
	}

	for len(h.order) >= h.limit {
		oldest := h.order[0]
		h.order = h.order[1:]
		delete(h.entries, oldest)
	}

	h.entries[id] = struct{}{}
	h.order = append(h.order, id)
}

func (h *deliveryHistory) seen(id contracts.MessageID) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.entries[id]
	return ok
}

func (h *deliveryHistory) len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.order)
}
