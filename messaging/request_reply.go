package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/agentropic/fabric-go/contracts"
)

// ExchangeState is the lifecycle state of a request/reply exchange.
type ExchangeState string

const (
	StateIdle        ExchangeState = "idle"
	StateRequestSent ExchangeState = "request-sent"
	StateReplied     ExchangeState = "replied"
	StateTimedOut    ExchangeState = "timed-out"
	StateCancelled   ExchangeState = "cancelled"
)

// Terminal reports whether the state is final.
func (s ExchangeState) Terminal() bool {
	return s == StateReplied || s == StateTimedOut || s == StateCancelled
}

// ExchangeConfig holds exchange configuration.
type ExchangeConfig struct {
	Logger         *slog.Logger
	DefaultTimeout time.Duration
}

// ExchangeOption configures an Exchange.
type ExchangeOption func(*ExchangeConfig)

// WithExchangeLogger sets the logger.
func WithExchangeLogger(logger *slog.Logger) ExchangeOption {
	return func(c *ExchangeConfig) {
		c.Logger = logger
	}
}

// WithDefaultTimeout sets the reply timeout used when ReceiveReply is
// called with a non-positive duration.
func WithDefaultTimeout(timeout time.Duration) ExchangeOption {
	return func(c *ExchangeConfig) {
		c.DefaultTimeout = timeout
	}
}

// Exchange correlates one synchronous request/reply conversation over the
// asynchronous fabric. It is built only on Router and Mailbox primitives:
// the request is routed like any other message, and the requester then
// suspends on its own mailbox until the correlated reply arrives or the
// deadline elapses.
//
// State machine: StateIdle -> StateRequestSent -> one of StateReplied,
// StateTimedOut, StateCancelled. Terminal states are final; an Exchange is
// single-use.
//
// The requester's mailbox carries all of its traffic, not just this
// conversation. Messages that arrive while ReceiveReply is waiting but do
// not correlate are buffered aside and can be drained with Unmatched; they
// are never silently discarded.
type Exchange struct {
	router    *Router
	requester contracts.AgentID
	responder contracts.AgentID

	mu             sync.Mutex
	state          ExchangeState
	conversationID string
	requestID      contracts.MessageID
	unmatched      []contracts.Message

	defaultTimeout time.Duration
	logger         *slog.Logger
}

// NewExchange creates an exchange between requester and responder. Both
// must be registered with the router before messages can flow.
func NewExchange(router *Router, requester, responder contracts.AgentID, options ...ExchangeOption) (*Exchange, error) {
	if router == nil {
		return nil, fmt.Errorf("router cannot be nil")
	}
	if requester.IsZero() || responder.IsZero() {
		return nil, fmt.Errorf("requester and responder are required")
	}

	cfg := &ExchangeConfig{
		Logger:         slog.Default(),
		DefaultTimeout: 30 * time.Second,
	}

	for _, opt := range options {
		opt(cfg)
	}

	return &Exchange{
		router:         router,
		requester:      requester,
		responder:      responder,
		state:          StateIdle,
		defaultTimeout: cfg.DefaultTimeout,
		logger:         cfg.Logger,
	}, nil
}

// State returns the current exchange state.
func (e *Exchange) State() ExchangeState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// ConversationID returns the conversation identifier, empty until a request
// has been sent.
func (e *Exchange) ConversationID() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.conversationID
}

// SendRequest routes msg to the responder and arms the correlation state.
// A conversation identifier is assigned if msg carries none. The routed
// message (with its final conversation identifier) is returned so the
// caller knows the id the reply must reference.
func (e *Exchange) SendRequest(ctx context.Context, msg contracts.Message) (contracts.Message, error) {
	e.mu.Lock()
	if e.state != StateIdle {
		state := e.state
		e.mu.Unlock()
		return contracts.Message{}, fmt.Errorf("cannot send request in state %s: %w", state, contracts.ErrExchangeTerminated)
	}

	if msg.ConversationID == "" {
		msg.ConversationID = contracts.NewConversationID()
	}
	// Claim the exchange before routing so a concurrent SendRequest cannot
	// also pass the idle check.
	e.state = StateRequestSent
	e.conversationID = msg.ConversationID
	e.requestID = msg.ID
	e.mu.Unlock()

	if err := e.router.Route(ctx, msg); err != nil {
		e.mu.Lock()
		e.state = StateIdle
		e.conversationID = ""
		e.requestID = ""
		e.mu.Unlock()
		return contracts.Message{}, err
	}

	e.logger.Debug("request sent",
		"conversationId", msg.ConversationID,
		"requestId", msg.ID,
		"requester", e.requester,
		"responder", e.responder,
	)
	return msg, nil
}

// ReceiveRequest is the responder side: a plain suspending receive on the
// responder's mailbox. Messages are returned as-is in FIFO order, whether
// or not they belong to this conversation; disposition of unrelated
// traffic is the caller's choice.
func (e *Exchange) ReceiveRequest(ctx context.Context) (contracts.Message, error) {
	mb, ok := e.router.Lookup(e.responder)
	if !ok {
		return contracts.Message{}, &contracts.RoutingError{
			Op:       "receive-request",
			Receiver: e.responder,
			Err:      contracts.ErrAgentNotFound,
		}
	}
	return mb.Receive(ctx)
}

// SendReply routes reply back to the requester after validating that it
// answers the outstanding request: same conversation identifier, InReplyTo
// equal to the request's MessageID. Build the reply with
// contracts.NewReply to satisfy both.
func (e *Exchange) SendReply(ctx context.Context, reply contracts.Message) error {
	e.mu.Lock()
	if e.requestID.IsZero() {
		e.mu.Unlock()
		return contracts.ErrNoRequestSent
	}
	conversationID := e.conversationID
	requestID := e.requestID
	e.mu.Unlock()

	if reply.ConversationID != conversationID || reply.InReplyTo != requestID {
		return &contracts.CorrelationError{
			ConversationID: conversationID,
			Expected:       requestID,
			Got:            reply.InReplyTo,
		}
	}

	return e.router.Route(ctx, reply)
}

// ReceiveReply suspends on the requester's mailbox until the correlated
// reply arrives. A non-positive timeout uses the exchange default. When the
// deadline elapses the exchange transitions to StateTimedOut and the call
// fails with contracts.ErrReplyTimeout; the original request is not
// retracted. Cancellation of ctx transitions to StateCancelled and returns
// the context error. Unrelated messages observed while waiting are buffered
// for Unmatched.
func (e *Exchange) ReceiveReply(ctx context.Context, timeout time.Duration) (contracts.Message, error) {
	e.mu.Lock()
	if e.state != StateRequestSent {
		state := e.state
		e.mu.Unlock()
		if state == StateIdle {
			return contracts.Message{}, contracts.ErrNoRequestSent
		}
		return contracts.Message{}, fmt.Errorf("cannot receive reply in state %s: %w", state, contracts.ErrExchangeTerminated)
	}
	conversationID := e.conversationID
	requestID := e.requestID
	e.mu.Unlock()

	mb, ok := e.router.Lookup(e.requester)
	if !ok {
		return contracts.Message{}, &contracts.RoutingError{
			Op:       "receive-reply",
			Receiver: e.requester,
			Err:      contracts.ErrAgentNotFound,
		}
	}

	if timeout <= 0 {
		timeout = e.defaultTimeout
	}
	deadline, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	for {
		msg, err := mb.Receive(deadline)
		if err != nil {
			switch {
			case ctx.Err() != nil:
				e.resolve(StateCancelled)
				return contracts.Message{}, ctx.Err()
			case deadline.Err() != nil:
				e.resolve(StateTimedOut)
				e.logger.Debug("reply wait timed out",
					"conversationId", conversationID,
					"requestId", requestID,
					"timeout", timeout,
				)
				return contracts.Message{}, contracts.ErrReplyTimeout
			default:
				return contracts.Message{}, err
			}
		}

		if msg.InConversation(conversationID) && msg.InReplyTo == requestID {
			e.resolve(StateReplied)
			e.logger.Debug("reply received",
				"conversationId", conversationID,
				"requestId", requestID,
				"replyId", msg.ID,
			)
			return msg, nil
		}

		// Not ours. The mailbox is shared with all other traffic, so park
		// the message for the caller instead of dropping it.
		e.mu.Lock()
		e.unmatched = append(e.unmatched, msg)
		e.mu.Unlock()
	}
}

// Unmatched drains the messages that arrived during ReceiveReply without
// correlating to the outstanding request, in the order they were received.
func (e *Exchange) Unmatched() []contracts.Message {
	e.mu.Lock()
	defer e.mu.Unlock()
	unmatched := e.unmatched
	e.unmatched = nil
	return unmatched
}

func (e *Exchange) resolve(state ExchangeState) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.state.Terminal() {
		e.state = state
	}
}
