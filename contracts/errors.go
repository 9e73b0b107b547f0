package contracts

import (
	"errors"
	"fmt"
)

var (
	// Routing errors
	ErrAgentNotFound = errors.New("router: agent not registered")

	// Mailbox errors
	ErrMailboxFull   = errors.New("mailbox: at capacity")
	ErrMailboxClosed = errors.New("mailbox: closed")

	// Protocol errors
	ErrReplyTimeout       = errors.New("request-reply: no reply before deadline")
	ErrExchangeTerminated = errors.New("request-reply: exchange already resolved")
	ErrNoRequestSent      = errors.New("request-reply: no request in flight")
)

// RoutingError reports a failed delivery attempt with its context. The
// wrapped cause is one of the sentinel errors above, or a context error when
// a blocking enqueue was cancelled.
type RoutingError struct {
	Op        string
	Receiver  AgentID
	MessageID MessageID
	Err       error
}

func (e *RoutingError) Error() string {
	return fmt.Sprintf("routing: %s failed for message %s to agent %s: %v",
		e.Op, e.MessageID, e.Receiver, e.Err)
}

func (e *RoutingError) Unwrap() error {
	return e.Err
}

// CorrelationError reports a reply that does not correlate with the
// outstanding request of an exchange.
type CorrelationError struct {
	ConversationID string
	Expected       MessageID
	Got            MessageID
}

func (e *CorrelationError) Error() string {
	return fmt.Sprintf("request-reply: reply %s does not answer request %s in conversation %s",
		e.Got, e.Expected, e.ConversationID)
}
