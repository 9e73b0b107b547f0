package contracts

import (
	"github.com/google/uuid"
)

// AgentID uniquely identifies a participant in the fabric. It is opaque,
// comparable, and safe to use as a map key. The zero value is not a valid
// identifier.
type AgentID string

// NewAgentID generates a new unique agent identifier.
func NewAgentID() AgentID {
	return AgentID(uuid.New().String())
}

// String returns the identifier as a string.
func (id AgentID) String() string {
	return string(id)
}

// IsZero reports whether the identifier is unset.
func (id AgentID) IsZero() bool {
	return id == ""
}

// MessageID uniquely identifies a message instance. It is generated once at
// message construction and never changes. The zero value means "no message",
// which is how an absent InReplyTo reference is represented.
type MessageID string

// NewMessageID generates a new unique message identifier.
func NewMessageID() MessageID {
	return MessageID(uuid.New().String())
}

// String returns the identifier as a string.
func (id MessageID) String() string {
	return string(id)
}

// IsZero reports whether the identifier is unset.
func (id MessageID) IsZero() bool {
	return id == ""
}

// NewConversationID generates a unique conversation identifier used to
// correlate a request with its replies.
func NewConversationID() string {
	return uuid.New().String()
}
