package contracts

import (
	"time"
)

// Message is the unit of communication between agents. It is an immutable
// value: constructors and derivation helpers return new values, nothing
// mutates a message after it has been built.
//
// ConversationID links a request to its replies. InReplyTo links a specific
// reply to the specific request message it answers; the fabric stores no
// message history, so honoring that reference is the protocol layer's job.
type Message struct {
	ID             MessageID    `json:"id"`
	Sender         AgentID      `json:"sender"`
	Receiver       AgentID      `json:"receiver"`
	Performative   Performative `json:"performative"`
	Content        string       `json:"content"`
	ConversationID string       `json:"conversationId,omitempty"`
	InReplyTo      MessageID    `json:"inReplyTo,omitempty"`
	Timestamp      time.Time    `json:"timestamp"`
}

// MessageOption configures optional message fields at construction.
type MessageOption func(*Message)

// WithConversationID sets the conversation identifier.
func WithConversationID(conversationID string) MessageOption {
	return func(m *Message) {
		m.ConversationID = conversationID
	}
}

// WithInReplyTo sets the identifier of the message this one answers.
func WithInReplyTo(id MessageID) MessageOption {
	return func(m *Message) {
		m.InReplyTo = id
	}
}

// NewMessage creates a message with a generated ID and current timestamp.
func NewMessage(sender, receiver AgentID, performative Performative, content string, options ...MessageOption) Message {
	m := Message{
		ID:           NewMessageID(),
		Sender:       sender,
		Receiver:     receiver,
		Performative: performative,
		Content:      content,
		Timestamp:    time.Now().UTC(),
	}

	for _, opt := range options {
		opt(&m)
	}

	return m
}

// NewReply creates a reply to request: sender and receiver are swapped, the
// conversation identifier is carried over, and InReplyTo references the
// request. A request without a conversation identifier yields a reply
// without one; the protocol layer assigns conversation identifiers before
// routing requests.
func NewReply(request Message, performative Performative, content string) Message {
	return NewMessage(request.Receiver, request.Sender, performative, content,
		WithConversationID(request.ConversationID),
		WithInReplyTo(request.ID),
	)
}

// CopyTo derives a copy of m addressed to receiver with a fresh MessageID.
// Broadcast fan-out uses this so every delivered copy has a distinct
// identity in the router's delivery history.
func (m Message) CopyTo(receiver AgentID) Message {
	copied := m
	copied.ID = NewMessageID()
	copied.Receiver = receiver
	return copied
}

// IsReply reports whether the message answers an earlier message.
func (m Message) IsReply() bool {
	return !m.InReplyTo.IsZero()
}

// InConversation reports whether the message belongs to the given
// conversation.
func (m Message) InConversation(conversationID string) bool {
	return conversationID != "" && m.ConversationID == conversationID
}
