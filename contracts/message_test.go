package contracts

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewMessage(t *testing.T) {
	t.Run("NewMessage generates id and timestamp", func(t *testing.T) {
		sender := NewAgentID()
		receiver := NewAgentID()

		msg := NewMessage(sender, receiver, Request, "ping")

		assert.False(t, msg.ID.IsZero())
		assert.Equal(t, sender, msg.Sender)
		assert.Equal(t, receiver, msg.Receiver)
		assert.Equal(t, Request, msg.Performative)
		assert.Equal(t, "ping", msg.Content)
		assert.False(t, msg.Timestamp.IsZero())
		assert.Empty(t, msg.ConversationID)
		assert.True(t, msg.InReplyTo.IsZero())
		assert.False(t, msg.IsReply())
	})

	t.Run("messages get distinct ids", func(t *testing.T) {
		sender := NewAgentID()
		receiver := NewAgentID()

		first := NewMessage(sender, receiver, Inform, "a")
		second := NewMessage(sender, receiver, Inform, "a")

		assert.NotEqual(t, first.ID, second.ID)
	})

	t.Run("options set conversation id and reply reference", func(t *testing.T) {
		original := NewMessage(NewAgentID(), NewAgentID(), Request, "ping")

		msg := NewMessage(original.Receiver, original.Sender, Inform, "pong",
			WithConversationID("conv-1"),
			WithInReplyTo(original.ID),
		)

		assert.Equal(t, "conv-1", msg.ConversationID)
		assert.Equal(t, original.ID, msg.InReplyTo)
		assert.True(t, msg.IsReply())
		assert.True(t, msg.InConversation("conv-1"))
		assert.False(t, msg.InConversation("conv-2"))
	})

	t.Run("empty conversation id never matches", func(t *testing.T) {
		msg := NewMessage(NewAgentID(), NewAgentID(), Inform, "x")

		assert.False(t, msg.InConversation(""))
	})
}

func TestNewReply(t *testing.T) {
	t.Run("NewReply swaps direction and correlates", func(t *testing.T) {
		request := NewMessage(NewAgentID(), NewAgentID(), Request, "time?",
			WithConversationID("conv-42"))

		reply := NewReply(request, Inform, "noon")

		assert.Equal(t, request.Receiver, reply.Sender)
		assert.Equal(t, request.Sender, reply.Receiver)
		assert.Equal(t, Inform, reply.Performative)
		assert.Equal(t, "noon", reply.Content)
		assert.Equal(t, "conv-42", reply.ConversationID)
		assert.Equal(t, request.ID, reply.InReplyTo)
		assert.NotEqual(t, request.ID, reply.ID)
	})
}

func TestCopyTo(t *testing.T) {
	t.Run("CopyTo keeps content but gets fresh id", func(t *testing.T) {
		template := NewMessage(NewAgentID(), NewAgentID(), Inform, "news",
			WithConversationID("conv-7"))
		target := NewAgentID()

		copied := template.CopyTo(target)

		assert.Equal(t, target, copied.Receiver)
		assert.Equal(t, template.Sender, copied.Sender)
		assert.Equal(t, template.Content, copied.Content)
		assert.Equal(t, template.ConversationID, copied.ConversationID)
		assert.NotEqual(t, template.ID, copied.ID)
	})

	t.Run("CopyTo does not mutate the original", func(t *testing.T) {
		template := NewMessage(NewAgentID(), NewAgentID(), Inform, "news")
		originalID := template.ID
		originalReceiver := template.Receiver

		template.CopyTo(NewAgentID())

		assert.Equal(t, originalID, template.ID)
		assert.Equal(t, originalReceiver, template.Receiver)
	})
}

func TestPerformative(t *testing.T) {
	t.Run("all enumerated performatives are valid", func(t *testing.T) {
		for _, p := range Performatives() {
			assert.True(t, p.Valid(), "expected %s to be valid", p)
		}
		assert.Len(t, Performatives(), 12)
	})

	t.Run("unknown performative is invalid", func(t *testing.T) {
		assert.False(t, Performative("shout").Valid())
	})
}

func TestIdentifiers(t *testing.T) {
	t.Run("agent ids are unique", func(t *testing.T) {
		assert.NotEqual(t, NewAgentID(), NewAgentID())
	})

	t.Run("message ids are unique", func(t *testing.T) {
		assert.NotEqual(t, NewMessageID(), NewMessageID())
	})

	t.Run("zero values report IsZero", func(t *testing.T) {
		var agentID AgentID
		var messageID MessageID

		assert.True(t, agentID.IsZero())
		assert.True(t, messageID.IsZero())
		assert.False(t, NewAgentID().IsZero())
		assert.False(t, NewMessageID().IsZero())
	})
}

func TestRoutingError(t *testing.T) {
	t.Run("RoutingError unwraps its cause", func(t *testing.T) {
		err := &RoutingError{
			Op:        "route",
			Receiver:  NewAgentID(),
			MessageID: NewMessageID(),
			Err:       ErrAgentNotFound,
		}

		assert.ErrorIs(t, err, ErrAgentNotFound)
		assert.Contains(t, err.Error(), "route")
	})

	t.Run("CorrelationError names both ids", func(t *testing.T) {
		expected := NewMessageID()
		got := NewMessageID()
		err := &CorrelationError{
			ConversationID: "conv-1",
			Expected:       expected,
			Got:            got,
		}

		assert.Contains(t, err.Error(), expected.String())
		assert.Contains(t, err.Error(), got.String())
		assert.False(t, errors.Is(err, ErrAgentNotFound))
	})
}
