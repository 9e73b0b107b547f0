// Package messaging provides the in-process delivery fabric for agent
// messages.
//
// The package implements three layers:
//   - Mailbox: a per-agent concurrency-safe FIFO queue with suspending
//     receive, optional capacity bounds, and explicit overflow policies
//   - Router: the shared registry mapping agents to mailboxes, with direct
//     delivery, broadcast, topic publish/subscribe, and a bounded delivery
//     history answering HasRouted queries
//   - Exchange: a request/reply correlation protocol layered on top of the
//     router and mailboxes, with deadline enforcement
//
// A Dispatcher is included as consumer-side glue: it pulls messages from a
// mailbox and routes them to handlers registered per performative, with
// middleware support for cross-cutting concerns.
//
// Everything here is for a single shared-memory process. Ordering is FIFO
// per sender per mailbox; no total order across senders exists or is
// needed. Different agents' mailboxes share no locks, so delivery to
// distinct agents never serializes.
//
// Example usage:
//
//	router := messaging.NewRouter()
//	alice := contracts.NewAgentID()
//	bob := contracts.NewAgentID()
//	router.Register(alice)
//	inbox := router.Register(bob)
//
//	msg := contracts.NewMessage(alice, bob, contracts.Request, "ping")
//	if err := router.Route(ctx, msg); err != nil {
//		log.Fatal(err)
//	}
//	received, err := inbox.Receive(ctx)
package messaging
