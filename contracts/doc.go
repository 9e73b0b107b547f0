// Package contracts provides the core message types and identifiers for the fabric messaging library.
//
// This package defines what flows through the system:
//   - AgentID / MessageID: opaque unique identifiers for participants and messages
//   - Performative: the speech-act kind of a message (Request, Inform, ...)
//   - Message: the immutable message envelope exchanged between agents
//   - Error values shared by the mailbox, router, and protocol layers
//
// Messages are plain values: once constructed they are never mutated.
// Protocol layers derive new messages (replies, broadcast copies) instead
// of modifying existing ones.
package contracts
