package messaging

import (
	"context"
	"log/slog"
	"sync"

	"github.com/agentropic/fabric-go/contracts"
)

// OverflowPolicy controls what a bounded mailbox does with a send that
// arrives while the queue is at capacity.
type OverflowPolicy string

const (
	// RejectNew fails the send with contracts.ErrMailboxFull.
	RejectNew OverflowPolicy = "reject-new"
	// DropOldest discards the head of the queue to make room for the new
	// message. The caller opted into loss; the drop is logged.
	DropOldest OverflowPolicy = "drop-oldest"
	// BlockSender suspends the sender until space is available or its
	// context is done.
	BlockSender OverflowPolicy = "block-sender"
)

// MailboxConfig holds mailbox configuration.
type MailboxConfig struct {
	Capacity int // 0 means unbounded
	Policy   OverflowPolicy
	Logger   *slog.Logger
}

// MailboxOption configures a mailbox.
type MailboxOption func(*MailboxConfig)

// WithCapacity bounds the mailbox to capacity messages. Zero or negative
// means unbounded.
func WithCapacity(capacity int) MailboxOption {
	return func(c *MailboxConfig) {
		c.Capacity = capacity
	}
}

// WithOverflowPolicy sets the behavior of Send when a bounded mailbox is at
// capacity.
func WithOverflowPolicy(policy OverflowPolicy) MailboxOption {
	return func(c *MailboxConfig) {
		c.Policy = policy
	}
}

// WithMailboxLogger sets the logger.
func WithMailboxLogger(logger *slog.Logger) MailboxOption {
	return func(c *MailboxConfig) {
		c.Logger = logger
	}
}

// Mailbox is the inbound FIFO queue owned by a single agent. It is safe for
// concurrent producers and consumers; when several receivers wait at once,
// each delivered message goes to exactly one of them.
//
// A mailbox is unbounded by default. Bounding it with WithCapacity makes the
// configured OverflowPolicy apply; only DropOldest can ever discard an
// accepted message, and only because the owner asked for it.
type Mailbox struct {
	mu       sync.Mutex
	queue    []contracts.Message
	capacity int
	policy   OverflowPolicy
	closed   bool
	logger   *slog.Logger

	// Capacity-1 wakeup tokens. A buffered token survives the race between
	// a waiter releasing the lock and entering its select.
	notEmpty chan struct{}
	notFull  chan struct{}
	done     chan struct{}
}

// NewMailbox creates a mailbox.
func NewMailbox(options ...MailboxOption) *Mailbox {
	cfg := &MailboxConfig{
		Policy: RejectNew,
		Logger: slog.Default(),
	}

	for _, opt := range options {
		opt(cfg)
	}

	if cfg.Capacity < 0 {
		cfg.Capacity = 0
	}

	return &Mailbox{
		capacity: cfg.Capacity,
		policy:   cfg.Policy,
		logger:   cfg.Logger,
		notEmpty: make(chan struct{}, 1),
		notFull:  make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
}

// Send enqueues msg at the tail of the queue. Under a bounded RejectNew
// policy a full mailbox fails with contracts.ErrMailboxFull; under
// BlockSender the call suspends until space frees up or ctx is done. A
// waiting receiver is woken when the message is accepted.
func (mb *Mailbox) Send(ctx context.Context, msg contracts.Message) error {
	for {
		mb.mu.Lock()

		if mb.closed {
			mb.mu.Unlock()
			return contracts.ErrMailboxClosed
		}

		if mb.capacity > 0 && len(mb.queue) >= mb.capacity {
			switch mb.policy {
			case RejectNew:
				mb.mu.Unlock()
				return contracts.ErrMailboxFull

			case DropOldest:
				dropped := mb.queue[0]
				mb.queue = mb.queue[1:]
				mb.logger.Warn("mailbox full, dropped oldest message",
					"droppedMessageId", dropped.ID,
					"receiver", dropped.Receiver,
					"capacity", mb.capacity,
				)

			case BlockSender:
				mb.mu.Unlock()
				select {
				case <-mb.notFull:
					continue
				case <-mb.done:
					return contracts.ErrMailboxClosed
				case <-ctx.Done():
					return ctx.Err()
				}
			}
		}

		mb.queue = append(mb.queue, msg)
		spaceLeft := mb.capacity > 0 && len(mb.queue) < mb.capacity
		mb.mu.Unlock()

		mb.signal(mb.notEmpty)
		// The notFull token coalesces, so a woken sender must pass it on
		// while capacity remains or other blocked senders never resume.
		if spaceLeft {
			mb.signal(mb.notFull)
		}
		return nil
	}
}

// Receive removes and returns the head message, suspending while the queue
// is empty. Cancellation or deadline expiry of ctx returns the context error
// without consuming a message. After Close, Receive keeps draining buffered
// messages and fails with contracts.ErrMailboxClosed once the queue is
// empty.
func (mb *Mailbox) Receive(ctx context.Context) (contracts.Message, error) {
	for {
		mb.mu.Lock()

		if len(mb.queue) > 0 {
			msg := mb.queue[0]
			mb.queue = mb.queue[1:]
			more := len(mb.queue) > 0
			mb.mu.Unlock()

			// Pass the wakeup on so other waiters see the rest of the
			// queue, and let a blocked sender know space freed up.
			if more {
				mb.signal(mb.notEmpty)
			}
			mb.signal(mb.notFull)
			return msg, nil
		}

		if mb.closed {
			mb.mu.Unlock()
			return contracts.Message{}, contracts.ErrMailboxClosed
		}

		mb.mu.Unlock()

		select {
		case <-mb.notEmpty:
		case <-mb.done:
		case <-ctx.Done():
			return contracts.Message{}, ctx.Err()
		}
	}
}

// TryReceive removes and returns the head message without suspending. The
// second result is false when the queue is empty.
func (mb *Mailbox) TryReceive() (contracts.Message, bool) {
	mb.mu.Lock()

	if len(mb.queue) == 0 {
		mb.mu.Unlock()
		return contracts.Message{}, false
	}

	msg := mb.queue[0]
	mb.queue = mb.queue[1:]
	more := len(mb.queue) > 0
	mb.mu.Unlock()

	if more {
		mb.signal(mb.notEmpty)
	}
	mb.signal(mb.notFull)
	return msg, true
}

// Len returns a snapshot of the queue size. The value may be stale by the
// time the caller inspects it.
func (mb *Mailbox) Len() int {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	return len(mb.queue)
}

// IsEmpty reports whether the queue was empty at the time of the call.
func (mb *Mailbox) IsEmpty() bool {
	return mb.Len() == 0
}

// Cap returns the configured capacity, 0 for unbounded.
func (mb *Mailbox) Cap() int {
	return mb.capacity
}

// Drain removes and returns all queued messages in FIFO order. Used on
// deregistration so pending traffic is surfaced instead of silently lost.
func (mb *Mailbox) Drain() []contracts.Message {
	mb.mu.Lock()
	drained := mb.queue
	mb.queue = nil
	mb.mu.Unlock()

	if len(drained) > 0 {
		mb.signal(mb.notFull)
	}
	return drained
}

// Close marks the mailbox closed and releases every suspended sender and
// receiver. Subsequent sends fail with contracts.ErrMailboxClosed; buffered
// messages remain receivable until the queue is empty.
func (mb *Mailbox) Close() {
	mb.mu.Lock()
	if mb.closed {
		mb.mu.Unlock()
		return
	}
	mb.closed = true
	mb.mu.Unlock()

	close(mb.done)
}

// IsClosed reports whether Close has been called.
func (mb *Mailbox) IsClosed() bool {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	return mb.closed
}

func (mb *Mailbox) signal(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}
