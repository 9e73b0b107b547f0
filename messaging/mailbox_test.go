package messaging

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/agentropic/fabric-go/contracts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testMessage(content string) contracts.Message {
	return contracts.NewMessage(contracts.NewAgentID(), contracts.NewAgentID(), contracts.Inform, content)
}

func TestMailboxFIFO(t *testing.T) {
	t.Run("receive order equals send order", func(t *testing.T) {
		mb := NewMailbox()
		ctx := context.Background()

		contents := []string{"one", "two", "three", "four"}
		for _, c := range contents {
			require.NoError(t, mb.Send(ctx, testMessage(c)))
		}

		assert.Equal(t, len(contents), mb.Len())

		for _, want := range contents {
			msg, err := mb.Receive(ctx)
			require.NoError(t, err)
			assert.Equal(t, want, msg.Content)
		}
		assert.True(t, mb.IsEmpty())
	})

	t.Run("TryReceive returns false when empty", func(t *testing.T) {
		mb := NewMailbox()

		_, ok := mb.TryReceive()

		assert.False(t, ok)
	})

	t.Run("TryReceive pops the head", func(t *testing.T) {
		mb := NewMailbox()
		require.NoError(t, mb.Send(context.Background(), testMessage("head")))

		msg, ok := mb.TryReceive()

		require.True(t, ok)
		assert.Equal(t, "head", msg.Content)
		assert.True(t, mb.IsEmpty())
	})
}

func TestMailboxBlockingReceive(t *testing.T) {
	t.Run("receive suspends until a message arrives", func(t *testing.T) {
		mb := NewMailbox()
		ctx := context.Background()

		received := make(chan contracts.Message, 1)
		go func() {
			msg, err := mb.Receive(ctx)
			if err == nil {
				received <- msg
			}
		}()

		time.Sleep(20 * time.Millisecond)
		require.NoError(t, mb.Send(ctx, testMessage("wake")))

		select {
		case msg := <-received:
			assert.Equal(t, "wake", msg.Content)
		case <-time.After(2 * time.Second):
			t.Fatal("receiver was not woken by send")
		}
	})

	t.Run("receive honors context deadline without consuming", func(t *testing.T) {
		mb := NewMailbox()
		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()

		start := time.Now()
		_, err := mb.Receive(ctx)

		assert.ErrorIs(t, err, context.DeadlineExceeded)
		assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
		assert.Equal(t, 0, mb.Len())
	})

	t.Run("receive honors cancellation", func(t *testing.T) {
		mb := NewMailbox()
		ctx, cancel := context.WithCancel(context.Background())

		errCh := make(chan error, 1)
		go func() {
			_, err := mb.Receive(ctx)
			errCh <- err
		}()

		time.Sleep(20 * time.Millisecond)
		cancel()

		select {
		case err := <-errCh:
			assert.ErrorIs(t, err, context.Canceled)
		case <-time.After(2 * time.Second):
			t.Fatal("receiver was not released by cancellation")
		}
	})
}

func TestMailboxNoDuplicationNoLoss(t *testing.T) {
	t.Run("every accepted message is received exactly once", func(t *testing.T) {
		mb := NewMailbox()
		ctx := context.Background()

		const producers = 4
		const perProducer = 50
		const total = producers * perProducer

		var sendWG sync.WaitGroup
		for p := 0; p < producers; p++ {
			sendWG.Add(1)
			go func() {
				defer sendWG.Done()
				for i := 0; i < perProducer; i++ {
					_ = mb.Send(ctx, testMessage("m"))
				}
			}()
		}

		var mu sync.Mutex
		seen := make(map[contracts.MessageID]int)
		var recvWG sync.WaitGroup
		for c := 0; c < 3; c++ {
			recvWG.Add(1)
			go func() {
				defer recvWG.Done()
				for {
					msg, err := mb.Receive(ctx)
					if err != nil {
						return
					}
					mu.Lock()
					seen[msg.ID]++
					done := len(seen) == total
					mu.Unlock()
					if done {
						mb.Close()
						return
					}
				}
			}()
		}

		sendWG.Wait()
		recvWG.Wait()

		assert.Len(t, seen, total)
		for id, count := range seen {
			assert.Equal(t, 1, count, "message %s delivered %d times", id, count)
		}
	})
}

func TestMailboxOverflowPolicies(t *testing.T) {
	t.Run("RejectNew fails when full", func(t *testing.T) {
		mb := NewMailbox(WithCapacity(2), WithOverflowPolicy(RejectNew))
		ctx := context.Background()

		require.NoError(t, mb.Send(ctx, testMessage("a")))
		require.NoError(t, mb.Send(ctx, testMessage("b")))

		err := mb.Send(ctx, testMessage("c"))

		assert.ErrorIs(t, err, contracts.ErrMailboxFull)
		assert.Equal(t, 2, mb.Len())
	})

	t.Run("DropOldest discards the head", func(t *testing.T) {
		mb := NewMailbox(WithCapacity(2), WithOverflowPolicy(DropOldest))
		ctx := context.Background()

		require.NoError(t, mb.Send(ctx, testMessage("a")))
		require.NoError(t, mb.Send(ctx, testMessage("b")))
		require.NoError(t, mb.Send(ctx, testMessage("c")))

		assert.Equal(t, 2, mb.Len())
		first, _ := mb.TryReceive()
		second, _ := mb.TryReceive()
		assert.Equal(t, "b", first.Content)
		assert.Equal(t, "c", second.Content)
	})

	t.Run("BlockSender suspends until space frees up", func(t *testing.T) {
		mb := NewMailbox(WithCapacity(1), WithOverflowPolicy(BlockSender))
		ctx := context.Background()

		require.NoError(t, mb.Send(ctx, testMessage("first")))

		sent := make(chan error, 1)
		go func() {
			sent <- mb.Send(ctx, testMessage("second"))
		}()

		time.Sleep(20 * time.Millisecond)
		select {
		case <-sent:
			t.Fatal("send completed while mailbox was full")
		default:
		}

		msg, err := mb.Receive(ctx)
		require.NoError(t, err)
		assert.Equal(t, "first", msg.Content)

		select {
		case err := <-sent:
			assert.NoError(t, err)
		case <-time.After(2 * time.Second):
			t.Fatal("blocked sender was not released")
		}

		msg, err = mb.Receive(ctx)
		require.NoError(t, err)
		assert.Equal(t, "second", msg.Content)
	})

	t.Run("BlockSender releases every suspended sender once space frees up", func(t *testing.T) {
		mb := NewMailbox(WithCapacity(2), WithOverflowPolicy(BlockSender))
		ctx := context.Background()

		require.NoError(t, mb.Send(ctx, testMessage("a")))
		require.NoError(t, mb.Send(ctx, testMessage("b")))

		sent := make(chan error, 2)
		for i := 0; i < 2; i++ {
			go func() {
				sent <- mb.Send(ctx, testMessage("queued"))
			}()
		}

		time.Sleep(20 * time.Millisecond)
		select {
		case <-sent:
			t.Fatal("send completed while mailbox was full")
		default:
		}

		// Drain frees both slots at once; the wakeup must reach both
		// suspended senders, not just the first one to grab the token.
		require.Len(t, mb.Drain(), 2)

		for i := 0; i < 2; i++ {
			select {
			case err := <-sent:
				assert.NoError(t, err)
			case <-time.After(2 * time.Second):
				t.Fatalf("only %d of 2 suspended senders resumed", i)
			}
		}
		assert.Equal(t, 2, mb.Len())
	})

	t.Run("BlockSender honors sender context", func(t *testing.T) {
		mb := NewMailbox(WithCapacity(1), WithOverflowPolicy(BlockSender))
		require.NoError(t, mb.Send(context.Background(), testMessage("full")))

		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()

		err := mb.Send(ctx, testMessage("blocked"))

		assert.ErrorIs(t, err, context.DeadlineExceeded)
		assert.Equal(t, 1, mb.Len())
	})
}

func TestMailboxLifecycle(t *testing.T) {
	t.Run("Drain returns queued messages in order", func(t *testing.T) {
		mb := NewMailbox()
		ctx := context.Background()
		require.NoError(t, mb.Send(ctx, testMessage("a")))
		require.NoError(t, mb.Send(ctx, testMessage("b")))

		drained := mb.Drain()

		require.Len(t, drained, 2)
		assert.Equal(t, "a", drained[0].Content)
		assert.Equal(t, "b", drained[1].Content)
		assert.True(t, mb.IsEmpty())
	})

	t.Run("send after Close fails", func(t *testing.T) {
		mb := NewMailbox()
		mb.Close()

		err := mb.Send(context.Background(), testMessage("late"))

		assert.ErrorIs(t, err, contracts.ErrMailboxClosed)
		assert.True(t, mb.IsClosed())
	})

	t.Run("Close releases a suspended receiver", func(t *testing.T) {
		mb := NewMailbox()

		errCh := make(chan error, 1)
		go func() {
			_, err := mb.Receive(context.Background())
			errCh <- err
		}()

		time.Sleep(20 * time.Millisecond)
		mb.Close()

		select {
		case err := <-errCh:
			assert.ErrorIs(t, err, contracts.ErrMailboxClosed)
		case <-time.After(2 * time.Second):
			t.Fatal("receiver was not released by Close")
		}
	})

	t.Run("buffered messages remain receivable after Close", func(t *testing.T) {
		mb := NewMailbox()
		ctx := context.Background()
		require.NoError(t, mb.Send(ctx, testMessage("kept")))
		mb.Close()

		msg, err := mb.Receive(ctx)
		require.NoError(t, err)
		assert.Equal(t, "kept", msg.Content)

		_, err = mb.Receive(ctx)
		assert.ErrorIs(t, err, contracts.ErrMailboxClosed)
	})

	t.Run("Close is idempotent", func(t *testing.T) {
		mb := NewMailbox()
		mb.Close()
		mb.Close()
		assert.True(t, mb.IsClosed())
	})
}
