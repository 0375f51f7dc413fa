package transport_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/spacemeshos/go-parindex/transport"
)

func TestMailboxOrdering(t *testing.T) {
	m := transport.NewMailbox()
	m.Put(1, transport.TagSyncer, []byte("a"))
	m.Put(2, transport.TagSyncer, []byte("b"))
	m.Put(1, transport.TagSyncer, []byte("c"))
	m.Put(1, transport.TagOrder, []byte("d"))
	require.Equal(t, 3, m.Pending(transport.TagSyncer))

	ctx := context.Background()
	from, msg, err := m.Get(ctx, 1, transport.TagSyncer)
	require.NoError(t, err)
	require.Equal(t, 1, from)
	require.Equal(t, []byte("a"), msg)

	_, msg, err = m.Get(ctx, 1, transport.TagSyncer)
	require.NoError(t, err)
	require.Equal(t, []byte("c"), msg)

	from, msg, err = m.Get(ctx, transport.AnySource, transport.TagSyncer)
	require.NoError(t, err)
	require.Equal(t, 2, from)
	require.Equal(t, []byte("b"), msg)

	_, msg, err = m.Get(ctx, transport.AnySource, transport.TagOrder)
	require.NoError(t, err)
	require.Equal(t, []byte("d"), msg)
}

func TestMailboxBlocking(t *testing.T) {
	m := transport.NewMailbox()
	got := make(chan []byte, 1)
	go func() {
		_, msg, err := m.Get(context.Background(), 3, transport.TagCommunicator)
		if err == nil {
			got <- msg
		}
	}()
	time.Sleep(10 * time.Millisecond)
	m.Put(2, transport.TagCommunicator, []byte("wrong source"))
	m.Put(3, transport.TagCommunicator, []byte("ok"))
	select {
	case msg := <-got:
		require.Equal(t, []byte("ok"), msg)
	case <-time.After(5 * time.Second):
		require.FailNow(t, "timed out waiting for a message")
	}
}

func TestMailboxContext(t *testing.T) {
	m := transport.NewMailbox()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, _, err := m.Get(ctx, 0, transport.TagSyncer)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestMailboxClose(t *testing.T) {
	m := transport.NewMailbox()
	m.Put(0, transport.TagSyncer, []byte("queued"))
	cause := errors.New("peer failed")
	m.Close(cause)
	m.Put(0, transport.TagSyncer, []byte("dropped"))

	_, msg, err := m.Get(context.Background(), 0, transport.TagSyncer)
	require.NoError(t, err)
	require.Equal(t, []byte("queued"), msg)

	_, _, err = m.Get(context.Background(), 0, transport.TagSyncer)
	require.ErrorIs(t, err, transport.ErrClosed)
	require.ErrorIs(t, err, cause)
}
