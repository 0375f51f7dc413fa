package memory_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/spacemeshos/go-parindex/log/logtest"
	"github.com/spacemeshos/go-parindex/transport"
	"github.com/spacemeshos/go-parindex/transport/memory"
)

func TestEndpoint(t *testing.T) {
	w := memory.NewWorld(3, memory.WithLogger(logtest.New(t)))
	require.Equal(t, 3, w.Size())
	a, b := w.Endpoint(0), w.Endpoint(2)
	require.Equal(t, 2, b.Rank())
	require.Equal(t, 3, b.Size())

	ctx := context.Background()
	msg := []byte("payload")
	require.NoError(t, a.Send(ctx, 2, transport.TagSyncer, msg))
	msg[0] = 'X'
	got, err := b.Recv(ctx, 0, transport.TagSyncer)
	require.NoError(t, err)
	require.Equal(t, []byte("payload"), got, "sent buffer must be copied")

	require.NoError(t, a.Send(ctx, 2, transport.TagOrder, []byte("any")))
	from, got, err := b.RecvAny(ctx, transport.TagOrder)
	require.NoError(t, err)
	require.Equal(t, 0, from)
	require.Equal(t, []byte("any"), got)

	require.ErrorIs(t, a.Send(ctx, 3, transport.TagSyncer, nil), transport.ErrInvalidRank)
	_, err = a.Recv(ctx, -1, transport.TagSyncer)
	require.ErrorIs(t, err, transport.ErrInvalidRank)

	require.NoError(t, b.Close())
	_, err = b.Recv(ctx, 0, transport.TagSyncer)
	require.ErrorIs(t, err, transport.ErrClosed)
}

func TestSendHookAborts(t *testing.T) {
	injected := errors.New("injected")
	w := memory.NewWorld(2, memory.WithSendHook(func(from, to int, tag transport.Tag, _ []byte) error {
		if tag == transport.TagDatatype {
			return injected
		}
		return nil
	}))
	ctx := context.Background()
	require.NoError(t, w.Endpoint(0).Send(ctx, 1, transport.TagSyncer, []byte{1}))
	require.ErrorIs(t, w.Endpoint(0).Send(ctx, 1, transport.TagDatatype, []byte{2}), injected)

	got, err := w.Endpoint(1).Recv(ctx, 0, transport.TagSyncer)
	require.NoError(t, err)
	require.Equal(t, []byte{1}, got)
	_, err = w.Endpoint(1).Recv(ctx, 0, transport.TagDatatype)
	require.ErrorIs(t, err, transport.ErrClosed)
	require.ErrorIs(t, err, injected)
}

func TestRun(t *testing.T) {
	failure := errors.New("rank failed")
	errs := memory.Run(context.Background(), 3, func(ctx context.Context, tr transport.Transport) error {
		if tr.Rank() == 0 {
			return failure
		}
		// blocks until the world is aborted
		_, err := tr.Recv(ctx, 0, transport.TagSyncer)
		return err
	})
	require.ErrorIs(t, errs[0], failure)
	require.ErrorIs(t, errs[1], transport.ErrClosed)
	require.ErrorIs(t, errs[2], transport.ErrClosed)
}
