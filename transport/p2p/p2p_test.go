package p2p_test

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/libp2p/go-libp2p/core/peer"
	mocknet "github.com/libp2p/go-libp2p/p2p/net/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"golang.org/x/sync/errgroup"

	"github.com/spacemeshos/go-parindex/transport"
	"github.com/spacemeshos/go-parindex/transport/p2p"
)

func newMesh(t *testing.T, n int, cfg p2p.Config) []*p2p.Transport {
	mesh, err := mocknet.FullMeshConnected(n)
	require.NoError(t, err)
	t.Cleanup(func() { mesh.Close() })
	ids := make([]peer.ID, n)
	for i, h := range mesh.Hosts() {
		ids[i] = h.ID()
	}
	var out []*p2p.Transport
	for _, h := range mesh.Hosts() {
		tr, err := p2p.New(h, ids, p2p.WithLog(zaptest.NewLogger(t)), p2p.WithConfig(cfg))
		require.NoError(t, err)
		t.Cleanup(func() { tr.Close() })
		out = append(out, tr)
	}
	return out
}

func TestSendRecv(t *testing.T) {
	cfg := p2p.DefaultConfig()
	cfg.CompressThreshold = 64
	trs := newMesh(t, 3, cfg)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	for i, tr := range trs {
		require.Equal(t, i, tr.Rank())
		require.Equal(t, 3, tr.Size())
	}

	small := []byte("small")
	large := bytes.Repeat([]byte("compressible"), 100)
	require.NoError(t, trs[0].Send(ctx, 2, transport.TagSyncer, small))
	require.NoError(t, trs[0].Send(ctx, 2, transport.TagSyncer, large))
	require.NoError(t, trs[1].Send(ctx, 1, transport.TagOrder, small))

	got, err := trs[2].Recv(ctx, 0, transport.TagSyncer)
	require.NoError(t, err)
	require.Equal(t, small, got)
	got, err = trs[2].Recv(ctx, 0, transport.TagSyncer)
	require.NoError(t, err)
	require.Equal(t, large, got)

	from, got, err := trs[1].RecvAny(ctx, transport.TagOrder)
	require.NoError(t, err)
	require.Equal(t, 1, from)
	require.Equal(t, small, got)
}

func TestMessageLimit(t *testing.T) {
	cfg := p2p.DefaultConfig()
	cfg.MaxMessageSize = 16
	cfg.Compression = false
	trs := newMesh(t, 2, cfg)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.Error(t, trs[0].Send(ctx, 1, transport.TagSyncer, make([]byte, 17)))
}

func TestCollectives(t *testing.T) {
	const n = 4
	trs := newMesh(t, n, p2p.DefaultConfig())
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()
	results := make([]int64, n)
	var eg errgroup.Group
	for _, tr := range trs {
		eg.Go(func() error {
			res, err := transport.AllReduce(ctx, tr, int64(tr.Rank()), transport.OpMax)
			results[tr.Rank()] = res
			if err != nil {
				return err
			}
			return transport.Agree(ctx, tr, nil)
		})
	}
	require.NoError(t, eg.Wait())
	for _, res := range results {
		require.EqualValues(t, n-1, res)
	}
}

func TestUnknownHost(t *testing.T) {
	mesh, err := mocknet.FullMeshConnected(2)
	require.NoError(t, err)
	t.Cleanup(func() { mesh.Close() })
	_, err = p2p.New(mesh.Hosts()[0], []peer.ID{mesh.Hosts()[1].ID()})
	require.Error(t, err)
}
