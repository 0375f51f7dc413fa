package iface_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/spacemeshos/go-parindex/common/types"
	"github.com/spacemeshos/go-parindex/iface"
	"github.com/spacemeshos/go-parindex/indexset"
	"github.com/spacemeshos/go-parindex/internal/partition"
	"github.com/spacemeshos/go-parindex/log/logtest"
	"github.com/spacemeshos/go-parindex/remoteindices"
	"github.com/spacemeshos/go-parindex/transport"
	"github.com/spacemeshos/go-parindex/transport/memory"
)

var (
	owner   = types.NewAttributeSet(types.Owner)
	overlap = types.NewAttributeSet(types.Overlap)
)

func build(t *testing.T, size int, setFor func(rank int) (*indexset.IndexSet, error)) []*remoteindices.RemoteIndices {
	t.Helper()
	out := make([]*remoteindices.RemoteIndices, size)
	errs := memory.Run(context.Background(), size, func(ctx context.Context, tr transport.Transport) error {
		set, err := setFor(tr.Rank())
		if err != nil {
			return err
		}
		ri := remoteindices.New(set, set, tr)
		out[tr.Rank()] = ri
		return ri.Rebuild(ctx)
	})
	for rank, err := range errs {
		require.NoError(t, err, "rank %d", rank)
	}
	return out
}

func TestBoundaryIndex(t *testing.T) {
	// rank 0 holds 0..5 and owns all of them, rank 1 holds 5..10 with an overlap copy of 5
	ris := build(t, 2, func(rank int) (*indexset.IndexSet, error) {
		set := indexset.New()
		if err := set.BeginResize(); err != nil {
			return nil, err
		}
		for g := rank * 5; g <= rank*5+5; g++ {
			attr := types.Owner
			if rank == 1 && g == 5 {
				attr = types.Overlap
			}
			if err := set.AddLocal(types.GlobalIndex(g), indexset.NewLocalIndex(uint32(g-rank*5), attr, g == 5)); err != nil {
				return nil, err
			}
		}
		return set, set.EndResize()
	})

	first, err := iface.Build(ris[0], owner, overlap, iface.WithLogger(logtest.New(t)))
	require.NoError(t, err)
	require.Equal(t, []int{1}, first.Ranks())
	info, ok := first.Info(1)
	require.True(t, ok)
	require.Equal(t, []uint32{5}, info.Send.Slots)
	require.Equal(t, []types.GlobalIndex{5}, info.Send.Globals)
	require.Zero(t, info.Receive.Len())

	second, err := iface.Build(ris[1], owner, overlap)
	require.NoError(t, err)
	info, ok = second.Info(0)
	require.True(t, ok)
	require.Zero(t, info.Send.Len())
	require.Equal(t, []uint32{0}, info.Receive.Slots)
	require.Equal(t, "send for process 0: []\nreceive for process 0: [0]\n", second.String())
}

func TestMatchingOrder(t *testing.T) {
	line := partition.Line{Size: 4, PerRank: 4, Overlap: 2}
	ris := build(t, line.Size, line.Build)
	ifaces := make([]*iface.Interface, line.Size)
	for rank, ri := range ris {
		i, err := iface.Build(ri, owner, overlap)
		require.NoError(t, err)
		ifaces[rank] = i
	}
	for rank, i := range ifaces {
		for _, peer := range i.Ranks() {
			mine, _ := i.Info(peer)
			theirs, ok := ifaces[peer].Info(rank)
			require.True(t, ok)
			require.Equal(t, mine.Send.Globals, theirs.Receive.Globals, "%d -> %d", rank, peer)
			require.Equal(t, mine.Receive.Globals, theirs.Send.Globals, "%d <- %d", rank, peer)
			require.Equal(t, line.Overlap, mine.Send.Len())
			for _, g := range mine.Send.Globals {
				require.Equal(t, rank, line.Owner(g))
			}
		}
	}
	require.Equal(t, []int{1}, ifaces[0].Ranks())
	require.Equal(t, []int{0, 2}, ifaces[1].Ranks())
}

func TestStripsEmptyNeighbours(t *testing.T) {
	line := partition.Line{Size: 3, PerRank: 2, Overlap: 1}
	ris := build(t, line.Size, line.Build)
	// nothing holds a border copy
	i, err := iface.Build(ris[1], owner, types.NewAttributeSet(types.Border))
	require.NoError(t, err)
	require.Empty(t, i.Ranks())

	all, err := iface.Build(ris[1], types.AllAttributes(), types.AllAttributes())
	require.NoError(t, err)
	require.Equal(t, []int{0, 2}, all.Ranks())
	info, _ := all.Info(0)
	require.Equal(t, []types.GlobalIndex{1, 2}, info.Send.Globals)
	require.Equal(t, info.Send.Globals, info.Receive.Globals)
}

func TestEqualAndFree(t *testing.T) {
	line := partition.Line{Size: 2, PerRank: 3, Overlap: 1}
	ris := build(t, line.Size, line.Build)
	a, err := iface.Build(ris[0], owner, overlap)
	require.NoError(t, err)
	b, err := iface.Build(ris[0], owner, overlap)
	require.NoError(t, err)
	require.True(t, a.Equal(b))
	require.Same(t, ris[0].Transport(), a.Transport())

	b.Free()
	require.Empty(t, b.Ranks())
	require.False(t, a.Equal(b))
}

func TestNotSynced(t *testing.T) {
	set := indexset.New()
	ri := remoteindices.New(set, set, memory.NewWorld(1).Endpoint(0))
	_, err := iface.Build(ri, owner, overlap)
	require.ErrorIs(t, err, iface.ErrRemoteIndicesNotSynced)
}
