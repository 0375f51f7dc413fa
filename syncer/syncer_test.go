package syncer_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/spacemeshos/go-parindex/common/types"
	"github.com/spacemeshos/go-parindex/indexset"
	"github.com/spacemeshos/go-parindex/internal/partition"
	"github.com/spacemeshos/go-parindex/log/logtest"
	"github.com/spacemeshos/go-parindex/remoteindices"
	"github.com/spacemeshos/go-parindex/syncer"
	"github.com/spacemeshos/go-parindex/transport"
	"github.com/spacemeshos/go-parindex/transport/memory"
)

type result struct {
	set    *indexset.IndexSet
	synced *remoteindices.RemoteIndices
	full   *remoteindices.RemoteIndices
}

func adjacent(line partition.Line, rank int) []remoteindices.Opt {
	return []remoteindices.Opt{remoteindices.WithNeighbours(line.Neighbours(rank)...)}
}

// syncLine builds remote indices for line, lets prepare modify the set of each rank,
// syncs and finally rebuilds the remote indices from scratch for comparison.
func syncLine(
	t *testing.T,
	line partition.Line,
	opts func(rank int) []remoteindices.Opt,
	prepare func(rank int, set *indexset.IndexSet) error,
	numbered bool,
) ([]result, []error) {
	t.Helper()
	out := make([]result, line.Size)
	errs := memory.Run(context.Background(), line.Size, func(ctx context.Context, tr transport.Transport) error {
		rank := tr.Rank()
		set, err := line.Build(rank)
		if err != nil {
			return err
		}
		var o []remoteindices.Opt
		if opts != nil {
			o = opts(rank)
		}
		ri := remoteindices.New(set, set, tr, o...)
		out[rank].set = set
		out[rank].synced = ri
		if err := ri.Rebuild(ctx); err != nil {
			return err
		}
		if prepare != nil {
			if err := prepare(rank, set); err != nil {
				return err
			}
		}
		s, err := syncer.New(set, ri, syncer.WithLogger(logtest.New(t).Named(fmt.Sprint(rank))))
		if err != nil {
			return err
		}
		if numbered {
			err = s.SyncWith(ctx, syncer.NextFree(set))
		} else {
			err = s.Sync(ctx)
		}
		if err != nil {
			return err
		}
		full := remoteindices.New(set, set, tr)
		out[rank].full = full
		return full.Rebuild(ctx)
	})
	return out, errs
}

func TestDiscoversNeighbours(t *testing.T) {
	line := partition.Line{Size: 4, PerRank: 1, Overlap: 1}
	results, errs := syncLine(t, line, func(rank int) []remoteindices.Opt { return adjacent(line, rank) }, nil, false)
	for rank, err := range errs {
		require.NoError(t, err, "rank %d", rank)
	}
	require.Equal(t, []int{1, 2}, results[0].synced.Ranks())
	require.Equal(t, []int{0, 2, 3}, results[1].synced.Ranks())
	for rank, r := range results {
		require.True(t, r.synced.IsSynced(), "rank %d", rank)
		require.True(t, r.synced.Equal(r.full), "rank %d:\n%v\nwant:\n%v", rank, r.synced, r.full)
	}
}

func TestSharedByThree(t *testing.T) {
	line := partition.Line{Size: 3, PerRank: 1, Overlap: 1}
	results, errs := syncLine(t, line, func(rank int) []remoteindices.Opt { return adjacent(line, rank) }, nil, false)
	for rank, err := range errs {
		require.NoError(t, err, "rank %d", rank)
	}
	for rank, r := range results {
		holders := 0
		for _, other := range r.synced.Ranks() {
			l, _ := r.synced.Lists(other)
			for _, e := range l.Send.Entries() {
				if e.Global == 1 {
					holders++
					require.Equal(t, line.Attribute(other, 1), e.Attribute)
				}
			}
		}
		require.Equal(t, 2, holders, "rank %d", rank)
	}
	for a := range results {
		for b := range results {
			if a == b {
				continue
			}
			la, _ := results[a].synced.Lists(b)
			lb, _ := results[b].synced.Lists(a)
			require.Equal(t, globals(la.Send.Entries()), globals(lb.Send.Entries()), "ranks %d and %d", a, b)
		}
	}
}

func TestRingOfThree(t *testing.T) {
	line := partition.Line{Size: 3, PerRank: 1, Overlap: 1, Periodic: true}
	results, errs := syncLine(t, line, func(rank int) []remoteindices.Opt { return adjacent(line, rank) }, nil, false)
	for rank, err := range errs {
		require.NoError(t, err, "rank %d", rank)
	}
	for rank, r := range results {
		require.ElementsMatch(t, line.Neighbours(rank), r.synced.NeighbourSet().ToSlice())
		for _, g := range line.Globals(rank) {
			var holders []int
			for _, other := range r.synced.Ranks() {
				l, _ := r.synced.Lists(other)
				for _, e := range l.Send.Entries() {
					if e.Global == g {
						holders = append(holders, other)
						require.Equal(t, line.Attribute(other, g), e.Attribute)
					}
				}
			}
			require.Equal(t, line.Neighbours(rank), holders, "rank %d global %d", rank, g)
		}
		require.True(t, r.synced.Equal(r.full), "rank %d", rank)
	}
}

// Rank 2 is configured next to rank 1 but shares nothing with anyone.
func TestIsolatedRankKeepsNeighbours(t *testing.T) {
	held := map[int][]types.GlobalIndex{0: {0, 1}, 1: {1, 2}, 2: {5}}
	configured := map[int][]int{0: {1}, 1: {0, 2}, 2: {1}}
	ris := make([]*remoteindices.RemoteIndices, len(held))
	errs := memory.Run(context.Background(), len(held), func(ctx context.Context, tr transport.Transport) error {
		rank := tr.Rank()
		set := indexset.New()
		if err := set.BeginResize(); err != nil {
			return err
		}
		for i, g := range held[rank] {
			attr := types.Overlap
			if g%2 == 0 || rank == 0 {
				attr = types.Owner
			}
			if err := set.AddLocal(g, indexset.NewLocalIndex(uint32(i), attr, g == 1)); err != nil {
				return err
			}
		}
		if err := set.EndResize(); err != nil {
			return err
		}
		ri := remoteindices.New(set, set, tr, remoteindices.WithNeighbours(configured[rank]...))
		ris[rank] = ri
		if err := ri.Rebuild(ctx); err != nil {
			return err
		}
		s, err := syncer.New(set, ri, syncer.WithLogger(logtest.New(t).Named(fmt.Sprint(rank))))
		if err != nil {
			return err
		}
		if err := s.Sync(ctx); err != nil {
			return err
		}
		if err := set.BeginResize(); err != nil {
			return err
		}
		if err := set.EndResize(); err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		return ri.Rebuild(ctx)
	})
	for rank, err := range errs {
		require.NoError(t, err, "rank %d", rank)
		require.ElementsMatch(t, configured[rank], ris[rank].NeighbourSet().ToSlice(), "rank %d", rank)
		require.True(t, ris[rank].IsSynced(), "rank %d", rank)
	}
	require.Zero(t, ris[2].Neighbours())
	require.Equal(t, []int{1}, ris[0].Ranks())
}

func globals(entries []remoteindices.RemoteIndex) []types.GlobalIndex {
	var out []types.GlobalIndex
	for _, e := range entries {
		out = append(out, e.Global)
	}
	return out
}

func dropOnFirst(rank int, set *indexset.IndexSet) error {
	if rank != 0 {
		return nil
	}
	if err := set.BeginResize(); err != nil {
		return err
	}
	if err := set.Remove(2); err != nil {
		return err
	}
	return set.EndResize()
}

func TestAddsAnnouncedEntity(t *testing.T) {
	line := partition.Line{Size: 3, PerRank: 2, Overlap: 1}
	results, errs := syncLine(t, line, nil, dropOnFirst, true)
	for rank, err := range errs {
		require.NoError(t, err, "rank %d", rank)
	}
	p, err := results[0].set.At(2)
	require.NoError(t, err)
	require.Equal(t, indexset.NewLocalIndex(2, types.Overlap, true), p.Local)
	for rank, r := range results {
		require.True(t, r.synced.Equal(r.full), "rank %d", rank)
	}
}

func TestMissingSlotFailsTogether(t *testing.T) {
	line := partition.Line{Size: 3, PerRank: 2, Overlap: 1}
	results, errs := syncLine(t, line, nil, dropOnFirst, false)
	for rank, err := range errs {
		require.ErrorIs(t, err, transport.ErrCommunication, "rank %d", rank)
		require.Zero(t, results[rank].synced.Neighbours())
		require.False(t, results[rank].synced.IsSynced())
	}
	require.ErrorIs(t, errs[0], syncer.ErrConsistency)
}

func TestNoNeighbours(t *testing.T) {
	line := partition.Line{Size: 1, PerRank: 4, Overlap: 0}
	results, errs := syncLine(t, line, nil, nil, false)
	require.NoError(t, errs[0])
	require.True(t, results[0].synced.IsSynced())
	require.Zero(t, results[0].synced.Neighbours())
	require.Equal(t, uint64(2), results[0].set.SeqNo())
}

func TestNotSameIndexSet(t *testing.T) {
	a, b := indexset.New(), indexset.New()
	ri := remoteindices.New(a, b, memory.NewWorld(1).Endpoint(0))
	_, err := syncer.New(a, ri)
	require.ErrorIs(t, err, syncer.ErrNotSameIndexSet)
}

func TestSyncDuringResize(t *testing.T) {
	set := indexset.New()
	ri := remoteindices.New(set, set, memory.NewWorld(1).Endpoint(0))
	s, err := syncer.New(set, ri)
	require.NoError(t, err)
	require.NoError(t, set.BeginResize())
	require.ErrorIs(t, s.Sync(context.Background()), indexset.ErrInvalidState)
}

func TestNextFree(t *testing.T) {
	set, err := partition.Line{Size: 1, PerRank: 3}.Build(0)
	require.NoError(t, err)
	next := syncer.NextFree(set)
	for want := uint32(3); want < 6; want++ {
		got, ok := next(types.GlobalIndex(want))
		require.True(t, ok)
		require.Equal(t, want, got)
	}
	_, ok := syncer.NoNumbers(0)
	require.False(t, ok)
}
