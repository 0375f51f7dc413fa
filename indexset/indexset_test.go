package indexset_test

import (
	"slices"
	"testing"

	fuzz "github.com/google/gofuzz"
	"github.com/stretchr/testify/require"

	"github.com/spacemeshos/go-parindex/common/types"
	"github.com/spacemeshos/go-parindex/indexset"
)

func build(t *testing.T, globals ...types.GlobalIndex) *indexset.IndexSet {
	t.Helper()
	s := indexset.New()
	require.NoError(t, s.BeginResize())
	for i, g := range globals {
		require.NoError(t, s.AddLocal(g, indexset.NewLocalIndex(uint32(i), types.Owner, i%2 == 0)))
	}
	require.NoError(t, s.EndResize())
	return s
}

func globalsOf(s *indexset.IndexSet) []types.GlobalIndex {
	var out []types.GlobalIndex
	for p := range s.All() {
		out = append(out, p.Global)
	}
	return out
}

func TestLifecycle(t *testing.T) {
	s := indexset.New()
	require.Equal(t, indexset.Ground, s.State())
	require.Zero(t, s.SeqNo())
	require.NoError(t, s.BeginResize())
	require.ErrorIs(t, s.BeginResize(), indexset.ErrInvalidState)
	require.Equal(t, indexset.Resize, s.State())
	require.NoError(t, s.EndResize())
	require.ErrorIs(t, s.EndResize(), indexset.ErrInvalidState)
	require.EqualValues(t, 1, s.SeqNo())
}

func TestAddInGroundFails(t *testing.T) {
	s := build(t, 1, 2, 3)
	seq := s.SeqNo()
	require.ErrorIs(t, s.Add(4), indexset.ErrInvalidState)
	require.ErrorIs(t, s.Remove(1), indexset.ErrInvalidState)
	require.Equal(t, seq, s.SeqNo())
	require.Equal(t, []types.GlobalIndex{1, 2, 3}, globalsOf(s))
}

func TestEndResizeSortsAndMerges(t *testing.T) {
	s := build(t, 10, 3, 7)
	require.Equal(t, []types.GlobalIndex{3, 7, 10}, globalsOf(s))
	require.Equal(t, 2, s.NoPublic())

	require.NoError(t, s.BeginResize())
	require.NoError(t, s.Remove(7))
	require.NoError(t, s.AddLocal(5, indexset.NewLocalIndex(9, types.Copy, true)))
	require.NoError(t, s.Add(12))
	// removed pairs stay visible until the epoch ends
	p, err := s.At(7)
	require.NoError(t, err)
	require.Equal(t, indexset.Deleted, p.Local.State)
	_, err = s.At(5)
	require.ErrorIs(t, err, indexset.ErrNotFound)
	require.NoError(t, s.EndResize())

	require.Equal(t, []types.GlobalIndex{3, 5, 10, 12}, globalsOf(s))
	require.EqualValues(t, 2, s.SeqNo())
	p, err = s.At(5)
	require.NoError(t, err)
	require.Equal(t, indexset.NewLocalIndex(9, types.Copy, true), p.Local)
	_, err = s.At(7)
	require.ErrorIs(t, err, indexset.ErrNotFound)
}

func TestDuplicates(t *testing.T) {
	s := build(t, 1, 2)
	require.NoError(t, s.BeginResize())
	require.ErrorIs(t, s.Add(2), indexset.ErrDuplicate)
	require.NoError(t, s.Add(3))
	require.ErrorIs(t, s.Add(3), indexset.ErrDuplicate)
	require.NoError(t, s.Remove(2))
	require.NoError(t, s.Add(2), "re-adding a removed index is allowed")
	require.NoError(t, s.Remove(3))
	require.ErrorIs(t, s.Remove(3), indexset.ErrNotFound)
	require.ErrorIs(t, s.Remove(42), indexset.ErrNotFound)
	require.NoError(t, s.EndResize())
	require.Equal(t, []types.GlobalIndex{1, 2}, globalsOf(s))
}

func TestLookupModifiesInPlace(t *testing.T) {
	s := build(t, 4, 8)
	p, ok := s.Lookup(8)
	require.True(t, ok)
	p.Local.Attribute = types.Overlap
	got, err := s.At(8)
	require.NoError(t, err)
	require.Equal(t, types.Overlap, got.Local.Attribute)
	_, ok = s.Lookup(5)
	require.False(t, ok)
	require.True(t, s.Contains(4))
	require.False(t, s.Contains(5))
}

func TestRenumberLocal(t *testing.T) {
	s := build(t, 30, 10, 20)
	require.NoError(t, s.RenumberLocal())
	for i, p := range s.Pairs() {
		require.EqualValues(t, i, p.Local.Local)
	}
	require.NoError(t, s.BeginResize())
	require.ErrorIs(t, s.RenumberLocal(), indexset.ErrInvalidState)
}

func TestString(t *testing.T) {
	s := build(t, 2, 1)
	require.Equal(t, "{{global=1, local=1} {global=2, local=0}}", s.String())
}

// TestRandomOperations checks that any legal sequence of additions and removals
// leaves the set strictly ascending and renumberable to [0, n).
func TestRandomOperations(t *testing.T) {
	for seed := int64(0); seed < 20; seed++ {
		f := fuzz.NewWithSeed(seed).NilChance(0).NumElements(1, 64)
		s := indexset.New()
		model := map[types.GlobalIndex]bool{}
		for epoch := 0; epoch < 5; epoch++ {
			var ops []uint8
			f.Fuzz(&ops)
			require.NoError(t, s.BeginResize())
			for _, op := range ops {
				g := types.GlobalIndex(op % 32)
				if op >= 128 {
					err := s.Remove(g)
					if model[g] {
						require.NoError(t, err)
						delete(model, g)
					} else {
						require.ErrorIs(t, err, indexset.ErrNotFound)
					}
					continue
				}
				err := s.Add(g)
				if model[g] {
					require.ErrorIs(t, err, indexset.ErrDuplicate)
				} else {
					require.NoError(t, err)
					model[g] = true
				}
			}
			require.NoError(t, s.EndResize())

			globals := globalsOf(s)
			require.True(t, slices.IsSorted(globals))
			require.Len(t, slices.Compact(slices.Clone(globals)), len(globals))
			require.Len(t, globals, len(model))
			for _, g := range globals {
				require.True(t, model[g])
			}
			require.NoError(t, s.RenumberLocal())
			for i, p := range s.Pairs() {
				require.EqualValues(t, i, p.Local.Local)
			}
		}
	}
}
