package indexset_test

import (
	"slices"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/spacemeshos/go-parindex/common/types"
	"github.com/spacemeshos/go-parindex/indexset"
)

func attributed(t *testing.T) *indexset.IndexSet {
	s := indexset.New()
	require.NoError(t, s.BeginResize())
	attrs := []types.Attribute{types.Owner, types.Copy, types.Owner, types.Overlap, types.Copy}
	for i, a := range attrs {
		require.NoError(t, s.AddLocal(types.GlobalIndex(100+i), indexset.NewLocalIndex(uint32(4-i), a, true)))
	}
	require.NoError(t, s.EndResize())
	return s
}

func TestSelection(t *testing.T) {
	s := attributed(t)
	sel := indexset.NewSelection(s, types.NewAttributeSet(types.Owner, types.Overlap))
	require.True(t, sel.IsSynced())
	require.Equal(t, 3, sel.Len())
	require.Equal(t, []uint32{1, 2, 4}, slices.Collect(sel.All()))
	require.True(t, sel.Contains(2))
	require.False(t, sel.Contains(3))
	require.Equal(t, []uint32{4, 2, 1}, slices.Collect(indexset.UncachedSelection(s, types.NewAttributeSet(types.Owner, types.Overlap))))

	require.NoError(t, s.BeginResize())
	require.NoError(t, s.Remove(100))
	require.NoError(t, s.EndResize())
	require.False(t, sel.IsSynced())
	sel.Rebuild()
	require.Equal(t, []uint32{1, 2}, slices.Collect(sel.All()))
}

func TestGlobalLookup(t *testing.T) {
	s := attributed(t)
	g, err := indexset.NewGlobalLookup(s)
	require.NoError(t, err)
	require.Equal(t, 5, g.Size())
	p, ok := g.Pair(0)
	require.True(t, ok)
	require.EqualValues(t, 104, p.Global)
	_, ok = g.Pair(5)
	require.False(t, ok)
	p, err = g.At(101)
	require.NoError(t, err)
	require.EqualValues(t, 3, p.Local.Local)
	require.True(t, g.IsSynced())

	require.NoError(t, s.BeginResize())
	_, err = indexset.NewGlobalLookup(s)
	require.ErrorIs(t, err, indexset.ErrInvalidState)
	require.NoError(t, s.EndResize())
	require.False(t, g.IsSynced())
}
