// Package partition builds index sets of simple partitioned problems.
package partition

import (
	"fmt"
	"slices"

	"github.com/spacemeshos/go-parindex/common/types"
	"github.com/spacemeshos/go-parindex/indexset"
)

// Line describes entities on a line split into equal consecutive blocks, one per rank.
// Every rank owns its block and holds overlap copies of the adjacent entities of each neighbour.
// A periodic line wraps around, so the first and the last rank are neighbours too.
type Line struct {
	Size     int
	PerRank  int
	Overlap  int
	Periodic bool
}

// Validate checks that copies only come from direct neighbours.
func (l Line) Validate() error {
	if l.Size < 1 || l.PerRank < 1 || l.Overlap < 0 {
		return fmt.Errorf("invalid line %+v", l)
	}
	if l.Overlap > l.PerRank {
		return fmt.Errorf("overlap %d exceeds block size %d", l.Overlap, l.PerRank)
	}
	return nil
}

// First returns the first global index owned by rank.
func (l Line) First(rank int) types.GlobalIndex {
	return types.GlobalIndex(rank * l.PerRank)
}

// Owner returns the rank that owns global.
func (l Line) Owner(global types.GlobalIndex) int {
	return int(global) / l.PerRank
}

// Globals returns the global indices held by rank in ascending order.
func (l Line) Globals(rank int) []types.GlobalIndex {
	total := l.Size * l.PerRank
	lo, hi := rank*l.PerRank-l.Overlap, (rank+1)*l.PerRank+l.Overlap
	if !l.Periodic {
		lo, hi = max(0, lo), min(total, hi)
	}
	out := make([]types.GlobalIndex, 0, hi-lo)
	for g := lo; g < hi; g++ {
		out = append(out, types.GlobalIndex((g%total+total)%total))
	}
	slices.Sort(out)
	return slices.Compact(out)
}

// Neighbours returns the ranks whose blocks are adjacent to the block of rank.
func (l Line) Neighbours(rank int) []int {
	var out []int
	if rank > 0 || l.Periodic {
		out = append(out, (rank+l.Size-1)%l.Size)
	}
	if rank < l.Size-1 || l.Periodic {
		out = append(out, (rank+1)%l.Size)
	}
	slices.Sort(out)
	out = slices.Compact(out)
	return slices.DeleteFunc(out, func(r int) bool { return r == rank })
}

// Shared reports whether global is held by more than one rank.
func (l Line) Shared(global types.GlobalIndex) bool {
	off := int(global) % l.PerRank
	owner := l.Owner(global)
	if l.Periodic {
		return l.Size > 1 && (off < l.Overlap || off >= l.PerRank-l.Overlap)
	}
	return (owner > 0 && off < l.Overlap) || (owner < l.Size-1 && off >= l.PerRank-l.Overlap)
}

// Attribute returns the attribute of global on rank.
func (l Line) Attribute(rank int, global types.GlobalIndex) types.Attribute {
	if l.Owner(global) == rank {
		return types.Owner
	}
	return types.Overlap
}

// Build creates the index set of rank with local slots numbered in ascending global order.
// Only shared entities are public.
func (l Line) Build(rank int) (*indexset.IndexSet, error) {
	if err := l.Validate(); err != nil {
		return nil, err
	}
	s := indexset.New()
	if err := s.BeginResize(); err != nil {
		return nil, err
	}
	for i, g := range l.Globals(rank) {
		local := indexset.NewLocalIndex(uint32(i), l.Attribute(rank, g), l.Shared(g))
		if err := s.AddLocal(g, local); err != nil {
			return nil, err
		}
	}
	if err := s.EndResize(); err != nil {
		return nil, err
	}
	return s, nil
}
