package indexset

import (
	"fmt"

	"github.com/spacemeshos/go-parindex/common/types"
)

// GlobalLookup resolves local slots back to index pairs.
type GlobalLookup struct {
	set     *IndexSet
	seqNo   uint64
	byLocal []int
}

// NewGlobalLookup builds the reverse mapping of set, which must be in Ground state.
func NewGlobalLookup(set *IndexSet) (*GlobalLookup, error) {
	if set.State() != Ground {
		return nil, fmt.Errorf("%w: global lookup needs ground state", ErrInvalidState)
	}
	size := 0
	for _, p := range set.pairs {
		size = max(size, int(p.Local.Local)+1)
	}
	g := &GlobalLookup{set: set, seqNo: set.SeqNo(), byLocal: make([]int, size)}
	for i := range g.byLocal {
		g.byLocal[i] = -1
	}
	for i, p := range set.pairs {
		g.byLocal[p.Local.Local] = i
	}
	return g, nil
}

// Pair returns the pair stored at local slot.
func (g *GlobalLookup) Pair(local uint32) (IndexPair, bool) {
	if int(local) >= len(g.byLocal) || g.byLocal[local] < 0 {
		return IndexPair{}, false
	}
	return g.set.pairs[g.byLocal[local]], true
}

// At forwards to the underlying index set.
func (g *GlobalLookup) At(global types.GlobalIndex) (IndexPair, error) {
	return g.set.At(global)
}

// Size returns the number of local slots covered by the lookup.
func (g *GlobalLookup) Size() int { return len(g.byLocal) }

// IsSynced reports whether the index set was not resized since the lookup was built.
func (g *GlobalLookup) IsSynced() bool { return g.seqNo == g.set.SeqNo() }
