package remoteindices

import (
	"github.com/spacemeshos/go-parindex/common/types"
	"github.com/spacemeshos/go-parindex/indexset"
)

// LocalCopy pairs the slots of an entity present in both the source and the destination set.
type LocalCopy struct {
	Global types.GlobalIndex
	Source indexset.LocalIndex
	Dest   indexset.LocalIndex
}

// LocalCopies returns the entities held by both sets in ascending global order.
// It is empty when source and destination are the same set.
func (ri *RemoteIndices) LocalCopies() []LocalCopy {
	return ri.copies
}

// correspond merges both ascending pair sequences.
func correspond(source, dest []indexset.IndexPair) []LocalCopy {
	var out []LocalCopy
	i, j := 0, 0
	for i < len(source) && j < len(dest) {
		switch c := source[i].Global.Compare(dest[j].Global); {
		case c < 0:
			i++
		case c > 0:
			j++
		default:
			out = append(out, LocalCopy{Global: source[i].Global, Source: source[i].Local, Dest: dest[j].Local})
			i++
			j++
		}
	}
	return out
}
