package remoteindices

import (
	"iter"

	"github.com/spacemeshos/go-parindex/common/types"
)

type cursor struct {
	rank    int
	entries []RemoteIndex
	pos     int
}

func (c *cursor) done() bool { return c.pos >= len(c.entries) }

// CollectiveIterator walks the lists of all ranks in parallel by global index.
type CollectiveIterator struct {
	cursors []*cursor
	global  types.GlobalIndex
}

// Iterator returns a collective iterator over the send or the receive lists.
func (ri *RemoteIndices) Iterator(send bool) *CollectiveIterator {
	it := &CollectiveIterator{}
	for _, rank := range ri.Ranks() {
		l := ri.lists[rank]
		list := l.Receive
		if send {
			list = l.Send
		}
		it.cursors = append(it.cursors, &cursor{rank: rank, entries: list.Entries()})
	}
	return it
}

// Advance moves every list to its first entry not below global.
func (it *CollectiveIterator) Advance(global types.GlobalIndex) {
	it.global = global
	for _, c := range it.cursors {
		for !c.done() && c.entries[c.pos].Global < global {
			c.pos++
		}
	}
}

// Entries yields the rank and remote index of every list positioned at the global index
// of the last Advance, in ascending rank order.
func (it *CollectiveIterator) Entries() iter.Seq2[int, RemoteIndex] {
	return func(yield func(int, RemoteIndex) bool) {
		for _, c := range it.cursors {
			if c.done() || c.entries[c.pos].Global != it.global {
				continue
			}
			if !yield(c.rank, c.entries[c.pos]) {
				return
			}
		}
	}
}

// Empty reports whether all lists are exhausted.
func (it *CollectiveIterator) Empty() bool {
	for _, c := range it.cursors {
		if !c.done() {
			return false
		}
	}
	return true
}
