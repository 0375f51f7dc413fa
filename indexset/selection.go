package indexset

import (
	"iter"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/spacemeshos/go-parindex/common/types"
)

// Selection is the set of local slots whose attribute belongs to a predicate.
type Selection struct {
	set   *IndexSet
	attrs types.AttributeSet
	seqNo uint64
	slots *roaring.Bitmap
}

// NewSelection selects the slots of set with an attribute in attrs.
func NewSelection(set *IndexSet, attrs types.AttributeSet) *Selection {
	s := &Selection{set: set, attrs: attrs}
	s.Rebuild()
	return s
}

// Rebuild recomputes the selection from the current state of the index set.
func (s *Selection) Rebuild() {
	s.slots = roaring.New()
	for slot := range UncachedSelection(s.set, s.attrs) {
		s.slots.Add(slot)
	}
	s.slots.RunOptimize()
	s.seqNo = s.set.SeqNo()
}

// Slots returns the selected slots.
func (s *Selection) Slots() *roaring.Bitmap { return s.slots }

// Contains reports whether slot is selected.
func (s *Selection) Contains(slot uint32) bool { return s.slots.Contains(slot) }

// Len returns the number of selected slots.
func (s *Selection) Len() int { return int(s.slots.GetCardinality()) }

// All iterates over selected slots in ascending order.
func (s *Selection) All() iter.Seq[uint32] {
	return func(yield func(uint32) bool) {
		it := s.slots.Iterator()
		for it.HasNext() {
			if !yield(it.Next()) {
				return
			}
		}
	}
}

// IsSynced reports whether the index set was not resized since the selection was built.
func (s *Selection) IsSynced() bool { return s.seqNo == s.set.SeqNo() }

// UncachedSelection yields the selected slots in ascending global order without storing them.
func UncachedSelection(set *IndexSet, attrs types.AttributeSet) iter.Seq[uint32] {
	return func(yield func(uint32) bool) {
		for _, p := range set.pairs {
			if attrs.Contains(p.Local.Attribute) && !yield(p.Local.Local) {
				return
			}
		}
	}
}
