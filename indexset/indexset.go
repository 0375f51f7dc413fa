// Package indexset implements the per-process mapping between global indices of
// shared entities and local array slots.
//
// The set is modified only between BeginResize and EndResize. Entries added in an
// epoch become visible at EndResize, which also drops removed entries and bumps the
// sequence number that derived structures use to detect staleness.
package indexset

import (
	"errors"
	"fmt"
	"iter"
	"slices"
	"sort"
	"strings"

	"github.com/spacemeshos/go-parindex/common/types"
)

var (
	// ErrInvalidState is returned when an operation is called in the wrong lifecycle state.
	ErrInvalidState = errors.New("invalid index set state")
	// ErrNotFound is returned for global indices that are not in the set.
	ErrNotFound = errors.New("global index not found")
	// ErrDuplicate is returned when a global index is added twice.
	ErrDuplicate = errors.New("duplicate global index")
)

// State is the lifecycle state of an IndexSet.
type State uint8

const (
	// Ground allows lookups and iteration.
	Ground State = iota
	// Resize allows additions and removals.
	Resize
)

func (s State) String() string {
	if s == Resize {
		return "resize"
	}
	return "ground"
}

// IndexSet is the sorted set of index pairs of one process.
type IndexSet struct {
	state    State
	seqNo    uint64
	noPublic int
	pairs    []IndexPair
	added    []IndexPair
	deleted  bool
}

// New creates an empty set in Ground state.
func New() *IndexSet {
	return &IndexSet{}
}

// State returns the lifecycle state.
func (s *IndexSet) State() State { return s.state }

// SeqNo returns the number of completed resize epochs.
func (s *IndexSet) SeqNo() uint64 { return s.seqNo }

// Size returns the number of pairs, not counting the ones added in the current epoch.
func (s *IndexSet) Size() int { return len(s.pairs) }

// NoPublic returns the number of public pairs as of the last EndResize.
func (s *IndexSet) NoPublic() int { return s.noPublic }

// BeginResize opens a resize epoch.
func (s *IndexSet) BeginResize() error {
	if s.state != Ground {
		return fmt.Errorf("%w: begin resize in %s state", ErrInvalidState, s.state)
	}
	s.state = Resize
	s.deleted = false
	return nil
}

// Add adds global with local slot 0, attribute Owner and not public.
func (s *IndexSet) Add(global types.GlobalIndex) error {
	return s.AddLocal(global, LocalIndex{})
}

// AddLocal adds global with the given local index.
// The pair becomes visible after EndResize.
func (s *IndexSet) AddLocal(global types.GlobalIndex, local LocalIndex) error {
	if s.state != Resize {
		return fmt.Errorf("%w: add %d in %s state", ErrInvalidState, global, s.state)
	}
	if p, ok := s.Lookup(global); ok && p.Local.State != Deleted {
		return fmt.Errorf("%w: %d", ErrDuplicate, global)
	}
	if slices.ContainsFunc(s.added, func(p IndexPair) bool { return p.Global == global }) {
		return fmt.Errorf("%w: %d added twice", ErrDuplicate, global)
	}
	local.State = Valid
	s.added = append(s.added, IndexPair{Global: global, Local: local})
	return nil
}

// Remove marks global as deleted. Pairs added in the current epoch are dropped immediately.
func (s *IndexSet) Remove(global types.GlobalIndex) error {
	if s.state != Resize {
		return fmt.Errorf("%w: remove %d in %s state", ErrInvalidState, global, s.state)
	}
	if i := slices.IndexFunc(s.added, func(p IndexPair) bool { return p.Global == global }); i >= 0 {
		s.added = slices.Delete(s.added, i, i+1)
		return nil
	}
	p, ok := s.Lookup(global)
	if !ok || p.Local.State == Deleted {
		return fmt.Errorf("%w: %d", ErrNotFound, global)
	}
	p.Local.State = Deleted
	s.deleted = true
	return nil
}

// EndResize sorts the pairs added in the epoch, merges them with the existing pairs
// dropping deleted ones and increments the sequence number.
func (s *IndexSet) EndResize() error {
	if s.state != Resize {
		return fmt.Errorf("%w: end resize in %s state", ErrInvalidState, s.state)
	}
	sort.SliceStable(s.added, func(i, j int) bool {
		return s.added[i].Global < s.added[j].Global
	})
	s.merge()
	s.seqNo++
	s.state = Ground
	return nil
}

func (s *IndexSet) merge() {
	if len(s.added) == 0 && !s.deleted {
		s.countPublic()
		return
	}
	merged := make([]IndexPair, 0, len(s.pairs)+len(s.added))
	old, added := s.pairs, s.added
	for len(old) > 0 && len(added) > 0 {
		switch {
		case old[0].Local.State == Deleted:
			old = old[1:]
		case old[0].Global < added[0].Global:
			merged = append(merged, old[0])
			old = old[1:]
		default:
			merged = append(merged, added[0])
			added = added[1:]
		}
	}
	for _, p := range old {
		if p.Local.State != Deleted {
			merged = append(merged, p)
		}
	}
	merged = append(merged, added...)
	s.pairs = merged
	s.added = nil
	s.deleted = false
	s.countPublic()
}

func (s *IndexSet) countPublic() {
	s.noPublic = 0
	for _, p := range s.pairs {
		if p.Local.Public {
			s.noPublic++
		}
	}
}

func (s *IndexSet) search(global types.GlobalIndex) (int, bool) {
	return slices.BinarySearchFunc(s.pairs, global, func(p IndexPair, g types.GlobalIndex) int {
		return p.Global.Compare(g)
	})
}

// At returns the pair of global.
func (s *IndexSet) At(global types.GlobalIndex) (IndexPair, error) {
	i, ok := s.search(global)
	if !ok {
		return IndexPair{}, fmt.Errorf("%w: %d", ErrNotFound, global)
	}
	return s.pairs[i], nil
}

// Lookup returns a pointer to the pair of global that stays valid until the next EndResize.
// The local index may be modified in place, the global index must not.
func (s *IndexSet) Lookup(global types.GlobalIndex) (*IndexPair, bool) {
	i, ok := s.search(global)
	if !ok {
		return nil, false
	}
	return &s.pairs[i], true
}

// Contains reports whether global is in the set.
func (s *IndexSet) Contains(global types.GlobalIndex) bool {
	_, ok := s.search(global)
	return ok
}

// Pairs returns the pairs in ascending global order. The slice must not be modified.
func (s *IndexSet) Pairs() []IndexPair {
	return s.pairs
}

// All iterates over the pairs in ascending global order.
func (s *IndexSet) All() iter.Seq[IndexPair] {
	return func(yield func(IndexPair) bool) {
		for _, p := range s.pairs {
			if !yield(p) {
				return
			}
		}
	}
}

// RenumberLocal assigns consecutive local slots in ascending global order.
func (s *IndexSet) RenumberLocal() error {
	if s.state != Ground {
		return fmt.Errorf("%w: renumber in %s state", ErrInvalidState, s.state)
	}
	for i := range s.pairs {
		s.pairs[i].Local.Local = uint32(i)
	}
	return nil
}

func (s *IndexSet) String() string {
	var sb strings.Builder
	sb.WriteString("{")
	for i, p := range s.pairs {
		if i > 0 {
			sb.WriteString(" ")
		}
		sb.WriteString(p.String())
	}
	sb.WriteString("}")
	return sb.String()
}
