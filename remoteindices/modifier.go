package remoteindices

import (
	"errors"
	"fmt"
	"slices"

	"github.com/spacemeshos/go-parindex/common/types"
)

// Modifier edits the remote indices of one rank in ascending global order.
type Modifier struct {
	list  *List
	pos   int
	last  types.GlobalIndex
	first bool
}

// Modifier returns a modifier for the send or receive list of rank, creating the lists if needed.
// The remote indices are considered in sync with the index sets from now on,
// the caller is responsible for keeping them consistent.
func (ri *RemoteIndices) Modifier(rank int, send bool) *Modifier {
	ri.markSynced()
	l, ok := ri.lists[rank]
	if !ok {
		l = ri.newLists()
		ri.lists[rank] = l
	}
	list := l.Receive
	if send {
		list = l.Send
	}
	return &Modifier{list: list, first: true}
}

func (ri *RemoteIndices) newLists() Lists {
	if ri.source == ri.dest {
		shared := &List{}
		return Lists{Send: shared, Receive: shared}
	}
	return Lists{Send: &List{}, Receive: &List{}}
}

func (m *Modifier) seek(global types.GlobalIndex) error {
	if !m.first && global < m.last {
		return fmt.Errorf("%w: %d after %d", ErrInvalidPosition, global, m.last)
	}
	for m.pos < len(m.list.entries) && m.list.entries[m.pos].Global < global {
		m.pos++
	}
	m.last = global
	m.first = false
	return nil
}

// Insert adds r. Calls must use ascending global indices.
func (m *Modifier) Insert(r RemoteIndex) error {
	if err := m.seek(r.Global); err != nil {
		return err
	}
	if m.pos < len(m.list.entries) && m.list.entries[m.pos].Global == r.Global {
		return fmt.Errorf("%w: %d is already present", ErrInvalidPosition, r.Global)
	}
	m.list.entries = slices.Insert(m.list.entries, m.pos, r)
	return nil
}

// Remove drops the entry of global and reports whether it was present.
func (m *Modifier) Remove(global types.GlobalIndex) (bool, error) {
	if err := m.seek(global); err != nil {
		return false, err
	}
	if m.pos < len(m.list.entries) && m.list.entries[m.pos].Global == global {
		m.list.entries = slices.Delete(m.list.entries, m.pos, m.pos+1)
		return true, nil
	}
	return false, nil
}

// Replace sets the remote indices shared with rank to entries, which must be strictly
// ascending. Empty entries drop the rank. Replace requires identical source and destination
// sets and marks the remote indices as in sync with them.
func (ri *RemoteIndices) Replace(rank int, entries []RemoteIndex) error {
	if ri.source != ri.dest {
		return errors.New("replace requires a single index set")
	}
	for i := 1; i < len(entries); i++ {
		if entries[i].Global <= entries[i-1].Global {
			return fmt.Errorf("%w: %d after %d", ErrInvalidPosition, entries[i].Global, entries[i-1].Global)
		}
	}
	ri.markSynced()
	if len(entries) == 0 {
		delete(ri.lists, rank)
		return nil
	}
	shared := &List{entries: entries}
	ri.lists[rank] = Lists{Send: shared, Receive: shared}
	return nil
}

// ReplaceAll swaps the whole table for lists, keyed by rank, with the same rules as Replace.
func (ri *RemoteIndices) ReplaceAll(lists map[int][]RemoteIndex) error {
	if ri.source != ri.dest {
		return errors.New("replace requires a single index set")
	}
	clear(ri.lists)
	for rank, entries := range lists {
		if err := ri.Replace(rank, entries); err != nil {
			ri.Free()
			return err
		}
	}
	ri.markSynced()
	return nil
}
