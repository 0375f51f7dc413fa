package indexset

import (
	"fmt"

	"github.com/spacemeshos/go-parindex/common/types"
)

// LocalState tells whether an entry survives the next EndResize.
type LocalState uint8

const (
	// Valid entries are kept.
	Valid LocalState = iota
	// Deleted entries are dropped by EndResize.
	Deleted
)

func (s LocalState) String() string {
	if s == Deleted {
		return "deleted"
	}
	return "valid"
}

// LocalIndex describes the local slot of an entity.
type LocalIndex struct {
	// Local is the position in the local data arrays.
	Local uint32
	// Attribute is the role of this process for the entity.
	Attribute types.Attribute
	// Public entities may be known by other processes.
	Public bool
	// State is Deleted once the entity was removed in the current resize epoch.
	State LocalState
}

// NewLocalIndex creates a valid local index.
func NewLocalIndex(local uint32, attr types.Attribute, public bool) LocalIndex {
	return LocalIndex{Local: local, Attribute: attr, Public: public}
}

func (l LocalIndex) String() string {
	return fmt.Sprintf("{local=%d, attr=%s, public=%t}", l.Local, l.Attribute, l.Public)
}

// IndexPair maps a global index to its local slot.
type IndexPair struct {
	Global types.GlobalIndex
	Local  LocalIndex
}

func (p IndexPair) String() string {
	return fmt.Sprintf("{global=%d, local=%d}", p.Global, p.Local.Local)
}
