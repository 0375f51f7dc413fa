// Package iface selects, per neighbour, the local slots whose data is sent to and
// received from that neighbour.
package iface

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"

	"go.uber.org/zap"

	"github.com/spacemeshos/go-parindex/common/types"
	"github.com/spacemeshos/go-parindex/indexset"
	"github.com/spacemeshos/go-parindex/log"
	"github.com/spacemeshos/go-parindex/remoteindices"
	"github.com/spacemeshos/go-parindex/transport"
)

// ErrRemoteIndicesNotSynced is returned when the remote indices are older than their index sets.
var ErrRemoteIndicesNotSynced = errors.New("remote indices not in sync with index sets")

// List is an ordered list of local slots with the global index of each.
type List struct {
	Slots   []uint32
	Globals []types.GlobalIndex
}

// Len returns the number of slots.
func (l *List) Len() int { return len(l.Slots) }

func (l *List) add(p indexset.IndexPair) {
	l.Slots = append(l.Slots, p.Local.Local)
	l.Globals = append(l.Globals, p.Global)
}

// Information is what is exchanged with one neighbour.
type Information struct {
	Send    List
	Receive List
}

// Opt is a type to configure an interface.
type Opt func(i *Interface)

// WithLogger configures logger.
func WithLogger(logger *zap.Logger) Opt {
	return func(i *Interface) {
		i.logger = logger
	}
}

// Interface holds the send and receive lists of every neighbour.
// The order of a send list on one rank matches the receive list of the peer rank.
type Interface struct {
	logger      *zap.Logger
	t           transport.Transport
	sourceFlags types.AttributeSet
	destFlags   types.AttributeSet
	infos       map[int]*Information
}

// Build creates the interface of ri. Data of a local entity of the source set with an
// attribute in sourceFlags is sent to every neighbour holding it with an attribute in
// destFlags. Data for a local entity of the destination set with an attribute in destFlags
// is received from every neighbour holding it with an attribute in sourceFlags.
func Build(ri *remoteindices.RemoteIndices, sourceFlags, destFlags types.AttributeSet, opts ...Opt) (*Interface, error) {
	if !ri.IsSynced() {
		return nil, ErrRemoteIndicesNotSynced
	}
	i := &Interface{
		logger:      log.NewNop(),
		t:           ri.Transport(),
		sourceFlags: sourceFlags,
		destFlags:   destFlags,
		infos:       make(map[int]*Information, ri.Neighbours()),
	}
	for _, opt := range opts {
		opt(i)
	}
	i.logger = i.logger.Named("iface").With(log.ZRank(i.t.Rank()))

	i.collect(ri.Source(), ri.Iterator(true), sourceFlags, destFlags, func(info *Information) *List { return &info.Send })
	i.collect(ri.Dest(), ri.Iterator(false), destFlags, sourceFlags, func(info *Information) *List { return &info.Receive })
	i.logger.Debug("built interface",
		log.ZAttributes("source_flags", sourceFlags),
		log.ZAttributes("dest_flags", destFlags),
		zap.Int("neighbours", len(i.infos)),
	)
	return i, nil
}

func (i *Interface) collect(
	set *indexset.IndexSet,
	remote *remoteindices.CollectiveIterator,
	local, other types.AttributeSet,
	pick func(*Information) *List,
) {
	for p := range set.All() {
		if remote.Empty() {
			return
		}
		if !local.Contains(p.Local.Attribute) {
			continue
		}
		remote.Advance(p.Global)
		for rank, r := range remote.Entries() {
			if !other.Contains(r.Attribute) {
				continue
			}
			info, ok := i.infos[rank]
			if !ok {
				info = &Information{}
				i.infos[rank] = info
			}
			pick(info).add(p)
		}
	}
}

// Transport returns the transport of the remote indices the interface was built from.
func (i *Interface) Transport() transport.Transport { return i.t }

// SourceFlags returns the attributes of entities that are sent.
func (i *Interface) SourceFlags() types.AttributeSet { return i.sourceFlags }

// DestFlags returns the attributes of entities that are received.
func (i *Interface) DestFlags() types.AttributeSet { return i.destFlags }

// Interfaces returns the information of every neighbour. The map must not be modified.
func (i *Interface) Interfaces() map[int]*Information { return i.infos }

// Ranks returns the neighbours in ascending order.
func (i *Interface) Ranks() []int {
	return slices.Sorted(maps.Keys(i.infos))
}

// Info returns the information for rank.
func (i *Interface) Info(rank int) (*Information, bool) {
	info, ok := i.infos[rank]
	return info, ok
}

// Free drops all information.
func (i *Interface) Free() {
	clear(i.infos)
}

// Equal reports whether both interfaces exchange the same slots with the same ranks.
func (i *Interface) Equal(other *Interface) bool {
	if len(i.infos) != len(other.infos) {
		return false
	}
	for rank, info := range i.infos {
		o, ok := other.infos[rank]
		if !ok ||
			!slices.Equal(info.Send.Slots, o.Send.Slots) ||
			!slices.Equal(info.Receive.Slots, o.Receive.Slots) {
			return false
		}
	}
	return true
}

func (i *Interface) String() string {
	var sb strings.Builder
	for _, rank := range i.Ranks() {
		info := i.infos[rank]
		fmt.Fprintf(&sb, "send for process %d: %v\n", rank, info.Send.Slots)
		fmt.Fprintf(&sb, "receive for process %d: %v\n", rank, info.Receive.Slots)
	}
	return sb.String()
}
