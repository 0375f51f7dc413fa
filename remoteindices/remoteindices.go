// Package remoteindices computes, for every other rank, which of the local entities
// that rank holds a copy of and with which attribute.
package remoteindices

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"
	"go.uber.org/zap"

	"github.com/spacemeshos/go-parindex/codec"
	"github.com/spacemeshos/go-parindex/common/types"
	"github.com/spacemeshos/go-parindex/indexset"
	"github.com/spacemeshos/go-parindex/log"
	"github.com/spacemeshos/go-parindex/transport"
)

var (
	// ErrInvalidPosition is returned when a modifier is not used in ascending global order.
	ErrInvalidPosition = errors.New("remote index modified out of order")
	// ErrUnexpectedSender is returned when a publication arrives from a rank that is not a neighbour.
	ErrUnexpectedSender = errors.New("unexpected sender")
)

// RemoteIndex is a copy of a local entity held by another rank.
type RemoteIndex struct {
	Global types.GlobalIndex
	// Attribute is the attribute of the entity on the remote rank.
	Attribute types.Attribute
}

func (r RemoteIndex) String() string {
	return fmt.Sprintf("[global=%d, remote attr=%s]", r.Global, r.Attribute)
}

// List holds remote indices in ascending global order.
type List struct {
	entries []RemoteIndex
}

// Entries returns the remote indices. The slice must not be modified.
func (l *List) Entries() []RemoteIndex {
	if l == nil {
		return nil
	}
	return l.entries
}

// Len returns the number of remote indices.
func (l *List) Len() int {
	if l == nil {
		return 0
	}
	return len(l.entries)
}

// Lists are the remote indices shared with one rank.
// Send is matched against the source index set and Receive against the destination set.
// They are the same list when both sets are the same.
type Lists struct {
	Send    *List
	Receive *List
}

// Empty reports whether there is nothing to exchange with the rank.
func (l Lists) Empty() bool {
	return l.Send.Len() == 0 && l.Receive.Len() == 0
}

// Opt is a type to configure remote indices.
type Opt func(ri *RemoteIndices)

// WithLogger configures logger.
func WithLogger(logger *zap.Logger) Opt {
	return func(ri *RemoteIndices) {
		ri.logger = logger
	}
}

// WithNeighbours restricts the rebuild exchange to the given ranks.
// Every listed rank must list this rank too.
func WithNeighbours(ranks ...int) Opt {
	return func(ri *RemoteIndices) {
		ri.neighbours = mapset.NewThreadUnsafeSet(ranks...)
	}
}

// WithIncludeSelf makes the rebuild match the published indices of this rank against
// its own sets, keeping entries whose attributes differ.
func WithIncludeSelf() Opt {
	return func(ri *RemoteIndices) {
		ri.includeSelf = true
	}
}

// WithIgnorePublic publishes every pair instead of only the public ones.
func WithIgnorePublic() Opt {
	return func(ri *RemoteIndices) {
		ri.ignorePublic = true
	}
}

// RemoteIndices is the table of remote copies of the entities of one rank.
type RemoteIndices struct {
	logger       *zap.Logger
	source, dest *indexset.IndexSet
	t            transport.Transport
	neighbours   mapset.Set[int]
	includeSelf  bool
	ignorePublic bool

	built         bool
	publicIgnored bool
	sourceSeqNo   uint64
	destSeqNo     uint64
	lists         map[int]Lists
	copies        []LocalCopy
}

// New creates remote indices between source and dest, which may be the same set.
func New(source, dest *indexset.IndexSet, t transport.Transport, opts ...Opt) *RemoteIndices {
	ri := &RemoteIndices{
		logger:     log.NewNop(),
		source:     source,
		dest:       dest,
		t:          t,
		neighbours: mapset.NewThreadUnsafeSet[int](),
		lists:      map[int]Lists{},
	}
	for _, opt := range opts {
		opt(ri)
	}
	ri.logger = ri.logger.Named("remoteindices").With(log.ZRank(t.Rank()))
	return ri
}

// SetNeighbours replaces the neighbour ranks used by the next rebuild.
// An empty set selects the exchange around the ring of all ranks.
func (ri *RemoteIndices) SetNeighbours(ranks ...int) {
	ri.neighbours = mapset.NewThreadUnsafeSet(ranks...)
}

// SetIncludeSelf toggles matching against our own published indices.
func (ri *RemoteIndices) SetIncludeSelf(include bool) {
	ri.includeSelf = include
}

// NeighbourSet returns the ranks the rebuild is restricted to.
func (ri *RemoteIndices) NeighbourSet() mapset.Set[int] {
	return ri.neighbours.Clone()
}

func (ri *RemoteIndices) Source() *indexset.IndexSet { return ri.source }

func (ri *RemoteIndices) Dest() *indexset.IndexSet { return ri.dest }

func (ri *RemoteIndices) Transport() transport.Transport { return ri.t }

// Neighbours returns the number of ranks with remote indices.
func (ri *RemoteIndices) Neighbours() int {
	return len(ri.lists)
}

// Ranks returns the ranks with remote indices in ascending order.
func (ri *RemoteIndices) Ranks() []int {
	return slices.Sorted(maps.Keys(ri.lists))
}

// Lists returns the remote indices shared with rank.
func (ri *RemoteIndices) Lists(rank int) (Lists, bool) {
	l, ok := ri.lists[rank]
	return l, ok
}

// IsSynced reports whether neither index set was resized since the last build.
func (ri *RemoteIndices) IsSynced() bool {
	return ri.built && ri.sourceSeqNo == ri.source.SeqNo() && ri.destSeqNo == ri.dest.SeqNo()
}

// Free drops all remote indices and forces the next Rebuild to run.
func (ri *RemoteIndices) Free() {
	clear(ri.lists)
	ri.copies = nil
	ri.built = false
}

func (ri *RemoteIndices) markSynced() {
	ri.sourceSeqNo = ri.source.SeqNo()
	ri.destSeqNo = ri.dest.SeqNo()
	ri.built = true
}

// Rebuild recomputes the remote indices if either index set changed since the last build.
// It must be called by all ranks. On failure every rank returns an error wrapping
// transport.ErrCommunication and the remote indices are left empty.
func (ri *RemoteIndices) Rebuild(ctx context.Context) error {
	if ri.IsSynced() && ri.publicIgnored == ri.ignorePublic {
		return nil
	}
	if ri.source.State() != indexset.Ground || ri.dest.State() != indexset.Ground {
		return fmt.Errorf("%w: rebuild during resize", indexset.ErrInvalidState)
	}
	ri.Free()
	if err := ri.buildRemote(ctx); err != nil {
		ri.Free()
		ri.logger.Debug("rebuild failed", zap.Error(err))
		return err
	}
	ri.markSynced()
	ri.publicIgnored = ri.ignorePublic
	ri.logger.Debug("rebuilt remote indices",
		zap.Int("neighbours", ri.Neighbours()),
		log.ZSeqNo(ri.sourceSeqNo),
	)
	return nil
}

type matcher struct {
	two         bool
	sourcePairs []publishedPair
	destPairs   []publishedPair
	includeSelf bool
}

func (ri *RemoteIndices) buildRemote(ctx context.Context) error {
	rank, procs := ri.t.Rank(), ri.t.Size()
	m := matcher{
		two:         ri.source != ri.dest,
		includeSelf: ri.includeSelf,
	}
	if m.two {
		ri.copies = correspond(ri.source.Pairs(), ri.dest.Pairs())
	}
	if procs == 1 && !(m.two || m.includeSelf) {
		return transport.Agree(ctx, ri.t, nil)
	}
	m.sourcePairs = publish(ri.source, ri.ignorePublic)
	own := publication{Two: m.two, Source: m.sourcePairs}
	m.destPairs = m.sourcePairs
	if m.two {
		m.destPairs = publish(ri.dest, ri.ignorePublic)
		own.Dest = m.destPairs
	}
	buf, err := codec.Encode(&own)
	if err != nil {
		return fmt.Errorf("encode publication: %w", err)
	}
	if m.two || m.includeSelf {
		ri.unpack(rank, &own, &m, m.includeSelf)
	}

	neighbours := ri.neighbours.Clone()
	neighbours.Remove(rank)
	var local error
	if neighbours.Cardinality() == 0 {
		local, err = ri.ring(ctx, buf, &m)
	} else {
		local, err = ri.exchange(ctx, buf, neighbours, &m)
	}
	if err != nil {
		return fmt.Errorf("%w: %w", transport.ErrCommunication, err)
	}
	return transport.Agree(ctx, ri.t, local)
}

// ring passes every publication around all ranks. In hop i a rank forwards what it
// received in hop i-1, which originates from rank-i+1.
func (ri *RemoteIndices) ring(ctx context.Context, buf []byte, m *matcher) (local, err error) {
	rank, procs := ri.t.Rank(), ri.t.Size()
	next, prev := (rank+1)%procs, (rank+procs-1)%procs
	out := buf
	for proc := 1; proc < procs; proc++ {
		var in []byte
		if rank%2 == 0 {
			if err := ri.t.Send(ctx, next, transport.TagRemoteIndices, out); err != nil {
				return nil, err
			}
			if in, err = ri.t.Recv(ctx, prev, transport.TagRemoteIndices); err != nil {
				return nil, err
			}
		} else {
			if in, err = ri.t.Recv(ctx, prev, transport.TagRemoteIndices); err != nil {
				return nil, err
			}
			if err := ri.t.Send(ctx, next, transport.TagRemoteIndices, out); err != nil {
				return nil, err
			}
		}
		remote := (rank + procs - proc) % procs
		var pub publication
		if err := codec.Decode(in, &pub); err != nil {
			local = errors.Join(local, fmt.Errorf("publication of %d: %w", remote, err))
		} else {
			ri.unpack(remote, &pub, m, false)
		}
		out = in
	}
	return local, nil
}

// exchange sends our publication to every neighbour and takes one from each of them.
func (ri *RemoteIndices) exchange(
	ctx context.Context,
	buf []byte,
	neighbours mapset.Set[int],
	m *matcher,
) (local, err error) {
	for _, r := range mapset.Sorted(neighbours) {
		if err := ri.t.Send(ctx, r, transport.TagRemoteIndices, buf); err != nil {
			return nil, err
		}
	}
	seen := mapset.NewThreadUnsafeSet[int]()
	for range neighbours.Cardinality() {
		from, in, err := ri.t.RecvAny(ctx, transport.TagRemoteIndices)
		if err != nil {
			return nil, err
		}
		if !neighbours.Contains(from) || !seen.Add(from) {
			local = errors.Join(local, fmt.Errorf("%w: %d", ErrUnexpectedSender, from))
			continue
		}
		var pub publication
		if err := codec.Decode(in, &pub); err != nil {
			local = errors.Join(local, fmt.Errorf("publication of %d: %w", from, err))
			continue
		}
		ri.unpack(from, &pub, m, false)
	}
	return local, nil
}

// unpack matches the publication of remote against our published pairs.
// The remote source entries are what we receive into our destination set and the remote
// destination entries are what we send from our source set.
func (ri *RemoteIndices) unpack(remote int, pub *publication, m *matcher, fromOurSelf bool) {
	remoteDest := pub.Source
	if pub.Two {
		remoteDest = pub.Dest
	}
	var l Lists
	if !pub.Two && !m.two {
		shared := &List{entries: match(pub.Source, m.sourcePairs, fromOurSelf)}
		l = Lists{Send: shared, Receive: shared}
	} else {
		l = Lists{
			Send:    &List{entries: match(remoteDest, m.sourcePairs, fromOurSelf)},
			Receive: &List{entries: match(pub.Source, m.destPairs, fromOurSelf)},
		}
	}
	if l.Empty() {
		return
	}
	ri.lists[remote] = l
}

// match returns the remote pairs whose global index is among ours, in ascending order.
func match(remote, ours []publishedPair, fromOurSelf bool) []RemoteIndex {
	var out []RemoteIndex
	i, j := 0, 0
	for i < len(remote) && j < len(ours) {
		switch c := remote[i].Global.Compare(ours[j].Global); {
		case c < 0:
			i++
		case c > 0:
			j++
		default:
			if !fromOurSelf || remote[i].Attribute != ours[j].Attribute {
				out = append(out, RemoteIndex{Global: remote[i].Global, Attribute: remote[i].Attribute})
			}
			i++
			j++
		}
	}
	return out
}

// Equal reports whether both tables hold the same remote indices.
func (ri *RemoteIndices) Equal(other *RemoteIndices) bool {
	if len(ri.lists) != len(other.lists) {
		return false
	}
	for rank, l := range ri.lists {
		o, ok := other.lists[rank]
		if !ok ||
			!slices.Equal(l.Send.Entries(), o.Send.Entries()) ||
			!slices.Equal(l.Receive.Entries(), o.Receive.Entries()) {
			return false
		}
	}
	return true
}

func (ri *RemoteIndices) String() string {
	var sb strings.Builder
	for _, rank := range ri.Ranks() {
		l := ri.lists[rank]
		fmt.Fprintf(&sb, "Process %d:\n", rank)
		if l.Send == l.Receive {
			fmt.Fprintf(&sb, "  send and receive: %v\n", l.Send.Entries())
			continue
		}
		fmt.Fprintf(&sb, "  send: %v\n", l.Send.Entries())
		fmt.Fprintf(&sb, "  receive: %v\n", l.Receive.Entries())
	}
	return sb.String()
}
