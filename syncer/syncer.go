// Package syncer repairs remote indices after entities were added to the index set.
//
// Every rank tells each old neighbour which other ranks it knew to hold the entities
// they share. Receivers learn about third ranks holding their entities, which may be
// new neighbours, and add entities they are told to hold but do not know yet.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"

	"go.uber.org/zap"

	"github.com/spacemeshos/go-parindex/codec"
	"github.com/spacemeshos/go-parindex/common/types"
	"github.com/spacemeshos/go-parindex/indexset"
	"github.com/spacemeshos/go-parindex/log"
	"github.com/spacemeshos/go-parindex/metrics"
	"github.com/spacemeshos/go-parindex/remoteindices"
	"github.com/spacemeshos/go-parindex/transport"
)

var (
	// ErrNotSameIndexSet is returned for remote indices between two different index sets.
	ErrNotSameIndexSet = errors.New("remote indices must use one index set as source and destination")
	// ErrConsistency is returned when a neighbour announces an entity this rank cannot place.
	ErrConsistency = errors.New("inconsistent remote information")
)

const subsystem = "syncer"

var (
	discovered = metrics.NewCounter(
		"discovered_neighbours",
		subsystem,
		"Number of neighbours found while syncing",
		[]string{},
	).WithLabelValues()
	added = metrics.NewCounter(
		"added_indices",
		subsystem,
		"Number of entities added to the index set while syncing",
		[]string{},
	).WithLabelValues()
)

// Numberer assigns a local slot to an entity added during a sync.
// It returns false if no slot can be assigned.
type Numberer func(global types.GlobalIndex) (uint32, bool)

// NoNumbers refuses to number any entity.
func NoNumbers(types.GlobalIndex) (uint32, bool) { return 0, false }

// NextFree numbers added entities consecutively, starting after the largest local slot in set.
func NextFree(set *indexset.IndexSet) Numberer {
	var next uint32
	for p := range set.All() {
		next = max(next, p.Local.Local+1)
	}
	return func(types.GlobalIndex) (uint32, bool) {
		local := next
		next++
		return local, true
	}
}

// Opt is a type to configure a syncer.
type Opt func(s *Syncer)

// WithLogger configures logger.
func WithLogger(logger *zap.Logger) Opt {
	return func(s *Syncer) {
		s.logger = logger
	}
}

// Syncer updates an index set and its remote indices together.
type Syncer struct {
	logger *zap.Logger
	set    *indexset.IndexSet
	ri     *remoteindices.RemoteIndices
}

// New creates a syncer for ri, which must use set as both source and destination.
func New(set *indexset.IndexSet, ri *remoteindices.RemoteIndices, opts ...Opt) (*Syncer, error) {
	if ri.Source() != set || ri.Dest() != set {
		return nil, ErrNotSameIndexSet
	}
	s := &Syncer{
		logger: log.NewNop(),
		set:    set,
		ri:     ri,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Sync is SyncWith using NoNumbers.
func (s *Syncer) Sync(ctx context.Context) error {
	return s.SyncWith(ctx, NoNumbers)
}

// SyncWith exchanges the known holders of shared entities with every current neighbour and
// updates the index set and remote indices with the answers. Entities this rank is told to
// hold but does not know are added as public with a slot from numberer.
// It must be called by all ranks. On failure every rank returns an error wrapping
// transport.ErrCommunication and the remote indices are left empty.
func (s *Syncer) SyncWith(ctx context.Context, numberer Numberer) error {
	if s.set.State() != indexset.Ground {
		return fmt.Errorf("%w: sync during resize", indexset.ErrInvalidState)
	}
	t := s.ri.Transport()
	st := newState(t.Rank(), s.ri)
	out := make(map[int][]byte, len(st.ranks))
	for _, rank := range st.ranks {
		buf, err := codec.Encode(st.pack(s.set, rank))
		if err != nil {
			return fmt.Errorf("encode message for %d: %w", rank, err)
		}
		out[rank] = buf
	}

	inbox := make(map[int][]byte, len(st.ranks))
	err := transport.Exchange(ctx, t, transport.TagSyncer, out, st.ranks, func(from int, msg []byte) error {
		inbox[from] = msg
		return nil
	})
	if err != nil {
		s.ri.Free()
		return err
	}

	if err := s.set.BeginResize(); err != nil {
		return err
	}
	var local error
	for _, rank := range st.ranks {
		var msg message
		if err := codec.Decode(inbox[rank], &msg); err != nil {
			local = errors.Join(local, fmt.Errorf("message from %d: %w", rank, err))
			continue
		}
		local = errors.Join(local, s.unpack(st, rank, &msg, numberer))
	}
	if err := s.set.EndResize(); err != nil {
		return err
	}

	lists := st.lists()
	if err := s.ri.ReplaceAll(lists); err != nil {
		local = errors.Join(local, err)
	}
	if neighbours := s.ri.NeighbourSet(); neighbours.Cardinality() > 0 {
		neighbours.Append(slices.Collect(maps.Keys(lists))...)
		s.ri.SetNeighbours(neighbours.ToSlice()...)
	}
	if err := transport.Agree(ctx, t, local); err != nil {
		s.ri.Free()
		s.logger.Debug("sync failed", zap.Error(err))
		return err
	}
	s.logger.Debug("synced remote indices",
		zap.Int("neighbours", s.ri.Neighbours()),
		log.ZSeqNo(s.set.SeqNo()),
	)
	return nil
}

func (s *Syncer) unpack(st *state, source int, msg *message, numberer Numberer) error {
	var errs error
	t := s.ri.Transport()
	for _, ent := range msg.Entries {
		if i := slices.IndexFunc(ent.Holders, func(h holder) bool {
			return transport.CheckRank(t, int(h.Rank)) != nil
		}); i >= 0 {
			errs = errors.Join(errs, fmt.Errorf("%w: %d from %d: holder %w",
				ErrConsistency, ent.Global, source, transport.CheckRank(t, int(ent.Holders[i].Rank))))
			continue
		}
		st.insert(source, ent.Global, ent.Attribute)
		mine := -1
		for i, h := range ent.Holders {
			if int(h.Rank) == st.rank {
				mine = i
				continue
			}
			st.insert(int(h.Rank), ent.Global, h.Attribute)
		}
		if mine < 0 {
			errs = errors.Join(errs, fmt.Errorf("%w: %d from %d does not list this rank", ErrConsistency, ent.Global, source))
			continue
		}
		attr := ent.Holders[mine].Attribute
		if p, ok := s.set.Lookup(ent.Global); ok {
			if p.Local.Attribute != attr {
				errs = errors.Join(errs, fmt.Errorf("%w: %d has attribute %s locally and %s on %d",
					ErrConsistency, ent.Global, p.Local.Attribute, attr, source))
			}
			continue
		}
		if st.created.Contains(ent.Global) {
			continue
		}
		slot, ok := numberer(ent.Global)
		if !ok {
			errs = errors.Join(errs, fmt.Errorf("%w: no local slot for %d", ErrConsistency, ent.Global))
			continue
		}
		if err := s.set.AddLocal(ent.Global, indexset.NewLocalIndex(slot, attr, true)); err != nil {
			errs = errors.Join(errs, err)
			continue
		}
		st.created.Add(ent.Global)
		added.Inc()
		s.logger.Debug("added entity announced by neighbour",
			log.ZGlobal(ent.Global),
			log.ZAttribute(attr),
			log.ZPeerRank(source),
		)
	}
	return errs
}
