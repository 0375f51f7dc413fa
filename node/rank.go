package node

import (
	"context"
	"fmt"
	"strconv"

	"go.uber.org/zap"

	"github.com/spacemeshos/go-parindex/common/types"
	"github.com/spacemeshos/go-parindex/communicator"
	"github.com/spacemeshos/go-parindex/config"
	"github.com/spacemeshos/go-parindex/iface"
	"github.com/spacemeshos/go-parindex/indexset"
	"github.com/spacemeshos/go-parindex/internal/partition"
	"github.com/spacemeshos/go-parindex/log"
	"github.com/spacemeshos/go-parindex/metrics"
	"github.com/spacemeshos/go-parindex/remoteindices"
	"github.com/spacemeshos/go-parindex/syncer"
	"github.com/spacemeshos/go-parindex/transport"
)

var (
	ownerAttrs   = types.NewAttributeSet(types.Owner)
	overlapAttrs = types.NewAttributeSet(types.Overlap)
)

var (
	neighboursGauge = metrics.NewGauge(
		"neighbours",
		"node",
		"Number of ranks sharing entities with a rank",
		[]string{"rank"},
	)
	entitiesGauge = metrics.NewGauge(
		"entities",
		"node",
		"Number of entities held by a rank",
		[]string{"rank"},
	)
)

// Report summarizes the exchange of one rank.
type Report struct {
	Rank       int
	Entities   int
	Public     int
	SeqNo      uint64
	Neighbours []int
	// Sent and Received count the interface slots over all neighbours.
	Sent     int
	Received int
	// Copies counts the remote copies of the entities owned by the rank.
	Copies int
	// Consistent is set if every copy holds the owner's value after the exchanges.
	Consistent bool
}

func (r Report) String() string {
	return fmt.Sprintf("rank %d: entities=%d public=%d seq=%d neighbours=%v sent=%d received=%d copies=%d consistent=%t",
		r.Rank, r.Entities, r.Public, r.SeqNo, r.Neighbours, r.Sent, r.Received, r.Copies, r.Consistent)
}

func (app *App) line() partition.Line {
	return partition.Line{
		Size:    app.Config.Ranks,
		PerRank: app.Config.Demo.PerRank,
		Overlap: app.Config.Demo.Overlap,
	}
}

func (app *App) runRank(ctx context.Context, t transport.Transport) (Report, error) {
	rank := t.Rank()
	line := app.line()
	set, err := line.Build(rank)
	if err != nil {
		return Report{}, fmt.Errorf("build index set: %w", err)
	}
	ri, err := app.remoteIndices(ctx, set, t)
	if err != nil {
		return Report{}, err
	}
	i, err := iface.Build(ri, ownerAttrs, overlapAttrs,
		iface.WithLogger(app.addLogger(InterfaceLogger)),
	)
	if err != nil {
		return Report{}, fmt.Errorf("build interface: %w", err)
	}

	report := Report{
		Rank:       rank,
		Entities:   set.Size(),
		Public:     set.NoPublic(),
		SeqNo:      set.SeqNo(),
		Neighbours: ri.Ranks(),
	}
	for _, info := range i.Interfaces() {
		report.Sent += info.Send.Len()
		report.Received += info.Receive.Len()
	}
	report.Consistent, report.Copies, err = app.exchange(ctx, set, ri, i)
	if err != nil {
		return Report{}, err
	}
	label := strconv.Itoa(rank)
	neighboursGauge.WithLabelValues(label).Set(float64(len(report.Neighbours)))
	entitiesGauge.WithLabelValues(label).Set(float64(report.Entities))
	app.addLogger(AppLogger).Debug("rank done", log.ZRank(rank), zap.Stringer("report", report))
	return report, nil
}

func (app *App) remoteIndices(ctx context.Context, set *indexset.IndexSet, t transport.Transport) (*remoteindices.RemoteIndices, error) {
	rank := t.Rank()
	opts := []remoteindices.Opt{remoteindices.WithLogger(app.addLogger(RemoteIndicesLogger))}
	if app.Config.Remote.Mode == config.NeighboursMode {
		opts = append(opts, remoteindices.WithNeighbours(app.line().Neighbours(rank)...))
	}
	if app.Config.Remote.IncludeSelf {
		opts = append(opts, remoteindices.WithIncludeSelf())
	}
	if app.Config.Remote.IgnorePublic {
		opts = append(opts, remoteindices.WithIgnorePublic())
	}
	ri := remoteindices.New(set, set, t, opts...)
	if err := ri.Rebuild(ctx); err != nil {
		return nil, fmt.Errorf("rebuild remote indices: %w", err)
	}
	if !app.Config.Remote.Sync {
		return ri, nil
	}
	s, err := syncer.New(set, ri, syncer.WithLogger(app.addLogger(SyncerLogger)))
	if err != nil {
		return nil, err
	}
	if err := s.SyncWith(ctx, syncer.NextFree(set)); err != nil {
		return nil, fmt.Errorf("sync remote indices: %w", err)
	}
	return ri, nil
}

// exchange sends the owner's global index to every copy with both communicators and counts
// the copies of owned entities by accumulating backwards.
func (app *App) exchange(
	ctx context.Context,
	set *indexset.IndexSet,
	ri *remoteindices.RemoteIndices,
	i *iface.Interface,
) (consistent bool, copies int, err error) {
	opts := []communicator.Opt{communicator.WithLogger(app.addLogger(CommunicatorLogger))}
	if app.Config.Communicator.VerifyOrder {
		opts = append(opts, communicator.WithOrderCheck())
	}

	values := make([]float64, set.Size())
	for p := range set.All() {
		if p.Local.Attribute == types.Owner {
			values[p.Local.Local] = float64(p.Global)
		}
	}
	slice := communicator.Slice[float64]{}
	buffered := communicator.NewBuffered[[]float64, float64](slice, communicator.Float64Codec{}, opts...)
	if err := buffered.Build(i); err != nil {
		return false, 0, err
	}
	if err := buffered.ForwardInPlace(ctx, communicator.Copy[[]float64, float64](slice), values); err != nil {
		return false, 0, fmt.Errorf("forward values: %w", err)
	}
	consistent = true
	for p := range set.All() {
		consistent = consistent && values[p.Local.Local] == float64(p.Global)
	}

	counts := make([]int64, set.Size())
	for k := range counts {
		counts[k] = 1
	}
	ints := communicator.Slice[int64]{}
	adder := communicator.NewBuffered[[]int64, int64](ints, communicator.Int64Codec{}, opts...)
	if err := adder.Build(i); err != nil {
		return false, 0, err
	}
	if err := adder.BackwardInPlace(ctx, communicator.Add[[]int64, int64](ints), counts); err != nil {
		return false, 0, fmt.Errorf("count copies: %w", err)
	}
	for p := range set.All() {
		if p.Local.Attribute == types.Owner {
			copies += int(counts[p.Local.Local] - 1)
		}
	}

	block := app.Config.Demo.Block
	src := make([]float64, block*set.Size())
	dst := make([]float64, block*set.Size())
	for p := range set.All() {
		for j := range block {
			if p.Local.Attribute == types.Owner {
				src[int(p.Local.Local)*block+j] = float64(p.Global)
			}
			dst[int(p.Local.Local)*block+j] = -1
		}
	}
	dt := communicator.NewDatatype[float64](communicator.Float64Codec{}, opts...)
	err = dt.Build(ri,
		ownerAttrs, communicator.Storage[float64]{Data: src, Block: block},
		overlapAttrs, communicator.Storage[float64]{Data: dst, Block: block},
	)
	if err != nil {
		return false, 0, fmt.Errorf("build datatype communicator: %w", err)
	}
	if err := dt.Forward(ctx); err != nil {
		return false, 0, fmt.Errorf("forward blocks: %w", err)
	}
	for p := range set.All() {
		if p.Local.Attribute != types.Overlap {
			continue
		}
		for j := range block {
			consistent = consistent && dst[int(p.Local.Local)*block+j] == float64(p.Global)
		}
	}
	return consistent, copies, nil
}
