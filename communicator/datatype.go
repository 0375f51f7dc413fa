package communicator

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/spacemeshos/go-parindex/common/types"
	"github.com/spacemeshos/go-parindex/iface"
	"github.com/spacemeshos/go-parindex/log"
	"github.com/spacemeshos/go-parindex/remoteindices"
	"github.com/spacemeshos/go-parindex/transport"
)

// Storage is the flat memory of a container holding Block elements per slot.
type Storage[T any] struct {
	Data  []T
	Block int
}

func (s Storage[T]) describe(slots []uint32) (*Descriptor, error) {
	d := NewDescriptor()
	for _, slot := range slots {
		off := int(slot) * s.Block
		if off+s.Block > len(s.Data) {
			return nil, fmt.Errorf("slot %d outside storage of %d elements", slot, len(s.Data))
		}
		d.Append(off, s.Block)
	}
	return d, nil
}

type datatypeNeighbour struct {
	rank int
	// descs[forward] describes the sent part of the send storage,
	// descs[backward] the received part of the receive storage.
	descs [2]*Descriptor
	out   [2][]byte
}

// Datatype exchanges runs of elements between two flat storages.
type Datatype[T any] struct {
	settings
	codec      ElementCodec[T]
	t          transport.Transport
	i          *iface.Interface
	storages   [2]Storage[T]
	neighbours []*datatypeNeighbour
	byRank     map[int]*datatypeNeighbour
	verify     bool
}

// NewDatatype creates a communicator for flat storages of T.
func NewDatatype[T any](codec ElementCodec[T], opts ...Opt) *Datatype[T] {
	d := &Datatype[T]{
		settings: defaultSettings(),
		codec:    codec,
	}
	for _, opt := range opts {
		opt(&d.settings)
	}
	d.logger = d.logger.Named("datatype")
	return d
}

// Build builds the interface of ri for the given flags and describes the slots it lists
// in send and recv.
func (d *Datatype[T]) Build(
	ri *remoteindices.RemoteIndices,
	sourceFlags types.AttributeSet,
	send Storage[T],
	destFlags types.AttributeSet,
	recv Storage[T],
) error {
	d.Free()
	i, err := iface.Build(ri, sourceFlags, destFlags, iface.WithLogger(d.logger))
	if err != nil {
		return err
	}
	d.storages = [2]Storage[T]{send, recv}
	es := d.codec.Size()
	for _, rank := range i.Ranks() {
		info, _ := i.Info(rank)
		n := &datatypeNeighbour{rank: rank}
		for dir, slots := range [2][]uint32{info.Send.Slots, info.Receive.Slots} {
			desc, err := d.storages[dir].describe(slots)
			if err != nil {
				d.Free()
				return fmt.Errorf("neighbour %d: %w", rank, err)
			}
			n.descs[dir] = desc
			n.out[dir] = make([]byte, desc.Len()*es)
		}
		d.neighbours = append(d.neighbours, n)
		d.byRank[rank] = n
	}
	d.t = ri.Transport()
	d.i = i
	d.verify = d.orderCheck
	d.logger.Debug("built datatype communicator",
		log.ZRank(d.t.Rank()),
		log.ZAttributes("source_flags", sourceFlags),
		log.ZAttributes("dest_flags", destFlags),
		zap.Int("neighbours", len(d.neighbours)),
	)
	return nil
}

// Interface returns the interface built by the last Build.
func (d *Datatype[T]) Interface() *iface.Interface { return d.i }

// Forward copies the described part of the send storage to the receive storages of the neighbours.
func (d *Datatype[T]) Forward(ctx context.Context) error {
	return d.exchange(ctx, forward)
}

// Backward copies the described part of the receive storage to the send storages of the neighbours.
func (d *Datatype[T]) Backward(ctx context.Context) error {
	return d.exchange(ctx, backward)
}

// VerifyOrder checks with every neighbour that both sides list their shared slots in the same order.
func (d *Datatype[T]) VerifyOrder(ctx context.Context) error {
	if d.t == nil {
		return ErrNotBuilt
	}
	return verifyOrder(ctx, d.logger, d.t, d.i)
}

func (d *Datatype[T]) exchange(ctx context.Context, dir direction) error {
	if d.t == nil {
		return ErrNotBuilt
	}
	if d.verify {
		d.verify = false
		if err := verifyOrder(ctx, d.logger, d.t, d.i); err != nil {
			return err
		}
	}
	es := d.codec.Size()
	from, to := d.storages[dir], d.storages[1-dir]
	recv := 1 - dir
	out := make(map[int][]byte, len(d.neighbours))
	ranks := make([]int, 0, len(d.neighbours))
	for _, n := range d.neighbours {
		ranks = append(ranks, n.rank)
		buf := n.out[dir]
		pos := 0
		for _, run := range n.descs[dir].Runs() {
			for _, v := range from.Data[run.Offset : run.Offset+run.Len] {
				d.codec.Put(buf[pos:], v)
				pos += es
			}
		}
		out[n.rank] = buf
		packed.WithLabelValues("datatype", dir.String()).Add(float64(n.descs[dir].Len()))
	}
	var local error
	err := transport.Exchange(ctx, d.t, transport.TagDatatype, out, ranks, func(rank int, msg []byte) error {
		desc := d.byRank[rank].descs[recv]
		if len(msg) != desc.Len()*es {
			local = errors.Join(local, fmt.Errorf("%w: %d bytes from %d, want %d", ErrMessageSize, len(msg), rank, desc.Len()*es))
			return nil
		}
		pos := 0
		for _, run := range desc.Runs() {
			dst := to.Data[run.Offset : run.Offset+run.Len]
			for k := range dst {
				dst[k] = d.codec.Get(msg[pos:])
				pos += es
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	return transport.Agree(ctx, d.t, local)
}

// Free releases the descriptors and buffers.
func (d *Datatype[T]) Free() {
	d.t = nil
	d.i = nil
	d.storages = [2]Storage[T]{}
	d.neighbours = nil
	d.byRank = map[int]*datatypeNeighbour{}
	d.verify = false
}
