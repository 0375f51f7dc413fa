package communicator

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/spacemeshos/go-parindex/iface"
	"github.com/spacemeshos/go-parindex/log"
	"github.com/spacemeshos/go-parindex/transport"
)

type bufferedNeighbour struct {
	rank int
	// lists[forward] is gathered when sending forward and scattered into when
	// receiving backward, lists[backward] the other way round.
	lists [2]*iface.List
	elems [2]int
	out   [2][]byte
}

// Buffered exchanges values of containers of type C with elements of type T.
type Buffered[C, T any] struct {
	settings
	policy     Policy[C, T]
	codec      ElementCodec[T]
	t          transport.Transport
	i          *iface.Interface
	neighbours []*bufferedNeighbour
	byRank     map[int]*bufferedNeighbour
	bufs       [2][]byte
	verify     bool
}

// NewBuffered creates a communicator for containers described by policy.
func NewBuffered[C, T any](policy Policy[C, T], codec ElementCodec[T], opts ...Opt) *Buffered[C, T] {
	b := &Buffered[C, T]{
		settings: defaultSettings(),
		policy:   policy,
		codec:    codec,
	}
	for _, opt := range opts {
		opt(&b.settings)
	}
	b.logger = b.logger.Named("buffered")
	return b
}

// Build prepares the message buffers for i. The policy must have a fixed slot size.
func (b *Buffered[C, T]) Build(i *iface.Interface) error {
	n, ok := b.policy.Fixed()
	if !ok {
		return ErrVariableSizeNeedsData
	}
	b.build(i, func(l *iface.List, _ direction) int { return l.Len() * n })
	return nil
}

// BuildWithData prepares the message buffers for i with slot sizes taken from source and dest.
// Forward sends from source to dest and backward from dest to source.
func (b *Buffered[C, T]) BuildWithData(source, dest C, i *iface.Interface) error {
	if _, ok := b.policy.Fixed(); ok {
		return b.Build(i)
	}
	b.build(i, func(l *iface.List, d direction) int {
		c := source
		if d == backward {
			c = dest
		}
		return b.elements(c, l)
	})
	return nil
}

func (b *Buffered[C, T]) elements(c C, l *iface.List) int {
	if n, ok := b.policy.Fixed(); ok {
		return l.Len() * n
	}
	total := 0
	for _, slot := range l.Slots {
		total += len(b.policy.Slot(c, slot))
	}
	return total
}

func (b *Buffered[C, T]) build(i *iface.Interface, size func(*iface.List, direction) int) {
	b.Free()
	b.t = i.Transport()
	b.i = i
	es := b.codec.Size()
	var total [2]int
	for _, rank := range i.Ranks() {
		info, _ := i.Info(rank)
		n := &bufferedNeighbour{
			rank:  rank,
			lists: [2]*iface.List{&info.Send, &info.Receive},
		}
		for d := range n.lists {
			n.elems[d] = size(n.lists[d], direction(d))
			total[d] += n.elems[d]
		}
		b.neighbours = append(b.neighbours, n)
		b.byRank[rank] = n
	}
	for d := range b.bufs {
		b.bufs[d] = make([]byte, total[d]*es)
		off := 0
		for _, n := range b.neighbours {
			end := off + n.elems[d]*es
			n.out[d] = b.bufs[d][off:end:end]
			off = end
		}
	}
	b.verify = b.orderCheck
	b.logger.Debug("built buffered communicator",
		log.ZRank(b.t.Rank()),
		zap.Int("neighbours", len(b.neighbours)),
		zap.Int("forward_bytes", len(b.bufs[forward])),
		zap.Int("backward_bytes", len(b.bufs[backward])),
	)
}

// Forward sends the values of the send slots of source to the receive slots of dest.
func (b *Buffered[C, T]) Forward(ctx context.Context, gs GatherScatter[C, T], source, dest C) error {
	return b.exchange(ctx, forward, gs, source, dest)
}

// Backward sends the values of the receive slots of dest to the send slots of source.
func (b *Buffered[C, T]) Backward(ctx context.Context, gs GatherScatter[C, T], source, dest C) error {
	return b.exchange(ctx, backward, gs, dest, source)
}

// ForwardInPlace is Forward with data as source and destination.
func (b *Buffered[C, T]) ForwardInPlace(ctx context.Context, gs GatherScatter[C, T], data C) error {
	return b.exchange(ctx, forward, gs, data, data)
}

// BackwardInPlace is Backward with data as source and destination.
func (b *Buffered[C, T]) BackwardInPlace(ctx context.Context, gs GatherScatter[C, T], data C) error {
	return b.exchange(ctx, backward, gs, data, data)
}

// VerifyOrder checks with every neighbour that both sides list their shared slots in the same order.
func (b *Buffered[C, T]) VerifyOrder(ctx context.Context) error {
	if b.t == nil {
		return ErrNotBuilt
	}
	return verifyOrder(ctx, b.logger, b.t, b.i)
}

func (b *Buffered[C, T]) exchange(ctx context.Context, d direction, gs GatherScatter[C, T], from, to C) error {
	if b.t == nil {
		return ErrNotBuilt
	}
	if b.verify {
		b.verify = false
		if err := verifyOrder(ctx, b.logger, b.t, b.i); err != nil {
			return err
		}
	}
	es := b.codec.Size()
	var local error
	out := make(map[int][]byte, len(b.neighbours))
	ranks := make([]int, 0, len(b.neighbours))
	for _, n := range b.neighbours {
		ranks = append(ranks, n.rank)
		buf := n.out[d]
		if got := b.elements(from, n.lists[d]); got != n.elems[d] {
			local = errors.Join(local, fmt.Errorf("%w: %d elements for %d, built for %d", ErrMessageSize, got, n.rank, n.elems[d]))
			out[n.rank] = nil
			continue
		}
		pos := 0
		for _, slot := range n.lists[d].Slots {
			for j := range len(b.policy.Slot(from, slot)) {
				b.codec.Put(buf[pos:], gs.Gather(from, slot, j))
				pos += es
			}
		}
		out[n.rank] = buf
		packed.WithLabelValues("buffered", d.String()).Add(float64(n.elems[d]))
	}
	recv := 1 - d
	err := transport.Exchange(ctx, b.t, transport.TagCommunicator, out, ranks, func(rank int, msg []byte) error {
		n := b.byRank[rank]
		if len(msg) != n.elems[recv]*es {
			local = errors.Join(local, fmt.Errorf("%w: %d bytes from %d, want %d", ErrMessageSize, len(msg), rank, n.elems[recv]*es))
			return nil
		}
		pos := 0
		for _, slot := range n.lists[recv].Slots {
			size := len(b.policy.Slot(to, slot))
			if pos+size*es > len(msg) {
				local = errors.Join(local, fmt.Errorf("%w: slots of %d outgrew the message", ErrMessageSize, rank))
				return nil
			}
			for j := range size {
				gs.Scatter(to, b.codec.Get(msg[pos:]), slot, j)
				pos += es
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	return transport.Agree(ctx, b.t, local)
}

// Free releases the buffers. The communicator must be built again before the next exchange.
func (b *Buffered[C, T]) Free() {
	b.t = nil
	b.i = nil
	b.neighbours = nil
	b.byRank = map[int]*bufferedNeighbour{}
	b.bufs = [2][]byte{}
	b.verify = false
}
