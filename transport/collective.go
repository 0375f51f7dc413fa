package transport

import (
	"context"
	"fmt"

	"github.com/spacemeshos/go-scale"

	"github.com/spacemeshos/go-parindex/codec"
)

// Op combines two contributions of a reduction.
type Op func(a, b int64) int64

var (
	// OpMin selects the smallest contribution.
	OpMin Op = func(a, b int64) int64 { return min(a, b) }
	// OpMax selects the largest contribution.
	OpMax Op = func(a, b int64) int64 { return max(a, b) }
	// OpSum adds all contributions.
	OpSum Op = func(a, b int64) int64 { return a + b }
)

type reduceValue int64

func (v reduceValue) EncodeScale(e *scale.Encoder) (int, error) {
	return scale.EncodeUint64(e, uint64(v))
}

func (v *reduceValue) DecodeScale(d *scale.Decoder) (int, error) {
	u, n, err := scale.DecodeUint64(d)
	*v = reduceValue(u)
	return n, err
}

// AllReduce combines v of every rank with op and returns the result on every rank.
// Rank 0 collects the contributions in rank order and broadcasts the result.
func AllReduce(ctx context.Context, t Transport, v int64, op Op) (int64, error) {
	if t.Size() == 1 {
		return v, nil
	}
	if t.Rank() != 0 {
		if err := t.Send(ctx, 0, tagReduce, codec.MustEncode(reduceValue(v))); err != nil {
			return 0, fmt.Errorf("send contribution: %w", err)
		}
		msg, err := t.Recv(ctx, 0, tagResult)
		if err != nil {
			return 0, fmt.Errorf("receive reduction result: %w", err)
		}
		var res reduceValue
		if err := codec.Decode(msg, &res); err != nil {
			return 0, fmt.Errorf("reduction result: %w", err)
		}
		return int64(res), nil
	}
	acc := v
	for r := 1; r < t.Size(); r++ {
		msg, err := t.Recv(ctx, r, tagReduce)
		if err != nil {
			return 0, fmt.Errorf("receive contribution of %d: %w", r, err)
		}
		var c reduceValue
		if err := codec.Decode(msg, &c); err != nil {
			return 0, fmt.Errorf("contribution of %d: %w", r, err)
		}
		acc = op(acc, int64(c))
	}
	out := codec.MustEncode(reduceValue(acc))
	for r := 1; r < t.Size(); r++ {
		if err := t.Send(ctx, r, tagResult, out); err != nil {
			return 0, fmt.Errorf("send reduction result to %d: %w", r, err)
		}
	}
	return acc, nil
}

// Agree makes every rank observe a failure if any rank reports one.
// It must be reached by every rank, so local is only used for failures that leave
// the message pattern of the preceding exchange intact.
func Agree(ctx context.Context, t Transport, local error) error {
	ok := int64(1)
	if local != nil {
		ok = 0
	}
	all, err := AllReduce(ctx, t, ok, OpMin)
	switch {
	case local != nil:
		return fmt.Errorf("%w: %w", ErrCommunication, local)
	case err != nil:
		return fmt.Errorf("%w: %w", ErrCommunication, err)
	case all == 0:
		return fmt.Errorf("%w: failed on a remote rank", ErrCommunication)
	}
	return nil
}

// Barrier returns once every rank has called it.
func Barrier(ctx context.Context, t Transport) error {
	if _, err := AllReduce(ctx, t, 0, OpSum); err != nil {
		return fmt.Errorf("%w: barrier: %w", ErrCommunication, err)
	}
	return nil
}
