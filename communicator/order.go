package communicator

import (
	"context"
	"fmt"

	"github.com/spacemeshos/go-scale"
	"go.uber.org/zap"

	"github.com/spacemeshos/go-parindex/codec"
	"github.com/spacemeshos/go-parindex/hash"
	"github.com/spacemeshos/go-parindex/iface"
	"github.com/spacemeshos/go-parindex/log"
	"github.com/spacemeshos/go-parindex/transport"
)

// orderToken carries the digests of the send and receive lists shared with one neighbour.
type orderToken struct {
	Send    hash.Digest
	Receive hash.Digest
}

func (o *orderToken) EncodeScale(e *scale.Encoder) (int, error) {
	n, err := o.Send.EncodeScale(e)
	if err != nil {
		return n, err
	}
	m, err := o.Receive.EncodeScale(e)
	return n + m, err
}

func (o *orderToken) DecodeScale(d *scale.Decoder) (int, error) {
	n, err := o.Send.DecodeScale(d)
	if err != nil {
		return n, err
	}
	m, err := o.Receive.DecodeScale(d)
	return n + m, err
}

func tokens(i *iface.Interface) map[int]orderToken {
	out := make(map[int]orderToken, len(i.Interfaces()))
	for rank, info := range i.Interfaces() {
		out[rank] = orderToken{
			Send:    hash.Globals(info.Send.Globals),
			Receive: hash.Globals(info.Receive.Globals),
		}
	}
	return out
}

// verifyOrder checks with every neighbour that the send list of one side lists the same
// global indices in the same order as the receive list of the other side.
func verifyOrder(ctx context.Context, logger *zap.Logger, t transport.Transport, i *iface.Interface) error {
	own := tokens(i)
	out := make(map[int][]byte, len(own))
	for rank, tok := range own {
		out[rank] = codec.MustEncode(&tok)
	}
	var local error
	err := transport.Exchange(ctx, t, transport.TagOrder, out, i.Ranks(), func(from int, msg []byte) error {
		var theirs orderToken
		if err := codec.Decode(msg, &theirs); err != nil {
			local = fmt.Errorf("order token from %d: %w", from, err)
			return nil
		}
		mine := own[from]
		if theirs.Send != mine.Receive || theirs.Receive != mine.Send {
			logger.Warn("interface order differs",
				log.ZPeerRank(from),
				zap.Stringer("send", mine.Send),
				zap.Stringer("their_receive", theirs.Receive),
			)
			local = fmt.Errorf("%w with rank %d", ErrOrderMismatch, from)
		}
		return nil
	})
	if err != nil {
		return err
	}
	return transport.Agree(ctx, t, local)
}
