package log

import (
	"go.uber.org/zap"

	"github.com/spacemeshos/go-parindex/common/types"
)

// ZRank is a field for a participant rank.
func ZRank(rank int) zap.Field {
	return zap.Int("rank", rank)
}

// ZPeerRank is a field for the rank on the other side of an exchange.
func ZPeerRank(rank int) zap.Field {
	return zap.Int("peer_rank", rank)
}

// ZGlobal is a field for a global index.
func ZGlobal(g types.GlobalIndex) zap.Field {
	return zap.Uint64("global", uint64(g))
}

// ZAttribute is a field for an attribute.
func ZAttribute(a types.Attribute) zap.Field {
	return zap.Stringer("attribute", a)
}

// ZAttributes is a field for an attribute predicate.
func ZAttributes(name string, s types.AttributeSet) zap.Field {
	return zap.Stringer(name, s)
}

// ZSeqNo is a field for an index set sequence number.
func ZSeqNo(seq uint64) zap.Field {
	return zap.Uint64("seq_no", seq)
}

// ZTag is a field for a transport message tag.
func ZTag(tag uint32) zap.Field {
	return zap.Uint32("tag", tag)
}
