package types

import (
	"cmp"
	"strconv"

	"github.com/spacemeshos/go-scale"
)

// GlobalIndexSize is the size of an encoded GlobalIndex in bytes.
const GlobalIndexSize = 8

// GlobalIndex identifies an entity across all participating processes.
type GlobalIndex uint64

// Compare returns -1, 0 or 1 depending on the order of g and other.
func (g GlobalIndex) Compare(other GlobalIndex) int {
	return cmp.Compare(g, other)
}

func (g GlobalIndex) String() string {
	return strconv.FormatUint(uint64(g), 10)
}

// EncodeScale implements scale.Encodable.
func (g GlobalIndex) EncodeScale(e *scale.Encoder) (int, error) {
	return scale.EncodeUint64(e, uint64(g))
}

// DecodeScale implements scale.Decodable.
func (g *GlobalIndex) DecodeScale(d *scale.Decoder) (int, error) {
	v, total, err := scale.DecodeUint64(d)
	*g = GlobalIndex(v)
	return total, err
}
