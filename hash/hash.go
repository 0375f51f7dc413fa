// Package hash computes digests of global index sequences.
package hash

import (
	"encoding/hex"

	"github.com/spacemeshos/go-scale"

	"github.com/spacemeshos/go-parindex/common/types"
)

// Size is the size of a digest in bytes.
const Size = 32

// Digest is the blake3 digest of an ordered sequence of global indices.
type Digest [Size]byte

// ShortString returns the first 5 bytes in hex.
func (d Digest) ShortString() string {
	return hex.EncodeToString(d[:5])
}

func (d Digest) String() string {
	return hex.EncodeToString(d[:])
}

// EncodeScale implements scale.Encodable.
func (d *Digest) EncodeScale(e *scale.Encoder) (int, error) {
	return scale.EncodeByteArray(e, d[:])
}

// DecodeScale implements scale.Decodable.
func (d *Digest) DecodeScale(dec *scale.Decoder) (int, error) {
	return scale.DecodeByteArray(dec, d[:])
}

// Globals returns the digest of globals in the given order.
func Globals(globals []types.GlobalIndex) Digest {
	h := getHasher()
	defer putHasher(h)
	enc := scale.NewEncoder(h)
	for _, g := range globals {
		// writes to the hasher do not fail
		_, _ = g.EncodeScale(enc)
	}
	var d Digest
	h.Sum(d[:0])
	return d
}
