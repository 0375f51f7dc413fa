package hash

import (
	"sync"

	"github.com/zeebo/blake3"
)

// hashers amortizes allocations of blake3 state between digests of the communicators.
var hashers = sync.Pool{
	New: func() any {
		return blake3.New()
	},
}

func getHasher() *blake3.Hasher {
	return hashers.Get().(*blake3.Hasher)
}

// putHasher resets h before returning it to the pool.
func putHasher(h *blake3.Hasher) {
	h.Reset()
	hashers.Put(h)
}
