package communicator

import (
	"encoding/binary"
	"math"
)

// ElementCodec packs single elements into message buffers.
type ElementCodec[T any] interface {
	// Size is the encoded size of one element in bytes.
	Size() int
	Put(b []byte, v T)
	Get(b []byte) T
}

// Float64Codec encodes float64 as little endian IEEE 754.
type Float64Codec struct{}

func (Float64Codec) Size() int { return 8 }

func (Float64Codec) Put(b []byte, v float64) { binary.LittleEndian.PutUint64(b, math.Float64bits(v)) }

func (Float64Codec) Get(b []byte) float64 { return math.Float64frombits(binary.LittleEndian.Uint64(b)) }

// Int64Codec encodes int64 as little endian two's complement.
type Int64Codec struct{}

func (Int64Codec) Size() int { return 8 }

func (Int64Codec) Put(b []byte, v int64) { binary.LittleEndian.PutUint64(b, uint64(v)) }

func (Int64Codec) Get(b []byte) int64 { return int64(binary.LittleEndian.Uint64(b)) }

// Uint64Codec encodes uint64 as little endian.
type Uint64Codec struct{}

func (Uint64Codec) Size() int { return 8 }

func (Uint64Codec) Put(b []byte, v uint64) { binary.LittleEndian.PutUint64(b, v) }

func (Uint64Codec) Get(b []byte) uint64 { return binary.LittleEndian.Uint64(b) }
