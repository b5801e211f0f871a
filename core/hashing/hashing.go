// Package hashing implements the 128-bit content hash that identifies
// module configurations in the memoization cache.
//
// The algorithm is canonical MurmurHash3 x64/128 with seed 0, computed
// progressively: data is buffered into 16-byte blocks and mixed
// block-by-block, and the partial tail is folded in at finalization
// exactly as the reference implementation does. Digests render as 32
// lowercase hexadecimal characters, low word first, each word
// little-endian.
//
// The value encodings layered on top are a wire contract: scalar
// values feed a raw 64-bit byte-width prefix followed by their
// little-endian bytes; strings, byte slices, and slices feed their raw
// element bytes followed by a 64-bit element count; a boxed value
// feeds its encoding followed by a one marker, an empty box feeds a
// zero marker. Changing any of these invalidates every previously
// stored digest.
package hashing

import (
	"encoding/hex"
	"math"
	"math/bits"
)

const (
	c1 = 0x87c37b91114253d5
	c2 = 0x4cf5ad432745937f
)

// Value is a finalized 128-bit hash.
type Value [16]byte

// String renders the hash as 32 lowercase hex characters.
func (v Value) String() string { return hex.EncodeToString(v[:]) }

// Zero is the all-zero Value. It is the digest of a zero-length feed
// and doubles as the sentinel digest of transparent fields.
var Zero Value

// Hashable is implemented by values that know how to feed themselves
// to a Hasher.
type Hashable interface {
	Hash(h *Hasher)
}

// Hasher accumulates bytes into a 128-bit hash. The zero value is not
// usable; call New.
type Hasher struct {
	h1, h2  uint64
	buf     [16]byte
	nbuf    int
	written uint64
}

// New returns a Hasher ready to accept data.
func New() *Hasher { return &Hasher{} }

// Write feeds raw bytes to the hash.
func (h *Hasher) Write(p []byte) {
	h.written += uint64(len(p))
	if h.nbuf > 0 {
		n := copy(h.buf[h.nbuf:], p)
		h.nbuf += n
		p = p[n:]
		if h.nbuf == 16 {
			h.mix(h.buf[:])
			h.nbuf = 0
		}
	}
	for len(p) >= 16 {
		h.mix(p[:16])
		p = p[16:]
	}
	h.nbuf += copy(h.buf[h.nbuf:], p)
}

func (h *Hasher) mix(block []byte) {
	k1 := le64(block[0:8])
	k2 := le64(block[8:16])

	k1 *= c1
	k1 = bits.RotateLeft64(k1, 31)
	k1 *= c2
	h.h1 ^= k1
	h.h1 = bits.RotateLeft64(h.h1, 27)
	h.h1 += h.h2
	h.h1 = h.h1*5 + 0x52dce729

	k2 *= c2
	k2 = bits.RotateLeft64(k2, 33)
	k2 *= c1
	h.h2 ^= k2
	h.h2 = bits.RotateLeft64(h.h2, 31)
	h.h2 += h.h1
	h.h2 = h.h2*5 + 0x38495ab5
}

// Finalize completes the hash. The buffered partial block goes through
// the reference tail path: the real tail bytes fold into k1/k2 and the
// h-state via XOR and multiply only, without the full-block mixing
// step. The Hasher must not be reused afterwards.
func (h *Hasher) Finalize() Value {
	if h.nbuf > 0 {
		tail := h.buf[:h.nbuf]
		var k1, k2 uint64
		if h.nbuf > 8 {
			for i := h.nbuf - 1; i >= 8; i-- {
				k2 = k2<<8 | uint64(tail[i])
			}
			k2 *= c2
			k2 = bits.RotateLeft64(k2, 33)
			k2 *= c1
			h.h2 ^= k2
		}
		last := h.nbuf
		if last > 8 {
			last = 8
		}
		for i := last - 1; i >= 0; i-- {
			k1 = k1<<8 | uint64(tail[i])
		}
		k1 *= c1
		k1 = bits.RotateLeft64(k1, 31)
		k1 *= c2
		h.h1 ^= k1
		h.nbuf = 0
	}

	h.h1 ^= h.written
	h.h2 ^= h.written
	h.h1 += h.h2
	h.h2 += h.h1
	h.h1 = fmix64(h.h1)
	h.h2 = fmix64(h.h2)
	h.h1 += h.h2
	h.h2 += h.h1

	var v Value
	putLE64(v[0:8], h.h1)
	putLE64(v[8:16], h.h2)
	return v
}

func fmix64(k uint64) uint64 {
	k ^= k >> 33
	k *= 0xff51afd7ed558ccd
	k ^= k >> 33
	k *= 0xc4ceb9fe1a85ec53
	k ^= k >> 33
	return k
}

func le64(b []byte) uint64 {
	return uint64(b[0]) | uint64(b[1])<<8 | uint64(b[2])<<16 |
		uint64(b[3])<<24 | uint64(b[4])<<32 | uint64(b[5])<<40 |
		uint64(b[6])<<48 | uint64(b[7])<<56
}

func putLE64(b []byte, v uint64) {
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * i))
	}
}

// WriteLen feeds a raw little-endian 64-bit integer. It carries the
// structural numbers of the encoding: element counts, the box
// presence markers, and the width prefixes emitted by the scalar
// writers.
func (h *Hasher) WriteLen(v uint64) {
	var b [8]byte
	putLE64(b[:], v)
	h.Write(b[:])
}

// raw little-endian emitters, used for scalar payloads and slice
// elements.

func (h *Hasher) raw8(v uint8) { h.Write([]byte{v}) }

func (h *Hasher) raw16(v uint16) {
	h.Write([]byte{byte(v), byte(v >> 8)})
}

func (h *Hasher) raw32(v uint32) {
	h.Write([]byte{byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24)})
}

func (h *Hasher) raw64(v uint64) { h.WriteLen(v) }

func boolByte(v bool) uint8 {
	if v {
		return 1
	}
	return 0
}

// Scalar writers. A scalar feeds its byte width then its
// little-endian bytes.

// WriteBool feeds a bool as a one-byte scalar.
func (h *Hasher) WriteBool(v bool) {
	h.WriteLen(1)
	h.raw8(boolByte(v))
}

// WriteInt8 feeds a one-byte scalar.
func (h *Hasher) WriteInt8(v int8) {
	h.WriteLen(1)
	h.raw8(uint8(v))
}

// WriteUint8 feeds a one-byte scalar.
func (h *Hasher) WriteUint8(v uint8) {
	h.WriteLen(1)
	h.raw8(v)
}

// WriteInt16 feeds a two-byte scalar.
func (h *Hasher) WriteInt16(v int16) {
	h.WriteLen(2)
	h.raw16(uint16(v))
}

// WriteUint16 feeds a two-byte scalar.
func (h *Hasher) WriteUint16(v uint16) {
	h.WriteLen(2)
	h.raw16(v)
}

// WriteInt32 feeds a four-byte scalar.
func (h *Hasher) WriteInt32(v int32) {
	h.WriteLen(4)
	h.raw32(uint32(v))
}

// WriteUint32 feeds a four-byte scalar.
func (h *Hasher) WriteUint32(v uint32) {
	h.WriteLen(4)
	h.raw32(v)
}

// WriteInt feeds an int as a four-byte scalar by its low 32 bits.
// Values outside the 32-bit range must be hashed as int64 by the
// caller.
func (h *Hasher) WriteInt(v int) { h.WriteInt32(int32(v)) }

// WriteUint feeds a uint as a four-byte scalar by its low 32 bits.
func (h *Hasher) WriteUint(v uint) { h.WriteUint32(uint32(v)) }

// WriteInt64 feeds an eight-byte scalar.
func (h *Hasher) WriteInt64(v int64) {
	h.WriteLen(8)
	h.raw64(uint64(v))
}

// WriteUint64 feeds an eight-byte scalar.
func (h *Hasher) WriteUint64(v uint64) {
	h.WriteLen(8)
	h.raw64(v)
}

// WriteFloat32 feeds the IEEE-754 bits of a float32 as a four-byte
// scalar.
func (h *Hasher) WriteFloat32(v float32) {
	h.WriteLen(4)
	h.raw32(math.Float32bits(v))
}

// WriteFloat64 feeds the IEEE-754 bits of a float64 as an eight-byte
// scalar.
func (h *Hasher) WriteFloat64(v float64) {
	h.WriteLen(8)
	h.raw64(math.Float64bits(v))
}

// Container writers. A container feeds its raw contents then its
// element count.

// WriteString feeds the string's bytes then its length.
func (h *Hasher) WriteString(v string) {
	h.Write([]byte(v))
	h.WriteLen(uint64(len(v)))
}

// WriteBytes feeds the slice's bytes then its length.
func (h *Hasher) WriteBytes(v []byte) {
	h.Write(v)
	h.WriteLen(uint64(len(v)))
}
