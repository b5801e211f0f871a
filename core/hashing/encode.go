package hashing

import (
	"fmt"
	"math"
)

// WriteValue feeds an arbitrary supported value to the hasher using
// the canonical encodings: scalars width-prefixed, containers as raw
// element bytes followed by the element count. Supported types: bool,
// the fixed-width integers, int/uint, floats, string, []byte,
// []bool, []int, []int32, []int64, []float64, []string, and any type
// implementing Hashable; slices of other element types are rejected. Unsupported types return an error so callers can refuse
// to memoize rather than silently collide.
func (h *Hasher) WriteValue(v any) error {
	switch x := v.(type) {
	case Hashable:
		x.Hash(h)
	case bool:
		h.WriteBool(x)
	case int:
		h.WriteInt(x)
	case int8:
		h.WriteInt8(x)
	case int16:
		h.WriteInt16(x)
	case int32:
		h.WriteInt32(x)
	case int64:
		h.WriteInt64(x)
	case uint:
		h.WriteUint(x)
	case uint8:
		h.WriteUint8(x)
	case uint16:
		h.WriteUint16(x)
	case uint32:
		h.WriteUint32(x)
	case uint64:
		h.WriteUint64(x)
	case float32:
		h.WriteFloat32(x)
	case float64:
		h.WriteFloat64(x)
	case string:
		h.WriteString(x)
	case []byte:
		h.WriteBytes(x)
	case []bool:
		for _, e := range x {
			h.raw8(boolByte(e))
		}
		h.WriteLen(uint64(len(x)))
	case []int:
		for _, e := range x {
			h.raw32(uint32(int32(e)))
		}
		h.WriteLen(uint64(len(x)))
	case []int32:
		for _, e := range x {
			h.raw32(uint32(e))
		}
		h.WriteLen(uint64(len(x)))
	case []int64:
		for _, e := range x {
			h.raw64(uint64(e))
		}
		h.WriteLen(uint64(len(x)))
	case []float64:
		for _, e := range x {
			h.raw64(math.Float64bits(e))
		}
		h.WriteLen(uint64(len(x)))
	case []string:
		for _, e := range x {
			h.WriteString(e)
		}
		h.WriteLen(uint64(len(x)))
	default:
		return fmt.Errorf("hashing: unsupported type %T", v)
	}
	return nil
}

// Digest hashes a sequence of supported values and returns the hex
// string. It panics on unsupported types; it is intended for values
// whose types were vetted at declaration time.
func Digest(values ...any) string {
	h := New()
	for _, v := range values {
		if err := h.WriteValue(v); err != nil {
			panic(err)
		}
	}
	return h.Finalize().String()
}
