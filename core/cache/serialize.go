package cache

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"reflect"

	"github.com/propflow/propflow/core/anyvalue"
	"github.com/propflow/propflow/core/errs"
	"github.com/propflow/propflow/core/field"
)

// Values cross the backend boundary as opaque byte strings. The codec
// wraps gob with a small envelope so type-erased values round-trip:
// Decode(Encode(v)) rebuilds an equal value with the same runtime
// type. Concrete types carried inside a value must be registered;
// the types the hasher supports are pre-registered.

func init() {
	for _, v := range []any{
		bool(false), int(0), int8(0), int16(0), int32(0), int64(0),
		uint(0), uint8(0), uint16(0), uint32(0), uint64(0),
		float32(0), float64(0), "",
		[]byte(nil), []int(nil), []int32(nil), []int64(nil), []float64(nil),
		[]string(nil), []bool(nil),
	} {
		gob.Register(v)
	}
}

// RegisterType makes T encodable inside cached values. Modules whose
// results carry custom types call this once at load time.
func RegisterType[T any]() {
	var v T
	gob.Register(v)
}

type valueEnvelope struct {
	V any
}

// EncodeValue serializes a type-erased value.
func EncodeValue(v anyvalue.Value) ([]byte, error) {
	var buf bytes.Buffer
	env := valueEnvelope{V: v.Raw()}
	if err := gob.NewEncoder(&buf).Encode(env); err != nil {
		return nil, fmt.Errorf("encoding %s: %v: %w", v.TypeName(), err, errs.ErrBackend)
	}
	return buf.Bytes(), nil
}

// DecodeValue rebuilds a type-erased value.
func DecodeValue(b []byte) (anyvalue.Value, error) {
	var env valueEnvelope
	if err := gob.NewDecoder(bytes.NewReader(b)).Decode(&env); err != nil {
		return anyvalue.Value{}, fmt.Errorf("decoding value: %v: %w", err, errs.ErrBackend)
	}
	if env.V == nil {
		return anyvalue.Value{}, nil
	}
	return anyvalue.Of(env.V), nil
}

type fieldEntry struct {
	Key         string
	Desc        string
	Optional    bool
	Transparent bool
	V           any
}

// EncodeFieldMap serializes a result map: key order, metadata, and
// bound values. Checks are not serialized; a decoded map is for
// reading results, not for further validation.
func EncodeFieldMap(m *field.Map) ([]byte, error) {
	entries := make([]fieldEntry, 0, m.Size())
	m.Range(func(k string, s *field.Spec) bool {
		entries = append(entries, fieldEntry{
			Key:         k,
			Desc:        s.Description(),
			Optional:    s.IsOptional(),
			Transparent: s.IsTransparent(),
			V:           s.GetValue().Raw(),
		})
		return true
	})
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(entries); err != nil {
		return nil, fmt.Errorf("encoding field map: %v: %w", err, errs.ErrBackend)
	}
	return buf.Bytes(), nil
}

// DecodeFieldMap rebuilds a serialized result map in its original key
// order.
func DecodeFieldMap(b []byte) (*field.Map, error) {
	var entries []fieldEntry
	if err := gob.NewDecoder(bytes.NewReader(b)).Decode(&entries); err != nil {
		return nil, fmt.Errorf("decoding field map: %v: %w", err, errs.ErrBackend)
	}
	m := field.NewMap()
	for _, e := range entries {
		s := m.Insert(e.Key)
		s.SetDescription(e.Desc)
		if e.Optional {
			s.MakeOptional()
		}
		if e.Transparent {
			s.MakeTransparent()
		}
		if e.V != nil {
			s.SetTypeOf(reflect.TypeOf(e.V))
			if err := s.Change(anyvalue.Of(e.V)); err != nil {
				return nil, err
			}
		}
	}
	return m, nil
}
