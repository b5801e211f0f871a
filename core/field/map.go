package field

import (
	"fmt"
	"strings"

	"github.com/propflow/propflow/core/errs"
)

// Map is an ordered collection of Specs keyed by case-insensitive
// strings. Iteration order equals insertion order; the original casing
// of each key is preserved.
type Map struct {
	keys  []string
	specs []*Spec
	idx   map[string]int
}

// NewMap returns an empty Map.
func NewMap() *Map {
	return &Map{idx: make(map[string]int)}
}

func fold(key string) string { return strings.ToLower(key) }

// Insert adds a new slot under key and returns it for building. If the
// key already exists (case-insensitively) the existing slot is
// returned.
func (m *Map) Insert(key string) *Spec {
	if i, ok := m.idx[fold(key)]; ok {
		return m.specs[i]
	}
	s := &Spec{}
	m.idx[fold(key)] = len(m.keys)
	m.keys = append(m.keys, key)
	m.specs = append(m.specs, s)
	return s
}

// At returns the slot stored under key.
func (m *Map) At(key string) (*Spec, error) {
	i, ok := m.idx[fold(key)]
	if !ok {
		return nil, fmt.Errorf("field %q: %w", key, errs.ErrNotFound)
	}
	return m.specs[i], nil
}

// Has reports whether key is present.
func (m *Map) Has(key string) bool {
	_, ok := m.idx[fold(key)]
	return ok
}

// Size returns the number of slots.
func (m *Map) Size() int { return len(m.keys) }

// Keys returns the keys in insertion order. The slice is a copy.
func (m *Map) Keys() []string {
	out := make([]string, len(m.keys))
	copy(out, m.keys)
	return out
}

// Range calls fn for each (key, slot) pair in insertion order until fn
// returns false.
func (m *Map) Range(fn func(key string, s *Spec) bool) {
	for i, k := range m.keys {
		if !fn(k, m.specs[i]) {
			return
		}
	}
}

// Equals compares two maps key-by-key in order.
func (m *Map) Equals(rhs *Map) bool {
	if len(m.keys) != len(rhs.keys) {
		return false
	}
	for i, k := range m.keys {
		if fold(k) != fold(rhs.keys[i]) {
			return false
		}
		if !m.specs[i].Equals(rhs.specs[i]) {
			return false
		}
	}
	return true
}

// Clone returns a deep copy: the slots of the copy can be mutated
// without affecting the source.
func (m *Map) Clone() *Map {
	cp := NewMap()
	for i, k := range m.keys {
		cp.idx[fold(k)] = len(cp.keys)
		cp.keys = append(cp.keys, k)
		cp.specs = append(cp.specs, m.specs[i].Clone())
	}
	return cp
}

// Merge overlays the bound values of src onto a clone of m: slots
// present in src overwrite the clone's values, slots missing from src
// keep the clone's. Keys in src that m lacks are appended. The result
// is a fresh map; neither operand is mutated.
func (m *Map) Merge(src *Map) *Map {
	out := m.Clone()
	if src == nil {
		return out
	}
	src.Range(func(k string, s *Spec) bool {
		if i, ok := out.idx[fold(k)]; ok {
			if s.HasValue() {
				out.specs[i] = s.Clone()
			}
		} else {
			out.idx[fold(k)] = len(out.keys)
			out.keys = append(out.keys, k)
			out.specs = append(out.specs, s.Clone())
		}
		return true
	})
	return out
}

// NotReady returns the keys of slots whose Ready check fails, in
// iteration order.
func (m *Map) NotReady() []string {
	var out []string
	m.Range(func(k string, s *Spec) bool {
		if !s.Ready() {
			out = append(out, k)
		}
		return true
	})
	return out
}
