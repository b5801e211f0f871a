package module

import (
	"context"
	"fmt"
	"strings"

	"github.com/propflow/propflow/core/errs"
	"github.com/propflow/propflow/core/property"
)

// Request declares a callback slot: the property type a bound module
// must satisfy, a description of what the slot is used for, and the
// bound module instance once one is assigned.
type Request struct {
	pt   *property.Type
	desc string
	mod  *Instance
}

// SetType declares the property type a bound module must satisfy.
func (r *Request) SetType(pt *property.Type) *Request {
	r.pt = pt
	return r
}

// Type returns the expected property type.
func (r *Request) Type() *property.Type { return r.pt }

// SetDescription documents what the slot is used for.
func (r *Request) SetDescription(desc string) *Request {
	r.desc = desc
	return r
}

// Description returns the slot's documentation string.
func (r *Request) Description() string { return r.desc }

// Change binds a module instance to the slot. The instance must
// satisfy the slot's declared property type.
func (r *Request) Change(inst *Instance) error {
	if r.pt == nil {
		return fmt.Errorf("submodule slot has no declared property type: %w",
			errs.ErrNoType)
	}
	if inst == nil || !inst.Satisfies(r.pt.Name()) {
		return fmt.Errorf("module does not satisfy property type %q: %w",
			r.pt.Name(), errs.ErrWrongType)
	}
	r.mod = inst
	return nil
}

// HasModule reports whether a module is bound.
func (r *Request) HasModule() bool { return r.mod != nil }

// Value returns the bound module instance, or nil.
func (r *Request) Value() *Instance { return r.mod }

// Ready reports whether the slot can be called: a type is declared, a
// module is bound, and that module is ready once credited with the
// inputs the property type will supply at call time.
func (r *Request) Ready() bool {
	return r.pt != nil && r.mod != nil && r.mod.Ready(r.pt.Inputs())
}

// RunAs invokes the bound module through pt. Calls made this way are
// not recorded in any profiling trace; bodies should prefer
// Call.RunSubmodule.
func (r *Request) RunAs(ctx context.Context, pt *property.Type, args ...any) ([]any, error) {
	if r.mod == nil {
		return nil, fmt.Errorf("submodule is unbound: %w", errs.ErrNotReady)
	}
	return RunAs(ctx, r.mod, pt, args...)
}

// Clone returns a copy of the request. The bound instance is shared,
// not copied: submodule identity is by reference into the manager's
// table.
func (r *Request) Clone() *Request {
	return &Request{pt: r.pt, desc: r.desc, mod: r.mod}
}

// Equals compares declared type, description, and bound instance
// identity.
func (r *Request) Equals(rhs *Request) bool {
	if (r.pt == nil) != (rhs.pt == nil) {
		return false
	}
	if r.pt != nil && r.pt.Name() != rhs.pt.Name() {
		return false
	}
	return r.desc == rhs.desc && r.mod == rhs.mod
}

// RequestMap is an ordered collection of Requests keyed by
// case-insensitive strings, mirroring field.Map.
type RequestMap struct {
	keys []string
	reqs []*Request
	idx  map[string]int
}

// NewRequestMap returns an empty RequestMap.
func NewRequestMap() *RequestMap {
	return &RequestMap{idx: make(map[string]int)}
}

// Insert adds a new slot under key, or returns the existing one.
func (m *RequestMap) Insert(key string) *Request {
	if i, ok := m.idx[strings.ToLower(key)]; ok {
		return m.reqs[i]
	}
	r := &Request{}
	m.idx[strings.ToLower(key)] = len(m.keys)
	m.keys = append(m.keys, key)
	m.reqs = append(m.reqs, r)
	return r
}

// At returns the slot stored under key.
func (m *RequestMap) At(key string) (*Request, error) {
	i, ok := m.idx[strings.ToLower(key)]
	if !ok {
		return nil, fmt.Errorf("submodule %q: %w", key, errs.ErrNotFound)
	}
	return m.reqs[i], nil
}

// Has reports whether key is present.
func (m *RequestMap) Has(key string) bool {
	_, ok := m.idx[strings.ToLower(key)]
	return ok
}

// Size returns the number of slots.
func (m *RequestMap) Size() int { return len(m.keys) }

// Keys returns the keys in insertion order. The slice is a copy.
func (m *RequestMap) Keys() []string {
	out := make([]string, len(m.keys))
	copy(out, m.keys)
	return out
}

// Range calls fn for each (key, request) pair in insertion order until
// fn returns false.
func (m *RequestMap) Range(fn func(key string, r *Request) bool) {
	for i, k := range m.keys {
		if !fn(k, m.reqs[i]) {
			return
		}
	}
}

// NotReady returns the keys of slots whose Ready check fails, in
// iteration order.
func (m *RequestMap) NotReady() []string {
	var out []string
	m.Range(func(k string, r *Request) bool {
		if !r.Ready() {
			out = append(out, k)
		}
		return true
	})
	return out
}

// Equals compares two maps key-by-key in order.
func (m *RequestMap) Equals(rhs *RequestMap) bool {
	if len(m.keys) != len(rhs.keys) {
		return false
	}
	for i, k := range m.keys {
		if strings.ToLower(k) != strings.ToLower(rhs.keys[i]) {
			return false
		}
		if !m.reqs[i].Equals(rhs.reqs[i]) {
			return false
		}
	}
	return true
}

// Clone returns a copy with cloned requests. Bound instances are
// shared by reference.
func (m *RequestMap) Clone() *RequestMap {
	cp := NewRequestMap()
	for i, k := range m.keys {
		cp.idx[strings.ToLower(k)] = len(cp.keys)
		cp.keys = append(cp.keys, k)
		cp.reqs = append(cp.reqs, m.reqs[i].Clone())
	}
	return cp
}
