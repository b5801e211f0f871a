// Package field defines the input/result slots of a module: the Spec
// describing one slot and the ordered, case-insensitive Map of slots.
package field

import (
	"fmt"
	"reflect"

	"github.com/propflow/propflow/core/anyvalue"
	"github.com/propflow/propflow/core/errs"
	"github.com/propflow/propflow/core/hashing"
)

// Check is a validation predicate with a human-readable description.
type Check struct {
	Fn   func(anyvalue.Value) bool
	Desc string
}

// Spec declares one input or result slot: its type, metadata, current
// value, and the checks a value must satisfy.
//
// A Spec is mutated through its builder methods while the owning module
// is unlocked and is frozen thereafter; the freeze is enforced by the
// module instance, not here.
type Spec struct {
	typ         reflect.Type
	value       anyvalue.Value
	def         anyvalue.Value
	desc        string
	checks      []Check
	optional    bool
	transparent bool
}

// SetType declares the slot's type. Pointer types are rejected at
// declaration time: slots hold values, views are taken at extraction.
// Calling SetType again clears any stored value of the old type.
func SetType[T any](s *Spec) *Spec {
	t := reflect.TypeFor[T]()
	if t.Kind() == reflect.Pointer {
		panic(fmt.Sprintf("field: declared type %s must not be a pointer", t))
	}
	if s.typ != t {
		s.value = anyvalue.Value{}
		s.def = anyvalue.Value{}
	}
	s.typ = t
	return s
}

// SetTypeOf is SetType for callers that only have a reflect.Type, such
// as the cache codec rebuilding a stored result map.
func (s *Spec) SetTypeOf(t reflect.Type) *Spec {
	if t != nil && t.Kind() == reflect.Pointer {
		panic(fmt.Sprintf("field: declared type %s must not be a pointer", t))
	}
	if s.typ != t {
		s.value = anyvalue.Value{}
		s.def = anyvalue.Value{}
	}
	s.typ = t
	return s
}

// Type returns the declared type, or nil if none is declared yet.
func (s *Spec) Type() reflect.Type { return s.typ }

// HasType reports whether a type has been declared.
func (s *Spec) HasType() bool { return s.typ != nil }

// SetDescription sets the slot's documentation string.
func (s *Spec) SetDescription(desc string) *Spec {
	s.desc = desc
	return s
}

// Description returns the slot's documentation string.
func (s *Spec) Description() string { return s.desc }

// AddCheck registers a validation predicate. If the slot already holds
// a value the new check must accept it, otherwise the check is not
// added and ErrInvalid is returned.
func (s *Spec) AddCheck(fn func(anyvalue.Value) bool, desc string) error {
	if s.value.HasValue() && !fn(s.value) {
		return fmt.Errorf("stored value rejected by check %q: %w", desc,
			errs.ErrInvalid)
	}
	s.checks = append(s.checks, Check{Fn: fn, Desc: desc})
	return nil
}

// AddTypedCheck registers a predicate over the unwrapped value. Values
// of the wrong type never reach fn.
func AddTypedCheck[T any](s *Spec, fn func(T) bool, desc string) error {
	return s.AddCheck(func(v anyvalue.Value) bool {
		x, err := anyvalue.Cast[T](v)
		if err != nil {
			return false
		}
		return fn(x)
	}, desc)
}

// MakeOptional marks the slot as not needed for readiness.
func (s *Spec) MakeOptional() *Spec {
	s.optional = true
	return s
}

// MakeRequired marks the slot as needed for readiness.
func (s *Spec) MakeRequired() *Spec {
	s.optional = false
	return s
}

// IsOptional reports whether the slot is optional.
func (s *Spec) IsOptional() bool { return s.optional }

// MakeTransparent excludes the slot's value from digest computation.
func (s *Spec) MakeTransparent() *Spec {
	s.transparent = true
	return s
}

// MakeOpaque includes the slot's value in digest computation.
func (s *Spec) MakeOpaque() *Spec {
	s.transparent = false
	return s
}

// IsTransparent reports whether the slot is excluded from digests.
func (s *Spec) IsTransparent() bool { return s.transparent }

// Change assigns a value to the slot. The value must satisfy the
// declared type and every registered check; on failure the slot is
// unchanged.
func (s *Spec) Change(v anyvalue.Value) error {
	if s.typ == nil {
		return fmt.Errorf("assigning a value before SetType: %w", errs.ErrNoType)
	}
	if !v.HasValue() || v.Type() != s.typ {
		return fmt.Errorf("assigning %s to %s slot: %w", v.TypeName(), s.typ,
			errs.ErrWrongType)
	}
	for _, c := range s.checks {
		if !c.Fn(v) {
			return fmt.Errorf("value %s rejected by check %q: %w", v, c.Desc,
				errs.ErrInvalid)
		}
	}
	s.value = v
	return nil
}

// Set wraps v and assigns it to the slot.
func Set[T any](s *Spec, v T) error { return s.Change(anyvalue.New(v)) }

// SetDefault records a default value and, like Change, binds it as the
// slot's current value. The default must pass the same validation.
func (s *Spec) SetDefault(v anyvalue.Value) error {
	if err := s.Change(v); err != nil {
		return err
	}
	s.def = v
	return nil
}

// Default wraps v and records it as the slot's default.
func Default[T any](s *Spec, v T) error { return s.SetDefault(anyvalue.New(v)) }

// HasValue reports whether a value is bound.
func (s *Spec) HasValue() bool { return s.value.HasValue() }

// GetValue returns the bound value box; empty if none is bound.
func (s *Spec) GetValue() anyvalue.Value { return s.value }

// Value extracts the bound value as T.
func Value[T any](s *Spec) (T, error) { return anyvalue.Cast[T](s.value) }

// IsValid probes whether v could be assigned. Type mismatches and
// check failures report false rather than an error.
func (s *Spec) IsValid(v anyvalue.Value) bool {
	if s.typ == nil || !v.HasValue() || v.Type() != s.typ {
		return false
	}
	for _, c := range s.checks {
		if !c.Fn(v) {
			return false
		}
	}
	return true
}

// Ready reports whether the slot blocks a run: true when optional or
// when a value is bound.
func (s *Spec) Ready() bool { return s.optional || s.value.HasValue() }

// CheckDescriptions returns the descriptions of every active check in
// registration order. The declared-type check is always first.
func (s *Spec) CheckDescriptions() []string {
	out := make([]string, 0, len(s.checks)+1)
	if s.typ != nil {
		out = append(out, "Type == "+s.typ.String())
	}
	for _, c := range s.checks {
		out = append(out, c.Desc)
	}
	return out
}

// Hash feeds the slot's value to h. Transparent slots feed nothing, so
// a transparent slot's standalone digest is the all-zero string.
func (s *Spec) Hash(h *hashing.Hasher) error {
	if s.transparent {
		return nil
	}
	return s.value.Hash(h)
}

// Digest returns the slot's standalone 32-character digest.
func (s *Spec) Digest() (string, error) {
	h := hashing.New()
	if err := s.Hash(h); err != nil {
		return "", err
	}
	return h.Finalize().String(), nil
}

// Equals compares declared type, bound value, metadata, and check
// descriptions. Check functions themselves cannot be compared.
func (s *Spec) Equals(rhs *Spec) bool {
	if s.typ != rhs.typ || s.desc != rhs.desc ||
		s.optional != rhs.optional || s.transparent != rhs.transparent {
		return false
	}
	if !s.value.Equals(rhs.value) || !s.def.Equals(rhs.def) {
		return false
	}
	if len(s.checks) != len(rhs.checks) {
		return false
	}
	for i := range s.checks {
		if s.checks[i].Desc != rhs.checks[i].Desc {
			return false
		}
	}
	return true
}

// Clone returns a deep copy of the slot.
func (s *Spec) Clone() *Spec {
	cp := &Spec{
		typ:         s.typ,
		value:       s.value.Clone(),
		def:         s.def.Clone(),
		desc:        s.desc,
		optional:    s.optional,
		transparent: s.transparent,
	}
	cp.checks = append(cp.checks, s.checks...)
	return cp
}
