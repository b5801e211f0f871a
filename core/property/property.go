// Package property defines the declarative contract a module satisfies:
// a named pairing of an input field map with a result field map, plus
// the positional wrap/unwrap machinery between native values and those
// maps.
package property

import (
	"fmt"
	"reflect"

	"github.com/propflow/propflow/core/anyvalue"
	"github.com/propflow/propflow/core/errs"
	"github.com/propflow/propflow/core/field"
)

// Declare populates a freshly made field map with a property type's
// input or result declarations. Declarations must be deterministic:
// the framework calls them whenever a fresh map is needed and relies
// on stable iteration order.
type Declare func(m *field.Map)

// Type is a property type: a stable identity plus factories for its
// input and result maps. A derived Type extends its base by appending
// fields after the base's, so the i-th positional argument always maps
// to the i-th declared field.
type Type struct {
	name    string
	base    *Type
	inputs  Declare
	results Declare
}

// New declares a property type. Either declaration may be nil for an
// empty map.
func New(name string, inputs, results Declare) *Type {
	return &Type{name: name, inputs: inputs, results: results}
}

// Derive declares a property type extending base: the new type's maps
// are the base's with the additional declarations appended.
func Derive(name string, base *Type, inputs, results Declare) *Type {
	return &Type{name: name, base: base, inputs: inputs, results: results}
}

// Name returns the property type's stable identity.
func (t *Type) Name() string { return t.name }

// Base returns the property type this one extends, or nil.
func (t *Type) Base() *Type { return t.base }

// Inputs produces a fresh input map.
func (t *Type) Inputs() *field.Map {
	m := field.NewMap()
	t.declareInputs(m)
	return m
}

// Results produces a fresh result map.
func (t *Type) Results() *field.Map {
	m := field.NewMap()
	t.declareResults(m)
	return m
}

func (t *Type) declareInputs(m *field.Map) {
	if t.base != nil {
		t.base.declareInputs(m)
	}
	if t.inputs != nil {
		t.inputs(m)
	}
}

func (t *Type) declareResults(m *field.Map) {
	if t.base != nil {
		t.base.declareResults(m)
	}
	if t.results != nil {
		t.results(m)
	}
}

// WrapInputs assigns args positionally into m: the i-th argument goes
// to the slot named by the i-th key of t's declared input map. Each
// argument must be of, or convertible to, the declared type at its
// position.
func WrapInputs(t *Type, m *field.Map, args ...any) error {
	return wrap(t.Inputs(), m, args)
}

// WrapResults assigns values positionally into m over t's declared
// result keys.
func WrapResults(t *Type, m *field.Map, values ...any) error {
	return wrap(t.Results(), m, values)
}

func wrap(declared, m *field.Map, args []any) error {
	keys := declared.Keys()
	if len(args) > len(keys) {
		return fmt.Errorf("wrapping %d values into %d declared fields: %w",
			len(args), len(keys), errs.ErrWrongType)
	}
	for i, a := range args {
		s, err := m.At(keys[i])
		if err != nil {
			return err
		}
		decl, err := declared.At(keys[i])
		if err != nil {
			return err
		}
		v, err := coerce(a, decl.Type())
		if err != nil {
			return fmt.Errorf("field %q: %w", keys[i], err)
		}
		if err := s.Change(v); err != nil {
			return fmt.Errorf("field %q: %w", keys[i], err)
		}
	}
	return nil
}

// coerce wraps a native value for a declared type, converting between
// compatible kinds the way an implicit conversion would.
func coerce(a any, want reflect.Type) (anyvalue.Value, error) {
	if a == nil {
		return anyvalue.Value{}, fmt.Errorf("nil value: %w", errs.ErrWrongType)
	}
	rv := reflect.ValueOf(a)
	if want == nil || rv.Type() == want {
		return anyvalue.Of(a), nil
	}
	if rv.Type().ConvertibleTo(want) && convertible(rv.Type().Kind(), want.Kind()) {
		return anyvalue.Of(rv.Convert(want).Interface()), nil
	}
	return anyvalue.Value{}, fmt.Errorf("value of type %s for %s slot: %w",
		rv.Type(), want, errs.ErrWrongType)
}

// convertible limits reflect conversions to numeric-to-numeric ones,
// narrowing included (a float64 converts to an int by truncation); it
// keeps string/[]byte and similar representation changes out.
func convertible(from, to reflect.Kind) bool {
	num := func(k reflect.Kind) bool {
		return k >= reflect.Int && k <= reflect.Float64
	}
	return num(from) && num(to)
}

// UnwrapInputs extracts t's declared input values from m in positional
// order. An empty declaration yields an empty slice.
func UnwrapInputs(t *Type, m *field.Map) ([]any, error) {
	return unwrap(t.Inputs(), m)
}

// UnwrapResults extracts t's declared result values from m in
// positional order.
func UnwrapResults(t *Type, m *field.Map) ([]any, error) {
	return unwrap(t.Results(), m)
}

func unwrap(declared, m *field.Map) ([]any, error) {
	keys := declared.Keys()
	out := make([]any, 0, len(keys))
	for _, k := range keys {
		s, err := m.At(k)
		if err != nil {
			return nil, err
		}
		v := s.GetValue()
		if !v.HasValue() {
			return nil, fmt.Errorf("field %q has no value: %w", k, errs.ErrNotReady)
		}
		out = append(out, v.Raw())
	}
	return out, nil
}
