// Package anyvalue provides the type-erased value container every input
// and result flows through. A Value carries exactly one wrapped value
// together with its runtime type identity; extraction is checked against
// that identity at runtime.
package anyvalue

import (
	"fmt"
	"reflect"

	"github.com/propflow/propflow/core/errs"
	"github.com/propflow/propflow/core/hashing"
)

// EmptyString is what an empty Value prints as.
const EmptyString = "<empty AnyValue>"

// Value is a type-erased box. The zero Value is empty: it holds nothing,
// prints as EmptyString, and compares equal only to another empty Value.
type Value struct {
	// ptr is a *T where T is the stored type; nil when empty. Storage
	// is always behind a pointer so a mutable view can be handed out
	// for owned values.
	ptr any
	typ reflect.Type

	// ro marks values wrapped from a read-only view. A mutable pointer
	// is never produced for them.
	ro bool
}

// New wraps an owned copy of v.
func New[T any](v T) Value {
	p := new(T)
	*p = v
	return Value{ptr: p, typ: reflect.TypeFor[T]()}
}

// NewView wraps a non-owning view of the value at p. The Value must not
// outlive the pointee.
func NewView[T any](p *T) Value {
	return Value{ptr: p, typ: reflect.TypeFor[T]()}
}

// NewConst wraps an owned copy of v that is read-only: Cast to a
// mutable pointer fails with ErrWrongType.
func NewConst[T any](v T) Value {
	p := new(T)
	*p = v
	return Value{ptr: p, typ: reflect.TypeFor[T](), ro: true}
}

// HasValue reports whether the box holds a value.
func (v Value) HasValue() bool { return v.ptr != nil }

// Type returns the runtime type identity of the stored value, or nil
// for an empty Value.
func (v Value) Type() reflect.Type { return v.typ }

// TypeName returns the stored type's name, or "" for an empty Value.
func (v Value) TypeName() string {
	if v.typ == nil {
		return ""
	}
	return v.typ.String()
}

// Cast extracts the stored value as T. T must be the stored type, or a
// pointer to it when a mutable view is wanted; the latter fails with
// ErrWrongType for read-only values.
func Cast[T any](v Value) (T, error) {
	var zero T
	if v.ptr == nil {
		return zero, fmt.Errorf("cast of empty value to %s: %w",
			reflect.TypeFor[T](), errs.ErrWrongType)
	}
	want := reflect.TypeFor[T]()
	if want == v.typ {
		return *(v.ptr.(*T)), nil
	}
	if want.Kind() == reflect.Pointer && want.Elem() == v.typ {
		if v.ro {
			return zero, fmt.Errorf("mutable cast of read-only %s: %w",
				v.typ, errs.ErrWrongType)
		}
		return v.ptr.(T), nil
	}
	return zero, fmt.Errorf("cast of %s to %s: %w", v.typ, want,
		errs.ErrWrongType)
}

// MustCast is Cast for callers who have already vetted the type.
func MustCast[T any](v Value) T {
	x, err := Cast[T](v)
	if err != nil {
		panic(err)
	}
	return x
}

// IsConvertible reports whether Cast[T] would succeed.
func IsConvertible[T any](v Value) bool {
	_, err := Cast[T](v)
	return err == nil
}

// unwrap returns the stored value as an interface, or nil when empty.
func (v Value) unwrap() any {
	if v.ptr == nil {
		return nil
	}
	return reflect.ValueOf(v.ptr).Elem().Interface()
}

// Raw returns the stored value as an interface, or nil for an empty
// Value. The caller must not mutate reference-typed contents.
func (v Value) Raw() any { return v.unwrap() }

// Equals compares two boxes. Empty compares equal only to empty; boxes
// with different type identities are unequal; otherwise equality
// delegates to the wrapped values.
func (v Value) Equals(rhs Value) bool {
	if v.ptr == nil || rhs.ptr == nil {
		return v.ptr == nil && rhs.ptr == nil
	}
	if v.typ != rhs.typ {
		return false
	}
	return reflect.DeepEqual(v.unwrap(), rhs.unwrap())
}

// Hash feeds the box to h. An empty box feeds a raw zero marker; a
// full box feeds the wrapped value's canonical encoding followed by a
// raw one marker.
func (v Value) Hash(h *hashing.Hasher) error {
	if v.ptr == nil {
		h.WriteLen(0)
		return nil
	}
	if err := h.WriteValue(v.unwrap()); err != nil {
		return err
	}
	h.WriteLen(1)
	return nil
}

// String renders the wrapped value with fmt, or EmptyString.
func (v Value) String() string {
	if v.ptr == nil {
		return EmptyString
	}
	return fmt.Sprintf("%v", v.unwrap())
}

// Clone returns a box holding a fresh copy of the wrapped value. The
// copy is owned and writable even when the source was a view or
// read-only.
func (v Value) Clone() Value {
	if v.ptr == nil {
		return Value{}
	}
	src := reflect.ValueOf(v.ptr).Elem()
	dst := reflect.New(v.typ)
	dst.Elem().Set(src)
	return Value{ptr: dst.Interface(), typ: v.typ}
}

// Of wraps an arbitrary already-erased value. Used where the static
// type is not available, e.g. when deserializing cache entries.
func Of(v any) Value {
	if v == nil {
		return Value{}
	}
	rv := reflect.ValueOf(v)
	p := reflect.New(rv.Type())
	p.Elem().Set(rv)
	return Value{ptr: p.Interface(), typ: rv.Type()}
}
