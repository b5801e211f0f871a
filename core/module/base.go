// Package module implements the developer-facing module unit and the
// runtime instance that wraps it: effective inputs, submodule bindings,
// lock lifecycle, profiling, and memoization.
package module

import (
	"context"
	"fmt"

	"github.com/propflow/propflow/core/cache"
	"github.com/propflow/propflow/core/field"
	"github.com/propflow/propflow/core/property"
)

// RunFn is a module's computation body. It receives the merged input
// map and a Call handle for invoking submodules and reaching the user
// scratch cache. Bodies must be pure up to their declared inputs and
// submodules; anything else breaks memoization.
type RunFn func(ctx context.Context, inputs *field.Map, call *Call) (*field.Map, error)

// Base is a developer-authored module: the property types it
// satisfies, its declared inputs, results and submodule slots, its
// metadata, and its computation body. A Base is built once, registered
// with a manager, and shared read-only by every instance of it.
type Base struct {
	name       string
	desc       string
	citations  []string
	inputs     *field.Map
	results    *field.Map
	submods    *RequestMap
	propTypes  []string
	pts        map[string]*property.Type
	memoizable bool
	run        RunFn
	user       *cache.UserCache
}

// NewBase starts building a module. The name is the module's
// implementation identity: it feeds the memoization digest and keys
// the shared cache, so two bases with the same name share cached
// results.
func NewBase(name string) *Base {
	return &Base{
		name:       name,
		inputs:     field.NewMap(),
		results:    field.NewMap(),
		submods:    NewRequestMap(),
		pts:        make(map[string]*property.Type),
		memoizable: true,
	}
}

// Name returns the implementation identity.
func (b *Base) Name() string { return b.name }

// SatisfiesPropertyType appends the property type's input and result
// declarations to the module's own maps and records the satisfied
// type. When two property types declare the same key, the metadata of
// the one added last wins.
func (b *Base) SatisfiesPropertyType(pt *property.Type) *Base {
	overlay(b.inputs, pt.Inputs())
	overlay(b.results, pt.Results())
	if _, ok := b.pts[pt.Name()]; !ok {
		b.propTypes = append(b.propTypes, pt.Name())
	}
	b.pts[pt.Name()] = pt
	return b
}

func overlay(dst, src *field.Map) {
	src.Range(func(k string, s *field.Spec) bool {
		existing := dst.Insert(k)
		*existing = *s.Clone()
		return true
	})
}

// AddInput declares an input slot beyond what the property types
// declare and returns it for building.
func AddInput[T any](b *Base, key string) *field.Spec {
	return field.SetType[T](b.inputs.Insert(key))
}

// AddResult declares a result slot beyond what the property types
// declare and returns it for building.
func AddResult[T any](b *Base, key string) *field.Spec {
	return field.SetType[T](b.results.Insert(key))
}

// AddSubmodule declares a callback slot that must be bound to a module
// satisfying pt before this module can run.
func (b *Base) AddSubmodule(pt *property.Type, key string) *Request {
	r := b.submods.Insert(key)
	r.pt = pt
	return r
}

// Description sets the module's documentation string.
func (b *Base) Description(desc string) *Base {
	b.desc = desc
	return b
}

// GetDescription returns the module's documentation string.
func (b *Base) GetDescription() string { return b.desc }

// Citation appends a literature reference. Repeatable.
func (b *Base) Citation(c string) *Base {
	b.citations = append(b.citations, c)
	return b
}

// Citations returns the recorded references.
func (b *Base) Citations() []string {
	out := make([]string, len(b.citations))
	copy(out, b.citations)
	return out
}

// TurnOffMemoization marks the module's results as non-cacheable, for
// bodies that are not pure functions of their inputs.
func (b *Base) TurnOffMemoization() *Base {
	b.memoizable = false
	return b
}

// TurnOnMemoization restores the default cacheable behavior.
func (b *Base) TurnOnMemoization() *Base {
	b.memoizable = true
	return b
}

// IsMemoizable reports the base's own flag; instances combine it with
// their submodules' flags.
func (b *Base) IsMemoizable() bool { return b.memoizable }

// RunWith attaches the computation body.
func (b *Base) RunWith(fn RunFn) *Base {
	b.run = fn
	return b
}

// HasRun reports whether a body is attached.
func (b *Base) HasRun() bool { return b.run != nil }

// Inputs returns the base's declared input map for metadata tweaks
// during construction.
func (b *Base) Inputs() *field.Map { return b.inputs }

// Results returns the base's declared result map.
func (b *Base) Results() *field.Map { return b.results }

// Submods returns the base's declared submodule slots.
func (b *Base) Submods() *RequestMap { return b.submods }

// PropertyTypes returns the names of the satisfied property types in
// declaration order.
func (b *Base) PropertyTypes() []string {
	out := make([]string, len(b.propTypes))
	copy(out, b.propTypes)
	return out
}

// PropertyType returns the satisfied property type with the given
// name, or nil.
func (b *Base) PropertyType(name string) *property.Type { return b.pts[name] }

// SetUserCache hands the base its scratch cache. Called by the manager
// at registration.
func (b *Base) SetUserCache(u *cache.UserCache) { b.user = u }

// Validate checks the construction invariants: every property-type
// declared key must appear in the module's own maps with the declared
// type.
func (b *Base) Validate() error {
	for _, name := range b.propTypes {
		pt := b.pts[name]
		if err := subset(pt.Inputs(), b.inputs, name, "input"); err != nil {
			return err
		}
		if err := subset(pt.Results(), b.results, name, "result"); err != nil {
			return err
		}
	}
	return nil
}

func subset(declared, own *field.Map, pt, kind string) error {
	var err error
	declared.Range(func(k string, s *field.Spec) bool {
		have, e := own.At(k)
		if e != nil {
			err = fmt.Errorf("property type %s declares %s %q which the module lacks", pt, kind, k)
			return false
		}
		if s.Type() != nil && have.Type() != s.Type() {
			err = fmt.Errorf("property type %s declares %s %q as %s, module has %s",
				pt, kind, k, s.Type(), have.Type())
			return false
		}
		return true
	})
	return err
}
