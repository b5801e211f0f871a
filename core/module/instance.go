package module

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/propflow/propflow/core/anyvalue"
	"github.com/propflow/propflow/core/cache"
	"github.com/propflow/propflow/core/errs"
	"github.com/propflow/propflow/core/field"
	"github.com/propflow/propflow/core/hashing"
	"github.com/propflow/propflow/core/property"
)

// Instance is the runtime wrapper around a Base. It owns copies of the
// base's input, result, and submodule maps, so user overrides never
// leak back into the developer's defaults, plus the lock state, the
// profiling log, and the memoization cache handle.
type Instance struct {
	base    *Base
	inputs  *field.Map
	results *field.Map
	submods *RequestMap
	locked  bool
	records []callRecord
	cache   *cache.ModuleCache
	log     zerolog.Logger
}

// NewInstance wraps base with fresh copies of its maps. mc may be nil
// for an uncached instance.
func NewInstance(base *Base, mc *cache.ModuleCache, log zerolog.Logger) *Instance {
	inst := &Instance{base: base, cache: mc, log: log}
	if base != nil {
		inst.inputs = base.inputs.Clone()
		inst.results = base.results.Clone()
		inst.submods = base.submods.Clone()
	} else {
		inst.inputs = field.NewMap()
		inst.results = field.NewMap()
		inst.submods = NewRequestMap()
	}
	return inst
}

// HasModule reports whether an implementation is bound.
func (m *Instance) HasModule() bool { return m.base != nil }

func (m *Instance) assertModule() error {
	if m.base == nil {
		return errs.ErrNoModule
	}
	return nil
}

// Name returns the implementation identity, or "" when unbound.
func (m *Instance) Name() string {
	if m.base == nil {
		return ""
	}
	return m.base.name
}

// Description returns the module's documentation string.
func (m *Instance) Description() (string, error) {
	if err := m.assertModule(); err != nil {
		return "", err
	}
	return m.base.desc, nil
}

// Citations returns the module's literature references.
func (m *Instance) Citations() ([]string, error) {
	if err := m.assertModule(); err != nil {
		return nil, err
	}
	return m.base.Citations(), nil
}

// Inputs returns the instance's own input map. Mutating it never
// affects the base.
func (m *Instance) Inputs() *field.Map { return m.inputs }

// Results returns the instance's own result map.
func (m *Instance) Results() *field.Map { return m.results }

// Submods returns the instance's own submodule map.
func (m *Instance) Submods() *RequestMap { return m.submods }

// PropertyTypes returns the names of the property types the bound
// implementation satisfies.
func (m *Instance) PropertyTypes() []string {
	if m.base == nil {
		return nil
	}
	return m.base.PropertyTypes()
}

// Satisfies reports whether the bound implementation satisfies the
// named property type.
func (m *Instance) Satisfies(ptName string) bool {
	if m.base == nil {
		return false
	}
	_, ok := m.base.pts[ptName]
	return ok
}

// Locked reports the lock state.
func (m *Instance) Locked() bool { return m.locked }

// ChangeInput assigns a value to an input slot. Fails with ErrLocked
// once the instance is locked.
func (m *Instance) ChangeInput(key string, v anyvalue.Value) error {
	if m.locked {
		return fmt.Errorf("changing input %q: %w", key, errs.ErrLocked)
	}
	s, err := m.inputs.At(key)
	if err != nil {
		return err
	}
	return s.Change(v)
}

// ChangeSubmod binds a module to a submodule slot. Fails with
// ErrLocked once the instance is locked.
func (m *Instance) ChangeSubmod(key string, target *Instance) error {
	if m.locked {
		return fmt.Errorf("changing submodule %q: %w", key, errs.ErrLocked)
	}
	r, err := m.submods.At(key)
	if err != nil {
		return err
	}
	return r.Change(target)
}

// NotSet partitions what still blocks a run: unbound non-optional
// inputs (minus any keys supplied by extra) under "Inputs", unready
// submodule slots under "Submodules". Keys with no problems are
// absent from the result.
func (m *Instance) NotSet(extra *field.Map) map[string][]string {
	out := make(map[string][]string)
	var inputs []string
	for _, k := range m.inputs.NotReady() {
		if extra != nil && extra.Has(k) {
			continue
		}
		inputs = append(inputs, k)
	}
	if len(inputs) > 0 {
		out["Inputs"] = inputs
	}
	if subs := m.submods.NotReady(); len(subs) > 0 {
		out["Submodules"] = subs
	}
	return out
}

// Ready reports whether every non-optional input is bound (by the
// instance or by extra) and every submodule slot is satisfied.
func (m *Instance) Ready(extra *field.Map) bool {
	return len(m.NotSet(extra)) == 0
}

// Lock freezes the instance's inputs and submodule bindings. Bound
// submodules are locked first, transitively; a submodule that is not
// ready fails the lock with ErrSubmoduleNotReady. Locking is
// idempotent. A cycle in the submodule graph fails with ErrLocked
// before any readiness walk, since readiness itself cannot terminate
// on a cyclic graph.
func (m *Instance) Lock() error {
	if m.locked {
		return nil
	}
	if err := m.checkCycle(make(map[*Instance]bool)); err != nil {
		return err
	}
	return m.lock()
}

func (m *Instance) checkCycle(visiting map[*Instance]bool) error {
	if visiting[m] {
		return fmt.Errorf("submodule graph contains a cycle through %q: %w",
			m.Name(), errs.ErrLocked)
	}
	visiting[m] = true
	defer delete(visiting, m)

	var err error
	m.submods.Range(func(k string, r *Request) bool {
		if r.mod != nil {
			err = r.mod.checkCycle(visiting)
		}
		return err == nil
	})
	return err
}

func (m *Instance) lock() error {
	if m.locked {
		return nil
	}
	var err error
	m.submods.Range(func(k string, r *Request) bool {
		if !r.Ready() {
			err = fmt.Errorf("submodule %q: %w", k, errs.ErrSubmoduleNotReady)
			return false
		}
		err = r.mod.lock()
		return err == nil
	})
	if err != nil {
		return err
	}
	m.locked = true
	return nil
}

// Unlock unfreezes this instance only; submodules stay locked.
func (m *Instance) Unlock() { m.locked = false }

// IsMemoizable reports whether results may be cached: the base allows
// it and every bound submodule is itself memoizable.
func (m *Instance) IsMemoizable() bool {
	if m.base == nil || !m.base.memoizable {
		return false
	}
	ok := true
	m.submods.Range(func(k string, r *Request) bool {
		if r.mod != nil && !r.mod.IsMemoizable() {
			ok = false
		}
		return ok
	})
	return ok
}

// Hash feeds the instance's configuration to h: each opaque merged
// input as key then value, each bound submodule's digest in slot
// order, and the implementation identity last. Transparent inputs
// contribute nothing.
func (m *Instance) Hash(h *hashing.Hasher, extra *field.Map) error {
	if err := m.assertModule(); err != nil {
		return err
	}
	merged := m.inputs.Merge(extra)
	var err error
	merged.Range(func(k string, s *field.Spec) bool {
		if s.IsTransparent() {
			return true
		}
		h.WriteString(k)
		err = s.Hash(h)
		return err == nil
	})
	if err != nil {
		return err
	}
	m.submods.Range(func(k string, r *Request) bool {
		if r.mod == nil {
			return true
		}
		var d string
		d, err = r.mod.Digest(nil)
		if err != nil {
			return false
		}
		h.WriteString(d)
		return true
	})
	if err != nil {
		return err
	}
	h.WriteString(m.base.name)
	return nil
}

// Digest computes the 32-character memoization digest of the instance
// under the given extra inputs.
func (m *Instance) Digest(extra *field.Map) (string, error) {
	h := hashing.New()
	if err := m.Hash(h, extra); err != nil {
		return "", err
	}
	return h.Finalize().String(), nil
}

// IsCached reports whether a run with the given extra inputs would hit
// the cache.
func (m *Instance) IsCached(extra *field.Map) bool {
	if m.cache == nil {
		return false
	}
	d, err := m.Digest(extra)
	if err != nil {
		return false
	}
	ok, err := m.cache.Contains(d)
	return err == nil && ok
}

// ResetCache clears the module's content cache. Copies sharing the
// implementation identity lose their hits too.
func (m *Instance) ResetCache() error {
	if m.cache == nil {
		return nil
	}
	return m.cache.Reset()
}

// ResetUserCache clears the module's scratch cache.
func (m *Instance) ResetUserCache() error {
	if m.base == nil || m.base.user == nil {
		return nil
	}
	return m.base.user.Reset()
}

// ProfileInfo renders the per-call timing log followed by the nested
// profile of each submodule, two spaces deeper per level.
func (m *Instance) ProfileInfo() string {
	var sb strings.Builder
	for _, r := range m.records {
		sb.WriteString(r.String())
		sb.WriteByte('\n')
	}
	m.submods.Range(func(k string, r *Request) bool {
		sb.WriteString("  " + k + "\n")
		if r.mod != nil {
			for _, line := range strings.Split(strings.TrimRight(r.mod.ProfileInfo(), "\n"), "\n") {
				if line == "" {
					continue
				}
				sb.WriteString("    " + line + "\n")
			}
		}
		return true
	})
	return sb.String()
}

// LastTrace returns the submodule keys invoked by the most recent
// completed call, in call order.
func (m *Instance) LastTrace() []string {
	if len(m.records) == 0 {
		return nil
	}
	rec := m.records[len(m.records)-1]
	out := make([]string, len(rec.submods))
	copy(out, rec.submods)
	return out
}

// Run executes the module. The given inputs are merged onto a local
// copy of the instance's inputs (values overwrite, missing keys keep
// the bound values), readiness is checked, the digest is computed, the
// cache consulted, and on a miss the instance locks itself and its
// submodules and invokes the body. Memoizable results are stored under
// the digest before returning.
func (m *Instance) Run(ctx context.Context, in *field.Map) (*field.Map, error) {
	if m.base == nil || m.base.run == nil {
		return nil, errs.ErrNoModule
	}

	if in != nil {
		var badKey string
		in.Range(func(k string, s *field.Spec) bool {
			if !s.Ready() {
				badKey = k
				return false
			}
			return true
		})
		if badKey != "" {
			return nil, fmt.Errorf("supplied input %q has no value: %w", badKey,
				errs.ErrNotReady)
		}
	}

	if probs := m.NotSet(in); len(probs) > 0 {
		return nil, fmt.Errorf("missing %v: %w", probs, errs.ErrNotReady)
	}

	merged := m.inputs.Merge(in)
	digest, err := m.Digest(in)
	if err != nil {
		return nil, err
	}

	memoizable := m.IsMemoizable() && m.cache != nil
	stamp := Timestamp()
	started := time.Now()

	if memoizable {
		hit, err := m.cache.Contains(digest)
		if err != nil {
			return nil, err
		}
		if hit {
			out, err := m.cache.At(digest)
			if err != nil {
				return nil, err
			}
			m.records = append(m.records, callRecord{stamp: stamp, elapsed: time.Since(started)})
			m.log.Debug().Str("module", m.base.name).Str("digest", digest).
				Msg("memoized result")
			return out, nil
		}
	}

	if err := m.Lock(); err != nil {
		return nil, err
	}

	rec := callRecord{stamp: stamp}
	call := &Call{inst: m, rec: &rec}
	out, err := m.base.run(ctx, merged, call)
	rec.elapsed = time.Since(started)
	m.records = append(m.records, rec)
	if err != nil {
		return nil, fmt.Errorf("module %q: %w", m.base.name, err)
	}

	if memoizable {
		if err := m.cache.Insert(digest, out); err != nil {
			return nil, fmt.Errorf("module %q: storing result: %w", m.base.name, err)
		}
	}
	m.log.Debug().Str("module", m.base.name).Str("digest", digest).
		Dur("elapsed", rec.elapsed).Msg("computed result")
	return out, nil
}

// CloneUnlocked returns a deep copy of the instance. The copy is
// unlocked regardless of the source's lock state and shares the base
// and cache handle, so memoization hits transfer.
func (m *Instance) CloneUnlocked() *Instance {
	cp := &Instance{
		base:    m.base,
		inputs:  m.inputs.Clone(),
		results: m.results.Clone(),
		submods: m.submods.Clone(),
		cache:   m.cache,
		log:     m.log,
	}
	cp.records = append(cp.records, m.records...)
	return cp
}

// Equals compares lock state, inputs, submodule bindings, satisfied
// property types, and implementation identity.
func (m *Instance) Equals(rhs *Instance) bool {
	if m.HasModule() != rhs.HasModule() || m.locked != rhs.locked {
		return false
	}
	if !m.HasModule() {
		return true
	}
	if m.base.name != rhs.base.name {
		return false
	}
	if len(m.base.propTypes) != len(rhs.base.propTypes) {
		return false
	}
	for i, pt := range m.base.propTypes {
		if rhs.base.propTypes[i] != pt {
			return false
		}
	}
	return m.inputs.Equals(rhs.inputs) && m.submods.Equals(rhs.submods)
}

// RunAs dispatches a property-type call against an instance: the
// instance must satisfy pt, args are wrapped positionally into pt's
// input map, the module runs, and pt's results are unwrapped into a
// native slice.
func RunAs(ctx context.Context, inst *Instance, pt *property.Type, args ...any) ([]any, error) {
	if !inst.Satisfies(pt.Name()) {
		return nil, fmt.Errorf("module %q does not satisfy property type %q: %w",
			inst.Name(), pt.Name(), errs.ErrWrongType)
	}
	in := pt.Inputs()
	if err := property.WrapInputs(pt, in, args...); err != nil {
		return nil, err
	}
	out, err := inst.Run(ctx, in)
	if err != nil {
		return nil, err
	}
	return property.UnwrapResults(pt, out)
}

// Call is the handle a running body uses to reach its submodules and
// its scratch cache. Submodule invocations are recorded into the
// profiling log of the owning call.
type Call struct {
	inst *Instance
	rec  *callRecord
}

// RunSubmodule invokes the bound submodule at key through pt and
// returns pt's unwrapped results.
func (c *Call) RunSubmodule(ctx context.Context, key string, pt *property.Type, args ...any) ([]any, error) {
	r, err := c.inst.submods.At(key)
	if err != nil {
		return nil, err
	}
	if r.mod == nil {
		return nil, fmt.Errorf("submodule %q is unbound: %w", key, errs.ErrNotReady)
	}
	c.rec.submods = append(c.rec.submods, key)
	return RunAs(ctx, r.mod, pt, args...)
}

// UserCache returns the module's scratch cache, or nil when the
// manager has not attached one.
func (c *Call) UserCache() *cache.UserCache {
	if c.inst.base == nil {
		return nil
	}
	return c.inst.base.user
}
