// Package manager implements the keyed registry of module instances,
// the property-type default map, and the run_as dispatch entry point.
package manager

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/propflow/propflow/core/anyvalue"
	"github.com/propflow/propflow/core/cache"
	"github.com/propflow/propflow/core/errs"
	"github.com/propflow/propflow/core/events"
	"github.com/propflow/propflow/core/exporter"
	"github.com/propflow/propflow/core/field"
	"github.com/propflow/propflow/core/module"
	"github.com/propflow/propflow/core/property"
)

// Options configures a Manager. Zero values get working defaults: an
// in-memory cache, a nop logger, no event bus, no exporter.
type Options struct {
	Cache    *cache.ManagerCache
	Bus      *events.Bus
	Exporter *exporter.PrometheusExporter
	Logger   zerolog.Logger
}

type defaultEntry struct {
	key    string
	inputs *field.Map
}

// Manager is the named registry of module instances. All operations
// return on the calling thread; the manager's own bookkeeping is
// guarded, but a single instance must not be run from two goroutines
// at once.
type Manager struct {
	mu       sync.RWMutex
	keys     []string
	modules  map[string]*module.Instance
	bases    map[string]*module.Base
	defaults map[string]defaultEntry
	caches   *cache.ManagerCache
	bus      *events.Bus
	exp      *exporter.PrometheusExporter
	log      zerolog.Logger
}

// New creates a Manager.
func New(opts Options) *Manager {
	if opts.Cache == nil {
		opts.Cache = cache.NewManagerCache(opts.Logger)
	}
	return &Manager{
		modules:  make(map[string]*module.Instance),
		bases:    make(map[string]*module.Base),
		defaults: make(map[string]defaultEntry),
		caches:   opts.Cache,
		bus:      opts.Bus,
		exp:      opts.Exporter,
		log:      opts.Logger,
	}
}

func fold(key string) string { return strings.ToLower(key) }

// Caches returns the manager's cache factory, e.g. for
// ChangeSaveLocation or a Backup at shutdown.
func (m *Manager) Caches() *cache.ManagerCache { return m.caches }

// AddModule registers a new instance of base under key. The instance
// receives the cache handle of base's implementation identity, so
// every instance of the same implementation shares cached results.
func (m *Manager) AddModule(key string, base *module.Base) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.modules[fold(key)]; exists {
		return fmt.Errorf("module key %q already in use", key)
	}
	if err := base.Validate(); err != nil {
		return err
	}

	user, err := m.caches.UserCacheFor(base.Name())
	if err != nil {
		return err
	}
	base.SetUserCache(user)

	// First registration of an implementation wins, mirroring how
	// re-adding the same module type reuses the stored base.
	if _, ok := m.bases[base.Name()]; !ok {
		m.bases[base.Name()] = base
	}

	mc, err := m.caches.ModuleCacheFor(base.Name())
	if err != nil {
		return err
	}

	inst := module.NewInstance(m.bases[base.Name()], mc, m.log)
	m.keys = append(m.keys, key)
	m.modules[fold(key)] = inst

	m.publish(events.Event{Name: events.ModuleAdded, Module: key})
	if m.exp != nil {
		m.exp.SetModuleCount(len(m.keys))
	}
	m.log.Info().Str("key", key).Str("impl", base.Name()).Msg("module registered")
	return nil
}

// CopyModule deep-copies the instance at oldKey under newKey. The copy
// is unlocked and shares the original's implementation identity, so
// memoization hits transfer.
func (m *Manager) CopyModule(oldKey, newKey string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	src, ok := m.modules[fold(oldKey)]
	if !ok {
		return fmt.Errorf("module %q: %w", oldKey, errs.ErrNotFound)
	}
	if _, exists := m.modules[fold(newKey)]; exists {
		return fmt.Errorf("module key %q already in use", newKey)
	}
	m.keys = append(m.keys, newKey)
	m.modules[fold(newKey)] = src.CloneUnlocked()

	m.publish(events.Event{Name: events.ModuleCopied, Module: newKey,
		Data: map[string]any{"source": oldKey}})
	if m.exp != nil {
		m.exp.SetModuleCount(len(m.keys))
	}
	return nil
}

// Erase removes the instance at key. Cached results are untouched.
// Submodule bindings that pointed at the instance keep working until
// rebound; the binding is by instance, not by key.
func (m *Manager) Erase(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.modules[fold(key)]; !ok {
		return
	}
	delete(m.modules, fold(key))
	for i, k := range m.keys {
		if fold(k) == fold(key) {
			m.keys = append(m.keys[:i], m.keys[i+1:]...)
			break
		}
	}
	m.publish(events.Event{Name: events.ModuleErased, Module: key})
	if m.exp != nil {
		m.exp.SetModuleCount(len(m.keys))
	}
}

// Count returns 1 when key is registered, 0 otherwise.
func (m *Manager) Count(key string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if _, ok := m.modules[fold(key)]; ok {
		return 1
	}
	return 0
}

// Size returns the number of registered instances.
func (m *Manager) Size() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.keys)
}

// Keys returns the registered keys in registration order.
func (m *Manager) Keys() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, len(m.keys))
	copy(out, m.keys)
	return out
}

// At returns the instance at key, after filling each of its unready
// submodule slots with the registered default module for the slot's
// property type, provided that default is itself ready.
func (m *Manager) At(key string) (*module.Instance, error) {
	m.mu.RLock()
	inst, ok := m.modules[fold(key)]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("module %q: %w", key, errs.ErrNotFound)
	}
	m.fillDefaults(inst, make(map[*module.Instance]bool))
	return inst, nil
}

func (m *Manager) fillDefaults(inst *module.Instance, seen map[*module.Instance]bool) {
	if seen[inst] {
		return
	}
	seen[inst] = true
	inst.Submods().Range(func(k string, r *module.Request) bool {
		if r.Ready() || r.Type() == nil {
			return true
		}
		m.mu.RLock()
		def, ok := m.defaults[r.Type().Name()]
		var target *module.Instance
		if ok {
			target = m.modules[fold(def.key)]
		}
		m.mu.RUnlock()
		if target == nil {
			return true
		}
		m.fillDefaults(target, seen)
		if target.Ready(def.inputs) {
			if err := r.Change(target); err != nil {
				m.log.Warn().Err(err).Str("submodule", k).Msg("default binding rejected")
			}
		}
		return true
	})
}

// SetDefault records key as the default implementation of pt, with
// inputs consulted when deciding whether the default is ready to be
// bound. A nil inputs map means pt's own declared inputs, which will
// be supplied by any call made through pt. A previous default for pt
// is overwritten.
func (m *Manager) SetDefault(pt *property.Type, inputs *field.Map, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.modules[fold(key)]; !ok {
		return fmt.Errorf("module %q: %w", key, errs.ErrNotFound)
	}
	if inputs == nil {
		inputs = pt.Inputs()
	}
	m.defaults[pt.Name()] = defaultEntry{key: key, inputs: inputs}
	return nil
}

// ChangeInput assigns a value to an input slot of the instance at
// moduleKey.
func (m *Manager) ChangeInput(moduleKey, inputKey string, v anyvalue.Value) error {
	inst, err := m.At(moduleKey)
	if err != nil {
		return err
	}
	return inst.ChangeInput(inputKey, v)
}

// SetInput wraps v and assigns it to an input slot of the instance at
// moduleKey.
func SetInput[T any](m *Manager, moduleKey, inputKey string, v T) error {
	return m.ChangeInput(moduleKey, inputKey, anyvalue.New(v))
}

// ChangeSubmod binds the instance at targetKey into a submodule slot
// of the instance at moduleKey.
func (m *Manager) ChangeSubmod(moduleKey, submodKey, targetKey string) error {
	m.mu.RLock()
	inst, ok := m.modules[fold(moduleKey)]
	target, tok := m.modules[fold(targetKey)]
	m.mu.RUnlock()
	if !ok {
		return fmt.Errorf("module %q: %w", moduleKey, errs.ErrNotFound)
	}
	if !tok {
		return fmt.Errorf("module %q: %w", targetKey, errs.ErrNotFound)
	}
	return inst.ChangeSubmod(submodKey, target)
}

// RunAs dispatches a property-type request: the instance at key is
// fetched (defaults filled in), args are wrapped positionally into
// pt's input map, the module runs, and pt's declared results are
// returned as a native slice.
func (m *Manager) RunAs(ctx context.Context, pt *property.Type, key string, args ...any) ([]any, error) {
	inst, err := m.At(key)
	if err != nil {
		return nil, err
	}

	hit := false
	if wrapped := pt.Inputs(); property.WrapInputs(pt, wrapped, args...) == nil {
		hit = inst.IsCached(wrapped)
	}

	started := time.Now()
	out, err := module.RunAs(ctx, inst, pt, args...)
	elapsed := time.Since(started)
	if err != nil {
		if m.exp != nil {
			m.exp.ObserveError(key)
		}
		return nil, err
	}

	if m.exp != nil {
		m.exp.ObserveRun(key, elapsed, hit)
	}
	m.publish(events.Event{Name: events.ModuleRun, Module: key,
		Data: map[string]any{"property_type": pt.Name(), "elapsed": elapsed}})
	if hit {
		m.publish(events.Event{Name: events.CacheHit, Module: key})
	}
	return out, nil
}

func (m *Manager) publish(e events.Event) {
	if m.bus != nil {
		m.bus.Publish(e)
	}
}
