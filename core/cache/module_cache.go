package cache

import (
	"errors"
	"fmt"

	"github.com/propflow/propflow/core/anyvalue"
	"github.com/propflow/propflow/core/errs"
	"github.com/propflow/propflow/core/field"
)

// ModuleCache is the content cache of one implementation identity:
// digest → serialized result map. All instances (and copies) of the
// same implementation share one ModuleCache, so memoization hits
// transfer between them. Entries are immutable: inserting an existing
// digest keeps the first value.
type ModuleCache struct {
	backend Backend
	prefix  string
}

// NewModuleCache layers a content cache over backend, namespaced by
// prefix.
func NewModuleCache(backend Backend, prefix string) *ModuleCache {
	return &ModuleCache{backend: backend, prefix: prefix}
}

func (c *ModuleCache) key(digest string) string { return c.prefix + "/" + digest }

// Contains reports whether a result is stored under digest.
func (c *ModuleCache) Contains(digest string) (bool, error) {
	return c.backend.Contains(c.key(digest))
}

// Insert stores a result map under digest. Existing entries win.
func (c *ModuleCache) Insert(digest string, results *field.Map) error {
	ok, err := c.backend.Contains(c.key(digest))
	if err != nil {
		return err
	}
	if ok {
		return nil
	}
	raw, err := EncodeFieldMap(results)
	if err != nil {
		return err
	}
	return c.backend.Insert(c.key(digest), raw)
}

// At returns the result map stored under digest.
func (c *ModuleCache) At(digest string) (*field.Map, error) {
	raw, err := c.backend.At(c.key(digest))
	if err != nil {
		return nil, err
	}
	return DecodeFieldMap(raw)
}

// Erase removes the entry under digest.
func (c *ModuleCache) Erase(digest string) error {
	return c.backend.Erase(c.key(digest))
}

// Reset removes every entry of this implementation identity.
func (c *ModuleCache) Reset() error {
	return c.backend.ErasePrefix(c.prefix + "/")
}

// UserCache is the scratch cache a module body uses to stash
// intermediate artifacts between calls: key → type-erased value. It
// shares a backend with the content caches, separated by a mangled key
// namespace.
type UserCache struct {
	backend Backend
	prefix  string
}

// NewUserCache layers a scratch cache over backend, namespaced by
// prefix.
func NewUserCache(backend Backend, prefix string) *UserCache {
	return &UserCache{backend: backend, prefix: prefix}
}

func (c *UserCache) key(k string) string { return c.prefix + "/" + k }

// Contains reports whether key holds a value.
func (c *UserCache) Contains(key string) bool {
	ok, err := c.backend.Contains(c.key(key))
	return err == nil && ok
}

// Set stores a value under key, overwriting.
func (c *UserCache) Set(key string, v anyvalue.Value) error {
	raw, err := EncodeValue(v)
	if err != nil {
		return err
	}
	return c.backend.Insert(c.key(key), raw)
}

// Get returns the value stored under key.
func (c *UserCache) Get(key string) (anyvalue.Value, error) {
	raw, err := c.backend.At(c.key(key))
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return anyvalue.Value{}, fmt.Errorf("user cache key %q: %w", key, errs.ErrNotFound)
		}
		return anyvalue.Value{}, err
	}
	return DecodeValue(raw)
}

// Erase removes the entry under key.
func (c *UserCache) Erase(key string) error {
	return c.backend.Erase(c.key(key))
}

// Reset removes every entry in this scratch cache.
func (c *UserCache) Reset() error {
	return c.backend.ErasePrefix(c.prefix + "/")
}
