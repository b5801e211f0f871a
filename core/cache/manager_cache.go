package cache

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"

	"github.com/propflow/propflow/core/errs"
)

// userMangle namespaces user-cache entries away from content-cache
// entries sharing a backend.
func userMangle(key string) string { return "__PF__ " + key + "-USER __PF__" }

// ManagerCache hands out module and user caches keyed by
// implementation identity. Asking twice for the same identity returns
// the same handle, which is what makes copied modules share their
// original's cache entries.
type ManagerCache struct {
	mu         sync.Mutex
	backend    Backend
	ids        *IdentityRegistry
	modCaches  map[string]*ModuleCache
	userCaches map[string]*UserCache
	log        zerolog.Logger
}

// NewManagerCache returns a cache factory over in-memory backends.
func NewManagerCache(log zerolog.Logger) *ManagerCache {
	return &ManagerCache{
		backend:    NewMemoryBackend(),
		ids:        NewIdentityRegistry(NewMemoryBackend()),
		modCaches:  make(map[string]*ModuleCache),
		userCaches: make(map[string]*UserCache),
		log:        log,
	}
}

// WithBackend swaps the content backend, e.g. for a RedisBackend
// shared between processes. Handles already handed out are retargeted;
// entries in the old backend are not migrated.
func (c *ManagerCache) WithBackend(b Backend) *ManagerCache {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.backend = b
	c.retarget()
	return c
}

// ChangeSaveLocation makes the caches persistent under root: content
// entries go to <root>/cache/, the identity registry to <root>/uuid/.
func (c *ManagerCache) ChangeSaveLocation(root string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	cacheDir := filepath.Join(root, "cache")
	uuidDir := filepath.Join(root, "uuid")
	for _, dir := range []string{cacheDir, uuidDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating %s: %v: %w", dir, err, errs.ErrBackend)
		}
	}

	content, err := NewSQLiteBackend(filepath.Join(cacheDir, "cache.db"))
	if err != nil {
		return err
	}
	identity, err := NewSQLiteBackend(filepath.Join(uuidDir, "uuid.db"))
	if err != nil {
		content.Close()
		return err
	}

	c.backend = content
	c.ids = NewIdentityRegistry(identity)
	c.retarget()
	c.log.Info().Str("root", root).Msg("cache save location changed")
	return nil
}

// retarget points previously handed-out cache handles at the current
// backend. Callers hold c.mu.
func (c *ManagerCache) retarget() {
	for _, mc := range c.modCaches {
		mc.backend = c.backend
	}
	for _, uc := range c.userCaches {
		uc.backend = c.backend
	}
}

// ModuleCacheFor returns the content cache of the given implementation
// identity, creating it on first request.
func (c *ManagerCache) ModuleCacheFor(identity string) (*ModuleCache, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if mc, ok := c.modCaches[identity]; ok {
		return mc, nil
	}
	id, err := c.ids.UUIDFor(identity)
	if err != nil {
		return nil, err
	}
	mc := NewModuleCache(c.backend, id)
	c.modCaches[identity] = mc
	return mc, nil
}

// UserCacheFor returns the scratch cache of the given implementation
// identity, creating it on first request.
func (c *ManagerCache) UserCacheFor(identity string) (*UserCache, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if uc, ok := c.userCaches[identity]; ok {
		return uc, nil
	}
	id, err := c.ids.UUIDFor(identity)
	if err != nil {
		return nil, err
	}
	uc := NewUserCache(c.backend, userMangle(id))
	c.userCaches[identity] = uc
	return uc, nil
}

// Backup persists the content backend without discarding anything.
func (c *ManagerCache) Backup() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.backend.Backup()
}

// Dump persists the content backend and releases what memory it can.
func (c *ManagerCache) Dump() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.backend.Dump()
}
