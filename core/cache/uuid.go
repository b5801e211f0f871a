package cache

import (
	"errors"
	"sync"

	"github.com/google/uuid"

	"github.com/propflow/propflow/core/errs"
)

// IdentityRegistry assigns each implementation identity a stable UUID
// and persists the assignment, so on-disk cache keys stay valid across
// processes even though they never embed the raw identity string.
type IdentityRegistry struct {
	mu      sync.Mutex
	backend Backend
	known   map[string]string
}

// NewIdentityRegistry layers a registry over backend.
func NewIdentityRegistry(backend Backend) *IdentityRegistry {
	return &IdentityRegistry{backend: backend, known: make(map[string]string)}
}

// UUIDFor returns the UUID assigned to identity, minting and
// persisting a fresh one on first sight.
func (r *IdentityRegistry) UUIDFor(identity string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if id, ok := r.known[identity]; ok {
		return id, nil
	}
	raw, err := r.backend.At(identity)
	if err == nil {
		id := string(raw)
		r.known[identity] = id
		return id, nil
	}
	if !errors.Is(err, errs.ErrNotFound) {
		return "", err
	}

	id := uuid.New().String()
	if err := r.backend.Insert(identity, []byte(id)); err != nil {
		return "", err
	}
	r.known[identity] = id
	return id, nil
}
