package cache

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"golang.org/x/crypto/blake2b"

	"github.com/propflow/propflow/core/errs"
)

// MemoryBackend is the default backend: a plain in-process map. It can
// optionally snapshot itself to a file; snapshots carry a BLAKE2b
// checksum that Restore verifies.
type MemoryBackend struct {
	mu           sync.RWMutex
	data         map[string][]byte
	snapshotPath string
}

// NewMemoryBackend returns an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{data: make(map[string][]byte)}
}

// WithSnapshot sets the file Backup and Dump write to. Without one,
// both are no-ops apart from Dump clearing the map.
func (b *MemoryBackend) WithSnapshot(path string) *MemoryBackend {
	b.snapshotPath = path
	return b
}

// Contains implements Backend.
func (b *MemoryBackend) Contains(key string) (bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.data[key]
	return ok, nil
}

// Insert implements Backend.
func (b *MemoryBackend) Insert(key string, value []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	cp := make([]byte, len(value))
	copy(cp, value)
	b.data[key] = cp
	return nil
}

// At implements Backend.
func (b *MemoryBackend) At(key string) ([]byte, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	v, ok := b.data[key]
	if !ok {
		return nil, fmt.Errorf("cache key %q: %w", key, errs.ErrNotFound)
	}
	cp := make([]byte, len(v))
	copy(cp, v)
	return cp, nil
}

// Erase implements Backend.
func (b *MemoryBackend) Erase(key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.data, key)
	return nil
}

// ErasePrefix implements Backend.
func (b *MemoryBackend) ErasePrefix(prefix string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for k := range b.data {
		if strings.HasPrefix(k, prefix) {
			delete(b.data, k)
		}
	}
	return nil
}

// Size returns the number of stored entries.
func (b *MemoryBackend) Size() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.data)
}

// snapshot is the on-disk form of a memory backend.
type snapshot struct {
	Data map[string][]byte
	Sum  [blake2b.Size256]byte
}

// Backup implements Backend: it writes a checksummed snapshot if a
// path is configured.
func (b *MemoryBackend) Backup() error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.writeSnapshot()
}

// Dump implements Backend: Backup, then drop everything from memory.
func (b *MemoryBackend) Dump() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.writeSnapshot(); err != nil {
		return err
	}
	b.data = make(map[string][]byte)
	return nil
}

func (b *MemoryBackend) writeSnapshot() error {
	if b.snapshotPath == "" {
		return nil
	}
	snap := snapshot{Data: b.data, Sum: checksum(b.data)}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(snap); err != nil {
		return fmt.Errorf("encoding snapshot: %w", errs.ErrBackend)
	}
	if err := os.WriteFile(b.snapshotPath, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("writing snapshot %s: %w", b.snapshotPath, errs.ErrBackend)
	}
	return nil
}

// Restore loads the snapshot file, verifies its checksum, and replaces
// the backend's contents.
func (b *MemoryBackend) Restore() error {
	if b.snapshotPath == "" {
		return nil
	}
	raw, err := os.ReadFile(b.snapshotPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading snapshot %s: %w", b.snapshotPath, errs.ErrBackend)
	}
	var snap snapshot
	if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(&snap); err != nil {
		return fmt.Errorf("decoding snapshot %s: %w", b.snapshotPath, errs.ErrBackend)
	}
	if checksum(snap.Data) != snap.Sum {
		return fmt.Errorf("snapshot %s checksum mismatch: %w", b.snapshotPath, errs.ErrBackend)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if snap.Data == nil {
		snap.Data = make(map[string][]byte)
	}
	b.data = snap.Data
	return nil
}

// checksum hashes keys and values in sorted order so the sum is
// independent of map iteration.
func checksum(data map[string][]byte) [blake2b.Size256]byte {
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	h, _ := blake2b.New256(nil)
	for _, k := range keys {
		h.Write([]byte(k))
		h.Write(data[k])
	}
	var sum [blake2b.Size256]byte
	copy(sum[:], h.Sum(nil))
	return sum
}
