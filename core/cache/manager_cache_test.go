package cache

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"github.com/propflow/propflow/core/field"
)

func TestManagerCacheHandlesAreStable(t *testing.T) {
	c := NewManagerCache(zerolog.Nop())

	a1, err := c.ModuleCacheFor("impl.A")
	if err != nil {
		t.Fatalf("ModuleCacheFor: %v", err)
	}
	a2, err := c.ModuleCacheFor("impl.A")
	if err != nil {
		t.Fatal(err)
	}
	if a1 != a2 {
		t.Error("same identity produced different cache handles")
	}

	b, err := c.ModuleCacheFor("impl.B")
	if err != nil {
		t.Fatal(err)
	}
	if a1 == b {
		t.Error("different identities share a cache handle")
	}

	u1, err := c.UserCacheFor("impl.A")
	if err != nil {
		t.Fatal(err)
	}
	u2, err := c.UserCacheFor("impl.A")
	if err != nil {
		t.Fatal(err)
	}
	if u1 != u2 {
		t.Error("same identity produced different user cache handles")
	}
}

func TestManagerCachePrefixesAreDistinct(t *testing.T) {
	c := NewManagerCache(zerolog.Nop())
	a, _ := c.ModuleCacheFor("impl.A")
	b, _ := c.ModuleCacheFor("impl.B")
	if a.prefix == b.prefix {
		t.Error("distinct identities mapped to the same prefix")
	}
}

func TestChangeSaveLocationLayout(t *testing.T) {
	root := t.TempDir()
	c := NewManagerCache(zerolog.Nop())
	if err := c.ChangeSaveLocation(root); err != nil {
		t.Fatalf("ChangeSaveLocation: %v", err)
	}

	for _, sub := range []string{"cache", "uuid"} {
		if fi, err := os.Stat(filepath.Join(root, sub)); err != nil || !fi.IsDir() {
			t.Errorf("missing %s directory: %v", sub, err)
		}
	}
	if _, err := os.Stat(filepath.Join(root, "cache", "cache.db")); err != nil {
		t.Errorf("missing cache.db: %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, "uuid", "uuid.db")); err != nil {
		t.Errorf("missing uuid.db: %v", err)
	}
}

func TestPersistentIdentityIsStable(t *testing.T) {
	root := t.TempDir()

	first := NewManagerCache(zerolog.Nop())
	if err := first.ChangeSaveLocation(root); err != nil {
		t.Fatalf("ChangeSaveLocation: %v", err)
	}
	mcA, err := first.ModuleCacheFor("impl.A")
	if err != nil {
		t.Fatal(err)
	}
	prefix := mcA.prefix

	second := NewManagerCache(zerolog.Nop())
	if err := second.ChangeSaveLocation(root); err != nil {
		t.Fatalf("ChangeSaveLocation (reopen): %v", err)
	}
	mcA2, err := second.ModuleCacheFor("impl.A")
	if err != nil {
		t.Fatal(err)
	}
	if mcA2.prefix != prefix {
		t.Errorf("identity prefix changed across processes: %q vs %q",
			mcA2.prefix, prefix)
	}
}

func TestPersistentEntriesSurviveReopen(t *testing.T) {
	root := t.TempDir()
	const digest = "0123456789abcdef0123456789abcdef"

	{
		c := NewManagerCache(zerolog.Nop())
		if err := c.ChangeSaveLocation(root); err != nil {
			t.Fatal(err)
		}
		mc, err := c.ModuleCacheFor("impl.A")
		if err != nil {
			t.Fatal(err)
		}
		m := field.NewMap()
		field.SetType[int](m.Insert("Result"))
		s, _ := m.At("Result")
		if err := field.Set(s, 11); err != nil {
			t.Fatal(err)
		}
		if err := mc.Insert(digest, m); err != nil {
			t.Fatal(err)
		}
		if err := c.Backup(); err != nil {
			t.Fatal(err)
		}
	}

	c := NewManagerCache(zerolog.Nop())
	if err := c.ChangeSaveLocation(root); err != nil {
		t.Fatal(err)
	}
	mc, err := c.ModuleCacheFor("impl.A")
	if err != nil {
		t.Fatal(err)
	}
	ok, err := mc.Contains(digest)
	if err != nil {
		t.Fatalf("Contains: %v", err)
	}
	if !ok {
		t.Error("persisted entry lost across reopen")
	}
	got, err := mc.At(digest)
	if err != nil {
		t.Fatal(err)
	}
	s, _ := got.At("Result")
	if v, _ := field.Value[int](s); v != 11 {
		t.Errorf("persisted Result = %d, want 11", v)
	}
}
