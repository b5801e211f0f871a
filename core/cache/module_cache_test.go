package cache

import (
	"errors"
	"testing"

	"github.com/propflow/propflow/core/anyvalue"
	"github.com/propflow/propflow/core/errs"
	"github.com/propflow/propflow/core/field"
)

func resultMap(t *testing.T, v int) *field.Map {
	t.Helper()
	m := field.NewMap()
	field.SetType[int](m.Insert("Result"))
	s, _ := m.At("Result")
	if err := field.Set(s, v); err != nil {
		t.Fatal(err)
	}
	return m
}

func resultOf(t *testing.T, m *field.Map) int {
	t.Helper()
	s, err := m.At("Result")
	if err != nil {
		t.Fatal(err)
	}
	v, err := field.Value[int](s)
	if err != nil {
		t.Fatal(err)
	}
	return v
}

func TestModuleCacheStoreAndFetch(t *testing.T) {
	mc := NewModuleCache(NewMemoryBackend(), "impl-a")

	const digest = "0123456789abcdef0123456789abcdef"
	if ok, _ := mc.Contains(digest); ok {
		t.Error("fresh cache contains a digest")
	}

	if err := mc.Insert(digest, resultMap(t, 7)); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	got, err := mc.At(digest)
	if err != nil {
		t.Fatalf("At: %v", err)
	}
	if resultOf(t, got) != 7 {
		t.Errorf("Result = %d, want 7", resultOf(t, got))
	}
}

func TestModuleCacheEntriesAreImmutable(t *testing.T) {
	mc := NewModuleCache(NewMemoryBackend(), "impl-a")
	const digest = "0123456789abcdef0123456789abcdef"

	if err := mc.Insert(digest, resultMap(t, 1)); err != nil {
		t.Fatal(err)
	}
	if err := mc.Insert(digest, resultMap(t, 2)); err != nil {
		t.Fatal(err)
	}
	got, err := mc.At(digest)
	if err != nil {
		t.Fatal(err)
	}
	if resultOf(t, got) != 1 {
		t.Errorf("second insert overwrote the entry: %d", resultOf(t, got))
	}
}

func TestModuleCacheReset(t *testing.T) {
	backend := NewMemoryBackend()
	a := NewModuleCache(backend, "impl-a")
	b := NewModuleCache(backend, "impl-b")
	const digest = "0123456789abcdef0123456789abcdef"

	if err := a.Insert(digest, resultMap(t, 1)); err != nil {
		t.Fatal(err)
	}
	if err := b.Insert(digest, resultMap(t, 2)); err != nil {
		t.Fatal(err)
	}

	if err := a.Reset(); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if ok, _ := a.Contains(digest); ok {
		t.Error("Reset left entries behind")
	}
	if ok, _ := b.Contains(digest); !ok {
		t.Error("Reset of one implementation cleared another's entries")
	}
}

func TestModuleCacheMiss(t *testing.T) {
	mc := NewModuleCache(NewMemoryBackend(), "impl-a")
	if _, err := mc.At("feedfacefeedfacefeedfacefeedface"); !errors.Is(err, errs.ErrNotFound) {
		t.Errorf("At missing digest = %v, want ErrNotFound", err)
	}
}

func TestUserCacheIsNamespaced(t *testing.T) {
	backend := NewMemoryBackend()
	mc := NewModuleCache(backend, "id-1")
	uc := NewUserCache(backend, userMangle("id-1"))

	if err := uc.Set("scratch", anyvalue.New(41)); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if ok, _ := mc.Contains("scratch"); ok {
		t.Error("user entry visible through the content cache")
	}

	got, err := uc.Get("scratch")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if anyvalue.MustCast[int](got) != 41 {
		t.Errorf("Get = %v", got)
	}
	if !uc.Contains("scratch") {
		t.Error("Contains = false for stored key")
	}

	if err := uc.Reset(); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if uc.Contains("scratch") {
		t.Error("Reset left user entries")
	}
}

func TestUserCacheMiss(t *testing.T) {
	uc := NewUserCache(NewMemoryBackend(), userMangle("id-1"))
	if _, err := uc.Get("absent"); !errors.Is(err, errs.ErrNotFound) {
		t.Errorf("Get absent = %v, want ErrNotFound", err)
	}
}
