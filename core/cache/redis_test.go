package cache

import (
	"context"
	"os"
	"testing"
)

// Redis tests need a live server; point PROPFLOW_REDIS_ADDR at one to
// enable them.
func newRedis(t *testing.T) *RedisBackend {
	t.Helper()
	addr := os.Getenv("PROPFLOW_REDIS_ADDR")
	if addr == "" {
		t.Skip("PROPFLOW_REDIS_ADDR not set")
	}
	b, err := NewRedisBackend(context.Background(), RedisConfig{Addr: addr, DB: 9})
	if err != nil {
		t.Fatalf("NewRedisBackend: %v", err)
	}
	t.Cleanup(func() { b.Close() })
	return b
}

func TestRedisBackendCRUD(t *testing.T) {
	b := newRedis(t)
	const key = "propflow-test/crud"
	t.Cleanup(func() { b.Erase(key) })

	if err := b.Insert(key, []byte("v")); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if ok, err := b.Contains(key); err != nil || !ok {
		t.Errorf("Contains = %v, %v", ok, err)
	}
	got, err := b.At(key)
	if err != nil || string(got) != "v" {
		t.Errorf("At = %q, %v", got, err)
	}
	if err := b.Erase(key); err != nil {
		t.Fatalf("Erase: %v", err)
	}
	if ok, _ := b.Contains(key); ok {
		t.Error("Contains after Erase")
	}
}

func TestRedisBackendErasePrefix(t *testing.T) {
	b := newRedis(t)
	keys := []string{"propflow-test/p/1", "propflow-test/p/2", "propflow-test/q/1"}
	t.Cleanup(func() {
		for _, k := range keys {
			b.Erase(k)
		}
	})
	for _, k := range keys {
		if err := b.Insert(k, []byte("v")); err != nil {
			t.Fatal(err)
		}
	}
	if err := b.ErasePrefix("propflow-test/p/"); err != nil {
		t.Fatalf("ErasePrefix: %v", err)
	}
	if ok, _ := b.Contains("propflow-test/p/1"); ok {
		t.Error("prefixed key survived")
	}
	if ok, _ := b.Contains("propflow-test/q/1"); !ok {
		t.Error("unrelated key erased")
	}
}
