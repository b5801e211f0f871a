package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "propflow.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, "")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.CacheBackend != "memory" {
		t.Errorf("CacheBackend = %q, want memory", cfg.CacheBackend)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %q, want info", cfg.LogLevel)
	}
}

func TestLoadFull(t *testing.T) {
	path := writeConfig(t, `
save_location: /var/lib/propflow
cache_backend: sqlite
log_level: debug
metrics_prefix: sim
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.SaveLocation != "/var/lib/propflow" {
		t.Errorf("SaveLocation = %q", cfg.SaveLocation)
	}
	if cfg.CacheBackend != "sqlite" || cfg.LogLevel != "debug" || cfg.MetricsPrefix != "sim" {
		t.Errorf("cfg = %+v", cfg)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"memory", Config{CacheBackend: "memory"}, false},
		{"empty backend", Config{}, false},
		{"sqlite with location", Config{CacheBackend: "sqlite", SaveLocation: "/tmp/x"}, false},
		{"sqlite without location", Config{CacheBackend: "sqlite"}, true},
		{"redis with addr", Config{CacheBackend: "redis", Redis: RedisConfig{Addr: "localhost:6379"}}, false},
		{"redis without addr", Config{CacheBackend: "redis"}, true},
		{"unknown backend", Config{CacheBackend: "etcd"}, true},
		{"bad log level", Config{LogLevel: "loud"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	path := writeConfig(t, "cache_backend: sqlite\n")
	if _, err := Load(path); err == nil {
		t.Error("Load accepted sqlite backend without save_location")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("Load of absent file succeeded")
	}
}
