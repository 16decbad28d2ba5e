package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func setupEnv(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("DATABASE_DIR", dir)
	t.Setenv("MEDIA_DIR", t.TempDir())
	return dir
}

func TestLoadDefaults(t *testing.T) {
	dir := setupEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.DatabasePath != filepath.Join(dir, "organizer.db") {
		t.Errorf("DatabasePath = %q", cfg.DatabasePath)
	}
	if cfg.MaxCacheBytes != defaultMaxCacheBytes {
		t.Errorf("MaxCacheBytes = %d, want %d", cfg.MaxCacheBytes, int64(defaultMaxCacheBytes))
	}
	if cfg.CacheLowWatermark != defaultLowWatermark {
		t.Errorf("CacheLowWatermark = %f", cfg.CacheLowWatermark)
	}
	if cfg.CopyChunkSize != defaultChunkSize {
		t.Errorf("CopyChunkSize = %d", cfg.CopyChunkSize)
	}
	if cfg.NetworkTimeout != 30*time.Second {
		t.Errorf("NetworkTimeout = %s", cfg.NetworkTimeout)
	}
	if cfg.ScanWorkers < 1 {
		t.Errorf("ScanWorkers = %d, want >= 1", cfg.ScanWorkers)
	}
}

func TestLoadOverrides(t *testing.T) {
	setupEnv(t)
	t.Setenv("MAX_CACHE_SIZE", "1048576")
	t.Setenv("CACHE_LOW_WATERMARK", "0.5")
	t.Setenv("COPY_CHUNK_SIZE", "4096")
	t.Setenv("NETWORK_TIMEOUT", "5s")
	t.Setenv("WATCH_ENABLED", "false")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.MaxCacheBytes != 1048576 {
		t.Errorf("MaxCacheBytes = %d", cfg.MaxCacheBytes)
	}
	if cfg.CacheLowWatermark != 0.5 {
		t.Errorf("CacheLowWatermark = %f", cfg.CacheLowWatermark)
	}
	if cfg.CopyChunkSize != 4096 {
		t.Errorf("CopyChunkSize = %d", cfg.CopyChunkSize)
	}
	if cfg.NetworkTimeout != 5*time.Second {
		t.Errorf("NetworkTimeout = %s", cfg.NetworkTimeout)
	}
	if cfg.WatchEnabled {
		t.Error("Expected WatchEnabled=false")
	}
}

func TestLoadInvalidWatermarkFallsBack(t *testing.T) {
	setupEnv(t)
	t.Setenv("CACHE_LOW_WATERMARK", "1.5")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.CacheLowWatermark != defaultLowWatermark {
		t.Errorf("CacheLowWatermark = %f, want default", cfg.CacheLowWatermark)
	}
}

func TestLoadRejectsNegativeCacheSize(t *testing.T) {
	setupEnv(t)
	t.Setenv("MAX_CACHE_SIZE", "-1")

	if _, err := Load(); err == nil {
		t.Fatal("Expected error for negative MAX_CACHE_SIZE")
	}
}

func TestLoadUnwritableDatabaseDir(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("running as root, permission checks are bypassed")
	}
	dir := t.TempDir()
	sub := filepath.Join(dir, "ro")
	if err := os.Mkdir(sub, 0o555); err != nil {
		t.Fatal(err)
	}
	t.Setenv("DATABASE_DIR", sub)
	t.Setenv("MEDIA_DIR", t.TempDir())

	if _, err := Load(); err == nil {
		t.Fatal("Expected error for unwritable database dir")
	}
}

func TestLoadMissingMediaDir(t *testing.T) {
	t.Setenv("DATABASE_DIR", t.TempDir())
	t.Setenv("MEDIA_DIR", filepath.Join(t.TempDir(), "nope"))

	if _, err := Load(); err == nil {
		t.Fatal("Expected error for missing media dir")
	}
}
