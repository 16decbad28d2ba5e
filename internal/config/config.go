package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"media-organizer/internal/logging"
	"media-organizer/internal/workers"
)

// Config holds all application configuration.
type Config struct {
	MediaDir     string
	DatabaseDir  string
	DatabasePath string

	// Cache limits
	MaxCacheBytes     int64
	CacheLowWatermark float64

	// Filesystem operation tuning
	CopyChunkSize  int64
	NetworkTimeout time.Duration

	// Scanner
	ScanWorkers  int
	WatchEnabled bool

	// Operational HTTP surface
	MetricsAddr    string
	MetricsEnabled bool
}

// Defaults chosen for media libraries on network shares: metadata probes are
// latency-bound so the pool stays small, and the copy chunk is large enough
// to amortize NFS round trips.
const (
	defaultMaxCacheBytes = 5 << 30  // 5 GiB
	defaultChunkSize     = 64 << 20 // 64 MiB
	defaultLowWatermark  = 0.8
	defaultScanWorkers   = 3
)

// Load reads configuration from environment variables and validates it.
func Load() (*Config, error) {
	logging.Info("------------------------------------------------------------")
	logging.Info("CONFIGURATION")
	logging.Info("------------------------------------------------------------")

	mediaDir := getEnv("MEDIA_DIR", "/media")
	databaseDir := getEnv("DATABASE_DIR", "/database")
	maxCacheBytes := getEnvInt64("MAX_CACHE_SIZE", defaultMaxCacheBytes)
	lowWatermark := getEnvFloat("CACHE_LOW_WATERMARK", defaultLowWatermark)
	chunkSize := getEnvInt64("COPY_CHUNK_SIZE", defaultChunkSize)
	networkTimeout := getEnvDuration("NETWORK_TIMEOUT", 30*time.Second)
	scanWorkers := workers.ForIO(defaultScanWorkers)
	watchEnabled := getEnvBool("WATCH_ENABLED", true)
	metricsAddr := getEnv("METRICS_ADDR", ":9090")
	metricsEnabled := getEnvBool("METRICS_ENABLED", true)

	logging.Info("  MEDIA_DIR:           %s", mediaDir)
	logging.Info("  DATABASE_DIR:        %s", databaseDir)
	logging.Info("  MAX_CACHE_SIZE:      %d", maxCacheBytes)
	logging.Info("  CACHE_LOW_WATERMARK: %.2f", lowWatermark)
	logging.Info("  COPY_CHUNK_SIZE:     %d", chunkSize)
	logging.Info("  NETWORK_TIMEOUT:     %s", networkTimeout)
	logging.Info("  SCAN_WORKERS:        %d", scanWorkers)
	logging.Info("  WATCH_ENABLED:       %v", watchEnabled)
	logging.Info("  METRICS_ADDR:        %s", metricsAddr)
	logging.Info("  LOG_LEVEL:           %s", logging.GetLevel())

	if lowWatermark <= 0 || lowWatermark >= 1 {
		logging.Warn("  CACHE_LOW_WATERMARK %.2f out of range (0,1), using default %.2f",
			lowWatermark, defaultLowWatermark)
		lowWatermark = defaultLowWatermark
	}
	if maxCacheBytes <= 0 {
		return nil, fmt.Errorf("MAX_CACHE_SIZE must be positive, got %d", maxCacheBytes)
	}
	if chunkSize <= 0 {
		return nil, fmt.Errorf("COPY_CHUNK_SIZE must be positive, got %d", chunkSize)
	}

	mediaDir, err := filepath.Abs(mediaDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve media directory path: %w", err)
	}
	if info, err := os.Stat(mediaDir); err != nil || !info.IsDir() {
		return nil, fmt.Errorf("media directory %s is not accessible: %v", mediaDir, err)
	}
	logging.Info("  [OK] Media directory is accessible")

	databaseDir, err = filepath.Abs(databaseDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve database directory path: %w", err)
	}

	if err := ensureDirectory(databaseDir); err != nil {
		return nil, fmt.Errorf("database directory error: %w", err)
	}
	if err := testWriteAccess(databaseDir); err != nil {
		return nil, fmt.Errorf("database directory is not writable: %w", err)
	}
	logging.Info("  [OK] Database directory is writable")

	return &Config{
		MediaDir:          mediaDir,
		DatabaseDir:       databaseDir,
		DatabasePath:      filepath.Join(databaseDir, "organizer.db"),
		MaxCacheBytes:     maxCacheBytes,
		CacheLowWatermark: lowWatermark,
		CopyChunkSize:     chunkSize,
		NetworkTimeout:    networkTimeout,
		ScanWorkers:       scanWorkers,
		WatchEnabled:      watchEnabled,
		MetricsAddr:       metricsAddr,
		MetricsEnabled:    metricsEnabled,
	}, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(v)
	if err != nil {
		logging.Warn("  Invalid %s=%q, using default %v", key, v, fallback)
		return fallback
	}
	return parsed
}

func getEnvInt64(key string, fallback int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parsed, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		logging.Warn("  Invalid %s=%q, using default %d", key, v, fallback)
		return fallback
	}
	return parsed
}

func getEnvFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(v, 64)
	if err != nil {
		logging.Warn("  Invalid %s=%q, using default %.2f", key, v, fallback)
		return fallback
	}
	return parsed
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(v)
	if err != nil {
		logging.Warn("  Invalid %s=%q, using default %s", key, v, fallback)
		return fallback
	}
	return parsed
}

func ensureDirectory(path string) error {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return os.MkdirAll(path, 0o755)
	}
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("%s exists but is not a directory", path)
	}
	return nil
}

func testWriteAccess(dir string) error {
	testFile := filepath.Join(dir, ".perm-test")
	if err := os.WriteFile(testFile, []byte("test"), 0o600); err != nil {
		return err
	}
	return os.Remove(testFile)
}
