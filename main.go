package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"media-organizer/internal/cache"
	"media-organizer/internal/config"
	"media-organizer/internal/database"
	"media-organizer/internal/engine"
	"media-organizer/internal/fsops"
	"media-organizer/internal/logging"
	"media-organizer/internal/memory"
	"media-organizer/internal/probe"
	"media-organizer/internal/thumbnail"
)

func main() {
	startTime := time.Now()

	cfg, err := config.Load()
	if err != nil {
		logging.Fatal("Configuration error: %v", err)
	}
	memory.ConfigureFromEnv()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dbStart := time.Now()
	store, err := database.Open(ctx, cfg.DatabasePath)
	if err != nil {
		logging.Fatal("Failed to open database: %v", err)
	}
	defer store.Close()
	if store.Corrupt() {
		logging.Error("Database is corrupt; running degraded, commits are refused")
	}
	logging.Info("Database ready in %v", time.Since(dbStart))

	cacheManager, err := cache.New(ctx, store, cfg.MaxCacheBytes, cfg.CacheLowWatermark)
	if err != nil {
		logging.Fatal("Failed to initialize cache: %v", err)
	}

	eng := engine.New(engine.Options{
		Store:       store,
		Filesystem:  fsops.NewOS(cfg.CopyChunkSize),
		Metadata:    probe.NewFFprobe(cfg.NetworkTimeout),
		Cache:       cacheManager,
		Thumbnailer: thumbnail.NewRenderer(),
		ScanWorkers: cfg.ScanWorkers,
	})

	// Finish any enrichment a previous process left behind, then scan.
	go func() {
		if n, err := eng.ResumePending(ctx); err != nil {
			logging.Warn("Resume of pending enrichment failed: %v", err)
		} else if n > 0 {
			logging.Info("Resumed enrichment of %d files", n)
		}

		records, err := eng.Scan(ctx, cfg.MediaDir)
		if err != nil {
			logging.Error("Initial scan failed to start: %v", err)
			return
		}
		for range records {
			// Progressive consumers attach over the API; drain here.
		}
	}()

	if cfg.WatchEnabled {
		go func() {
			if err := eng.Watch(ctx, cfg.MediaDir); err != nil && err != context.Canceled {
				logging.Error("Filesystem watcher stopped: %v", err)
			}
		}()
	}

	if !cfg.MetricsEnabled {
		logging.Info("Metrics endpoint disabled; running headless")
		<-ctx.Done()
		return
	}

	srv := &http.Server{
		Addr:         cfg.MetricsAddr,
		Handler:      setupRouter(store, eng),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		logging.Info("Shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logging.Error("HTTP shutdown error: %v", err)
		}
	}()

	logging.Info("Serving metrics and stats on %s (started in %v)", cfg.MetricsAddr, time.Since(startTime))
	if err := srv.ListenAndServe(); err != http.ErrServerClosed {
		logging.Fatal("Server error: %v", err)
	}
	logging.Info("Shutdown complete")
}

func setupRouter(store *database.Store, eng *engine.Engine) *mux.Router {
	r := mux.NewRouter()

	r.Handle("/metrics", promhttp.Handler()).Methods("GET")

	r.HandleFunc("/healthz", func(w http.ResponseWriter, req *http.Request) {
		if store.Corrupt() {
			http.Error(w, "database corrupt", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	}).Methods("GET")

	r.HandleFunc("/api/stats", func(w http.ResponseWriter, req *http.Request) {
		stats := eng.CacheStats()
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"cache_entries":     stats.Entries,
			"cache_total_bytes": stats.TotalBytes,
			"cache_max_bytes":   stats.MaxBytes,
			"database_corrupt":  store.Corrupt(),
		})
	}).Methods("GET")

	r.HandleFunc("/api/history", func(w http.ResponseWriter, req *http.Request) {
		batches, err := eng.History(req.Context(), 50)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(batches)
	}).Methods("GET")

	r.HandleFunc("/api/vacuum", func(w http.ResponseWriter, req *http.Request) {
		if err := eng.Vacuum(req.Context()); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	}).Methods("POST")

	return r
}
