package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/rawblock/babel-engine/internal/api"
	"github.com/rawblock/babel-engine/internal/archive"
	"github.com/rawblock/babel-engine/internal/cache"
	"github.com/rawblock/babel-engine/internal/config"
	"github.com/rawblock/babel-engine/internal/remote"
	"github.com/rawblock/babel-engine/internal/sampler"
	"github.com/rawblock/babel-engine/internal/search"
	"github.com/rawblock/babel-engine/internal/telemetry"
)

func main() {
	configPath := flag.String("config", os.Getenv("BABEL_CONFIG"), "path to the engine YAML configuration")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("FATAL: configuration rejected: %v", err)
	}

	logger, err := telemetry.NewLogger(cfg.Logging)
	if err != nil {
		log.Fatalf("FATAL: failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("Starting RawBlock Babel Engine",
		zap.String("configVersion", cfg.Version()),
		zap.String("modeDefault", cfg.ModeDefault),
		zap.String("cacheBackend", cfg.Cache.Backend))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ─── Archive (optional) ──────────────────────────────────────────────
	// The engine must come up without a database: searches are computed,
	// not stored, so persistence failures only cost history and warm-start.
	var arc *archive.Store
	if cfg.Archive.Enabled {
		arc, err = archive.Connect(ctx, cfg.Archive.DatabaseURL, logger)
		if err != nil {
			logger.Warn("Failed to connect to PostgreSQL, continuing without the archive", zap.Error(err))
			arc = nil
		} else {
			defer arc.Close()
			if err := arc.InitSchema(ctx); err != nil {
				logger.Warn("Archive schema init failed", zap.Error(err))
			}
		}
	}

	// ─── Cache backend ───────────────────────────────────────────────────
	var store cache.Store
	if cfg.Cache.Backend == "redis" {
		store, err = cache.NewRedis(ctx, cfg.Cache.Redis.Addr, cfg.Cache.Redis.Password, cfg.Cache.Redis.DB, cfg.CacheTTL())
		if err != nil {
			logger.Warn("Redis unavailable, falling back to the in-memory cache", zap.Error(err))
			store = nil
		}
	}
	if store == nil {
		store = cache.NewMemory(cfg.Cache.MaxEntries, cfg.CacheTTL())
	}
	defer store.Close()

	// Warm the in-memory cache from the last checkpoint. Entries past TTL
	// are dropped on restore.
	if arc != nil {
		if snap, ok := store.(cache.Snapshotter); ok {
			entries, err := arc.RestoreCache(ctx)
			if err != nil {
				logger.Warn("Cache restore failed", zap.Error(err))
			} else if n := snap.Restore(entries); n > 0 {
				logger.Info("Cache warmed from checkpoint", zap.Int("entries", n))
			}
		}
	}

	// ─── Remote page source (remote/hybrid modes) ────────────────────────
	var remoteSrc search.RemoteSource
	if cfg.Remote.BaseURL != "" {
		client, err := remote.NewClient(cfg.Remote.BaseURL, cfg.RemoteTimeout(), logger)
		if err != nil {
			logger.Warn("Remote page source rejected, remote/hybrid searches will degrade", zap.Error(err))
		} else {
			if err := client.Ping(ctx); err != nil {
				logger.Warn("Remote page source not answering, it may recover", zap.Error(err))
			}
			remoteSrc = client
		}
	}

	var norm search.Normalizer
	if cfg.Normalization.Enabled {
		norm = search.NewHeuristic()
	}

	pipeline := search.New(cfg, store, remoteSrc, norm, logger)

	// Setup the stream hub
	hub := api.NewHub(logger)
	go hub.Run()

	// Setup and start the background page sampler
	var smp *sampler.Sampler
	if cfg.Sampler.Enabled {
		var rec sampler.Recorder
		if arc != nil {
			rec = arc
		}
		smp = sampler.New(cfg, hub, rec, logger)
		go smp.Run(ctx)
	}

	// Setup the Gin router
	handler := api.NewHandler(cfg, pipeline, store, hub, smp, arc, logger)
	defer handler.Close()

	server := &http.Server{
		Addr:         cfg.ListenAddr(),
		Handler:      api.SetupRouter(handler),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("Engine listening", zap.String("addr", cfg.ListenAddr()))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		logger.Error("Server failed", zap.Error(err))
	case sig := <-quit:
		logger.Info("Shutting down", zap.String("signal", sig.String()))
	}

	// Stop the sampler before draining connections so no new finds race
	// the checkpoint below.
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Server forced to shut down", zap.Error(err))
	}
	hub.Stop()

	// Checkpoint the in-memory cache so the next start warms instantly.
	if arc != nil {
		if snap, ok := store.(cache.Snapshotter); ok {
			if err := arc.CheckpointCache(shutdownCtx, snap.Snapshot()); err != nil {
				logger.Warn("Cache checkpoint failed", zap.Error(err))
			}
		}
	}

	logger.Info("Engine stopped")
}
