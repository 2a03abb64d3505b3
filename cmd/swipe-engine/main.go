// cmd/swipe-engine is the entry point for the recommendation engine daemon.
// It wires a storage backend, the embedding client, and the batch processor
// so that entity embeddings are refreshed and clusters recomputed on their
// configured schedules.
//
// Startup sequence:
//  1. Load configuration from environment variables (optionally overlaid on
//     a YAML file given with -config).
//  2. Open the configured storage backend (SQLite or Postgres).
//  3. Build the embedding client and refresher.
//  4. Build the cluster recalculator and batch processor.
//  5. Start the processor's timer loops and block until SIGINT / SIGTERM.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/momenta/swipe-engine/internal/backup"
	"github.com/momenta/swipe-engine/internal/clustering"
	"github.com/momenta/swipe-engine/internal/config"
	"github.com/momenta/swipe-engine/internal/embedder"
	"github.com/momenta/swipe-engine/internal/engine"
	"github.com/momenta/swipe-engine/internal/storage"
	"github.com/momenta/swipe-engine/internal/storage/postgres"
	"github.com/momenta/swipe-engine/internal/storage/sqlite"
	"github.com/momenta/swipe-engine/internal/vectormath"
)

// openStore builds the storage backend named by the configuration. For the
// sqlite engine it also returns the database file path, which the snapshot
// service needs.
func openStore(cfg *config.Config) (storage.Store, string, error) {
	switch cfg.Storage.Engine {
	case "sqlite":
		if err := os.MkdirAll(cfg.Storage.DataPath, 0o700); err != nil {
			return nil, "", fmt.Errorf("failed to create data directory %q: %w", cfg.Storage.DataPath, err)
		}
		dbPath := fmt.Sprintf("%s/swipe.db", cfg.Storage.DataPath)
		store, err := sqlite.NewStore(dbPath)
		return store, dbPath, err
	case "postgres":
		if cfg.Storage.PostgresDSN == "" {
			return nil, "", fmt.Errorf("postgres engine selected but SWIPE_POSTGRES_DSN is empty")
		}
		store, err := postgres.NewStore(cfg.Storage.PostgresDSN, cfg.Storage.VectorDimension)
		return store, "", err
	default:
		return nil, "", fmt.Errorf("unknown storage engine %q", cfg.Storage.Engine)
	}
}

func main() {
	log.SetOutput(os.Stderr)
	log.SetPrefix("swipe-engine: ")
	log.SetFlags(log.LstdFlags)

	configPath := flag.String("config", "", "path to a YAML config file (env vars still take precedence)")
	flag.Parse()

	var (
		cfg *config.Config
		err error
	)
	if *configPath != "" {
		cfg, err = config.LoadConfigFromFile(*configPath)
	} else {
		cfg, err = config.LoadConfig()
	}
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	store, dbPath, err := openStore(cfg)
	if err != nil {
		log.Fatalf("failed to open storage: %v", err)
	}
	defer store.Close()

	// Root context cancelled on SIGINT / SIGTERM.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("received shutdown signal")
		cancel()
	}()

	client := embedder.NewClient(embedder.ClientConfig{
		BaseURL:           cfg.Embedding.ServiceURL,
		Model:             cfg.Embedding.Model,
		Timeout:           cfg.Embedding.RequestTimeout,
		RequestsPerSecond: cfg.Embedding.RequestsPerSecond,
	})
	if err := client.HealthCheck(ctx); err != nil {
		// The breaker will shield the refresh pass if the service stays down,
		// so an unreachable embedder at boot is not fatal.
		log.Printf("WARNING: embedding service health check failed: %v", err)
	}

	refresher, err := embedder.NewRefresher(client, store, store)
	if err != nil {
		log.Fatalf("failed to create refresher: %v", err)
	}

	clusterConfig := clustering.Config{
		Epsilon:   cfg.Clustering.Epsilon,
		MinPoints: cfg.Clustering.MinPoints,
		Distance:  vectormath.Kind(cfg.Clustering.Distance),
	}
	recalc, err := engine.NewRecalculator(store, store, cfg.Batch.BatchSize, clusterConfig)
	if err != nil {
		log.Fatalf("failed to create recalculator: %v", err)
	}

	engineConfig := engine.Config{
		EmbeddingUpdateInterval: cfg.Batch.EmbeddingUpdateInterval,
		ClusteringInterval:      cfg.Batch.ClusteringInterval,
		BatchSize:               cfg.Batch.BatchSize,
		MaxItemsPerRun:          cfg.Batch.MaxItemsPerRun,
		RefreshConcurrency:      cfg.Batch.RefreshConcurrency,
	}
	processor, err := engine.NewBatchProcessor(engineConfig, store, refresher, recalc, store)
	if err != nil {
		log.Fatalf("failed to create batch processor: %v", err)
	}

	if cfg.Backup.Dir != "" && dbPath != "" {
		snapshots, err := backup.NewService(backup.Config{
			DBPath:   dbPath,
			Dir:      cfg.Backup.Dir,
			Interval: cfg.Backup.Interval,
			Keep:     cfg.Backup.Keep,
		})
		if err != nil {
			log.Fatalf("failed to create snapshot service: %v", err)
		}
		snapshots.Start(ctx)
		defer snapshots.Stop()
	}

	processor.Start(ctx)
	log.Printf("running (storage=%s, embedding interval=%s, clustering interval=%s)",
		cfg.Storage.Engine, cfg.Batch.EmbeddingUpdateInterval, cfg.Batch.ClusteringInterval)

	<-ctx.Done()
	processor.Stop()
	log.Println("shutdown complete")
}
