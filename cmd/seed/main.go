package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/memelab/memeforge/internal/config"
	"github.com/memelab/memeforge/internal/logger"
	"github.com/memelab/memeforge/internal/repository"
	"github.com/memelab/memeforge/internal/service"
	"github.com/memelab/memeforge/internal/storage"
)

func main() {
	// Initialize logger first (with defaults)
	appLogger := logger.New(&logger.Config{
		Level:       "info",
		Format:      "json",
		ServiceName: "memeforge-seed",
	})
	logger.SetDefaultLogger(appLogger)

	// Parse command line flags
	catalogPath := flag.String("catalog", "", "Path to the template catalog JSON (defaults to seed.catalog_path from config)")
	limit := flag.Int("limit", 0, "Maximum number of templates to seed (0 = all)")
	force := flag.Bool("force", false, "Re-embed and re-upload templates that are already seeded")
	configPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to load config")
	}

	if *catalogPath == "" {
		*catalogPath = cfg.Seed.CatalogPath
	}

	// Seeding writes vectors, so Qdrant and the embedding key are hard
	// requirements here even though the API server treats them as optional
	cfg.Embedding.ResolveEnvVars()
	if cfg.Qdrant.Host == "" {
		appLogger.Fatal("Qdrant host is required for seeding")
	}
	if cfg.Embedding.APIKey == "" {
		appLogger.Fatal("Embedding API key is required for seeding")
	}

	appLogger.WithFields(logger.Fields{
		"catalog": *catalogPath,
		"limit":   *limit,
		"force":   *force,
	}).Info("Starting template seeding")

	// Initialize database
	db, err := repository.InitDB(&cfg.Database)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize database")
	}

	// Initialize repositories
	templateRepo := repository.NewTemplateRepository(db)
	vectorRepo := repository.NewTemplateVectorRepository(db)
	jobRepo := repository.NewSeedJobRepository(db)

	collection := cfg.Embedding.GetCollection(cfg.Qdrant.Collection)
	qdrantRepo, err := repository.NewQdrantRepository(&repository.QdrantConnectionConfig{
		Host:            cfg.Qdrant.Host,
		Port:            cfg.Qdrant.Port,
		Collection:      collection,
		APIKey:          cfg.Qdrant.APIKey,
		UseTLS:          cfg.Qdrant.UseTLS,
		VectorDimension: cfg.Embedding.Dimensions,
	})
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize Qdrant repository")
	}
	defer qdrantRepo.Close()

	// Ensure Qdrant collection exists
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := qdrantRepo.EnsureCollection(ctx); err != nil {
		appLogger.WithError(err).Fatal("Failed to ensure Qdrant collection")
	}

	// Initialize S3-compatible storage (supports MinIO, R2, S3)
	objectStorage, err := storage.NewStorage(&storage.S3Config{
		Type:      storage.StorageType(cfg.Storage.Type),
		Endpoint:  cfg.Storage.Endpoint,
		AccessKey: cfg.Storage.AccessKey,
		SecretKey: cfg.Storage.SecretKey,
		UseSSL:    cfg.Storage.UseSSL,
		Bucket:    cfg.Storage.Bucket,
		Region:    cfg.Storage.Region,
		PublicURL: cfg.Storage.PublicURL,
	})
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize storage")
	}

	// Ensure bucket exists
	if err := objectStorage.EnsureBucket(ctx); err != nil {
		appLogger.WithError(err).Fatal("Failed to ensure storage bucket")
	}

	// Initialize services
	embeddingService := service.NewEmbeddingService(&service.EmbeddingConfig{
		Provider:   cfg.Embedding.Provider,
		Model:      cfg.Embedding.Model,
		APIKey:     cfg.Embedding.APIKey,
		BaseURL:    cfg.Embedding.BaseURL,
		Dimensions: cfg.Embedding.Dimensions,
	})

	seedService := service.NewSeedService(
		templateRepo,
		vectorRepo,
		jobRepo,
		qdrantRepo,
		objectStorage,
		embeddingService,
		appLogger,
		&service.SeedConfig{
			Workers:    cfg.Seed.Workers,
			Collection: collection,
		},
	)

	// Handle graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		appLogger.Info("Received shutdown signal, canceling...")
		cancel()
	}()

	// Run seeding
	stats, err := seedService.Run(ctx, *catalogPath, &service.SeedOptions{
		Force: *force,
		Limit: *limit,
	})
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to seed templates")
	}
	appLogger.WithFields(logger.Fields{
		"total":     stats.TotalItems,
		"processed": stats.ProcessedItems,
		"skipped":   stats.SkippedItems,
		"failed":    stats.FailedItems,
	}).Info("Seeding completed")

	if stats.FailedItems > 0 {
		os.Exit(1)
	}
}
