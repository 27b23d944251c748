package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/memelab/memeforge/internal/alert"
	"github.com/memelab/memeforge/internal/api"
	"github.com/memelab/memeforge/internal/api/middleware"
	"github.com/memelab/memeforge/internal/auth"
	"github.com/memelab/memeforge/internal/billing"
	"github.com/memelab/memeforge/internal/config"
	"github.com/memelab/memeforge/internal/limits"
	"github.com/memelab/memeforge/internal/logger"
	"github.com/memelab/memeforge/internal/repository"
	"github.com/memelab/memeforge/internal/service"
	"github.com/memelab/memeforge/internal/storage"
)

func main() {
	// Load configuration
	// Support CONFIG_PATH environment variable for production deployments
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize logger
	appLogger := logger.NewDefault()
	logger.SetDefaultLogger(appLogger)
	defer logger.Sync()

	ctx := context.Background()

	// Initialize database
	db, err := repository.InitDB(&cfg.Database)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize database")
	}

	// Initialize repositories
	templateRepo := repository.NewTemplateRepository(db)
	candidateRepo := repository.NewCandidateRepository(db)
	requestLogRepo := repository.NewRequestLogRepository(db)
	profileRepo := repository.NewProfileRepository(db)
	subscriptionRepo := repository.NewSubscriptionRepository(db)
	apiKeyRepo := repository.NewAPIKeyRepository(db)

	// Initialize storage (supports MinIO, R2, S3)
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

	// Vector search is optional. Without Qdrant and an embedding key the
	// selector degrades to lexical scoring. The selector must receive
	// untyped nils here, not nil repository pointers.
	cfg.Embedding.ResolveEnvVars()
	weights := service.SelectionWeights{
		Vector:     cfg.Pipeline.VectorWeight,
		Tone:       cfg.Pipeline.ToneWeight,
		Popularity: cfg.Pipeline.PopularityWeight,
	}
	selector := service.NewSelectorService(nil, nil, weights)
	if cfg.Qdrant.Host != "" && cfg.Embedding.APIKey != "" {
		qdrantRepo, err := repository.NewQdrantRepository(&repository.QdrantConnectionConfig{
			Host:            cfg.Qdrant.Host,
			Port:            cfg.Qdrant.Port,
			Collection:      cfg.Embedding.GetCollection(cfg.Qdrant.Collection),
			APIKey:          cfg.Qdrant.APIKey,
			UseTLS:          cfg.Qdrant.UseTLS,
			VectorDimension: cfg.Embedding.Dimensions,
		})
		if err != nil {
			appLogger.WithError(err).Fatal("Failed to initialize Qdrant repository")
		}
		defer qdrantRepo.Close()

		// Ensure Qdrant collection exists
		if err := qdrantRepo.EnsureCollection(ctx); err != nil {
			appLogger.WithError(err).Fatal("Failed to ensure Qdrant collection")
		}

		embeddingService := service.NewEmbeddingService(&service.EmbeddingConfig{
			Provider:   cfg.Embedding.Provider,
			Model:      cfg.Embedding.Model,
			APIKey:     cfg.Embedding.APIKey,
			BaseURL:    cfg.Embedding.BaseURL,
			Dimensions: cfg.Embedding.Dimensions,
		})
		selector = service.NewSelectorService(qdrantRepo, embeddingService, weights)
	} else {
		appLogger.Warn("Qdrant or embedding key not configured, template selection falls back to lexical scoring")
	}

	// Chat models for each pipeline stage
	briefChat, err := service.NewChatServiceForModel(&cfg.LLM, cfg.LLM.Model)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to configure brief model")
	}
	captionChat, err := service.NewChatServiceForModel(&cfg.LLM, cfg.LLM.CaptionModelName())
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to configure caption model")
	}
	judgeChat, err := service.NewChatServiceForModel(&cfg.LLM, cfg.LLM.JudgeModelName())
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to configure judge model")
	}

	// Initialize pipeline services
	briefService := service.NewBriefService(briefChat, cfg.Pipeline.FetchMaxBytes)
	captionService := service.NewCaptionService(captionChat)
	judgeService := service.NewJudgeService(judgeChat)
	renderService, err := service.NewRenderService(objectStorage)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize render service")
	}

	generateService := service.NewGenerateService(
		templateRepo,
		candidateRepo,
		requestLogRepo,
		briefService,
		selector,
		captionService,
		renderService,
		judgeService,
		appLogger,
		&service.GenerateConfig{
			Workers:       cfg.Pipeline.Workers,
			MaxCandidates: cfg.Pipeline.MaxCandidates,
		},
	)

	// Subscription tiers and usage limits
	subsCfg, err := config.LoadSubscription(cfg.Limits.ConfigPath)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to load subscription config")
	}
	limitChecker := limits.NewChecker(subsCfg, subscriptionRepo, requestLogRepo, appLogger, cfg.Limits.Enforce)

	// Auth, billing, referrals
	tokenVerifier := auth.NewTokenVerifier(&cfg.Auth)
	apiKeyService := auth.NewAPIKeyService(apiKeyRepo)
	notifier := alert.NewNotifier(&cfg.Telegram, appLogger)
	billingService := billing.NewService(&cfg.Stripe, cfg.Env, subscriptionRepo, profileRepo, notifier, appLogger)
	referralService := service.NewReferralService(profileRepo)

	// Setup router
	router := api.SetupRouter(&api.Dependencies{
		GenerateService: generateService,
		ReferralService: referralService,
		BillingService:  billingService,
		LimitChecker:    limitChecker,
		TokenVerifier:   tokenVerifier,
		APIKeyService:   apiKeyService,
		TemplateRepo:    templateRepo,
		CandidateRepo:   candidateRepo,
		RequestLogRepo:  requestLogRepo,
		ProfileRepo:     profileRepo,
		Logger:          appLogger,
		Mode:            cfg.Server.Mode,
		AdminToken:      cfg.Server.AdminToken,
		CORS: middleware.CORSConfig{
			AllowedOrigins:  cfg.Server.CORS.AllowedOrigins,
			AllowAllOrigins: cfg.Server.CORS.AllowAllOrigins,
		},
	})

	// Create HTTP server
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	// Start server in goroutine
	go func() {
		logger.With(logger.Fields{
			"port": cfg.Server.Port,
			"mode": cfg.Server.Mode,
			"env":  cfg.Env,
		}).Info(ctx, "Starting API server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.WithError(err).Fatal("Failed to start server")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.CtxInfo(ctx, "Shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.WithError(err).Fatal("Server forced to shutdown")
	}

	logger.CtxInfo(ctx, "Server exited")
}
