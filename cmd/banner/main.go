package main

import (
	"context"
	"flag"
	"os"
	"path/filepath"

	"github.com/memelab/memeforge/internal/config"
	"github.com/memelab/memeforge/internal/logger"
	"github.com/memelab/memeforge/internal/service"
)

func main() {
	// Initialize logger first (with defaults)
	appLogger := logger.New(&logger.Config{
		Level:       "info",
		Format:      "text",
		ServiceName: "memeforge-banner",
	})
	logger.SetDefaultLogger(appLogger)

	// Parse command line flags
	title := flag.String("title", "MemeForge", "Banner title text")
	suggestion := flag.String("suggestion", "", "Optional hint for the banner scene")
	outPath := flag.String("out", "media/banner.png", "Output PNG path")
	configPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	if *title == "" {
		appLogger.Fatal("Banner title must not be empty")
	}

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to load config")
	}
	if cfg.Image.APIKey == "" {
		appLogger.Fatal("Gemini API key is required for banner generation")
	}

	ctx := context.Background()

	// The scene description comes from the regular chat model, the image
	// itself from Imagen
	chat, err := service.NewChatServiceForModel(&cfg.LLM, cfg.LLM.Model)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to configure chat model")
	}

	bannerService, err := service.NewBannerService(ctx, chat, cfg.Image.APIKey, cfg.Image.Model)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize banner service")
	}

	appLogger.WithFields(logger.Fields{
		"title": *title,
		"out":   *outPath,
	}).Info("Generating banner")

	data, description, err := bannerService.Generate(ctx, *title, *suggestion)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to generate banner")
	}

	if dir := filepath.Dir(*outPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			appLogger.WithError(err).Fatal("Failed to create output directory")
		}
	}
	if err := os.WriteFile(*outPath, data, 0o644); err != nil {
		appLogger.WithError(err).Fatal("Failed to write banner file")
	}

	appLogger.WithFields(logger.Fields{
		"out":         *outPath,
		"size":        len(data),
		"description": description,
	}).Info("Banner written")
}
