package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/caviaarmode/shopping-assistant/internal/config"
	"github.com/caviaarmode/shopping-assistant/internal/telemetry"
	"github.com/caviaarmode/shopping-assistant/pkg/shopassist"
)

var version = "dev"

func main() {
	configPath := flag.String("config", config.DefaultFile, "config file path")
	flag.Parse()

	// Load .env file if it exists
	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	cfg, err := shopassist.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	shutdownTracer, err := telemetry.InitTracer(telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    "shopping-assistant",
		ServiceVersion: version,
	}, logger)
	if err != nil {
		log.Fatalf("Failed to initialize tracer: %v", err)
	}
	defer func() {
		if err := shutdownTracer(context.Background()); err != nil {
			logger.Error("failed to shutdown tracer", slog.String("error", err.Error()))
		}
	}()

	keyStatus := "Not set"
	if cfg.OpenAI.APIKey != "" {
		keyStatus = "Set"
	}
	logger.Info("provider credential", slog.String("OPENAI_API_KEY", keyStatus))

	app, err := shopassist.New(cfg, shopassist.WithLogger(logger))
	if err != nil {
		log.Fatalf("Failed to create assistant: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := app.Start(ctx); err != nil {
		log.Fatalf("Failed to start assistant: %v", err)
	}

	// Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutdown signal received, stopping assistant...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := app.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
