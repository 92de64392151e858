// Warden moderation server - reviews every outbound reply before a user
// ever sees it.
package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/hitlbot/warden/pkg/activity"
	"github.com/hitlbot/warden/pkg/api"
	"github.com/hitlbot/warden/pkg/broker"
	"github.com/hitlbot/warden/pkg/cleanup"
	"github.com/hitlbot/warden/pkg/config"
	"github.com/hitlbot/warden/pkg/dispatch"
	"github.com/hitlbot/warden/pkg/llmrouter"
	"github.com/hitlbot/warden/pkg/memory"
	"github.com/hitlbot/warden/pkg/models"
	"github.com/hitlbot/warden/pkg/platform"
	"github.com/hitlbot/warden/pkg/protocol"
	"github.com/hitlbot/warden/pkg/recovery"
	"github.com/hitlbot/warden/pkg/review"
	"github.com/hitlbot/warden/pkg/safety"
	"github.com/hitlbot/warden/pkg/store"
	"github.com/hitlbot/warden/pkg/supervisor"
	"github.com/hitlbot/warden/pkg/version"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

const activityWorkers = 8

func main() {
	configDir := flag.String("config-dir",
		getEnv("CONFIG_DIR", "./deploy/config"),
		"Path to configuration directory")
	flag.Parse()

	envPath := filepath.Join(*configDir, ".env")
	if err := godotenv.Load(envPath); err != nil {
		log.Printf("warning: could not load %s: %v", envPath, err)
		log.Printf("continuing with existing environment variables")
	} else {
		log.Printf("loaded environment from %s", envPath)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfgPath := filepath.Join(*configDir, "warden.yaml")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger.Info("starting warden", "version", version.Full(), "config_dir", *configDir)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	s, err := store.Open(ctx, cfg.Database)
	if err != nil {
		log.Fatalf("failed to open store: %v", err)
	}
	defer s.Close()
	logger.Info("connected to postgres message store")

	b := broker.New(cfg.Redis, cfg.Timeouts.Cache())
	logger.Info("connected to redis queue broker")

	var plat platform.Client = platform.NewSlackClient(platform.SlackConfig{
		BotToken: os.Getenv("SLACK_BOT_TOKEN"),
	})

	pm := protocol.New(s, b)
	mm := memory.New(cfg.Memory)
	sf := safety.New()

	registry := llmrouter.NewRegistry()
	registry.Put(llmrouter.Profile{
		Name: "default",
		Generator: llmrouter.ModelConfig{Model: "default-generator", Temperature: 0.7, MaxTokens: 512},
		Refiner:   llmrouter.ModelConfig{Model: "default-refiner", Temperature: 0.0, MaxTokens: 256},
	})
	if cfg.LLMProfile != "" && cfg.LLMProfile != "default" {
		registry.Put(llmrouter.Profile{Name: cfg.LLMProfile})
	}
	defaultProfile := cfg.LLMProfile
	if defaultProfile == "" {
		defaultProfile = "default"
	}
	lr := llmrouter.New(registry, llmrouter.NewMockProvider(), b, defaultProfile, logger)

	rv := review.New(s, b)
	dp := dispatch.New(s, b, plat, pm, mm, logger)
	// The Ingress Adapter (pkg/ingress) is the boundary a transport layer
	// calls into; this binary carries no inbound webhook listener, so the
	// adapter is exercised by tests but not wired here.
	ra := recovery.New(s, b, plat, cfg.Recovery, logger)
	cl := cleanup.New(cfg.Retention, s, pm, mm, logger)

	sv := supervisor.New(s, b, mm, lr, sf, *cfg, supervisor.DefaultPersona(), logger)
	tr := activity.New(b, cfg.Debounce, sv, logger)

	tr.Start(ctx, activityWorkers)
	defer tr.Stop()

	go dp.Run(ctx)

	cl.Start(ctx)
	defer cl.Stop()

	if _, err := ra.Run(ctx, models.RecoveryTriggerStartup); err != nil {
		logger.Error("startup recovery pass failed", "error", err)
	}

	srv := api.NewServer(cfg, s, b, rv, pm, ra, lr)
	httpPort := getEnv("HTTP_PORT", "8080")

	errCh := make(chan error, 1)
	go func() {
		logger.Info("reviewer api listening", "addr", ":"+httpPort)
		if err := srv.Start(":" + httpPort); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		logger.Error("api server failed", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("api shutdown error", "error", err)
	}
	logger.Info("warden stopped")
}
