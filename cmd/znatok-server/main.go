// Package main provides the Znatok HTTP server entry point.
package main

import (
	"context"
	"log"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/bull/znatok/internal/api"
	"github.com/bull/znatok/internal/app"
	"github.com/bull/znatok/internal/bot"
	"github.com/bull/znatok/internal/config"
	mcpserver "github.com/bull/znatok/internal/mcp"
	"github.com/bull/znatok/internal/schedule"
)

const shutdownTimeout = 15 * time.Second

func main() {
	// Load .env file if present (local development), ignore if missing (production)
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	logger, err := app.NewLogger(cfg.LogLevel)
	if err != nil {
		log.Fatalf("failed to create logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	if err := run(cfg, logger); err != nil {
		logger.Fatal("Server stopped with error", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	// Create context that cancels on SIGTERM/SIGINT
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	bots := bot.NewSupervisor(ctx, logger)
	newTelegram := func(token string) bot.Runnable {
		return bot.NewTelegram(token, a.Orchestrator, logger)
	}
	if tg := a.Settings.Get().Integrations.Telegram; tg.Enabled && tg.BotToken != "" {
		if err := bots.Start(newTelegram(tg.BotToken)); err != nil {
			logger.Warn("Failed to start telegram bot", zap.Error(err))
		}
	}

	deps := api.Deps{
		Asker:          a.Orchestrator,
		Indexer:        a.Pipeline,
		Sources:        a.Sources,
		Settings:       a.Settings,
		Health:         a.Index,
		Archive:        a.Archive,
		Bots:           bots,
		NewTelegram:    newTelegram,
		Bitrix24:       bot.NewBitrix24Webhook(a.Settings, a.Orchestrator, logger),
		AllowedOrigins: splitOrigins(cfg.AllowedOrigins),
		Logger:         logger,
	}
	if cfg.MCPEnabled {
		deps.MCP = mcpserver.NewHTTPHandler(a.MCP, &mcpserver.HTTPHandlerOptions{Stateless: true})
	}
	server := api.NewServer(":"+cfg.Port, deps)

	scheduler := schedule.NewCronScheduler(logger)
	if cfg.SyncSchedule != "" {
		for _, job := range a.Sources.Jobs() {
			if err := scheduler.AddJob(job, cfg.SyncSchedule); err != nil {
				return err
			}
		}
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("Starting HTTP server",
			zap.String("addr", ":"+cfg.Port),
			zap.Bool("mcp", cfg.MCPEnabled),
			zap.String("sync_schedule", cfg.SyncSchedule))
		return server.ListenAndServe()
	})

	g.Go(func() error {
		scheduler.Start(gctx)
		<-gctx.Done()
		scheduler.Stop()
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down")
		bots.Stop()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func splitOrigins(s string) []string {
	var out []string
	for _, o := range strings.Split(s, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}
