package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/drivedrop/drivedrop/internal/config"
	"github.com/drivedrop/drivedrop/internal/drive"
	"github.com/drivedrop/drivedrop/internal/gauth"
	"github.com/drivedrop/drivedrop/internal/logging"
	"github.com/drivedrop/drivedrop/internal/monitoring"
	"github.com/drivedrop/drivedrop/internal/server"
	"github.com/drivedrop/drivedrop/internal/session"
	"github.com/drivedrop/drivedrop/internal/telegram"
	"github.com/drivedrop/drivedrop/internal/upload"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	logger, err := logging.New(logging.Config{
		Level:       cfg.Logging.Level,
		Development: cfg.Logging.Development,
	})
	if err != nil {
		log.Fatalf("failed to create logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Credential first: without a usable Drive credential the bot
	// must not start accepting files.
	tokenSource, err := gauth.TokenSource(ctx, cfg.Google.TokenJSON, cfg.Google.TokenFile, logger.Named("gauth"))
	if err != nil {
		logger.Fatal("failed to load Drive credential", zap.Error(err))
	}

	store := drive.NewClient(tokenSource, drive.WithRateLimit(cfg.Drive.RequestsPerSecond))

	rootMeta, err := store.GetMetadata(ctx, cfg.Drive.RootFolderID)
	if err != nil {
		logger.Fatal("failed to access root folder", zap.String("id", cfg.Drive.RootFolderID), zap.Error(err))
	}
	root := drive.Folder{ID: rootMeta.ID, Name: rootMeta.Name}
	logger.Info("root folder verified", zap.String("name", root.Name))

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	metrics := monitoring.New(registry)

	bot, err := telegram.New(cfg.Telegram.Token, logger.Named("telegram"))
	if err != nil {
		logger.Fatal("failed to connect to telegram", zap.Error(err))
	}

	pipeline := upload.New(store, bot, logger.Named("upload"),
		upload.WithStagingDir(cfg.Session.StagingDir),
		upload.WithMetrics(metrics),
	)

	machine := session.NewMachine(session.Config{
		Root:           root,
		AuthorizedUser: cfg.Telegram.AuthorizedUserID,
		ListPageSize:   cfg.Drive.ListPageSize,
		IdleTimeout:    cfg.Session.Timeout,
	}, store, pipeline, bot, logger.Named("session"), metrics)
	machine.StartReaper(ctx)

	bot.Bind(machine)

	var httpSrv *server.Server
	if cfg.HTTP.Enabled {
		httpSrv = server.New(cfg.HTTP.Addr, registry, logger.Named("http"))
		go func() {
			if err := httpSrv.Start(); err != nil {
				logger.Error("http server failed", zap.Error(err))
			}
		}()
	}

	go bot.Start()
	logger.Info("drivedrop started",
		zap.Int64("authorized_user", cfg.Telegram.AuthorizedUserID),
		zap.String("root_folder", root.Name))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	logger.Info("shutting down")
	bot.Stop()
	if httpSrv != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("http shutdown error", zap.Error(err))
		}
	}
}
