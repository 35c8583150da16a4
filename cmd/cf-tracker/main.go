package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/PatGB5/codeforces-submission-bot/internal/api"
	"github.com/PatGB5/codeforces-submission-bot/internal/bot"
	"github.com/PatGB5/codeforces-submission-bot/internal/codeforces"
	"github.com/PatGB5/codeforces-submission-bot/internal/config"
	"github.com/PatGB5/codeforces-submission-bot/internal/events"
	"github.com/PatGB5/codeforces-submission-bot/internal/health"
	"github.com/PatGB5/codeforces-submission-bot/internal/notify"
	"github.com/PatGB5/codeforces-submission-bot/internal/sheets"
	"github.com/PatGB5/codeforces-submission-bot/internal/storage"
	"github.com/PatGB5/codeforces-submission-bot/internal/tracker"
)

func main() {
	// A missing .env is fine, the environment may already be populated
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "failed to load .env: %v\n", err)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.Log.SlogLevel(),
	}))
	slog.SetDefault(logger)

	slog.Info("starting cf-tracker",
		"store", cfg.Store.Backend,
		"poll_interval", cfg.Tracking.PollInterval,
		"fetch_count", cfg.Tracking.FetchCount,
	)

	initCtx, initCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer initCancel()

	var closers []io.Closer

	store, storeCloser, err := newTabularStore(initCtx, cfg)
	if err != nil {
		slog.Error("failed to create tabular store", "error", err)
		os.Exit(1)
	}
	if storeCloser != nil {
		closers = append(closers, storeCloser)
	}

	feed := codeforces.NewClient(
		codeforces.WithBaseURL(cfg.Codeforces.BaseURL),
		codeforces.WithTimeout(cfg.Codeforces.Timeout),
		codeforces.WithCredentials(cfg.Codeforces.APIKey, cfg.Codeforces.APISecret),
	)

	telegram, err := bot.New(cfg.Telegram.Token, bot.Config{
		AllowedUsers:        cfg.Telegram.AllowedUsers,
		ServiceAccountEmail: serviceAccountEmail(cfg),
	})
	if err != nil {
		slog.Error("failed to create telegram bot", "error", err)
		os.Exit(1)
	}

	hub := notify.NewHub()
	defer hub.Close()

	checks := health.NewRegistry()
	var opts []tracker.ManagerOption

	if cfg.Redis.Address != "" {
		sessionStore, err := storage.NewRedisSessionStore(initCtx, storage.RedisConfig{
			Address:  cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Prefix:   cfg.Redis.Prefix,
		})
		if err != nil {
			slog.Error("failed to connect session store", "error", err)
			os.Exit(1)
		}
		closers = append(closers, sessionStore)
		checks.Register("redis", sessionStore)
		opts = append(opts, tracker.WithSessionStore(sessionStore))
		slog.Info("session persistence enabled", "redis", cfg.Redis.Address)
	}

	if len(cfg.Kafka.Brokers) > 0 {
		publisher := events.NewPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		closers = append(closers, publisher)
		opts = append(opts, tracker.WithEventPublisher(publisher))
		slog.Info("event publishing enabled", "brokers", cfg.Kafka.Brokers, "topic", cfg.Kafka.Topic)
	}

	manager := tracker.NewManager(feed, store, notify.NewMulti(telegram, hub), tracker.Options{
		PollInterval: cfg.Tracking.PollInterval,
		CycleTimeout: cfg.Tracking.CycleTimeout,
		FetchCount:   cfg.Tracking.FetchCount,
		ReadRange:    cfg.Sheets.ReadRange,
		AppendRange:  cfg.Sheets.AppendRange,
	}, opts...)
	telegram.SetSessions(manager)
	checks.Register("tracker", manager)
	if pinger, ok := store.(health.Checker); ok {
		checks.Register("store", pinger)
	}

	restored, err := manager.Restore(initCtx)
	if err != nil {
		slog.Error("failed to restore sessions", "error", err)
	} else if restored > 0 {
		slog.Info("sessions restored", "count", restored)
	}

	if cfg.Tracking.File != "" {
		trackFromFile(initCtx, manager, cfg.Tracking.File)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reaper := tracker.NewReaper(manager, telegram,
		cfg.Tracking.ReapInterval, cfg.Tracking.HandleTimeout, cfg.Tracking.SheetIDTimeout)
	reaper.Start(ctx)

	go telegram.Listen(ctx)

	var httpServer *http.Server
	if cfg.Server.Enabled {
		server := api.NewServer(cfg.Server, manager, hub, checks)
		httpServer = &http.Server{
			Addr:        fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
			Handler:     server.Router(),
			ReadTimeout: 15 * time.Second,
			IdleTimeout: 60 * time.Second,
		}

		go func() {
			slog.Info("HTTP server starting", "addr", httpServer.Addr)
			if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				slog.Error("HTTP server error", "error", err)
				os.Exit(1)
			}
		}()
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down gracefully...")

	// Stop the bot and the reaper
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if httpServer != nil {
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("HTTP server shutdown error", "error", err)
		}
	}

	// Waits for in-flight poll cycles
	if err := manager.Close(); err != nil {
		slog.Error("manager close error", "error", err)
	}

	for _, c := range closers {
		if err := c.Close(); err != nil {
			slog.Error("close error", "error", err)
		}
	}

	slog.Info("cf-tracker stopped")
}

func newTabularStore(ctx context.Context, cfg *config.Config) (tracker.TabularStore, io.Closer, error) {
	switch cfg.Store.Backend {
	case config.StorePostgres:
		store, err := storage.NewPostgresRowStore(ctx, storage.PostgresConfig{
			DSN:   cfg.Database.DSN,
			Table: cfg.Database.Table,
		})
		if err != nil {
			return nil, nil, err
		}
		slog.Info("database connected successfully", "table", cfg.Database.Table)
		return store, store, nil
	default:
		store, err := sheets.NewStore(ctx, cfg.Sheets.CredentialsFile)
		if err != nil {
			return nil, nil, err
		}
		return store, nil, nil
	}
}

func serviceAccountEmail(cfg *config.Config) string {
	if cfg.Sheets.ServiceAccountEmail != "" || cfg.Store.Backend != config.StoreSheets {
		return cfg.Sheets.ServiceAccountEmail
	}
	email, err := sheets.ServiceAccountEmail(cfg.Sheets.CredentialsFile)
	if err != nil {
		slog.Warn("could not read service account email", "error", err)
		return ""
	}
	return email
}

func trackFromFile(ctx context.Context, manager *tracker.Manager, path string) {
	requests, err := config.LoadTrackingFile(path)
	if err != nil {
		slog.Error("failed to load tracking file", "file", path, "error", err)
		return
	}

	for _, req := range requests {
		if _, err := manager.Track(ctx, req); err != nil {
			if errors.Is(err, tracker.ErrSessionExists) {
				slog.Debug("session already tracked", "owner", req.Owner)
				continue
			}
			slog.Error("failed to track session from file", "owner", req.Owner, "handle", req.Handle, "error", err)
		}
	}
	slog.Info("tracking file loaded", "file", path, "sessions", len(requests))
}
