package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/nurpe/billdesk/internal/auth"
	"github.com/nurpe/billdesk/internal/config"
	"github.com/nurpe/billdesk/internal/db"
	"github.com/nurpe/billdesk/internal/excel"
	httphandler "github.com/nurpe/billdesk/internal/http"
	"github.com/nurpe/billdesk/internal/http/middleware"
	"github.com/nurpe/billdesk/internal/logger"
	"github.com/nurpe/billdesk/internal/pdf"
	"github.com/nurpe/billdesk/internal/repository"
	"github.com/nurpe/billdesk/internal/service"
	"github.com/nurpe/billdesk/internal/store"
)

const (
	shutdownTimeout      = 15 * time.Second
	sessionSweepInterval = 5 * time.Minute
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			log := logger.NewWithLevel(cfg.Environment, cfg.LogLevel)

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, log)
		},
	}
}

func serve(ctx context.Context, cfg *config.Config, log zerolog.Logger) error {
	remote, closeStore, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeStore()
	remote = store.WithTimeout(remote, cfg.Store.Timeout)

	sessions := service.NewSessions(service.Options{
		Settings:              repository.NewSettingsRepository(remote),
		Documents:             repository.NewDocumentRepository(remote),
		Log:                   log,
		QuotationValidityDays: cfg.Documents.QuotationValidityDays,
	})
	go sessions.RunEviction(ctx, sessionSweepInterval, cfg.Sessions.IdleTimeout)

	handler := httphandler.NewHandler(
		sessions,
		pdf.NewGenerator(cfg.Documents.CurrencyPrefix),
		excel.NewGenerator(cfg.Documents.CurrencyPrefix),
		cfg.Documents.CurrencyPrefix,
		log,
	)
	authMiddleware := middleware.Auth(auth.NewParser(cfg.Auth.AccessSecret))
	router := httphandler.NewRouter(handler, authMiddleware, cfg.Environment, cfg.HTTP.AllowedOrigins)

	addr := fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port)
	server := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Str("store", cfg.Store.Driver).Msg("starting billdesk")
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// openStore connects the configured backend and returns a func that releases it.
func openStore(ctx context.Context, cfg *config.Config, log zerolog.Logger) (store.RemoteStore, func(), error) {
	switch cfg.Store.Driver {
	case config.StoreDriverMemory:
		log.Warn().Msg("using the in-memory store, data is lost on restart")
		return store.NewMemoryStore(), func() {}, nil
	case config.StoreDriverRedis:
		client, err := store.ConnectRedis(ctx, cfg.Redis.URL)
		if err != nil {
			return nil, nil, fmt.Errorf("connect redis: %w", err)
		}
		return store.NewRedisStore(client, cfg.Redis.Prefix), func() { _ = client.Close() }, nil
	default:
		database, err := db.New(cfg, log)
		if err != nil {
			return nil, nil, fmt.Errorf("connect database: %w", err)
		}
		closeDB := func() {
			if sqlDB, err := database.DB(); err == nil {
				_ = sqlDB.Close()
			}
		}
		return store.NewPostgresStore(database), closeDB, nil
	}
}
