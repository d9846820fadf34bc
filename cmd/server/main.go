package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"geo-insight/internal/api"
	"geo-insight/internal/auth"
	"geo-insight/internal/config"
	"geo-insight/internal/data"
	"geo-insight/internal/metrics"
	"geo-insight/internal/notify"
	"geo-insight/internal/session"
	"geo-insight/internal/websocket"

	"github.com/rs/zerolog"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration")
	staticDir := flag.String("static", "", "directory with the web interface")
	flag.Parse()

	// Setup logging
	zerolog.TimeFieldFormat = time.RFC3339
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to load configuration")
	}
	if level, err := zerolog.ParseLevel(cfg.Log.Level); err == nil {
		logger = logger.Level(level)
	}

	metrics.Init()

	// Cria diretório para banco de dados se não existir
	if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0755); err != nil {
		logger.Fatal().Err(err).Msg("Failed to create database directory")
	}
	db, err := data.NewDatabase(cfg.Database.Path)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer db.Close()

	tokens, err := auth.NewJWTProvider(
		[]byte(cfg.Auth.JWTSecret),
		cfg.Auth.Issuer,
		cfg.Transport.UserID,
		cfg.Transport.Datasets,
		cfg.Auth.TokenTTL,
	)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize token provider")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize WebSocket hub
	hub := websocket.NewHub(logger)
	go hub.Run(ctx)

	notifier := notify.Multi{
		notify.NewLogNotifier(logger),
		notify.Func(hub.BroadcastNotification),
	}

	sessions, err := session.NewManager(session.Options{
		Transport:   cfg.Transport,
		Tokens:      tokens,
		Store:       db,
		Broadcaster: hub,
		Notifier:    notifier,
		Logger:      logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize sessions")
	}
	if err := sessions.Start(ctx); err != nil {
		logger.Fatal().Err(err).Msg("Failed to start sessions")
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      api.New(api.Options{Sessions: sessions, Hub: hub, Logger: logger, StaticDir: *staticDir}).Handler(),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
	}

	go func() {
		logger.Info().
			Int("port", cfg.Server.Port).
			Str("stream", cfg.Transport.URL).
			Strs("datasets", cfg.Transport.Datasets).
			Msg("Starting geo-insight server")

		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("Server failed to start")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("Shutting down server...")

	sessions.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Server forced to shutdown")
	}

	logger.Info().Msg("Server exited")
}
