package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"geo-insight/internal/config"
	"geo-insight/internal/devserver"
	"geo-insight/internal/simulator"

	"github.com/rs/zerolog"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration")
	scenario := flag.String("scenario", "", "payload scenario (overrides config)")
	flag.Parse()

	zerolog.TimeFieldFormat = time.RFC3339
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to load configuration")
	}
	if level, err := zerolog.ParseLevel(cfg.Log.Level); err == nil {
		logger = logger.Level(level)
	}
	if *scenario != "" {
		cfg.Simulator.Scenario = *scenario
	}

	stream, err := devserver.New(devserver.Options{
		Secret:      []byte(cfg.Auth.JWTSecret),
		Datasets:    cfg.Simulator.Datasets,
		HistorySize: cfg.Simulator.HistorySize,
		AuthTimeout: cfg.Transport.AuthTimeout,
		Logger:      logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create stream server")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Um simulador por dataset
	var wg sync.WaitGroup
	for i, ds := range cfg.Simulator.Datasets {
		sim := simulator.New()
		simCfg := simulator.Config{
			DeviceName:  ds,
			SensorCount: cfg.Simulator.SensorCount,
			RateHz:      cfg.Simulator.RateHz,
			Scenario:    cfg.Simulator.Scenario,
			NoiseLevel:  simulator.DefaultConfig().NoiseLevel,
			Seed:        time.Now().UnixNano() + int64(i),
		}
		if err := sim.Start(simCfg); err != nil {
			logger.Fatal().Err(err).Str("dataset", ds).Msg("Failed to start simulator")
		}

		wg.Add(1)
		go func(ds string) {
			defer wg.Done()
			defer sim.Stop()
			if err := stream.Feed(ctx, ds, sim); err != nil {
				logger.Error().Err(err).Str("dataset", ds).Msg("Simulator feed stopped")
			}
		}(ds)
	}

	mux := http.NewServeMux()
	mux.Handle("/ws", stream)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Simulator.Port),
		Handler: mux,
	}

	go func() {
		logger.Info().
			Int("port", cfg.Simulator.Port).
			Str("scenario", cfg.Simulator.Scenario).
			Strs("datasets", cfg.Simulator.Datasets).
			Strs("scenarios", simulator.Scenarios()).
			Msg("Starting stream simulator")

		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("Simulator failed to start")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("Shutting down simulator...")

	stream.Close()
	wg.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Simulator forced to shutdown")
	}
}
