package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"turbinelens/analysis"
	"turbinelens/api"
	"turbinelens/config"
	"turbinelens/database"
	"turbinelens/etl"
	"turbinelens/jobs"
	"turbinelens/mart"
	"turbinelens/metrics"
	"turbinelens/notify"
)

const (
	appName = "TurbineLens"
	version = "v0.4.0"
)

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})

	rootCmd := &cobra.Command{
		Use:     "turbinelens",
		Short:   "Wind turbine maintenance and energy mix analytics",
		Version: version,
		Long: `TurbineLens ingests turbine telemetry CSV files, delegates maintenance
predictions to an analysis provider and projects the carbon intensity of an
energy mix.`,
	}

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the dashboard API server",
		RunE:  runServe,
	}

	rootCmd.AddCommand(serveCmd, newMixCmd(), newValidateCmd(), newSampleCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setLogLevel(level string) {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
}

// buildProvider assembles the analysis provider chain from config
func buildProvider(cfg *config.Config, repo *database.Repository, reg *metrics.Registry) analysis.Provider {
	var provider analysis.Provider
	switch cfg.Provider.Mode {
	case "http":
		provider = analysis.NewHTTPProvider(analysis.HTTPProviderConfig{
			URL:                 cfg.Provider.URL,
			Timeout:             cfg.Provider.Timeout(),
			ConsecutiveFailures: uint32(cfg.Provider.BreakerFailures),
			OpenTimeout:         30 * time.Second,
		})
	default:
		provider = analysis.NewMockProvider(cfg.Provider.MockLatency(), 0)
	}

	if cfg.Provider.Cache {
		provider = analysis.NewCachingProvider(provider, repo, cfg.Provider.Mode, cfg.CacheTTLHours)
	}
	return analysis.Instrument(provider, cfg.Provider.Mode, reg)
}

func runServe(cmd *cobra.Command, args []string) error {
	log.Info().Str("version", version).Msgf("=== %s ===", appName)

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	setLogLevel(cfg.LogLevel)
	log.Info().Msg("configuration loaded")

	// Initialize databases
	db, err := database.Initialize(cfg.AnalyticsDBPath, cfg.AppDBPath)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer db.Close()

	repo := database.NewRepository(db)
	if err := repo.CreateSchema(); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	log.Info().Str("analytics", cfg.AnalyticsDBPath).Str("app", cfg.AppDBPath).Msg("database schema ready")

	// Initialize worker pool
	workerPool := jobs.NewWorkerPool(cfg.WorkerPoolSize)
	defer workerPool.Stop()
	log.Info().Int("workers", cfg.WorkerPoolSize).Msg("worker pool started")

	reg := metrics.NewRegistry()
	martBuilder := mart.NewBuilder(db)
	persister := etl.NewPersister(repo, martBuilder)
	provider := buildProvider(cfg, repo, reg)
	log.Info().Str("mode", cfg.Provider.Mode).Bool("cache", cfg.Provider.Cache).Msg("analysis provider ready")

	dashboards := etl.NewRegistry(func(id string) *etl.Orchestrator {
		return etl.NewOrchestrator(etl.OrchestratorOptions{
			ID:         id,
			Provider:   provider,
			Pool:       workerPool,
			Timeout:    cfg.Provider.Timeout(),
			OnComplete: persister.Hook(id),
			Recorder:   reg,
		})
	})
	defer dashboards.Close()

	notifier := notify.NewService(notify.LogSender{}, repo, reg, cfg.Notifications.PerMinute, cfg.Notifications.Burst)

	// Start retention scheduler
	scheduler := etl.NewScheduler(cfg, repo, martBuilder)
	scheduler.Start()
	defer scheduler.Stop()

	handler := api.NewHandler(api.Dependencies{
		DB:         db,
		Repo:       repo,
		Config:     cfg,
		Mart:       martBuilder,
		Dashboards: dashboards,
		Notifier:   notifier,
		Metrics:    reg,
	})

	router := api.SetupRouter(handler)
	router.Use(api.CORSMiddleware())
	router.Use(api.LoggingMiddleware())

	addr := fmt.Sprintf("%s:%s", cfg.APIHost, cfg.APIPort)
	server := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("API server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-serverErr:
		return fmt.Errorf("server error: %w", err)
	}

	log.Info().Msg("shutting down server")

	// Graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server exited")
	return nil
}
