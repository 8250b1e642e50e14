package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"weather-query-service/internal/cache"
	"weather-query-service/internal/config"
	"weather-query-service/internal/handlers"
	"weather-query-service/internal/query"
	"weather-query-service/internal/schema"
	"weather-query-service/internal/services"
	"weather-query-service/internal/storage"
	"weather-query-service/internal/tools"
	"weather-query-service/pkg/database"
	"weather-query-service/pkg/logging"
	"weather-query-service/pkg/metrics"
)

const version = "1.0.0"

func main() {
	// Load configuration
	cfg, err := config.LoadFromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	logger := logging.New("weather-query-api", version, cfg.Logging.Level)

	logger.Info().
		Str("version", version).
		Str("server_host", cfg.Server.Host).
		Int("server_port", cfg.Server.Port).
		Str("db_driver", cfg.Database.Driver).
		Msg("[STARTUP] Starting weather query service")

	// Initialize metrics collector
	metricsCollector := metrics.NewCollector("weather_query")

	// Initialize database
	dbConfig := &database.Config{
		Driver:          cfg.Database.Driver,
		DSN:             cfg.Database.DSN,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.Database.ConnMaxIdleTime,
	}

	db, err := database.Open(dbConfig, logger, metricsCollector)
	if err != nil {
		logger.Fatal().Err(err).Msg("[STARTUP_ERROR] Failed to connect to database")
	}
	defer db.Close()

	// Initialize execution engine
	store := storage.NewStore(db, logger, metricsCollector, cfg.Query.ExecTimeout, cfg.Query.BusyRetryDelay)

	// Bootstrap the table registry from the backing store; it is read-only
	// from here on
	registry, err := bootstrapRegistry(store, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("[STARTUP_ERROR] Failed to discover station tables")
	}
	store.SetRegistry(registry)

	// Initialize cache layer
	cacheService, err := cache.NewService(cfg.Cache.MaxEntries, logger, metricsCollector)
	if err != nil {
		logger.Fatal().Err(err).Msg("[STARTUP_ERROR] Failed to initialize cache")
	}

	// Initialize gateway and orchestrating service
	gateway := query.NewGateway(logger, metricsCollector, cfg.Query.DefaultLimit, cfg.Query.MaxLimit)
	queryService := services.NewQueryService(gateway, store, cacheService, registry, logger, metricsCollector, cfg.Cache.TTL)

	// Register tools
	toolRegistry := tools.NewRegistry()
	tools.RegisterWeatherTools(toolRegistry, queryService)

	// Initialize handlers
	toolHandler := handlers.NewToolHandler(toolRegistry, queryService, store, logger, metricsCollector)

	// Setup router
	router := mux.NewRouter()
	toolHandler.RegisterRoutes(router)

	// Prometheus metrics endpoint
	router.Handle("/metrics", promhttp.HandlerFor(metricsCollector.Registry(), promhttp.HandlerOpts{}))

	// Create HTTP server
	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start server in goroutine
	go func() {
		logger.Info().Str("address", server.Addr).Msg("[SERVER_START] HTTP server listening")

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("[SERVER_ERROR] Server failed")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("[SHUTDOWN] Shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("[SHUTDOWN_ERROR] Server forced to shutdown")
	}

	logger.Info().Msg("[SHUTDOWN_COMPLETE] Server stopped")
}

// bootstrapRegistry discovers the daily station tables and their columns
func bootstrapRegistry(store *storage.Store, logger zerolog.Logger) (*schema.Registry, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	stations, err := store.ListStations(ctx)
	if err != nil {
		return nil, err
	}

	registry := schema.NewRegistry()
	for _, station := range stations {
		table := schema.TableForStation(station)
		columns, err := store.TableColumns(ctx, table)
		if err != nil {
			return nil, err
		}
		registry.RegisterTable(table, columns)
	}

	logger.Info().
		Ints("stations", stations).
		Msg("[STARTUP] Station tables registered")
	return registry, nil
}
