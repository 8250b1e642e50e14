package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"weather-query-service/internal/config"
	"weather-query-service/internal/ingest"
	"weather-query-service/pkg/database"
	"weather-query-service/pkg/logging"
	"weather-query-service/pkg/metrics"
)

const version = "1.0.0"

func main() {
	// Parse command-line flags
	inputPath := flag.String("input", "", "Path to a daily export file (.txt or .txt.gz)")
	batchSize := flag.Int("batch", 5000, "Number of rows to insert per batch")
	dropExisting := flag.Bool("drop-table", false, "Drop existing station tables before import")
	noIndex := flag.Bool("no-index", false, "Skip creating station and date indexes")
	flag.Parse()

	if *inputPath == "" {
		fmt.Fprintln(os.Stderr, "Usage: importer -input <file> [-batch N] [-drop-table] [-no-index]")
		os.Exit(2)
	}

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
	logger := logging.New("weather-query-importer", version, cfg.Logging.Level)

	logger.Info().
		Str("version", version).
		Str("input", *inputPath).
		Int("batch_size", *batchSize).
		Str("db_driver", cfg.Database.Driver).
		Msg("[IMPORTER_START] Starting daily data import")

	// Initialize metrics collector
	metricsCollector := metrics.NewCollector("weather_importer")

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
		logger.Fatal().Err(err).Msg("[IMPORTER_ERROR] Failed to connect to database")
	}
	defer db.Close()

	importer := ingest.NewImporter(db, logger, metricsCollector)

	result, err := importer.ImportFile(context.Background(), *inputPath, ingest.Options{
		BatchSize:     *batchSize,
		DropExisting:  *dropExisting,
		CreateIndexes: !*noIndex,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("[IMPORT_ERROR] Import failed")
	}

	// Print results
	fmt.Println(strings.Repeat("=", 80))
	fmt.Println("IMPORT COMPLETE")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("Data Lines:     %d\n", result.TotalLines)
	fmt.Printf("Inserted Rows:  %d\n", result.InsertedRows)
	fmt.Printf("Skipped Lines:  %d\n", result.SkippedLines)
	fmt.Printf("Stations:       %v\n", result.Stations)
	fmt.Printf("Tables:         %s\n", strings.Join(result.Tables, ", "))
	fmt.Printf("Indexes:        %t\n", result.CreatedIndexes)
	fmt.Printf("Duration:       %v\n", result.Duration)
	if result.Duration.Seconds() > 0 {
		fmt.Printf("Rows/Second:    %.2f\n", float64(result.InsertedRows)/result.Duration.Seconds())
	}

	logger.Info().
		Int("inserted_rows", result.InsertedRows).
		Int("skipped_lines", result.SkippedLines).
		Float64("duration_seconds", result.Duration.Seconds()).
		Msg("[IMPORTER_COMPLETE] Import completed successfully")
}
