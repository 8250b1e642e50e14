package ingest

import (
	"bufio"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"weather-query-service/internal/schema"
	"weather-query-service/pkg/database"
	"weather-query-service/pkg/metrics"
)

// Importer loads daily station exports into per-station tables.
type Importer struct {
	db      *database.DB
	logger  zerolog.Logger
	metrics *metrics.Collector
}

// ImportResult contains import statistics for a single file.
type ImportResult struct {
	TotalLines     int
	InsertedRows   int
	SkippedLines   int
	Stations       []int
	Tables         []string
	Duration       time.Duration
	CreatedIndexes bool
}

// Options controls how a file is imported.
type Options struct {
	BatchSize     int
	DropExisting  bool
	CreateIndexes bool
}

// NewImporter creates a new importer.
func NewImporter(db *database.DB, logger zerolog.Logger, metricsCollector *metrics.Collector) *Importer {
	return &Importer{
		db:      db,
		logger:  logger,
		metrics: metricsCollector,
	}
}

// ImportFile reads a daily export (plain text or gzip), detects the
// column header, and loads every data row into the table for its
// station. A file may carry rows for more than one station; each
// station gets its own table so table names stay enumerable.
func (im *Importer) ImportFile(ctx context.Context, path string, opts Options) (*ImportResult, error) {
	startTime := time.Now()

	if opts.BatchSize <= 0 {
		opts.BatchSize = 5000
	}

	im.logger.Info().
		Str("path", path).
		Int("batch_size", opts.BatchSize).
		Msg("[IMPORT_START] Starting file import")

	lines, err := readLines(path)
	if err != nil {
		im.metrics.RecordImportError("read_error")
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	columns, dataStart, err := parseHeader(lines)
	if err != nil {
		im.metrics.RecordImportError("header_error")
		return nil, err
	}

	stnIndex := columnIndex(columns, "STN")
	if stnIndex < 0 {
		im.metrics.RecordImportError("header_error")
		return nil, fmt.Errorf("header has no STN column")
	}

	result := &ImportResult{}
	tables := make(map[int]string)
	batches := make(map[int][][]interface{})

	flush := func(station int) error {
		batch := batches[station]
		if len(batch) == 0 {
			return nil
		}
		if err := im.insertBatch(ctx, tables[station], columns, batch); err != nil {
			im.metrics.RecordImportError("insert_error")
			return fmt.Errorf("failed to insert batch for station %d: %w", station, err)
		}
		result.InsertedRows += len(batch)
		im.metrics.ImportRowsTotal.Add(float64(len(batch)))
		batches[station] = batch[:0]
		return nil
	}

	for _, line := range lines[dataStart:] {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		result.TotalLines++

		values := parseDataLine(trimmed, len(columns))
		station, ok := values[stnIndex].(int64)
		if !ok {
			result.SkippedLines++
			im.metrics.RecordImportError("missing_station")
			continue
		}

		id := int(station)
		if _, known := tables[id]; !known {
			table := schema.TableForStation(id)
			if err := im.prepareTable(ctx, table, columns, opts.DropExisting); err != nil {
				return nil, err
			}
			tables[id] = table
		}

		batches[id] = append(batches[id], values)
		if len(batches[id]) >= opts.BatchSize {
			if err := flush(id); err != nil {
				return nil, err
			}
		}
	}

	for station := range batches {
		if err := flush(station); err != nil {
			return nil, err
		}
	}

	for station, table := range tables {
		result.Stations = append(result.Stations, station)
		result.Tables = append(result.Tables, table)
		if opts.CreateIndexes {
			if err := im.createIndexes(ctx, table, columns); err != nil {
				im.metrics.RecordImportError("index_error")
				im.logger.Error().Err(err).Str("table", table).Msg("[IMPORT_INDEX_ERROR] Failed to create indexes")
				continue
			}
			result.CreatedIndexes = true
		}
	}
	sort.Ints(result.Stations)
	sort.Strings(result.Tables)

	result.Duration = time.Since(startTime)
	im.metrics.ImportDuration.Observe(result.Duration.Seconds())

	im.logger.Info().
		Int("total_lines", result.TotalLines).
		Int("inserted_rows", result.InsertedRows).
		Int("skipped_lines", result.SkippedLines).
		Ints("stations", result.Stations).
		Float64("duration_seconds", result.Duration.Seconds()).
		Msg("[IMPORT_COMPLETE] File import completed")

	return result, nil
}

// prepareTable creates the station table if needed. STN is stored as
// INTEGER, the date column as TEXT in YYYYMMDD form, and every other
// column as INTEGER because daily values come in tenths of a unit.
func (im *Importer) prepareTable(ctx context.Context, table string, columns []string, dropExisting bool) error {
	if dropExisting {
		if _, err := im.db.DB().ExecContext(ctx, fmt.Sprintf(`DROP TABLE IF EXISTS %q`, table)); err != nil {
			im.metrics.RecordImportError("schema_error")
			return fmt.Errorf("failed to drop table %s: %w", table, err)
		}
	}

	defs := make([]string, len(columns))
	for i, c := range columns {
		switch strings.ToUpper(c) {
		case "YYYYMMDD":
			defs[i] = fmt.Sprintf("%q TEXT", c)
		default:
			defs[i] = fmt.Sprintf("%q INTEGER", c)
		}
	}

	stmt := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %q (%s)`, table, strings.Join(defs, ", "))
	if _, err := im.db.DB().ExecContext(ctx, stmt); err != nil {
		im.metrics.RecordImportError("schema_error")
		return fmt.Errorf("failed to create table %s: %w", table, err)
	}

	im.logger.Debug().Str("table", table).Int("columns", len(columns)).Msg("[IMPORT_TABLE] Table ready")
	return nil
}

// insertBatch writes one batch of rows inside a transaction.
func (im *Importer) insertBatch(ctx context.Context, table string, columns []string, batch [][]interface{}) error {
	quoted := make([]string, len(columns))
	placeholders := make([]string, len(columns))
	for i, c := range columns {
		quoted[i] = fmt.Sprintf("%q", c)
		placeholders[i] = "?"
	}

	stmt := im.db.Rebind(fmt.Sprintf(
		`INSERT INTO %q (%s) VALUES (%s)`,
		table, strings.Join(quoted, ", "), strings.Join(placeholders, ", "),
	))

	tx, err := im.db.DB().BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	prepared, err := tx.PreparexContext(ctx, stmt)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to prepare insert: %w", err)
	}

	for _, row := range batch {
		if _, err := prepared.ExecContext(ctx, row...); err != nil {
			prepared.Close()
			tx.Rollback()
			return fmt.Errorf("failed to insert row: %w", err)
		}
	}

	prepared.Close()
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit batch: %w", err)
	}
	return nil
}

// createIndexes adds lookup indexes on the station and date columns.
func (im *Importer) createIndexes(ctx context.Context, table string, columns []string) error {
	if columnIndex(columns, "STN") >= 0 {
		stmt := fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_stn ON %q ("STN")`, table, table)
		if _, err := im.db.DB().ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	if columnIndex(columns, "YYYYMMDD") >= 0 {
		stmt := fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_date ON %q ("YYYYMMDD")`, table, table)
		if _, err := im.db.DB().ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func columnIndex(columns []string, name string) int {
	for i, c := range columns {
		if strings.EqualFold(c, name) {
			return i
		}
	}
	return -1
}

// readLines loads the whole file into memory; the header can sit after
// an arbitrarily long comment preamble, so streaming buys little here.
func readLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var reader io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("failed to open gzip stream: %w", err)
		}
		defer gz.Close()
		reader = gz
	}

	var lines []string
	scanner := bufio.NewScanner(reader)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return lines, nil
}
