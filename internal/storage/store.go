// Package storage runs validated statements against the backing station
// store and returns column-typed rows. It owns the wall-clock execution
// timeout and the single bounded retry for busy/locked conditions; every
// other failure surfaces immediately.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	sqlite3 "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"

	"weather-query-service/internal/models"
	"weather-query-service/internal/query"
	"weather-query-service/internal/schema"
	"weather-query-service/pkg/database"
	"weather-query-service/pkg/metrics"
)

// ExecutionKind classifies storage-layer failures
type ExecutionKind int

const (
	StorageBusy ExecutionKind = iota
	SyntaxRejectedByEngine
	Timeout
)

func (k ExecutionKind) String() string {
	switch k {
	case StorageBusy:
		return "storage_busy"
	case SyntaxRejectedByEngine:
		return "syntax_rejected"
	case Timeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// ExecutionError wraps a storage failure with its classification
type ExecutionError struct {
	Kind ExecutionKind
	Err  error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("statement execution failed (%s): %v", e.Kind, e.Err)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

// IsTransient reports whether a retry might succeed
func (e *ExecutionError) IsTransient() bool {
	return e.Kind == StorageBusy
}

// columnPattern is the shape of identifiers the parameterized paths accept.
// User-supplied values are always bound; identifiers cannot be, so they are
// validated against this pattern and the registry instead.
var columnPattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]*$`)

// Store is the execution engine over the backing station tables
type Store struct {
	db         *database.DB
	logger     zerolog.Logger
	metrics    *metrics.Collector
	registry   *schema.Registry
	timeout    time.Duration
	retryDelay time.Duration
}

// NewStore creates an execution engine. The registry may be attached later
// via SetRegistry because it is itself bootstrapped from this store.
func NewStore(db *database.DB, logger zerolog.Logger, metricsCollector *metrics.Collector, timeout, retryDelay time.Duration) *Store {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if retryDelay <= 0 {
		retryDelay = 100 * time.Millisecond
	}
	return &Store{
		db:         db,
		logger:     logger,
		metrics:    metricsCollector,
		timeout:    timeout,
		retryDelay: retryDelay,
	}
}

// SetRegistry attaches the table registry used to validate identifiers on the
// parameterized paths. Called once during startup, before serving.
func (s *Store) SetRegistry(registry *schema.Registry) {
	s.registry = registry
}

// Execute runs a validated statement and materializes its rows. The result is
// finite and bounded by the spec's limit; re-invoke to re-run.
func (s *Store) Execute(ctx context.Context, spec *query.QuerySpec) (*models.ResultSet, error) {
	start := time.Now()

	rows, err := s.queryWithRetry(ctx, "run_query", spec.Statement)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to read result columns: %w", err)
	}

	result := &models.ResultSet{
		Columns: columns,
		Rows:    make([][]interface{}, 0),
	}

	truncated := false
	for rows.Next() {
		// the bound clause already caps the statement; this guard keeps the
		// invariant even if the engine ignores it
		if len(result.Rows) >= spec.Limit {
			truncated = true
			break
		}
		values, err := rows.SliceScan()
		if err != nil {
			return nil, fmt.Errorf("failed to scan result row: %w", err)
		}
		result.Rows = append(result.Rows, normalizeRow(values))
	}
	if err := rows.Err(); err != nil {
		return nil, s.classify(err)
	}

	result.RowCount = len(result.Rows)
	result.Truncated = truncated
	result.ElapsedMs = time.Since(start).Milliseconds()

	s.metrics.QueryRowsReturned.Observe(float64(result.RowCount))
	s.logger.Debug().
		Int("row_count", result.RowCount).
		Int64("elapsed_ms", result.ElapsedMs).
		Msg("[STORE_EXECUTE] Statement executed")

	return result, nil
}

// SelectDailyValues fetches the raw series of one measurement for a station
// between two YYYYMMDD dates (inclusive), ordered by date. Station and dates
// travel as bound parameters; the column identifier is validated against the
// registry.
func (s *Store) SelectDailyValues(ctx context.Context, station int, code, fromDate, toDate string) ([]models.DailyValue, error) {
	table := schema.TableForStation(station)
	if s.registry != nil && !s.registry.HasTable(table) {
		return nil, &models.ValidationError{
			Field:   "station",
			Value:   fmt.Sprint(station),
			Message: fmt.Sprintf("unknown station %d", station),
		}
	}
	if !columnPattern.MatchString(code) || (s.registry != nil && !s.registry.HasColumn(table, code)) {
		return nil, &models.ValidationError{
			Field:   "code",
			Value:   code,
			Message: fmt.Sprintf("unknown measurement column %q for station %d", code, station),
		}
	}

	statement := s.db.Rebind(fmt.Sprintf(
		`SELECT YYYYMMDD, %s FROM %s WHERE YYYYMMDD BETWEEN ? AND ? ORDER BY YYYYMMDD`,
		strings.ToUpper(code), table,
	))

	rows, err := s.queryWithRetry(ctx, "select_daily_values", statement, fromDate, toDate)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var values []models.DailyValue
	for rows.Next() {
		var date string
		var raw sql.NullInt64
		if err := rows.Scan(&date, &raw); err != nil {
			return nil, fmt.Errorf("failed to scan daily value: %w", err)
		}
		values = append(values, models.DailyValue{
			Station: station,
			Date:    date,
			Raw:     raw.Int64,
			Valid:   raw.Valid,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, s.classify(err)
	}

	return values, nil
}

// ListStations discovers the station ids backing daily tables, ascending
func (s *Store) ListStations(ctx context.Context) ([]int, error) {
	var statement string
	switch s.db.Driver() {
	case database.DriverPostgres:
		statement = `SELECT table_name FROM information_schema.tables
			WHERE table_schema = 'public' AND table_name LIKE 'etmgeg_%'`
	default:
		statement = `SELECT name FROM sqlite_master
			WHERE type = 'table' AND name LIKE 'etmgeg_%'`
	}

	rows, err := s.queryWithRetry(ctx, "list_stations", statement)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stations []int
	for rows.Next() {
		var table string
		if err := rows.Scan(&table); err != nil {
			return nil, fmt.Errorf("failed to scan table name: %w", err)
		}
		if id, ok := schema.StationFromTable(table); ok {
			stations = append(stations, id)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, s.classify(err)
	}

	sort.Ints(stations)
	return stations, nil
}

// TableColumns returns the column names of a station table, used to bootstrap
// the registry at startup.
func (s *Store) TableColumns(ctx context.Context, table string) ([]string, error) {
	if !columnPattern.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}

	var statement string
	var args []interface{}
	switch s.db.Driver() {
	case database.DriverPostgres:
		statement = s.db.Rebind(`SELECT column_name FROM information_schema.columns
			WHERE table_schema = 'public' AND table_name = ?`)
		args = []interface{}{table}
	default:
		statement = s.db.Rebind(`SELECT name FROM pragma_table_info(?)`)
		args = []interface{}{table}
	}

	rows, err := s.queryWithRetry(ctx, "table_columns", statement, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var columns []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan column name: %w", err)
		}
		columns = append(columns, name)
	}
	if err := rows.Err(); err != nil {
		return nil, s.classify(err)
	}

	return columns, nil
}

// HealthCheck pings the backing store
func (s *Store) HealthCheck(ctx context.Context) error {
	return s.db.HealthCheck(ctx)
}

// sqlRows keeps the per-statement timeout context alive until the rows are
// consumed; cancelling earlier would abort the cursor mid-iteration.
type sqlRows struct {
	*sqlx.Rows
	cancel context.CancelFunc
}

func (r *sqlRows) Close() error {
	err := r.Rows.Close()
	r.cancel()
	return err
}

// queryWithRetry applies the execution timeout and retries exactly once on a
// busy/locked condition. All other failures surface classified.
func (s *Store) queryWithRetry(ctx context.Context, queryType, statement string, args ...interface{}) (*sqlRows, error) {
	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		execCtx, cancel := context.WithTimeout(ctx, s.timeout)
		raw, qerr := s.db.QueryxContext(execCtx, queryType, statement, args...)
		if qerr == nil {
			return &sqlRows{Rows: raw, cancel: cancel}, nil
		}
		cancel()

		execErr := s.classify(qerr)
		lastErr = execErr
		var ee *ExecutionError
		if errors.As(execErr, &ee) && ee.Kind == StorageBusy && attempt == 0 {
			s.metrics.StorageRetriesTotal.Inc()
			s.logger.Warn().
				Str("query_type", queryType).
				Msg("[STORE_RETRY] Storage busy, retrying once")
			select {
			case <-time.After(s.retryDelay):
			case <-ctx.Done():
				return nil, s.classify(ctx.Err())
			}
			continue
		}
		return nil, execErr
	}
	return nil, lastErr
}

// normalizeRow converts driver scan values into the typed forms downstream
// unit/sentinel logic expects: int64, float64, string or nil.
func normalizeRow(values []interface{}) []interface{} {
	for i, v := range values {
		if b, ok := v.([]byte); ok {
			values[i] = string(b)
		}
	}
	return values
}

// classify maps a driver error onto the execution taxonomy. Errors that fit
// no kind pass through wrapped, so callers can still inspect them.
func (s *Store) classify(err error) error {
	kind, ok := classifyError(err)
	if !ok {
		return fmt.Errorf("storage error: %w", err)
	}
	s.metrics.RecordStorageError(kind.String())
	return &ExecutionError{Kind: kind, Err: err}
}

// classifyError inspects driver-specific errors. Split out for testability.
func classifyError(err error) (ExecutionKind, bool) {
	if err == nil {
		return 0, false
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return Timeout, true
	}

	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code {
		case sqlite3.ErrBusy, sqlite3.ErrLocked:
			return StorageBusy, true
		case sqlite3.ErrError:
			// generic SQL error; the engine rejected the statement itself
			return SyntaxRejectedByEngine, true
		}
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch string(pqErr.Code) {
		case "55P03", "40001", "40P01": // lock not available, serialization, deadlock
			return StorageBusy, true
		case "57014": // statement cancelled by timeout
			return Timeout, true
		}
		if strings.HasPrefix(string(pqErr.Code), "42") { // syntax or access rule violation
			return SyntaxRejectedByEngine, true
		}
	}

	return 0, false
}
