// Package services wires the gateway, cache, execution engine and trend
// module into the tool-shaped operations the transport exposes.
package services

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"weather-query-service/internal/cache"
	"weather-query-service/internal/models"
	"weather-query-service/internal/query"
	"weather-query-service/internal/schema"
	"weather-query-service/internal/trend"
	"weather-query-service/pkg/metrics"
)

// Cache fingerprint namespaces. Kept in clear text inside the fingerprint so
// administrative invalidation can target one class of results.
const (
	NamespaceQuery    = "query"
	NamespaceStations = "stations"
	NamespaceSummary  = "summary"
	NamespaceTrend    = "trend"
)

// Storage is the narrow execution-engine contract the service consumes
type Storage interface {
	Execute(ctx context.Context, spec *query.QuerySpec) (*models.ResultSet, error)
	SelectDailyValues(ctx context.Context, station int, code, fromDate, toDate string) ([]models.DailyValue, error)
	ListStations(ctx context.Context) ([]int, error)
}

// Cache is the memoization contract the service consumes
type Cache interface {
	GetOrCompute(ctx context.Context, fingerprint string, ttl time.Duration, computeFn func(context.Context) (interface{}, error)) (interface{}, error)
	Invalidate(fingerprint string) bool
	InvalidatePrefix(prefix string) int
}

// QueryService implements the tool operations: run_query, list_stations,
// summarize and trend. Each call yields one complete result or one error.
type QueryService struct {
	gateway  *query.Gateway
	store    Storage
	cache    Cache
	registry *schema.Registry
	logger   zerolog.Logger
	metrics  *metrics.Collector
	ttl      time.Duration
}

// NewQueryService creates the orchestrating service
func NewQueryService(
	gateway *query.Gateway,
	store Storage,
	cacheService Cache,
	registry *schema.Registry,
	logger zerolog.Logger,
	metricsCollector *metrics.Collector,
	ttl time.Duration,
) *QueryService {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &QueryService{
		gateway:  gateway,
		store:    store,
		cache:    cacheService,
		registry: registry,
		logger:   logger,
		metrics:  metricsCollector,
		ttl:      ttl,
	}
}

// RunQuery validates a raw read-only statement, then serves it from cache or
// executes it. Rejected statements never reach the execution engine.
func (s *QueryService) RunQuery(ctx context.Context, sql string, limit, offset int) (*models.ResultSet, error) {
	spec, err := s.gateway.Validate(sql, limit, offset)
	if err != nil {
		return nil, err
	}

	fingerprint := cache.Fingerprint(NamespaceQuery, spec.Statement)
	payload, err := s.cache.GetOrCompute(ctx, fingerprint, s.ttl, func(computeCtx context.Context) (interface{}, error) {
		return s.store.Execute(computeCtx, spec)
	})
	if err != nil {
		return nil, err
	}
	return payload.(*models.ResultSet), nil
}

// ListStations returns the backing station ids in ascending order
func (s *QueryService) ListStations(ctx context.Context) ([]int, error) {
	fingerprint := cache.Fingerprint(NamespaceStations, "all")
	payload, err := s.cache.GetOrCompute(ctx, fingerprint, s.ttl, func(computeCtx context.Context) (interface{}, error) {
		return s.store.ListStations(computeCtx)
	})
	if err != nil {
		return nil, err
	}
	return payload.([]int), nil
}

// Summarize computes normalized mean/min/max of one measurement for a station
// over an inclusive date range. Sentinel-coded values are excluded from the
// statistics and the sample count; a range without valid samples yields
// absent statistics, never zeros.
func (s *QueryService) Summarize(ctx context.Context, startDate, endDate string, station int, code string) (*models.Summary, error) {
	if err := validateDateRange(startDate, endDate); err != nil {
		return nil, err
	}
	measurement, err := s.resolveMeasurement(code)
	if err != nil {
		return nil, err
	}

	fingerprint := cache.Fingerprint(NamespaceSummary,
		fmt.Sprint(station), measurement.Code, startDate, endDate)
	payload, err := s.cache.GetOrCompute(ctx, fingerprint, s.ttl, func(computeCtx context.Context) (interface{}, error) {
		values, err := s.store.SelectDailyValues(computeCtx, station, measurement.Code, startDate, endDate)
		if err != nil {
			return nil, err
		}
		return summarizeValues(values, measurement, station, startDate, endDate), nil
	})
	if err != nil {
		return nil, err
	}
	return payload.(*models.Summary), nil
}

// Trend aggregates a measurement by year and fits a linear trend over
// [startYear, endYear]. Years without valid samples are reported but excluded
// from the fit; fewer than two qualifying years is an error, not a zero
// slope.
func (s *QueryService) Trend(ctx context.Context, startYear, endYear, station int, code string) (*models.TrendResult, error) {
	if startYear < 1700 || endYear > 2200 || startYear > endYear {
		return nil, &models.ValidationError{
			Field:   "start_year",
			Value:   fmt.Sprintf("%d..%d", startYear, endYear),
			Message: fmt.Sprintf("invalid year range %d..%d", startYear, endYear),
		}
	}
	measurement, err := s.resolveMeasurement(code)
	if err != nil {
		return nil, err
	}

	fingerprint := cache.Fingerprint(NamespaceTrend,
		fmt.Sprint(station), measurement.Code, fmt.Sprint(startYear), fmt.Sprint(endYear))
	payload, err := s.cache.GetOrCompute(ctx, fingerprint, s.ttl, func(computeCtx context.Context) (interface{}, error) {
		timer := s.metrics.NewTimer(s.metrics.TrendFitDuration)
		defer timer.ObserveDuration()

		fromDate := fmt.Sprintf("%04d0101", startYear)
		toDate := fmt.Sprintf("%04d1231", endYear)
		values, err := s.store.SelectDailyValues(computeCtx, station, measurement.Code, fromDate, toDate)
		if err != nil {
			return nil, err
		}

		rows := trend.AggregateYearly(values, measurement.Divisor, schema.Sentinel)
		rows = trend.FillYearGaps(rows, startYear, endYear)

		result, err := trend.FitTrend(rows, startYear, endYear)
		if err != nil {
			return nil, err
		}
		result.Station = station
		result.Code = measurement.Code
		result.Years = rows

		s.logger.Info().
			Int("station", station).
			Str("code", measurement.Code).
			Int("years_used", result.YearsUsed).
			Float64("slope_per_year", result.SlopeCPerYear).
			Msg("[TREND_FIT] Trend computed")
		return result, nil
	})
	if err != nil {
		return nil, err
	}
	return payload.(*models.TrendResult), nil
}

// InvalidateCache removes cached entries by fingerprint prefix. Exposed for
// administrative use after a data reload.
func (s *QueryService) InvalidateCache(prefix string) int {
	return s.cache.InvalidatePrefix(prefix)
}

// resolveMeasurement maps a tool-supplied code (or empty for the default)
// onto the measurement catalog.
func (s *QueryService) resolveMeasurement(code string) (schema.Measurement, error) {
	if code == "" {
		code = schema.DefaultCode
	}
	measurement, ok := schema.Lookup(code)
	if !ok {
		return schema.Measurement{}, &models.ValidationError{
			Field:   "code",
			Value:   code,
			Message: fmt.Sprintf("unknown measurement code %q", code),
		}
	}
	return measurement, nil
}

// summarizeValues folds raw daily values into normalized statistics,
// excluding sentinel-coded rows.
func summarizeValues(values []models.DailyValue, measurement schema.Measurement, station int, startDate, endDate string) *models.Summary {
	summary := &models.Summary{
		Station:   station,
		Code:      measurement.Code,
		Unit:      measurement.Unit,
		StartDate: startDate,
		EndDate:   endDate,
	}

	divisor := measurement.Divisor
	if divisor == 0 {
		divisor = 1
	}

	var sum, minV, maxV float64
	for _, v := range values {
		if v.Missing(schema.Sentinel) {
			continue
		}
		normalized := float64(v.Raw) / divisor
		if summary.SampleCount == 0 || normalized < minV {
			minV = normalized
		}
		if summary.SampleCount == 0 || normalized > maxV {
			maxV = normalized
		}
		sum += normalized
		summary.SampleCount++
	}

	if summary.SampleCount > 0 {
		mean := sum / float64(summary.SampleCount)
		summary.Mean = &mean
		summary.Min = &minV
		summary.Max = &maxV
	}
	return summary
}

// validateDateRange checks the 8-digit date literals and their ordering
func validateDateRange(startDate, endDate string) error {
	if !isDateLiteral(startDate) {
		return &models.ValidationError{
			Field:   "start_date",
			Value:   startDate,
			Message: fmt.Sprintf("start_date must be an 8-digit YYYYMMDD literal, got %q", startDate),
		}
	}
	if !isDateLiteral(endDate) {
		return &models.ValidationError{
			Field:   "end_date",
			Value:   endDate,
			Message: fmt.Sprintf("end_date must be an 8-digit YYYYMMDD literal, got %q", endDate),
		}
	}
	if endDate < startDate {
		return &models.ValidationError{
			Field:   "end_date",
			Value:   endDate,
			Message: "end_date must be greater than or equal to start_date",
		}
	}
	return nil
}

func isDateLiteral(s string) bool {
	if len(s) != 8 {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
