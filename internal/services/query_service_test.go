package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"weather-query-service/internal/cache"
	"weather-query-service/internal/models"
	"weather-query-service/internal/query"
	"weather-query-service/internal/schema"
	"weather-query-service/internal/trend"
	"weather-query-service/pkg/metrics"
)

// fakeStorage records calls so tests can assert what reached the engine
type fakeStorage struct {
	executeCalls int
	selectCalls  int
	listCalls    int

	resultSet *models.ResultSet
	values    []models.DailyValue
	stations  []int
	err       error
}

func (f *fakeStorage) Execute(ctx context.Context, spec *query.QuerySpec) (*models.ResultSet, error) {
	f.executeCalls++
	if f.err != nil {
		return nil, f.err
	}
	return f.resultSet, nil
}

func (f *fakeStorage) SelectDailyValues(ctx context.Context, station int, code, fromDate, toDate string) ([]models.DailyValue, error) {
	f.selectCalls++
	if f.err != nil {
		return nil, f.err
	}
	return f.values, nil
}

func (f *fakeStorage) ListStations(ctx context.Context) ([]int, error) {
	f.listCalls++
	if f.err != nil {
		return nil, f.err
	}
	return f.stations, nil
}

func newTestService(t *testing.T, store *fakeStorage) *QueryService {
	t.Helper()
	collector := metrics.NewCollector("test")
	cacheService, err := cache.NewService(64, zerolog.Nop(), collector)
	if err != nil {
		t.Fatalf("cache.NewService failed: %v", err)
	}
	gateway := query.NewGateway(zerolog.Nop(), collector, query.DefaultLimit, query.MaxLimit)
	return NewQueryService(gateway, store, cacheService, schema.NewRegistry(), zerolog.Nop(), collector, time.Minute)
}

func TestQueryService_RunQuery_RejectionNeverReachesStore(t *testing.T) {
	tests := []struct {
		name string
		sql  string
	}{
		{name: "write statement", sql: "DROP TABLE etmgeg_320"},
		{name: "piggybacked statement", sql: "SELECT 1; DELETE FROM etmgeg_320"},
		{name: "forbidden keyword", sql: "SELECT 1 WHERE PRAGMA"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &fakeStorage{}
			svc := newTestService(t, store)

			_, err := svc.RunQuery(context.Background(), tt.sql, 0, 0)
			var rejection *query.RejectionError
			if !errors.As(err, &rejection) {
				t.Fatalf("err = %v, want *query.RejectionError", err)
			}
			if store.executeCalls != 0 {
				t.Errorf("Execute was called %d times for a rejected statement", store.executeCalls)
			}
		})
	}
}

func TestQueryService_RunQuery_SecondCallIsServedFromCache(t *testing.T) {
	store := &fakeStorage{
		resultSet: &models.ResultSet{
			Columns:  []string{"TG"},
			Rows:     [][]interface{}{{int64(101)}},
			RowCount: 1,
		},
	}
	svc := newTestService(t, store)

	for i := 0; i < 2; i++ {
		result, err := svc.RunQuery(context.Background(), "SELECT TG FROM etmgeg_320", 10, 0)
		if err != nil {
			t.Fatalf("RunQuery %d failed: %v", i, err)
		}
		if result.RowCount != 1 {
			t.Errorf("RowCount = %d, want 1", result.RowCount)
		}
	}

	if store.executeCalls != 1 {
		t.Errorf("Execute ran %d times, want 1 (second call cached)", store.executeCalls)
	}
}

func TestQueryService_RunQuery_StorageErrorsAreNotCached(t *testing.T) {
	store := &fakeStorage{err: errors.New("database is locked")}
	svc := newTestService(t, store)

	if _, err := svc.RunQuery(context.Background(), "SELECT 1", 0, 0); err == nil {
		t.Fatal("expected storage error")
	}

	store.err = nil
	store.resultSet = &models.ResultSet{RowCount: 0}
	if _, err := svc.RunQuery(context.Background(), "SELECT 1", 0, 0); err != nil {
		t.Fatalf("retry after storage recovery failed: %v", err)
	}
	if store.executeCalls != 2 {
		t.Errorf("Execute ran %d times, want 2 (failure must not be cached)", store.executeCalls)
	}
}

func TestQueryService_ListStations(t *testing.T) {
	store := &fakeStorage{stations: []int{240, 320}}
	svc := newTestService(t, store)

	for i := 0; i < 2; i++ {
		stations, err := svc.ListStations(context.Background())
		if err != nil {
			t.Fatalf("ListStations failed: %v", err)
		}
		if len(stations) != 2 || stations[0] != 240 || stations[1] != 320 {
			t.Errorf("stations = %v, want [240 320]", stations)
		}
	}

	if store.listCalls != 1 {
		t.Errorf("store was queried %d times, want 1", store.listCalls)
	}
}

func TestQueryService_Summarize(t *testing.T) {
	store := &fakeStorage{
		values: []models.DailyValue{
			{Station: 320, Date: "20240101", Raw: 50, Valid: true},
			{Station: 320, Date: "20240102", Raw: schema.Sentinel, Valid: true},
			{Station: 320, Date: "20240103", Raw: 70, Valid: true},
		},
	}
	svc := newTestService(t, store)

	summary, err := svc.Summarize(context.Background(), "20240101", "20240103", 320, "TG")
	if err != nil {
		t.Fatalf("Summarize failed: %v", err)
	}

	if summary.SampleCount != 2 {
		t.Errorf("SampleCount = %d, want 2 (sentinel excluded)", summary.SampleCount)
	}
	if summary.Mean == nil || math.Abs(*summary.Mean-6.0) > 1e-9 {
		t.Errorf("Mean = %v, want 6.0", summary.Mean)
	}
	if summary.Min == nil || math.Abs(*summary.Min-5.0) > 1e-9 {
		t.Errorf("Min = %v, want 5.0", summary.Min)
	}
	if summary.Max == nil || math.Abs(*summary.Max-7.0) > 1e-9 {
		t.Errorf("Max = %v, want 7.0", summary.Max)
	}
	if summary.Unit != "°C" {
		t.Errorf("Unit = %q, want °C", summary.Unit)
	}
}

func TestQueryService_Summarize_EmptyRangeKeepsNilStatistics(t *testing.T) {
	store := &fakeStorage{
		values: []models.DailyValue{
			{Station: 320, Date: "20240101", Raw: schema.Sentinel, Valid: true},
			{Station: 320, Date: "20240102", Valid: false},
		},
	}
	svc := newTestService(t, store)

	summary, err := svc.Summarize(context.Background(), "20240101", "20240102", 320, "")
	if err != nil {
		t.Fatalf("Summarize failed: %v", err)
	}
	if summary.SampleCount != 0 {
		t.Errorf("SampleCount = %d, want 0", summary.SampleCount)
	}
	if summary.Mean != nil || summary.Min != nil || summary.Max != nil {
		t.Errorf("statistics should be absent, got %+v", summary)
	}
	if summary.Code != schema.DefaultCode {
		t.Errorf("Code = %q, want default %q", summary.Code, schema.DefaultCode)
	}
}

func TestQueryService_Summarize_Validation(t *testing.T) {
	tests := []struct {
		name      string
		startDate string
		endDate   string
		code      string
		wantField string
	}{
		{name: "malformed start date", startDate: "2024-01-01", endDate: "20240131", wantField: "start_date"},
		{name: "malformed end date", startDate: "20240101", endDate: "31st", wantField: "end_date"},
		{name: "inverted range", startDate: "20240131", endDate: "20240101", wantField: "end_date"},
		{name: "unknown code", startDate: "20240101", endDate: "20240131", code: "XX", wantField: "code"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &fakeStorage{}
			svc := newTestService(t, store)

			_, err := svc.Summarize(context.Background(), tt.startDate, tt.endDate, 320, tt.code)
			var validation *models.ValidationError
			if !errors.As(err, &validation) {
				t.Fatalf("err = %v, want *models.ValidationError", err)
			}
			if validation.Field != tt.wantField {
				t.Errorf("Field = %q, want %q", validation.Field, tt.wantField)
			}
			if store.selectCalls != 0 {
				t.Errorf("store was queried %d times for invalid input", store.selectCalls)
			}
		})
	}
}

func TestQueryService_Summarize_SecondCallIsServedFromCache(t *testing.T) {
	store := &fakeStorage{
		values: []models.DailyValue{{Station: 320, Date: "20240101", Raw: 100, Valid: true}},
	}
	svc := newTestService(t, store)

	for i := 0; i < 3; i++ {
		if _, err := svc.Summarize(context.Background(), "20240101", "20240131", 320, "TG"); err != nil {
			t.Fatalf("Summarize %d failed: %v", i, err)
		}
	}
	if store.selectCalls != 1 {
		t.Errorf("store was queried %d times, want 1", store.selectCalls)
	}
}

func TestQueryService_Trend(t *testing.T) {
	// Ten years of synthetic daily means rising exactly 0.1 per year
	var values []models.DailyValue
	for year := 2010; year <= 2019; year++ {
		values = append(values, models.DailyValue{
			Station: 320,
			Date:    fmt.Sprintf("%d0601", year),
			Raw:     int64(100 + (year - 2010)), // tenths, so 0.1 per year
			Valid:   true,
		})
	}
	store := &fakeStorage{values: values}
	svc := newTestService(t, store)

	result, err := svc.Trend(context.Background(), 2010, 2019, 320, "TG")
	if err != nil {
		t.Fatalf("Trend failed: %v", err)
	}

	if result.Station != 320 || result.Code != "TG" {
		t.Errorf("result identity = station %d code %q, want 320 TG", result.Station, result.Code)
	}
	if result.YearsUsed != 10 {
		t.Errorf("YearsUsed = %d, want 10", result.YearsUsed)
	}
	if math.Abs(result.SlopeCPerYear-0.1) > 1e-9 {
		t.Errorf("slope = %v, want 0.1", result.SlopeCPerYear)
	}
	if len(result.Years) != 10 {
		t.Errorf("Years carries %d rows, want 10", len(result.Years))
	}
}

func TestQueryService_Trend_InsufficientData(t *testing.T) {
	store := &fakeStorage{
		values: []models.DailyValue{{Station: 320, Date: "20150601", Raw: 100, Valid: true}},
	}
	svc := newTestService(t, store)

	_, err := svc.Trend(context.Background(), 2010, 2019, 320, "TG")
	var insufficient *trend.InsufficientDataError
	if !errors.As(err, &insufficient) {
		t.Fatalf("err = %v, want *trend.InsufficientDataError", err)
	}
}

func TestQueryService_Trend_YearRangeValidation(t *testing.T) {
	tests := []struct {
		name      string
		startYear int
		endYear   int
	}{
		{name: "start before floor", startYear: 1500, endYear: 2000},
		{name: "end after ceiling", startYear: 2000, endYear: 2500},
		{name: "inverted range", startYear: 2020, endYear: 2010},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &fakeStorage{}
			svc := newTestService(t, store)

			_, err := svc.Trend(context.Background(), tt.startYear, tt.endYear, 320, "TG")
			var validation *models.ValidationError
			if !errors.As(err, &validation) {
				t.Fatalf("err = %v, want *models.ValidationError", err)
			}
			if store.selectCalls != 0 {
				t.Errorf("store was queried for an invalid year range")
			}
		})
	}
}

func TestQueryService_InvalidateCacheForcesRecompute(t *testing.T) {
	store := &fakeStorage{stations: []int{320}}
	svc := newTestService(t, store)

	if _, err := svc.ListStations(context.Background()); err != nil {
		t.Fatalf("ListStations failed: %v", err)
	}
	if removed := svc.InvalidateCache(NamespaceStations + ":"); removed != 1 {
		t.Errorf("InvalidateCache removed %d entries, want 1", removed)
	}
	if _, err := svc.ListStations(context.Background()); err != nil {
		t.Fatalf("ListStations after invalidation failed: %v", err)
	}
	if store.listCalls != 2 {
		t.Errorf("store was queried %d times, want 2 after invalidation", store.listCalls)
	}
}
