package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"

	"weather-query-service/internal/models"
	"weather-query-service/internal/schema"
)

// Service is the set of operations the weather tools expose
type Service interface {
	RunQuery(ctx context.Context, sql string, limit, offset int) (*models.ResultSet, error)
	ListStations(ctx context.Context) ([]int, error)
	Summarize(ctx context.Context, startDate, endDate string, station int, code string) (*models.Summary, error)
	Trend(ctx context.Context, startYear, endYear, station int, code string) (*models.TrendResult, error)
}

var validate = validator.New()

type runQueryArgs struct {
	SQL    string `json:"sql" validate:"required"`
	Limit  int    `json:"limit" validate:"gte=0,lte=10000"`
	Offset int    `json:"offset" validate:"gte=0"`
}

type summarizeArgs struct {
	StartDate string `json:"start_date" validate:"required,len=8,numeric"`
	EndDate   string `json:"end_date" validate:"required,len=8,numeric"`
	Station   int    `json:"station" validate:"required,gt=0"`
	Code      string `json:"code" validate:"omitempty,alphanum"`
}

type trendArgs struct {
	StartYear int    `json:"start_year" validate:"required,gte=1700,lte=2200"`
	EndYear   int    `json:"end_year" validate:"required,gte=1700,lte=2200"`
	Station   int    `json:"station" validate:"required,gt=0"`
	Code      string `json:"code" validate:"omitempty,alphanum"`
}

// decodeArgs unmarshals and validates a tool's argument struct
func decodeArgs(raw json.RawMessage, dest interface{}) error {
	if len(raw) == 0 {
		raw = json.RawMessage("{}")
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return &models.ValidationError{
			Field:   "arguments",
			Message: fmt.Sprintf("invalid tool arguments: %v", err),
		}
	}
	if err := validate.Struct(dest); err != nil {
		return &models.ValidationError{
			Field:   "arguments",
			Message: fmt.Sprintf("invalid tool arguments: %v", err),
		}
	}
	return nil
}

// RegisterWeatherTools wires the four station-data tools into a registry
func RegisterWeatherTools(registry *Registry, svc Service) {
	registry.Register(Tool{
		Name: "run_query",
		Description: "Run a read-only SELECT against the daily station tables (etmgeg_<station>). " +
			"Values are stored as scaled integers (e.g. TG in 0.1 °C); -9999 means missing. " +
			"Results are bounded by limit (default 200, max 10000) and offset.",
		Handler: func(ctx context.Context, args json.RawMessage) (*Result, error) {
			var a runQueryArgs
			if err := decodeArgs(args, &a); err != nil {
				return nil, err
			}
			result, err := svc.RunQuery(ctx, a.SQL, a.Limit, a.Offset)
			if err != nil {
				return nil, err
			}
			return &Result{Content: []ContentItem{JSONContent(result)}}, nil
		},
	})

	registry.Register(Tool{
		Name:        "list_stations",
		Description: "List the available weather station ids in ascending order.",
		Handler: func(ctx context.Context, args json.RawMessage) (*Result, error) {
			stations, err := svc.ListStations(ctx)
			if err != nil {
				return nil, err
			}
			return &Result{Content: []ContentItem{
				JSONContent(map[string]interface{}{"stations": stations}),
			}}, nil
		},
	})

	registry.Register(Tool{
		Name: "summarize",
		Description: "Compute mean, min and max of one measurement (default TG, daily mean temperature) " +
			"for a station between start_date and end_date (YYYYMMDD, inclusive), in normalized units. " +
			"Missing measurements are excluded, never counted as zero.",
		Handler: func(ctx context.Context, args json.RawMessage) (*Result, error) {
			var a summarizeArgs
			if err := decodeArgs(args, &a); err != nil {
				return nil, err
			}
			summary, err := svc.Summarize(ctx, a.StartDate, a.EndDate, a.Station, a.Code)
			if err != nil {
				return nil, err
			}
			content := []ContentItem{JSONContent(summary)}
			if summary.Mean != nil {
				content = append([]ContentItem{TextContent(
					"Station %d %s %s–%s: mean %.2f %s over %d samples",
					summary.Station, summary.Code, summary.StartDate, summary.EndDate,
					*summary.Mean, summary.Unit, summary.SampleCount,
				)}, content...)
			} else {
				content = append([]ContentItem{TextContent(
					"Station %d %s %s–%s: no valid samples in range",
					summary.Station, summary.Code, summary.StartDate, summary.EndDate,
				)}, content...)
			}
			return &Result{Content: content}, nil
		},
	})

	registry.Register(Tool{
		Name: "trend",
		Description: "Fit a linear trend of yearly means of one measurement (default TG) for a station " +
			"between start_year and end_year. Years without valid samples are reported but excluded " +
			"from the fit. Slope is in measurement units per year.",
		Handler: func(ctx context.Context, args json.RawMessage) (*Result, error) {
			var a trendArgs
			if err := decodeArgs(args, &a); err != nil {
				return nil, err
			}
			result, err := svc.Trend(ctx, a.StartYear, a.EndYear, a.Station, a.Code)
			if err != nil {
				return nil, err
			}
			return &Result{Content: []ContentItem{
				TextContent("Station %d %s %d–%d: slope %+.4f per year (r²=%.3f, %d years used)",
					result.Station, result.Code, result.StartYear, result.EndYear,
					result.SlopeCPerYear, result.RSquared, result.YearsUsed),
				JSONContent(result),
			}}, nil
		},
	})

	registry.Register(Tool{
		Name:        "list_measurements",
		Description: "List the known measurement codes with their unit scaling.",
		Handler: func(ctx context.Context, args json.RawMessage) (*Result, error) {
			codes := schema.Codes()
			catalog := make([]schema.Measurement, 0, len(codes))
			for _, code := range codes {
				if m, ok := schema.Lookup(code); ok {
					catalog = append(catalog, m)
				}
			}
			return &Result{Content: []ContentItem{JSONContent(catalog)}}, nil
		},
	})
}
