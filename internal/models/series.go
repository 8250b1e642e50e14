package models

import (
	"strconv"
)

// DailyValue is a single raw measurement on one calendar day. Raw carries the
// stored integer (scaled by the measurement's divisor) or the missing-value
// sentinel; it is never unit-normalized here.
type DailyValue struct {
	Station int    `json:"station" db:"station"`
	Date    string `json:"date" db:"date"` // YYYYMMDD literal
	Raw     int64  `json:"raw" db:"raw"`
	Valid   bool   `json:"valid" db:"valid"` // false when the stored value was NULL
}

// Year returns the calendar year of the date literal (its first 4 characters)
func (v DailyValue) Year() int {
	if len(v.Date) < 4 {
		return 0
	}
	year, err := strconv.Atoi(v.Date[:4])
	if err != nil {
		return 0
	}
	return year
}

// Missing reports whether the value encodes a missing measurement
func (v DailyValue) Missing(sentinel int64) bool {
	return !v.Valid || v.Raw == sentinel
}

// AggregateRow is the yearly aggregate of one measurement at one station.
// A year with zero valid samples keeps nil statistics: absence is represented
// as absence, never as 0 or as the sentinel.
type AggregateRow struct {
	Year        int      `json:"year"`
	MeanC       *float64 `json:"mean_c,omitempty"`
	MinC        *float64 `json:"min_c,omitempty"`
	MaxC        *float64 `json:"max_c,omitempty"`
	SampleCount int      `json:"sample_count"`
}

// TrendResult is the least-squares fit of yearly means against years
type TrendResult struct {
	Station       int            `json:"station"`
	Code          string         `json:"code"`
	StartYear     int            `json:"start_year"`
	EndYear       int            `json:"end_year"`
	SlopeCPerYear float64        `json:"slope_c_per_year"`
	Intercept     float64        `json:"intercept"`
	RSquared      float64        `json:"r_squared"`
	YearsUsed     int            `json:"years_used"`
	Years         []AggregateRow `json:"years"`
}

// Summary holds normalized statistics over a date range for one measurement
type Summary struct {
	Station     int      `json:"station"`
	Code        string   `json:"code"`
	Unit        string   `json:"unit"`
	StartDate   string   `json:"start_date"`
	EndDate     string   `json:"end_date"`
	Mean        *float64 `json:"mean,omitempty"`
	Min         *float64 `json:"min,omitempty"`
	Max         *float64 `json:"max,omitempty"`
	SampleCount int      `json:"sample_count"`
}

// ResultSet is the materialized outcome of one executed statement. Values are
// column-typed (int64, float64, string or nil), never opaque strings.
type ResultSet struct {
	Columns   []string        `json:"columns"`
	Rows      [][]interface{} `json:"rows"`
	RowCount  int             `json:"row_count"`
	Truncated bool            `json:"truncated"`
	ElapsedMs int64           `json:"elapsed_ms"`
}

// ValidationError represents an input validation error
type ValidationError struct {
	Field   string
	Value   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// IsTransient returns false as validation errors are permanent
func (e *ValidationError) IsTransient() bool {
	return false
}
