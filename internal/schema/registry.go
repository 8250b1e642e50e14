// Package schema describes the queryable station tables and the unit scaling
// of the daily measurement columns. The measurement catalog is fixed (it
// mirrors the published daily-observation file format); the table registry is
// populated once at startup from the backing store and is read-only afterwards.
package schema

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Sentinel is the raw value encoding a missing measurement. It must be
// excluded from every statistic, never treated as a real reading.
const Sentinel int64 = -9999

// DefaultCode is the measurement used when a tool call does not name one:
// the daily mean temperature.
const DefaultCode = "TG"

// tablePrefix is the naming convention for per-station daily tables,
// e.g. etmgeg_320 for station 320.
const tablePrefix = "etmgeg_"

// Measurement describes one daily measurement column
type Measurement struct {
	Code        string  `json:"code"`
	Divisor     float64 `json:"divisor"`
	Unit        string  `json:"unit"`
	Description string  `json:"description"`
}

// measurements maps measurement codes to their unit scaling. Raw values are
// integers scaled by the divisor (e.g. TG is stored in 0.1 °C).
var measurements = map[string]Measurement{
	"DDVEC": {Code: "DDVEC", Divisor: 1, Unit: "°", Description: "vector mean wind direction"},
	"FHVEC": {Code: "FHVEC", Divisor: 10, Unit: "m/s", Description: "vector mean wind speed"},
	"FG":    {Code: "FG", Divisor: 10, Unit: "m/s", Description: "daily mean wind speed"},
	"FHX":   {Code: "FHX", Divisor: 10, Unit: "m/s", Description: "maximum hourly mean wind speed"},
	"FHN":   {Code: "FHN", Divisor: 10, Unit: "m/s", Description: "minimum hourly mean wind speed"},
	"FXX":   {Code: "FXX", Divisor: 10, Unit: "m/s", Description: "maximum wind gust"},
	"TG":    {Code: "TG", Divisor: 10, Unit: "°C", Description: "daily mean temperature"},
	"TN":    {Code: "TN", Divisor: 10, Unit: "°C", Description: "minimum temperature"},
	"TX":    {Code: "TX", Divisor: 10, Unit: "°C", Description: "maximum temperature"},
	"T10N":  {Code: "T10N", Divisor: 10, Unit: "°C", Description: "minimum temperature at 10 cm"},
	"SQ":    {Code: "SQ", Divisor: 10, Unit: "h", Description: "sunshine duration"},
	"SP":    {Code: "SP", Divisor: 1, Unit: "%", Description: "percentage of maximum possible sunshine"},
	"Q":     {Code: "Q", Divisor: 1, Unit: "J/cm²", Description: "global radiation"},
	"DR":    {Code: "DR", Divisor: 10, Unit: "h", Description: "precipitation duration"},
	"RH":    {Code: "RH", Divisor: 10, Unit: "mm", Description: "daily precipitation amount"},
	"RHX":   {Code: "RHX", Divisor: 10, Unit: "mm/h", Description: "maximum hourly precipitation"},
	"PG":    {Code: "PG", Divisor: 10, Unit: "hPa", Description: "daily mean sea level pressure"},
	"PX":    {Code: "PX", Divisor: 10, Unit: "hPa", Description: "maximum sea level pressure"},
	"PN":    {Code: "PN", Divisor: 10, Unit: "hPa", Description: "minimum sea level pressure"},
	"VV":    {Code: "VV", Divisor: 1, Unit: "code", Description: "mean visibility class"},
	"NG":    {Code: "NG", Divisor: 1, Unit: "okta", Description: "mean cloud cover"},
	"UG":    {Code: "UG", Divisor: 1, Unit: "%", Description: "daily mean relative humidity"},
	"UX":    {Code: "UX", Divisor: 1, Unit: "%", Description: "maximum relative humidity"},
	"UN":    {Code: "UN", Divisor: 1, Unit: "%", Description: "minimum relative humidity"},
	"EV24":  {Code: "EV24", Divisor: 10, Unit: "mm", Description: "reference crop evapotranspiration"},
}

// Lookup returns the measurement description for a code (case-insensitive)
func Lookup(code string) (Measurement, bool) {
	m, ok := measurements[strings.ToUpper(strings.TrimSpace(code))]
	return m, ok
}

// Codes returns all known measurement codes in ascending order
func Codes() []string {
	codes := make([]string, 0, len(measurements))
	for code := range measurements {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

// TableForStation returns the daily table name for a station id
func TableForStation(station int) string {
	return fmt.Sprintf("%s%d", tablePrefix, station)
}

// StationFromTable extracts the station id from a daily table name
func StationFromTable(table string) (int, bool) {
	if !strings.HasPrefix(table, tablePrefix) {
		return 0, false
	}
	id, err := strconv.Atoi(strings.TrimPrefix(table, tablePrefix))
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// Registry holds the set of queryable tables and their columns. It is built
// once during startup and never mutated afterwards, so reads need no locking.
type Registry struct {
	tables map[string]map[string]struct{}
}

// NewRegistry creates an empty table registry
func NewRegistry() *Registry {
	return &Registry{
		tables: make(map[string]map[string]struct{}),
	}
}

// RegisterTable records a queryable table and its columns
func (r *Registry) RegisterTable(name string, columns []string) {
	cols := make(map[string]struct{}, len(columns))
	for _, c := range columns {
		cols[strings.ToUpper(c)] = struct{}{}
	}
	r.tables[name] = cols
}

// HasTable reports whether a table is registered
func (r *Registry) HasTable(name string) bool {
	_, ok := r.tables[name]
	return ok
}

// HasColumn reports whether a registered table carries a column
// (case-insensitive)
func (r *Registry) HasColumn(table, column string) bool {
	cols, ok := r.tables[table]
	if !ok {
		return false
	}
	_, ok = cols[strings.ToUpper(column)]
	return ok
}

// Tables returns the registered table names in ascending order
func (r *Registry) Tables() []string {
	names := make([]string, 0, len(r.tables))
	for name := range r.tables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Stations returns the station ids of all registered daily tables, ascending
func (r *Registry) Stations() []int {
	ids := make([]int, 0, len(r.tables))
	for name := range r.tables {
		if id, ok := StationFromTable(name); ok {
			ids = append(ids, id)
		}
	}
	sort.Ints(ids)
	return ids
}
