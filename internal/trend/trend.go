// Package trend computes per-station yearly aggregates and an ordinary
// least-squares trend over them. All statistics operate on unit-normalized
// values; sentinel-coded (missing) measurements are excluded everywhere and
// never treated as zero.
package trend

import (
	"fmt"
	"sort"

	"weather-query-service/internal/models"
)

// InsufficientDataError is returned when fewer than two qualifying years are
// available for a trend fit.
type InsufficientDataError struct {
	StartYear int
	EndYear   int
	YearsUsed int
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("trend fit needs at least 2 years with valid samples between %d and %d, found %d",
		e.StartYear, e.EndYear, e.YearsUsed)
}

// IsTransient returns false: more data, not another attempt, fixes this
func (e *InsufficientDataError) IsTransient() bool {
	return false
}

// AggregateYearly groups raw daily values by calendar year and computes the
// normalized mean, min and max per year. Values equal to the sentinel (or
// stored as NULL) are excluded from the statistics and from SampleCount. A
// year whose rows are all missing is still reported, with SampleCount 0 and
// absent statistics, so gaps stay visible instead of being interpolated away.
func AggregateYearly(values []models.DailyValue, divisor float64, sentinel int64) []models.AggregateRow {
	if divisor == 0 {
		divisor = 1
	}

	type acc struct {
		sum   float64
		min   float64
		max   float64
		count int
	}
	byYear := make(map[int]*acc)
	var years []int

	for _, v := range values {
		year := v.Year()
		if year == 0 {
			continue
		}
		a, ok := byYear[year]
		if !ok {
			a = &acc{}
			byYear[year] = a
			years = append(years, year)
		}
		if v.Missing(sentinel) {
			continue
		}
		normalized := float64(v.Raw) / divisor
		if a.count == 0 || normalized < a.min {
			a.min = normalized
		}
		if a.count == 0 || normalized > a.max {
			a.max = normalized
		}
		a.sum += normalized
		a.count++
	}

	sort.Ints(years)

	rows := make([]models.AggregateRow, 0, len(years))
	for _, year := range years {
		a := byYear[year]
		row := models.AggregateRow{Year: year, SampleCount: a.count}
		if a.count > 0 {
			mean := a.sum / float64(a.count)
			minV, maxV := a.min, a.max
			row.MeanC = &mean
			row.MinC = &minV
			row.MaxC = &maxV
		}
		rows = append(rows, row)
	}
	return rows
}

// FillYearGaps returns the rows restricted to [startYear, endYear], inserting
// zero-sample rows for years absent from the input so the caller sees every
// year of the requested window.
func FillYearGaps(rows []models.AggregateRow, startYear, endYear int) []models.AggregateRow {
	byYear := make(map[int]models.AggregateRow, len(rows))
	for _, row := range rows {
		byYear[row.Year] = row
	}

	filled := make([]models.AggregateRow, 0, endYear-startYear+1)
	for year := startYear; year <= endYear; year++ {
		if row, ok := byYear[year]; ok {
			filled = append(filled, row)
		} else {
			filled = append(filled, models.AggregateRow{Year: year, SampleCount: 0})
		}
	}
	return filled
}

// FitTrend fits mean against year by ordinary least squares over the years in
// [startYear, endYear] with at least one valid sample. Accumulation is
// sequential in ascending year order, so identical inputs produce identical
// output. The slope unit is the measurement unit per year.
func FitTrend(rows []models.AggregateRow, startYear, endYear int) (*models.TrendResult, error) {
	var xs, ys []float64
	for _, row := range rows {
		if row.Year < startYear || row.Year > endYear {
			continue
		}
		if row.SampleCount == 0 || row.MeanC == nil {
			continue
		}
		xs = append(xs, float64(row.Year))
		ys = append(ys, *row.MeanC)
	}

	n := len(xs)
	if n < 2 {
		return nil, &InsufficientDataError{StartYear: startYear, EndYear: endYear, YearsUsed: n}
	}

	var sumX, sumY, sumXX, sumXY float64
	for i := 0; i < n; i++ {
		sumX += xs[i]
		sumY += ys[i]
		sumXX += xs[i] * xs[i]
		sumXY += xs[i] * ys[i]
	}

	fn := float64(n)
	denom := fn*sumXX - sumX*sumX
	if denom == 0 {
		// all qualifying samples share one year; no slope is defined
		return nil, &InsufficientDataError{StartYear: startYear, EndYear: endYear, YearsUsed: 1}
	}

	slope := (fn*sumXY - sumX*sumY) / denom
	intercept := (sumY - slope*sumX) / fn

	meanY := sumY / fn
	var ssRes, ssTot float64
	for i := 0; i < n; i++ {
		predicted := intercept + slope*xs[i]
		ssRes += (ys[i] - predicted) * (ys[i] - predicted)
		ssTot += (ys[i] - meanY) * (ys[i] - meanY)
	}
	rSquared := 1.0
	if ssTot > 0 {
		rSquared = 1 - ssRes/ssTot
	}

	return &models.TrendResult{
		StartYear:     startYear,
		EndYear:       endYear,
		SlopeCPerYear: slope,
		Intercept:     intercept,
		RSquared:      rSquared,
		YearsUsed:     n,
	}, nil
}
