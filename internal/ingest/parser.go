package ingest

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var (
	unsafeColumnChars = regexp.MustCompile(`[^A-Za-z0-9_]`)
	leadingDigit      = regexp.MustCompile(`^\d`)
)

// sanitizeColumn normalizes a raw header field into a safe SQL identifier.
func sanitizeColumn(name string) string {
	s := strings.TrimSpace(name)
	s = strings.TrimPrefix(s, "#")
	s = strings.TrimSpace(s)
	s = unsafeColumnChars.ReplaceAllString(s, "_")
	if leadingDigit.MatchString(s) {
		s = "_" + s
	}
	if s == "" {
		return "col"
	}
	return s
}

// parseHeader finds the column header line in a daily data export.
// The header is the first comment line starting with "# STN", e.g.
// "# STN,YYYYMMDD,DDVEC,FHVEC,...". It returns the sanitized column
// names and the index of the first data line.
func parseHeader(lines []string) ([]string, int, error) {
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if !strings.HasPrefix(trimmed, "# STN") {
			continue
		}

		raw := strings.TrimSpace(strings.TrimPrefix(trimmed, "#"))
		var columns []string
		for _, field := range strings.Split(raw, ",") {
			if f := strings.TrimSpace(field); f != "" {
				columns = append(columns, sanitizeColumn(f))
			}
		}
		if len(columns) == 0 {
			return nil, 0, fmt.Errorf("header line %d contains no columns", i+1)
		}
		return columns, i + 1, nil
	}
	return nil, 0, fmt.Errorf("no header line found (expected a line like '# STN,YYYYMMDD,...')")
}

// parseCell converts a single data cell. Empty cells become NULL,
// integer cells stay integers (the -9999 missing marker included, so
// readers can tell "not measured" from "absent"), anything else is
// kept as text.
func parseCell(cell string) interface{} {
	cell = strings.TrimSpace(cell)
	if cell == "" {
		return nil
	}
	if v, err := strconv.ParseInt(cell, 10, 64); err == nil {
		return v
	}
	return cell
}

// parseDataLine splits a comma-separated data line into one value per
// column, padding short lines with NULLs and dropping extra fields.
func parseDataLine(line string, columnCount int) []interface{} {
	fields := strings.Split(line, ",")
	values := make([]interface{}, columnCount)
	for i := 0; i < columnCount; i++ {
		if i < len(fields) {
			values[i] = parseCell(fields[i])
		}
	}
	return values
}
