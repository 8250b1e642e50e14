package ingest

import (
	"testing"
)

func TestSanitizeColumn(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "plain code", in: "TG", want: "TG"},
		{name: "padded", in: "  TX ", want: "TX"},
		{name: "leading hash", in: "# STN", want: "STN"},
		{name: "special characters replaced", in: "T-10N%", want: "T_10N_"},
		{name: "leading digit prefixed", in: "10N", want: "_10N"},
		{name: "empty falls back", in: "", want: "col"},
		{name: "whitespace only falls back", in: "   ", want: "col"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := sanitizeColumn(tt.in); got != tt.want {
				t.Errorf("sanitizeColumn(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestParseHeader(t *testing.T) {
	lines := []string{
		"# BRON: KONINKLIJK NEDERLANDS METEOROLOGISCH INSTITUUT (KNMI)",
		"#",
		"# STN,YYYYMMDD,DDVEC,FHVEC,TG,TN,TX",
		"  320,20240101,  220,   45,  50,  12,  81",
	}

	columns, dataStart, err := parseHeader(lines)
	if err != nil {
		t.Fatalf("parseHeader failed: %v", err)
	}
	if dataStart != 3 {
		t.Errorf("dataStart = %d, want 3", dataStart)
	}

	want := []string{"STN", "YYYYMMDD", "DDVEC", "FHVEC", "TG", "TN", "TX"}
	if len(columns) != len(want) {
		t.Fatalf("columns = %v, want %v", columns, want)
	}
	for i := range want {
		if columns[i] != want[i] {
			t.Errorf("columns[%d] = %q, want %q", i, columns[i], want[i])
		}
	}
}

func TestParseHeader_NoHeader(t *testing.T) {
	lines := []string{
		"# just a comment",
		"320,20240101,50",
	}
	if _, _, err := parseHeader(lines); err == nil {
		t.Fatal("expected an error for a file without a header line")
	}
}

func TestParseCell(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want interface{}
	}{
		{name: "positive integer", in: "  50", want: int64(50)},
		{name: "negative integer", in: "-52", want: int64(-52)},
		{name: "missing marker preserved", in: "-9999", want: int64(-9999)},
		{name: "empty becomes NULL", in: "   ", want: nil},
		{name: "date stays text", in: "2024x101", want: "2024x101"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := parseCell(tt.in); got != tt.want {
				t.Errorf("parseCell(%q) = %v (%T), want %v (%T)", tt.in, got, got, tt.want, tt.want)
			}
		})
	}
}

func TestParseDataLine(t *testing.T) {
	t.Run("short lines are padded with NULLs", func(t *testing.T) {
		values := parseDataLine("320,20240101,50", 5)
		if len(values) != 5 {
			t.Fatalf("len = %d, want 5", len(values))
		}
		if values[0] != int64(320) || values[1] != int64(20240101) || values[2] != int64(50) {
			t.Errorf("values = %v", values)
		}
		if values[3] != nil || values[4] != nil {
			t.Errorf("padding = %v, %v, want NULLs", values[3], values[4])
		}
	})

	t.Run("long lines are truncated", func(t *testing.T) {
		values := parseDataLine("320,20240101,50,60,70", 3)
		if len(values) != 3 {
			t.Fatalf("len = %d, want 3", len(values))
		}
	})

	t.Run("blank cells become NULLs", func(t *testing.T) {
		values := parseDataLine("320,20240101,,  ,-9999", 5)
		if values[2] != nil || values[3] != nil {
			t.Errorf("blank cells = %v, %v, want NULLs", values[2], values[3])
		}
		if values[4] != int64(-9999) {
			t.Errorf("missing marker = %v, want -9999 untouched", values[4])
		}
	})
}
