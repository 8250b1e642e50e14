package models

import (
	"testing"
)

func TestDailyValue_Year(t *testing.T) {
	tests := []struct {
		name string
		date string
		want int
	}{
		{name: "normal date", date: "20240115", want: 2024},
		{name: "early date", date: "19010101", want: 1901},
		{name: "too short", date: "202", want: 0},
		{name: "empty", date: "", want: 0},
		{name: "non-numeric prefix", date: "abcd0101", want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := DailyValue{Date: tt.date}
			if got := v.Year(); got != tt.want {
				t.Errorf("Year() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestDailyValue_Missing(t *testing.T) {
	const sentinel = -9999

	tests := []struct {
		name  string
		value DailyValue
		want  bool
	}{
		{name: "valid measurement", value: DailyValue{Raw: 50, Valid: true}, want: false},
		{name: "sentinel measurement", value: DailyValue{Raw: sentinel, Valid: true}, want: true},
		{name: "NULL measurement", value: DailyValue{Valid: false}, want: true},
		{name: "zero is a real value", value: DailyValue{Raw: 0, Valid: true}, want: false},
		{name: "negative is a real value", value: DailyValue{Raw: -52, Valid: true}, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.value.Missing(sentinel); got != tt.want {
				t.Errorf("Missing() = %v, want %v", got, tt.want)
			}
		})
	}
}
