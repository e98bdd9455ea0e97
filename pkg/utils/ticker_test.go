package utils

import (
	"reflect"
	"testing"
)

func TestNormalizeTicker(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"AAPL", "AAPL"},
		{"aapl", "AAPL"},
		{" msft ", "MSFT"},
		{"$NVDA", "NVDA"},
		{"apple", "AAPL"},
		{"FB", "META"},
		{"BRK-B", "BRK.B"},
		{"brk/b", "BRK.B"},
		{"UNKNOWN", "UNKNOWN"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result := NormalizeTicker(tt.input)
			if result != tt.expected {
				t.Errorf("NormalizeTicker(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestToYahooTicker(t *testing.T) {
	if got := ToYahooTicker("BRK.B"); got != "BRK-B" {
		t.Errorf("ToYahooTicker(BRK.B) = %q, want BRK-B", got)
	}
	if got := ToYahooTicker("aapl"); got != "AAPL" {
		t.Errorf("ToYahooTicker(aapl) = %q, want AAPL", got)
	}
}

func TestParseSymbols(t *testing.T) {
	got := ParseSymbols("aapl, MSFT  nvda,AAPL,,")
	want := []string{"AAPL", "MSFT", "NVDA"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ParseSymbols = %v, want %v", got, want)
	}
	if got := ParseSymbols(""); len(got) != 0 {
		t.Errorf("ParseSymbols(\"\") = %v, want empty", got)
	}
}

func TestFormatScore(t *testing.T) {
	tests := []struct {
		score float64
		want  string
	}{
		{0.2, "+0.2000"},
		{-0.1, "-0.1000"},
		{0, "+0.0000"},
	}
	for _, tt := range tests {
		if got := FormatScore(tt.score); got != tt.want {
			t.Errorf("FormatScore(%v) = %q, want %q", tt.score, got, tt.want)
		}
	}
}

func TestFormatOptionalScore(t *testing.T) {
	if got := FormatOptionalScore(nil); got != "" {
		t.Errorf("FormatOptionalScore(nil) = %q, want empty", got)
	}
	v := 0.2
	if got := FormatOptionalScore(&v); got != "0.2000" {
		t.Errorf("FormatOptionalScore(0.2) = %q, want 0.2000", got)
	}
}

func TestFormatPct(t *testing.T) {
	if got := FormatPct(0.456); got != "45.6%" {
		t.Errorf("FormatPct(0.456) = %q, want 45.6%%", got)
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		s    string
		n    int
		want string
	}{
		{"hello", 10, "hello"},
		{"hello world", 8, "hello..."},
		{"hello", 0, ""},
		{"hello", 2, "he"},
	}
	for _, tt := range tests {
		if got := Truncate(tt.s, tt.n); got != tt.want {
			t.Errorf("Truncate(%q, %d) = %q, want %q", tt.s, tt.n, got, tt.want)
		}
	}
}
