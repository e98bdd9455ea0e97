package utils

import (
	"testing"
	"time"
)

func mustDate(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := ParseDate(s)
	if err != nil {
		t.Fatalf("ParseDate(%q): %v", s, err)
	}
	return d
}

func TestParseFormatDate(t *testing.T) {
	d, err := ParseDate("2024-06-03")
	if err != nil {
		t.Fatalf("ParseDate error: %v", err)
	}
	if d.Location() != time.UTC || d.Hour() != 0 {
		t.Errorf("ParseDate = %v, want midnight UTC", d)
	}
	if got := FormatDate(d); got != "2024-06-03" {
		t.Errorf("FormatDate = %q, want 2024-06-03", got)
	}
	if _, err := ParseDate("06/03/2024"); err == nil {
		t.Error("expected error for non-ISO date")
	}
}

func TestNewCalendarUnknownPreset(t *testing.T) {
	if _, err := NewCalendar("lse", nil); err == nil {
		t.Error("expected error for unknown preset")
	}
	if _, err := NewCalendar(PresetNYSE, []string{"not-a-date"}); err == nil {
		t.Error("expected error for malformed extra holiday")
	}
}

func TestNYSEHolidays2024(t *testing.T) {
	cal, _ := NewCalendar(PresetNYSE, nil)
	want := map[string]string{
		"2024-01-01": "New Year's Day",
		"2024-01-15": "Martin Luther King Jr. Day",
		"2024-02-19": "Washington's Birthday",
		"2024-03-29": "Good Friday",
		"2024-05-27": "Memorial Day",
		"2024-06-19": "Juneteenth",
		"2024-07-04": "Independence Day",
		"2024-09-02": "Labor Day",
		"2024-11-28": "Thanksgiving Day",
		"2024-12-25": "Christmas Day",
	}
	got := cal.Holidays(2024)
	if len(got) != len(want) {
		t.Fatalf("Holidays(2024): got %d entries, want %d: %v", len(got), len(want), got)
	}
	for d, name := range want {
		if got[d] != name {
			t.Errorf("Holidays(2024)[%s] = %q, want %q", d, got[d], name)
		}
	}
}

func TestNYSEObservedRules(t *testing.T) {
	cal, _ := NewCalendar(PresetNYSE, nil)

	tests := []struct {
		date string
		want bool
	}{
		{"2021-12-31", false}, // New Year 2022 on Saturday: no Friday closure
		{"2021-07-05", true},  // July 4 2021 was a Sunday
		{"2022-12-26", true},  // Christmas 2022 on Sunday
		{"2021-06-18", false}, // Juneteenth not yet an exchange holiday
		{"2023-06-19", true},
		{"2025-01-09", true}, // special closure
		{"2025-04-18", true}, // Good Friday
		{"2024-10-14", false}, // Columbus Day, market open
		{"2024-11-11", false}, // Veterans Day, market open
	}
	for _, tt := range tests {
		_, got := cal.HolidayName(mustDate(t, tt.date))
		if got != tt.want {
			t.Errorf("HolidayName(%s) = %v, want %v", tt.date, got, tt.want)
		}
	}
}

func TestUSFederalHolidays(t *testing.T) {
	cal, _ := NewCalendar(PresetUSFederal, nil)
	for _, d := range []string{"2024-10-14", "2024-11-11", "2024-06-19", "2024-01-01"} {
		if cal.IsBusinessDay(mustDate(t, d)) {
			t.Errorf("%s should be a federal holiday", d)
		}
	}
	// Good Friday is not a federal holiday.
	if !cal.IsBusinessDay(mustDate(t, "2024-03-29")) {
		t.Error("2024-03-29 should be a federal business day")
	}
	// New Year 2022 fell on Saturday; observed on Friday 2021-12-31.
	if cal.IsBusinessDay(mustDate(t, "2021-12-31")) {
		t.Error("2021-12-31 should be the observed federal New Year holiday")
	}
}

func TestWeekendsPresetAndExtras(t *testing.T) {
	cal, _ := NewCalendar(PresetWeekends, []string{"2024-06-04"})
	if !cal.IsBusinessDay(mustDate(t, "2024-12-25")) {
		t.Error("weekends preset should not know Christmas")
	}
	if cal.IsBusinessDay(mustDate(t, "2024-06-04")) {
		t.Error("configured extra holiday should not be a business day")
	}
	if cal.IsBusinessDay(mustDate(t, "2024-06-08")) {
		t.Error("Saturday should never be a business day")
	}
}

func TestBusinessDays(t *testing.T) {
	cal, _ := NewCalendar(PresetNYSE, nil)

	// June 2024: 20 weekdays, Juneteenth closed.
	days := cal.BusinessDays(mustDate(t, "2024-06-01"), mustDate(t, "2024-06-30"))
	if len(days) != 19 {
		t.Errorf("June 2024 business days: got %d, want 19", len(days))
	}
	for i := 1; i < len(days); i++ {
		if !days[i].After(days[i-1]) {
			t.Fatalf("days not ascending at %d", i)
		}
	}

	// Weekend only range yields nothing.
	if got := cal.BusinessDays(mustDate(t, "2024-06-08"), mustDate(t, "2024-06-09")); len(got) != 0 {
		t.Errorf("weekend range: got %d days, want 0", len(got))
	}
}

func TestPrevBusinessDay(t *testing.T) {
	cal, _ := NewCalendar(PresetNYSE, nil)
	tests := []struct{ from, want string }{
		{"2024-06-04", "2024-06-03"},
		{"2024-06-03", "2024-05-31"}, // Monday -> Friday
		{"2024-05-28", "2024-05-24"}, // after Memorial Day
	}
	for _, tt := range tests {
		if got := FormatDate(cal.PrevBusinessDay(mustDate(t, tt.from))); got != tt.want {
			t.Errorf("PrevBusinessDay(%s) = %s, want %s", tt.from, got, tt.want)
		}
	}
}

func TestEaster(t *testing.T) {
	tests := map[int]string{2024: "2024-03-31", 2025: "2025-04-20", 2026: "2026-04-05"}
	for year, want := range tests {
		if got := FormatDate(easter(year)); got != want {
			t.Errorf("easter(%d) = %s, want %s", year, got, want)
		}
	}
}
