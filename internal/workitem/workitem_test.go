package workitem

import (
	"errors"
	"testing"
	"time"

	"github.com/seenimoa/newsentiment/internal/faults"
	"github.com/seenimoa/newsentiment/pkg/models"
	"github.com/seenimoa/newsentiment/pkg/utils"
)

var pair = []models.Company{
	{Symbol: "AAPL", Name: "Apple Inc."},
	{Symbol: "MSFT", Name: "Microsoft Corporation"},
}

func nyse(t *testing.T) *utils.Calendar {
	t.Helper()
	cal, err := utils.NewCalendar(utils.PresetNYSE, nil)
	if err != nil {
		t.Fatal(err)
	}
	return cal
}

func day(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := utils.ParseDate(s)
	if err != nil {
		t.Fatal(err)
	}
	return d
}

func TestEnumerateTwoDaysTwoCompanies(t *testing.T) {
	items, err := Enumerate(day(t, "2024-06-03"), day(t, "2024-06-04"), pair, nyse(t))
	if err != nil {
		t.Fatalf("Enumerate() error: %v", err)
	}
	want := []models.ItemKey{"2024-06-03/AAPL", "2024-06-03/MSFT", "2024-06-04/AAPL", "2024-06-04/MSFT"}
	if len(items) != len(want) {
		t.Fatalf("got %d items, want %d", len(items), len(want))
	}
	for i, k := range want {
		if items[i].Key() != k {
			t.Errorf("item %d: got %s, want %s", i, items[i].Key(), k)
		}
	}
	if items[0].CompanyName != "Apple Inc." {
		t.Errorf("CompanyName: got %q", items[0].CompanyName)
	}
}

func TestEnumerateSizeAndExclusions(t *testing.T) {
	cal := nyse(t)
	start, end := day(t, "2024-06-01"), day(t, "2024-06-30")
	items, err := Enumerate(start, end, pair, cal)
	if err != nil {
		t.Fatalf("Enumerate() error: %v", err)
	}
	if want := len(cal.BusinessDays(start, end)) * len(pair); len(items) != want {
		t.Errorf("size: got %d, want %d", len(items), want)
	}
	for _, it := range items {
		wd := it.TargetDate.Weekday()
		if wd == time.Saturday || wd == time.Sunday {
			t.Errorf("weekend item %s", it.Key())
		}
		if it.Day() == "2024-06-19" {
			t.Errorf("holiday item %s", it.Key())
		}
	}
}

func TestEnumerateUniqueKeys(t *testing.T) {
	items, _ := Enumerate(day(t, "2024-01-01"), day(t, "2024-03-31"), pair, nyse(t))
	seen := map[models.ItemKey]bool{}
	for _, it := range items {
		if seen[it.Key()] {
			t.Fatalf("duplicate key %s", it.Key())
		}
		seen[it.Key()] = true
	}
}

func TestEnumerateEmpty(t *testing.T) {
	items, err := Enumerate(day(t, "2024-06-08"), day(t, "2024-06-09"), pair, nyse(t))
	if err != nil {
		t.Fatalf("weekend range: unexpected error %v", err)
	}
	if len(items) != 0 {
		t.Errorf("weekend range: got %d items, want 0", len(items))
	}
	items, _ = Enumerate(day(t, "2024-06-03"), day(t, "2024-06-03"), nil, nyse(t))
	if len(items) != 0 {
		t.Errorf("empty roster: got %d items, want 0", len(items))
	}
}

func TestEnumerateInvalidRange(t *testing.T) {
	_, err := Enumerate(day(t, "2024-06-04"), day(t, "2024-06-03"), pair, nyse(t))
	if !errors.Is(err, faults.ErrInvalidRange) {
		t.Errorf("got %v, want ErrInvalidRange", err)
	}
}

func TestParseRange(t *testing.T) {
	r, err := ParseRange("2024-06-01", "2024-06-30")
	if err != nil {
		t.Fatalf("ParseRange() error: %v", err)
	}
	if r.Label() != "2024-06-01_to_2024-06-30" {
		t.Errorf("Label: got %q", r.Label())
	}
	if _, err := ParseRange("2024-06-30", "2024-06-01"); !errors.Is(err, faults.ErrInvalidRange) {
		t.Errorf("reversed: got %v, want ErrInvalidRange", err)
	}
	if _, err := ParseRange("June 1", "2024-06-01"); !errors.Is(err, faults.ErrInvalidRange) {
		t.Errorf("malformed: got %v, want ErrInvalidRange", err)
	}
}

func TestDays(t *testing.T) {
	items, _ := Enumerate(day(t, "2024-06-03"), day(t, "2024-06-05"), pair, nyse(t))
	days := Days(items)
	if len(days) != 3 || days[0] != "2024-06-03" || days[2] != "2024-06-05" {
		t.Errorf("Days: got %v", days)
	}
}
