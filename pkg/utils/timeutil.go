package utils

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// NewYork is the US Eastern market time zone.
var NewYork *time.Location

func init() {
	var err error
	NewYork, err = time.LoadLocation("America/New_York")
	if err != nil {
		// Fallback: fixed EST if tz database is not available
		NewYork = time.FixedZone("EST", -5*60*60)
	}
}

const dateLayout = "2006-01-02"

// ParseDate parses "2006-01-02" into midnight UTC. Calendar dates are kept
// in UTC so arithmetic never crosses a DST boundary.
func ParseDate(s string) (time.Time, error) {
	t, err := time.ParseInLocation(dateLayout, strings.TrimSpace(s), time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q (want YYYY-MM-DD): %w", s, err)
	}
	return t, nil
}

// FormatDate formats a date as "2006-01-02".
func FormatDate(t time.Time) string {
	return t.Format(dateLayout)
}

// Midnight truncates t to its calendar date at midnight UTC.
func Midnight(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// TodayNewYork returns the current calendar date on the US east coast.
func TodayNewYork() time.Time {
	return Midnight(time.Now().In(NewYork))
}

// Holiday presets.
const (
	PresetNYSE      = "nyse"
	PresetUSFederal = "us_federal"
	PresetWeekends  = "weekends"
)

// Calendar decides which dates are business days. Weekends are never
// business days; holidays come from a rule preset plus explicit extras.
type Calendar struct {
	preset string
	extra  map[string]string

	mu    sync.Mutex
	years map[int]map[string]string
}

// NewCalendar builds a calendar for a preset and extra YYYY-MM-DD holidays.
func NewCalendar(preset string, extra []string) (*Calendar, error) {
	switch preset {
	case "", PresetNYSE:
		preset = PresetNYSE
	case PresetUSFederal, PresetWeekends:
	default:
		return nil, fmt.Errorf("unknown holiday preset %q", preset)
	}
	c := &Calendar{
		preset: preset,
		extra:  make(map[string]string, len(extra)),
		years:  make(map[int]map[string]string),
	}
	for _, s := range extra {
		d, err := ParseDate(s)
		if err != nil {
			return nil, err
		}
		c.extra[FormatDate(d)] = "Configured holiday"
	}
	return c, nil
}

// Preset returns the calendar's holiday preset name.
func (c *Calendar) Preset() string { return c.preset }

// IsBusinessDay reports whether t is neither a weekend nor a holiday.
func (c *Calendar) IsBusinessDay(t time.Time) bool {
	if wd := t.Weekday(); wd == time.Saturday || wd == time.Sunday {
		return false
	}
	_, hol := c.HolidayName(t)
	return !hol
}

// HolidayName returns the holiday observed on t, if any.
func (c *Calendar) HolidayName(t time.Time) (string, bool) {
	key := FormatDate(Midnight(t))
	if name, ok := c.extra[key]; ok {
		return name, true
	}
	c.mu.Lock()
	year, ok := c.years[t.Year()]
	if !ok {
		year = c.Holidays(t.Year())
		c.years[t.Year()] = year
	}
	c.mu.Unlock()
	name, ok := year[key]
	return name, ok
}

// BusinessDays lists every business day in [start, end] in ascending order.
func (c *Calendar) BusinessDays(start, end time.Time) []time.Time {
	start, end = Midnight(start), Midnight(end)
	var days []time.Time
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		if c.IsBusinessDay(d) {
			days = append(days, d)
		}
	}
	return days
}

// PrevBusinessDay returns the closest business day strictly before t.
func (c *Calendar) PrevBusinessDay(t time.Time) time.Time {
	prev := Midnight(t).AddDate(0, 0, -1)
	for !c.IsBusinessDay(prev) {
		prev = prev.AddDate(0, 0, -1)
	}
	return prev
}

// Holidays returns the preset holidays observed in a year, keyed by date.
func (c *Calendar) Holidays(year int) map[string]string {
	out := map[string]string{}
	if c.preset == PresetWeekends {
		return out
	}
	add := func(t time.Time, name string) {
		if t.Year() == year {
			out[FormatDate(t)] = name
		}
	}

	switch c.preset {
	case PresetNYSE:
		// The exchange does not move a Saturday New Year's Day to Friday.
		if nyd := date(year, time.January, 1); nyd.Weekday() != time.Saturday {
			add(observed(nyd), "New Year's Day")
		}
		add(nthWeekday(year, time.January, time.Monday, 3), "Martin Luther King Jr. Day")
		add(nthWeekday(year, time.February, time.Monday, 3), "Washington's Birthday")
		add(easter(year).AddDate(0, 0, -2), "Good Friday")
		add(lastWeekday(year, time.May, time.Monday), "Memorial Day")
		if year >= 2022 {
			add(observed(date(year, time.June, 19)), "Juneteenth")
		}
		add(observed(date(year, time.July, 4)), "Independence Day")
		add(nthWeekday(year, time.September, time.Monday, 1), "Labor Day")
		add(nthWeekday(year, time.November, time.Thursday, 4), "Thanksgiving Day")
		add(observed(date(year, time.December, 25)), "Christmas Day")
		for d, name := range nyseClosures {
			if strings.HasPrefix(d, fmt.Sprint(year)) {
				out[d] = name
			}
		}
	case PresetUSFederal:
		add(observed(date(year, time.January, 1)), "New Year's Day")
		add(observed(date(year+1, time.January, 1)), "New Year's Day")
		add(nthWeekday(year, time.January, time.Monday, 3), "Martin Luther King Jr. Day")
		add(nthWeekday(year, time.February, time.Monday, 3), "Washington's Birthday")
		add(lastWeekday(year, time.May, time.Monday), "Memorial Day")
		if year >= 2021 {
			add(observed(date(year, time.June, 19)), "Juneteenth National Independence Day")
		}
		add(observed(date(year, time.July, 4)), "Independence Day")
		add(nthWeekday(year, time.September, time.Monday, 1), "Labor Day")
		add(nthWeekday(year, time.October, time.Monday, 2), "Columbus Day")
		add(observed(date(year, time.November, 11)), "Veterans Day")
		add(nthWeekday(year, time.November, time.Thursday, 4), "Thanksgiving")
		add(observed(date(year, time.December, 25)), "Christmas Day")
	}
	return out
}

// HolidayList returns Holidays(year) sorted by date as "date name" pairs.
func (c *Calendar) HolidayList(year int) [][2]string {
	m := c.Holidays(year)
	out := make([][2]string, 0, len(m))
	for d, n := range m {
		out = append(out, [2]string{d, n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i][0] < out[j][0] })
	return out
}

// Unscheduled exchange closures.
var nyseClosures = map[string]string{
	"2018-12-05": "National Day of Mourning (George H.W. Bush)",
	"2025-01-09": "National Day of Mourning (Jimmy Carter)",
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// observed moves a Saturday holiday to Friday and a Sunday one to Monday.
func observed(t time.Time) time.Time {
	switch t.Weekday() {
	case time.Saturday:
		return t.AddDate(0, 0, -1)
	case time.Sunday:
		return t.AddDate(0, 0, 1)
	}
	return t
}

func nthWeekday(y int, m time.Month, wd time.Weekday, n int) time.Time {
	t := date(y, m, 1)
	offset := (int(wd) - int(t.Weekday()) + 7) % 7
	return t.AddDate(0, 0, offset+7*(n-1))
}

func lastWeekday(y int, m time.Month, wd time.Weekday) time.Time {
	t := date(y, m+1, 1).AddDate(0, 0, -1)
	offset := (int(t.Weekday()) - int(wd) + 7) % 7
	return t.AddDate(0, 0, -offset)
}

// easter returns Easter Sunday (anonymous Gregorian algorithm).
func easter(y int) time.Time {
	a := y % 19
	b := y / 100
	c := y % 100
	d := b / 4
	e := b % 4
	f := (b + 8) / 25
	g := (b - f + 1) / 3
	h := (19*a + b - d - g + 15) % 30
	i := c / 4
	k := c % 4
	l := (32 + 2*e + 2*i - h - k) % 7
	m := (a + 11*h + 22*l) / 451
	month := (h + l - 7*m + 114) / 31
	day := (h+l-7*m+114)%31 + 1
	return date(y, time.Month(month), day)
}
