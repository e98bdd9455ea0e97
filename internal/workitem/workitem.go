// Package workitem expands a date range and a roster into the ordered list
// of (company, business day) items a run has to process.
package workitem

import (
	"fmt"
	"time"

	"github.com/seenimoa/newsentiment/internal/faults"
	"github.com/seenimoa/newsentiment/pkg/models"
	"github.com/seenimoa/newsentiment/pkg/utils"
)

// Calendar decides which dates are business days.
type Calendar interface {
	IsBusinessDay(t time.Time) bool
}

// Range is an inclusive calendar-date range.
type Range struct {
	Start time.Time
	End   time.Time
}

// ParseRange parses two YYYY-MM-DD dates. End before start is ErrInvalidRange.
func ParseRange(start, end string) (Range, error) {
	s, err := utils.ParseDate(start)
	if err != nil {
		return Range{}, fmt.Errorf("%w: start: %v", faults.ErrInvalidRange, err)
	}
	e, err := utils.ParseDate(end)
	if err != nil {
		return Range{}, fmt.Errorf("%w: end: %v", faults.ErrInvalidRange, err)
	}
	r := Range{Start: s, End: e}
	return r, r.Validate()
}

// Validate rejects a range whose end precedes its start.
func (r Range) Validate() error {
	if r.End.Before(r.Start) {
		return fmt.Errorf("%w: end %s is before start %s",
			faults.ErrInvalidRange, utils.FormatDate(r.End), utils.FormatDate(r.Start))
	}
	return nil
}

// Label renders the range as "<start>_to_<end>", the run directory name.
func (r Range) Label() string {
	return utils.FormatDate(r.Start) + "_to_" + utils.FormatDate(r.End)
}

// Enumerate returns one WorkItem per business day in [start, end] per
// company, ordered by date and then by roster order.
func Enumerate(start, end time.Time, companies []models.Company, cal Calendar) ([]models.WorkItem, error) {
	start, end = utils.Midnight(start), utils.Midnight(end)
	if err := (Range{Start: start, End: end}).Validate(); err != nil {
		return nil, err
	}

	var items []models.WorkItem
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		if !cal.IsBusinessDay(d) {
			continue
		}
		for _, c := range companies {
			items = append(items, models.WorkItem{
				CompanyID:   c.Symbol,
				CompanyName: c.Name,
				TargetDate:  d,
			})
		}
	}
	return items, nil
}

// Days returns the distinct target dates of items in first-seen order.
func Days(items []models.WorkItem) []string {
	seen := make(map[string]bool)
	var days []string
	for _, it := range items {
		d := it.Day()
		if !seen[d] {
			seen[d] = true
			days = append(days, d)
		}
	}
	return days
}
