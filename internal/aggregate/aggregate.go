// Package aggregate rolls raw sentiment results up into per company/day and
// per company summaries. Every function here is pure: the same inputs in any
// order give bit-identical outputs.
package aggregate

import (
	"sort"
	"strings"

	"github.com/seenimoa/newsentiment/pkg/models"
	"github.com/seenimoa/newsentiment/pkg/utils"
)

// NewsTextLimit caps the joined headlines stored in a CompanyDaySummary.
const NewsTextLimit = 1000

// Day pairs a WorkItem with the results recorded for it.
type Day struct {
	Item    models.WorkItem
	Results []models.SentimentResult
}

// CompanyDay summarises the results of one WorkItem. Only successful results
// count toward NewsCount, the average and the label counts; failures are
// counted separately. With no successful result the average is nil.
func CompanyDay(item models.WorkItem, results []models.SentimentResult) models.CompanyDaySummary {
	s := models.CompanyDaySummary{
		CompanyID:   item.CompanyID,
		CompanyName: item.CompanyName,
		Date:        item.Day(),
	}

	scores := make([]float64, 0, len(results))
	for _, r := range results {
		if !r.OK() {
			s.FailedCount++
			continue
		}
		scores = append(scores, r.Score)
		switch models.LabelFor(r.Score) {
		case models.LabelPositive:
			s.PositiveCount++
		case models.LabelNegative:
			s.NegativeCount++
		default:
			s.NeutralCount++
		}
	}
	s.NewsCount = len(scores)
	s.AverageSentiment = Mean(scores)
	s.NewsText = newsText(results)
	return s
}

// CompanyDays summarises every day, keeping the input order.
func CompanyDays(days []Day) []models.CompanyDaySummary {
	out := make([]models.CompanyDaySummary, 0, len(days))
	for _, d := range days {
		out = append(out, CompanyDay(d.Item, d.Results))
	}
	return out
}

// Companies rolls days up per company. The average is the mean over every
// successfully scored article of the range, not the mean of daily means.
// Output follows roster order; companies missing from roster come last,
// sorted by symbol.
func Companies(days []Day, roster []models.Company) []models.CompanySummary {
	type acc struct {
		sum    models.CompanySummary
		scores []float64
	}
	byID := make(map[string]*acc)
	for _, d := range days {
		a, ok := byID[d.Item.CompanyID]
		if !ok {
			a = &acc{sum: models.CompanySummary{CompanyID: d.Item.CompanyID, CompanyName: d.Item.CompanyName}}
			byID[d.Item.CompanyID] = a
		}
		day := CompanyDay(d.Item, d.Results)
		a.sum.TotalNewsCount += day.NewsCount
		a.sum.PositiveCount += day.PositiveCount
		a.sum.NeutralCount += day.NeutralCount
		a.sum.NegativeCount += day.NegativeCount
		if day.NewsCount > 0 {
			a.sum.DaysCovered++
		}
		for _, r := range d.Results {
			if r.OK() {
				a.scores = append(a.scores, r.Score)
			}
		}
	}

	out := make([]models.CompanySummary, 0, len(byID))
	seen := make(map[string]bool, len(byID))
	emit := func(a *acc) {
		a.sum.AverageSentiment = Mean(a.scores)
		out = append(out, a.sum)
	}
	for _, c := range roster {
		if a, ok := byID[c.Symbol]; ok && !seen[c.Symbol] {
			seen[c.Symbol] = true
			emit(a)
		}
	}
	rest := make([]string, 0)
	for id := range byID {
		if !seen[id] {
			rest = append(rest, id)
		}
	}
	sort.Strings(rest)
	for _, id := range rest {
		emit(byID[id])
	}
	return out
}

// Mean returns the arithmetic mean of xs, or nil for an empty slice. Values
// are summed in ascending order so the result does not depend on input order.
func Mean(xs []float64) *float64 {
	if len(xs) == 0 {
		return nil
	}
	sorted := append([]float64(nil), xs...)
	sort.Float64s(sorted)
	sum := 0.0
	for _, x := range sorted {
		sum += x
	}
	m := sum / float64(len(sorted))
	return &m
}

// newsText joins the headlines in article order, capped at NewsTextLimit runes.
func newsText(results []models.SentimentResult) string {
	sorted := append([]models.SentimentResult(nil), results...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].NewsIndex != sorted[j].NewsIndex {
			return sorted[i].NewsIndex < sorted[j].NewsIndex
		}
		return sorted[i].Headline < sorted[j].Headline
	})
	parts := make([]string, 0, len(sorted))
	for _, r := range sorted {
		if h := strings.TrimSpace(r.Headline); h != "" {
			parts = append(parts, h)
		}
	}
	return utils.Truncate(strings.Join(parts, " | "), NewsTextLimit)
}
