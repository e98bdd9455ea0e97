// Package report turns checkpointed results into the files a run leaves
// behind: per company/day and per company CSVs, a statistics JSON, the list
// of items a partial run never reached, and SVG charts.
package report

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/phuslu/log"

	"github.com/seenimoa/newsentiment/internal/aggregate"
	"github.com/seenimoa/newsentiment/internal/checkpoint"
	"github.com/seenimoa/newsentiment/pkg/models"
)

// Output file names inside a run directory.
const (
	AnalysisCSV  = "sentiment_analysis.csv"
	SummaryCSV   = "sentiment_summary.csv"
	PendingCSV   = "pending_items.csv"
	StatsJSON    = "analysis_summary.json"
	DailyChart   = "sentiment_daily.svg"
	CompanyChart = "sentiment_by_company.svg"
	CoverageSVG  = "news_coverage.svg"
	HeatmapSVG   = "sentiment_heatmap.svg"
)

// Report is everything derived from one run directory's checkpoint.
type Report struct {
	Days      []models.CompanyDaySummary
	Companies []models.CompanySummary
	Stats     aggregate.Stats
	Pending   []models.WorkItem
}

// Build aggregates checkpoint records. Days are ordered by date and then by
// roster position; symbols missing from roster sort after it.
func Build(records []checkpoint.Record, roster []models.Company, pending []models.WorkItem) *Report {
	rank := make(map[string]int, len(roster))
	for i, c := range roster {
		rank[c.Symbol] = i
	}
	pos := func(sym string) int {
		if i, ok := rank[sym]; ok {
			return i
		}
		return len(roster)
	}

	days := make([]aggregate.Day, 0, len(records))
	for _, rec := range records {
		days = append(days, aggregate.Day{Item: rec.Item(), Results: rec.Results})
	}
	sort.SliceStable(days, func(i, j int) bool {
		a, b := days[i].Item, days[j].Item
		if !a.TargetDate.Equal(b.TargetDate) {
			return a.TargetDate.Before(b.TargetDate)
		}
		if pa, pb := pos(a.CompanyID), pos(b.CompanyID); pa != pb {
			return pa < pb
		}
		return a.CompanyID < b.CompanyID
	})

	summaries := aggregate.CompanyDays(days)
	return &Report{
		Days:      summaries,
		Companies: aggregate.Companies(days, roster),
		Stats:     aggregate.Summarize(summaries),
		Pending:   pending,
	}
}

// Pending returns the items of the enumeration that done does not hold,
// keeping enumeration order.
func Pending(items []models.WorkItem, done func(models.ItemKey) bool) []models.WorkItem {
	var out []models.WorkItem
	for _, it := range items {
		if !done(it.Key()) {
			out = append(out, it)
		}
	}
	return out
}

// Writer writes a Report into a run directory.
type Writer struct {
	dir    string
	charts bool
	logger *log.Logger
	now    func() time.Time
}

// Option configures a Writer.
type Option func(*Writer)

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(w *Writer) { w.logger = l }
}

// WithCharts toggles SVG chart output (default on).
func WithCharts(on bool) Option {
	return func(w *Writer) { w.charts = on }
}

// NewWriter creates a writer for dir.
func NewWriter(dir string, opts ...Option) *Writer {
	w := &Writer{dir: dir, charts: true, logger: &log.DefaultLogger, now: time.Now}
	for _, o := range opts {
		o(w)
	}
	return w
}

// statsFile is the JSON layout of analysis_summary.json.
type statsFile struct {
	aggregate.Stats
	PendingItems int       `json:"pending_items"`
	GeneratedAt  time.Time `json:"generated_at"`
}

// Write writes every output file and returns their paths. Each file is
// written to a temporary name and renamed into place. A stale pending list
// is removed when nothing is pending.
func (w *Writer) Write(rep *Report) ([]string, error) {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}

	type output struct {
		name  string
		write func(io.Writer) error
	}
	outputs := []output{
		{AnalysisCSV, func(out io.Writer) error { return WriteAnalysisCSV(out, rep.Days) }},
		{SummaryCSV, func(out io.Writer) error { return WriteSummaryCSV(out, rep.Companies) }},
		{StatsJSON, func(out io.Writer) error {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(statsFile{Stats: rep.Stats, PendingItems: len(rep.Pending), GeneratedAt: w.now().UTC()})
		}},
	}
	if len(rep.Pending) > 0 {
		outputs = append(outputs, output{PendingCSV, func(out io.Writer) error { return WritePendingCSV(out, rep.Pending) }})
	} else if err := os.Remove(filepath.Join(w.dir, PendingCSV)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("remove stale %s: %w", PendingCSV, err)
	}
	if w.charts {
		svg := func(s string) func(io.Writer) error {
			return func(out io.Writer) error {
				_, err := io.WriteString(out, s)
				return err
			}
		}
		outputs = append(outputs,
			output{DailyChart, svg(DailyAverageChart(rep.Days))},
			output{CompanyChart, svg(CompanyAverageChart(rep.Companies))},
			output{CoverageSVG, svg(CoverageChart(rep.Companies))},
			output{HeatmapSVG, svg(HeatmapChart(rep.Days, rep.Companies))},
		)
	}

	paths := make([]string, 0, len(outputs))
	for _, o := range outputs {
		path := filepath.Join(w.dir, o.name)
		if err := writeFile(path, o.write); err != nil {
			return paths, fmt.Errorf("write %s: %w", o.name, err)
		}
		paths = append(paths, path)
	}

	w.logger.Info().
		Str("dir", w.dir).
		Int("company_days", len(rep.Days)).
		Int("companies", len(rep.Companies)).
		Int("pending", len(rep.Pending)).
		Int("files", len(paths)).
		Msg("report written")
	return paths, nil
}

func writeFile(path string, write func(io.Writer) error) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if err := write(tmp); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// sortedDates returns the distinct dates of days in ascending order.
func sortedDates(days []models.CompanyDaySummary) []string {
	seen := make(map[string]bool)
	var dates []string
	for _, d := range days {
		if !seen[d.Date] {
			seen[d.Date] = true
			dates = append(dates, d.Date)
		}
	}
	sort.Strings(dates)
	return dates
}
