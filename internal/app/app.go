// Package app wires configuration into a runnable pipeline: it builds the
// news source and scorer, opens the run directory's checkpoint, drives the
// scheduler and writes the report.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/phuslu/log"

	"github.com/seenimoa/newsentiment/api"
	"github.com/seenimoa/newsentiment/internal/checkpoint"
	"github.com/seenimoa/newsentiment/internal/config"
	"github.com/seenimoa/newsentiment/internal/datasource"
	"github.com/seenimoa/newsentiment/internal/infra"
	"github.com/seenimoa/newsentiment/internal/llm"
	"github.com/seenimoa/newsentiment/internal/logging"
	"github.com/seenimoa/newsentiment/internal/pipeline"
	"github.com/seenimoa/newsentiment/internal/report"
	"github.com/seenimoa/newsentiment/internal/retry"
	"github.com/seenimoa/newsentiment/internal/roster"
	"github.com/seenimoa/newsentiment/internal/workitem"
	"github.com/seenimoa/newsentiment/pkg/models"
	"github.com/seenimoa/newsentiment/pkg/utils"
)

// LogFileName is the per-run log written next to the CSV output.
const LogFileName = "sentiment_analysis.log"

// App holds the configuration-derived pieces shared by every command.
type App struct {
	cfg      *config.Config
	logger   *log.Logger
	roster   *roster.Roster
	calendar *utils.Calendar
	version  string

	// test hooks; nil means build from config
	source datasource.Source
	scorer llm.Scorer
}

// Option configures an App.
type Option func(*App)

// WithVersion sets the version reported by the status server.
func WithVersion(v string) Option {
	return func(a *App) { a.version = v }
}

// WithSource replaces the configured news source.
func WithSource(s datasource.Source) Option {
	return func(a *App) { a.source = s }
}

// WithScorer replaces the configured scorer.
func WithScorer(s llm.Scorer) Option {
	return func(a *App) { a.scorer = s }
}

// New validates cfg and loads the roster and calendar.
func New(cfg *config.Config, logger *log.Logger, opts ...Option) (*App, error) {
	if logger == nil {
		logger = &log.DefaultLogger
	}
	a := &App{cfg: cfg, logger: logger, version: "dev"}
	for _, o := range opts {
		o(a)
	}
	if a.source == nil {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}

	r, err := roster.Load(cfg.Roster.File)
	if err != nil {
		return nil, err
	}
	if len(cfg.Roster.Symbols) > 0 {
		if r, err = r.Filter(cfg.Roster.Symbols); err != nil {
			return nil, err
		}
	}
	a.roster = r

	a.calendar, err = utils.NewCalendar(cfg.Calendar.Preset, cfg.Calendar.Holidays)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// Config returns the configuration.
func (a *App) Config() *config.Config { return a.cfg }

// Calendar returns the business-day calendar.
func (a *App) Calendar() *utils.Calendar { return a.calendar }

// Roster returns the configured roster.
func (a *App) Roster() *roster.Roster { return a.roster }

// Selection narrows the roster for one command.
type Selection struct {
	Symbols []string // empty keeps the whole roster
	Top     int      // keep only the first n companies; 0 keeps all
}

// Companies applies sel to the roster.
func (a *App) Companies(sel Selection) ([]models.Company, error) {
	r := a.roster
	if len(sel.Symbols) > 0 {
		var err error
		if r, err = r.Filter(sel.Symbols); err != nil {
			return nil, err
		}
	}
	if sel.Top > 0 {
		r = r.Head(sel.Top)
	}
	return r.Companies, nil
}

// RunDir returns <output.dir>/<start>_to_<end>.
func (a *App) RunDir(rng workitem.Range) string {
	return filepath.Join(a.cfg.Output.Dir, rng.Label())
}

// PipelineConfig maps the pipeline section onto scheduler settings.
func (a *App) PipelineConfig() pipeline.Config {
	p := a.cfg.Pipeline
	return pipeline.Config{
		Workers:          p.Workers,
		FetchConcurrency: p.FetchConcurrency,
		ScoreConcurrency: p.ScoreConcurrency,
		Retry: retry.Policy{
			MaxRetries: p.MaxRetries,
			BaseDelay:  time.Duration(p.BaseDelayMs) * time.Millisecond,
			MaxDelay:   time.Duration(p.MaxDelayMs) * time.Millisecond,
			Jitter:     p.Jitter,
		},
		FetchTimeout: a.cfg.NewsTimeout(),
		ScoreTimeout: a.cfg.ScorerTimeout(),
	}
}

// Source builds the configured news source. Several providers are merged;
// fetch_bodies wraps the result in a page-text fetcher.
func (a *App) Source(logger *log.Logger) (datasource.Source, error) {
	if a.source != nil {
		return a.source, nil
	}
	n := a.cfg.News
	timeout := a.cfg.NewsTimeout()

	var sources []datasource.Source
	for _, p := range a.cfg.NewsProviders() {
		switch p {
		case "polygon":
			popts := []datasource.PolygonOption{
				datasource.WithPolygonLimit(n.Limit),
				datasource.WithPolygonLimiter(infra.NewLimiter(n.RequestsPerSecond)),
				datasource.WithPolygonHTTPClient(&http.Client{Timeout: timeout}),
				datasource.WithPolygonLogger(logger),
			}
			if n.PolygonURL != "" {
				popts = append(popts, datasource.WithPolygonBaseURL(n.PolygonURL))
			}
			sources = append(sources, datasource.NewPolygon(n.PolygonKey, popts...))
		case "rss":
			ropts := []datasource.RSSOption{
				datasource.WithRSSLimiter(infra.NewLimiter(n.RequestsPerSecond)),
				datasource.WithRSSHTTPClient(&http.Client{Timeout: timeout}),
				datasource.WithRSSLogger(logger),
			}
			if n.RSSURL != "" {
				ropts = append(ropts, datasource.WithRSSURL(n.RSSURL))
			}
			if n.CacheTTL > 0 {
				ropts = append(ropts, datasource.WithRSSCacheTTL(time.Duration(n.CacheTTL)*time.Second))
			}
			sources = append(sources, datasource.NewRSS(ropts...))
		default:
			return nil, fmt.Errorf("app: unknown news provider %q", p)
		}
	}

	var src datasource.Source
	switch len(sources) {
	case 0:
		return nil, errors.New("app: no news provider configured")
	case 1:
		src = sources[0]
	default:
		src = datasource.NewMulti(logger, sources...)
	}
	if n.FetchBodies {
		src = datasource.NewBodyFetcher(src, timeout, logger)
	}
	return src, nil
}

// Scorer builds the configured scorer.
func (a *App) Scorer(logger *log.Logger) (llm.Scorer, error) {
	if a.scorer != nil {
		return a.scorer, nil
	}
	s := a.cfg.Scorer
	return llm.New(llm.Options{
		Provider:    s.Provider,
		BaseURL:     s.OllamaURL,
		Model:       s.Model,
		Temperature: s.Temperature,
		TopP:        s.TopP,
		MaxChars:    s.MaxChars,
	}, llm.WithOllamaLogger(logger))
}

// RunOptions selects what one run processes.
type RunOptions struct {
	Range     workitem.Range
	Selection Selection
	// StatusAddr overrides status.addr; empty keeps the configured value.
	StatusAddr string
}

// Result is the outcome of Run.
type Result struct {
	Dir    string
	Run    *pipeline.RunReport
	Report *report.Report
	Files  []string
}

// Run processes the range, resuming from the run directory's checkpoint,
// and writes the report. A setup failure returns a Failed report and no
// checkpoint is written.
func (a *App) Run(ctx context.Context, opts RunOptions) (*Result, error) {
	companies, err := a.Companies(opts.Selection)
	if err != nil {
		return nil, err
	}
	items, err := workitem.Enumerate(opts.Range.Start, opts.Range.End, companies, a.calendar)
	if err != nil {
		return nil, err
	}

	dir := a.RunDir(opts.Range)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create run dir: %w", err)
	}
	logFile, err := os.OpenFile(filepath.Join(dir, LogFileName), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open run log: %w", err)
	}
	defer logFile.Close()
	logger := logging.Tee(a.logger, logFile)

	res := &Result{Dir: dir}
	failed := func(err error) (*Result, error) {
		res.Run = &pipeline.RunReport{Status: models.RunFailed, Total: len(items), Err: err, Pending: items}
		logger.Error().Err(err).Str("dir", dir).Msg("run failed")
		return res, err
	}

	src, err := a.Source(logger)
	if err != nil {
		return failed(err)
	}
	scorer, err := a.Scorer(logger)
	if err != nil {
		return failed(err)
	}

	tracker := pipeline.NewTracker()
	sched, err := pipeline.New(a.PipelineConfig(), src, scorer,
		pipeline.WithLogger(logger), pipeline.WithTracker(tracker))
	if err != nil {
		return failed(err)
	}

	logger.Info().
		Str("start", utils.FormatDate(opts.Range.Start)).
		Str("end", utils.FormatDate(opts.Range.End)).
		Int("companies", len(companies)).
		Int("items", len(items)).
		Str("calendar", a.calendar.Preset()).
		Str("source", src.Name()).
		Str("scorer", scorer.Name()).
		Str("dir", dir).
		Msg("run configured")

	if err := sched.Preflight(ctx); err != nil {
		return failed(err)
	}

	cp, err := checkpoint.Open(filepath.Join(dir, checkpoint.FileName), checkpoint.Header{
		Start:  utils.FormatDate(opts.Range.Start),
		End:    utils.FormatDate(opts.Range.End),
		Source: src.Name(),
		Scorer: scorer.Name(),
	}, checkpoint.WithLogger(logger))
	if err != nil {
		return failed(err)
	}
	defer cp.Close()

	addr := a.cfg.Status.Addr
	if opts.StatusAddr != "" {
		addr = opts.StatusAddr
	}
	var serverDone chan error
	stopServer := func() {}
	if addr != "" {
		srvCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		srv := api.NewServer(a.cfg.Status, tracker, api.WithLogger(logger), api.WithVersion(a.version))
		serverDone = make(chan error, 1)
		go func() { serverDone <- srv.ListenAndServe(srvCtx, addr) }()
		stopServer = func() {
			cancel()
			if err := <-serverDone; err != nil {
				logger.Warn().Err(err).Msg("progress server stopped with error")
			}
		}
	}
	defer stopServer()

	rep, runErr := sched.Run(ctx, items, cp)
	res.Run = rep

	// The report reflects whatever reached the checkpoint, even for a
	// failed or interrupted run.
	res.Report = buildReport(cp.Records(), items, companies, cp.Has)
	files, err := report.NewWriter(dir, report.WithLogger(logger), report.WithCharts(a.cfg.Output.Charts)).Write(res.Report)
	res.Files = files
	if runErr != nil {
		return res, runErr
	}
	if err != nil {
		return res, err
	}
	return res, nil
}

// Rebuild regenerates the report files from an existing checkpoint without
// touching the network.
func (a *App) Rebuild(rng workitem.Range, sel Selection) (*Result, error) {
	companies, items, snap, err := a.load(rng, sel)
	if err != nil {
		return nil, err
	}
	if snap.Len() == 0 {
		return nil, fmt.Errorf("no checkpoint records in %s", a.RunDir(rng))
	}
	dir := a.RunDir(rng)
	res := &Result{Dir: dir, Report: buildReport(snap.Records(), items, companies, snap.Has)}
	res.Files, err = report.NewWriter(dir, report.WithLogger(a.logger), report.WithCharts(a.cfg.Output.Charts)).Write(res.Report)
	return res, err
}

// Progress summarises a run directory's checkpoint against the range.
type Progress struct {
	Dir      string
	Total    int
	Done     int
	Outcomes map[models.Outcome]int
	Pending  []models.WorkItem
	Runs     []checkpoint.Header
}

// Status reads the run directory's checkpoint without modifying it.
func (a *App) Status(rng workitem.Range, sel Selection) (*Progress, error) {
	_, items, snap, err := a.load(rng, sel)
	if err != nil {
		return nil, err
	}
	p := &Progress{Dir: a.RunDir(rng), Total: len(items), Outcomes: make(map[models.Outcome]int), Runs: snap.Runs}
	for _, it := range items {
		rec, ok := snap.Get(it.Key())
		if !ok {
			p.Pending = append(p.Pending, it)
			continue
		}
		p.Done++
		p.Outcomes[rec.Outcome]++
	}
	return p, nil
}

func (a *App) load(rng workitem.Range, sel Selection) ([]models.Company, []models.WorkItem, *checkpoint.Snapshot, error) {
	companies, err := a.Companies(sel)
	if err != nil {
		return nil, nil, nil, err
	}
	items, err := workitem.Enumerate(rng.Start, rng.End, companies, a.calendar)
	if err != nil {
		return nil, nil, nil, err
	}
	snap, err := checkpoint.Read(filepath.Join(a.RunDir(rng), checkpoint.FileName))
	if err != nil {
		return nil, nil, nil, err
	}
	return companies, items, snap, nil
}

// buildReport keeps only records for items of this enumeration, so a
// narrower --symbols run over a shared directory reports just its own rows.
func buildReport(records []checkpoint.Record, items []models.WorkItem, companies []models.Company, done func(models.ItemKey) bool) *report.Report {
	want := make(map[models.ItemKey]bool, len(items))
	for _, it := range items {
		want[it.Key()] = true
	}
	kept := records[:0:0]
	for _, rec := range records {
		if want[rec.Key] {
			kept = append(kept, rec)
		}
	}
	return report.Build(kept, companies, report.Pending(items, done))
}
