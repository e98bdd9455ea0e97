// Package pipeline drives WorkItems through news fetching and sentiment
// scoring with bounded concurrency, retries, durable checkpointing and
// resume.
//
// Each item moves Pending → Fetching → Scoring → Done. A terminal fetch
// failure or a failed scoring call still ends in Done, with the outcome
// recorded in the checkpoint. Items that never reach Done are reported as
// pending and picked up by the next run.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/phuslu/log"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/seenimoa/newsentiment/internal/checkpoint"
	"github.com/seenimoa/newsentiment/internal/datasource"
	"github.com/seenimoa/newsentiment/internal/faults"
	"github.com/seenimoa/newsentiment/internal/llm"
	"github.com/seenimoa/newsentiment/internal/retry"
	"github.com/seenimoa/newsentiment/pkg/models"
)

// Config is the explicit scheduler configuration.
type Config struct {
	Workers          int           // items processed concurrently
	FetchConcurrency int           // concurrent news fetch calls
	ScoreConcurrency int           // concurrent scoring calls
	Retry            retry.Policy  // applied to both adapters
	FetchTimeout     time.Duration // per fetch attempt; 0 means none
	ScoreTimeout     time.Duration // per scoring attempt; 0 means none
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	return Config{
		Workers:          5,
		FetchConcurrency: 2,
		ScoreConcurrency: 4,
		Retry:            retry.DefaultPolicy(),
		FetchTimeout:     30 * time.Second,
		ScoreTimeout:     60 * time.Second,
	}
}

// Validate rejects configurations that could never make progress.
func (c Config) Validate() error {
	if c.Workers < 1 || c.FetchConcurrency < 1 || c.ScoreConcurrency < 1 {
		return fmt.Errorf("pipeline: concurrency limits must be positive (workers=%d fetch=%d score=%d)",
			c.Workers, c.FetchConcurrency, c.ScoreConcurrency)
	}
	if c.Retry.MaxRetries < 0 {
		return fmt.Errorf("pipeline: max retries must be >= 0, got %d", c.Retry.MaxRetries)
	}
	return nil
}

// Checkpoint is the durable store the scheduler resumes from and appends to.
type Checkpoint interface {
	RunID() string
	Get(key models.ItemKey) (checkpoint.Record, bool)
	Append(rec checkpoint.Record) error
}

// RunReport summarises a finished run.
type RunReport struct {
	RunID           string
	Status          models.RunStatus
	Total           int
	Skipped         int // resolved by an earlier run
	Done            int // resolved by this run
	Scored          int
	NoNews          int
	FetchFailed     int
	PartiallyScored int
	Pending         []models.WorkItem // never resolved, in enumeration order
	QuotaHit        bool
	Cancelled       bool
	FetchCalls      int64
	ScoreCalls      int64
	Err             error // set when Status is Failed
	StartedAt       time.Time
	FinishedAt      time.Time
}

// Scheduler runs WorkItems against a news source and a scorer.
type Scheduler struct {
	cfg     Config
	source  datasource.Source
	scorer  llm.Scorer
	retrier *retry.Retrier
	tracker *Tracker
	logger  *log.Logger

	fetchSem *semaphore.Weighted
	scoreSem *semaphore.Weighted

	quota      atomic.Bool
	pingQuota  atomic.Bool // source was rate limited at preflight
	fetchCalls atomic.Int64
	scoreCalls atomic.Int64
}

// Option configures a Scheduler.
type Option func(*schedulerOptions)

type schedulerOptions struct {
	logger  *log.Logger
	tracker *Tracker
	sleeper retry.Sleeper
}

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(o *schedulerOptions) { o.logger = l }
}

// WithTracker publishes item state to t.
func WithTracker(t *Tracker) Option {
	return func(o *schedulerOptions) { o.tracker = t }
}

// WithSleeper replaces the retry backoff wait.
func WithSleeper(s retry.Sleeper) Option {
	return func(o *schedulerOptions) { o.sleeper = s }
}

// New creates a Scheduler.
func New(cfg Config, source datasource.Source, scorer llm.Scorer, opts ...Option) (*Scheduler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if source == nil || scorer == nil {
		return nil, errors.New("pipeline: source and scorer are required")
	}

	o := schedulerOptions{logger: &log.DefaultLogger}
	for _, opt := range opts {
		opt(&o)
	}
	if o.tracker == nil {
		o.tracker = NewTracker()
	}
	ropts := []retry.Option{retry.WithLogger(o.logger)}
	if o.sleeper != nil {
		ropts = append(ropts, retry.WithSleeper(o.sleeper))
	}

	return &Scheduler{
		cfg:      cfg,
		source:   source,
		scorer:   scorer,
		retrier:  retry.New(cfg.Retry, ropts...),
		tracker:  o.tracker,
		logger:   o.logger,
		fetchSem: semaphore.NewWeighted(int64(cfg.FetchConcurrency)),
		scoreSem: semaphore.NewWeighted(int64(cfg.ScoreConcurrency)),
	}, nil
}

// Tracker returns the tracker the scheduler publishes to.
func (s *Scheduler) Tracker() *Tracker { return s.tracker }

// Preflight pings both adapters. Any failure is wrapped in faults.ErrSetup,
// except a rate-limited news source: that is recorded as a quota hit and
// the next Run dispatches nothing, leaving every item pending.
func (s *Scheduler) Preflight(ctx context.Context) error {
	s.pingQuota.Store(false)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := s.source.Ping(gctx)
		switch {
		case err == nil:
			return nil
		case !errors.Is(err, faults.ErrSetup) && faults.Classify(err) == faults.Quota:
			s.pingQuota.Store(true)
			s.logger.Warn().Str("source", s.source.Name()).Err(err).
				Msg("news source quota exhausted at preflight; no fetches this run")
			return nil
		default:
			return setupErr("news source "+s.source.Name(), err)
		}
	})
	g.Go(func() error {
		if err := s.scorer.Ping(gctx); err != nil {
			return setupErr("scorer "+s.scorer.Name(), err)
		}
		return nil
	})
	return g.Wait()
}

func setupErr(what string, err error) error {
	if errors.Is(err, faults.ErrSetup) {
		return fmt.Errorf("%s: %w", what, err)
	}
	return fmt.Errorf("%w: %s: %w", faults.ErrSetup, what, err)
}

// errFetchHalted stops fetch attempts once the source reported a quota error.
var errFetchHalted = fmt.Errorf("%w: fetching halted after quota error", faults.ErrRateLimited)

// Run processes items, skipping those already in cp. Cancelling ctx stops
// dispatch; items already dispatched finish (bounded by the per-call
// timeouts) and are checkpointed before Run returns. The returned error is
// non-nil only for a Failed run. A Scheduler runs one Run at a time.
func (s *Scheduler) Run(ctx context.Context, items []models.WorkItem, cp Checkpoint) (*RunReport, error) {
	s.quota.Store(s.pingQuota.Load())
	s.fetchCalls.Store(0)
	s.scoreCalls.Store(0)

	items = uniqueItems(items)
	rep := &RunReport{RunID: cp.RunID(), Total: len(items), StartedAt: time.Now()}

	resumed := make(map[models.ItemKey]models.Outcome)
	todo := make([]models.WorkItem, 0, len(items))
	for _, it := range items {
		if rec, ok := cp.Get(it.Key()); ok {
			resumed[it.Key()] = rec.Outcome
			continue
		}
		todo = append(todo, it)
	}
	rep.Skipped = len(resumed)
	s.tracker.start(rep.RunID, items, resumed)
	if s.quota.Load() {
		s.tracker.quotaHit()
	}

	s.logger.Info().Str("run_id", rep.RunID).Int("total", rep.Total).Int("resumed", rep.Skipped).
		Int("todo", len(todo)).Int("workers", s.cfg.Workers).Msg("pipeline run started")

	// done serialises completions: one checkpoint append and its tracker
	// and count updates at a time, whatever the Checkpoint implementation.
	var (
		done   sync.Mutex
		counts = make(map[models.Outcome]int)
	)
	complete := func(it models.WorkItem, rec checkpoint.Record) error {
		done.Lock()
		defer done.Unlock()
		if err := cp.Append(rec); err != nil {
			s.tracker.set(it.Key(), models.StatePending, "", 0, err.Error())
			return fmt.Errorf("checkpoint %s: %w", it.Key(), err)
		}
		s.tracker.set(it.Key(), models.StateDone, rec.Outcome, len(rec.News), rec.FetchError)
		counts[rec.Outcome]++
		return nil
	}

	jobs := make(chan models.WorkItem)
	g, gctx := errgroup.WithContext(ctx)

	// dispatcher
	g.Go(func() error {
		defer close(jobs)
		for _, it := range todo {
			if s.quota.Load() || gctx.Err() != nil {
				return nil
			}
			select {
			case <-gctx.Done():
				return nil
			case jobs <- it:
			}
		}
		return nil
	})

	// In-flight work runs on a context that ignores cancellation so calls
	// already started can finish and be checkpointed.
	work := context.WithoutCancel(ctx)
	for w := 0; w < s.cfg.Workers; w++ {
		g.Go(func() error {
			for it := range jobs {
				// The dispatcher's select may hand out one more item after
				// cancellation; it stays pending.
				if gctx.Err() != nil {
					continue
				}
				rec, resolved := s.process(work, it)
				if !resolved {
					s.tracker.set(it.Key(), models.StatePending, "", 0, "")
					continue
				}
				if err := complete(it, rec); err != nil {
					return err
				}
			}
			return nil
		})
	}

	runErr := g.Wait()

	rep.Scored = counts[models.OutcomeScored]
	rep.NoNews = counts[models.OutcomeNoNews]
	rep.FetchFailed = counts[models.OutcomeFetchFailed]
	rep.PartiallyScored = counts[models.OutcomePartiallyScored]
	rep.Done = rep.Scored + rep.NoNews + rep.FetchFailed + rep.PartiallyScored
	rep.QuotaHit = s.quota.Load()
	if qr, ok := s.source.(datasource.QuotaReporter); ok && qr.QuotaHit() {
		rep.QuotaHit = true
		s.tracker.quotaHit()
	}
	rep.Cancelled = ctx.Err() != nil
	rep.FetchCalls = s.fetchCalls.Load()
	rep.ScoreCalls = s.scoreCalls.Load()
	rep.FinishedAt = time.Now()
	if rep.Cancelled {
		s.tracker.cancelled()
	}

	pendingKeys := make(map[models.ItemKey]bool)
	for _, k := range s.tracker.Pending() {
		pendingKeys[k] = true
	}
	for _, it := range items {
		if pendingKeys[it.Key()] {
			rep.Pending = append(rep.Pending, it)
		}
	}

	switch {
	case runErr != nil:
		rep.Status = models.RunFailed
		rep.Err = runErr
	case len(rep.Pending) > 0:
		rep.Status = models.RunPartial
	default:
		rep.Status = models.RunComplete
	}
	s.tracker.finish(rep.Status)

	ev := s.logger.Info()
	if rep.Status != models.RunComplete {
		ev = s.logger.Warn()
	}
	ev.Str("run_id", rep.RunID).Str("status", string(rep.Status)).Int("done", rep.Done).
		Int("skipped", rep.Skipped).Int("pending", len(rep.Pending)).Int("fetch_failed", rep.FetchFailed).
		Int("partially_scored", rep.PartiallyScored).Bool("quota_hit", rep.QuotaHit).
		Bool("cancelled", rep.Cancelled).Int64("fetch_calls", rep.FetchCalls).Int64("score_calls", rep.ScoreCalls).
		Dur("elapsed", rep.FinishedAt.Sub(rep.StartedAt)).Err(runErr).Msg("pipeline run finished")

	for _, it := range rep.Pending {
		s.logger.Info().Str("key", string(it.Key())).Msg("not attempted")
	}

	if runErr != nil {
		return rep, runErr
	}
	return rep, nil
}

// process resolves one item. done is false when the item must stay
// Pending because fetching was halted by a quota error.
func (s *Scheduler) process(ctx context.Context, it models.WorkItem) (checkpoint.Record, bool) {
	key := it.Key()
	rec := checkpoint.NewRecord(it)

	if s.quota.Load() {
		return rec, false
	}
	s.tracker.set(key, models.StateFetching, "", 0, "")

	news, err := s.fetch(ctx, it)
	if err != nil {
		switch faults.Classify(err) {
		case faults.Quota:
			if !errors.Is(err, errFetchHalted) && s.quota.CompareAndSwap(false, true) {
				s.tracker.quotaHit()
				s.logger.Warn().Str("key", string(key)).Err(err).
					Msg("news source quota exhausted; no further fetches this run")
			}
			return rec, false
		default:
			s.logger.Warn().Str("key", string(key)).Str("class", faults.Classify(err).String()).Err(err).
				Msg("fetch failed")
			rec.Outcome = models.OutcomeFetchFailed
			rec.FetchError = err.Error()
			return rec, true
		}
	}

	rec.News = news
	if len(news) == 0 {
		rec.Outcome = models.OutcomeNoNews
		s.logger.Debug().Str("key", string(key)).Msg("no news")
		return rec, true
	}

	s.tracker.set(key, models.StateScoring, "", len(news), "")
	rec.Results = s.scoreAll(ctx, it, news)

	rec.Outcome = models.OutcomeScored
	for _, r := range rec.Results {
		if !r.OK() {
			rec.Outcome = models.OutcomePartiallyScored
			break
		}
	}
	s.logger.Debug().Str("key", string(key)).Int("news", len(news)).Str("outcome", string(rec.Outcome)).
		Msg("item resolved")
	return rec, true
}

// fetch calls the source under the fetch semaphore with retries.
func (s *Scheduler) fetch(ctx context.Context, it models.WorkItem) ([]models.NewsItem, error) {
	if err := s.fetchSem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer s.fetchSem.Release(1)

	var news []models.NewsItem
	_, err := s.retrier.Do(ctx, "fetch "+it.String(), func(ctx context.Context) error {
		if s.quota.Load() {
			return errFetchHalted
		}
		cctx, cancel := withTimeout(ctx, s.cfg.FetchTimeout)
		defer cancel()
		s.fetchCalls.Add(1)
		n, err := s.source.Fetch(cctx, it)
		news = n
		return err
	})
	if err != nil {
		return nil, err
	}
	return news, nil
}

// scoreAll scores every article concurrently. It returns one result per
// article, in article order, once every call has resolved.
func (s *Scheduler) scoreAll(ctx context.Context, it models.WorkItem, news []models.NewsItem) []models.SentimentResult {
	results := make([]models.SentimentResult, len(news))
	var wg sync.WaitGroup
	for i, n := range news {
		wg.Add(1)
		go func(i int, n models.NewsItem) {
			defer wg.Done()
			results[i] = s.score(ctx, it, i, n)
		}(i, n)
	}
	wg.Wait()
	return results
}

func (s *Scheduler) score(ctx context.Context, it models.WorkItem, idx int, n models.NewsItem) models.SentimentResult {
	res := models.SentimentResult{NewsIndex: idx, Headline: n.Headline}

	if err := s.scoreSem.Acquire(ctx, 1); err != nil {
		res.Err = err.Error()
		return res
	}
	defer s.scoreSem.Release(1)

	var score float64
	_, err := s.retrier.Do(ctx, fmt.Sprintf("score %s#%d", it, idx), func(ctx context.Context) error {
		cctx, cancel := withTimeout(ctx, s.cfg.ScoreTimeout)
		defer cancel()
		s.scoreCalls.Add(1)
		v, err := s.scorer.Score(cctx, n.Text())
		score = v
		return err
	})
	if err != nil {
		s.logger.Warn().Str("key", string(it.Key())).Int("news_index", idx).
			Str("class", faults.Classify(err).String()).Err(err).Msg("scoring failed")
		res.Err = err.Error()
		return res
	}
	res.Score = score
	res.Label = models.LabelFor(score)
	return res
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

// uniqueItems drops repeated keys, keeping the first occurrence, so no
// WorkItem is ever dispatched twice.
func uniqueItems(items []models.WorkItem) []models.WorkItem {
	seen := make(map[models.ItemKey]bool, len(items))
	out := make([]models.WorkItem, 0, len(items))
	for _, it := range items {
		if seen[it.Key()] {
			continue
		}
		seen[it.Key()] = true
		out = append(out, it)
	}
	return out
}
