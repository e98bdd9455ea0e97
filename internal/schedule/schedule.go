// Package schedule runs the pipeline once per business day on a cron
// schedule, for the watch command.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/phuslu/log"
	"github.com/robfig/cron/v3"

	"github.com/seenimoa/newsentiment/pkg/utils"
)

// Job processes one target date (midnight UTC).
type Job func(ctx context.Context, day time.Time) error

// Calendar reports whether a date is a business day.
type Calendar interface {
	IsBusinessDay(t time.Time) bool
}

// Watcher fires Job for the current date in its timezone on every cron
// tick that lands on a business day. A tick that arrives while the previous
// job is still running is skipped.
type Watcher struct {
	cron     *cron.Cron
	entry    cron.EntryID
	location *time.Location
	cal      Calendar
	job      Job
	logger   *log.Logger
	ctx      context.Context
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(w *Watcher) { w.logger = l }
}

// New validates spec (standard five-field cron syntax) and timezone and
// prepares a watcher. Nothing runs until Run.
func New(spec, timezone string, cal Calendar, job Job, opts ...Option) (*Watcher, error) {
	if job == nil {
		return nil, errors.New("schedule: job must not be nil")
	}
	if cal == nil {
		return nil, errors.New("schedule: calendar must not be nil")
	}
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("schedule: load timezone: %w", err)
	}
	if _, err := cron.ParseStandard(spec); err != nil {
		return nil, fmt.Errorf("schedule: parse %q: %w", spec, err)
	}

	w := &Watcher{location: loc, cal: cal, job: job, logger: &log.DefaultLogger, ctx: context.Background()}
	for _, o := range opts {
		o(w)
	}

	cl := cronLogger{w.logger}
	w.cron = cron.New(
		cron.WithLocation(loc),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	w.entry, err = w.cron.AddFunc(spec, func() { w.Fire(w.ctx, time.Now()) })
	if err != nil {
		return nil, fmt.Errorf("schedule: add cron: %w", err)
	}
	return w, nil
}

// Location returns the timezone ticks are evaluated in.
func (w *Watcher) Location() *time.Location { return w.location }

// Next returns the time of the next tick, or the zero time before Run.
func (w *Watcher) Next() time.Time {
	return w.cron.Entry(w.entry).Next
}

// Run starts the schedule and blocks until ctx is done. It waits for a
// running job to return before returning itself.
func (w *Watcher) Run(ctx context.Context) error {
	w.ctx = ctx
	w.cron.Start()
	w.logger.Info().
		Str("timezone", w.location.String()).
		Time("next", w.Next()).
		Msg("watch started")

	<-ctx.Done()
	stopped := w.cron.Stop()
	<-stopped.Done()
	w.logger.Info().Msg("watch stopped")
	return nil
}

// Fire runs the job for the date of at in the watcher's timezone, unless
// that date is not a business day. It reports whether the job ran.
func (w *Watcher) Fire(ctx context.Context, at time.Time) bool {
	day := utils.Midnight(at.In(w.location))
	if !w.cal.IsBusinessDay(day) {
		w.logger.Info().Str("date", utils.FormatDate(day)).Msg("not a business day, skipping")
		return false
	}

	start := time.Now()
	w.logger.Info().Str("date", utils.FormatDate(day)).Msg("scheduled run starting")
	if err := w.job(ctx, day); err != nil {
		w.logger.Error().Err(err).Str("date", utils.FormatDate(day)).Dur("elapsed", time.Since(start)).Msg("scheduled run failed")
		return true
	}
	w.logger.Info().Str("date", utils.FormatDate(day)).Dur("elapsed", time.Since(start)).Time("next", w.Next()).Msg("scheduled run finished")
	return true
}

// cronLogger adapts the structured logger to cron.Logger.
type cronLogger struct {
	l *log.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.Debug().KeysAndValues(keysAndValues...).Msg("cron: " + msg)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.l.Error().Err(err).KeysAndValues(keysAndValues...).Msg("cron: " + msg)
}
