package datasource

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/phuslu/log"
	"golang.org/x/sync/errgroup"

	"github.com/seenimoa/newsentiment/internal/faults"
	"github.com/seenimoa/newsentiment/pkg/models"
)

// QuotaReporter is implemented by sources that absorb a quota error from
// one of their providers and keep serving from the others.
type QuotaReporter interface {
	QuotaHit() bool
}

// Multi fetches from several sources concurrently and merges the results.
// A failing source is tolerated while at least one other succeeds. A source
// that reports a quota error is never called again.
type Multi struct {
	sources []Source
	halted  []atomic.Bool
	logger  *log.Logger
}

// NewMulti combines sources; result order follows source order.
func NewMulti(logger *log.Logger, sources ...Source) *Multi {
	if logger == nil {
		logger = &log.DefaultLogger
	}
	return &Multi{sources: sources, halted: make([]atomic.Bool, len(sources)), logger: logger}
}

// Name lists the combined sources.
func (m *Multi) Name() string {
	names := make([]string, len(m.sources))
	for i, s := range m.sources {
		names[i] = s.Name()
	}
	return strings.Join(names, "+")
}

// QuotaHit reports whether any source has been halted by a quota error.
func (m *Multi) QuotaHit() bool {
	for i := range m.halted {
		if m.halted[i].Load() {
			return true
		}
	}
	return false
}

// halt stops all further calls to source i, logging the first time only.
func (m *Multi) halt(i int, err error) {
	if !m.halted[i].CompareAndSwap(false, true) {
		return
	}
	m.logger.Warn().Str("source", m.sources[i].Name()).Err(err).
		Msg("news provider quota exhausted; continuing with the remaining providers")
}

func (m *Multi) active() int {
	n := 0
	for i := range m.halted {
		if !m.halted[i].Load() {
			n++
		}
	}
	return n
}

// Fetch queries every active source. When all of them fail the joined
// error is returned. It carries faults.ErrRateLimited only once no source
// is left to call.
func (m *Multi) Fetch(ctx context.Context, item models.WorkItem) ([]models.NewsItem, error) {
	if m.active() == 0 {
		return nil, fmt.Errorf("%w: every provider of %s is halted", faults.ErrRateLimited, m.Name())
	}

	results := make([][]models.NewsItem, len(m.sources))
	failed := make([]error, len(m.sources))
	var mu sync.Mutex
	calls := 0

	g, gctx := errgroup.WithContext(ctx)
	for i, src := range m.sources {
		if m.halted[i].Load() {
			continue
		}
		calls++
		g.Go(func() error {
			news, err := src.Fetch(gctx, item)
			if err != nil {
				if faults.Classify(err) == faults.Quota {
					m.halt(i, err)
				}
				mu.Lock()
				failed[i] = fmt.Errorf("%s: %w", src.Name(), err)
				mu.Unlock()
				return nil // non-fatal
			}
			results[i] = news
			return nil
		})
	}
	_ = g.Wait()

	var errs, live []error
	for i, err := range failed {
		if err == nil {
			continue
		}
		errs = append(errs, err)
		if !m.halted[i].Load() {
			live = append(live, err)
		}
	}
	if len(errs) == calls {
		if m.active() > 0 {
			return nil, errors.Join(live...)
		}
		return nil, errors.Join(errs...)
	}

	var merged []models.NewsItem
	for _, r := range results {
		merged = append(merged, r...)
	}
	return dedupe(merged), nil
}

// Ping requires every source to be usable. A rate-limited source is halted
// rather than failing the check, unless no other source is left.
func (m *Multi) Ping(ctx context.Context) error {
	var setup, quota []error
	for i, s := range m.sources {
		err := s.Ping(ctx)
		switch {
		case err == nil:
		case faults.Classify(err) == faults.Quota:
			m.halt(i, err)
			quota = append(quota, fmt.Errorf("%s: %w", s.Name(), err))
		default:
			setup = append(setup, fmt.Errorf("%s: %w", s.Name(), err))
		}
	}
	if len(setup) > 0 {
		return errors.Join(setup...)
	}
	if m.active() == 0 {
		return errors.Join(quota...)
	}
	return nil
}
