// Package retry runs a call with exponential backoff, retrying only the
// failures the fault taxonomy marks as transient.
package retry

import (
	"context"
	"math"
	"math/rand/v2"
	"time"

	"github.com/phuslu/log"

	"github.com/seenimoa/newsentiment/internal/faults"
)

// Policy is the retry configuration applied to every adapter call.
type Policy struct {
	MaxRetries int           // retries after the first attempt; 0 disables retrying
	BaseDelay  time.Duration // first backoff, doubled each retry
	MaxDelay   time.Duration // cap on a single backoff; 0 means uncapped
	Jitter     float64       // fraction of each delay randomised, 0..1
}

// DefaultPolicy matches the pipeline defaults: three retries starting at one second.
func DefaultPolicy() Policy {
	return Policy{MaxRetries: 3, BaseDelay: time.Second, MaxDelay: 30 * time.Second, Jitter: 0.2}
}

// Backoff returns the wait before retry number attempt (0-based), before jitter.
// A doubling that overflows saturates at MaxDelay, or at the largest
// Duration when uncapped.
func (p Policy) Backoff(attempt int) time.Duration {
	if p.BaseDelay <= 0 {
		return 0
	}
	if attempt < 0 {
		attempt = 0
	}
	if attempt > 62 {
		attempt = 62
	}
	d := p.BaseDelay << uint(attempt)
	if d <= 0 || d>>uint(attempt) != p.BaseDelay {
		d = time.Duration(math.MaxInt64)
	}
	if p.MaxDelay > 0 && d > p.MaxDelay {
		d = p.MaxDelay
	}
	return d
}

// Sleeper waits for d or until ctx is done. Tests substitute an instant one.
type Sleeper func(ctx context.Context, d time.Duration) error

// SleepContext is the real Sleeper.
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Retrier applies a Policy.
type Retrier struct {
	policy Policy
	sleep  Sleeper
	logger *log.Logger
	rand   func() float64
}

// Option configures a Retrier.
type Option func(*Retrier)

// WithSleeper replaces the backoff wait.
func WithSleeper(s Sleeper) Option {
	return func(r *Retrier) { r.sleep = s }
}

// WithLogger logs every retry at warn level.
func WithLogger(l *log.Logger) Option {
	return func(r *Retrier) { r.logger = l }
}

// New creates a Retrier.
func New(p Policy, opts ...Option) *Retrier {
	r := &Retrier{policy: p, sleep: SleepContext, rand: rand.Float64}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Policy returns the configured policy.
func (r *Retrier) Policy() Policy { return r.policy }

// Do calls fn until it succeeds, fails non-transiently, exhausts the
// policy or ctx is done. It returns the last error from fn together with
// the number of attempts made.
func (r *Retrier) Do(ctx context.Context, op string, fn func(ctx context.Context) error) (int, error) {
	var lastErr error
	for attempt := 0; attempt <= r.policy.MaxRetries; attempt++ {
		err := fn(ctx)
		if err == nil {
			return attempt + 1, nil
		}
		lastErr = err

		if !faults.Retryable(err) || ctx.Err() != nil || attempt == r.policy.MaxRetries {
			return attempt + 1, lastErr
		}

		wait := r.jittered(r.policy.Backoff(attempt))
		if r.logger != nil {
			r.logger.Warn().
				Str("op", op).
				Int("attempt", attempt+1).
				Int("max_retries", r.policy.MaxRetries).
				Int64("backoff_ms", wait.Milliseconds()).
				Err(err).
				Msg("retrying call")
		}
		if r.sleep(ctx, wait) != nil {
			return attempt + 1, lastErr
		}
	}
	return r.policy.MaxRetries + 1, lastErr
}

func (r *Retrier) jittered(d time.Duration) time.Duration {
	if r.policy.Jitter <= 0 || d <= 0 {
		return d
	}
	// spread uniformly over [d*(1-j), d*(1+j)]
	f := 1 + r.policy.Jitter*(2*r.rand()-1)
	j := float64(d) * f
	if j >= math.MaxInt64 {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(j)
}
