// Package faults defines the error taxonomy shared by the news source, the
// sentiment scorer and the pipeline scheduler.
package faults

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// Sentinel errors. Adapters wrap one of these so the scheduler can decide
// whether to retry, stop fetching or record a permanent failure.
var (
	ErrInvalidRange      = errors.New("invalid date range")
	ErrRateLimited       = errors.New("rate limited")
	ErrNetwork           = errors.New("network error")
	ErrTimeout           = errors.New("timeout")
	ErrInvalidQuery      = errors.New("invalid query")
	ErrMalformedResponse = errors.New("malformed response")
	ErrSetup             = errors.New("setup failed")
	ErrCheckpoint        = errors.New("checkpoint write failed")
)

// Class is the retry class of a failure.
type Class int

const (
	// Transient failures are retried with backoff.
	Transient Class = iota
	// Quota failures stop all further calls to the same source.
	Quota
	// Permanent failures are recorded and never retried.
	Permanent
	// Fatal failures abort the run.
	Fatal
)

func (c Class) String() string {
	switch c {
	case Transient:
		return "transient"
	case Quota:
		return "quota"
	case Permanent:
		return "permanent"
	case Fatal:
		return "fatal"
	}
	return fmt.Sprintf("Class(%d)", int(c))
}

// Classify maps an error to its class. ErrRateLimited wins over any other
// error joined with it; unknown errors are treated as permanent.
func Classify(err error) Class {
	switch {
	case err == nil:
		return Permanent
	case errors.Is(err, ErrRateLimited):
		return Quota
	case errors.Is(err, ErrSetup), errors.Is(err, ErrCheckpoint):
		return Fatal
	case errors.Is(err, ErrInvalidQuery), errors.Is(err, ErrMalformedResponse), errors.Is(err, ErrInvalidRange):
		return Permanent
	case errors.Is(err, ErrTimeout), errors.Is(err, ErrNetwork), errors.Is(err, context.DeadlineExceeded):
		return Transient
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return Transient
	}
	return Permanent
}

// Retryable reports whether err is worth another attempt.
func Retryable(err error) bool {
	return err != nil && Classify(err) == Transient
}

// HTTPError wraps an unexpected HTTP status with the start of the body.
type HTTPError struct {
	StatusCode int
	Status     string
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d %s: %s", e.StatusCode, e.Status, e.Body)
}

// Unwrap maps the status code onto the taxonomy: 429 is a quota error,
// other 4xx are invalid queries and 5xx are network errors.
func (e *HTTPError) Unwrap() error {
	switch {
	case e.StatusCode == http.StatusTooManyRequests:
		return ErrRateLimited
	case e.StatusCode == http.StatusRequestTimeout, e.StatusCode == http.StatusGatewayTimeout:
		return ErrTimeout
	case e.StatusCode >= 500:
		return ErrNetwork
	default:
		return ErrInvalidQuery
	}
}

// FromTransport wraps an error returned by http.Client.Do. Deadline errors
// become ErrTimeout and everything else ErrNetwork. Cancellation of the
// caller's context is returned unchanged.
func FromTransport(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	var ne net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &ne) && ne.Timeout()) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return fmt.Errorf("%w: %v", ErrNetwork, err)
}
