// Package llm scores the sentiment of news text. The Ollama scorer asks a
// local model for a number in [-1, 1]; the keyword scorer is a deterministic
// offline fallback used for dry runs.
package llm

import (
	"context"
	"fmt"
	"strings"
)

// Scorer names for configuration.
const (
	ProviderOllama  = "ollama"
	ProviderKeyword = "keyword"
)

// Scorer turns one news text into a sentiment score in [-1, 1].
// Errors wrap one of faults.ErrTimeout, ErrNetwork, ErrMalformedResponse or
// ErrInvalidQuery.
type Scorer interface {
	// Name returns the scorer's identifier (e.g. "ollama/gpt-oss:20b").
	Name() string

	// Score returns the sentiment of text.
	Score(ctx context.Context, text string) (float64, error)

	// Ping checks the backend is reachable and ready.
	Ping(ctx context.Context) error
}

// Options holds the settings shared by every scorer constructor.
type Options struct {
	Provider    string
	BaseURL     string
	Model       string
	Temperature float64
	TopP        float64
	MaxChars    int
}

// New builds the scorer named by opts.Provider.
func New(opts Options, ollamaOpts ...OllamaOption) (Scorer, error) {
	switch strings.ToLower(opts.Provider) {
	case ProviderOllama, "":
		all := []OllamaOption{
			WithOllamaModel(opts.Model),
			WithOllamaSampling(opts.Temperature, opts.TopP),
			WithOllamaMaxChars(opts.MaxChars),
		}
		return NewOllamaScorer(opts.BaseURL, append(all, ollamaOpts...)...)
	case ProviderKeyword:
		return NewKeywordScorer(), nil
	default:
		return nil, fmt.Errorf("llm: unknown scorer provider %q", opts.Provider)
	}
}

// clamp limits a score to [-1, 1].
func clamp(v float64) float64 {
	switch {
	case v < -1:
		return -1
	case v > 1:
		return 1
	}
	return v
}

// truncate cuts text to at most max runes.
func truncate(text string, max int) string {
	if max <= 0 {
		return text
	}
	r := []rune(text)
	if len(r) <= max {
		return text
	}
	return string(r[:max])
}
