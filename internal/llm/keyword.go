package llm

import (
	"context"
	"strings"
)

// ------------------------------------------------------------------
// Keyword-based sentiment scorer (offline, no model needed).
// Used for dry runs and when Ollama is not available.
// ------------------------------------------------------------------

type keyword struct {
	term   string
	weight float64
}

// bullish / bearish dictionaries (lowercase). Slices keep summation order
// fixed so repeated runs produce identical scores.
var bullishWords = []keyword{
	{"bullish", 0.7}, {"rally", 0.6}, {"surge", 0.7}, {"upbeat", 0.5},
	{"positive", 0.4}, {"growth", 0.4}, {"upgrade", 0.6}, {"outperform", 0.6},
	{"buy", 0.5}, {"strong", 0.4}, {"recovery", 0.5}, {"breakout", 0.6},
	{"record high", 0.7}, {"all-time high", 0.7}, {"beat", 0.5},
	{"exceeds", 0.5}, {"beats estimate", 0.6}, {"expansion", 0.4},
	{"profit", 0.3}, {"dividend", 0.4}, {"partnership", 0.4}, {"launch", 0.3},
}

var bearishWords = []keyword{
	{"bearish", 0.7}, {"crash", 0.8}, {"plunge", 0.7}, {"slump", 0.6},
	{"negative", 0.4}, {"downgrade", 0.6}, {"underperform", 0.6},
	{"sell", 0.5}, {"weak", 0.4}, {"decline", 0.5}, {"loss", 0.4},
	{"selloff", 0.7}, {"fall", 0.4}, {"correction", 0.5},
	{"default", 0.7}, {"fraud", 0.8}, {"scam", 0.8}, {"investigation", 0.5},
	{"cut", 0.3}, {"miss", 0.5}, {"warning", 0.5}, {"concern", 0.3},
	{"lawsuit", 0.5}, {"recall", 0.5},
}

// KeywordScorer scores text by weighted keyword matches.
type KeywordScorer struct{}

// NewKeywordScorer returns the offline scorer.
func NewKeywordScorer() *KeywordScorer { return &KeywordScorer{} }

func (*KeywordScorer) Name() string { return ProviderKeyword }

// Ping always succeeds.
func (*KeywordScorer) Ping(context.Context) error { return nil }

// Score returns (bull - bear) / (bull + bear), or 0 when nothing matches.
func (*KeywordScorer) Score(ctx context.Context, text string) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return ScoreHeadline(text), nil
}

// ScoreHeadline returns a sentiment score for a single text.
// Score ranges from -1.0 (very bearish) to +1.0 (very bullish).
func ScoreHeadline(text string) float64 {
	lower := strings.ToLower(text)

	bull := 0.0
	for _, k := range bullishWords {
		if strings.Contains(lower, k.term) {
			bull += k.weight
		}
	}
	bear := 0.0
	for _, k := range bearishWords {
		if strings.Contains(lower, k.term) {
			bear += k.weight
		}
	}

	total := bull + bear
	if total == 0 {
		return 0 // no signal
	}
	return clamp((bull - bear) / total)
}
