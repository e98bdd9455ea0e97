package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/phuslu/log"

	"github.com/seenimoa/newsentiment/internal/faults"
)

// DefaultOllamaURL is where a local Ollama server listens.
const DefaultOllamaURL = "http://localhost:11434"

// DefaultOllamaModel is the model the scorer asks when none is configured.
const DefaultOllamaModel = "gpt-oss:20b"

// OllamaScorer scores text with a local model via Ollama's /api/generate.
type OllamaScorer struct {
	baseURL     string
	model       string
	temperature float64
	topP        float64
	maxChars    int
	client      *http.Client
	logger      *log.Logger
}

// OllamaOption configures the Ollama scorer.
type OllamaOption func(*OllamaScorer)

// WithOllamaModel sets the model. Empty keeps the default.
func WithOllamaModel(model string) OllamaOption {
	return func(s *OllamaScorer) {
		if model != "" {
			s.model = model
		}
	}
}

// WithOllamaSampling sets temperature and top_p. Non-positive values keep
// the defaults.
func WithOllamaSampling(temperature, topP float64) OllamaOption {
	return func(s *OllamaScorer) {
		if temperature > 0 {
			s.temperature = temperature
		}
		if topP > 0 {
			s.topP = topP
		}
	}
}

// WithOllamaMaxChars sets how much of each text is sent to the model.
func WithOllamaMaxChars(n int) OllamaOption {
	return func(s *OllamaScorer) {
		if n > 0 {
			s.maxChars = n
		}
	}
}

// WithOllamaHTTPClient sets a custom HTTP client.
func WithOllamaHTTPClient(c *http.Client) OllamaOption {
	return func(s *OllamaScorer) { s.client = c }
}

// WithOllamaLogger sets the logger used for per-call debug output.
func WithOllamaLogger(l *log.Logger) OllamaOption {
	return func(s *OllamaScorer) { s.logger = l }
}

// NewOllamaScorer creates a scorer talking to the Ollama server at baseURL.
func NewOllamaScorer(baseURL string, opts ...OllamaOption) (*OllamaScorer, error) {
	if baseURL == "" {
		baseURL = DefaultOllamaURL
	}
	s := &OllamaScorer{
		baseURL:     strings.TrimRight(baseURL, "/"),
		model:       DefaultOllamaModel,
		temperature: 0.1,
		topP:        0.9,
		maxChars:    2000,
		client:      &http.Client{Timeout: 60 * time.Second},
		logger:      &log.DefaultLogger,
	}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

func (s *OllamaScorer) Name() string { return ProviderOllama + "/" + s.model }

// Model returns the configured model name.
func (s *OllamaScorer) Model() string { return s.model }

// Score asks the model for a sentiment score. Empty text scores 0 without a
// call.
func (s *OllamaScorer) Score(ctx context.Context, text string) (float64, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return 0, nil
	}

	body, err := json.Marshal(ollamaGenerateRequest{
		Model:  s.model,
		Prompt: buildPrompt(truncate(text, s.maxChars)),
		Stream: false,
		Options: &ollamaOptions{
			Temperature: s.temperature,
			TopP:        s.topP,
		},
	})
	if err != nil {
		return 0, fmt.Errorf("ollama: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("%w: ollama: create request: %v", faults.ErrInvalidQuery, err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := s.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("ollama: %w", faults.FromTransport(err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return 0, fmt.Errorf("ollama: %w", &faults.HTTPError{
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       strings.TrimSpace(string(bodyBytes)),
		})
	}

	var raw ollamaGenerateResponse
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return 0, fmt.Errorf("%w: ollama: decode response: %v", faults.ErrMalformedResponse, err)
	}
	if raw.Error != "" {
		return 0, fmt.Errorf("%w: ollama: %s", faults.ErrInvalidQuery, raw.Error)
	}

	score, ok := ExtractScore(raw.Response)
	if !ok {
		return 0, fmt.Errorf("%w: ollama: no score in %q", faults.ErrMalformedResponse, truncate(raw.Response, 80))
	}

	s.logger.Debug().Str("model", s.model).Dur("latency", time.Since(start)).
		Str("answer", truncate(strings.TrimSpace(raw.Response), 40)).Float64("score", score).Msg("scored")
	return score, nil
}

// Ping lists the installed models and checks the configured one is present.
func (s *OllamaScorer) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/api/tags", nil)
	if err != nil {
		return fmt.Errorf("%w: ollama: %v", faults.ErrSetup, err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: ollama unreachable at %s: %v", faults.ErrSetup, s.baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: ollama: HTTP %d from /api/tags", faults.ErrSetup, resp.StatusCode)
	}

	var tags ollamaTagsResponse
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return fmt.Errorf("%w: ollama: decode /api/tags: %v", faults.ErrSetup, err)
	}
	for _, m := range tags.Models {
		if m.Name == s.model || m.Name == s.model+":latest" {
			return nil
		}
	}
	names := make([]string, 0, len(tags.Models))
	for _, m := range tags.Models {
		names = append(names, m.Name)
	}
	return fmt.Errorf("%w: ollama model %q not installed (have: %s); run `ollama pull %s`",
		faults.ErrSetup, s.model, strings.Join(names, ", "), s.model)
}

// ── Prompt & score extraction ──

func buildPrompt(text string) string {
	return `Analyze the sentiment of the following financial news text and provide a sentiment score.

Instructions:
- Return only a numerical score between -1.0 and 1.0
- -1.0 means very negative (bad for stock price)
- 0.0 means neutral
- 1.0 means very positive (good for stock price)
- Focus on financial implications for the company
- Consider earnings, revenue, partnerships, product launches, legal issues, etc.

Text to analyze:
` + text + `

Sentiment Score:`
}

// Number patterns tried in order: a score-shaped number, a bare -1/0/1 and
// finally any number.
var scorePatterns = []*regexp.Regexp{
	regexp.MustCompile(`-?[01]\.?\d*`),
	regexp.MustCompile(`-?[01]`),
	regexp.MustCompile(`-?\d+\.?\d*`),
}

// Word fallbacks for answers without a number. More specific phrases first.
var scoreWords = []struct {
	re    *regexp.Regexp
	score float64
}{
	{regexp.MustCompile(`\b(very|extremely) positive\b|\bbullish\b`), 1.0},
	{regexp.MustCompile(`\b(very|extremely) negative\b|\bbearish\b`), -1.0},
	{regexp.MustCompile(`\b(positive|good|up)\b`), 0.5},
	{regexp.MustCompile(`\b(negative|bad|down)\b`), -0.5},
	{regexp.MustCompile(`\b(neutral|mixed|unchanged)\b`), 0},
}

// ExtractScore pulls a score out of a model answer, clamped to [-1, 1].
// It reports false when the answer holds neither a number nor a sentiment
// word.
func ExtractScore(answer string) (float64, bool) {
	for _, re := range scorePatterns {
		for _, m := range re.FindAllString(answer, -1) {
			v, err := strconv.ParseFloat(strings.TrimSuffix(m, "."), 64)
			if err != nil {
				continue
			}
			return clamp(v), true
		}
	}
	lower := strings.ToLower(answer)
	for _, w := range scoreWords {
		if w.re.MatchString(lower) {
			return w.score, true
		}
	}
	return 0, false
}

// ── Internal Types ──

type ollamaGenerateRequest struct {
	Model   string         `json:"model"`
	Prompt  string         `json:"prompt"`
	Stream  bool           `json:"stream"`
	Options *ollamaOptions `json:"options,omitempty"`
}

type ollamaOptions struct {
	Temperature float64 `json:"temperature,omitempty"`
	TopP        float64 `json:"top_p,omitempty"`
}

type ollamaGenerateResponse struct {
	Model    string `json:"model"`
	Response string `json:"response"`
	Done     bool   `json:"done"`
	Error    string `json:"error,omitempty"`
}

type ollamaTagsResponse struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}
