package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/seenimoa/newsentiment/internal/faults"
)

// ════════════════════════════════════════════════════════════════════
// ollama.go: score extraction
// ════════════════════════════════════════════════════════════════════

func TestExtractScore(t *testing.T) {
	tests := []struct {
		answer string
		want   float64
		ok     bool
	}{
		{"0.75", 0.75, true},
		{"Sentiment Score: -0.6", -0.6, true},
		{"1.", 1, true},
		{"-1", -1, true},
		{"10", 1, true},
		{"The score is 5", 1, true},
		{"roughly -3.5 overall", -1, true},
		{"This is bullish news", 1, true},
		{"Very negative for the stock", -1, true},
		{"mostly negative", -0.5, true},
		{"looks good", 0.5, true},
		{"mixed signals", 0, true},
		{"no idea", 0, false},
		{"", 0, false},
	}
	for _, tt := range tests {
		got, ok := ExtractScore(tt.answer)
		if ok != tt.ok || got != tt.want {
			t.Errorf("ExtractScore(%q) = (%v, %v), want (%v, %v)", tt.answer, got, ok, tt.want, tt.ok)
		}
	}
}

func TestExtractScoreIgnoresSubwords(t *testing.T) {
	// "update" must not read as "up"
	if _, ok := ExtractScore("pending update"); ok {
		t.Error("expected no score for 'pending update'")
	}
}

// ════════════════════════════════════════════════════════════════════
// ollama.go: scorer with mock server
// ════════════════════════════════════════════════════════════════════

func TestOllamaScorerNew(t *testing.T) {
	s, err := NewOllamaScorer("", WithOllamaModel("llama3.1:8b"))
	if err != nil {
		t.Fatal(err)
	}
	if s.baseURL != DefaultOllamaURL || s.Model() != "llama3.1:8b" {
		t.Fatalf("unexpected config: %+v", s)
	}
	if s.Name() != "ollama/llama3.1:8b" {
		t.Errorf("Name() = %q", s.Name())
	}
	if s.temperature != 0.1 || s.topP != 0.9 || s.maxChars != 2000 {
		t.Errorf("unexpected sampling defaults: %+v", s)
	}
}

func TestOllamaScore(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" || r.Method != http.MethodPost {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		var req ollamaGenerateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.Model != "gpt-oss:20b" {
			t.Errorf("model: got %q", req.Model)
		}
		if req.Stream {
			t.Error("stream should be false")
		}
		if req.Options == nil || req.Options.Temperature != 0.1 || req.Options.TopP != 0.9 {
			t.Errorf("options: got %+v", req.Options)
		}
		if !strings.Contains(req.Prompt, "Apple reports record earnings") {
			t.Errorf("prompt missing text: %q", req.Prompt)
		}
		json.NewEncoder(w).Encode(ollamaGenerateResponse{Model: req.Model, Response: " 0.8\n", Done: true})
	}))
	defer server.Close()

	s, _ := NewOllamaScorer(server.URL)
	got, err := s.Score(context.Background(), "Apple reports record earnings")
	if err != nil {
		t.Fatal(err)
	}
	if got != 0.8 {
		t.Errorf("Score = %v, want 0.8", got)
	}
}

func TestOllamaScoreTruncatesText(t *testing.T) {
	var prompt string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req ollamaGenerateRequest
		json.NewDecoder(r.Body).Decode(&req)
		prompt = req.Prompt
		w.Write([]byte(`{"response":"0","done":true}`))
	}))
	defer server.Close()

	s, _ := NewOllamaScorer(server.URL, WithOllamaMaxChars(10))
	if _, err := s.Score(context.Background(), "abcdefghijKLMNOPQRSTUVWXYZ"); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(prompt, "Text to analyze:\nabcdefghij\n\nSentiment Score:") {
		t.Errorf("text not truncated to 10 chars: %q", prompt)
	}
}

func TestOllamaScoreEmptyTextSkipsCall(t *testing.T) {
	called := false
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer server.Close()

	s, _ := NewOllamaScorer(server.URL)
	got, err := s.Score(context.Background(), "   ")
	if err != nil || got != 0 {
		t.Fatalf("Score(blank) = (%v, %v), want (0, nil)", got, err)
	}
	if called {
		t.Error("blank text should not reach the server")
	}
}

func TestOllamaScoreErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{"server error", http.StatusInternalServerError, `oops`, faults.ErrNetwork},
		{"rate limited", http.StatusTooManyRequests, `slow down`, faults.ErrRateLimited},
		{"model missing", http.StatusNotFound, `{"error":"model not found"}`, faults.ErrInvalidQuery},
		{"bad json", http.StatusOK, `{not json`, faults.ErrMalformedResponse},
		{"no score", http.StatusOK, `{"response":"I cannot say","done":true}`, faults.ErrMalformedResponse},
		{"error field", http.StatusOK, `{"error":"context too long"}`, faults.ErrInvalidQuery},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			s, _ := NewOllamaScorer(server.URL)
			_, err := s.Score(context.Background(), "Some headline text")
			if !errors.Is(err, tt.want) {
				t.Fatalf("got %v, want %v", err, tt.want)
			}
		})
	}
}

func TestOllamaScoreTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.Write([]byte(`{"response":"0.1"}`))
	}))
	defer server.Close()

	s, _ := NewOllamaScorer(server.URL, WithOllamaHTTPClient(&http.Client{Timeout: 20 * time.Millisecond}))
	_, err := s.Score(context.Background(), "Some headline text")
	if !errors.Is(err, faults.ErrTimeout) {
		t.Fatalf("got %v, want ErrTimeout", err)
	}
	if faults.Classify(err) != faults.Transient {
		t.Errorf("timeout should classify as transient, got %s", faults.Classify(err))
	}
}

func TestOllamaPing(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/tags" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		w.Write([]byte(`{"models":[{"name":"gpt-oss:20b"},{"name":"llama3:latest"}]}`))
	}))
	defer server.Close()

	for _, model := range []string{"gpt-oss:20b", "llama3"} {
		s, _ := NewOllamaScorer(server.URL, WithOllamaModel(model))
		if err := s.Ping(context.Background()); err != nil {
			t.Errorf("Ping(%s) failed: %v", model, err)
		}
	}

	s, _ := NewOllamaScorer(server.URL, WithOllamaModel("mistral"))
	err := s.Ping(context.Background())
	if !errors.Is(err, faults.ErrSetup) {
		t.Fatalf("missing model: got %v, want ErrSetup", err)
	}
	if !strings.Contains(err.Error(), "ollama pull mistral") {
		t.Errorf("error should suggest pulling the model: %v", err)
	}
}

func TestOllamaPingUnreachable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	s, _ := NewOllamaScorer(url)
	if err := s.Ping(context.Background()); !errors.Is(err, faults.ErrSetup) {
		t.Fatalf("got %v, want ErrSetup", err)
	}
}

// ════════════════════════════════════════════════════════════════════
// keyword.go
// ════════════════════════════════════════════════════════════════════

func TestScoreHeadline(t *testing.T) {
	tests := []struct {
		text string
		sign int
	}{
		{"Apple stock surges to record high after earnings beat", 1},
		{"Tesla shares plunge amid fraud investigation", -1},
		{"Microsoft to hold annual shareholder meeting", 0},
	}
	for _, tt := range tests {
		got := ScoreHeadline(tt.text)
		switch {
		case tt.sign > 0 && got <= 0, tt.sign < 0 && got >= 0, tt.sign == 0 && got != 0:
			t.Errorf("ScoreHeadline(%q) = %v, want sign %d", tt.text, got, tt.sign)
		}
		if got < -1 || got > 1 {
			t.Errorf("ScoreHeadline(%q) = %v out of range", tt.text, got)
		}
	}
}

func TestKeywordScorerDeterministic(t *testing.T) {
	s := NewKeywordScorer()
	text := "Strong growth and dividend offset concern over lawsuit"
	first, err := s.Score(context.Background(), text)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 20; i++ {
		got, _ := s.Score(context.Background(), text)
		if got != first {
			t.Fatalf("run %d: got %v, want %v", i, got, first)
		}
	}
}

func TestKeywordScorerCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewKeywordScorer().Score(ctx, "rally"); !errors.Is(err, context.Canceled) {
		t.Fatalf("got %v, want context.Canceled", err)
	}
}

// ════════════════════════════════════════════════════════════════════
// scorer.go
// ════════════════════════════════════════════════════════════════════

func TestNew(t *testing.T) {
	s, err := New(Options{Provider: "keyword"})
	if err != nil || s.Name() != "keyword" {
		t.Fatalf("keyword: got (%v, %v)", s, err)
	}

	s, err = New(Options{Provider: "ollama", BaseURL: "http://gpu:11434/", Model: "qwen2.5:7b", MaxChars: 500})
	if err != nil {
		t.Fatal(err)
	}
	o, ok := s.(*OllamaScorer)
	if !ok {
		t.Fatalf("got %T, want *OllamaScorer", s)
	}
	if o.baseURL != "http://gpu:11434" || o.model != "qwen2.5:7b" || o.maxChars != 500 {
		t.Errorf("unexpected config: %+v", o)
	}

	if _, err := New(Options{Provider: "openai"}); err == nil {
		t.Error("expected error for unknown provider")
	}
}
