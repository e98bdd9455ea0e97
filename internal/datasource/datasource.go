// Package datasource fetches the news articles published about a company on
// a given day. Polygon.io is the primary source; a Yahoo Finance RSS source
// works without credentials.
package datasource

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/seenimoa/newsentiment/internal/faults"
	"github.com/seenimoa/newsentiment/pkg/models"
)

// Source fetches the news for one WorkItem. Errors wrap one of
// faults.ErrRateLimited, ErrNetwork, ErrTimeout or ErrInvalidQuery.
type Source interface {
	// Name returns the human-readable name of this source.
	Name() string

	// Fetch returns the articles published about the item's company on its
	// target date. An empty slice is a valid answer.
	Fetch(ctx context.Context, item models.WorkItem) ([]models.NewsItem, error)

	// Ping checks credentials and reachability before a run starts.
	Ping(ctx context.Context) error
}

// minTitleLen drops teaser rows and bare tickers that carry no sentiment.
const minTitleLen = 10

// --- Shared HTTP client helpers ---

// DefaultUserAgent is the user agent string used for HTTP requests.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"

// newHTTPClient returns a client with the given overall timeout.
func newHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &http.Client{Timeout: timeout}
}

// doGet performs a GET request and returns the body of a 2xx response.
// Transport failures and non-2xx statuses are mapped onto the fault taxonomy.
// The caller is responsible for closing the returned ReadCloser.
func doGet(ctx context.Context, client *http.Client, url string, headers map[string]string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: create request: %v", faults.ErrInvalidQuery, err)
	}

	req.Header.Set("User-Agent", DefaultUserAgent)
	req.Header.Set("Accept", "application/json, application/rss+xml, text/html, */*")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, faults.FromTransport(err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, &faults.HTTPError{
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       strings.TrimSpace(string(body)),
		}
	}
	return resp.Body, nil
}

// --- Post-processing shared by every source ---

// dayWindow returns [00:00:00, 23:59:59.999999999] UTC of the item's date.
func dayWindow(item models.WorkItem) (time.Time, time.Time) {
	start := item.TargetDate.UTC()
	start = time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, time.UTC)
	return start, start.Add(24*time.Hour - time.Nanosecond)
}

// sameDay keeps articles published on the target date. Articles without a
// publication time are kept.
func sameDay(item models.WorkItem, news []models.NewsItem) []models.NewsItem {
	from, to := dayWindow(item)
	out := news[:0:0]
	for _, n := range news {
		if n.PublishedAt.IsZero() {
			out = append(out, n)
			continue
		}
		p := n.PublishedAt.UTC()
		if !p.Before(from) && !p.After(to) {
			out = append(out, n)
		}
	}
	return out
}

// dedupe drops repeated (title, url) pairs and titles too short to score,
// keeping first-seen order.
func dedupe(news []models.NewsItem) []models.NewsItem {
	seen := make(map[string]bool, len(news))
	out := news[:0:0]
	for _, n := range news {
		title := strings.TrimSpace(n.Headline)
		if len([]rune(title)) <= minTitleLen {
			continue
		}
		key := strings.ToLower(title) + "_" + n.URL
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, n)
	}
	return out
}

// cleanHTML strips HTML tags from a string using goquery.
func cleanHTML(s string) string {
	if s == "" || !strings.ContainsAny(s, "<&") {
		return strings.TrimSpace(s)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader("<body>" + s + "</body>"))
	if err != nil {
		return s
	}
	return strings.Join(strings.Fields(doc.Text()), " ")
}
