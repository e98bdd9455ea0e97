package datasource

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
	"github.com/phuslu/log"

	"github.com/seenimoa/newsentiment/internal/faults"
	"github.com/seenimoa/newsentiment/internal/infra"
	"github.com/seenimoa/newsentiment/pkg/models"
	"github.com/seenimoa/newsentiment/pkg/utils"
)

// DefaultRSSURL is the Yahoo Finance per-ticker headline feed; %s is the ticker.
const DefaultRSSURL = "https://feeds.finance.yahoo.com/rss/2.0/headline?s=%s&region=US&lang=en-US"

// RSS reads a per-ticker headline feed. Feeds only carry recent items, so
// it suits daily runs rather than deep backfills. A feed is fetched once per
// ticker and cached, then filtered per target date.
type RSS struct {
	urlTemplate string
	client      *http.Client
	parser      *gofeed.Parser
	cache       *infra.Cache[string, []models.NewsItem]
	limiter     *infra.Limiter
	logger      *log.Logger
}

// RSSOption configures the RSS source.
type RSSOption func(*RSS)

// WithRSSURL sets the feed URL template; %s is replaced by the ticker.
func WithRSSURL(tmpl string) RSSOption {
	return func(r *RSS) { r.urlTemplate = tmpl }
}

// WithRSSHTTPClient sets a custom HTTP client.
func WithRSSHTTPClient(c *http.Client) RSSOption {
	return func(r *RSS) { r.client = c }
}

// WithRSSCacheTTL sets how long a parsed feed is reused.
func WithRSSCacheTTL(ttl time.Duration) RSSOption {
	return func(r *RSS) { r.cache = infra.NewCache[string, []models.NewsItem](ttl) }
}

// WithRSSLimiter spaces feed downloads.
func WithRSSLimiter(l *infra.Limiter) RSSOption {
	return func(r *RSS) { r.limiter = l }
}

// WithRSSLogger sets the logger.
func WithRSSLogger(l *log.Logger) RSSOption {
	return func(r *RSS) { r.logger = l }
}

// NewRSS creates an RSS news source.
func NewRSS(opts ...RSSOption) *RSS {
	r := &RSS{
		urlTemplate: DefaultRSSURL,
		client:      newHTTPClient(30 * time.Second),
		parser:      gofeed.NewParser(),
		cache:       infra.NewCache[string, []models.NewsItem](15 * time.Minute),
		limiter:     infra.NewLimiter(2), // conservative: 2 req/s
		logger:      &log.DefaultLogger,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Name returns the source name.
func (r *RSS) Name() string { return "rss" }

// Fetch returns the feed items for the company published on the target date.
func (r *RSS) Fetch(ctx context.Context, item models.WorkItem) ([]models.NewsItem, error) {
	all, err := r.feed(ctx, item.CompanyID)
	if err != nil {
		return nil, fmt.Errorf("rss %s: %w", item, err)
	}

	news := make([]models.NewsItem, len(all))
	for i, n := range all {
		n.CompanyID = item.CompanyID
		n.TargetDate = item.TargetDate
		news[i] = n
	}
	return dedupe(sameDay(item, news)), nil
}

// Ping fetches the feed of a well-known ticker.
func (r *RSS) Ping(ctx context.Context) error {
	if _, err := r.feed(ctx, "AAPL"); err != nil {
		if faults.Classify(err) == faults.Permanent {
			return fmt.Errorf("rss: %w: %v", faults.ErrSetup, err)
		}
		return fmt.Errorf("rss: %w", err)
	}
	return nil
}

// feed downloads and parses the feed for a ticker, using the cache.
func (r *RSS) feed(ctx context.Context, symbol string) ([]models.NewsItem, error) {
	if cached, ok := r.cache.Get(symbol); ok {
		return cached, nil
	}
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, faults.FromTransport(err)
	}

	url := r.urlTemplate
	if strings.Contains(url, "%s") {
		url = fmt.Sprintf(url, utils.ToYahooTicker(symbol))
	}
	body, err := doGet(ctx, r.client, url, nil)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	feed, err := r.parser.Parse(body)
	if err != nil {
		return nil, fmt.Errorf("%w: parse feed: %v", faults.ErrMalformedResponse, err)
	}

	items := make([]models.NewsItem, 0, len(feed.Items))
	for _, it := range feed.Items {
		n := models.NewsItem{
			Headline: strings.TrimSpace(cleanHTML(it.Title)),
			Body:     cleanHTML(it.Description),
			URL:      it.Link,
			Source:   feed.Title,
		}
		if n.Source == "" {
			n.Source = "Yahoo Finance"
		}
		if it.PublishedParsed != nil {
			n.PublishedAt = it.PublishedParsed.UTC()
		} else if it.UpdatedParsed != nil {
			n.PublishedAt = it.UpdatedParsed.UTC()
		}
		items = append(items, n)
	}

	r.cache.Set(symbol, items)
	return items, nil
}
