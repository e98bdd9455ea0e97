package datasource

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/phuslu/log"

	"github.com/seenimoa/newsentiment/internal/faults"
	"github.com/seenimoa/newsentiment/internal/infra"
	"github.com/seenimoa/newsentiment/pkg/models"
)

const polygonNewsPath = "/v2/reference/news"

// Polygon fetches ticker news from the Polygon.io reference news API.
type Polygon struct {
	baseURL string
	apiKey  string
	limit   int
	client  *http.Client
	limiter *infra.Limiter
	logger  *log.Logger
}

// PolygonOption configures the Polygon source.
type PolygonOption func(*Polygon)

// WithPolygonBaseURL overrides https://api.polygon.io.
func WithPolygonBaseURL(u string) PolygonOption {
	return func(p *Polygon) { p.baseURL = strings.TrimRight(u, "/") }
}

// WithPolygonLimit sets the maximum number of articles per request (max 1000).
func WithPolygonLimit(n int) PolygonOption {
	return func(p *Polygon) {
		if n > 0 {
			p.limit = min(n, 1000)
		}
	}
}

// WithPolygonHTTPClient sets a custom HTTP client.
func WithPolygonHTTPClient(c *http.Client) PolygonOption {
	return func(p *Polygon) { p.client = c }
}

// WithPolygonLimiter spaces requests; the free tier allows about one per second.
func WithPolygonLimiter(l *infra.Limiter) PolygonOption {
	return func(p *Polygon) { p.limiter = l }
}

// WithPolygonLogger sets the logger.
func WithPolygonLogger(l *log.Logger) PolygonOption {
	return func(p *Polygon) { p.logger = l }
}

// NewPolygon creates a Polygon news source.
func NewPolygon(apiKey string, opts ...PolygonOption) *Polygon {
	p := &Polygon{
		baseURL: "https://api.polygon.io",
		apiKey:  apiKey,
		limit:   100,
		client:  newHTTPClient(30 * time.Second),
		limiter: infra.NewLimiter(1),
		logger:  &log.DefaultLogger,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Name returns the source name.
func (p *Polygon) Name() string { return "polygon" }

// polygonResponse is the subset of the /v2/reference/news payload we read.
type polygonResponse struct {
	Status  string `json:"status"`
	Error   string `json:"error"`
	Results []struct {
		Title        string `json:"title"`
		Description  string `json:"description"`
		ArticleURL   string `json:"article_url"`
		PublishedUTC string `json:"published_utc"`
		ImageURL     string `json:"image_url"`
		Publisher    struct {
			Name string `json:"name"`
		} `json:"publisher"`
	} `json:"results"`
}

// Fetch returns the item's company news published on its target date.
func (p *Polygon) Fetch(ctx context.Context, item models.WorkItem) ([]models.NewsItem, error) {
	if p.apiKey == "" {
		return nil, fmt.Errorf("polygon: %w: API key not configured", faults.ErrInvalidQuery)
	}
	from, to := dayWindow(item)

	q := url.Values{}
	q.Set("ticker", item.CompanyID)
	q.Set("published_utc.gte", from.Format("2006-01-02T15:04:05Z"))
	q.Set("published_utc.lte", to.Format("2006-01-02T15:04:05Z"))
	q.Set("order", "desc")
	q.Set("sort", "published_utc")
	q.Set("limit", strconv.Itoa(p.limit))
	q.Set("apiKey", p.apiKey)

	resp, err := p.get(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("polygon %s: %w", item, err)
	}

	news := make([]models.NewsItem, 0, len(resp.Results))
	for _, r := range resp.Results {
		n := models.NewsItem{
			CompanyID:  item.CompanyID,
			TargetDate: item.TargetDate,
			Headline:   strings.TrimSpace(r.Title),
			Body:       cleanHTML(r.Description),
			URL:        r.ArticleURL,
			Source:     r.Publisher.Name,
		}
		if n.Source == "" {
			n.Source = "Unknown"
		}
		if r.PublishedUTC != "" {
			ts, err := time.Parse(time.RFC3339, r.PublishedUTC)
			if err != nil {
				p.logger.Debug().Str("item", item.String()).Str("published_utc", r.PublishedUTC).Msg("polygon: unparseable timestamp")
			} else {
				n.PublishedAt = ts.UTC()
			}
		}
		news = append(news, n)
	}

	out := dedupe(sameDay(item, news))
	p.logger.Debug().Str("item", item.String()).Int("raw", len(resp.Results)).Int("kept", len(out)).Msg("polygon: fetched")
	return out, nil
}

// Ping performs a one-article query to verify the key. A rejected key is a
// setup failure; anything else keeps its usual class.
func (p *Polygon) Ping(ctx context.Context) error {
	if p.apiKey == "" {
		return fmt.Errorf("polygon: %w: API key not configured", faults.ErrSetup)
	}
	q := url.Values{}
	q.Set("limit", "1")
	q.Set("apiKey", p.apiKey)
	if _, err := p.get(ctx, q); err != nil {
		var he *faults.HTTPError
		if errors.As(err, &he) && (he.StatusCode == http.StatusUnauthorized || he.StatusCode == http.StatusForbidden) {
			return fmt.Errorf("polygon: %w: authentication failed, check the API key: %v", faults.ErrSetup, err)
		}
		return fmt.Errorf("polygon: %w", err)
	}
	return nil
}

func (p *Polygon) get(ctx context.Context, q url.Values) (*polygonResponse, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, faults.FromTransport(err)
	}

	body, err := doGet(ctx, p.client, p.baseURL+polygonNewsPath+"?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	var resp polygonResponse
	if err := json.NewDecoder(body).Decode(&resp); err != nil {
		return nil, fmt.Errorf("%w: decode news response: %v", faults.ErrMalformedResponse, err)
	}
	if strings.EqualFold(resp.Status, "ERROR") {
		return nil, fmt.Errorf("%w: %s", faults.ErrInvalidQuery, resp.Error)
	}
	return &resp, nil
}
