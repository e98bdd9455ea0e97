package datasource

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	readability "github.com/go-shiori/go-readability"
	"github.com/phuslu/log"

	"github.com/seenimoa/newsentiment/pkg/models"
)

const (
	// articles with a shorter body get the full page text fetched
	thinBodyLen    = 200
	maxBodyLength  = 4000
	bodyFetchLimit = 10
)

// BodyFetcher decorates a Source, replacing thin article bodies with the
// readable text of the linked page. Page failures are logged and ignored:
// the headline alone is still scorable.
type BodyFetcher struct {
	Source
	client  *http.Client
	timeout time.Duration
	logger  *log.Logger
}

// NewBodyFetcher wraps src.
func NewBodyFetcher(src Source, timeout time.Duration, logger *log.Logger) *BodyFetcher {
	if logger == nil {
		logger = &log.DefaultLogger
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &BodyFetcher{Source: src, client: newHTTPClient(timeout), timeout: timeout, logger: logger}
}

// Fetch delegates to the wrapped source, then enriches up to bodyFetchLimit articles.
func (b *BodyFetcher) Fetch(ctx context.Context, item models.WorkItem) ([]models.NewsItem, error) {
	news, err := b.Source.Fetch(ctx, item)
	if err != nil {
		return nil, err
	}
	fetched := 0
	for i := range news {
		if fetched >= bodyFetchLimit || ctx.Err() != nil {
			break
		}
		if len(news[i].Body) >= thinBodyLen || news[i].URL == "" {
			continue
		}
		fetched++
		text, err := b.scrape(ctx, news[i].URL)
		if err != nil {
			b.logger.Debug().Str("item", item.String()).Str("url", news[i].URL).Err(err).Msg("body fetch skipped")
			continue
		}
		if len(text) > len(news[i].Body) {
			news[i].Body = text
		}
	}
	return news, nil
}

// QuotaHit forwards the wrapped source's report, if it has one.
func (b *BodyFetcher) QuotaHit() bool {
	qr, ok := b.Source.(QuotaReporter)
	return ok && qr.QuotaHit()
}

func (b *BodyFetcher) scrape(ctx context.Context, pageURL string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	body, err := doGet(ctx, b.client, pageURL, map[string]string{"Accept": "text/html"})
	if err != nil {
		return "", err
	}
	defer body.Close()

	u, _ := url.Parse(pageURL)
	article, err := readability.FromReader(body, u)
	if err != nil {
		return "", err
	}
	text := strings.Join(strings.Fields(article.TextContent), " ")
	if len(text) > maxBodyLength {
		text = text[:maxBodyLength]
	}
	return text, nil
}
