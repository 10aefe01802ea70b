package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"feedmesh/internal/domain/entity"
	"feedmesh/internal/domain/fetcherr"
	"feedmesh/internal/domain/parser"
	"feedmesh/internal/resilience/circuitbreaker"
	"feedmesh/internal/resilience/retry"

	"github.com/sony/gobreaker"
)

// RSSFetcher fetches and parses an RSS/Atom feed using conditional GET,
// body-size and redirect caps, per-host rate limiting, and retry with
// exponential backoff — the Fetchers' RSS protocol (spec §4.B.1).
type RSSFetcher struct {
	client      *http.Client
	cfg         Config
	limiter     *HostLimiter
	breakers    map[string]*circuitbreaker.CircuitBreaker
	breakersMu  sync.Mutex
	enhancer    *ReadabilityFetcher
}

// NewRSSFetcher builds a fetcher with its own bounded HTTP client (the
// redirect cap is enforced via CheckRedirect, not a generic client setting,
// so every fetch carries its own limit independent of shared client state).
// When cfg.ContentEnhancement.Enabled, stub/teaser entries get their full
// text fetched from the entry's own URL via Mozilla Readability.
func NewRSSFetcher(cfg Config) *RSSFetcher {
	f := &RSSFetcher{
		cfg: cfg,
		client: &http.Client{
			Timeout: cfg.RequestTimeout,
		},
		limiter:  NewHostLimiter(cfg.HostMinGap, nil),
		breakers: make(map[string]*circuitbreaker.CircuitBreaker),
	}
	if cfg.ContentEnhancement.Enabled {
		f.enhancer = NewReadabilityFetcher(cfg.ContentEnhancement)
	}
	return f
}

func (f *RSSFetcher) breakerFor(host string) *circuitbreaker.CircuitBreaker {
	f.breakersMu.Lock()
	defer f.breakersMu.Unlock()
	cb, ok := f.breakers[host]
	if !ok {
		cb = circuitbreaker.New(circuitbreaker.FeedFetchConfig())
		f.breakers[host] = cb
	}
	return cb
}

// Fetch performs one conditional-GET fetch attempt against source and
// returns the normalized items plus the cursor values the State Store
// should persist on success. A fetcherr.ErrNotModified return means the
// caller should treat this as success with zero new items and an
// unchanged cursor, per spec §4.A/§7.
func (f *RSSFetcher) Fetch(ctx context.Context, source *entity.Source) ([]*entity.Item, entity.FetchResult, error) {
	host := HostOf(source.URI)
	if delay := f.limiter.Reserve(host); delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, entity.FetchResult{}, ctx.Err()
		}
	}

	retryCfg := retry.SourceFetchConfig(f.cfg.RetryBase, f.cfg.MaxRetries)
	cb := f.breakerFor(host)

	var items []*entity.Item
	var result entity.FetchResult

	attemptErr := retry.WithBackoff(ctx, retryCfg, func() error {
		cbResult, err := cb.Execute(func() (interface{}, error) {
			its, res, ferr := f.doFetch(ctx, source)
			return struct {
				items  []*entity.Item
				result entity.FetchResult
			}{its, res}, ferr
		})
		if err != nil {
			if errors.Is(err, gobreaker.ErrOpenState) {
				slog.Warn("rss fetch circuit breaker open",
					slog.String("host", host), slog.Int64("source_id", source.ID))
			}
			return err
		}
		bundle := cbResult.(struct {
			items  []*entity.Item
			result entity.FetchResult
		})
		items = bundle.items
		result = bundle.result
		return nil
	})

	if attemptErr != nil {
		if errors.Is(attemptErr, fetcherr.ErrNotModified) {
			return nil, entity.FetchResult{Success: true, HTTPStatus: http.StatusNotModified}, fetcherr.ErrNotModified
		}
		return nil, entity.FetchResult{Success: false, Err: attemptErr}, attemptErr
	}

	return items, result, nil
}

func (f *RSSFetcher) doFetch(ctx context.Context, source *entity.Source) ([]*entity.Item, entity.FetchResult, error) {
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, source.URI, nil)
	if err != nil {
		return nil, entity.FetchResult{}, &fetcherr.ConfigError{Reason: err.Error()}
	}
	req.Header.Set("User-Agent", f.cfg.UserAgent)
	if source.ETag != "" {
		req.Header.Set("If-None-Match", source.ETag)
	}
	if source.LastModifiedHTTP != "" {
		req.Header.Set("If-Modified-Since", source.LastModifiedHTTP)
	}

	client := *f.client
	redirects := 0
	client.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		redirects++
		if redirects > f.cfg.MaxRedirects {
			return fetcherr.ErrRedirectLimit
		}
		return nil
	}

	resp, err := client.Do(req)
	if err != nil {
		if errors.Is(err, fetcherr.ErrRedirectLimit) || strings.Contains(err.Error(), "redirect") {
			return nil, entity.FetchResult{}, fetcherr.ErrRedirectLimit
		}
		return nil, entity.FetchResult{}, &fetcherr.TransportError{Cause: err}
	}
	defer func() { _ = resp.Body.Close() }()

	latency := time.Since(start)

	if resp.StatusCode == http.StatusNotModified {
		return nil, entity.FetchResult{}, fetcherr.ErrNotModified
	}
	if resp.StatusCode != http.StatusOK {
		httpErr := &fetcherr.HTTPError{StatusCode: resp.StatusCode}
		return nil, entity.FetchResult{HTTPStatus: resp.StatusCode, ResponseLatency: latency}, httpErr
	}

	limited := io.LimitReader(resp.Body, f.cfg.MaxFeedSize+1)
	body, err := io.ReadAll(limited)
	if err != nil {
		return nil, entity.FetchResult{}, &fetcherr.TransportError{Cause: err}
	}
	if int64(len(body)) > f.cfg.MaxFeedSize {
		return nil, entity.FetchResult{}, fetcherr.ErrFeedTooLarge
	}

	entries, err := parser.New().Parse(body)
	if err != nil {
		return nil, entity.FetchResult{}, err
	}

	items := make([]*entity.Item, 0, len(entries))
	for _, entry := range entries {
		item := itemFromEntry(source.ID, source.URI, entry)
		f.enhanceContent(ctx, item)
		items = append(items, item)
	}

	result := entity.FetchResult{
		Success:         true,
		HTTPStatus:      resp.StatusCode,
		NewETag:         resp.Header.Get("ETag"),
		NewLastModified: resp.Header.Get("Last-Modified"),
		ContentBytes:    int64(len(body)),
		ResponseLatency: latency,
	}
	return items, result, nil
}

func itemFromEntry(sourceID int64, sourceURI string, e parser.Entry) *entity.Item {
	return &entity.Item{
		SourceID:    sourceID,
		URI:         e.URL,
		SourceURI:   sourceURI,
		GUID:        e.GUID,
		Title:       e.Title,
		Description: e.Description,
		Content:     e.Content,
		Author:      e.Author,
		PublishedAt: e.PublishedAt,
		UpdatedAt:   e.UpdatedAt,
		Tags:        e.Tags,
		Text:        composeText(e.Title, e.Description, e.Content),
	}
}

// enhanceContent replaces a stub/teaser entry body with the article's own
// full text when the feed content falls short of the configured threshold.
// Any fetch/extraction failure is swallowed and the original feed content
// is kept, per spec: this step must never fail the overall fetch.
func (f *RSSFetcher) enhanceContent(ctx context.Context, item *entity.Item) {
	if f.enhancer == nil || item.URI == "" {
		return
	}
	if len(item.Content) >= f.cfg.ContentEnhancement.Threshold {
		return
	}
	full, err := f.enhancer.FetchContent(ctx, item.URI)
	if err != nil || full == "" {
		return
	}
	item.Content = full
	item.Text = composeText(item.Title, item.Description, item.Content)
}

// composeText builds the uniform header+body representation Processing
// Stages operate on regardless of a item's RSS/IMAP origin.
func composeText(title, description, content string) string {
	var b strings.Builder
	b.WriteString(title)
	if description != "" {
		b.WriteString("\n\n")
		b.WriteString(description)
	}
	if content != "" && content != description {
		b.WriteString("\n\n")
		b.WriteString(content)
	}
	return b.String()
}
