// Package collyfetcher implements crawler.Fetcher using gocolly.
package collyfetcher

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/antchfx/xmlquery"
	"github.com/gocolly/colly/v2"
	"golang.org/x/time/rate"

	"github.com/JakeFAU/clinicaltrials-harvester/internal/crawler"
	"github.com/JakeFAU/clinicaltrials-harvester/internal/registry"
)

// DefaultRecordRoot is the root element of a ClinicalTrials.gov display record.
const DefaultRecordRoot = "clinical_study"

// Config controls collector behavior.
type Config struct {
	BaseURL   string
	UserAgent string
	// Charset decodes bodies whose response does not declare one. Empty
	// means sniff the body.
	Charset           string
	Timeout           time.Duration
	RequestsPerSecond float64
	RecordRoot        string
}

// Fetcher implements crawler.Fetcher using the Colly collector.
type Fetcher struct {
	cfg           Config
	transport     http.RoundTripper
	baseCollector *colly.Collector
	limiter       *rate.Limiter
}

type collectorHooks interface {
	OnRequest(colly.RequestCallback)
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// response captures what the collector hooks observed for one visit.
type response struct {
	statusCode  int
	contentType string
	body        []byte
	err         error
}

// New builds a Fetcher.
func New(cfg Config) *Fetcher {
	if cfg.BaseURL == "" {
		cfg.BaseURL = registry.DefaultBaseURL
	}
	if cfg.RecordRoot == "" {
		cfg.RecordRoot = DefaultRecordRoot
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}

	// Retries re-request the same record URL.
	c := colly.NewCollector(colly.Async(false), colly.AllowURLRevisit())
	c.IgnoreRobotsTxt = true

	transport := newHTTPTransport()
	c.WithTransport(transport)

	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}

	return &Fetcher{
		cfg:           cfg,
		transport:     transport,
		baseCollector: c,
		limiter:       limiter,
	}
}

// Fetch retrieves and parses the record for id.
func (f *Fetcher) Fetch(ctx context.Context, id registry.Identifier) (*xmlquery.Node, error) {
	target, err := registry.RecordURL(f.cfg.BaseURL, id)
	if err != nil {
		return nil, &crawler.FetchError{ID: id, Err: err}
	}
	if f.limiter != nil {
		if err := f.limiter.Wait(ctx); err != nil {
			return nil, &crawler.FetchError{ID: id, Transient: true, Err: fmt.Errorf("rate limit wait: %w", err)}
		}
	}

	var result response
	collector := f.buildCollector(ctx, &result)
	if err := f.runCollector(ctx, collector, target, &result); err != nil {
		return nil, classifyFailure(id, result.statusCode, err)
	}

	body, err := decodeBody(result.body, result.contentType, f.cfg.Charset)
	if err != nil {
		return nil, &crawler.FetchError{ID: id, StatusCode: result.statusCode, Err: err}
	}
	tree, err := xmlquery.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, &crawler.FetchError{ID: id, StatusCode: result.statusCode, Err: fmt.Errorf("parse record: %w", err)}
	}
	// The registry answers unknown ids with a page that carries no record.
	if xmlquery.FindOne(tree, "/"+f.cfg.RecordRoot) == nil {
		return nil, fmt.Errorf("%s: %w", id, crawler.ErrNotFound)
	}
	return tree, nil
}

func (f *Fetcher) buildCollector(ctx context.Context, result *response) *colly.Collector {
	collector := f.baseCollector.Clone()
	if f.cfg.UserAgent != "" {
		collector.UserAgent = f.cfg.UserAgent
	}
	collector.IgnoreRobotsTxt = true
	collector.Context = ctx
	collector.SetRequestTimeout(f.cfg.Timeout)

	baseTransport := f.transport
	if baseTransport == nil {
		baseTransport = newHTTPTransport()
	}
	collector.WithTransport(baseTransport)

	f.configureCollectorHooks(collector, result)
	return collector
}

func (f *Fetcher) configureCollectorHooks(hooks collectorHooks, result *response) {
	hooks.OnRequest(func(r *colly.Request) {
		r.Headers.Set("Accept", "application/xml, text/xml;q=0.9, */*;q=0.1")
	})

	hooks.OnResponse(func(r *colly.Response) {
		result.statusCode = r.StatusCode
		if r.Headers != nil {
			result.contentType = r.Headers.Get("Content-Type")
		}
		result.body = append([]byte(nil), r.Body...)
	})

	hooks.OnError(func(r *colly.Response, err error) {
		if r != nil {
			result.statusCode = r.StatusCode
		}
		result.err = err
	})
}

func (f *Fetcher) runCollector(ctx context.Context, collector *colly.Collector, url string, result *response) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("colly fetch canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return fmt.Errorf("colly visit failed: %w", err)
		}
		if result.err != nil {
			return fmt.Errorf("colly response failed: %w", result.err)
		}
		return nil
	}
}

// classifyFailure maps a failed visit onto the crawler error taxonomy.
func classifyFailure(id registry.Identifier, status int, err error) error {
	switch {
	case status == http.StatusNotFound || status == http.StatusGone:
		return fmt.Errorf("%s: %w", id, crawler.ErrNotFound)
	case errors.Is(err, context.Canceled):
		return &crawler.FetchError{ID: id, StatusCode: status, Err: err}
	case status == 0, status == http.StatusTooManyRequests, status == http.StatusRequestTimeout, status >= 500:
		return &crawler.FetchError{ID: id, StatusCode: status, Transient: true, Err: err}
	default:
		return &crawler.FetchError{ID: id, StatusCode: status, Err: err}
	}
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
