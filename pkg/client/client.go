// Package client provides the export HTTP client: single-page fetches with
// caching and pacing, and full-range iteration with partial-response
// enforcement.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/dashmarketing/export-client/pkg/cache"
	"github.com/dashmarketing/export-client/pkg/export"
	"github.com/dashmarketing/export-client/pkg/pacing"
	"github.com/dashmarketing/export-client/pkg/pagination"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for export client operations.
var (
	exportRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "export_requests_total",
		Help: "Total export page requests by status",
	}, []string{"status"})

	exportRequestDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "export_request_duration_seconds",
		Help:    "Export page request duration in seconds",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
	})

	exportErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "export_errors_total",
		Help: "Total export errors by kind",
	}, []string{"kind"})

	exportPartialTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "export_partial_responses_total",
		Help: "Total pages the service flagged as partial",
	})

	exportRowsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "export_rows_total",
		Help: "Total rows fetched from the export service",
	})
)

// DefaultTimeout bounds a single page fetch. The export service can take
// well over a minute on large ranges before answering.
const DefaultTimeout = 2 * time.Minute

// DefaultCacheTTL is how long complete pages stay cached. Export data for a
// closed range is stable, but yesterday's rows can still be restated.
const DefaultCacheTTL = 15 * time.Minute

// Client is the export service client.
type Client struct {
	httpClient *http.Client
	redis      *redis.Client
	pacer      *pacing.Pacer
	cache      *cache.Manager
	config     Config
	logger     zerolog.Logger
}

// Config holds the client configuration.
type Config struct {
	// Redis client for page caching and shared pacing state
	Redis *redis.Client

	// BaseURL of the export service (e.g. "https://exports.example.com")
	BaseURL string

	// User-Agent header sent with every request
	UserAgent string

	// Timeout per page fetch (default: DefaultTimeout)
	Timeout time.Duration

	// PageDelay between successive page fetches (default: pacing.DefaultPageDelay)
	PageDelay time.Duration

	// CacheTTL for complete pages (default: DefaultCacheTTL)
	CacheTTL time.Duration

	// MinStartDate clamps request ranges the way the service does.
	// Zero disables clamping.
	MinStartDate time.Time
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig(redisClient *redis.Client, baseURL, userAgent string) Config {
	return Config{
		Redis:     redisClient,
		BaseURL:   baseURL,
		UserAgent: userAgent,
		Timeout:   DefaultTimeout,
		PageDelay: pacing.DefaultPageDelay,
		CacheTTL:  DefaultCacheTTL,
	}
}

// New creates a new export client.
func New(cfg Config) (*Client, error) {
	if cfg.Redis == nil {
		return nil, fmt.Errorf("redis client is required")
	}

	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}

	if cfg.UserAgent == "" {
		return nil, fmt.Errorf("user-agent is required")
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = DefaultCacheTTL
	}

	logger := log.With().Str("component", "export-client").Logger()

	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		redis:  cfg.Redis,
		pacer:  pacing.NewPacer(cfg.Redis, logger, cfg.PageDelay),
		cache:  cache.NewManager(cfg.Redis),
		config: cfg,
		logger: logger,
	}, nil
}

// FetchPage fetches a single export page. It consults the page cache first,
// paces the outbound request, and classifies failures. A partial page is
// returned as-is: callers that need the partial flag enforced should
// iterate via FetchAll, which fails fast on it.
func (c *Client) FetchPage(ctx context.Context, req export.Request, page pagination.Page) (*export.Response, error) {
	startTime := time.Now()
	defer func() {
		exportRequestDuration.Observe(time.Since(startTime).Seconds())
	}()

	key := cache.Key{
		From:     export.FormatDate(req.From),
		To:       export.FormatDate(req.To),
		PageSize: page.Size,
		Offset:   page.Offset,
		Token:    page.Token,
	}

	if entry, err := c.cache.Get(ctx, key); err == nil {
		resp, decodeErr := decodeBody(entry.Body)
		if decodeErr == nil {
			c.logger.Debug().
				Str("key", key.String()).
				Int("rows", len(resp.Rows)).
				Msg("Page served from cache")
			exportRequestsTotal.WithLabelValues("cache_hit").Inc()
			return resp, nil
		}
		// A corrupt entry falls through to a real fetch.
		c.logger.Warn().Err(decodeErr).Str("key", key.String()).Msg("Dropping corrupt cache entry")
		_ = c.cache.Delete(ctx, key)
	} else if err != cache.ErrCacheMiss {
		c.logger.Warn().Err(err).Str("key", key.String()).Msg("Cache get error")
	}

	if err := c.pacer.Wait(ctx); err != nil {
		return nil, fmt.Errorf("pacing wait: %w", err)
	}

	httpReq, err := c.buildRequest(ctx, req, page)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	c.logger.Debug().
		Str("from", export.FormatDate(req.From)).
		Str("to", export.FormatDate(req.To)).
		Int("offset", page.Offset).
		Str("token", page.Token).
		Msg("Fetching export page")

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, c.transportError(err)
	}
	defer httpResp.Body.Close()

	if err := c.pacer.UpdateFromHeaders(ctx, httpResp.StatusCode, httpResp.Header); err != nil {
		c.logger.Warn().Err(err).Msg("Failed to record cooldown from headers")
	}

	if httpResp.StatusCode < 200 || httpResp.StatusCode > 299 {
		exportRequestsTotal.WithLabelValues(strconv.Itoa(httpResp.StatusCode)).Inc()
		exportErrorsTotal.WithLabelValues(string(export.KindUpstreamError)).Inc()

		c.logger.Warn().
			Int("status", httpResp.StatusCode).
			Str("from", export.FormatDate(req.From)).
			Str("to", export.FormatDate(req.To)).
			Msg("Export request error")

		return nil, &export.Error{
			Kind:       export.KindUpstreamError,
			StatusCode: httpResp.StatusCode,
			Message:    httpResp.Status,
		}
	}

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, c.transportError(err)
	}

	exportRequestsTotal.WithLabelValues(strconv.Itoa(httpResp.StatusCode)).Inc()

	resp, err := decodeBody(body)
	if err != nil {
		exportErrorsTotal.WithLabelValues(string(export.KindMalformedResponse)).Inc()
		return nil, err
	}

	exportRowsTotal.Add(float64(len(resp.Rows)))

	if resp.Partial {
		exportPartialTotal.Inc()
		c.logger.Warn().
			Str("reason", resp.Reason).
			Int("rows", len(resp.Rows)).
			Msg("Export page flagged partial")
		return resp, nil
	}

	// Complete pages only. A partial page must never be replayed as final.
	entry := cache.NewEntry(body, httpResp.StatusCode, len(resp.Rows), c.config.CacheTTL)
	if err := c.cache.Set(ctx, key, entry); err != nil {
		c.logger.Warn().Err(err).Msg("Failed to cache page")
	}

	return resp, nil
}

// FetchAll returns a lazy iterator over every row in the range. The request
// is validated and clamped up front; iteration fails fast on partial pages
// and enforces the MaxPages cap.
func (c *Client) FetchAll(req export.Request) (*pagination.Iterator, error) {
	req, err := c.prepare(req)
	if err != nil {
		return nil, err
	}
	return pagination.NewIterator(c, req), nil
}

// FetchAllMonthly exports the range one calendar month at a time. Large
// ranges stream month by month, so no single request spans more than a
// month and the service's per-request limits stay out of reach. Validation,
// clamping, and the partial-response handling match FetchAll; the MaxPages
// cap applies to each month separately.
func (c *Client) FetchAllMonthly(req export.Request) (*pagination.MonthIterator, error) {
	req, err := c.prepare(req)
	if err != nil {
		return nil, err
	}
	return pagination.NewMonthIterator(c, req), nil
}

func (c *Client) prepare(req export.Request) (export.Request, error) {
	if err := req.Validate(); err != nil {
		return export.Request{}, err
	}

	if !c.config.MinStartDate.IsZero() {
		clamped, err := req.Clamp(c.config.MinStartDate, time.Now())
		if err != nil {
			return export.Request{}, err
		}
		req = clamped
	}

	return req, nil
}

// buildRequest constructs the GET request for one page.
func (c *Client) buildRequest(ctx context.Context, req export.Request, page pagination.Page) (*http.Request, error) {
	q := req.Query()
	if page.Token != "" {
		q.Set("pageToken", page.Token)
	} else if page.Offset > 0 {
		q.Set("offset", strconv.Itoa(page.Offset))
	}

	endpoint := strings.TrimRight(c.config.BaseURL, "/") + "/exportar?" + q.Encode()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	httpReq.Header.Set("User-Agent", c.config.UserAgent)
	httpReq.Header.Set("Accept", "application/json")

	return httpReq, nil
}

// transportError classifies a transport-level failure as timeout or
// upstream error.
func (c *Client) transportError(err error) error {
	kind := export.KindUpstreamError
	msg := "request failed"

	var netErr interface{ Timeout() bool }
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		kind = export.KindUpstreamTimeout
		msg = fmt.Sprintf("page fetch exceeded %s", c.config.Timeout)
	}

	exportErrorsTotal.WithLabelValues(string(kind)).Inc()
	exportRequestsTotal.WithLabelValues("transport_error").Inc()
	c.logger.Error().Err(err).Str("kind", string(kind)).Msg("Export request failed")

	return &export.Error{Kind: kind, Message: msg, Err: err}
}

// decodeBody parses a page body, mapping decode failures to the malformed
// kind.
func decodeBody(body []byte) (*export.Response, error) {
	var resp export.Response
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, &export.Error{
			Kind:    export.KindMalformedResponse,
			Message: "invalid export response body",
			Err:     err,
		}
	}
	return &resp, nil
}

// Close closes the client and releases resources.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}
