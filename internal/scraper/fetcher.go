package scraper

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
	"golang.org/x/time/rate"

	"go-lead-radar/internal/logging"
	"go-lead-radar/internal/models"
)

const (
	// DefaultUserAgent is sent on every request; several sources reject Go's default.
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"

	maxBodyBytes = 8 << 20

	// maxRetryAfter caps how long a Retry-After header can hold a run.
	maxRetryAfter = 5 * time.Minute
)

// FetcherConfig controls request cadence and retry behavior for one source.
type FetcherConfig struct {
	RatePerSecond float64
	Timeout       time.Duration
	MaxRetries    int
	BaseDelay     time.Duration
	MaxDelay      time.Duration
	UserAgent     string
}

// Fetcher is a polite HTTP client shared by the HTTP based adapters: it
// throttles requests, bounds each with a timeout and retries transient failures.
type Fetcher struct {
	source    models.Source
	client    *http.Client
	limiter   *rate.Limiter
	retry     retrypolicy.RetryPolicy[[]byte]
	timeout   time.Duration
	userAgent string
	logger    logging.Logger
}

func NewFetcher(source models.Source, cfg FetcherConfig, client *http.Client, logger logging.Logger) *Fetcher {
	if client == nil {
		client = &http.Client{}
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = time.Second
	}
	if cfg.MaxDelay < cfg.BaseDelay {
		cfg.MaxDelay = 10 * cfg.BaseDelay
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if logger == nil {
		logger = logging.Discard()
	}

	limit := rate.Inf
	if cfg.RatePerSecond > 0 {
		limit = rate.Limit(cfg.RatePerSecond)
	}

	policy := retrypolicy.NewBuilder[[]byte]().
		WithBackoff(cfg.BaseDelay, cfg.MaxDelay).
		WithMaxRetries(cfg.MaxRetries).
		WithJitterFactor(0.1).
		WithDelayFunc(retryAfterDelay).
		HandleIf(func(_ []byte, err error) bool {
			return IsTransient(err)
		}).
		ReturnLastFailure().
		Build()

	return &Fetcher{
		source:    source,
		client:    client,
		limiter:   rate.NewLimiter(limit, 1),
		retry:     policy,
		timeout:   cfg.Timeout,
		userAgent: cfg.UserAgent,
		logger:    logger.WithField("source", string(source)),
	}
}

// Get performs a GET and returns the response body.
func (f *Fetcher) Get(ctx context.Context, url string, header http.Header) ([]byte, error) {
	return f.do(ctx, http.MethodGet, url, header, nil)
}

// GetJSON performs a GET and decodes the JSON body into out.
func (f *Fetcher) GetJSON(ctx context.Context, url string, header http.Header, out any) error {
	body, err := f.Get(ctx, url, header)
	if err != nil {
		return err
	}
	return f.decode(body, out)
}

// PostJSON sends payload as JSON and decodes the JSON response into out.
func (f *Fetcher) PostJSON(ctx context.Context, url string, header http.Header, payload, out any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return Permanent(f.source, fmt.Errorf("encode request: %w", err))
	}
	if header == nil {
		header = http.Header{}
	}
	header.Set("Content-Type", "application/json")

	body, err := f.do(ctx, http.MethodPost, url, header, data)
	if err != nil {
		return err
	}
	return f.decode(body, out)
}

func (f *Fetcher) decode(body []byte, out any) error {
	if err := json.Unmarshal(body, out); err != nil {
		// a changed payload shape will not fix itself on retry
		return Permanent(f.source, fmt.Errorf("decode response: %w", err))
	}
	return nil
}

func (f *Fetcher) do(ctx context.Context, method, url string, header http.Header, payload []byte) ([]byte, error) {
	attempt := 0
	body, err := failsafe.With(f.retry).WithContext(ctx).Get(func() ([]byte, error) {
		attempt++
		if attempt > 1 {
			f.logger.WithField("attempt", attempt).Warnf("🔁 Retrying %s %s", method, url)
		}
		return f.attempt(ctx, method, url, header, payload)
	})
	if err != nil {
		var se *SourceError
		if !errors.As(err, &se) {
			// cancelled while waiting between attempts
			return nil, Transient(f.source, err)
		}
		return nil, err
	}
	return body, nil
}

func (f *Fetcher) attempt(ctx context.Context, method, url string, header http.Header, payload []byte) ([]byte, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, Transient(f.source, fmt.Errorf("rate limiter: %w", err))
	}

	reqCtx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(reqCtx, method, url, reader)
	if err != nil {
		return nil, Permanent(f.source, fmt.Errorf("build request: %w", err))
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", f.userAgent)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, Transient(f.source, fmt.Errorf("%s %s: %w", method, url, err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, Transient(f.source, fmt.Errorf("read body: %w", err))
	}
	if err := ClassifyStatus(f.source, resp.StatusCode); err != nil {
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusServiceUnavailable {
			var se *SourceError
			if errors.As(err, &se) {
				se.RetryAfter = ParseRetryAfter(resp.Header.Get("Retry-After"), time.Now())
			}
		}
		return nil, err
	}
	return body, nil
}

// retryAfterDelay waits as long as the source asked; -1 falls back to backoff.
func retryAfterDelay(exec failsafe.ExecutionAttempt[[]byte]) time.Duration {
	var se *SourceError
	if errors.As(exec.LastError(), &se) && se.RetryAfter > 0 {
		return min(se.RetryAfter, maxRetryAfter)
	}
	return -1
}

// ParseRetryAfter reads a Retry-After value in seconds or as an HTTP date.
// It returns 0 when the header is missing, malformed or already past.
func ParseRetryAfter(value string, now time.Time) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	if secs, err := strconv.Atoi(value); err == nil {
		if secs <= 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(value); err == nil {
		if d := at.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}

// ClassifyStatus maps an HTTP status to nil or a *SourceError.
func ClassifyStatus(source models.Source, status int) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return Permanent(source, fmt.Errorf("status %d: credentials rejected", status))
	case status == http.StatusNotFound || status == http.StatusGone:
		return Permanent(source, fmt.Errorf("status %d: endpoint removed", status))
	case status == http.StatusRequestTimeout,
		status == http.StatusTooEarly,
		status == http.StatusTooManyRequests,
		status >= 500:
		return Transient(source, fmt.Errorf("status %d", status))
	default:
		return Permanent(source, fmt.Errorf("status %d", status))
	}
}
