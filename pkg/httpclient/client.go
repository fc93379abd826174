package httpclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"net"
	"net/http"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"github.com/barbmarcio/megastore-search/pkg/logger"
)

// CorrelationIDHeader carries the caller's correlation ID to downstream services.
const CorrelationIDHeader = "X-Correlation-ID"

// Doer executes a request bound to ctx.
type Doer interface {
	Do(ctx context.Context, req *http.Request) (*http.Response, error)
}

// Config holds HTTP client configuration.
type Config struct {
	Timeout         time.Duration
	MaxRetries      int
	RetryWaitMin    time.Duration
	RetryWaitMax    time.Duration
	MaxConnsPerHost int
	UserAgent       string
}

// DefaultConfig returns the settings used for catalog and seed traffic.
func DefaultConfig() Config {
	return Config{
		Timeout:         30 * time.Second,
		MaxRetries:      3,
		RetryWaitMin:    time.Second,
		RetryWaitMax:    5 * time.Second,
		MaxConnsPerHost: 100,
	}
}

// Client is an http.Client that retries transient failures with jittered
// exponential backoff and forwards the correlation ID and trace context.
type Client struct {
	httpClient *http.Client
	config     Config
}

var _ Doer = (*Client)(nil)

// New builds a Client with a pooled transport sized by cfg.
func New(cfg Config) *Client {
	dialer := &net.Dialer{Timeout: 10 * time.Second, KeepAlive: 30 * time.Second}
	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				Proxy:                 http.ProxyFromEnvironment,
				DialContext:           dialer.DialContext,
				ForceAttemptHTTP2:     true,
				MaxIdleConns:          100,
				MaxIdleConnsPerHost:   cfg.MaxConnsPerHost,
				MaxConnsPerHost:       cfg.MaxConnsPerHost,
				IdleConnTimeout:       90 * time.Second,
				TLSHandshakeTimeout:   10 * time.Second,
				ExpectContinueTimeout: time.Second,
			},
		},
		config: cfg,
	}
}

// Do sends req, retrying transport errors, 429 and 5xx other than 501. A
// Retry-After header in seconds replaces the computed backoff when it is
// within RetryWaitMax. Requests whose body cannot be rewound (no GetBody)
// are sent once.
func (c *Client) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	req = req.WithContext(ctx)
	c.decorate(ctx, req)

	maxRetries := c.config.MaxRetries
	if req.Body != nil && req.Body != http.NoBody && req.GetBody == nil {
		maxRetries = 0
	}

	var wait time.Duration
	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			if err := sleep(ctx, wait); err != nil {
				return nil, err
			}
			if err := rewind(req); err != nil {
				return nil, err
			}
		}

		resp, err := c.httpClient.Do(req)
		last := attempt >= maxRetries
		switch {
		case err != nil:
			if last || !isRetryableError(err) {
				return nil, fmt.Errorf("http request failed after %d attempts: %w", attempt+1, err)
			}
			wait = c.backoff(attempt + 1)
		case retryableStatus(resp.StatusCode) && !last:
			wait = c.retryAfter(resp, attempt+1)
			discard(resp)
		default:
			return resp, nil
		}
	}
}

// Get issues a GET for url.
func (c *Client) Get(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("create GET request: %w", err)
	}
	return c.Do(ctx, req)
}

func (c *Client) decorate(ctx context.Context, req *http.Request) {
	if id := logger.CorrelationIDFromContext(ctx); id != "" && req.Header.Get(CorrelationIDHeader) == "" {
		req.Header.Set(CorrelationIDHeader, id)
	}
	if c.config.UserAgent != "" {
		req.Header.Set("User-Agent", c.config.UserAgent)
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))
}

// backoff doubles RetryWaitMin per attempt, caps at RetryWaitMax and adds jitter.
func (c *Client) backoff(attempt int) time.Duration {
	wait := c.config.RetryWaitMin * time.Duration(1<<uint(attempt-1))
	if c.config.RetryWaitMax > 0 && wait > c.config.RetryWaitMax {
		wait = c.config.RetryWaitMax
	}
	return addJitter(wait)
}

// retryAfter honours a delta-seconds Retry-After header bounded by
// RetryWaitMax and falls back to backoff otherwise.
func (c *Client) retryAfter(resp *http.Response, attempt int) time.Duration {
	secs, err := strconv.Atoi(resp.Header.Get("Retry-After"))
	if err != nil || secs < 0 {
		return c.backoff(attempt)
	}
	wait := time.Duration(secs) * time.Second
	if c.config.RetryWaitMax > 0 && wait > c.config.RetryWaitMax {
		return c.backoff(attempt)
	}
	return wait
}

func retryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || (code >= 500 && code != http.StatusNotImplemented)
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func rewind(req *http.Request) error {
	if req.GetBody == nil {
		return nil
	}
	body, err := req.GetBody()
	if err != nil {
		return fmt.Errorf("rewind request body: %w", err)
	}
	req.Body = body
	return nil
}

// discard drains a bounded amount of resp so the connection can be reused.
func discard(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	_ = resp.Body.Close()
}

// addJitter spreads d uniformly over ±25%.
func addJitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	spread := int64(d) / 2
	if spread == 0 {
		return d
	}
	return time.Duration(int64(d) - spread/2 + rand.Int64N(spread+1))
}

// isRetryableError reports whether err is a transport failure worth retrying.
// Caller cancellation never is.
func isRetryableError(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
