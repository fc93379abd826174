package httpclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sony/gobreaker/v2"

	apperrors "github.com/barbmarcio/megastore-search/pkg/errors"
)

// CircuitBreakerConfig tunes the breaker guarding one downstream service.
type CircuitBreakerConfig struct {
	Name string

	// HalfOpenRequests is how many trial requests pass while half-open.
	HalfOpenRequests uint32
	// ResetInterval clears closed-state counts periodically; 0 never clears.
	ResetInterval time.Duration
	// OpenFor is how long the breaker rejects before going half-open.
	OpenFor time.Duration

	FailureRatio float64
	MinRequests  uint32
}

// DefaultCircuitBreakerConfig suits a catalog service polled by reindex:
// five calls before judging, half of them failing trips for 30s.
func DefaultCircuitBreakerConfig(name string) CircuitBreakerConfig {
	return CircuitBreakerConfig{
		Name:             name,
		HalfOpenRequests: 1,
		ResetInterval:    time.Minute,
		OpenFor:          30 * time.Second,
		FailureRatio:     0.5,
		MinRequests:      5,
	}
}

func (c CircuitBreakerConfig) tripped(counts gobreaker.Counts) bool {
	if counts.Requests < c.MinRequests || counts.Requests == 0 {
		return false
	}
	return float64(counts.TotalFailures)/float64(counts.Requests) >= c.FailureRatio
}

var (
	breakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Downstream circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	breakerRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_rejected_total",
			Help: "Requests short-circuited by an open or saturated breaker",
		},
		[]string{"name"},
	)
)

// stateGauge maps gobreaker states onto the gauge encoding above.
var stateGauge = map[gobreaker.State]float64{
	gobreaker.StateClosed:   0,
	gobreaker.StateHalfOpen: 1,
	gobreaker.StateOpen:     2,
}

// ErrCircuitOpen is wrapped by the error returned while the breaker rejects.
var ErrCircuitOpen = gobreaker.ErrOpenState

// CircuitBreakerClient guards a Doer. Server errors and 429 throttling count
// against the downstream; other 4xx responses are the caller's problem and
// pass through.
type CircuitBreakerClient struct {
	next    Doer
	breaker *gobreaker.CircuitBreaker[*http.Response]
	logger  *slog.Logger
	name    string
}

var _ Doer = (*CircuitBreakerClient)(nil)

// NewCircuitBreakerClient wraps next with a breaker configured by cfg.
func NewCircuitBreakerClient(next Doer, cfg CircuitBreakerConfig, logger *slog.Logger) *CircuitBreakerClient {
	c := &CircuitBreakerClient{next: next, logger: logger, name: cfg.Name}
	c.breaker = gobreaker.NewCircuitBreaker[*http.Response](gobreaker.Settings{
		Name:          cfg.Name,
		MaxRequests:   cfg.HalfOpenRequests,
		Interval:      cfg.ResetInterval,
		Timeout:       cfg.OpenFor,
		ReadyToTrip:   cfg.tripped,
		OnStateChange: c.onStateChange,
		// A caller giving up says nothing about the downstream.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
	})
	breakerState.WithLabelValues(cfg.Name).Set(stateGauge[gobreaker.StateClosed])
	return c
}

func (c *CircuitBreakerClient) onStateChange(name string, from, to gobreaker.State) {
	c.logger.Warn("circuit breaker state change",
		slog.String("breaker", name),
		slog.String("from", from.String()),
		slog.String("to", to.String()),
	)
	breakerState.WithLabelValues(name).Set(stateGauge[to])
}

// Do sends req through the breaker. Rejections surface as Unavailable
// AppErrors wrapping ErrCircuitOpen or gobreaker.ErrTooManyRequests.
func (c *CircuitBreakerClient) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	resp, err := c.breaker.Execute(func() (*http.Response, error) {
		resp, err := c.next.Do(ctx, req)
		if err != nil {
			return nil, err
		}
		if countsAsFailure(resp.StatusCode) {
			return nil, c.downstreamError(resp)
		}
		return resp, nil
	})
	switch {
	case err == nil:
		return resp, nil
	case errors.Is(err, ErrCircuitOpen), errors.Is(err, gobreaker.ErrTooManyRequests):
		breakerRejected.WithLabelValues(c.name).Inc()
		c.logger.WarnContext(ctx, "circuit breaker rejected request",
			slog.String("breaker", c.name),
			slog.String("url", req.URL.Redacted()),
		)
		return nil, apperrors.Unavailable(c.name+" circuit open", err)
	default:
		return nil, err
	}
}

func countsAsFailure(status int) bool {
	return status >= 500 || status == http.StatusTooManyRequests
}

// downstreamError drains and closes resp, keeping a short body excerpt.
func (c *CircuitBreakerClient) downstreamError(resp *http.Response) error {
	defer resp.Body.Close()
	excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
	return apperrors.Unavailable(
		fmt.Sprintf("%s returned status %d", c.name, resp.StatusCode),
		fmt.Errorf("downstream response: %s", excerpt),
	)
}

// Get issues a GET for url through the breaker.
func (c *CircuitBreakerClient) Get(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("create GET request: %w", err)
	}
	return c.Do(ctx, req)
}

// State reports the breaker's current state.
func (c *CircuitBreakerClient) State() gobreaker.State {
	return c.breaker.State()
}

// Check fails while the breaker is open. It has the health checker signature
// so the downstream can be registered as a readiness dependency.
func (c *CircuitBreakerClient) Check(context.Context) error {
	if c.breaker.State() == gobreaker.StateOpen {
		return fmt.Errorf("%s circuit open", c.name)
	}
	return nil
}
