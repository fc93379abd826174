package health

import (
	"context"
	"maps"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/sync/errgroup"
)

// Checker reports whether one dependency is usable.
type Checker func(ctx context.Context) error

// Status is the state of one check or of the whole service.
type Status string

const (
	StatusUp       Status = "up"
	StatusDown     Status = "down"
	StatusDegraded Status = "degraded"
)

// Response is the body of the liveness and readiness endpoints.
type Response struct {
	Status    Status                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Checks    map[string]CheckResult `json:"checks,omitempty"`
}

// CheckResult is the outcome of a single checker.
type CheckResult struct {
	Status     Status `json:"status"`
	Critical   bool   `json:"critical"`
	Error      string `json:"error,omitempty"`
	DurationMS int64  `json:"duration_ms"`
}

var checkUp = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "health_check_up",
		Help: "Result of the last readiness check per dependency (1=up, 0=down)",
	},
	[]string{"check", "critical"},
)

type registration struct {
	check    Checker
	critical bool
}

// Handler serves /health/live and /health/ready. A failing critical check
// makes the service unready; a failing non-critical one only degrades it.
type Handler struct {
	mu       sync.RWMutex
	checkers map[string]registration
	timeout  time.Duration
}

// Option customises a Handler.
type Option func(*Handler)

// WithTimeout bounds each readiness run. The default is 5s.
func WithTimeout(d time.Duration) Option {
	return func(h *Handler) {
		if d > 0 {
			h.timeout = d
		}
	}
}

// NewHandler returns a Handler with no checks registered.
func NewHandler(opts ...Option) *Handler {
	h := &Handler{checkers: make(map[string]registration), timeout: 5 * time.Second}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Register is RegisterCritical.
func (h *Handler) Register(name string, checker Checker) {
	h.RegisterCritical(name, checker)
}

// RegisterCritical adds or replaces a check whose failure returns 503.
func (h *Handler) RegisterCritical(name string, checker Checker) {
	h.register(name, registration{check: checker, critical: true})
}

// RegisterNonCritical adds or replaces a check whose failure reports
// "degraded" with a 200.
func (h *Handler) RegisterNonCritical(name string, checker Checker) {
	h.register(name, registration{check: checker})
}

func (h *Handler) register(name string, reg registration) {
	h.mu.Lock()
	h.checkers[name] = reg
	h.mu.Unlock()
}

// Check runs every registered checker concurrently under the handler's
// timeout and aggregates the results.
func (h *Handler) Check(ctx context.Context) Response {
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	h.mu.RLock()
	regs := maps.Clone(h.checkers)
	h.mu.RUnlock()

	var mu sync.Mutex
	checks := make(map[string]CheckResult, len(regs))
	var g errgroup.Group
	for name, reg := range regs {
		g.Go(func() error {
			res := run(ctx, reg)
			mu.Lock()
			checks[name] = res
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	return Response{Status: aggregate(checks), Timestamp: time.Now().UTC(), Checks: checks}
}

func run(ctx context.Context, reg registration) CheckResult {
	start := time.Now()
	err := reg.check(ctx)
	res := CheckResult{Status: StatusUp, Critical: reg.critical, DurationMS: time.Since(start).Milliseconds()}
	if err != nil {
		res.Status, res.Error = StatusDown, err.Error()
	}
	return res
}

// aggregate is down if any critical check is down, degraded if only
// non-critical ones are, and up otherwise.
func aggregate(checks map[string]CheckResult) Status {
	overall := StatusUp
	for _, res := range checks {
		switch {
		case res.Status != StatusDown:
		case res.Critical:
			return StatusDown
		default:
			overall = StatusDegraded
		}
	}
	return overall
}

func record(checks map[string]CheckResult) {
	for name, res := range checks {
		up := 0.0
		if res.Status == StatusUp {
			up = 1
		}
		checkUp.WithLabelValues(name, strconv.FormatBool(res.Critical)).Set(up)
	}
}

// LivenessHandler answers 200 while the process can serve HTTP at all.
func (h *Handler) LivenessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, Response{Status: StatusUp, Timestamp: time.Now().UTC()})
	}
}

// ReadinessHandler runs the checks, exports them as health_check_up and
// answers 503 only when the aggregate is down.
func (h *Handler) ReadinessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := h.Check(r.Context())
		record(resp.Checks)
		status := http.StatusOK
		if resp.Status == StatusDown {
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, resp)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
