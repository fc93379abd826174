package middleware

import (
	"net/http"
	"slices"
	"strconv"
	"strings"
)

// TraceparentHeader is the W3C trace context header the Tracing middleware
// writes on every response.
const TraceparentHeader = "Traceparent"

// CORSConfig controls which browser origins may call the API.
type CORSConfig struct {
	// AllowedOrigins lists exact origins. "*" admits any origin.
	AllowedOrigins []string

	AllowedMethods []string
	AllowedHeaders []string

	// ExposedHeaders are readable by browser scripts on actual responses.
	ExposedHeaders []string

	// MaxAge is the preflight cache lifetime in seconds.
	MaxAge int

	// AllowCredentials turns on credentialed requests. A wildcard origin is
	// then echoed back instead of sent as "*".
	AllowCredentials bool
}

// DefaultCORSConfig admits every origin. Storefront pages query the search
// API from the browser; writes still require the bearer token, never cookies.
func DefaultCORSConfig() CORSConfig {
	return CORSConfig{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", CorrelationIDHeader, TraceparentHeader},
		ExposedHeaders: []string{CorrelationIDHeader, TraceparentHeader},
		MaxAge:         600,
	}
}

// CORS answers preflight requests itself and decorates actual requests from
// allowed origins. Requests without an Origin header pass through untouched.
func CORS(cfg CORSConfig) func(http.Handler) http.Handler {
	if len(cfg.AllowedMethods) == 0 {
		cfg.AllowedMethods = DefaultCORSConfig().AllowedMethods
	}
	if len(cfg.AllowedHeaders) == 0 {
		cfg.AllowedHeaders = DefaultCORSConfig().AllowedHeaders
	}

	anyOrigin := slices.Contains(cfg.AllowedOrigins, "*")
	origins := make(map[string]struct{}, len(cfg.AllowedOrigins))
	for _, o := range cfg.AllowedOrigins {
		origins[strings.ToLower(o)] = struct{}{}
	}
	methods := make(map[string]struct{}, len(cfg.AllowedMethods))
	for _, m := range cfg.AllowedMethods {
		methods[strings.ToUpper(m)] = struct{}{}
	}

	allowMethods := strings.Join(cfg.AllowedMethods, ", ")
	allowHeaders := strings.Join(cfg.AllowedHeaders, ", ")
	exposed := strings.Join(cfg.ExposedHeaders, ", ")
	maxAge := strconv.Itoa(cfg.MaxAge)

	originAllowed := func(origin string) bool {
		if anyOrigin {
			return true
		}
		_, ok := origins[strings.ToLower(origin)]
		return ok
	}

	setOrigin := func(h http.Header, origin string) {
		if anyOrigin && !cfg.AllowCredentials {
			h.Set("Access-Control-Allow-Origin", "*")
		} else {
			h.Set("Access-Control-Allow-Origin", origin)
			h.Add("Vary", "Origin")
		}
		if cfg.AllowCredentials {
			h.Set("Access-Control-Allow-Credentials", "true")
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin == "" {
				next.ServeHTTP(w, r)
				return
			}
			h := w.Header()

			reqMethod := r.Header.Get("Access-Control-Request-Method")
			if r.Method == http.MethodOptions && reqMethod != "" {
				h.Add("Vary", "Access-Control-Request-Method")
				h.Add("Vary", "Access-Control-Request-Headers")
				_, methodOK := methods[strings.ToUpper(reqMethod)]
				if originAllowed(origin) && methodOK {
					setOrigin(h, origin)
					h.Set("Access-Control-Allow-Methods", allowMethods)
					h.Set("Access-Control-Allow-Headers", allowHeaders)
					if cfg.MaxAge > 0 {
						h.Set("Access-Control-Max-Age", maxAge)
					}
				}
				w.WriteHeader(http.StatusNoContent)
				return
			}

			if originAllowed(origin) {
				setOrigin(h, origin)
				if exposed != "" {
					h.Set("Access-Control-Expose-Headers", exposed)
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}
