package middleware

import (
	"fmt"
	"net/http"
)

// CacheControl marks successful GET responses as cacheable for maxAge
// seconds. Other methods and error responses get no-store.
func CacheControl(maxAge int) func(http.Handler) http.Handler {
	cacheable := fmt.Sprintf("public, max-age=%d", maxAge)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodGet && r.Method != http.MethodHead {
				w.Header().Set("Cache-Control", "no-store")
				next.ServeHTTP(w, r)
				return
			}
			next.ServeHTTP(&cacheWriter{ResponseWriter: w, value: cacheable}, r)
		})
	}
}

// cacheWriter decides the Cache-Control header once the status is known.
type cacheWriter struct {
	http.ResponseWriter
	value   string
	decided bool
}

func (w *cacheWriter) WriteHeader(code int) {
	w.decide(code)
	w.ResponseWriter.WriteHeader(code)
}

func (w *cacheWriter) Write(b []byte) (int, error) {
	w.decide(http.StatusOK)
	return w.ResponseWriter.Write(b)
}

func (w *cacheWriter) decide(code int) {
	if w.decided {
		return
	}
	w.decided = true
	if code >= 200 && code < 300 {
		w.Header().Set("Cache-Control", w.value)
	} else {
		w.Header().Set("Cache-Control", "no-store")
	}
}

func (w *cacheWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
