package middleware

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func allowlistStatus(t *testing.T, cidrs []string, remoteAddr string) int {
	t.Helper()
	h := IPAllowlist(cidrs, discardLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	req := httptest.NewRequest(http.MethodGet, "/debug/pprof/heap", nil)
	req.RemoteAddr = remoteAddr
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec.Code
}

// --- IPAllowlist ---

func TestIPAllowlist_Addresses(t *testing.T) {
	cidrs := []string{"10.0.0.0/8", "192.168.1.7/24", "fd00::/8"}

	tests := []struct {
		name   string
		remote string
		want   int
	}{
		{"ipv4 inside", "10.20.30.40:5123", http.StatusOK},
		{"non-canonical prefix is masked", "192.168.1.200:80", http.StatusOK},
		{"ipv4 outside", "172.16.0.1:5123", http.StatusForbidden},
		{"ipv4-mapped ipv6 inside", "[::ffff:10.1.2.3]:5123", http.StatusOK},
		{"ipv4-mapped ipv6 outside", "[::ffff:8.8.8.8]:5123", http.StatusForbidden},
		{"ipv6 inside", "[fd12:3456::1]:5123", http.StatusOK},
		{"ipv6 outside", "[2001:db8::1]:5123", http.StatusForbidden},
		{"no port", "10.0.0.1", http.StatusOK},
		{"zoned link-local", "[fe80::1%eth0]:5123", http.StatusForbidden},
		{"garbage", "not-an-ip", http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, allowlistStatus(t, cidrs, tt.remote))
		})
	}
}

func TestIPAllowlist_MappedPrefixMatchesPlainIPv4(t *testing.T) {
	cidrs := []string{"::ffff:10.0.0.0/104"}

	assert.Equal(t, http.StatusOK, allowlistStatus(t, cidrs, "10.9.8.7:1"))
	assert.Equal(t, http.StatusOK, allowlistStatus(t, cidrs, "[::ffff:10.9.8.7]:1"))
	assert.Equal(t, http.StatusForbidden, allowlistStatus(t, cidrs, "11.0.0.1:1"))
}

func TestIPAllowlist_NoValidPrefixDeniesAll(t *testing.T) {
	tests := []struct {
		name  string
		cidrs []string
	}{
		{"nil", nil},
		{"only invalid", []string{"loopback", "10.0.0.0/33", ""}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, http.StatusForbidden, allowlistStatus(t, tt.cidrs, "127.0.0.1:1"))
			assert.Equal(t, http.StatusForbidden, allowlistStatus(t, tt.cidrs, "[::1]:1"))
		})
	}
}

func TestIPAllowlist_InvalidEntrySkipped(t *testing.T) {
	cidrs := []string{"loopback", "127.0.0.0/8"}
	assert.Equal(t, http.StatusOK, allowlistStatus(t, cidrs, "127.0.0.1:1"))
}

func TestIPAllowlist_ForbiddenBody(t *testing.T) {
	h := IPAllowlist([]string{"10.0.0.0/8"}, discardLogger())(http.NotFoundHandler())
	req := httptest.NewRequest(http.MethodGet, "/debug/pprof/", nil)
	req.RemoteAddr = "203.0.113.9:443"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusForbidden, rec.Code)
	var body struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "FORBIDDEN", body.Error.Code)
}

// --- RegisterPprof ---

func TestRegisterPprof_Routes(t *testing.T) {
	r := chi.NewRouter()
	RegisterPprof(r, []string{"127.0.0.0/8"}, discardLogger())

	for _, path := range []string{"/debug/pprof/", "/debug/pprof/heap", "/debug/pprof/cmdline", "/debug/pprof/symbol"} {
		t.Run(path, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, path, nil)
			req.RemoteAddr = "[::ffff:127.0.0.1]:40000"
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, req)
			assert.Equal(t, http.StatusOK, rec.Code)
		})
	}
}

func TestRegisterPprof_OtherRoutesUnaffected(t *testing.T) {
	r := chi.NewRouter()
	r.Get("/api/v1/stats", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	RegisterPprof(r, []string{"10.0.0.0/8"}, discardLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/stats", nil)
	req.RemoteAddr = "203.0.113.9:443"
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/debug/pprof/", nil)
	req.RemoteAddr = "203.0.113.9:443"
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}
