package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/keyxmakerx/rollcall/internal/apperror"
)

func okHandler(c echo.Context) error {
	return c.String(http.StatusOK, "ok")
}

// --- RateLimit ---

func TestRateLimit_BlocksAfterBurstAndRefills(t *testing.T) {
	now := time.Date(2026, 3, 7, 9, 0, 0, 0, time.UTC)
	l := newIPLimiter(3, time.Minute)
	l.now = func() time.Time { return now }

	e := echo.New()
	h := rateLimit(l)(okHandler)

	call := func(ip string) error {
		req := httptest.NewRequest(http.MethodPost, "/api/auth/login", nil)
		req.RemoteAddr = ip + ":5555"
		return h(e.NewContext(req, httptest.NewRecorder()))
	}

	for i := 0; i < 3; i++ {
		if err := call("203.0.113.5"); err != nil {
			t.Fatalf("request %d: unexpected error: %v", i+1, err)
		}
	}

	err := call("203.0.113.5")
	var appErr *apperror.AppError
	if !errors.As(err, &appErr) || appErr.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %v", err)
	}
	if appErr.RetryAfter != 20 {
		t.Errorf("expected retry after 20s (one token per 20s), got %d", appErr.RetryAfter)
	}

	// Other clients have their own bucket.
	if err := call("203.0.113.6"); err != nil {
		t.Errorf("expected a different IP to pass, got %v", err)
	}

	now = now.Add(20 * time.Second)
	if err := call("203.0.113.5"); err != nil {
		t.Errorf("expected a refilled token after 20s, got %v", err)
	}
}

func TestRateLimit_SweepsIdleVisitors(t *testing.T) {
	now := time.Date(2026, 3, 7, 9, 0, 0, 0, time.UTC)
	l := newIPLimiter(10, time.Minute)
	l.now = func() time.Time { return now }

	l.wait("198.51.100.1")
	now = now.Add(idleTTL + time.Minute)
	for i := 0; i < sweepEvery; i++ {
		l.wait("198.51.100.2")
	}

	if _, ok := l.visitors["198.51.100.1"]; ok {
		t.Error("expected idle visitor to be swept")
	}
}

// --- TrustedProxies ---

func TestIPExtractor(t *testing.T) {
	extract := buildIPExtractor([]string{"10.0.0.0/8", "not-a-cidr"})

	tests := []struct {
		name   string
		remote string
		xrip   string
		xff    string
		want   string
	}{
		{"direct client ignores headers", "203.0.113.7:1234", "1.2.3.4", "5.6.7.8", "203.0.113.7"},
		{"X-Real-IP is never trusted", "10.0.0.2:1234", "198.51.100.9", "", "10.0.0.2"},
		{"single proxy hop", "10.0.0.2:1234", "", "203.0.113.7", "203.0.113.7"},
		{"client-prepended entries are skipped", "10.0.0.2:1234", "", "198.51.100.1, 203.0.113.7", "203.0.113.7"},
		{"trusted hops are skipped", "10.0.0.2:1234", "", "198.51.100.1, 203.0.113.7, 10.0.0.3", "203.0.113.7"},
		{"garbage entry falls back to peer", "10.0.0.2:1234", "", "evil, 203.0.113.7", "203.0.113.7"},
		{"garbage nearest entry falls back to peer", "10.0.0.2:1234", "", "203.0.113.7, evil", "10.0.0.2"},
		{"trusted proxy without headers", "10.0.0.2:1234", "", "", "10.0.0.2"},
		{"private ranges are not trusted unless configured", "192.168.1.5:1234", "", "203.0.113.7", "192.168.1.5"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tc.remote
			if tc.xrip != "" {
				req.Header.Set("X-Real-IP", tc.xrip)
			}
			if tc.xff != "" {
				req.Header.Set("X-Forwarded-For", tc.xff)
			}
			if got := extract(req); got != tc.want {
				t.Errorf("expected %s, got %s", tc.want, got)
			}
		})
	}
}

func TestIPExtractor_SpoofedPrefixKeepsOneRateLimitBucket(t *testing.T) {
	e := echo.New()
	TrustedProxies(e, []string{"10.0.0.0/8"})
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		_ = c.NoContent(apperror.SafeCode(err))
	}
	e.POST("/api/auth/login", okHandler, RateLimit(3, time.Minute))

	codes := make([]int, 0, 5)
	for i := 0; i < 5; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/auth/login", nil)
		req.RemoteAddr = "10.0.0.2:4000"
		req.Header.Set("X-Forwarded-For", fmt.Sprintf("198.51.100.%d, 203.0.113.7", i+1))
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}

	if codes[2] != http.StatusOK || codes[3] != http.StatusTooManyRequests {
		t.Errorf("expected the 4th request from one client to be limited, got %v", codes)
	}
}

// --- CORS ---

func TestCORS_AllowedOriginAndPreflight(t *testing.T) {
	e := echo.New()
	h := CORS(CORSConfig{AllowedOrigins: []string{"https://rollcall.example/"}, AllowCredentials: true})(okHandler)

	req := httptest.NewRequest(http.MethodOptions, "/api/auth/login", nil)
	req.Header.Set("Origin", "https://rollcall.example")
	rec := httptest.NewRecorder()
	if err := h(e.NewContext(req, rec)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if rec.Code != http.StatusNoContent {
		t.Errorf("expected 204 preflight, got %d", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://rollcall.example" {
		t.Errorf("unexpected allow origin %q", got)
	}
	if got := rec.Header().Get("Access-Control-Allow-Credentials"); got != "true" {
		t.Errorf("expected credentials allowed, got %q", got)
	}
}

func TestCORS_UnknownOriginGetsNoHeaders(t *testing.T) {
	e := echo.New()
	h := CORS(CORSConfig{AllowedOrigins: []string{"https://rollcall.example"}})(okHandler)

	req := httptest.NewRequest(http.MethodGet, "/api/attendance/history", nil)
	req.Header.Set("Origin", "https://evil.example")
	rec := httptest.NewRecorder()
	if err := h(e.NewContext(req, rec)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("expected no CORS headers, got %q", got)
	}
}

func TestCORS_WildcardDropsCredentials(t *testing.T) {
	e := echo.New()
	h := CORS(CORSConfig{AllowedOrigins: []string{"*"}, AllowCredentials: true})(okHandler)

	req := httptest.NewRequest(http.MethodGet, "/api/x", nil)
	req.Header.Set("Origin", "https://any.example")
	rec := httptest.NewRecorder()
	_ = h(e.NewContext(req, rec))

	if got := rec.Header().Get("Access-Control-Allow-Credentials"); got != "" {
		t.Errorf("expected credentials disabled for wildcard, got %q", got)
	}
}

// --- SecurityHeaders / Recovery ---

func TestSecurityHeaders_APIResponsesAreNotCached(t *testing.T) {
	e := echo.New()
	h := SecurityHeaders(true)(okHandler)

	req := httptest.NewRequest(http.MethodGet, "/api/attendance/history", nil)
	rec := httptest.NewRecorder()
	_ = h(e.NewContext(req, rec))

	if rec.Header().Get("Cache-Control") != "no-store" {
		t.Error("expected Cache-Control: no-store on API responses")
	}
	if rec.Header().Get("Strict-Transport-Security") == "" {
		t.Error("expected HSTS when enabled")
	}
}

func TestRecovery_TurnsPanicIntoInternalError(t *testing.T) {
	e := echo.New()
	h := Recovery()(func(c echo.Context) error { panic("boom") })

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	err := h(e.NewContext(req, httptest.NewRecorder()))
	if apperror.SafeCode(err) != http.StatusInternalServerError {
		t.Errorf("expected 500 error, got %v", err)
	}
}
