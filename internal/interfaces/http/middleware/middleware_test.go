package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

type countingLimiter struct {
	limit int
	seen  map[string]int
	err   error
}

func (l *countingLimiter) Allow(_ context.Context, key string, _ int, _ time.Duration) (bool, error) {
	if l.err != nil {
		return false, l.err
	}
	l.seen[key]++
	return l.seen[key] <= l.limit, nil
}

func newEngine(mw ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(mw...)
	r.POST("/v1/generate", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	r.GET("/panic", func(c *gin.Context) { panic("boom") })
	r.GET("/id", func(c *gin.Context) { c.String(http.StatusOK, c.GetString("request_id")) })
	return r
}

func serve(r *gin.Engine, method, path string, header http.Header) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	for k, v := range header {
		req.Header[k] = v
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestRateLimit(t *testing.T) {
	limiter := &countingLimiter{limit: 1, seen: map[string]int{}}
	r := newEngine(RateLimit(RateLimitConfig{Enabled: true, Requests: 1, Window: time.Minute}, limiter))

	if rec := serve(r, http.MethodPost, "/v1/generate", nil); rec.Code != http.StatusOK {
		t.Fatalf("first request: %d", rec.Code)
	}
	rec := serve(r, http.MethodPost, "/v1/generate", nil)
	if rec.Code != http.StatusTooManyRequests || !strings.Contains(rec.Body.String(), "1009") {
		t.Fatalf("expected 429 with error code, got %d %s", rec.Code, rec.Body.String())
	}
	for key := range limiter.seen {
		if !strings.HasSuffix(key, ":/v1/generate") {
			t.Fatalf("unexpected limiter key %q", key)
		}
	}
}

func TestRateLimit_FailsOpen(t *testing.T) {
	broken := &countingLimiter{err: errors.New("redis down")}
	r := newEngine(RateLimit(RateLimitConfig{Enabled: true}, broken))
	if rec := serve(r, http.MethodPost, "/v1/generate", nil); rec.Code != http.StatusOK {
		t.Fatalf("expected pass-through on limiter error, got %d", rec.Code)
	}

	disabled := newEngine(RateLimit(RateLimitConfig{Enabled: false}, nil))
	if rec := serve(disabled, http.MethodPost, "/v1/generate", nil); rec.Code != http.StatusOK {
		t.Fatalf("expected pass-through when disabled, got %d", rec.Code)
	}
}

func TestRecovery(t *testing.T) {
	r := newEngine(RequestID(), Recovery())
	rec := serve(r, http.MethodGet, "/panic", nil)
	if rec.Code != http.StatusInternalServerError || !strings.Contains(rec.Body.String(), `"error_code":"1007"`) {
		t.Fatalf("unexpected recovery response %d %s", rec.Code, rec.Body.String())
	}
}

func TestRequestID(t *testing.T) {
	r := newEngine(RequestID())

	rec := serve(r, http.MethodGet, "/id", http.Header{"X-Request-Id": {"abc-123"}})
	if rec.Body.String() != "abc-123" || rec.Header().Get("X-Request-ID") != "abc-123" {
		t.Fatalf("expected incoming request id to be kept, got %q", rec.Body.String())
	}

	rec = serve(r, http.MethodGet, "/id", http.Header{"X-Request-Id": {strings.Repeat("x", 200)}})
	if got := rec.Body.String(); got == "" || len(got) > 128 {
		t.Fatalf("expected oversized id to be replaced, got %q", got)
	}
}
