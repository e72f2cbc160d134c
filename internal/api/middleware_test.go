package api_test

import (
	"net/http"
	"testing"

	"github.com/attestry/attestry/internal/api"
	"github.com/gin-gonic/gin"
)

func TestRateLimiter_blocksAfterBurst(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(api.RateLimiter(1, 1))
	r.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })

	// Same client IP for both requests; burst 1 means the second is refused
	// before any refill can happen.
	w := doJSON(t, r, http.MethodGet, "/ping", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("first request: got %d, want 200", w.Code)
	}

	w = doJSON(t, r, http.MethodGet, "/ping", "", nil)
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("second request: got %d, want 429", w.Code)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Error("throttled response should carry Retry-After")
	}
}

func TestRequestID_generatedAndEchoed(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(api.RequestID())
	r.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := doJSON(t, r, http.MethodGet, "/ping", "", nil)
	if w.Header().Get("X-Request-ID") == "" {
		t.Error("response should carry a generated X-Request-ID")
	}

	w = doJSON(t, r, http.MethodGet, "/ping", "", map[string]string{"X-Request-ID": "req-42"})
	if got := w.Header().Get("X-Request-ID"); got != "req-42" {
		t.Errorf("caller-supplied request id not echoed: got %q", got)
	}
}

func TestSecurityHeaders(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(api.SecurityHeaders())
	r.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := doJSON(t, r, http.MethodGet, "/ping", "", nil)
	if w.Header().Get("X-Frame-Options") != "DENY" {
		t.Error("X-Frame-Options not set")
	}
	if w.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("X-Content-Type-Options not set")
	}
}
