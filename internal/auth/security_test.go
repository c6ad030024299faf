package auth

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/libdesk/libdesk/internal/config"
)

// TestRateLimiter tests the rate limiting functionality.
func TestRateLimiter_AllowsInitialAttempts(t *testing.T) {
	rl := NewRateLimiter(RateLimitConfig{
		MaxAttempts:     3,
		WindowDuration:  time.Minute,
		LockoutDuration: time.Minute,
		CleanupInterval: time.Hour, // Long interval to prevent cleanup during test
	})
	defer rl.Stop()

	// First 3 attempts should be allowed
	for i := 0; i < 3; i++ {
		allowed, _ := rl.Allow("192.168.1.1", "u1")
		if !allowed {
			t.Errorf("Attempt %d should be allowed", i+1)
		}
		rl.RecordFailure("192.168.1.1", "u1")
	}

	// 4th attempt should be blocked
	allowed, retryAfter := rl.Allow("192.168.1.1", "u1")
	if allowed {
		t.Error("4th attempt should be blocked")
	}
	if retryAfter == 0 {
		t.Error("retryAfter should be non-zero when blocked")
	}
}

func TestRateLimiter_SuccessResetsCounter(t *testing.T) {
	rl := NewRateLimiter(RateLimitConfig{
		MaxAttempts:     3,
		WindowDuration:  time.Minute,
		LockoutDuration: time.Minute,
		CleanupInterval: time.Hour,
	})
	defer rl.Stop()

	rl.RecordFailure("192.168.1.1", "u1")
	rl.RecordFailure("192.168.1.1", "u1")

	rl.RecordSuccess("192.168.1.1", "u1")

	allowed, _ := rl.Allow("192.168.1.1", "u1")
	if !allowed {
		t.Error("Should be allowed after successful login")
	}
}

func TestRateLimiter_DifferentUsersAreIndependent(t *testing.T) {
	rl := NewRateLimiter(RateLimitConfig{
		MaxAttempts:     2,
		WindowDuration:  time.Minute,
		LockoutDuration: time.Minute,
		CleanupInterval: time.Hour,
	})
	defer rl.Stop()

	rl.RecordFailure("192.168.1.1", "u1")
	rl.RecordFailure("192.168.1.1", "u1")

	allowed, _ := rl.Allow("192.168.1.1", "u1")
	if allowed {
		t.Error("u1 should be blocked")
	}

	allowed, _ = rl.Allow("192.168.1.1", "u2")
	if !allowed {
		t.Error("u2 should be allowed")
	}
}

func TestRateLimiter_WindowExpires(t *testing.T) {
	rl := NewRateLimiter(RateLimitConfig{
		MaxAttempts:     2,
		WindowDuration:  time.Minute,
		LockoutDuration: 5 * time.Minute,
		CleanupInterval: time.Hour,
	})
	defer rl.Stop()

	now := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	rl.RecordFailure("10.0.0.1", "u1")
	now = now.Add(2 * time.Minute)
	if locked, _ := rl.RecordFailure("10.0.0.1", "u1"); locked {
		t.Error("a failure outside the window should start a new count")
	}

	if locked, _ := rl.RecordFailure("10.0.0.1", "u1"); !locked {
		t.Fatal("second failure in the window should lock")
	}
	now = now.Add(4 * time.Minute)
	if allowed, retryAfter := rl.Allow("10.0.0.1", "u1"); allowed || retryAfter != time.Minute {
		t.Errorf("Allow = %v, %v; want locked for 1m", allowed, retryAfter)
	}

	now = now.Add(2 * time.Minute)
	if allowed, _ := rl.Allow("10.0.0.1", "u1"); !allowed {
		t.Error("should be allowed once the lockout and window have passed")
	}
}

func TestRateLimiter_LoginMiddleware(t *testing.T) {
	rl := NewRateLimiter(RateLimitConfig{MaxAttempts: 2, CleanupInterval: time.Hour})
	defer rl.Stop()

	router := gin.New()
	router.POST("/login", rl.LoginMiddleware(), func(c *gin.Context) {
		body, _ := io.ReadAll(c.Request.Body)
		if strings.Contains(string(body), `"password":"right"`) {
			c.Status(http.StatusOK)
			return
		}
		c.Status(http.StatusUnauthorized)
	})

	login := func(body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)
		return rr
	}

	if rr := login(`{"uid":"u1","password":"right"}`); rr.Code != http.StatusOK {
		t.Fatalf("Expected the handler to see the full body, got %d", rr.Code)
	}

	login(`{"uid":"u1","password":"wrong"}`)
	login(`{"username":" u1 ","password":"wrong"}`)

	rr := login(`{"userId":"u1","password":"right"}`)
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("Expected 429 after two failures, got %d", rr.Code)
	}
	if rr.Header().Get("Retry-After") == "" {
		t.Error("Expected Retry-After header")
	}
	if !strings.Contains(rr.Body.String(), MsgTooManyAttempts) {
		t.Errorf("Unexpected body %s", rr.Body.String())
	}

	if rr := login(`{"uid":7,"password":"right"}`); rr.Code != http.StatusOK {
		t.Errorf("Other accounts are unaffected, got %d", rr.Code)
	}
	if rr := login(`not json`); rr.Code != http.StatusUnauthorized {
		t.Errorf("Unparseable bodies reach the handler, got %d", rr.Code)
	}
}

func TestRateLimitConfigFromAuth(t *testing.T) {
	cfg := RateLimitConfigFromAuth(config.Auth{MaxLoginAttempts: 9, LockoutDuration: time.Minute})

	if cfg.MaxAttempts != 9 {
		t.Errorf("MaxAttempts = %d, want 9", cfg.MaxAttempts)
	}
	if cfg.WindowDuration != 15*time.Minute {
		t.Errorf("WindowDuration = %v, want default 15m", cfg.WindowDuration)
	}
	if cfg.LockoutDuration != time.Minute {
		t.Errorf("LockoutDuration = %v, want 1m", cfg.LockoutDuration)
	}
}

// TestSecurityHeaders tests that security headers are set correctly.
func TestSecurityHeaders(t *testing.T) {
	router := gin.New()
	router.Use(SecurityHeadersMiddleware())
	router.GET("/test", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	headers := map[string]string{
		"X-Frame-Options":        "DENY",
		"X-Content-Type-Options": "nosniff",
		"Referrer-Policy":        "strict-origin-when-cross-origin",
		"Cache-Control":          "no-store",
	}

	for header, expected := range headers {
		if got := rr.Header().Get(header); got != expected {
			t.Errorf("Header %s = %q, want %q", header, got, expected)
		}
	}

	if csp := rr.Header().Get("Content-Security-Policy"); csp == "" {
		t.Error("Content-Security-Policy header should be set")
	}
}

// TestHSTSHeader tests HSTS header is only set for HTTPS.
func TestHSTSHeader(t *testing.T) {
	router := gin.New()
	router.Use(StrictTransportSecurityMiddleware())
	router.GET("/test", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	// HTTP request - should not have HSTS
	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if hsts := rr.Header().Get("Strict-Transport-Security"); hsts != "" {
		t.Error("HSTS should not be set for HTTP requests")
	}

	// HTTPS request (via X-Forwarded-Proto) - should have HSTS
	req = httptest.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set("X-Forwarded-Proto", "https")
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if hsts := rr.Header().Get("Strict-Transport-Security"); hsts == "" {
		t.Error("HSTS should be set for HTTPS requests")
	}
}
