package auth

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/libdesk/libdesk/internal/config"
)

// MsgTooManyAttempts is returned with 429 while a client+account pair is locked out.
const MsgTooManyAttempts = "too many failed login attempts, try again later"

// maxLoginBody caps how much of a login body the limiter reads to find the uid.
const maxLoginBody = 64 << 10

// RateLimitConfig contains configuration for the rate limiter.
type RateLimitConfig struct {
	MaxAttempts     int           // failures allowed inside one window (default: 5)
	WindowDuration  time.Duration // default: 15m
	LockoutDuration time.Duration // default: 30m
	CleanupInterval time.Duration // default: 5m
}

// DefaultRateLimitConfig returns the limits used when nothing is configured.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		MaxAttempts:     5,
		WindowDuration:  15 * time.Minute,
		LockoutDuration: 30 * time.Minute,
		CleanupInterval: 5 * time.Minute,
	}
}

// RateLimitConfigFromAuth overlays the configured auth limits on the defaults.
func RateLimitConfigFromAuth(cfg config.Auth) RateLimitConfig {
	rl := DefaultRateLimitConfig()
	if cfg.MaxLoginAttempts > 0 {
		rl.MaxAttempts = cfg.MaxLoginAttempts
	}
	if cfg.RateLimitWindow > 0 {
		rl.WindowDuration = cfg.RateLimitWindow
	}
	if cfg.LockoutDuration > 0 {
		rl.LockoutDuration = cfg.LockoutDuration
	}
	return rl
}

// failureWindow counts failed logins for one client+account pair.
type failureWindow struct {
	failures    int
	opened      time.Time
	lockedUntil time.Time
}

func (w *failureWindow) locked(now time.Time) bool {
	return now.Before(w.lockedUntil)
}

// RateLimiter throttles failed logins per client IP and account uid.
type RateLimiter struct {
	cfg  RateLimitConfig
	now  func() time.Time
	stop chan struct{}
	once sync.Once

	mu      sync.Mutex
	windows map[string]*failureWindow
}

// NewRateLimiter starts a limiter. Zero fields in cfg take their defaults.
// Call Stop to end the background sweep.
func NewRateLimiter(cfg RateLimitConfig) *RateLimiter {
	def := DefaultRateLimitConfig()
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.WindowDuration <= 0 {
		cfg.WindowDuration = def.WindowDuration
	}
	if cfg.LockoutDuration <= 0 {
		cfg.LockoutDuration = def.LockoutDuration
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = def.CleanupInterval
	}

	rl := &RateLimiter{
		cfg:     cfg,
		now:     time.Now,
		stop:    make(chan struct{}),
		windows: make(map[string]*failureWindow),
	}
	go rl.sweepLoop()
	return rl
}

// Stop ends the background sweep. It is safe to call more than once.
func (rl *RateLimiter) Stop() {
	rl.once.Do(func() { close(rl.stop) })
}

func windowKey(ip, uid string) string {
	return ip + "|" + uid
}

// current returns the live window for key, dropping one whose period has
// passed without a lockout still running. Callers hold mu.
func (rl *RateLimiter) current(key string, now time.Time) *failureWindow {
	w, ok := rl.windows[key]
	if !ok {
		return nil
	}
	if !w.locked(now) && now.Sub(w.opened) > rl.cfg.WindowDuration {
		delete(rl.windows, key)
		return nil
	}
	return w
}

// Allow reports whether a login for uid from ip may proceed, and if not, how
// long the caller has to wait.
func (rl *RateLimiter) Allow(ip, uid string) (bool, time.Duration) {
	now := rl.now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	w := rl.current(windowKey(ip, uid), now)
	switch {
	case w == nil:
		return true, 0
	case w.locked(now):
		return false, w.lockedUntil.Sub(now)
	case w.failures >= rl.cfg.MaxAttempts:
		return false, rl.cfg.LockoutDuration
	default:
		return true, 0
	}
}

// RecordFailure counts a rejected login. It reports whether the pair is now
// locked out and for how long.
func (rl *RateLimiter) RecordFailure(ip, uid string) (bool, time.Duration) {
	now := rl.now()
	key := windowKey(ip, uid)

	rl.mu.Lock()
	defer rl.mu.Unlock()

	w := rl.current(key, now)
	if w == nil {
		w = &failureWindow{opened: now}
		rl.windows[key] = w
	}
	w.failures++
	if w.failures < rl.cfg.MaxAttempts {
		return false, 0
	}
	w.lockedUntil = now.Add(rl.cfg.LockoutDuration)
	return true, rl.cfg.LockoutDuration
}

// RecordSuccess forgets the failures of a pair after a good login.
func (rl *RateLimiter) RecordSuccess(ip, uid string) {
	rl.mu.Lock()
	delete(rl.windows, windowKey(ip, uid))
	rl.mu.Unlock()
}

func (rl *RateLimiter) sweepLoop() {
	ticker := time.NewTicker(rl.cfg.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.sweep()
		case <-rl.stop:
			return
		}
	}
}

func (rl *RateLimiter) sweep() {
	now := rl.now()

	rl.mu.Lock()
	defer rl.mu.Unlock()
	for key := range rl.windows {
		rl.current(key, now)
	}
}

// LoginMiddleware guards a JSON login route. It reads the account id from the
// body (uid, username or userId) without consuming it, answers 429 while the
// pair is locked out, and afterwards counts a 401 as a failure and a 200 as a
// success. Requests without an account id pass through for the handler to reject.
func (rl *RateLimiter) LoginMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		uid := peekLoginUID(c)
		if uid == "" {
			c.Next()
			return
		}

		ip := c.ClientIP()
		if allowed, retryAfter := rl.Allow(ip, uid); !allowed {
			c.Header("Retry-After", strconv.Itoa(int(retryAfter.Seconds())+1))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"success": false,
				"error":   MsgTooManyAttempts,
			})
			return
		}

		c.Next()

		switch c.Writer.Status() {
		case http.StatusOK:
			rl.RecordSuccess(ip, uid)
		case http.StatusUnauthorized:
			rl.RecordFailure(ip, uid)
		}
	}
}

// peekLoginUID decodes the account id from a JSON body and puts the body back.
func peekLoginUID(c *gin.Context) string {
	if c.Request.Body == nil {
		return ""
	}
	data, err := io.ReadAll(io.LimitReader(c.Request.Body, maxLoginBody))
	_ = c.Request.Body.Close()
	c.Request.Body = io.NopCloser(bytes.NewReader(data))
	if err != nil {
		return ""
	}

	var body struct {
		UID      json.RawMessage `json:"uid"`
		Username json.RawMessage `json:"username"`
		UserID   json.RawMessage `json:"userId"`
	}
	if json.Unmarshal(data, &body) != nil {
		return ""
	}
	for _, raw := range []json.RawMessage{body.UID, body.Username, body.UserID} {
		if id := rawID(raw); id != "" {
			return id
		}
	}
	return ""
}

// rawID renders a JSON string or number as an id.
func rawID(raw json.RawMessage) string {
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return strings.TrimSpace(s)
	}
	var n json.Number
	if json.Unmarshal(raw, &n) == nil {
		return n.String()
	}
	return ""
}
