package main

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

const (
	statusRateLimit      = 60
	statusRateWindow     = time.Minute
	statusRateMaxClients = 4096
)

// statusRateLimiter allows max requests per client address in each window.
type statusRateLimiter struct {
	mu      sync.Mutex
	entries map[string]*statusRateEntry
	max     int
	window  time.Duration
	now     func() time.Time
}

type statusRateEntry struct {
	count int
	reset time.Time
}

func newStatusRateLimiter(max int, window time.Duration) *statusRateLimiter {
	if max <= 0 || window <= 0 {
		return nil
	}
	return &statusRateLimiter{
		entries: make(map[string]*statusRateEntry),
		max:     max,
		window:  window,
		now:     time.Now,
	}
}

// cleanupLocked drops entries one full window past their reset and trims
// arbitrary entries beyond statusRateMaxClients. l.mu must be held.
func (l *statusRateLimiter) cleanupLocked(now time.Time) {
	for k, entry := range l.entries {
		if now.After(entry.reset.Add(l.window)) {
			delete(l.entries, k)
		}
	}
	excess := len(l.entries) - statusRateMaxClients
	for k := range l.entries {
		if excess <= 0 {
			break
		}
		delete(l.entries, k)
		excess--
	}
}

func (l *statusRateLimiter) allow(key string) bool {
	if l == nil {
		return true
	}
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()
	l.cleanupLocked(now)
	if key == "" {
		key = "unknown"
	}
	entry, ok := l.entries[key]
	if !ok || now.After(entry.reset) {
		entry = &statusRateEntry{reset: now.Add(l.window)}
		l.entries[key] = entry
	}
	if entry.count >= l.max {
		return false
	}
	entry.count++
	return true
}

func (l *statusRateLimiter) middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !l.allow(c.ClientIP()) {
			c.Header("Retry-After", strconv.Itoa(int(l.window.Seconds())))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limited"})
			return
		}
		c.Next()
	}
}
