package fakeapi

import (
	"net/http"
	"strings"
	"sync"
	"time"
)

// rateLimiter allows max requests per client IP within a sliding window.
type rateLimiter struct {
	max    int
	window time.Duration
	now    func() time.Time

	mu       sync.Mutex
	requests map[string][]time.Time // IP -> timestamps
}

func newRateLimiter(maxRequests int, window time.Duration, now func() time.Time) *rateLimiter {
	return &rateLimiter{max: maxRequests, window: window, now: now, requests: make(map[string][]time.Time)}
}

// allow records a request from ip and reports whether it is within the limit.
func (l *rateLimiter) allow(ip string) bool {
	now := l.now()
	windowStart := now.Add(-l.window)

	l.mu.Lock()
	defer l.mu.Unlock()
	valid := l.requests[ip][:0]
	for _, ts := range l.requests[ip] {
		if !ts.Before(windowStart) {
			valid = append(valid, ts)
		}
	}
	if len(valid) >= l.max {
		l.requests[ip] = valid
		return false
	}
	l.requests[ip] = append(valid, now)
	return true
}

func (l *rateLimiter) wrap(next http.HandlerFunc) http.HandlerFunc {
	if l == nil {
		return next
	}
	return func(w http.ResponseWriter, r *http.Request) {
		if !l.allow(clientIP(r)) {
			writeError(w, http.StatusTooManyRequests, "Too many attempts, try again later")
			return
		}
		next(w, r)
	}
}

// clientIP extracts the client IP from the request
func clientIP(r *http.Request) string {
	if ip := r.Header.Get("X-Forwarded-For"); ip != "" {
		return strings.TrimSpace(strings.Split(ip, ",")[0])
	}
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return ip
	}
	ip := r.RemoteAddr
	if colonIndex := strings.LastIndex(ip, ":"); colonIndex != -1 {
		ip = ip[:colonIndex]
	}
	return ip
}
