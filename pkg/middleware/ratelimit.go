package middleware

import (
	"context"
	"encoding/json"
	"math"
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/job-match-ranking/pkg/logger"
)

type bucket struct {
	tokens    float64
	lastCheck time.Time
}

// Limiter is an in-memory token bucket per client key. Each key may spend
// limit tokens per window, refilled continuously.
type Limiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	limit   int
	window  time.Duration
	now     func() time.Time
	trusted []netip.Prefix
}

func NewLimiter(limit int, window time.Duration) *Limiter {
	return &Limiter{
		buckets: make(map[string]*bucket),
		limit:   limit,
		window:  window,
		now:     time.Now,
	}
}

// TrustProxies sets the peers whose X-Forwarded-For header names the client.
// Entries are CIDRs or bare IPs. Requests from any other peer are keyed by
// their remote address.
func (l *Limiter) TrustProxies(entries []string) error {
	trusted := make([]netip.Prefix, 0, len(entries))
	for _, e := range entries {
		e = strings.TrimSpace(e)
		if e == "" {
			continue
		}
		if p, err := netip.ParsePrefix(e); err == nil {
			trusted = append(trusted, p.Masked())
			continue
		}
		addr, err := netip.ParseAddr(e)
		if err != nil {
			return fmt.Errorf("trusted proxy %q: not an IP or CIDR", e)
		}
		trusted = append(trusted, netip.PrefixFrom(addr, addr.BitLen()))
	}
	l.trusted = trusted
	return nil
}

func (l *Limiter) isTrusted(host string) bool {
	addr, err := netip.ParseAddr(host)
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	for _, p := range l.trusted {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// Allow consumes one token for key. When the bucket is empty it returns
// false and the wait until the next token.
func (l *Limiter) Allow(key string) (bool, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	b, ok := l.buckets[key]
	if !ok {
		l.buckets[key] = &bucket{tokens: float64(l.limit - 1), lastCheck: now}
		return true, 0
	}

	rate := float64(l.limit) / l.window.Seconds()
	b.tokens = math.Min(float64(l.limit), b.tokens+now.Sub(b.lastCheck).Seconds()*rate)
	b.lastCheck = now

	if b.tokens < 1 {
		return false, time.Duration((1 - b.tokens) / rate * float64(time.Second))
	}
	b.tokens--
	return true, 0
}

// Len reports the number of tracked keys.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

// Sweep drops keys idle for longer than two windows.
func (l *Limiter) Sweep() {
	l.mu.Lock()
	defer l.mu.Unlock()
	cutoff := l.now().Add(-2 * l.window)
	for key, b := range l.buckets {
		if b.lastCheck.Before(cutoff) {
			delete(l.buckets, key)
		}
	}
}

// RunSweeper calls Sweep every window until ctx is done.
func (l *Limiter) RunSweeper(ctx context.Context) {
	ticker := time.NewTicker(l.window)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.Sweep()
		}
	}
}

// RateLimit throttles requests whose path starts with prefix, keyed by
// client IP. A nil limiter disables it.
func RateLimit(l *Limiter, prefix string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if l == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !strings.HasPrefix(r.URL.Path, prefix) || r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}
			client := l.clientIP(r)
			ok, wait := l.Allow(client)
			if !ok {
				logger.FromContext(r.Context()).Warn("rate limited", "client", client, "path", r.URL.Path)
				w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				json.NewEncoder(w).Encode(map[string]string{"error": "rate limit exceeded", "code": "rate_limited"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// clientIP keys a request by its peer address. X-Forwarded-For is honoured
// only when the peer is a trusted proxy.
func (l *Limiter) clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" && l.isTrusted(host) {
		first, _, _ := strings.Cut(fwd, ",")
		if first = strings.TrimSpace(first); first != "" {
			return first
		}
	}
	return host
}
