package githost

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// RateLimitHeaders are the normalized rate-limit signals of one response.
type RateLimitHeaders struct {
	RetryAfter time.Duration
	Limit      int
	Remaining  int
	Used       int
	Reset      time.Time
}

// Exhausted reports whether the response says no requests are left.
func (h RateLimitHeaders) Exhausted() bool {
	return h.RetryAfter > 0 || (h.Limit > 0 && h.Remaining == 0)
}

// NextWait converts the signals to how long a caller should wait before retrying.
func (h RateLimitHeaders) NextWait(now time.Time) time.Duration {
	if h.RetryAfter > 0 {
		return h.RetryAfter
	}
	if h.Limit > 0 && h.Remaining == 0 && h.Reset.After(now) {
		return h.Reset.Sub(now)
	}
	return 0
}

func parseRateLimitHeaders(h http.Header) (RateLimitHeaders, bool) {
	var out RateLimitHeaders
	found := false
	if v := strings.TrimSpace(h.Get("Retry-After")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			out.RetryAfter = time.Duration(n) * time.Second
			found = true
		}
	}
	if n, ok := headerInt(h, "X-RateLimit-Limit"); ok {
		out.Limit = n
		found = true
	}
	if n, ok := headerInt(h, "X-RateLimit-Remaining"); ok {
		out.Remaining = n
		found = true
	}
	if n, ok := headerInt(h, "X-RateLimit-Used"); ok {
		out.Used = n
	}
	if n, ok := headerInt(h, "X-RateLimit-Reset"); ok && n > 0 {
		out.Reset = time.Unix(int64(n), 0)
	}
	return out, found
}

func headerInt(h http.Header, key string) (int, bool) {
	raw := strings.TrimSpace(h.Get(key))
	if raw == "" {
		return 0, false
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return n, true
}

// rpsLimiter is a token bucket allowing at most rps requests per second with
// an initial burst.
type rpsLimiter struct {
	tokens chan struct{}
	stopCh chan struct{}
}

// newRPSLimiter returns nil (no throttling) when rps <= 0.
func newRPSLimiter(rps float64, burst int) *rpsLimiter {
	if rps <= 0 {
		return nil
	}
	if burst <= 0 {
		burst = 1
	}
	l := &rpsLimiter{
		tokens: make(chan struct{}, burst),
		stopCh: make(chan struct{}),
	}
	for i := 0; i < burst; i++ {
		l.tokens <- struct{}{}
	}
	period := time.Duration(float64(time.Second) / rps)
	if period <= 0 {
		period = time.Millisecond
	}
	ticker := time.NewTicker(period)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				select {
				case l.tokens <- struct{}{}:
				default:
				}
			case <-l.stopCh:
				return
			}
		}
	}()
	return l
}

func (l *rpsLimiter) Acquire(ctx context.Context) error {
	if l == nil {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-l.tokens:
		return nil
	}
}

func (l *rpsLimiter) Stop() {
	if l == nil {
		return
	}
	close(l.stopCh)
}
