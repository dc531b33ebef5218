package middleware

import (
	"fmt"
	"log/slog"
	"math"
	"net"
	"net/http"
	"net/netip"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/samiralam04/Note-app/pkg/httputil"
	"github.com/samiralam04/Note-app/pkg/logger"
)

// RateLimitMessage is returned with 429 responses from RateLimit.
const RateLimitMessage = "Too many requests from this IP, please try again later"

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter holds one token bucket per client IP. A client may spend
// `requests` tokens at once and regains them evenly over `window`.
type RateLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	requests int
	window   time.Duration
	limit    rate.Limit
	proxies  TrustedProxies
	nowFunc  func() time.Time
}

// NewRateLimiter creates a limiter allowing requests per window for each IP.
func NewRateLimiter(requests int, window time.Duration) *RateLimiter {
	if requests < 1 {
		requests = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &RateLimiter{
		visitors: make(map[string]*visitor),
		requests: requests,
		window:   window,
		limit:    rate.Every(window / time.Duration(requests)),
		nowFunc:  time.Now,
	}
}

// WithTrustedProxies makes the limiter key on the forwarded client address
// for requests arriving through one of proxies.
func (rl *RateLimiter) WithTrustedProxies(proxies TrustedProxies) *RateLimiter {
	rl.proxies = proxies
	return rl
}

func (rl *RateLimiter) visitor(ip string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.nowFunc()
	v, ok := rl.visitors[ip]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(rl.limit, rl.requests)}
		rl.visitors[ip] = v
	}
	v.lastSeen = now
	return v.limiter
}

// Cleanup evicts visitors idle for longer than one window. Such buckets are
// full again, so dropping them does not change any client's allowance.
func (rl *RateLimiter) Cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.nowFunc()
	for ip, v := range rl.visitors {
		if now.Sub(v.lastSeen) > rl.window {
			delete(rl.visitors, ip)
		}
	}
}

// Run calls Cleanup every interval until stop is closed.
func (rl *RateLimiter) Run(interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			rl.Cleanup()
		case <-stop:
			return
		}
	}
}

func (rl *RateLimiter) len() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.visitors)
}

// Middleware enforces the limit and reports RateLimit-* headers.
func (rl *RateLimiter) Middleware(l *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := rl.proxies.ClientIP(r)
			limiter := rl.visitor(ip)
			now := rl.nowFunc()

			allowed := limiter.AllowN(now, 1)
			remaining := int(math.Max(0, math.Floor(limiter.TokensAt(now))))

			h := w.Header()
			h.Set("RateLimit-Limit", strconv.Itoa(rl.requests))
			h.Set("RateLimit-Remaining", strconv.Itoa(remaining))

			if !allowed {
				retry := time.Duration(float64(time.Second) / float64(rl.limit))
				retrySeconds := int(math.Ceil(retry.Seconds()))
				h.Set("Retry-After", strconv.Itoa(retrySeconds))
				h.Set("RateLimit-Reset", strconv.Itoa(retrySeconds))

				l.WarnContext(r.Context(), "rate limit exceeded",
					slog.String("ip", ip),
					slog.String("path", r.URL.Path),
				)
				httputil.WriteJSON(w, http.StatusTooManyRequests, httputil.Response{
					Error: &httputil.ErrorResponse{
						Code:      "TOO_MANY_REQUESTS",
						Message:   RateLimitMessage,
						RequestID: logger.CorrelationIDFromContext(r.Context()),
					},
				})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// ClientIP returns the host part of RemoteAddr. Forwarding headers are
// ignored; use TrustedProxies.ClientIP behind a reverse proxy.
func ClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// TrustedProxies lists the peers whose X-Forwarded-For and X-Real-IP headers
// are believed. The zero value trusts nobody.
type TrustedProxies []netip.Prefix

// ParseTrustedProxies accepts CIDRs ("10.0.0.0/8") and bare addresses.
// Blank entries are skipped.
func ParseTrustedProxies(entries []string) (TrustedProxies, error) {
	var out TrustedProxies
	for _, e := range entries {
		e = strings.TrimSpace(e)
		if e == "" {
			continue
		}
		if strings.Contains(e, "/") {
			p, err := netip.ParsePrefix(e)
			if err != nil {
				return nil, fmt.Errorf("invalid trusted proxy %q: %w", e, err)
			}
			out = append(out, p.Masked())
			continue
		}
		addr, err := netip.ParseAddr(e)
		if err != nil {
			return nil, fmt.Errorf("invalid trusted proxy %q: %w", e, err)
		}
		addr = addr.Unmap()
		out = append(out, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return out, nil
}

func (tp TrustedProxies) contains(ip string) bool {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	for _, p := range tp {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// ClientIP resolves the originating client. Headers are consulted only when
// the direct peer is trusted. X-Forwarded-For is walked right to left and
// the first hop that is not itself a trusted proxy wins, so a client cannot
// pick its own key by prepending entries.
func (tp TrustedProxies) ClientIP(r *http.Request) string {
	peer := ClientIP(r)
	if len(tp) == 0 || !tp.contains(peer) {
		return peer
	}

	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		hops := strings.Split(xff, ",")
		for i := len(hops) - 1; i >= 0; i-- {
			addr, err := netip.ParseAddr(strings.TrimSpace(hops[i]))
			if err != nil {
				// Anything left of an unparsable hop is client-controlled.
				break
			}
			ip := addr.Unmap().String()
			if !tp.contains(ip) {
				return ip
			}
		}
	}

	if addr, err := netip.ParseAddr(strings.TrimSpace(r.Header.Get("X-Real-IP"))); err == nil {
		return addr.Unmap().String()
	}
	return peer
}
