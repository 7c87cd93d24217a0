package middleware

import (
	"encoding/json"
	"fmt"
	"math"
	"net"
	"net/http"
	"net/netip"
	"strconv"
	"strings"
	"sync"
	"time"

	apperrors "github.com/Adithya-Monish-Kumar-K/contextsearch/pkg/errors"
	"golang.org/x/time/rate"
)

// ClientLimiter hands out one token-bucket limiter per client IP.
type ClientLimiter struct {
	limit   rate.Limit
	burst   int
	idleTTL time.Duration
	trusted []netip.Prefix

	mu        sync.Mutex
	clients   map[string]*clientEntry
	nextSweep time.Time
}

type clientEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewClientLimiter allows each client rps requests per second with the given
// burst. X-Forwarded-For is only consulted for requests whose direct peer
// falls in trustedProxies. Clients idle for ten minutes are forgotten.
func NewClientLimiter(rps float64, burst int, trustedProxies ...netip.Prefix) *ClientLimiter {
	return &ClientLimiter{
		limit:   rate.Limit(rps),
		burst:   burst,
		idleTTL: 10 * time.Minute,
		trusted: trustedProxies,
		clients: make(map[string]*clientEntry),
	}
}

// ParseTrustedProxies accepts CIDR prefixes and bare addresses.
func ParseTrustedProxies(values []string) ([]netip.Prefix, error) {
	prefixes := make([]netip.Prefix, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if p, err := netip.ParsePrefix(v); err == nil {
			prefixes = append(prefixes, p.Masked())
			continue
		}
		addr, err := netip.ParseAddr(v)
		if err != nil {
			return nil, fmt.Errorf("trusted proxy %q is neither an address nor a CIDR prefix", v)
		}
		prefixes = append(prefixes, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return prefixes, nil
}

// Reserve consumes a token for key. When none is available it returns false
// and how long until one will be.
func (l *ClientLimiter) Reserve(key string, now time.Time) (bool, time.Duration) {
	l.mu.Lock()
	if now.After(l.nextSweep) {
		l.sweep(now)
	}
	e, ok := l.clients[key]
	if !ok {
		e = &clientEntry{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.clients[key] = e
	}
	e.lastSeen = now
	l.mu.Unlock()

	r := e.limiter.ReserveN(now, 1)
	if !r.OK() {
		return false, l.idleTTL
	}
	if delay := r.DelayFrom(now); delay > 0 {
		r.CancelAt(now)
		return false, delay
	}
	return true, 0
}

// Allow reports whether key may make a request now.
func (l *ClientLimiter) Allow(key string) bool {
	ok, _ := l.Reserve(key, time.Now())
	return ok
}

// Clients returns the number of clients currently tracked.
func (l *ClientLimiter) Clients() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.clients)
}

// sweep drops clients idle past idleTTL; callers hold l.mu.
func (l *ClientLimiter) sweep(now time.Time) {
	cutoff := now.Add(-l.idleTTL)
	for key, e := range l.clients {
		if e.lastSeen.Before(cutoff) {
			delete(l.clients, key)
		}
	}
	l.nextSweep = now.Add(l.idleTTL)
}

// ClientIP returns the address limits are keyed on: the direct peer, or,
// when the peer is a trusted proxy, the right-most X-Forwarded-For entry
// that is not itself a trusted proxy.
func (l *ClientLimiter) ClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	if len(l.trusted) == 0 || !l.isTrusted(host) {
		return host
	}
	hops := strings.Split(strings.Join(r.Header.Values("X-Forwarded-For"), ","), ",")
	for i := len(hops) - 1; i >= 0; i-- {
		hop := strings.TrimSpace(hops[i])
		if hop == "" {
			continue
		}
		if !l.isTrusted(hop) {
			return hop
		}
	}
	return host
}

func (l *ClientLimiter) isTrusted(ip string) bool {
	addr, err := netip.ParseAddr(ip)
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

// RateLimit returns middleware that rejects requests over the per-client
// limit with the status apperrors maps ErrRateLimited to. Health checks are
// never limited.
func RateLimit(limiter *ClientLimiter) func(http.Handler) http.Handler {
	status := apperrors.HTTPStatusCode(apperrors.ErrRateLimited)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if strings.HasPrefix(r.URL.Path, "/health") {
				next.ServeHTTP(w, r)
				return
			}
			ok, wait := limiter.Reserve(limiter.ClientIP(r), time.Now())
			if !ok {
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("Retry-After", strconv.Itoa(max(1, int(math.Ceil(wait.Seconds())))))
				w.WriteHeader(status)
				json.NewEncoder(w).Encode(map[string]string{"error": apperrors.ErrRateLimited.Error()})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
