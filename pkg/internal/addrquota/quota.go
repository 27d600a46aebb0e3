// Package addrquota rate limits bridge connection attempts per client network.
package addrquota

import (
	"net"
	"net/http"
	"sync"

	"github.com/golang/groupcache/lru"
	"golang.org/x/time/rate"
)

// Quota is an IP based rate limiter.
// Addresses sharing all but the low-order byte share one limiter.
// Limiters are kept in an LRU cache of size maxEntries.
type Quota struct {
	eps   rate.Limit
	burst int

	mu    sync.Mutex // protects cache
	cache *lru.Cache
}

// New returns a Quota allowing eventsPerSecond with the given burst per network.
func New(eventsPerSecond float64, burst, maxEntries int) *Quota {
	return &Quota{
		eps:   rate.Limit(eventsPerSecond),
		burst: burst,
		cache: lru.New(maxEntries),
	}
}

// Blocked reports whether an event from addr exceeds its quota.
// addr is a "host:port" or bare host string. Unparsable addresses are never blocked.
func (q *Quota) Blocked(addr string) bool {
	key := networkKey(addr)
	if key == "" {
		return false
	}
	q.mu.Lock()
	var limiter *rate.Limiter
	if v, ok := q.cache.Get(key); ok {
		limiter = v.(*rate.Limiter)
	} else {
		limiter = rate.NewLimiter(q.eps, q.burst)
		q.cache.Add(key, limiter)
	}
	q.mu.Unlock()
	return !limiter.Allow()
}

// Middleware rejects requests over quota with 429 Too Many Requests.
// A nil Quota passes every request through.
func (q *Quota) Middleware(next http.Handler) http.Handler {
	if q == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if q.Blocked(r.RemoteAddr) {
			http.Error(w, "too many connection attempts", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func networkKey(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		host = addr
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return ""
	}
	if v4 := ip.To4(); v4 != nil {
		ip = v4
	}
	masked := make(net.IP, len(ip))
	copy(masked, ip)
	masked[len(masked)-1] = 0
	return masked.String()
}
