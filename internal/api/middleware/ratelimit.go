package middleware

import (
    "net"
    "net/http"
    "strconv"
    "strings"
    "sync"
    "time"
    "go.uber.org/zap"
    "golang.org/x/time/rate"
)

// RateLimitOptions configures RateLimit. Zero values take the defaults.
type RateLimitOptions struct {
    RPS   float64
    Burst int
    // TrustProxy keys anonymous callers on the last X-Forwarded-For hop,
    // the one appended by the proxy in front of the server.
    TrustProxy bool
}

const (
    defaultRPS   = 10
    defaultBurst = 20
    visitorTTL   = 10 * time.Minute
    sweepEvery   = time.Minute
)

type visitor struct {
    limiter *rate.Limiter
    last    time.Time
}

type limiter struct {
    opts     RateLimitOptions
    now      func() time.Time
    mu       sync.Mutex
    visitors map[string]*visitor
    swept    time.Time
}

// RateLimit applies a token bucket per caller: the verified user when there
// is one, the client address otherwise. It must run after Identity. Idle
// buckets are swept on the request path, so every router owns its buckets
// and no goroutine outlives it.
func RateLimit(opts RateLimitOptions) func(http.Handler) http.Handler {
    return newLimiter(opts, time.Now).middleware
}

func newLimiter(opts RateLimitOptions, now func() time.Time) *limiter {
    if opts.RPS <= 0 { opts.RPS = defaultRPS }
    if opts.Burst <= 0 { opts.Burst = defaultBurst }
    return &limiter{opts: opts, now: now, visitors: map[string]*visitor{}, swept: now()}
}

func (l *limiter) middleware(next http.Handler) http.Handler {
    return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        key := l.key(r)
        if !l.allow(key) {
            Log(r.Context()).Debug("rate limited", zap.String("caller", key))
            w.Header().Set("Retry-After", strconv.Itoa(int(max(1, 1/l.opts.RPS))))
            http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
            return
        }
        next.ServeHTTP(w, r)
    })
}

func (l *limiter) allow(key string) bool {
    l.mu.Lock()
    defer l.mu.Unlock()

    now := l.now()
    if now.Sub(l.swept) >= sweepEvery {
        for k, v := range l.visitors {
            if now.Sub(v.last) > visitorTTL { delete(l.visitors, k) }
        }
        l.swept = now
    }
    v, ok := l.visitors[key]
    if !ok {
        v = &visitor{limiter: rate.NewLimiter(rate.Limit(l.opts.RPS), l.opts.Burst)}
        l.visitors[key] = v
    }
    v.last = now
    return v.limiter.AllowN(now, 1)
}

func (l *limiter) size() int {
    l.mu.Lock()
    defer l.mu.Unlock()
    return len(l.visitors)
}

func (l *limiter) key(r *http.Request) string {
    if uid := GetUserID(r.Context()); uid != "" {
        return "user:" + uid
    }
    return "ip:" + clientIP(r, l.opts.TrustProxy)
}

func clientIP(r *http.Request, trustProxy bool) string {
    if trustProxy {
        if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
            hops := strings.Split(xff, ",")
            if ip := strings.TrimSpace(hops[len(hops)-1]); net.ParseIP(ip) != nil { return ip }
        }
    }
    host, _, err := net.SplitHostPort(r.RemoteAddr)
    if err != nil { return r.RemoteAddr }
    return host
}
