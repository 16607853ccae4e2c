package middleware

import (
	"net/http"
	"sync"
	"time"

	"hex-territory/internal/logger"
	"hex-territory/internal/metrics"
)

// TokenBucket：按访问者 IP 的令牌桶限流
// 背景：写接口每次请求都会触发分片读改写，在入口处限速避免存储被单一来源压垮
// 约束：不排队，超限直接返回 429；空闲桶按 idleTTL 回收
type TokenBucket struct {
	rate    float64
	burst   float64
	idleTTL time.Duration
	now     func() time.Time

	mu      sync.Mutex
	buckets map[string]*bucket
	lastGC  time.Time
}

type bucket struct {
	tokens float64
	last   time.Time
}

func NewTokenBucket(qps float64, burst int) *TokenBucket {
	if burst < 1 {
		burst = 1
	}
	return &TokenBucket{
		rate:    qps,
		burst:   float64(burst),
		idleTTL: time.Minute,
		now:     time.Now,
		buckets: make(map[string]*bucket),
	}
}

// Allow：消耗 key 的一个令牌；桶空时返回 false
func (tb *TokenBucket) Allow(key string) bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	now := tb.now()
	if now.Sub(tb.lastGC) > tb.idleTTL {
		for k, b := range tb.buckets {
			if now.Sub(b.last) > tb.idleTTL {
				delete(tb.buckets, k)
			}
		}
		tb.lastGC = now
	}
	b, ok := tb.buckets[key]
	if !ok {
		b = &bucket{tokens: tb.burst, last: now}
		tb.buckets[key] = b
	}
	b.tokens += now.Sub(b.last).Seconds() * tb.rate
	if b.tokens > tb.burst {
		b.tokens = tb.burst
	}
	b.last = now
	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}

// RateLimit：包装处理器；limiter 为 nil 时原样返回
func RateLimit(tb *TokenBucket, next http.Handler) http.Handler {
	if tb == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := ClientIP(r)
		if !tb.Allow(ip) {
			metrics.RateLimitedTotal.Inc()
			logger.L().Debug("rate_limited", "ip", ip, "path", r.URL.Path)
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}
