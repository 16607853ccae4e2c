package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestTokenBucketBurstAndRefill(t *testing.T) {
	tb := NewTokenBucket(2, 3)
	clock := time.Unix(1_700_000_000, 0)
	tb.now = func() time.Time { return clock }

	for i := 0; i < 3; i++ {
		if !tb.Allow("a") {
			t.Fatalf("request %d within burst rejected", i)
		}
	}
	if tb.Allow("a") {
		t.Fatal("request beyond burst allowed")
	}
	if !tb.Allow("b") {
		t.Fatal("independent key rejected")
	}
	clock = clock.Add(500 * time.Millisecond)
	if !tb.Allow("a") {
		t.Fatal("token not refilled after 500ms at 2 qps")
	}
	if tb.Allow("a") {
		t.Fatal("only one token should have been refilled")
	}
}

func TestTokenBucketEvictsIdle(t *testing.T) {
	tb := NewTokenBucket(1, 1)
	clock := time.Unix(1_700_000_000, 0)
	tb.now = func() time.Time { return clock }
	tb.Allow("a")
	clock = clock.Add(2 * time.Minute)
	tb.Allow("b")
	if _, ok := tb.buckets["a"]; ok {
		t.Error("idle bucket not evicted")
	}
}

func TestRateLimitResponds429(t *testing.T) {
	tb := NewTokenBucket(0, 1)
	h := RateLimit(tb, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:5555"

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("first request status = %d", rec.Code)
	}
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second request status = %d, want 429", rec.Code)
	}
}

func TestClientIP(t *testing.T) {
	cases := []struct {
		name   string
		header map[string]string
		remote string
		want   string
	}{
		{"xff", map[string]string{"X-Forwarded-For": "1.2.3.4, 10.0.0.1"}, "9.9.9.9:1", "1.2.3.4"},
		{"real-ip", map[string]string{"X-Real-IP": "5.6.7.8"}, "9.9.9.9:1", "5.6.7.8"},
		{"forwarded", map[string]string{"Forwarded": `for="7.7.7.7";proto=https`}, "9.9.9.9:1", "7.7.7.7"},
		{"remote", nil, "9.9.9.9:1234", "9.9.9.9"},
		{"remote-v6", nil, "[::1]:80", "::1"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.RemoteAddr = c.remote
			for k, v := range c.header {
				r.Header.Set(k, v)
			}
			if got := ClientIP(r); got != c.want {
				t.Errorf("ClientIP = %q, want %q", got, c.want)
			}
		})
	}
}
