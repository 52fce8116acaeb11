package middleware

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRateLimitConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  RateLimitConfig
		wantErr bool
	}{
		{"default", DefaultSearchLimit(), false},
		{"zero requests", RateLimitConfig{RequestsPerWindow: 0, WindowDuration: time.Minute}, true},
		{"zero window", RateLimitConfig{RequestsPerWindow: 10}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.config.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestInMemoryRateLimitStore_Allow(t *testing.T) {
	tests := []struct {
		name          string
		limit         int
		wantAllowed   []bool
		wantRemaining []int
	}{
		{"under limit", 5, []bool{true, true, true}, []int{4, 3, 2}},
		{"blocks at limit", 3, []bool{true, true, true, false}, []int{2, 1, 0, 0}},
		{"single request limit", 1, []bool{true, false, false}, []int{0, 0, 0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := NewInMemoryRateLimitStore()
			config := RateLimitConfig{RequestsPerWindow: tt.limit, WindowDuration: time.Minute}

			for i, want := range tt.wantAllowed {
				allowed, remaining, retryAfter, err := store.Allow(context.Background(), "k", config)
				if err != nil {
					t.Fatalf("Allow() error: %v", err)
				}
				if allowed != want {
					t.Errorf("request %d: allowed=%v, want %v", i+1, allowed, want)
				}
				if remaining != tt.wantRemaining[i] {
					t.Errorf("request %d: remaining=%d, want %d", i+1, remaining, tt.wantRemaining[i])
				}
				if !allowed && (retryAfter < 1 || retryAfter > 60) {
					t.Errorf("request %d: retryAfter=%d, want 1..60", i+1, retryAfter)
				}
			}
		})
	}
}

func TestInMemoryRateLimitStore_WindowResetAndCleanup(t *testing.T) {
	store := NewInMemoryRateLimitStore()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }
	config := RateLimitConfig{RequestsPerWindow: 1, WindowDuration: time.Minute}
	ctx := context.Background()

	if ok, _, _, _ := store.Allow(ctx, "k", config); !ok {
		t.Fatal("first request should be allowed")
	}
	if ok, _, retry, _ := store.Allow(ctx, "k", config); ok || retry != 60 {
		t.Fatalf("second request: allowed=%v retry=%d, want blocked with 60", ok, retry)
	}

	now = now.Add(time.Minute)
	if ok, _, _, _ := store.Allow(ctx, "k", config); !ok {
		t.Error("request in the next window should be allowed")
	}

	now = now.Add(2 * time.Minute)
	store.Cleanup()
	store.mu.Lock()
	n := len(store.buckets)
	store.mu.Unlock()
	if n != 0 {
		t.Errorf("expected expired buckets to be removed, %d left", n)
	}
}

func TestInMemoryRateLimitStore_Concurrent(t *testing.T) {
	store := NewInMemoryRateLimitStore()
	config := RateLimitConfig{RequestsPerWindow: 50, WindowDuration: time.Minute}

	var wg sync.WaitGroup
	var mu sync.Mutex
	allowed := 0
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, _, _, _ := store.Allow(context.Background(), "shared", config)
			if ok {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if allowed != 50 {
		t.Errorf("allowed %d requests, want exactly 50", allowed)
	}
}

func TestIPKeyFunc(t *testing.T) {
	tests := []struct {
		name       string
		remoteAddr string
		headers    map[string]string
		want       string
	}{
		{"remote addr", "10.0.0.1:5555", nil, "ip:10.0.0.1"},
		{"ipv6 remote addr", "[::1]:5555", nil, "ip:::1"},
		{"remote addr without port", "10.0.0.1", nil, "ip:10.0.0.1"},
		{"forwarded chain", "10.0.0.1:1", map[string]string{"X-Forwarded-For": " 203.0.113.7 , 10.0.0.2"}, "ip:203.0.113.7"},
		{"real ip", "10.0.0.1:1", map[string]string{"X-Real-IP": "198.51.100.3"}, "ip:198.51.100.3"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/search", nil)
			req.RemoteAddr = tt.remoteAddr
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			if got := IPKeyFunc()(req); got != tt.want {
				t.Errorf("IPKeyFunc() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRateLimiter_BlocksAndCounts(t *testing.T) {
	m := NewMetrics()
	config := RateLimitConfig{RequestsPerWindow: 2, WindowDuration: time.Minute}
	handler := RateLimiter(NewInMemoryRateLimitStore(), config, IPKeyFunc(), m, nil)(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}),
	)

	var codes []int
	var last *httptest.ResponseRecorder
	for i := 0; i < 3; i++ {
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/search?q=x", nil))
		codes = append(codes, rr.Code)
		last = rr
	}

	want := []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}
	for i := range want {
		if codes[i] != want[i] {
			t.Errorf("request %d: status %d, want %d", i+1, codes[i], want[i])
		}
	}
	if last.Header().Get("Retry-After") == "" || last.Header().Get("X-RateLimit-Reset") == "" {
		t.Error("expected Retry-After and X-RateLimit-Reset on 429")
	}
	if last.Header().Get("X-RateLimit-Remaining") != "0" {
		t.Errorf("X-RateLimit-Remaining = %q, want 0", last.Header().Get("X-RateLimit-Remaining"))
	}
	if !bytes.Contains(last.Body.Bytes(), []byte(`"rate_limited"`)) {
		t.Errorf("body = %s, want rate_limited error", last.Body.String())
	}
	if got := testutil.ToFloat64(m.rateLimitRequests.WithLabelValues("/search")); got != 3 {
		t.Errorf("rate limit checks = %v, want 3", got)
	}
	if got := testutil.ToFloat64(m.rateLimitBlocked.WithLabelValues("/search")); got != 1 {
		t.Errorf("blocked = %v, want 1", got)
	}
}

func TestRateLimiter_LogsErrorCode(t *testing.T) {
	buf := &bytes.Buffer{}
	config := RateLimitConfig{RequestsPerWindow: 1, WindowDuration: time.Minute}
	limited := RateLimiter(NewInMemoryRateLimitStore(), config, IPKeyFunc(), nil, nil)(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}),
	)
	handler := Logging(newTestLogger(buf))(limited)

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/search", nil))
	buf.Reset()
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/search", nil))

	if entry := parseEntry(t, buf); entry.ErrorCode != "rate_limited" {
		t.Errorf("error_code = %q, want rate_limited", entry.ErrorCode)
	}
}

type failingStore struct{}

func (failingStore) Allow(context.Context, string, RateLimitConfig) (bool, int, int, error) {
	return false, 0, 0, errors.New("redis: connection refused")
}

func TestRateLimiter_FailsOpen(t *testing.T) {
	m := NewMetrics()
	logs := &bytes.Buffer{}
	logger := slog.New(slog.NewTextHandler(logs, nil))
	handler := RateLimiter(failingStore{}, DefaultSearchLimit(), IPKeyFunc(), m, logger)(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}),
	)

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/search", nil))

	if rr.Code != http.StatusOK {
		t.Errorf("status = %d, want 200 when store fails", rr.Code)
	}
	if got := testutil.ToFloat64(m.rateLimitStoreErrors); got != 1 {
		t.Errorf("store errors = %v, want 1", got)
	}
	if !bytes.Contains(logs.Bytes(), []byte("rate limit store unavailable")) {
		t.Errorf("expected warning log, got %q", logs.String())
	}
}
