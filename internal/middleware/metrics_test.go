package middleware

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics_Register(t *testing.T) {
	m := NewMetrics()
	reg := prometheus.NewRegistry()
	if err := m.Register(reg); err != nil {
		t.Fatalf("Register() failed: %v", err)
	}

	m.IncRateLimitRequests("/search")
	m.IncRateLimitBlocked("/search")
	m.IncRateLimitStoreErrors()
	m.ObserveHTTPRequest("GET", "/search", "200", 0.02, 0, 512)

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather() failed: %v", err)
	}

	found := make(map[string]bool)
	for _, mf := range families {
		found[mf.GetName()] = true
	}
	for _, name := range []string{
		MetricRateLimitRequests,
		MetricRateLimitBlocked,
		MetricRateLimitStoreErrors,
		MetricHTTPRequestDuration,
		MetricHTTPRequestsTotal,
		MetricHTTPRequestSizeBytes,
		MetricHTTPResponseSizeBytes,
	} {
		if !found[name] {
			t.Errorf("metric %s not found in registry", name)
		}
	}
}

func TestMetrics_DoubleRegisterFails(t *testing.T) {
	m := NewMetrics()
	reg := prometheus.NewRegistry()
	if err := m.Register(reg); err != nil {
		t.Fatalf("first Register() failed: %v", err)
	}
	if err := m.Register(reg); err == nil {
		t.Error("expected error registering the same collectors twice")
	}
}

func TestMetrics_Counters(t *testing.T) {
	m := NewMetrics()

	m.IncRateLimitRequests("/search")
	m.IncRateLimitRequests("/search")
	m.IncRateLimitBlocked("/search")

	if got := testutil.ToFloat64(m.rateLimitRequests.WithLabelValues("/search")); got != 2 {
		t.Errorf("rate limit requests = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.rateLimitBlocked.WithLabelValues("/search")); got != 1 {
		t.Errorf("rate limit blocked = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.rateLimitStoreErrors); got != 0 {
		t.Errorf("store errors = %v, want 0", got)
	}
	if n := len(m.Collectors()); n != 7 {
		t.Errorf("Collectors() returned %d, want 7", n)
	}
}
