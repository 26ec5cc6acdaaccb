package smartermodel

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func gatheredNames(t *testing.T, registry *prometheus.Registry) map[string]bool {
	t.Helper()
	families, err := registry.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}
	names := make(map[string]bool, len(families))
	for _, f := range families {
		names[f.GetName()] = true
	}
	return names
}

func TestPrometheusMetricsPredeclared(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewPrometheusMetrics(registry)

	metrics.Increment(MetricBackendOps, "operation", "get", "backend", "redis")
	metrics.Increment(MetricBackendOps, "operation", "get", "backend", "redis")
	metrics.Timing(MetricBackendLatency, 3*time.Millisecond, "operation", "get", "backend", "redis")
	metrics.Increment(MetricCacheHits, "model", "users")

	ops := metrics.counters[MetricBackendOps].WithLabelValues("get", "redis")
	if got := testutil.ToFloat64(ops); got != 2 {
		t.Errorf("backend ops = %v, want 2", got)
	}

	names := gatheredNames(t, registry)
	for _, want := range []string{
		"smartermodel_backend_operations_total",
		"smartermodel_backend_operation_duration_seconds",
		"smartermodel_cache_hits_total",
	} {
		if !names[want] {
			t.Errorf("metric %s not registered", want)
		}
	}
}

func TestPrometheusMetricsDynamicNames(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewPrometheusMetrics(registry)

	metrics.Increment(MetricGetSuccess, "model", "users")
	metrics.Gauge("smartermodel.identity.size", 4)
	metrics.Timing(MetricSaveDuration, time.Millisecond, "model", "users")

	names := gatheredNames(t, registry)
	for _, want := range []string{
		"smartermodel_get_success",
		"smartermodel_identity_size",
		"smartermodel_save_duration",
	} {
		if !names[want] {
			t.Errorf("metric %s not registered, have %v", want, names)
		}
	}
}

func TestPromName(t *testing.T) {
	tests := map[string]string{
		"smartermodel.get.success":          "get_success",
		"smartermodel.cache.populate_error": "cache_populate_error",
		"custom.metric-name":                "custom_metric_name",
	}
	for in, want := range tests {
		if got := promName(in); got != want {
			t.Errorf("promName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestPrometheusMetricsConcurrentRegistration(t *testing.T) {
	metrics := NewPrometheusMetrics(prometheus.NewRegistry())

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			metrics.Increment(MetricDeleteSuccess, "model", "users")
		}()
	}
	wg.Wait()

	if got := testutil.ToFloat64(metrics.counters[MetricDeleteSuccess].WithLabelValues("users")); got != 20 {
		t.Errorf("counter = %v, want 20", got)
	}
}

func TestPrometheusMetricsThroughRepository(t *testing.T) {
	registry := prometheus.NewRegistry()
	store := newTestStore(t, newFakeBackend("primary", nil))
	store.SetMetrics(NewPrometheusMetrics(registry))
	repo := newUserRepo(t, store, userDescriptor("primary"))

	ctx := context.Background()
	user := &testUser{Name: "prom"}
	if err := repo.Save(ctx, user); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if _, err := repo.Select(ctx); err != nil {
		t.Fatalf("Select failed: %v", err)
	}

	names := gatheredNames(t, registry)
	for _, want := range []string{"smartermodel_query_duration_seconds", "smartermodel_query_results", "smartermodel_save_success"} {
		if !names[want] {
			t.Errorf("metric %s not recorded", want)
		}
	}
}
