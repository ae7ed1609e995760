package promobserver

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/goforj/cachemaster"
	"github.com/prometheus/client_golang/prometheus"
)

func counterValue(t *testing.T, reg *prometheus.Registry, labels map[string]string) float64 {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() != "test_cache_operations_total" {
			continue
		}
	metrics:
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if want, ok := labels[lp.GetName()]; ok && want != lp.GetValue() {
					continue metrics
				}
			}
			return m.GetCounter().GetValue()
		}
	}
	return 0
}

func TestObserverCountsResults(t *testing.T) {
	reg := prometheus.NewRegistry()
	obs, err := New(reg, "test")
	if err != nil {
		t.Fatalf("new observer: %v", err)
	}
	ctx := context.Background()
	obs.OnCacheOp(ctx, "get", "k", true, nil, time.Millisecond, cachemaster.BackendLocal)
	obs.OnCacheOp(ctx, "get", "k", false, nil, time.Millisecond, cachemaster.BackendLocal)
	obs.OnCacheOp(ctx, "get", "k", false, nil, time.Millisecond, cachemaster.BackendLocal)
	obs.OnCacheOp(ctx, "set", "k", false, nil, time.Millisecond, cachemaster.BackendRemote)
	obs.OnCacheOp(ctx, "set", "k", false, errors.New("down"), time.Millisecond, cachemaster.BackendRemote)

	cases := []struct {
		op, backend, result string
		want                float64
	}{
		{"get", "local", "hit", 1},
		{"get", "local", "miss", 2},
		{"set", "remote", "ok", 1},
		{"set", "remote", "error", 1},
	}
	for _, tc := range cases {
		got := counterValue(t, reg, map[string]string{"op": tc.op, "backend": tc.backend, "result": tc.result})
		if got != tc.want {
			t.Fatalf("%s/%s/%s: expected %v, got %v", tc.op, tc.backend, tc.result, tc.want, got)
		}
	}
}

func TestNewRejectsDuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	if _, err := New(reg, "dup"); err != nil {
		t.Fatalf("first registration: %v", err)
	}
	if _, err := New(reg, "dup"); err == nil {
		t.Fatalf("expected duplicate registration error")
	}
}
