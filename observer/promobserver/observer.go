// Package promobserver records cache operations as Prometheus metrics.
package promobserver

import (
	"context"
	"time"

	"github.com/goforj/cachemaster"
	"github.com/prometheus/client_golang/prometheus"
)

var _ cachemaster.Observer = (*Observer)(nil)

// Observer counts operations and their latency by op, backend and result.
// Keys are never used as labels.
type Observer struct {
	ops      *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// New registers the collectors on reg under namespace. A nil reg uses the
// default registerer.
//
//	obs, err := promobserver.New(prometheus.DefaultRegisterer, "shop")
//	c, err := cachemaster.New(ctx, cfg, cachemaster.WithObserver(obs))
func New(reg prometheus.Registerer, namespace string) (*Observer, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	o := &Observer{
		ops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "operations_total",
			Help:      "Cache operations by op, backend and result.",
		}, []string{"op", "backend", "result"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "operation_duration_seconds",
			Help:      "Cache operation latency.",
			Buckets:   []float64{.0001, .0005, .001, .005, .01, .05, .1, .5, 1},
		}, []string{"op", "backend"}),
	}
	for _, c := range []prometheus.Collector{o.ops, o.duration} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return o, nil
}

// OnCacheOp implements cachemaster.Observer.
func (o *Observer) OnCacheOp(_ context.Context, op, _ string, hit bool, err error, dur time.Duration, backend cachemaster.Backend) {
	o.ops.WithLabelValues(op, string(backend), result(op, hit, err)).Inc()
	o.duration.WithLabelValues(op, string(backend)).Observe(dur.Seconds())
}

func result(op string, hit bool, err error) string {
	if err != nil {
		return "error"
	}
	switch op {
	case "get", "get_many", "has", "remember":
		if hit {
			return "hit"
		}
		return "miss"
	}
	return "ok"
}
