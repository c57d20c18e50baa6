// Package metrics Prometheus 指标
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// 缓存查询结果标签
const (
	CacheHit     = "hit"
	CacheMiss    = "miss"
	CacheStale   = "stale"
	CacheCorrupt = "corrupt"
)

// Metrics 应用指标，使用独立 Registry
type Metrics struct {
	Registry *prometheus.Registry

	HTTPRequests     *prometheus.CounterVec
	UpstreamRequests *prometheus.CounterVec
	UpstreamDuration *prometheus.HistogramVec
	CacheLookups     *prometheus.CounterVec
	CacheTransitions *prometheus.CounterVec
}

// New 创建并注册所有指标
func New() *Metrics {
	registry := prometheus.NewRegistry()

	httpRequests := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tripdash_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	upstreamRequests := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tripdash_upstream_requests_total",
			Help: "Total number of requests sent to the telematics API",
		},
		[]string{"endpoint", "status"},
	)

	upstreamDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tripdash_upstream_request_duration_seconds",
			Help:    "Telematics API request latency distribution",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint"},
	)

	cacheLookups := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tripdash_cache_lookups_total",
			Help: "Session cache lookups by result",
		},
		[]string{"result"},
	)

	cacheTransitions := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tripdash_cache_transitions_total",
			Help: "Session cache state transitions",
		},
		[]string{"from", "to"},
	)

	registry.MustRegister(
		httpRequests,
		upstreamRequests,
		upstreamDuration,
		cacheLookups,
		cacheTransitions,
	)

	return &Metrics{
		Registry:         registry,
		HTTPRequests:     httpRequests,
		UpstreamRequests: upstreamRequests,
		UpstreamDuration: upstreamDuration,
		CacheLookups:     cacheLookups,
		CacheTransitions: cacheTransitions,
	}
}

// Handler 返回 /metrics 处理器
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}
