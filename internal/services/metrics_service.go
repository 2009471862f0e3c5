package services

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MetricsService 查询流水线Prometheus指标
type MetricsService struct {
	queriesTotal  *prometheus.CounterVec
	queryDuration prometheus.Histogram
	cacheEvents   *prometheus.CounterVec
	rateLimited   prometheus.Counter
}

var (
	metricsOnce     sync.Once
	metricsInstance *MetricsService
)

// NewMetricsService 创建指标服务。指标注册到默认registry，
// 进程内单例以避免重复注册。
func NewMetricsService() *MetricsService {
	metricsOnce.Do(func() {
		metricsInstance = &MetricsService{
			queriesTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "rag_queries_total",
					Help: "Total number of query attempts by terminal status",
				},
				[]string{"status"},
			),
			queryDuration: promauto.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "rag_query_duration_seconds",
					Help:    "End-to-end query latency",
					Buckets: prometheus.DefBuckets,
				},
			),
			cacheEvents: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "rag_cache_events_total",
					Help: "Response cache hits, misses and errors",
				},
				[]string{"result"},
			),
			rateLimited: promauto.NewCounter(
				prometheus.CounterOpts{
					Name: "rag_rate_limited_total",
					Help: "Requests rejected by the per-tenant rate limiter",
				},
			),
		}
	})
	return metricsInstance
}

// ObserveQuery 记录一次查询的终止状态和耗时
func (m *MetricsService) ObserveQuery(status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.queriesTotal.WithLabelValues(status).Inc()
	m.queryDuration.Observe(duration.Seconds())
}

// CacheEvent 记录缓存命中情况
func (m *MetricsService) CacheEvent(result string) {
	if m == nil {
		return
	}
	m.cacheEvents.WithLabelValues(result).Inc()
}

// RateLimited 记录一次限流拒绝
func (m *MetricsService) RateLimited() {
	if m == nil {
		return
	}
	m.rateLimited.Inc()
}
