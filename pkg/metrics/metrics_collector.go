package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MetricsCollector 指标收集器
type MetricsCollector struct {
	// HTTP 指标
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// 数据库指标
	dbConnectionsActive prometheus.Gauge
	dbConnectionsIdle   prometheus.Gauge

	// 缓存指标
	cacheHitsTotal   *prometheus.CounterVec
	cacheMissesTotal *prometheus.CounterVec

	// 订单指标
	orderTransitionsTotal   *prometheus.CounterVec
	orderRefundsTotal       *prometheus.CounterVec
	sideEffectFailures      *prometheus.CounterVec
	dispatchQueueDepth      prometheus.Gauge
	dispatchDeadLetterTotal *prometheus.CounterVec
}

// NewMetricsCollector 在 reg 上注册所有指标，测试中传入独立的 Registry
func NewMetricsCollector(reg prometheus.Registerer) *MetricsCollector {
	f := promauto.With(reg)
	return &MetricsCollector{
		httpRequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "endpoint", "status"},
		),

		httpRequestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "endpoint"},
		),

		dbConnectionsActive: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "db_connections_active",
				Help: "Number of active database connections",
			},
		),

		dbConnectionsIdle: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "db_connections_idle",
				Help: "Number of idle database connections",
			},
		),

		cacheHitsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cache_hits_total",
				Help: "Total number of cache hits",
			},
			[]string{"key_prefix"},
		),

		cacheMissesTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cache_misses_total",
				Help: "Total number of cache misses",
			},
			[]string{"key_prefix"},
		),

		orderTransitionsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "order_transitions_total",
				Help: "Order status transitions by source, target and result",
			},
			[]string{"from", "to", "result"},
		),

		orderRefundsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "order_refunds_total",
				Help: "Refund requests by result",
			},
			[]string{"result"},
		),

		sideEffectFailures: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "order_side_effect_failures_total",
				Help: "Failed notification or refund dispatch attempts",
			},
			[]string{"kind"},
		),

		dispatchQueueDepth: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "order_dispatch_queue_depth",
				Help: "Side-effect tasks waiting in the dispatch queue",
			},
		),

		dispatchDeadLetterTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "order_dispatch_dead_letter_total",
				Help: "Side-effect tasks dropped after exhausting retries",
			},
			[]string{"task"},
		),
	}
}

// RecordHTTPRequest 记录 HTTP 请求指标
func (m *MetricsCollector) RecordHTTPRequest(method, endpoint string, status int, duration time.Duration) {
	m.httpRequestsTotal.WithLabelValues(method, endpoint, getStatusCategory(status)).Inc()
	m.httpRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// RecordCacheOperation 记录缓存命中情况
func (m *MetricsCollector) RecordCacheOperation(keyPrefix string, hit bool) {
	if hit {
		m.cacheHitsTotal.WithLabelValues(keyPrefix).Inc()
	} else {
		m.cacheMissesTotal.WithLabelValues(keyPrefix).Inc()
	}
}

// UpdateDBConnections 更新数据库连接指标
func (m *MetricsCollector) UpdateDBConnections(active, idle int) {
	m.dbConnectionsActive.Set(float64(active))
	m.dbConnectionsIdle.Set(float64(idle))
}

// RecordTransition result 为 ok 或错误分类
func (m *MetricsCollector) RecordTransition(from, to, result string) {
	m.orderTransitionsTotal.WithLabelValues(from, to, result).Inc()
}

// RecordRefund result: processed, noop, pending_retry, rejected
func (m *MetricsCollector) RecordRefund(result string) {
	m.orderRefundsTotal.WithLabelValues(result).Inc()
}

// RecordSideEffectFailure kind: notification, refund
func (m *MetricsCollector) RecordSideEffectFailure(kind string) {
	m.sideEffectFailures.WithLabelValues(kind).Inc()
}

func (m *MetricsCollector) SetQueueDepth(depth int) {
	m.dispatchQueueDepth.Set(float64(depth))
}

func (m *MetricsCollector) RecordDeadLetter(task string) {
	m.dispatchDeadLetterTotal.WithLabelValues(task).Inc()
}

// getStatusCategory 获取状态分类
func getStatusCategory(status int) string {
	switch {
	case status >= 200 && status < 300:
		return "2xx"
	case status >= 300 && status < 400:
		return "3xx"
	case status >= 400 && status < 500:
		return "4xx"
	case status >= 500:
		return "5xx"
	default:
		return "unknown"
	}
}

// 全局指标收集器实例
var GlobalCollector *MetricsCollector

// InitMetrics 初始化全局指标收集器
func InitMetrics() {
	GlobalCollector = NewMetricsCollector(prometheus.DefaultRegisterer)
}

// GetGlobalCollector 获取全局指标收集器
func GetGlobalCollector() *MetricsCollector {
	if GlobalCollector == nil {
		InitMetrics()
	}
	return GlobalCollector
}
