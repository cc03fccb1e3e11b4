// Package metrics 提供基于Prometheus的指标收集
//
// 指标分组：
//   - HTTP：请求数、耗时、并发中的请求
//   - 标识引擎：upsert结果、upsert耗时、标识锁等待耗时、无标识记录数
//   - 搜索去重：两轮合并次数、降级次数
//   - 回填：队列深度、任务结果
//   - 外部依赖：数据源请求、熔断器状态、消息发布
//
// 所有Record*/Set*辅助函数内部会先调用InitMetrics，业务代码无需关心初始化顺序。
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	initOnce sync.Once

	// HTTPRequestsTotal HTTP请求总数，标签：method、path、status
	HTTPRequestsTotal *prometheus.CounterVec

	// HTTPRequestDuration HTTP请求耗时，标签：method、path
	HTTPRequestDuration *prometheus.HistogramVec

	// HTTPRequestsInProgress 正在处理的HTTP请求数
	HTTPRequestsInProgress prometheus.Gauge

	// UpsertsTotal upsert结果计数，标签：result（created/updated/failed）
	UpsertsTotal *prometheus.CounterVec

	// UpsertDuration 单次upsert事务耗时（含等待标识锁）
	UpsertDuration prometheus.Histogram

	// LockWaitDuration 获取标识锁的等待耗时
	LockWaitDuration prometheus.Histogram

	// IdentityAmbiguityTotal 没有任何标识、走无锁路径的记录数
	IdentityAmbiguityTotal prometheus.Counter

	// DedupMergesTotal 搜索去重合并次数，标签：pass（cluster/title_author）
	DedupMergesTotal *prometheus.CounterVec

	// DedupDegradedTotal 作品簇查询失败、降级为只做第二轮的次数
	DedupDegradedTotal prometheus.Counter

	// BackfillQueueDepth 回填队列当前长度
	BackfillQueueDepth prometheus.Gauge

	// BackfillTasksTotal 回填任务结果，标签：source、result（success/retry/abandoned/rejected）
	BackfillTasksTotal *prometheus.CounterVec

	// ProviderRequestsTotal 外部数据源请求数，标签：provider、result
	ProviderRequestsTotal *prometheus.CounterVec

	// CircuitBreakerState 熔断器状态（0=CLOSED, 1=OPEN, 2=HALF_OPEN），标签：name
	CircuitBreakerState *prometheus.GaugeVec

	// CircuitBreakerRequests 熔断器请求数，标签：name、result（success/failure/rejected）
	CircuitBreakerRequests *prometheus.CounterVec

	// MessagesPublishedTotal 消息发布数，标签：exchange、routing_key
	MessagesPublishedTotal *prometheus.CounterVec

	// MessagesConsumedTotal 消息消费数，标签：queue、result
	MessagesConsumedTotal *prometheus.CounterVec

	// OutboxDispatchTotal outbox投递结果，标签：result（success/failure/abandoned）
	OutboxDispatchTotal *prometheus.CounterVec
)

// InitMetrics 注册所有指标到默认Registry（只执行一次）
func InitMetrics() {
	initOnce.Do(register)
}

func register() {
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Name: "http_requests_total", Help: "HTTP请求总数"},
		[]string{"method", "path", "status"},
	)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP请求耗时（秒）",
			Buckets: []float64{0.001, 0.01, 0.1, 0.5, 1, 5, 10},
		},
		[]string{"method", "path"},
	)
	HTTPRequestsInProgress = promauto.NewGauge(
		prometheus.GaugeOpts{Name: "http_requests_in_progress", Help: "正在处理的HTTP请求数"},
	)

	UpsertsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Name: "catalog_upserts_total", Help: "图书upsert结果计数"},
		[]string{"result"},
	)
	UpsertDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "catalog_upsert_duration_seconds",
			Help:    "图书upsert事务耗时（秒）",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		},
	)
	LockWaitDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "catalog_identity_lock_wait_seconds",
			Help:    "标识锁等待耗时（秒）",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		},
	)
	IdentityAmbiguityTotal = promauto.NewCounter(
		prometheus.CounterOpts{Name: "catalog_identity_ambiguity_total", Help: "无标识记录（无锁路径）数"},
	)

	DedupMergesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Name: "catalog_search_dedup_merges_total", Help: "搜索结果去重合并次数"},
		[]string{"pass"},
	)
	DedupDegradedTotal = promauto.NewCounter(
		prometheus.CounterOpts{Name: "catalog_search_dedup_degraded_total", Help: "作品簇查询失败降级次数"},
	)

	BackfillQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{Name: "catalog_backfill_queue_depth", Help: "回填队列长度"},
	)
	BackfillTasksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Name: "catalog_backfill_tasks_total", Help: "回填任务结果计数"},
		[]string{"source", "result"},
	)

	ProviderRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Name: "catalog_provider_requests_total", Help: "外部数据源请求数"},
		[]string{"provider", "result"},
	)
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{Name: "circuit_breaker_state", Help: "熔断器状态（0=CLOSED, 1=OPEN, 2=HALF_OPEN）"},
		[]string{"name"},
	)
	CircuitBreakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{Name: "circuit_breaker_requests_total", Help: "熔断器请求总数"},
		[]string{"name", "result"},
	)

	MessagesPublishedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Name: "messages_published_total", Help: "消息发布总数"},
		[]string{"exchange", "routing_key"},
	)
	MessagesConsumedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Name: "messages_consumed_total", Help: "消息消费总数"},
		[]string{"queue", "result"},
	)
	OutboxDispatchTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Name: "catalog_outbox_dispatch_total", Help: "outbox事件投递结果"},
		[]string{"result"},
	)
}

// RecordHTTPRequest 记录一次HTTP请求
func RecordHTTPRequest(method, path, status string, d time.Duration) {
	InitMetrics()
	HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
	HTTPRequestDuration.WithLabelValues(method, path).Observe(d.Seconds())
}

// TrackInFlight 并发请求计数，返回的函数在请求结束时调用
func TrackInFlight() func() {
	InitMetrics()
	HTTPRequestsInProgress.Inc()
	return HTTPRequestsInProgress.Dec
}

// RecordUpsert 记录upsert结果
func RecordUpsert(result string, d time.Duration) {
	InitMetrics()
	UpsertsTotal.WithLabelValues(result).Inc()
	UpsertDuration.Observe(d.Seconds())
}

// ObserveLockWait 记录标识锁等待时间
func ObserveLockWait(d time.Duration) {
	InitMetrics()
	LockWaitDuration.Observe(d.Seconds())
}

// IncIdentityAmbiguity 无标识记录计数
func IncIdentityAmbiguity() {
	InitMetrics()
	IdentityAmbiguityTotal.Inc()
}

// AddDedupMerges 记录某一轮去重合并掉的结果数
func AddDedupMerges(pass string, n int) {
	if n <= 0 {
		return
	}
	InitMetrics()
	DedupMergesTotal.WithLabelValues(pass).Add(float64(n))
}

// IncDedupDegraded 去重降级计数
func IncDedupDegraded() {
	InitMetrics()
	DedupDegradedTotal.Inc()
}

// SetBackfillQueueDepth 设置回填队列长度
func SetBackfillQueueDepth(n int) {
	InitMetrics()
	BackfillQueueDepth.Set(float64(n))
}

// IncBackfillTask 回填任务结果计数
func IncBackfillTask(source, result string) {
	InitMetrics()
	BackfillTasksTotal.WithLabelValues(source, result).Inc()
}

// IncProviderRequest 外部数据源请求计数
func IncProviderRequest(provider, result string) {
	InitMetrics()
	ProviderRequestsTotal.WithLabelValues(provider, result).Inc()
}

// SetCircuitBreakerState 设置熔断器状态
func SetCircuitBreakerState(name string, state int) {
	InitMetrics()
	CircuitBreakerState.WithLabelValues(name).Set(float64(state))
}

// IncCircuitBreakerRequest 熔断器请求计数
func IncCircuitBreakerRequest(name, result string) {
	InitMetrics()
	CircuitBreakerRequests.WithLabelValues(name, result).Inc()
}

// IncMessagePublished 消息发布计数
func IncMessagePublished(exchange, routingKey string) {
	InitMetrics()
	MessagesPublishedTotal.WithLabelValues(exchange, routingKey).Inc()
}

// IncMessageConsumed 消息消费计数
func IncMessageConsumed(queue, result string) {
	InitMetrics()
	MessagesConsumedTotal.WithLabelValues(queue, result).Inc()
}

// IncOutboxDispatch outbox投递结果计数
func IncOutboxDispatch(result string) {
	InitMetrics()
	OutboxDispatchTotal.WithLabelValues(result).Inc()
}
