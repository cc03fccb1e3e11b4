package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// TestInitMetrics 重复调用不会重复注册（promauto重复注册会panic）
func TestInitMetrics(t *testing.T) {
	InitMetrics()
	InitMetrics()

	if UpsertsTotal == nil || LockWaitDuration == nil || BackfillQueueDepth == nil {
		t.Fatal("指标未初始化")
	}
}

func TestRecordUpsert(t *testing.T) {
	InitMetrics()
	created := UpsertsTotal.WithLabelValues("created")
	before := getCounterValue(t, created)
	beforeCount := getHistogramCount(t, UpsertDuration)

	RecordUpsert("created", 20*time.Millisecond)
	RecordUpsert("created", 30*time.Millisecond)

	if got := getCounterValue(t, created) - before; got != 2 {
		t.Errorf("created计数错误: expected=2, got=%f", got)
	}
	if got := getHistogramCount(t, UpsertDuration) - beforeCount; got != 2 {
		t.Errorf("耗时观测次数错误: expected=2, got=%d", got)
	}
}

func TestAddDedupMerges_IgnoresZero(t *testing.T) {
	InitMetrics()
	c := DedupMergesTotal.WithLabelValues("cluster")
	before := getCounterValue(t, c)

	AddDedupMerges("cluster", 0)
	AddDedupMerges("cluster", 3)

	if got := getCounterValue(t, c) - before; got != 3 {
		t.Errorf("合并计数错误: expected=3, got=%f", got)
	}
}

func TestSetBackfillQueueDepth(t *testing.T) {
	SetBackfillQueueDepth(7)
	if got := getGaugeValue(t, BackfillQueueDepth); got != 7 {
		t.Errorf("队列深度错误: expected=7, got=%f", got)
	}
	SetBackfillQueueDepth(0)
	if got := getGaugeValue(t, BackfillQueueDepth); got != 0 {
		t.Errorf("队列深度错误: expected=0, got=%f", got)
	}
}

func TestTrackInFlight(t *testing.T) {
	InitMetrics()
	before := getGaugeValue(t, HTTPRequestsInProgress)

	done := TrackInFlight()
	if got := getGaugeValue(t, HTTPRequestsInProgress); got != before+1 {
		t.Errorf("并发请求数错误: expected=%f, got=%f", before+1, got)
	}
	done()
	if got := getGaugeValue(t, HTTPRequestsInProgress); got != before {
		t.Errorf("并发请求数未恢复: expected=%f, got=%f", before, got)
	}
}

func TestCircuitBreakerGauge(t *testing.T) {
	SetCircuitBreakerState("google-books", 1)
	g := CircuitBreakerState.WithLabelValues("google-books")
	if got := getGaugeValue(t, g); got != 1 {
		t.Errorf("熔断器状态错误: expected=1, got=%f", got)
	}
}

// 辅助函数：获取Counter值
func getCounterValue(t *testing.T, counter prometheus.Counter) float64 {
	t.Helper()
	var metric dto.Metric
	if err := counter.Write(&metric); err != nil {
		t.Fatalf("读取Counter值失败: %v", err)
	}
	return metric.Counter.GetValue()
}

// 辅助函数：获取Gauge值
func getGaugeValue(t *testing.T, gauge prometheus.Gauge) float64 {
	t.Helper()
	var metric dto.Metric
	if err := gauge.Write(&metric); err != nil {
		t.Fatalf("读取Gauge值失败: %v", err)
	}
	return metric.Gauge.GetValue()
}

// 辅助函数：获取Histogram观测次数
func getHistogramCount(t *testing.T, histogram prometheus.Histogram) uint64 {
	t.Helper()
	var metric dto.Metric
	if err := histogram.Write(&metric); err != nil {
		t.Fatalf("读取Histogram值失败: %v", err)
	}
	return metric.Histogram.GetSampleCount()
}
