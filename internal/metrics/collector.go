// Package metrics provides internal metrics collection.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// =============================================================================
// 📊 指标收集器
// =============================================================================

// Collector 指标收集器
type Collector struct {
	// 查询指标
	queriesTotal  *prometheus.CounterVec
	queryDuration *prometheus.HistogramVec

	// 摄取指标
	ingestionsTotal   *prometheus.CounterVec
	ingestionDuration *prometheus.HistogramVec
	chunksStored      *prometheus.CounterVec
	chunksFailed      *prometheus.CounterVec

	// 混合查询指标
	hybridQueriesTotal *prometheus.CounterVec
	hybridModeCount    *prometheus.HistogramVec

	// 缓存指标
	cacheHits   *prometheus.CounterVec
	cacheMisses *prometheus.CounterVec

	// 模式推荐指标
	recommendationsTotal *prometheus.CounterVec

	logger *zap.Logger
}

// NewCollector 创建指标收集器。registerer 为 nil 时使用默认注册表；
// 测试传入独立的 prometheus.NewRegistry() 避免重复注册。
func NewCollector(namespace string, registerer prometheus.Registerer, logger *zap.Logger) *Collector {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	factory := promauto.With(registerer)

	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	// 查询指标
	c.queriesTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queries_total",
			Help:      "Total number of RAG queries",
		},
		[]string{"mode", "status"},
	)

	c.queryDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "query_duration_seconds",
			Help:      "RAG query duration in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"mode"},
	)

	// 摄取指标
	c.ingestionsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingestions_total",
			Help:      "Total number of document ingestions",
		},
		[]string{"mode", "status"},
	)

	c.ingestionDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "ingestion_duration_seconds",
			Help:      "Document ingestion duration in seconds",
			Buckets:   []float64{0.01, 0.1, 0.5, 1, 5, 10, 30, 60},
		},
		[]string{"mode"},
	)

	c.chunksStored = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chunks_stored_total",
			Help:      "Total number of knowledge chunks stored",
		},
		[]string{"mode"},
	)

	c.chunksFailed = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chunks_failed_total",
			Help:      "Total number of chunks that failed during ingestion",
		},
		[]string{"mode"},
	)

	// 混合查询指标
	c.hybridQueriesTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "hybrid_queries_total",
			Help:      "Total number of hybrid queries",
		},
		[]string{"status"},
	)

	c.hybridModeCount = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "hybrid_modes_per_query",
			Help:      "Number of modes fanned out per hybrid query",
			Buckets:   []float64{1, 2, 3, 4, 5, 6},
		},
		[]string{"status"},
	)

	// 缓存指标
	c.cacheHits = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_hits_total",
			Help:      "Total number of cache hits",
		},
		[]string{"cache_type"},
	)

	c.cacheMisses = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_misses_total",
			Help:      "Total number of cache misses",
		},
		[]string{"cache_type"},
	)

	// 模式推荐指标
	c.recommendationsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mode_recommendations_total",
			Help:      "Total number of automatic mode recommendations",
		},
		[]string{"mode"},
	)

	logger.Info("metrics collector initialized", zap.String("namespace", namespace))

	return c
}

// =============================================================================
// 🎯 查询指标记录
// =============================================================================

// RecordQuery 记录一次查询
func (c *Collector) RecordQuery(mode string, success bool, duration time.Duration) {
	c.queriesTotal.WithLabelValues(mode, status(success)).Inc()
	c.queryDuration.WithLabelValues(mode).Observe(duration.Seconds())
}

// RecordIngestion 记录一次文档摄取
func (c *Collector) RecordIngestion(mode string, success bool, stored, failed int, duration time.Duration) {
	c.ingestionsTotal.WithLabelValues(mode, status(success)).Inc()
	c.ingestionDuration.WithLabelValues(mode).Observe(duration.Seconds())
	c.chunksStored.WithLabelValues(mode).Add(float64(stored))
	c.chunksFailed.WithLabelValues(mode).Add(float64(failed))
}

// RecordHybridQuery 记录一次混合查询
func (c *Collector) RecordHybridQuery(success bool, modeCount int, duration time.Duration) {
	s := status(success)
	c.hybridQueriesTotal.WithLabelValues(s).Inc()
	c.hybridModeCount.WithLabelValues(s).Observe(float64(modeCount))
}

// RecordRecommendation 记录一次模式推荐
func (c *Collector) RecordRecommendation(mode string) {
	c.recommendationsTotal.WithLabelValues(mode).Inc()
}

// =============================================================================
// 💾 缓存指标记录
// =============================================================================

// RecordCacheHit 记录缓存命中
func (c *Collector) RecordCacheHit(cacheType string) {
	c.cacheHits.WithLabelValues(cacheType).Inc()
}

// RecordCacheMiss 记录缓存未命中
func (c *Collector) RecordCacheMiss(cacheType string) {
	c.cacheMisses.WithLabelValues(cacheType).Inc()
}

// =============================================================================
// 🔧 辅助函数
// =============================================================================

func status(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}
