package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func newTestCollector() *Collector {
	// 独立注册表避免跨测试的重复注册
	return NewCollector("ragflow_test", prometheus.NewRegistry(), zap.NewNop())
}

// =============================================================================
// 🧪 Collector 测试
// =============================================================================

func TestNewCollector(t *testing.T) {
	collector := newTestCollector()

	assert.NotNil(t, collector)
	assert.NotNil(t, collector.queriesTotal)
	assert.NotNil(t, collector.queryDuration)
	assert.NotNil(t, collector.ingestionsTotal)
	assert.NotNil(t, collector.chunksStored)
	assert.NotNil(t, collector.hybridQueriesTotal)
}

func TestCollector_RecordQuery(t *testing.T) {
	collector := newTestCollector()

	collector.RecordQuery("simple", true, 100*time.Millisecond)
	collector.RecordQuery("raptor", false, 200*time.Millisecond)

	count := testutil.CollectAndCount(collector.queriesTotal)
	assert.Equal(t, 2, count)

	assert.Equal(t, 1.0, testutil.ToFloat64(
		collector.queriesTotal.WithLabelValues("simple", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(
		collector.queriesTotal.WithLabelValues("raptor", "failure")))
}

func TestCollector_RecordIngestion(t *testing.T) {
	collector := newTestCollector()

	collector.RecordIngestion("crag", true, 7, 1, 500*time.Millisecond)

	assert.Equal(t, 7.0, testutil.ToFloat64(collector.chunksStored.WithLabelValues("crag")))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.chunksFailed.WithLabelValues("crag")))
	assert.Equal(t, 1.0, testutil.ToFloat64(
		collector.ingestionsTotal.WithLabelValues("crag", "success")))
}

func TestCollector_RecordHybridQuery(t *testing.T) {
	collector := newTestCollector()

	collector.RecordHybridQuery(true, 3, 300*time.Millisecond)
	collector.RecordHybridQuery(false, 2, 100*time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(collector.hybridQueriesTotal.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.hybridQueriesTotal.WithLabelValues("failure")))
}

func TestCollector_RecordCacheOperation(t *testing.T) {
	collector := newTestCollector()

	collector.RecordCacheHit("redis")
	collector.RecordCacheHit("redis")
	collector.RecordCacheMiss("redis")

	assert.Equal(t, 2.0, testutil.ToFloat64(collector.cacheHits.WithLabelValues("redis")))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.cacheMisses.WithLabelValues("redis")))
}

func TestCollector_RecordRecommendation(t *testing.T) {
	collector := newTestCollector()

	collector.RecordRecommendation("plan_rag")
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.recommendationsTotal.WithLabelValues("plan_rag")))
}

func TestCollector_ConcurrentRecording(t *testing.T) {
	collector := newTestCollector()

	done := make(chan bool)
	for i := 0; i < 10; i++ {
		go func() {
			collector.RecordQuery("simple", true, 10*time.Millisecond)
			collector.RecordCacheHit("redis")
			done <- true
		}()
	}
	for i := 0; i < 10; i++ {
		<-done
	}

	assert.Equal(t, 10.0, testutil.ToFloat64(
		collector.queriesTotal.WithLabelValues("simple", "success")))
	assert.Equal(t, 10.0, testutil.ToFloat64(collector.cacheHits.WithLabelValues("redis")))
}
