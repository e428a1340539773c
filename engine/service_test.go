package engine

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"go.uber.org/zap"

	"github.com/BaSui01/ragflow/config"
	"github.com/BaSui01/ragflow/internal/cache"
	"github.com/BaSui01/ragflow/llm"
	"github.com/BaSui01/ragflow/pattern"
	"github.com/BaSui01/ragflow/store"
	"github.com/BaSui01/ragflow/testutil/mocks"
	"github.com/BaSui01/ragflow/types"
)

// testHarness 组装全 Mock 的引擎依赖。
type testHarness struct {
	deps      pattern.Deps
	store     *store.MemoryStore
	registrar *store.MemoryRegistrar
	embedder  *mocks.MockEmbedder
	generator *mocks.MockGenerator
}

func newHarness(t *testing.T) *testHarness {
	t.Helper()

	embedder := mocks.NewMockEmbedder()
	generator := mocks.NewMockGenerator()
	memStore := store.NewMemoryStore(nil)
	registrar := store.NewMemoryRegistrar()

	cfg := config.DefaultEngineConfig()
	cfg.SimilarityThreshold = 0.01
	cfg.QualityThreshold = 0.3
	cfg.TopK = 5

	chunker := llm.NewChunker(llm.ChunkerConfig{
		Strategy:     llm.ChunkRecursive,
		ChunkSize:    40,
		ChunkOverlap: 5,
		MinChunkSize: 5,
	}, nil, nil)
	client := llm.NewClient(embedder, generator, nil, chunker, llm.ClientConfig{}, nil)

	return &testHarness{
		deps: pattern.Deps{
			Store:     memStore,
			Client:    client,
			Registrar: registrar,
			Config:    cfg,
			Logger:    zap.NewNop(),
		},
		store:     memStore,
		registrar: registrar,
		embedder:  embedder,
		generator: generator,
	}
}

func TestService_ProcessDocumentAndQuery(t *testing.T) {
	h := newHarness(t)
	svc := NewService(h.deps)
	ctx := context.Background()

	summary, err := svc.ProcessDocument(ctx,
		"Apple Inc. was founded in 1976 by Steve Jobs.", "u1", types.ModeSimple, nil)
	if err != nil {
		t.Fatalf("ProcessDocument failed: %v", err)
	}
	if summary.Stored == 0 {
		t.Fatalf("nothing stored: %+v", summary)
	}
	if summary.Duration <= 0 {
		t.Error("summary should carry a positive duration")
	}

	result := svc.Query(ctx, "Who founded Apple?", "u1", QueryOptions{Mode: types.ModeSimple})
	if !result.Success {
		t.Fatalf("query failed: %s", result.Error)
	}
	found := false
	for _, src := range result.Sources {
		if strings.Contains(src.Content, "Steve Jobs") {
			found = true
		}
	}
	if !found {
		t.Error("expected a source mentioning Steve Jobs")
	}
	if result.Duration <= 0 {
		t.Error("result should carry a positive duration")
	}
}

func TestService_ProcessDocumentUnsupportedMode(t *testing.T) {
	h := newHarness(t)
	svc := NewService(h.deps)

	_, err := svc.ProcessDocument(context.Background(), "content", "u1", "quantum_rag", nil)
	if err == nil {
		t.Fatal("unknown mode must be rejected")
	}
	if types.GetErrorCode(err) != types.ErrUnsupportedMode {
		t.Errorf("expected UNSUPPORTED_MODE, got %v", err)
	}
	count, _ := h.store.CountByUser(context.Background(), "u1")
	if count != 0 {
		t.Error("rejected ingestion must have no side effects")
	}
}

func TestService_QueryUnsupportedModeReturnsFailedResult(t *testing.T) {
	h := newHarness(t)
	svc := NewService(h.deps)

	result := svc.Query(context.Background(), "anything", "u1", QueryOptions{Mode: "quantum_rag"})
	if result.Success {
		t.Fatal("unknown mode must yield a failed result")
	}
	if !strings.Contains(result.Error, "simple") {
		t.Errorf("error should list available modes, got %q", result.Error)
	}
}

func TestService_QueryDefaultsToConfiguredMode(t *testing.T) {
	h := newHarness(t)
	h.deps.Config.DefaultMode = "crag"
	svc := NewService(h.deps)

	result := svc.Query(context.Background(), "anything", "u1", QueryOptions{})
	if result.Mode != types.ModeCRAG {
		t.Errorf("expected default mode crag, got %s", result.Mode)
	}
}

// 空语料 + 自动选择：无论查询多复杂都选 Simple，且成功返回空结果。
func TestService_AutoSelectionEmptyCorpusForcesSimple(t *testing.T) {
	h := newHarness(t)
	svc := NewService(h.deps)

	result := svc.Query(context.Background(),
		"Why did the empire fall, and how does its collapse compare to later ones?",
		"u2", QueryOptions{AutoModeSelection: true})
	if !result.Success {
		t.Fatalf("empty corpus is not an error: %s", result.Error)
	}
	if result.Mode != types.ModeSimple {
		t.Errorf("empty corpus must force simple, got %s", result.Mode)
	}
	if len(result.Sources) != 0 {
		t.Errorf("expected empty sources, got %d", len(result.Sources))
	}
}

func TestService_GetAvailableModes(t *testing.T) {
	h := newHarness(t)
	svc := NewService(h.deps)

	modes := svc.GetAvailableModes()
	if len(modes) != 6 {
		t.Fatalf("expected 6 modes, got %d", len(modes))
	}
	for _, mode := range modes {
		info, err := svc.GetModeInfo(mode)
		if err != nil {
			t.Errorf("GetModeInfo(%s) failed: %v", mode, err)
			continue
		}
		if info.Description == "" {
			t.Errorf("mode %s has no description", mode)
		}
	}
}

func TestService_GetModeInfoUnknown(t *testing.T) {
	h := newHarness(t)
	svc := NewService(h.deps)

	if _, err := svc.GetModeInfo("quantum_rag"); err == nil {
		t.Fatal("unknown mode must be rejected")
	}
}

func TestService_RecommendMode(t *testing.T) {
	h := newHarness(t)
	svc := NewService(h.deps)
	ctx := context.Background()

	// 空语料：无论特征如何都推荐 simple
	mode, features := svc.RecommendMode(ctx, "Why and how did this happen, compared to that?", "nobody")
	if mode != types.ModeSimple {
		t.Errorf("empty corpus must recommend simple, got %s", mode)
	}
	if !features.HasReasoning {
		t.Error("expected reasoning feature to be detected")
	}

	// 有语料后推理类复杂查询偏向 plan_rag
	if _, err := svc.ProcessDocument(ctx, "Some knowledge to make the corpus non-empty.", "u1", types.ModeSimple, nil); err != nil {
		t.Fatal(err)
	}
	mode, _ = svc.RecommendMode(ctx,
		"Why did the project fail, and how could the team have prevented it?", "u1")
	if mode != types.ModePlanRAG {
		t.Errorf("complex reasoning query should recommend plan_rag, got %s", mode)
	}
}

func TestService_PerformanceMetrics(t *testing.T) {
	h := newHarness(t)
	svc := NewService(h.deps)
	ctx := context.Background()

	if _, err := svc.ProcessDocument(ctx, "Documented facts about something.", "u1", types.ModeSimple, nil); err != nil {
		t.Fatal(err)
	}
	svc.Query(ctx, "facts?", "u1", QueryOptions{Mode: types.ModeSimple})
	svc.Query(ctx, "facts?", "u1", QueryOptions{Mode: types.ModeCRAG})

	report := svc.GetPerformanceMetrics()
	if report.TotalQueries != 2 {
		t.Errorf("expected 2 queries recorded, got %d", report.TotalQueries)
	}
	if report.ModeStats[types.ModeSimple].Queries != 1 {
		t.Errorf("expected 1 simple query, got %d", report.ModeStats[types.ModeSimple].Queries)
	}
	if report.SuccessRate != 1.0 {
		t.Errorf("expected success rate 1.0, got %f", report.SuccessRate)
	}
}

func TestService_Reconfigure(t *testing.T) {
	h := newHarness(t)
	svc := NewService(h.deps)

	cfg := h.deps.Config
	cfg.DefaultMode = "raptor"
	svc.Reconfigure(cfg)

	result := svc.Query(context.Background(), "anything", "nobody", QueryOptions{})
	if result.Mode != types.ModeRaptor {
		t.Errorf("reconfigured default mode not applied, got %s", result.Mode)
	}
}

func TestService_DeleteKnowledgeCascadesUnregister(t *testing.T) {
	h := newHarness(t)
	svc := NewService(h.deps)
	ctx := context.Background()

	if _, err := svc.ProcessDocument(ctx, "A short fact.", "u1", types.ModeSimple, nil); err != nil {
		t.Fatal(err)
	}
	items, err := h.store.ListByUser(ctx, "u1")
	if err != nil || len(items) == 0 {
		t.Fatalf("expected stored items, err=%v", err)
	}
	id := items[0].ID
	if !h.registrar.Registered(id) {
		t.Fatal("item should be registered after ingestion")
	}

	if err := svc.DeleteKnowledge(ctx, "u1", id); err != nil {
		t.Fatalf("DeleteKnowledge failed: %v", err)
	}
	if h.registrar.Registered(id) {
		t.Error("deletion must cascade to registrar unregistration")
	}
	if _, err := h.store.Get(ctx, "u1", id); err == nil {
		t.Error("deleted item must be gone from the store")
	}
}

func TestService_DeleteKnowledgeSurvivesRegistrarFailure(t *testing.T) {
	h := newHarness(t)
	svc := NewService(h.deps)
	ctx := context.Background()

	if _, err := svc.ProcessDocument(ctx, "A short fact.", "u1", types.ModeSimple, nil); err != nil {
		t.Fatal(err)
	}
	items, _ := h.store.ListByUser(ctx, "u1")
	id := items[0].ID

	h.registrar.FailNext = true
	if err := svc.DeleteKnowledge(ctx, "u1", id); err != nil {
		t.Fatalf("registrar failure must not fail the delete: %v", err)
	}
}

func TestService_KnowledgeStats(t *testing.T) {
	h := newHarness(t)
	svc := NewService(h.deps)
	ctx := context.Background()

	if _, err := svc.ProcessDocument(ctx, "First simple document.", "u1", types.ModeSimple, nil); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.ProcessDocument(ctx, "Second document stored under crag.", "u1", types.ModeCRAG, nil); err != nil {
		t.Fatal(err)
	}

	stats, err := svc.GetKnowledgeStats(ctx, "u1")
	if err != nil {
		t.Fatalf("GetKnowledgeStats failed: %v", err)
	}
	if stats.Total == 0 {
		t.Fatal("expected stored rows")
	}
	if stats.ByMode["simple"] == 0 || stats.ByMode["crag"] == 0 {
		t.Errorf("expected both modes in distribution, got %+v", stats.ByMode)
	}
	if stats.ByMode["simple"]+stats.ByMode["crag"] != stats.Total {
		t.Errorf("mode counts should sum to total: %+v", stats)
	}
}

func TestService_UpdateKnowledgeMetadata(t *testing.T) {
	h := newHarness(t)
	svc := NewService(h.deps)
	ctx := context.Background()

	if _, err := svc.ProcessDocument(ctx, "A short fact.", "u1", types.ModeSimple, nil); err != nil {
		t.Fatal(err)
	}
	items, _ := h.store.ListByUser(ctx, "u1")
	id := items[0].ID

	if err := svc.UpdateKnowledgeMetadata(ctx, "u1", id, map[string]any{"reviewed": true}); err != nil {
		t.Fatalf("UpdateKnowledgeMetadata failed: %v", err)
	}
	got, err := h.store.Get(ctx, "u1", id)
	if err != nil {
		t.Fatal(err)
	}
	if got.Metadata["reviewed"] != true {
		t.Error("metadata update not persisted")
	}
}

// =============================================================================
// 💾 查询缓存集成
// =============================================================================

func newCachedService(t *testing.T, h *testHarness) *Service {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(mr.Close)

	manager, err := cache.NewManager(cache.Config{Addr: mr.Addr(), DefaultTTL: time.Minute}, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = manager.Close() })

	qc := cache.NewQueryCache(manager, time.Minute, nil)
	return NewService(h.deps, WithQueryCache(qc))
}

func TestService_QueryCacheHit(t *testing.T) {
	h := newHarness(t)
	svc := newCachedService(t, h)
	ctx := context.Background()

	if _, err := svc.ProcessDocument(ctx, "Apple Inc. was founded in 1976 by Steve Jobs.", "u1", types.ModeSimple, nil); err != nil {
		t.Fatal(err)
	}

	first := svc.Query(ctx, "Who founded Apple?", "u1", QueryOptions{Mode: types.ModeSimple})
	if !first.Success {
		t.Fatalf("query failed: %s", first.Error)
	}
	callsAfterFirst := h.generator.Calls()

	second := svc.Query(ctx, "Who founded Apple?", "u1", QueryOptions{Mode: types.ModeSimple})
	if !second.Success {
		t.Fatalf("cached query failed: %s", second.Error)
	}
	if h.generator.Calls() != callsAfterFirst {
		t.Error("second identical query should be served from cache without generation")
	}
	if second.Content != first.Content {
		t.Error("cached content must match the original")
	}
}

func TestService_IngestionInvalidatesQueryCache(t *testing.T) {
	h := newHarness(t)
	svc := newCachedService(t, h)
	ctx := context.Background()

	if _, err := svc.ProcessDocument(ctx, "Apple Inc. was founded in 1976 by Steve Jobs.", "u1", types.ModeSimple, nil); err != nil {
		t.Fatal(err)
	}
	svc.Query(ctx, "Who founded Apple?", "u1", QueryOptions{Mode: types.ModeSimple})
	calls := h.generator.Calls()

	// 新摄取使缓存失效，相同查询必须重新生成
	if _, err := svc.ProcessDocument(ctx, "Steve Wozniak co-founded Apple alongside Jobs.", "u1", types.ModeSimple, nil); err != nil {
		t.Fatal(err)
	}
	svc.Query(ctx, "Who founded Apple?", "u1", QueryOptions{Mode: types.ModeSimple})
	if h.generator.Calls() == calls {
		t.Error("ingestion must invalidate cached query results")
	}
}

// 未知模式的查询同样计入统计。
func TestService_QueryUnsupportedModeCountsInMetrics(t *testing.T) {
	h := newHarness(t)
	svc := NewService(h.deps)

	result := svc.Query(context.Background(), "anything", "u1", QueryOptions{Mode: "quantum_rag"})
	if result.Success {
		t.Fatal("unknown mode must yield a failed result")
	}

	report := svc.GetPerformanceMetrics()
	if report.TotalQueries != 1 || report.FailedQueries != 1 {
		t.Errorf("rejected query must be counted: %+v", report)
	}
}

// 缓存命中的查询同样计入统计。
func TestService_QueryCacheHitCountsInMetrics(t *testing.T) {
	h := newHarness(t)
	svc := newCachedService(t, h)
	ctx := context.Background()

	if _, err := svc.ProcessDocument(ctx, "Apple Inc. was founded in 1976 by Steve Jobs.", "u1", types.ModeSimple, nil); err != nil {
		t.Fatal(err)
	}
	svc.Query(ctx, "Who founded Apple?", "u1", QueryOptions{Mode: types.ModeSimple})
	svc.Query(ctx, "Who founded Apple?", "u1", QueryOptions{Mode: types.ModeSimple})

	report := svc.GetPerformanceMetrics()
	if report.TotalQueries != 2 {
		t.Errorf("cache hits must still count as queries, got %d", report.TotalQueries)
	}
	if report.ModeStats[types.ModeSimple].Queries != 2 {
		t.Errorf("per-mode count must include the cached query: %+v", report.ModeStats)
	}
}

func TestService_CloseRunsClosersInReverse(t *testing.T) {
	h := newHarness(t)
	var order []string
	svc := NewService(h.deps,
		WithCloser(func(context.Context) error {
			order = append(order, "first")
			return nil
		}),
		WithCloser(func(context.Context) error {
			order = append(order, "second")
			return errors.New("flush failed")
		}),
	)

	err := svc.Close(context.Background())
	if err == nil || !strings.Contains(err.Error(), "flush failed") {
		t.Errorf("closer errors must surface, got %v", err)
	}
	if len(order) != 2 || order[0] != "second" || order[1] != "first" {
		t.Errorf("closers must run in reverse registration order, got %v", order)
	}
}
