package engine

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/BaSui01/ragflow/types"
)

// failingPattern 的 Query 永远返回失败信封，用于验证混合查询
// 对单分支失败的容忍。
type failingPattern struct{}

func (failingPattern) Mode() types.Mode    { return types.ModeRaptor }
func (failingPattern) Description() string { return "always failing stub" }

func (failingPattern) ProcessDocument(ctx context.Context, content, userID string, metadata map[string]any) (*types.IngestSummary, error) {
	return nil, fmt.Errorf("stub failure")
}

func (failingPattern) Query(ctx context.Context, query, userID string, qctx map[string]any) *types.RAGResult {
	return types.FailedResult(types.ModeRaptor, fmt.Errorf("stub failure"))
}

func TestHybridQuery_MergesModes(t *testing.T) {
	h := newHarness(t)
	svc := NewService(h.deps)
	ctx := context.Background()

	if _, err := svc.ProcessDocument(ctx,
		"Apple Inc. was founded in 1976 by Steve Jobs.", "u1", types.ModeSimple, nil); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.ProcessDocument(ctx,
		"Apple's first product was the Apple I computer.", "u1", types.ModeRaptor, nil); err != nil {
		t.Fatal(err)
	}

	result := svc.HybridQuery(ctx, "Who founded Apple?", "u1", nil, nil)
	if !result.Success {
		t.Fatalf("hybrid query failed: %s", result.Error)
	}
	if result.Mode != "hybrid" {
		t.Errorf("expected hybrid mode marker, got %s", result.Mode)
	}

	modeResults, ok := result.Metadata["mode_results"].(map[string]bool)
	if !ok {
		t.Fatalf("expected mode_results map, got %T", result.Metadata["mode_results"])
	}
	// 默认组合是 simple + raptor + self_rag
	if len(modeResults) != 3 {
		t.Errorf("expected 3 mode entries, got %d", len(modeResults))
	}
	if len(result.Sources) == 0 {
		t.Error("expected merged sources")
	}
}

// 一个分支被强制失败：整体仍成功，失败模式在 mode_results 标记为 false。
func TestHybridQuery_SurvivesSingleBranchFailure(t *testing.T) {
	h := newHarness(t)
	svc := NewService(h.deps)
	ctx := context.Background()

	if _, err := svc.ProcessDocument(ctx,
		"Apple Inc. was founded in 1976 by Steve Jobs.", "u1", types.ModeSimple, nil); err != nil {
		t.Fatal(err)
	}
	svc.patterns[types.ModeRaptor] = failingPattern{}

	result := svc.HybridQuery(ctx, "Who founded Apple?", "u1",
		[]types.Mode{types.ModeSimple, types.ModeRaptor}, nil)
	if !result.Success {
		t.Fatalf("one surviving branch is enough: %s", result.Error)
	}

	modeResults := result.Metadata["mode_results"].(map[string]bool)
	if modeResults["raptor"] {
		t.Error("failed branch must be marked false in mode_results")
	}
	if !modeResults["simple"] {
		t.Error("surviving branch must be marked true in mode_results")
	}
	if len(result.Sources) == 0 {
		t.Error("surviving branch's sources must still be returned")
	}
}

// Simple-only 语料上跑 [simple, raptor]：raptor 没有树可查，
// 返回零来源但不报错，合并结果仍有 simple 的来源。
func TestHybridQuery_RaptorWithoutTreeContributesNothing(t *testing.T) {
	h := newHarness(t)
	svc := NewService(h.deps)
	ctx := context.Background()

	if _, err := svc.ProcessDocument(ctx,
		"Apple Inc. was founded in 1976 by Steve Jobs.", "u1", types.ModeSimple, nil); err != nil {
		t.Fatal(err)
	}

	result := svc.HybridQuery(ctx, "Who founded Apple?", "u1",
		[]types.Mode{types.ModeSimple, types.ModeRaptor}, nil)
	if !result.Success {
		t.Fatalf("hybrid query failed: %s", result.Error)
	}

	modeResults := result.Metadata["mode_results"].(map[string]bool)
	if !modeResults["raptor"] {
		t.Error("raptor without a tree still succeeds with zero sources")
	}
	found := false
	for _, src := range result.Sources {
		if strings.Contains(src.Content, "Steve Jobs") {
			found = true
		}
	}
	if !found {
		t.Error("merged result must carry simple's sources")
	}
}

func TestHybridQuery_UnknownModeIsStructuralError(t *testing.T) {
	h := newHarness(t)
	svc := NewService(h.deps)

	result := svc.HybridQuery(context.Background(), "anything", "u1",
		[]types.Mode{types.ModeSimple, "quantum_rag"}, nil)
	if result.Success {
		t.Fatal("unknown mode in the set must fail the whole call")
	}
	if !strings.Contains(result.Error, "quantum_rag") {
		t.Errorf("error should name the bad mode, got %q", result.Error)
	}
}

// 两个都检索同一批行的模式：合并来源按 id 去重。
func TestHybridQuery_DeduplicatesSources(t *testing.T) {
	h := newHarness(t)
	svc := NewService(h.deps)
	ctx := context.Background()

	if _, err := svc.ProcessDocument(ctx,
		"Apple Inc. was founded in 1976 by Steve Jobs.", "u1", types.ModeSimple, nil); err != nil {
		t.Fatal(err)
	}

	result := svc.HybridQuery(ctx, "Who founded Apple?", "u1",
		[]types.Mode{types.ModeSimple, types.ModeCRAG}, nil)
	if !result.Success {
		t.Fatalf("hybrid query failed: %s", result.Error)
	}

	seen := make(map[string]bool)
	for _, src := range result.Sources {
		if seen[src.ID] {
			t.Errorf("duplicate source id %s in merged result", src.ID)
		}
		seen[src.ID] = true
	}
}

func TestHybridQuery_AllBranchesFailed(t *testing.T) {
	h := newHarness(t)
	svc := NewService(h.deps)
	svc.patterns[types.ModeSimple] = failingPattern{}
	svc.patterns[types.ModeCRAG] = failingPattern{}

	result := svc.HybridQuery(context.Background(), "anything", "u1",
		[]types.Mode{types.ModeSimple, types.ModeCRAG}, nil)
	if result.Success {
		t.Fatal("all branches failing must fail the hybrid call")
	}
	modeResults := result.Metadata["mode_results"].(map[string]bool)
	if modeResults["simple"] || modeResults["crag"] {
		t.Error("all branches must be marked failed")
	}
}

func TestConfidence_Heuristics(t *testing.T) {
	failed := types.FailedResult(types.ModeSimple, nil)
	if confidence(failed) != 0 {
		t.Error("failed results carry zero confidence")
	}

	small := &types.RAGResult{Success: true, Content: "short",
		Sources: []types.SourceItem{{ID: "a"}}, Duration: time.Millisecond}
	big := &types.RAGResult{Success: true, Content: strings.Repeat("long content ", 100),
		Sources: []types.SourceItem{{ID: "a"}, {ID: "b"}, {ID: "c"}}, Duration: time.Millisecond}
	if confidence(big) <= confidence(small) {
		t.Error("more sources and longer content should raise confidence")
	}

	slow := &types.RAGResult{Success: true, Content: "short",
		Sources: []types.SourceItem{{ID: "a"}}, Duration: 10 * time.Second}
	if confidence(slow) >= confidence(small) {
		t.Error("slow results lose the fast-processing bonus")
	}

	// 各加成封顶，置信度不应超过 1.0
	huge := &types.RAGResult{Success: true, Content: strings.Repeat("x", 100000),
		Sources: make([]types.SourceItem, 100), Duration: time.Millisecond}
	if confidence(huge) > 1.0 {
		t.Errorf("confidence must stay capped, got %f", confidence(huge))
	}
}

// 内容块按置信度降序排列：来源多的模式排在前面。
func TestHybridQuery_ContentOrderedByConfidence(t *testing.T) {
	h := newHarness(t)
	svc := NewService(h.deps)
	ctx := context.Background()

	// crag 过滤后来源更少，simple 的块应排在前面
	if _, err := svc.ProcessDocument(ctx,
		"Apple Inc. was founded in 1976 by Steve Jobs. Apple builds computers and phones.",
		"u1", types.ModeSimple, nil); err != nil {
		t.Fatal(err)
	}

	result := svc.HybridQuery(ctx, "Who founded Apple?", "u1",
		[]types.Mode{types.ModeSimple, types.ModeRaptor}, nil)
	if !result.Success {
		t.Fatalf("hybrid query failed: %s", result.Error)
	}
	if result.Content == "" {
		t.Fatal("expected merged content")
	}
	// simple 有来源、raptor 没有：simple 的块必须在最前
	if !strings.HasPrefix(result.Content, "[simple]") {
		t.Errorf("highest-confidence block should lead, got %q", result.Content[:min(40, len(result.Content))])
	}
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
