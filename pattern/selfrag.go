package pattern

import (
	"context"
	"fmt"
	"time"

	"github.com/BaSui01/ragflow/llm"
	"github.com/BaSui01/ragflow/store"
	"github.com/BaSui01/ragflow/types"
)

// 初始答案评分的四个布尔指标，各占 0.25。
const selfRAGIndicatorWeight = 0.25

// SelfRAGPattern 自反思模式。查询分四步：检索 top-k、用前三条
// 生成初始答案、按四个布尔指标给答案打 0-1 分、低于阈值时附加
// 一次自我批评并重述更完整的答案。精炼恰好执行一次，不是无界
// 循环。
type SelfRAGPattern struct {
	base
}

// NewSelfRAGPattern 创建自反思模式
func NewSelfRAGPattern(deps Deps) *SelfRAGPattern {
	return &SelfRAGPattern{base: newBase(deps, types.ModeSelfRAG)}
}

// Description 返回模式说明
func (p *SelfRAGPattern) Description() string {
	return "Self-reflective retrieval: scores the initial answer on four indicators and refines once when below threshold"
}

// ProcessDocument 摄取一篇文档，块带反思开关标签
func (p *SelfRAGPattern) ProcessDocument(ctx context.Context, content, userID string, metadata map[string]any) (*types.IngestSummary, error) {
	start := time.Now()
	docID := newID()

	summary, _ := p.ingestChunks(ctx, content, userID, docID, metadata, func(meta map[string]any, _ llm.Chunk) {
		meta[types.MetaReflection] = true
	})
	summary.Duration = time.Since(start)
	return summary, nil
}

// Query 生成初始答案并做一次有界的反思精炼
func (p *SelfRAGPattern) Query(ctx context.Context, query, userID string, qctx map[string]any) *types.RAGResult {
	start := time.Now()

	if p.emptyCorpus(ctx, userID) {
		result := types.EmptyResult(p.mode)
		result.Duration = time.Since(start)
		return result
	}

	scored, err := p.retrieve(ctx, query, userID, p.topK(), "", nil)
	if err != nil {
		result := types.FailedResult(p.mode, err)
		result.Duration = time.Since(start)
		return result
	}
	if len(scored) == 0 {
		return &types.RAGResult{
			Success:  true,
			Sources:  []types.SourceItem{},
			Metadata: map[string]any{"no_matches": true},
			Mode:     p.mode,
			Duration: time.Since(start),
		}
	}

	// 初始答案只用前三条候选
	top := scored
	if len(top) > 3 {
		top = top[:3]
	}
	answer, err := p.generate(ctx, query, p.buildContext(top))
	if err != nil {
		result := types.FailedResult(p.mode, err)
		result.Duration = time.Since(start)
		return result
	}

	score, indicators := p.scoreAnswer(query, answer, top)
	refined := false

	threshold := p.deps.Config.ReflectionThreshold
	if threshold <= 0 {
		threshold = 0.6
	}
	if p.deps.Config.EnableSelfReflection && score < threshold {
		// 恰好一次精炼：失败时保留初始答案，不再重试
		if better, rerr := p.refine(ctx, query, answer, top); rerr == nil {
			answer = better
			refined = true
		} else {
			p.deps.Logger.Warn("refinement failed, keeping initial answer")
		}
	}

	return &types.RAGResult{
		Success: true,
		Content: answer,
		Sources: sources(scored),
		Metadata: map[string]any{
			"reflection_score": score,
			"indicators":       indicators,
			"refined":          refined,
		},
		Mode:     p.mode,
		Duration: time.Since(start),
	}
}

// scoreAnswer 用四个布尔指标评估初始答案：有相关信息、长度
// 足够、引用了来源、与查询关键词有词面重叠。
func (p *SelfRAGPattern) scoreAnswer(query, answer string, top []store.ScoredItem) (float64, map[string]bool) {
	terms := queryTerms(query)

	sourceOverlap := 0
	for _, s := range top {
		sourceOverlap += termOverlap(queryTerms(s.Item.Content), answer)
	}

	indicators := map[string]bool{
		"has_relevant_info": len(top) > 0 && answer != "",
		"sufficient_length": len(answer) >= 50,
		"cites_sources":     sourceOverlap >= 2,
		"overlaps_query":    termOverlap(terms, answer) >= 1,
	}

	score := 0.0
	for _, ok := range indicators {
		if ok {
			score += selfRAGIndicatorWeight
		}
	}
	return score, indicators
}

// refine 附加自我批评并重述一个更完整的答案
func (p *SelfRAGPattern) refine(ctx context.Context, query, answer string, top []store.ScoredItem) (string, error) {
	prompt := fmt.Sprintf(
		"The following answer may be incomplete. Critique it briefly, then restate a more complete answer grounded in the context.\n\nContext:\n%s\n\nQuestion: %s\n\nInitial answer: %s",
		p.buildContext(top), query, answer)
	out, err := p.deps.Client.Generate(ctx, prompt, llm.GenerateOptions{})
	if err != nil {
		return "", err
	}
	return answer + "\n\n[Refined] " + out, nil
}
