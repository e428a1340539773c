package pattern

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/BaSui01/ragflow/llm"
	"github.com/BaSui01/ragflow/store"
	"github.com/BaSui01/ragflow/types"
)

// 单项"需要精炼"的判定线：整体分低于它的幸存条目会过一遍精炼钩子。
const cragRefinementLine = 0.7

// QualityAssessment 是一条候选的质量评估，按查询构建、查询
// 结束即丢弃，不落库。
type QualityAssessment struct {
	Relevance       float64  `json:"relevance"`
	Completeness    float64  `json:"completeness"`
	Accuracy        float64  `json:"accuracy"`
	Overall         float64  `json:"overall"`
	NeedsRefinement bool     `json:"needs_refinement"`
	Suggestions     []string `json:"suggestions,omitempty"`
}

// CRAGPattern 质量评估模式。摄取时为每块预计算质量分；查询时
// 过检索约 2 倍 top-k，逐条评估相关性/完整性/准确性，丢弃低于
// 质量阈值的候选，幸存者按整体分降序截断。被单独标记"需要精
// 炼"的条目经过精炼钩子（当前为直通的扩展点）再参与生成。
type CRAGPattern struct {
	base
}

// NewCRAGPattern 创建质量评估模式
func NewCRAGPattern(deps Deps) *CRAGPattern {
	return &CRAGPattern{base: newBase(deps, types.ModeCRAG)}
}

// Description 返回模式说明
func (p *CRAGPattern) Description() string {
	return "Corrective retrieval: over-retrieves candidates, assesses relevance/completeness/accuracy per item, filters below threshold"
}

// ====== 摄取 ======

// ProcessDocument 摄取一篇文档，每块带预计算质量分
func (p *CRAGPattern) ProcessDocument(ctx context.Context, content, userID string, metadata map[string]any) (*types.IngestSummary, error) {
	start := time.Now()
	docID := newID()

	summary, _ := p.ingestChunks(ctx, content, userID, docID, metadata, func(meta map[string]any, chunk llm.Chunk) {
		meta[types.MetaQualityScore] = chunkQuality(chunk.Text)
	})
	summary.Duration = time.Since(start)
	return summary, nil
}

// chunkQuality 预计算块质量：长度充分性、句子完整度、清晰度
// 启发式的加权平均。
func chunkQuality(text string) float64 {
	// 长度充分性：200 字符视为充分
	length := float64(len(text)) / 200
	if length > 1 {
		length = 1
	}

	// 句子完整度：以终止标点结尾
	completeness := 0.5
	trimmed := strings.TrimSpace(text)
	if trimmed != "" {
		switch trimmed[len(trimmed)-1] {
		case '.', '!', '?':
			completeness = 1
		}
	}

	// 清晰度：平均词长在可读区间
	clarity := 0.5
	words := strings.Fields(trimmed)
	if len(words) > 0 {
		total := 0
		for _, w := range words {
			total += len(w)
		}
		avg := float64(total) / float64(len(words))
		if avg >= 3 && avg <= 8 {
			clarity = 1
		}
	}

	return 0.4*length + 0.3*completeness + 0.3*clarity
}

// ====== 查询 ======

// Query 过检索、逐条评估、阈值过滤后生成
func (p *CRAGPattern) Query(ctx context.Context, query, userID string, qctx map[string]any) *types.RAGResult {
	start := time.Now()

	if p.emptyCorpus(ctx, userID) {
		result := types.EmptyResult(p.mode)
		result.Duration = time.Since(start)
		return result
	}

	// 过检索 2 倍，给过滤留余量
	scored, err := p.retrieve(ctx, query, userID, 2*p.topK(), "", nil)
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

	threshold := p.deps.Config.QualityThreshold
	if !p.deps.Config.EnableQualityCheck {
		threshold = 0
	}

	type assessed struct {
		item       store.ScoredItem
		assessment QualityAssessment
	}
	survivors := make([]assessed, 0, len(scored))
	for _, s := range scored {
		a := p.assess(query, s)
		if a.Overall < threshold {
			continue
		}
		if a.NeedsRefinement {
			s.Item = p.refineItem(s.Item, a)
		}
		survivors = append(survivors, assessed{item: s, assessment: a})
	}

	sort.SliceStable(survivors, func(i, j int) bool {
		return survivors[i].assessment.Overall > survivors[j].assessment.Overall
	})
	if len(survivors) > p.topK() {
		survivors = survivors[:p.topK()]
	}

	if len(survivors) == 0 {
		return &types.RAGResult{
			Success: true,
			Sources: []types.SourceItem{},
			Metadata: map[string]any{
				"assessed": len(scored),
				"filtered": len(scored),
			},
			Mode:     p.mode,
			Duration: time.Since(start),
		}
	}

	finalScored := make([]store.ScoredItem, len(survivors))
	srcs := make([]types.SourceItem, len(survivors))
	for i, s := range survivors {
		finalScored[i] = s.item
		meta := s.item.Item.CloneMetadata()
		meta["assessment"] = s.assessment
		srcs[i] = types.SourceItem{
			ID:       s.item.Item.ID,
			Content:  s.item.Item.Content,
			Score:    s.assessment.Overall,
			Metadata: meta,
		}
	}

	content, err := p.generate(ctx, query, p.buildContext(finalScored))
	if err != nil {
		result := types.FailedResult(p.mode, err)
		result.Duration = time.Since(start)
		return result
	}

	return &types.RAGResult{
		Success: true,
		Content: content,
		Sources: srcs,
		Metadata: map[string]any{
			"assessed": len(scored),
			"filtered": len(scored) - len(survivors),
		},
		Mode:     p.mode,
		Duration: time.Since(start),
	}
}

// assess 为一条候选构建质量评估
func (p *CRAGPattern) assess(query string, s store.ScoredItem) QualityAssessment {
	a := QualityAssessment{
		Relevance:    clamp01(s.Score),
		Completeness: completenessScore(query, s.Item.Content),
		Accuracy:     accuracyScore(s.Item.Content),
	}
	a.Overall = (a.Relevance + a.Completeness + a.Accuracy) / 3
	a.NeedsRefinement = a.Overall < cragRefinementLine

	if a.Relevance < 0.3 {
		a.Suggestions = append(a.Suggestions, "low similarity to query, consider retrieval expansion")
	}
	if a.Completeness < 0.5 {
		a.Suggestions = append(a.Suggestions, "weak term coverage of the query")
	}
	if a.Accuracy < 0.5 {
		a.Suggestions = append(a.Suggestions, "text lacks accuracy markers")
	}
	return a
}

// completenessScore 查询关键词被文本覆盖的比例
func completenessScore(query, text string) float64 {
	terms := queryTerms(query)
	if len(terms) == 0 {
		return 0.5
	}
	return float64(termOverlap(terms, text)) / float64(len(terms))
}

// accuracyScore 四个文本启发式各占 0.25：含具体数字、句子完整、
// 无模糊措辞、长度不过短。
func accuracyScore(text string) float64 {
	score := 0.0
	if strings.ContainsAny(text, "0123456789") {
		score += 0.25
	}
	trimmed := strings.TrimSpace(text)
	if trimmed != "" && strings.ContainsAny(string(trimmed[len(trimmed)-1]), ".!?") {
		score += 0.25
	}
	lower := strings.ToLower(text)
	if !strings.Contains(lower, "maybe") && !strings.Contains(lower, "possibly") && !strings.Contains(lower, "unclear") {
		score += 0.25
	}
	if len(trimmed) >= 40 {
		score += 0.25
	}
	return score
}

// refineItem 单条精炼钩子。当前为直通：这是给更聪明的逐条
// 修复器预留的接入点。
func (p *CRAGPattern) refineItem(item *types.KnowledgeItem, _ QualityAssessment) *types.KnowledgeItem {
	return item
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
