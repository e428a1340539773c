package pattern

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/ragflow/types"
)

// SimplePattern 基线模式：切块 → 嵌入 → 入库；查询时 top-k
// 相似度检索拼上下文后生成。没有更强策略可用时的兜底。
type SimplePattern struct {
	base
}

// NewSimplePattern 创建基线模式
func NewSimplePattern(deps Deps) *SimplePattern {
	return &SimplePattern{base: newBase(deps, types.ModeSimple)}
}

// Description 返回模式说明
func (p *SimplePattern) Description() string {
	return "Baseline retrieval: chunk, embed, store; top-k similarity search with context-grounded generation"
}

// ProcessDocument 摄取一篇文档
func (p *SimplePattern) ProcessDocument(ctx context.Context, content, userID string, metadata map[string]any) (*types.IngestSummary, error) {
	start := time.Now()
	docID := newID()

	summary, _ := p.ingestChunks(ctx, content, userID, docID, metadata, nil)
	summary.Duration = time.Since(start)

	p.deps.Logger.Info("document ingested",
		zap.String("mode", string(p.mode)),
		zap.String("document_id", docID),
		zap.Int("stored", summary.Stored),
		zap.Int("failed", summary.Failed))
	return summary, nil
}

// Query 检索并生成答案
func (p *SimplePattern) Query(ctx context.Context, query, userID string, qctx map[string]any) *types.RAGResult {
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
		result := &types.RAGResult{
			Success:  true,
			Sources:  []types.SourceItem{},
			Metadata: map[string]any{"no_matches": true},
			Mode:     p.mode,
			Duration: time.Since(start),
		}
		return result
	}

	scored = p.rerankScored(ctx, query, scored)

	content, err := p.generate(ctx, query, p.buildContext(scored))
	if err != nil {
		result := types.FailedResult(p.mode, err)
		result.Duration = time.Since(start)
		return result
	}

	return &types.RAGResult{
		Success:  true,
		Content:  content,
		Sources:  sources(scored),
		Metadata: map[string]any{"retrieved": len(scored)},
		Mode:     p.mode,
		Duration: time.Since(start),
	}
}
