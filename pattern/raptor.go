package pattern

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/ragflow/llm"
	"github.com/BaSui01/ragflow/store"
	"github.com/BaSui01/ragflow/types"
)

const (
	// 叶子聚类的单链相似度阈值：新叶子加入第一个代表向量
	// 相似度达标的簇，否则自成一簇
	raptorClusterThreshold = 0.75
	// 摘要输入的截断上限（字符）
	raptorSummaryInputCap = 2000
)

// RaptorPattern 层级树模式。摄取时构建多层树：第 0 层是切块
// 后的叶子，第 1 层按嵌入相似度聚簇并为每簇生成摘要，第 1 层
// 多于一个节点时再生成第 2 层的根摘要。所有节点以带层级/树
// 标签的 KnowledgeItem 落库。查询做两路独立检索（摘要层 +
// 叶子层）后合并排序，让一次查询同时利用粗细两种粒度。
type RaptorPattern struct {
	base
}

// NewRaptorPattern 创建层级树模式
func NewRaptorPattern(deps Deps) *RaptorPattern {
	return &RaptorPattern{base: newBase(deps, types.ModeRaptor)}
}

// Description 返回模式说明
func (p *RaptorPattern) Description() string {
	return "Hierarchical retrieval: clustered summary tree over leaf chunks, dual coarse+fine retrieval at query time"
}

// ====== 摄取 ======

// ProcessDocument 摄取一篇文档并建树
func (p *RaptorPattern) ProcessDocument(ctx context.Context, content, userID string, metadata map[string]any) (*types.IngestSummary, error) {
	start := time.Now()
	docID := newID()
	treeID := newID()

	// 第 0 层：叶子
	summary, leaves := p.ingestChunks(ctx, content, userID, docID, metadata, func(meta map[string]any, _ llm.Chunk) {
		meta[types.MetaTreeID] = treeID
		meta[types.MetaTreeLevel] = 0
	})
	summary.Metadata["tree_id"] = treeID
	levels := 1

	// 第 1 层：聚簇摘要（单叶子不建层）
	var level1 []*types.KnowledgeItem
	if len(leaves) > 1 {
		for _, cluster := range clusterBySimilarity(leaves, raptorClusterThreshold) {
			node := p.storeSummaryNode(ctx, summary, cluster, userID, docID, treeID, 1)
			if node != nil {
				level1 = append(level1, node)
			}
		}
		if len(level1) > 0 {
			levels = 2
		}
	}

	// 第 2 层：根摘要
	if len(level1) > 1 {
		if root := p.storeSummaryNode(ctx, summary, level1, userID, docID, treeID, 2); root != nil {
			levels = 3
		}
	}

	summary.Metadata["levels"] = levels
	summary.Metadata["leaf_count"] = len(leaves)
	summary.Metadata["summary_count"] = len(level1)
	summary.Duration = time.Since(start)

	p.deps.Logger.Info("raptor tree built",
		zap.String("tree_id", treeID),
		zap.Int("levels", levels),
		zap.Int("leaves", len(leaves)),
		zap.Int("clusters", len(level1)))
	return summary, nil
}

// storeSummaryNode 为一簇子节点生成并落库一个摘要节点。
// 子节点的元数据同步记录父链接。失败记入摘要后返回 nil。
func (p *RaptorPattern) storeSummaryNode(ctx context.Context, summary *types.IngestSummary, children []*types.KnowledgeItem, userID, docID, treeID string, level int) *types.KnowledgeItem {
	texts := make([]string, len(children))
	childIDs := make([]string, len(children))
	for i, c := range children {
		texts[i] = c.Content
		childIDs[i] = c.ID
	}

	text := p.summarize(ctx, texts)
	vec, err := p.deps.Client.Embed(ctx, text)
	if err != nil {
		p.deps.Logger.Warn("summary embedding failed",
			zap.String("tree_id", treeID), zap.Int("level", level), zap.Error(err))
		summary.AddError(-1, err)
		return nil
	}

	node := &types.KnowledgeItem{
		ID:        newID(),
		UserID:    userID,
		Content:   text,
		Embedding: vec,
		Metadata: map[string]any{
			types.MetaMode:      string(p.mode),
			types.MetaParentDoc: docID,
			types.MetaTreeID:    treeID,
			types.MetaTreeLevel: level,
			types.MetaChildIDs:  childIDs,
		},
		ParentDoc: docID,
	}
	if err := p.deps.Store.Insert(ctx, node); err != nil {
		p.deps.Logger.Warn("summary node store failed",
			zap.String("tree_id", treeID), zap.Int("level", level), zap.Error(err))
		summary.AddError(-1, err)
		return nil
	}
	summary.Stored++
	p.register(ctx, node)

	for _, c := range children {
		if err := p.deps.Store.UpdateMetadata(ctx, userID, c.ID, map[string]any{
			types.MetaParentNode: node.ID,
		}); err != nil {
			p.deps.Logger.Warn("parent link update failed",
				zap.String("child_id", c.ID), zap.Error(err))
		}
	}
	return node
}

// summarize 生成一段摘要。生成后端不可用时降级为截断拼接，
// 摄取不因摘要失败而中断。
func (p *RaptorPattern) summarize(ctx context.Context, texts []string) string {
	joined := strings.Join(texts, "\n")
	if len(joined) > raptorSummaryInputCap {
		joined = joined[:raptorSummaryInputCap]
	}

	prompt := fmt.Sprintf("Summarize the following passages into one coherent paragraph:\n\n%s", joined)
	out, err := p.deps.Client.Generate(ctx, prompt, llm.GenerateOptions{})
	if err != nil {
		p.deps.Logger.Warn("summary generation failed, falling back to concatenation", zap.Error(err))
		if len(joined) > 500 {
			return joined[:500]
		}
		return joined
	}
	return out
}

// clusterBySimilarity 单链聚类：每个节点加入第一个代表
// （簇首）相似度达标的簇，否则开新簇。
func clusterBySimilarity(items []*types.KnowledgeItem, threshold float64) [][]*types.KnowledgeItem {
	var clusters [][]*types.KnowledgeItem
	for _, item := range items {
		placed := false
		for i, cluster := range clusters {
			if llm.CosineSimilarity(item.Embedding, cluster[0].Embedding) >= threshold {
				clusters[i] = append(cluster, item)
				placed = true
				break
			}
		}
		if !placed {
			clusters = append(clusters, []*types.KnowledgeItem{item})
		}
	}
	return clusters
}

// ====== 查询 ======

// Query 双路检索：摘要层提供粗粒度背景，叶子层提供细节，
// 合并后按相似度重排再生成。
func (p *RaptorPattern) Query(ctx context.Context, query, userID string, qctx map[string]any) *types.RAGResult {
	start := time.Now()

	if p.emptyCorpus(ctx, userID) {
		result := types.EmptyResult(p.mode)
		result.Duration = time.Since(start)
		return result
	}

	summaryNodes, err := p.retrieve(ctx, query, userID, p.topK(), types.MetaTreeLevel, 1)
	if err != nil {
		result := types.FailedResult(p.mode, err)
		result.Duration = time.Since(start)
		return result
	}
	detailNodes, err := p.retrieve(ctx, query, userID, p.topK(), types.MetaTreeLevel, 0)
	if err != nil {
		result := types.FailedResult(p.mode, err)
		result.Duration = time.Since(start)
		return result
	}

	merged := append(append([]store.ScoredItem{}, summaryNodes...), detailNodes...)
	sort.SliceStable(merged, func(i, j int) bool { return merged[i].Score > merged[j].Score })
	if len(merged) > p.topK() {
		merged = merged[:p.topK()]
	}

	// 非 RAPTOR 摄取的用户没有树节点：空结果不是错误
	if len(merged) == 0 {
		return &types.RAGResult{
			Success:  true,
			Sources:  []types.SourceItem{},
			Metadata: map[string]any{"no_matches": true},
			Mode:     p.mode,
			Duration: time.Since(start),
		}
	}

	content, err := p.generate(ctx, query, p.buildContext(merged))
	if err != nil {
		result := types.FailedResult(p.mode, err)
		result.Duration = time.Since(start)
		return result
	}

	return &types.RAGResult{
		Success: true,
		Content: content,
		Sources: sources(merged),
		Metadata: map[string]any{
			"summary_matches": len(summaryNodes),
			"detail_matches":  len(detailNodes),
		},
		Mode:     p.mode,
		Duration: time.Since(start),
	}
}
