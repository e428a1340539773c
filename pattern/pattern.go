package pattern

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/BaSui01/ragflow/config"
	"github.com/BaSui01/ragflow/llm"
	"github.com/BaSui01/ragflow/store"
	"github.com/BaSui01/ragflow/types"
)

// Pattern 是所有检索模式的统一契约。engine 只依赖这个接口，
// 通过构造时建好的注册表做多态分发。
type Pattern interface {
	// Mode 返回模式标识
	Mode() types.Mode

	// Description 返回人类可读的模式说明
	Description() string

	// ProcessDocument 切块、嵌入并入库一篇文档。
	// 单块失败不终止摄取：剩余块继续处理，失败记入摘要。
	ProcessDocument(ctx context.Context, content, userID string, metadata map[string]any) (*types.IngestSummary, error)

	// Query 为该用户检索并生成答案。失败路径返回
	// Success=false 的结果，绝不返回 error 或 panic。
	Query(ctx context.Context, query, userID string, qctx map[string]any) *types.RAGResult
}

// Deps 各模式共享的依赖集合
type Deps struct {
	Store     store.KnowledgeStore
	Client    *llm.Client
	Registrar store.Registrar
	Config    config.EngineConfig
	Logger    *zap.Logger
}

// base 各模式共享的基础能力：摄取循环、相似度检索、上下文拼装。
type base struct {
	deps Deps
	mode types.Mode
}

func newBase(deps Deps, mode types.Mode) base {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return base{deps: deps, mode: mode}
}

func (b *base) Mode() types.Mode { return b.mode }

func (b *base) topK() int {
	if b.deps.Config.TopK > 0 {
		return b.deps.Config.TopK
	}
	return 5
}

func newID() string { return uuid.NewString() }

// ====== 摄取 ======

// tagFunc 让各模式在公共元数据之上补充策略专属标签。
type tagFunc func(meta map[string]any, chunk llm.Chunk)

// ingestChunks 公共摄取循环：切块 → 逐块嵌入 → 入库 → 注册。
// 逐块嵌入而不是批量，单块的嵌入失败只影响它自己。
// 注册失败只记日志，不影响存储结果。返回摘要和已入库的条目
// （RAPTOR 等模式在其上继续建层级结构）。
func (b *base) ingestChunks(ctx context.Context, content, userID, docID string, metadata map[string]any, tag tagFunc) (*types.IngestSummary, []*types.KnowledgeItem) {
	summary := &types.IngestSummary{
		DocumentID: docID,
		Mode:       b.mode,
		Metadata:   map[string]any{},
	}
	var stored []*types.KnowledgeItem

	chunks := b.deps.Client.Chunk(content, metadata)
	summary.Metadata["chunk_count"] = len(chunks)

	for _, chunk := range chunks {
		vec, err := b.deps.Client.Embed(ctx, chunk.Text)
		if err != nil {
			b.deps.Logger.Warn("chunk embedding failed",
				zap.String("mode", string(b.mode)),
				zap.Int("chunk_index", chunk.Index),
				zap.Error(err))
			summary.AddError(chunk.Index, err)
			continue
		}

		meta := map[string]any{
			types.MetaMode:       string(b.mode),
			types.MetaChunkIndex: chunk.Index,
			types.MetaParentDoc:  docID,
		}
		for k, v := range metadata {
			meta[k] = v
		}
		if tag != nil {
			tag(meta, chunk)
		}

		item := &types.KnowledgeItem{
			ID:         newID(),
			UserID:     userID,
			Content:    chunk.Text,
			Embedding:  vec,
			Metadata:   meta,
			ChunkIndex: chunk.Index,
			ParentDoc:  docID,
		}
		if err := b.deps.Store.Insert(ctx, item); err != nil {
			b.deps.Logger.Warn("chunk store failed",
				zap.String("mode", string(b.mode)),
				zap.Int("chunk_index", chunk.Index),
				zap.Error(err))
			summary.AddError(chunk.Index, err)
			continue
		}
		summary.Stored++
		stored = append(stored, item)
		b.register(ctx, item)
	}
	return summary, stored
}

// register 把条目暴露给注册器，失败只记日志。
func (b *base) register(ctx context.Context, item *types.KnowledgeItem) {
	if b.deps.Registrar == nil {
		return
	}
	if _, err := b.deps.Registrar.Register(ctx, item.ID, item.UserID, item.Metadata); err != nil {
		b.deps.Logger.Warn("knowledge registration failed",
			zap.String("id", item.ID),
			zap.Error(err))
	}
}

// unregister 撤销注册，失败只记日志。
func (b *base) unregister(ctx context.Context, id, userID string) {
	if b.deps.Registrar == nil {
		return
	}
	if err := b.deps.Registrar.Unregister(ctx, id, userID); err != nil {
		b.deps.Logger.Warn("knowledge unregistration failed",
			zap.String("id", id),
			zap.Error(err))
	}
}

// ====== 检索 ======

// retrieve 对该用户的知识行做相似度检索。filterKey 非空时先按
// 元数据过滤再打分。行上已有嵌入向量的直接算余弦，没有的跳过
// （和 memory store 的 SearchByVector 行为一致）。
func (b *base) retrieve(ctx context.Context, query, userID string, topK int, filterKey string, filterVal any) ([]store.ScoredItem, error) {
	var (
		items []*types.KnowledgeItem
		err   error
	)
	if filterKey != "" {
		items, err = b.deps.Store.ListByMetadata(ctx, userID, filterKey, filterVal)
	} else {
		items, err = b.deps.Store.ListByUser(ctx, userID)
	}
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return []store.ScoredItem{}, nil
	}

	qvec, err := b.deps.Client.Embed(ctx, query)
	if err != nil {
		return nil, err
	}

	minSim := b.deps.Config.SimilarityThreshold
	scored := make([]store.ScoredItem, 0, len(items))
	for _, item := range items {
		if len(item.Embedding) == 0 {
			continue
		}
		score := llm.CosineSimilarity(qvec, item.Embedding)
		if score < minSim {
			continue
		}
		scored = append(scored, store.ScoredItem{Item: item, Score: score})
	}

	sort.SliceStable(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })
	if topK > 0 && len(scored) > topK {
		scored = scored[:topK]
	}
	return scored, nil
}

// rerankScored 启用重排序时用 RerankProvider 重排候选，
// 失败时降级保留原始顺序。
func (b *base) rerankScored(ctx context.Context, query string, scored []store.ScoredItem) []store.ScoredItem {
	if !b.deps.Config.RerankEnabled || len(scored) < 2 {
		return scored
	}
	docs := make([]string, len(scored))
	for i, s := range scored {
		docs[i] = s.Item.Content
	}
	results, err := b.deps.Client.Rerank(ctx, query, docs, len(docs))
	if err != nil {
		b.deps.Logger.Warn("rerank failed, keeping similarity order", zap.Error(err))
		return scored
	}
	out := make([]store.ScoredItem, 0, len(results))
	for _, r := range results {
		if r.Index < 0 || r.Index >= len(scored) {
			continue
		}
		out = append(out, store.ScoredItem{Item: scored[r.Index].Item, Score: r.RelevanceScore})
	}
	if len(out) == 0 {
		return scored
	}
	return out
}

// ====== 结果组装 ======

// sources 把打分条目转成结果来源列表。
func sources(scored []store.ScoredItem) []types.SourceItem {
	out := make([]types.SourceItem, 0, len(scored))
	for _, s := range scored {
		out = append(out, types.SourceItem{
			ID:       s.Item.ID,
			Content:  s.Item.Content,
			Score:    s.Score,
			Metadata: s.Item.Metadata,
		})
	}
	return out
}

// buildContext 把候选文本拼成上下文块，总长受 MaxContextLength 约束。
func (b *base) buildContext(scored []store.ScoredItem) string {
	maxLen := b.deps.Config.MaxContextLength
	if maxLen <= 0 {
		maxLen = 4000
	}

	var sb strings.Builder
	for i, s := range scored {
		block := fmt.Sprintf("[%d] %s", i+1, s.Item.Content)
		sep := 0
		if sb.Len() > 0 {
			sep = 2
		}
		if sb.Len()+sep+len(block) > maxLen {
			// 超长首块截断到 maxLen 内的 rune 边界，不切开多字节字符
			if sb.Len() == 0 {
				end := maxLen
				for end > 0 && !utf8.RuneStart(block[end]) {
					end--
				}
				sb.WriteString(block[:end])
			}
			break
		}
		if sep > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString(block)
	}
	return sb.String()
}

// generate 基于上下文生成答案。
func (b *base) generate(ctx context.Context, query, contextBlock string) (string, error) {
	prompt := fmt.Sprintf(
		"Answer the question using only the context below. If the context is insufficient, say so.\n\nContext:\n%s\n\nQuestion: %s",
		contextBlock, query)
	return b.deps.Client.Generate(ctx, prompt, llm.GenerateOptions{})
}

// emptyCorpus 判断该用户是否还没有任何知识行。
func (b *base) emptyCorpus(ctx context.Context, userID string) bool {
	count, err := b.deps.Store.CountByUser(ctx, userID)
	return err == nil && count == 0
}

// queryTerms 提取查询关键词（≥3 字符，小写）。
func queryTerms(query string) []string {
	fields := strings.Fields(strings.ToLower(query))
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.Trim(f, ".,!?;:\"'()")
		if len(f) >= 3 {
			out = append(out, f)
		}
	}
	return out
}

// termOverlap 统计 terms 中出现在 text（小写后）里的个数。
func termOverlap(terms []string, text string) int {
	lower := strings.ToLower(text)
	n := 0
	for _, t := range terms {
		if strings.Contains(lower, t) {
			n++
		}
	}
	return n
}
