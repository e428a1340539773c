package llm

import (
	"context"
	"sort"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/BaSui01/ragflow/types"
)

// ClientConfig Client 门面配置.
type ClientConfig struct {
	// 嵌入模型标识（传给 EmbeddingProvider）
	EmbedModel string
	// 每秒请求数上限（0 = 不限流）
	RateLimit float64
	// 突发请求数
	RateBurst int
}

// Client 是检索模式访问嵌入/生成后端的统一门面。
// 所有调用都经过可选的客户端限流；空向量一律转成
// EMBEDDING_FAILED，不会作为合法结果返回。
type Client struct {
	embedder  EmbeddingProvider
	generator GenerationProvider
	reranker  RerankProvider
	chunker   *Chunker
	limiter   *rate.Limiter
	cfg       ClientConfig
	logger    *zap.Logger
}

// NewClient 创建客户端门面。reranker 可以为 nil（回退到相似度排序）。
func NewClient(embedder EmbeddingProvider, generator GenerationProvider, reranker RerankProvider, chunker *Chunker, cfg ClientConfig, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if chunker == nil {
		chunker = NewChunker(DefaultChunkerConfig(), nil, logger)
	}

	var limiter *rate.Limiter
	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}

	return &Client{
		embedder:  embedder,
		generator: generator,
		reranker:  reranker,
		chunker:   chunker,
		limiter:   limiter,
		cfg:       cfg,
		logger:    logger,
	}
}

func (c *Client) wait(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	return c.limiter.Wait(ctx)
}

// Embed 嵌入单个文本.
func (c *Client) Embed(ctx context.Context, text string) ([]float64, error) {
	vectors, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch 批量嵌入。任何一个输出为空向量都视为整体失败.
func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float64, error) {
	if len(texts) == 0 {
		return [][]float64{}, nil
	}
	if c.embedder == nil {
		return nil, types.NewError(types.ErrEmbeddingFailed, "no embedding provider configured")
	}
	if err := c.wait(ctx); err != nil {
		return nil, err
	}

	vectors, err := c.embedder.Embed(ctx, texts, c.cfg.EmbedModel)
	if err != nil {
		return nil, types.NewError(types.ErrEmbeddingFailed, "embed call failed").WithCause(err)
	}
	if len(vectors) != len(texts) {
		return nil, types.NewError(types.ErrEmbeddingFailed, "embedding count mismatch")
	}
	for i, v := range vectors {
		// 空向量是信号性失败，不是合法的零长结果
		if len(v) == 0 {
			return nil, types.NewError(types.ErrEmbeddingFailed, "empty embedding returned").
				WithCause(types.NewError(types.ErrInvalidRequest, texts[i][:min(len(texts[i]), 40)]))
		}
	}
	return vectors, nil
}

// Chunk 把文本切成有序块.
func (c *Client) Chunk(text string, metadata map[string]any) []Chunk {
	return c.chunker.Chunk(text, metadata)
}

// Search 在候选文本上做相似度检索，返回按分数降序的前 topK 条.
func (c *Client) Search(ctx context.Context, query string, candidates []string, topK int) ([]ScoredText, error) {
	if len(candidates) == 0 {
		return []ScoredText{}, nil
	}

	inputs := append([]string{query}, candidates...)
	vectors, err := c.EmbedBatch(ctx, inputs)
	if err != nil {
		return nil, err
	}

	queryVec := vectors[0]
	results := make([]ScoredText, 0, len(candidates))
	for i, candVec := range vectors[1:] {
		results = append(results, ScoredText{
			Text:  candidates[i],
			Index: i,
			Score: CosineSimilarity(queryVec, candVec),
		})
	}

	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if topK > 0 && len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

// Rerank 重排文档。未配置 RerankProvider 时回退到嵌入相似度排序.
func (c *Client) Rerank(ctx context.Context, query string, documents []string, topN int) ([]RerankResult, error) {
	if len(documents) == 0 {
		return []RerankResult{}, nil
	}

	if c.reranker == nil {
		scored, err := c.Search(ctx, query, documents, topN)
		if err != nil {
			return nil, types.NewError(types.ErrRerankFailed, "similarity fallback failed").WithCause(err)
		}
		results := make([]RerankResult, len(scored))
		for i, s := range scored {
			results[i] = RerankResult{Index: s.Index, Document: s.Text, RelevanceScore: s.Score}
		}
		return results, nil
	}

	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	results, err := c.reranker.Rerank(ctx, query, documents, topN)
	if err != nil {
		return nil, types.NewError(types.ErrRerankFailed, "rerank call failed").WithCause(err)
	}
	return results, nil
}

// Generate 生成自然语言补全.
func (c *Client) Generate(ctx context.Context, prompt string, opts GenerateOptions) (string, error) {
	if c.generator == nil {
		return "", types.NewError(types.ErrGenerationFailed, "no generation provider configured")
	}
	if err := c.wait(ctx); err != nil {
		return "", err
	}
	out, err := c.generator.Generate(ctx, prompt, opts)
	if err != nil {
		return "", types.NewError(types.ErrGenerationFailed, "generate call failed").WithCause(err)
	}
	return out, nil
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
