package llm

import "context"

// EmbeddingProvider 生成文本嵌入.
type EmbeddingProvider interface {
	// Embed 为每个输入生成一个向量，顺序与输入一致.
	Embed(ctx context.Context, inputs []string, model string) ([][]float64, error)

	// Name 返回提供者名称.
	Name() string

	// Dimensions 返回输出向量维度.
	Dimensions() int
}

// GenerationProvider 生成自然语言补全.
type GenerationProvider interface {
	// Generate 根据提示词产生补全文本.
	Generate(ctx context.Context, prompt string, opts GenerateOptions) (string, error)

	// Name 返回提供者名称.
	Name() string
}

// GenerateOptions 生成参数.
type GenerateOptions struct {
	Model       string  `json:"model,omitempty"`
	MaxTokens   int     `json:"max_tokens,omitempty"`
	Temperature float64 `json:"temperature,omitempty"`
	System      string  `json:"system,omitempty"`
}

// RerankProvider 按查询相关性重排文档.
type RerankProvider interface {
	// Rerank 返回按相关性降序的结果，Index 指向输入文档.
	Rerank(ctx context.Context, query string, documents []string, topN int) ([]RerankResult, error)

	// Name 返回提供者名称.
	Name() string
}

// RerankResult 单条重排结果.
type RerankResult struct {
	Index          int     `json:"index"`           // Original index in input
	Document       string  `json:"document"`
	RelevanceScore float64 `json:"relevance_score"` // 0-1 normalized score
}

// ScoredText 是 Search 的一条打分候选.
type ScoredText struct {
	Text  string  `json:"text"`
	Index int     `json:"index"`
	Score float64 `json:"score"`
}

// Chunk 是一个有序文本块.
type Chunk struct {
	Text       string         `json:"text"`
	Index      int            `json:"index"`
	TokenCount int            `json:"token_count"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}
