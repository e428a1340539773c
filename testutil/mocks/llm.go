// =============================================================================
// 🎭 LLM Mock 实现
// =============================================================================
// 提供嵌入/生成/重排序提供者的确定性 Mock 和失败注入变体
//
// 使用方法:
//
//	client := llm.NewClient(mocks.NewMockEmbedder(), mocks.NewMockGenerator(), nil, nil, llm.ClientConfig{}, nil)
// =============================================================================
package mocks

import (
	"context"
	"fmt"
	"hash/fnv"
	"strings"
	"sync"

	"github.com/BaSui01/ragflow/llm"
)

// HashVector 生成确定性的词袋向量：词重叠越多的两段文本，
// 余弦相似度越高。测试靠这一点获得稳定的检索排序。
func HashVector(text string, dims int) []float64 {
	vec := make([]float64, dims)
	for _, w := range strings.Fields(strings.ToLower(text)) {
		w = strings.Trim(w, ".,!?;:\"'()")
		if w == "" {
			continue
		}
		h := fnv.New32a()
		h.Write([]byte(w))
		vec[h.Sum32()%uint32(dims)]++
	}
	return vec
}

// MockEmbedder 确定性词袋嵌入器
type MockEmbedder struct {
	mu    sync.Mutex
	dims  int
	calls int

	// FailAfter >= 0 时，第 FailAfter 次调用起全部失败
	FailAfter int
	// EmptyVectors 为 true 时返回空向量（信号性失败）
	EmptyVectors bool
}

// NewMockEmbedder 创建 32 维 Mock 嵌入器
func NewMockEmbedder() *MockEmbedder {
	return &MockEmbedder{dims: 32, FailAfter: -1}
}

// Embed 实现 llm.EmbeddingProvider
func (e *MockEmbedder) Embed(ctx context.Context, inputs []string, model string) ([][]float64, error) {
	e.mu.Lock()
	call := e.calls
	e.calls++
	e.mu.Unlock()

	if e.FailAfter >= 0 && call >= e.FailAfter {
		return nil, fmt.Errorf("mock embedder failure injected")
	}

	out := make([][]float64, len(inputs))
	for i, in := range inputs {
		if e.EmptyVectors {
			out[i] = []float64{}
		} else {
			out[i] = HashVector(in, e.dims)
		}
	}
	return out, nil
}

// Name 实现 llm.EmbeddingProvider
func (e *MockEmbedder) Name() string { return "mock-embedder" }

// Dimensions 实现 llm.EmbeddingProvider
func (e *MockEmbedder) Dimensions() int { return e.dims }

// Calls 返回累计调用次数
func (e *MockEmbedder) Calls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

// MockGenerator 模板回显生成器：把提示词压缩进固定前缀，
// 测试可以断言生成内容确实来自给定上下文。
type MockGenerator struct {
	mu    sync.Mutex
	calls int

	// Fail 为 true 时每次调用都失败
	Fail bool
	// Response 非空时固定返回该内容
	Response string
}

// NewMockGenerator 创建回显生成器
func NewMockGenerator() *MockGenerator { return &MockGenerator{} }

// Generate 实现 llm.GenerationProvider
func (g *MockGenerator) Generate(ctx context.Context, prompt string, opts llm.GenerateOptions) (string, error) {
	g.mu.Lock()
	g.calls++
	g.mu.Unlock()

	if g.Fail {
		return "", fmt.Errorf("mock generator failure injected")
	}
	if g.Response != "" {
		return g.Response, nil
	}
	return "answer based on: " + prompt, nil
}

// Name 实现 llm.GenerationProvider
func (g *MockGenerator) Name() string { return "mock-generator" }

// Calls 返回累计调用次数
func (g *MockGenerator) Calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

// MockReranker 按文档与查询的词重叠数重排
type MockReranker struct {
	Fail bool
}

// Rerank 实现 llm.RerankProvider
func (r *MockReranker) Rerank(ctx context.Context, query string, documents []string, topN int) ([]llm.RerankResult, error) {
	if r.Fail {
		return nil, fmt.Errorf("mock reranker failure injected")
	}
	terms := strings.Fields(strings.ToLower(query))
	out := make([]llm.RerankResult, 0, len(documents))
	for i, doc := range documents {
		lower := strings.ToLower(doc)
		overlap := 0
		for _, t := range terms {
			if strings.Contains(lower, t) {
				overlap++
			}
		}
		score := 0.0
		if len(terms) > 0 {
			score = float64(overlap) / float64(len(terms))
		}
		out = append(out, llm.RerankResult{Index: i, Document: doc, RelevanceScore: score})
	}
	// 按分数降序，稳定排序保持输入顺序可预测
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].RelevanceScore > out[j-1].RelevanceScore; j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	if topN > 0 && len(out) > topN {
		out = out[:topN]
	}
	return out, nil
}

// Name 实现 llm.RerankProvider
func (r *MockReranker) Name() string { return "mock-reranker" }

// NewMockClient 组装一个全 Mock 的 llm.Client，模式与引擎测试的默认入口。
func NewMockClient() *llm.Client {
	return llm.NewClient(NewMockEmbedder(), NewMockGenerator(), nil, nil, llm.ClientConfig{}, nil)
}
