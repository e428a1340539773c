package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/BaSui01/ragflow/types"
)

// OpenAIConfig OpenAI 兼容端点配置.
type OpenAIConfig struct {
	APIKey     string
	BaseURL    string
	Model      string // 生成模型
	EmbedModel string // 嵌入模型
	Dimensions int
	Timeout    time.Duration
}

// OpenAIProvider 通过 OpenAI 兼容 API 实现嵌入与生成.
type OpenAIProvider struct {
	*BaseProvider
	cfg OpenAIConfig
}

// NewOpenAIProvider 创建一个 OpenAI 提供者.
func NewOpenAIProvider(cfg OpenAIConfig) *OpenAIProvider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com"
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	if cfg.EmbedModel == "" {
		cfg.EmbedModel = "text-embedding-3-large"
	}
	if cfg.Dimensions == 0 {
		cfg.Dimensions = 3072
	}

	return &OpenAIProvider{
		BaseProvider: NewBaseProvider(BaseConfig{
			Name:       "openai",
			BaseURL:    cfg.BaseURL,
			APIKey:     cfg.APIKey,
			Model:      cfg.Model,
			Dimensions: cfg.Dimensions,
			MaxBatch:   2048,
			Timeout:    cfg.Timeout,
		}),
		cfg: cfg,
	}
}

type openAIEmbedRequest struct {
	Input []string `json:"input"`
	Model string   `json:"model"`
}

type openAIEmbedResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float64 `json:"embedding"`
	} `json:"data"`
	Model string `json:"model"`
}

// Embed 为每个输入生成嵌入向量.
func (p *OpenAIProvider) Embed(ctx context.Context, inputs []string, model string) ([][]float64, error) {
	if len(inputs) == 0 {
		return nil, types.NewError(types.ErrInvalidRequest, "no inputs to embed")
	}

	body := openAIEmbedRequest{
		Input: inputs,
		Model: ChooseModel(model, p.cfg.EmbedModel, "text-embedding-3-large"),
	}

	respBody, err := p.DoRequest(ctx, "POST", "/v1/embeddings", body, map[string]string{
		"Authorization": "Bearer " + p.cfg.APIKey,
	})
	if err != nil {
		return nil, err
	}

	var resp openAIEmbedResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse embed response: %w", err)
	}
	if len(resp.Data) != len(inputs) {
		return nil, types.NewError(types.ErrEmbeddingFailed,
			fmt.Sprintf("expected %d embeddings, got %d", len(inputs), len(resp.Data)))
	}

	// 按 index 还原顺序，响应顺序不保证与输入一致
	result := make([][]float64, len(inputs))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(result) {
			return nil, types.NewError(types.ErrEmbeddingFailed,
				fmt.Sprintf("embedding index %d out of range", d.Index))
		}
		result[d.Index] = d.Embedding
	}
	return result, nil
}

type openAIChatRequest struct {
	Model       string              `json:"model"`
	Messages    []openAIChatMessage `json:"messages"`
	MaxTokens   int                 `json:"max_tokens,omitempty"`
	Temperature float64             `json:"temperature,omitempty"`
}

type openAIChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIChatResponse struct {
	Choices []struct {
		Message openAIChatMessage `json:"message"`
	} `json:"choices"`
}

// Generate 根据提示词产生补全.
func (p *OpenAIProvider) Generate(ctx context.Context, prompt string, opts GenerateOptions) (string, error) {
	messages := []openAIChatMessage{}
	if opts.System != "" {
		messages = append(messages, openAIChatMessage{Role: "system", Content: opts.System})
	}
	messages = append(messages, openAIChatMessage{Role: "user", Content: prompt})

	body := openAIChatRequest{
		Model:       ChooseModel(opts.Model, p.cfg.Model, "gpt-4o-mini"),
		Messages:    messages,
		MaxTokens:   opts.MaxTokens,
		Temperature: opts.Temperature,
	}

	respBody, err := p.DoRequest(ctx, "POST", "/v1/chat/completions", body, map[string]string{
		"Authorization": "Bearer " + p.cfg.APIKey,
	})
	if err != nil {
		return "", err
	}

	var resp openAIChatResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return "", fmt.Errorf("failed to parse chat response: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", types.NewError(types.ErrGenerationFailed, "no choices returned")
	}
	return resp.Choices[0].Message.Content, nil
}
