package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// CohereRerankConfig Cohere 兼容重排端点配置.
type CohereRerankConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

// CohereReranker 通过 Cohere rerank API 实现重排序.
type CohereReranker struct {
	*BaseProvider
	cfg CohereRerankConfig
}

// NewCohereReranker 创建一个 Cohere 重排提供者.
func NewCohereReranker(cfg CohereRerankConfig) *CohereReranker {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.cohere.com"
	}
	if cfg.Model == "" {
		cfg.Model = "rerank-v3.5"
	}

	return &CohereReranker{
		BaseProvider: NewBaseProvider(BaseConfig{
			Name:    "cohere-rerank",
			BaseURL: cfg.BaseURL,
			APIKey:  cfg.APIKey,
			Model:   cfg.Model,
			Timeout: cfg.Timeout,
		}),
		cfg: cfg,
	}
}

type cohereRerankRequest struct {
	Query     string   `json:"query"`
	Documents []string `json:"documents"`
	Model     string   `json:"model"`
	TopN      int      `json:"top_n,omitempty"`
}

type cohereRerankResponse struct {
	Results []struct {
		Index          int     `json:"index"`
		RelevanceScore float64 `json:"relevance_score"`
	} `json:"results"`
}

// Rerank 按查询相关性重排文档，返回按分数降序的结果.
func (p *CohereReranker) Rerank(ctx context.Context, query string, documents []string, topN int) ([]RerankResult, error) {
	if len(documents) == 0 {
		return []RerankResult{}, nil
	}

	body := cohereRerankRequest{
		Query:     query,
		Documents: documents,
		Model:     p.cfg.Model,
		TopN:      topN,
	}

	respBody, err := p.DoRequest(ctx, "POST", "/v2/rerank", body, map[string]string{
		"Authorization": "Bearer " + p.cfg.APIKey,
	})
	if err != nil {
		return nil, err
	}

	var resp cohereRerankResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse rerank response: %w", err)
	}

	results := make([]RerankResult, 0, len(resp.Results))
	for _, r := range resp.Results {
		if r.Index < 0 || r.Index >= len(documents) {
			continue
		}
		results = append(results, RerankResult{
			Index:          r.Index,
			Document:       documents[r.Index],
			RelevanceScore: r.RelevanceScore,
		})
	}
	return results, nil
}
