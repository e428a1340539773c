package llm

import (
	"fmt"
	"sync"

	"github.com/pkoukk/tiktoken-go"
	"go.uber.org/zap"
)

// Tokenizer 是分块专用的分词接口.
type Tokenizer interface {
	CountTokens(text string) int
	Encode(text string) []int
}

// =============================================================================
// Tiktoken 分词器
// =============================================================================

// modelEncodings 将模型名称映射到其 tiktoken 编码.
var modelEncodings = map[string]string{
	"gpt-4o":                 "o200k_base",
	"gpt-4o-mini":            "o200k_base",
	"gpt-4":                  "cl100k_base",
	"gpt-3.5-turbo":          "cl100k_base",
	"text-embedding-3-large": "cl100k_base",
	"text-embedding-3-small": "cl100k_base",
}

// TiktokenTokenizer 为 OpenAI 家族模型封装 tiktoken。
// 底层编码出错时回退到字符估算并记录警告日志。
type TiktokenTokenizer struct {
	model    string
	encoding string
	enc      *tiktoken.Tiktoken
	once     sync.Once
	initErr  error
	logger   *zap.Logger
}

// NewTiktokenTokenizer 为给定模型创建基于 tiktoken 的分词器.
func NewTiktokenTokenizer(model string, logger *zap.Logger) *TiktokenTokenizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	encoding, ok := modelEncodings[model]
	if !ok {
		// 前缀匹配（如 "gpt-4o" 匹配 "gpt-4o-2026-01"）
		for prefix, e := range modelEncodings {
			if len(model) >= len(prefix) && model[:len(prefix)] == prefix {
				encoding = e
				ok = true
				break
			}
		}
	}
	if !ok {
		encoding = "cl100k_base"
	}
	return &TiktokenTokenizer{model: model, encoding: encoding, logger: logger}
}

// init lazily 初始化 tiktoken 编码（首次使用时可能下载数据）.
func (t *TiktokenTokenizer) init() error {
	t.once.Do(func() {
		enc, err := tiktoken.GetEncoding(t.encoding)
		if err != nil {
			t.initErr = fmt.Errorf("init tiktoken encoding %s: %w", t.encoding, err)
			return
		}
		t.enc = enc
	})
	return t.initErr
}

// CountTokens 返回文本的 token 数，出错时回退到 len(text)/4 估算.
func (t *TiktokenTokenizer) CountTokens(text string) int {
	if err := t.init(); err != nil {
		t.logger.Warn("tiktoken init failed, falling back to estimate", zap.Error(err))
		return len(text) / 4
	}
	return len(t.enc.Encode(text, nil, nil))
}

// Encode 将文本转换为 token ID 列表.
func (t *TiktokenTokenizer) Encode(text string) []int {
	if err := t.init(); err != nil {
		t.logger.Warn("tiktoken init failed, falling back to estimate", zap.Error(err))
		result := make([]int, len(text)/4)
		for i := range result {
			result[i] = i
		}
		return result
	}
	return t.enc.Encode(text, nil, nil)
}

// =============================================================================
// 估算分词器（离线/测试用）
// =============================================================================

// EstimatorTokenizer 用字符数估算 token 数，不依赖外部数据.
type EstimatorTokenizer struct{}

// CountTokens 简化估算：1 token ≈ 4 字符.
func (t *EstimatorTokenizer) CountTokens(text string) int {
	return len(text) / 4
}

// Encode 返回伪 token ID 序列.
func (t *EstimatorTokenizer) Encode(text string) []int {
	tokens := make([]int, len(text)/4)
	for i := range tokens {
		tokens[i] = i
	}
	return tokens
}
