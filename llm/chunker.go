package llm

import (
	"strings"

	"go.uber.org/zap"
)

// ChunkStrategy 分块策略
type ChunkStrategy string

const (
	ChunkFixed     ChunkStrategy = "fixed"     // 固定大小
	ChunkRecursive ChunkStrategy = "recursive" // 递归分块
)

// ChunkerConfig 分块配置
type ChunkerConfig struct {
	Strategy     ChunkStrategy `json:"strategy"`       // 分块策略
	ChunkSize    int           `json:"chunk_size"`     // 块大小（tokens）
	ChunkOverlap int           `json:"chunk_overlap"`  // 重叠大小（tokens）
	MinChunkSize int           `json:"min_chunk_size"` // 最小块大小
}

// DefaultChunkerConfig 默认分块配置
func DefaultChunkerConfig() ChunkerConfig {
	return ChunkerConfig{
		Strategy:     ChunkRecursive,
		ChunkSize:    512, // 400-800 tokens 最佳
		ChunkOverlap: 102, // 20% overlap
		MinChunkSize: 10,
	}
}

// Chunker 文档分块器
type Chunker struct {
	config    ChunkerConfig
	tokenizer Tokenizer
	logger    *zap.Logger
}

// NewChunker 创建文档分块器
func NewChunker(config ChunkerConfig, tokenizer Tokenizer, logger *zap.Logger) *Chunker {
	if tokenizer == nil {
		tokenizer = &EstimatorTokenizer{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.ChunkSize <= 0 {
		config.ChunkSize = 512
	}
	return &Chunker{config: config, tokenizer: tokenizer, logger: logger}
}

// Chunk 把文本切成有序块。metadata 被浅拷贝进每个块。
// 空白文本返回空切片。
func (c *Chunker) Chunk(text string, metadata map[string]any) []Chunk {
	text = strings.TrimSpace(text)
	if text == "" {
		return []Chunk{}
	}

	var parts []string
	switch c.config.Strategy {
	case ChunkFixed:
		parts = c.fixedSplit(text)
	default:
		parts = c.recursiveSplit(text, separators)
	}

	if c.config.ChunkOverlap > 0 && len(parts) > 1 {
		parts = c.addOverlap(parts)
	}

	chunks := make([]Chunk, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		meta := make(map[string]any, len(metadata))
		for k, v := range metadata {
			meta[k] = v
		}
		chunks = append(chunks, Chunk{
			Text:       p,
			Index:      len(chunks),
			TokenCount: c.tokenizer.CountTokens(p),
			Metadata:   meta,
		})
	}

	c.logger.Debug("chunking completed",
		zap.Int("chunks", len(chunks)),
		zap.Int("chunk_size", c.config.ChunkSize),
		zap.Int("overlap", c.config.ChunkOverlap))

	return chunks
}

// 分隔符优先级：段落 > 行 > 句子 > 单词
var separators = []string{"\n\n", "\n", ". ", "。", "! ", "！", "? ", "？", " "}

// recursiveSplit 递归分割：在语义边界上拼接片段直到块满.
func (c *Chunker) recursiveSplit(text string, seps []string) []string {
	if c.tokenizer.CountTokens(text) <= c.config.ChunkSize {
		return []string{text}
	}
	if len(seps) == 0 {
		// 最后一级：按字符分割
		return c.fixedSplit(text)
	}

	sep := seps[0]
	parts := strings.Split(text, sep)
	if len(parts) == 1 {
		return c.recursiveSplit(text, seps[1:])
	}

	var out []string
	current := ""
	for i, part := range parts {
		// 恢复分隔符（除了最后一个）
		if i < len(parts)-1 {
			part += sep
		}

		if c.tokenizer.CountTokens(part) > c.config.ChunkSize {
			if current != "" {
				out = append(out, current)
				current = ""
			}
			out = append(out, c.recursiveSplit(part, seps[1:])...)
			continue
		}

		test := current + part
		if c.tokenizer.CountTokens(test) <= c.config.ChunkSize {
			current = test
		} else {
			if current != "" {
				out = append(out, current)
			}
			current = part
		}
	}
	if strings.TrimSpace(current) != "" {
		out = append(out, current)
	}
	return out
}

// fixedSplit 固定大小分割（最后手段）.
func (c *Chunker) fixedSplit(text string) []string {
	runes := []rune(text)

	// 估算每个 token 约 4 个字符
	charsPerChunk := c.config.ChunkSize * 4
	if charsPerChunk <= 0 {
		charsPerChunk = len(runes)
	}

	var out []string
	for i := 0; i < len(runes); i += charsPerChunk {
		end := i + charsPerChunk
		if end > len(runes) {
			end = len(runes)
		}
		out = append(out, string(runes[i:end]))
	}
	return out
}

// addOverlap 把前一块的尾部接到每个块的开头.
func (c *Chunker) addOverlap(parts []string) []string {
	overlapChars := c.config.ChunkOverlap * 4 // 估算字符数

	out := make([]string, len(parts))
	out[0] = parts[0]
	for i := 1; i < len(parts); i++ {
		prev := []rune(parts[i-1])
		start := len(prev) - overlapChars
		if start < 0 {
			start = 0
		}
		out[i] = string(prev[start:]) + parts[i]
	}
	return out
}
