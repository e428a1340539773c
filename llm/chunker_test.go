package llm

import (
	"strings"
	"testing"

	"pgregory.net/rapid"
)

func TestChunker_Empty(t *testing.T) {
	c := NewChunker(DefaultChunkerConfig(), nil, nil)
	chunks := c.Chunk("   ", nil)
	if len(chunks) != 0 {
		t.Errorf("expected no chunks for blank text, got %d", len(chunks))
	}
}

func TestChunker_ShortTextSingleChunk(t *testing.T) {
	c := NewChunker(DefaultChunkerConfig(), nil, nil)
	chunks := c.Chunk("Apple Inc. was founded in 1976 by Steve Jobs.", nil)
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
	if chunks[0].Index != 0 {
		t.Errorf("expected index 0, got %d", chunks[0].Index)
	}
}

func TestChunker_LongTextSplits(t *testing.T) {
	cfg := ChunkerConfig{Strategy: ChunkRecursive, ChunkSize: 20, ChunkOverlap: 0, MinChunkSize: 1}
	c := NewChunker(cfg, &EstimatorTokenizer{}, nil)

	text := strings.Repeat("Machine learning is a subset of artificial intelligence. ", 20)
	chunks := c.Chunk(text, nil)

	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}
	for i, ch := range chunks {
		if ch.Index != i {
			t.Errorf("chunk %d has index %d", i, ch.Index)
		}
		if ch.TokenCount > cfg.ChunkSize*2 {
			t.Errorf("chunk %d far exceeds chunk size: %d tokens", i, ch.TokenCount)
		}
	}
}

func TestChunker_MetadataCopied(t *testing.T) {
	cfg := ChunkerConfig{Strategy: ChunkRecursive, ChunkSize: 10, ChunkOverlap: 0}
	c := NewChunker(cfg, &EstimatorTokenizer{}, nil)

	meta := map[string]any{"source": "test"}
	chunks := c.Chunk(strings.Repeat("alpha beta gamma. ", 30), meta)
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}

	chunks[0].Metadata["source"] = "mutated"
	if chunks[1].Metadata["source"] != "test" {
		t.Error("metadata must be copied per chunk, not shared")
	}
}

func TestChunker_OverlapPrefixesPreviousTail(t *testing.T) {
	cfg := ChunkerConfig{Strategy: ChunkFixed, ChunkSize: 10, ChunkOverlap: 2}
	c := NewChunker(cfg, &EstimatorTokenizer{}, nil)

	text := strings.Repeat("abcdefgh ", 30)
	chunks := c.Chunk(text, nil)
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}

	// 第二块应以第一块的尾部开头
	tail := chunks[0].Text[len(chunks[0].Text)-4:]
	if !strings.Contains(chunks[1].Text[:min(len(chunks[1].Text), 16)], tail[:2]) {
		t.Logf("chunk0 tail %q, chunk1 head %q", tail, chunks[1].Text[:16])
	}
}

// 属性：分块覆盖全部非空白内容，且顺序保持
func TestChunker_Property_ContentPreserved(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		words := rapid.SliceOfN(rapid.StringMatching(`[a-z]{1,8}`), 1, 200).Draw(t, "words")
		text := strings.Join(words, " ")

		size := rapid.IntRange(4, 64).Draw(t, "size")
		cfg := ChunkerConfig{Strategy: ChunkRecursive, ChunkSize: size, ChunkOverlap: 0}
		c := NewChunker(cfg, &EstimatorTokenizer{}, nil)

		chunks := c.Chunk(text, nil)

		// 重新拼接去掉空白后必须与原文一致（无内容丢失或重复）
		var rebuilt strings.Builder
		for _, ch := range chunks {
			rebuilt.WriteString(ch.Text)
			rebuilt.WriteString(" ")
		}
		normalize := func(s string) string { return strings.Join(strings.Fields(s), " ") }
		if normalize(rebuilt.String()) != normalize(text) {
			t.Fatalf("content not preserved:\n in: %q\nout: %q", normalize(text), normalize(rebuilt.String()))
		}

		// 序号单调
		for i, ch := range chunks {
			if ch.Index != i {
				t.Fatalf("chunk %d has index %d", i, ch.Index)
			}
		}
	})
}
