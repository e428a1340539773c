package types

import "time"

// SourceItem 是结果中引用的一条知识来源。
type SourceItem struct {
	ID       string         `json:"id,omitempty"`
	Content  string         `json:"content"`
	Score    float64        `json:"score"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// RAGResult 是所有模式统一返回的查询结果信封。
// 这是 engine 合并异构模式输出所依赖的契约：每个模式的 Query
// 都必须返回这个形状，失败路径置 Success=false 并填 Error，
// 绝不向边界外抛 panic。
type RAGResult struct {
	Success  bool           `json:"success"`
	Content  string         `json:"content"`
	Sources  []SourceItem   `json:"sources"`
	Metadata map[string]any `json:"metadata,omitempty"`
	Mode     Mode           `json:"mode"`
	Duration time.Duration  `json:"duration"`
	Error    string         `json:"error,omitempty"`
}

// FailedResult 构造一个失败信封。err 为 nil 时只标记失败。
func FailedResult(mode Mode, err error) *RAGResult {
	r := &RAGResult{
		Success:  false,
		Sources:  []SourceItem{},
		Metadata: map[string]any{},
		Mode:     mode,
	}
	if err != nil {
		r.Error = err.Error()
	}
	return r
}

// EmptyResult 构造一个成功但无来源的信封（空语料不是错误）。
func EmptyResult(mode Mode) *RAGResult {
	return &RAGResult{
		Success:  true,
		Content:  "",
		Sources:  []SourceItem{},
		Metadata: map[string]any{"empty_corpus": true},
		Mode:     mode,
	}
}

// SetMeta 写入结果元数据，nil map 时先初始化。
func (r *RAGResult) SetMeta(key string, value any) {
	if r.Metadata == nil {
		r.Metadata = map[string]any{}
	}
	r.Metadata[key] = value
}

// ChunkError 记录摄取中单个块的失败。
type ChunkError struct {
	Index   int    `json:"index"`
	Message string `json:"message"`
}

// IngestSummary 是 process_document 的摄取摘要。
// 单块失败不终止摄取：剩余块继续处理，失败记入 Errors。
type IngestSummary struct {
	DocumentID string        `json:"document_id"`
	Mode       Mode          `json:"mode"`
	Stored     int           `json:"stored"`
	Failed     int           `json:"failed"`
	Errors     []ChunkError  `json:"errors,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Duration   time.Duration `json:"duration"`
}

// Success 报告摄取是否至少存储了一个块。
func (s *IngestSummary) Success() bool {
	return s.Stored > 0 || (s.Stored == 0 && s.Failed == 0)
}

// AddError 追加一条块级失败并累加计数。
func (s *IngestSummary) AddError(index int, err error) {
	s.Failed++
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	s.Errors = append(s.Errors, ChunkError{Index: index, Message: msg})
}
