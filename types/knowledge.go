package types

import "time"

// 常用元数据键。各模式通过这些键在 KnowledgeItem.Metadata 上
// 打标签，检索时按键过滤（例如 RAPTOR 按树层过滤）。
const (
	MetaMode           = "mode"            // 摄取该条目的模式
	MetaChunkIndex     = "chunk_index"     // 块序号
	MetaParentDoc      = "parent_doc_id"   // 所属文档 id
	MetaTreeID         = "tree_id"         // RAPTOR 树 id
	MetaTreeLevel      = "tree_level"      // RAPTOR 树层（0 = 叶子）
	MetaChildIDs       = "child_ids"       // RAPTOR 子节点 id 列表
	MetaParentNode     = "parent_node_id"  // RAPTOR 父节点 id
	MetaQualityScore   = "quality_score"   // CRAG 预计算质量分
	MetaReflection     = "reflection"      // Self-RAG 反思开关
	MetaReasoningStyle = "reasoning_style" // Plan*RAG 推理结构标签
)

// KnowledgeItem 是一条用户级知识行：一个独立嵌入的文本块。
// 不变式：每行恰好归属一个用户；跨用户访问由 store 层拒绝，
// 而不是由各模式自行检查。
type KnowledgeItem struct {
	ID         string         `json:"id"`
	UserID     string         `json:"user_id"`
	Content    string         `json:"content"`
	Embedding  []float64      `json:"embedding,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	ChunkIndex int            `json:"chunk_index"`
	ParentDoc  string         `json:"parent_doc_id,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

// MetaString 返回字符串元数据值，缺失或类型不符时返回空串。
func (k *KnowledgeItem) MetaString(key string) string {
	if k.Metadata == nil {
		return ""
	}
	if v, ok := k.Metadata[key].(string); ok {
		return v
	}
	return ""
}

// MetaInt 返回整型元数据值。JSON 反序列化会把数字还原成 float64，
// 这里两种表示都接受。
func (k *KnowledgeItem) MetaInt(key string) (int, bool) {
	if k.Metadata == nil {
		return 0, false
	}
	switch v := k.Metadata[key].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	}
	return 0, false
}

// CloneMetadata 返回元数据的浅拷贝，nil 安全。
func (k *KnowledgeItem) CloneMetadata() map[string]any {
	out := make(map[string]any, len(k.Metadata))
	for key, v := range k.Metadata {
		out[key] = v
	}
	return out
}
