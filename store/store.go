package store

import (
	"context"

	"github.com/BaSui01/ragflow/types"
)

// KnowledgeStore 是行式知识存储的统一接口。
// 所有操作都按 userID 作用域隔离；跨用户访问返回 CROSS_USER_ACCESS。
type KnowledgeStore interface {
	// Insert 插入新行，id 冲突报错
	Insert(ctx context.Context, item *types.KnowledgeItem) error

	// Upsert 按 id 插入或整行替换
	Upsert(ctx context.Context, item *types.KnowledgeItem) error

	// Get 按 id 读取本用户的行
	Get(ctx context.Context, userID, id string) (*types.KnowledgeItem, error)

	// ListByUser 列出本用户全部行
	ListByUser(ctx context.Context, userID string) ([]*types.KnowledgeItem, error)

	// ListByMetadata 列出本用户 metadata[key] == value 的行
	ListByMetadata(ctx context.Context, userID, key string, value any) ([]*types.KnowledgeItem, error)

	// UpdateMetadata 合并写入元数据（只覆盖给定键）
	UpdateMetadata(ctx context.Context, userID, id string, metadata map[string]any) error

	// Delete 删除本用户的行，跨用户删除被拒绝
	Delete(ctx context.Context, userID, id string) error

	// CountByUser 返回本用户的行数
	CountByUser(ctx context.Context, userID string) (int64, error)
}

// ScoredItem 向量检索的一条打分结果.
type ScoredItem struct {
	Item  *types.KnowledgeItem `json:"item"`
	Score float64              `json:"score"`
}

// VectorSearcher 是支持向量相似度检索的可选能力接口。
// 用类型断言探测支持：
//
//	if s, ok := store.(VectorSearcher); ok { s.SearchByVector(ctx, uid, vec, 5, 0.3) }
type VectorSearcher interface {
	SearchByVector(ctx context.Context, userID string, query []float64, topK int, minSim float64) ([]ScoredItem, error)
}

// Clearable 是支持清空全部数据的可选能力接口（测试用）.
type Clearable interface {
	ClearAll(ctx context.Context) error
}

// metaMatches 比较元数据值。数字统一按 float64 比较，
// 兼容 JSON 反序列化后的形态。
func metaMatches(item *types.KnowledgeItem, key string, value any) bool {
	if item.Metadata == nil {
		return false
	}
	got, ok := item.Metadata[key]
	if !ok {
		return false
	}
	if fa, aok := toFloat(got); aok {
		if fb, bok := toFloat(value); bok {
			return fa == fb
		}
		return false
	}
	return got == value
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}
