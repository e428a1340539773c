package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/ragflow/llm"
	"github.com/BaSui01/ragflow/types"
)

// MemoryStore 内存知识存储（用于测试和小规模应用）
type MemoryStore struct {
	items  map[string]map[string]*types.KnowledgeItem // userID → id → item
	owners map[string]string                          // id → userID，用于跨用户检测
	mu     sync.RWMutex
	logger *zap.Logger
}

// NewMemoryStore 创建内存知识存储
func NewMemoryStore(logger *zap.Logger) *MemoryStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MemoryStore{
		items:  make(map[string]map[string]*types.KnowledgeItem),
		owners: make(map[string]string),
		logger: logger,
	}
}

func cloneItem(item *types.KnowledgeItem) *types.KnowledgeItem {
	out := *item
	out.Metadata = item.CloneMetadata()
	if item.Embedding != nil {
		out.Embedding = append([]float64(nil), item.Embedding...)
	}
	return &out
}

func (s *MemoryStore) checkOwner(id, userID string) error {
	owner, ok := s.owners[id]
	if !ok {
		return types.NewError(types.ErrNotFound, fmt.Sprintf("knowledge item %s not found", id))
	}
	if owner != userID {
		return types.NewError(types.ErrCrossUserAccess,
			fmt.Sprintf("knowledge item %s is not owned by user %s", id, userID))
	}
	return nil
}

// Insert 插入新行，id 冲突报错
func (s *MemoryStore) Insert(ctx context.Context, item *types.KnowledgeItem) error {
	if item.ID == "" || item.UserID == "" {
		return types.NewError(types.ErrInvalidRequest, "knowledge item requires id and user_id")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.owners[item.ID]; exists {
		return types.NewError(types.ErrStoreError, fmt.Sprintf("duplicate knowledge item id %s", item.ID))
	}
	s.put(item)
	return nil
}

// Upsert 按 id 插入或整行替换
func (s *MemoryStore) Upsert(ctx context.Context, item *types.KnowledgeItem) error {
	if item.ID == "" || item.UserID == "" {
		return types.NewError(types.ErrInvalidRequest, "knowledge item requires id and user_id")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if owner, exists := s.owners[item.ID]; exists && owner != item.UserID {
		return types.NewError(types.ErrCrossUserAccess,
			fmt.Sprintf("knowledge item %s is owned by another user", item.ID))
	}
	s.put(item)
	return nil
}

// put 写入一行。调用方必须持有写锁。
func (s *MemoryStore) put(item *types.KnowledgeItem) {
	now := time.Now()
	stored := cloneItem(item)
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = now
	}
	stored.UpdatedAt = now

	if s.items[item.UserID] == nil {
		s.items[item.UserID] = make(map[string]*types.KnowledgeItem)
	}
	s.items[item.UserID][item.ID] = stored
	s.owners[item.ID] = item.UserID
}

// Get 按 id 读取本用户的行
func (s *MemoryStore) Get(ctx context.Context, userID, id string) (*types.KnowledgeItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.checkOwner(id, userID); err != nil {
		return nil, err
	}
	return cloneItem(s.items[userID][id]), nil
}

// ListByUser 列出本用户全部行
func (s *MemoryStore) ListByUser(ctx context.Context, userID string) ([]*types.KnowledgeItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*types.KnowledgeItem, 0, len(s.items[userID]))
	for _, item := range s.items[userID] {
		out = append(out, cloneItem(item))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// ListByMetadata 列出本用户 metadata[key] == value 的行
func (s *MemoryStore) ListByMetadata(ctx context.Context, userID, key string, value any) ([]*types.KnowledgeItem, error) {
	all, err := s.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := make([]*types.KnowledgeItem, 0, len(all))
	for _, item := range all {
		if metaMatches(item, key, value) {
			out = append(out, item)
		}
	}
	return out, nil
}

// UpdateMetadata 合并写入元数据
func (s *MemoryStore) UpdateMetadata(ctx context.Context, userID, id string, metadata map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkOwner(id, userID); err != nil {
		return err
	}
	item := s.items[userID][id]
	if item.Metadata == nil {
		item.Metadata = make(map[string]any, len(metadata))
	}
	for k, v := range metadata {
		item.Metadata[k] = v
	}
	item.UpdatedAt = time.Now()
	return nil
}

// Delete 删除本用户的行，跨用户删除被拒绝
func (s *MemoryStore) Delete(ctx context.Context, userID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkOwner(id, userID); err != nil {
		return err
	}
	delete(s.items[userID], id)
	delete(s.owners, id)
	return nil
}

// CountByUser 返回本用户的行数
func (s *MemoryStore) CountByUser(ctx context.Context, userID string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.items[userID])), nil
}

// SearchByVector 余弦相似度检索本用户的行
func (s *MemoryStore) SearchByVector(ctx context.Context, userID string, query []float64, topK int, minSim float64) ([]ScoredItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	results := make([]ScoredItem, 0, len(s.items[userID]))
	for _, item := range s.items[userID] {
		if len(item.Embedding) == 0 {
			continue
		}
		score := llm.CosineSimilarity(query, item.Embedding)
		if score < minSim {
			continue
		}
		results = append(results, ScoredItem{Item: cloneItem(item), Score: score})
	}

	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if topK > 0 && len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

// ClearAll 清空全部数据
func (s *MemoryStore) ClearAll(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = make(map[string]map[string]*types.KnowledgeItem)
	s.owners = make(map[string]string)
	return nil
}
