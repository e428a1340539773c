package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/ragflow/types"
)

// =============================================================================
// 🔑 查询结果缓存
// =============================================================================

// QueryCache 按 (用户, 模式, 查询文本) 缓存成功的查询结果。
// 失败结果一律不缓存。键里带一个世代号，引擎重配置时只需
// 提升世代就让全部旧条目失效，不用扫描删除。
type QueryCache struct {
	manager    *Manager
	ttl        time.Duration
	generation atomic.Uint64
	logger     *zap.Logger
}

// NewQueryCache 创建查询结果缓存
func NewQueryCache(manager *Manager, ttl time.Duration, logger *zap.Logger) *QueryCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &QueryCache{manager: manager, ttl: ttl, logger: logger}
}

// key 派生缓存键：sha256(user|mode|query)，带世代前缀。
func (c *QueryCache) key(userID string, mode types.Mode, query string) string {
	sum := sha256.Sum256([]byte(userID + "|" + string(mode) + "|" + query))
	return fmt.Sprintf("ragflow:query:g%d:%s", c.generation.Load(), hex.EncodeToString(sum[:16]))
}

// Get 查找缓存的查询结果，未命中返回 (nil, false)。
func (c *QueryCache) Get(ctx context.Context, userID string, mode types.Mode, query string) (*types.RAGResult, bool) {
	var result types.RAGResult
	err := c.manager.GetJSON(ctx, c.key(userID, mode, query), &result)
	if err != nil {
		if !IsCacheMiss(err) {
			c.logger.Warn("query cache lookup failed", zap.Error(err))
		}
		return nil, false
	}
	return &result, true
}

// Put 缓存一个查询结果。失败结果直接丢弃。
func (c *QueryCache) Put(ctx context.Context, userID string, mode types.Mode, query string, result *types.RAGResult) {
	if result == nil || !result.Success {
		return
	}
	if err := c.manager.SetJSON(ctx, c.key(userID, mode, query), result, c.ttl); err != nil {
		c.logger.Warn("query cache store failed", zap.Error(err))
	}
}

// Invalidate 使全部缓存条目失效（提升世代号）。
func (c *QueryCache) Invalidate() {
	c.generation.Add(1)
}
