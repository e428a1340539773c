package store

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Registration 注册结果.
type Registration struct {
	Success bool   `json:"success"`
	Address string `json:"address,omitempty"`
}

// Registrar 把存储的知识条目暴露为可寻址资源，仅用于下游发现。
// 实现约定：注册失败不得影响存储操作本身（调用方只记日志）。
type Registrar interface {
	Register(ctx context.Context, resourceID, userID string, data map[string]any) (*Registration, error)
	Unregister(ctx context.Context, resourceID, userID string) error
}

// LoggingRegistrar 只记日志的注册器，没有外部注册服务时的默认实现.
type LoggingRegistrar struct {
	logger *zap.Logger
}

// NewLoggingRegistrar 创建日志注册器
func NewLoggingRegistrar(logger *zap.Logger) *LoggingRegistrar {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LoggingRegistrar{logger: logger}
}

// Register 记录注册并返回合成地址
func (r *LoggingRegistrar) Register(ctx context.Context, resourceID, userID string, data map[string]any) (*Registration, error) {
	r.logger.Debug("knowledge resource registered",
		zap.String("resource_id", resourceID),
		zap.String("user_id", userID))
	return &Registration{
		Success: true,
		Address: fmt.Sprintf("knowledge://%s/%s", userID, resourceID),
	}, nil
}

// Unregister 记录注销
func (r *LoggingRegistrar) Unregister(ctx context.Context, resourceID, userID string) error {
	r.logger.Debug("knowledge resource unregistered",
		zap.String("resource_id", resourceID),
		zap.String("user_id", userID))
	return nil
}

// MemoryRegistrar 内存注册器（测试用），记录全部注册并支持注入失败.
type MemoryRegistrar struct {
	mu        sync.Mutex
	addresses map[string]string // resourceID → address
	FailNext  bool              // 下一次调用返回错误
}

// NewMemoryRegistrar 创建内存注册器
func NewMemoryRegistrar() *MemoryRegistrar {
	return &MemoryRegistrar{addresses: make(map[string]string)}
}

// Register 记录注册
func (r *MemoryRegistrar) Register(ctx context.Context, resourceID, userID string, data map[string]any) (*Registration, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.FailNext {
		r.FailNext = false
		return nil, fmt.Errorf("registrar unavailable")
	}
	addr := fmt.Sprintf("knowledge://%s/%s", userID, resourceID)
	r.addresses[resourceID] = addr
	return &Registration{Success: true, Address: addr}, nil
}

// Unregister 删除注册
func (r *MemoryRegistrar) Unregister(ctx context.Context, resourceID, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.FailNext {
		r.FailNext = false
		return fmt.Errorf("registrar unavailable")
	}
	delete(r.addresses, resourceID)
	return nil
}

// Registered 报告资源是否已注册
func (r *MemoryRegistrar) Registered(resourceID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.addresses[resourceID]
	return ok
}

// Count 返回注册数量
func (r *MemoryRegistrar) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.addresses)
}
