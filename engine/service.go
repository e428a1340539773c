package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/BaSui01/ragflow/config"
	"github.com/BaSui01/ragflow/internal/cache"
	"github.com/BaSui01/ragflow/internal/metrics"
	"github.com/BaSui01/ragflow/pattern"
	"github.com/BaSui01/ragflow/types"
)

// =============================================================================
// 🎯 编排服务
// =============================================================================

// Service 是检索引擎的编排层：持有每种模式的一个实例，
// 统一分发摄取与查询，并聚合逐模式的性能遥测。
type Service struct {
	mu       sync.RWMutex
	deps     pattern.Deps
	patterns map[types.Mode]pattern.Pattern

	metrics   *Metrics
	collector *metrics.Collector
	cache     *cache.QueryCache
	tracer    trace.Tracer
	logger    *zap.Logger
	closers   []func(context.Context) error
}

// Option 配置 Service 的可选能力
type Option func(*Service)

// WithQueryCache 启用查询结果缓存
func WithQueryCache(qc *cache.QueryCache) Option {
	return func(s *Service) { s.cache = qc }
}

// WithCollector 启用 Prometheus 指标采集
func WithCollector(c *metrics.Collector) Option {
	return func(s *Service) { s.collector = c }
}

// WithCloser 注册一个随服务关闭执行的清理函数（缓存连接、
// 遥测导出器等）。
func WithCloser(fn func(context.Context) error) Option {
	return func(s *Service) { s.closers = append(s.closers, fn) }
}

// NewService 创建编排服务并注册全部六种模式。
// 模式集合封闭，运行期不支持动态注册。
func NewService(deps pattern.Deps, opts ...Option) *Service {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	s := &Service{
		deps:     deps,
		patterns: buildPatterns(deps),
		metrics:  NewMetrics(),
		tracer:   otel.Tracer("ragflow/engine"),
		logger:   deps.Logger.With(zap.String("component", "engine")),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func buildPatterns(deps pattern.Deps) map[types.Mode]pattern.Pattern {
	return map[types.Mode]pattern.Pattern{
		types.ModeSimple:  pattern.NewSimplePattern(deps),
		types.ModeRaptor:  pattern.NewRaptorPattern(deps),
		types.ModeSelfRAG: pattern.NewSelfRAGPattern(deps),
		types.ModeCRAG:    pattern.NewCRAGPattern(deps),
		types.ModePlanRAG: pattern.NewPlanRAGPattern(deps),
		types.ModeHMRAG:   pattern.NewHMRAGPattern(deps),
	}
}

// pattern 解析模式并取出实现。空模式回落到配置的默认模式。
func (s *Service) pattern(mode types.Mode) (pattern.Pattern, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if mode == "" {
		mode = s.defaultModeLocked()
	}
	p, ok := s.patterns[mode]
	if !ok {
		return nil, types.NewError(types.ErrUnsupportedMode,
			fmt.Sprintf("unsupported mode %q, available: %v", mode, types.AllModes()))
	}
	return p, nil
}

func (s *Service) defaultModeLocked() types.Mode {
	if m, err := types.ParseMode(s.deps.Config.DefaultMode); err == nil {
		return m
	}
	return types.ModeSimple
}

// =============================================================================
// 📥 摄取
// =============================================================================

// ProcessDocument 把文档路由到指定模式摄取。mode 为空时用默认模式；
// 未知模式直接报错，不产生任何副作用。
func (s *Service) ProcessDocument(ctx context.Context, content, userID string, mode types.Mode, metadata map[string]any) (*types.IngestSummary, error) {
	p, err := s.pattern(mode)
	if err != nil {
		return nil, err
	}

	ctx, span := s.tracer.Start(ctx, "engine.process_document",
		trace.WithAttributes(
			attribute.String("rag.mode", string(p.Mode())),
			attribute.Int("rag.content_length", len(content)),
		))
	defer span.End()

	start := time.Now()
	summary, err := p.ProcessDocument(ctx, content, userID, metadata)
	elapsed := time.Since(start)

	if summary != nil {
		summary.Duration = elapsed
	}
	if s.collector != nil {
		stored, failed := 0, 0
		if summary != nil {
			stored, failed = summary.Stored, summary.Failed
		}
		s.collector.RecordIngestion(string(p.Mode()), err == nil, stored, failed, elapsed)
	}
	if err != nil {
		return summary, err
	}

	// 摄取改变了语料，缓存的旧答案不再可信
	if s.cache != nil {
		s.cache.Invalidate()
	}
	s.logger.Info("document processed",
		zap.String("mode", string(p.Mode())),
		zap.String("user_id", userID),
		zap.Int("stored", summary.Stored),
		zap.Int("failed", summary.Failed),
		zap.Duration("duration", elapsed))
	return summary, nil
}

// =============================================================================
// 🔍 查询
// =============================================================================

// QueryOptions 查询选项
type QueryOptions struct {
	// Mode 显式指定模式，空值走自动选择或默认模式
	Mode types.Mode
	// Context 透传给模式实现的查询上下文
	Context map[string]any
	// AutoModeSelection 未显式指定模式时按查询特征自动选择
	AutoModeSelection bool
}

// Query 分发一次查询。模式解析顺序：显式指定 → 自动选择 → 默认。
// 未知模式返回列出可用模式的失败结果，绝不返回 error。
// 每条路径——含未知模式和缓存命中——都计入查询统计。
func (s *Service) Query(ctx context.Context, query, userID string, opts QueryOptions) *types.RAGResult {
	start := time.Now()

	mode := opts.Mode
	if mode == "" && opts.AutoModeSelection {
		mode, _ = s.RecommendMode(ctx, query, userID)
	}

	p, err := s.pattern(mode)
	if err != nil {
		s.recordQuery(mode, false, time.Since(start))
		return types.FailedResult(mode, err)
	}
	mode = p.Mode()

	ctx, span := s.tracer.Start(ctx, "engine.query",
		trace.WithAttributes(attribute.String("rag.mode", string(mode))))
	defer span.End()

	if s.cache != nil {
		if cached, ok := s.cache.Get(ctx, userID, mode, query); ok {
			if s.collector != nil {
				s.collector.RecordCacheHit("query")
			}
			s.recordQuery(mode, cached.Success, time.Since(start))
			return cached
		}
		if s.collector != nil {
			s.collector.RecordCacheMiss("query")
		}
	}

	result := p.Query(ctx, query, userID, opts.Context)
	elapsed := time.Since(start)
	if result == nil {
		result = types.FailedResult(mode, types.NewError(types.ErrInternalError, "pattern returned nil result"))
	}
	result.Duration = elapsed

	s.recordQuery(mode, result.Success, elapsed)
	if s.cache != nil {
		s.cache.Put(ctx, userID, mode, query, result)
	}
	if !result.Success {
		s.logger.Warn("query failed",
			zap.String("mode", string(mode)),
			zap.String("user_id", userID),
			zap.String("error", result.Error))
	}
	return result
}

// recordQuery 把一次查询记入内部统计和 Prometheus 采集器。
func (s *Service) recordQuery(mode types.Mode, success bool, elapsed time.Duration) {
	s.metrics.RecordQuery(mode, success, elapsed)
	if s.collector != nil {
		s.collector.RecordQuery(string(mode), success, elapsed)
	}
}

// =============================================================================
// 🧭 模式信息与推荐
// =============================================================================

// ModeInfo 单个模式的描述信息
type ModeInfo struct {
	Mode        types.Mode `json:"mode"`
	Description string     `json:"description"`
}

// GetAvailableModes 返回全部已注册模式（固定顺序）
func (s *Service) GetAvailableModes() []types.Mode {
	return types.AllModes()
}

// GetModeInfo 返回指定模式的描述，未知模式报错
func (s *Service) GetModeInfo(mode types.Mode) (*ModeInfo, error) {
	s.mu.RLock()
	p, ok := s.patterns[mode]
	s.mu.RUnlock()
	if !ok {
		return nil, types.NewError(types.ErrUnsupportedMode,
			fmt.Sprintf("unsupported mode %q, available: %v", mode, types.AllModes()))
	}
	return &ModeInfo{Mode: mode, Description: p.Description()}, nil
}

// RecommendMode 按查询特征推荐模式，并返回驱动推荐的特征分析。
// 空语料用户一律推荐 Simple。
func (s *Service) RecommendMode(ctx context.Context, query, userID string) (types.Mode, QueryFeatures) {
	features := analyzeQuery(query)

	empty := false
	if count, err := s.deps.Store.CountByUser(ctx, userID); err == nil && count == 0 {
		empty = true
	}

	mode := selectMode(features, empty)
	if s.collector != nil {
		s.collector.RecordRecommendation(string(mode))
	}
	s.logger.Debug("mode recommended",
		zap.String("mode", string(mode)),
		zap.Float64("complexity", features.Complexity),
		zap.Bool("empty_corpus", empty))
	return mode, features
}

// GetPerformanceMetrics 返回当前性能统计快照
func (s *Service) GetPerformanceMetrics() PerformanceReport {
	return s.metrics.Report()
}

// =============================================================================
// ⚙️ 重配置
// =============================================================================

// Reconfigure 整值替换引擎配置并重建模式注册表。
// 配置构造后不可变，这里不做原地修改；缓存的查询结果一并失效。
func (s *Service) Reconfigure(cfg config.EngineConfig) {
	s.mu.Lock()
	s.deps.Config = cfg
	s.patterns = buildPatterns(s.deps)
	s.mu.Unlock()

	if s.cache != nil {
		s.cache.Invalidate()
	}
	s.logger.Info("engine reconfigured",
		zap.String("default_mode", cfg.DefaultMode),
		zap.Int("top_k", cfg.TopK))
}

// Close 逆序执行注册的清理函数。关闭后的服务不应再接收调用，
// 但 Close 本身不做拦截。
func (s *Service) Close(ctx context.Context) error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// =============================================================================
// 🗄️ 知识管理
// =============================================================================

// DeleteKnowledge 删除一条知识行并级联注销其资源注册。
// 注销失败只记日志，不影响删除结果。
func (s *Service) DeleteKnowledge(ctx context.Context, userID, id string) error {
	if err := s.deps.Store.Delete(ctx, userID, id); err != nil {
		return err
	}
	if s.deps.Registrar != nil {
		if err := s.deps.Registrar.Unregister(ctx, id, userID); err != nil {
			s.logger.Warn("knowledge unregistration failed",
				zap.String("id", id),
				zap.Error(err))
		}
	}
	if s.cache != nil {
		s.cache.Invalidate()
	}
	return nil
}

// UpdateKnowledgeMetadata 合并写入一条知识行的元数据
func (s *Service) UpdateKnowledgeMetadata(ctx context.Context, userID, id string, metadata map[string]any) error {
	return s.deps.Store.UpdateMetadata(ctx, userID, id, metadata)
}

// KnowledgeStats 用户知识库统计
type KnowledgeStats struct {
	Total  int64            `json:"total"`
	ByMode map[string]int64 `json:"by_mode"`
}

// GetKnowledgeStats 统计该用户的知识行总数与逐模式分布
func (s *Service) GetKnowledgeStats(ctx context.Context, userID string) (*KnowledgeStats, error) {
	items, err := s.deps.Store.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	stats := &KnowledgeStats{
		Total:  int64(len(items)),
		ByMode: make(map[string]int64),
	}
	for _, item := range items {
		if mode := item.MetaString(types.MetaMode); mode != "" {
			stats.ByMode[mode]++
		}
	}
	return stats, nil
}
