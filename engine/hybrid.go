package engine

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/BaSui01/ragflow/types"
)

// =============================================================================
// 🔀 混合查询
// =============================================================================

// 混合查询省略 modes 时的默认组合
var defaultHybridModes = []types.Mode{types.ModeSimple, types.ModeRaptor, types.ModeSelfRAG}

// 置信度启发式常量
const (
	confidenceBase      = 0.5
	sourceBonusPerItem  = 0.05
	sourceBonusCap      = 0.3
	fastBonus           = 0.1
	fastLine            = 2 * time.Second
	contentBonusCap     = 0.1
	contentBonusDivisor = 5000.0
)

// modeResult 混合查询中单个模式的产出
type modeResult struct {
	mode       types.Mode
	result     *types.RAGResult
	confidence float64
}

// HybridQuery 并发运行多个模式并按置信度融合输出。
// 单个模式失败只会让它不贡献内容；只要有一个模式成功，
// 整体就是成功的。逐模式成败记入 metadata.mode_results。
func (s *Service) HybridQuery(ctx context.Context, query, userID string, modes []types.Mode, qctx map[string]any) *types.RAGResult {
	if len(modes) == 0 {
		modes = defaultHybridModes
	}

	// 先整体校验模式名，坏模式名是结构性错误，不做部分执行
	for _, mode := range modes {
		if _, err := s.pattern(mode); err != nil {
			return types.FailedResult(mode, err)
		}
	}

	ctx, span := s.tracer.Start(ctx, "engine.hybrid_query",
		trace.WithAttributes(attribute.Int("rag.mode_count", len(modes))))
	defer span.End()

	start := time.Now()

	var (
		mu      sync.Mutex
		results []modeResult
	)
	g, gctx := errgroup.WithContext(ctx)
	for _, mode := range modes {
		mode := mode
		g.Go(func() error {
			p, err := s.pattern(mode)
			if err != nil {
				return err
			}
			stepStart := time.Now()
			r := p.Query(gctx, query, userID, qctx)
			if r == nil {
				r = types.FailedResult(mode, types.NewError(types.ErrInternalError, "pattern returned nil result"))
			}
			r.Duration = time.Since(stepStart)

			mu.Lock()
			results = append(results, modeResult{mode: mode, result: r, confidence: confidence(r)})
			mu.Unlock()
			return nil
		})
	}
	// 模式契约保证 Query 不返回 error，这里的 Wait 只等待全部完成
	if err := g.Wait(); err != nil {
		return types.FailedResult("", err)
	}

	merged := s.fuse(modes, results)
	merged.Duration = time.Since(start)

	s.metrics.RecordQuery("hybrid", merged.Success, merged.Duration)
	if s.collector != nil {
		s.collector.RecordHybridQuery(merged.Success, len(modes), merged.Duration)
	}
	return merged
}

// confidence 对单个模式结果打启发式置信度：
// 来源数、处理速度、内容长度各有封顶加成。
func confidence(r *types.RAGResult) float64 {
	if !r.Success {
		return 0
	}
	c := confidenceBase

	sourceBonus := float64(len(r.Sources)) * sourceBonusPerItem
	if sourceBonus > sourceBonusCap {
		sourceBonus = sourceBonusCap
	}
	c += sourceBonus

	if r.Duration < fastLine {
		c += fastBonus
	}

	contentBonus := float64(len(r.Content)) / contentBonusDivisor
	if contentBonus > contentBonusCap {
		contentBonus = contentBonusCap
	}
	c += contentBonus

	return c
}

// fuse 把各模式结果融合成一个信封：内容块按置信度降序拼接，
// 来源按 id（无 id 用原文）去重。
func (s *Service) fuse(modes []types.Mode, results []modeResult) *types.RAGResult {
	sort.SliceStable(results, func(i, j int) bool { return results[i].confidence > results[j].confidence })

	modeResults := make(map[string]bool, len(results))
	confidences := make(map[string]float64, len(results))
	var blocks []string
	var sources []types.SourceItem
	seen := make(map[string]bool)
	succeeded := 0

	for _, mr := range results {
		modeResults[string(mr.mode)] = mr.result.Success
		confidences[string(mr.mode)] = mr.confidence
		if !mr.result.Success {
			s.logger.Warn("hybrid branch failed",
				zap.String("mode", string(mr.mode)),
				zap.String("error", mr.result.Error))
			continue
		}
		succeeded++

		if mr.result.Content != "" {
			blocks = append(blocks, fmt.Sprintf("[%s] %s", mr.mode, mr.result.Content))
		}
		for _, src := range mr.result.Sources {
			key := src.ID
			if key == "" {
				key = src.Content
			}
			if seen[key] {
				continue
			}
			seen[key] = true
			sources = append(sources, src)
		}
	}

	if succeeded == 0 {
		r := types.FailedResult("hybrid", types.NewError(types.ErrInternalError,
			fmt.Sprintf("all %d modes failed for query", len(modes))))
		r.SetMeta("mode_results", modeResults)
		return r
	}

	result := &types.RAGResult{
		Success: true,
		Content: strings.Join(blocks, "\n\n"),
		Sources: sources,
		Mode:    "hybrid",
		Metadata: map[string]any{
			"mode_results": modeResults,
			"confidences":  confidences,
			"modes_run":    len(modes),
		},
	}
	if result.Sources == nil {
		result.Sources = []types.SourceItem{}
	}
	return result
}
