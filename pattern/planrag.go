package pattern

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/BaSui01/ragflow/llm"
	"github.com/BaSui01/ragflow/store"
	"github.com/BaSui01/ragflow/types"
)

// 复杂度达到 2/5 指标即走完整四步计划。
const planComplexityThreshold = 0.4

// PlanStep 推理计划中的一步
type PlanStep struct {
	ID          string `json:"id"`
	Type        string `json:"type"`
	Description string `json:"description"`
}

// ReasoningPlan 按查询构建的推理计划：有序步骤、步骤间依赖边、
// 推导出的可并行分组。计划不落库，查询结束即丢弃。
type ReasoningPlan struct {
	Steps        []PlanStep          `json:"steps"`
	Dependencies map[string][]string `json:"dependencies"`
	// ParallelGroups 当前由执行器忽略，仅供观测（执行严格按序）
	ParallelGroups [][]string `json:"parallel_groups"`
	Complexity     float64    `json:"complexity"`
}

// PlanRAGPattern 结构化推理模式。查询先用五个布尔指标估计复杂
// 度，低复杂度构建两步计划（直接检索 → 综合），高复杂度构建四
// 步计划（背景调研 → 证据收集 → 分析 → 综合），依赖链为线性，
// 步骤严格按序执行，输出拼接为最终内容，计划本身进结果元数据。
type PlanRAGPattern struct {
	base
}

// NewPlanRAGPattern 创建结构化推理模式
func NewPlanRAGPattern(deps Deps) *PlanRAGPattern {
	return &PlanRAGPattern{base: newBase(deps, types.ModePlanRAG)}
}

// Description 返回模式说明
func (p *PlanRAGPattern) Description() string {
	return "Structured reasoning: builds a complexity-driven step plan and executes it in dependency order"
}

// ====== 摄取 ======

// ProcessDocument 摄取一篇文档，块带推理结构标签
func (p *PlanRAGPattern) ProcessDocument(ctx context.Context, content, userID string, metadata map[string]any) (*types.IngestSummary, error) {
	start := time.Now()
	docID := newID()

	summary, _ := p.ingestChunks(ctx, content, userID, docID, metadata, func(meta map[string]any, chunk llm.Chunk) {
		meta[types.MetaReasoningStyle] = reasoningStyle(chunk.Text)
	})
	summary.Duration = time.Since(start)
	return summary, nil
}

// reasoningStyle 检测块的推理结构：前提/结论/证据/示例标记，
// 示例多于前提时猜归纳，否则猜演绎。
func reasoningStyle(text string) string {
	lower := strings.ToLower(text)
	count := func(markers ...string) int {
		n := 0
		for _, m := range markers {
			n += strings.Count(lower, m)
		}
		return n
	}

	premises := count("because", "since", "given that")
	conclusions := count("therefore", "thus", "hence")
	evidence := count("study", "research", "data", "evidence")
	examples := count("for example", "for instance", "such as")

	switch {
	case premises+conclusions+evidence+examples == 0:
		return "descriptive"
	case examples > premises:
		return "inductive"
	default:
		return "deductive"
	}
}

// ====== 查询 ======

// Query 构建推理计划并按序执行
func (p *PlanRAGPattern) Query(ctx context.Context, query, userID string, qctx map[string]any) *types.RAGResult {
	start := time.Now()

	if p.emptyCorpus(ctx, userID) {
		result := types.EmptyResult(p.mode)
		result.Duration = time.Since(start)
		return result
	}

	plan := p.buildPlan(query)

	var (
		blocks     []string
		allSources []store.ScoredItem
		outputs    = map[string]string{}
	)
	for _, step := range plan.Steps {
		output, scored, err := p.executeStep(ctx, step, query, userID, outputs)
		if err != nil {
			result := types.FailedResult(p.mode, err)
			result.SetMeta("failed_step", step.ID)
			result.Duration = time.Since(start)
			return result
		}
		outputs[step.ID] = output
		blocks = append(blocks, fmt.Sprintf("[%s] %s", step.Type, output))
		allSources = append(allSources, scored...)
	}

	deduped := dedupeScored(allSources)
	return &types.RAGResult{
		Success: true,
		Content: strings.Join(blocks, "\n\n"),
		Sources: sources(deduped),
		Metadata: map[string]any{
			"plan":            plan,
			"complexity":      plan.Complexity,
			"steps":           len(plan.Steps),
			"parallel_groups": len(plan.ParallelGroups),
		},
		Mode:     p.mode,
		Duration: time.Since(start),
	}
}

// buildPlan 从五个布尔指标估计复杂度并构建线性依赖的步骤序列
func (p *PlanRAGPattern) buildPlan(query string) *ReasoningPlan {
	lower := strings.ToLower(query)
	indicators := []bool{
		strings.ContainsAny(query, ",;") || strings.Contains(lower, " and "),
		strings.Contains(lower, "why") || strings.Contains(lower, "how"),
		strings.Contains(lower, "compare") || strings.Contains(lower, "versus") ||
			strings.Contains(lower, " vs ") || strings.Contains(lower, "difference"),
		strings.Contains(lower, "summarize") || strings.Contains(lower, "overall") ||
			strings.Contains(lower, "combine") || strings.Contains(lower, "synthesize"),
		len(strings.Fields(query)) > 15,
	}
	complexity := 0.0
	for _, hit := range indicators {
		if hit {
			complexity += 1.0 / float64(len(indicators))
		}
	}

	var steps []PlanStep
	if p.deps.Config.EnablePlanning && complexity >= planComplexityThreshold {
		steps = []PlanStep{
			{ID: "s1", Type: "background_research", Description: "gather broad background context"},
			{ID: "s2", Type: "evidence_gathering", Description: "retrieve specific supporting evidence"},
			{ID: "s3", Type: "analysis", Description: "analyze the gathered evidence"},
			{ID: "s4", Type: "synthesis", Description: "synthesize the final answer"},
		}
	} else {
		steps = []PlanStep{
			{ID: "s1", Type: "direct_search", Description: "retrieve directly relevant context"},
			{ID: "s2", Type: "synthesis", Description: "synthesize the final answer"},
		}
	}

	// 线性依赖链：每步依赖前一步
	deps := map[string][]string{}
	groups := make([][]string, 0, len(steps))
	for i, step := range steps {
		if i > 0 {
			deps[step.ID] = []string{steps[i-1].ID}
		} else {
			deps[step.ID] = nil
		}
		// 线性链下每个并行组都是单步；分组被计算和上报，但执行器不利用
		groups = append(groups, []string{step.ID})
	}

	return &ReasoningPlan{
		Steps:          steps,
		Dependencies:   deps,
		ParallelGroups: groups,
		Complexity:     complexity,
	}
}

// executeStep 执行一步：检索类步骤取候选并生成小结，综合类
// 步骤基于前序输出生成最终答案。
func (p *PlanRAGPattern) executeStep(ctx context.Context, step PlanStep, query, userID string, prior map[string]string) (string, []store.ScoredItem, error) {
	switch step.Type {
	case "synthesis":
		var sb strings.Builder
		for _, out := range prior {
			sb.WriteString(out)
			sb.WriteString("\n")
		}
		prompt := fmt.Sprintf(
			"Synthesize a final answer to the question from the intermediate findings below.\n\nFindings:\n%s\nQuestion: %s",
			sb.String(), query)
		out, err := p.deps.Client.Generate(ctx, prompt, llm.GenerateOptions{})
		return out, nil, err

	case "analysis":
		prompt := fmt.Sprintf(
			"Analyze the evidence below with respect to the question. Note agreements, gaps and implications.\n\nEvidence:\n%s\nQuestion: %s",
			prior["s2"], query)
		out, err := p.deps.Client.Generate(ctx, prompt, llm.GenerateOptions{})
		return out, nil, err

	default: // direct_search / background_research / evidence_gathering
		scored, err := p.retrieve(ctx, query, userID, p.topK(), "", nil)
		if err != nil {
			return "", nil, err
		}
		if len(scored) == 0 {
			return "no relevant context found", nil, nil
		}
		out, err := p.generate(ctx, query, p.buildContext(scored))
		if err != nil {
			return "", nil, err
		}
		return out, scored, nil
	}
}

// dedupeScored 按条目 id 去重，保留首个（分数较高的）出现。
func dedupeScored(scored []store.ScoredItem) []store.ScoredItem {
	seen := map[string]bool{}
	out := make([]store.ScoredItem, 0, len(scored))
	for _, s := range scored {
		if seen[s.Item.ID] {
			continue
		}
		seen[s.Item.ID] = true
		out = append(out, s)
	}
	return out
}
