package pattern

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/ragflow/llm"
	"github.com/BaSui01/ragflow/store"
	"github.com/BaSui01/ragflow/types"
)

// 四个固定的智能体角色
const (
	agentRetrieval = "retrieval"
	agentAnalysis  = "analysis"
	agentSynthesis = "synthesis"
	agentQuality   = "quality"
)

// AgentTask 一个智能体的任务描述：按文档或查询构建，执行完丢弃。
type AgentTask struct {
	AgentID        string         `json:"agent_id"`
	TaskType       string         `json:"task_type"`
	Input          map[string]any `json:"input,omitempty"`
	ExpectedOutput string         `json:"expected_output"`
	Priority       int            `json:"priority"`
	DependsOn      []string       `json:"depends_on,omitempty"`
}

// CollaborationStep 协作记录中的一步
type CollaborationStep struct {
	Step    string `json:"step"`
	Detail  string `json:"detail"`
	Success bool   `json:"success"`
}

// HMRAGPattern 多智能体模式。四个固定角色构成依赖 DAG：
// retrieval 无依赖，analysis 依赖 retrieval，synthesis 依赖两者，
// quality 依赖 synthesis。任务按依赖序轮询就绪集合执行（顺序
// 执行，不做真正的并行）。全部完成后记录固定三步协作序列，
// 共识总是达成——当前没有真实的协商或投票逻辑。
// EnableMultiAgent 关闭时退化为单角色：只保留检索与生成，
// 不产出画像任务与协作记录。
type HMRAGPattern struct {
	base
}

// NewHMRAGPattern 创建多智能体模式
func NewHMRAGPattern(deps Deps) *HMRAGPattern {
	return &HMRAGPattern{base: newBase(deps, types.ModeHMRAG)}
}

// Description 返回模式说明
func (p *HMRAGPattern) Description() string {
	return "Multi-agent retrieval: four fixed roles executed in dependency order with consensus-style result composition"
}

// buildTasks 构建固定依赖形状的任务集
func buildTasks(taskType string) []AgentTask {
	return []AgentTask{
		{AgentID: agentRetrieval, TaskType: taskType, ExpectedOutput: "retrieved context", Priority: 1},
		{AgentID: agentAnalysis, TaskType: taskType, ExpectedOutput: "topic and entity analysis", Priority: 2, DependsOn: []string{agentRetrieval}},
		{AgentID: agentSynthesis, TaskType: taskType, ExpectedOutput: "synthesized findings", Priority: 3, DependsOn: []string{agentRetrieval, agentAnalysis}},
		{AgentID: agentQuality, TaskType: taskType, ExpectedOutput: "quality verdict", Priority: 4, DependsOn: []string{agentSynthesis}},
	}
}

// runTasks 依赖序执行循环：反复收集所有依赖已完成的就绪任务，
// 按优先级顺序执行，直到任务集耗尽。依赖成环时返回错误而不是
// 死循环。
func (p *HMRAGPattern) runTasks(tasks []AgentTask, run func(task AgentTask) (map[string]any, error)) (map[string]map[string]any, []string, error) {
	results := make(map[string]map[string]any, len(tasks))
	var order []string

	for len(results) < len(tasks) {
		var ready []AgentTask
		for _, task := range tasks {
			if _, done := results[task.AgentID]; done {
				continue
			}
			ok := true
			for _, dep := range task.DependsOn {
				if _, done := results[dep]; !done {
					ok = false
					break
				}
			}
			if ok {
				ready = append(ready, task)
			}
		}
		if len(ready) == 0 {
			return nil, nil, fmt.Errorf("agent task dependency cycle detected")
		}

		sort.SliceStable(ready, func(i, j int) bool { return ready[i].Priority < ready[j].Priority })
		for _, task := range ready {
			out, err := run(task)
			if err != nil {
				return nil, nil, fmt.Errorf("agent %s failed: %w", task.AgentID, err)
			}
			results[task.AgentID] = out
			order = append(order, task.AgentID)
		}
	}
	return results, order, nil
}

// collaborate 固定三步协作记录。共识总是达成：这里没有真实的
// 协商逻辑，只保留可追溯的执行痕迹。
func collaborate() []CollaborationStep {
	return []CollaborationStep{
		{Step: "information_sharing", Detail: "agent outputs shared across the task set", Success: true},
		{Step: "conflict_resolution", Detail: "no conflicting findings detected", Success: true},
		{Step: "consensus_building", Detail: "consensus reached on the composed response", Success: true},
	}
}

// ====== 摄取 ======

// ProcessDocument 摄取一篇文档：retrieval 切块入库，analysis /
// synthesis / quality 产出文档级画像记入摘要元数据。
func (p *HMRAGPattern) ProcessDocument(ctx context.Context, content, userID string, metadata map[string]any) (*types.IngestSummary, error) {
	start := time.Now()
	docID := newID()

	// 多智能体关闭：只跑 retrieval 角色的摄取，不建文档画像
	if !p.deps.Config.EnableMultiAgent {
		ingest, _ := p.ingestChunks(ctx, content, userID, docID, metadata, func(meta map[string]any, _ llm.Chunk) {
			meta["agent"] = agentRetrieval
		})
		ingest.Metadata["multi_agent"] = false
		ingest.Duration = time.Since(start)
		return ingest, nil
	}

	summary := &types.IngestSummary{
		DocumentID: docID,
		Mode:       p.mode,
		Metadata:   map[string]any{},
	}

	results, order, err := p.runTasks(buildTasks("ingest"), func(task AgentTask) (map[string]any, error) {
		switch task.AgentID {
		case agentRetrieval:
			ingest, _ := p.ingestChunks(ctx, content, userID, docID, metadata, func(meta map[string]any, _ llm.Chunk) {
				meta["agent"] = agentRetrieval
			})
			summary.Stored = ingest.Stored
			summary.Failed = ingest.Failed
			summary.Errors = ingest.Errors
			return map[string]any{"stored": ingest.Stored, "failed": ingest.Failed}, nil
		case agentAnalysis:
			return analyzeText(content), nil
		case agentSynthesis:
			return synthesizeText(content), nil
		case agentQuality:
			return map[string]any{"quality": chunkQuality(content)}, nil
		}
		return nil, fmt.Errorf("unknown agent %s", task.AgentID)
	})
	if err != nil {
		// 任务循环失败时摄取计数仍然有效，错误记入摘要
		summary.AddError(-1, err)
		summary.Duration = time.Since(start)
		return summary, nil
	}

	summary.Metadata["agent_results"] = results
	summary.Metadata["execution_order"] = order
	summary.Metadata["collaboration"] = collaborate()
	summary.Metadata["consensus"] = true
	summary.Duration = time.Since(start)

	p.deps.Logger.Info("multi-agent ingestion complete",
		zap.String("document_id", docID),
		zap.Strings("order", order),
		zap.Int("stored", summary.Stored))
	return summary, nil
}

// ====== 查询 ======

// Query 四个智能体按依赖序处理查询，响应由各角色的标注输出拼接。
func (p *HMRAGPattern) Query(ctx context.Context, query, userID string, qctx map[string]any) *types.RAGResult {
	start := time.Now()

	if p.emptyCorpus(ctx, userID) {
		result := types.EmptyResult(p.mode)
		result.Duration = time.Since(start)
		return result
	}

	// 多智能体关闭：检索 + 生成，跳过角色任务与协作记录
	if !p.deps.Config.EnableMultiAgent {
		return p.singleAgentQuery(ctx, query, userID, start)
	}

	var scored []store.ScoredItem
	results, order, err := p.runTasks(buildTasks("query"), func(task AgentTask) (map[string]any, error) {
		switch task.AgentID {
		case agentRetrieval:
			var rerr error
			scored, rerr = p.retrieve(ctx, query, userID, p.topK(), "", nil)
			if rerr != nil {
				return nil, rerr
			}
			return map[string]any{"retrieved": len(scored)}, nil

		case agentAnalysis:
			joined := joinContents(scored)
			return analyzeText(joined), nil

		case agentSynthesis:
			if len(scored) == 0 {
				return map[string]any{"summary": "", "key_points": []string{}}, nil
			}
			answer, gerr := p.generate(ctx, query, p.buildContext(scored))
			if gerr != nil {
				return nil, gerr
			}
			out := synthesizeText(joinContents(scored))
			out["summary"] = answer
			return out, nil

		case agentQuality:
			return p.assessResponse(query, scored), nil
		}
		return nil, fmt.Errorf("unknown agent %s", task.AgentID)
	})
	if err != nil {
		result := types.FailedResult(p.mode, err)
		result.Duration = time.Since(start)
		return result
	}

	return &types.RAGResult{
		Success: true,
		Content: composeResponse(results),
		Sources: sources(scored),
		Metadata: map[string]any{
			"agent_results":   results,
			"execution_order": order,
			"collaboration":   collaborate(),
			"consensus":       true,
		},
		Mode:     p.mode,
		Duration: time.Since(start),
	}
}

// singleAgentQuery EnableMultiAgent 关闭时的退化路径。
func (p *HMRAGPattern) singleAgentQuery(ctx context.Context, query, userID string, start time.Time) *types.RAGResult {
	scored, err := p.retrieve(ctx, query, userID, p.topK(), "", nil)
	if err != nil {
		result := types.FailedResult(p.mode, err)
		result.Duration = time.Since(start)
		return result
	}

	answer := ""
	if len(scored) > 0 {
		answer, err = p.generate(ctx, query, p.buildContext(scored))
		if err != nil {
			result := types.FailedResult(p.mode, err)
			result.Duration = time.Since(start)
			return result
		}
	}

	return &types.RAGResult{
		Success:  true,
		Content:  answer,
		Sources:  sources(scored),
		Metadata: map[string]any{"multi_agent": false},
		Mode:     p.mode,
		Duration: time.Since(start),
	}
}

func joinContents(scored []store.ScoredItem) string {
	parts := make([]string, len(scored))
	for i, s := range scored {
		parts[i] = s.Item.Content
	}
	return strings.Join(parts, "\n")
}

// analyzeText analysis 角色：主题、实体、情感、复杂度。
func analyzeText(text string) map[string]any {
	words := strings.Fields(text)

	// 主题：高频长词
	freq := map[string]int{}
	for _, w := range words {
		w = strings.ToLower(strings.Trim(w, ".,!?;:\"'()"))
		if len(w) >= 5 {
			freq[w]++
		}
	}
	type wc struct {
		word  string
		count int
	}
	ranked := make([]wc, 0, len(freq))
	for w, c := range freq {
		ranked = append(ranked, wc{w, c})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].count == ranked[j].count {
			return ranked[i].word < ranked[j].word
		}
		return ranked[i].count > ranked[j].count
	})
	topics := make([]string, 0, 5)
	for i := 0; i < len(ranked) && i < 5; i++ {
		topics = append(topics, ranked[i].word)
	}

	// 实体：首字母大写的非句首词
	entities := make([]string, 0, 8)
	seen := map[string]bool{}
	for i, w := range words {
		trimmed := strings.Trim(w, ".,!?;:\"'()")
		if trimmed == "" || i == 0 {
			continue
		}
		if trimmed[0] >= 'A' && trimmed[0] <= 'Z' && !seen[trimmed] {
			seen[trimmed] = true
			entities = append(entities, trimmed)
			if len(entities) == 8 {
				break
			}
		}
	}

	// 情感：简单词表计数
	lower := strings.ToLower(text)
	positive := strings.Count(lower, "good") + strings.Count(lower, "great") + strings.Count(lower, "success")
	negative := strings.Count(lower, "bad") + strings.Count(lower, "fail") + strings.Count(lower, "problem")
	sentiment := "neutral"
	if positive > negative {
		sentiment = "positive"
	} else if negative > positive {
		sentiment = "negative"
	}

	// 复杂度：平均句长分档
	sentences := strings.FieldsFunc(text, func(r rune) bool { return r == '.' || r == '!' || r == '?' })
	complexity := "low"
	if len(sentences) > 0 {
		avg := float64(len(words)) / float64(len(sentences))
		if avg > 25 {
			complexity = "high"
		} else if avg > 12 {
			complexity = "medium"
		}
	}

	return map[string]any{
		"topics":     topics,
		"entities":   entities,
		"sentiment":  sentiment,
		"complexity": complexity,
	}
}

// synthesizeText synthesis 角色：要点、摘要、洞察。
func synthesizeText(text string) map[string]any {
	sentences := strings.FieldsFunc(text, func(r rune) bool { return r == '.' || r == '!' || r == '?' })
	keyPoints := make([]string, 0, 3)
	for _, s := range sentences {
		s = strings.TrimSpace(s)
		if len(s) >= 20 {
			keyPoints = append(keyPoints, s)
			if len(keyPoints) == 3 {
				break
			}
		}
	}

	summary := text
	if len(summary) > 200 {
		summary = summary[:200]
	}

	insights := []string{}
	if len(sentences) > 3 {
		insights = append(insights, fmt.Sprintf("content spans %d statements", len(sentences)))
	}

	return map[string]any{
		"key_points": keyPoints,
		"summary":    summary,
		"insights":   insights,
	}
}

// assessResponse quality 角色：对综合输出打四维分。
func (p *HMRAGPattern) assessResponse(query string, scored []store.ScoredItem) map[string]any {
	text := joinContents(scored)
	relevance := 0.0
	if len(scored) > 0 {
		for _, s := range scored {
			relevance += s.Score
		}
		relevance /= float64(len(scored))
	}
	return map[string]any{
		"accuracy":     accuracyScore(text),
		"completeness": completenessScore(query, text),
		"clarity":      chunkQuality(text),
		"relevance":    clamp01(relevance),
	}
}

// composeResponse 按固定角色顺序拼接标注输出
func composeResponse(results map[string]map[string]any) string {
	var sb strings.Builder
	if syn, ok := results[agentSynthesis]; ok {
		if s, ok := syn["summary"].(string); ok && s != "" {
			sb.WriteString("[synthesis] ")
			sb.WriteString(s)
		}
	}
	if an, ok := results[agentAnalysis]; ok {
		if topics, ok := an["topics"].([]string); ok && len(topics) > 0 {
			if sb.Len() > 0 {
				sb.WriteString("\n\n")
			}
			sb.WriteString("[analysis] topics: ")
			sb.WriteString(strings.Join(topics, ", "))
		}
	}
	if q, ok := results[agentQuality]; ok {
		if sb.Len() > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString(fmt.Sprintf("[quality] relevance=%.2f completeness=%.2f",
			q["relevance"], q["completeness"]))
	}
	return sb.String()
}
