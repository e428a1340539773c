package types

import "fmt"

// Mode 标识一种检索增强生成策略。
// 模式集合是封闭的：engine.NewService 构造时注册全部六种实现，
// 运行期不支持动态注册。
type Mode string

const (
	ModeSimple  Mode = "simple"   // 基线：分块 → 嵌入 → 检索 → 生成
	ModeRaptor  Mode = "raptor"   // 层次树：叶子聚类 + 逐层摘要
	ModeSelfRAG Mode = "self_rag" // 自反思：生成后自评，一次精炼
	ModeCRAG    Mode = "crag"     // 质量评估：逐候选打分过滤
	ModePlanRAG Mode = "plan_rag" // 结构化推理：按复杂度生成执行计划
	ModeHMRAG   Mode = "hm_rag"   // 多智能体：检索/分析/综合/质量四角色协作
)

// AllModes 返回全部已知模式（固定顺序）。
func AllModes() []Mode {
	return []Mode{ModeSimple, ModeRaptor, ModeSelfRAG, ModeCRAG, ModePlanRAG, ModeHMRAG}
}

// ParseMode 解析模式字符串。未知模式返回 UNSUPPORTED_MODE 错误。
func ParseMode(s string) (Mode, error) {
	m := Mode(s)
	for _, known := range AllModes() {
		if m == known {
			return m, nil
		}
	}
	return "", NewError(ErrUnsupportedMode, fmt.Sprintf("unknown mode %q, available: %v", s, AllModes()))
}

// Valid 报告模式是否属于封闭集合。
func (m Mode) Valid() bool {
	_, err := ParseMode(string(m))
	return err == nil
}

// String implements fmt.Stringer.
func (m Mode) String() string { return string(m) }
