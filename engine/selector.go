package engine

import (
	"strings"

	"github.com/BaSui01/ragflow/types"
)

// 复杂度达到该值的查询视为复杂查询
const complexityLine = 0.4

// QueryFeatures 自动模式选择所依据的查询特征。
// 全部是关键词/长度启发式，只保证方向性，不保证精确阈值。
type QueryFeatures struct {
	Length        int     `json:"length"`
	HasQuestion   bool    `json:"has_question"`
	HasReasoning  bool    `json:"has_reasoning"`  // why / how / explain
	HasComparison bool    `json:"has_comparison"` // compare / versus / difference
	HasAnalysis   bool    `json:"has_analysis"`   // analyze / evaluate / assess
	HasAccuracy   bool    `json:"has_accuracy"`   // exact / accurate / precise / fact
	HasReflection bool    `json:"has_reflection"` // verify / check / confirm
	MultiClause   bool    `json:"multi_clause"`
	Complexity    float64 `json:"complexity"`
}

// Complex 报告查询是否达到复杂线
func (f QueryFeatures) Complex() bool { return f.Complexity >= complexityLine }

func containsAny(text string, markers ...string) bool {
	for _, m := range markers {
		if strings.Contains(text, m) {
			return true
		}
	}
	return false
}

// analyzeQuery 提取查询特征并计算复杂度。
// 复杂度 = 五个布尔指标（长查询、推理、比较、多子句、疑问）的命中比例。
func analyzeQuery(query string) QueryFeatures {
	lower := strings.ToLower(query)

	f := QueryFeatures{
		Length:        len(query),
		HasQuestion:   strings.Contains(query, "?"),
		HasReasoning:  containsAny(lower, "why", "how", "explain"),
		HasComparison: containsAny(lower, "compare", "versus", " vs ", "difference between"),
		HasAnalysis:   containsAny(lower, "analyze", "analysis", "evaluate", "assess"),
		HasAccuracy:   containsAny(lower, "exact", "accurate", "precise", "fact"),
		HasReflection: containsAny(lower, "verify", "check", "confirm", "double-check"),
		MultiClause:   containsAny(lower, " and ", ", "),
	}

	hits := 0
	for _, v := range []bool{f.Length >= 80, f.HasReasoning, f.HasComparison, f.MultiClause, f.HasQuestion} {
		if v {
			hits++
		}
	}
	f.Complexity = float64(hits) / 5.0
	return f
}

// selectMode 从查询特征选出模式。空语料一律回落到 Simple，
// 复杂策略在没有任何知识行时只会白费功夫。
func selectMode(f QueryFeatures, emptyCorpus bool) types.Mode {
	if emptyCorpus {
		return types.ModeSimple
	}

	switch {
	case f.Complex() && f.HasReasoning:
		return types.ModePlanRAG
	case f.Complex() && f.HasAnalysis:
		return types.ModeHMRAG
	case f.Complex():
		return types.ModeRaptor
	case f.HasAccuracy:
		return types.ModeCRAG
	case f.HasReflection:
		return types.ModeSelfRAG
	default:
		return types.ModeSimple
	}
}
