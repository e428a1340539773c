package engine

import (
	"sync"
	"time"

	"github.com/BaSui01/ragflow/types"
)

// 每个模式保留的耗时历史条数上限
const durationHistoryCap = 100

// Metrics 是 Service 实例持有的性能遥测。所有更新在锁内完成，
// 从不依赖进程级全局状态。
type Metrics struct {
	mu sync.Mutex

	totalQueries   int64
	successQueries int64
	failedQueries  int64

	modeUsage     map[types.Mode]int64
	modeSuccess   map[types.Mode]int64
	modeDurations map[types.Mode][]time.Duration
}

// NewMetrics 创建空遥测
func NewMetrics() *Metrics {
	return &Metrics{
		modeUsage:     make(map[types.Mode]int64),
		modeSuccess:   make(map[types.Mode]int64),
		modeDurations: make(map[types.Mode][]time.Duration),
	}
}

// RecordQuery 记录一次查询。耗时历史每模式最多保留
// durationHistoryCap 条，超出时丢弃最旧的。
func (m *Metrics) RecordQuery(mode types.Mode, success bool, d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.totalQueries++
	if success {
		m.successQueries++
		m.modeSuccess[mode]++
	} else {
		m.failedQueries++
	}
	m.modeUsage[mode]++

	hist := append(m.modeDurations[mode], d)
	if len(hist) > durationHistoryCap {
		hist = hist[len(hist)-durationHistoryCap:]
	}
	m.modeDurations[mode] = hist
}

// ModeStats 单个模式的统计快照
type ModeStats struct {
	Queries     int64         `json:"queries"`
	Successes   int64         `json:"successes"`
	SuccessRate float64       `json:"success_rate"`
	AvgDuration time.Duration `json:"avg_duration"`
}

// PerformanceReport 全量统计快照
type PerformanceReport struct {
	TotalQueries      int64                    `json:"total_queries"`
	SuccessfulQueries int64                    `json:"successful_queries"`
	FailedQueries     int64                    `json:"failed_queries"`
	SuccessRate       float64                  `json:"success_rate"`
	AvgDuration       time.Duration            `json:"avg_duration"`
	ModeStats         map[types.Mode]ModeStats `json:"mode_stats"`
}

// Report 生成当前统计快照
func (m *Metrics) Report() PerformanceReport {
	m.mu.Lock()
	defer m.mu.Unlock()

	report := PerformanceReport{
		TotalQueries:      m.totalQueries,
		SuccessfulQueries: m.successQueries,
		FailedQueries:     m.failedQueries,
		ModeStats:         make(map[types.Mode]ModeStats, len(m.modeUsage)),
	}
	if m.totalQueries > 0 {
		report.SuccessRate = float64(m.successQueries) / float64(m.totalQueries)
	}

	var totalDur time.Duration
	var totalSamples int
	for mode, usage := range m.modeUsage {
		stats := ModeStats{
			Queries:   usage,
			Successes: m.modeSuccess[mode],
		}
		if usage > 0 {
			stats.SuccessRate = float64(stats.Successes) / float64(usage)
		}
		if hist := m.modeDurations[mode]; len(hist) > 0 {
			var sum time.Duration
			for _, d := range hist {
				sum += d
			}
			stats.AvgDuration = sum / time.Duration(len(hist))
			totalDur += sum
			totalSamples += len(hist)
		}
		report.ModeStats[mode] = stats
	}
	if totalSamples > 0 {
		report.AvgDuration = totalDur / time.Duration(totalSamples)
	}
	return report
}
