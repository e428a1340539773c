// =============================================================================
// 📚 测试语料
// =============================================================================
// 模式与引擎测试共享的示例文档
// =============================================================================
package fixtures

// AppleDoc 单段短文档，摄取后查询 "Who founded Apple?" 应命中。
const AppleDoc = "Apple Inc. was founded in 1976 by Steve Jobs. " +
	"The company started in a garage in Los Altos, California. " +
	"Steve Wozniak designed the Apple I computer."

// GoDoc 多段文档，足以在默认块大小下切成多块。
const GoDoc = `Go is a statically typed, compiled programming language designed at Google. It is syntactically similar to C, but with memory safety, garbage collection, structural typing, and CSP-style concurrency. Go was designed by Robert Griesemer, Rob Pike, and Ken Thompson.

Goroutines are lightweight threads managed by the Go runtime. Channels are typed conduits through which goroutines communicate. The select statement lets a goroutine wait on multiple communication operations at once.

The Go standard library provides packages for networking, cryptography, text processing, and much more. The gofmt tool enforces a single canonical formatting style across all Go source code. Modules are the unit of dependency management in modern Go projects.

Error handling in Go is explicit: functions return error values that callers must check. There are no exceptions for ordinary control flow. The defer statement schedules a function call to run when the surrounding function returns, commonly used for cleanup.`

// ClimateDoc 主题与 AppleDoc / GoDoc 无关，用于验证检索隔离。
const ClimateDoc = "Rising global temperatures affect ocean currents and polar ice. " +
	"Renewable energy adoption reduces carbon emissions over time. " +
	"Reforestation captures atmospheric carbon in biomass."
