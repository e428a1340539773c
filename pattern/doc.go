// Copyright 2025-2026 RagFlow Authors. All rights reserved.
// Use of this source code is governed by the project license.

// Package pattern 实现六种可互换的检索增强生成策略。
//
// 每个策略（模式）实现同一个两操作契约：ProcessDocument 负责
// 切块、嵌入、入库；Query 负责检索、按策略加工、生成答案。
// Query 永不向边界外抛错误：所有失败路径落在
// RAGResult{Success: false} 里，这样 engine 的混合查询扇出
// 不会被单个失败分支中断。
//
//   - Simple   基线：检索 top-k 拼上下文后生成
//   - RAPTOR   层级树：摘要层与叶子层双路检索合并
//   - Self-RAG 自反思：一次有界的答案评分与精炼
//   - CRAG     质量评估：过检索 + 逐条质量过滤
//   - Plan*RAG 结构化推理：按复杂度构建并顺序执行推理计划
//   - HM-RAG   多智能体：四角色依赖 DAG 顺序协作
package pattern
