// Copyright 2025-2026 RagFlow Authors. All rights reserved.
// Use of this source code is governed by the project license.

/*
# 概述

Package types 定义 RagFlow 的共享数据模型和统一错误类型。

所有检索模式（pattern 包）和编排服务（engine 包）都通过本包的
类型交换数据：知识条目、查询结果信封、摄取摘要和结构化错误。

# 核心类型

  - Mode — 检索策略标识（simple / raptor / self_rag / crag / plan_rag / hm_rag）
  - KnowledgeItem — 持久化的用户级知识行（文本 + 向量 + 元数据）
  - RAGResult — 所有模式统一返回的查询结果信封
  - IngestSummary — process_document 的摄取摘要
  - Error — 带错误码的结构化错误（支持 errors.Unwrap 链）
*/
package types
