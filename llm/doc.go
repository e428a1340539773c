// Copyright 2025-2026 RagFlow Authors. All rights reserved.
// Use of this source code is governed by the project license.

/*
# 概述

Package llm 是检索引擎对嵌入/生成后端的唯一出口。

所有模式通过 Client 门面访问后端能力：embed（文本 → 向量）、
chunk（文本 → 有序块）、search（查询 + 候选文本 → 排序打分）、
rerank（查询 + 文档 → 重排序）、generate（提示词 → 补全）。

# 核心接口/类型

  - EmbeddingProvider / GenerationProvider / RerankProvider — 后端提供者接口
  - OpenAIProvider — OpenAI 兼容端点实现（嵌入 + 生成）
  - CohereReranker — Cohere 兼容重排序实现
  - Client — 统一门面，带限流和空向量校验
  - Chunker — 递归分块器（句子边界感知 + 重叠）
  - Tokenizer — 分块专用分词器（tiktoken / 字符估算）

失败约定：空或 nil 的嵌入向量一律视为信号性失败（EMBEDDING_FAILED），
绝不是合法的零长向量。
*/
package llm
