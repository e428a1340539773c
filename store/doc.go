// Copyright 2025-2026 RagFlow Authors. All rights reserved.
// Use of this source code is governed by the project license.

/*
# 概述

Package store 提供用户级知识行的持久化适配层。

所有写入按归属用户 id 作用域隔离；跨用户读取和删除在本层拒绝
（CROSS_USER_ACCESS），检索模式不做用户检查。每个块/节点作为
独立行原子持久化，本设计不要求跨行事务。

# 后端

  - MemoryStore — 互斥锁 + map，支持余弦相似度检索（测试和小规模场景）
  - GormStore — postgres / mysql / sqlite，向量序列化为 JSON 列
  - MongoStore — mongo 集合，metadata 原生嵌套文档

存储本身不索引向量时（gorm / mongo），相似度检索由 llm.Client
对候选文本在内存中完成；VectorSearcher 是可选能力接口，用类型
断言探测：

	if s, ok := store.(store.VectorSearcher); ok { s.SearchByVector(...) }

# 资源注册

Registrar 把存储的知识条目暴露为可寻址资源，仅用于下游发现。
注册失败只记日志，绝不导致存储操作本身失败。
*/
package store
