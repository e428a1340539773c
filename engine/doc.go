// Copyright 2025-2026 RagFlow Authors. All rights reserved.
// Use of this source code is governed by the project license.

/*
包 engine 是 RagFlow 的编排层：持有全部六种检索模式的实例，
对外暴露统一的摄取、查询与混合查询入口。

# 概述

Service 在构造时建好模式注册表（封闭集合，运行期不可扩展），
查询按显式模式、自动选择或默认模式三级解析后分发到对应实现。
混合查询并发扇出到多个模式，按启发式置信度融合各模式输出，
单个模式失败不影响整体结果。

# 主要能力

  - ProcessDocument / Query / HybridQuery：统一契约入口。
  - 自动模式选择：基于查询特征（长度、推理/比较/分析标记、
    复杂度）推荐模式；空语料强制 Simple。
  - 性能遥测：Metrics 为 Service 实例持有的锁保护值，
    记录总量、逐模式用量与耗时历史，按需生成快照。
  - 可选查询缓存与 Prometheus 指标：通过 Option 注入。
  - 知识管理：删除（级联注销）、元数据更新与统计透传。
*/
package engine
