// Copyright 2025-2026 RagFlow Authors. All rights reserved.
// Use of this source code is governed by the project license.

/*
包 metrics 提供基于 Prometheus 的指标采集能力，覆盖查询、摄取、
混合查询、缓存与模式推荐五大维度。

# 概述

本包通过 Collector 统一注册和记录 Prometheus 指标，使用 promauto
工厂挂接到调用方给定的 Registerer（缺省为默认注册表）。所有指标
按 namespace 隔离，支持多维度 label 分组，便于 Grafana 等工具进行
可视化与告警。

# 核心类型

  - Collector：指标收集器，持有 Counter、Histogram 向量指标，
    按业务域分组管理。

# 主要能力

  - 查询指标：查询总数与耗时直方图，按 mode/status 分组。
  - 摄取指标：摄取总数与耗时、入库/失败块计数，按 mode 分组。
  - 混合查询指标：混合查询总数、每次扇出的模式数分布。
  - 缓存指标：命中与未命中计数，按 cache_type 分组。
  - 推荐指标：自动模式推荐计数，按 mode 分组。
*/
package metrics
