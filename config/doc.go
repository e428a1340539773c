// Copyright 2025-2026 RagFlow Authors. All rights reserved.
// Use of this source code is governed by the project license.

/*
# 概述

Package config 提供 RagFlow 的统一配置：默认值、YAML 文件加载
和环境变量覆盖，优先级为 默认值 → YAML → 环境变量。

EngineConfig 对应检索引擎的不可变配置（模式、分块、top_k、
阈值、功能开关）。engine.Service 构造后不修改它；Reconfigure
以整值替换并使缓存的后端句柄失效。

# 使用方法

	cfg, err := config.NewLoader().
	    WithConfigPath("config.yaml").
	    WithEnvPrefix("RAGFLOW").
	    Load()
*/
package config
