// Copyright 2025-2026 RagFlow Authors. All rights reserved.
// Use of this source code is governed by the project license.

/*
包 cache 提供基于 Redis 的缓存能力，包括通用的键值管理器与
面向查询结果的专用缓存。

# 概述

本包封装 go-redis 客户端，为引擎提供统一的缓存读写接口。
Manager 负责连接生命周期管理；QueryCache 在其上按
(用户, 模式, 查询) 缓存成功的查询结果，失败结果一律不缓存。

# 核心类型

  - Manager：缓存管理器，持有 Redis 客户端与连接池配置，
    提供 Get/Set/Delete 基础操作与 GetJSON/SetJSON 序列化方法。
  - Config：缓存配置，包含地址、密码、连接池大小与默认 TTL。
  - QueryCache：查询结果缓存，键带世代号，Invalidate 提升世代
    即可令全部旧条目失效，无需扫描删除。

# 主要能力

  - 键值读写：支持字符串与 JSON 两种模式的缓存存取。
  - 连接池管理：通过 PoolSize 与 MinIdleConns 控制连接复用。
  - 查询缓存：仅缓存成功结果，按用户/模式/查询文本隔离。
  - 错误语义：提供 ErrCacheMiss 哨兵错误与 IsCacheMiss 判断函数。
*/
package cache
