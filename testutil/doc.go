// Copyright 2025-2026 RagFlow Authors. All rights reserved.
// Use of this source code is governed by the project license.

/*
Package testutil 提供 RagFlow 测试的共享工具和辅助函数。

# 概述

testutil 包为整个项目的单元测试与基准测试提供统一的辅助能力，
避免各包重复实现相似的测试基础设施。

# 核心能力

  - 上下文辅助: TestContext / TestContextWithTimeout / CancelledContext，
    自动注册 Cleanup 防止泄漏
  - 断言工具: AssertNoError / AssertError / AssertContains /
    AssertEventuallyTrue，支持超时轮询等待条件满足
  - 数据工具: MustJSON / MustParseJSON，简化测试数据构造

# 子包

  - testutil/mocks: Mock 实现，包括 MockEmbedder（确定性词袋哈希
    向量，相似文本产生相似向量）、MockGenerator（模板回显）以及
    对应的失败注入变体，用于错误路径测试
  - testutil/fixtures: 测试语料
*/
package testutil
