// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package types 提供 toolbridge 网关的全局共享类型定义。

# 概述

types 是最底层的公共包，不依赖任何内部包，为 openapi、interceptor、
toolgen、workflow、runtime 等上层模块提供统一的类型契约，以避免循环依赖。

# 核心接口与类型

  - Profile / ToolDefinition — 声明式工具配置（简单工具、多动作工具、组合工具）
  - CompositeStep            — 组合工具中的单个后端调用（store_as 即 DAG 节点 ID）
  - InterceptorConfig        — 认证、Base URL、限流、重试、数组序列化策略
  - SchemaInfo               — 结构化 Schema 子集（共享引用浅解析为 object 占位）
  - ToolSchema / ToolInputSchema — 交给协议层的工具声明
  - ToolResult / StepResult  — 调用结果与组合步骤结果
  - Error / ErrorCode        — 结构化错误体系（加载期错误与调用期错误）

# 主要能力

  - 错误工具链：AsError / IsCode / IsRetryable / IsCallerError
  - 常用错误构造：NewRateLimitError / NewNetworkError
*/
package types
