// Copyright 2025-2026 AgentFlow Authors. All rights reserved.
// Use of this source code is governed by the project license.

/*
# 概述

Package openapi 将 OpenAPI 3.x 文档（YAML 或 JSON）解析为只读索引，
供工具生成器与调用运行时按 operationId 或路径快速查找后端操作。

文档先经 sigs.k8s.io/yaml 转为 JSON，再解码为 kin-openapi 的 openapi3.T，
但不使用 kin-openapi 的 Loader，因此引用不会被深度展开。

# 核心接口/类型

  - Index — 按 operationId 与 path→method 组织的只读索引
  - OperationInfo — 单个操作的不可变记录（方法、路径、参数、请求体、标签）
  - ParameterInfo / RequestBodyInfo — 参数与请求体描述

# 主要能力

  - 缺省 operationId 合成为 "{method}_{path}"，冲突时先注册者优先并记录告警
  - 参数与请求体的 $ref 按名称解析一层；无法解析的参数被丢弃而非使加载失败
  - Schema 的 $ref 不展开，降级为 {type: object} 占位（浅解析策略）
  - 路径级参数合并入每个操作（操作级同名参数优先）
  - GetBaseURL 返回第一个 server URL（代入变量默认值），无则返回空串
*/
package openapi
