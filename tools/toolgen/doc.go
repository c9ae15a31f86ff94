// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package toolgen 将 profile 中的声明式工具定义转换为可调用工具的输入 Schema，
并负责调用参数校验与 action → operationId 映射。

  - GenerateSchema：每个参数一个属性，required 只包含无条件必填参数；
    required_for 以 " (required for: a, b)" 后缀写入属性描述
  - ValidateArguments：按参数名排序，依次检查缺失必填、条件必填与枚举值
  - MapActionToOperation：单操作工具无需 action；否则先查 "{action}_{resource_type}"，
    再查 action，找不到返回 false
*/
package toolgen
