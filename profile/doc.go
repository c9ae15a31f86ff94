// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package profile 负责加载并校验工具配置档案（profile）。

档案以 YAML 描述一个后端 API 暴露给模型的全部工具及拦截器策略。
Decode 只做结构解码（拒绝未知字段），Validate 做语义检查：

  - 工具名唯一且非空
  - operations 与 composite 步骤二选一
  - 组合工具的步骤图必须无环，依赖必须存在
  - required_for 只能引用已声明的 action
  - 拦截器配置（认证方式、限流动作与策略、重试参数、数组格式）合法

所有问题一次性汇总为 PROFILE_LOGIC 错误；步骤图错误作为 Cause 保留。
*/
package profile
