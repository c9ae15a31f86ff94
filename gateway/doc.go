// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package gateway 是工具调用运行时，把一次模型工具调用翻译为后端 HTTP 请求。

Runtime 在构造时校验档案、构建共享的拦截器流水线并生成工具 schema；
之后只读，可被并发调用。

调用流程：

  - 填充参数默认值，校验必填、条件必填与枚举
  - 简单工具：action / resource_type 映射到 operationId，按参数位置绑定
    path / query / header / cookie / body，经流水线发送
  - 组合工具：按依赖分层并发执行步骤，步骤参数支持
    {{args.<path>}} 与 {{steps.<store_as>.<path>}} 模板

参数错误在发出任何网络请求之前返回；后端 4xx/5xx 作为 IsError 结果返回，
不是 Go 错误。每次后端调用通过 Hooks 上报，供指标采集使用。
*/
package gateway
