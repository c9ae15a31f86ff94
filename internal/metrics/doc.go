// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
包 metrics 提供基于 Prometheus 的后端调用指标采集能力。

# 概述

Collector 实现 gateway.Hooks，订阅运行时上报的每一次后端调用；
使用 promauto.With 注册到独立的 Registry，所有指标按 namespace 隔离。

# 指标

  - calls_total：按 tool/operation/status_class/error_type 计数
  - call_duration_seconds：按 tool/operation 的调用耗时（含重试）
  - retries_total：按触发重试的状态码计数，网络错误记为 network

Handler 暴露 Prometheus 文本格式，供 serve 子命令挂载到 /metrics。
*/
package metrics
