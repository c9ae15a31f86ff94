// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package interceptor 实现出站 HTTP 调用的弹性管线。

# 概述

每次后端调用依次经过固定顺序的中间件：

	base URL → auth → array serialization → rate limit → retry → send

前四层是 Chain 中的 Middleware，最后的重试与发送由 go-retryablehttp
客户端完成。网络能力以 http.RoundTripper 注入（WithTransport），
测试中可直接替换为假实现。

# 核心接口/类型

  - Pipeline — 对外暴露 Request(ctx, method, path, opts)，任意 HTTP 状态码都作为正常结果返回
  - Chain / Middleware / Handler — 请求变换与短路
  - Limiter — 固定窗口、滑动窗口、令牌桶（golang.org/x/time/rate）与基于 Redis 的共享窗口
  - RetryPolicy — 总尝试次数、退避列表（超出长度取最后一个）、可重试状态码

# 主要能力

  - 凭据在每次调用及每次重试前从环境变量重新读取，轮换无需重载
  - 数组查询参数按 brackets / indices / repeat / comma 序列化
  - 超限策略可配置：reject 立即返回 RATE_LIMITED，wait 阻塞至窗口重置
  - 重试耗尽后原样返回最后一次响应或传输错误
*/
package interceptor
