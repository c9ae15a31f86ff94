// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package main 提供 toolbridge 程序入口。

# 概述

toolbridge 读取一份工具档案与一份 OpenAPI 文档，把档案中声明的工具
通过 MCP stdio 协议暴露给模型客户端。stdout 只承载协议帧，日志写入 stderr。

# 子命令

  - serve：启动 MCP stdio 服务；--watch 在档案或文档变更时重建运行时
  - tools：打印生成的工具 schema
  - call：调用一次工具并以 JSON 打印结果，后端错误时退出码为 2
  - version：显示构建注入的版本信息

# 装配

  - 出站连接池由 internal/tlsutil 构建，跨重载复用
  - rate_limit.backend=redis 时连接 internal/cache，多进程共享限流窗口
  - metrics.listen_addr 非空时由 internal/server 暴露 /healthz；
    metrics.enabled 时 internal/metrics 订阅调用事件并挂载 /metrics
*/
package main
