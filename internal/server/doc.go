// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
包 server 提供 serve 子命令的运维 HTTP 端点。

MCP 会话走 stdio，HTTP 端点只承载运维流量：/healthz 报告当前档案与工具数，
尚未加载工具集时返回 503；/metrics 等路由由调用方在 Start 前通过 Handle 注册。
监听地址可设为 ":0"，Addr 返回实际端口。
*/
package server
