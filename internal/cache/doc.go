// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 cache 提供基于 Redis 的共享限流窗口存储。

# 概述

当多个网关进程指向同一后端 API 时，进程内限流器无法约束总请求量。
Manager 封装 go-redis 客户端，以 MULTI/EXEC 事务执行 INCR + PEXPIRE，
为 interceptor 包中的分布式固定窗口限流器提供原子计数。

# 核心类型

  - Manager：持有 Redis 客户端，提供 IncrWindow/Reset/Ping/Close。
  - Config：地址、密码、DB、键前缀与连接池参数。

# 错误语义

Close 之后的所有操作返回 ErrClosed。
*/
package cache
