// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package workflow 负责组合工具的步骤编排。

# 概述

组合工具的每个步骤以 store_as 作为 DAG 节点标识，depends_on 声明依赖。
Analyze 使用 Kahn 分层拓扑排序把步骤划分为执行层：同层步骤之间无依赖，
可并发执行；层与层之间严格有序。

# 核心接口与类型

  - Analyze / TopologicalSort — 分层分析；环、未知依赖、重复 store_as 均视为环类错误
  - Level                     — 一个执行层，层内顺序与输入顺序一致
  - DAGExecutor               — 逐层执行，层内通过 errgroup 并发
  - StepFunc / StepError      — 单步执行函数与中止错误

# 失败与取消

未开启 partial_results 时，任一步骤失败即取消同层其余步骤并中止整个调用；
开启后失败被记录，依赖它的下游步骤标记为 skipped-due-to-dependency-failure。
调用方取消上下文时丢弃全部结果，直接返回 ctx.Err()。
*/
package workflow
