/*
Package types 提供 flowcore 引擎的全局共享类型定义。

# 概述

types 是最底层的公共包，不依赖任何内部包，为 workflow、sandbox、memory、
dispatch 等上层模块提供统一的类型契约。

# 核心类型

  - Error / ErrorCode: 结构化错误体系，含 HTTP 状态码与 Retryable 标记
  - Message / Role   : 记忆上下文中的 role/content 条目
  - Context 传播     : WithTenantID（存储与调度的租户范围）、WithTraceID（HTTP
    X-Request-ID）、WithRunID（runner.Logged 为每次运行生成，亦为执行日志主键）；
    执行器日志带 run_id / trace_id 字段

# 错误分类

  - GRAPH_*    : 图结构错误（未知节点、重复节点、环、步数上限），400
  - CONDITION_*: 守卫表达式错误，400
  - SANDBOX_*  : 插件沙箱错误（含超时与内存上限），仅使该节点失败，运行继续
  - DISPATCH_* : 远程工具调用失败，502 / 500
  - EXECUTOR_* : 执行器请求级错误

IsClientError 区分调用方错误与基础设施错误，用于执行日志的状态分类。
*/
package types
