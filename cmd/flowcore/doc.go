/*
Package main 提供 flowcore 命令行入口。

# 概述

cmd/flowcore 装配工作流引擎的全部组件（存储、沙箱、记忆、分发、执行器），
并提供 HTTP/WebSocket 服务和一组管理子命令。配置按默认值、YAML 文件、
FLOWCORE_ 前缀环境变量的顺序覆盖。

# 子命令

  - serve：启动服务，路由包括 POST /agents/{agent_id}/run、
    POST /agents/{agent_id}/simulate、POST /plugins/{plugin_id}/test、
    GET /ws/agents/{agent_id}/run、/health 与 /metrics
  - run：运行已存储的 agent 或本地工作流文件，--trace 逐行输出步骤
  - test：运行工作流并与期望结果比对，不一致时退出码为 1
  - agent / plugin / memory：管理 agent、插件、会话记忆与知识库
  - migrate：postgres/mysql 走 SQL 迁移，sqlite 直接建表
  - health、version、help

# 中间件

Recovery、RequestID、OTelTracing、RequestLogger、SecurityHeaders、
MetricsMiddleware，按此顺序由外到内包裹路由。MetricsMiddleware 以
路由模式作为 path 标签，因此必须直接包裹 ServeMux。

# 配置热更新

serve 指定 --config 时轮询配置文件，变更后只调整日志级别。
*/
package main
