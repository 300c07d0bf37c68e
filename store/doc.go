/*
包 store 提供基于 GORM 的持久化实现.

# 核心类型

  - WorkflowStore：按 Agent 保存工作流图与 use_memory 开关, 实现 workflow.Store
    与 dispatch.AgentSource。
  - PluginStore：租户插件的增删改查, 创建时先经过沙箱校验, 实现 dispatch.PluginSource。
  - MemoryStore：消息历史与知识片段, 嵌入向量以 JSON 数组保存, 距离在 Go 中计算。
  - ExecutionLogSink：把 runner.LogEntry 写入 execution_log 表。

PostgreSQL 与 MySQL 的表结构由 internal/migration 管理; SQLite 使用 AutoMigrate.
*/
package store
