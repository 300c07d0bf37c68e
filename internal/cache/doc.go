/*
包 cache 提供基于 Redis 的有界列表缓存, 供记忆模块缓存最近对话.

# 核心类型

  - Manager：持有 Redis 客户端, 负责连接检查、后台健康检查与关闭.
  - Config：地址、密码、连接池大小、默认 TTL 与健康检查间隔.

# 主要能力

  - Range：读取列表头部 n 个元素.
  - PushExisting：仅在列表已缓存时插入新元素并裁剪长度.
  - Fill：整体替换列表内容(缓存预热).
  - 错误语义：关闭后所有操作返回 ErrClosed.
*/
package cache
