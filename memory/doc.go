/*
包 memory 为工作流运行组装记忆上下文.

Assembler 合并三类来源: 最近对话、知识库检索与历史语义检索,
按时间稳定排序、按内容去重, 再从最新一条向前按 token 上限裁剪.
返回的序列只包含 role 与 content, 按时间升序排列.

# 存储实现

  - InMemoryStore / InMemoryKnowledge：基于余弦距离的内存实现, 用于测试与小规模部署.
  - RedisHistory：以 Redis 列表缓存最近对话, 语义检索与持久化交给下层 HistoryStore.
  - Recorder：计算嵌入向量并持久化一条消息.
*/
package memory
