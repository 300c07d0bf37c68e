/*
包 embedding 提供文本嵌入（Embedding）提供者, 将文本转换为向量以支持记忆模块的语义检索.

# 核心类型

  - BaseProvider：公共基类，封装 HTTP 请求与错误映射。
  - OpenAIProvider：OpenAI 兼容的 /v1/embeddings 实现, 默认模型 text-embedding-3-small.
  - Request / Response：批量嵌入的请求与响应模型。

# 使用方式

	provider := embedding.NewOpenAIProvider(embedding.OpenAIConfig{APIKey: "sk-..."}, logger)
	vec, err := provider.Embed(ctx, "搜索关键词")

未配置 APIKey 时所有调用返回 EMBEDDING_UNCONFIGURED 错误.
*/
package embedding
