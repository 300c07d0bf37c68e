package tokenizer

import (
	"fmt"
	"strings"
	"sync"
)

// Tokenizer 是记忆预算使用的 token 计数接口. 预算只计消息内容,
// 不计角色标记等开销.
type Tokenizer interface {
	// CountTokens 返回给定文本的 token 数.
	CountTokens(text string) (int, error)

	// MaxTokens 返回模型的最大上下文长度, 记忆预算不会超过它.
	MaxTokens() int

	// Name 返回分词器的名称.
	Name() string
}

// Registry 按模型名称保存分词器. 零值不可用, 请使用 NewRegistry.
type Registry struct {
	mu         sync.RWMutex
	tokenizers map[string]Tokenizer
}

// NewRegistry 创建空的分词器注册表.
func NewRegistry() *Registry {
	return &Registry{tokenizers: make(map[string]Tokenizer)}
}

// Register 为给定的模型名称注册分词器.
func (r *Registry) Register(model string, t Tokenizer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tokenizers[model] = t
}

// Get 返回为给定模型注册的分词器.
// 没有精确匹配时取最长的前缀匹配(如 "gpt-4o-2024-08-06" 匹配 "gpt-4o").
func (r *Registry) Get(model string) (Tokenizer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if t, ok := r.tokenizers[model]; ok {
		return t, nil
	}

	var (
		best    Tokenizer
		bestLen int
	)
	for prefix, t := range r.tokenizers {
		if strings.HasPrefix(model, prefix) && len(prefix) > bestLen {
			best, bestLen = t, len(prefix)
		}
	}
	if best != nil {
		return best, nil
	}
	return nil, fmt.Errorf("no tokenizer registered for model: %s", model)
}

// GetOrEstimator 返回该模型的注册分词器,
// 如果没有登记, 则回退到通用估算器。
func (r *Registry) GetOrEstimator(model string) Tokenizer {
	t, err := r.Get(model)
	if err != nil {
		return NewEstimatorTokenizer(model, 0)
	}
	return t
}
