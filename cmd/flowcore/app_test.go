package main

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/BaSui01/flowcore/config"
	"github.com/BaSui01/flowcore/llm/tokenizer"
	"github.com/BaSui01/flowcore/store"
	"github.com/BaSui01/flowcore/types"
	"github.com/BaSui01/flowcore/workflow"
)

// newTestApp 基于内存 sqlite 装配完整组件
func newTestApp(t *testing.T, mutate func(*config.Config)) *app {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Database.Driver = "sqlite"
	cfg.Database.Name = ":memory:"
	cfg.Memory.TokenizerModel = ""
	cfg.Sandbox.MaxWorkers = 2
	if mutate != nil {
		mutate(cfg)
	}
	require.NoError(t, cfg.Validate())

	a, err := newApp(cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close(context.Background()) })
	return a
}

func sumGraph(pluginID string) workflow.Graph {
	return workflow.Graph{
		Nodes: []workflow.Node{
			{ID: "sum", Type: "plugin:" + pluginID},
			{ID: "big", Type: "plugin:" + pluginID},
			{ID: "small", Type: "plugin:" + pluginID},
		},
		Edges: []workflow.Edge{
			{Source: "sum", Target: "big", Condition: `output["sum"] > 5`},
			{Source: "sum", Target: "small", Condition: `output["sum"] <= 5`},
		},
	}
}

const sumPlugin = `output = {sum = sum(input.context.values)}`

// seedAgent 创建 agent、插件并保存求和工作流
func seedAgent(t *testing.T, a *app, tenantID string) string {
	t.Helper()
	ctx := withTenant(context.Background(), tenantID)
	agent, err := a.workflows.CreateAgent(ctx, tenantID, "summer")
	require.NoError(t, err)
	p, err := a.plugins.Create(ctx, store.NewPlugin{TenantID: tenantID, Name: "sum", Code: sumPlugin})
	require.NoError(t, err)
	require.NoError(t, a.workflows.Save(ctx, agent.ID, sumGraph(p.ID)))
	return agent.ID
}

func TestNewApp_SQLite(t *testing.T) {
	a := newTestApp(t, nil)

	assert.Nil(t, a.cache, "redis is optional")
	assert.NotNil(t, a.limiter)
	assert.Same(t, a.messages, a.history)
	require.NoError(t, a.pool.Ping(context.Background()))

	for _, table := range []string{"agent", "plugin", "message_history", "knowledge_chunk", "execution_log"} {
		assert.True(t, a.pool.DB().Migrator().HasTable(table), table)
	}
}

func TestNewApp_NoRateLimit(t *testing.T) {
	a := newTestApp(t, func(c *config.Config) { c.Dispatch.RateLimitRPS = 0 })
	assert.Nil(t, a.limiter)
}

func TestNewApp_BadDriver(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Database.Driver = "oracle"
	_, err := newApp(cfg, zaptest.NewLogger(t))
	require.Error(t, err)
}

func TestApp_CloseTwice(t *testing.T) {
	a := newTestApp(t, nil)
	require.NoError(t, a.Close(context.Background()))
	assert.NoError(t, a.Close(context.Background()))
}

func TestNewTokenizer(t *testing.T) {
	_, ok := newTokenizer(config.MemoryConfig{TokenCeiling: 100}).(*tokenizer.EstimatorTokenizer)
	assert.True(t, ok)
	_, ok = newTokenizer(config.MemoryConfig{TokenizerModel: "gpt-4o"}).(*tokenizer.TiktokenTokenizer)
	assert.True(t, ok)

	dated := newTokenizer(config.MemoryConfig{TokenizerModel: "gpt-4o-2024-08-06"})
	assert.Equal(t, "tiktoken[o200k_base]", dated.Name())

	other := newTokenizer(config.MemoryConfig{TokenizerModel: "local-llama", TokenCeiling: 1800})
	assert.Equal(t, "estimator", other.Name())
	assert.Equal(t, 1800, other.MaxTokens())
}

func TestFileExecutor(t *testing.T) {
	a := newTestApp(t, nil)
	_, _, err := a.fileExecutor("does-not-exist.yaml", false)
	assert.Error(t, err)
}

func TestApp_PluginTimeoutFailsOnlyItsNode(t *testing.T) {
	a := newTestApp(t, func(c *config.Config) { c.Sandbox.Timeout = 200 * time.Millisecond })
	ctx := withTenant(context.Background(), "t1")

	agent, err := a.workflows.CreateAgent(ctx, "t1", "looper")
	require.NoError(t, err)
	spin, err := a.plugins.Create(ctx, store.NewPlugin{TenantID: "t1", Name: "spin", Code: "while true do end"})
	require.NoError(t, err)
	sum, err := a.plugins.Create(ctx, store.NewPlugin{TenantID: "t1", Name: "sum", Code: sumPlugin})
	require.NoError(t, err)
	require.NoError(t, a.workflows.Save(ctx, agent.ID, workflow.Graph{
		Nodes: []workflow.Node{
			{ID: "spin", Type: "plugin:" + spin.ID},
			{ID: "after", Type: "plugin:" + sum.ID},
			{ID: "sum", Type: "plugin:" + sum.ID},
		},
		Edges: []workflow.Edge{{Source: "spin", Target: "after"}},
	}))

	result, trace, err := workflow.Collect(a.executor.Stream(ctx, agent.ID,
		map[string]any{"values": []any{1, 2, 3}}, ""))
	require.NoError(t, err)
	require.Len(t, trace, 3)

	assert.Equal(t, workflow.StepError, trace[0].Status)
	assert.Contains(t, trace[0].Output.(map[string]any)["error"], string(types.ErrSandboxTimeout))
	assert.Equal(t, workflow.StepSkipped, trace[1].Status)
	assert.Equal(t, workflow.SkipNoUpstream, trace[1].Reason)
	assert.Equal(t, workflow.StepSuccess, trace[2].Status)
	assert.Equal(t, map[string]any{"sum": int64(6)}, result.Steps["sum"])
}
