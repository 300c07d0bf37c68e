package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/BaSui01/flowcore/config"
	"github.com/BaSui01/flowcore/dispatch"
	"github.com/BaSui01/flowcore/internal/cache"
	"github.com/BaSui01/flowcore/internal/database"
	"github.com/BaSui01/flowcore/internal/metrics"
	"github.com/BaSui01/flowcore/internal/pool"
	"github.com/BaSui01/flowcore/internal/telemetry"
	"github.com/BaSui01/flowcore/llm/embedding"
	"github.com/BaSui01/flowcore/llm/tokenizer"
	"github.com/BaSui01/flowcore/memory"
	"github.com/BaSui01/flowcore/runner"
	"github.com/BaSui01/flowcore/sandbox"
	"github.com/BaSui01/flowcore/store"
	"github.com/BaSui01/flowcore/workflow"
)

// =============================================================================
// 🧩 组件装配
// =============================================================================

const tracerName = "github.com/BaSui01/flowcore/workflow"

// app 持有一次进程生命周期内的全部组件
type app struct {
	cfg    *config.Config
	logger *zap.Logger

	registry  *prometheus.Registry
	metrics   *metrics.Collector
	telemetry *telemetry.Providers

	pool    *database.PoolManager
	cache   *cache.Manager
	workers *pool.WorkerPool
	sandbox *sandbox.Sandbox

	workflows *store.WorkflowStore
	plugins   *store.PluginStore
	messages  *store.MemoryStore
	logs      *store.ExecutionLogSink

	embedder  memory.Embedder
	history   memory.HistoryStore
	recorder  *memory.Recorder
	assembler *memory.Assembler
	limiter   *dispatch.Limiter

	executor *workflow.Executor
	logged   *runner.Logged
	tester   *runner.Tester
}

// newApp 按配置装配组件。sqlite 驱动下自动建表，其余驱动依赖 migrate up。
func newApp(cfg *config.Config, logger *zap.Logger) (_ *app, err error) {
	a := &app{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			a.Close(context.Background())
		}
	}()

	a.registry = prometheus.NewRegistry()
	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	a.metrics = metrics.NewCollector("flowcore", a.registry, logger)

	a.telemetry, err = telemetry.Init(cfg.Telemetry, logger)
	if err != nil {
		logger.Warn("failed to initialize telemetry", zap.Error(err))
		err = nil
	}

	if err = a.openDatabase(); err != nil {
		return nil, err
	}

	if cfg.Redis.Addr != "" && cfg.Memory.RecentCacheTTL > 0 {
		a.cache, err = cache.NewManager(cache.Config{
			Addr:                cfg.Redis.Addr,
			Password:            cfg.Redis.Password,
			DB:                  cfg.Redis.DB,
			DefaultTTL:          cfg.Memory.RecentCacheTTL,
			MaxRetries:          3,
			PoolSize:            cfg.Redis.PoolSize,
			HealthCheckInterval: 30 * time.Second,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("connect redis: %w", err)
		}
	}

	a.workers = pool.NewWorkerPool(pool.WorkerPoolConfig{MaxWorkers: cfg.Sandbox.MaxWorkers})
	sbCfg := sandbox.DefaultConfig()
	sbCfg.Timeout = cfg.Sandbox.Timeout
	sbCfg.LogPreviewChars = cfg.Sandbox.LogPreviewChars
	if cfg.Sandbox.CallStackSize > 0 {
		sbCfg.CallStackSize = cfg.Sandbox.CallStackSize
	}
	if cfg.Sandbox.RegistryMaxSize > 0 {
		sbCfg.RegistryMaxSize = cfg.Sandbox.RegistryMaxSize
	}
	if cfg.Sandbox.MaxStringBytes > 0 {
		sbCfg.MaxStringBytes = cfg.Sandbox.MaxStringBytes
	}
	if cfg.Sandbox.MaxMemoryBytes > 0 {
		sbCfg.MaxMemoryBytes = cfg.Sandbox.MaxMemoryBytes
	}
	a.sandbox = sandbox.New(sbCfg, a.workers, logger, sandbox.WithMetrics(a.metrics))

	db := a.pool.DB()
	a.workflows = store.NewWorkflowStore(db, logger)
	a.plugins = store.NewPluginStore(db, a.sandbox, logger)
	a.messages = store.NewMemoryStore(db, logger)
	a.logs = store.NewExecutionLogSink(db, logger)

	a.embedder = embedding.NewOpenAIProvider(embedding.OpenAIConfig{
		APIKey:  cfg.Embedding.APIKey,
		BaseURL: cfg.Embedding.BaseURL,
		Model:   cfg.Embedding.Model,
		Timeout: cfg.Embedding.Timeout,
	}, logger)

	a.history = a.messages
	var writer memory.HistoryWriter = a.messages
	if a.cache != nil {
		rhCfg := memory.DefaultRedisHistoryConfig()
		rhCfg.TTL = cfg.Memory.RecentCacheTTL
		cached := memory.NewRedisHistory(a.cache, a.messages, rhCfg, logger)
		a.history, writer = cached, cached
	}
	a.recorder = memory.NewRecorder(a.embedder, writer, logger)

	a.assembler = memory.NewAssembler(a.embedder, a.history, newTokenizer(cfg.Memory), memory.Config{
		DistanceThreshold: cfg.Memory.DistanceThreshold,
		TokenCeiling:      cfg.Memory.TokenCeiling,
	}, logger, memory.WithKnowledge(a.messages.Knowledge()), memory.WithMetrics(a.metrics))

	if cfg.Dispatch.RateLimitRPS > 0 {
		a.limiter = dispatch.NewLimiter(cfg.Dispatch.RateLimitRPS, cfg.Dispatch.RateLimitBurst)
	}

	a.executor = a.newExecutor(a.workflows, true)
	a.logged = runner.NewLogged(a.executor, a.workflows, a.logs, runner.Config{
		MaxOutputBytes: cfg.Runlog.MaxOutputBytes,
	}, logger)
	a.tester = runner.NewTester(a.executor, logger)

	return a, nil
}

func (a *app) openDatabase() error {
	dbCfg := a.cfg.Database
	db, err := database.Open(dbCfg.Driver, dbCfg.DSN(), a.logger)
	if err != nil {
		return err
	}
	if err := database.InstrumentQueries(db, a.metrics); err != nil {
		return fmt.Errorf("instrument queries: %w", err)
	}

	poolCfg := database.DefaultPoolConfig()
	poolCfg.MaxOpenConns = dbCfg.MaxOpenConns
	poolCfg.MaxIdleConns = dbCfg.MaxIdleConns
	poolCfg.ConnMaxLifetime = dbCfg.ConnMaxLifetime
	if dbCfg.Driver == database.DriverSQLite {
		// sqlite 只允许单写连接
		poolCfg.MaxOpenConns, poolCfg.MaxIdleConns = 1, 1
	}
	a.pool, err = database.NewPoolManager(db, poolCfg, a.logger, database.WithPoolMetrics(a.metrics))
	if err != nil {
		return err
	}

	if dbCfg.Driver == database.DriverSQLite {
		if err := store.AutoMigrate(db); err != nil {
			return fmt.Errorf("auto migrate: %w", err)
		}
	}
	return nil
}

// newExecutor 构造执行器。checkAgents 为 false 时（文件工作流）不校验 agent 归属。
func (a *app) newExecutor(s workflow.Store, checkAgents bool) *workflow.Executor {
	opts := []dispatch.Option{
		dispatch.WithPlugins(a.plugins, a.sandbox),
		dispatch.WithMetrics(a.metrics),
	}
	if checkAgents {
		opts = append(opts, dispatch.WithAgents(a.workflows))
	}
	if a.limiter != nil {
		opts = append(opts, dispatch.WithLimiter(a.limiter))
	}
	d := dispatch.New(dispatch.Config{
		BaseURL:         a.cfg.Dispatch.BaseURL,
		APIKeyPrefix:    a.cfg.Dispatch.APIKeyPrefix,
		Timeout:         a.cfg.Dispatch.Timeout,
		DefaultTenantID: a.cfg.Dispatch.DefaultTenantID,
	}, a.logger, opts...)

	return workflow.NewExecutor(s, d, a.logger,
		workflow.WithConfig(workflow.ExecutorConfig{
			MaxSteps:           a.cfg.Engine.MaxSteps,
			ConditionMaxLength: a.cfg.Engine.ConditionMaxLength,
			ChatK:              a.cfg.Memory.ChatK,
			SemanticK:          a.cfg.Memory.SemanticK,
		}),
		workflow.WithMemory(a.assembler),
		workflow.WithTracer(a.telemetry.Tracer(tracerName)),
		workflow.WithMetrics(a.metrics),
	)
}

// newTokenizer uses tiktoken for known OpenAI models and the estimator,
// sized to the token ceiling, for anything else.
func newTokenizer(cfg config.MemoryConfig) tokenizer.Tokenizer {
	reg := tokenizer.NewRegistry()
	tokenizer.RegisterOpenAITokenizers(reg)
	if t, err := reg.Get(cfg.TokenizerModel); err == nil {
		return t
	}
	return tokenizer.NewEstimatorTokenizer(cfg.TokenizerModel, cfg.TokenCeiling)
}

// Close 释放全部资源，可重复调用
func (a *app) Close(ctx context.Context) error {
	var errs []error
	if a.workers != nil {
		errs = append(errs, a.workers.Close(ctx))
		a.workers = nil
	}
	if a.cache != nil {
		errs = append(errs, a.cache.Close())
		a.cache = nil
	}
	if a.pool != nil {
		errs = append(errs, a.pool.Close())
	}
	if a.telemetry != nil {
		errs = append(errs, a.telemetry.Shutdown(ctx))
		a.telemetry = nil
	}
	return errors.Join(errs...)
}
