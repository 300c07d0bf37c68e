// Package metrics provides internal metrics collection.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// =============================================================================
// 📊 指标收集器
// =============================================================================

// Collector 指标收集器。所有 Record* 方法对 nil 接收者安全。
type Collector struct {
	// HTTP 指标
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// 工作流指标
	workflowRunsTotal   *prometheus.CounterVec
	workflowRunDuration *prometheus.HistogramVec
	workflowStepsTotal  *prometheus.CounterVec
	workflowStepLatency *prometheus.HistogramVec

	// 沙箱指标
	sandboxRunsTotal   *prometheus.CounterVec
	sandboxRunDuration prometheus.Histogram

	// 工具分发指标
	dispatchRequestsTotal   *prometheus.CounterVec
	dispatchRequestDuration *prometheus.HistogramVec

	// 记忆组装指标
	memoryAssemblyDuration prometheus.Histogram
	memoryEntries          prometheus.Histogram
	memoryTokens           prometheus.Histogram

	// 数据库指标
	dbConnectionsOpen *prometheus.GaugeVec
	dbConnectionsIdle *prometheus.GaugeVec
	dbQueryDuration   *prometheus.HistogramVec

	logger *zap.Logger
}

// NewCollector 创建指标收集器。reg 为 nil 时注册到默认 Registry。
func NewCollector(namespace string, reg prometheus.Registerer, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	// HTTP 指标
	c.httpRequestsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	c.httpRequestDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// 工作流指标
	c.workflowRunsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "workflow_runs_total",
			Help:      "Total number of workflow runs",
		},
		[]string{"status"},
	)

	c.workflowRunDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "workflow_run_duration_seconds",
			Help:      "Workflow run duration in seconds",
			Buckets:   []float64{.05, .1, .5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"status"},
	)

	c.workflowStepsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "workflow_steps_total",
			Help:      "Total number of workflow steps by tool and status",
		},
		[]string{"tool", "status"},
	)

	c.workflowStepLatency = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "workflow_step_duration_seconds",
			Help:      "Workflow step duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"tool"},
	)

	// 沙箱指标
	c.sandboxRunsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sandbox_runs_total",
			Help:      "Total number of plugin sandbox runs",
		},
		[]string{"status"},
	)

	c.sandboxRunDuration = factory.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "sandbox_run_duration_seconds",
			Help:      "Plugin sandbox run duration in seconds",
			Buckets:   []float64{.001, .01, .05, .1, .5, 1, 2, 5, 10},
		},
	)

	// 工具分发指标
	c.dispatchRequestsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dispatch_requests_total",
			Help:      "Total number of tool dispatch requests",
		},
		[]string{"route", "status"},
	)

	c.dispatchRequestDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "dispatch_request_duration_seconds",
			Help:      "Tool dispatch duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"route"},
	)

	// 记忆组装指标
	c.memoryAssemblyDuration = factory.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "memory_assembly_duration_seconds",
			Help:      "Memory context assembly duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
	)

	c.memoryEntries = factory.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "memory_context_entries",
			Help:      "Number of entries in an assembled memory context",
			Buckets:   []float64{0, 1, 2, 5, 10, 20, 50},
		},
	)

	c.memoryTokens = factory.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "memory_context_tokens",
			Help:      "Token count of an assembled memory context",
			Buckets:   []float64{0, 100, 250, 500, 1000, 1500, 1800, 4000},
		},
	)

	// 数据库指标
	c.dbConnectionsOpen = factory.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "db_connections_open",
			Help:      "Number of open database connections",
		},
		[]string{"database"},
	)

	c.dbConnectionsIdle = factory.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "db_connections_idle",
			Help:      "Number of idle database connections",
		},
		[]string{"database"},
	)

	c.dbQueryDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "db_query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"database", "operation"},
	)

	c.logger.Info("metrics collector initialized", zap.String("namespace", namespace))

	return c
}

// =============================================================================
// 🔀 工作流指标记录
// =============================================================================

// =============================================================================
// 🌐 HTTP 指标记录
// =============================================================================

// RecordHTTPRequest 记录 HTTP 请求，path 应为路由模式而非原始路径
func (c *Collector) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	if c == nil {
		return
	}
	c.httpRequestsTotal.WithLabelValues(method, path, statusClass(status)).Inc()
	c.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// statusClass 将 HTTP 状态码转换为 2xx/3xx/4xx/5xx
func statusClass(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500:
		return "5xx"
	default:
		return "unknown"
	}
}

// RecordWorkflowRun 记录一次工作流运行
func (c *Collector) RecordWorkflowRun(status string, duration time.Duration) {
	if c == nil {
		return
	}
	c.workflowRunsTotal.WithLabelValues(status).Inc()
	c.workflowRunDuration.WithLabelValues(status).Observe(duration.Seconds())
}

// RecordWorkflowStep 记录单个节点的执行结果
func (c *Collector) RecordWorkflowStep(tool, status string, duration time.Duration) {
	if c == nil {
		return
	}
	c.workflowStepsTotal.WithLabelValues(tool, status).Inc()
	if status == "success" || status == "error" {
		c.workflowStepLatency.WithLabelValues(tool).Observe(duration.Seconds())
	}
}

// =============================================================================
// 🧪 沙箱与分发指标记录
// =============================================================================

// RecordSandboxRun 记录插件沙箱执行
func (c *Collector) RecordSandboxRun(status string, duration time.Duration) {
	if c == nil {
		return
	}
	c.sandboxRunsTotal.WithLabelValues(status).Inc()
	c.sandboxRunDuration.Observe(duration.Seconds())
}

// RecordDispatch 记录工具分发请求，route 为 plugin 或 remote
func (c *Collector) RecordDispatch(route, status string, duration time.Duration) {
	if c == nil {
		return
	}
	c.dispatchRequestsTotal.WithLabelValues(route, status).Inc()
	c.dispatchRequestDuration.WithLabelValues(route).Observe(duration.Seconds())
}

// =============================================================================
// 🧠 记忆指标记录
// =============================================================================

// RecordMemoryAssembly 记录一次记忆上下文组装
func (c *Collector) RecordMemoryAssembly(entries, tokens int, duration time.Duration) {
	if c == nil {
		return
	}
	c.memoryAssemblyDuration.Observe(duration.Seconds())
	c.memoryEntries.Observe(float64(entries))
	c.memoryTokens.Observe(float64(tokens))
}

// =============================================================================
// 🗄️ 数据库指标记录
// =============================================================================

// RecordDBConnections 记录数据库连接数
func (c *Collector) RecordDBConnections(database string, open, idle int) {
	if c == nil {
		return
	}
	c.dbConnectionsOpen.WithLabelValues(database).Set(float64(open))
	c.dbConnectionsIdle.WithLabelValues(database).Set(float64(idle))
}

// RecordDBQuery 记录数据库查询
func (c *Collector) RecordDBQuery(database, operation string, duration time.Duration) {
	if c == nil {
		return
	}
	c.dbQueryDuration.WithLabelValues(database, operation).Observe(duration.Seconds())
}
