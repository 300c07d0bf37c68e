package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/BaSui01/flowcore/stream"
	"github.com/BaSui01/flowcore/types"
	"github.com/BaSui01/flowcore/workflow"
)

// =============================================================================
// 🌐 HTTP 路由
// =============================================================================

const (
	maxBodyBytes = 1 << 20
	tenantHeader = "X-Tenant-ID"
)

// errorBody 是错误响应体
type errorBody struct {
	Detail string `json:"detail"`
}

// traceBody 是 simulate 的响应体
type traceBody struct {
	Trace []workflow.Step `json:"trace"`
}

// routes 注册全部路由，返回未包裹中间件的 mux
func (a *app) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /agents/{agent_id}/run", a.handleRun)
	mux.HandleFunc("POST /agents/{agent_id}/simulate", a.handleSimulate)
	mux.HandleFunc("POST /plugins/{plugin_id}/test", a.handlePluginTest)
	mux.Handle(stream.Route, stream.NewHandler(a.executor, a.workflows, stream.HandlerConfig{
		PingInterval:   a.cfg.Server.PingInterval,
		OriginPatterns: a.cfg.Server.OriginPatterns,
	}, a.logger))
	mux.HandleFunc("GET /health", a.handleHealth)
	mux.Handle("GET /metrics", promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{}))
	return mux
}

// handler 返回带中间件的根 handler
func (a *app) handler() http.Handler {
	return Chain(a.routes(),
		Recovery(a.logger),
		RequestID(),
		OTelTracing(a.telemetry.Tracer("github.com/BaSui01/flowcore/http")),
		RequestLogger(a.logger),
		SecurityHeaders(),
		MetricsMiddleware(a.metrics),
	)
}

// requestTenant 从查询参数或请求头中读取租户
func requestTenant(r *http.Request) string {
	if t := r.URL.Query().Get("tenant_id"); t != "" {
		return t
	}
	return r.Header.Get(tenantHeader)
}

// authorizeAgent 校验 agent 属于请求租户，失败时已写出响应
func (a *app) authorizeAgent(w http.ResponseWriter, r *http.Request) (context.Context, string, bool) {
	agentID := r.PathValue("agent_id")
	tenantID := requestTenant(r)
	ctx := types.WithTenantID(r.Context(), tenantID)

	owner, found, err := a.workflows.AgentTenant(ctx, agentID)
	if err != nil {
		a.writeError(w, r, err)
		return nil, "", false
	}
	if !found || owner != tenantID {
		writeJSON(w, http.StatusNotFound, errorBody{Detail: "Agent not found"})
		return nil, "", false
	}
	return ctx, agentID, true
}

// handleRun 执行工作流并记录执行日志
func (a *app) handleRun(w http.ResponseWriter, r *http.Request) {
	input, ok := a.decodeInput(w, r)
	if !ok {
		return
	}
	ctx, agentID, ok := a.authorizeAgent(w, r)
	if !ok {
		return
	}
	result, err := a.logged.Run(ctx, agentID, input)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleSimulate 执行工作流但不记录日志，返回完整轨迹
func (a *app) handleSimulate(w http.ResponseWriter, r *http.Request) {
	input, ok := a.decodeInput(w, r)
	if !ok {
		return
	}
	ctx, agentID, ok := a.authorizeAgent(w, r)
	if !ok {
		return
	}
	_, trace, err := workflow.Collect(a.executor.Stream(ctx, agentID, input, r.URL.Query().Get("session_id")))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	if trace == nil {
		trace = []workflow.Step{}
	}
	writeJSON(w, http.StatusOK, traceBody{Trace: trace})
}

// handlePluginTest 以给定输入在沙箱中运行插件
func (a *app) handlePluginTest(w http.ResponseWriter, r *http.Request) {
	input, ok := a.decodeInput(w, r)
	if !ok {
		return
	}
	ctx := types.WithTenantID(r.Context(), requestTenant(r))
	p, err := a.plugins.Get(ctx, r.PathValue("plugin_id"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	if p == nil {
		writeJSON(w, http.StatusNotFound, errorBody{Detail: "Plugin not found"})
		return
	}
	if !p.IsActive {
		writeJSON(w, http.StatusBadRequest, errorBody{Detail: "Plugin disabled"})
		return
	}
	out, err := a.sandbox.Run(ctx, p.Code, input)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *app) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := a.pool.Ping(ctx); err != nil {
		a.logger.Warn("health check failed", zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// decodeInput 解析 JSON 对象请求体，空请求体视为 {}
func (a *app) decodeInput(w http.ResponseWriter, r *http.Request) (map[string]any, bool) {
	var input map[string]any
	err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&input)
	if err != nil && !errors.Is(err, io.EOF) {
		writeJSON(w, http.StatusBadRequest, errorBody{Detail: "request body must be a JSON object"})
		return nil, false
	}
	if input == nil {
		input = map[string]any{}
	}
	return input, true
}

// writeError 客户端错误返回其消息，其余错误只返回通用描述
func (a *app) writeError(w http.ResponseWriter, r *http.Request, err error) {
	if types.IsClientError(err) {
		e, _ := types.AsError(err)
		writeJSON(w, e.HTTPStatus, errorBody{Detail: e.Message})
		return
	}
	status := http.StatusInternalServerError
	if e, ok := types.AsError(err); ok && e.HTTPStatus >= 500 {
		status = e.HTTPStatus
	}
	a.logger.Error("request failed",
		zap.String("path", r.URL.Path),
		zap.String("request_id", RequestIDFromContext(r.Context())),
		zap.Error(err))
	writeJSON(w, status, errorBody{Detail: stream.Detail(err)})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
