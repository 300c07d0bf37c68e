package main

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/flowcore/config"
	"github.com/BaSui01/flowcore/store"
	"github.com/BaSui01/flowcore/workflow"
)

func doRequest(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func TestHandleRun(t *testing.T) {
	a := newTestApp(t, nil)
	agentID := seedAgent(t, a, "t1")
	h := a.handler()

	w := doRequest(t, h, http.MethodPost, "/agents/"+agentID+"/run?tenant_id=t1", `{"values":[1,2,3]}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, map[string]any{
		"status": "complete",
		"steps": map[string]any{
			"sum": map[string]any{"sum": float64(6)},
			"big": map[string]any{"sum": float64(6)},
		},
	}, decodeBody(t, w))

	logs, err := a.logs.Recent(context.Background(), agentID, 10)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "success", logs[0].Status)
	assert.Equal(t, "t1", logs[0].TenantID)
}

func TestHandleRun_TenantHeader(t *testing.T) {
	a := newTestApp(t, nil)
	agentID := seedAgent(t, a, "t1")

	req := httptest.NewRequest(http.MethodPost, "/agents/"+agentID+"/run", strings.NewReader(`{"values":[1]}`))
	req.Header.Set(tenantHeader, "t1")
	w := httptest.NewRecorder()
	a.handler().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	steps := decodeBody(t, w)["steps"].(map[string]any)
	assert.Contains(t, steps, "small")
	assert.NotContains(t, steps, "big")
}

func TestHandleRun_AgentNotFound(t *testing.T) {
	a := newTestApp(t, nil)
	agentID := seedAgent(t, a, "t1")
	h := a.handler()

	tests := []struct {
		name   string
		target string
	}{
		{"unknown agent", "/agents/missing/run?tenant_id=t1"},
		{"other tenant", "/agents/" + agentID + "/run?tenant_id=t2"},
		{"no tenant", "/agents/" + agentID + "/run"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doRequest(t, h, http.MethodPost, tt.target, `{}`)
			assert.Equal(t, http.StatusNotFound, w.Code)
			assert.Equal(t, "Agent not found", decodeBody(t, w)["detail"])
		})
	}
}

func TestHandleRun_BadBody(t *testing.T) {
	a := newTestApp(t, nil)
	agentID := seedAgent(t, a, "t1")

	w := doRequest(t, a.handler(), http.MethodPost, "/agents/"+agentID+"/run?tenant_id=t1", `[1,2]`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleRun_NoWorkflow(t *testing.T) {
	a := newTestApp(t, nil)
	ctx := withTenant(context.Background(), "t1")
	agent, err := a.workflows.CreateAgent(ctx, "t1", "empty")
	require.NoError(t, err)

	w := doRequest(t, a.handler(), http.MethodPost, "/agents/"+agent.ID+"/run?tenant_id=t1", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "workflow not defined", decodeBody(t, w)["detail"])
}

func TestHandleRun_UpstreamFailureHidesDetail(t *testing.T) {
	tools := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom: secret stack trace", http.StatusInternalServerError)
	}))
	defer tools.Close()

	a := newTestApp(t, func(c *config.Config) { c.Dispatch.BaseURL = tools.URL })
	ctx := withTenant(context.Background(), "t1")
	agent, err := a.workflows.CreateAgent(ctx, "t1", "remote")
	require.NoError(t, err)
	require.NoError(t, a.workflows.Save(ctx, agent.ID, workflow.Graph{
		Nodes: []workflow.Node{{ID: "a", Type: "http_request"}},
	}))

	w := doRequest(t, a.handler(), http.MethodPost, "/agents/"+agent.ID+"/run?tenant_id=t1", `{}`)
	assert.GreaterOrEqual(t, w.Code, 500)
	assert.NotContains(t, w.Body.String(), "secret")
	assert.Equal(t, "server error", decodeBody(t, w)["detail"])
}

func TestHandleSimulate(t *testing.T) {
	a := newTestApp(t, nil)
	agentID := seedAgent(t, a, "t1")

	w := doRequest(t, a.handler(), http.MethodPost, "/agents/"+agentID+"/simulate?tenant_id=t1", `{"values":[1,2,3]}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var body traceBody
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Trace, 3)
	assert.Equal(t, "sum", body.Trace[0].NodeID)
	assert.Equal(t, workflow.StepSuccess, body.Trace[0].Status)

	byID := map[string]workflow.Step{}
	for _, s := range body.Trace {
		byID[s.NodeID] = s
	}
	assert.Equal(t, workflow.StepSuccess, byID["big"].Status)
	assert.Equal(t, workflow.StepSkipped, byID["small"].Status)
	assert.Equal(t, workflow.SkipNoUpstream, byID["small"].Reason)

	// simulate 不写执行日志
	logs, err := a.logs.Recent(context.Background(), agentID, 10)
	require.NoError(t, err)
	assert.Empty(t, logs)
}

func TestHandlePluginTest(t *testing.T) {
	a := newTestApp(t, nil)
	ctx := withTenant(context.Background(), "t1")
	p, err := a.plugins.Create(ctx, store.NewPlugin{TenantID: "t1", Name: "double", Code: `output = {v = input.v * 2}`})
	require.NoError(t, err)
	h := a.handler()

	w := doRequest(t, h, http.MethodPost, "/plugins/"+p.ID+"/test?tenant_id=t1", `{"v": 21}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, float64(42), decodeBody(t, w)["v"])

	w = doRequest(t, h, http.MethodPost, "/plugins/"+p.ID+"/test?tenant_id=t2", `{}`)
	assert.Equal(t, http.StatusNotFound, w.Code)

	require.NoError(t, a.plugins.SetActive(ctx, p.ID, false))
	w = doRequest(t, h, http.MethodPost, "/plugins/"+p.ID+"/test?tenant_id=t1", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Plugin disabled", decodeBody(t, w)["detail"])
}

func TestHandleHealth(t *testing.T) {
	a := newTestApp(t, nil)
	w := doRequest(t, a.handler(), http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", decodeBody(t, w)["status"])
}

func TestHandleMetrics(t *testing.T) {
	a := newTestApp(t, nil)
	h := a.handler()
	doRequest(t, h, http.MethodGet, "/health", "")

	w := doRequest(t, h, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, "flowcore_http_requests_total")
	assert.Contains(t, body, `path="GET /health"`)
	assert.Contains(t, body, "go_goroutines")
}

func TestHandler_MethodNotAllowed(t *testing.T) {
	a := newTestApp(t, nil)
	w := doRequest(t, a.handler(), http.MethodGet, "/agents/x/run", "")
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestRequestTenant(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/?tenant_id=q", nil)
	r.Header.Set(tenantHeader, "h")
	assert.Equal(t, "q", requestTenant(r))

	r = httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set(tenantHeader, "h")
	assert.Equal(t, "h", requestTenant(r))
}
