package stream

import (
	"context"
	"errors"
	"iter"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/BaSui01/flowcore/types"
	"github.com/BaSui01/flowcore/workflow"
)

// --- Helpers ---

type sliceSink struct {
	frames []any
	failAt int
}

func (s *sliceSink) Send(_ context.Context, v any) error {
	if s.failAt > 0 && len(s.frames)+1 == s.failAt {
		return errors.New("client gone")
	}
	s.frames = append(s.frames, v)
	return nil
}

func trace(steps []workflow.Step, err error) iter.Seq2[workflow.Step, error] {
	return func(yield func(workflow.Step, error) bool) {
		for _, s := range steps {
			if !yield(s, nil) {
				return
			}
		}
		if err != nil {
			yield(workflow.Step{}, err)
		}
	}
}

var twoSteps = []workflow.Step{
	{NodeID: "a", ToolType: "search", Output: "x", Status: workflow.StepSuccess},
	{NodeID: "b", ToolType: "mail", Status: workflow.StepSkipped, Reason: workflow.SkipCondition},
}

// --- Forward ---

func TestForward_Complete(t *testing.T) {
	sink := &sliceSink{}
	require.NoError(t, Forward(context.Background(), trace(twoSteps, nil), sink))

	assert.Equal(t, []any{
		Frame{Status: StatusStarted},
		twoSteps[0],
		twoSteps[1],
		Frame{Status: StatusComplete},
	}, sink.frames)
}

func TestForward_RunError(t *testing.T) {
	runErr := types.NewBadRequestError(types.ErrGraphCycle, "workflow contains a cycle")
	sink := &sliceSink{}

	err := Forward(context.Background(), trace(twoSteps[:1], runErr), sink)
	assert.ErrorIs(t, err, runErr)
	require.Len(t, sink.frames, 3)
	assert.Equal(t, Frame{Status: StatusError, Detail: "workflow contains a cycle"}, sink.frames[2])
}

func TestForward_SendErrorStopsRun(t *testing.T) {
	pulled := 0
	seq := func(yield func(workflow.Step, error) bool) {
		for _, s := range twoSteps {
			pulled++
			if !yield(s, nil) {
				return
			}
		}
	}
	sink := &sliceSink{failAt: 2}

	err := Forward(context.Background(), seq, sink)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "send step a")
	assert.Equal(t, 1, pulled, "no further steps are pulled after a failed send")
}

func TestDetail(t *testing.T) {
	assert.Equal(t, "bad guard", Detail(types.NewBadRequestError(types.ErrExecutorBadGuard, "bad guard")))
	assert.Equal(t, "server error", Detail(types.NewError(types.ErrDispatchUpstream, "502").WithHTTPStatus(502)))
	assert.Equal(t, "server error", Detail(errors.New("boom")))
}

// --- WebSocket ---

type staticStreamer struct {
	steps  []workflow.Step
	err    error
	mu     sync.Mutex
	owner  string
	tenant string
}

func (s *staticStreamer) Stream(ctx context.Context, ownerID string, _ map[string]any, _ string) iter.Seq2[workflow.Step, error] {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.owner = ownerID
	s.tenant, _ = types.TenantID(ctx)
	return trace(s.steps, s.err)
}

func (s *staticStreamer) seen() (owner, tenant string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.owner, s.tenant
}

type agentTenants map[string]string

func (a agentTenants) AgentTenant(_ context.Context, id string) (string, bool, error) {
	t, ok := a[id]
	return t, ok, nil
}

func serve(t *testing.T, h *Handler) string {
	t.Helper()
	mux := http.NewServeMux()
	mux.Handle(Route, h)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.CloseNow() })
	return conn
}

func readAll(t *testing.T, conn *websocket.Conn) ([]map[string]any, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	var frames []map[string]any
	for {
		var f map[string]any
		if err := wsjson.Read(ctx, conn, &f); err != nil {
			return frames, err
		}
		frames = append(frames, f)
	}
}

func TestHandler_StreamsRun(t *testing.T) {
	runs := &staticStreamer{steps: twoSteps}
	url := serve(t, NewHandler(runs, agentTenants{"agent-1": "t1"}, HandlerConfig{}, zaptest.NewLogger(t)))

	conn := dial(t, url+"/ws/agents/agent-1/run?tenant_id=t1&session_id=s1")
	frames, err := readAll(t, conn)
	assert.Equal(t, websocket.StatusNormalClosure, websocket.CloseStatus(err))

	require.Len(t, frames, 4)
	assert.Equal(t, "started", frames[0]["status"])
	assert.Equal(t, "a", frames[1]["node_id"])
	assert.Equal(t, "success", frames[1]["status"])
	assert.Equal(t, "condition", frames[2]["reason"])
	assert.Equal(t, "complete", frames[3]["status"])
	owner, tenant := runs.seen()
	assert.Equal(t, "agent-1", owner)
	assert.Equal(t, "t1", tenant)
}

func TestHandler_AgentNotFound(t *testing.T) {
	runs := &staticStreamer{steps: twoSteps}
	url := serve(t, NewHandler(runs, agentTenants{"agent-1": "t1"}, HandlerConfig{}, zaptest.NewLogger(t)))

	for _, path := range []string{
		"/ws/agents/agent-1/run?tenant_id=t2",
		"/ws/agents/ghost/run?tenant_id=t1",
	} {
		conn := dial(t, url+path)
		frames, err := readAll(t, conn)
		assert.Empty(t, frames)
		assert.Equal(t, StatusAgentNotFound, websocket.CloseStatus(err))
	}
	owner, _ := runs.seen()
	assert.Empty(t, owner)
}

func TestHandler_ServerError(t *testing.T) {
	runs := &staticStreamer{steps: twoSteps[:1], err: errors.New("db down")}
	url := serve(t, NewHandler(runs, nil, HandlerConfig{}, zaptest.NewLogger(t)))

	conn := dial(t, url+"/ws/agents/agent-1/run")
	frames, err := readAll(t, conn)
	assert.Equal(t, websocket.StatusInternalError, websocket.CloseStatus(err))
	require.Len(t, frames, 3)
	assert.Equal(t, map[string]any{"status": "error", "detail": "server error"}, frames[2])
}

func TestHandler_WithExecutor(t *testing.T) {
	store := workflow.NewMemoryStore()
	require.NoError(t, store.Save(context.Background(), "agent-1", workflow.Graph{
		Nodes: []workflow.Node{{ID: "a", Type: "echo"}, {ID: "b", Type: "echo", Condition: "false"}},
	}))
	exec := workflow.NewExecutor(store, echo{}, zaptest.NewLogger(t))
	url := serve(t, NewHandler(exec, nil, HandlerConfig{}, zaptest.NewLogger(t)))

	frames, err := readAll(t, dial(t, url+"/ws/agents/agent-1/run"))
	assert.Equal(t, websocket.StatusNormalClosure, websocket.CloseStatus(err))
	require.Len(t, frames, 4)
	assert.Equal(t, "echo", frames[1]["output"])
	assert.Equal(t, "skipped", frames[2]["status"])
}

type echo struct{}

func (echo) Invoke(_ context.Context, _, stepType string, _ map[string]any) (any, error) {
	return stepType, nil
}
