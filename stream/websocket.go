package stream

import (
	"context"
	"iter"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"go.uber.org/zap"

	"github.com/BaSui01/flowcore/types"
	"github.com/BaSui01/flowcore/workflow"
)

// StatusAgentNotFound closes a connection whose agent is unknown to the tenant.
const StatusAgentNotFound websocket.StatusCode = 4004

// WebSocketSink writes frames as JSON text messages. Writes are serialized.
type WebSocketSink struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

// NewWebSocketSink wraps an accepted connection.
func NewWebSocketSink(conn *websocket.Conn) *WebSocketSink {
	return &WebSocketSink{conn: conn}
}

// Send implements Sink.
func (s *WebSocketSink) Send(ctx context.Context, v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return wsjson.Write(ctx, s.conn, v)
}

// Streamer produces a run trace.
type Streamer interface {
	Stream(ctx context.Context, ownerID string, input map[string]any, subjectID string) iter.Seq2[workflow.Step, error]
}

// AgentSource resolves the tenant that owns an agent.
type AgentSource interface {
	AgentTenant(ctx context.Context, agentID string) (tenantID string, found bool, err error)
}

// HandlerConfig configures Handler.
type HandlerConfig struct {
	PingInterval   time.Duration `yaml:"ping_interval" json:"ping_interval"`
	OriginPatterns []string      `yaml:"origin_patterns" json:"origin_patterns"`
}

// Handler runs a workflow per WebSocket connection and streams its trace.
type Handler struct {
	runs   Streamer
	agents AgentSource
	cfg    HandlerConfig
	logger *zap.Logger
}

// NewHandler creates a Handler. agents may be nil to skip the ownership check.
func NewHandler(runs Streamer, agents AgentSource, cfg HandlerConfig, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 20 * time.Second
	}
	return &Handler{
		runs:   runs,
		agents: agents,
		cfg:    cfg,
		logger: logger.With(zap.String("component", "stream")),
	}
}

// Route is the pattern Handler expects to be mounted on.
const Route = "GET /ws/agents/{agent_id}/run"

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	agentID := r.PathValue("agent_id")
	tenantID := r.URL.Query().Get("tenant_id")
	log := h.logger.With(
		zap.String("owner_id", agentID),
		zap.String("session_id", r.URL.Query().Get("session_id")),
	)

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: h.cfg.OriginPatterns})
	if err != nil {
		log.Warn("websocket accept failed", zap.Error(err))
		return
	}
	defer conn.CloseNow()

	// CloseRead 在客户端断开时取消 ctx, 同时让 ping 能收到 pong
	ctx := types.WithTenantID(conn.CloseRead(r.Context()), tenantID)

	if h.agents != nil {
		owner, found, err := h.agents.AgentTenant(ctx, agentID)
		if err != nil {
			log.Error("agent lookup failed", zap.Error(err))
			conn.Close(websocket.StatusInternalError, "server error")
			return
		}
		if !found || owner != tenantID {
			conn.Close(StatusAgentNotFound, "Agent not found")
			return
		}
	}

	pingCtx, stopPing := context.WithCancel(ctx)
	defer stopPing()
	go h.pingLoop(pingCtx, conn)

	sink := &loggingSink{next: NewWebSocketSink(conn), logger: log}
	err = Forward(ctx, h.runs.Stream(ctx, agentID, map[string]any{}, ""), sink)
	switch {
	case err == nil:
		conn.Close(websocket.StatusNormalClosure, "")
	case ctx.Err() != nil:
		log.Info("client disconnected")
	case types.IsClientError(err):
		log.Info("run rejected", zap.Error(err))
		conn.Close(websocket.StatusNormalClosure, "")
	default:
		log.Error("error running workflow", zap.Error(err))
		conn.Close(websocket.StatusInternalError, "server error")
	}
}

func (h *Handler) pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(h.cfg.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pctx, cancel := context.WithTimeout(ctx, h.cfg.PingInterval)
			err := conn.Ping(pctx)
			cancel()
			if err != nil {
				return
			}
		}
	}
}

type loggingSink struct {
	next   Sink
	logger *zap.Logger
}

func (s *loggingSink) Send(ctx context.Context, v any) error {
	if step, ok := v.(workflow.Step); ok {
		s.logger.Info("node complete",
			zap.String("node_id", step.NodeID),
			zap.String("status", string(step.Status)))
	}
	return s.next.Send(ctx, v)
}
