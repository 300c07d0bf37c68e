package runner

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/BaSui01/flowcore/internal/pool"
	"github.com/BaSui01/flowcore/types"
	"github.com/BaSui01/flowcore/workflow"
)

// DefaultMaxOutputBytes caps the serialized output kept in a log entry.
const DefaultMaxOutputBytes = 100_000

// Status classifies a finished run.
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailure Status = "failure"
	StatusError   Status = "error"
)

// LogEntry describes one finished run.
type LogEntry struct {
	RunID      string          `json:"run_id"`
	TraceID    string          `json:"trace_id,omitempty"`
	TenantID   string          `json:"tenant_id"`
	OwnerID    string          `json:"owner_id"`
	Workflow   *workflow.Graph `json:"workflow"`
	Input      map[string]any  `json:"input"`
	Output     any             `json:"output"`
	Status     Status          `json:"status"`
	Duration   time.Duration   `json:"duration"`
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt time.Time       `json:"finished_at"`
}

// LogSink receives finished run entries.
type LogSink interface {
	Write(ctx context.Context, entry *LogEntry) error
}

// Executor runs a workflow to completion.
type Executor interface {
	Run(ctx context.Context, ownerID string, input map[string]any, subjectID string) (*workflow.Result, error)
}

// Config configures Logged.
type Config struct {
	MaxOutputBytes int `yaml:"max_output_bytes" json:"max_output_bytes"`
}

// Logged runs workflows and records every run through a LogSink.
type Logged struct {
	exec   Executor
	store  workflow.Store
	sink   LogSink
	cfg    Config
	logger *zap.Logger
	now    func() time.Time
}

// NewLogged creates a Logged runner. store is used to snapshot the graph
// that was run.
func NewLogged(exec Executor, store workflow.Store, sink LogSink, cfg Config, logger *zap.Logger) *Logged {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxOutputBytes <= 0 {
		cfg.MaxOutputBytes = DefaultMaxOutputBytes
	}
	return &Logged{
		exec:   exec,
		store:  store,
		sink:   sink,
		cfg:    cfg,
		logger: logger.With(zap.String("component", "logged_runner")),
		now:    time.Now,
	}
}

// Run executes ownerID's workflow and writes a log entry. The run's own
// result and error are returned unchanged; sink failures are only logged.
// A run id already on ctx is kept, otherwise a new one is stamped so the
// executor's logs and the entry share it.
func (l *Logged) Run(ctx context.Context, ownerID string, input map[string]any) (result *workflow.Result, err error) {
	started := l.now().UTC()
	entry := &LogEntry{OwnerID: ownerID, Input: input, StartedAt: started}
	entry.TenantID, _ = types.TenantID(ctx)
	entry.TraceID, _ = types.TraceID(ctx)
	if id, ok := types.RunID(ctx); ok {
		entry.RunID = id
	} else {
		entry.RunID = uuid.NewString()
		ctx = types.WithRunID(ctx, entry.RunID)
	}

	defer func() {
		entry.FinishedAt = l.now().UTC()
		entry.Duration = entry.FinishedAt.Sub(started)
		entry.Status = classify(err)
		if result != nil {
			entry.Output = l.capOutput(result)
		}
		if entry.Workflow == nil {
			entry.Workflow = &workflow.Graph{}
		}
		if werr := l.sink.Write(context.WithoutCancel(ctx), entry); werr != nil {
			l.logger.Error("failed to store execution log",
				zap.String("run_id", entry.RunID),
				zap.String("owner_id", ownerID),
				zap.Error(werr))
		}
	}()

	def, err := l.store.Load(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("load workflow: %w", err)
	}
	if def != nil {
		entry.Workflow = &def.Graph
	}
	return l.exec.Run(ctx, ownerID, input, "")
}

func (l *Logged) capOutput(v any) any {
	buf := pool.ByteBufferPool.Get()
	defer pool.ByteBufferPool.Put(buf)
	if err := json.NewEncoder(buf).Encode(v); err != nil {
		return map[string]any{"error": "unserializable"}
	}
	// Encode appends a newline.
	if buf.Len()-1 > l.cfg.MaxOutputBytes {
		return map[string]any{"truncated": true}
	}
	return v
}

func classify(err error) Status {
	switch {
	case err == nil:
		return StatusSuccess
	case types.IsClientError(err):
		return StatusFailure
	default:
		return StatusError
	}
}
