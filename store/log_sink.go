package store

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/BaSui01/flowcore/runner"
)

// ExecutionLogSink 将运行日志写入 execution_log 表.
type ExecutionLogSink struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewExecutionLogSink creates an ExecutionLogSink.
func NewExecutionLogSink(db *gorm.DB, logger *zap.Logger) *ExecutionLogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExecutionLogSink{db: db, logger: logger.With(zap.String("component", "execution_log"))}
}

// Write implements runner.LogSink.
func (s *ExecutionLogSink) Write(ctx context.Context, e *runner.LogEntry) error {
	id := e.RunID
	if id == "" {
		id = uuid.NewString()
	}
	row := &ExecutionLog{
		ID:               id,
		TenantID:         e.TenantID,
		AgentID:          e.OwnerID,
		WorkflowSnapshot: e.Workflow,
		InputContext:     e.Input,
		OutputResult:     e.Output,
		Status:           string(e.Status),
		DurationMS:       e.Duration.Milliseconds(),
		StartedAt:        e.StartedAt,
		FinishedAt:       e.FinishedAt,
	}
	if err := s.db.WithContext(ctx).Create(row).Error; err != nil {
		return storageError("write execution log", err)
	}
	s.logger.Debug("execution log stored",
		zap.String("log_id", row.ID),
		zap.String("owner_id", row.AgentID),
		zap.String("status", row.Status))
	return nil
}

// Recent returns the newest execution logs of an agent.
func (s *ExecutionLogSink) Recent(ctx context.Context, agentID string, limit int) ([]ExecutionLog, error) {
	var out []ExecutionLog
	err := scopeTenant(ctx, s.db.WithContext(ctx)).
		Where("agent_id = ?", agentID).
		Order("started_at DESC").
		Limit(limit).
		Find(&out).Error
	if err != nil {
		return nil, storageError("list execution logs", err)
	}
	return out, nil
}

var _ runner.LogSink = (*ExecutionLogSink)(nil)
