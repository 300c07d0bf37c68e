package memory

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/flowcore/types"
)

// Recorder embeds and persists conversation messages.
type Recorder struct {
	embedder Embedder
	writer   HistoryWriter
	logger   *zap.Logger
	now      func() time.Time
}

// NewRecorder creates a Recorder.
func NewRecorder(embedder Embedder, writer HistoryWriter, logger *zap.Logger) *Recorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Recorder{
		embedder: embedder,
		writer:   writer,
		logger:   logger.With(zap.String("component", "memory_recorder")),
		now:      time.Now,
	}
}

// Store embeds content and appends it to subjectID's history.
func (r *Recorder) Store(ctx context.Context, subjectID string, role types.Role, content string) error {
	if !role.Valid() {
		return types.NewBadRequestError(types.ErrInvalidRequest, fmt.Sprintf("invalid message role %q", role))
	}
	emb, err := r.embedder.Embed(ctx, content)
	if err != nil {
		return fmt.Errorf("embed message: %w", err)
	}
	rec := Record{Role: role, Content: content, Timestamp: r.now()}
	if err := r.writer.Append(ctx, subjectID, rec, emb); err != nil {
		return fmt.Errorf("store message: %w", err)
	}
	r.logger.Debug("message stored",
		zap.String("subject_id", subjectID),
		zap.String("role", string(role)))
	return nil
}
