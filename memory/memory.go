package memory

import (
	"context"
	"time"

	"github.com/BaSui01/flowcore/types"
)

// Record is one entry of conversational or retrieved context.
type Record struct {
	Role      types.Role `json:"role"`
	Content   string     `json:"content"`
	Timestamp time.Time  `json:"timestamp"`
}

// Message drops the timestamp.
func (r Record) Message() types.Message {
	return types.NewMessage(r.Role, r.Content)
}

// Match is a similarity search hit.
type Match struct {
	Record
	Distance float64 `json:"distance"`
}

// Embedder turns text into a similarity key.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float64, error)
}

// HistoryStore reads a subject's message history.
type HistoryStore interface {
	// Recent returns up to k messages, newest first.
	Recent(ctx context.Context, subjectID string, k int) ([]Record, error)
	// Similar returns up to k messages with distance below maxDistance, closest first.
	Similar(ctx context.Context, subjectID string, key []float64, k int, maxDistance float64) ([]Match, error)
}

// KnowledgeStore searches a subject's knowledge passages.
type KnowledgeStore interface {
	Similar(ctx context.Context, subjectID string, key []float64, k int, maxDistance float64) ([]Match, error)
}

// HistoryWriter persists a message together with its embedding.
type HistoryWriter interface {
	Append(ctx context.Context, subjectID string, rec Record, embedding []float64) error
}
