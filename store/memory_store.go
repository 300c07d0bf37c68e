package store

import (
	"context"
	"slices"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/BaSui01/flowcore/memory"
	"github.com/BaSui01/flowcore/types"
)

// scanBatch bounds how many rows a similarity scan holds at once.
const scanBatch = 500

// MemoryStore persists message history and knowledge chunks. Similarity is
// computed in process over the stored embeddings.
type MemoryStore struct {
	db     *gorm.DB
	logger *zap.Logger
	now    func() time.Time
}

// NewMemoryStore creates a MemoryStore.
func NewMemoryStore(db *gorm.DB, logger *zap.Logger) *MemoryStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MemoryStore{
		db:     db,
		logger: logger.With(zap.String("component", "memory_store")),
		now:    time.Now,
	}
}

// Append implements memory.HistoryWriter.
func (s *MemoryStore) Append(ctx context.Context, subjectID string, rec memory.Record, embedding []float64) error {
	if rec.Timestamp.IsZero() {
		rec.Timestamp = s.now()
	}
	tenantID, _ := types.TenantID(ctx)
	row := &MessageHistory{
		ID:        uuid.NewString(),
		TenantID:  tenantID,
		AgentID:   subjectID,
		Role:      string(rec.Role),
		Content:   rec.Content,
		Embedding: embedding,
		CreatedAt: rec.Timestamp.UTC(),
	}
	if err := s.db.WithContext(ctx).Create(row).Error; err != nil {
		return storageError("append message", err)
	}
	return nil
}

// Recent implements memory.HistoryStore. Rows come back newest first.
func (s *MemoryStore) Recent(ctx context.Context, subjectID string, k int) ([]memory.Record, error) {
	if k <= 0 {
		return nil, nil
	}
	var rows []MessageHistory
	err := scopeTenant(ctx, s.db.WithContext(ctx)).
		Select("role", "content", "created_at").
		Where("agent_id = ?", subjectID).
		Order("created_at DESC").
		Limit(k).
		Find(&rows).Error
	if err != nil {
		return nil, storageError("load recent messages", err)
	}
	out := make([]memory.Record, 0, len(rows))
	for _, r := range rows {
		out = append(out, memory.Record{Role: types.Role(r.Role), Content: r.Content, Timestamp: r.CreatedAt})
	}
	return out, nil
}

// Similar implements memory.HistoryStore.
func (s *MemoryStore) Similar(ctx context.Context, subjectID string, key []float64, k int, maxDistance float64) ([]memory.Match, error) {
	if k <= 0 || len(key) == 0 {
		return nil, nil
	}
	var hits []memory.Match
	var batch []MessageHistory
	err := scopeTenant(ctx, s.db.WithContext(ctx).Model(&MessageHistory{})).
		Where("agent_id = ?", subjectID).
		FindInBatches(&batch, scanBatch, func(_ *gorm.DB, _ int) error {
			for _, r := range batch {
				if d := memory.CosineDistance(key, r.Embedding); d < maxDistance {
					hits = append(hits, memory.Match{
						Record:   memory.Record{Role: types.Role(r.Role), Content: r.Content, Timestamp: r.CreatedAt},
						Distance: d,
					})
				}
			}
			return nil
		}).Error
	if err != nil {
		return nil, storageError("search messages", err)
	}
	return closest(hits, k), nil
}

// Chunk is one knowledge passage to store.
type Chunk struct {
	SourceFile string
	Index      int
	Text       string
	Embedding  []float64
}

// AddChunks stores knowledge passages for subjectID.
func (s *MemoryStore) AddChunks(ctx context.Context, subjectID string, chunks []Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	tenantID, _ := types.TenantID(ctx)
	now := s.now().UTC()
	rows := make([]KnowledgeChunk, 0, len(chunks))
	for _, c := range chunks {
		rows = append(rows, KnowledgeChunk{
			ID:         uuid.NewString(),
			TenantID:   tenantID,
			AgentID:    subjectID,
			SourceFile: c.SourceFile,
			ChunkIndex: c.Index,
			Text:       c.Text,
			Embedding:  c.Embedding,
			CreatedAt:  now,
		})
	}
	if err := s.db.WithContext(ctx).CreateInBatches(rows, 100).Error; err != nil {
		return storageError("add knowledge", err)
	}
	s.logger.Debug("knowledge chunks stored",
		zap.String("subject_id", subjectID),
		zap.Int("count", len(rows)))
	return nil
}

// Knowledge returns a memory.KnowledgeStore over the stored chunks.
func (s *MemoryStore) Knowledge() memory.KnowledgeStore {
	return knowledgeView{s}
}

type knowledgeView struct{ s *MemoryStore }

func (v knowledgeView) Similar(ctx context.Context, subjectID string, key []float64, k int, maxDistance float64) ([]memory.Match, error) {
	if k <= 0 || len(key) == 0 {
		return nil, nil
	}
	var hits []memory.Match
	var batch []KnowledgeChunk
	err := scopeTenant(ctx, v.s.db.WithContext(ctx).Model(&KnowledgeChunk{})).
		Where("agent_id = ?", subjectID).
		FindInBatches(&batch, scanBatch, func(_ *gorm.DB, _ int) error {
			for _, c := range batch {
				if d := memory.CosineDistance(key, c.Embedding); d < maxDistance {
					hits = append(hits, memory.Match{
						Record:   memory.Record{Role: types.RoleSystem, Content: c.Text, Timestamp: c.CreatedAt},
						Distance: d,
					})
				}
			}
			return nil
		}).Error
	if err != nil {
		return nil, storageError("search knowledge", err)
	}
	return closest(hits, k), nil
}

func closest(hits []memory.Match, k int) []memory.Match {
	slices.SortStableFunc(hits, func(a, b memory.Match) int {
		switch {
		case a.Distance < b.Distance:
			return -1
		case a.Distance > b.Distance:
			return 1
		}
		return 0
	})
	return hits[:min(len(hits), k)]
}

var (
	_ memory.HistoryStore  = (*MemoryStore)(nil)
	_ memory.HistoryWriter = (*MemoryStore)(nil)
	_ memory.Backend       = (*MemoryStore)(nil)
)
