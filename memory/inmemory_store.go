package memory

import (
	"context"
	"fmt"
	"math"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/flowcore/types"
)

// ====== 内存向量存储（用于测试和小规模应用）======

type indexed struct {
	subjectID string
	record    Record
	embedding []float64
}

// vectorIndex 是按主体分区的余弦距离索引.
type vectorIndex struct {
	mu      sync.RWMutex
	entries []indexed
}

func (x *vectorIndex) add(subjectID string, rec Record, embedding []float64) error {
	if len(embedding) == 0 {
		return fmt.Errorf("record for subject %s has no embedding", subjectID)
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now()
	}
	x.mu.Lock()
	defer x.mu.Unlock()
	x.entries = append(x.entries, indexed{
		subjectID: subjectID,
		record:    rec,
		embedding: slices.Clone(embedding),
	})
	return nil
}

func (x *vectorIndex) search(subjectID string, key []float64, k int, maxDistance float64) []Match {
	if k <= 0 {
		return nil
	}
	x.mu.RLock()
	defer x.mu.RUnlock()

	var results []Match
	for _, e := range x.entries {
		if e.subjectID != subjectID {
			continue
		}
		d := CosineDistance(key, e.embedding)
		if d >= maxDistance {
			continue
		}
		results = append(results, Match{Record: e.record, Distance: d})
	}
	slices.SortStableFunc(results, func(a, b Match) int {
		switch {
		case a.Distance < b.Distance:
			return -1
		case a.Distance > b.Distance:
			return 1
		}
		return 0
	})
	return results[:min(len(results), k)]
}

func (x *vectorIndex) count(subjectID string) int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	n := 0
	for _, e := range x.entries {
		if e.subjectID == subjectID {
			n++
		}
	}
	return n
}

// InMemoryStore 内存消息历史, 实现 HistoryStore 与 HistoryWriter.
type InMemoryStore struct {
	index  vectorIndex
	logger *zap.Logger
}

// NewInMemoryStore 创建内存消息历史
func NewInMemoryStore(logger *zap.Logger) *InMemoryStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &InMemoryStore{logger: logger.With(zap.String("component", "memory_store"))}
}

// Append 追加一条消息
func (s *InMemoryStore) Append(_ context.Context, subjectID string, rec Record, embedding []float64) error {
	if err := s.index.add(subjectID, rec, embedding); err != nil {
		return err
	}
	s.logger.Debug("message appended",
		zap.String("subject_id", subjectID),
		zap.Int("total", s.index.count(subjectID)))
	return nil
}

// Recent 返回最近 k 条消息, 最新的在前
func (s *InMemoryStore) Recent(_ context.Context, subjectID string, k int) ([]Record, error) {
	if k <= 0 {
		return nil, nil
	}
	s.index.mu.RLock()
	var out []Record
	for _, e := range s.index.entries {
		if e.subjectID == subjectID {
			out = append(out, e.record)
		}
	}
	s.index.mu.RUnlock()

	slices.SortStableFunc(out, func(a, b Record) int {
		return b.Timestamp.Compare(a.Timestamp)
	})
	return out[:min(len(out), k)], nil
}

// Similar 按余弦距离检索历史消息
func (s *InMemoryStore) Similar(_ context.Context, subjectID string, key []float64, k int, maxDistance float64) ([]Match, error) {
	return s.index.search(subjectID, key, k, maxDistance), nil
}

// InMemoryKnowledge 内存知识库, 实现 KnowledgeStore.
type InMemoryKnowledge struct {
	index  vectorIndex
	logger *zap.Logger
}

// NewInMemoryKnowledge 创建内存知识库
func NewInMemoryKnowledge(logger *zap.Logger) *InMemoryKnowledge {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &InMemoryKnowledge{logger: logger.With(zap.String("component", "knowledge_store"))}
}

// Add 添加一段知识文本
func (s *InMemoryKnowledge) Add(_ context.Context, subjectID, text string, createdAt time.Time, embedding []float64) error {
	return s.index.add(subjectID, Record{Role: types.RoleSystem, Content: text, Timestamp: createdAt}, embedding)
}

// Similar 按余弦距离检索知识文本
func (s *InMemoryKnowledge) Similar(_ context.Context, subjectID string, key []float64, k int, maxDistance float64) ([]Match, error) {
	return s.index.search(subjectID, key, k, maxDistance), nil
}

// CosineDistance 返回 1 - 余弦相似度; 长度不一致或零向量时为 1.
func CosineDistance(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 1.0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 1.0
	}
	return 1.0 - dot/(math.Sqrt(normA)*math.Sqrt(normB))
}
