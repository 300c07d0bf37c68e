package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/flowcore/internal/cache"
)

// Backend is the durable history behind a RedisHistory.
type Backend interface {
	HistoryStore
	HistoryWriter
}

// RedisHistoryConfig configures the recent-chat cache.
type RedisHistoryConfig struct {
	KeyPrefix string        `yaml:"key_prefix" json:"key_prefix"`
	MaxLen    int           `yaml:"max_len" json:"max_len"`
	TTL       time.Duration `yaml:"ttl" json:"ttl"`
}

// DefaultRedisHistoryConfig returns defaults sized for chat_k up to 50.
func DefaultRedisHistoryConfig() RedisHistoryConfig {
	return RedisHistoryConfig{
		KeyPrefix: "flowcore:recent:",
		MaxLen:    50,
		TTL:       30 * time.Minute,
	}
}

// RedisHistory caches each subject's newest messages in a Redis list and
// delegates similarity search and persistence to the backend.
type RedisHistory struct {
	cache   *cache.Manager
	backend Backend
	cfg     RedisHistoryConfig
	logger  *zap.Logger
}

// NewRedisHistory wraps backend with a recent-chat cache.
func NewRedisHistory(c *cache.Manager, backend Backend, cfg RedisHistoryConfig, logger *zap.Logger) *RedisHistory {
	if logger == nil {
		logger = zap.NewNop()
	}
	def := DefaultRedisHistoryConfig()
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = def.KeyPrefix
	}
	if cfg.MaxLen <= 0 {
		cfg.MaxLen = def.MaxLen
	}
	return &RedisHistory{
		cache:   c,
		backend: backend,
		cfg:     cfg,
		logger:  logger.With(zap.String("component", "redis_history")),
	}
}

func (h *RedisHistory) key(subjectID string) string {
	return h.cfg.KeyPrefix + subjectID
}

// Append persists the message and pushes it onto the cached list if the
// subject is cached. A cache failure drops the subject's list.
func (h *RedisHistory) Append(ctx context.Context, subjectID string, rec Record, embedding []float64) error {
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now()
	}
	if err := h.backend.Append(ctx, subjectID, rec, embedding); err != nil {
		return err
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}
	if _, err := h.cache.PushExisting(ctx, h.key(subjectID), string(data), h.cfg.MaxLen, h.cfg.TTL); err != nil {
		h.logger.Warn("recent cache push failed, invalidating",
			zap.String("subject_id", subjectID), zap.Error(err))
		_ = h.cache.Delete(ctx, h.key(subjectID))
	}
	return nil
}

// Recent serves from the cache when warm, otherwise loads from the backend
// and warms the cache.
func (h *RedisHistory) Recent(ctx context.Context, subjectID string, k int) ([]Record, error) {
	if k <= 0 {
		return nil, nil
	}
	if k > h.cfg.MaxLen {
		return h.backend.Recent(ctx, subjectID, k)
	}

	vals, err := h.cache.Range(ctx, h.key(subjectID), k)
	if err != nil {
		h.logger.Warn("recent cache read failed", zap.String("subject_id", subjectID), zap.Error(err))
	} else if len(vals) > 0 {
		out := make([]Record, 0, len(vals))
		for _, v := range vals {
			var rec Record
			if err := json.Unmarshal([]byte(v), &rec); err != nil {
				h.logger.Warn("corrupt cache entry, reloading", zap.String("subject_id", subjectID), zap.Error(err))
				return h.warm(ctx, subjectID, k)
			}
			out = append(out, rec)
		}
		return out, nil
	}
	return h.warm(ctx, subjectID, k)
}

func (h *RedisHistory) warm(ctx context.Context, subjectID string, k int) ([]Record, error) {
	recs, err := h.backend.Recent(ctx, subjectID, h.cfg.MaxLen)
	if err != nil {
		return nil, err
	}

	vals := make([]string, 0, len(recs))
	for _, r := range recs {
		data, err := json.Marshal(r)
		if err != nil {
			return nil, fmt.Errorf("marshal record: %w", err)
		}
		vals = append(vals, string(data))
	}
	if err := h.cache.Fill(ctx, h.key(subjectID), vals, h.cfg.TTL); err != nil {
		h.logger.Warn("recent cache fill failed", zap.String("subject_id", subjectID), zap.Error(err))
	}
	return recs[:min(len(recs), k)], nil
}

// Similar delegates to the backend.
func (h *RedisHistory) Similar(ctx context.Context, subjectID string, key []float64, k int, maxDistance float64) ([]Match, error) {
	return h.backend.Similar(ctx, subjectID, key, k, maxDistance)
}
