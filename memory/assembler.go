package memory

import (
	"context"
	"fmt"
	"slices"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/flowcore/internal/metrics"
	"github.com/BaSui01/flowcore/llm/tokenizer"
	"github.com/BaSui01/flowcore/types"
)

// Config controls relevance filtering and the token budget.
type Config struct {
	// DistanceThreshold is the exclusive upper bound on similarity distance.
	DistanceThreshold float64 `yaml:"distance_threshold" json:"distance_threshold"`
	// TokenCeiling bounds the summed content tokens of the assembled context.
	TokenCeiling int `yaml:"token_ceiling" json:"token_ceiling"`
}

// DefaultConfig returns the default assembler configuration.
func DefaultConfig() Config {
	return Config{
		DistanceThreshold: 0.35,
		TokenCeiling:      1800,
	}
}

// Option configures an Assembler.
type Option func(*Assembler)

// WithKnowledge adds a knowledge source to the merge.
func WithKnowledge(k KnowledgeStore) Option {
	return func(a *Assembler) { a.knowledge = k }
}

// WithMetrics records assembly metrics.
func WithMetrics(c *metrics.Collector) Option {
	return func(a *Assembler) { a.metrics = c }
}

// Assembler merges recent chat, knowledge and semantic history into a
// token-budgeted context.
type Assembler struct {
	embedder  Embedder
	history   HistoryStore
	knowledge KnowledgeStore
	tokens    tokenizer.Tokenizer
	cfg       Config
	metrics   *metrics.Collector
	logger    *zap.Logger
}

// NewAssembler creates an Assembler. Zero config fields take their defaults.
func NewAssembler(embedder Embedder, history HistoryStore, tok tokenizer.Tokenizer, cfg Config, logger *zap.Logger, opts ...Option) *Assembler {
	if logger == nil {
		logger = zap.NewNop()
	}
	def := DefaultConfig()
	if cfg.DistanceThreshold <= 0 {
		cfg.DistanceThreshold = def.DistanceThreshold
	}
	if cfg.TokenCeiling <= 0 {
		cfg.TokenCeiling = def.TokenCeiling
	}
	if tok == nil {
		tok = tokenizer.NewEstimatorTokenizer("", 0)
	}
	a := &Assembler{
		embedder: embedder,
		history:  history,
		tokens:   tok,
		cfg:      cfg,
		logger:   logger.With(zap.String("component", "memory_assembler")),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Assemble returns the context for subjectID in chronological order.
func (a *Assembler) Assemble(ctx context.Context, subjectID, latestMessage string, chatK, semanticK int) ([]types.Message, error) {
	start := time.Now()

	var key []float64
	if latestMessage != "" && semanticK > 0 {
		var err error
		key, err = a.embedder.Embed(ctx, latestMessage)
		if err != nil {
			return nil, fmt.Errorf("embed latest message: %w", err)
		}
	}

	var merged []Record

	if chatK > 0 {
		recent, err := a.history.Recent(ctx, subjectID, chatK)
		if err != nil {
			return nil, fmt.Errorf("load recent history: %w", err)
		}
		recent = recent[:min(len(recent), chatK)]
		for i := len(recent) - 1; i >= 0; i-- {
			merged = append(merged, recent[i])
		}
	}

	if key != nil {
		if a.knowledge != nil {
			hits, err := a.knowledge.Similar(ctx, subjectID, key, semanticK, a.cfg.DistanceThreshold)
			if err != nil {
				return nil, fmt.Errorf("search knowledge: %w", err)
			}
			for _, m := range a.relevant(hits, semanticK) {
				m.Role = types.RoleSystem
				merged = append(merged, m.Record)
			}
		}

		hits, err := a.history.Similar(ctx, subjectID, key, semanticK, a.cfg.DistanceThreshold)
		if err != nil {
			return nil, fmt.Errorf("search history: %w", err)
		}
		for _, m := range a.relevant(hits, semanticK) {
			merged = append(merged, m.Record)
		}
	}

	slices.SortStableFunc(merged, func(x, y Record) int {
		return x.Timestamp.Compare(y.Timestamp)
	})
	merged = Dedup(merged)

	kept, used, err := a.trim(merged)
	if err != nil {
		return nil, err
	}

	out := make([]types.Message, len(kept))
	for i, r := range kept {
		out[i] = r.Message()
	}

	a.metrics.RecordMemoryAssembly(len(out), used, time.Since(start))
	a.logger.Debug("memory assembled",
		zap.String("subject_id", subjectID),
		zap.Int("candidates", len(merged)),
		zap.Int("entries", len(out)),
		zap.Int("tokens", used),
		zap.String("tokenizer", a.tokens.Name()),
	)
	return out, nil
}

// relevant keeps hits strictly below the threshold, closest first, at most k.
func (a *Assembler) relevant(hits []Match, k int) []Match {
	out := make([]Match, 0, len(hits))
	for _, h := range hits {
		if h.Distance < a.cfg.DistanceThreshold {
			out = append(out, h)
		}
	}
	slices.SortStableFunc(out, func(x, y Match) int {
		switch {
		case x.Distance < y.Distance:
			return -1
		case x.Distance > y.Distance:
			return 1
		}
		return 0
	})
	return out[:min(len(out), k)]
}

// trim walks from the newest record backwards and stops at the first one
// that would push the total over the ceiling. The ceiling never exceeds the
// tokenizer's context window.
func (a *Assembler) trim(records []Record) ([]Record, int, error) {
	ceiling := min(a.cfg.TokenCeiling, a.tokens.MaxTokens())
	used := 0
	first := len(records)
	for i := len(records) - 1; i >= 0; i-- {
		n, err := a.tokens.CountTokens(records[i].Content)
		if err != nil {
			return nil, 0, fmt.Errorf("count tokens: %w", err)
		}
		if used+n > ceiling {
			break
		}
		used += n
		first = i
	}
	return records[first:], used, nil
}

// Dedup drops records whose content already appeared earlier in the slice.
func Dedup(records []Record) []Record {
	seen := make(map[string]struct{}, len(records))
	out := make([]Record, 0, len(records))
	for _, r := range records {
		if _, ok := seen[r.Content]; ok {
			continue
		}
		seen[r.Content] = struct{}{}
		out = append(out, r)
	}
	return out
}
