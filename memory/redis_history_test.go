package memory

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/flowcore/internal/cache"
	"github.com/BaSui01/flowcore/types"
)

type countingBackend struct {
	*InMemoryStore
	recentCalls int
}

func (b *countingBackend) Recent(ctx context.Context, subjectID string, k int) ([]Record, error) {
	b.recentCalls++
	return b.InMemoryStore.Recent(ctx, subjectID, k)
}

func setupRedisHistory(t *testing.T, maxLen int) (*miniredis.Miniredis, *countingBackend, *RedisHistory) {
	mr := miniredis.RunT(t)
	mgr, err := cache.NewManager(cache.Config{Addr: mr.Addr(), DefaultTTL: time.Minute}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = mgr.Close() })

	backend := &countingBackend{InMemoryStore: NewInMemoryStore(nil)}
	h := NewRedisHistory(mgr, backend, RedisHistoryConfig{MaxLen: maxLen, TTL: time.Hour}, zap.NewNop())
	return mr, backend, h
}

func appendN(t *testing.T, h *RedisHistory, subject string, contents ...string) {
	t.Helper()
	for i, c := range contents {
		rec := Record{Role: types.RoleUser, Content: c, Timestamp: base.Add(time.Duration(i) * time.Minute)}
		require.NoError(t, h.Append(context.Background(), subject, rec, []float64{1, 0}))
	}
}

func contentsOf(recs []Record) []string {
	out := make([]string, len(recs))
	for i, r := range recs {
		out[i] = r.Content
	}
	return out
}

func TestRedisHistory_WarmThenServeFromCache(t *testing.T) {
	mr, backend, h := setupRedisHistory(t, 3)
	ctx := context.Background()

	appendN(t, h, "s1", "a", "b")
	assert.False(t, mr.Exists("flowcore:recent:s1"), "cold subject is not cached on write")

	got, err := h.Recent(ctx, "s1", 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "a"}, contentsOf(got))
	assert.Equal(t, 1, backend.recentCalls)
	assert.Equal(t, time.Hour, mr.TTL("flowcore:recent:s1"))

	appendN(t, h, "s1", "c", "d")

	got, err = h.Recent(ctx, "s1", 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"d", "c", "b"}, contentsOf(got))
	assert.Equal(t, 1, backend.recentCalls, "warm reads do not touch the backend")
	assert.Equal(t, base.Add(time.Minute), got[2].Timestamp.UTC())
}

func TestRedisHistory_LargeKBypassesCache(t *testing.T) {
	_, backend, h := setupRedisHistory(t, 2)
	appendN(t, h, "s1", "a", "b", "c")

	got, err := h.Recent(context.Background(), "s1", 5)
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "b", "a"}, contentsOf(got))
	assert.Equal(t, 1, backend.recentCalls)
}

func TestRedisHistory_CorruptEntryReloads(t *testing.T) {
	mr, backend, h := setupRedisHistory(t, 3)
	appendN(t, h, "s1", "a")

	_, err := mr.Lpush("flowcore:recent:s1", "not json")
	require.NoError(t, err)

	got, err := h.Recent(context.Background(), "s1", 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, contentsOf(got))
	assert.Equal(t, 1, backend.recentCalls)
}

func TestRedisHistory_SimilarDelegates(t *testing.T) {
	_, _, h := setupRedisHistory(t, 3)
	appendN(t, h, "s1", "a")

	hits, err := h.Similar(context.Background(), "s1", []float64{1, 0}, 1, 0.35)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "a", hits[0].Content)
}

func TestRecorder_Store(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore(nil)
	emb := &fakeEmbedder{vectors: map[string][]float64{"hello": {1, 0, 0}}}
	r := NewRecorder(emb, store, zap.NewNop())
	r.now = func() time.Time { return base }

	require.NoError(t, r.Store(ctx, "s1", types.RoleUser, "hello"))

	recent, err := store.Recent(ctx, "s1", 5)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, Record{Role: types.RoleUser, Content: "hello", Timestamp: base}, recent[0])

	hits, err := store.Similar(ctx, "s1", []float64{1, 0, 0}, 1, 0.35)
	require.NoError(t, err)
	require.Len(t, hits, 1)

	err = r.Store(ctx, "s1", types.Role("tool"), "x")
	require.Error(t, err)
	assert.True(t, types.IsClientError(err))
}

func TestInMemoryStore_RejectsMissingEmbedding(t *testing.T) {
	s := NewInMemoryStore(nil)
	err := s.Append(context.Background(), "s1", Record{Role: types.RoleUser, Content: "x"}, nil)
	assert.Error(t, err)
}
