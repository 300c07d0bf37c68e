package config

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestNewFileWatcher_RequiresPath(t *testing.T) {
	_, err := NewFileWatcher(nil)
	assert.Error(t, err)

	_, err = NewFileWatcher(NewLoader())
	assert.Error(t, err)
}

func TestFileWatcher_ReloadsOnChange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flowcore.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log:\n  level: info\n"), 0o644))

	w, err := NewFileWatcher(NewLoader().WithConfigPath(path),
		WithPollInterval(10*time.Millisecond),
		WithDebounceDelay(20*time.Millisecond),
		WithWatcherLogger(zaptest.NewLogger(t)))
	require.NoError(t, err)

	var (
		mu     sync.Mutex
		levels []string
	)
	w.OnReload(func(cfg *Config) {
		mu.Lock()
		defer mu.Unlock()
		levels = append(levels, cfg.Log.Level)
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	// 保证修改时间前进
	future := time.Now().Add(2 * time.Second)
	require.NoError(t, os.WriteFile(path, []byte("log:\n  level: debug\n"), 0o644))
	require.NoError(t, os.Chtimes(path, future, future))

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(levels) == 1 && levels[0] == "debug"
	}, 2*time.Second, 10*time.Millisecond)
}

func TestFileWatcher_InvalidFileKeepsPrevious(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flowcore.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log:\n  level: info\n"), 0o644))

	w, err := NewFileWatcher(NewLoader().WithConfigPath(path), WithDebounceDelay(0))
	require.NoError(t, err)

	called := false
	w.OnReload(func(*Config) { called = true })

	require.NoError(t, os.WriteFile(path, []byte("log: [unclosed"), 0o644))
	future := time.Now().Add(time.Minute)
	require.NoError(t, os.Chtimes(path, future, future))

	require.True(t, w.poll(time.Now()))
	w.reload()
	assert.False(t, called)
}

func TestFileWatcher_Debounce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flowcore.yaml")
	require.NoError(t, os.WriteFile(path, []byte("{}"), 0o644))

	w, err := NewFileWatcher(NewLoader().WithConfigPath(path), WithDebounceDelay(time.Second))
	require.NoError(t, err)

	future := time.Now().Add(time.Minute)
	require.NoError(t, os.Chtimes(path, future, future))

	now := time.Now()
	assert.False(t, w.poll(now))
	assert.False(t, w.poll(now.Add(500*time.Millisecond)))
	assert.True(t, w.poll(now.Add(time.Second)))
	assert.False(t, w.poll(now.Add(2*time.Second)))
}

func TestFileWatcher_MissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.yaml")
	w, err := NewFileWatcher(NewLoader().WithConfigPath(path), WithDebounceDelay(0))
	require.NoError(t, err)
	assert.False(t, w.poll(time.Now()))

	require.NoError(t, os.WriteFile(path, []byte("{}"), 0o644))
	assert.True(t, w.poll(time.Now()))
}
