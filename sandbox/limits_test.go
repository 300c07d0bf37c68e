package sandbox

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/flowcore/types"
)

// build512 leaves a 512-byte string in s.
const build512 = `local s = "" for i = 1, 512 do s = s .. "x" end
`

func TestSandbox_StringDoublingHitsLimit(t *testing.T) {
	s := newTestSandbox(t, DefaultConfig())

	out, err := s.Run(context.Background(),
		`local s = "x"; for i = 1, 28 do s = s .. s end; output = len(s)`, nil)
	require.Error(t, err)
	assert.Nil(t, out)
	assert.Equal(t, types.ErrSandboxMemory, types.GetErrorCode(err))
	assert.True(t, types.IsSandboxError(err))
	assert.Equal(t, int64(1), s.Stats().FailedExecutions)
}

func TestSandbox_MemoryLimits(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxStringBytes = 1024
	cfg.MaxMemoryBytes = 64 << 10
	s := newTestSandbox(t, cfg)

	tests := []struct {
		name string
		code string
		want types.ErrorCode
	}{
		{"table fill", `local t = {} for i = 1, 100000 do t[i] = i end`, types.ErrSandboxMemory},
		{"string keys", `local t = {} for i = 1, 100000 do t["k" .. i] = true end`, types.ErrSandboxMemory},
		{"table.insert", `local t = {} for i = 1, 100000 do table.insert(t, i) end`, types.ErrSandboxMemory},
		{"nested constructors", `local t = {} for i = 1, 100000 do t[i] = {i, i} end`, types.ErrSandboxMemory},
		{"range copies", `local t = {} for i = 1, 1000 do t[i] = range(100) end`, types.ErrSandboxMemory},
		{"gsub growth", build512 + `output = s:gsub("x", "xxxx")`, types.ErrSandboxMemory},
		{"gsub template", build512 + `output = string.gsub(s, "x", "%0%0%0")`, types.ErrSandboxMemory},
		{"format args", build512 + `output = string.format("%s%s", s, s)`, types.ErrSandboxMemory},
		{"table.concat", build512 + `output = table.concat({s, s, s})`, types.ErrSandboxMemory},
		{"format width", `output = string.format("%1000d", 1)`, types.ErrSandboxRuntime},
		{"pcall cannot swallow", `local ok = pcall(function()
  local s = "x"
  for i = 1, 40 do s = s .. s end
end)
output = {ok = ok}`, types.ErrSandboxMemory},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Run(context.Background(), tt.code, nil)
			require.Error(t, err)
			assert.Equal(t, tt.want, types.GetErrorCode(err))
		})
	}
}

func TestSandbox_MeteredOperationsKeepSemantics(t *testing.T) {
	s := newTestSandbox(t, DefaultConfig())

	code := `
local t = {1, 2}
t[1], t[2] = t[2], t[1]
local x
x, t.k = 5, 6
local nested = {inner = {}}
nested.inner["a" .. "b"] = "c"
local function set(tbl, k, v) tbl[k] = v end
set(t, "f", "g")
t.k = nil
local n, count = ("hello world"):gsub("o", "0")
local swapped = ("hello"):gsub("(l)(l)", "%2%1%%")
local vars = ("$a $b"):gsub("%$(%w+)", {a = "1"})
local doubled = ("1 2"):gsub("%d", function(d) return d * 2 end)
output = {
  swap = {t[1], t[2]},
  x = x,
  k = t.k,
  f = t.f,
  ab = nested.inner.ab,
  cat = 1 .. "-" .. 2.5 .. "-" .. "z",
  gsub = n,
  count = count,
  swapped = swapped,
  vars = vars,
  doubled = doubled,
  fmt = string.format("%05.1f|%s", 3.14159, "ok"),
  joined = table.concat({"a", "b", "c"}, ","),
}`
	out, err := s.Run(context.Background(), code, nil)
	require.NoError(t, err)

	assert.Equal(t, []any{int64(2), int64(1)}, out["swap"])
	assert.Equal(t, int64(5), out["x"])
	assert.Nil(t, out["k"])
	assert.Equal(t, "g", out["f"])
	assert.Equal(t, "c", out["ab"])
	assert.Equal(t, "1-2.5-z", out["cat"])
	assert.Equal(t, "hell0 w0rld", out["gsub"])
	assert.Equal(t, int64(2), out["count"])
	assert.Equal(t, "hell%o", out["swapped"])
	assert.Equal(t, "1 $b", out["vars"])
	assert.Equal(t, "2 4", out["doubled"])
	assert.Equal(t, "003.1|ok", out["fmt"])
	assert.Equal(t, "a,b,c", out["joined"])
}

func TestSandbox_ConcatErrors(t *testing.T) {
	s := newTestSandbox(t, DefaultConfig())

	_, err := s.Run(context.Background(), `output = "a" .. nil`, nil)
	require.Error(t, err)
	assert.Equal(t, types.ErrSandboxRuntime, types.GetErrorCode(err))
	assert.Contains(t, err.Error(), "concatenate")

	_, err = s.Run(context.Background(), `local t = {} t[nil] = 1`, nil)
	require.Error(t, err)
	assert.Equal(t, types.ErrSandboxRuntime, types.GetErrorCode(err))

	_, err = s.Run(context.Background(), `local n = 1 n.x = 1`, nil)
	require.Error(t, err)
	assert.Equal(t, types.ErrSandboxRuntime, types.GetErrorCode(err))
}
