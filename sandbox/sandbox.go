package sandbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	lua "github.com/yuin/gopher-lua"
	"github.com/yuin/gopher-lua/parse"
	"go.uber.org/zap"

	"github.com/BaSui01/flowcore/internal/metrics"
	"github.com/BaSui01/flowcore/internal/pool"
	"github.com/BaSui01/flowcore/types"
)

// forbiddenRE rejects snippets that mention host, module or reflection
// facilities before they are compiled.
var forbiddenRE = regexp.MustCompile(`\b(import|os|sys|io|open|subprocess|socket|eval|exec|require|load|loadstring|dofile|loadfile|debug|package|collectgarbage|setmetatable|getmetatable|rawset|rawget)\b`)

// Config configures the sandbox.
type Config struct {
	Timeout         time.Duration `json:"timeout"`
	LogPreviewChars int           `json:"log_preview_chars"`
	CallStackSize   int           `json:"call_stack_size"`
	RegistryMaxSize int           `json:"registry_max_size"`
	MaxSequenceLen  int           `json:"max_sequence_len"`
	MaxStringBytes  int           `json:"max_string_bytes"`
	MaxMemoryBytes  int64         `json:"max_memory_bytes"`
}

// DefaultConfig returns the default limits.
func DefaultConfig() Config {
	return Config{
		Timeout:         10 * time.Second,
		LogPreviewChars: 1000,
		CallStackSize:   120,
		RegistryMaxSize: 256 * 1024,
		MaxSequenceLen:  1_000_000,
		MaxStringBytes:  1 << 20,
		MaxMemoryBytes:  64 << 20,
	}
}

// Stats tracks execution statistics.
type Stats struct {
	TotalExecutions   int64         `json:"total_executions"`
	SuccessExecutions int64         `json:"success_executions"`
	FailedExecutions  int64         `json:"failed_executions"`
	TimeoutExecutions int64         `json:"timeout_executions"`
	TotalDuration     time.Duration `json:"total_duration"`
}

// Program is a compiled snippet. It is immutable and may be run
// concurrently.
type Program struct {
	proto *lua.FunctionProto
}

// Option configures a Sandbox.
type Option func(*Sandbox)

// WithMetrics records sandbox runs.
func WithMetrics(c *metrics.Collector) Option {
	return func(s *Sandbox) { s.metrics = c }
}

// Sandbox executes snippets on a bounded worker pool.
type Sandbox struct {
	cfg     Config
	workers *pool.WorkerPool
	metrics *metrics.Collector
	logger  *zap.Logger

	mu    sync.Mutex
	stats Stats
}

// New creates a Sandbox. workers may be shared with other sandboxes.
func New(cfg Config, workers *pool.WorkerPool, logger *zap.Logger, opts ...Option) *Sandbox {
	if logger == nil {
		logger = zap.NewNop()
	}
	def := DefaultConfig()
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.LogPreviewChars <= 0 {
		cfg.LogPreviewChars = def.LogPreviewChars
	}
	if cfg.CallStackSize <= 0 {
		cfg.CallStackSize = def.CallStackSize
	}
	if cfg.RegistryMaxSize <= 0 {
		cfg.RegistryMaxSize = def.RegistryMaxSize
	}
	if cfg.MaxSequenceLen <= 0 {
		cfg.MaxSequenceLen = def.MaxSequenceLen
	}
	if cfg.MaxStringBytes <= 0 {
		cfg.MaxStringBytes = def.MaxStringBytes
	}
	if cfg.MaxMemoryBytes <= 0 {
		cfg.MaxMemoryBytes = def.MaxMemoryBytes
	}
	if workers == nil {
		workers = pool.NewWorkerPool(pool.DefaultWorkerPoolConfig())
	}
	s := &Sandbox{
		cfg:     cfg,
		workers: workers,
		logger:  logger.With(zap.String("component", "sandbox")),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Compile checks the snippet against the denylist and compiles it.
func (s *Sandbox) Compile(code string) (*Program, error) {
	if m := forbiddenRE.FindString(code); m != "" {
		return nil, types.NewBadRequestError(types.ErrSandboxForbidden,
			fmt.Sprintf("disallowed keyword present: %s", m))
	}
	chunk, err := parse.Parse(strings.NewReader(code), "<plugin>")
	if err != nil {
		return nil, types.NewBadRequestError(types.ErrSandboxSyntax, "syntax error").WithCause(err)
	}
	proto, err := lua.Compile(instrument(chunk), "<plugin>")
	if err != nil {
		return nil, types.NewBadRequestError(types.ErrSandboxSyntax, "syntax error").WithCause(err)
	}
	return &Program{proto: proto}, nil
}

// Validate compiles the snippet without running it.
func (s *Sandbox) Validate(code string) error {
	_, err := s.Compile(code)
	return err
}

// Run compiles and executes code against input.
func (s *Sandbox) Run(ctx context.Context, code string, input map[string]any) (map[string]any, error) {
	prog, err := s.Compile(code)
	if err != nil {
		s.record(0, err)
		return nil, err
	}
	return s.RunProgram(ctx, prog, input)
}

// RunProgram executes a compiled snippet. A mapping output is returned
// verbatim; any other value is wrapped as {"result": value}.
func (s *Sandbox) RunProgram(ctx context.Context, prog *Program, input map[string]any) (map[string]any, error) {
	start := time.Now()

	// Round-trip through JSON so the snippet sees plain data and never
	// shares memory with the caller.
	plain, err := plainData(input)
	if err != nil {
		s.record(time.Since(start), err)
		return nil, types.NewBadRequestError(types.ErrSandboxRuntime, "input is not serializable").WithCause(err)
	}

	runCtx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	var output any
	err = s.workers.SubmitWait(runCtx, func(ctx context.Context) error {
		out, err := s.execute(ctx, prog, plain)
		if err == nil {
			output = out
		}
		return err
	})
	duration := time.Since(start)

	if runCtx.Err() != nil && errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		err = types.NewBadRequestError(types.ErrSandboxTimeout,
			fmt.Sprintf("plugin timed out after %s", s.cfg.Timeout))
		s.record(duration, err)
		s.logger.Warn("plugin timed out", zap.Duration("timeout", s.cfg.Timeout))
		return nil, err
	}
	if err != nil {
		if _, ok := types.AsError(err); !ok {
			err = types.NewBadRequestError(types.ErrSandboxRuntime, "plugin execution failed").WithCause(err)
		}
		s.record(duration, err)
		s.logger.Warn("plugin execution failed", zap.Duration("duration", duration), zap.Error(err))
		return nil, err
	}

	result, ok := output.(map[string]any)
	if !ok {
		result = map[string]any{"result": output}
	}
	s.record(duration, nil)
	s.logger.Info("plugin executed",
		zap.Duration("duration", duration),
		zap.String("output", s.preview(result)),
	)
	return result, nil
}

func (s *Sandbox) execute(ctx context.Context, prog *Program, input any) (any, error) {
	L, m := newState(s.cfg)
	defer L.Close()
	L.SetContext(ctx)

	in, err := toLua(L, input)
	if err != nil {
		return nil, err
	}
	L.SetGlobal("input", in)
	L.SetGlobal("output", lua.LNil)

	L.Push(L.NewFunctionFromProto(prog.proto))
	err = L.PCall(0, 0, nil)
	if m.exceeded {
		// pcall inside the snippet cannot swallow a limit.
		return nil, types.NewBadRequestError(types.ErrSandboxMemory,
			fmt.Sprintf("plugin exceeded memory limits (%d bytes per string, %d bytes total)",
				s.cfg.MaxStringBytes, s.cfg.MaxMemoryBytes))
	}
	if err != nil {
		return nil, types.NewBadRequestError(types.ErrSandboxRuntime, "plugin raised an error").WithCause(err)
	}

	out, err := fromLua(L.GetGlobal("output"), 0)
	if err != nil {
		return nil, types.NewBadRequestError(types.ErrSandboxRuntime, "unsupported output").WithCause(err)
	}
	return out, nil
}

// preview renders result for logging, truncated to LogPreviewChars.
func (s *Sandbox) preview(result map[string]any) string {
	buf := pool.ByteBufferPool.Get()
	defer pool.ByteBufferPool.Put(buf)

	var text string
	if err := json.NewEncoder(buf).Encode(result); err != nil {
		text = fmt.Sprint(result)
	} else {
		text = strings.TrimSuffix(buf.String(), "\n")
	}
	if utf8.RuneCountInString(text) > s.cfg.LogPreviewChars {
		text = string([]rune(text)[:s.cfg.LogPreviewChars]) + "..."
	}
	return text
}

func (s *Sandbox) record(duration time.Duration, err error) {
	status := "success"
	s.mu.Lock()
	s.stats.TotalExecutions++
	s.stats.TotalDuration += duration
	switch {
	case err == nil:
		s.stats.SuccessExecutions++
	case types.IsErrorCode(err, types.ErrSandboxTimeout):
		s.stats.TimeoutExecutions++
		status = "timeout"
	default:
		s.stats.FailedExecutions++
		status = "failed"
	}
	s.mu.Unlock()
	s.metrics.RecordSandboxRun(status, duration)
}

// Stats returns a snapshot of execution statistics.
func (s *Sandbox) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

func plainData(v map[string]any) (any, error) {
	if v == nil {
		return map[string]any{}, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}
