package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/BaSui01/flowcore/types"
)

// openApp 加载配置并装配组件；调用方负责 Close
func openApp(cf commonFlags) (*app, error) {
	cfg, logger, _, err := loadConfig(cf)
	if err != nil {
		return nil, err
	}
	a, err := newApp(cfg, logger)
	if err != nil {
		logger.Sync()
		return nil, err
	}
	return a, nil
}

// shutdown 释放组件并刷新日志
func (a *app) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := a.Close(ctx); err != nil {
		a.logger.Warn("shutdown", zap.Error(err))
	}
	_ = a.logger.Sync()
}

// withTenant 在 tenant 非空时写入 ctx
func withTenant(ctx context.Context, tenantID string) context.Context {
	if tenantID == "" {
		return ctx
	}
	return types.WithTenantID(ctx, tenantID)
}

// readObject 解析 JSON 对象。inline 优先于 path，二者都为空时返回空对象。
func readObject(inline, path string) (map[string]any, error) {
	var data []byte
	switch {
	case inline != "":
		data = []byte(inline)
	case path == "-":
		b, err := io.ReadAll(os.Stdin)
		if err != nil {
			return nil, fmt.Errorf("read stdin: %w", err)
		}
		data = b
	case path != "":
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		data = b
	default:
		return map[string]any{}, nil
	}

	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, types.NewBadRequestError(types.ErrInvalidRequest, "input must be a JSON object").WithCause(err)
	}
	if out == nil {
		out = map[string]any{}
	}
	return out, nil
}

// printJSON 以缩进格式输出 v
func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// required 校验必填参数，缺失时返回用法错误
func required(name string, pairs ...string) error {
	var missing []string
	for i := 0; i+1 < len(pairs); i += 2 {
		if strings.TrimSpace(pairs[i+1]) == "" {
			missing = append(missing, "--"+pairs[i])
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%s: missing %s: %w", name, strings.Join(missing, ", "), errUsage)
	}
	return nil
}

// jsonLinesSink 每帧一行 JSON，供命令行查看运行轨迹
type jsonLinesSink struct {
	mu  sync.Mutex
	enc *json.Encoder
}

func newJSONLinesSink(w io.Writer) *jsonLinesSink {
	return &jsonLinesSink{enc: json.NewEncoder(w)}
}

func (s *jsonLinesSink) Send(_ context.Context, v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enc.Encode(v)
}
