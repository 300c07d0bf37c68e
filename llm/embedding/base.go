package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/BaSui01/flowcore/types"
)

// BaseProvider 为嵌入提供者提供公共的 HTTP 能力.
type BaseProvider struct {
	name       string
	client     *http.Client
	baseURL    string
	model      string
	dimensions int
	maxBatch   int
}

// BaseConfig 持有基础提供者的公共配置.
type BaseConfig struct {
	Name       string
	BaseURL    string
	Model      string
	Dimensions int
	MaxBatch   int
	Timeout    time.Duration
}

// NewBaseProvider 创建基础提供者.
func NewBaseProvider(cfg BaseConfig) *BaseProvider {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	maxBatch := cfg.MaxBatch
	if maxBatch == 0 {
		maxBatch = 100
	}
	return &BaseProvider{
		name:       cfg.Name,
		client:     &http.Client{Timeout: timeout},
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		model:      cfg.Model,
		dimensions: cfg.Dimensions,
		maxBatch:   maxBatch,
	}
}

func (p *BaseProvider) Name() string      { return p.name }
func (p *BaseProvider) Dimensions() int   { return p.dimensions }
func (p *BaseProvider) MaxBatchSize() int { return p.maxBatch }

// DoRequest 执行 JSON 请求并把传输错误与 HTTP 错误映射为 *types.Error.
func (p *BaseProvider) DoRequest(ctx context.Context, method, endpoint string, body any, headers map[string]string) ([]byte, error) {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, p.baseURL+endpoint, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, types.NewError(types.ErrEmbeddingFailed, p.name+" request failed").
			WithCause(err).
			WithHTTPStatus(http.StatusBadGateway).
			WithRetryable(true)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return nil, mapHTTPError(resp.StatusCode, string(respBody), p.name)
	}
	return respBody, nil
}

// mapHTTPError 将上游 HTTP 状态映射为 *types.Error.
func mapHTTPError(status int, msg, provider string) *types.Error {
	retryable := status >= 500 || status == http.StatusTooManyRequests
	code := types.ErrEmbeddingFailed
	if status == http.StatusUnauthorized || status == http.StatusForbidden {
		code = types.ErrEmbeddingUnconfigured
	}
	return types.NewError(code, fmt.Sprintf("%s returned %d: %s", provider, status, msg)).
		WithHTTPStatus(http.StatusBadGateway).
		WithRetryable(retryable)
}

// ChooseModel 从请求或默认中选择模型。
func ChooseModel(reqModel, defaultModel, fallback string) string {
	if reqModel != "" {
		return reqModel
	}
	if defaultModel != "" {
		return defaultModel
	}
	return fallback
}
