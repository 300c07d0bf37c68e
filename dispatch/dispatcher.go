package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/flowcore/internal/metrics"
	"github.com/BaSui01/flowcore/types"
)

// PluginPrefix marks step types that run tenant plugin code.
const PluginPrefix = "plugin:"

const maxResponseBytes = 10 << 20

// Plugin is the dispatch view of a stored plugin.
type Plugin struct {
	ID       string
	TenantID string
	Name     string
	Code     string
	Active   bool
}

// PluginSource looks up plugins by id. A missing plugin is (nil, nil).
type PluginSource interface {
	GetPlugin(ctx context.Context, pluginID string) (*Plugin, error)
}

// AgentSource resolves the tenant that owns an agent.
type AgentSource interface {
	AgentTenant(ctx context.Context, agentID string) (tenantID string, found bool, err error)
}

// CodeRunner executes plugin code.
type CodeRunner interface {
	Run(ctx context.Context, code string, input map[string]any) (map[string]any, error)
}

// Config configures the remote tool service client.
type Config struct {
	BaseURL         string        `yaml:"base_url" json:"base_url"`
	APIKeyPrefix    string        `yaml:"api_key_prefix" json:"api_key_prefix"`
	Timeout         time.Duration `yaml:"timeout" json:"timeout"`
	DefaultTenantID string        `yaml:"default_tenant_id" json:"default_tenant_id"`
}

// DefaultConfig returns the default dispatch configuration.
func DefaultConfig() Config {
	return Config{
		APIKeyPrefix: "tenant_",
		Timeout:      30 * time.Second,
	}
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithPlugins enables plugin:<id> step types.
func WithPlugins(src PluginSource, runner CodeRunner) Option {
	return func(d *Dispatcher) {
		d.plugins = src
		d.runner = runner
	}
}

// WithAgents rejects owners that do not belong to the calling tenant.
func WithAgents(src AgentSource) Option {
	return func(d *Dispatcher) { d.agents = src }
}

// WithLimiter throttles remote calls per owner.
func WithLimiter(l *Limiter) Option {
	return func(d *Dispatcher) { d.limiter = l }
}

// WithMetrics records dispatch metrics.
func WithMetrics(c *metrics.Collector) Option {
	return func(d *Dispatcher) { d.metrics = c }
}

// WithHTTPClient replaces the remote tool service client.
func WithHTTPClient(c *http.Client) Option {
	return func(d *Dispatcher) { d.client = c }
}

// Dispatcher invokes step types on behalf of an owner.
type Dispatcher struct {
	cfg     Config
	client  *http.Client
	plugins PluginSource
	runner  CodeRunner
	agents  AgentSource
	limiter *Limiter
	metrics *metrics.Collector
	logger  *zap.Logger
}

// New creates a Dispatcher.
func New(cfg Config, logger *zap.Logger, opts ...Option) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.APIKeyPrefix == "" {
		cfg.APIKeyPrefix = DefaultConfig().APIKeyPrefix
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	d := &Dispatcher{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: logger.With(zap.String("component", "dispatch")),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Invoke runs stepType for ownerID with input.
func (d *Dispatcher) Invoke(ctx context.Context, ownerID, stepType string, input map[string]any) (any, error) {
	start := time.Now()
	tenantID := d.tenant(ctx)

	route := "remote"
	if strings.HasPrefix(stepType, PluginPrefix) {
		route = "plugin"
	}

	out, err := d.invoke(ctx, tenantID, ownerID, stepType, route, input)

	status := "success"
	if err != nil {
		status = string(types.GetErrorCode(err))
		if status == "" {
			status = "error"
		}
		d.logger.Warn("dispatch failed",
			zap.String("owner_id", ownerID),
			zap.String("tool_type", stepType),
			zap.String("route", route),
			zap.Error(err))
	}
	d.metrics.RecordDispatch(route, status, time.Since(start))
	return out, err
}

func (d *Dispatcher) invoke(ctx context.Context, tenantID, ownerID, stepType, route string, input map[string]any) (any, error) {
	if d.agents != nil {
		owner, found, err := d.agents.AgentTenant(ctx, ownerID)
		if err != nil {
			return nil, fmt.Errorf("resolve agent %s: %w", ownerID, err)
		}
		if !found || owner != tenantID {
			return nil, types.NewError(types.ErrDispatchAgentNotFound, "Agent not found").
				WithHTTPStatus(http.StatusNotFound)
		}
	}

	if route == "plugin" {
		return d.invokePlugin(ctx, tenantID, strings.TrimPrefix(stepType, PluginPrefix), input)
	}
	if !d.limiter.Allow(ownerID) {
		return nil, types.NewError(types.ErrDispatchRateLimited, "tool rate limit exceeded").
			WithHTTPStatus(http.StatusTooManyRequests).
			WithRetryable(true)
	}
	return d.invokeRemote(ctx, tenantID, ownerID, stepType, input)
}

func (d *Dispatcher) tenant(ctx context.Context) string {
	if id, ok := types.TenantID(ctx); ok && id != "" {
		return id
	}
	return d.cfg.DefaultTenantID
}

func (d *Dispatcher) invokePlugin(ctx context.Context, tenantID, pluginID string, input map[string]any) (any, error) {
	notFound := types.NewError(types.ErrDispatchPluginNotFound, "Plugin not found").
		WithHTTPStatus(http.StatusNotFound)
	if d.plugins == nil || d.runner == nil || pluginID == "" {
		return nil, notFound
	}

	p, err := d.plugins.GetPlugin(ctx, pluginID)
	if err != nil {
		return nil, fmt.Errorf("load plugin %s: %w", pluginID, err)
	}
	if p == nil || p.TenantID != tenantID || !p.Active {
		return nil, notFound
	}

	out, err := d.runner.Run(ctx, p.Code, input)
	if err != nil {
		if _, ok := types.AsError(err); ok {
			return nil, err
		}
		return nil, types.NewBadRequestError(types.ErrSandboxRuntime, "plugin execution failed").WithCause(err)
	}
	return out, nil
}

func (d *Dispatcher) invokeRemote(ctx context.Context, tenantID, ownerID, stepType string, input map[string]any) (any, error) {
	if d.cfg.BaseURL == "" {
		return nil, types.NewError(types.ErrDispatchUnexpected, "tool service not configured").
			WithHTTPStatus(http.StatusInternalServerError)
	}

	body, err := json.Marshal(input)
	if err != nil {
		return nil, types.NewError(types.ErrDispatchUnexpected, "Unknown error").
			WithHTTPStatus(http.StatusInternalServerError).
			WithCause(err)
	}

	endpoint := fmt.Sprintf("%s/agents/%s/tools/%s/run",
		d.cfg.BaseURL, url.PathEscape(ownerID), url.PathEscape(stepType))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, types.NewError(types.ErrDispatchUnexpected, "Unknown error").
			WithHTTPStatus(http.StatusInternalServerError).
			WithCause(err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+d.cfg.APIKeyPrefix+tenantID+"_key")

	d.logger.Info("executing tool",
		zap.String("tool_type", stepType),
		zap.String("owner_id", ownerID),
		zap.String("tenant_id", tenantID))

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, types.NewError(types.ErrDispatchUpstream, "Tool execution failed").
			WithHTTPStatus(http.StatusBadGateway).
			WithRetryable(true).
			WithCause(err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, types.NewError(types.ErrDispatchUpstream, "Tool execution failed").
			WithHTTPStatus(http.StatusBadGateway).
			WithRetryable(true).
			WithCause(err)
	}

	if resp.StatusCode >= 400 {
		return nil, types.NewError(types.ErrDispatchUpstream,
			fmt.Sprintf("Tool execution failed: upstream status %d", resp.StatusCode)).
			WithHTTPStatus(http.StatusBadGateway).
			WithRetryable(resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests)
	}

	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, types.NewError(types.ErrDispatchUnexpected, "Unknown error").
			WithHTTPStatus(http.StatusInternalServerError).
			WithCause(err)
	}
	return out, nil
}
