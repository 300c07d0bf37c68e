package types

import "context"

// idKey 标识 context 中携带的一类 ID.
type idKey uint8

const (
	tenantKey idKey = iota
	traceKey
	runKey
)

func withID(ctx context.Context, key idKey, id string) context.Context {
	return context.WithValue(ctx, key, id)
}

func idFrom(ctx context.Context, key idKey) (string, bool) {
	v, ok := ctx.Value(key).(string)
	return v, ok && v != ""
}

// WithTenantID scopes ctx to a tenant. Stores, dispatch and the run log
// read it back with TenantID.
func WithTenantID(ctx context.Context, tenantID string) context.Context {
	return withID(ctx, tenantKey, tenantID)
}

// TenantID returns the tenant ctx is scoped to.
func TenantID(ctx context.Context) (string, bool) { return idFrom(ctx, tenantKey) }

// WithTraceID attaches the caller's request id (X-Request-ID on HTTP).
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return withID(ctx, traceKey, traceID)
}

// TraceID returns the request id attached by WithTraceID.
func TraceID(ctx context.Context) (string, bool) { return idFrom(ctx, traceKey) }

// WithRunID attaches the id of one logged workflow run. It is also the id of
// the run's execution log row.
func WithRunID(ctx context.Context, runID string) context.Context {
	return withID(ctx, runKey, runID)
}

// RunID returns the run id attached by WithRunID.
func RunID(ctx context.Context) (string, bool) { return idFrom(ctx, runKey) }
