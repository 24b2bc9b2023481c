package types

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// RequestContext carries request identity through every connector call.
// The filter engine never looks at it.
type RequestContext struct {
	RequestID     string    `json:"requestId"`
	UserName      string    `json:"userName,omitempty"`
	ClientAppName string    `json:"clientAppName,omitempty"`
	TraceID       string    `json:"traceId,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

// NewRequestContext returns a request context with a fresh request ID.
func NewRequestContext(userName, clientAppName string) *RequestContext {
	return &RequestContext{
		RequestID:     uuid.NewString(),
		UserName:      userName,
		ClientAppName: clientAppName,
		Timestamp:     time.Now(),
	}
}

type requestContextKey struct{}

// WithRequestContext attaches rc to ctx.
func WithRequestContext(ctx context.Context, rc *RequestContext) context.Context {
	return context.WithValue(ctx, requestContextKey{}, rc)
}

// RequestContextFrom returns the request context attached to ctx. A context
// without one yields an anonymous request context with a new ID.
func RequestContextFrom(ctx context.Context) *RequestContext {
	if rc, ok := ctx.Value(requestContextKey{}).(*RequestContext); ok && rc != nil {
		return rc
	}
	return NewRequestContext("", "")
}
