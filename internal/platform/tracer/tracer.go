// Package tracer provides a lightweight tracing abstraction for the issuance
// pipeline.
//
// Services depend on the Tracer interface rather than on OpenTelemetry APIs.
// NoopTracer is the default; OTelTracer adapts the global OpenTelemetry
// provider for production.
package tracer

import (
	"context"
	"time"
)

// Span represents an active trace span.
type Span interface {
	// End completes the span, recording err when non-nil. End must be called
	// exactly once, typically via defer.
	End(err error)
	SetAttributes(attrs ...Attribute)
	AddEvent(name string, attrs ...Attribute)
}

// Tracer creates spans. Implementations must be safe for concurrent use.
type Tracer interface {
	Start(ctx context.Context, name string, attrs ...Attribute) (context.Context, Span)
}

// Attribute represents a key-value pair attached to spans.
type Attribute struct {
	Key   string
	Value any
}

func String(key, value string) Attribute {
	return Attribute{Key: key, Value: value}
}

func Bool(key string, value bool) Attribute {
	return Attribute{Key: key, Value: value}
}

func Int64(key string, value int64) Attribute {
	return Attribute{Key: key, Value: value}
}

func Float64(key string, value float64) Attribute {
	return Attribute{Key: key, Value: value}
}

// Duration creates a duration attribute in milliseconds.
func Duration(key string, value time.Duration) Attribute {
	return Attribute{Key: key, Value: value.Milliseconds()}
}

// Span names used by the issuance pipeline.
const (
	SpanIssue          = "issuance.issue"
	SpanRegenerate     = "issuance.regenerate"
	SpanBatch          = "issuance.batch"
	SpanAdmit          = "quota.admit"
	SpanRender         = "render.render"
	SpanUpload         = "objectstore.put"
	SpanVerify         = "verification.verify"
	SpanWebhookAttempt = "webhook.attempt"
)

// Attribute keys.
const (
	AttrTenantID     = "tenant.id"
	AttrCredentialID = "credential.id"
	AttrFormat       = "artifact.format"
	AttrAttempt      = "attempt"
	AttrOutcome      = "outcome"
	AttrBatchSize    = "batch.size"
)
