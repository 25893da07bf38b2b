package metrics

import (
	"context"
)

// Tracer opens spans around transfers, launches, polls and exports.
type Tracer interface {
	// StartSpan starts a child span of ctx. The returned func ends it.
	StartSpan(ctx context.Context, name string, attributes map[string]interface{}) (context.Context, func())

	// RecordError marks the current span as failed. module names the failing component (e.g., "transfer").
	RecordError(ctx context.Context, module string, err error)

	// RecordEvent adds an event such as {"batch": 2, "rows": 500} to the current span.
	RecordEvent(ctx context.Context, name string, attributes map[string]interface{})
}
