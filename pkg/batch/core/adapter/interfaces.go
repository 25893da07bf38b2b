// Package adapter declares what database and storage connections have in common.
package adapter

import (
	"context"
)

// ResourceConnection is a named, closable connection to a database or a storage backend.
type ResourceConnection interface {
	Close() error
	// Type returns the backend type (e.g., "mysql", "gcs").
	Type() string
	// Name returns the configured connection name (e.g., "source", "reports").
	Name() string
}

// ResourceConnectionResolver resolves a named connection, re-establishing it when it is unhealthy.
type ResourceConnectionResolver interface {
	ResolveConnection(ctx context.Context, name string) (ResourceConnection, error)
}
