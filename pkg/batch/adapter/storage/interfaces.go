// Package storage defines the object storage abstraction used to publish generated reports.
// Backends (local file system, GCS) live in subpackages and register as StorageProviders.
package storage

import (
	"context"
	"io"

	coreAdapter "github.com/tigerroll/suicsync/pkg/batch/core/adapter"
)

// StorageProviderGroup is the fx value group collecting every StorageProvider.
const StorageProviderGroup = "storage_providers"

// StorageExecutor defines generic storage operations.
type StorageExecutor interface {
	// Upload uploads data to the specified bucket and object name.
	Upload(ctx context.Context, bucket, objectName string, data io.Reader, contentType string) error
	// Download returns a ReadCloser over the object. The caller must close it.
	Download(ctx context.Context, bucket, objectName string) (io.ReadCloser, error)
	// ListObjects calls fn for each object under prefix.
	ListObjects(ctx context.Context, bucket, prefix string, fn func(objectName string) error) error
	// DeleteObject deletes the specified object. Deleting a missing object is not an error.
	DeleteObject(ctx context.Context, bucket, objectName string) error
}

// StorageConnection represents one named storage connection.
type StorageConnection interface {
	coreAdapter.ResourceConnection // Close(), Type(), Name()
	StorageExecutor
	// Bucket returns the default bucket of the connection.
	Bucket() string
}

// StorageProvider manages the connections of one storage type (e.g., "local", "gcs").
type StorageProvider interface {
	// GetConnection retrieves the StorageConnection with the specified name, creating it on first use.
	GetConnection(ctx context.Context, name string) (StorageConnection, error)
	// CloseAll closes all connections managed by this provider.
	CloseAll() error
	// Type returns the storage type handled by this provider.
	Type() string
}

// StorageConnectionResolver resolves named storage connections across providers.
type StorageConnectionResolver interface {
	coreAdapter.ResourceConnectionResolver
	// ResolveStorageConnection resolves a StorageConnection instance by name.
	ResolveStorageConnection(ctx context.Context, name string) (StorageConnection, error)
}
