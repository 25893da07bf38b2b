// Package gcs stores report objects in Google Cloud Storage.
package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	gcs "cloud.google.com/go/storage"
	"github.com/hashicorp/go-multierror"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	storageAdapter "github.com/tigerroll/suicsync/pkg/batch/adapter/storage"
	storageConfig "github.com/tigerroll/suicsync/pkg/batch/adapter/storage/config"
	coreConfig "github.com/tigerroll/suicsync/pkg/batch/core/config"
	"github.com/tigerroll/suicsync/pkg/batch/support/util/logger"
)

// ProviderType is the storage type handled by this package.
const ProviderType = "gcs"

type gcsAdapter struct {
	client *gcs.Client
	cfg    storageConfig.StorageConfig
	name   string
}

var _ storageAdapter.StorageConnection = (*gcsAdapter)(nil)

// ClientOptions maps a storage configuration to GCS client options.
func ClientOptions(cfg storageConfig.StorageConfig) []option.ClientOption {
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.Endpoint), option.WithoutAuthentication())
	}
	return opts
}

// NewGCSAdapter opens a GCS client for cfg.
func NewGCSAdapter(ctx context.Context, cfg storageConfig.StorageConfig, name string) (storageAdapter.StorageConnection, error) {
	if cfg.BucketName == "" {
		return nil, fmt.Errorf("gcs storage adapter '%s': bucket_name must be specified in configuration", name)
	}
	client, err := gcs.NewClient(ctx, ClientOptions(cfg)...)
	if err != nil {
		return nil, fmt.Errorf("gcs storage adapter '%s': failed to create client: %w", name, err)
	}
	return &gcsAdapter{client: client, cfg: cfg, name: name}, nil
}

func (a *gcsAdapter) Close() error {
	logger.Debugf("GCS storage adapter '%s' closed.", a.name)
	return a.client.Close()
}

func (a *gcsAdapter) Type() string   { return ProviderType }
func (a *gcsAdapter) Name() string   { return a.name }
func (a *gcsAdapter) Bucket() string { return a.cfg.BucketName }

func (a *gcsAdapter) bucket(name string) *gcs.BucketHandle {
	if name == "" {
		name = a.cfg.BucketName
	}
	return a.client.Bucket(name)
}

// Upload streams data into the object. The object becomes visible when the writer closes.
func (a *gcsAdapter) Upload(ctx context.Context, bucket, objectName string, data io.Reader, contentType string) error {
	w := a.bucket(bucket).Object(objectName).NewWriter(ctx)
	w.ContentType = contentType
	if _, err := io.Copy(w, data); err != nil {
		_ = w.Close()
		return fmt.Errorf("failed to upload gs object '%s': %w", objectName, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to finalize gs object '%s': %w", objectName, err)
	}
	logger.Debugf("Uploaded gs object %s (gcs adapter '%s').", objectName, a.name)
	return nil
}

func (a *gcsAdapter) Download(ctx context.Context, bucket, objectName string) (io.ReadCloser, error) {
	r, err := a.bucket(bucket).Object(objectName).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read gs object '%s': %w", objectName, err)
	}
	return r, nil
}

func (a *gcsAdapter) ListObjects(ctx context.Context, bucket, prefix string, fn func(objectName string) error) error {
	it := a.bucket(bucket).Objects(ctx, &gcs.Query{Prefix: prefix})
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to list gs objects with prefix '%s': %w", prefix, err)
		}
		if err := fn(attrs.Name); err != nil {
			return err
		}
	}
}

func (a *gcsAdapter) DeleteObject(ctx context.Context, bucket, objectName string) error {
	err := a.bucket(bucket).Object(objectName).Delete(ctx)
	if errors.Is(err, gcs.ErrObjectNotExist) {
		logger.Warnf("Attempted to delete non-existent gs object '%s' (gcs adapter '%s').", objectName, a.name)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to delete gs object '%s': %w", objectName, err)
	}
	return nil
}

// GCSProvider implements storage.StorageProvider for GCS connections.
type GCSProvider struct {
	cfg         *coreConfig.Config
	connections map[string]storageAdapter.StorageConnection
	mu          sync.Mutex
}

// NewGCSProvider creates a new GCSProvider.
func NewGCSProvider(cfg *coreConfig.Config) *GCSProvider {
	return &GCSProvider{
		cfg:         cfg,
		connections: make(map[string]storageAdapter.StorageConnection),
	}
}

// GetConnection returns the connection called name, opening a client on first use.
func (p *GCSProvider) GetConnection(ctx context.Context, name string) (storageAdapter.StorageConnection, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if conn, ok := p.connections[name]; ok {
		return conn, nil
	}
	storageCfg, err := storageConfig.Lookup(p.cfg, name)
	if err != nil {
		return nil, err
	}
	if storageCfg.Type != ProviderType {
		return nil, fmt.Errorf("storage config type mismatch for '%s': expected '%s', got '%s'", name, ProviderType, storageCfg.Type)
	}
	conn, err := NewGCSAdapter(ctx, storageCfg, name)
	if err != nil {
		return nil, err
	}
	p.connections[name] = conn
	logger.Infof("Opened GCS storage connection '%s' (bucket %s).", name, storageCfg.BucketName)
	return conn, nil
}

// CloseAll closes every GCS client.
func (p *GCSProvider) CloseAll() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	var errs *multierror.Error
	for name, conn := range p.connections {
		if err := conn.Close(); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("failed to close gcs connection '%s': %w", name, err))
		}
		delete(p.connections, name)
	}
	return errs.ErrorOrNil()
}

// Type returns "gcs".
func (p *GCSProvider) Type() string {
	return ProviderType
}
