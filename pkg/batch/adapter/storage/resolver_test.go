package storage_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/suicsync/pkg/batch/adapter/storage"
	"github.com/tigerroll/suicsync/pkg/batch/adapter/storage/gcs"
	"github.com/tigerroll/suicsync/pkg/batch/adapter/storage/local"
	coreConfig "github.com/tigerroll/suicsync/pkg/batch/core/config"
	"github.com/tigerroll/suicsync/pkg/batch/support/util/exception"
)

func newConfig(t *testing.T) *coreConfig.Config {
	cfg := coreConfig.NewConfig()
	cfg.App.StorageConfigs = map[string]interface{}{
		"reports": map[string]interface{}{"type": "local", "base_dir": t.TempDir(), "bucket_name": "suic"},
		"archive": map[string]interface{}{"type": "gcs"},
		"legacy":  map[string]interface{}{"type": "ftp"},
	}
	return cfg
}

func TestResolver_DispatchesByType(t *testing.T) {
	cfg := newConfig(t)
	r := storage.NewResolver(cfg, local.NewLocalProvider(cfg), gcs.NewGCSProvider(cfg))

	conn, err := r.ResolveStorageConnection(context.Background(), "reports")
	require.NoError(t, err)
	assert.Equal(t, "local", conn.Type())
	assert.Equal(t, "suic", conn.Bucket())

	again, err := r.ResolveConnection(context.Background(), "reports")
	require.NoError(t, err)
	assert.Same(t, conn, again)
	assert.NoError(t, r.Close())
}

func TestResolver_Errors(t *testing.T) {
	cfg := newConfig(t)
	r := storage.NewResolver(cfg, local.NewLocalProvider(cfg), gcs.NewGCSProvider(cfg))
	ctx := context.Background()

	_, err := r.ResolveStorageConnection(ctx, "missing")
	assert.ErrorIs(t, err, exception.ErrValidation)

	_, err = r.ResolveStorageConnection(ctx, "legacy")
	assert.ErrorIs(t, err, exception.ErrValidation)

	_, err = r.ResolveStorageConnection(ctx, "archive")
	assert.ErrorIs(t, err, exception.ErrConnectivity, "gcs without bucket_name cannot open")
}
