package local_test

import (
	"context"
	"io"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/suicsync/pkg/batch/adapter/storage/config"
	"github.com/tigerroll/suicsync/pkg/batch/adapter/storage/local"
)

func TestLocalAdapter_UploadListDownloadDelete(t *testing.T) {
	conn, err := local.NewLocalAdapter(config.StorageConfig{Type: "local", BaseDir: t.TempDir(), BucketName: "reports"}, "reports")
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, conn.Upload(ctx, "", "run-1/summary.parquet", strings.NewReader("PAR1"), "application/octet-stream"))
	require.NoError(t, conn.Upload(ctx, "", "run-2/summary.parquet", strings.NewReader("PAR1"), "application/octet-stream"))

	var names []string
	require.NoError(t, conn.ListObjects(ctx, "", "run-1/", func(name string) error {
		names = append(names, name)
		return nil
	}))
	sort.Strings(names)
	assert.Equal(t, []string{"run-1/summary.parquet"}, names)

	r, err := conn.Download(ctx, "", "run-1/summary.parquet")
	require.NoError(t, err)
	body, err := io.ReadAll(r)
	require.NoError(t, r.Close())
	require.NoError(t, err)
	assert.Equal(t, "PAR1", string(body))

	require.NoError(t, conn.DeleteObject(ctx, "", "run-1/summary.parquet"))
	require.NoError(t, conn.DeleteObject(ctx, "", "run-1/summary.parquet"), "deleting twice is not an error")
}

func TestLocalAdapter_RejectsPathEscape(t *testing.T) {
	conn, err := local.NewLocalAdapter(config.StorageConfig{Type: "local", BaseDir: t.TempDir()}, "reports")
	require.NoError(t, err)

	err = conn.Upload(context.Background(), "", "../outside.txt", strings.NewReader("x"), "text/plain")
	assert.Error(t, err)
}

func TestLocalAdapter_RequiresBaseDir(t *testing.T) {
	_, err := local.NewLocalAdapter(config.StorageConfig{Type: "local"}, "reports")
	assert.Error(t, err)
}
