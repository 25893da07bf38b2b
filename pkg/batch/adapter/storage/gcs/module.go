package gcs

import (
	"go.uber.org/fx"

	storageAdapter "github.com/tigerroll/suicsync/pkg/batch/adapter/storage"
)

// Module provides the GCSProvider to the storage_providers group.
var Module = fx.Options(
	fx.Provide(fx.Annotate(
		NewGCSProvider,
		fx.As(new(storageAdapter.StorageProvider)),
		fx.ResultTags(`group:"storage_providers"`),
	)),
)
