package local

import (
	"go.uber.org/fx"

	storageAdapter "github.com/tigerroll/suicsync/pkg/batch/adapter/storage"
)

// Module provides the LocalProvider to the storage_providers group.
var Module = fx.Options(
	fx.Provide(fx.Annotate(
		NewLocalProvider,
		fx.As(new(storageAdapter.StorageProvider)),
		fx.ResultTags(`group:"storage_providers"`),
	)),
)
