package gorm

import (
	"go.uber.org/fx"

	"github.com/tigerroll/suicsync/pkg/batch/adapter/database"
	coreAdapter "github.com/tigerroll/suicsync/pkg/batch/core/adapter"
)

// Module exports the resolver of the gorm adapter package (concrete DB providers live in the dialect subpackages).
var Module = fx.Options(
	fx.Provide(fx.Annotate(
		NewGormDBConnectionResolver,
		fx.As(new(database.DBConnectionResolver)),
		fx.As(new(coreAdapter.ResourceConnectionResolver)),
		fx.As(fx.Self()),
	)),
)
