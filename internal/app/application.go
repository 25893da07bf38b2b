// Package app assembles the sync service from its packages with uber-fx.
package app

import (
	"context"

	"go.uber.org/fx"

	"github.com/tigerroll/suicsync/pkg/batch/adapter/database"
	config "github.com/tigerroll/suicsync/pkg/batch/core/config"
	"github.com/tigerroll/suicsync/pkg/batch/core/domain/repository"
	"github.com/tigerroll/suicsync/pkg/batch/engine/execution"
	"github.com/tigerroll/suicsync/pkg/batch/engine/flow"
	"github.com/tigerroll/suicsync/pkg/batch/engine/report"
	"github.com/tigerroll/suicsync/pkg/batch/engine/transfer"
	observability "github.com/tigerroll/suicsync/pkg/batch/infrastructure/metrics"
	"github.com/tigerroll/suicsync/pkg/batch/support/registry"
	"github.com/tigerroll/suicsync/pkg/batch/support/util/logger"
)

// Components are the wired services handed to a command.
type Components struct {
	fx.In

	Config        *config.Config
	DBResolver    database.DBConnectionResolver
	Repository    repository.RunRepository
	Flow          *flow.Store
	Orchestrator  *transfer.Orchestrator
	Tracker       *execution.Tracker
	Querier       *report.Querier
	Exporter      *report.Exporter
	Observability *observability.Observability
	Registry      *registry.Registry
}

// Options returns the fx options of the application.
func Options(envFilePath string, embeddedConfig config.EmbeddedConfig) []fx.Option {
	options := []fx.Option{
		fx.Supply(
			embeddedConfig,
			fx.Annotate(envFilePath, fx.ResultTags(`name:"envFilePath"`)),
		),
		logger.Module,
		config.Module,
	}
	options = append(options, dbProviderOptions()...)
	return append(options, Module)
}

// Run starts the application, hands the components to fn and stops the application when fn returns.
func Run(ctx context.Context, envFilePath string, embeddedConfig config.EmbeddedConfig, fn func(ctx context.Context, c Components) error) error {
	var components Components
	app := fx.New(append(Options(envFilePath, embeddedConfig),
		fx.Invoke(func(c Components) { components = c }),
	)...)
	if err := app.Err(); err != nil {
		return err
	}
	if err := app.Start(ctx); err != nil {
		return err
	}

	runErr := fn(ctx, components)

	stopCtx, cancel := context.WithTimeout(context.Background(), app.StopTimeout())
	defer cancel()
	if err := app.Stop(stopCtx); err != nil {
		logger.Errorf("Application stop failed: %v", err)
		if runErr == nil {
			runErr = err
		}
	}
	return runErr
}
