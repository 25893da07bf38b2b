package app

import (
	"context"
	"os"
	"strings"

	"go.uber.org/fx"

	"github.com/tigerroll/suicsync/pkg/batch/adapter/database"
	gormadapter "github.com/tigerroll/suicsync/pkg/batch/adapter/database/gorm"
	"github.com/tigerroll/suicsync/pkg/batch/adapter/database/gorm/mysql"
	"github.com/tigerroll/suicsync/pkg/batch/adapter/database/gorm/postgres"
	"github.com/tigerroll/suicsync/pkg/batch/adapter/database/gorm/sqlite"
	"github.com/tigerroll/suicsync/pkg/batch/adapter/storage"
	"github.com/tigerroll/suicsync/pkg/batch/adapter/storage/gcs"
	"github.com/tigerroll/suicsync/pkg/batch/adapter/storage/local"
	"github.com/tigerroll/suicsync/pkg/batch/component/step/writer"
	port "github.com/tigerroll/suicsync/pkg/batch/core/application/port"
	config "github.com/tigerroll/suicsync/pkg/batch/core/config"
	"github.com/tigerroll/suicsync/pkg/batch/core/domain/model"
	"github.com/tigerroll/suicsync/pkg/batch/core/domain/repository"
	"github.com/tigerroll/suicsync/pkg/batch/core/metrics"
	"github.com/tigerroll/suicsync/pkg/batch/engine/execution"
	"github.com/tigerroll/suicsync/pkg/batch/engine/flow"
	"github.com/tigerroll/suicsync/pkg/batch/engine/report"
	"github.com/tigerroll/suicsync/pkg/batch/engine/transfer"
	observability "github.com/tigerroll/suicsync/pkg/batch/infrastructure/metrics"
	"github.com/tigerroll/suicsync/pkg/batch/infrastructure/remote"
	"github.com/tigerroll/suicsync/pkg/batch/infrastructure/repository/inmemory"
	sqlrepo "github.com/tigerroll/suicsync/pkg/batch/infrastructure/repository/sql"
	"github.com/tigerroll/suicsync/pkg/batch/support/registry"
	"github.com/tigerroll/suicsync/pkg/batch/support/util/logger"
)

// DBProviderModules maps a DB_ADAPTORS entry to the module of its provider.
var DBProviderModules = map[string]fx.Option{
	"mysql":    mysql.Module,
	"postgres": postgres.Module,
	"sqlite":   sqlite.Module,
}

// dbProviderOptions selects the DB providers named in DB_ADAPTORS (comma-separated).
// All providers are registered when it is unset.
func dbProviderOptions() []fx.Option {
	adaptors := os.Getenv("DB_ADAPTORS")
	if adaptors == "" {
		adaptors = "mysql,postgres,sqlite"
	}
	options := make([]fx.Option, 0)
	for _, name := range strings.Split(adaptors, ",") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if module, ok := DBProviderModules[name]; ok {
			options = append(options, module)
			logger.Debugf("DB Provider '%s' selected and registered.", name)
		} else {
			logger.Warnf("DB Provider '%s' is configured but not recognized/supported. Skipping.", name)
		}
	}
	return options
}

func provideRegistry(lc fx.Lifecycle, dbResolver *gormadapter.GormDBConnectionResolver, storageResolver *storage.Resolver) (*registry.Registry, error) {
	reg := registry.New()
	if err := reg.Register("db:resolver", dbResolver); err != nil {
		return nil, err
	}
	if err := reg.Register("storage:resolver", storageResolver); err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{OnStop: func(ctx context.Context) error {
		logger.Debugf("Closing %d registered resources.", reg.Len())
		return reg.CloseAll()
	}})
	return reg, nil
}

// provideRunRepository uses the workflow connection when one is configured.
func provideRunRepository(cfg *config.Config, dbResolver database.DBConnectionResolver) repository.RunRepository {
	ref := cfg.App.Transfer.WorkflowDBRef
	if _, ok := cfg.App.DatabaseConfigs[ref]; ok {
		return sqlrepo.NewSQLRunRepository(dbResolver, ref)
	}
	logger.Warnf("No database connection '%s' is configured; runs are kept in memory and lost on exit.", ref)
	return inmemory.NewInMemoryRunRepository()
}

func provideOrchestrator(cfg *config.Config, dbResolver database.DBConnectionResolver, flowStore *flow.Store, recorder metrics.MetricRecorder, tracer metrics.Tracer) *transfer.Orchestrator {
	return transfer.NewOrchestrator(dbResolver, cfg.App.Transfer, flowStore, recorder, tracer)
}

func provideTracker(cfg *config.Config, repo repository.RunRepository, launcher port.Launcher, flowStore *flow.Store, recorder metrics.MetricRecorder, tracer metrics.Tracer) *execution.Tracker {
	return execution.NewTracker(repo, launcher, flowStore, cfg.App.Execution.CallbackURL, recorder, tracer)
}

func columnSet(cfg config.TransferConfig) model.ColumnSet {
	if len(cfg.Columns) == 0 {
		return model.DefaultColumnSet
	}
	return model.ColumnSet{Version: cfg.ColumnSetVersion, Columns: cfg.Columns}
}

func provideQuerier(cfg *config.Config, dbResolver database.DBConnectionResolver) (*report.Querier, error) {
	t := cfg.App.Transfer
	return report.NewQuerier(dbResolver, t.DestinationDBRef, t.DestinationTable, columnSet(t), cfg.App.Report)
}

func provideExporter(cfg *config.Config, querier *report.Querier, storageResolver storage.StorageConnectionResolver, flowStore *flow.Store, recorder metrics.MetricRecorder, tracer metrics.Tracer) (*report.Exporter, error) {
	r := cfg.App.Report
	w, err := writer.NewParquetReportWriter(writer.ParquetWriterConfig{
		StorageRef:      r.StorageRef,
		OutputBaseDir:   r.OutputDir,
		CompressionType: r.Compression,
	}, storageResolver)
	if err != nil {
		return nil, err
	}
	return report.NewExporter(querier, w, flowStore, recorder, tracer), nil
}

// Module wires the engine over the configured adapters.
var Module = fx.Options(
	gormadapter.Module,
	local.Module,
	gcs.Module,
	fx.Provide(fx.Annotate(
		storage.NewStorageConnectionResolver,
		fx.As(new(storage.StorageConnectionResolver)),
		fx.As(fx.Self()),
	)),
	fx.Provide(provideRegistry),
	observability.Module,
	remote.Module,
	fx.Provide(provideRunRepository),
	fx.Provide(flow.NewStore),
	fx.Provide(provideOrchestrator),
	fx.Provide(provideTracker),
	fx.Provide(provideQuerier),
	fx.Provide(provideExporter),
)
