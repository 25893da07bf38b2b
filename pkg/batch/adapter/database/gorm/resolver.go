package gorm

import (
	"context"

	"go.uber.org/fx"

	"github.com/tigerroll/suicsync/pkg/batch/adapter/database"
	coreAdapter "github.com/tigerroll/suicsync/pkg/batch/core/adapter"
	config "github.com/tigerroll/suicsync/pkg/batch/core/config"
	"github.com/tigerroll/suicsync/pkg/batch/support/util/exception"
	"github.com/tigerroll/suicsync/pkg/batch/support/util/logger"
)

// GormDBConnectionResolver is the GORM implementation of database.DBConnectionResolver.
type GormDBConnectionResolver struct {
	dbProviders map[string]database.DBProvider // keyed by database type (e.g., "postgres", "mysql")
	cfg         *config.Config
}

// NewGormDBConnectionResolver creates a new GormDBConnectionResolver from every registered DBProvider.
func NewGormDBConnectionResolver(p struct {
	fx.In
	DBProviders []database.DBProvider `group:"db_providers"`
	Cfg         *config.Config
}) *GormDBConnectionResolver {
	return NewResolver(p.Cfg, p.DBProviders...)
}

// NewResolver builds a resolver over the given providers.
func NewResolver(cfg *config.Config, providers ...database.DBProvider) *GormDBConnectionResolver {
	providerMap := make(map[string]database.DBProvider)
	for _, provider := range providers {
		providerMap[provider.Type()] = provider
	}
	return &GormDBConnectionResolver{
		dbProviders: providerMap,
		cfg:         cfg,
	}
}

// ResolveDBConnection resolves a database connection with the specified name.
// A connection that fails its health check is re-established once.
func (r *GormDBConnectionResolver) ResolveDBConnection(ctx context.Context, name string) (database.DBConnection, error) {
	dbConfig, err := LookupDatabaseConfig(r.cfg, name)
	if err != nil {
		return nil, err
	}

	provider, ok := r.dbProviders[dbConfig.Type]
	if !ok {
		return nil, exception.Validation(moduleName, "no DBProvider for type '%s' (connection '%s')", dbConfig.Type, name)
	}

	conn, err := provider.GetConnection(name)
	if err != nil {
		return nil, err
	}

	if pingErr := conn.RefreshConnection(ctx); pingErr != nil {
		logger.Warnf("DBConnectionResolver: Connection '%s' is invalid (%v). Attempting to reconnect.", name, pingErr)
		reconnectedConn, reconnectErr := provider.ForceReconnect(name)
		if reconnectErr != nil {
			return nil, reconnectErr
		}
		logger.Infof("DBConnectionResolver: Successfully reconnected connection '%s'.", name)
		return reconnectedConn, nil
	}

	return conn, nil
}

// ResolveConnection implements coreAdapter.ResourceConnectionResolver.
func (r *GormDBConnectionResolver) ResolveConnection(ctx context.Context, name string) (coreAdapter.ResourceConnection, error) {
	return r.ResolveDBConnection(ctx, name)
}

// CloseAll closes the connections of every provider.
func (r *GormDBConnectionResolver) CloseAll() error {
	var lastErr error
	for _, provider := range r.dbProviders {
		if err := provider.CloseAll(); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

// Close implements io.Closer for the resource registry.
func (r *GormDBConnectionResolver) Close() error {
	return r.CloseAll()
}
