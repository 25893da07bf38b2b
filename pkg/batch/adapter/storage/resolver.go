package storage

import (
	"context"

	"github.com/hashicorp/go-multierror"
	"github.com/mitchellh/mapstructure"
	"go.uber.org/fx"

	coreAdapter "github.com/tigerroll/suicsync/pkg/batch/core/adapter"
	coreConfig "github.com/tigerroll/suicsync/pkg/batch/core/config"
	"github.com/tigerroll/suicsync/pkg/batch/support/util/exception"
)

// Resolver dispatches named storage connections to the provider of their configured type.
type Resolver struct {
	providers map[string]StorageProvider
	cfg       *coreConfig.Config
}

var _ StorageConnectionResolver = (*Resolver)(nil)

// NewStorageConnectionResolver collects the storage_providers group.
func NewStorageConnectionResolver(p struct {
	fx.In
	Providers []StorageProvider `group:"storage_providers"`
	Cfg       *coreConfig.Config
}) *Resolver {
	return NewResolver(p.Cfg, p.Providers...)
}

// NewResolver builds a resolver over the given providers.
func NewResolver(cfg *coreConfig.Config, providers ...StorageProvider) *Resolver {
	m := make(map[string]StorageProvider, len(providers))
	for _, p := range providers {
		m[p.Type()] = p
	}
	return &Resolver{providers: m, cfg: cfg}
}

// ResolveStorageConnection returns the connection called name.
func (r *Resolver) ResolveStorageConnection(ctx context.Context, name string) (StorageConnection, error) {
	raw, ok := r.cfg.App.StorageConfigs[name]
	if !ok {
		return nil, exception.Validation("storage", "storage connection '%s' not found in configuration", name)
	}
	var typed struct {
		Type string `mapstructure:"type"`
	}
	if err := mapstructure.Decode(raw, &typed); err != nil {
		return nil, exception.Validation("storage", "failed to decode storage type for '%s'", name, err)
	}
	provider, ok := r.providers[typed.Type]
	if !ok {
		return nil, exception.Validation("storage", "no storage provider for type '%s' (connection '%s')", typed.Type, name)
	}
	conn, err := provider.GetConnection(ctx, name)
	if err != nil {
		if exception.KindOf(err) == nil {
			err = exception.NewBatchErrorf("storage", exception.ErrConnectivity, "failed to open storage connection '%s'", name, err)
		}
		return nil, err
	}
	return conn, nil
}

// ResolveConnection implements coreAdapter.ResourceConnectionResolver.
func (r *Resolver) ResolveConnection(ctx context.Context, name string) (coreAdapter.ResourceConnection, error) {
	return r.ResolveStorageConnection(ctx, name)
}

// Close closes the connections of every provider.
func (r *Resolver) Close() error {
	var errs *multierror.Error
	for _, p := range r.providers {
		if err := p.CloseAll(); err != nil {
			errs = multierror.Append(errs, err)
		}
	}
	return errs.ErrorOrNil()
}
