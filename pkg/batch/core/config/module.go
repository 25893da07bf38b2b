// Package config provides core configuration structures and utilities for the sync service.
// This module defines Fx providers for configuration-related components.
package config

import "go.uber.org/fx"

// NewLoggingConfigProvider extracts and provides *LoggingConfig from *Config.
// This allows other Fx components to depend only on the logging configuration.
func NewLoggingConfigProvider(cfg *Config) *LoggingConfig {
	return &cfg.App.System.Logging
}

// NewTransferConfigProvider extracts the transfer settings from *Config.
func NewTransferConfigProvider(cfg *Config) *TransferConfig {
	return &cfg.App.Transfer
}

// NewExecutionConfigProvider extracts the execution settings from *Config.
func NewExecutionConfigProvider(cfg *Config) *ExecutionConfig {
	return &cfg.App.Execution
}

// Module provides configuration-related components to Fx.
// The application supplies EmbeddedConfig (and optionally the named envFilePath).
var Module = fx.Options(
	fx.Provide(func() EnvironmentExpander {
		return NewOsEnvironmentExpander()
	}),
	fx.Provide(NewConfigProvider),
	fx.Provide(NewLoggingConfigProvider),
	fx.Provide(NewTransferConfigProvider),
	fx.Provide(NewExecutionConfigProvider),
)
