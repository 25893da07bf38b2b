package config

import (
	"fmt"

	"github.com/mitchellh/mapstructure"

	coreConfig "github.com/tigerroll/suicsync/pkg/batch/core/config"
	"github.com/tigerroll/suicsync/pkg/batch/support/util/exception"
)

// StorageConfig holds configuration for a single storage connection.
type StorageConfig struct {
	Type            string `yaml:"type"`             // Type of storage ("local" or "gcs").
	BucketName      string `yaml:"bucket_name"`      // Default bucket name for operations.
	CredentialsFile string `yaml:"credentials_file"` // Path to a service account key for GCS.
	Endpoint        string `yaml:"endpoint"`         // Optional API endpoint override (e.g., an emulator).
	BaseDir         string `yaml:"base_dir"`         // Base directory for local file system operations.
}

// Decode converts one raw "storage" entry into a StorageConfig.
func Decode(raw interface{}) (StorageConfig, error) {
	var cfg StorageConfig
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &cfg,
		TagName:          "yaml",
		WeaklyTypedInput: true,
	})
	if err != nil {
		return cfg, err
	}
	if err := decoder.Decode(raw); err != nil {
		return cfg, fmt.Errorf("failed to decode storage config: %w", err)
	}
	return cfg, nil
}

// Lookup finds and decodes the storage connection called name.
func Lookup(cfg *coreConfig.Config, name string) (StorageConfig, error) {
	raw, ok := cfg.App.StorageConfigs[name]
	if !ok {
		return StorageConfig{}, exception.Validation("storage", "storage connection '%s' not found in configuration", name)
	}
	sc, err := Decode(raw)
	if err != nil {
		return sc, exception.Validation("storage", "invalid storage connection '%s'", name, err)
	}
	return sc, nil
}
