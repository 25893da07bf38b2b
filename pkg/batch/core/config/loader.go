package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/tigerroll/suicsync/pkg/batch/support/util/exception"
	"github.com/tigerroll/suicsync/pkg/batch/support/util/logger"

	"go.uber.org/fx"
)

// Package config provides utilities for loading and managing application configuration
// from various sources, including YAML files and environment variables.

const moduleName = "config"

// ConfigParams defines the dependencies for NewConfigProvider.
type ConfigParams struct {
	fx.In
	EmbeddedConfig EmbeddedConfig // EmbeddedConfig contains the raw bytes of the configuration file.
	EnvFilePath    string         `name:"envFilePath" optional:"true"` // EnvFilePath is the path to the .env file, if any.
	Expander       EnvironmentExpander `optional:"true"`
}

// loadConfig loads configuration from defaults, the embedded YAML and environment variables, in that order.
func loadConfig(envFilePath string, embeddedConfig EmbeddedConfig, expander EnvironmentExpander) (*Config, error) {
	if envFilePath != "" {
		if err := godotenv.Load(envFilePath); err != nil {
			logger.Warnf(".env file (%s) not found or could not be loaded: %v", envFilePath, err)
		}
	} else {
		if err := godotenv.Load(); err != nil {
			logger.Debugf(".env file not found or could not be loaded: %v", err)
		}
	}

	// 1. Defaults
	cfg := NewConfig()

	// 2. Embedded YAML, with ${VAR} placeholders expanded first.
	raw := []byte(embeddedConfig)
	if expander != nil {
		expanded, err := expander.Expand(raw)
		if err != nil {
			return nil, exception.NewBatchError(moduleName, exception.ErrValidation, "failed to expand environment placeholders", err)
		}
		raw = expanded
	}
	var yamlConfig Config
	if err := yaml.Unmarshal(raw, &yamlConfig); err != nil {
		return nil, exception.NewBatchError(moduleName, exception.ErrValidation, "failed to unmarshal embedded config", err)
	}
	mergeConfig(cfg, &yamlConfig)

	// 3. Environment overrides
	if err := loadStructFromEnv(reflect.ValueOf(cfg).Elem(), ""); err != nil {
		return nil, exception.NewBatchError(moduleName, exception.ErrValidation, "failed to load config from environment variables", err)
	}
	cfg.EmbeddedConfig = embeddedConfig
	return cfg, nil
}

// NewConfigProvider is an Fx provider that loads and provides *Config.
// It also sets the global logger level and validates the result.
func NewConfigProvider(params ConfigParams) (*Config, error) {
	expander := params.Expander
	if expander == nil {
		expander = NewOsEnvironmentExpander()
	}
	cfg, err := loadConfig(params.EnvFilePath, params.EmbeddedConfig, expander)
	if err != nil {
		return nil, err
	}

	logger.SetLogLevel(cfg.App.System.Logging.Level)
	logger.Infof("Log level set to: %s", cfg.App.System.Logging.Level)

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadConfig loads configuration from configuration files and environment variables.
func LoadConfig(envFilePath string, embeddedConfig EmbeddedConfig) (*Config, error) {
	return loadConfig(envFilePath, embeddedConfig, NewOsEnvironmentExpander())
}

// Validate checks the settings the engine cannot run without.
func Validate(cfg *Config) error {
	t := cfg.App.Transfer
	if t.BatchSize <= 0 {
		return exception.Validation(moduleName, "transfer.batch_size must be positive, got %d", t.BatchSize)
	}
	if t.SourceTable == "" || t.DestinationTable == "" {
		return exception.Validation(moduleName, "transfer.source_table and transfer.destination_table are required")
	}
	if len(t.Columns) == 0 {
		return exception.Validation(moduleName, "transfer.columns must list at least one column")
	}
	if len(cfg.App.Report.Dimensions) != 2 {
		return exception.Validation(moduleName, "report.dimensions must name exactly two columns, got %d", len(cfg.App.Report.Dimensions))
	}
	return nil
}

// mergeConfig performs a deep merge from sourceConfig into destConfig.
// Values in sourceConfig overwrite those in destConfig when they are not zero/empty.
func mergeConfig(destConfig, sourceConfig *Config) {
	mergeAppConfig(&destConfig.App, &sourceConfig.App)
}

func mergeAppConfig(dest, source *AppConfig) {
	mergeSystemConfig(&dest.System, &source.System)
	mergeTransferConfig(&dest.Transfer, &source.Transfer)
	mergeExecutionConfig(&dest.Execution, &source.Execution)
	mergeReportConfig(&dest.Report, &source.Report)
	mergeObservabilityConfig(&dest.Observability, &source.Observability)
	if source.Server.ListenAddress != "" {
		dest.Server.ListenAddress = source.Server.ListenAddress
	}
	dest.DatabaseConfigs = mergeRawMap(dest.DatabaseConfigs, source.DatabaseConfigs)
	dest.StorageConfigs = mergeRawMap(dest.StorageConfigs, source.StorageConfigs)
}

func mergeRawMap(dest, source map[string]interface{}) map[string]interface{} {
	if dest == nil {
		dest = make(map[string]interface{})
	}
	for key, value := range source {
		dest[key] = value
	}
	return dest
}

func mergeSystemConfig(dest, source *SystemConfig) {
	if source.Timezone != "" { dest.Timezone = source.Timezone }
	if source.Logging.Level != "" { dest.Logging.Level = source.Logging.Level }
	if source.Logging.SQLLevel != "" { dest.Logging.SQLLevel = source.Logging.SQLLevel }
}

func mergeTransferConfig(dest, source *TransferConfig) {
	if source.SourceDBRef != "" { dest.SourceDBRef = source.SourceDBRef }
	if source.DestinationDBRef != "" { dest.DestinationDBRef = source.DestinationDBRef }
	if source.WorkflowDBRef != "" { dest.WorkflowDBRef = source.WorkflowDBRef }
	if source.SourceTable != "" { dest.SourceTable = source.SourceTable }
	if source.DestinationTable != "" { dest.DestinationTable = source.DestinationTable }
	if source.PartitionColumn != "" { dest.PartitionColumn = source.PartitionColumn }
	if source.BatchSize != 0 { dest.BatchSize = source.BatchSize }
	if source.BatchPause != "" { dest.BatchPause = source.BatchPause }
	if source.ConnectTimeout != "" { dest.ConnectTimeout = source.ConnectTimeout }
	if source.ColumnSetVersion != "" { dest.ColumnSetVersion = source.ColumnSetVersion }
	if source.Columns != nil { dest.Columns = source.Columns }
}

func mergeExecutionConfig(dest, source *ExecutionConfig) {
	if source.LauncherEndpoint != "" { dest.LauncherEndpoint = source.LauncherEndpoint }
	if source.CallbackURL != "" { dest.CallbackURL = source.CallbackURL }
	if source.NotificationToken != "" { dest.NotificationToken = source.NotificationToken }
	if source.DispatchTimeout != "" { dest.DispatchTimeout = source.DispatchTimeout }
	if source.PollingInterval != "" { dest.PollingInterval = source.PollingInterval }
	if source.MaxPollingDuration != "" { dest.MaxPollingDuration = source.MaxPollingDuration }
}

func mergeReportConfig(dest, source *ReportConfig) {
	if source.Dimensions != nil { dest.Dimensions = source.Dimensions }
	if source.Measures != nil { dest.Measures = source.Measures }
	if source.StorageRef != "" { dest.StorageRef = source.StorageRef }
	if source.OutputDir != "" { dest.OutputDir = source.OutputDir }
	if source.Compression != "" { dest.Compression = source.Compression }
}

func mergeObservabilityConfig(dest, source *ObservabilityConfig) {
	if source.Metrics != "" { dest.Metrics = source.Metrics }
	if source.Tracing != "" { dest.Tracing = source.Tracing }
	if source.OTLPEndpoint != "" { dest.OTLPEndpoint = source.OTLPEndpoint }
	if source.OTLPProtocol != "" { dest.OTLPProtocol = source.OTLPProtocol }
	if source.ServiceName != "" { dest.ServiceName = source.ServiceName }
}

// loadStructFromEnv recursively loads configuration values into a struct from environment variables.
// It uses the "yaml" tag to determine the environment variable name,
// e.g. SUICSYNC_TRANSFER_BATCH_SIZE for App.Transfer.BatchSize.
func loadStructFromEnv(val reflect.Value, prefix string) error {
	typ := val.Type()
	for i := 0; i < typ.NumField(); i++ {
		field := val.Field(i)
		fieldType := typ.Field(i)
		yamlTag := fieldType.Tag.Get("yaml")
		if yamlTag == "" || yamlTag == "-" {
			continue
		}
		envVarName := strings.ToUpper(prefix + yamlTag)

		if field.Kind() == reflect.Struct {
			if err := loadStructFromEnv(field, envVarName+"_"); err != nil {
				return err
			}
			continue
		}

		if field.Kind() == reflect.Map && field.Type().Key().Kind() == reflect.String && field.Type().Elem().Kind() == reflect.Interface {
			// Named connections: SUICSYNC_DATABASE_SOURCE_HOST=db -> database.source.host
			loadMapOfMapsFromEnv(field, envVarName+"_")
			continue
		}

		envValue, exists := os.LookupEnv(envVarName)
		if !exists {
			continue
		}
		if err := setField(field, envValue); err != nil {
			return fmt.Errorf("failed to set field '%s' from env var '%s': %w", fieldType.Name, envVarName, err)
		}
	}
	return nil
}

// loadMapOfMapsFromEnv overrides entries of a map[string]interface{} holding named connection maps.
// The first segment after the prefix is the connection name, the rest is the key.
// Only connections already declared in YAML can be overridden; keys are lower-cased.
func loadMapOfMapsFromEnv(mapField reflect.Value, prefix string) {
	if mapField.IsNil() {
		return
	}
	for _, env := range os.Environ() {
		if !strings.HasPrefix(env, prefix) {
			continue
		}
		parts := strings.SplitN(strings.TrimPrefix(env, prefix), "=", 2)
		if len(parts) != 2 {
			continue
		}
		name, key, ok := splitConnectionKey(mapField, parts[0])
		if !ok {
			continue
		}
		entry, ok := mapField.MapIndex(reflect.ValueOf(name)).Interface().(map[string]interface{})
		if !ok {
			continue
		}
		entry[key] = parts[1]
	}
}

// splitConnectionKey matches the longest declared connection name at the start of keyAndField.
func splitConnectionKey(mapField reflect.Value, keyAndField string) (string, string, bool) {
	lower := strings.ToLower(keyAndField)
	best := ""
	for _, k := range mapField.MapKeys() {
		name := k.String()
		if strings.HasPrefix(lower, strings.ToLower(name)+"_") && len(name) > len(best) {
			best = name
		}
	}
	if best == "" {
		return "", "", false
	}
	return best, lower[len(best)+1:], true
}

// setField sets the value of a reflect.Value field based on its kind.
// It handles string, int, float, bool and comma-separated string slices.
func setField(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}
	switch field.Kind() {
	case reflect.String:
		field.SetString(value)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		intValue, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return err
		}
		field.SetInt(intValue)
	case reflect.Float64, reflect.Float32:
		floatValue, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(floatValue)
	case reflect.Bool:
		boolValue, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(boolValue)
	case reflect.Slice:
		if field.Type().Elem().Kind() != reflect.String {
			return nil
		}
		var items []string
		for _, item := range strings.Split(value, ",") {
			if item = strings.TrimSpace(item); item != "" {
				items = append(items, item)
			}
		}
		field.Set(reflect.ValueOf(items))
	}
	return nil
}
