package config

import (
	"time"
)

// Package config provides structures and utilities for managing application configuration.

// EmbeddedConfig holds the content of the configuration file, typically passed from main.go.
type EmbeddedConfig []byte

// LogLevel defines the logging level for the application.
type LogLevel string

const (
	LogLevelTrace  LogLevel = "TRACE"
	LogLevelDebug  LogLevel = "DEBUG"
	LogLevelInfo   LogLevel = "INFO"
	LogLevelWarn   LogLevel = "WARN"
	LogLevelError  LogLevel = "ERROR"
	LogLevelFatal  LogLevel = "FATAL"
	LogLevelSilent LogLevel = "SILENT"
)

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	// Level is the logging level (e.g., "INFO", "DEBUG", "TRACE").
	Level string `yaml:"level"`
	// SQLLevel is the GORM log level ("SILENT", "ERROR", "WARN", "INFO").
	SQLLevel string `yaml:"sql_level"`
}

// SystemConfig holds system-wide settings.
type SystemConfig struct {
	// Timezone is the application timezone (e.g., "UTC", "America/Lima").
	Timezone string `yaml:"timezone"`
	// Logging is the logging configuration.
	Logging LoggingConfig `yaml:"logging"`
}

// TransferConfig holds the settings of the batch transfer engine.
type TransferConfig struct {
	SourceDBRef      string `yaml:"source_db_ref"`      // Connection name of the source store.
	DestinationDBRef string `yaml:"destination_db_ref"` // Connection name of the destination store.
	WorkflowDBRef    string `yaml:"workflow_db_ref"`    // Connection name of the run/flow-state store.
	// SourceTable is the fully-qualified table read in one bulk SELECT.
	SourceTable string `yaml:"source_table"`
	// DestinationTable receives the transferred rows.
	DestinationTable string `yaml:"destination_table"`
	// PartitionColumn names the source column holding the partition key (e.g., country code).
	PartitionColumn string `yaml:"partition_column"`
	// BatchSize is the number of rows per multi-row INSERT.
	BatchSize int `yaml:"batch_size"`
	// BatchPause is the pause between two batches ("100ms"); "0s" disables it.
	BatchPause string `yaml:"batch_pause"`
	// ConnectTimeout bounds connection establishment ("10s").
	ConnectTimeout string `yaml:"connect_timeout"`
	// ColumnSetVersion identifies the destination column list.
	ColumnSetVersion string `yaml:"column_set_version"`
	// Columns is the destination column list written for every row.
	Columns []string `yaml:"columns"`
}

// ExecutionConfig holds the settings of the external process launcher and the status poller.
type ExecutionConfig struct {
	// LauncherEndpoint is the HTTP endpoint accepting launch requests.
	LauncherEndpoint string `yaml:"launcher_endpoint"`
	// CallbackURL is sent to the launcher so the process can report completion.
	CallbackURL string `yaml:"callback_url"`
	// NotificationToken is the bearer token required on inbound notifications.
	NotificationToken string `yaml:"notification_token"`
	// DispatchTimeout bounds one launch request ("15s").
	DispatchTimeout string `yaml:"dispatch_timeout"`
	// PollingInterval is the interval between two status checks ("17s").
	PollingInterval string `yaml:"polling_interval"`
	// MaxPollingDuration stops polling with a timeout outcome ("30m").
	MaxPollingDuration string `yaml:"max_polling_duration"`
}

// ReportConfig holds the settings of the aggregated report and its export.
type ReportConfig struct {
	Dimensions  []string `yaml:"dimensions"`  // Exactly two group-by columns.
	Measures    []string `yaml:"measures"`    // Summed numeric columns.
	StorageRef  string   `yaml:"storage_ref"` // Storage connection name for exported files.
	OutputDir   string   `yaml:"output_dir"`  // Object prefix of exported files.
	Compression string   `yaml:"compression"` // Parquet codec: "SNAPPY", "GZIP", "UNCOMPRESSED".
}

// ObservabilityConfig holds metrics and tracing settings.
type ObservabilityConfig struct {
	// Metrics selects the metrics backend: "prometheus", "otel" or "none".
	Metrics string `yaml:"metrics"`
	// Tracing selects the trace exporter: "otlp" or "none".
	Tracing string `yaml:"tracing"`
	// OTLPEndpoint is the collector address (e.g., "localhost:4317").
	OTLPEndpoint string `yaml:"otlp_endpoint"`
	// OTLPProtocol is "grpc" or "http".
	OTLPProtocol string `yaml:"otlp_protocol"`
	// ServiceName is reported as the service.name resource attribute.
	ServiceName string `yaml:"service_name"`
}

// ServerConfig holds the HTTP server settings of the serve command.
type ServerConfig struct {
	ListenAddress string `yaml:"listen_address"`
}

// AppConfig holds all configuration under the "suicsync" top-level key.
type AppConfig struct {
	System        SystemConfig        `yaml:"system"`
	Transfer      TransferConfig      `yaml:"transfer"`
	Execution     ExecutionConfig     `yaml:"execution"`
	Report        ReportConfig        `yaml:"report"`
	Observability ObservabilityConfig `yaml:"observability"`
	Server        ServerConfig        `yaml:"server"`
	// DatabaseConfigs holds named database connections, decoded by the database adapter.
	DatabaseConfigs map[string]interface{} `yaml:"database"`
	// StorageConfigs holds named storage connections, decoded by the storage adapter.
	StorageConfigs map[string]interface{} `yaml:"storage"`
}

// Config is the root structure for the entire application configuration.
type Config struct {
	App AppConfig `yaml:"suicsync"`
	// EmbeddedConfig holds configuration loaded from an embedded source, not from YAML.
	EmbeddedConfig EmbeddedConfig `yaml:"-"`
}

// NewConfig returns a new instance of Config with default values.
func NewConfig() *Config {
	return &Config{
		App: AppConfig{
			System: SystemConfig{
				Timezone: "UTC",
				Logging:  LoggingConfig{Level: "INFO", SQLLevel: string(LogLevelSilent)},
			},
			Transfer: TransferConfig{
				SourceDBRef:      "source",
				DestinationDBRef: "destination",
				WorkflowDBRef:    "workflow",
				SourceTable:      "suic.suic_source",
				DestinationTable: "suic_records",
				PartitionColumn:  "society",
				BatchSize:        500,
				BatchPause:       "100ms",
				ConnectTimeout:   "10s",
				ColumnSetVersion: "v1",
				Columns: []string{
					"society", "cost_center", "customer", "material", "document_date",
					"quantity", "amount", "currency", "margin",
				},
			},
			Execution: ExecutionConfig{
				DispatchTimeout:    "15s",
				PollingInterval:    "17s",
				MaxPollingDuration: "30m",
			},
			Report: ReportConfig{
				Dimensions:  []string{"society", "cost_center"},
				Measures:    []string{"quantity", "amount", "margin"},
				StorageRef:  "reports",
				OutputDir:   "reports",
				Compression: "SNAPPY",
			},
			Observability: ObservabilityConfig{
				Metrics:      "prometheus",
				Tracing:      "none",
				OTLPProtocol: "grpc",
				ServiceName:  "suicsync",
			},
			Server: ServerConfig{ListenAddress: ":8080"},
			DatabaseConfigs: map[string]interface{}{},
			StorageConfigs:  map[string]interface{}{},
		},
	}
}

// Duration parses a configured duration, falling back to def when the value is empty or malformed.
func Duration(value string, def time.Duration) time.Duration {
	if value == "" {
		return def
	}
	d, err := time.ParseDuration(value)
	if err != nil || d < 0 {
		return def
	}
	return d
}

// BatchPauseDuration returns the configured pause between batches.
func (c TransferConfig) BatchPauseDuration() time.Duration {
	return Duration(c.BatchPause, 100*time.Millisecond)
}

// ConnectTimeoutDuration returns the configured connection timeout.
func (c TransferConfig) ConnectTimeoutDuration() time.Duration {
	return Duration(c.ConnectTimeout, 10*time.Second)
}

// DispatchTimeoutDuration returns the configured launch request timeout.
func (c ExecutionConfig) DispatchTimeoutDuration() time.Duration {
	return Duration(c.DispatchTimeout, 15*time.Second)
}

// PollingIntervalDuration returns the configured interval between status checks.
func (c ExecutionConfig) PollingIntervalDuration() time.Duration {
	return Duration(c.PollingInterval, 17*time.Second)
}

// MaxPollingDurationValue returns the configured maximum polling duration.
func (c ExecutionConfig) MaxPollingDurationValue() time.Duration {
	return Duration(c.MaxPollingDuration, 30*time.Minute)
}
