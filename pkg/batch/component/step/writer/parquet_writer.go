package writer

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/xitongsys/parquet-go/parquet"
	pqwriter "github.com/xitongsys/parquet-go/writer"

	"github.com/tigerroll/suicsync/pkg/batch/adapter/storage"
	"github.com/tigerroll/suicsync/pkg/batch/core/domain/model"
	"github.com/tigerroll/suicsync/pkg/batch/support/util/exception"
	"github.com/tigerroll/suicsync/pkg/batch/support/util/logger"
)

// ParquetWriterConfig holds the configuration for ParquetReportWriter.
type ParquetWriterConfig struct {
	// StorageRef is the name of the storage connection to use (e.g., "reports").
	StorageRef string
	// OutputBaseDir is the base directory of generated files within the bucket.
	OutputBaseDir string
	// CompressionType is "SNAPPY", "GZIP" or "NONE".
	CompressionType string
}

// ParquetReportWriter encodes an aggregated report as one Parquet file and uploads it.
type ParquetReportWriter struct {
	config   ParquetWriterConfig
	resolver storage.StorageConnectionResolver
	now      func() time.Time
}

// NewParquetReportWriter validates the configuration and creates a writer.
func NewParquetReportWriter(cfg ParquetWriterConfig, resolver storage.StorageConnectionResolver) (*ParquetReportWriter, error) {
	if cfg.StorageRef == "" {
		return nil, exception.Validation(moduleName, "parquet writer requires a storage ref")
	}
	if cfg.CompressionType == "" {
		cfg.CompressionType = "SNAPPY"
	}
	if _, err := getCompressionCodec(cfg.CompressionType); err != nil {
		return nil, exception.Validation(moduleName, "invalid compression type '%s'", cfg.CompressionType, err)
	}
	return &ParquetReportWriter{config: cfg, resolver: resolver, now: time.Now}, nil
}

// Write uploads the report of one run to OutputBaseDir/run_id=<runID>/ and returns the object name.
func (w *ParquetReportWriter) Write(ctx context.Context, report *model.ReportResult) (string, error) {
	codec, _ := getCompressionCodec(w.config.CompressionType)
	data, err := EncodeParquet(report.Records(), codec)
	if err != nil {
		return "", err
	}

	conn, err := w.resolver.ResolveStorageConnection(ctx, w.config.StorageRef)
	if err != nil {
		return "", err
	}

	fileName := fmt.Sprintf("report_%s_%s.parquet", w.now().UTC().Format("20060102150405"), uuid.NewString()[:8])
	objectName := path.Join(w.config.OutputBaseDir, "run_id="+report.RunID, fileName)
	logger.Debugf("ParquetReportWriter: uploading %d bytes to %s/%s.", len(data), w.config.StorageRef, objectName)
	if err := conn.Upload(ctx, "", objectName, bytes.NewReader(data), "application/x-parquet"); err != nil {
		return "", exception.NewBatchErrorf(moduleName, exception.ErrConnectivity, "failed to upload report of run %s to '%s'", report.RunID, objectName, err)
	}
	logger.Infof("ParquetReportWriter: report of run %s (%d groups) uploaded to %s.", report.RunID, len(report.Groups), objectName)
	return objectName, nil
}

// EncodeParquet writes records into an in-memory Parquet file with one row group.
// WriteStop can panic inside the library; the panic is returned as an error.
func EncodeParquet(records []model.ReportRecord, codec parquet.CompressionCodec) (data []byte, err error) {
	buf := new(bytes.Buffer)
	rowGroupSize := int64(len(records))
	if rowGroupSize == 0 {
		rowGroupSize = 1
	}
	pw, err := pqwriter.NewParquetWriterFromWriter(buf, new(model.ReportRecord), rowGroupSize)
	if err != nil {
		return nil, exception.NewBatchError(moduleName, exception.ErrBatchWrite, "failed to create parquet writer", err)
	}
	pw.CompressionType = codec

	for _, rec := range records {
		if err := pw.Write(rec); err != nil {
			return nil, exception.NewBatchError(moduleName, exception.ErrBatchWrite, "failed to write parquet record", err)
		}
	}

	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("ParquetReportWriter: recovered from panic during WriteStop: %v", r)
			data = nil
			err = exception.NewBatchError(moduleName, exception.ErrBatchWrite, "parquet writer panicked", fmt.Errorf("%v", r))
		}
	}()
	if err := pw.WriteStop(); err != nil {
		return nil, exception.NewBatchError(moduleName, exception.ErrBatchWrite, "failed to finalize parquet file", err)
	}
	return buf.Bytes(), nil
}

// getCompressionCodec returns the Parquet compression codec from a string.
func getCompressionCodec(compressionType string) (parquet.CompressionCodec, error) {
	switch strings.ToUpper(compressionType) {
	case "SNAPPY":
		return parquet.CompressionCodec_SNAPPY, nil
	case "GZIP":
		return parquet.CompressionCodec_GZIP, nil
	case "NONE", "":
		return parquet.CompressionCodec_UNCOMPRESSED, nil
	default:
		return 0, fmt.Errorf("unsupported compression type: %s", compressionType)
	}
}
