package model

import "time"

// ColumnSet is the fixed, versioned list of business columns written to the destination.
type ColumnSet struct {
	Version string
	Columns []string
}

// Has reports whether column belongs to the set.
func (c ColumnSet) Has(column string) bool {
	key := normalizeColumn(column)
	for _, col := range c.Columns {
		if normalizeColumn(col) == key {
			return true
		}
	}
	return false
}

// DefaultColumnSet is the destination column list of schema version "v1".
var DefaultColumnSet = ColumnSet{
	Version: "v1",
	Columns: []string{
		"society", "cost_center", "customer", "material", "document_date",
		"quantity", "amount", "currency", "margin",
	},
}

// Partition splits rows into consecutive, order-preserving batches of at most size rows.
// It returns nil for an empty input or a non-positive size.
func Partition[T any](rows []T, size int) [][]T {
	if len(rows) == 0 || size <= 0 {
		return nil
	}
	batches := make([][]T, 0, (len(rows)+size-1)/size)
	for start := 0; start < len(rows); start += size {
		end := start + size
		if end > len(rows) {
			end = len(rows)
		}
		batches = append(batches, rows[start:end:end])
	}
	return batches
}

// BatchResult is the outcome of one batch write attempt.
type BatchResult struct {
	RunID        string   `json:"runId"`
	PartitionKey string   `json:"partitionKey,omitempty"`
	BatchIndex   int      `json:"batchIndex"`
	TotalBatches int      `json:"totalBatches"`
	Processed    int      `json:"processed"`
	Success      bool     `json:"success"`
	Errors       []string `json:"errors,omitempty"`
}

// TransferSummary aggregates the batch results of one per-partition save.
type TransferSummary struct {
	RunID            string        `json:"runId"`
	PartitionKey     string        `json:"partitionKey"`
	Success          bool          `json:"success"`
	Message          string        `json:"message"`
	ProcessedRecords int           `json:"processedRecords"`
	TotalBatches     int           `json:"totalBatches"`
	Results          []BatchResult `json:"results"`
	Errors           []string      `json:"errors,omitempty"`
	Duration         time.Duration `json:"duration"`
}

// FailedBatches returns the number of unsuccessful batches.
func (s *TransferSummary) FailedBatches() int {
	n := 0
	for _, r := range s.Results {
		if !r.Success {
			n++
		}
	}
	return n
}

// MigrationSummary is the all-or-nothing outcome of a cross-database migration.
type MigrationSummary struct {
	RunID              string        `json:"runId"`
	Success            bool          `json:"success"`
	Message            string        `json:"message"`
	RecordsRead        int           `json:"recordsRead"`
	RecordsTransferred int           `json:"recordsTransferred"`
	TotalBatches       int           `json:"totalBatches"`
	Results            []BatchResult `json:"results"`
	Errors             []string      `json:"errors,omitempty"`
	Duration           time.Duration `json:"duration"`
}

// ProgressFunc is called after every batch with the 1-based batch number and the batch count.
type ProgressFunc func(batch, total int)
