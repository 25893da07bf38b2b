package model

import (
	"time"
)

// ExecutionStatus represents the state of an externally launched process.
type ExecutionStatus string

const (
	ExecutionPending   ExecutionStatus = "pending"
	ExecutionRunning   ExecutionStatus = "running"
	ExecutionCompleted ExecutionStatus = "completed"
	ExecutionError     ExecutionStatus = "error"
)

// String returns the string representation of the ExecutionStatus.
func (s ExecutionStatus) String() string {
	return string(s)
}

// IsTerminal reports whether s is final. Terminal records accept no further transitions.
func (s ExecutionStatus) IsTerminal() bool {
	return s == ExecutionCompleted || s == ExecutionError
}

// IsValid reports whether s is a known status.
func (s ExecutionStatus) IsValid() bool {
	switch s {
	case ExecutionPending, ExecutionRunning, ExecutionCompleted, ExecutionError:
		return true
	}
	return false
}

// ExecutionType enumerates the kinds of external process that can be launched.
type ExecutionType string

const (
	// ExecutionTypeSuicLoad loads the transferred dataset into the downstream system.
	ExecutionTypeSuicLoad ExecutionType = "suic_load"
	// ExecutionTypeReportGeneration produces the generated report of step 3.
	ExecutionTypeReportGeneration ExecutionType = "report_generation"
)

// String returns the string representation of the ExecutionType.
func (t ExecutionType) String() string {
	return string(t)
}

// IsValid reports whether t is a known execution type.
func (t ExecutionType) IsValid() bool {
	return t == ExecutionTypeSuicLoad || t == ExecutionTypeReportGeneration
}

// ExecutionRecord identifies an external process launched for a run.
type ExecutionRecord struct {
	ExecutionID string          `json:"executionId"`
	Status      ExecutionStatus `json:"status"`
	Type        ExecutionType   `json:"type"`
	LastUpdate  time.Time       `json:"lastUpdate"`
}

// CanTransitionTo reports whether the record may move to next.
// pending may become running or error; any non-terminal state may become completed or error.
func (r ExecutionRecord) CanTransitionTo(next ExecutionStatus) bool {
	if r.Status.IsTerminal() {
		return false
	}
	switch next {
	case ExecutionRunning:
		return r.Status == ExecutionPending
	case ExecutionCompleted, ExecutionError:
		return true
	}
	return false
}

// Run is the persisted logical run that owns the flow state and execution metadata.
type Run struct {
	ID          string
	FlowState   []byte // raw persisted blob; nil when never written
	CurrentStep int
	Execution   *ExecutionRecord
	Version     int
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
