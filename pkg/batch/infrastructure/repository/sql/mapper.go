package sql

import (
	"github.com/tigerroll/suicsync/pkg/batch/core/domain/model"
)

func toDomainRun(e *RunEntity) *model.Run {
	run := &model.Run{
		ID:          e.ID,
		CurrentStep: e.CurrentStep,
		Version:     e.Version,
		CreatedAt:   e.CreatedAt,
		UpdatedAt:   e.UpdatedAt,
	}
	if e.FlowState != nil {
		run.FlowState = []byte(*e.FlowState)
	}
	if e.ExecutionID != nil && *e.ExecutionID != "" {
		rec := &model.ExecutionRecord{ExecutionID: *e.ExecutionID}
		if e.ExecutionStatus != nil {
			rec.Status = model.ExecutionStatus(*e.ExecutionStatus)
		}
		if e.ExecutionType != nil {
			rec.Type = model.ExecutionType(*e.ExecutionType)
		}
		if e.ExecutionLastUpdate != nil {
			rec.LastUpdate = *e.ExecutionLastUpdate
		}
		run.Execution = rec
	}
	return run
}

// createValues returns the column map inserted for a new run.
func createValues(run *model.Run) map[string]interface{} {
	values := map[string]interface{}{
		"id":           run.ID,
		"current_step": run.CurrentStep,
		"version":      0,
		"created_at":   run.CreatedAt,
		"updated_at":   run.UpdatedAt,
	}
	if run.FlowState != nil {
		values["flow_state"] = string(run.FlowState)
	}
	if run.Execution != nil {
		for k, v := range executionValues(*run.Execution) {
			values[k] = v
		}
	}
	return values
}

func executionValues(rec model.ExecutionRecord) map[string]interface{} {
	return map[string]interface{}{
		"execution_id":          rec.ExecutionID,
		"execution_status":      string(rec.Status),
		"execution_type":        string(rec.Type),
		"execution_last_update": rec.LastUpdate,
	}
}
