package sql

import "time"

// RunEntity is the persistence shape of a row of suic_runs.
type RunEntity struct {
	ID                  string     `gorm:"column:id;primaryKey"`
	FlowState           *string    `gorm:"column:flow_state"`
	CurrentStep         int        `gorm:"column:current_step"`
	ExecutionID         *string    `gorm:"column:execution_id"`
	ExecutionStatus     *string    `gorm:"column:execution_status"`
	ExecutionType       *string    `gorm:"column:execution_type"`
	ExecutionLastUpdate *time.Time `gorm:"column:execution_last_update"`
	Version             int        `gorm:"column:version"`
	CreatedAt           time.Time  `gorm:"column:created_at"`
	UpdatedAt           time.Time  `gorm:"column:updated_at"`
}
