package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// StepStatus represents the state of one workflow step.
type StepStatus string

const (
	StepPending    StepStatus = "pending"
	StepProcessing StepStatus = "processing"
	StepCompleted  StepStatus = "completed"
	StepError      StepStatus = "error"
)

// String returns the string representation of the StepStatus.
func (s StepStatus) String() string {
	return string(s)
}

// IsValid reports whether s is one of the four known statuses.
func (s StepStatus) IsValid() bool {
	switch s {
	case StepPending, StepProcessing, StepCompleted, StepError:
		return true
	}
	return false
}

// Step names in workflow order: upload, transfer, generation.
const (
	Step1 = "step1"
	Step2 = "step2"
	Step3 = "step3"
)

// StepNames lists the steps in their fixed order.
var StepNames = [3]string{Step1, Step2, Step3}

// StepIndex returns the 0-based position of a step name, or -1.
func StepIndex(name string) int {
	for i, n := range StepNames {
		if n == name {
			return i
		}
	}
	return -1
}

// StepState is the persisted state of a single step.
type StepState struct {
	Status    StepStatus `json:"status"`
	UpdatedAt *time.Time `json:"updatedAt,omitempty"`
	Message   *string    `json:"message,omitempty"`
}

// FlowState holds the three ordered workflow steps of a run.
type FlowState struct {
	Step1 StepState `json:"step1"`
	Step2 StepState `json:"step2"`
	Step3 StepState `json:"step3"`
}

// NewFlowState returns the initial state with every step pending.
func NewFlowState() FlowState {
	return FlowState{
		Step1: StepState{Status: StepPending},
		Step2: StepState{Status: StepPending},
		Step3: StepState{Status: StepPending},
	}
}

// Step returns a pointer to the named step, or nil for an unknown name.
func (f *FlowState) Step(name string) *StepState {
	switch name {
	case Step1:
		return &f.Step1
	case Step2:
		return &f.Step2
	case Step3:
		return &f.Step3
	}
	return nil
}

// At returns the step at a 0-based index. ok is false outside 0..2.
func (f FlowState) At(index int) (StepState, bool) {
	if index < 0 || index >= len(StepNames) {
		return StepState{}, false
	}
	return *f.Step(StepNames[index]), true
}

// Marshal serializes the state as the persisted JSON blob.
func (f FlowState) Marshal() ([]byte, error) {
	return json.Marshal(f)
}

// Value implements the `driver.Valuer` interface, storing the FlowState as a JSON string.
func (f FlowState) Value() (driver.Value, error) {
	data, err := f.Marshal()
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

// Scan implements the `sql.Scanner` interface. Malformed content yields the default state.
func (f *FlowState) Scan(value interface{}) error {
	switch v := value.(type) {
	case nil:
		*f = NewFlowState()
	case []byte:
		*f = Parse(v)
	case string:
		*f = Parse([]byte(v))
	default:
		return fmt.Errorf("unsupported Scan type for FlowState: %T", value)
	}
	return nil
}

// Parse deserializes a persisted blob. It never fails: an absent or malformed
// blob, a missing step or a step with an unknown status all yield pending steps
// without timestamp or message.
func Parse(raw []byte) FlowState {
	state := NewFlowState()
	if len(raw) == 0 {
		return state
	}
	var steps map[string]json.RawMessage
	if err := json.Unmarshal(raw, &steps); err != nil {
		return state
	}
	for _, name := range StepNames {
		if s, ok := parseStep(steps[name]); ok {
			*state.Step(name) = s
		}
	}
	return state
}

func parseStep(raw json.RawMessage) (StepState, bool) {
	if len(raw) == 0 {
		return StepState{}, false
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return StepState{}, false
	}
	var status StepStatus
	if err := json.Unmarshal(fields["status"], &status); err != nil || !status.IsValid() {
		return StepState{}, false
	}
	s := StepState{Status: status}
	if v, ok := fields["updatedAt"]; ok {
		var ts time.Time
		if json.Unmarshal(v, &ts) == nil {
			s.UpdatedAt = &ts
		}
	}
	if v, ok := fields["message"]; ok {
		var msg string
		if json.Unmarshal(v, &msg) == nil {
			s.Message = &msg
		}
	}
	return s, true
}

// NeedsRepair reports whether a persisted blob must be rewritten in normalized
// form: it is absent, not a JSON object, or any step lacks a valid status.
func NeedsRepair(raw []byte) bool {
	if len(raw) == 0 {
		return true
	}
	var steps map[string]json.RawMessage
	if err := json.Unmarshal(raw, &steps); err != nil || steps == nil {
		return true
	}
	for _, name := range StepNames {
		if _, ok := parseStep(steps[name]); !ok {
			return true
		}
	}
	return false
}

// ComputeSuggestedStep returns the resume point: 0 until step1 completes,
// 1 until step2 completes, then 2.
func ComputeSuggestedStep(f FlowState) int {
	if f.Step1.Status != StepCompleted {
		return 0
	}
	if f.Step2.Status != StepCompleted {
		return 1
	}
	return 2
}

// CanAccessStep applies the access gating policy. A step is reachable only
// when every earlier step is completed.
func CanAccessStep(f FlowState, index int) bool {
	switch {
	case index <= 0:
		return true
	case index == 1:
		return f.Step1.Status == StepCompleted
	case index == 2:
		return f.Step1.Status == StepCompleted && f.Step2.Status == StepCompleted
	default:
		return false
	}
}

// StepUpdate is a partial update for one step.
type StepUpdate struct {
	Step    string
	Status  StepStatus
	Message *string
}

// Apply merges updates into a copy of f, stamping each updated step with now.
// A nil message clears any previous message.
func (f FlowState) Apply(updates []StepUpdate, now time.Time) FlowState {
	merged := f
	for _, u := range updates {
		s := merged.Step(u.Step)
		if s == nil {
			continue
		}
		ts := now
		s.Status = u.Status
		s.UpdatedAt = &ts
		s.Message = u.Message
	}
	return merged
}
