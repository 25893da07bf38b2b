package model_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/suicsync/pkg/batch/core/domain/model"
)

func TestParse_DefaultsForAbsentAndMalformed(t *testing.T) {
	fromNil := model.Parse(nil)
	fromGarbage := model.Parse([]byte("not json"))

	assert.Equal(t, model.NewFlowState(), fromNil)
	assert.Equal(t, fromNil, fromGarbage)
	for _, name := range model.StepNames {
		s := fromNil.Step(name)
		assert.Equal(t, model.StepPending, s.Status)
		assert.Nil(t, s.UpdatedAt)
		assert.Nil(t, s.Message)
	}
}

func TestParse_PartialBlob(t *testing.T) {
	raw := []byte(`{"step1":{"status":"completed","updatedAt":"2024-03-01T10:00:00Z","message":"uploaded"},"step2":{"status":"bogus"},"step3":42}`)

	state := model.Parse(raw)

	assert.Equal(t, model.StepCompleted, state.Step1.Status)
	require.NotNil(t, state.Step1.UpdatedAt)
	assert.True(t, state.Step1.UpdatedAt.Equal(time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)))
	require.NotNil(t, state.Step1.Message)
	assert.Equal(t, "uploaded", *state.Step1.Message)
	assert.Equal(t, model.StepState{Status: model.StepPending}, state.Step2)
	assert.Equal(t, model.StepState{Status: model.StepPending}, state.Step3)
}

func TestParse_RoundTrip(t *testing.T) {
	msg := "3 batches written"
	state := model.NewFlowState().Apply([]model.StepUpdate{
		{Step: model.Step1, Status: model.StepCompleted},
		{Step: model.Step2, Status: model.StepError, Message: &msg},
	}, time.Date(2024, 5, 2, 8, 0, 0, 0, time.UTC))

	raw, err := state.Marshal()
	require.NoError(t, err)
	assert.False(t, model.NeedsRepair(raw))

	parsed := model.Parse(raw)
	assert.Equal(t, model.StepError, parsed.Step2.Status)
	assert.Equal(t, msg, *parsed.Step2.Message)
	assert.Equal(t, model.StepPending, parsed.Step3.Status)
}

func TestNeedsRepair(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want bool
	}{
		{"absent", "", true},
		{"not json", "{{", true},
		{"json null", "null", true},
		{"missing step", `{"step1":{"status":"pending"},"step2":{"status":"pending"}}`, true},
		{"missing status", `{"step1":{"status":"pending"},"step2":{"message":"x"},"step3":{"status":"pending"}}`, true},
		{"complete", `{"step1":{"status":"completed"},"step2":{"status":"processing"},"step3":{"status":"pending"}}`, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, model.NeedsRepair([]byte(tt.raw)))
		})
	}
}

func stateOf(s1, s2, s3 model.StepStatus) model.FlowState {
	return model.FlowState{
		Step1: model.StepState{Status: s1},
		Step2: model.StepState{Status: s2},
		Step3: model.StepState{Status: s3},
	}
}

func TestComputeSuggestedStep(t *testing.T) {
	tests := []struct {
		name  string
		state model.FlowState
		want  int
	}{
		{"all pending", stateOf(model.StepPending, model.StepPending, model.StepPending), 0},
		{"step1 error", stateOf(model.StepError, model.StepCompleted, model.StepCompleted), 0},
		{"step1 completed", stateOf(model.StepCompleted, model.StepPending, model.StepPending), 1},
		{"step2 processing", stateOf(model.StepCompleted, model.StepProcessing, model.StepPending), 1},
		{"step3 pending", stateOf(model.StepCompleted, model.StepCompleted, model.StepPending), 2},
		{"step3 error", stateOf(model.StepCompleted, model.StepCompleted, model.StepError), 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, model.ComputeSuggestedStep(tt.state))
		})
	}
}

func TestCanAccessStep(t *testing.T) {
	statuses := []model.StepStatus{model.StepPending, model.StepProcessing, model.StepCompleted, model.StepError}
	for _, s1 := range statuses {
		for _, s2 := range statuses {
			for _, s3 := range statuses {
				state := stateOf(s1, s2, s3)
				assert.True(t, model.CanAccessStep(state, -1))
				assert.True(t, model.CanAccessStep(state, 0))
				assert.Equal(t, s1 == model.StepCompleted, model.CanAccessStep(state, 1))
				assert.Equal(t, s1 == model.StepCompleted && s2 == model.StepCompleted, model.CanAccessStep(state, 2))
				assert.False(t, model.CanAccessStep(state, 3))
			}
		}
	}
}

func TestFlowState_Scan(t *testing.T) {
	var state model.FlowState
	require.NoError(t, state.Scan([]byte(`{"step1":{"status":"completed"}}`)))
	assert.Equal(t, model.StepCompleted, state.Step1.Status)

	require.NoError(t, state.Scan(nil))
	assert.Equal(t, model.NewFlowState(), state)

	assert.Error(t, state.Scan(12))
}
