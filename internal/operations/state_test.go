package operations

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOperationState_Lifecycle(t *testing.T) {
	state := NewOperationState("op-1")
	assert.Equal(t, "op-1", state.ID)
	assert.Equal(t, OperationStatusPending, state.Status)

	state.Start()
	assert.Equal(t, OperationStatusRunning, state.Status)
	assert.False(t, state.StartTime.IsZero())
	assert.False(t, state.IsComplete())

	state.Complete()
	assert.Equal(t, OperationStatusCompleted, state.Status)
	require.NotNil(t, state.EndTime)
	assert.True(t, state.IsComplete())
	assert.GreaterOrEqual(t, state.Duration().Nanoseconds(), int64(0))
}

func TestOperationState_Fail(t *testing.T) {
	state := NewOperationState("op-2")
	state.Start()
	state.Fail(assert.AnError)

	assert.Equal(t, OperationStatusFailed, state.Status)
	assert.Equal(t, assert.AnError, state.Error)
	assert.True(t, state.IsComplete())
}

func TestOperationState_Cancel(t *testing.T) {
	state := NewOperationState("op-3")
	state.Start()
	state.Cancel()

	assert.Equal(t, OperationStatusCancelled, state.Status)
	assert.True(t, state.IsComplete())
}

func TestOperationState_Steps(t *testing.T) {
	state := NewOperationState("op-4")

	ingest := NewStepState(StepIDIngest, StepNameIngest)
	validate := NewStepState(StepIDValidate, StepNameValidate)
	state.SetStep(ingest)
	state.SetStep(validate)

	assert.Same(t, ingest, state.GetStep(StepIDIngest))
	assert.Nil(t, state.GetStep("unknown"))

	ingest.Start()
	assert.Len(t, state.GetActiveSteps(), 1)

	ingest.Complete()
	validate.Fail(assert.AnError)
	assert.Len(t, state.GetCompletedSteps(), 1)
	assert.Len(t, state.GetFailedSteps(), 1)
	assert.True(t, state.HasFailures())
}

func TestOperationState_ContextAndConfig(t *testing.T) {
	state := NewOperationState("op-5")

	_, ok := state.GetContext(ContextKeyTemplate)
	assert.False(t, ok)

	state.SetContext(ContextKeyRawTables, []string{"a"})
	v, ok := state.GetContext(ContextKeyRawTables)
	require.True(t, ok)
	assert.Equal(t, []string{"a"}, v)

	state.SetConfig(ContextKeySourceFile, "data/input/acme.csv")
	v, ok = state.GetConfig(ContextKeySourceFile)
	require.True(t, ok)
	assert.Equal(t, "data/input/acme.csv", v)
}

func TestOperationState_Clone(t *testing.T) {
	state := NewOperationState("op-6")
	state.Start()
	step := NewStepState(StepIDIngest, StepNameIngest)
	step.SetMetadata("rows_read", 10)
	state.SetStep(step)
	state.SetConfig(ContextKeyProvider, "acme")
	state.SetContext(ContextKeyTemplateKey, "acme_jan")

	clone := state.Clone()
	require.NotSame(t, state, clone)
	assert.Equal(t, state.ID, clone.ID)
	assert.Equal(t, state.Status, clone.Status)

	cloned := clone.GetStep(StepIDIngest)
	require.NotNil(t, cloned)
	require.NotSame(t, step, cloned)
	assert.Equal(t, 10, cloned.Metadata["rows_read"])

	// Mutating the clone must not leak back into the original.
	cloned.SetMetadata("rows_read", 99)
	clone.SetConfig(ContextKeyProvider, "other")
	assert.Equal(t, 10, step.Metadata["rows_read"])
	v, _ := state.GetConfig(ContextKeyProvider)
	assert.Equal(t, "acme", v)
}
