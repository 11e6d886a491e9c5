package operations

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeStep is a configurable step used across the orchestration tests.
type fakeStep struct {
	BaseStep
	execute  func(ctx context.Context, state *OperationState) error
	validate func(state *OperationState) error
}

func newFakeStep(id, name string, dependencies []string) *fakeStep {
	return &fakeStep{BaseStep: NewBaseStep(id, name, dependencies)}
}

func (f *fakeStep) Execute(ctx context.Context, state *OperationState) error {
	if f.execute != nil {
		return f.execute(ctx, state)
	}
	return nil
}

func (f *fakeStep) Validate(state *OperationState) error {
	if f.validate != nil {
		return f.validate(state)
	}
	return nil
}

func TestRegistry_Register(t *testing.T) {
	r := NewRegistry()

	require.NoError(t, r.Register(newFakeStep("a", "A", nil)))
	assert.True(t, r.Has("a"))
	assert.Equal(t, 1, r.Count())

	assert.Error(t, r.Register(newFakeStep("a", "A", nil)), "duplicate registration")
	assert.Error(t, r.Register(nil))
	assert.Error(t, r.Register(newFakeStep("", "empty", nil)))
}

func TestRegistry_GetAndUnregister(t *testing.T) {
	r := NewRegistry()
	step := newFakeStep("a", "A", nil)
	require.NoError(t, r.Register(step))

	got, err := r.Get("a")
	require.NoError(t, err)
	assert.Same(t, step, got)

	_, err = r.Get("missing")
	assert.Error(t, err)

	require.NoError(t, r.Unregister("a"))
	assert.False(t, r.Has("a"))
	assert.Error(t, r.Unregister("a"))
}

func TestRegistry_ListPreservesRegistrationOrder(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(newFakeStep("c", "C", nil)))
	require.NoError(t, r.Register(newFakeStep("a", "A", nil)))
	require.NoError(t, r.Register(newFakeStep("b", "B", nil)))

	assert.Equal(t, []string{"c", "a", "b"}, r.ListIDs())
	assert.Len(t, r.List(), 3)
}

func TestRegistry_GetDependencyOrder(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(newFakeStep(StepIDRoute, "Route", []string{StepIDValidate})))
	require.NoError(t, r.Register(newFakeStep(StepIDValidate, "Validate", []string{StepIDTransform})))
	require.NoError(t, r.Register(newFakeStep(StepIDTransform, "Transform", []string{StepIDMap})))
	require.NoError(t, r.Register(newFakeStep(StepIDMap, "Map", []string{StepIDResolve})))
	require.NoError(t, r.Register(newFakeStep(StepIDResolve, "Resolve", []string{StepIDIngest})))
	require.NoError(t, r.Register(newFakeStep(StepIDIngest, "Ingest", nil)))

	ordered, err := r.GetDependencyOrder()
	require.NoError(t, err)

	ids := make([]string, len(ordered))
	for i, s := range ordered {
		ids[i] = s.ID()
	}
	assert.Equal(t, PipelineSteps(), ids)
}

func TestRegistry_GetDependencyOrder_MissingDependency(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(newFakeStep("b", "B", []string{"a"})))

	_, err := r.GetDependencyOrder()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unregistered step")
}

func TestRegistry_GetDependencyOrder_Cycle(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(newFakeStep("a", "A", []string{"b"})))
	require.NoError(t, r.Register(newFakeStep("b", "B", []string{"a"})))

	_, err := r.GetDependencyOrder()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cycle")
}

func TestRegistry_ValidateDependencies(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(newFakeStep("a", "A", nil)))
	require.NoError(t, r.Register(newFakeStep("b", "B", []string{"a"})))
	assert.NoError(t, r.ValidateDependencies())

	require.NoError(t, r.Register(newFakeStep("c", "C", []string{"ghost"})))
	assert.Error(t, r.ValidateDependencies())
}

func TestRegistry_GetDependents(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(newFakeStep("a", "A", nil)))
	require.NoError(t, r.Register(newFakeStep("b", "B", []string{"a"})))
	require.NoError(t, r.Register(newFakeStep("c", "C", []string{"a"})))

	assert.ElementsMatch(t, []string{"b", "c"}, r.GetDependents("a"))
	assert.Empty(t, r.GetDependents("b"))
}

func TestRegistry_Clear(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(newFakeStep("a", "A", nil)))
	r.Clear()
	assert.Equal(t, 0, r.Count())
	assert.Empty(t, r.ListIDs())
}
