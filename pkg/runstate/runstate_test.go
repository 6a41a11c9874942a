package runstate

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingStore struct {
	statuses []Status
	failOn   Status
}

func (r *recordingStore) UpdateRunStatus(_ context.Context, _ string, status Status) error {
	if status == r.failOn {
		return errors.New("storage unavailable")
	}
	r.statuses = append(r.statuses, status)
	return nil
}

func TestCanTransition(t *testing.T) {
	allowed := [][2]Status{
		{Draft, Ready},
		{Ready, Draft},
		{Draft, Running},
		{Ready, Running},
		{Running, Completed},
		{Running, Error},
		{Completed, Running},
		{Error, Running},
	}
	for _, tr := range allowed {
		assert.True(t, CanTransition(tr[0], tr[1]), "%s -> %s", tr[0], tr[1])
	}

	forbidden := [][2]Status{
		{Draft, Completed},
		{Draft, Error},
		{Ready, Completed},
		{Running, Running},
		{Running, Draft},
		{Completed, Error},
		{Completed, Draft},
		{Error, Completed},
		{Status("cancelled"), Running},
		{Running, Status("cancelled")},
	}
	for _, tr := range forbidden {
		assert.False(t, CanTransition(tr[0], tr[1]), "%s -> %s", tr[0], tr[1])
	}
}

func TestSources(t *testing.T) {
	assert.Equal(t, []Status{Draft, Ready, Completed, Error}, Sources(Running))
	assert.Equal(t, []Status{Running}, Sources(Completed))
	assert.Equal(t, []Status{Running}, Sources(Error))
	assert.Equal(t, []Status{Draft}, Sources(Ready))
	assert.NotContains(t, Sources(Running), Running)
}

func TestTransition_Error(t *testing.T) {
	err := Transition(Running, Running)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.Contains(t, err.Error(), "running -> running")
}

func TestStatusHelpers(t *testing.T) {
	for _, s := range []Status{Draft, Ready, Running, Completed, Error} {
		assert.True(t, s.Valid(), s)
	}
	assert.False(t, Status("cancelled").Valid())

	assert.True(t, Completed.Terminal())
	assert.True(t, Error.Terminal())
	assert.False(t, Running.Terminal())

	assert.True(t, CanStart(Draft))
	assert.True(t, CanStart(Completed))
	assert.True(t, CanStart(Error))
	assert.False(t, CanStart(Running))
}

func TestMachine_HappyPath(t *testing.T) {
	store := &recordingStore{}
	m := NewMachine(store, "run-1", Draft)

	require.NoError(t, m.Start(context.Background()))
	assert.Equal(t, Running, m.Current())
	require.NoError(t, m.Complete(context.Background()))
	assert.Equal(t, Completed, m.Current())

	// Re-run from a terminal state.
	require.NoError(t, m.Start(context.Background()))
	require.NoError(t, m.Fail(context.Background()))

	assert.Equal(t, []Status{Running, Completed, Running, Error}, store.statuses)
}

func TestMachine_RejectsCompleteWithoutRunning(t *testing.T) {
	store := &recordingStore{}
	m := NewMachine(store, "run-1", Ready)

	err := m.Complete(context.Background())
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.Empty(t, store.statuses)
	assert.Equal(t, Ready, m.Current())
}

func TestMachine_PersistFailureKeepsState(t *testing.T) {
	store := &recordingStore{failOn: Completed}
	m := NewMachine(store, "run-1", Draft)

	require.NoError(t, m.Start(context.Background()))
	err := m.Complete(context.Background())
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, Running, m.Current())

	require.NoError(t, m.Fail(context.Background()))
	assert.Equal(t, Error, m.Current())
}
