package runstate

import (
	"context"
	"fmt"
)

// Persister stores a run's status.
type Persister interface {
	UpdateRunStatus(ctx context.Context, runID string, status Status) error
}

// Machine drives and persists the status of a single run.
type Machine struct {
	store   Persister
	runID   string
	current Status
}

// NewMachine returns a machine for runID currently in status.
func NewMachine(store Persister, runID string, status Status) *Machine {
	return &Machine{store: store, runID: runID, current: status}
}

// Current returns the last successfully persisted status.
func (m *Machine) Current() Status {
	return m.current
}

// Start moves the run into Running.
func (m *Machine) Start(ctx context.Context) error {
	return m.move(ctx, Running)
}

// Complete moves the run into Completed.
func (m *Machine) Complete(ctx context.Context) error {
	return m.move(ctx, Completed)
}

// Fail moves the run into Error.
func (m *Machine) Fail(ctx context.Context) error {
	return m.move(ctx, Error)
}

func (m *Machine) move(ctx context.Context, to Status) error {
	if err := Transition(m.current, to); err != nil {
		return err
	}
	if err := m.store.UpdateRunStatus(ctx, m.runID, to); err != nil {
		return fmt.Errorf("persisting status %s: %w", to, err)
	}
	m.current = to
	return nil
}
