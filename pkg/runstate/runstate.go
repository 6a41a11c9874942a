package runstate

import (
	"errors"
	"fmt"
)

// Status is a run lifecycle state.
type Status string

const (
	Draft     Status = "draft"
	Ready     Status = "ready"
	Running   Status = "running"
	Completed Status = "completed"
	Error     Status = "error"
)

// ErrInvalidTransition is returned for a transition the lifecycle forbids.
var ErrInvalidTransition = errors.New("invalid run status transition")

var transitions = map[Status][]Status{
	Draft:     {Ready, Running},
	Ready:     {Draft, Running},
	Running:   {Completed, Error},
	Completed: {Running},
	Error:     {Running},
}

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	_, ok := transitions[s]
	return ok
}

// Terminal reports whether s ends an execution pass.
func (s Status) Terminal() bool {
	return s == Completed || s == Error
}

// CanTransition reports whether a run may move from one status to another.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Sources returns the statuses a run may move into to from, in a stable
// order.
func Sources(to Status) []Status {
	var out []Status
	for _, from := range []Status{Draft, Ready, Running, Completed, Error} {
		if CanTransition(from, to) {
			out = append(out, from)
		}
	}
	return out
}

// Transition validates a status change.
func Transition(from, to Status) error {
	if !CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	return nil
}

// CanStart reports whether an execution pass may begin from s.
func CanStart(s Status) bool {
	return CanTransition(s, Running)
}
