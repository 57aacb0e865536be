package engine

import (
	"errors"
	"fmt"
)

// Stage names a step of message execution.
type Stage string

const (
	StageReceived      Stage = "received"
	StageAuthenticated Stage = "authenticated"
	StageSlotConsumed  Stage = "slot_consumed"
	StageDecoded       Stage = "decoded"
	StageStateUpdated  Stage = "state_updated"
	StageExternalCall  Stage = "external_call_issued"
	StageComplete      Stage = "complete"
)

// ExecutionError reports a message that did not complete.
//
// Stage is the last stage the message reached. SlotSpent is true when the
// failure happened after the slot was consumed; the slot then stays spent
// and the message is terminal.
type ExecutionError struct {
	// ExecutionID correlates the error with its receipt and log lines.
	ExecutionID string

	// Stage is the last stage reached before the failure.
	Stage Stage

	// SlotSpent reports whether the sequence slot was spent.
	SlotSpent bool

	// Err is the underlying cause, usually an *ir.Error.
	Err error
}

// Error implements the error interface.
func (e *ExecutionError) Error() string {
	if e.SlotSpent {
		return fmt.Sprintf("execution %s failed after %s (slot spent): %v", e.ExecutionID, e.Stage, e.Err)
	}
	return fmt.Sprintf("execution %s rejected at %s: %v", e.ExecutionID, e.Stage, e.Err)
}

// Unwrap returns the underlying cause so errors.Is matches ir sentinels.
func (e *ExecutionError) Unwrap() error {
	return e.Err
}

// IsSlotSpent reports whether err is an execution failure that spent its
// slot. Uses errors.As to handle wrapped errors.
func IsSlotSpent(err error) bool {
	var ee *ExecutionError
	if errors.As(err, &ee) {
		return ee.SlotSpent
	}
	return false
}

// StageOf returns the stage an execution error stopped at.
func StageOf(err error) (Stage, bool) {
	var ee *ExecutionError
	if errors.As(err, &ee) {
		return ee.Stage, true
	}
	return "", false
}
