package gameboot

import "fmt"

const (
	// inProgressErrorMessage triggers when Run is called on a sequence that is already running.
	inProgressErrorMessage = "already in progress"

	// doneErrorMessage triggers when Run is called on a sequence that has already completed.
	doneErrorMessage = "has already completed"

	// failedErrorMessage triggers when a sequence is used again after one of its units failed.
	failedErrorMessage = "has already failed"

	// inactiveErrorMessage triggers when Run is called on a Loader that was never activated.
	inactiveErrorMessage = "need to activate first"

	// destroyedErrorMessage triggers when Run is called on a Loader that lost the activation race or was released.
	destroyedErrorMessage = "loader has been destroyed"
)

// StageClosedError indicates an attempt to enqueue work into a stage that has already run to completion.
type StageClosedError int

// Error returns the error message for a StageClosedError.
func (s StageClosedError) Error() string {
	return fmt.Sprintf("stage %d is closed", int(s))
}

// InvalidStageTargetError indicates a configured initial scene index outside of the valid range. It is never returned
// to callers; the Loader logs it and falls back to Default.
type InvalidStageTargetError struct {
	Index, Count, Default int
}

// Error returns the error message for an InvalidStageTargetError.
func (i InvalidStageTargetError) Error() string {
	if i.Count > 0 {
		return fmt.Sprintf("invalid scene index %d (valid: 0..%d), using default %d", i.Index, i.Count-1, i.Default)
	}
	return fmt.Sprintf("invalid scene index %d, using default %d", i.Index, i.Default)
}

// InvalidStateError indicates that a sequence could not be run, either because it is already running, or because it
// has already completed.
type InvalidStateError string

// Error returns the error message for an InvalidStateError.
func (i InvalidStateError) Error() string {
	return fmt.Sprintf("cannot run sequence: %s", string(i))
}

// NilUnitError indicates that a nil Unit was enqueued.
type NilUnitError string

// Error returns the error message for a NilUnitError.
func (n NilUnitError) Error() string {
	return fmt.Sprintf("nil Unit provided: %q", string(n))
}

// UnitError wraps the error returned by a Unit, along with the name and stage it was enqueued under.
type UnitError struct {
	Unit  string
	Stage int
	Err   error
}

// Error returns the error message for a UnitError.
func (u UnitError) Error() string {
	return fmt.Sprintf("unit %q in stage %d failed: %v", u.Unit, u.Stage, u.Err)
}

// Unwrap returns the error returned by the Unit.
func (u UnitError) Unwrap() error {
	return u.Err
}

// Check that errors satisfy the error interface.
var _ error = StageClosedError(0)
var _ error = InvalidStageTargetError{}
var _ error = InvalidStateError("")
var _ error = NilUnitError("")
var _ error = UnitError{}
