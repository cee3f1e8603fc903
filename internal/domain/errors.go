package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrConflict          = errors.New("conflict")
	ErrInvalidInput      = errors.New("invalid input")
	ErrProviderFailure   = errors.New("provider failure")
	ErrInvalidResponse   = errors.New("invalid provider response")
	ErrSafetyBlocked     = errors.New("blocked by provider safety filter")
	ErrRetriesExhausted  = errors.New("generation attempts exhausted")
	ErrCancelled         = errors.New("pipeline cancelled")
	ErrAlreadyRunning    = errors.New("slot already claimed by another run")
	ErrUnknownCategory   = errors.New("unknown asset category")
	ErrCategoryUnfilled  = errors.New("required category has no candidates")
	ErrNoScenario        = errors.New("no eligible scenario")
	ErrStuck             = errors.New("slot stuck past stall timeout")
	ErrInvalidTransition = errors.New("invalid status transition")
)

// StageError records the stage a pipeline run had reached when it failed.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// StageOf extracts the failing stage from err, if any.
func StageOf(err error) (Stage, bool) {
	var se *StageError
	if errors.As(err, &se) {
		return se.Stage, true
	}
	return "", false
}
