package sim

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidSpeed is returned when the initial speed is not a positive number.
	ErrInvalidSpeed = errors.New("initial speed must be a positive number")
	// ErrInvalidDistance is returned when the checkpoint distance is not a
	// positive number, both at validation time and as a mid-run guard.
	ErrInvalidDistance = errors.New("total distance must be a positive number")
	// ErrInvalidZone is returned for a zone outside the defined set.
	ErrInvalidZone = errors.New("unknown zone")
	// ErrInvalidState is returned when an operation is not legal in the
	// current phase, e.g. braking a terminated run.
	ErrInvalidState = errors.New("invalid simulation state")
	// ErrNonMonotonicTime is returned when a tick does not move time forward.
	ErrNonMonotonicTime = errors.New("elapsed time must increase between ticks")
	// ErrInternalInvariant marks programming errors; it is only ever used as
	// a panic value.
	ErrInternalInvariant = errors.New("internal invariant violated")
)

// ValidationError reports bad run parameters before a run starts.
type ValidationError struct {
	Field string
	Value float64
	Err   error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s %v: %v", e.Field, e.Value, e.Err)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}
