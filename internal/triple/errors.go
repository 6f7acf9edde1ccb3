package triple

import (
	"errors"
	"fmt"
)

var (
	// ErrBoundsViolation is returned when a reference holds fewer elements
	// than a read requires.
	ErrBoundsViolation = errors.New("bounds violation")

	// ErrUnknownStrategy is returned for an unrecognised producer strategy.
	ErrUnknownStrategy = errors.New("unknown strategy")
)

// BoundsError reports a reference shorter than Want.
type BoundsError struct {
	Want int
	Got  int
}

func (e *BoundsError) Error() string {
	return fmt.Sprintf("%v: need %d elements, reference holds %d", ErrBoundsViolation, e.Want, e.Got)
}

func (e *BoundsError) Unwrap() error { return ErrBoundsViolation }
