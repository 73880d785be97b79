package annotation

import (
	"errors"
	"fmt"
)

// ErrMalformedRegion is matched by every error produced for a region record
// that cannot be decoded.
var ErrMalformedRegion = errors.New("malformed region")

var (
	errShape      = errors.New("neither [x, y] nor [[x, y], ...]")
	errNotNumeric = errors.New("coordinates are not numbers")
	errNotFinite  = errors.New("coordinates are not finite")
)

// MalformedRegionError locates a record that failed to decode.
type MalformedRegionError struct {
	// Slice is the slice index of the record
	Slice int

	// Region is the position of the record within its slice
	Region int

	// Err describes what is wrong with the record; it wraps ErrMalformedRegion
	Err error
}

func (e *MalformedRegionError) Error() string {
	return fmt.Sprintf("slice %d, region %d: %v", e.Slice, e.Region, e.Err)
}

func (e *MalformedRegionError) Unwrap() error {
	return e.Err
}

// malformed builds a decode error that matches ErrMalformedRegion.
func malformed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMalformedRegion, fmt.Sprintf(format, args...))
}
