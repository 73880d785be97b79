package reconstruction

import (
	"errors"
	"fmt"
)

// ErrRasterization is matched by every per-region rasterization failure.
var ErrRasterization = errors.New("rasterization failed")

var (
	errNoPoints   = errors.New("region has no points")
	errNotFinite  = errors.New("region has non-finite coordinates")
	errOutOfRange = errors.New("region coordinates exceed the grid index range")
)

// RasterizationError reports a region that was left out of a volume.
type RasterizationError struct {
	// Slice is the z index of the region
	Slice int

	// Region is the position of the region among the decoded regions of its slice
	Region int

	// Name is the region name
	Name string

	Err error
}

func (e *RasterizationError) Error() string {
	return fmt.Sprintf("slice %d, region %d (%s): %v: %v", e.Slice, e.Region, e.Name, ErrRasterization, e.Err)
}

func (e *RasterizationError) Is(target error) bool {
	return target == ErrRasterization
}

func (e *RasterizationError) Unwrap() error {
	return e.Err
}
