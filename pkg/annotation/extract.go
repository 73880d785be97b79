package annotation

import (
	"go.uber.org/multierr"

	"microdraw3d/internal/models"
)

// ExtractRegions decodes every record of one slice and returns the regions
// in input order. Records that fail to decode are skipped; each failure is
// reported as a *MalformedRegionError in the combined error, which may be
// non-nil alongside a non-empty region list.
func ExtractRegions(slice models.SliceAnnotation, sliceIndex int) ([]models.Region, error) {
	var (
		regions []models.Region
		errs    error
	)
	for i, raw := range slice {
		rec, err := DecodeRecord(raw)
		if err != nil {
			errs = multierr.Append(errs, &MalformedRegionError{Slice: sliceIndex, Region: i, Err: err})
			continue
		}
		regions = append(regions, rec.Regions()...)
	}
	return regions, errs
}

// Failures splits a combined ExtractRegions error into its parts.
func Failures(err error) []error {
	return multierr.Errors(err)
}
