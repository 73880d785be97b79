package models

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Dataset is one annotated MicroDraw source: every slice of a stacked image
// series together with the regions drawn on it.
type Dataset struct {
	// PixelsPerMeter is the physical resolution reported by the source
	PixelsPerMeter float64 `json:"pixelsPerMeter"`

	// NumSlices is the number of image planes in the source
	NumSlices int `json:"numSlices"`

	// Slices holds the raw annotations of each slice, in slice order
	Slices []SliceAnnotation `json:"slices"`

	// Project is the source definition as retrieved, kept opaque
	Project json.RawMessage `json:"project,omitempty"`
}

// Validate checks the shape of a dataset at the ingestion boundary.
func (d *Dataset) Validate() error {
	if d == nil {
		return fmt.Errorf("dataset is nil")
	}
	if d.NumSlices < 0 {
		return fmt.Errorf("invalid slice count %d", d.NumSlices)
	}
	if len(d.Slices) != d.NumSlices {
		return fmt.Errorf("dataset declares %d slices but holds %d", d.NumSlices, len(d.Slices))
	}
	return nil
}

// Slice returns the annotations of slice s, or nil when s is out of range.
func (d *Dataset) Slice(s int) SliceAnnotation {
	if s < 0 || s >= len(d.Slices) {
		return nil
	}
	return d.Slices[s]
}

// SliceAnnotation is the ordered list of region records drawn on one slice.
type SliceAnnotation []RegionRecord

// RegionRecord is one annotation object exactly as the annotation service
// returned it. It marshals back byte for byte.
type RegionRecord json.RawMessage

// MarshalJSON returns the raw record.
func (r RegionRecord) MarshalJSON() ([]byte, error) {
	if len(r) == 0 {
		return []byte("null"), nil
	}
	return r, nil
}

// UnmarshalJSON stores a copy of the raw record.
func (r *RegionRecord) UnmarshalJSON(data []byte) error {
	if r == nil {
		return fmt.Errorf("models.RegionRecord: UnmarshalJSON on nil pointer")
	}
	*r = append((*r)[0:0], bytes.TrimSpace(data)...)
	return nil
}

// Point2D is a point in slice pixel coordinates.
type Point2D struct {
	X, Y float64
}

// Point3D is a stacked point; Z is always the integer slice index.
type Point3D struct {
	X, Y, Z float64
}

// Region is one decoded polygon. The loop is implicitly closed: the last
// point connects back to the first.
type Region struct {
	Name   string
	Points []Point2D
}
