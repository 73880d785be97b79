// Package annotation decodes MicroDraw region records into polygons.
//
// A record holds a paper.js path export in one of two encodings:
//
//	["Path", {"segments": [...]}]
//	["CompoundPath", {"children": [["Path", {"segments": [...]}], ...]}]
//
// A segment is either a line point [x, y] or a curve [[x, y], [hx, hy], ...],
// of which only the anchor [x, y] is kept. Curves are not tessellated.
package annotation

import (
	"math"

	"github.com/tidwall/gjson"

	"microdraw3d/internal/models"
)

// Path tags used by the annotation service.
const (
	TagPath         = "Path"
	TagCompoundPath = "CompoundPath"
)

// Path is the decoded path of a record: either a SimplePath or a CompoundPath.
type Path interface {
	isPath()
}

// SimplePath is a single polygon.
type SimplePath struct {
	Segments []Segment
}

// CompoundPath is a set of polygons sharing one name.
type CompoundPath struct {
	// Children holds the segment-bearing children in order
	Children []SimplePath

	// Skipped counts the children that carried no segments
	Skipped int
}

func (SimplePath) isPath()   {}
func (CompoundPath) isPath() {}

// SegmentKind tells how a segment was encoded.
type SegmentKind int

const (
	// SegmentLine is a plain [x, y] point
	SegmentLine SegmentKind = iota
	// SegmentCurve is [[x, y], handleIn, handleOut]
	SegmentCurve
)

func (k SegmentKind) String() string {
	switch k {
	case SegmentLine:
		return "line"
	case SegmentCurve:
		return "curve"
	default:
		return "unknown"
	}
}

// Segment is one vertex of a path.
type Segment struct {
	Kind SegmentKind

	// Anchor is the rendered point of the segment
	Anchor models.Point2D

	// Handles holds the curve handles following the anchor, if any
	Handles []models.Point2D
}

// Points returns the anchors of the segments in order.
func (p SimplePath) Points() []models.Point2D {
	points := make([]models.Point2D, len(p.Segments))
	for i, seg := range p.Segments {
		points[i] = seg.Anchor
	}
	return points
}

// Record is a decoded region record.
type Record struct {
	Name string
	Path Path
}

// Regions expands the record into renderable regions. A compound path
// yields one region per segment-bearing child, all named after the record.
func (r Record) Regions() []models.Region {
	switch p := r.Path.(type) {
	case SimplePath:
		return []models.Region{{Name: r.Name, Points: p.Points()}}
	case CompoundPath:
		regions := make([]models.Region, 0, len(p.Children))
		for _, child := range p.Children {
			regions = append(regions, models.Region{Name: r.Name, Points: child.Points()})
		}
		return regions
	default:
		return nil
	}
}

// DecodeRecord parses one raw region record. Errors match ErrMalformedRegion.
func DecodeRecord(raw []byte) (Record, error) {
	if !gjson.ValidBytes(raw) {
		return Record{}, malformed("invalid JSON")
	}
	root := gjson.ParseBytes(raw)
	if !root.IsObject() {
		return Record{}, malformed("record is not an object")
	}

	ann := root.Get("annotation")
	if !ann.Exists() || !ann.IsObject() {
		return Record{}, malformed("missing annotation")
	}

	name := ann.Get("name")
	if !name.Exists() || name.Type != gjson.String {
		return Record{}, malformed("missing region name")
	}

	pathValue := ann.Get("path")
	if !pathValue.Exists() {
		return Record{}, malformed("missing path")
	}

	path, err := decodePath(pathValue)
	if err != nil {
		return Record{}, err
	}

	return Record{Name: name.String(), Path: path}, nil
}

func decodePath(v gjson.Result) (Path, error) {
	if !v.IsArray() {
		return nil, malformed("path is not a [tag, body] pair")
	}
	items := v.Array()
	if len(items) < 2 || items[0].Type != gjson.String || !items[1].IsObject() {
		return nil, malformed("path is not a [tag, body] pair")
	}

	tag, body := items[0].String(), items[1]
	switch tag {
	case TagPath:
		return decodeSimplePath(body)
	case TagCompoundPath:
		return decodeCompoundPath(body)
	default:
		return nil, malformed("unsupported path type %q", tag)
	}
}

func decodeSimplePath(body gjson.Result) (SimplePath, error) {
	segs := body.Get("segments")
	if !segs.Exists() {
		return SimplePath{}, malformed("path has no segments")
	}
	if !segs.IsArray() {
		return SimplePath{}, malformed("segments is not a list")
	}

	items := segs.Array()
	if len(items) == 0 {
		return SimplePath{}, malformed("empty segment list")
	}

	path := SimplePath{Segments: make([]Segment, 0, len(items))}
	for i, item := range items {
		seg, err := decodeSegment(item)
		if err != nil {
			return SimplePath{}, malformed("segment %d: %v", i, err)
		}
		path.Segments = append(path.Segments, seg)
	}
	return path, nil
}

func decodeCompoundPath(body gjson.Result) (CompoundPath, error) {
	children := body.Get("children")
	if !children.Exists() || !children.IsArray() {
		return CompoundPath{}, malformed("compound path has no children")
	}

	var path CompoundPath
	for i, child := range children.Array() {
		parts := child.Array()
		if len(parts) < 2 || !parts[1].Get("segments").Exists() {
			path.Skipped++
			continue
		}
		sp, err := decodeSimplePath(parts[1])
		if err != nil {
			return CompoundPath{}, malformed("child %d: %v", i, err)
		}
		path.Children = append(path.Children, sp)
	}
	return path, nil
}

func decodeSegment(v gjson.Result) (Segment, error) {
	if !v.IsArray() {
		return Segment{}, errShape
	}
	items := v.Array()
	if len(items) == 0 {
		return Segment{}, errShape
	}

	if items[0].IsArray() {
		seg := Segment{Kind: SegmentCurve}
		for i, item := range items {
			p, err := decodePoint(item)
			if err != nil {
				return Segment{}, err
			}
			if i == 0 {
				seg.Anchor = p
			} else {
				seg.Handles = append(seg.Handles, p)
			}
		}
		return seg, nil
	}

	p, err := decodePoint(v)
	if err != nil {
		return Segment{}, err
	}
	return Segment{Kind: SegmentLine, Anchor: p}, nil
}

func decodePoint(v gjson.Result) (models.Point2D, error) {
	items := v.Array()
	if !v.IsArray() || len(items) < 2 {
		return models.Point2D{}, errShape
	}
	if items[0].Type != gjson.Number || items[1].Type != gjson.Number {
		return models.Point2D{}, errNotNumeric
	}
	x, y := items[0].Float(), items[1].Float()
	if !isFinite(x) || !isFinite(y) {
		return models.Point2D{}, errNotFinite
	}
	return models.Point2D{X: x, Y: y}, nil
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
