package annotation

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"microdraw3d/internal/models"
)

// pathRecord builds a raw "Path" record from already-encoded segments
func pathRecord(name string, segments ...string) []byte {
	return []byte(fmt.Sprintf(`{"annotation":{"name":%q,"path":["Path",{"applyMatrix":true,"segments":[%s],"closed":true}]}}`,
		name, strings.Join(segments, ",")))
}

func lineSeg(x, y float64) string {
	return fmt.Sprintf("[%g,%g]", x, y)
}

func curveSeg(x, y float64) string {
	return fmt.Sprintf("[[%g,%g],[%g,%g],[%g,%g]]", x, y, x-1, y-1, x+1, y+1)
}

func TestDecodeLinePath(t *testing.T) {
	raw := pathRecord("V1", lineSeg(0, 0), lineSeg(10, 0), lineSeg(10, 10))

	rec, err := DecodeRecord(raw)
	require.NoError(t, err)
	assert.Equal(t, "V1", rec.Name)

	sp, ok := rec.Path.(SimplePath)
	require.True(t, ok, "expected SimplePath, got %T", rec.Path)
	require.Len(t, sp.Segments, 3)
	for _, seg := range sp.Segments {
		assert.Equal(t, SegmentLine, seg.Kind)
		assert.Empty(t, seg.Handles)
	}

	regions := rec.Regions()
	require.Len(t, regions, 1)
	assert.Equal(t, []models.Point2D{{X: 0, Y: 0}, {X: 10, Y: 0}, {X: 10, Y: 10}}, regions[0].Points)
}

func TestDecodeCurveKeepsAnchor(t *testing.T) {
	raw := pathRecord("V2", curveSeg(5, 6), curveSeg(7.5, 8))

	rec, err := DecodeRecord(raw)
	require.NoError(t, err)

	sp := rec.Path.(SimplePath)
	require.Len(t, sp.Segments, 2)
	assert.Equal(t, SegmentCurve, sp.Segments[0].Kind)
	assert.Len(t, sp.Segments[0].Handles, 2)
	assert.Equal(t, []models.Point2D{{X: 5, Y: 6}, {X: 7.5, Y: 8}}, sp.Points())
}

func TestDecodeMixedSegments(t *testing.T) {
	raw := pathRecord("mix", lineSeg(1, 2), curveSeg(3, 4), lineSeg(5, 6))

	rec, err := DecodeRecord(raw)
	require.NoError(t, err)
	regions := rec.Regions()
	require.Len(t, regions, 1)
	assert.Equal(t, []models.Point2D{{X: 1, Y: 2}, {X: 3, Y: 4}, {X: 5, Y: 6}}, regions[0].Points)
}

func TestDecodeCompoundPath(t *testing.T) {
	raw := []byte(`{"annotation":{"name":"WM","path":["CompoundPath",{"children":[
		["Path",{"segments":[[0,0],[4,0],[4,4]]}],
		["Path",{"closed":true}],
		["Path",{"segments":[[[1,1],[0,0],[0,0]],[[2,2],[0,0],[0,0]]]}],
		["Group",{}]
	]}]}}`)

	rec, err := DecodeRecord(raw)
	require.NoError(t, err)

	cp, ok := rec.Path.(CompoundPath)
	require.True(t, ok, "expected CompoundPath, got %T", rec.Path)
	assert.Len(t, cp.Children, 2)
	assert.Equal(t, 2, cp.Skipped)

	regions := rec.Regions()
	require.Len(t, regions, 2)
	for _, r := range regions {
		assert.Equal(t, "WM", r.Name)
	}
	assert.Len(t, regions[0].Points, 3)
	assert.Equal(t, []models.Point2D{{X: 1, Y: 1}, {X: 2, Y: 2}}, regions[1].Points)
}

func TestDecodeCompoundPathWithoutSegmentChildren(t *testing.T) {
	raw := []byte(`{"annotation":{"name":"empty","path":["CompoundPath",{"children":[["Path",{}]]}]}}`)

	rec, err := DecodeRecord(raw)
	require.NoError(t, err)
	assert.Empty(t, rec.Regions())
}

func TestDecodeMalformed(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"invalid json", `{"annotation":`},
		{"not an object", `[1,2]`},
		{"missing annotation", `{"foo":{}}`},
		{"missing name", `{"annotation":{"path":["Path",{"segments":[[0,0]]}]}}`},
		{"numeric name", `{"annotation":{"name":3,"path":["Path",{"segments":[[0,0]]}]}}`},
		{"missing path", `{"annotation":{"name":"a"}}`},
		{"path not a pair", `{"annotation":{"name":"a","path":"Path"}}`},
		{"unsupported tag", `{"annotation":{"name":"a","path":["Circle",{"center":[0,0]}]}}`},
		{"missing segments", `{"annotation":{"name":"a","path":["Path",{"closed":true}]}}`},
		{"empty segments", `{"annotation":{"name":"a","path":["Path",{"segments":[]}]}}`},
		{"string coordinate", `{"annotation":{"name":"a","path":["Path",{"segments":[["x",1]]}]}}`},
		{"short point", `{"annotation":{"name":"a","path":["Path",{"segments":[[1]]}]}}`},
		{"infinite coordinate", `{"annotation":{"name":"a","path":["Path",{"segments":[[1e400,1]]}]}}`},
		{"empty compound child", `{"annotation":{"name":"a","path":["CompoundPath",{"children":[["Path",{"segments":[]}]]}]}}`},
		{"compound without children", `{"annotation":{"name":"a","path":["CompoundPath",{}]}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeRecord([]byte(tt.raw))
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrMalformedRegion), "error %v should match ErrMalformedRegion", err)
		})
	}
}

// TestProperty_PointCountIgnoresSegmentKind checks that n line segments and
// n curve segments both decode to n points.
func TestProperty_PointCountIgnoresSegmentKind(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		n := rapid.IntRange(1, 40).Draw(rt, "n")
		lines := make([]string, n)
		curves := make([]string, n)
		mixed := make([]string, n)
		for i := 0; i < n; i++ {
			x := rapid.Float64Range(-1e4, 1e4).Draw(rt, fmt.Sprintf("x%d", i))
			y := rapid.Float64Range(-1e4, 1e4).Draw(rt, fmt.Sprintf("y%d", i))
			lines[i] = lineSeg(x, y)
			curves[i] = curveSeg(x, y)
			if rapid.Bool().Draw(rt, fmt.Sprintf("curve%d", i)) {
				mixed[i] = curves[i]
			} else {
				mixed[i] = lines[i]
			}
		}

		for _, segs := range [][]string{lines, curves, mixed} {
			rec, err := DecodeRecord(pathRecord("r", segs...))
			require.NoError(rt, err)
			regions := rec.Regions()
			require.Len(rt, regions, 1)
			require.Len(rt, regions[0].Points, n)
		}
	})
}

// TestProperty_CompoundChildren checks that k segment-bearing and m bare
// children give exactly k regions named after the parent.
func TestProperty_CompoundChildren(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		k := rapid.IntRange(0, 8).Draw(rt, "k")
		m := rapid.IntRange(0, 8).Draw(rt, "m")
		name := rapid.StringMatching(`[A-Za-z][A-Za-z0-9_]{0,11}`).Draw(rt, "name")

		children := make([]string, 0, k+m)
		for i := 0; i < k; i++ {
			children = append(children, `["Path",{"segments":[[0,0],[1,0],[1,1]]}]`)
		}
		for i := 0; i < m; i++ {
			children = append(children, `["Path",{"closed":true}]`)
		}
		perm := rapid.Permutation(children).Draw(rt, "children")

		raw := fmt.Sprintf(`{"annotation":{"name":%q,"path":["CompoundPath",{"children":[%s]}]}}`,
			name, strings.Join(perm, ","))
		rec, err := DecodeRecord([]byte(raw))
		require.NoError(rt, err)

		regions := rec.Regions()
		require.Len(rt, regions, k)
		for _, r := range regions {
			require.Equal(rt, name, r.Name)
		}
	})
}
