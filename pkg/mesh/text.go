// Package mesh reads and writes edge meshes in a minimal plain-text format:
//
//	<numVertices> 0 <numEdges>
//	x y z          (one line per vertex)
//	i j            (one line per edge)
//
// The three blocks are joined by single newlines. The middle header field is
// always 0.
package mesh

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"microdraw3d/internal/models"
)

// Scale multiplies vertex coordinates on output.
type Scale struct {
	X, Y, Z float64
}

// DefaultScale maps slice pixels and slice indices to the usual anisotropic frame.
var DefaultScale = Scale{X: 0.1, Y: 0.1, Z: 1.25}

// WriteText writes m to w with each vertex multiplied by s.
func WriteText(w io.Writer, m *models.EdgeMesh, s Scale) error {
	bw := bufio.NewWriter(w)

	fmt.Fprintf(bw, "%d 0 %d\n", len(m.Vertices), len(m.Edges))
	for i, v := range m.Vertices {
		if i > 0 {
			bw.WriteByte('\n')
		}
		fmt.Fprintf(bw, "%f %f %f", v.X*s.X, v.Y*s.Y, v.Z*s.Z)
	}
	bw.WriteByte('\n')
	for i, e := range m.Edges {
		if i > 0 {
			bw.WriteByte('\n')
		}
		fmt.Fprintf(bw, "%d %d", e.A, e.B)
	}

	return bw.Flush()
}

// SaveText writes m to the file at path.
func SaveText(path string, m *models.EdgeMesh, s Scale) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create mesh file %s: %w", path, err)
	}

	if err := WriteText(f, m, s); err != nil {
		f.Close()
		return fmt.Errorf("failed to write mesh file %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close mesh file %s: %w", path, err)
	}
	return nil
}

// ReadText parses a mesh written by WriteText. Coordinates are returned as
// written, scale included.
func ReadText(r io.Reader) (*models.EdgeMesh, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	if !sc.Scan() {
		if err := sc.Err(); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("empty mesh")
	}

	header := strings.Fields(sc.Text())
	if len(header) != 3 {
		return nil, fmt.Errorf("malformed header %q", sc.Text())
	}
	numVerts, err := strconv.Atoi(header[0])
	if err != nil || numVerts < 0 {
		return nil, fmt.Errorf("invalid vertex count %q", header[0])
	}
	numEdges, err := strconv.Atoi(header[2])
	if err != nil || numEdges < 0 {
		return nil, fmt.Errorf("invalid edge count %q", header[2])
	}

	m := &models.EdgeMesh{
		Vertices: make([]models.Point3D, 0, numVerts),
		Edges:    make([]models.Edge, 0, numEdges),
	}

	line := 1
	next := func() ([]string, bool) {
		for sc.Scan() {
			line++
			if fields := strings.Fields(sc.Text()); len(fields) > 0 {
				return fields, true
			}
		}
		return nil, false
	}

	for len(m.Vertices) < numVerts {
		fields, ok := next()
		if !ok {
			return nil, fmt.Errorf("expected %d vertices, found %d", numVerts, len(m.Vertices))
		}
		if len(fields) != 3 {
			return nil, fmt.Errorf("line %d: expected 3 coordinates", line)
		}
		var c [3]float64
		for i, f := range fields {
			if c[i], err = strconv.ParseFloat(f, 64); err != nil {
				return nil, fmt.Errorf("line %d: %w", line, err)
			}
		}
		m.Vertices = append(m.Vertices, models.Point3D{X: c[0], Y: c[1], Z: c[2]})
	}

	for len(m.Edges) < numEdges {
		fields, ok := next()
		if !ok {
			return nil, fmt.Errorf("expected %d edges, found %d", numEdges, len(m.Edges))
		}
		if len(fields) != 2 {
			return nil, fmt.Errorf("line %d: expected 2 indices", line)
		}
		a, errA := strconv.Atoi(fields[0])
		b, errB := strconv.Atoi(fields[1])
		if errA != nil || errB != nil {
			return nil, fmt.Errorf("line %d: invalid edge %q", line, sc.Text())
		}
		if a < 0 || a >= numVerts || b < 0 || b >= numVerts {
			return nil, fmt.Errorf("line %d: edge (%d, %d) out of range", line, a, b)
		}
		m.Edges = append(m.Edges, models.Edge{A: a, B: b})
	}

	if fields, ok := next(); ok {
		return nil, fmt.Errorf("line %d: unexpected trailing data %q", line, strings.Join(fields, " "))
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return m, nil
}

// LoadText reads the mesh file at path.
func LoadText(path string) (*models.EdgeMesh, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open mesh file %s: %w", path, err)
	}
	defer f.Close()

	m, err := ReadText(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read mesh file %s: %w", path, err)
	}
	return m, nil
}
