package reconstruction

import (
	"errors"

	"go.uber.org/zap"

	"microdraw3d/internal/models"
	"microdraw3d/pkg/annotation"
)

// Assembler stacks the regions of every slice of a dataset into one 3D frame.
type Assembler struct {
	logger *zap.Logger
}

// NewAssembler creates an assembler. A nil logger discards diagnostics.
func NewAssembler(logger *zap.Logger) *Assembler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Assembler{logger: logger}
}

// SliceRegions decodes the regions of every slice, in slice order. Malformed
// records are logged and left out; they never stop the other records.
func (a *Assembler) SliceRegions(ds *models.Dataset) [][]models.Region {
	if ds == nil {
		return nil
	}

	slices := make([][]models.Region, ds.NumSlices)
	for s := 0; s < ds.NumSlices; s++ {
		regions, err := annotation.ExtractRegions(ds.Slice(s), s)
		for _, failure := range annotation.Failures(err) {
			fields := []zap.Field{zap.Int("slice", s), zap.Error(failure)}
			var mre *annotation.MalformedRegionError
			if errors.As(failure, &mre) {
				fields = append(fields, zap.Int("region", mre.Region))
			}
			a.logger.Warn("skipping malformed region", fields...)
		}
		slices[s] = regions
	}
	return slices
}

// Assemble builds the edge mesh of a dataset.
func (a *Assembler) Assemble(ds *models.Dataset) *models.EdgeMesh {
	return StackRegions(a.SliceRegions(ds))
}

// StackRegions turns per-slice regions into an edge mesh. Slice s becomes
// z = s; each region appends its points and one closed cycle of edges
// (base+i, base+(i+1) mod n), where base is the vertex count before the
// region. Indices are never renumbered, so len(Edges) == len(Vertices).
func StackRegions(slices [][]models.Region) *models.EdgeMesh {
	mesh := &models.EdgeMesh{
		Vertices: []models.Point3D{},
		Edges:    []models.Edge{},
	}

	for s, regions := range slices {
		z := float64(s)
		for _, region := range regions {
			base := len(mesh.Vertices)
			n := len(region.Points)
			for _, p := range region.Points {
				mesh.Vertices = append(mesh.Vertices, models.Point3D{X: p.X, Y: p.Y, Z: z})
			}
			for i := 0; i < n; i++ {
				mesh.Edges = append(mesh.Edges, models.Edge{A: base + i, B: base + (i+1)%n})
			}
		}
	}
	return mesh
}
