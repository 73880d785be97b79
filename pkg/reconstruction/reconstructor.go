package reconstruction

import (
	"fmt"
	"math"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/stat"

	"microdraw3d/internal/models"
	"microdraw3d/pkg/mesh"
	"microdraw3d/pkg/microdraw"
	"microdraw3d/pkg/nifti"
)

// VolumeMetrics summarises a rasterized volume.
type VolumeMetrics struct {
	// Regions is the number of regions drawn into the volume
	Regions int

	// Skipped is the number of regions that could not be rasterized
	Skipped int

	// FilledVoxels counts voxels set to 255 (interiors, outlines excluded)
	FilledVoxels int

	// FilledFraction is FilledVoxels over the total voxel count
	FilledFraction float64

	// SliceMean and SliceStdDev describe the filled voxel count per slice
	SliceMean   float64
	SliceStdDev float64

	// Vertices and Edges are the sizes of the edge mesh
	Vertices int
	Edges    int
}

// Params holds the conversion parameters.
type Params struct {
	// DatasetFile is the JSON dataset to convert when Process is used
	DatasetFile string

	// MeshFile is where the text edge mesh is written; empty skips the mesh
	MeshFile string

	// MeshScale multiplies mesh vertex coordinates
	MeshScale mesh.Scale

	// VolumeFile is where the NIfTI volume is written; empty skips the volume
	VolumeFile string

	// Raster controls voxel rasterization
	Raster RasterParams
}

// Reconstructor runs the full conversion of one dataset into an edge mesh
// and a voxel volume.
//
// The conversion consists of:
// 1. Loading the dataset
// 2. Assembling the edge mesh
// 3. Writing the mesh
// 4. Rasterizing the volume
// 5. Writing the volume
// 6. Calculating volume metrics
type Reconstructor struct {
	params *Params
	logger *zap.Logger

	dataset *models.Dataset
	mesh    *models.EdgeMesh
	result  *RasterResult
	metrics VolumeMetrics
}

// NewReconstructor creates a reconstructor. A nil logger discards diagnostics.
func NewReconstructor(params *Params, logger *zap.Logger) *Reconstructor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reconstructor{
		params: params,
		logger: logger,
	}
}

// Process loads DatasetFile and converts it.
func (r *Reconstructor) Process() error {
	r.logger.Info("step 1: loading dataset", zap.String("path", r.params.DatasetFile))
	ds, err := microdraw.LoadDataset(r.params.DatasetFile)
	if err != nil {
		return fmt.Errorf("failed to load dataset: %w", err)
	}
	return r.ProcessDataset(ds)
}

// ProcessDataset converts an already loaded dataset.
func (r *Reconstructor) ProcessDataset(ds *models.Dataset) error {
	if err := ds.Validate(); err != nil {
		return fmt.Errorf("invalid dataset: %w", err)
	}
	r.dataset = ds

	r.logger.Info("step 2: assembling edge mesh", zap.Int("slices", ds.NumSlices))
	r.mesh = NewAssembler(r.logger).Assemble(ds)

	if r.params.MeshFile != "" {
		r.logger.Info("step 3: writing edge mesh", zap.String("path", r.params.MeshFile))
		if err := ensureDir(r.params.MeshFile); err != nil {
			return err
		}
		if err := mesh.SaveText(r.params.MeshFile, r.mesh, r.params.MeshScale); err != nil {
			return err
		}
	}

	r.logger.Info("step 4: rasterizing volume", zap.String("region", r.params.Raster.RegionName))
	result, err := NewRasterizer(&r.params.Raster, r.logger).Rasterize(ds)
	if err != nil {
		return fmt.Errorf("failed to rasterize dataset: %w", err)
	}
	r.result = result

	if r.params.VolumeFile != "" {
		r.logger.Info("step 5: writing volume", zap.String("path", r.params.VolumeFile))
		if err := ensureDir(r.params.VolumeFile); err != nil {
			return err
		}
		if err := nifti.Save(r.params.VolumeFile, result.Volume); err != nil {
			return err
		}
	}

	r.logger.Info("step 6: calculating volume metrics")
	r.metrics = CalculateMetrics(result)
	r.metrics.Vertices = len(r.mesh.Vertices)
	r.metrics.Edges = len(r.mesh.Edges)

	return nil
}

// GetMetrics returns the metrics of the last conversion.
func (r *Reconstructor) GetMetrics() VolumeMetrics {
	return r.metrics
}

// GetMesh returns the edge mesh of the last conversion.
func (r *Reconstructor) GetMesh() *models.EdgeMesh {
	return r.mesh
}

// GetVolume returns the voxel volume of the last conversion.
func (r *Reconstructor) GetVolume() *models.VoxelVolume {
	if r.result == nil {
		return nil
	}
	return r.result.Volume
}

// GetSkipped returns the regions left out of the last volume.
func (r *Reconstructor) GetSkipped() []error {
	if r.result == nil {
		return nil
	}
	return r.result.Skipped
}

// SaveNIfTI rasterizes ds and writes the volume to path, creating its
// directory if needed.
func SaveNIfTI(ds *models.Dataset, path string, params *RasterParams, logger *zap.Logger) (*RasterResult, error) {
	result, err := NewRasterizer(params, logger).Rasterize(ds)
	if err != nil {
		return nil, fmt.Errorf("failed to rasterize dataset: %w", err)
	}
	if err := ensureDir(path); err != nil {
		return nil, err
	}
	if err := nifti.Save(path, result.Volume); err != nil {
		return nil, err
	}
	return result, nil
}

// CalculateMetrics computes the filled voxel statistics of a raster result.
func CalculateMetrics(result *RasterResult) VolumeMetrics {
	m := VolumeMetrics{
		Regions: result.Regions,
		Skipped: len(result.Skipped),
	}

	vol := result.Volume
	nz := vol.Dims[2]
	if nz == 0 {
		return m
	}

	perSlice := make([]float64, nz)
	for z := 0; z < nz; z++ {
		count := 0
		for _, v := range vol.Plane(z) {
			if v == fillValue {
				count++
			}
		}
		perSlice[z] = float64(count)
		m.FilledVoxels += count
	}

	if len(vol.Data) > 0 {
		m.FilledFraction = float64(m.FilledVoxels) / float64(len(vol.Data))
	}
	m.SliceMean = stat.Mean(perSlice, nil)
	if nz > 1 {
		m.SliceStdDev = stat.StdDev(perSlice, nil)
	}
	if math.IsNaN(m.SliceStdDev) {
		m.SliceStdDev = 0
	}
	return m
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory %s: %w", dir, err)
	}
	return nil
}
