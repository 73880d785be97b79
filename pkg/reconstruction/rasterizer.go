package reconstruction

import (
	"errors"
	"fmt"
	"math"
	"runtime"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/floats"

	"microdraw3d/internal/models"
)

// DefaultVoxDim is the voxel size used when none is configured.
var DefaultVoxDim = [3]float64{0.1, 0.1, 1.25}

// maxVoxels caps the size of a single volume allocation.
const maxVoxels = 1 << 32

// RasterParams holds the voxel rasterization parameters.
type RasterParams struct {
	// VoxDim is the physical size of a voxel along x, y and z.
	// It only affects the affine of the output volume.
	VoxDim [3]float64

	// RegionName restricts rasterization to regions with exactly this name.
	// Empty means all regions.
	RegionName string

	// NumCores is the number of slices rasterized concurrently
	NumCores int
}

// DefaultRasterParams returns parameters with the default voxel size, no
// name filter and one worker per CPU.
func DefaultRasterParams() *RasterParams {
	return &RasterParams{
		VoxDim:   DefaultVoxDim,
		NumCores: runtime.NumCPU(),
	}
}

func (p *RasterParams) validate() error {
	for i, d := range p.VoxDim {
		if !(d > 0) || math.IsInf(d, 0) {
			return fmt.Errorf("voxel dimension %d must be positive, got %v", i, d)
		}
	}
	return nil
}

// RasterResult is the outcome of rasterizing a dataset.
type RasterResult struct {
	Volume *models.VoxelVolume

	// Origin is the lattice point mapped to voxel (0, 0): the floor of the
	// smallest x and y over all regions of the dataset
	Origin models.Point2D

	// Regions counts the regions drawn into the volume
	Regions int

	// Skipped holds one *RasterizationError per region left out, in slice
	// and region order
	Skipped []error
}

// Rasterizer converts datasets into voxel volumes.
type Rasterizer struct {
	params    *RasterParams
	assembler *Assembler
	logger    *zap.Logger
}

// NewRasterizer creates a rasterizer. Nil params select DefaultRasterParams;
// a nil logger discards diagnostics.
func NewRasterizer(params *RasterParams, logger *zap.Logger) *Rasterizer {
	if params == nil {
		params = DefaultRasterParams()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Rasterizer{
		params:    params,
		assembler: NewAssembler(logger),
		logger:    logger,
	}
}

// Rasterize builds the voxel volume of a dataset.
//
// The grid spans the bounding box of every region of the dataset, whatever
// the name filter: floor of the minimum to ceil of the maximum in x and y,
// and one plane per slice in z. Each matching region is filled with 255 and
// then outlined with 0. A region that cannot be rasterized is skipped as a
// whole and reported in RasterResult.Skipped.
func (r *Rasterizer) Rasterize(ds *models.Dataset) (*RasterResult, error) {
	if err := ds.Validate(); err != nil {
		return nil, fmt.Errorf("invalid dataset: %w", err)
	}
	if err := r.params.validate(); err != nil {
		return nil, fmt.Errorf("invalid raster parameters: %w", err)
	}

	slices := r.assembler.SliceRegions(ds)
	mesh := StackRegions(slices)

	origin, dims := boundingBox(mesh.Vertices, ds.NumSlices)
	if total := float64(dims[0]) * float64(dims[1]) * float64(dims[2]); total > maxVoxels {
		return nil, fmt.Errorf("volume of %dx%dx%d voxels is too large", dims[0], dims[1], dims[2])
	}

	vol := models.NewVoxelVolume(dims, r.params.VoxDim)
	vol.RegionName = r.params.RegionName

	drawn := make([]int, len(slices))
	skipped := make([][]error, len(slices))

	g := new(errgroup.Group)
	g.SetLimit(max(1, r.params.NumCores))
	for s := range slices {
		g.Go(func() error {
			drawn[s], skipped[s] = r.rasterizeSlice(vol, s, slices[s], origin)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	result := &RasterResult{Volume: vol, Origin: origin}
	for s := range slices {
		result.Regions += drawn[s]
		for _, err := range skipped[s] {
			var re *RasterizationError
			if errors.As(err, &re) {
				r.logger.Warn("skipping region",
					zap.Int("slice", re.Slice),
					zap.Int("region", re.Region),
					zap.String("name", re.Name),
					zap.Error(re.Err),
				)
			}
			result.Skipped = append(result.Skipped, err)
		}
	}

	r.logger.Debug("rasterized dataset",
		zap.Ints("dims", dims[:]),
		zap.Int("regions", result.Regions),
		zap.Int("skipped", len(result.Skipped)),
	)
	return result, nil
}

// rasterizeSlice draws the matching regions of slice s into its z-plane.
// It only touches that plane, so slices can run concurrently.
func (r *Rasterizer) rasterizeSlice(vol *models.VoxelVolume, s int, regions []models.Region, origin models.Point2D) (int, []error) {
	plane := vol.Plane(s)
	nx, ny := vol.Dims[0], vol.Dims[1]

	var (
		drawn int
		errs  []error
	)
	for i, region := range regions {
		if r.params.RegionName != "" && region.Name != r.params.RegionName {
			continue
		}
		if err := rasterizeRegion(plane, nx, ny, region.Points, origin); err != nil {
			errs = append(errs, &RasterizationError{Slice: s, Region: i, Name: region.Name, Err: err})
			continue
		}
		drawn++
	}
	return drawn, errs
}

// boundingBox returns the grid origin and size for a set of vertices.
// Vertices with non-finite coordinates are ignored.
func boundingBox(vertices []models.Point3D, numSlices int) (models.Point2D, [3]int) {
	xs := make([]float64, 0, len(vertices))
	ys := make([]float64, 0, len(vertices))
	for _, v := range vertices {
		if math.IsNaN(v.X) || math.IsNaN(v.Y) || math.IsInf(v.X, 0) || math.IsInf(v.Y, 0) {
			continue
		}
		xs = append(xs, v.X)
		ys = append(ys, v.Y)
	}

	if len(xs) == 0 {
		return models.Point2D{}, [3]int{0, 0, numSlices}
	}

	minX, maxX := math.Floor(floats.Min(xs)), math.Ceil(floats.Max(xs))
	minY, maxY := math.Floor(floats.Min(ys)), math.Ceil(floats.Max(ys))

	return models.Point2D{X: minX, Y: minY}, [3]int{int(maxX - minX), int(maxY - minY), numSlices}
}
