package visualization

import (
	"fmt"
	"image"
	"math"
	"os"
	"path/filepath"

	"github.com/disintegration/imaging"
	"go.uber.org/multierr"

	"microdraw3d/internal/models"
)

// Viewer extracts 2D images from a rasterized volume.
type Viewer struct {
	volume *models.VoxelVolume

	// PhysicalAspect resamples saved slices so that one pixel covers the
	// same physical length along both image axes
	PhysicalAspect bool
}

// NewViewer creates a viewer over vol.
func NewViewer(vol *models.VoxelVolume) *Viewer {
	return &Viewer{volume: vol}
}

// axisLength returns the number of slices along axis.
func (v *Viewer) axisLength(axis string) (int, error) {
	switch axis {
	case "x", "X":
		return v.volume.Dims[0], nil
	case "y", "Y":
		return v.volume.Dims[1], nil
	case "z", "Z":
		return v.volume.Dims[2], nil
	}
	return 0, fmt.Errorf("invalid axis: %s (must be x, y, or z)", axis)
}

// ExtractSlice extracts a 2D slice from the volume along the specified axis.
// A z slice is nx by ny, an x slice is nz by ny and a y slice is nx by nz.
func (v *Viewer) ExtractSlice(axis string, position int) (*image.Gray, error) {
	if position < 0 {
		return nil, fmt.Errorf("position must be non-negative")
	}
	n, err := v.axisLength(axis)
	if err != nil {
		return nil, err
	}
	if position >= n {
		return nil, fmt.Errorf("position %d exceeds %s size %d", position, axis, n)
	}

	nx, ny, nz := v.volume.Dims[0], v.volume.Dims[1], v.volume.Dims[2]
	var img *image.Gray

	switch axis {
	case "x", "X":
		img = image.NewGray(image.Rect(0, 0, nz, ny))
		for y := 0; y < ny; y++ {
			for z := 0; z < nz; z++ {
				img.Pix[img.PixOffset(z, y)] = v.volume.At(position, y, z)
			}
		}

	case "y", "Y":
		img = image.NewGray(image.Rect(0, 0, nx, nz))
		for z := 0; z < nz; z++ {
			for x := 0; x < nx; x++ {
				img.Pix[img.PixOffset(x, z)] = v.volume.At(x, position, z)
			}
		}

	default:
		// a z slice is one contiguous plane
		img = image.NewGray(image.Rect(0, 0, nx, ny))
		copy(img.Pix, v.volume.Plane(position))
	}

	return img, nil
}

// ExtractRegion extracts a sub-volume starting at (startX, startY, startZ).
// The affine of the result is translated to keep voxels at the same
// physical position.
func (v *Viewer) ExtractRegion(startX, startY, startZ, sizeX, sizeY, sizeZ int) (*models.VoxelVolume, error) {
	if startX < 0 || startY < 0 || startZ < 0 {
		return nil, fmt.Errorf("start coordinates must be non-negative")
	}
	if sizeX <= 0 || sizeY <= 0 || sizeZ <= 0 {
		return nil, fmt.Errorf("size dimensions must be positive")
	}
	dims := v.volume.Dims
	if startX+sizeX > dims[0] || startY+sizeY > dims[1] || startZ+sizeZ > dims[2] {
		return nil, fmt.Errorf("region extends beyond volume boundaries")
	}

	sub := models.NewVoxelVolume([3]int{sizeX, sizeY, sizeZ}, v.volume.VoxDim)
	sub.RegionName = v.volume.RegionName
	if v.volume.Affine != nil {
		sub.Affine.Copy(v.volume.Affine)
	}
	start := [3]int{startX, startY, startZ}
	for row := 0; row < 3; row++ {
		t := sub.Affine.At(row, 3)
		for col := 0; col < 3; col++ {
			t += sub.Affine.At(row, col) * float64(start[col])
		}
		sub.Affine.Set(row, 3, t)
	}

	for z := 0; z < sizeZ; z++ {
		for y := 0; y < sizeY; y++ {
			src := v.volume.Index(startX, startY+y, startZ+z)
			dst := sub.Index(0, y, z)
			copy(sub.Data[dst:dst+sizeX], v.volume.Data[src:src+sizeX])
		}
	}

	return sub, nil
}

// resample stretches a slice image to the physical voxel aspect of axis.
func (v *Viewer) resample(img image.Image, axis string) image.Image {
	vd := v.volume.VoxDim
	var sx, sy float64
	switch axis {
	case "x", "X":
		sx, sy = vd[2], vd[1]
	case "y", "Y":
		sx, sy = vd[0], vd[2]
	default:
		sx, sy = vd[0], vd[1]
	}
	if sx <= 0 || sy <= 0 || sx == sy {
		return img
	}

	b := img.Bounds()
	unit := math.Min(sx, sy)
	w := int(math.Round(float64(b.Dx()) * sx / unit))
	h := int(math.Round(float64(b.Dy()) * sy / unit))
	return imaging.Resize(img, w, h, imaging.NearestNeighbor)
}

// SaveSlice saves an extracted slice. The format follows the file extension.
func (v *Viewer) SaveSlice(img image.Image, filename string) error {
	if err := imaging.Save(img, filename); err != nil {
		return fmt.Errorf("failed to save slice %s: %w", filename, err)
	}
	return nil
}

// SaveSliceSequence extracts and saves every slice along the specified axis
// as PNG files named slice_<axis>_<position>.png.
func (v *Viewer) SaveSliceSequence(axis string, outputDir string) error {
	n, err := v.axisLength(axis)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory %s: %w", outputDir, err)
	}

	for pos := 0; pos < n; pos++ {
		gray, err := v.ExtractSlice(axis, pos)
		if err != nil {
			return err
		}

		var img image.Image = gray
		if v.PhysicalAspect {
			img = v.resample(gray, axis)
		}

		filename := filepath.Join(outputDir, fmt.Sprintf("slice_%s_%03d.png", axis, pos))
		if err := v.SaveSlice(img, filename); err != nil {
			return err
		}
	}

	return nil
}

// SaveAxes saves the slice sequence of each axis into outputDir/<axis>. A
// failing axis does not stop the others; all failures are returned together.
func (v *Viewer) SaveAxes(axes []string, outputDir string) error {
	var errs error
	for _, axis := range axes {
		if err := v.SaveSliceSequence(axis, filepath.Join(outputDir, axis)); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("axis %s: %w", axis, err))
		}
	}
	return errs
}
