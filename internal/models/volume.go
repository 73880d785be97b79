package models

import (
	"gonum.org/v1/gonum/mat"
)

// Edge joins two vertices of an EdgeMesh by index.
type Edge struct {
	A, B int
}

// EdgeMesh represents all regions of a dataset stacked in 3D, one closed
// cycle of edges per region. Vertex identity is insertion order.
type EdgeMesh struct {
	Vertices []Point3D
	Edges    []Edge
}

// VoxelVolume represents a rasterized dataset
type VoxelVolume struct {
	// Data is the 3D grid stored with x fastest:
	// index = x + Dims[0]*(y + Dims[1]*z), so each slice is one contiguous plane
	Data []uint8

	// Dims is the grid size in voxels along x, y and z
	Dims [3]int

	// VoxDim is the physical size of each voxel
	VoxDim [3]float64

	// Affine maps voxel indices to physical coordinates (4x4)
	Affine *mat.Dense

	// RegionName is the name filter the volume was built with; empty means all regions
	RegionName string
}

// NewVoxelVolume allocates a zero-filled volume with a diagonal affine
// built from voxdim.
func NewVoxelVolume(dims [3]int, voxdim [3]float64) *VoxelVolume {
	affine := mat.NewDense(4, 4, nil)
	affine.Set(0, 0, voxdim[0])
	affine.Set(1, 1, voxdim[1])
	affine.Set(2, 2, voxdim[2])
	affine.Set(3, 3, 1)

	return &VoxelVolume{
		Data:   make([]uint8, dims[0]*dims[1]*dims[2]),
		Dims:   dims,
		VoxDim: voxdim,
		Affine: affine,
	}
}

// Index returns the offset of voxel (x, y, z) in Data.
func (v *VoxelVolume) Index(x, y, z int) int {
	return x + v.Dims[0]*(y+v.Dims[1]*z)
}

// At returns the value of voxel (x, y, z).
func (v *VoxelVolume) At(x, y, z int) uint8 {
	return v.Data[v.Index(x, y, z)]
}

// Set stores val at voxel (x, y, z).
func (v *VoxelVolume) Set(x, y, z int, val uint8) {
	v.Data[v.Index(x, y, z)] = val
}

// Plane returns the contiguous z-plane of slice z. Writes go to the volume.
func (v *VoxelVolume) Plane(z int) []uint8 {
	n := v.Dims[0] * v.Dims[1]
	return v.Data[z*n : (z+1)*n]
}
