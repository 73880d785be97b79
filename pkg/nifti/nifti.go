// Package nifti writes and reads voxel volumes as single-file NIfTI-1 images.
//
// Only what a VoxelVolume needs is supported: three dimensions, unsigned
// 8-bit voxels, and an affine stored as the sform. Files whose name ends in
// ".gz" are gzip compressed.
package nifti

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"strings"

	"github.com/klauspost/compress/gzip"
	"gonum.org/v1/gonum/mat"

	"microdraw3d/internal/models"
)

const (
	headerSize = 348
	voxOffset  = 352

	dtUint8 = 2

	// sform_code NIFTI_XFORM_ALIGNED_ANAT
	xformAligned = 2
)

var magic = [4]byte{'n', '+', '1', 0}

// header is the NIfTI-1 header; field order and sizes match the on-disk
// layout so it can be read and written with encoding/binary.
type header struct {
	SizeofHdr     int32
	DataType      [10]byte
	DBName        [18]byte
	Extents       int32
	SessionError  int16
	Regular       byte
	DimInfo       byte
	Dim           [8]int16
	IntentP1      float32
	IntentP2      float32
	IntentP3      float32
	IntentCode    int16
	Datatype      int16
	Bitpix        int16
	SliceStart    int16
	Pixdim        [8]float32
	VoxOffset     float32
	SclSlope      float32
	SclInter      float32
	SliceEnd      int16
	SliceCode     byte
	XYZTUnits     byte
	CalMax        float32
	CalMin        float32
	SliceDuration float32
	Toffset       float32
	Glmax         int32
	Glmin         int32
	Descrip       [80]byte
	AuxFile       [24]byte
	QformCode     int16
	SformCode     int16
	QuaternB      float32
	QuaternC      float32
	QuaternD      float32
	QoffsetX      float32
	QoffsetY      float32
	QoffsetZ      float32
	SrowX         [4]float32
	SrowY         [4]float32
	SrowZ         [4]float32
	IntentName    [16]byte
	Magic         [4]byte
}

func newHeader(vol *models.VoxelVolume) (*header, error) {
	for i, d := range vol.Dims {
		if d < 0 || d > math.MaxInt16 {
			return nil, fmt.Errorf("dimension %d of size %d does not fit a NIfTI-1 header", i, d)
		}
	}
	if vol.Affine == nil {
		return nil, fmt.Errorf("volume has no affine")
	}
	if r, c := vol.Affine.Dims(); r != 4 || c != 4 {
		return nil, fmt.Errorf("affine must be 4x4, got %dx%d", r, c)
	}

	h := &header{
		SizeofHdr: headerSize,
		Regular:   'r',
		Datatype:  dtUint8,
		Bitpix:    8,
		VoxOffset: voxOffset,
		SformCode: xformAligned,
		Magic:     magic,
	}
	h.Dim[0] = 3
	for i := 0; i < 3; i++ {
		h.Dim[i+1] = int16(vol.Dims[i])
	}
	for i := 4; i < 8; i++ {
		h.Dim[i] = 1
	}

	h.Pixdim[0] = 1
	for i := 0; i < 3; i++ {
		col := mat.Col(nil, i, vol.Affine)
		h.Pixdim[i+1] = float32(math.Sqrt(col[0]*col[0] + col[1]*col[1] + col[2]*col[2]))
	}

	for j := 0; j < 4; j++ {
		h.SrowX[j] = float32(vol.Affine.At(0, j))
		h.SrowY[j] = float32(vol.Affine.At(1, j))
		h.SrowZ[j] = float32(vol.Affine.At(2, j))
	}
	h.QoffsetX = h.SrowX[3]
	h.QoffsetY = h.SrowY[3]
	h.QoffsetZ = h.SrowZ[3]

	if vol.RegionName != "" {
		copy(h.Descrip[:len(h.Descrip)-1], vol.RegionName)
	}
	return h, nil
}

// Write encodes vol as an uncompressed NIfTI-1 stream.
func Write(w io.Writer, vol *models.VoxelVolume) error {
	h, err := newHeader(vol)
	if err != nil {
		return err
	}
	if want := vol.Dims[0] * vol.Dims[1] * vol.Dims[2]; len(vol.Data) != want {
		return fmt.Errorf("volume holds %d voxels, dims need %d", len(vol.Data), want)
	}

	bw := bufio.NewWriter(w)
	if err := binary.Write(bw, binary.LittleEndian, h); err != nil {
		return err
	}
	// empty extension block
	if _, err := bw.Write(make([]byte, voxOffset-headerSize)); err != nil {
		return err
	}
	if _, err := bw.Write(vol.Data); err != nil {
		return err
	}
	return bw.Flush()
}

// Read decodes an uncompressed NIfTI-1 stream holding an unsigned 8-bit 3D volume.
func Read(r io.Reader) (*models.VoxelVolume, error) {
	var h header
	if err := binary.Read(r, binary.LittleEndian, &h); err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	if h.SizeofHdr != headerSize {
		return nil, fmt.Errorf("not a little-endian NIfTI-1 file (sizeof_hdr %d)", h.SizeofHdr)
	}
	if h.Magic != magic {
		return nil, fmt.Errorf("unsupported magic %q", h.Magic[:3])
	}
	if h.Datatype != dtUint8 || h.Bitpix != 8 {
		return nil, fmt.Errorf("unsupported datatype %d", h.Datatype)
	}
	if h.Dim[0] != 3 {
		return nil, fmt.Errorf("expected 3 dimensions, got %d", h.Dim[0])
	}

	var dims [3]int
	for i := range dims {
		if h.Dim[i+1] < 0 {
			return nil, fmt.Errorf("negative dimension %d", h.Dim[i+1])
		}
		dims[i] = int(h.Dim[i+1])
	}

	skip := int64(h.VoxOffset) - headerSize
	if skip < 0 {
		return nil, fmt.Errorf("invalid vox_offset %v", h.VoxOffset)
	}
	if _, err := io.CopyN(io.Discard, r, skip); err != nil {
		return nil, fmt.Errorf("failed to skip extensions: %w", err)
	}

	vol := models.NewVoxelVolume(dims, [3]float64{
		float64(h.Pixdim[1]), float64(h.Pixdim[2]), float64(h.Pixdim[3]),
	})
	if h.SformCode > 0 {
		for j := 0; j < 4; j++ {
			vol.Affine.Set(0, j, float64(h.SrowX[j]))
			vol.Affine.Set(1, j, float64(h.SrowY[j]))
			vol.Affine.Set(2, j, float64(h.SrowZ[j]))
		}
	}
	vol.RegionName = string(bytes.TrimRight(h.Descrip[:], "\x00"))

	if _, err := io.ReadFull(r, vol.Data); err != nil {
		return nil, fmt.Errorf("failed to read voxel data: %w", err)
	}
	return vol, nil
}

// Save writes vol to path, gzip compressed when path ends in ".gz".
func Save(path string, vol *models.VoxelVolume) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create volume file %s: %w", path, err)
	}

	if err := encode(f, path, vol); err != nil {
		f.Close()
		return fmt.Errorf("failed to write volume file %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close volume file %s: %w", path, err)
	}
	return nil
}

func encode(w io.Writer, path string, vol *models.VoxelVolume) error {
	if !isCompressed(path) {
		return Write(w, vol)
	}

	zw := gzip.NewWriter(w)
	if err := Write(zw, vol); err != nil {
		zw.Close()
		return err
	}
	return zw.Close()
}

// Load reads the volume stored at path.
func Load(path string) (*models.VoxelVolume, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open volume file %s: %w", path, err)
	}
	defer f.Close()

	var r io.Reader = bufio.NewReader(f)
	if isCompressed(path) {
		zr, err := gzip.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("failed to read volume file %s: %w", path, err)
		}
		defer zr.Close()
		r = zr
	}

	vol, err := Read(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read volume file %s: %w", path, err)
	}
	return vol, nil
}

func isCompressed(path string) bool {
	return strings.HasSuffix(strings.ToLower(path), ".gz")
}
