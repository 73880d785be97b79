// Package visualization renders datasets and rasterized volumes as images.
package visualization

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"math"
	"strconv"

	"github.com/disintegration/imaging"
	"github.com/lucasb-eyer/go-colorful"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
	"golang.org/x/image/vector"
	"gonum.org/v1/gonum/floats"

	"microdraw3d/internal/models"
)

// PreviewOptions controls the tiled dataset preview.
type PreviewOptions struct {
	// Columns is the number of slice tiles per row
	Columns int

	// TileWidth is the side of one tile in annotation coordinates
	TileWidth float64

	// Scale converts annotation coordinates to pixels
	Scale float64

	// Alpha is the opacity of region fills, in [0, 1]
	Alpha float64
}

// DefaultPreviewOptions returns 13 columns of 800-unit tiles drawn at a
// quarter scale with half-transparent fills.
func DefaultPreviewOptions() PreviewOptions {
	return PreviewOptions{
		Columns:   13,
		TileWidth: 800,
		Scale:     0.25,
		Alpha:     0.5,
	}
}

// ColorFromString returns a colour for name as "#rrggbb": the first six hex
// digits of the SHA-256 of the name. Equal names always get equal colours.
func ColorFromString(name string) string {
	sum := sha256.Sum256([]byte(name))
	return "#" + hex.EncodeToString(sum[:])[:6]
}

// RegionColor returns the fill colour of a region with the given opacity.
func RegionColor(name string, alpha float64) color.NRGBA {
	// ColorFromString always yields a valid hex colour
	c, _ := colorful.Hex(ColorFromString(name))
	r, g, b := c.RGB255()
	a := math.Max(0, math.Min(1, alpha))
	return color.NRGBA{R: r, G: g, B: b, A: uint8(math.Round(a * 255))}
}

// DrawDataset draws every slice of a dataset side by side, Columns tiles per
// row in slice order. Each region is filled with the colour of its name, and
// slices holding regions are labelled with their index. Regions larger than a
// tile spill over into the neighbouring tiles.
func DrawDataset(slices [][]models.Region, opts PreviewOptions) (*image.NRGBA, error) {
	if opts.Columns <= 0 {
		return nil, fmt.Errorf("columns must be positive, got %d", opts.Columns)
	}
	tile := int(math.Round(opts.TileWidth * opts.Scale))
	if tile <= 0 {
		return nil, fmt.Errorf("tile of %v units at scale %v is empty", opts.TileWidth, opts.Scale)
	}

	cols := min(opts.Columns, max(1, len(slices)))
	rows := max(1, (len(slices)+opts.Columns-1)/opts.Columns)

	img := image.NewNRGBA(image.Rect(0, 0, cols*tile, rows*tile))
	draw.Draw(img, img.Bounds(), image.White, image.Point{}, draw.Src)

	z := vector.NewRasterizer(tile, tile)
	for s, regions := range slices {
		i, j := s%opts.Columns, s/opts.Columns
		r := image.Rect(i*tile, j*tile, (i+1)*tile, (j+1)*tile)

		for _, region := range regions {
			fillRegion(img, z, region, r.Min, opts)
		}

		if len(regions) > 0 {
			drawLabel(img, r, strconv.Itoa(s))
		}
	}

	return img, nil
}

// fillRegion fills one region whose tile starts at origin. The rasterizer is
// sized to the pixel bounds of the region; pixels off the image are dropped.
func fillRegion(img *image.NRGBA, z *vector.Rasterizer, region models.Region, origin image.Point, opts PreviewOptions) {
	if len(region.Points) < 3 {
		return
	}

	xs := make([]float64, len(region.Points))
	ys := make([]float64, len(region.Points))
	for k, p := range region.Points {
		xs[k] = float64(origin.X) + p.X*opts.Scale
		ys[k] = float64(origin.Y) + p.Y*opts.Scale
	}
	bounds := image.Rect(
		int(math.Floor(floats.Min(xs))), int(math.Floor(floats.Min(ys))),
		int(math.Ceil(floats.Max(xs))), int(math.Ceil(floats.Max(ys))),
	)
	if !bounds.Overlaps(img.Bounds()) {
		return
	}

	z.Reset(bounds.Dx(), bounds.Dy())
	for k := range xs {
		x, y := float32(xs[k]-float64(bounds.Min.X)), float32(ys[k]-float64(bounds.Min.Y))
		if k == 0 {
			z.MoveTo(x, y)
		} else {
			z.LineTo(x, y)
		}
	}
	z.ClosePath()
	z.Draw(img, bounds, image.NewUniform(RegionColor(region.Name, opts.Alpha)), image.Point{})
}

// drawLabel writes text centred at the bottom of r.
func drawLabel(img draw.Image, r image.Rectangle, text string) {
	face := basicfont.Face7x13
	w := font.MeasureString(face, text).Ceil()
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(color.NRGBA{A: 0x80}),
		Face: face,
		Dot:  fixed.P(r.Min.X+(r.Dx()-w)/2, r.Max.Y-face.Descent-1),
	}
	d.DrawString(text)
}

// SavePreview writes a preview image. The format follows the file extension.
func SavePreview(img image.Image, path string) error {
	if err := imaging.Save(img, path); err != nil {
		return fmt.Errorf("failed to save preview %s: %w", path, err)
	}
	return nil
}
