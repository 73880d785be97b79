package reconstruction

import (
	"math"
	"slices"

	"microdraw3d/internal/models"
)

const (
	// maxCoord bounds translated coordinates so lattice bounds stay exact as int values
	maxCoord = 1 << 24

	fillValue      = 255
	perimeterValue = 0
)

// rasterizeRegion draws one region into a z-plane of nx*ny cells: the filled
// interior is set to 255, then the perimeter is set to 0. Points are first
// translated by -origin. Nothing is written unless the whole region can be
// rasterized. Cells outside the plane are clipped.
func rasterizeRegion(plane []uint8, nx, ny int, points []models.Point2D, origin models.Point2D) error {
	if len(points) == 0 {
		return errNoPoints
	}

	local := make([]models.Point2D, len(points))
	for i, p := range points {
		x, y := p.X-origin.X, p.Y-origin.Y
		if math.IsNaN(x) || math.IsNaN(y) || math.IsInf(x, 0) || math.IsInf(y, 0) {
			return errNotFinite
		}
		if math.Abs(x) > maxCoord || math.Abs(y) > maxCoord {
			return errOutOfRange
		}
		local[i] = models.Point2D{X: x, Y: y}
	}

	if nx == 0 || ny == 0 {
		return nil
	}

	interior := fillPolygon(local, nx, ny)
	boundary := polygonPerimeter(local, nx, ny)

	for _, idx := range interior {
		plane[idx] = fillValue
	}
	for _, idx := range boundary {
		plane[idx] = perimeterValue
	}
	return nil
}

// fillPolygon returns the plane offsets of the lattice points inside the
// polygon under the even-odd rule. Each lattice column x is crossed with the
// edges spanning it half-open (xi <= x < xj). Between successive pairs of
// crossings, the cells from the lower crossing (included) to the upper one
// (excluded) are interior.
func fillPolygon(points []models.Point2D, nx, ny int) []int {
	n := len(points)
	if n < 3 {
		return nil
	}

	minX, maxX := points[0].X, points[0].X
	for _, p := range points[1:] {
		minX = math.Min(minX, p.X)
		maxX = math.Max(maxX, p.X)
	}
	x0 := max(0, int(math.Ceil(minX)))
	x1 := min(nx-1, int(math.Floor(maxX)))

	var (
		cells     []int
		crossings []float64
	)
	for x := x0; x <= x1; x++ {
		fx := float64(x)
		crossings = crossings[:0]
		for i, j := 0, n-1; i < n; j, i = i, i+1 {
			pi, pj := points[i], points[j]
			if (pi.X <= fx && fx < pj.X) || (pj.X <= fx && fx < pi.X) {
				crossings = append(crossings, (pj.Y-pi.Y)*(fx-pi.X)/(pj.X-pi.X)+pi.Y)
			}
		}
		slices.Sort(crossings)

		for k := 0; k+1 < len(crossings); k += 2 {
			lo := max(0, int(math.Ceil(crossings[k])))
			hi := min(ny, int(math.Ceil(crossings[k+1])))
			for y := lo; y < hi; y++ {
				cells = append(cells, x+nx*y)
			}
		}
	}
	return cells
}

// polygonPerimeter returns the plane offsets of the closed outline of the
// polygon. Vertices are rounded half to even and joined with Bresenham
// lines, the last vertex back to the first.
func polygonPerimeter(points []models.Point2D, nx, ny int) []int {
	var cells []int
	plot := func(x, y int) {
		if x >= 0 && x < nx && y >= 0 && y < ny {
			cells = append(cells, x+nx*y)
		}
	}

	n := len(points)
	xs := make([]int, n)
	ys := make([]int, n)
	for i, p := range points {
		xs[i] = int(math.RoundToEven(p.X))
		ys[i] = int(math.RoundToEven(p.Y))
	}

	if n == 1 {
		plot(xs[0], ys[0])
		return cells
	}
	for i := 0; i < n; i++ {
		j := (i + 1) % n
		line(xs[i], ys[i], xs[j], ys[j], plot)
	}
	return cells
}

// line calls plot for every cell of the Bresenham line from (x0, y0) to
// (x1, y1), both ends included.
func line(x0, y0, x1, y1 int, plot func(x, y int)) {
	dx := abs(x1 - x0)
	dy := -abs(y1 - y0)
	sx, sy := 1, 1
	if x0 > x1 {
		sx = -1
	}
	if y0 > y1 {
		sy = -1
	}

	err := dx + dy
	for {
		plot(x0, y0)
		if x0 == x1 && y0 == y1 {
			return
		}
		e2 := 2 * err
		if e2 >= dy {
			err += dy
			x0 += sx
		}
		if e2 <= dx {
			err += dx
			y0 += sy
		}
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
