package tile

import (
	"image"
	"math"
)

// DefaultPatchSize is the target patch edge length in pixels.
const DefaultPatchSize = 800

// Key identifies one patch of a grid. Rows and Cols are the grid
// dimensions, both powers of two.
type Key struct {
	Rows, Cols int
	Row, Col   int
}

// Index is the linear patch index row*cols+col, used for de-duplication and
// worker assignment.
func (k Key) Index() int { return k.Row*k.Cols + k.Col }

// ID is the hierarchical patch id cols² + row*cols + col. Ids of different
// grid resolutions fall in disjoint ranges as long as rows < 3*cols.
func (k Key) ID() int { return k.Cols*k.Cols + k.Row*k.Cols + k.Col }

// Covers reports whether patch k is equal to or an ancestor of patch o, i.e.
// o's area lies inside k's area when both grids span the same page. Grids
// are compared in normalized page coordinates, which is exact because every
// dimension is a power of two.
func (k Key) Covers(o Key) bool {
	if k.Rows == 0 || k.Cols == 0 || o.Rows < k.Rows || o.Cols < k.Cols {
		return false
	}
	if o.Rows%k.Rows != 0 || o.Cols%k.Cols != 0 {
		return false
	}
	return o.Row/(o.Rows/k.Rows) == k.Row && o.Col/(o.Cols/k.Cols) == k.Col
}

// Grid partitions a page of a given pixel size into patches.
type Grid struct {
	Width, Height int
	Rows, Cols    int
}

// axisCount returns the power-of-two patch count along an edge.
func axisCount(edge, target int) int {
	if edge <= 0 || target <= 0 {
		return 1
	}
	n := math.Floor(math.Log2(float64(edge)/float64(target)) + 0.5)
	if n < 0 {
		n = 0
	}
	return 1 << int(n)
}

// NewGrid computes the patch grid for a page of w×h pixels.
func NewGrid(w, h, target int) Grid {
	if target <= 0 {
		target = DefaultPatchSize
	}
	if w <= 0 || h <= 0 {
		return Grid{}
	}
	return Grid{Width: w, Height: h, Rows: axisCount(h, target), Cols: axisCount(w, target)}
}

// Empty reports whether the grid covers no pixels.
func (g Grid) Empty() bool { return g.Width <= 0 || g.Height <= 0 }

// Len returns the number of patches.
func (g Grid) Len() int { return g.Rows * g.Cols }

func (g Grid) colEdge(c int) int { return c * g.Width / g.Cols }
func (g Grid) rowEdge(r int) int { return r * g.Height / g.Rows }

// Key returns the key of the patch at (row, col).
func (g Grid) Key(row, col int) Key { return Key{Rows: g.Rows, Cols: g.Cols, Row: row, Col: col} }

// Rect returns the pixel rectangle of patch (row, col). Patch edges are
// integer divisions of the page size, so the patches tile the page exactly.
func (g Grid) Rect(row, col int) image.Rectangle {
	return image.Rect(g.colEdge(col), g.rowEdge(row), g.colEdge(col+1), g.rowEdge(row+1))
}

// Locate returns the patch containing the pixel (x, y), clamped to the grid.
func (g Grid) Locate(x, y int) Key {
	if g.Empty() {
		return Key{}
	}
	col := clamp(x*g.Cols/g.Width, 0, g.Cols-1)
	row := clamp(y*g.Rows/g.Height, 0, g.Rows-1)
	// integer edges may shift the boundary by one pixel
	for col > 0 && x < g.colEdge(col) {
		col--
	}
	for col < g.Cols-1 && x >= g.colEdge(col+1) {
		col++
	}
	for row > 0 && y < g.rowEdge(row) {
		row--
	}
	for row < g.Rows-1 && y >= g.rowEdge(row+1) {
		row++
	}
	return g.Key(row, col)
}

// Patch is a grid cell with its pixel rectangle.
type Patch struct {
	Key  Key
	Rect image.Rectangle
}

// PatchesIn returns the patches intersecting roi, row-major.
func (g Grid) PatchesIn(roi image.Rectangle) []Patch {
	if g.Empty() {
		return nil
	}
	roi = roi.Intersect(image.Rect(0, 0, g.Width, g.Height))
	if roi.Empty() {
		return nil
	}
	first := g.Locate(roi.Min.X, roi.Min.Y)
	last := g.Locate(roi.Max.X-1, roi.Max.Y-1)
	out := make([]Patch, 0, (last.Row-first.Row+1)*(last.Col-first.Col+1))
	for r := first.Row; r <= last.Row; r++ {
		for c := first.Col; c <= last.Col; c++ {
			out = append(out, Patch{Key: g.Key(r, c), Rect: g.Rect(r, c)})
		}
	}
	return out
}

// All returns every patch of the grid, row-major.
func (g Grid) All() []Patch {
	return g.PatchesIn(image.Rect(0, 0, g.Width, g.Height))
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
