// Package layout arranges pages of a document into a grid of rows and
// columns and derives the rendering DPI of every page.
package layout

import (
	"image"
	"math"

	"github.com/local/tileview/internal/geom"
)

// DefaultZoomLevels is the zoom ladder used when none is configured.
var DefaultZoomLevels = []float64{0.12, 0.25, 0.33, 0.50, 0.66, 0.75, 1.0, 1.25, 1.5, 2.0, 4.0, 8.0, 16.0}

// Engine holds the view-independent layout parameters.
type Engine struct {
	ScreenDPI  float64
	ZoomLevels []float64
	HSpacing   float64
	VSpacing   float64
}

// Input describes one layout computation.
type Input struct {
	PageSizes    [][2]float64 // (width, height) in inches
	Columns      int
	LeadingEmpty int
	FitWidth     bool
	ZoomIndex    int
	ViewportW    float64
	ViewportH    float64
}

// Result is the geometry produced by Compute. Columns, LeadingEmpty and
// ZoomIndex are the effective values after clamping; in fit-width mode
// ZoomIndex is the nearest ladder entry and is informational only.
type Result struct {
	Columns      int
	LeadingEmpty int
	ZoomIndex    int
	Rows         int
	DPI          []float64
	PixelSizes   []image.Point
	SceneRects   []geom.Rect
	Canvas       geom.Size
}

// PageCount returns the number of laid out pages.
func (r Result) PageCount() int { return len(r.DPI) }

// New returns an Engine with the given screen DPI and ladder; a nil ladder
// selects DefaultZoomLevels.
func New(screenDPI float64, levels []float64, hspacing, vspacing float64) Engine {
	if len(levels) == 0 {
		levels = DefaultZoomLevels
	}
	return Engine{ScreenDPI: screenDPI, ZoomLevels: levels, HSpacing: hspacing, VSpacing: vspacing}
}

// ClampColumns bounds a requested column count to [1, pages].
func ClampColumns(columns, pages int) int {
	if columns > pages {
		columns = pages
	}
	if columns < 1 {
		columns = 1
	}
	return columns
}

// ClampLeading returns the effective leading empty page count for a column
// count: only 0 or 1, and always 0 in single column mode.
func ClampLeading(leading, columns int) int {
	if columns <= 1 || leading <= 0 {
		return 0
	}
	return 1
}

// ClampZoomIndex bounds idx to the ladder.
func (e Engine) ClampZoomIndex(idx int) int {
	if idx < 0 {
		return 0
	}
	if idx >= len(e.ZoomLevels) {
		return len(e.ZoomLevels) - 1
	}
	return idx
}

// IndexOf returns the ladder index of level, or -1.
func (e Engine) IndexOf(level float64) int {
	for i, l := range e.ZoomLevels {
		if l == level {
			return i
		}
	}
	return -1
}

// NearestZoomIndex snaps a zoom ratio to the ladder. Ties keep the lower
// index.
func (e Engine) NearestZoomIndex(ratio float64) int {
	best, bestDiff := 0, math.Inf(1)
	for i, l := range e.ZoomLevels {
		if d := math.Abs(l - ratio); d < bestDiff {
			best, bestDiff = i, d
		}
	}
	return best
}

// Compute lays out the pages. It has no side effects: identical inputs give
// identical results.
func (e Engine) Compute(in Input) Result {
	n := len(in.PageSizes)
	if n == 0 {
		return Result{Columns: in.Columns, LeadingEmpty: in.LeadingEmpty, ZoomIndex: in.ZoomIndex}
	}
	cols := ClampColumns(in.Columns, n)
	lead := ClampLeading(in.LeadingEmpty, cols)
	res := Result{
		Columns:      cols,
		LeadingEmpty: lead,
		ZoomIndex:    e.ClampZoomIndex(in.ZoomIndex),
		DPI:          make([]float64, n),
		PixelSizes:   make([]image.Point, n),
		SceneRects:   make([]geom.Rect, n),
	}
	e.computeDPI(in, cols, &res)
	e.arrange(cols, lead, &res)
	return res
}

func (e Engine) computeDPI(in Input, cols int, res *Result) {
	n := len(in.PageSizes)
	if in.FitWidth {
		colWidth := (in.ViewportW - e.HSpacing*float64(cols+1)) / float64(cols)
		if colWidth < 1 {
			colWidth = 1
		}
		avg := 0.0
		for i, sz := range in.PageSizes {
			dpi := colWidth / sz[0]
			res.DPI[i] = dpi
			res.PixelSizes[i] = image.Pt(int(colWidth), int(sz[1]*dpi))
			if e.ScreenDPI > 0 {
				avg += dpi / e.ScreenDPI
			}
		}
		res.ZoomIndex = e.NearestZoomIndex(avg / float64(n))
		return
	}
	dpi := e.ScreenDPI * e.ZoomLevels[res.ZoomIndex]
	for i, sz := range in.PageSizes {
		res.DPI[i] = dpi
		res.PixelSizes[i] = image.Pt(int(sz[0]*dpi), int(sz[1]*dpi))
	}
}

func (e Engine) arrange(cols, lead int, res *Result) {
	n := len(res.PixelSizes)
	slots := n + lead
	rows := (slots + cols - 1) / cols
	res.Rows = rows

	rowHeights := make([]float64, rows)
	colWidths := make([]float64, cols)
	for i, sz := range res.PixelSizes {
		slot := i + lead
		r, c := slot/cols, slot%cols
		rowHeights[r] = math.Max(rowHeights[r], float64(sz.Y))
		colWidths[c] = math.Max(colWidths[c], float64(sz.X))
	}

	rowStart := make([]float64, rows)
	colStart := make([]float64, cols)
	for r := 1; r < rows; r++ {
		rowStart[r] = rowStart[r-1] + rowHeights[r-1]
	}
	for c := 1; c < cols; c++ {
		colStart[c] = colStart[c-1] + colWidths[c-1]
	}

	for i, sz := range res.PixelSizes {
		slot := i + lead
		r, c := slot/cols, slot%cols
		w, h := float64(sz.X), float64(sz.Y)
		x := colStart[c] + e.HSpacing*float64(c+1) + (colWidths[c]-w)/2
		y := rowStart[r] + e.VSpacing*float64(r+1) + (rowHeights[r]-h)/2
		res.SceneRects[i] = geom.R(x, y, w, h)
	}

	totalW, totalH := 0.0, 0.0
	for _, w := range colWidths {
		totalW += w
	}
	for _, h := range rowHeights {
		totalH += h
	}
	res.Canvas = geom.Size{
		W: totalW + float64(cols+1)*e.HSpacing,
		H: totalH + float64(rows+1)*e.VSpacing,
	}
}
