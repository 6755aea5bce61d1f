package view

import (
	"image"
	"math"

	"github.com/local/tileview/internal/geom"
)

const ensureVisibleMargin = 50

// HighlightVisible marks the regions another view of the same document
// shows: each region gets a mask, the first page gets the current-page
// border and is scrolled into view. Regions for another document or page
// count are ignored.
func (c *Controller) HighlightVisible(filename string, pageCount int, regions []NormalizedRegion) {
	if !c.loaded || len(c.pages) == 0 || filename != c.filename || pageCount != len(c.pages) || len(regions) == 0 {
		return
	}
	for _, page := range c.highlighted {
		c.caches[page].SetMask(image.Rectangle{})
	}
	c.caches[c.marked].SetBorderHighlight(false)
	c.highlighted = c.highlighted[:0]

	for i, r := range regions {
		if r.Page < 0 || r.Page >= len(c.pages) {
			continue
		}
		c.prepare(r.Page)
		sz := c.pages[r.Page].PixelSize
		w, h := float64(sz.X), float64(sz.Y)
		c.caches[r.Page].SetMask(geom.R(r.Rect.X*w, r.Rect.Y*h, r.Rect.W*w, r.Rect.H*h).Pixels())
		c.highlighted = append(c.highlighted, r.Page)
		if i == 0 {
			c.marked = r.Page
			c.caches[r.Page].SetBorderHighlight(true)
			c.ensureVisible(c.pages[r.Page].Scene, ensureVisibleMargin)
		}
	}
}

// ensureVisible scrolls the least amount that brings r, with margin, into
// the viewport.
func (c *Controller) ensureVisible(r geom.Rect, margin float64) {
	x := scrollToShow(c.scrollX, c.viewW, r.X, r.W, margin)
	y := scrollToShow(c.scrollY, c.viewH, r.Y, r.H, margin)
	if x == c.scrollX && y == c.scrollY {
		return
	}
	c.ScrollTo(x, y)
}

// scrollToShow returns the scroll position that brings [start, start+length)
// into a viewport of size view at pos, keeping margin around it. A span longer
// than the viewport is shown from its start.
func scrollToShow(pos, view, start, length, margin float64) float64 {
	if length > view {
		return start
	}
	if length+2*margin > view {
		margin = math.Max(0, (view-length)/2)
	}
	switch {
	case start-margin < pos:
		return start - margin
	case start+length+margin > pos+view:
		return start + length + margin - view
	}
	return pos
}

// Link makes thumbs follow main: the regions main shows are highlighted in
// thumbs, and relocation requests from thumbs centre main on the requested
// page point.
func Link(main, thumbs *Controller) {
	main.Bus().Subscribe(&highlighter{target: thumbs})
	thumbs.Bus().Subscribe(&relocator{target: main})
}

type highlighter struct {
	BaseListener
	target *Controller
}

func (h *highlighter) OnViewportChanged(filename string, pageCount int, regions []NormalizedRegion) {
	h.target.HighlightVisible(filename, pageCount, regions)
}

type relocator struct {
	BaseListener
	target *Controller
}

func (r *relocator) OnRelocationRequested(page int, xRatio, yRatio float64) {
	r.target.CenterOnPage(page, xRatio, yRatio)
}
