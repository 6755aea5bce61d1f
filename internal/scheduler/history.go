package scheduler

import "image"

// History records, per page, the rectangles already rendered at the page's
// current DPI. Recording at a new DPI forgets the old entries.
type History struct {
	pages map[int]*pageHistory
}

type pageHistory struct {
	dpi  float64
	rois map[image.Rectangle]struct{}
}

func NewHistory() *History { return &History{pages: map[int]*pageHistory{}} }

// Contains reports whether roi of page was rendered at dpi.
func (h *History) Contains(page int, dpi float64, roi image.Rectangle) bool {
	ph, ok := h.pages[page]
	if !ok || ph.dpi != dpi {
		return false
	}
	_, ok = ph.rois[roi]
	return ok
}

// Record adds roi of page at dpi.
func (h *History) Record(page int, dpi float64, roi image.Rectangle) {
	ph, ok := h.pages[page]
	if !ok || ph.dpi != dpi {
		ph = &pageHistory{dpi: dpi, rois: map[image.Rectangle]struct{}{}}
		h.pages[page] = ph
	}
	ph.rois[roi] = struct{}{}
}

// Len returns the number of rectangles recorded for page.
func (h *History) Len(page int) int {
	if ph, ok := h.pages[page]; ok {
		return len(ph.rois)
	}
	return 0
}

// Reset forgets everything.
func (h *History) Reset() { h.pages = map[int]*pageHistory{} }
