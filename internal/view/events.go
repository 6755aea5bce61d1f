package view

import (
	"github.com/local/tileview/internal/geom"
	"github.com/local/tileview/internal/toc"
)

// NormalizedRegion is the visible part of a page with coordinates relative
// to the page size (0..1).
type NormalizedRegion struct {
	Page int       `json:"page"`
	Rect geom.Rect `json:"rect"`
}

// Listener receives view events. Events are delivered synchronously on the
// control goroutine, so handlers may call back into controllers.
type Listener interface {
	OnLoadFinished(pageCount int)
	OnTOCLoaded(entries []toc.Entry)
	// OnViewportChanged reports the visible regions; the first one is the
	// current page.
	OnViewportChanged(filename string, pageCount int, regions []NormalizedRegion)
	// OnZoomChanged reports the zoom level, 0 meaning fit width.
	OnZoomChanged(level float64)
	OnColumnCountChanged(columns int)
	OnLeadingEmptyPageChanged(leading int)
	OnCurrentPageChanged(page int)
	OnRelocationRequested(page int, xRatio, yRatio float64)
}

// BaseListener implements Listener with no-ops; embed it to handle only some
// events.
type BaseListener struct{}

func (BaseListener) OnLoadFinished(int)                                {}
func (BaseListener) OnTOCLoaded([]toc.Entry)                           {}
func (BaseListener) OnViewportChanged(string, int, []NormalizedRegion) {}
func (BaseListener) OnZoomChanged(float64)                             {}
func (BaseListener) OnColumnCountChanged(int)                          {}
func (BaseListener) OnLeadingEmptyPageChanged(int)                     {}
func (BaseListener) OnCurrentPageChanged(int)                          {}
func (BaseListener) OnRelocationRequested(int, float64, float64)       {}

// Bus fans events out to its listeners in subscription order.
type Bus struct {
	listeners []Listener
}

// Subscribe adds l.
func (b *Bus) Subscribe(l Listener) { b.listeners = append(b.listeners, l) }

func (b *Bus) loadFinished(n int) {
	for _, l := range b.listeners {
		l.OnLoadFinished(n)
	}
}

func (b *Bus) tocLoaded(entries []toc.Entry) {
	for _, l := range b.listeners {
		l.OnTOCLoaded(entries)
	}
}

func (b *Bus) viewportChanged(filename string, n int, regions []NormalizedRegion) {
	for _, l := range b.listeners {
		l.OnViewportChanged(filename, n, regions)
	}
}

func (b *Bus) zoomChanged(level float64) {
	for _, l := range b.listeners {
		l.OnZoomChanged(level)
	}
}

func (b *Bus) columnCountChanged(n int) {
	for _, l := range b.listeners {
		l.OnColumnCountChanged(n)
	}
}

func (b *Bus) leadingEmptyPageChanged(n int) {
	for _, l := range b.listeners {
		l.OnLeadingEmptyPageChanged(n)
	}
}

func (b *Bus) currentPageChanged(page int) {
	for _, l := range b.listeners {
		l.OnCurrentPageChanged(page)
	}
}

func (b *Bus) relocationRequested(page int, xr, yr float64) {
	for _, l := range b.listeners {
		l.OnRelocationRequested(page, xr, yr)
	}
}
