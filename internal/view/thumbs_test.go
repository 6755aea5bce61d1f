package view

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/local/tileview/internal/geom"
	"github.com/local/tileview/internal/pdfdoc"
)

func linkedViews(t *testing.T) (*Controller, *Controller) {
	t.Helper()
	o := testOpener()
	main := newTestView(t, "main", o)
	thumbs := newTestView(t, "thumbs", o)
	Link(main, thumbs)
	openView(t, thumbs, "doc.pdf", 200, 600, nil)
	openView(t, main, "doc.pdf", 800, 600, nil)
	return main, thumbs
}

func TestThumbnailsFollowMainView(t *testing.T) {
	main, thumbs := linkedViews(t)
	assert.Equal(t, []int{0}, thumbs.highlighted)

	main.GotoPage(6)
	main.Tick(time.Now())
	require.Equal(t, []int{6}, thumbs.highlighted)
	assert.Equal(t, 6, thumbs.marked)

	// page 6 was scrolled into view with a margin
	_, y := thumbs.Scroll()
	p := thumbs.pages[6].Scene
	assert.InDelta(t, p.Bottom()+ensureVisibleMargin-600, y, 1e-9)

	pump(t, func() bool { return covered(thumbs) }, main, thumbs)
	frame := thumbs.Frame()
	top := int(p.Y - y)
	base := pdfdoc.PageColor(6)
	masked := frame.RGBAAt(100, top+50)
	assert.Less(t, masked.R, base.R)
	assert.Less(t, masked.G, base.G)
	assert.Less(t, masked.B, base.B)
	assert.Equal(t, base, frame.RGBAAt(100, top+200), "below the region shown by the main view")
}

func TestThumbnailHighlightIgnoresOtherDocument(t *testing.T) {
	_, thumbs := linkedViews(t)
	thumbs.HighlightVisible("other.pdf", 10, []NormalizedRegion{{Page: 3, Rect: geom.R(0, 0, 1, 1)}})
	assert.Equal(t, []int{0}, thumbs.highlighted)
	thumbs.HighlightVisible("doc.pdf", 3, []NormalizedRegion{{Page: 1, Rect: geom.R(0, 0, 1, 1)}})
	assert.Equal(t, []int{0}, thumbs.highlighted)
}

func TestRelocationFromThumbnails(t *testing.T) {
	main, thumbs := linkedViews(t)
	rec := &recorder{}
	thumbs.Bus().Subscribe(rec)

	main.GotoPage(6)
	main.Tick(time.Now())
	thumbs.Tick(time.Now())

	// click the centre of page 6 in the thumbnails
	tx, ty := thumbs.Scroll()
	tp := thumbs.pages[6].Scene
	cx, cy := tp.Center()
	thumbs.RequestRelocation(cx-tx, cy-ty)
	require.Len(t, rec.relocate, 1)
	assert.Equal(t, 6.0, rec.relocate[0][0])
	assert.InDelta(t, 0.5, rec.relocate[0][1], 1e-9)
	assert.InDelta(t, 0.5, rec.relocate[0][2], 1e-9)

	main.Tick(time.Now())
	mp := main.pages[6].Scene
	_, my := main.Scroll()
	assert.InDelta(t, mp.Y+mp.H/2-300, my, 1e-9)
	assert.Equal(t, 6, main.CurrentPage())
}

func TestScrollToShow(t *testing.T) {
	assert.Equal(t, 0.0, scrollToShow(0, 600, 100, 200, 50))
	assert.Equal(t, 50.0, scrollToShow(400, 600, 100, 200, 50))
	assert.Equal(t, 650.0, scrollToShow(0, 600, 1000, 200, 50))
	// fits only without the margin: centred
	assert.Equal(t, 980.0, scrollToShow(0, 600, 1000, 560, 50))
	// taller than the viewport: top aligned from either side
	assert.Equal(t, 1000.0, scrollToShow(0, 600, 1000, 800, 50))
	assert.Equal(t, 1000.0, scrollToShow(1500, 600, 1000, 800, 50))
	assert.Equal(t, 1000.0, scrollToShow(1000, 600, 1000, 800, 50))
}
