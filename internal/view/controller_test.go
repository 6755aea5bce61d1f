package view

import (
	"encoding/json"
	"image"
	"image/color"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/local/tileview/internal/layout"
	"github.com/local/tileview/internal/pdfdoc"
	"github.com/local/tileview/internal/toc"
	"github.com/local/tileview/internal/worker"
)

func letter(n int) [][2]float64 {
	out := make([][2]float64, n)
	for i := range out {
		out[i] = [2]float64{8.5, 11}
	}
	return out
}

func testOpener() *pdfdoc.MemoryOpener {
	o := pdfdoc.NewMemoryOpener()
	o.Add("doc.pdf", pdfdoc.MemoryDoc{
		Sizes: letter(10),
		TOC: []toc.Entry{
			{Level: 1, Title: "Intro", Page: 1},
			{Level: 1, Title: "Body", Page: 3},
			{Level: 2, Title: "Details", Page: 5},
		},
	})
	o.Add("other.pdf", pdfdoc.MemoryDoc{Sizes: letter(3)})
	return o
}

func newTestView(t *testing.T, name string, o pdfdoc.Opener) *Controller {
	t.Helper()
	c := New(Options{
		Name:    name,
		Workers: 3,
		Opener:  o,
		Layout:  layout.New(96, nil, 3, 5),
		Worker:  worker.Options{Tick: time.Millisecond},
	})
	t.Cleanup(c.Close)
	return c
}

// pump ticks the views until cond holds.
func pump(t *testing.T, cond func() bool, views ...*Controller) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		for _, v := range views {
			v.Tick(time.Now())
		}
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition not reached")
}

func openView(t *testing.T, c *Controller, filename string, w, h float64, st *State) {
	t.Helper()
	c.Resize(w, h)
	c.SetDocument(filename, 96, st)
	pump(t, func() bool { return c.Loaded() && c.tocIndex != nil }, c)
}

// covered reports whether every visible region is fully covered by current
// tiles.
func covered(c *Controller) bool {
	if len(c.regions) == 0 {
		return false
	}
	for _, r := range c.regions {
		if c.caches[r.Page].CoveredFraction(r.Local) < 1 {
			return false
		}
	}
	return true
}

type recorder struct {
	BaseListener
	loaded   []int
	zooms    []float64
	columns  []int
	leading  []int
	current  []int
	viewport int
	tocs     int
	relocate [][3]float64
}

func (r *recorder) OnLoadFinished(n int)                              { r.loaded = append(r.loaded, n) }
func (r *recorder) OnTOCLoaded([]toc.Entry)                           { r.tocs++ }
func (r *recorder) OnZoomChanged(level float64)                       { r.zooms = append(r.zooms, level) }
func (r *recorder) OnColumnCountChanged(n int)                        { r.columns = append(r.columns, n) }
func (r *recorder) OnLeadingEmptyPageChanged(n int)                   { r.leading = append(r.leading, n) }
func (r *recorder) OnCurrentPageChanged(page int)                     { r.current = append(r.current, page) }
func (r *recorder) OnViewportChanged(string, int, []NormalizedRegion) { r.viewport++ }
func (r *recorder) OnRelocationRequested(page int, xr, yr float64) {
	r.relocate = append(r.relocate, [3]float64{float64(page), xr, yr})
}

func TestLoadRendersVisiblePatches(t *testing.T) {
	o := testOpener()
	c := newTestView(t, "main", o)
	rec := &recorder{}
	c.Bus().Subscribe(rec)
	openView(t, c, "doc.pdf", 800, 600, nil)

	require.Equal(t, 10, c.PageCount())
	idx, fit := c.Zoom()
	assert.True(t, fit)
	assert.Equal(t, 6, idx)
	assert.InDelta(t, 794/8.5, c.PageDPI(0), 1e-9)
	assert.Equal(t, image.Pt(794, 1027), c.pages[0].PixelSize)
	assert.Equal(t, 1, c.caches[0].Grid().Len())

	regions := c.VisibleRegions()
	require.Len(t, regions, 1)
	assert.Equal(t, 0, regions[0].Page)
	assert.Equal(t, image.Rect(0, 0, 794, 600), regions[0].Local)

	pump(t, func() bool { return covered(c) }, c)
	assert.False(t, c.pages[1].Initialized, "pages never shown stay uninitialized")

	frame := c.Frame()
	assert.Equal(t, image.Rect(0, 0, 800, 600), frame.Bounds())
	assert.Equal(t, pdfdoc.PageColor(0), frame.RGBAAt(400, 300))
	assert.Equal(t, backgroundColor, frame.RGBAAt(1, 300), "spacing left of the page")

	assert.Equal(t, []int{10}, rec.loaded)
	assert.Equal(t, []int{1}, rec.columns)
	assert.Equal(t, []float64{0}, rec.zooms)
	assert.Equal(t, []int{0}, rec.current)
	assert.Equal(t, 1, rec.tocs)
	assert.Positive(t, rec.viewport)
}

func TestZoomInRerendersAtNewDPI(t *testing.T) {
	o := testOpener()
	c := newTestView(t, "main", o)
	rec := &recorder{}
	c.Bus().Subscribe(rec)
	openView(t, c, "doc.pdf", 800, 600, nil)
	pump(t, func() bool { return covered(c) }, c)
	before := o.Renders()

	c.ZoomIn(nil)
	idx, fit := c.Zoom()
	assert.False(t, fit)
	assert.Equal(t, 7, idx)
	assert.Equal(t, 120.0, c.PageDPI(0))
	assert.Equal(t, image.Pt(1020, 1320), c.pages[0].PixelSize)
	assert.Equal(t, 2, c.caches[0].Grid().Len())
	assert.Equal(t, 1.25, rec.zooms[len(rec.zooms)-1])

	// the old tile is kept, stretched, until new ones arrive
	st := c.caches[0].Stats()
	assert.Zero(t, st.Current)
	assert.Equal(t, 1, st.Cached)
	assertNear(t, pdfdoc.PageColor(0), c.Frame().RGBAAt(400, 300))

	pump(t, func() bool { return covered(c) }, c)
	assert.Greater(t, o.Renders(), before)
	for _, tl := range c.caches[0].CurrentTiles() {
		assert.Equal(t, 1020, tl.Image.Bounds().Dx())
	}
}

func TestZoomLimits(t *testing.T) {
	c := newTestView(t, "main", testOpener())
	openView(t, c, "doc.pdf", 800, 600, nil)

	for i := 0; i < 20; i++ {
		c.ZoomOut(nil)
	}
	idx, _ := c.Zoom()
	assert.Equal(t, 0, idx)
	for i := 0; i < 20; i++ {
		c.ZoomIn(nil)
	}
	idx, _ = c.Zoom()
	assert.Equal(t, len(layout.DefaultZoomLevels)-1, idx)
}

func TestToggleActualSize(t *testing.T) {
	c := newTestView(t, "main", testOpener())
	openView(t, c, "doc.pdf", 800, 600, nil)

	c.ToggleActualSize()
	idx, fit := c.Zoom()
	assert.False(t, fit)
	assert.Equal(t, 6, idx)
	assert.Equal(t, 96.0, c.PageDPI(0))

	c.ToggleActualSize()
	_, fit = c.Zoom()
	assert.True(t, fit)
}

func TestStateRoundTrip(t *testing.T) {
	o := testOpener()
	a := newTestView(t, "a", o)
	openView(t, a, "doc.pdf", 800, 600, nil)
	a.ZoomIn(nil)
	a.ScrollTo(100, 2500)
	a.Tick(time.Now())

	st, ok := a.State()
	require.True(t, ok)
	assert.Equal(t, 1, st.Location.Page)
	assert.Equal(t, 7, st.ZoomIndex)
	assert.False(t, st.FitWidth)

	b := newTestView(t, "b", o)
	openView(t, b, "doc.pdf", 800, 600, &st)
	ax, ay := a.Scroll()
	bx, by := b.Scroll()
	assert.InDelta(t, ax, bx, 1)
	assert.InDelta(t, ay, by, 1)
	assert.Equal(t, a.CurrentPage(), b.CurrentPage())

	got, ok := b.State()
	require.True(t, ok)
	assert.Equal(t, st.ZoomIndex, got.ZoomIndex)
	assert.Equal(t, st.Location.Page, got.Location.Page)
}

func TestRestoreSerializedState(t *testing.T) {
	in := State{
		ColumnCount:      2,
		LeadingEmptyPage: 1,
		ZoomIndex:        6,
		FitWidth:         false,
		Location:         Anchor{Page: 3, XRatio: 0.4, YRatio: 0.1},
	}
	b, err := json.Marshal(in)
	require.NoError(t, err)
	var st State
	require.NoError(t, json.Unmarshal(b, &st))
	require.Equal(t, in, st)

	c := newTestView(t, "main", testOpener())
	openView(t, c, "doc.pdf", 800, 600, &st)

	got, ok := c.State()
	require.True(t, ok)
	assert.Equal(t, 2, got.ColumnCount)
	assert.Equal(t, 1, got.LeadingEmptyPage)
	assert.Equal(t, 6, got.ZoomIndex)
	assert.False(t, got.FitWidth)
	assert.Equal(t, 3, got.Location.Page)
	p := c.pages[3].Scene
	assert.InDelta(t, 0.4, got.Location.XRatio, 1/p.W)
	assert.InDelta(t, 0.1, got.Location.YRatio, 1/p.H)
}

func TestStateBeforeLoad(t *testing.T) {
	c := newTestView(t, "main", testOpener())
	_, ok := c.State()
	assert.False(t, ok)
}

func TestPageNavigation(t *testing.T) {
	c := newTestView(t, "main", testOpener())
	rec := &recorder{}
	c.Bus().Subscribe(rec)
	openView(t, c, "doc.pdf", 800, 600, nil)

	c.GotoPage(3)
	c.Tick(time.Now())
	assert.Equal(t, 3, c.CurrentPage())
	_, y := c.Scroll()
	assert.Equal(t, c.pages[3].Scene.Y, y)

	c.NextPage()
	c.Tick(time.Now())
	assert.Equal(t, 4, c.CurrentPage())
	c.PrevPage()
	c.Tick(time.Now())
	c.PrevPage()
	c.Tick(time.Now())
	assert.Equal(t, 2, c.CurrentPage())

	c.GotoPage(99)
	c.Tick(time.Now())
	assert.Equal(t, 9, c.CurrentPage())
	assert.Equal(t, []int{0, 3, 4, 3, 2, 9}, rec.current)
}

func TestPageAtNearestPage(t *testing.T) {
	c := newTestView(t, "main", testOpener())
	openView(t, c, "doc.pdf", 800, 600, nil)

	a, ok := c.PageAt(400, 300)
	require.True(t, ok)
	assert.Equal(t, 0, a.Page)
	assert.InDelta(t, 397.0/794, a.XRatio, 1e-9)

	// in the spacing between page 0 and page 1 the nearer centre wins
	a, _ = c.PageAt(400, 1028)
	assert.Equal(t, 0, a.Page)
	a, _ = c.PageAt(400, 1031)
	assert.Equal(t, 1, a.Page)
}

func TestColumnsAndLeadingPage(t *testing.T) {
	c := newTestView(t, "main", testOpener())
	rec := &recorder{}
	c.Bus().Subscribe(rec)
	openView(t, c, "doc.pdf", 800, 600, nil)

	c.SetColumnCount(2)
	cols, lead := c.Columns()
	assert.Equal(t, 2, cols)
	assert.Equal(t, 0, lead)
	regions := c.VisibleRegions()
	require.GreaterOrEqual(t, len(regions), 2)
	assert.Equal(t, 0, regions[0].Page)
	assert.Equal(t, 1, regions[1].Page)

	c.SetLeadingEmptyPage(1)
	_, lead = c.Columns()
	assert.Equal(t, 1, lead)
	assert.Greater(t, c.pages[0].Scene.X, c.pages[1].Scene.X)

	c.SetColumnCount(1)
	cols, lead = c.Columns()
	assert.Equal(t, 1, cols)
	assert.Equal(t, 0, lead)
	assert.Equal(t, []int{0, 1, 0}, rec.leading)

	c.SetColumnCount(40)
	cols, _ = c.Columns()
	assert.Equal(t, 10, cols)
}

func TestResizeIsDebounced(t *testing.T) {
	now := time.Unix(1000, 0)
	c := New(Options{
		Name:           "main",
		Workers:        1,
		Opener:         testOpener(),
		Layout:         layout.New(96, nil, 3, 5),
		Worker:         worker.Options{Tick: time.Millisecond},
		ResizeDebounce: 200 * time.Millisecond,
		Now:            func() time.Time { return now },
	})
	t.Cleanup(c.Close)
	c.Resize(800, 600)
	c.SetDocument("doc.pdf", 96, nil)
	pump(t, c.Loaded, c)
	dpi := c.PageDPI(0)

	c.Resize(400, 600)
	c.Tick(now.Add(100 * time.Millisecond))
	assert.Equal(t, dpi, c.PageDPI(0))
	c.Tick(now.Add(250 * time.Millisecond))
	assert.InDelta(t, 394/8.5, c.PageDPI(0), 1e-9)
}

func TestSwitchingDocumentDropsStaleResults(t *testing.T) {
	o := testOpener()
	c := newTestView(t, "main", o)
	c.Resize(800, 600)
	c.SetDocument("doc.pdf", 96, nil)
	c.SetDocument("other.pdf", 96, nil)
	pump(t, func() bool { return c.Loaded() && covered(c) }, c)
	assert.Equal(t, 3, c.PageCount())
	assert.Equal(t, "other.pdf", c.Filename())
}

func TestMissingDocumentLoadsEmpty(t *testing.T) {
	c := newTestView(t, "main", testOpener())
	rec := &recorder{}
	c.Bus().Subscribe(rec)
	c.Resize(800, 600)
	c.SetDocument("missing.pdf", 96, nil)
	pump(t, c.Loaded, c)
	assert.Zero(t, c.PageCount())
	assert.Equal(t, []int{0}, rec.loaded)
	assert.Empty(t, c.VisibleRegions())
	assert.Equal(t, -1, c.CurrentPage())
	c.GotoPage(2)
	c.ZoomIn(nil)
	c.Tick(time.Now())
}

func TestTOCBreadcrumb(t *testing.T) {
	c := newTestView(t, "main", testOpener())
	openView(t, c, "doc.pdf", 800, 600, nil)

	info := c.TOC()
	require.Len(t, info.Entries, 3)
	assert.Equal(t, 0, info.Current)

	c.GotoPage(5)
	c.Tick(time.Now())
	info = c.TOC()
	assert.Equal(t, 2, info.Current)
	assert.Equal(t, []string{"Body", "Details"}, info.Breadcrumb)
}

func TestNormalizedRegions(t *testing.T) {
	c := newTestView(t, "main", testOpener())
	openView(t, c, "doc.pdf", 800, 600, nil)
	n := c.normalizedRegions()
	require.Len(t, n, 1)
	assert.Equal(t, 0, n[0].Page)
	assert.InDelta(t, 0, n[0].Rect.X, 1e-9)
	assert.InDelta(t, 1, n[0].Rect.W, 1e-9)
	assert.InDelta(t, 600.0/1027, n[0].Rect.H, 1e-9)
	assert.False(t, math.IsNaN(n[0].Rect.Y))
}

func assertNear(t *testing.T, want, got color.RGBA) {
	t.Helper()
	d := func(a, b uint8) float64 { return math.Abs(float64(a) - float64(b)) }
	assert.LessOrEqual(t, d(want.R, got.R)+d(want.G, got.G)+d(want.B, got.B), 6.0, "want %v got %v", want, got)
}
