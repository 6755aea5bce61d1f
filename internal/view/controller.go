// Package view drives one document view: it owns the layout, the per-page
// tile caches, the render history and a pool of render workers, and turns
// viewport changes into render requests and worker results into tiles.
package view

import (
	"image"
	"image/color"
	"image/draw"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/local/tileview/internal/geom"
	"github.com/local/tileview/internal/layout"
	"github.com/local/tileview/internal/metrics"
	"github.com/local/tileview/internal/pdfdoc"
	"github.com/local/tileview/internal/reconcile"
	"github.com/local/tileview/internal/scheduler"
	"github.com/local/tileview/internal/tile"
	"github.com/local/tileview/internal/toc"
	"github.com/local/tileview/internal/worker"
)

// DefaultResizeDebounce is how long a view waits after the last resize
// before laying out again.
const DefaultResizeDebounce = 200 * time.Millisecond

var backgroundColor = color.RGBA{R: 0xe6, G: 0xe6, B: 0xe6, A: 0xff}

// Options configures a Controller.
type Options struct {
	Name           string
	Workers        int
	Opener         pdfdoc.Opener
	Layout         layout.Engine
	PatchSize      int
	CoverThreshold float64
	Worker         worker.Options
	ResizeDebounce time.Duration
	// Now is the clock used for resize debouncing; nil means time.Now.
	Now func() time.Time
}

// pageGeometry is the layout record of one page. Scene is only pushed into
// the page cache when the page first becomes visible.
type pageGeometry struct {
	SizeInches  [2]float64
	RenderDPI   float64
	PixelSize   image.Point
	Scene       geom.Rect
	Initialized bool
}

// Controller is one view. All methods must be called from the same
// goroutine; workers run on their own goroutines and are only reached
// through their mailboxes.
type Controller struct {
	name   string
	opts   Options
	engine layout.Engine
	logger zerolog.Logger

	pool    *worker.Pool
	sched   *scheduler.Scheduler
	recon   *reconcile.Reconciler
	bus     Bus
	session string

	filename   string
	screenDPI  float64
	loaded     bool
	sizes      [][2]float64
	pages      []pageGeometry
	caches     []*tile.Cache
	tocEntries []toc.Entry
	tocIndex   *toc.Index

	columns    int
	leading    int
	zoomIndex  int
	fitWidth   bool
	relocation *Anchor
	canvas     geom.Size

	viewW, viewH     float64
	scrollX, scrollY float64
	regions          []scheduler.Region
	currentPage      int

	scrollDirty   bool
	resizePending bool
	resizeAt      time.Time

	// thumbnail highlighting
	highlighted []int
	marked      int
}

// New creates a view and starts its workers.
func New(opts Options) *Controller {
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if len(opts.Layout.ZoomLevels) == 0 {
		opts.Layout = layout.New(opts.Layout.ScreenDPI, nil, opts.Layout.HSpacing, opts.Layout.VSpacing)
	}
	if opts.ResizeDebounce < 0 {
		opts.ResizeDebounce = 0
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	c := &Controller{
		name:        opts.Name,
		opts:        opts,
		engine:      opts.Layout,
		columns:     1,
		fitWidth:    true,
		zoomIndex:   opts.Layout.IndexOf(1.0),
		currentPage: -1,
	}
	if c.zoomIndex < 0 {
		c.zoomIndex = 0
	}
	c.logger = log.With().Str("view", c.name).Logger()
	c.pool = worker.NewPool(c.name, opts.Workers, opts.Opener, opts.Worker)
	c.sched = scheduler.New(c.name, c.pool, nil)
	c.recon = reconcile.New(c.name, pipeline{c}, c.sched.History())
	return c
}

// Name returns the view name.
func (c *Controller) Name() string { return c.name }

// Bus returns the event bus of the view.
func (c *Controller) Bus() *Bus { return &c.bus }

// Close stops the render workers.
func (c *Controller) Close() { c.pool.Close() }

// SetDocument switches the view to filename. Page sizes and the table of
// contents arrive asynchronously; the view is loaded once they do. A non-nil
// state is applied on load.
func (c *Controller) SetDocument(filename string, screenDPI float64, st *State) {
	c.filename = filename
	c.screenDPI = screenDPI
	c.session = uuid.NewString()
	c.logger = log.With().Str("view", c.name).Str("session", c.session).Logger()

	c.loaded = false
	c.sizes = nil
	c.pages = nil
	c.caches = nil
	c.tocEntries = nil
	c.tocIndex = nil
	c.regions = nil
	c.highlighted = nil
	c.marked = 0
	c.currentPage = -1
	c.canvas = geom.Size{}
	c.scrollX, c.scrollY = 0, 0
	c.sched.Reset()

	c.leading = 0
	c.fitWidth = true
	c.relocation = nil
	if st != nil {
		c.columns = st.ColumnCount
		c.leading = st.LeadingEmptyPage
		c.zoomIndex = c.engine.ClampZoomIndex(st.ZoomIndex)
		c.fitWidth = st.FitWidth
		loc := st.Location
		c.relocation = &loc
	}
	if screenDPI > 0 {
		c.engine.ScreenDPI = screenDPI
	}

	c.pool.Broadcast(worker.Set(filename))
	c.pool.Send(0, worker.PageSizes())
	c.pool.Send(0, worker.TOC())
	c.logger.Info().Str("file", filename).Float64("screen_dpi", screenDPI).Msg("document set")
}

// Filename returns the active document.
func (c *Controller) Filename() string { return c.filename }

// Loaded reports whether page sizes have arrived.
func (c *Controller) Loaded() bool { return c.loaded }

// PageCount returns the number of pages of the loaded document.
func (c *Controller) PageCount() int { return len(c.pages) }

func (c *Controller) onPageSizes(sizes [][2]float64) {
	c.sizes = sizes
	c.pages = make([]pageGeometry, len(sizes))
	c.caches = make([]*tile.Cache, len(sizes))
	for i, sz := range sizes {
		c.pages[i].SizeInches = sz
		c.caches[i] = tile.NewCache(c.opts.PatchSize, c.opts.CoverThreshold)
	}
	c.columns = layout.ClampColumns(c.columns, len(sizes))
	c.loaded = true
	c.logger.Info().Str("file", c.filename).Int("pages", len(sizes)).Msg("page sizes received")

	c.redraw(c.relocation)
	c.relocation = nil

	c.bus.columnCountChanged(c.columns)
	c.bus.leadingEmptyPageChanged(c.leading)
	c.bus.zoomChanged(c.zoomLevel())
	c.bus.loadFinished(len(sizes))
}

func (c *Controller) onTOC(entries []toc.Entry) {
	c.tocEntries = entries
	c.tocIndex = toc.NewIndex(entries)
	c.bus.tocLoaded(entries)
}

func (c *Controller) zoomLevel() float64 {
	if c.fitWidth {
		return 0
	}
	return c.engine.ZoomLevels[c.zoomIndex]
}

// Tick runs one control step: apply worker results, handle a pending scroll
// and a debounced resize.
func (c *Controller) Tick(now time.Time) {
	if n := c.recon.DrainAll(c.pool); n > 0 {
		c.updateTileMetrics()
	}
	if c.scrollDirty {
		c.scrollDirty = false
		c.onViewportChanged()
	}
	if c.resizePending && now.Sub(c.resizeAt) >= c.opts.ResizeDebounce {
		c.resizePending = false
		c.redraw(nil)
	}
}

// Resize sets the viewport size in pixels. The layout follows once resizes
// stop for the debounce period.
func (c *Controller) Resize(w, h float64) {
	if w < 0 {
		w = 0
	}
	if h < 0 {
		h = 0
	}
	c.viewW, c.viewH = w, h
	c.resizePending = true
	c.resizeAt = c.opts.Now()
}

// ViewportSize returns the viewport size.
func (c *Controller) ViewportSize() (float64, float64) { return c.viewW, c.viewH }

// Scroll returns the scene position of the viewport's top-left corner.
func (c *Controller) Scroll() (float64, float64) { return c.scrollX, c.scrollY }

// Canvas returns the scene size.
func (c *Controller) Canvas() geom.Size { return c.canvas }

// ScrollTo moves the viewport's top-left corner to scene point (x, y). The
// visible set is recomputed on the next tick.
func (c *Controller) ScrollTo(x, y float64) {
	c.scrollX, c.scrollY = c.clampScroll(x, y)
	c.scrollDirty = true
}

// ScrollBy moves the viewport by (dx, dy).
func (c *Controller) ScrollBy(dx, dy float64) { c.ScrollTo(c.scrollX+dx, c.scrollY+dy) }

func (c *Controller) clampScroll(x, y float64) (float64, float64) {
	return clampAxis(x, c.canvas.W, c.viewW), clampAxis(y, c.canvas.H, c.viewH)
}

// clampAxis keeps the viewport inside the canvas, centring a canvas smaller
// than the viewport.
func clampAxis(v, canvas, view float64) float64 {
	if canvas <= view {
		return (canvas - view) / 2
	}
	return math.Max(0, math.Min(v, canvas-view))
}

func (c *Controller) centerOn(x, y float64) {
	c.ScrollTo(x-c.viewW/2, y-c.viewH/2)
}

func (c *Controller) viewport() geom.Rect {
	return geom.R(c.scrollX, c.scrollY, c.viewW, c.viewH)
}

func (c *Controller) sceneRects() []geom.Rect {
	out := make([]geom.Rect, len(c.pages))
	for i, p := range c.pages {
		out[i] = p.Scene
	}
	return out
}

// redraw lays the pages out again, keeping the page point under anchor (or
// under the top-left corner) at the same viewport position.
func (c *Controller) redraw(anchor *Anchor) {
	if len(c.pages) == 0 {
		return
	}
	c.resizePending = false
	var a Anchor
	switch {
	case anchor != nil:
		a = *anchor
	case c.canvas.W > 0:
		a, _ = c.PageAt(0, 0)
	}

	res := c.engine.Compute(layout.Input{
		PageSizes:    c.sizes,
		Columns:      c.columns,
		LeadingEmpty: c.leading,
		FitWidth:     c.fitWidth,
		ZoomIndex:    c.zoomIndex,
		ViewportW:    c.viewW,
		ViewportH:    c.viewH,
	})
	c.columns = res.Columns
	c.leading = res.LeadingEmpty
	c.zoomIndex = res.ZoomIndex
	c.canvas = res.Canvas
	for i := range c.pages {
		c.pages[i].RenderDPI = res.DPI[i]
		c.pages[i].PixelSize = res.PixelSizes[i]
		c.pages[i].Scene = res.SceneRects[i]
		c.pages[i].Initialized = false
	}
	c.sched.Reset()
	c.logger.Debug().
		Int("columns", c.columns).
		Int("leading", c.leading).
		Bool("fit_width", c.fitWidth).
		Int("zoom_index", c.zoomIndex).
		Float64("canvas_w", c.canvas.W).
		Float64("canvas_h", c.canvas.H).
		Msg("layout recomputed")

	c.viewAtAnchor(a)
	c.scrollDirty = false
	c.onViewportChanged()
}

func (c *Controller) viewAtAnchor(a Anchor) {
	if a.Page < 0 || a.Page >= len(c.pages) {
		a.Page = 0
	}
	p := c.pages[a.Page].Scene
	dx := c.viewW/2 - a.ViewX
	dy := c.viewH/2 - a.ViewY
	c.centerOn(p.X+a.XRatio*p.W+dx, p.Y+a.YRatio*p.H+dy)
}

// prepare pushes the page geometry into its cache on first visibility.
func (c *Controller) prepare(page int) {
	g := &c.pages[page]
	if g.Initialized {
		return
	}
	c.caches[page].Initialize(g.Scene.X, g.Scene.Y, g.PixelSize.X, g.PixelSize.Y)
	g.Initialized = true
}

func (c *Controller) onViewportChanged() {
	if !c.loaded || len(c.pages) == 0 {
		return
	}
	c.regions = scheduler.VisibleRegions(c.viewport(), c.sceneRects())
	if len(c.regions) == 0 {
		return
	}
	for _, r := range c.regions {
		c.prepare(r.Page)
		c.caches[r.Page].UpdateTransientItems(r.Local)
	}
	c.sched.Schedule(c.regions, pipeline{c})
	c.updateTileMetrics()

	c.bus.viewportChanged(c.filename, len(c.pages), c.normalizedRegions())
	if cur := c.regions[0].Page; cur != c.currentPage {
		c.currentPage = cur
		c.bus.currentPageChanged(cur)
	}
}

func (c *Controller) normalizedRegions() []NormalizedRegion {
	out := make([]NormalizedRegion, 0, len(c.regions))
	for _, r := range c.regions {
		sz := c.pages[r.Page].PixelSize
		if sz.X <= 0 || sz.Y <= 0 {
			continue
		}
		w, h := float64(sz.X), float64(sz.Y)
		out = append(out, NormalizedRegion{
			Page: r.Page,
			Rect: geom.R(float64(r.Local.Min.X)/w, float64(r.Local.Min.Y)/h, float64(r.Local.Dx())/w, float64(r.Local.Dy())/h),
		})
	}
	return out
}

func (c *Controller) updateTileMetrics() {
	current, cached := 0, 0
	for _, tc := range c.caches {
		st := tc.Stats()
		current += st.Current
		cached += st.Cached
	}
	metrics.SetTiles(c.name, current, cached)
}

// VisibleRegions returns the visible regions computed on the last viewport
// change.
func (c *Controller) VisibleRegions() []scheduler.Region {
	return append([]scheduler.Region(nil), c.regions...)
}

// CurrentPage returns the first visible page, or -1.
func (c *Controller) CurrentPage() int {
	if len(c.regions) == 0 {
		return -1
	}
	return c.regions[0].Page
}

// PageAt maps a viewport point to the page under it, or the nearest page by
// L1 distance of page centres, and the point's position relative to the page.
func (c *Controller) PageAt(viewX, viewY float64) (Anchor, bool) {
	if len(c.pages) == 0 {
		return Anchor{}, false
	}
	x, y := c.scrollX+viewX, c.scrollY+viewY
	page := -1
	for i, p := range c.pages {
		if p.Scene.Contains(x, y) {
			page = i
			break
		}
	}
	if page < 0 {
		best := math.Inf(1)
		for i, p := range c.pages {
			cx, cy := p.Scene.Center()
			if d := math.Abs(cx-x) + math.Abs(cy-y); d < best {
				page, best = i, d
			}
		}
	}
	r := c.pages[page].Scene
	a := Anchor{Page: page, ViewX: viewX, ViewY: viewY}
	if r.W > 0 {
		a.XRatio = (x - r.X) / r.W
	}
	if r.H > 0 {
		a.YRatio = (y - r.Y) / r.H
	}
	return a, true
}

// State returns the view state anchored at the viewport's top-left corner;
// ok is false until a document with pages is loaded.
func (c *Controller) State() (State, bool) {
	if !c.loaded {
		return State{}, false
	}
	a, ok := c.PageAt(0, 0)
	if !ok {
		return State{}, false
	}
	return State{
		ColumnCount:      c.columns,
		LeadingEmptyPage: c.leading,
		ZoomIndex:        c.zoomIndex,
		FitWidth:         c.fitWidth,
		Location:         a,
	}, true
}

// Zoom returns the zoom index and the fit-width flag.
func (c *Controller) Zoom() (int, bool) { return c.zoomIndex, c.fitWidth }

// Columns returns the column count and the leading empty page count.
func (c *Controller) Columns() (int, int) { return c.columns, c.leading }

// PageDPI returns the render DPI of page, or 0.
func (c *Controller) PageDPI(page int) float64 {
	if page < 0 || page >= len(c.pages) {
		return 0
	}
	return c.pages[page].RenderDPI
}

// SetColumnCount changes the number of columns.
func (c *Controller) SetColumnCount(n int) {
	if len(c.pages) == 0 {
		return
	}
	c.columns = layout.ClampColumns(n, len(c.pages))
	if c.columns == 1 && c.leading != 0 {
		c.leading = 0
		c.bus.leadingEmptyPageChanged(0)
	}
	c.redraw(nil)
	c.bus.columnCountChanged(c.columns)
}

// SetLeadingEmptyPage inserts (1) or removes (0) an empty slot before the
// first page. It only has an effect with more than one column.
func (c *Controller) SetLeadingEmptyPage(n int) {
	if len(c.pages) == 0 {
		return
	}
	c.leading = layout.ClampLeading(n, c.columns)
	c.redraw(nil)
	c.bus.leadingEmptyPageChanged(c.leading)
}

// ZoomIn moves one step up the zoom ladder, keeping anchor (or the top-left
// corner) in place.
func (c *Controller) ZoomIn(anchor *Anchor) {
	if c.zoomIndex >= len(c.engine.ZoomLevels)-1 {
		return
	}
	c.zoomTo(c.zoomIndex+1, anchor)
}

// ZoomOut moves one step down the zoom ladder.
func (c *Controller) ZoomOut(anchor *Anchor) {
	if c.zoomIndex <= 0 {
		return
	}
	c.zoomTo(c.zoomIndex-1, anchor)
}

func (c *Controller) zoomTo(idx int, anchor *Anchor) {
	c.zoomIndex = c.engine.ClampZoomIndex(idx)
	c.fitWidth = false
	c.redraw(anchor)
	c.bus.zoomChanged(c.zoomLevel())
}

// ZoomFitWidth fits the columns to the viewport width.
func (c *Controller) ZoomFitWidth() {
	c.fitWidth = true
	c.redraw(nil)
	c.bus.zoomChanged(0)
}

// ToggleActualSize switches between 100% and fit width.
func (c *Controller) ToggleActualSize() {
	actual := c.engine.IndexOf(1.0)
	if actual < 0 {
		return
	}
	if c.zoomIndex == actual && !c.fitWidth {
		c.ZoomFitWidth()
		return
	}
	c.zoomTo(actual, nil)
}

// GotoPage scrolls so the page's top-left corner is at the viewport's
// top-left corner, as far as the canvas allows.
func (c *Controller) GotoPage(page int) {
	if !c.loaded || len(c.pages) == 0 {
		return
	}
	page = max(0, min(page, len(c.pages)-1))
	p := c.pages[page].Scene
	c.centerOn(p.X+c.viewW/2, p.Y+c.viewH/2)
}

// NextPage moves one row down from the current page.
func (c *Controller) NextPage() {
	if len(c.regions) == 0 {
		return
	}
	c.GotoPage(c.regions[0].Page + c.columns)
}

// PrevPage moves one row up from the current page.
func (c *Controller) PrevPage() {
	if len(c.regions) == 0 {
		return
	}
	c.GotoPage(c.regions[0].Page - c.columns)
}

// CenterOnPage centres the viewport on the point (xRatio, yRatio) of page.
func (c *Controller) CenterOnPage(page int, xRatio, yRatio float64) {
	if !c.loaded || page < 0 || page >= len(c.pages) {
		return
	}
	p := c.pages[page].Scene
	c.centerOn(p.X+xRatio*p.W, p.Y+yRatio*p.H)
}

// RequestRelocation asks linked views to centre on the page point under the
// viewport point (viewX, viewY).
func (c *Controller) RequestRelocation(viewX, viewY float64) {
	if !c.loaded {
		return
	}
	a, ok := c.PageAt(viewX, viewY)
	if !ok {
		return
	}
	c.bus.relocationRequested(a.Page, a.XRatio, a.YRatio)
}

// TOCInfo is the outline with the position of the current page in it.
type TOCInfo struct {
	Entries    []toc.Entry `json:"entries"`
	Current    int         `json:"current"`
	Breadcrumb []string    `json:"breadcrumb"`
}

// TOC returns the table of contents and the breadcrumb of the current page.
func (c *Controller) TOC() TOCInfo {
	info := TOCInfo{Entries: c.tocEntries, Current: -1}
	if c.tocIndex == nil {
		return info
	}
	if page := c.CurrentPage(); page >= 0 {
		info.Current = c.tocIndex.Locate(page)
		info.Breadcrumb = c.tocIndex.Breadcrumb(info.Current)
	}
	return info
}

// Frame composes the viewport: background, then every visible page.
func (c *Controller) Frame() *image.RGBA {
	w, h := int(math.Ceil(c.viewW)), int(math.Ceil(c.viewH))
	dst := image.NewRGBA(image.Rect(0, 0, max(w, 0), max(h, 0)))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(backgroundColor), image.Point{}, draw.Src)
	if !c.loaded {
		return dst
	}
	for _, r := range scheduler.VisibleRegions(c.viewport(), c.sceneRects()) {
		if !c.pages[r.Page].Initialized {
			continue
		}
		p := c.pages[r.Page].Scene
		origin := image.Pt(int(math.Round(p.X-c.scrollX)), int(math.Round(p.Y-c.scrollY)))
		c.caches[r.Page].DrawInto(dst, r.Local, origin)
	}
	return dst
}

// pipeline adapts a Controller to the scheduler and the reconciler.
type pipeline struct{ c *Controller }

func (p pipeline) Prepare(page int) (float64, tile.Grid, bool) {
	if page < 0 || page >= len(p.c.pages) {
		return 0, tile.Grid{}, false
	}
	p.c.prepare(page)
	return p.c.pages[page].RenderDPI, p.c.caches[page].Grid(), true
}

func (p pipeline) ActiveFilename() string { return p.c.filename }
func (p pipeline) PageCount() int         { return len(p.c.pages) }

func (p pipeline) CurrentDPI(page int) float64 { return p.c.pages[page].RenderDPI }
func (p pipeline) Initialized(page int) bool   { return p.c.pages[page].Initialized }

func (p pipeline) AddTile(page int, img image.Image, roi image.Rectangle) {
	p.c.caches[page].AddPixmap(img, roi.Min.X, roi.Min.Y)
}

func (p pipeline) OnPageSizes(_ string, sizes [][2]float64) { p.c.onPageSizes(sizes) }
func (p pipeline) OnTOC(_ string, entries []toc.Entry)      { p.c.onTOC(entries) }
