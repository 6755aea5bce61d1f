// Package tile keeps the rendered patches of a single page and composes
// them into the visible image. Tiles rendered for the current page size are
// "current"; tiles left over from a previous size are "cached" and shown,
// stretched, only until fresh tiles cover them.
package tile

import (
	"image"
	"image/color"
	"image/draw"
	"sort"

	"github.com/rs/zerolog/log"

	"github.com/local/tileview/internal/geom"
	"github.com/local/tileview/internal/imagerender"
)

// DefaultCoverThreshold is the covered-area fraction above which a cached
// tile counts as superseded.
const DefaultCoverThreshold = 0.9

var (
	pageColor   = color.RGBA{R: 255, G: 255, B: 255, A: 255}
	maskColor   = color.RGBA{A: 100}
	borderColor = color.RGBA{R: 255, G: 200, A: 255}
)

// Tile is one rendered patch image. DX, DY is the offset of the image inside
// the page at the time it was rendered; Ratio scales it to the current page
// size.
type Tile struct {
	Key   Key
	Image image.Image
	DX    int
	DY    int
	Ratio float64
}

// Virtual returns the tile rectangle in current page pixels.
func (t *Tile) Virtual() geom.Rect {
	b := t.Image.Bounds()
	return geom.R(float64(t.DX)*t.Ratio, float64(t.DY)*t.Ratio, float64(b.Dx())*t.Ratio, float64(b.Dy())*t.Ratio)
}

type placeholder struct {
	rect image.Rectangle
	img  image.Image
}

// Stats counts the tiles held by a Cache.
type Stats struct {
	Current      int
	Cached       int
	Placeholders int
}

// Cache is the tile store and compositor of one page. It is not safe for
// concurrent use; the owning view controller serializes access.
type Cache struct {
	x, y          float64
	width, height int
	grid          Grid
	patchSize     int
	threshold     float64

	current      map[int]*Tile
	cached       []*Tile
	placeholders []placeholder

	mask      image.Rectangle
	highlight bool
}

// NewCache returns an empty, zero-sized page cache.
func NewCache(patchSize int, threshold float64) *Cache {
	if patchSize <= 0 {
		patchSize = DefaultPatchSize
	}
	if threshold <= 0 || threshold > 1 {
		threshold = DefaultCoverThreshold
	}
	return &Cache{patchSize: patchSize, threshold: threshold, current: map[int]*Tile{}}
}

// Initialize places the page at (x, y) in the scene with the given pixel
// size. It is the same operation as Resize.
func (c *Cache) Initialize(x, y float64, width, height int) { c.Resize(x, y, width, height) }

// Resize moves the page and changes its pixel size. Current tiles become
// cached placeholders scaled by the width ratio, and the grid is rebuilt.
func (c *Cache) Resize(x, y float64, width, height int) {
	ratio := 1.0
	if c.width > 0 {
		ratio = float64(width) / float64(c.width)
	}
	for _, t := range c.cached {
		t.Ratio *= ratio
	}
	for _, idx := range c.currentIndices() {
		t := c.current[idx]
		t.Ratio *= ratio
		c.cached = append(c.cached, t)
	}
	c.current = map[int]*Tile{}
	c.placeholders = nil
	c.mask = image.Rectangle{}

	c.x, c.y = x, y
	c.width, c.height = width, height
	c.grid = NewGrid(width, height, c.patchSize)
}

// Grid returns the current patch grid.
func (c *Cache) Grid() Grid { return c.grid }

// Size returns the page size in pixels.
func (c *Cache) Size() image.Point { return image.Pt(c.width, c.height) }

// Position returns the page origin in scene coordinates.
func (c *Cache) Position() (float64, float64) { return c.x, c.y }

// AddPixmap stores a freshly rendered tile whose top-left corner sits at
// (dx, dy) in page pixels. The patch is the one containing the tile centre.
// Cached tiles covered by current tiles are evicted. It returns false when
// the page has no grid yet.
func (c *Cache) AddPixmap(img image.Image, dx, dy int) (Key, bool) {
	if c.grid.Empty() || img == nil {
		return Key{}, false
	}
	b := img.Bounds()
	key := c.grid.Locate(dx+b.Dx()/2, dy+b.Dy()/2)
	c.current[key.Index()] = &Tile{Key: key, Image: img, DX: dx, DY: dy, Ratio: 1}
	c.evictCovered(key)
	return key, true
}

func (c *Cache) evictCovered(added Key) {
	if len(c.cached) == 0 {
		return
	}
	keep := c.cached[:0]
	evicted := 0
	for _, ct := range c.cached {
		vr := ct.Virtual()
		area := vr.W * vr.H
		if area <= 0 || added.Covers(ct.Key) || c.coveredArea(vr) >= c.threshold*area {
			evicted++
			continue
		}
		keep = append(keep, ct)
	}
	for i := len(keep); i < len(c.cached); i++ {
		c.cached[i] = nil
	}
	c.cached = keep
	if evicted > 0 {
		log.Debug().Int("evicted", evicted).Int("cached", len(c.cached)).Msg("cached tiles superseded")
	}
}

// coveredArea sums the overlap of r with all current tiles. Current tiles
// belong to one grid and never overlap each other.
func (c *Cache) coveredArea(r geom.Rect) float64 {
	total := 0.0
	for _, t := range c.current {
		ov := r.Intersect(t.Virtual())
		total += ov.W * ov.H
	}
	return total
}

// UpdateTransientItems refreshes the placeholders for the visible page
// region. Cached tiles outside the region are dropped; cached tiles not yet
// covered by current tiles are cropped and rescaled into placeholders.
func (c *Cache) UpdateTransientItems(visible image.Rectangle) {
	c.placeholders = nil
	visF := geom.FromPixels(visible)
	page := image.Rect(0, 0, c.width, c.height)

	keep := c.cached[:0]
	for _, ct := range c.cached {
		vr := ct.Virtual()
		ov := vr.Intersect(visF)
		if ov.Empty() {
			continue
		}
		keep = append(keep, ct)
		if c.coveredArea(ov) >= c.threshold*ov.W*ov.H {
			continue
		}
		dst := ov.Pixels().Intersect(page)
		if dst.Empty() {
			continue
		}
		// source region in the tile's own pixels
		src := geom.R((ov.X-vr.X)/ct.Ratio, (ov.Y-vr.Y)/ct.Ratio, ov.W/ct.Ratio, ov.H/ct.Ratio).Pixels().
			Add(ct.Image.Bounds().Min).Intersect(ct.Image.Bounds())
		if src.Empty() {
			continue
		}
		c.placeholders = append(c.placeholders, placeholder{rect: dst, img: imagerender.Scale(ct.Image, src, dst.Size())})
	}
	for i := len(keep); i < len(c.cached); i++ {
		c.cached[i] = nil
	}
	c.cached = keep
}

// SetMask sets the highlighted region of the page in page pixels; an empty
// rectangle removes the mask.
func (c *Cache) SetMask(r image.Rectangle) { c.mask = r.Intersect(image.Rect(0, 0, c.width, c.height)) }

// SetBorderHighlight toggles the current-page border.
func (c *Cache) SetBorderHighlight(on bool) { c.highlight = on }

// Clear drops every tile.
func (c *Cache) Clear() {
	c.current = map[int]*Tile{}
	c.cached = nil
	c.placeholders = nil
}

// Stats returns tile counts.
func (c *Cache) Stats() Stats {
	return Stats{Current: len(c.current), Cached: len(c.cached), Placeholders: len(c.placeholders)}
}

// CurrentTiles returns the current tiles ordered by patch index.
func (c *Cache) CurrentTiles() []*Tile {
	out := make([]*Tile, 0, len(c.current))
	for _, idx := range c.currentIndices() {
		out = append(out, c.current[idx])
	}
	return out
}

// CachedTiles returns the cached tiles.
func (c *Cache) CachedTiles() []*Tile { return append([]*Tile(nil), c.cached...) }

// CoveredFraction returns the fraction of the given page rectangle covered
// by current tiles.
func (c *Cache) CoveredFraction(r image.Rectangle) float64 {
	a := geom.Area(r)
	if a == 0 {
		return 0
	}
	return c.coveredArea(geom.FromPixels(r)) / float64(a)
}

func (c *Cache) currentIndices() []int {
	idx := make([]int, 0, len(c.current))
	for i := range c.current {
		idx = append(idx, i)
	}
	sort.Ints(idx)
	return idx
}

// Compose draws the page region visible (page pixels) into an image whose
// bounds equal visible: a white page, placeholders underneath and current
// tiles on top, then the mask and border.
func (c *Cache) Compose(visible image.Rectangle) *image.RGBA {
	dst := image.NewRGBA(visible)
	c.DrawInto(dst, visible, image.Point{})
	return dst
}

// DrawInto paints the page region visible (page pixels) into dst with the
// page origin mapped to origin in dst coordinates.
func (c *Cache) DrawInto(dst draw.Image, visible image.Rectangle, origin image.Point) {
	visible = visible.Intersect(image.Rect(0, 0, c.width, c.height))
	if visible.Empty() {
		return
	}
	target := visible.Add(origin)
	draw.Draw(dst, target, image.NewUniform(pageColor), image.Point{}, draw.Src)

	for _, p := range c.placeholders {
		r := p.rect.Intersect(visible)
		if r.Empty() {
			continue
		}
		draw.Draw(dst, r.Add(origin), p.img, p.img.Bounds().Min.Add(r.Min.Sub(p.rect.Min)), draw.Src)
	}
	for _, idx := range c.currentIndices() {
		t := c.current[idx]
		b := t.Image.Bounds()
		tr := image.Rect(t.DX, t.DY, t.DX+b.Dx(), t.DY+b.Dy())
		r := tr.Intersect(visible)
		if r.Empty() {
			continue
		}
		draw.Draw(dst, r.Add(origin), t.Image, b.Min.Add(r.Min.Sub(tr.Min)), draw.Src)
	}
	if m := c.mask.Intersect(visible); !m.Empty() {
		draw.Draw(dst, m.Add(origin), image.NewUniform(maskColor), image.Point{}, draw.Over)
	}
	if c.highlight {
		drawBorder(dst, image.Rect(0, 0, c.width, c.height).Add(origin).Intersect(target), 2)
	}
}

func drawBorder(dst draw.Image, r image.Rectangle, w int) {
	src := image.NewUniform(borderColor)
	edges := []image.Rectangle{
		image.Rect(r.Min.X, r.Min.Y, r.Max.X, r.Min.Y+w),
		image.Rect(r.Min.X, r.Max.Y-w, r.Max.X, r.Max.Y),
		image.Rect(r.Min.X, r.Min.Y, r.Min.X+w, r.Max.Y),
		image.Rect(r.Max.X-w, r.Min.Y, r.Max.X, r.Max.Y),
	}
	for _, e := range edges {
		draw.Draw(dst, e.Intersect(r), src, image.Point{}, draw.Src)
	}
}
