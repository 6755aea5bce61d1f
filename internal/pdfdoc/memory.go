package pdfdoc

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/local/tileview/internal/toc"
)

// MemoryDoc describes a synthetic document served by MemoryOpener.
type MemoryDoc struct {
	Sizes [][2]float64 // inches
	TOC   []toc.Entry
	// Delay is slept on every Rasterize call.
	Delay time.Duration
}

// MemoryOpener serves synthetic documents registered by name. Every page is
// a solid PageColor fill. It is safe for concurrent use.
type MemoryOpener struct {
	mu      sync.Mutex
	docs    map[string]MemoryDoc
	renders atomic.Int64
}

// NewMemoryOpener returns an empty opener.
func NewMemoryOpener() *MemoryOpener {
	return &MemoryOpener{docs: map[string]MemoryDoc{}}
}

// Add registers doc under name.
func (o *MemoryOpener) Add(name string, doc MemoryDoc) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.docs[name] = doc
}

// Renders returns the number of Rasterize calls served so far.
func (o *MemoryOpener) Renders() int64 { return o.renders.Load() }

func (o *MemoryOpener) Open(path string) (Document, error) {
	o.mu.Lock()
	doc, ok := o.docs[path]
	o.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("open %s: %w", path, os.ErrNotExist)
	}
	return &memDocument{opener: o, doc: doc}, nil
}

// PageColor is the fill of a synthetic page.
func PageColor(page int) color.RGBA {
	return color.RGBA{R: uint8(40 + page*37%200), G: uint8(90 + page*53%150), B: uint8(page * 71 % 256), A: 255}
}

type memDocument struct {
	opener *MemoryOpener
	doc    MemoryDoc
	closed bool
}

func (d *memDocument) PageCount() int { return len(d.doc.Sizes) }

func (d *memDocument) PageSizeInches(page int) (float64, float64, error) {
	if err := checkPage(page, len(d.doc.Sizes)); err != nil {
		return 0, 0, err
	}
	return d.doc.Sizes[page][0], d.doc.Sizes[page][1], nil
}

func (d *memDocument) Rasterize(page int, dpi float64, rect image.Rectangle) (image.Image, error) {
	if d.closed {
		return nil, fmt.Errorf("rasterize: document closed")
	}
	if err := checkPage(page, len(d.doc.Sizes)); err != nil {
		return nil, err
	}
	d.opener.renders.Add(1)
	if d.doc.Delay > 0 {
		time.Sleep(d.doc.Delay)
	}
	sz := d.doc.Sizes[page]
	bounds := image.Rect(0, 0, int(math.Ceil(sz[0]*dpi)), int(math.Ceil(sz[1]*dpi)))
	r := rect.Intersect(bounds)
	img := image.NewRGBA(image.Rect(0, 0, r.Dx(), r.Dy()))
	c := PageColor(page)
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = c.R, c.G, c.B, c.A
	}
	return img, nil
}

func (d *memDocument) TableOfContents() ([]toc.Entry, error) {
	return append([]toc.Entry(nil), d.doc.TOC...), nil
}

func (d *memDocument) Close() error {
	d.closed = true
	return nil
}
