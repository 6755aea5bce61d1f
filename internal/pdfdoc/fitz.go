package pdfdoc

import (
	"errors"
	"fmt"
	"image"

	fitz "github.com/gen2brain/go-fitz"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/rs/zerolog/log"

	"github.com/local/tileview/internal/imagerender"
	"github.com/local/tileview/internal/toc"
)

// DefaultRasterCachePages is the number of full-page rasters a FitzOpener
// document keeps by default.
const DefaultRasterCachePages = 4

// FitzOpener opens PDF files with MuPDF through go-fitz.
type FitzOpener struct {
	// CacheSize is the number of (page, dpi) rasters kept per document.
	CacheSize int
}

type rasterKey struct {
	page int
	dpi  float64
}

type fitzDocument struct {
	path   string
	doc    *fitz.Document
	sizes  [][2]float64
	raster *lru.Cache[rasterKey, *image.RGBA]
}

// Open checks the file type, opens it and probes the page sizes.
func (o FitzOpener) Open(path string) (Document, error) {
	if err := CheckPDF(path); err != nil {
		return nil, err
	}
	doc, err := fitz.New(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open PDF: %w", err)
	}
	size := o.CacheSize
	if size <= 0 {
		size = DefaultRasterCachePages
	}
	raster, err := lru.New[rasterKey, *image.RGBA](size)
	if err != nil {
		doc.Close()
		return nil, fmt.Errorf("raster cache: %w", err)
	}
	d := &fitzDocument{path: path, doc: doc, raster: raster}
	if err := d.probeSizes(); err != nil {
		doc.Close()
		return nil, err
	}
	log.Debug().Str("file", path).Int("pages", len(d.sizes)).Msg("opened pdf")
	return d, nil
}

// probeSizes reads page dimensions with pdfcpu, which does not parse page
// content, and falls back to MuPDF bounds when pdfcpu cannot read the file.
func (d *fitzDocument) probeSizes() error {
	n := d.doc.NumPage()
	dims, err := api.PageDimsFile(d.path)
	if err == nil && len(dims) == n {
		d.sizes = make([][2]float64, n)
		for i, dim := range dims {
			d.sizes[i] = [2]float64{dim.Width / 72, dim.Height / 72}
		}
		return nil
	}
	if err != nil {
		log.Debug().Err(err).Str("file", d.path).Msg("pdfcpu page dims failed, using mupdf bounds")
	}
	d.sizes = make([][2]float64, n)
	for i := 0; i < n; i++ {
		b, err := d.doc.Bound(i)
		if err != nil {
			return fmt.Errorf("failed to read bounds of page %d: %w", i, err)
		}
		d.sizes[i] = [2]float64{float64(b.Dx()) / 72, float64(b.Dy()) / 72}
	}
	return nil
}

func (d *fitzDocument) PageCount() int { return len(d.sizes) }

func (d *fitzDocument) PageSizeInches(page int) (float64, float64, error) {
	if err := checkPage(page, len(d.sizes)); err != nil {
		return 0, 0, err
	}
	return d.sizes[page][0], d.sizes[page][1], nil
}

// Rasterize renders the whole page at dpi and crops rect out of it; go-fitz
// has no clip rectangle. Full-page rasters are cached so the other patches
// of the same page come from memory.
func (d *fitzDocument) Rasterize(page int, dpi float64, rect image.Rectangle) (image.Image, error) {
	if err := checkPage(page, len(d.sizes)); err != nil {
		return nil, err
	}
	key := rasterKey{page: page, dpi: dpi}
	full, ok := d.raster.Get(key)
	if !ok {
		img, err := d.doc.ImageDPI(page, dpi)
		if err != nil {
			return nil, fmt.Errorf("failed to render page %d: %w", page, err)
		}
		full = img
		d.raster.Add(key, full)
		log.Debug().
			Int("page", page).
			Float64("dpi", dpi).
			Int("width", img.Bounds().Dx()).
			Int("height", img.Bounds().Dy()).
			Msg("rasterized page")
	}
	return imagerender.Crop(full, rect.Add(full.Bounds().Min)), nil
}

func (d *fitzDocument) TableOfContents() ([]toc.Entry, error) {
	outlines, err := d.doc.ToC()
	if errors.Is(err, fitz.ErrLoadOutline) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read outline: %w", err)
	}
	out := make([]toc.Entry, 0, len(outlines))
	for _, o := range outlines {
		page := -1
		if o.Page >= 0 {
			page = o.Page + 1
		}
		out = append(out, toc.Entry{Level: o.Level, Title: o.Title, Page: page, URI: o.URI})
	}
	return out, nil
}

func (d *fitzDocument) Close() error {
	d.raster.Purge()
	return d.doc.Close()
}
