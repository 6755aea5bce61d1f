// Package pdfdoc is the rasterization boundary: it opens documents and turns
// page regions into images. Each render worker owns its own Document.
package pdfdoc

import (
	"errors"
	"fmt"
	"image"

	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/zerolog/log"

	"github.com/local/tileview/internal/toc"
)

var (
	// ErrNotPDF is returned when a file is not a PDF document.
	ErrNotPDF = errors.New("not a pdf document")
	// ErrPageOutOfRange is returned for page indices outside the document.
	ErrPageOutOfRange = errors.New("page out of range")
)

// Document is an opened document. Pages are 0-based.
type Document interface {
	PageCount() int
	// PageSizeInches returns the page width and height in inches.
	PageSizeInches(page int) (float64, float64, error)
	// Rasterize renders the pixel rectangle rect of the page at dpi. rect is
	// in page pixels at that dpi and is clipped to the page.
	Rasterize(page int, dpi float64, rect image.Rectangle) (image.Image, error)
	TableOfContents() ([]toc.Entry, error)
	Close() error
}

// Opener opens documents by file name.
type Opener interface {
	Open(path string) (Document, error)
}

// CheckPDF sniffs the file content and returns ErrNotPDF for anything that
// is not a PDF.
func CheckPDF(path string) error {
	mtype, err := mimetype.DetectFile(path)
	if err != nil {
		return fmt.Errorf("failed to detect file type: %w", err)
	}
	if !mtype.Is("application/pdf") {
		log.Debug().Str("file", path).Str("mime", mtype.String()).Msg("rejecting non-pdf document")
		return fmt.Errorf("%s is %s: %w", path, mtype.String(), ErrNotPDF)
	}
	return nil
}

// PageSizes returns the size of every page in inches.
func PageSizes(doc Document) ([][2]float64, error) {
	n := doc.PageCount()
	out := make([][2]float64, 0, n)
	for i := 0; i < n; i++ {
		w, h, err := doc.PageSizeInches(i)
		if err != nil {
			return nil, fmt.Errorf("page %d size: %w", i, err)
		}
		out = append(out, [2]float64{w, h})
	}
	return out, nil
}

func checkPage(page, count int) error {
	if page < 0 || page >= count {
		return fmt.Errorf("page %d of %d: %w", page, count, ErrPageOutOfRange)
	}
	return nil
}
