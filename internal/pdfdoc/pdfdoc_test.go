package pdfdoc

import (
	"errors"
	"image"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/local/tileview/internal/toc"
)

func TestMemoryDocument(t *testing.T) {
	o := NewMemoryOpener()
	o.Add("a.pdf", MemoryDoc{
		Sizes: [][2]float64{{8.5, 11}, {11, 8.5}},
		TOC:   []toc.Entry{{Level: 1, Title: "One", Page: 1}},
	})

	doc, err := o.Open("a.pdf")
	require.NoError(t, err)
	defer doc.Close()

	sizes, err := PageSizes(doc)
	require.NoError(t, err)
	assert.Equal(t, [][2]float64{{8.5, 11}, {11, 8.5}}, sizes)

	img, err := doc.Rasterize(1, 72, image.Rect(700, 500, 900, 700))
	require.NoError(t, err)
	// clipped to 792x612
	assert.Equal(t, image.Rect(0, 0, 92, 112), img.Bounds())
	assert.Equal(t, PageColor(1), img.(*image.RGBA).RGBAAt(3, 3))
	assert.Equal(t, int64(1), o.Renders())

	_, err = doc.Rasterize(2, 72, image.Rect(0, 0, 1, 1))
	assert.True(t, errors.Is(err, ErrPageOutOfRange))

	entries, err := doc.TableOfContents()
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestMemoryOpenerUnknown(t *testing.T) {
	_, err := NewMemoryOpener().Open("missing.pdf")
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestCheckPDF(t *testing.T) {
	dir := t.TempDir()
	txt := filepath.Join(dir, "notes.pdf")
	require.NoError(t, os.WriteFile(txt, []byte("just some text, not a pdf\n"), 0o644))
	assert.True(t, errors.Is(CheckPDF(txt), ErrNotPDF))

	pdf := filepath.Join(dir, "min.pdf")
	require.NoError(t, os.WriteFile(pdf, []byte("%PDF-1.4\n%\xe2\xe3\xcf\xd3\n1 0 obj\n<<>>\nendobj\n"), 0o644))
	assert.NoError(t, CheckPDF(pdf))

	_, err := FitzOpener{}.Open(txt)
	assert.True(t, errors.Is(err, ErrNotPDF))
}
