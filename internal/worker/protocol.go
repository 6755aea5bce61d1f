package worker

import (
	"image"

	"github.com/local/tileview/internal/toc"
)

// CommandKind enumerates the commands a worker understands.
type CommandKind int

const (
	CmdSet CommandKind = iota
	CmdPageSizes
	CmdTOC
	CmdRender
	CmdStop
)

func (k CommandKind) String() string {
	switch k {
	case CmdSet:
		return "SET"
	case CmdPageSizes:
		return "PAGESIZES"
	case CmdTOC:
		return "TOC"
	case CmdRender:
		return "RENDER"
	case CmdStop:
		return "STOP"
	}
	return "UNKNOWN"
}

// VisiblePage is the visible part of one page in page pixels at the
// requested DPI.
type VisiblePage struct {
	Page int
	Rect image.Rectangle
}

// RenderCommand asks for the pixel rectangle ROI of a page at DPI. Visible is
// the snapshot of every visible page at the time of the request; the worker
// uses it to drop queued work that scrolled out of view.
type RenderCommand struct {
	Page    int
	DPI     float64
	ROI     image.Rectangle
	Visible []VisiblePage
}

// Command is one message to a worker.
type Command struct {
	Kind     CommandKind
	Filename string
	Render   RenderCommand
}

func Set(filename string) Command { return Command{Kind: CmdSet, Filename: filename} }
func PageSizes() Command          { return Command{Kind: CmdPageSizes} }
func TOC() Command                { return Command{Kind: CmdTOC} }
func Stop() Command               { return Command{Kind: CmdStop} }

func Render(page int, dpi float64, roi image.Rectangle, visible []VisiblePage) Command {
	return Command{Kind: CmdRender, Render: RenderCommand{Page: page, DPI: dpi, ROI: roi, Visible: visible}}
}

// ResultKind enumerates worker results.
type ResultKind int

const (
	PageSizesResult ResultKind = iota
	TOCResult
	RenderResult
)

func (k ResultKind) String() string {
	switch k {
	case PageSizesResult:
		return "PAGESIZES_RES"
	case TOCResult:
		return "TOC_RES"
	case RenderResult:
		return "RENDER_RES"
	}
	return "UNKNOWN"
}

// Result is one message from a worker. Filename is the document the worker
// had open when it produced the result. For RenderResult, ROI is the
// requested rectangle clamped to the page and Image its encoded pixels.
type Result struct {
	Kind     ResultKind
	Filename string
	Sizes    [][2]float64
	TOC      []toc.Entry
	Page     int
	DPI      float64
	ROI      image.Rectangle
	Image    []byte
}
