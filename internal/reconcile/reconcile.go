// Package reconcile validates worker results against the current view state.
// Results race with document switches, zoom changes and layout changes; any
// result that no longer matches is dropped without surfacing an error.
package reconcile

import (
	"image"

	"github.com/rs/zerolog/log"

	"github.com/local/tileview/internal/imagerender"
	"github.com/local/tileview/internal/metrics"
	"github.com/local/tileview/internal/scheduler"
	"github.com/local/tileview/internal/toc"
	"github.com/local/tileview/internal/worker"
)

// Outcome is the verdict on one result.
type Outcome int

const (
	Accepted Outcome = iota
	StaleDocument
	OutOfRange
	StaleDPI
	Duplicate
	Uninitialized
	DecodeError
)

func (o Outcome) String() string {
	switch o {
	case Accepted:
		return "accepted"
	case StaleDocument:
		return "stale_document"
	case OutOfRange:
		return "out_of_range"
	case StaleDPI:
		return "stale_dpi"
	case Duplicate:
		return "duplicate"
	case Uninitialized:
		return "uninitialized"
	case DecodeError:
		return "decode_error"
	}
	return "unknown"
}

// Target is the view state results are checked against and applied to.
type Target interface {
	ActiveFilename() string
	PageCount() int
	CurrentDPI(page int) float64
	// Initialized reports whether the page has its scene geometry.
	Initialized(page int) bool
	// AddTile stores a decoded tile whose top-left corner is roi.Min.
	AddTile(page int, img image.Image, roi image.Rectangle)
	OnPageSizes(filename string, sizes [][2]float64)
	OnTOC(filename string, entries []toc.Entry)
}

// Source is where results come from.
type Source interface {
	Size() int
	Drain(i int) []worker.Result
}

// Reconciler applies worker results to a Target.
type Reconciler struct {
	view    string
	target  Target
	history *scheduler.History
}

func New(view string, target Target, history *scheduler.History) *Reconciler {
	return &Reconciler{view: view, target: target, history: history}
}

// Handle checks res and applies it when still valid. Visibility is not
// re-checked: workers already prune jobs that left the visible snapshot.
func (r *Reconciler) Handle(res worker.Result) Outcome {
	if res.Filename != r.target.ActiveFilename() {
		return r.reject(res, StaleDocument)
	}
	switch res.Kind {
	case worker.PageSizesResult:
		r.target.OnPageSizes(res.Filename, res.Sizes)
		return Accepted
	case worker.TOCResult:
		r.target.OnTOC(res.Filename, res.TOC)
		return Accepted
	}

	if res.Page < 0 || res.Page >= r.target.PageCount() {
		return r.reject(res, OutOfRange)
	}
	if res.DPI != r.target.CurrentDPI(res.Page) {
		return r.reject(res, StaleDPI)
	}
	if r.history.Contains(res.Page, res.DPI, res.ROI) {
		return r.reject(res, Duplicate)
	}
	if !r.target.Initialized(res.Page) {
		return r.reject(res, Uninitialized)
	}
	img, err := imagerender.Decode(res.Image)
	if err != nil {
		log.Debug().Err(err).Str("view", r.view).Int("page", res.Page).Msg("tile decode failed")
		return r.reject(res, DecodeError)
	}

	r.target.AddTile(res.Page, img, res.ROI)
	r.history.Record(res.Page, res.DPI, res.ROI)
	metrics.IncResult(r.view, Accepted.String())
	return Accepted
}

func (r *Reconciler) reject(res worker.Result, o Outcome) Outcome {
	metrics.IncResult(r.view, o.String())
	log.Debug().
		Str("view", r.view).
		Stringer("kind", res.Kind).
		Str("file", res.Filename).
		Int("page", res.Page).
		Float64("dpi", res.DPI).
		Stringer("reason", o).
		Msg("result discarded")
	return o
}

// DrainAll handles every pending result of every worker without blocking
// and returns how many render results were accepted.
func (r *Reconciler) DrainAll(src Source) int {
	accepted := 0
	for i := 0; i < src.Size(); i++ {
		for _, res := range src.Drain(i) {
			if r.Handle(res) == Accepted && res.Kind == worker.RenderResult {
				accepted++
			}
		}
	}
	return accepted
}
