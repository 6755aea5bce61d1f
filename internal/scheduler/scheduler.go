// Package scheduler turns the visible part of the scene into render requests:
// one per grid patch that is neither rendered nor already requested, spread
// over the workers of a pool.
package scheduler

import (
	"image"
	"slices"

	"github.com/rs/zerolog/log"

	"github.com/local/tileview/internal/geom"
	"github.com/local/tileview/internal/metrics"
	"github.com/local/tileview/internal/tile"
	"github.com/local/tileview/internal/worker"
)

// Region is the visible part of one page.
type Region struct {
	Page int
	// Scene is the visible rectangle in scene coordinates.
	Scene geom.Rect
	// Local is the same rectangle in page pixels.
	Local image.Rectangle
}

// VisibleRegions intersects the viewport with every page rectangle. The
// result is ordered by page index; the first region is the current page.
func VisibleRegions(viewport geom.Rect, scene []geom.Rect) []Region {
	if viewport.Empty() {
		return nil
	}
	var out []Region
	for page, r := range scene {
		ov := r.Intersect(viewport)
		if ov.Empty() {
			continue
		}
		local := ov.Translate(-r.X, -r.Y).Pixels().
			Intersect(image.Rect(0, 0, int(r.W+0.5), int(r.H+0.5)))
		if local.Empty() {
			continue
		}
		out = append(out, Region{Page: page, Scene: ov, Local: local})
	}
	return out
}

// Dispatcher delivers render commands to workers.
type Dispatcher interface {
	Send(i int, cmd worker.Command)
	Size() int
}

// Geometry gives the scheduler the render parameters of a page. Prepare is
// called before the page's patches are computed and lazily initialises the
// page geometry; ok is false when the page cannot be rendered.
type Geometry interface {
	Prepare(page int) (dpi float64, grid tile.Grid, ok bool)
}

// Assign returns the worker for patch patchIdx of page among n workers.
// Neighbouring patches of a page land on different workers.
func Assign(page, patchIdx, n int) int {
	if n <= 0 {
		return 0
	}
	return (page%n + patchIdx) % n
}

type request struct {
	page int
	dpi  float64
	roi  image.Rectangle
}

// Scheduler issues render requests for one view. It is not safe for
// concurrent use.
type Scheduler struct {
	view     string
	dispatch Dispatcher
	history  *History

	// requests issued for the current visible set
	inflight map[request]struct{}
	visible  []worker.VisiblePage
}

func New(view string, d Dispatcher, h *History) *Scheduler {
	if h == nil {
		h = NewHistory()
	}
	return &Scheduler{view: view, dispatch: d, history: h, inflight: map[request]struct{}{}}
}

// History returns the render history shared with the reconciler.
func (s *Scheduler) History() *History { return s.history }

// Reset forgets the render history and outstanding requests. It is called
// whenever the layout is recomputed.
func (s *Scheduler) Reset() {
	s.history.Reset()
	s.inflight = map[request]struct{}{}
	s.visible = nil
}

// Schedule requests every missing patch of the visible regions and returns
// the number of requests sent.
func (s *Scheduler) Schedule(regions []Region, geo Geometry) int {
	if len(regions) == 0 || s.dispatch == nil || s.dispatch.Size() == 0 {
		return 0
	}
	snapshot := make([]worker.VisiblePage, len(regions))
	for i, r := range regions {
		snapshot[i] = worker.VisiblePage{Page: r.Page, Rect: r.Local}
	}
	if !slices.Equal(snapshot, s.visible) {
		// workers prune against the new snapshot, so earlier requests may be gone
		s.inflight = map[request]struct{}{}
		s.visible = snapshot
	}

	n := s.dispatch.Size()
	sent := 0
	for _, r := range regions {
		dpi, grid, ok := geo.Prepare(r.Page)
		if !ok {
			continue
		}
		for _, p := range grid.PatchesIn(r.Local) {
			if s.history.Contains(r.Page, dpi, p.Rect) {
				metrics.IncSkipped(s.view, "rendered")
				continue
			}
			req := request{page: r.Page, dpi: dpi, roi: p.Rect}
			if _, ok := s.inflight[req]; ok {
				metrics.IncSkipped(s.view, "inflight")
				continue
			}
			s.inflight[req] = struct{}{}
			s.dispatch.Send(Assign(r.Page, p.Key.Index(), n), worker.Render(r.Page, dpi, p.Rect, snapshot))
			sent++
		}
	}
	if sent > 0 {
		metrics.IncRequests(s.view, sent)
		log.Debug().Str("view", s.view).Int("requests", sent).Int("regions", len(regions)).Msg("render requests issued")
	}
	return sent
}
