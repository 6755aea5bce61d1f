package scheduler

import (
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/local/tileview/internal/geom"
	"github.com/local/tileview/internal/tile"
	"github.com/local/tileview/internal/worker"
)

type sent struct {
	worker int
	cmd    worker.Command
}

type recorder struct {
	n    int
	sent []sent
}

func (r *recorder) Send(i int, cmd worker.Command) { r.sent = append(r.sent, sent{i, cmd}) }
func (r *recorder) Size() int                      { return r.n }

type pages struct {
	dpi      float64
	sizes    []image.Point
	prepared map[int]int
}

func (p *pages) Prepare(page int) (float64, tile.Grid, bool) {
	if p.prepared == nil {
		p.prepared = map[int]int{}
	}
	p.prepared[page]++
	sz := p.sizes[page]
	return p.dpi, tile.NewGrid(sz.X, sz.Y, 800), true
}

func TestVisibleRegions(t *testing.T) {
	scene := []geom.Rect{
		geom.R(3, 5, 800, 1000),
		geom.R(3, 1010, 800, 1000),
		geom.R(3, 2015, 800, 1000),
	}
	got := VisibleRegions(geom.R(0, 900, 800, 600), scene)
	require.Len(t, got, 2)
	assert.Equal(t, 0, got[0].Page, "first region is the current page")
	assert.Equal(t, image.Rect(0, 895, 797, 1000), got[0].Local)
	assert.Equal(t, 1, got[1].Page)
	assert.Equal(t, image.Rect(0, 0, 797, 490), got[1].Local)

	assert.Empty(t, VisibleRegions(geom.R(0, 0, 0, 0), scene))
	assert.Empty(t, VisibleRegions(geom.R(0, 5000, 800, 600), scene))
}

func TestAssignSpread(t *testing.T) {
	// two visible pages with a 2x2 grid each over four workers
	used := map[int]bool{}
	for page := 0; page < 2; page++ {
		for idx := 0; idx < 4; idx++ {
			used[Assign(page, idx, 4)] = true
		}
	}
	assert.GreaterOrEqual(t, len(used), 3)
	assert.Equal(t, 0, Assign(5, 3, 0))
}

func TestScheduleSkipsInFlightAndRendered(t *testing.T) {
	rec := &recorder{n: 4}
	geo := &pages{dpi: 96, sizes: []image.Point{{1600, 1600}, {1600, 1600}}}
	s := New("test", rec, nil)
	regions := []Region{
		{Page: 0, Local: image.Rect(0, 0, 1600, 1600)},
		{Page: 1, Local: image.Rect(0, 0, 1600, 400)},
	}

	require.Equal(t, 6, s.Schedule(regions, geo))
	workers := map[int]bool{}
	for _, m := range rec.sent {
		workers[m.worker] = true
		assert.Equal(t, worker.CmdRender, m.cmd.Kind)
		assert.Len(t, m.cmd.Render.Visible, 2)
	}
	assert.GreaterOrEqual(t, len(workers), 3)

	// same visible set, no results yet: nothing new
	assert.Equal(t, 0, s.Schedule(regions, geo))

	// a rendered patch is not requested again after the set changes
	s.History().Record(0, 96, image.Rect(0, 0, 800, 800))
	regions[1].Local = image.Rect(0, 0, 1600, 300)
	assert.Equal(t, 5, s.Schedule(regions, geo))

	// a DPI change makes every patch missing again
	s.Reset()
	geo.dpi = 144
	assert.Equal(t, 6, s.Schedule(regions, geo))
}

func TestScheduleNoRegions(t *testing.T) {
	rec := &recorder{n: 2}
	s := New("test", rec, nil)
	assert.Equal(t, 0, s.Schedule(nil, &pages{}))
	assert.Empty(t, rec.sent)
}

func TestHistory(t *testing.T) {
	h := NewHistory()
	r := image.Rect(0, 0, 10, 10)
	h.Record(3, 96, r)
	assert.True(t, h.Contains(3, 96, r))
	assert.False(t, h.Contains(3, 144, r))
	h.Record(3, 144, image.Rect(10, 0, 20, 10))
	assert.False(t, h.Contains(3, 96, r), "new dpi forgets old entries")
	assert.Equal(t, 1, h.Len(3))
	h.Reset()
	assert.Equal(t, 0, h.Len(3))
}
