package worker

import (
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func vis(pages ...int) []VisiblePage {
	out := make([]VisiblePage, len(pages))
	for i, p := range pages {
		out[i] = VisiblePage{Page: p, Rect: image.Rect(0, 0, 10000, 10000)}
	}
	return out
}

func popAll(q *jobQueue) []job {
	var out []job
	for {
		j, ok := q.pop()
		if !ok {
			return out
		}
		out = append(out, j)
	}
}

func TestSquashReplacesOtherDPI(t *testing.T) {
	q := newJobQueue()
	a := image.Rect(0, 0, 100, 100)
	b := image.Rect(100, 0, 200, 100)

	q.save(job{page: 0, dpi: 96, roi: a}, vis(0))
	q.save(job{page: 0, dpi: 96, roi: b}, vis(0))
	st := q.save(job{page: 0, dpi: 144, roi: a}, vis(0))
	assert.Equal(t, 2, st.squashed)
	assert.Equal(t, 1, q.len())

	got := popAll(q)
	require.Len(t, got, 1)
	assert.Equal(t, 144.0, got[0].dpi)
}

func TestDuplicateNotQueued(t *testing.T) {
	q := newJobQueue()
	a := image.Rect(0, 0, 100, 100)
	q.save(job{page: 2, dpi: 96, roi: a}, vis(2))
	st := q.save(job{page: 2, dpi: 96, roi: a}, vis(2))
	assert.True(t, st.duplicate)
	assert.Equal(t, 1, q.len())
}

func TestPruneInvisible(t *testing.T) {
	q := newJobQueue()
	q.save(job{page: 0, dpi: 96, roi: image.Rect(0, 0, 100, 100)}, vis(0))
	q.save(job{page: 1, dpi: 96, roi: image.Rect(0, 0, 100, 100)}, vis(0, 1))
	q.save(job{page: 1, dpi: 96, roi: image.Rect(0, 500, 100, 600)}, vis(0, 1))
	require.Equal(t, 3, q.len())

	// page 0 scrolled away, only the top of page 1 is visible
	st := q.save(job{page: 2, dpi: 96, roi: image.Rect(0, 0, 50, 50)}, []VisiblePage{
		{Page: 1, Rect: image.Rect(0, 0, 800, 200)},
		{Page: 2, Rect: image.Rect(0, 0, 800, 800)},
	})
	assert.Equal(t, 2, st.pruned)

	got := popAll(q)
	require.Len(t, got, 2)
	assert.Equal(t, job{page: 1, dpi: 96, roi: image.Rect(0, 0, 100, 100)}, got[0])
	assert.Equal(t, 2, got[1].page)
}

func TestPopServesPagesInFirstSeenOrder(t *testing.T) {
	q := newJobQueue()
	all := vis(0, 1, 2)
	q.save(job{page: 1, dpi: 96, roi: image.Rect(0, 0, 1, 1)}, all)
	q.save(job{page: 0, dpi: 96, roi: image.Rect(0, 0, 1, 1)}, all)
	q.save(job{page: 1, dpi: 96, roi: image.Rect(1, 0, 2, 1)}, all)

	got := popAll(q)
	require.Len(t, got, 3)
	assert.Equal(t, []int{1, 1, 0}, []int{got[0].page, got[1].page, got[2].page})
	assert.Equal(t, 0, q.len())
	assert.Empty(t, q.order)
}

func TestResetClears(t *testing.T) {
	q := newJobQueue()
	q.save(job{page: 0, dpi: 96, roi: image.Rect(0, 0, 1, 1)}, vis(0))
	q.reset()
	_, ok := q.pop()
	assert.False(t, ok)
}
