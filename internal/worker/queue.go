package worker

import "image"

type job struct {
	page int
	dpi  float64
	roi  image.Rectangle
}

// jobQueue keeps pending render jobs per page. Removed entries are nil
// tombstones so slot order is stable; pages are served in first-seen order.
type jobQueue struct {
	order []int
	slots map[int][]*job
}

// dropStats counts what a save discarded.
type dropStats struct {
	squashed  int
	pruned    int
	duplicate bool
}

func newJobQueue() *jobQueue { return &jobQueue{slots: map[int][]*job{}} }

func (q *jobQueue) reset() {
	q.order = nil
	q.slots = map[int][]*job{}
}

// save enqueues j, applying the squash rule (a new DPI for a page supersedes
// every queued entry of that page at another DPI, an identical entry is not
// queued twice) and then the prune rule against the visible snapshot.
func (q *jobQueue) save(j job, visible []VisiblePage) dropStats {
	var st dropStats
	entries, ok := q.slots[j.page]
	if !ok {
		q.order = append(q.order, j.page)
		q.slots[j.page] = []*job{&j}
	} else {
		for i, e := range entries {
			if e == nil {
				continue
			}
			if e.dpi != j.dpi {
				entries[i] = nil
				st.squashed++
			} else if e.roi == j.roi {
				st.duplicate = true
			}
		}
		if !st.duplicate {
			entries = append(entries, &j)
		}
		q.slots[j.page] = entries
	}
	st.pruned = q.prune(visible)
	return st
}

// prune drops pages absent from the snapshot and tombstones entries whose
// ROI no longer intersects the page's visible rectangle.
func (q *jobQueue) prune(visible []VisiblePage) int {
	vis := make(map[int]image.Rectangle, len(visible))
	for _, v := range visible {
		vis[v.Page] = v.Rect
	}
	pruned := 0
	keep := q.order[:0]
	for _, page := range q.order {
		entries := q.slots[page]
		rect, ok := vis[page]
		if !ok {
			pruned += live(entries)
			delete(q.slots, page)
			continue
		}
		for i, e := range entries {
			if e != nil && e.roi.Intersect(rect).Empty() {
				entries[i] = nil
				pruned++
			}
		}
		keep = append(keep, page)
	}
	q.order = keep
	return pruned
}

// pop returns the first live entry of the first page that has one. Pages
// found without live entries are removed on the way.
func (q *jobQueue) pop() (job, bool) {
	for len(q.order) > 0 {
		page := q.order[0]
		entries := q.slots[page]
		for len(entries) > 0 {
			e := entries[0]
			entries = entries[1:]
			if e != nil {
				q.slots[page] = entries
				return *e, true
			}
		}
		q.remove(page)
	}
	return job{}, false
}

func (q *jobQueue) remove(page int) {
	delete(q.slots, page)
	for i, p := range q.order {
		if p == page {
			q.order = append(q.order[:i], q.order[i+1:]...)
			return
		}
	}
}

// len counts live entries.
func (q *jobQueue) len() int {
	n := 0
	for _, entries := range q.slots {
		n += live(entries)
	}
	return n
}

func live(entries []*job) int {
	n := 0
	for _, e := range entries {
		if e != nil {
			n++
		}
	}
	return n
}
