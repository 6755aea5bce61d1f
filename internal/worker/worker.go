// Package worker runs render workers: goroutine actors that own a document
// handle, accept commands through an unbounded mailbox and post results to
// another. The control goroutine never waits on a worker.
package worker

import (
	"image"
	"math"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/local/tileview/internal/imagerender"
	"github.com/local/tileview/internal/metrics"
	"github.com/local/tileview/internal/pdfdoc"
	"github.com/local/tileview/internal/toc"
)

// DefaultTick is the polling period of a worker.
const DefaultTick = 20 * time.Millisecond

// Options configures a worker.
type Options struct {
	Tick   time.Duration
	Encode imagerender.Options
	// Pool names the owning pool in logs and metrics.
	Pool string
}

// Worker is one render actor.
type Worker struct {
	id     int
	opts   Options
	opener pdfdoc.Opener

	commands mailbox[Command]
	results  mailbox[Result]

	// owned by the worker goroutine
	queue    *jobQueue
	doc      pdfdoc.Document
	filename string
	exit     bool

	done chan struct{}
}

// New returns a worker that is not running yet.
func New(id int, opener pdfdoc.Opener, opts Options) *Worker {
	if opts.Tick <= 0 {
		opts.Tick = DefaultTick
	}
	return &Worker{id: id, opts: opts, opener: opener, queue: newJobQueue(), done: make(chan struct{})}
}

// Start runs the worker loop in a new goroutine.
func (w *Worker) Start() { go w.run() }

// Send posts a command. It never blocks.
func (w *Worker) Send(cmd Command) { w.commands.Put(cmd) }

// Drain returns all results posted so far without blocking.
func (w *Worker) Drain() []Result { return w.results.Drain() }

// Done is closed when the worker loop has exited.
func (w *Worker) Done() <-chan struct{} { return w.done }

func (w *Worker) run() {
	defer close(w.done)
	log.Info().Str("pool", w.opts.Pool).Int("worker", w.id).Msg("render worker started")

	ticker := time.NewTicker(w.opts.Tick)
	defer ticker.Stop()
	for !w.exit {
		<-ticker.C
		w.receiveCommands()
		if w.exit || w.doc == nil {
			continue
		}
		j, ok := w.queue.pop()
		if !ok {
			continue
		}
		metrics.SetQueueDepth(w.opts.Pool, w.id, w.queue.len())
		w.render(j)
	}

	w.closeDocument()
	log.Info().Str("pool", w.opts.Pool).Int("worker", w.id).Msg("render worker stopped")
}

// receiveCommands drains the command mailbox. RENDER only queues work; the
// rest are answered right away.
func (w *Worker) receiveCommands() {
	for _, cmd := range w.commands.Drain() {
		switch cmd.Kind {
		case CmdSet:
			w.setDocument(cmd.Filename)
		case CmdPageSizes:
			sizes := [][2]float64{}
			if w.doc != nil {
				s, err := pdfdoc.PageSizes(w.doc)
				if err != nil {
					log.Warn().Err(err).Str("file", w.filename).Msg("failed to read page sizes")
				} else {
					sizes = s
				}
			}
			w.results.Put(Result{Kind: PageSizesResult, Filename: w.filename, Sizes: sizes})
		case CmdTOC:
			entries := []toc.Entry{}
			if w.doc != nil {
				e, err := w.doc.TableOfContents()
				if err != nil {
					log.Warn().Err(err).Str("file", w.filename).Msg("failed to read table of contents")
				} else if e != nil {
					entries = e
				}
			}
			w.results.Put(Result{Kind: TOCResult, Filename: w.filename, TOC: entries})
		case CmdRender:
			r := cmd.Render
			st := w.queue.save(job{page: r.Page, dpi: r.DPI, roi: r.ROI}, r.Visible)
			metrics.IncJobsDropped("squashed", st.squashed)
			metrics.IncJobsDropped("pruned", st.pruned)
			if st.duplicate {
				metrics.IncJobsDropped("duplicate", 1)
			}
		case CmdStop:
			w.exit = true
		default:
			log.Warn().Int("worker", w.id).Stringer("command", cmd.Kind).Msg("unsupported command")
		}
	}
	metrics.SetQueueDepth(w.opts.Pool, w.id, w.queue.len())
}

func (w *Worker) setDocument(filename string) {
	w.closeDocument()
	w.filename = filename
	w.queue.reset()

	doc, err := w.opener.Open(filename)
	if err != nil {
		log.Warn().Err(err).Str("pool", w.opts.Pool).Int("worker", w.id).Str("file", filename).Msg("failed to open document")
		return
	}
	w.doc = doc
	log.Debug().Str("pool", w.opts.Pool).Int("worker", w.id).Str("file", filename).Int("pages", doc.PageCount()).Msg("document set")
}

func (w *Worker) closeDocument() {
	if w.doc == nil {
		return
	}
	if err := w.doc.Close(); err != nil {
		log.Debug().Err(err).Str("file", w.filename).Msg("close document")
	}
	w.doc = nil
}

// ClampROI clips roi to the page extent of a wInch x hInch page at dpi.
func ClampROI(roi image.Rectangle, wInch, hInch, dpi float64) image.Rectangle {
	page := image.Rect(0, 0, int(math.Ceil(wInch*dpi)), int(math.Ceil(hInch*dpi)))
	return roi.Intersect(page)
}

func (w *Worker) render(j job) {
	wInch, hInch, err := w.doc.PageSizeInches(j.page)
	if err != nil {
		log.Debug().Err(err).Int("page", j.page).Msg("render skipped")
		return
	}
	roi := ClampROI(j.roi, wInch, hInch, j.dpi)
	if roi.Empty() {
		return
	}

	start := time.Now()
	img, err := w.doc.Rasterize(j.page, j.dpi, roi)
	if err != nil {
		log.Warn().Err(err).Int("page", j.page).Float64("dpi", j.dpi).Msg("rasterize failed")
		return
	}
	data, err := imagerender.Encode(img, w.opts.Encode)
	if err != nil {
		log.Warn().Err(err).Int("page", j.page).Msg("encode failed")
		return
	}
	metrics.ObserveRender(time.Since(start))

	w.results.Put(Result{
		Kind:     RenderResult,
		Filename: w.filename,
		Page:     j.page,
		DPI:      j.dpi,
		ROI:      roi,
		Image:    data,
	})
}
