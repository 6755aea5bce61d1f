package worker

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/local/tileview/internal/pdfdoc"
)

// Pool owns the render workers of one view.
type Pool struct {
	name    string
	workers []*Worker
	once    sync.Once
}

// NewPool starts n workers sharing opener.
func NewPool(name string, n int, opener pdfdoc.Opener, opts Options) *Pool {
	if n <= 0 {
		n = 1
	}
	opts.Pool = name
	p := &Pool{name: name, workers: make([]*Worker, n)}
	for i := range p.workers {
		p.workers[i] = New(i, opener, opts)
		p.workers[i].Start()
	}
	log.Info().Str("pool", name).Int("workers", n).Msg("render pool started")
	return p
}

// Size returns the number of workers.
func (p *Pool) Size() int { return len(p.workers) }

// Send posts cmd to worker i.
func (p *Pool) Send(i int, cmd Command) { p.workers[i%len(p.workers)].Send(cmd) }

// Broadcast posts cmd to every worker.
func (p *Pool) Broadcast(cmd Command) {
	for _, w := range p.workers {
		w.Send(cmd)
	}
}

// Drain returns the pending results of worker i without blocking.
func (p *Pool) Drain(i int) []Result { return p.workers[i%len(p.workers)].Drain() }

// Close stops every worker and waits for them to exit.
func (p *Pool) Close() {
	p.once.Do(func() {
		p.Broadcast(Stop())
		for _, w := range p.workers {
			<-w.Done()
		}
		log.Info().Str("pool", p.name).Msg("render pool stopped")
	})
}
