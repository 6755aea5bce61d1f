// Package session is the control context of the viewer: one goroutine owns
// every view, ticks them, and runs the calls submitted through Do.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/local/tileview/internal/docsource"
	"github.com/local/tileview/internal/statestore"
	"github.com/local/tileview/internal/view"
)

// View names.
const (
	Main   = "main"
	Split  = "split"
	Thumbs = "thumbs"
)

// DefaultTick is the control loop period.
const DefaultTick = 20 * time.Millisecond

var (
	// ErrClosed is returned by calls on a closed session.
	ErrClosed = errors.New("session closed")
	// ErrUnknownView is returned for a view name the session does not have.
	ErrUnknownView = errors.New("unknown view")
	// ErrNoDocument is returned when no document is open.
	ErrNoDocument = errors.New("no document open")
	// ErrNoStore is returned by SaveState without a state store.
	ErrNoStore = errors.New("state store disabled")
)

// Resolver turns a document reference into a local PDF.
type Resolver interface {
	Resolve(ctx context.Context, ref string) (*docsource.Resolved, error)
}

// Options configures a Session.
type Options struct {
	// Views maps view names to their options; nil creates Main, Split and
	// Thumbs from Base.
	Views     map[string]view.Options
	Base      view.Options
	ScreenDPI float64
	Tick      time.Duration
	Resolver  Resolver
	// Store persists view state; nil disables persistence.
	Store statestore.Store
}

// Session owns the views of one open document.
type Session struct {
	views     map[string]*view.Controller
	order     []string
	screenDPI float64
	tick      time.Duration
	resolver  Resolver
	store     statestore.Store

	calls chan func()
	stop  chan struct{}
	done  chan struct{}
	once  sync.Once

	// owned by the control goroutine
	ref string
	doc *docsource.Resolved
}

// New creates the views and starts the control loop.
func New(opts Options) *Session {
	if opts.Tick <= 0 {
		opts.Tick = DefaultTick
	}
	if opts.ScreenDPI <= 0 {
		opts.ScreenDPI = 96
	}
	if opts.Views == nil {
		opts.Views = map[string]view.Options{Main: opts.Base, Split: opts.Base, Thumbs: opts.Base}
	}
	s := &Session{
		views:     map[string]*view.Controller{},
		screenDPI: opts.ScreenDPI,
		tick:      opts.Tick,
		resolver:  opts.Resolver,
		store:     opts.Store,
		calls:     make(chan func()),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
	for _, name := range []string{Main, Split, Thumbs} {
		if o, ok := opts.Views[name]; ok {
			s.addView(name, o)
		}
	}
	for name, o := range opts.Views {
		if _, ok := s.views[name]; !ok {
			s.addView(name, o)
		}
	}
	if m, ok := s.views[Main]; ok {
		if th, ok := s.views[Thumbs]; ok {
			view.Link(m, th)
		}
	}
	go s.loop()
	log.Info().Strs("views", s.order).Dur("tick", s.tick).Msg("session started")
	return s
}

func (s *Session) addView(name string, o view.Options) {
	o.Name = name
	s.views[name] = view.New(o)
	s.order = append(s.order, name)
}

func (s *Session) loop() {
	defer close(s.done)
	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case fn := <-s.calls:
			fn()
		case now := <-ticker.C:
			for _, name := range s.order {
				s.views[name].Tick(now)
			}
		}
	}
}

// Do runs fn on the control goroutine and returns its error. Controllers
// may only be touched from inside fn.
func (s *Session) Do(ctx context.Context, fn func() error) error {
	errc := make(chan error, 1)
	call := func() { errc <- fn() }
	select {
	case s.calls <- call:
	case <-s.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// View returns the named view. Call it only from inside Do.
func (s *Session) View(name string) (*view.Controller, error) {
	v, ok := s.views[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownView, name)
	}
	return v, nil
}

// Views returns the view names in creation order.
func (s *Session) Views() []string { return append([]string(nil), s.order...) }

// Ref returns the reference of the open document. Call it only from inside
// Do.
func (s *Session) Ref() string { return s.ref }

// Open resolves ref and shows it in every view, restoring saved states.
func (s *Session) Open(ctx context.Context, ref string) error {
	if s.resolver == nil {
		return fmt.Errorf("open %s: no resolver", ref)
	}
	res, err := s.resolver.Resolve(ctx, ref)
	if err != nil {
		return err
	}
	states := s.loadStates(ctx, ref)

	var old *docsource.Resolved
	err = s.Do(ctx, func() error {
		old = s.doc
		s.ref, s.doc = ref, res
		for _, name := range s.order {
			var st *view.State
			if v, ok := states[name]; ok {
				st = &v
			}
			s.views[name].SetDocument(res.Path, s.screenDPI, st)
		}
		return nil
	})
	if err != nil {
		res.Cleanup()
		return err
	}
	if old != nil {
		old.Cleanup()
	}
	log.Info().Str("ref", ref).Str("path", res.Path).Int("restored_views", len(states)).Msg("document opened")
	return nil
}

func (s *Session) loadStates(ctx context.Context, ref string) map[string]view.State {
	out := map[string]view.State{}
	if s.store == nil {
		return out
	}
	for _, name := range s.order {
		st, err := s.store.Load(ctx, ref, name)
		switch {
		case err == nil:
			out[name] = st
		case errors.Is(err, statestore.ErrNotFound):
		default:
			log.Warn().Err(err).Str("ref", ref).Str("view", name).Msg("failed to load view state")
		}
	}
	return out
}

// SaveState persists the state of the named view and returns it.
func (s *Session) SaveState(ctx context.Context, name string) (view.State, error) {
	if s.store == nil {
		return view.State{}, ErrNoStore
	}
	var (
		ref string
		st  view.State
	)
	err := s.Do(ctx, func() error {
		v, err := s.View(name)
		if err != nil {
			return err
		}
		var ok bool
		if st, ok = v.State(); !ok || s.ref == "" {
			return ErrNoDocument
		}
		ref = s.ref
		return nil
	})
	if err != nil {
		return view.State{}, err
	}
	if err := s.store.Save(ctx, ref, name, st); err != nil {
		return view.State{}, err
	}
	log.Debug().Str("ref", ref).Str("view", name).Int("page", st.Location.Page).Msg("view state saved")
	return st, nil
}

// Close stops the control loop and the render workers and removes
// temporary document files.
func (s *Session) Close() {
	s.once.Do(func() {
		close(s.stop)
		<-s.done
		for _, name := range s.order {
			s.views[name].Close()
		}
		if s.doc != nil {
			s.doc.Cleanup()
		}
		log.Info().Msg("session closed")
	})
}
