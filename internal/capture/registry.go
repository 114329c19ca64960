package capture

import (
	"github.com/bryanchriswhite/WinPeek/internal/buffer"
	"github.com/bryanchriswhite/WinPeek/internal/logger"
	"github.com/bryanchriswhite/WinPeek/internal/window"
)

// Config wires a Registry to the compositor and the buffer pool
type Config struct {
	Backend Backend
	Pool    Pool
	Options Options

	// OnFrame receives every captured frame. Ownership moves to the callee,
	// which must eventually call Frame.Release.
	OnFrame func(window.Handle, *Frame)

	// Release is installed on frames to give buffers back. It may be
	// called from any goroutine; nil returns buffers to Pool directly,
	// which is only safe when frames are released on the registry's goroutine.
	Release func(*buffer.Buffer)
}

// Registry maps open windows to their captures.
//
// Registry is not safe for concurrent use. All methods must be called from
// the goroutine that owns the compositor connection.
type Registry struct {
	env        *sessionEnv
	captures   map[window.Handle]*Capture
	filter     Filter
	generation uint64
}

// NewRegistry creates an empty registry with an empty filter
func NewRegistry(cfg Config) *Registry {
	r := &Registry{captures: make(map[window.Handle]*Capture)}

	release := cfg.Release
	if release == nil {
		release = cfg.Pool.Release
	}
	onFrame := cfg.OnFrame
	r.env = &sessionEnv{
		backend: cfg.Backend,
		pool:    cfg.Pool,
		opts:    cfg.Options,
		release: release,
		onFrame: func(s *Session, f *Frame) {
			if onFrame == nil {
				f.Release()
				return
			}
			onFrame(s.ref.Window, f)
		},
	}
	return r
}

// WindowAdded starts tracking h, capturing it right away if the filter
// already names it. Adding a tracked window is a no-op.
func (r *Registry) WindowAdded(h window.Handle) {
	if _, ok := r.captures[h]; ok {
		return
	}
	c := newCapture(h)
	r.captures[h] = c
	if r.filter.Contains(h) {
		r.start(c)
	}
}

// WindowRemoved stops and forgets h. Unknown handles are ignored.
func (r *Registry) WindowRemoved(h window.Handle) {
	c, ok := r.captures[h]
	if !ok {
		return
	}
	c.stop()
	delete(r.captures, h)
}

// SetFilter replaces the filter and reconciles every tracked window before
// returning. Windows whose membership did not change keep their session,
// except that a failed session of a filtered window is replaced once.
// It returns the number of captures holding a session afterwards.
func (r *Registry) SetFilter(f Filter) int {
	r.filter = f

	var started, stopped int
	for h, c := range r.captures {
		if f.Contains(h) {
			if r.start(c) {
				started++
			}
		} else if c.stop() {
			stopped++
		}
	}

	active := r.Active()
	logger.WithComponent("capture").Debug().
		Int("filter", f.Len()).
		Int("started", started).
		Int("stopped", stopped).
		Int("active", active).
		Msg("Reconciled capture filter")
	return active
}

// Filter returns the current filter
func (r *Registry) Filter() Filter { return r.filter }

// HandleSessionEvent routes a protocol event to the session it names.
// Events for removed windows or replaced sessions are dropped.
func (r *Registry) HandleSessionEvent(ev SessionEvent) {
	c, ok := r.captures[ev.Ref.Window]
	if !ok || c.session == nil || c.session.ref != ev.Ref {
		logger.WithComponent("capture").Debug().
			Str("session", ev.Ref.String()).
			Str("event", ev.Kind.String()).
			Msg("Dropping event for stale capture session")
		return
	}
	c.session.handle(ev)
}

// Capture returns the capture tracking h
func (r *Registry) Capture(h window.Handle) (*Capture, bool) {
	c, ok := r.captures[h]
	return c, ok
}

// Len returns the number of tracked windows
func (r *Registry) Len() int { return len(r.captures) }

// Active returns the number of captures holding a session
func (r *Registry) Active() int {
	n := 0
	for _, c := range r.captures {
		if c.Active() {
			n++
		}
	}
	return n
}

// Close stops every capture and forgets every window
func (r *Registry) Close() {
	for h, c := range r.captures {
		c.stop()
		delete(r.captures, h)
	}
	r.filter = Filter{}
}

func (r *Registry) start(c *Capture) bool {
	r.generation++
	return c.start(r.env, r.generation)
}
