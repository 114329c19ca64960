// Package capture keeps one live screen-capture session per window the UI
// asked for, and reconciles that set against the windows the compositor
// reports.
package capture

import (
	"github.com/bryanchriswhite/WinPeek/internal/logger"
	"github.com/bryanchriswhite/WinPeek/internal/window"
)

// Capture targets one window and holds at most one session for it
type Capture struct {
	window  window.Handle
	session *Session
}

func newCapture(h window.Handle) *Capture {
	return &Capture{window: h}
}

// Window returns the window this capture targets
func (c *Capture) Window() window.Handle { return c.window }

// Active reports whether the capture holds a session, failed or not
func (c *Capture) Active() bool { return c.session != nil }

// Session returns the current session, or nil when stopped
func (c *Capture) Session() *Session { return c.session }

// State returns the session state. ok is false when stopped.
func (c *Capture) State() (state State, ok bool) {
	if c.session == nil {
		return 0, false
	}
	return c.session.state, true
}

// start opens a session unless a healthy one is already running. A failed
// session is replaced; this is the explicit restart after a failure.
// Returns true when a new session was opened.
func (c *Capture) start(env *sessionEnv, generation uint64) bool {
	if c.session != nil {
		if c.session.state != StateFailed {
			return false
		}
		logger.WithComponent("capture").Debug().
			Str("window", c.window.String()).
			Msg("Replacing failed capture session")
		c.session.close()
		c.session = nil
	}

	c.session = openSession(SessionRef{Window: c.window, Generation: generation}, env)
	return true
}

// stop destroys the session. Returns true when there was one.
func (c *Capture) stop() bool {
	if c.session == nil {
		return false
	}
	c.session.close()
	c.session = nil
	return true
}
