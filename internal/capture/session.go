package capture

import (
	"fmt"

	"github.com/bryanchriswhite/WinPeek/internal/buffer"
	"github.com/bryanchriswhite/WinPeek/internal/logger"
)

// State is the position of a session in its capture loop
type State uint8

const (
	// StateNegotiating waits for the compositor's buffer constraints
	StateNegotiating State = iota
	// StateBufferReady holds a buffer matching the negotiated format
	StateBufferReady
	// StateCapturing has a frame request outstanding
	StateCapturing
	// StateFrameReady has just handed a frame to the consumer
	StateFrameReady
	// StateFailed is terminal; a new session must be started to resume
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateNegotiating:
		return "negotiating"
	case StateBufferReady:
		return "buffer_ready"
	case StateCapturing:
		return "capturing"
	case StateFrameReady:
		return "frame_ready"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", uint8(s))
	}
}

type dmabufOffer struct {
	fourcc    uint32
	modifiers []uint64
}

// negotiation accumulates one batch of constraint events until done
type negotiation struct {
	width, height uint32
	shm           []uint32
	dmabuf        []dmabufOffer
	device        uint64
	hasDevice     bool
}

func (n *negotiation) record(ev SessionEvent) {
	switch ev.Kind {
	case EventBufferSize:
		n.width, n.height = ev.Width, ev.Height
	case EventShmFormat:
		n.shm = append(n.shm, ev.Format)
	case EventDmabufDevice:
		n.device, n.hasDevice = ev.Device, true
	case EventDmabufFormat:
		n.dmabuf = append(n.dmabuf, dmabufOffer{fourcc: ev.Format, modifiers: append([]uint64(nil), ev.Modifiers...)})
	}
}

// candidates lists offered formats in preference order
func (n *negotiation) candidates(preferDmabuf bool) []buffer.Format {
	var dma, shm []buffer.Format
	for _, o := range n.dmabuf {
		for _, m := range o.modifiers {
			if m == buffer.ModifierLinear {
				dma = append(dma, buffer.DmabufFormat(o.fourcc, m))
				break
			}
		}
	}
	for _, code := range n.shm {
		shm = append(shm, buffer.ShmFormat(code))
	}
	if preferDmabuf {
		return append(dma, shm...)
	}
	return append(shm, dma...)
}

// sessionEnv is what sessions share with their registry
type sessionEnv struct {
	backend Backend
	pool    Pool
	opts    Options
	onFrame func(*Session, *Frame)
	release func(*buffer.Buffer)
}

// Session drives one continuous capture of a window: negotiate a buffer,
// request a frame, hand the finished frame out, re-arm with a fresh buffer.
type Session struct {
	ref    SessionRef
	env    *sessionEnv
	remote RemoteSession

	state  State
	offers negotiation

	format buffer.Format
	width  int
	height int

	buf   *buffer.Buffer
	frame RemoteFrame
	seq   uint64

	delivered uint64
}

func openSession(ref SessionRef, env *sessionEnv) *Session {
	s := &Session{ref: ref, env: env}
	remote, err := env.backend.OpenSession(ref, env.opts)
	if err != nil {
		logger.WithComponent("capture").Warn().
			Err(err).
			Str("session", ref.String()).
			Msg("Failed to open capture session")
		s.state = StateFailed
		return s
	}
	s.remote = remote
	return s
}

// Ref returns the session's reference
func (s *Session) Ref() SessionRef { return s.ref }

// State returns the session's current state
func (s *Session) State() State { return s.state }

// Size returns the negotiated buffer size, zero while negotiating
func (s *Session) Size() (int, int) { return s.width, s.height }

// Format returns the negotiated buffer format
func (s *Session) Format() buffer.Format { return s.format }

// Delivered returns how many frames the session has produced
func (s *Session) Delivered() uint64 { return s.delivered }

func (s *Session) handle(ev SessionEvent) {
	if s.state == StateFailed {
		return
	}

	switch ev.Kind {
	case EventBufferSize, EventShmFormat, EventDmabufDevice, EventDmabufFormat:
		if s.state != StateNegotiating {
			// constraints changed under a running loop: start over
			s.renegotiate("constraints changed")
		}
		s.offers.record(ev)

	case EventConstraintsDone:
		if s.state == StateNegotiating {
			s.configure()
		}

	case EventFrameReady:
		if s.state != StateCapturing || ev.FrameSeq != s.seq {
			return
		}
		s.deliver()

	case EventFrameFailed:
		if s.state != StateCapturing || ev.FrameSeq != s.seq {
			return
		}
		if ev.Reason == FailureBufferConstraints {
			s.renegotiate("frame failed on buffer constraints")
			return
		}
		s.fail(fmt.Sprintf("frame failed: %s", ev.Reason))

	case EventStopped:
		s.fail("session stopped by compositor")
	}
}

// configure picks the first offered format the pool can satisfy
func (s *Session) configure() {
	offers := s.offers
	s.offers = negotiation{}

	if offers.width == 0 || offers.height == 0 {
		s.fail("compositor offered an empty buffer size")
		return
	}
	w, h := int(offers.width), int(offers.height)

	for _, f := range offers.candidates(!s.env.opts.ShmFirst) {
		if !s.env.pool.CanAllocate(f) {
			continue
		}
		buf, err := s.env.pool.Acquire(f, w, h)
		if err != nil {
			logger.WithComponent("capture").Debug().
				Err(err).
				Str("session", s.ref.String()).
				Str("format", f.String()).
				Msg("Format offer not satisfiable, trying next")
			continue
		}

		s.format, s.width, s.height = f, w, h
		s.buf = buf
		s.state = StateBufferReady

		logger.WithComponent("capture").Debug().
			Str("session", s.ref.String()).
			Str("format", f.String()).
			Int("width", w).
			Int("height", h).
			Msg("Negotiated capture buffer")

		s.arm()
		return
	}

	s.fail("no offered buffer format could be allocated")
}

// arm submits the next frame request for the buffer the session holds
func (s *Session) arm() {
	s.seq++
	frame, err := s.remote.CaptureFrame(s.seq, s.buf)
	if err != nil {
		s.fail(fmt.Sprintf("failed to request frame: %v", err))
		return
	}
	s.frame = frame
	s.state = StateCapturing
}

// deliver hands the filled buffer to the consumer and re-arms the loop
func (s *Session) deliver() {
	s.state = StateFrameReady
	if s.frame != nil {
		s.frame.Destroy()
		s.frame = nil
	}

	buf := s.buf
	s.buf = nil
	s.delivered++
	s.env.onFrame(s, newFrame(buf, s.delivered, s.env.release))

	next, err := s.env.pool.Acquire(s.format, s.width, s.height)
	if err != nil {
		s.fail(fmt.Sprintf("failed to acquire next buffer: %v", err))
		return
	}
	s.buf = next
	s.state = StateBufferReady
	s.arm()
}

// renegotiate drops the current buffer and frame and waits for new constraints
func (s *Session) renegotiate(reason string) {
	logger.WithComponent("capture").Debug().
		Str("session", s.ref.String()).
		Str("reason", reason).
		Int("width", s.width).
		Int("height", s.height).
		Msg("Renegotiating capture buffer")

	s.releaseResources()
	s.offers = negotiation{}
	s.format = buffer.Format{}
	s.width, s.height = 0, 0
	s.state = StateNegotiating
}

func (s *Session) fail(reason string) {
	logger.WithComponent("capture").Warn().
		Str("session", s.ref.String()).
		Str("state", s.state.String()).
		Str("reason", reason).
		Msg("Capture session failed")

	s.releaseResources()
	s.state = StateFailed
}

func (s *Session) releaseResources() {
	if s.frame != nil {
		s.frame.Destroy()
		s.frame = nil
	}
	if s.buf != nil {
		s.env.pool.Release(s.buf)
		s.buf = nil
	}
}

// close tears the session down on the compositor side
func (s *Session) close() {
	s.releaseResources()
	if s.remote != nil {
		s.remote.Destroy()
		s.remote = nil
	}
	s.state = StateFailed
}
