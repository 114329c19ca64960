package capture

import (
	"fmt"

	"github.com/bryanchriswhite/WinPeek/internal/buffer"
	"github.com/bryanchriswhite/WinPeek/internal/window"
)

// Options tune how capture sessions are opened and negotiated
type Options struct {
	// PaintCursors asks the compositor to composite the cursor into frames
	PaintCursors bool
	// ShmFirst tries shared memory offers before dmabuf ones. Dmabuf offers
	// come first otherwise.
	ShmFirst bool
}

// SessionRef ties a protocol event to the session it belongs to without
// holding on to the session itself. It is resolved through the registry;
// a ref whose generation no longer matches is stale.
type SessionRef struct {
	Window     window.Handle
	Generation uint64
}

func (r SessionRef) String() string {
	return fmt.Sprintf("%s/session-%d", r.Window, r.Generation)
}

// EventKind names a capture protocol event
type EventKind uint8

const (
	// EventBufferSize carries the buffer dimensions the compositor requires
	EventBufferSize EventKind = iota + 1
	// EventShmFormat offers one wl_shm format
	EventShmFormat
	// EventDmabufDevice names the device dmabufs should be allocated on
	EventDmabufDevice
	// EventDmabufFormat offers one fourcc with its supported modifiers
	EventDmabufFormat
	// EventConstraintsDone closes one batch of constraint events
	EventConstraintsDone
	// EventStopped means the compositor ended the session
	EventStopped
	// EventFrameReady means the frame's buffer holds a complete image
	EventFrameReady
	// EventFrameFailed means the frame could not be captured
	EventFrameFailed
)

var eventKindNames = map[EventKind]string{
	EventBufferSize:      "buffer_size",
	EventShmFormat:       "shm_format",
	EventDmabufDevice:    "dmabuf_device",
	EventDmabufFormat:    "dmabuf_format",
	EventConstraintsDone: "done",
	EventStopped:         "stopped",
	EventFrameReady:      "frame_ready",
	EventFrameFailed:     "frame_failed",
}

func (k EventKind) String() string {
	if n, ok := eventKindNames[k]; ok {
		return n
	}
	return fmt.Sprintf("event(%d)", uint8(k))
}

// FailureReason explains a failed frame
type FailureReason uint32

const (
	FailureUnknown           FailureReason = 0
	FailureBufferConstraints FailureReason = 1
	FailureStopped           FailureReason = 2
)

func (r FailureReason) String() string {
	switch r {
	case FailureUnknown:
		return "unknown"
	case FailureBufferConstraints:
		return "buffer_constraints"
	case FailureStopped:
		return "stopped"
	default:
		return fmt.Sprintf("reason(%d)", uint32(r))
	}
}

// SessionEvent is a protocol event addressed to one capture session
type SessionEvent struct {
	Ref  SessionRef
	Kind EventKind

	Width     uint32
	Height    uint32
	Format    uint32
	Modifiers []uint64
	Device    uint64

	// FrameSeq identifies the frame request frame events answer
	FrameSeq uint64
	Reason   FailureReason
}

// Backend opens capture sessions against the compositor
type Backend interface {
	OpenSession(ref SessionRef, opts Options) (RemoteSession, error)
}

// RemoteSession is the compositor side of one capture session
type RemoteSession interface {
	// CaptureFrame asks for the next frame to be copied into buf.
	// Replies arrive as SessionEvents carrying seq.
	CaptureFrame(seq uint64, buf *buffer.Buffer) (RemoteFrame, error)
	Destroy()
}

// RemoteFrame is one outstanding frame request
type RemoteFrame interface {
	Destroy()
}

// Pool is the subset of buffer.Pool a session needs
type Pool interface {
	CanAllocate(f buffer.Format) bool
	Acquire(f buffer.Format, width, height int) (*buffer.Buffer, error)
	Release(b *buffer.Buffer)
}
