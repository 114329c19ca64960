package wayland

import (
	"encoding/binary"
	"fmt"

	"github.com/rajveermalviya/go-wayland/wayland/client"

	"github.com/bryanchriswhite/WinPeek/internal/buffer"
	"github.com/bryanchriswhite/WinPeek/internal/capture"
)

// ext_image_copy_capture_manager_v1.options
const optionPaintCursors = 1

// OpenSession starts an image copy capture of the window ref names
func (c *Client) OpenSession(ref capture.SessionRef, opts capture.Options) (capture.RemoteSession, error) {
	if c.sourceManager == 0 {
		return nil, fmt.Errorf("%w: %s", ErrUnsupported, ifaceSourceManager)
	}
	if c.copyManager == 0 {
		return nil, fmt.Errorf("%w: %s", ErrUnsupported, ifaceCopyManager)
	}
	t, err := c.lookup(ref.Window)
	if err != nil {
		return nil, err
	}

	s := &copySession{client: c, ref: ref}
	s.source = c.register(&ignored{iface: "ext_image_capture_source_v1"})
	if err := c.send(newRequest(c.sourceManager, 0).NewID(s.source).Object(t.ID())); err != nil {
		return nil, fmt.Errorf("failed to create capture source: %w", err)
	}

	var options uint32
	if opts.PaintCursors {
		options |= optionPaintCursors
	}
	c.register(s)
	if err := c.send(newRequest(c.copyManager, 0).NewID(s.ID()).Object(s.source).Uint(options)); err != nil {
		return nil, fmt.Errorf("failed to create capture session: %w", err)
	}

	c.log.Debug().
		Str("session", ref.String()).
		Uint32("id", s.ID()).
		Msg("Opened capture session")
	return s, nil
}

// copySession is ext_image_copy_capture_session_v1
type copySession struct {
	client.BaseProxy
	client *Client
	source uint32
	ref    capture.SessionRef
}

func (s *copySession) emit(ev capture.SessionEvent) {
	ev.Ref = s.ref
	s.client.handler.SessionEvent(ev)
}

func (s *copySession) event(c *Client, opcode uint16, d *args) error {
	switch opcode {
	case 0: // buffer_size
		w, h := d.Uint(), d.Uint()
		s.emit(capture.SessionEvent{Kind: capture.EventBufferSize, Width: w, Height: h})
	case 1: // shm_format
		s.emit(capture.SessionEvent{Kind: capture.EventShmFormat, Format: d.Uint()})
	case 2: // dmabuf_device
		dev := d.Array()
		var id uint64
		if len(dev) >= 8 {
			id = binary.NativeEndian.Uint64(dev)
		}
		s.emit(capture.SessionEvent{Kind: capture.EventDmabufDevice, Device: id})
	case 3: // dmabuf_format
		format := d.Uint()
		raw := d.Array()
		mods := make([]uint64, 0, len(raw)/8)
		for i := 0; i+8 <= len(raw); i += 8 {
			mods = append(mods, binary.NativeEndian.Uint64(raw[i:]))
		}
		s.emit(capture.SessionEvent{Kind: capture.EventDmabufFormat, Format: format, Modifiers: mods})
	case 4: // done
		s.emit(capture.SessionEvent{Kind: capture.EventConstraintsDone})
	case 5: // stopped
		s.emit(capture.SessionEvent{Kind: capture.EventStopped})
	default:
		return c.unknownEvent(ifaceCopyManager+" session", s.ID(), opcode)
	}
	return d.Err()
}

// CaptureFrame attaches buf to a new frame and requests a capture into it
func (s *copySession) CaptureFrame(seq uint64, buf *buffer.Buffer) (capture.RemoteFrame, error) {
	c := s.client
	if buf.Remote == nil {
		return nil, fmt.Errorf("buffer %s has no compositor object", buf)
	}

	f := &copyFrame{session: s, seq: seq}
	id := c.register(f)
	reqs := []*request{
		newRequest(s.ID(), 0).NewID(id),
		newRequest(id, 1).Object(buf.Remote.ID()),
		newRequest(id, 2).Int(0).Int(0).Int(int32(buf.Width)).Int(int32(buf.Height)),
		newRequest(id, 3),
	}
	for _, r := range reqs {
		if err := c.send(r); err != nil {
			return nil, fmt.Errorf("failed to request frame: %w", err)
		}
	}
	return f, nil
}

// Destroy ends the session and releases its source
func (s *copySession) Destroy() {
	s.client.destroy(s.ID(), 1)
	s.client.destroy(s.source, 0)
}

// copyFrame is ext_image_copy_capture_frame_v1
type copyFrame struct {
	client.BaseProxy
	session *copySession
	seq     uint64
}

func (f *copyFrame) event(c *Client, opcode uint16, d *args) error {
	switch opcode {
	case 0, 1, 2:
		// transform, damage, presentation_time
	case 3: // ready
		f.session.emit(capture.SessionEvent{Kind: capture.EventFrameReady, FrameSeq: f.seq})
	case 4: // failed
		reason := capture.FailureReason(d.Uint())
		f.session.emit(capture.SessionEvent{Kind: capture.EventFrameFailed, FrameSeq: f.seq, Reason: reason})
	default:
		return c.unknownEvent(ifaceCopyManager+" frame", f.ID(), opcode)
	}
	return nil
}

// Destroy discards the frame object
func (f *copyFrame) Destroy() {
	f.session.client.destroy(f.ID(), 0)
}
