package wayland

import (
	"context"
	"encoding/binary"
	"errors"
	"net"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"golang.org/x/sys/unix"

	"github.com/bryanchriswhite/WinPeek/internal/buffer"
	"github.com/bryanchriswhite/WinPeek/internal/capture"
	"github.com/bryanchriswhite/WinPeek/internal/window"
)

const waitTimeout = 2 * time.Second

type fakeGlobal struct {
	iface   string
	version uint32
}

// fakeServer is a scripted compositor on the other end of a unix socket
type fakeServer struct {
	conn    *net.UnixConn
	globals []fakeGlobal
	wmu     sync.Mutex

	mu       sync.Mutex
	registry uint32
	bound    map[string]uint32
	reqs     []message
}

func (s *fakeServer) serve() {
	buf := make([]byte, 4096)
	oob := make([]byte, unix.CmsgSpace(maxPassedFDs*4))
	var pending []byte
	for {
		n, oobn, _, _, err := s.conn.ReadMsgUnix(buf, oob)
		if fds, _ := passedFDs(oob[:oobn]); len(fds) > 0 {
			for _, fd := range fds {
				unix.Close(fd)
			}
		}
		if err != nil || n == 0 {
			return
		}
		pending = append(pending, buf[:n]...)
		for len(pending) >= 8 {
			header := binary.NativeEndian.Uint32(pending[4:])
			size := int(header >> 16)
			if size < 8 {
				return
			}
			if len(pending) < size {
				break
			}
			s.handle(message{
				sender: binary.NativeEndian.Uint32(pending),
				opcode: uint16(header),
				fd:     -1,
				data:   append([]byte(nil), pending[8:size]...),
			})
			pending = pending[size:]
		}
	}
}

func (s *fakeServer) handle(m message) {
	a := newArgs(m.data)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.reqs = append(s.reqs, m)

	switch {
	case m.sender == displayID && m.opcode == 1:
		s.registry = a.NewID()
		for i, g := range s.globals {
			s.write(newRequest(s.registry, 0).Uint(uint32(i + 1)).String(g.iface).Uint(g.version))
		}
	case m.sender == displayID && m.opcode == 0:
		cb := a.NewID()
		s.write(newRequest(cb, 0).Uint(0))
		s.write(newRequest(displayID, 1).Uint(cb))
	case m.sender == s.registry && m.opcode == 0:
		a.Uint()
		iface := a.String()
		a.Uint()
		s.bound[iface] = a.NewID()
	}
}

func (s *fakeServer) write(r *request) error {
	s.wmu.Lock()
	defer s.wmu.Unlock()
	_, _, err := s.conn.WriteMsgUnix(r.encode(), r.oob, nil)
	return err
}

func (s *fakeServer) send(t *testing.T, r *request) {
	t.Helper()
	if err := s.write(r); err != nil {
		t.Fatalf("server send: %v", err)
	}
}

// boundID waits until the client bound iface
func (s *fakeServer) boundID(t *testing.T, iface string) uint32 {
	t.Helper()
	var id uint32
	waitFor(t, "bind of "+iface, func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		id = s.bound[iface]
		return id != 0
	})
	return id
}

// request waits for a request with the given sender and opcode and
// returns its arguments
func (s *fakeServer) request(t *testing.T, sender uint32, opcode uint16) *args {
	t.Helper()
	var found message
	waitFor(t, "request", func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		for _, m := range s.reqs {
			if m.sender == sender && m.opcode == opcode {
				found = m
				return true
			}
		}
		return false
	})
	return newArgs(found.data)
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(waitTimeout)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

type tokenEvent struct {
	request uint64
	token   string
}

type recorder struct {
	added    []window.Info
	handles  []window.Handle
	changed  []window.Info
	closed   []window.Handle
	spaces   []window.Workspace
	tokens   []tokenEvent
	sessions []capture.SessionEvent
}

func (r *recorder) ToplevelNew(h window.Handle, info window.Info) {
	r.handles = append(r.handles, h)
	r.added = append(r.added, info)
}
func (r *recorder) ToplevelChanged(h window.Handle, info window.Info) {
	r.changed = append(r.changed, info)
}
func (r *recorder) ToplevelClosed(h window.Handle)         { r.closed = append(r.closed, h) }
func (r *recorder) WorkspaceActivated(ws window.Workspace) { r.spaces = append(r.spaces, ws) }
func (r *recorder) ActivationToken(req uint64, tok string) {
	r.tokens = append(r.tokens, tokenEvent{req, tok})
}
func (r *recorder) SessionEvent(ev capture.SessionEvent) { r.sessions = append(r.sessions, ev) }

type fakeRemote struct{ id uint32 }

func (r fakeRemote) ID() uint32 { return r.id }
func (fakeRemote) Destroy()     {}

func listen(t *testing.T) (*net.UnixListener, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "wl")
	ln, err := net.ListenUnix("unix", &net.UnixAddr{Name: path, Net: "unix"})
	if err != nil {
		t.Fatalf("ListenUnix() error = %v", err)
	}
	t.Cleanup(func() { ln.Close() })
	return ln, path
}

// startServer serves conn and returns the client's end once initialised
func startServer(t *testing.T, c *Client, conn *net.UnixConn, globals []fakeGlobal) *fakeServer {
	t.Helper()
	srv := &fakeServer{conn: conn, globals: globals, bound: make(map[string]uint32)}
	go srv.serve()
	t.Cleanup(func() { conn.Close() })
	t.Cleanup(func() { c.Disconnect() })

	ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
	defer cancel()
	if err := c.init(ctx); err != nil {
		t.Fatalf("init() error = %v", err)
	}
	return srv
}

func connectFake(t *testing.T, globals ...fakeGlobal) (*Client, *fakeServer, *recorder) {
	t.Helper()
	ln, path := listen(t)

	rec := &recorder{}
	c, err := dial(path, rec)
	if err != nil {
		t.Fatalf("dial() error = %v", err)
	}
	conn, err := ln.AcceptUnix()
	if err != nil {
		t.Fatalf("AcceptUnix() error = %v", err)
	}
	return c, startServer(t, c, conn, globals), rec
}

// pump dispatches until cond holds
func pump(t *testing.T, c *Client, what string, cond func() bool) {
	t.Helper()
	timeout := time.After(waitTimeout)
	for !cond() {
		select {
		case <-c.Ready():
			if err := c.Dispatch(); err != nil {
				t.Fatalf("Dispatch() error = %v", err)
			}
		case <-timeout:
			t.Fatalf("timed out waiting for %s", what)
		}
	}
}

// announce sends a complete ext toplevel under server id
func announce(t *testing.T, srv *fakeServer, list, id uint32, title, appID string) {
	t.Helper()
	srv.send(t, newRequest(list, 0).NewID(id))
	srv.send(t, newRequest(id, 2).String(title))
	srv.send(t, newRequest(id, 3).String(appID))
	srv.send(t, newRequest(id, 4).String("ident-"+appID))
	srv.send(t, newRequest(id, 1))
}

func TestResolveSocket(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		want    socketTarget
		wantErr bool
	}{
		{"privileged fd wins", map[string]string{EnvPrivilegedSocket: "7", EnvSocket: "8", envDisplay: "wayland-1"}, socketTarget{fd: 7}, false},
		{"socket fd", map[string]string{EnvSocket: "8"}, socketTarget{fd: 8}, false},
		{"bad fd", map[string]string{EnvSocket: "nope"}, socketTarget{}, true},
		{"display in runtime dir", map[string]string{envRuntimeDir: "/run/user/1000", envDisplay: "wayland-1"}, socketTarget{fd: -1, path: "/run/user/1000/wayland-1"}, false},
		{"default display", map[string]string{envRuntimeDir: "/run/user/1000"}, socketTarget{fd: -1, path: "/run/user/1000/wayland-0"}, false},
		{"absolute display", map[string]string{envDisplay: "/tmp/wl.sock"}, socketTarget{fd: -1, path: "/tmp/wl.sock"}, false},
		{"no runtime dir", map[string]string{}, socketTarget{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := resolveSocket(func(k string) string { return tt.env[k] })
			if (err != nil) != tt.wantErr {
				t.Fatalf("resolveSocket() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Fatalf("resolveSocket() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestConnectBindsGlobals(t *testing.T) {
	c, srv, _ := connectFake(t,
		fakeGlobal{ifaceShm, 1},
		fakeGlobal{ifaceSeat, 9},
		fakeGlobal{ifaceToplevelList, 1},
		fakeGlobal{ifaceCosmicInfo, 1}, // too old for get_cosmic_toplevel
		fakeGlobal{"wl_compositor", 6},
	)

	if c.shm == nil || c.toplevelList == 0 || c.firstSeat() == 0 {
		t.Fatalf("required globals not bound: shm=%v list=%d seat=%d", c.shm != nil, c.toplevelList, c.firstSeat())
	}
	if c.cosmicInfo != 0 {
		t.Fatalf("bound cosmic info version 1")
	}
	if got := srv.boundID(t, ifaceShm); got != c.shm.ID() {
		t.Fatalf("server saw wl_shm as %d, client uses %d", got, c.shm.ID())
	}
	if got := srv.boundID(t, ifaceToplevelList); got != c.toplevelList {
		t.Fatalf("server saw toplevel list as %d, client uses %d", got, c.toplevelList)
	}
}

func TestToplevelLifecycle(t *testing.T) {
	c, srv, rec := connectFake(t,
		fakeGlobal{ifaceToplevelList, 1},
		fakeGlobal{ifaceCosmicInfo, 3},
	)
	list := srv.boundID(t, ifaceToplevelList)
	info := srv.boundID(t, ifaceCosmicInfo)

	const id = serverIDBase + 1
	announce(t, srv, list, id, "Terminal", "foot")
	pump(t, c, "ext done", func() bool { return c.toplevels[id] != nil && c.toplevels[id].extDone })

	// the cosmic extension must describe it before it is announced
	if len(rec.added) != 0 {
		t.Fatalf("announced before the cosmic handle was done")
	}
	d := srv.request(t, info, 1)
	cosmic, ext := d.NewID(), d.Object()
	if ext != id {
		t.Fatalf("get_cosmic_toplevel for %d, want %d", ext, id)
	}

	states := binary.NativeEndian.AppendUint32(nil, cosmicActivated)
	states = binary.NativeEndian.AppendUint32(states, cosmicMaximized)
	srv.send(t, newRequest(cosmic, 8).Array(states))
	srv.send(t, newRequest(cosmic, 1))
	pump(t, c, "ToplevelNew", func() bool { return len(rec.added) == 1 })

	got := rec.added[0]
	if got.Title != "Terminal" || got.AppID != "foot" || got.Identifier != "ident-foot" {
		t.Fatalf("ToplevelNew info = %+v", got)
	}
	if !got.State.Has(window.StateActivated|window.StateMaximized) || got.State.Has(window.StateMinimized) {
		t.Fatalf("state = %s", got.State)
	}
	h := rec.handles[0]
	if h.ID() != id {
		t.Fatalf("handle id = %d, want %d", h.ID(), id)
	}

	srv.send(t, newRequest(id, 2).String("Terminal - vim"))
	srv.send(t, newRequest(id, 1))
	pump(t, c, "ToplevelChanged", func() bool { return len(rec.changed) == 1 })
	if rec.changed[0].Title != "Terminal - vim" || rec.changed[0].AppID != "foot" {
		t.Fatalf("ToplevelChanged info = %+v", rec.changed[0])
	}

	srv.send(t, newRequest(id, 0))
	pump(t, c, "ToplevelClosed", func() bool { return len(rec.closed) == 1 })
	if rec.closed[0] != h {
		t.Fatalf("closed %s, want %s", rec.closed[0], h)
	}
	srv.request(t, id, 0)
	srv.request(t, cosmic, 0)

	// the compositor reuses the id for a new window; the handle must differ
	announce(t, srv, list, id, "Files", "nautilus")
	pump(t, c, "second toplevel", func() bool { return c.toplevels[id] != nil && c.toplevels[id].extDone })
	var cosmic2 uint32
	waitFor(t, "second get_cosmic_toplevel", func() bool {
		srv.mu.Lock()
		defer srv.mu.Unlock()
		n := 0
		for _, m := range srv.reqs {
			if m.sender == info && m.opcode == 1 {
				n++
				cosmic2 = newArgs(m.data).NewID()
			}
		}
		return n == 2
	})
	srv.send(t, newRequest(cosmic2, 1))
	pump(t, c, "second ToplevelNew", func() bool { return len(rec.added) == 2 })
	if rec.handles[1] == h {
		t.Fatalf("recycled object id produced an equal handle")
	}
}

func TestCaptureSessionEvents(t *testing.T) {
	c, srv, rec := connectFake(t,
		fakeGlobal{ifaceToplevelList, 1},
		fakeGlobal{ifaceSourceManager, 1},
		fakeGlobal{ifaceCopyManager, 1},
	)
	list := srv.boundID(t, ifaceToplevelList)
	sources := srv.boundID(t, ifaceSourceManager)
	copies := srv.boundID(t, ifaceCopyManager)

	const id = serverIDBase + 4
	announce(t, srv, list, id, "Browser", "firefox")
	pump(t, c, "ToplevelNew", func() bool { return len(rec.added) == 1 })

	ref := capture.SessionRef{Window: rec.handles[0], Generation: 3}
	rs, err := c.OpenSession(ref, capture.Options{PaintCursors: true})
	if err != nil {
		t.Fatalf("OpenSession() error = %v", err)
	}

	d := srv.request(t, sources, 0)
	source, target := d.NewID(), d.Object()
	if target != id {
		t.Fatalf("capture source for %d, want %d", target, id)
	}
	d = srv.request(t, copies, 0)
	session, src, opts := d.NewID(), d.Object(), d.Uint()
	if src != source || opts != optionPaintCursors {
		t.Fatalf("create_session(source=%d, options=%d)", src, opts)
	}

	mods := binary.NativeEndian.AppendUint64(nil, 0x0100000000000001)
	mods = binary.NativeEndian.AppendUint64(mods, buffer.ModifierLinear)
	srv.send(t, newRequest(session, 0).Uint(64).Uint(32))
	srv.send(t, newRequest(session, 1).Uint(1))
	srv.send(t, newRequest(session, 3).Uint(buffer.FourCCXRGB8888).Array(mods))
	srv.send(t, newRequest(session, 4))
	pump(t, c, "constraints", func() bool { return len(rec.sessions) == 4 })

	wantKinds := []capture.EventKind{capture.EventBufferSize, capture.EventShmFormat, capture.EventDmabufFormat, capture.EventConstraintsDone}
	for i, ev := range rec.sessions {
		if ev.Ref != ref || ev.Kind != wantKinds[i] {
			t.Fatalf("event %d = %s for %s, want %s for %s", i, ev.Kind, ev.Ref, wantKinds[i], ref)
		}
	}
	if rec.sessions[0].Width != 64 || rec.sessions[0].Height != 32 {
		t.Fatalf("buffer_size = %dx%d", rec.sessions[0].Width, rec.sessions[0].Height)
	}
	if m := rec.sessions[2].Modifiers; len(m) != 2 || m[1] != buffer.ModifierLinear {
		t.Fatalf("modifiers = %v", m)
	}

	buf := buffer.New(buffer.ShmFormat(1), 64, 32, 256, nil, fakeRemote{id: 77})
	if _, err := rs.CaptureFrame(5, buf); err != nil {
		t.Fatalf("CaptureFrame() error = %v", err)
	}
	frame := srv.request(t, session, 0).NewID()
	if attached := srv.request(t, frame, 1).Object(); attached != 77 {
		t.Fatalf("attached buffer %d, want 77", attached)
	}
	srv.request(t, frame, 3)

	srv.send(t, newRequest(frame, 3))
	pump(t, c, "frame ready", func() bool { return len(rec.sessions) == 5 })
	if ev := rec.sessions[4]; ev.Kind != capture.EventFrameReady || ev.FrameSeq != 5 {
		t.Fatalf("frame event = %s seq %d", ev.Kind, ev.FrameSeq)
	}

	rs.Destroy()
	srv.request(t, session, 1)
	srv.request(t, source, 0)

	// events racing the destroy are dropped
	srv.send(t, newRequest(session, 5))
	srv.send(t, newRequest(displayID, 1).Uint(session))
	pump(t, c, "delete_id", func() bool { _, ok := c.objects[session]; return !ok })
	if len(rec.sessions) != 5 {
		t.Fatalf("event delivered for destroyed session")
	}
}

func TestOpenSessionWithoutCaptureSupport(t *testing.T) {
	c, srv, rec := connectFake(t, fakeGlobal{ifaceToplevelList, 1})
	announce(t, srv, srv.boundID(t, ifaceToplevelList), serverIDBase+1, "x", "y")
	pump(t, c, "ToplevelNew", func() bool { return len(rec.added) == 1 })

	if _, err := c.OpenSession(capture.SessionRef{Window: rec.handles[0]}, capture.Options{}); !errors.Is(err, ErrUnsupported) {
		t.Fatalf("OpenSession() error = %v, want ErrUnsupported", err)
	}
}

func TestActivationToken(t *testing.T) {
	c, _, _ := connectFake(t, fakeGlobal{ifaceShm, 1})
	if _, err := c.RequestActivationToken("foot"); !errors.Is(err, ErrUnsupported) {
		t.Fatalf("RequestActivationToken() error = %v, want ErrUnsupported", err)
	}

	c, srv, rec := connectFake(t, fakeGlobal{ifaceActivation, 1}, fakeGlobal{ifaceSeat, 1})
	activation := srv.boundID(t, ifaceActivation)
	seat := srv.boundID(t, ifaceSeat)

	req, err := c.RequestActivationToken("foot")
	if err != nil {
		t.Fatalf("RequestActivationToken() error = %v", err)
	}
	tok := srv.request(t, activation, 1).NewID()
	if appID := srv.request(t, tok, 1).String(); appID != "foot" {
		t.Fatalf("set_app_id(%q)", appID)
	}
	d := srv.request(t, tok, 0)
	if d.Uint(); d.Object() != seat {
		t.Fatalf("set_serial without the seat")
	}
	srv.request(t, tok, 3)

	srv.send(t, newRequest(tok, 0).String("token-123"))
	pump(t, c, "token", func() bool { return len(rec.tokens) == 1 })
	if rec.tokens[0] != (tokenEvent{req, "token-123"}) {
		t.Fatalf("token = %+v, want request %d", rec.tokens[0], req)
	}
	srv.request(t, tok, 4)
}

func TestWindowCommands(t *testing.T) {
	c, _, _ := connectFake(t, fakeGlobal{ifaceToplevelList, 1})
	if err := c.CloseWindow(window.NewHandle(1, 1)); !errors.Is(err, ErrUnsupported) {
		t.Fatalf("CloseWindow() without manager error = %v", err)
	}

	c, srv, rec := connectFake(t,
		fakeGlobal{ifaceToplevelList, 1},
		fakeGlobal{ifaceCosmicInfo, 2},
		fakeGlobal{ifaceCosmicManager, 2},
	)
	list := srv.boundID(t, ifaceToplevelList)
	info := srv.boundID(t, ifaceCosmicInfo)
	manager := srv.boundID(t, ifaceCosmicManager)

	const id = serverIDBase + 9
	announce(t, srv, list, id, "Mail", "thunderbird")
	pump(t, c, "toplevel", func() bool { return c.toplevels[id] != nil })
	cosmic := srv.request(t, info, 1).NewID()
	srv.send(t, newRequest(cosmic, 1))

	caps := binary.NativeEndian.AppendUint32(nil, capClose)
	caps = binary.NativeEndian.AppendUint32(caps, capMinimize)
	srv.send(t, newRequest(manager, 0).Array(caps))
	pump(t, c, "ToplevelNew", func() bool { return len(rec.added) == 1 && c.managerCaps != nil })
	h := rec.handles[0]

	if err := c.MinimizeWindow(h); err != nil {
		t.Fatalf("MinimizeWindow() error = %v", err)
	}
	if got := srv.request(t, manager, 5).Object(); got != cosmic {
		t.Fatalf("set_minimized(%d), want %d", got, cosmic)
	}
	if err := c.CloseWindow(h); err != nil {
		t.Fatalf("CloseWindow() error = %v", err)
	}
	srv.request(t, manager, 1)

	if err := c.ActivateWindow(h); !errors.Is(err, ErrUnsupported) {
		t.Fatalf("ActivateWindow() without capability error = %v", err)
	}
	if err := c.MinimizeWindow(window.NewHandle(id, h.Serial()+1)); !errors.Is(err, ErrUnknownWindow) {
		t.Fatalf("MinimizeWindow() with stale handle error = %v", err)
	}
}

func TestWorkspaceActivation(t *testing.T) {
	c, srv, rec := connectFake(t, fakeGlobal{ifaceWorkspaceManager, 1})
	manager := srv.boundID(t, ifaceWorkspaceManager)

	ws1, ws2 := serverIDBase+20, serverIDBase+21
	srv.send(t, newRequest(manager, 1).NewID(ws1))
	srv.send(t, newRequest(ws1, 1).String("1"))
	srv.send(t, newRequest(ws1, 3).Uint(workspaceActive))
	srv.send(t, newRequest(manager, 1).NewID(ws2))
	srv.send(t, newRequest(ws2, 1).String("2"))
	srv.send(t, newRequest(ws2, 3).Uint(0))
	srv.send(t, newRequest(manager, 2))
	pump(t, c, "first activation", func() bool { return len(rec.spaces) == 1 })
	if rec.spaces[0].Name != "1" {
		t.Fatalf("active workspace = %q, want 1", rec.spaces[0].Name)
	}

	// an unrelated done does not repeat it
	srv.send(t, newRequest(ws2, 1).String("two"))
	srv.send(t, newRequest(manager, 2))

	srv.send(t, newRequest(ws1, 3).Uint(0))
	srv.send(t, newRequest(ws2, 3).Uint(workspaceActive))
	srv.send(t, newRequest(manager, 2))
	pump(t, c, "second activation", func() bool { return len(rec.spaces) >= 2 })
	if len(rec.spaces) != 2 || rec.spaces[1].Name != "two" {
		t.Fatalf("activations = %+v", rec.spaces)
	}
}

func TestProtocolErrorIsFatal(t *testing.T) {
	c, srv, _ := connectFake(t)
	srv.send(t, newRequest(displayID, 0).Object(displayID).Uint(3).String("bad request"))

	var err error
	timeout := time.After(waitTimeout)
	for err == nil {
		select {
		case <-c.Ready():
			err = c.Dispatch()
		case <-timeout:
			t.Fatalf("protocol error never surfaced")
		}
	}
	var perr *ProtocolError
	if !errors.As(err, &perr) || perr.Code != 3 || perr.Message != "bad request" {
		t.Fatalf("Dispatch() error = %v, want protocol error 3", err)
	}
}

func TestDestroyedIDsRetireOnDeleteID(t *testing.T) {
	c, srv, _ := connectFake(t)

	id := c.register(&ignored{iface: "test"})
	c.destroy(id, 0)
	if _, ok := c.objects[id].(*zombie); !ok {
		t.Fatalf("destroyed object released before the compositor confirmed it")
	}
	if next := c.register(&ignored{iface: "test"}); next == id {
		t.Fatalf("unconfirmed id reused")
	}

	srv.send(t, newRequest(displayID, 1).Uint(id))
	pump(t, c, "delete_id", func() bool { _, ok := c.objects[id]; return !ok })
	if c.ctx.GetProxy(id) != nil {
		t.Fatalf("confirmed id still registered with the connection")
	}

	// server ids are never confirmed
	c.adopt(serverIDBase+3, &ignored{iface: "test"})
	c.destroy(serverIDBase+3, 0)
	if _, ok := c.objects[serverIDBase+3]; ok {
		t.Fatalf("server id kept after destroy")
	}
}

func TestAllocatorsOpenDmabufWhenOffered(t *testing.T) {
	c, _, _ := connectFake(t, fakeGlobal{ifaceShm, 1})
	if got := c.Allocators(); len(got) != 1 || got[0].Kind() != buffer.KindShm {
		t.Fatalf("Allocators() without dmabuf = %v", got)
	}

	c, _, _ = connectFake(t, fakeGlobal{ifaceShm, 1}, fakeGlobal{ifaceDmabuf, 4})
	if c.dmabufVersion != 3 {
		t.Fatalf("dmabuf bound at version %d, want 3", c.dmabufVersion)
	}
	// any openable device stands in for udmabuf here
	c.udmabufPath = os.DevNull
	kinds := map[buffer.Kind]bool{}
	for _, a := range c.Allocators() {
		kinds[a.Kind()] = true
	}
	if !kinds[buffer.KindShm] || !kinds[buffer.KindDmabuf] {
		t.Fatalf("allocator kinds = %v, want shm and dmabuf", kinds)
	}
}

func TestConnectThroughDescriptor(t *testing.T) {
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		t.Fatalf("Socketpair() error = %v", err)
	}
	f := os.NewFile(uintptr(fds[1]), "server")
	fc, err := net.FileConn(f)
	f.Close()
	if err != nil {
		t.Fatalf("FileConn() error = %v", err)
	}

	r, err := newRelay(fds[0])
	if err != nil {
		t.Fatalf("newRelay() error = %v", err)
	}
	rec := &recorder{}
	c, err := dial(r.path, rec)
	if err != nil {
		r.Close()
		t.Fatalf("dial() error = %v", err)
	}
	c.relay = r
	srv := startServer(t, c, fc.(*net.UnixConn), []fakeGlobal{{ifaceToplevelList, 1}})

	announce(t, srv, srv.boundID(t, ifaceToplevelList), serverIDBase+1, "Terminal", "foot")
	pump(t, c, "ToplevelNew", func() bool { return len(rec.added) == 1 })
	if rec.added[0].AppID != "foot" {
		t.Fatalf("ToplevelNew info = %+v", rec.added[0])
	}

	if err := c.Disconnect(); err != nil {
		t.Fatalf("Disconnect() error = %v", err)
	}
	if _, err := os.Stat(r.path); !os.IsNotExist(err) {
		t.Fatalf("relay socket left behind: %v", err)
	}
}

func TestDisconnectStopsReader(t *testing.T) {
	c, _, _ := connectFake(t)
	if err := c.Disconnect(); err != nil {
		t.Fatalf("Disconnect() error = %v", err)
	}
	select {
	case <-c.done:
	default:
		t.Fatalf("reader still running")
	}
	if err := c.Disconnect(); err != nil {
		t.Fatalf("second Disconnect() error = %v", err)
	}
}
