// Package wayland is a Wayland client speaking the protocols WinPeek needs:
// toplevel enumeration and management, workspaces, window capture and
// activation tokens.
//
// The connection, object registration and the core wl_* interfaces come from
// go-wayland. The ext, cosmic and xdg_activation objects have no generated
// bindings and are bound by hand on the same connection.
//
// A Client is owned by one goroutine. Only the socket reader runs elsewhere,
// and it never touches protocol state: it queues raw messages and signals
// Ready, and the owner calls Dispatch to process them.
package wayland

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/rajveermalviya/go-wayland/wayland/client"
	"github.com/rs/zerolog"
	"golang.org/x/sys/unix"

	"github.com/bryanchriswhite/WinPeek/internal/buffer"
	"github.com/bryanchriswhite/WinPeek/internal/capture"
	"github.com/bryanchriswhite/WinPeek/internal/logger"
	"github.com/bryanchriswhite/WinPeek/internal/window"
)

const (
	// EnvPrivilegedSocket names a descriptor of a pre-opened privileged connection
	EnvPrivilegedSocket = "X_PRIVILEGED_WAYLAND_SOCKET"
	// EnvSocket names a descriptor of a pre-opened connection
	EnvSocket = "WAYLAND_SOCKET"

	envDisplay     = "WAYLAND_DISPLAY"
	envRuntimeDir  = "XDG_RUNTIME_DIR"
	defaultDisplay = "wayland-0"
)

const (
	displayID    uint32 = 1
	serverIDBase uint32 = 0xff000000
)

var (
	// ErrUnsupported means the compositor lacks the global a call needs
	ErrUnsupported = errors.New("wayland: not supported by the compositor")
	// ErrUnknownWindow means the handle does not name an open toplevel
	ErrUnknownWindow = errors.New("wayland: unknown window")
	// ErrNoSeat means a request needs a seat and none was advertised
	ErrNoSeat = errors.New("wayland: no seat available")
	// ErrNoDisplay means no connection could be located in the environment
	ErrNoDisplay = errors.New("wayland: no compositor connection in environment")
)

// ProtocolError is a fatal error reported by the compositor
type ProtocolError struct {
	Object  uint32
	Code    uint32
	Message string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("wayland: protocol error %d on object %d: %s", e.Code, e.Object, e.Message)
}

// Handler receives the events WinPeek cares about. It is called from
// Dispatch, on the goroutine that owns the client.
type Handler interface {
	ToplevelNew(h window.Handle, info window.Info)
	ToplevelChanged(h window.Handle, info window.Info)
	ToplevelClosed(h window.Handle)
	WorkspaceActivated(ws window.Workspace)
	ActivationToken(request uint64, token string)
	SessionEvent(ev capture.SessionEvent)
}

// object is a proxy bound by hand. Generated proxies dispatch themselves.
type object interface {
	client.Proxy
	event(c *Client, opcode uint16, a *args) error
}

// dispatcher is implemented by the generated proxies
type dispatcher interface {
	Dispatch(opcode uint32, fd int, data []byte)
}

// zombie stands in for a destroyed object until the compositor confirms
// the id is free; events still in flight for it are dropped.
type zombie struct {
	client.Proxy
}

func (*zombie) event(*Client, uint16, *args) error { return nil }

// Client is a connection to the compositor and the protocol state built on it
type Client struct {
	display *client.Display
	ctx     *client.Context
	relay   *relay
	handler Handler
	log     *zerolog.Logger

	// hand-bound objects, by id
	objects map[uint32]object

	mu      sync.Mutex
	queue   []message
	readErr error
	ready   chan struct{}
	done    chan struct{}

	sendErr error
	closed  bool

	globals
	toplevels  map[uint32]*toplevel
	workspaces map[uint32]*workspace
	wsOrder    []uint32
	active     window.WorkspaceHandle

	serial      uint64
	tokenSeq    uint64
	dmabufs     *buffer.DmabufAllocator
	udmabufPath string
}

// Connect attaches to the compositor found in the environment, binds the
// globals and waits for the initial round trip.
func Connect(ctx context.Context, h Handler) (*Client, error) {
	target, err := resolveSocket(os.Getenv)
	if err != nil {
		return nil, err
	}
	// children must not inherit a descriptor meant for us
	os.Unsetenv(EnvPrivilegedSocket)
	os.Unsetenv(EnvSocket)

	path := target.path
	var r *relay
	if path == "" {
		if r, err = newRelay(target.fd); err != nil {
			return nil, err
		}
		path = r.path
	}

	c, err := dial(path, h)
	if err != nil {
		if r != nil {
			r.Close()
		}
		return nil, err
	}
	c.relay = r
	if err := c.init(ctx); err != nil {
		c.Disconnect()
		return nil, err
	}
	return c, nil
}

// socketTarget is where resolveSocket found the compositor
type socketTarget struct {
	fd   int
	path string
}

func resolveSocket(getenv func(string) string) (socketTarget, error) {
	for _, name := range []string{EnvPrivilegedSocket, EnvSocket} {
		v := getenv(name)
		if v == "" {
			continue
		}
		fd, err := strconv.Atoi(v)
		if err != nil || fd < 0 {
			return socketTarget{}, fmt.Errorf("invalid %s=%q", name, v)
		}
		return socketTarget{fd: fd}, nil
	}

	display := getenv(envDisplay)
	if display == "" {
		display = defaultDisplay
	}
	if filepath.IsAbs(display) {
		return socketTarget{fd: -1, path: display}, nil
	}
	dir := getenv(envRuntimeDir)
	if dir == "" {
		return socketTarget{}, fmt.Errorf("%w: %s is not set", ErrNoDisplay, envRuntimeDir)
	}
	return socketTarget{fd: -1, path: filepath.Join(dir, display)}, nil
}

// dial connects to the socket at path and starts the reader
func dial(path string, h Handler) (*Client, error) {
	d, err := client.Connect(path)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", path, err)
	}

	c := &Client{
		display:    d,
		ctx:        d.Context(),
		handler:    h,
		log:        logger.WithComponent("wayland"),
		objects:    make(map[uint32]object),
		ready:      make(chan struct{}, 1),
		done:       make(chan struct{}),
		toplevels:  make(map[uint32]*toplevel),
		workspaces: make(map[uint32]*workspace),

		udmabufPath: buffer.DefaultUdmabufPath,
	}
	c.globals.init()
	// wl_display.error and delete_id are handled here, not by the proxy
	c.adopt(displayID, &displayEvents{})
	go c.readLoop()
	return c, nil
}

func (c *Client) init(ctx context.Context) error {
	reg, err := c.display.GetRegistry()
	if err != nil {
		return c.fail(err)
	}
	reg.SetGlobalHandler(func(e client.RegistryGlobalEvent) {
		c.global(e.Name, e.Interface, e.Version)
	})
	reg.SetGlobalRemoveHandler(func(e client.RegistryGlobalRemoveEvent) {
		c.globalRemove(e.Name)
	})
	c.registry = reg

	if err := c.Roundtrip(ctx); err != nil {
		return fmt.Errorf("failed to enumerate globals: %w", err)
	}
	c.logMissingGlobals()
	return nil
}

func (c *Client) readLoop() {
	defer close(c.done)
	for {
		sender, opcode, fd, data, err := c.ctx.ReadMsg()
		c.mu.Lock()
		if err != nil {
			c.readErr = err
		} else {
			c.queue = append(c.queue, message{sender: sender, opcode: uint16(opcode), fd: fd, data: data})
		}
		c.mu.Unlock()

		select {
		case c.ready <- struct{}{}:
		default:
		}
		if err != nil {
			return
		}
	}
}

// Ready is signalled whenever Dispatch has work to do
func (c *Client) Ready() <-chan struct{} { return c.ready }

// Dispatch processes every queued event. A non-nil error is fatal: the
// connection is gone or the compositor reported a protocol error.
func (c *Client) Dispatch() error {
	c.mu.Lock()
	msgs := c.queue
	c.queue = nil
	readErr := c.readErr
	c.mu.Unlock()

	for _, m := range msgs {
		if err := c.dispatch(m); err != nil {
			return err
		}
	}
	if c.sendErr != nil {
		return c.sendErr
	}
	return readErr
}

// Roundtrip blocks until the compositor has processed every request sent so
// far, dispatching events meanwhile.
func (c *Client) Roundtrip(ctx context.Context) error {
	cb, err := c.display.Sync()
	if err != nil {
		return c.fail(err)
	}
	defer cb.Destroy()

	done := false
	cb.SetDoneHandler(func(client.CallbackDoneEvent) { done = true })
	for !done {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.ready:
			if err := c.Dispatch(); err != nil {
				return err
			}
		}
	}
	return nil
}

// Disconnect closes the connection and waits for the reader to stop
func (c *Client) Disconnect() error {
	if c.closed {
		return nil
	}
	c.closed = true
	if c.dmabufs != nil {
		c.dmabufs.Close()
	}
	err := c.ctx.Close()
	<-c.done
	if c.relay != nil {
		c.relay.Close()
	}
	return err
}

func (c *Client) dispatch(m message) error {
	if o, ok := c.objects[m.sender]; ok {
		if m.fd >= 0 {
			// none of the hand-bound interfaces has fd events
			unix.Close(m.fd)
		}
		a := newArgs(m.data)
		if err := o.event(c, m.opcode, a); err != nil {
			return err
		}
		if err := a.Err(); err != nil {
			return fmt.Errorf("malformed event %d for object %d: %w", m.opcode, m.sender, err)
		}
		return nil
	}

	if d, ok := c.ctx.GetProxy(m.sender).(dispatcher); ok {
		d.Dispatch(uint32(m.opcode), m.fd, m.data)
		return nil
	}
	if m.fd >= 0 {
		unix.Close(m.fd)
	}
	c.log.Debug().
		Uint32("object", m.sender).
		Uint16("opcode", m.opcode).
		Msg("Event for unknown object")
	return nil
}

func (c *Client) unknownEvent(iface string, id uint32, opcode uint16) error {
	c.log.Debug().
		Str("interface", iface).
		Uint32("object", id).
		Uint16("opcode", opcode).
		Msg("Ignoring unknown event")
	return nil
}

// send writes a request for a hand-bound object
func (c *Client) send(r *request) error {
	return c.fail(c.ctx.WriteMsg(r.encode(), r.oob))
}

// fail remembers a failed write so it surfaces from the next Dispatch,
// since the reader will see the hangup as well
func (c *Client) fail(err error) error {
	if err != nil && c.sendErr == nil {
		c.sendErr = err
	}
	return err
}

// register gives o a fresh client id
func (c *Client) register(o object) uint32 {
	c.ctx.Register(o)
	c.objects[o.ID()] = o
	return o.ID()
}

// adopt tracks an object whose id the compositor chose
func (c *Client) adopt(id uint32, o object) {
	o.SetID(id)
	o.SetContext(c.ctx)
	c.objects[id] = o
}

// destroy sends a destructor request and retires the id
func (c *Client) destroy(id uint32, opcode uint16) {
	if _, ok := c.objects[id]; !ok {
		return
	}
	if err := c.send(newRequest(id, opcode)); err != nil {
		c.log.Debug().Err(err).Uint32("object", id).Msg("Failed to destroy object")
	}
	c.retire(id)
}

func (c *Client) retire(id uint32) {
	o, ok := c.objects[id]
	if !ok {
		return
	}
	if id >= serverIDBase {
		// the compositor never confirms server ids
		delete(c.objects, id)
		return
	}
	c.objects[id] = &zombie{Proxy: o}
}

func (c *Client) nextSerial() uint64 {
	c.serial++
	return c.serial
}

// displayEvents receives the wl_display events
type displayEvents struct {
	client.BaseProxy
}

func (*displayEvents) event(c *Client, opcode uint16, a *args) error {
	switch opcode {
	case 0: // error
		obj, code, msg := a.Object(), a.Uint(), a.String()
		if a.Err() != nil {
			return a.Err()
		}
		return &ProtocolError{Object: obj, Code: code, Message: msg}
	case 1: // delete_id
		id := a.Uint()
		if z, ok := c.objects[id].(*zombie); ok {
			delete(c.objects, id)
			c.ctx.Unregister(z.Proxy)
		}
		return nil
	}
	return c.unknownEvent("wl_display", displayID, opcode)
}
