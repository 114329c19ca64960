// Package worker runs the compositor connection on its own OS thread and
// bridges it to the UI through a request mailbox and an update channel.
package worker

import (
	"context"
	"fmt"
	"runtime"

	"github.com/rs/zerolog"

	"github.com/bryanchriswhite/WinPeek/internal/buffer"
	"github.com/bryanchriswhite/WinPeek/internal/capture"
	"github.com/bryanchriswhite/WinPeek/internal/logger"
	"github.com/bryanchriswhite/WinPeek/internal/wayland"
	"github.com/bryanchriswhite/WinPeek/internal/window"
)

// DefaultUpdateBuffer is the capacity of the update channel
const DefaultUpdateBuffer = 20

// DefaultMaxFreeBuffers is how many idle buffers are kept per geometry
const DefaultMaxFreeBuffers = 2

// Compositor is the connection the worker drives. wayland.Client implements it.
type Compositor interface {
	capture.Backend

	// Ready is signalled when Dispatch has events to process
	Ready() <-chan struct{}
	// Dispatch processes queued events; an error is fatal
	Dispatch() error
	Allocators() []buffer.Allocator

	ActivateWindow(h window.Handle) error
	MinimizeWindow(h window.Handle) error
	CloseWindow(h window.Handle) error
	RequestActivationToken(appID string) (uint64, error)

	Disconnect() error
}

// ConnectFunc opens a compositor connection delivering events to h
type ConnectFunc func(ctx context.Context, h wayland.Handler) (Compositor, error)

// Options configure a worker
type Options struct {
	Capture        capture.Options
	MaxFreeBuffers int
	UpdateBuffer   int

	// Connect defaults to connecting to the Wayland compositor in the environment
	Connect ConnectFunc
}

func connectWayland(ctx context.Context, h wayland.Handler) (Compositor, error) {
	c, err := wayland.Connect(ctx, h)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// Subscribe starts a worker and returns its update stream. The first update
// is WorkerReady, the last WorkerFinished; the channel is closed after it.
// Cancelling ctx stops the worker as well as closing its Commands.
func Subscribe(ctx context.Context, opts Options) <-chan Update {
	if opts.UpdateBuffer <= 0 {
		opts.UpdateBuffer = DefaultUpdateBuffer
	}
	if opts.MaxFreeBuffers <= 0 {
		opts.MaxFreeBuffers = DefaultMaxFreeBuffers
	}
	if opts.Connect == nil {
		opts.Connect = connectWayland
	}

	out := make(chan Update, opts.UpdateBuffer)
	w := &worker{
		ctx:      ctx,
		opts:     opts,
		out:      out,
		commands: newCommands(),
		returned: newMailbox[*buffer.Buffer](),
		windows:  make(map[window.Handle]struct{}),
		tokens:   make(map[uint64]RequestActivationToken),
		log:      logger.WithComponent("worker"),
	}

	go func() {
		// protocol state has exactly one owner thread
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
		defer close(out)

		err := w.run()
		if err != nil {
			w.log.Error().Err(err).Msg("Worker stopped")
		} else {
			w.log.Info().Msg("Worker stopped")
		}
		w.emit(WorkerFinished{Err: err})
	}()
	return out
}

type worker struct {
	ctx  context.Context
	opts Options
	out  chan<- Update
	log  *zerolog.Logger

	commands *Commands
	returned *mailbox[*buffer.Buffer]

	comp     Compositor
	pool     *buffer.Pool
	registry *capture.Registry

	windows map[window.Handle]struct{}
	tokens  map[uint64]RequestActivationToken
	exit    bool
}

func (w *worker) run() (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("worker panic: %v", r)
		}
	}()
	defer w.commands.Close()

	if !w.emit(WorkerReady{Commands: w.commands}) {
		return nil
	}

	comp, err := w.opts.Connect(w.ctx, w)
	if err != nil {
		return fmt.Errorf("failed to connect to compositor: %w", err)
	}
	w.comp = comp
	defer w.teardown()

	w.pool = buffer.NewPool(w.opts.MaxFreeBuffers, comp.Allocators()...)
	w.registry = capture.NewRegistry(capture.Config{
		Backend: comp,
		Pool:    w.pool,
		Options: w.opts.Capture,
		OnFrame: w.frameCaptured,
		Release: w.returnBuffer,
	})
	// windows announced while connecting
	for h := range w.windows {
		w.registry.WindowAdded(h)
	}
	w.log.Info().
		Int("windows", len(w.windows)).
		Bool("shm", w.pool.HasKind(buffer.KindShm)).
		Bool("dmabuf", w.pool.HasKind(buffer.KindDmabuf)).
		Msg("Connected to compositor")

	for !w.exit {
		select {
		case <-w.ctx.Done():
			return nil
		case <-comp.Ready():
			if err := comp.Dispatch(); err != nil {
				return fmt.Errorf("compositor connection failed: %w", err)
			}
		case <-w.commands.box.ready():
			w.handleCommands()
		case <-w.returned.ready():
			w.reclaim()
		}
	}
	return nil
}

func (w *worker) teardown() {
	w.registry.Close()
	w.returned.close()
	w.reclaim()
	w.pool.Close()
	if err := w.comp.Disconnect(); err != nil {
		w.log.Debug().Err(err).Msg("Failed to close compositor connection")
	}
}

// emit sends u unless the subscriber went away
func (w *worker) emit(u Update) bool {
	select {
	case w.out <- u:
		return true
	case <-w.ctx.Done():
		w.exit = true
		return false
	}
}

// returnBuffer runs on whichever goroutine released the frame. Once the
// worker has shut down nobody drains the mailbox, so the memory is freed here.
func (w *worker) returnBuffer(b *buffer.Buffer) {
	if w.returned.put(b) {
		return
	}
	if err := b.FreeLocal(); err != nil {
		w.log.Debug().Err(err).Str("buffer", b.String()).Msg("Failed to free buffer after shutdown")
	}
}

func (w *worker) reclaim() {
	bufs, _ := w.returned.drain()
	for _, b := range bufs {
		w.pool.Release(b)
	}
}

func (w *worker) handleCommands() {
	reqs, closed := w.commands.box.drain()
	for _, r := range reqs {
		w.handle(r)
	}
	if closed {
		w.log.Debug().Msg("Command channel closed, shutting down")
		w.exit = true
	}
}

func (w *worker) handle(r Request) {
	switch r := r.(type) {
	case SetCaptureFilter:
		n := w.registry.SetFilter(capture.NewFilter(r.Windows...))
		w.log.Info().Int("captures", n).Msg("Reconciled capture filter")

	case ActivateWindow:
		w.command("activate", r.Window, w.comp.ActivateWindow)
	case MinimizeWindow:
		w.command("minimize", r.Window, w.comp.MinimizeWindow)
	case CloseWindow:
		w.command("close", r.Window, w.comp.CloseWindow)

	case RequestActivationToken:
		id, err := w.comp.RequestActivationToken(r.AppID)
		if err != nil {
			w.log.Debug().Err(err).Str("app_id", r.AppID).Msg("Activation token unavailable")
			w.emit(ActivationTokenIssued{AppID: r.AppID, Exec: r.Exec, GPUIndex: r.GPUIndex})
			return
		}
		w.tokens[id] = r

	default:
		w.log.Warn().Str("request", fmt.Sprintf("%T", r)).Msg("Unknown request")
	}
}

func (w *worker) command(name string, h window.Handle, fn func(window.Handle) error) {
	if err := fn(h); err != nil {
		w.log.Warn().Err(err).Str("window", h.String()).Msgf("Failed to %s window", name)
	}
}

func (w *worker) frameCaptured(h window.Handle, f *capture.Frame) {
	if !w.emit(FrameCaptured{Window: h, Frame: f}) {
		f.Release()
	}
}

// wayland.Handler

func (w *worker) ToplevelNew(h window.Handle, info window.Info) {
	w.windows[h] = struct{}{}
	if w.registry != nil {
		w.registry.WindowAdded(h)
	}
	w.emit(WindowAdded{Window: h, Info: info})
}

func (w *worker) ToplevelChanged(h window.Handle, info window.Info) {
	w.emit(WindowUpdated{Window: h, Info: info})
}

func (w *worker) ToplevelClosed(h window.Handle) {
	if _, ok := w.windows[h]; !ok {
		return
	}
	delete(w.windows, h)
	if w.registry != nil {
		w.registry.WindowRemoved(h)
	}
	w.emit(WindowRemoved{Window: h})
}

func (w *worker) WorkspaceActivated(ws window.Workspace) {
	w.emit(WorkspaceActivated{Workspace: ws})
}

func (w *worker) ActivationToken(request uint64, token string) {
	r, ok := w.tokens[request]
	if !ok {
		return
	}
	delete(w.tokens, request)
	w.emit(ActivationTokenIssued{Token: &token, AppID: r.AppID, Exec: r.Exec, GPUIndex: r.GPUIndex})
}

func (w *worker) SessionEvent(ev capture.SessionEvent) {
	if w.registry != nil {
		w.registry.HandleSessionEvent(ev)
	}
}
