package worker

import (
	"errors"

	"github.com/bryanchriswhite/WinPeek/internal/window"
)

// ErrClosed is returned when sending on closed Commands
var ErrClosed = errors.New("worker: commands closed")

// Commands sends requests to a running worker. Sends never block and are
// safe from any goroutine. Closing Commands shuts the worker down.
type Commands struct {
	box *mailbox[Request]
}

func newCommands() *Commands {
	return &Commands{box: newMailbox[Request]()}
}

// Send queues r for the worker
func (c *Commands) Send(r Request) error {
	if !c.box.put(r) {
		return ErrClosed
	}
	return nil
}

// SetCaptureFilter replaces the set of captured windows
func (c *Commands) SetCaptureFilter(windows ...window.Handle) error {
	return c.Send(SetCaptureFilter{Windows: windows})
}

// Activate focuses h
func (c *Commands) Activate(h window.Handle) error {
	return c.Send(ActivateWindow{Window: h})
}

// Minimize minimizes h
func (c *Commands) Minimize(h window.Handle) error {
	return c.Send(MinimizeWindow{Window: h})
}

// CloseWindow asks h to close
func (c *Commands) CloseWindow(h window.Handle) error {
	return c.Send(CloseWindow{Window: h})
}

// RequestActivationToken asks for a launch token for appID
func (c *Commands) RequestActivationToken(appID, exec string, gpu *uint) error {
	return c.Send(RequestActivationToken{AppID: appID, Exec: exec, GPUIndex: gpu})
}

// Close stops the worker once it has handled the requests already sent
func (c *Commands) Close() {
	c.box.close()
}
