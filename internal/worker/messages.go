package worker

import (
	"github.com/bryanchriswhite/WinPeek/internal/capture"
	"github.com/bryanchriswhite/WinPeek/internal/window"
)

// Request is a command sent from the UI to the worker
type Request interface {
	isRequest()
}

// SetCaptureFilter replaces the set of windows to capture
type SetCaptureFilter struct {
	Windows []window.Handle
}

// ActivateWindow focuses a window
type ActivateWindow struct {
	Window window.Handle
}

// MinimizeWindow minimizes a window
type MinimizeWindow struct {
	Window window.Handle
}

// CloseWindow asks a window to close
type CloseWindow struct {
	Window window.Handle
}

// RequestActivationToken asks for a launch token. Exec and GPUIndex are
// handed back untouched with the token.
type RequestActivationToken struct {
	AppID    string
	Exec     string
	GPUIndex *uint
}

func (SetCaptureFilter) isRequest()       {}
func (ActivateWindow) isRequest()         {}
func (MinimizeWindow) isRequest()         {}
func (CloseWindow) isRequest()            {}
func (RequestActivationToken) isRequest() {}

// Update is an event sent from the worker to the UI
type Update interface {
	isUpdate()
}

// WorkerReady is always the first update; it carries the command sender
type WorkerReady struct {
	Commands *Commands
}

// WorkerFinished is the last update before the stream closes. Err is nil
// after a requested shutdown.
type WorkerFinished struct {
	Err error
}

// WindowAdded reports a new window
type WindowAdded struct {
	Window window.Handle
	Info   window.Info
}

// WindowUpdated carries the complete new description of a window
type WindowUpdated struct {
	Window window.Handle
	Info   window.Info
}

// WindowRemoved reports a closed window
type WindowRemoved struct {
	Window window.Handle
}

// WorkspaceActivated reports the newly active workspace
type WorkspaceActivated struct {
	Workspace window.Workspace
}

// ActivationTokenIssued answers RequestActivationToken. Token is nil when
// the compositor cannot issue tokens.
type ActivationTokenIssued struct {
	Token    *string
	AppID    string
	Exec     string
	GPUIndex *uint
}

// FrameCaptured hands a frame to the UI, which must Release it
type FrameCaptured struct {
	Window window.Handle
	Frame  *capture.Frame
}

func (WorkerReady) isUpdate()           {}
func (WorkerFinished) isUpdate()        {}
func (WindowAdded) isUpdate()           {}
func (WindowUpdated) isUpdate()         {}
func (WindowRemoved) isUpdate()         {}
func (WorkspaceActivated) isUpdate()    {}
func (ActivationTokenIssued) isUpdate() {}
func (FrameCaptured) isUpdate()         {}
