package commands

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bryanchriswhite/WinPeek/internal/config"
	"github.com/bryanchriswhite/WinPeek/internal/window"
	"github.com/bryanchriswhite/WinPeek/internal/worker"
)

// errFinished is returned when the worker stops before a command completes
var errFinished = errors.New("compositor connection closed")

// session is one worker subscription plus the window list it reported
type session struct {
	updates  <-chan worker.Update
	commands *worker.Commands

	windows   map[window.Handle]window.Info
	order     []window.Handle
	workspace *window.Workspace
	finished  error
}

func workerOptions(cfg *config.Config) worker.Options {
	return worker.Options{
		Capture:        cfg.Capture.Options(),
		MaxFreeBuffers: cfg.Capture.MaxFreeBuffers,
		UpdateBuffer:   cfg.UpdateBuffer,
	}
}

// openSession starts a worker and waits for its command sender
func openSession(ctx context.Context, cfg *config.Config) (*session, error) {
	s := &session{
		updates: worker.Subscribe(ctx, workerOptions(cfg)),
		windows: make(map[window.Handle]window.Info),
	}
	for u := range s.updates {
		switch u := u.(type) {
		case worker.WorkerReady:
			s.commands = u.Commands
			return s, nil
		case worker.WorkerFinished:
			return nil, u.Err
		}
	}
	return nil, errFinished
}

// apply folds one update into the window list. It reports false once the
// worker has finished.
func (s *session) apply(u worker.Update) bool {
	switch u := u.(type) {
	case worker.WindowAdded:
		if _, ok := s.windows[u.Window]; !ok {
			s.order = append(s.order, u.Window)
		}
		s.windows[u.Window] = u.Info
	case worker.WindowUpdated:
		if _, ok := s.windows[u.Window]; ok {
			s.windows[u.Window] = u.Info
		}
	case worker.WindowRemoved:
		delete(s.windows, u.Window)
		for i, h := range s.order {
			if h == u.Window {
				s.order = append(s.order[:i], s.order[i+1:]...)
				break
			}
		}
	case worker.WorkspaceActivated:
		ws := u.Workspace
		s.workspace = &ws
	case worker.FrameCaptured:
		u.Frame.Release()
	case worker.WorkerFinished:
		s.finished = u.Err
		if s.finished == nil {
			s.finished = errFinished
		}
		return false
	}
	return true
}

// settle collects updates for d, which is long enough for the compositor's
// initial burst of toplevels
func (s *session) settle(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			return nil
		case u, ok := <-s.updates:
			if !ok || !s.apply(u) {
				return s.err()
			}
		}
	}
}

func (s *session) err() error {
	if s.finished != nil {
		return s.finished
	}
	return errFinished
}

// match returns the windows selected by pattern in announcement order
func (s *session) match(pattern string) ([]window.Handle, error) {
	m, err := window.NewMatcher(pattern)
	if err != nil {
		return nil, err
	}
	var out []window.Handle
	for _, h := range s.order {
		if m.Match(s.windows[h]) {
			out = append(out, h)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no window matches %q", pattern)
	}
	return out, nil
}

// close stops the worker and drains the stream, releasing any frames
func (s *session) close() error {
	s.commands.Close()
	var err error
	for u := range s.updates {
		switch u := u.(type) {
		case worker.FrameCaptured:
			u.Frame.Release()
		case worker.WorkerFinished:
			err = u.Err
		}
	}
	return err
}
