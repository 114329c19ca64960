package output

import (
	"image"
)

// Output defines the interface for frame sinks.
// Frames arrive per window; an output decides how to keep them
// (a thumbnail directory, a single snapshot file, ...).
type Output interface {
	// Start initializes the output mechanism
	Start() error

	// Stop cleanly shuts down the output
	Stop() error

	// WriteFrame stores the latest frame of a window.
	// The image is expected to be in RGBA format
	WriteFrame(window string, frame *image.RGBA) error

	// RemoveWindow drops whatever the output kept for a closed window
	RemoveWindow(window string) error

	// Name returns a human-readable name for this output type
	Name() string

	// IsRunning returns true if the output is currently active
	IsRunning() bool
}

// Config holds common configuration for all output types
type Config struct {
	// Width and Height bound the thumbnail; zero keeps the frame size
	Width  int
	Height int
	// Label draws the window name across the bottom of each thumbnail
	Label bool
}
