package output

import (
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/bryanchriswhite/WinPeek/internal/logger"
)

// PNGDirOutput keeps one PNG thumbnail per window in a directory,
// overwriting it with every new frame
type PNGDirOutput struct {
	dir     string
	config  Config
	running bool
	mu      sync.RWMutex

	frameCount uint64
	files      map[string]string
}

// NewPNGDirOutput creates a thumbnail directory output
func NewPNGDirOutput(dir string, config Config) *PNGDirOutput {
	return &PNGDirOutput{
		dir:    dir,
		config: config,
		files:  make(map[string]string),
	}
}

// Start creates the directory
func (p *PNGDirOutput) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return fmt.Errorf("PNG output already running")
	}
	if err := os.MkdirAll(p.dir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	p.running = true
	p.frameCount = 0

	logger.WithComponent("output").Info().
		Str("dir", p.dir).
		Int("width", p.config.Width).
		Int("height", p.config.Height).
		Msg("PNG output started")
	return nil
}

// Stop leaves the written thumbnails in place
func (p *PNGDirOutput) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.running {
		return nil
	}
	p.running = false

	logger.WithComponent("output").Info().
		Uint64("frames", p.frameCount).
		Msg("PNG output stopped")
	return nil
}

// WriteFrame scales frame and replaces the window's thumbnail
func (p *PNGDirOutput) WriteFrame(window string, frame *image.RGBA) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.running {
		return fmt.Errorf("PNG output not running")
	}

	img := Thumbnail(frame, p.config.Width, p.config.Height)
	if p.config.Label {
		if img == frame {
			img = cloneRGBA(frame)
		}
		Label(img, window)
	}

	path := filepath.Join(p.dir, FileName(window))
	if err := WritePNG(path, img); err != nil {
		return err
	}
	p.files[window] = path
	p.frameCount++
	return nil
}

// RemoveWindow deletes the window's thumbnail
func (p *PNGDirOutput) RemoveWindow(window string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	path, ok := p.files[window]
	if !ok {
		return nil
	}
	delete(p.files, window)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Name returns the output type name
func (p *PNGDirOutput) Name() string {
	return "png"
}

// IsRunning returns whether the output is active
func (p *PNGDirOutput) IsRunning() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.running
}

// FileName maps a window name to a file name
func FileName(window string) string {
	name := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			return r
		default:
			return '_'
		}
	}, window)
	name = strings.TrimLeft(name, ".")
	if name == "" {
		name = "window"
	}
	return name + ".png"
}

// WritePNG encodes img to path through a temporary file so readers never
// see a partial image
func WritePNG(path string, img image.Image) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".winpeek-*.png")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := png.Encode(tmp, img); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to encode png: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func cloneRGBA(src *image.RGBA) *image.RGBA {
	dst := image.NewRGBA(src.Bounds())
	copy(dst.Pix, src.Pix)
	return dst
}
