// Package buffer allocates and recycles the pixel buffers capture frames are
// written into.
package buffer

import (
	"errors"
	"fmt"

	"github.com/bryanchriswhite/WinPeek/internal/logger"
)

var (
	// ErrNoAllocator means the pool has no allocator for the requested kind
	ErrNoAllocator = errors.New("buffer: no allocator for buffer kind")
	// ErrUnsupportedFormat means no allocator can produce the requested format
	ErrUnsupportedFormat = errors.New("buffer: unsupported format")
	// ErrInvalidSize means the requested geometry is empty or too large
	ErrInvalidSize = errors.New("buffer: invalid buffer size")
	// ErrPoolClosed is returned by Acquire after Close
	ErrPoolClosed = errors.New("buffer: pool closed")
)

// maxDimension bounds width and height so stride*height fits the protocol's int32 fields
const maxDimension = 16384

// Remote is the compositor-side object a buffer is known by
type Remote interface {
	ID() uint32
	Destroy()
}

// Buffer is a block of pixel memory shared with the compositor
type Buffer struct {
	Format Format
	Width  int
	Height int
	Stride int
	Remote Remote

	data    []byte
	mem     *memory
	closers []func() error
}

// New wraps memory the caller already shares with the compositor
func New(f Format, width, height, stride int, data []byte, remote Remote) *Buffer {
	return &Buffer{Format: f, Width: width, Height: height, Stride: stride, Remote: remote, data: data}
}

// Bytes returns the buffer's pixel memory
func (b *Buffer) Bytes() []byte { return b.data }

func (b *Buffer) String() string {
	return fmt.Sprintf("%dx%d %s", b.Width, b.Height, b.Format)
}

func (b *Buffer) destroy() error {
	if b.Remote != nil {
		b.Remote.Destroy()
		b.Remote = nil
	}
	return b.free()
}

// FreeLocal unmaps the buffer and closes its descriptors without sending
// anything to the compositor. It is for buffers that outlive the connection
// they were created on. Calling it again is a no-op.
func (b *Buffer) FreeLocal() error {
	b.Remote = nil
	return b.free()
}

func (b *Buffer) free() error {
	var firstErr error
	for _, c := range b.closers {
		if err := c(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	b.closers = nil
	if err := b.mem.close(); err != nil && firstErr == nil {
		firstErr = err
	}
	b.mem = nil
	b.data = nil
	return firstErr
}

// Allocator produces buffers of one kind
type Allocator interface {
	Kind() Kind
	Supports(f Format) bool
	Allocate(f Format, width, height int) (*Buffer, error)
}

type poolKey struct {
	format Format
	width  int
	height int
}

// Stats is a snapshot of pool counters
type Stats struct {
	Allocated uint64
	Reused    uint64
	Destroyed uint64
	Free      int
	Owned     int
}

// Pool hands out buffers and takes them back for reuse.
//
// A buffer is either free or owned by exactly one caller; Acquire never
// returns a buffer that has not been released. Pool is not safe for
// concurrent use: it belongs to the goroutine that drives capture.
type Pool struct {
	allocators map[Kind]Allocator
	free       map[poolKey][]*Buffer
	owned      map[*Buffer]struct{}
	maxFree    int
	closed     bool
	stats      Stats
}

// NewPool creates a pool keeping at most maxFree idle buffers per geometry
func NewPool(maxFree int, allocators ...Allocator) *Pool {
	if maxFree < 0 {
		maxFree = 0
	}
	p := &Pool{
		allocators: make(map[Kind]Allocator),
		free:       make(map[poolKey][]*Buffer),
		owned:      make(map[*Buffer]struct{}),
		maxFree:    maxFree,
	}
	for _, a := range allocators {
		if a != nil {
			p.allocators[a.Kind()] = a
		}
	}
	return p
}

// HasKind reports whether buffers of kind k can be allocated at all
func (p *Pool) HasKind(k Kind) bool {
	_, ok := p.allocators[k]
	return ok
}

// CanAllocate reports whether Acquire could satisfy format f
func (p *Pool) CanAllocate(f Format) bool {
	a, ok := p.allocators[f.Kind]
	return ok && a.Supports(f)
}

// Acquire returns a buffer of the requested format and size, reusing a
// released one when the geometry matches.
func (p *Pool) Acquire(f Format, width, height int) (*Buffer, error) {
	if p.closed {
		return nil, ErrPoolClosed
	}
	if width <= 0 || height <= 0 || width > maxDimension || height > maxDimension {
		return nil, fmt.Errorf("%w: %dx%d", ErrInvalidSize, width, height)
	}
	a, ok := p.allocators[f.Kind]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoAllocator, f.Kind)
	}
	if !a.Supports(f) {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, f)
	}

	key := poolKey{format: f, width: width, height: height}
	if list := p.free[key]; len(list) > 0 {
		b := list[len(list)-1]
		p.free[key] = list[:len(list)-1]
		p.owned[b] = struct{}{}
		p.stats.Reused++
		return b, nil
	}

	b, err := a.Allocate(f, width, height)
	if err != nil {
		return nil, fmt.Errorf("failed to allocate %dx%d %s buffer: %w", width, height, f, err)
	}
	p.owned[b] = struct{}{}
	p.stats.Allocated++

	logger.WithComponent("buffer").Debug().
		Str("format", f.String()).
		Int("width", width).
		Int("height", height).
		Msg("Allocated buffer")
	return b, nil
}

// Release returns an owned buffer to the pool. Releasing a buffer the pool
// does not consider owned is a no-op.
func (p *Pool) Release(b *Buffer) {
	if b == nil {
		return
	}
	if _, ok := p.owned[b]; !ok {
		logger.WithComponent("buffer").Debug().
			Str("buffer", b.String()).
			Msg("Ignoring release of buffer not owned from this pool")
		return
	}
	delete(p.owned, b)

	key := poolKey{format: b.Format, width: b.Width, height: b.Height}
	if p.closed || len(p.free[key]) >= p.maxFree {
		p.destroy(b)
		return
	}
	p.free[key] = append(p.free[key], b)
}

// Close destroys every idle buffer. Buffers still owned are destroyed as
// they are released; owners that can no longer reach the pool call
// Buffer.FreeLocal instead.
func (p *Pool) Close() {
	if p.closed {
		return
	}
	p.closed = true
	for key, list := range p.free {
		for _, b := range list {
			p.destroy(b)
		}
		delete(p.free, key)
	}
}

// Stats returns a snapshot of the pool counters
func (p *Pool) Stats() Stats {
	s := p.stats
	for _, list := range p.free {
		s.Free += len(list)
	}
	s.Owned = len(p.owned)
	return s
}

func (p *Pool) destroy(b *Buffer) {
	p.stats.Destroyed++
	if err := b.destroy(); err != nil {
		logger.WithComponent("buffer").Warn().
			Err(err).
			Str("buffer", b.String()).
			Msg("Failed to destroy buffer")
	}
}
