package buffer

import "fmt"

// ShmBinder creates the compositor-side wl_buffer for a shared memory file
type ShmBinder interface {
	CreateShmBuffer(fd int, size, width, height, stride int32, format uint32) (Remote, error)
}

// ShmAllocator allocates buffers in memfd-backed shared memory.
// It is the portable fallback every compositor supports.
type ShmAllocator struct {
	binder ShmBinder
}

// NewShmAllocator returns an allocator that registers buffers through binder
func NewShmAllocator(binder ShmBinder) *ShmAllocator {
	return &ShmAllocator{binder: binder}
}

func (a *ShmAllocator) Kind() Kind { return KindShm }

func (a *ShmAllocator) Supports(f Format) bool {
	return f.Kind == KindShm && f.Supported()
}

func (a *ShmAllocator) Allocate(f Format, width, height int) (*Buffer, error) {
	stride := width * f.BytesPerPixel()
	size := stride * height

	mem, err := newMemory("winpeek-shm", size, false)
	if err != nil {
		return nil, err
	}
	remote, err := a.binder.CreateShmBuffer(mem.fd, int32(size), int32(width), int32(height), int32(stride), f.Code)
	if err != nil {
		mem.close()
		return nil, fmt.Errorf("failed to create shm buffer: %w", err)
	}

	return &Buffer{
		Format: f,
		Width:  width,
		Height: height,
		Stride: stride,
		Remote: remote,
		data:   mem.data,
		mem:    mem,
	}, nil
}
