package buffer

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

// DefaultUdmabufPath is where the kernel exposes the udmabuf device
const DefaultUdmabufPath = "/dev/udmabuf"

// UDMABUF_CREATE, _IOW('u', 0x42, struct udmabuf_create)
const (
	udmabufCreate       = 0x40187542
	udmabufFlagsCloexec = 0x01
)

type udmabufCreateArgs struct {
	memfd  uint32
	flags  uint32
	offset uint64
	size   uint64
}

// DmabufBinder imports a dmabuf into the compositor as a wl_buffer
type DmabufBinder interface {
	CreateDmabufBuffer(fd int, width, height, stride int32, fourcc uint32, modifier uint64) (Remote, error)
}

// DmabufAllocator turns sealed memfds into linear dmabufs through udmabuf.
// The memory stays mapped so frames can be read back on the CPU.
type DmabufAllocator struct {
	binder DmabufBinder
	dev    int
}

// OpenDmabufAllocator opens the udmabuf device at path
func OpenDmabufAllocator(binder DmabufBinder, path string) (*DmabufAllocator, error) {
	if path == "" {
		path = DefaultUdmabufPath
	}
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	return &DmabufAllocator{binder: binder, dev: fd}, nil
}

func (a *DmabufAllocator) Kind() Kind { return KindDmabuf }

func (a *DmabufAllocator) Supports(f Format) bool {
	return f.Kind == KindDmabuf && f.Supported() && f.Modifier == ModifierLinear
}

func (a *DmabufAllocator) Allocate(f Format, width, height int) (*Buffer, error) {
	stride := width * f.BytesPerPixel()
	page := unix.Getpagesize()
	size := (stride*height + page - 1) / page * page

	mem, err := newMemory("winpeek-dmabuf", size, true)
	if err != nil {
		return nil, err
	}
	if _, err := unix.FcntlInt(uintptr(mem.fd), unix.F_ADD_SEALS, unix.F_SEAL_SHRINK); err != nil {
		mem.close()
		return nil, fmt.Errorf("failed to seal memfd: %w", err)
	}

	args := udmabufCreateArgs{
		memfd: uint32(mem.fd),
		flags: udmabufFlagsCloexec,
		size:  uint64(size),
	}
	r1, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(a.dev), udmabufCreate, uintptr(unsafe.Pointer(&args)))
	if errno != 0 {
		mem.close()
		return nil, fmt.Errorf("UDMABUF_CREATE: %w", errno)
	}
	dmabufFD := int(r1)

	remote, err := a.binder.CreateDmabufBuffer(dmabufFD, int32(width), int32(height), int32(stride), f.Code, f.Modifier)
	if err != nil {
		unix.Close(dmabufFD)
		mem.close()
		return nil, fmt.Errorf("failed to import dmabuf: %w", err)
	}

	return &Buffer{
		Format:  f,
		Width:   width,
		Height:  height,
		Stride:  stride,
		Remote:  remote,
		data:    mem.data[:stride*height],
		mem:     mem,
		closers: []func() error{func() error { return unix.Close(dmabufFD) }},
	}, nil
}

// Close releases the udmabuf device. Buffers already allocated stay valid.
func (a *DmabufAllocator) Close() error {
	if a.dev < 0 {
		return nil
	}
	err := unix.Close(a.dev)
	a.dev = -1
	return err
}
