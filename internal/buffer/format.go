package buffer

import "fmt"

// Kind distinguishes how a buffer's memory is shared with the compositor
type Kind uint8

const (
	// KindShm buffers live in shared memory handed over through wl_shm
	KindShm Kind = iota
	// KindDmabuf buffers are imported by the compositor as dmabufs
	KindDmabuf
)

func (k Kind) String() string {
	switch k {
	case KindShm:
		return "shm"
	case KindDmabuf:
		return "dmabuf"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// DRM fourcc codes for the 32-bit formats frames can be read back from
const (
	FourCCARGB8888 uint32 = 0x34325241 // AR24
	FourCCXRGB8888 uint32 = 0x34325258 // XR24
	FourCCABGR8888 uint32 = 0x34324241 // AB24
	FourCCXBGR8888 uint32 = 0x34324258 // XB24
)

// wl_shm reserves 0 and 1 for ARGB8888 and XRGB8888; every other value is
// the DRM fourcc itself.
const (
	shmARGB8888 uint32 = 0
	shmXRGB8888 uint32 = 1
)

// ModifierLinear is the DRM format modifier for plain row-major layout
const ModifierLinear uint64 = 0

// Format is a negotiated pixel format
type Format struct {
	Kind Kind
	// Code is the wl_shm format enum for shm buffers and the DRM fourcc
	// for dmabufs.
	Code     uint32
	Modifier uint64
}

// FourCC returns the DRM fourcc the format describes
func (f Format) FourCC() uint32 {
	if f.Kind == KindShm {
		switch f.Code {
		case shmARGB8888:
			return FourCCARGB8888
		case shmXRGB8888:
			return FourCCXRGB8888
		}
	}
	return f.Code
}

// BytesPerPixel returns the pixel size, or 0 for formats frames cannot be
// read back from
func (f Format) BytesPerPixel() int {
	switch f.FourCC() {
	case FourCCARGB8888, FourCCXRGB8888, FourCCABGR8888, FourCCXBGR8888:
		return 4
	}
	return 0
}

// Supported reports whether buffers of this format can be allocated and read
func (f Format) Supported() bool {
	return f.BytesPerPixel() != 0
}

// HasAlpha reports whether the alpha channel carries data
func (f Format) HasAlpha() bool {
	switch f.FourCC() {
	case FourCCARGB8888, FourCCABGR8888:
		return true
	}
	return false
}

func (f Format) String() string {
	cc := f.FourCC()
	name := string([]byte{byte(cc), byte(cc >> 8), byte(cc >> 16), byte(cc >> 24)})
	if f.Kind == KindDmabuf {
		return fmt.Sprintf("%s/%s/0x%x", f.Kind, name, f.Modifier)
	}
	return fmt.Sprintf("%s/%s", f.Kind, name)
}

// ShmFormat builds an shm format from a wl_shm format code
func ShmFormat(code uint32) Format {
	return Format{Kind: KindShm, Code: code}
}

// DmabufFormat builds a dmabuf format from a fourcc and modifier
func DmabufFormat(fourcc uint32, modifier uint64) Format {
	return Format{Kind: KindDmabuf, Code: fourcc, Modifier: modifier}
}
