package capture

import (
	"image"
	"sync"

	"github.com/bryanchriswhite/WinPeek/internal/buffer"
)

// Frame is one captured image of a window.
//
// The capture loop stops writing to the underlying buffer before the frame
// is handed out, so its pixels never change. The consumer owns the frame
// and must call Release once it is done so the buffer can be reused; after
// Release the pixels are no longer accessible.
type Frame struct {
	Width  int
	Height int
	Stride int
	Format buffer.Format
	// Seq counts frames delivered by the session that produced this one
	Seq uint64

	buf     *buffer.Buffer
	release func(*buffer.Buffer)

	// mu is held for reading while pixels are being read; Release takes it
	// exclusively before the buffer goes back
	mu       sync.RWMutex
	released bool
}

func newFrame(buf *buffer.Buffer, seq uint64, release func(*buffer.Buffer)) *Frame {
	return &Frame{
		Width:   buf.Width,
		Height:  buf.Height,
		Stride:  buf.Stride,
		Format:  buf.Format,
		Seq:     seq,
		buf:     buf,
		release: release,
	}
}

// Pixels returns the raw pixel rows, or nil once the frame was released.
// Callers must not modify the returned slice, and it is only valid until
// Release is called: a goroutine that may release the frame concurrently
// should use Image, which holds off Release while it copies.
func (f *Frame) Pixels() []byte {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.released {
		return nil
	}
	return f.buf.Bytes()
}

// Image converts the frame into a newly allocated RGBA image.
// It returns nil once the frame was released. A concurrent Release waits
// for the conversion to finish.
func (f *Frame) Image() *image.RGBA {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.released {
		return nil
	}
	pix := f.buf.Bytes()

	img := image.NewRGBA(image.Rect(0, 0, f.Width, f.Height))
	fourcc := f.Format.FourCC()
	alpha := f.Format.HasAlpha()
	swap := fourcc == buffer.FourCCARGB8888 || fourcc == buffer.FourCCXRGB8888

	for y := 0; y < f.Height; y++ {
		src := pix[y*f.Stride : y*f.Stride+f.Width*4]
		dst := img.Pix[y*img.Stride : y*img.Stride+f.Width*4]
		for x := 0; x < len(src); x += 4 {
			if swap {
				// little-endian ARGB/XRGB words are B,G,R,A in memory
				dst[x], dst[x+1], dst[x+2] = src[x+2], src[x+1], src[x]
			} else {
				dst[x], dst[x+1], dst[x+2] = src[x], src[x+1], src[x+2]
			}
			if alpha {
				dst[x+3] = src[x+3]
			} else {
				dst[x+3] = 0xff
			}
		}
	}
	return img
}

// Release hands the buffer back for reuse. It is safe to call more than
// once and from any goroutine.
func (f *Frame) Release() {
	f.mu.Lock()
	if f.released {
		f.mu.Unlock()
		return
	}
	f.released = true
	f.mu.Unlock()

	if f.release != nil {
		f.release(f.buf)
	}
}
