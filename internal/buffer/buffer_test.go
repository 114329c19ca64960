package buffer

import (
	"errors"
	"testing"
)

type fakeRemote struct {
	id        uint32
	destroyed bool
}

func (r *fakeRemote) ID() uint32 { return r.id }
func (r *fakeRemote) Destroy()   { r.destroyed = true }

type fakeShmBinder struct {
	created []*fakeRemote
	fail    error
}

func (b *fakeShmBinder) CreateShmBuffer(fd int, size, width, height, stride int32, format uint32) (Remote, error) {
	if b.fail != nil {
		return nil, b.fail
	}
	if fd < 0 || size != stride*height {
		return nil, errors.New("bad shm geometry")
	}
	r := &fakeRemote{id: uint32(len(b.created) + 1)}
	b.created = append(b.created, r)
	return r, nil
}

var xrgb = ShmFormat(shmXRGB8888)

func TestFormatFourCC(t *testing.T) {
	tests := []struct {
		format Format
		want   uint32
		alpha  bool
	}{
		{ShmFormat(shmARGB8888), FourCCARGB8888, true},
		{ShmFormat(shmXRGB8888), FourCCXRGB8888, false},
		{ShmFormat(FourCCABGR8888), FourCCABGR8888, true},
		{DmabufFormat(FourCCXBGR8888, ModifierLinear), FourCCXBGR8888, false},
	}

	for _, tt := range tests {
		if got := tt.format.FourCC(); got != tt.want {
			t.Errorf("%v.FourCC() = %#x, want %#x", tt.format, got, tt.want)
		}
		if got := tt.format.HasAlpha(); got != tt.alpha {
			t.Errorf("%v.HasAlpha() = %v, want %v", tt.format, got, tt.alpha)
		}
		if !tt.format.Supported() {
			t.Errorf("%v.Supported() = false", tt.format)
		}
	}

	// RGB565 is a valid wl_shm format frames cannot be read back from
	if ShmFormat(0x36314752).Supported() {
		t.Errorf("16-bit format reported as supported")
	}
}

func TestPoolReusesReleasedBuffers(t *testing.T) {
	binder := &fakeShmBinder{}
	p := NewPool(2, NewShmAllocator(binder))
	defer p.Close()

	a, err := p.Acquire(xrgb, 64, 32)
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	if a.Stride != 256 || len(a.Bytes()) != 256*32 {
		t.Fatalf("buffer stride=%d len=%d, want 256/%d", a.Stride, len(a.Bytes()), 256*32)
	}
	a.Bytes()[0] = 0xff

	p.Release(a)
	b, err := p.Acquire(xrgb, 64, 32)
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	if b != a {
		t.Fatalf("Acquire() after Release() allocated instead of reusing")
	}
	if len(binder.created) != 1 {
		t.Fatalf("binder created %d buffers, want 1", len(binder.created))
	}

	s := p.Stats()
	if s.Allocated != 1 || s.Reused != 1 || s.Owned != 1 || s.Free != 0 {
		t.Fatalf("Stats() = %+v", s)
	}
}

func TestPoolNeverAliases(t *testing.T) {
	p := NewPool(4, NewShmAllocator(&fakeShmBinder{}))
	defer p.Close()

	seen := make(map[*Buffer]bool)
	for i := 0; i < 3; i++ {
		b, err := p.Acquire(xrgb, 16, 16)
		if err != nil {
			t.Fatalf("Acquire() error = %v", err)
		}
		if seen[b] {
			t.Fatalf("Acquire() returned a buffer that is still owned")
		}
		seen[b] = true
	}
}

func TestPoolGeometryIsPartOfTheKey(t *testing.T) {
	p := NewPool(2, NewShmAllocator(&fakeShmBinder{}))
	defer p.Close()

	small, _ := p.Acquire(xrgb, 16, 16)
	p.Release(small)

	big, err := p.Acquire(xrgb, 32, 16)
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	if big == small {
		t.Fatalf("pool reused a buffer of a different size")
	}
	if big.Width != 32 || big.Height != 16 {
		t.Fatalf("buffer is %dx%d, want 32x16", big.Width, big.Height)
	}
}

func TestPoolDestroysSurplus(t *testing.T) {
	binder := &fakeShmBinder{}
	p := NewPool(1, NewShmAllocator(binder))

	a, _ := p.Acquire(xrgb, 8, 8)
	b, _ := p.Acquire(xrgb, 8, 8)
	p.Release(a)
	p.Release(b)

	if !binder.created[1].destroyed {
		t.Errorf("second released buffer kept beyond maxFree")
	}
	if binder.created[0].destroyed {
		t.Errorf("first released buffer destroyed instead of kept")
	}
	if s := p.Stats(); s.Free != 1 || s.Destroyed != 1 {
		t.Errorf("Stats() = %+v, want Free=1 Destroyed=1", s)
	}

	p.Close()
	if !binder.created[0].destroyed {
		t.Errorf("Close() left an idle buffer alive")
	}
}

func TestPoolReleaseIsIdempotent(t *testing.T) {
	p := NewPool(2, NewShmAllocator(&fakeShmBinder{}))
	defer p.Close()

	a, _ := p.Acquire(xrgb, 8, 8)
	p.Release(a)
	p.Release(a)
	p.Release(nil)

	if s := p.Stats(); s.Free != 1 {
		t.Fatalf("double release left %d free buffers, want 1", s.Free)
	}
}

func TestPoolErrors(t *testing.T) {
	p := NewPool(2, NewShmAllocator(&fakeShmBinder{}))

	if _, err := p.Acquire(DmabufFormat(FourCCXRGB8888, ModifierLinear), 8, 8); !errors.Is(err, ErrNoAllocator) {
		t.Errorf("dmabuf Acquire() error = %v, want ErrNoAllocator", err)
	}
	if _, err := p.Acquire(ShmFormat(0x36314752), 8, 8); !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("RGB565 Acquire() error = %v, want ErrUnsupportedFormat", err)
	}
	if _, err := p.Acquire(xrgb, 0, 8); !errors.Is(err, ErrInvalidSize) {
		t.Errorf("zero width Acquire() error = %v, want ErrInvalidSize", err)
	}

	p.Close()
	if _, err := p.Acquire(xrgb, 8, 8); !errors.Is(err, ErrPoolClosed) {
		t.Errorf("Acquire() after Close() error = %v, want ErrPoolClosed", err)
	}
}

func TestPoolAllocationFailure(t *testing.T) {
	boom := errors.New("no memory")
	p := NewPool(2, NewShmAllocator(&fakeShmBinder{fail: boom}))
	defer p.Close()

	if _, err := p.Acquire(xrgb, 8, 8); !errors.Is(err, boom) {
		t.Fatalf("Acquire() error = %v, want wrapped binder error", err)
	}
	if s := p.Stats(); s.Owned != 0 {
		t.Fatalf("failed allocation left %d owned buffers", s.Owned)
	}
}

func TestPoolCapabilities(t *testing.T) {
	p := NewPool(1, NewShmAllocator(&fakeShmBinder{}))
	if !p.HasKind(KindShm) || p.HasKind(KindDmabuf) {
		t.Fatalf("HasKind() mismatch")
	}
	if !p.CanAllocate(xrgb) {
		t.Errorf("CanAllocate(xrgb) = false")
	}
	if p.CanAllocate(DmabufFormat(FourCCXRGB8888, ModifierLinear)) {
		t.Errorf("CanAllocate(dmabuf) = true without a dmabuf allocator")
	}
}

func TestFreeLocalKeepsRemote(t *testing.T) {
	binder := &fakeShmBinder{}
	p := NewPool(1, NewShmAllocator(binder))
	b, err := p.Acquire(xrgb, 16, 16)
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	p.Close()

	if err := b.FreeLocal(); err != nil {
		t.Fatalf("FreeLocal() error = %v", err)
	}
	if b.Bytes() != nil {
		t.Fatalf("Bytes() still mapped after FreeLocal()")
	}
	if binder.created[0].destroyed {
		t.Fatalf("FreeLocal() destroyed the compositor-side buffer")
	}
	if err := b.FreeLocal(); err != nil {
		t.Fatalf("second FreeLocal() error = %v", err)
	}
}
