package wayland

import (
	"fmt"

	"github.com/rajveermalviya/go-wayland/wayland/client"

	"github.com/bryanchriswhite/WinPeek/internal/buffer"
)

// wlBuffer adapts a wl_buffer proxy to buffer.Remote
type wlBuffer struct {
	client *Client
	buf    *client.Buffer
}

func (b *wlBuffer) ID() uint32 { return b.buf.ID() }

// Destroy releases the compositor side of the buffer
func (b *wlBuffer) Destroy() {
	if err := b.client.fail(b.buf.Destroy()); err != nil {
		b.client.log.Debug().Err(err).Uint32("object", b.buf.ID()).Msg("Failed to destroy buffer")
	}
}

// CreateShmBuffer registers shared memory as a wl_buffer through a
// single-use wl_shm_pool
func (c *Client) CreateShmBuffer(fd int, size, width, height, stride int32, format uint32) (buffer.Remote, error) {
	if c.shm == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnsupported, ifaceShm)
	}

	pool, err := c.shm.CreatePool(fd, size)
	if err != nil {
		return nil, fmt.Errorf("failed to create shm pool: %w", c.fail(err))
	}
	defer func() {
		if err := c.fail(pool.Destroy()); err != nil {
			c.log.Debug().Err(err).Msg("Failed to destroy shm pool")
		}
	}()

	buf, err := pool.CreateBuffer(0, width, height, stride, format)
	if err != nil {
		return nil, fmt.Errorf("failed to create shm buffer: %w", c.fail(err))
	}
	return &wlBuffer{client: c, buf: buf}, nil
}

// CreateDmabufBuffer imports a single-plane dmabuf as a wl_buffer
func (c *Client) CreateDmabufBuffer(fd int, width, height, stride int32, fourcc uint32, modifier uint64) (buffer.Remote, error) {
	if c.dmabuf == 0 {
		return nil, fmt.Errorf("%w: %s", ErrUnsupported, ifaceDmabuf)
	}

	params := c.register(&ignored{iface: "zwp_linux_buffer_params_v1"})
	if err := c.send(newRequest(c.dmabuf, 1).NewID(params)); err != nil {
		c.retire(params)
		return nil, fmt.Errorf("failed to create dmabuf params: %w", err)
	}
	defer c.destroy(params, 0)

	add := newRequest(params, 1).
		FD(fd).
		Uint(0). // plane
		Uint(0). // offset
		Uint(uint32(stride)).
		Uint(uint32(modifier >> 32)).
		Uint(uint32(modifier))
	if err := c.send(add); err != nil {
		return nil, fmt.Errorf("failed to add dmabuf plane: %w", err)
	}

	buf := client.NewBuffer(c.ctx)
	req := newRequest(params, 3).NewID(buf.ID()).Int(width).Int(height).Uint(fourcc).Uint(0)
	if err := c.send(req); err != nil {
		c.ctx.Unregister(buf)
		return nil, fmt.Errorf("failed to import dmabuf: %w", err)
	}
	return &wlBuffer{client: c, buf: buf}, nil
}

// Allocators returns the buffer allocators the compositor supports. The
// dmabuf allocator is opened whenever the compositor offers
// zwp_linux_dmabuf_v1 and the udmabuf device can be opened.
func (c *Client) Allocators() []buffer.Allocator {
	var out []buffer.Allocator
	if c.shm != nil {
		out = append(out, buffer.NewShmAllocator(c))
	}
	if c.dmabuf == 0 {
		return out
	}
	if c.dmabufs == nil {
		a, err := buffer.OpenDmabufAllocator(c, c.udmabufPath)
		if err != nil {
			c.log.Info().Err(err).Msg("Dmabuf capture unavailable, using shared memory")
			return out
		}
		c.dmabufs = a
	}
	return append(out, c.dmabufs)
}
