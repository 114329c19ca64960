package wayland

import (
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/sys/unix"
)

// maxPassedFDs bounds the descriptors one message may carry (libwayland's limit)
const maxPassedFDs = 28

// relay exposes an inherited compositor descriptor on a private socket path,
// since client.Connect can only dial. Bytes and passed descriptors are
// copied unchanged in both directions for the one client that connects.
type relay struct {
	dir      string
	path     string
	listener *net.UnixListener
	upstream *net.UnixConn
	done     chan struct{}
	once     sync.Once
}

func newRelay(fd int) (*relay, error) {
	f := os.NewFile(uintptr(fd), "wayland-socket")
	fc, err := net.FileConn(f)
	f.Close()
	if err != nil {
		return nil, fmt.Errorf("invalid compositor descriptor %d: %w", fd, err)
	}
	up, ok := fc.(*net.UnixConn)
	if !ok {
		fc.Close()
		return nil, fmt.Errorf("compositor descriptor %d is not a unix socket", fd)
	}

	dir, err := os.MkdirTemp("", "winpeek-")
	if err != nil {
		up.Close()
		return nil, fmt.Errorf("failed to create relay directory: %w", err)
	}
	path := filepath.Join(dir, "wayland")
	ln, err := net.ListenUnix("unix", &net.UnixAddr{Name: path, Net: "unix"})
	if err != nil {
		up.Close()
		os.RemoveAll(dir)
		return nil, fmt.Errorf("failed to listen on %s: %w", path, err)
	}

	r := &relay{dir: dir, path: path, listener: ln, upstream: up, done: make(chan struct{})}
	go r.serve()
	return r, nil
}

func (r *relay) serve() {
	defer close(r.done)
	down, err := r.listener.AcceptUnix()
	r.listener.Close()
	if err != nil {
		return
	}

	var wg sync.WaitGroup
	wg.Add(2)
	pipe := func(dst, src *net.UnixConn) {
		defer wg.Done()
		copyMessages(dst, src)
		// either side hanging up ends the session
		down.Close()
		r.upstream.Close()
	}
	go pipe(r.upstream, down)
	go pipe(down, r.upstream)
	wg.Wait()
}

// Close stops relaying and removes the socket
func (r *relay) Close() {
	r.once.Do(func() {
		r.listener.Close()
		r.upstream.Close()
		<-r.done
		os.RemoveAll(r.dir)
	})
}

func copyMessages(dst, src *net.UnixConn) error {
	buf := make([]byte, 4096)
	oob := make([]byte, unix.CmsgSpace(maxPassedFDs*4))
	for {
		n, oobn, _, _, err := src.ReadMsgUnix(buf, oob)
		if err != nil {
			return err
		}
		if n == 0 && oobn == 0 {
			return io.EOF
		}

		fds, err := passedFDs(oob[:oobn])
		if err != nil {
			return err
		}
		var rights []byte
		if len(fds) > 0 {
			rights = unix.UnixRights(fds...)
		}
		_, _, err = dst.WriteMsgUnix(buf[:n], rights, nil)
		for _, fd := range fds {
			unix.Close(fd)
		}
		if err != nil {
			return err
		}
	}
}

func passedFDs(oob []byte) ([]int, error) {
	if len(oob) == 0 {
		return nil, nil
	}
	msgs, err := unix.ParseSocketControlMessage(oob)
	if err != nil {
		return nil, fmt.Errorf("failed to parse control message: %w", err)
	}
	var fds []int
	for i := range msgs {
		rights, err := unix.ParseUnixRights(&msgs[i])
		if err != nil {
			continue
		}
		fds = append(fds, rights...)
	}
	return fds, nil
}
