package wayland

import (
	"errors"

	"github.com/rajveermalviya/go-wayland/wayland/client"
	"golang.org/x/sys/unix"
)

var (
	errShortMessage = errors.New("wayland: message shorter than its arguments")
	errBadString    = errors.New("wayland: string argument not terminated")
)

// message is one event as read off the connection
type message struct {
	sender uint32
	opcode uint16
	fd     int
	data   []byte
}

// request is an outgoing message for an object WinPeek binds by hand,
// laid out the way the generated bindings lay out theirs.
type request struct {
	sender uint32
	opcode uint16
	args   []byte
	oob    []byte
}

func newRequest(sender uint32, opcode uint16) *request {
	return &request{sender: sender, opcode: opcode}
}

func (r *request) Uint(v uint32) *request {
	n := len(r.args)
	r.args = append(r.args, 0, 0, 0, 0)
	client.PutUint32(r.args[n:], v)
	return r
}

func (r *request) Int(v int32) *request      { return r.Uint(uint32(v)) }
func (r *request) Object(id uint32) *request { return r.Uint(id) }
func (r *request) NewID(id uint32) *request  { return r.Uint(id) }
func (r *request) Array(b []byte) *request   { return r.bytes(b, len(b)) }
func (r *request) String(s string) *request  { return r.bytes([]byte(s), len(s)+1) }
func (r *request) FD(fd int) *request        { r.oob = unix.UnixRights(fd); return r }

// bytes appends a length-prefixed, padded argument
func (r *request) bytes(b []byte, length int) *request {
	r.Uint(uint32(length))
	n := len(r.args)
	r.args = append(r.args, make([]byte, client.PaddedLen(length))...)
	copy(r.args[n:], b)
	return r
}

func (r *request) encode() []byte {
	size := 8 + len(r.args)
	b := make([]byte, size)
	client.PutUint32(b[0:4], r.sender)
	client.PutUint32(b[4:8], uint32(size)<<16|uint32(r.opcode))
	copy(b[8:], r.args)
	return b
}

// args decodes event arguments in order. The first error sticks and every
// later read returns a zero value.
type args struct {
	data []byte
	err  error
}

func newArgs(data []byte) *args { return &args{data: data} }

func (a *args) take(n int) []byte {
	if a.err != nil {
		return nil
	}
	if n > len(a.data) {
		a.err = errShortMessage
		return nil
	}
	b := a.data[:n]
	a.data = a.data[n:]
	return b
}

func (a *args) Uint() uint32 {
	b := a.take(4)
	if b == nil {
		return 0
	}
	return client.Uint32(b)
}

func (a *args) Int() int32     { return int32(a.Uint()) }
func (a *args) Object() uint32 { return a.Uint() }
func (a *args) NewID() uint32  { return a.Uint() }

func (a *args) String() string {
	n := int(a.Uint())
	if n == 0 {
		return ""
	}
	b := a.take(client.PaddedLen(n))
	if b == nil {
		return ""
	}
	if b[n-1] != 0 {
		a.err = errBadString
		return ""
	}
	return client.String(b)
}

func (a *args) Array() []byte {
	n := int(a.Uint())
	b := a.take(client.PaddedLen(n))
	if b == nil {
		return nil
	}
	return append([]byte(nil), b[:n]...)
}

// Uint32s reads an array of native-endian 32-bit values
func (a *args) Uint32s() []uint32 {
	raw := a.Array()
	out := make([]uint32, 0, len(raw)/4)
	for i := 0; i+4 <= len(raw); i += 4 {
		out = append(out, client.Uint32(raw[i:i+4]))
	}
	return out
}

func (a *args) Err() error { return a.err }
