package window

import "fmt"

// Handle identifies one toplevel known to the compositor.
//
// The protocol object id alone is not enough: the compositor recycles ids
// once an object is destroyed, so every handle also carries a serial that is
// unique for the lifetime of the process. Two handles are equal only if both
// fields match, which keeps a closed window from aliasing a new one that
// happens to reuse its object id.
type Handle struct {
	id     uint32
	serial uint64
}

// NewHandle builds a handle from a protocol object id and a process-unique serial
func NewHandle(id uint32, serial uint64) Handle {
	return Handle{id: id, serial: serial}
}

// ID returns the protocol object id the handle was created from
func (h Handle) ID() uint32 { return h.id }

// Serial returns the process-unique serial of the handle
func (h Handle) Serial() uint64 { return h.serial }

// IsZero reports whether h is the zero handle
func (h Handle) IsZero() bool { return h == Handle{} }

func (h Handle) String() string {
	return fmt.Sprintf("toplevel#%d.%d", h.id, h.serial)
}

// WorkspaceHandle identifies one workspace known to the compositor.
// It follows the same id+serial scheme as Handle.
type WorkspaceHandle struct {
	id     uint32
	serial uint64
}

// NewWorkspaceHandle builds a workspace handle from a protocol object id and a serial
func NewWorkspaceHandle(id uint32, serial uint64) WorkspaceHandle {
	return WorkspaceHandle{id: id, serial: serial}
}

// ID returns the protocol object id the handle was created from
func (w WorkspaceHandle) ID() uint32 { return w.id }

// IsZero reports whether w is the zero handle
func (w WorkspaceHandle) IsZero() bool { return w == WorkspaceHandle{} }

func (w WorkspaceHandle) String() string {
	return fmt.Sprintf("workspace#%d.%d", w.id, w.serial)
}
