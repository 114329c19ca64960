package window

import "strings"

// State is a set of toplevel state flags
type State uint8

const (
	StateMaximized State = 1 << iota
	StateMinimized
	StateActivated
	StateFullscreen
	StateSticky
)

var stateNames = []struct {
	flag State
	name string
}{
	{StateMaximized, "maximized"},
	{StateMinimized, "minimized"},
	{StateActivated, "activated"},
	{StateFullscreen, "fullscreen"},
	{StateSticky, "sticky"},
}

// Has reports whether all flags in f are set
func (s State) Has(f State) bool { return s&f == f }

func (s State) String() string {
	if s == 0 {
		return "normal"
	}
	parts := make([]string, 0, len(stateNames))
	for _, n := range stateNames {
		if s.Has(n.flag) {
			parts = append(parts, n.name)
		}
	}
	return strings.Join(parts, "|")
}

// Info describes a toplevel as last reported by the compositor.
// It is always replaced as a whole; fields are never merged across updates.
type Info struct {
	Title      string            `json:"title" yaml:"title"`
	AppID      string            `json:"app_id" yaml:"app_id"`
	Identifier string            `json:"identifier" yaml:"identifier"`
	State      State             `json:"state" yaml:"state"`
	Outputs    []string          `json:"outputs,omitempty" yaml:"outputs,omitempty"`
	Workspaces []WorkspaceHandle `json:"-" yaml:"-"`
}

// Clone returns a deep copy of the info
func (i Info) Clone() Info {
	c := i
	if i.Outputs != nil {
		c.Outputs = append([]string(nil), i.Outputs...)
	}
	if i.Workspaces != nil {
		c.Workspaces = append([]WorkspaceHandle(nil), i.Workspaces...)
	}
	return c
}

// Workspace describes a workspace as last reported by the compositor
type Workspace struct {
	Handle WorkspaceHandle `json:"-"`
	ID     string          `json:"id"`
	Name   string          `json:"name"`
}
