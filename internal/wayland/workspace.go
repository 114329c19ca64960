package wayland

import (
	"github.com/rajveermalviya/go-wayland/wayland/client"

	"github.com/bryanchriswhite/WinPeek/internal/window"
)

const workspaceActive = 1

// workspace is ext_workspace_handle_v1. Properties apply on the manager's done.
type workspace struct {
	client.BaseProxy
	handle window.WorkspaceHandle

	wsID, name, pendingID, pendingName string
	state, pendingState                uint32
}

func (w *workspace) info() window.Workspace {
	return window.Workspace{Handle: w.handle, ID: w.wsID, Name: w.name}
}

func (w *workspace) event(c *Client, opcode uint16, d *args) error {
	switch opcode {
	case 0:
		w.pendingID = d.String()
	case 1:
		w.pendingName = d.String()
	case 2, 4:
		// coordinates, capabilities
	case 3:
		w.pendingState = d.Uint()
	case 5: // removed
		c.removeWorkspace(w)
	default:
		return c.unknownEvent(ifaceWorkspaceManager+" workspace", w.ID(), opcode)
	}
	return nil
}

func (c *Client) removeWorkspace(w *workspace) {
	delete(c.workspaces, w.ID())
	for i, id := range c.wsOrder {
		if id == w.ID() {
			c.wsOrder = append(c.wsOrder[:i], c.wsOrder[i+1:]...)
			break
		}
	}
	c.destroy(w.ID(), 0)
}

// workspaceGroup is ext_workspace_group_handle_v1
type workspaceGroup struct {
	client.BaseProxy
}

func (g *workspaceGroup) event(c *Client, opcode uint16, d *args) error {
	if opcode == 5 { // removed
		c.destroy(g.ID(), 1)
	}
	return nil
}

// workspaceManager is ext_workspace_manager_v1
type workspaceManager struct {
	client.BaseProxy
}

func (*workspaceManager) event(c *Client, opcode uint16, d *args) error {
	switch opcode {
	case 0: // workspace_group
		id := d.NewID()
		if d.Err() == nil {
			c.adopt(id, &workspaceGroup{})
		}
	case 1: // workspace
		id := d.NewID()
		if d.Err() == nil {
			w := &workspace{handle: window.NewWorkspaceHandle(id, c.nextSerial())}
			c.adopt(id, w)
			c.workspaces[id] = w
			c.wsOrder = append(c.wsOrder, id)
		}
	case 2: // done
		c.workspacesDone()
	case 3: // finished
		c.log.Info().Msg("Compositor stopped sending workspaces")
	default:
		return c.unknownEvent(ifaceWorkspaceManager, c.workspaceManager, opcode)
	}
	return nil
}

// workspacesDone applies pending workspace state and reports the active
// workspace when it changed
func (c *Client) workspacesDone() {
	var active *workspace
	for _, id := range c.wsOrder {
		w := c.workspaces[id]
		w.wsID, w.name, w.state = w.pendingID, w.pendingName, w.pendingState
		if active == nil && w.state&workspaceActive != 0 {
			active = w
		}
	}
	if active == nil || active.handle == c.active {
		return
	}
	c.active = active.handle
	c.log.Debug().
		Str("workspace", active.handle.String()).
		Str("name", active.name).
		Msg("Active workspace changed")
	c.handler.WorkspaceActivated(active.info())
}
