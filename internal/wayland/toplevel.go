package wayland

import (
	"fmt"

	"github.com/rajveermalviya/go-wayland/wayland/client"

	"github.com/bryanchriswhite/WinPeek/internal/window"
)

// cosmic toplevel state enum values
const (
	cosmicMaximized  = 0
	cosmicMinimized  = 1
	cosmicActivated  = 2
	cosmicFullscreen = 3
	cosmicSticky     = 4
)

// zcosmic_toplevel_manager_v1 capabilities
const (
	capClose    = 1
	capActivate = 2
	capMaximize = 3
	capMinimize = 4
)

var cosmicStates = map[uint32]window.State{
	cosmicMaximized:  window.StateMaximized,
	cosmicMinimized:  window.StateMinimized,
	cosmicActivated:  window.StateActivated,
	cosmicFullscreen: window.StateFullscreen,
	cosmicSticky:     window.StateSticky,
}

// toplevel is one ext_foreign_toplevel_handle_v1 plus its cosmic extension
type toplevel struct {
	client.BaseProxy
	handle window.Handle
	cosmic uint32

	title, appID, identifier string
	pending                  struct{ title, appID, identifier string }

	state      window.State
	outputs    []uint32
	workspaces []uint32
	cpending   struct {
		state      window.State
		outputs    []uint32
		workspaces []uint32
	}

	extDone    bool
	cosmicDone bool
	announced  bool
}

func (t *toplevel) info(c *Client) window.Info {
	info := window.Info{
		Title:      t.title,
		AppID:      t.appID,
		Identifier: t.identifier,
		State:      t.state,
	}
	for _, id := range t.outputs {
		if name := c.outputName(id); name != "" {
			info.Outputs = append(info.Outputs, name)
		}
	}
	for _, id := range t.workspaces {
		if ws, ok := c.workspaces[id]; ok {
			info.Workspaces = append(info.Workspaces, ws.handle)
		}
	}
	return info
}

// publish announces the toplevel once both protocols described it, and
// reports every later change
func (t *toplevel) publish(c *Client) {
	if !t.extDone || (t.cosmic != 0 && !t.cosmicDone) {
		return
	}
	info := t.info(c)
	if !t.announced {
		t.announced = true
		c.handler.ToplevelNew(t.handle, info)
		return
	}
	c.handler.ToplevelChanged(t.handle, info)
}

func (t *toplevel) event(c *Client, opcode uint16, d *args) error {
	switch opcode {
	case 0: // closed
		c.closeToplevel(t)
	case 1: // done
		t.title, t.appID, t.identifier = t.pending.title, t.pending.appID, t.pending.identifier
		t.extDone = true
		t.publish(c)
	case 2:
		t.pending.title = d.String()
	case 3:
		t.pending.appID = d.String()
	case 4:
		t.pending.identifier = d.String()
	default:
		return c.unknownEvent(ifaceToplevelList+" handle", t.ID(), opcode)
	}
	return nil
}

func (c *Client) closeToplevel(t *toplevel) {
	delete(c.toplevels, t.ID())
	if t.cosmic != 0 {
		c.destroy(t.cosmic, 0)
	}
	c.destroy(t.ID(), 0)

	if t.announced {
		c.handler.ToplevelClosed(t.handle)
	}
	c.log.Debug().
		Str("window", t.handle.String()).
		Str("app_id", t.appID).
		Msg("Toplevel closed")
}

// lookup resolves a handle to a live toplevel
func (c *Client) lookup(h window.Handle) (*toplevel, error) {
	t, ok := c.toplevels[h.ID()]
	if !ok || t.handle != h {
		return nil, fmt.Errorf("%w: %s", ErrUnknownWindow, h)
	}
	return t, nil
}

// toplevelList is ext_foreign_toplevel_list_v1
type toplevelList struct {
	client.BaseProxy
}

func (*toplevelList) event(c *Client, opcode uint16, d *args) error {
	switch opcode {
	case 0: // toplevel
		id := d.NewID()
		if d.Err() != nil {
			return nil
		}
		t := &toplevel{handle: window.NewHandle(id, c.nextSerial())}
		c.adopt(id, t)
		c.toplevels[id] = t
		if c.cosmicInfo != 0 {
			t.cosmic = c.register(&cosmicToplevel{top: t})
			req := newRequest(c.cosmicInfo, 1).NewID(t.cosmic).Object(id)
			if err := c.send(req); err != nil {
				return err
			}
		}
	case 1: // finished
		c.log.Info().Msg("Compositor stopped sending toplevels")
	default:
		return c.unknownEvent(ifaceToplevelList, c.toplevelList, opcode)
	}
	return nil
}

// cosmicToplevel is zcosmic_toplevel_handle_v1, extending one toplevel
type cosmicToplevel struct {
	client.BaseProxy
	top *toplevel
}

func (ct *cosmicToplevel) event(c *Client, opcode uint16, d *args) error {
	t := ct.top
	p := &t.cpending
	switch opcode {
	case 0, 2, 3:
		// closed, title and app_id duplicate the ext handle
	case 1: // done
		t.state = p.state
		t.outputs = append([]uint32(nil), p.outputs...)
		t.workspaces = append([]uint32(nil), p.workspaces...)
		t.cosmicDone = true
		t.publish(c)
	case 4: // output_enter
		p.outputs = appendUnique(p.outputs, d.Object())
	case 5: // output_leave
		p.outputs = remove(p.outputs, d.Object())
	case 6, 7:
		// cosmic workspace protocol, superseded by ext_workspace events
	case 8: // state
		var s window.State
		for _, v := range d.Uint32s() {
			s |= cosmicStates[v]
		}
		p.state = s
	case 9: // geometry
	case 10: // ext_workspace_enter
		p.workspaces = appendUnique(p.workspaces, d.Object())
	case 11: // ext_workspace_leave
		p.workspaces = remove(p.workspaces, d.Object())
	default:
		return c.unknownEvent(ifaceCosmicInfo+" handle", t.cosmic, opcode)
	}
	return nil
}

// cosmicManager is zcosmic_toplevel_manager_v1
type cosmicManager struct {
	client.BaseProxy
}

func (*cosmicManager) event(c *Client, opcode uint16, d *args) error {
	if opcode != 0 {
		return c.unknownEvent(ifaceCosmicManager, c.cosmicManager, opcode)
	}
	caps := make(map[uint32]bool)
	for _, v := range d.Uint32s() {
		caps[v] = true
	}
	c.managerCaps = caps
	c.log.Debug().
		Bool("close", caps[capClose]).
		Bool("activate", caps[capActivate]).
		Bool("minimize", caps[capMinimize]).
		Bool("maximize", caps[capMaximize]).
		Msg("Toplevel manager capabilities")
	return nil
}

// windowCommand checks that a manager request can be issued for h
func (c *Client) windowCommand(h window.Handle, capability uint32) (*toplevel, error) {
	if c.cosmicManager == 0 {
		return nil, fmt.Errorf("%w: %s", ErrUnsupported, ifaceCosmicManager)
	}
	if c.managerCaps != nil && !c.managerCaps[capability] {
		return nil, fmt.Errorf("%w: capability %d", ErrUnsupported, capability)
	}
	t, err := c.lookup(h)
	if err != nil {
		return nil, err
	}
	if t.cosmic == 0 {
		return nil, fmt.Errorf("%w: %s", ErrUnsupported, ifaceCosmicInfo)
	}
	return t, nil
}

// ActivateWindow asks the compositor to focus h on the first seat
func (c *Client) ActivateWindow(h window.Handle) error {
	t, err := c.windowCommand(h, capActivate)
	if err != nil {
		return err
	}
	seat := c.firstSeat()
	if seat == 0 {
		return ErrNoSeat
	}
	return c.send(newRequest(c.cosmicManager, 2).Object(t.cosmic).Object(seat))
}

// MinimizeWindow asks the compositor to minimize h
func (c *Client) MinimizeWindow(h window.Handle) error {
	t, err := c.windowCommand(h, capMinimize)
	if err != nil {
		return err
	}
	return c.send(newRequest(c.cosmicManager, 5).Object(t.cosmic))
}

// CloseWindow asks the client owning h to close it
func (c *Client) CloseWindow(h window.Handle) error {
	t, err := c.windowCommand(h, capClose)
	if err != nil {
		return err
	}
	return c.send(newRequest(c.cosmicManager, 1).Object(t.cosmic))
}

func appendUnique(ids []uint32, id uint32) []uint32 {
	for _, v := range ids {
		if v == id {
			return ids
		}
	}
	return append(ids, id)
}

func remove(ids []uint32, id uint32) []uint32 {
	out := ids[:0]
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}
