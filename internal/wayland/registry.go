package wayland

import (
	"github.com/rajveermalviya/go-wayland/wayland/client"
)

// Interface names of the globals the client binds
const (
	ifaceShm              = "wl_shm"
	ifaceSeat             = "wl_seat"
	ifaceOutput           = "wl_output"
	ifaceDmabuf           = "zwp_linux_dmabuf_v1"
	ifaceToplevelList     = "ext_foreign_toplevel_list_v1"
	ifaceCosmicInfo       = "zcosmic_toplevel_info_v1"
	ifaceCosmicManager    = "zcosmic_toplevel_manager_v1"
	ifaceWorkspaceManager = "ext_workspace_manager_v1"
	ifaceSourceManager    = "ext_foreign_toplevel_image_capture_source_manager_v1"
	ifaceCopyManager      = "ext_image_copy_capture_manager_v1"
	ifaceActivation       = "xdg_activation_v1"
)

type boundGlobal struct {
	iface string
	id    uint32
}

// globals holds the bound singletons. Hand-bound ones are kept by id;
// 0 or nil means not advertised.
type globals struct {
	registry *client.Registry

	shm              *client.Shm
	dmabuf           uint32
	dmabufVersion    uint32
	toplevelList     uint32
	cosmicInfo       uint32
	cosmicManager    uint32
	managerCaps      map[uint32]bool
	workspaceManager uint32
	sourceManager    uint32
	copyManager      uint32
	activation       uint32

	seats   []*client.Seat
	outputs map[uint32]*output

	// by registry name, for global_remove
	bound map[uint32]boundGlobal
}

func (g *globals) init() {
	g.outputs = make(map[uint32]*output)
	g.bound = make(map[uint32]boundGlobal)
}

// bind asks the registry to bind p, which must already hold its id
func (c *Client) bind(name uint32, iface string, version uint32, p client.Proxy) uint32 {
	if err := c.fail(c.registry.Bind(name, iface, version, p)); err != nil {
		c.log.Warn().Err(err).Str("interface", iface).Msg("Failed to bind global")
	}
	c.bound[name] = boundGlobal{iface: iface, id: p.ID()}

	c.log.Debug().
		Str("interface", iface).
		Uint32("version", version).
		Uint32("id", p.ID()).
		Msg("Bound global")
	return p.ID()
}

// bindObject binds a global that has no generated proxy
func (c *Client) bindObject(name uint32, iface string, version uint32, o object) uint32 {
	c.register(o)
	return c.bind(name, iface, version, o)
}

func (c *Client) global(name uint32, iface string, version uint32) {
	switch iface {
	case ifaceShm:
		if c.shm == nil {
			c.shm = client.NewShm(c.ctx)
			c.bind(name, iface, 1, c.shm)
		}
	case ifaceSeat:
		seat := client.NewSeat(c.ctx)
		c.bind(name, iface, 1, seat)
		c.seats = append(c.seats, seat)
	case ifaceOutput:
		o := &output{wl: client.NewOutput(c.ctx), version: min(version, 4)}
		o.wl.SetNameHandler(func(e client.OutputNameEvent) { o.name = e.Name })
		c.outputs[c.bind(name, iface, o.version, o.wl)] = o
	case ifaceDmabuf:
		// create_immed needs version 2
		if c.dmabuf == 0 && version >= 2 {
			c.dmabufVersion = min(version, 3)
			c.dmabuf = c.bindObject(name, iface, c.dmabufVersion, &ignored{iface: iface})
		}
	case ifaceToplevelList:
		if c.toplevelList == 0 {
			c.toplevelList = c.bindObject(name, iface, 1, &toplevelList{})
		}
	case ifaceCosmicInfo:
		// get_cosmic_toplevel arrived in version 2
		if c.cosmicInfo == 0 && version >= 2 {
			c.cosmicInfo = c.bindObject(name, iface, min(version, 3), &ignored{iface: iface})
		}
	case ifaceCosmicManager:
		if c.cosmicManager == 0 {
			c.cosmicManager = c.bindObject(name, iface, min(version, 2), &cosmicManager{})
		}
	case ifaceWorkspaceManager:
		if c.workspaceManager == 0 {
			c.workspaceManager = c.bindObject(name, iface, 1, &workspaceManager{})
		}
	case ifaceSourceManager:
		if c.sourceManager == 0 {
			c.sourceManager = c.bindObject(name, iface, 1, &ignored{iface: iface})
		}
	case ifaceCopyManager:
		if c.copyManager == 0 {
			c.copyManager = c.bindObject(name, iface, 1, &ignored{iface: iface})
		}
	case ifaceActivation:
		if c.activation == 0 {
			c.activation = c.bindObject(name, iface, 1, &ignored{iface: iface})
		}
	}
}

func (c *Client) globalRemove(name uint32) {
	g, ok := c.bound[name]
	if !ok {
		return
	}
	delete(c.bound, name)

	switch g.iface {
	case ifaceOutput:
		o := c.outputs[g.id]
		delete(c.outputs, g.id)
		if o == nil {
			return
		}
		if o.version >= 3 {
			if err := c.fail(o.wl.Release()); err != nil {
				c.log.Debug().Err(err).Msg("Failed to release output")
			}
		} else {
			c.ctx.Unregister(o.wl)
		}
	case ifaceSeat:
		for i, seat := range c.seats {
			if seat.ID() == g.id {
				c.seats = append(c.seats[:i], c.seats[i+1:]...)
				c.ctx.Unregister(seat)
				break
			}
		}
	default:
		c.log.Warn().Str("interface", g.iface).Msg("Compositor removed a global in use")
	}
}

func (c *Client) logMissingGlobals() {
	missing := map[string]bool{
		ifaceShm:              c.shm == nil,
		ifaceToplevelList:     c.toplevelList == 0,
		ifaceCosmicInfo:       c.cosmicInfo == 0,
		ifaceCosmicManager:    c.cosmicManager == 0,
		ifaceWorkspaceManager: c.workspaceManager == 0,
		ifaceSourceManager:    c.sourceManager == 0,
		ifaceCopyManager:      c.copyManager == 0,
		ifaceActivation:       c.activation == 0,
		ifaceDmabuf:           c.dmabuf == 0,
	}
	for iface, absent := range missing {
		if absent {
			c.log.Info().Str("interface", iface).Msg("Compositor does not offer global, feature disabled")
		}
	}
	if len(c.seats) == 0 {
		c.log.Info().Msg("Compositor advertised no seat")
	}
}

func (c *Client) firstSeat() uint32 {
	if len(c.seats) == 0 {
		return 0
	}
	return c.seats[0].ID()
}

// ignored is a hand-bound object whose events carry nothing WinPeek uses
type ignored struct {
	client.BaseProxy
	iface string
}

func (*ignored) event(*Client, uint16, *args) error { return nil }

// output tracks a wl_output's connector name
type output struct {
	wl      *client.Output
	version uint32
	name    string
}

func (c *Client) outputName(id uint32) string {
	if o, ok := c.outputs[id]; ok && o.name != "" {
		return o.name
	}
	return ""
}
