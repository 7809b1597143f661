package wl

import (
	"deedles.dev/shoji/wire"
)

const (
	CompositorInterface = "wl_compositor"
	CompositorVersion   = 6
)

const (
	compositorRequestCreateSurface uint16 = iota
	compositorRequestCreateRegion
)

// Compositor is a client's wl_compositor, the factory for surfaces
// and regions.
type Compositor struct {
	object
}

// AddCompositor advertises the wl_compositor global.
func (server *Server) AddCompositor() *Global {
	return server.AddGlobal(CompositorInterface, CompositorVersion, func(client *Client, id wire.NewID) error {
		c := &Compositor{object: object{version: id.Version, client: client}}
		if err := client.store.AddClient(id.ID, c); err != nil {
			return protoErr(client.Display(), DisplayErrorInvalidObject, "bind wl_compositor: %v", err)
		}
		return nil
	})
}

func (c *Compositor) Interface() string {
	return CompositorInterface
}

func (c *Compositor) MethodName(op uint16) string {
	switch op {
	case compositorRequestCreateSurface:
		return "create_surface"
	case compositorRequestCreateRegion:
		return "create_region"
	}
	return "unknown"
}

func (c *Compositor) Dispatch(msg *wire.MessageBuffer) error {
	switch msg.Op() {
	case compositorRequestCreateSurface:
		id := msg.ReadUint()
		if err := msg.Err(); err != nil {
			return err
		}
		s := newSurface(c.client, c.version)
		if err := c.client.store.AddClient(id, s); err != nil {
			return protoErr(c, DisplayErrorInvalidObject, "create_surface: %v", err)
		}
		return nil

	case compositorRequestCreateRegion:
		id := msg.ReadUint()
		if err := msg.Err(); err != nil {
			return err
		}
		region := &Region{object: object{version: RegionVersion, client: c.client}}
		if err := c.client.store.AddClient(id, region); err != nil {
			return protoErr(c, DisplayErrorInvalidObject, "create_region: %v", err)
		}
		return nil

	default:
		return wire.UnknownOpError{Interface: CompositorInterface, Type: "request", Op: msg.Op()}
	}
}
