package wl

import (
	"deedles.dev/shoji/internal/set"
	"deedles.dev/shoji/wire"
)

const (
	WmBaseInterface = "xdg_wm_base"
	WmBaseVersion   = 6
)

const (
	wmBaseRequestDestroy uint16 = iota
	wmBaseRequestCreatePositioner
	wmBaseRequestGetXdgSurface
	wmBaseRequestPong
)

const (
	wmBaseEventPing uint16 = iota
)

// xdg_wm_base error codes.
const (
	WmBaseErrorRole uint32 = iota
	WmBaseErrorDefunctSurfaces
	WmBaseErrorNotTheTopmostPopup
	WmBaseErrorInvalidPopupParent
	WmBaseErrorInvalidSurfaceState
	WmBaseErrorInvalidPositioner
	WmBaseErrorUnresponsive
)

// WmBase is a client's xdg_wm_base, the entry point to desktop-style
// window roles.
type WmBase struct {
	object
	surfaces int
	pings    set.Set[uint32]
}

// AddWmBase advertises the xdg_wm_base global.
func (server *Server) AddWmBase() *Global {
	return server.AddGlobal(WmBaseInterface, WmBaseVersion, func(client *Client, id wire.NewID) error {
		wm := &WmBase{
			object: object{version: id.Version, client: client},
			pings:  make(set.Set[uint32]),
		}
		if err := client.store.AddClient(id.ID, wm); err != nil {
			return protoErr(client.Display(), DisplayErrorInvalidObject, "bind xdg_wm_base: %v", err)
		}
		return nil
	})
}

func (wm *WmBase) Interface() string {
	return WmBaseInterface
}

func (wm *WmBase) MethodName(op uint16) string {
	switch op {
	case wmBaseRequestDestroy:
		return "destroy"
	case wmBaseRequestCreatePositioner:
		return "create_positioner"
	case wmBaseRequestGetXdgSurface:
		return "get_xdg_surface"
	case wmBaseRequestPong:
		return "pong"
	}
	return "unknown"
}

func (wm *WmBase) Dispatch(msg *wire.MessageBuffer) error {
	switch msg.Op() {
	case wmBaseRequestDestroy:
		if err := msg.Err(); err != nil {
			return err
		}
		if wm.surfaces > 0 {
			return protoErr(wm, WmBaseErrorDefunctSurfaces, "destroy with %v xdg_surfaces still alive", wm.surfaces)
		}
		wm.client.destroy(wm)
		return nil

	case wmBaseRequestCreatePositioner:
		id := msg.ReadUint()
		if err := msg.Err(); err != nil {
			return err
		}
		p := &Positioner{object: object{version: wm.version, client: wm.client}}
		if err := wm.client.store.AddClient(id, p); err != nil {
			return protoErr(wm, DisplayErrorInvalidObject, "create_positioner: %v", err)
		}
		return nil

	case wmBaseRequestGetXdgSurface:
		id := msg.ReadUint()
		surfaceID := msg.ReadUint()
		if err := msg.Err(); err != nil {
			return err
		}
		return wm.getXdgSurface(id, surfaceID)

	case wmBaseRequestPong:
		serial := msg.ReadUint()
		if err := msg.Err(); err != nil {
			return err
		}
		wm.pings.Delete(serial)
		return nil

	default:
		return wire.UnknownOpError{Interface: WmBaseInterface, Type: "request", Op: msg.Op()}
	}
}

func (wm *WmBase) getXdgSurface(id, surfaceID uint32) error {
	s, ok := wm.client.Get(surfaceID).(*Surface)
	if !ok {
		return protoErr(wm, DisplayErrorInvalidObject, "get_xdg_surface: %v is not a wl_surface", surfaceID)
	}
	if s.shellID != 0 && wm.client.Get(s.shellID) != nil {
		return protoErr(wm, WmBaseErrorRole, "surface already has an xdg_surface")
	}
	if s.pending.bufferSet || s.current.buffer != nil {
		return protoErr(wm, WmBaseErrorInvalidSurfaceState, "get_xdg_surface on a surface with a buffer")
	}

	xdg := &XdgSurface{
		object:  object{version: wm.version, client: wm.client},
		wm:      wm,
		surface: s,
	}
	if err := wm.client.store.AddClient(id, xdg); err != nil {
		return protoErr(wm, DisplayErrorInvalidObject, "get_xdg_surface: %v", err)
	}
	s.shellID = id
	wm.surfaces++
	return nil
}

// Ping checks that the client is still responsive. The compositor
// pairs it with Responsive to decide whether to mark the client
// unresponsive. Ping takes the server's shared-state lock and must not
// be called from listener hooks, which already hold it.
func (wm *WmBase) Ping() uint32 {
	serial := wm.client.server.NextSerial()

	wm.client.server.mu.Lock()
	wm.pings.Add(serial)
	wm.client.server.mu.Unlock()

	msg := wire.NewMessage(wm, wmBaseEventPing)
	msg.Method = "ping"
	msg.Args = []any{serial}
	msg.WriteUint(serial)
	wm.client.Enqueue(msg)
	return serial
}

// Responsive reports whether every ping sent so far has been answered.
func (wm *WmBase) Responsive() bool {
	wm.client.server.mu.Lock()
	defer wm.client.server.mu.Unlock()
	return len(wm.pings) == 0
}
