package wl

import (
	"image"

	"deedles.dev/shoji/wire"
)

const (
	XdgSurfaceInterface = "xdg_surface"
)

const (
	xdgSurfaceRequestDestroy uint16 = iota
	xdgSurfaceRequestGetToplevel
	xdgSurfaceRequestGetPopup
	xdgSurfaceRequestSetWindowGeometry
	xdgSurfaceRequestAckConfigure
)

const (
	xdgSurfaceEventConfigure uint16 = iota
)

// xdg_surface error codes.
const (
	XdgSurfaceErrorNotConstructed uint32 = iota + 1
	XdgSurfaceErrorAlreadyConstructed
	XdgSurfaceErrorUnconfiguredBuffer
	XdgSurfaceErrorInvalidSerial
	XdgSurfaceErrorInvalidSize
	XdgSurfaceErrorDefunctRoleObject
)

type configureState int

const (
	stateUnconfigured configureState = iota
	stateConfigurePending
	stateAcked
	stateMapped
)

// configureTracker drives the configure/ack/commit handshake shared
// by every shell role. A surface may not map a buffer before it has
// acknowledged a configure, and once acknowledged, the next buffer
// must honor any size the configure named.
type configureTracker struct {
	state configureState

	// lastSent is the serial of the most recent configure. Only it may
	// be acknowledged; an earlier one is superseded, a later one was
	// never issued.
	lastSent  uint32
	sentSize  image.Point
	ackedSize image.Point
}

// sent records a configure going out. The first one moves an
// unconfigured surface into the pending state; later ones merely
// supersede the outstanding serial.
func (t *configureTracker) sent(serial uint32, size image.Point) {
	t.lastSent = serial
	t.sentSize = size
	if t.state == stateUnconfigured {
		t.state = stateConfigurePending
	}
}

func (t *configureTracker) ack(obj wire.Object, serial uint32) error {
	if t.state == stateUnconfigured {
		return protoErr(obj, XdgSurfaceErrorInvalidSerial, "ack_configure before any configure")
	}
	if serial != t.lastSent {
		return protoErr(obj, XdgSurfaceErrorInvalidSerial, "ack_configure: serial %v is not the latest configure (%v)", serial, t.lastSent)
	}
	t.ackedSize = t.sentSize
	if t.state == stateConfigurePending {
		t.state = stateAcked
	}
	return nil
}

// check validates a commit against the handshake: no buffer before an
// acknowledged configure, and no buffer whose size contradicts the
// acknowledged one. Sizes are compared in surface-local coordinates.
func (t *configureTracker) check(obj wire.Object, buf *Buffer, scale int32) error {
	if buf == nil {
		return nil
	}
	if t.state < stateAcked {
		return protoErr(obj, XdgSurfaceErrorUnconfiguredBuffer, "buffer committed before configure was acknowledged")
	}

	size := buf.Size().Div(int(scale))
	if t.ackedSize.X != 0 && size.X != t.ackedSize.X {
		return protoErr(obj, XdgSurfaceErrorInvalidSize, "buffer width %v does not match configured width %v", size.X, t.ackedSize.X)
	}
	if t.ackedSize.Y != 0 && size.Y != t.ackedSize.Y {
		return protoErr(obj, XdgSurfaceErrorInvalidSize, "buffer height %v does not match configured height %v", size.Y, t.ackedSize.Y)
	}
	return nil
}

// committed advances the handshake after a commit has been applied.
// Committing a null buffer unmaps the surface, which must then go
// through a fresh configure sequence before mapping again.
func (t *configureTracker) committed(hasBuffer bool) (unmapped bool) {
	if hasBuffer {
		t.state = stateMapped
		return false
	}
	if t.state == stateMapped {
		t.state = stateUnconfigured
		t.ackedSize = image.Point{}
		return true
	}
	return false
}

func (t *configureTracker) mapped() bool {
	return t.state == stateMapped
}

// XdgSurface is the shell extension of a wl_surface. It mediates the
// configure handshake for whichever role object is created from it.
type XdgSurface struct {
	object
	wm      *WmBase
	surface *Surface
	tracker configureTracker

	// roleID is the toplevel or popup created from this xdg_surface.
	// children counts live popups parented onto it.
	roleID   uint32
	children int

	pendingGeometry image.Rectangle
	geometry        image.Rectangle
}

func (xdg *XdgSurface) Interface() string {
	return XdgSurfaceInterface
}

func (xdg *XdgSurface) MethodName(op uint16) string {
	switch op {
	case xdgSurfaceRequestDestroy:
		return "destroy"
	case xdgSurfaceRequestGetToplevel:
		return "get_toplevel"
	case xdgSurfaceRequestGetPopup:
		return "get_popup"
	case xdgSurfaceRequestSetWindowGeometry:
		return "set_window_geometry"
	case xdgSurfaceRequestAckConfigure:
		return "ack_configure"
	}
	return "unknown"
}

func (xdg *XdgSurface) Dispatch(msg *wire.MessageBuffer) error {
	switch msg.Op() {
	case xdgSurfaceRequestDestroy:
		if err := msg.Err(); err != nil {
			return err
		}
		if xdg.roleID != 0 && xdg.client.Get(xdg.roleID) != nil {
			return protoErr(xdg, XdgSurfaceErrorDefunctRoleObject, "xdg_surface destroyed before its role object")
		}
		xdg.client.destroy(xdg)
		return nil

	case xdgSurfaceRequestGetToplevel:
		id := msg.ReadUint()
		if err := msg.Err(); err != nil {
			return err
		}
		return xdg.getToplevel(id)

	case xdgSurfaceRequestGetPopup:
		id := msg.ReadUint()
		parentID := msg.ReadUint()
		positionerID := msg.ReadUint()
		if err := msg.Err(); err != nil {
			return err
		}
		return xdg.getPopup(id, parentID, positionerID)

	case xdgSurfaceRequestSetWindowGeometry:
		x := msg.ReadInt()
		y := msg.ReadInt()
		width := msg.ReadInt()
		height := msg.ReadInt()
		if err := msg.Err(); err != nil {
			return err
		}
		if width <= 0 || height <= 0 {
			return protoErr(xdg, XdgSurfaceErrorInvalidSize, "set_window_geometry: invalid size %vx%v", width, height)
		}
		xdg.pendingGeometry = image.Rect(int(x), int(y), int(x+width), int(y+height))
		return nil

	case xdgSurfaceRequestAckConfigure:
		serial := msg.ReadUint()
		if err := msg.Err(); err != nil {
			return err
		}
		if xdg.roleID == 0 {
			return protoErr(xdg, XdgSurfaceErrorNotConstructed, "ack_configure before a role was assigned")
		}
		return xdg.tracker.ack(xdg, serial)

	default:
		return wire.UnknownOpError{Interface: XdgSurfaceInterface, Type: "request", Op: msg.Op()}
	}
}

func (xdg *XdgSurface) getToplevel(id uint32) error {
	if xdg.roleID != 0 {
		return protoErr(xdg, XdgSurfaceErrorAlreadyConstructed, "xdg_surface already has a role object")
	}

	t := &Toplevel{
		object: object{version: xdg.version, client: xdg.client},
		xdg:    xdg,
	}
	if err := xdg.surface.setRole("xdg_toplevel", t); err != nil {
		return err
	}
	if err := xdg.client.store.AddClient(id, t); err != nil {
		return protoErr(xdg, DisplayErrorInvalidObject, "get_toplevel: %v", err)
	}
	xdg.roleID = id
	xdg.surface.roleID = id

	if hook := xdg.client.server.OnToplevel; hook != nil {
		hook(t)
	} else {
		t.Configure(0, 0, nil)
	}
	return nil
}

func (xdg *XdgSurface) getPopup(id, parentID, positionerID uint32) error {
	if xdg.roleID != 0 {
		return protoErr(xdg, XdgSurfaceErrorAlreadyConstructed, "xdg_surface already has a role object")
	}

	var parent *XdgSurface
	if parentID != 0 {
		var ok bool
		parent, ok = xdg.client.Get(parentID).(*XdgSurface)
		if !ok {
			return protoErr(xdg, WmBaseErrorInvalidPopupParent, "get_popup: %v is not an xdg_surface", parentID)
		}
	}
	positioner, ok := xdg.client.Get(positionerID).(*Positioner)
	if !ok {
		return protoErr(xdg, DisplayErrorInvalidObject, "get_popup: %v is not an xdg_positioner", positionerID)
	}
	if !positioner.complete() {
		return protoErr(xdg, WmBaseErrorInvalidPositioner, "get_popup: positioner is missing a size or anchor rectangle")
	}

	p := &Popup{
		object:    object{version: xdg.version, client: xdg.client},
		xdg:       xdg,
		parent:    parent,
		placement: positioner.place(),
		reactive:  positioner.reactive,
	}
	if err := xdg.surface.setRole("xdg_popup", p); err != nil {
		return err
	}
	if err := xdg.client.store.AddClient(id, p); err != nil {
		return protoErr(xdg, DisplayErrorInvalidObject, "get_popup: %v", err)
	}
	xdg.roleID = id
	xdg.surface.roleID = id
	if parent != nil {
		parent.children++
	}

	if hook := xdg.client.server.OnPopup; hook != nil {
		hook(p)
	} else {
		p.Configure(p.placement)
	}
	return nil
}

func (xdg *XdgSurface) Delete() {
	xdg.wm.surfaces--
}

// Surface returns the wl_surface this xdg_surface extends.
func (xdg *XdgSurface) Surface() *Surface {
	return xdg.surface
}

// WindowGeometry is the committed window geometry. A zero rectangle
// means the client never set one and the full surface counts.
func (xdg *XdgSurface) WindowGeometry() image.Rectangle {
	return xdg.geometry
}

// Mapped reports whether the surface has completed the configure
// handshake and committed a buffer.
func (xdg *XdgSurface) Mapped() bool {
	return xdg.tracker.mapped()
}

// sendConfigure emits the xdg_surface.configure that closes a batch
// of role-specific configure events, and arms the tracker with its
// serial.
func (xdg *XdgSurface) sendConfigure(size image.Point) uint32 {
	serial := xdg.client.server.NextSerial()
	xdg.tracker.sent(serial, size)

	msg := wire.NewMessage(xdg, xdgSurfaceEventConfigure)
	msg.Method = "configure"
	msg.Args = []any{serial}
	msg.WriteUint(serial)
	xdg.client.Enqueue(msg)
	return serial
}

// precommit and postcommit implement the surface role hooks on behalf
// of both xdg roles.
func (xdg *XdgSurface) precommit(buf *Buffer, scale int32) error {
	return xdg.tracker.check(xdg, buf, scale)
}

func (xdg *XdgSurface) postcommit(hasBuffer bool) {
	xdg.geometry = xdg.pendingGeometry
	xdg.tracker.committed(hasBuffer)
}
