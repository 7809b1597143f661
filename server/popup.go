package wl

import (
	"image"

	"deedles.dev/shoji/internal/debug"
	"deedles.dev/shoji/wire"
)

const (
	PopupInterface = "xdg_popup"
)

const (
	popupRequestDestroy uint16 = iota
	popupRequestGrab
	popupRequestReposition
)

const (
	popupEventConfigure uint16 = iota
	popupEventPopupDone
	popupEventRepositioned
)

// xdg_popup error codes.
const (
	PopupErrorInvalidGrab uint32 = iota
)

// Popup is an xdg_popup, a short-lived surface positioned relative to
// a parent xdg_surface.
type Popup struct {
	object
	xdg    *XdgSurface
	parent *XdgSurface

	placement image.Rectangle
	reactive  bool
	grabbed   bool
}

func (p *Popup) Interface() string {
	return PopupInterface
}

func (p *Popup) MethodName(op uint16) string {
	switch op {
	case popupRequestDestroy:
		return "destroy"
	case popupRequestGrab:
		return "grab"
	case popupRequestReposition:
		return "reposition"
	}
	return "unknown"
}

func (p *Popup) Dispatch(msg *wire.MessageBuffer) error {
	switch msg.Op() {
	case popupRequestDestroy:
		if err := msg.Err(); err != nil {
			return err
		}
		if p.xdg.children > 0 {
			return protoErr(p, WmBaseErrorNotTheTopmostPopup, "popup destroyed with %v nested popups still alive", p.xdg.children)
		}
		p.client.destroy(p)
		return nil

	case popupRequestGrab:
		seatID := msg.ReadUint()
		serial := msg.ReadUint()
		if err := msg.Err(); err != nil {
			return err
		}
		return p.grab(seatID, serial)

	case popupRequestReposition:
		if err := since(p, 3, "reposition"); err != nil {
			return err
		}
		positionerID := msg.ReadUint()
		token := msg.ReadUint()
		if err := msg.Err(); err != nil {
			return err
		}
		return p.reposition(positionerID, token)

	default:
		return wire.UnknownOpError{Interface: PopupInterface, Type: "request", Op: msg.Op()}
	}
}

// grab ties the popup's lifetime to an implicit input grab. A grab
// after mapping is a protocol error; a stale serial merely dismisses
// the popup, since the triggering input is already over.
func (p *Popup) grab(seatID, serial uint32) error {
	if _, ok := p.client.Get(seatID).(*SeatResource); !ok {
		return protoErr(p, DisplayErrorInvalidObject, "grab: %v is not a wl_seat", seatID)
	}
	if p.xdg.Mapped() {
		return protoErr(p, PopupErrorInvalidGrab, "grab on an already mapped popup")
	}
	if serial < p.client.inputSerial {
		debug.Printf("dismissing popup grabbed with stale serial %v", serial)
		p.Done()
		return nil
	}
	p.grabbed = true
	return nil
}

func (p *Popup) reposition(positionerID, token uint32) error {
	positioner, ok := p.client.Get(positionerID).(*Positioner)
	if !ok {
		return protoErr(p, DisplayErrorInvalidObject, "reposition: %v is not an xdg_positioner", positionerID)
	}
	if !positioner.complete() {
		return protoErr(p, WmBaseErrorInvalidPositioner, "reposition: positioner is missing a size or anchor rectangle")
	}

	p.placement = positioner.place()
	p.reactive = positioner.reactive
	p.Repositioned(token)
	p.Configure(p.placement)
	return nil
}

func (p *Popup) Delete() {
	if p.parent != nil {
		p.parent.children--
	}
}

// precommit and postcommit tie the popup into the surface commit
// pipeline.
func (p *Popup) precommit(buf *Buffer, scale int32) error {
	return p.xdg.precommit(buf, scale)
}

func (p *Popup) postcommit(hasBuffer bool) {
	p.xdg.postcommit(hasBuffer)
}

// XdgSurface returns the xdg_surface the popup was created from.
func (p *Popup) XdgSurface() *XdgSurface {
	return p.xdg
}

// Surface returns the underlying wl_surface.
func (p *Popup) Surface() *Surface {
	return p.xdg.surface
}

// Parent returns the xdg_surface the popup is positioned against, or
// nil if the popup was parented through other means.
func (p *Popup) Parent() *XdgSurface {
	return p.parent
}

// Placement is the popup's rectangle relative to the parent's window
// geometry, as last computed from a positioner.
func (p *Popup) Placement() image.Rectangle {
	return p.placement
}

// Grabbed reports whether the popup asked for an input grab.
func (p *Popup) Grabbed() bool {
	return p.grabbed
}

// Configure tells the client where the popup ended up. It returns
// the serial the client must acknowledge.
func (p *Popup) Configure(rect image.Rectangle) uint32 {
	msg := wire.NewMessage(p, popupEventConfigure)
	msg.Method = "configure"
	msg.Args = []any{rect.Min.X, rect.Min.Y, rect.Dx(), rect.Dy()}
	msg.WriteInt(int32(rect.Min.X))
	msg.WriteInt(int32(rect.Min.Y))
	msg.WriteInt(int32(rect.Dx()))
	msg.WriteInt(int32(rect.Dy()))
	p.client.Enqueue(msg)

	return p.xdg.sendConfigure(image.Pt(rect.Dx(), rect.Dy()))
}

// Done dismisses the popup. The client should destroy it in response.
func (p *Popup) Done() {
	msg := wire.NewMessage(p, popupEventPopupDone)
	msg.Method = "popup_done"
	p.client.Enqueue(msg)
}

// Repositioned acknowledges a reposition request; the configure that
// follows carries the new placement.
func (p *Popup) Repositioned(token uint32) {
	if p.version < 3 {
		return
	}
	msg := wire.NewMessage(p, popupEventRepositioned)
	msg.Method = "repositioned"
	msg.Args = []any{token}
	msg.WriteUint(token)
	p.client.Enqueue(msg)
}
