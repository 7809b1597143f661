package wl

import (
	"image"

	"deedles.dev/shoji/internal/bin"
	"deedles.dev/shoji/internal/debug"
	"deedles.dev/shoji/wire"
)

const (
	ToplevelInterface = "xdg_toplevel"
)

const (
	toplevelRequestDestroy uint16 = iota
	toplevelRequestSetParent
	toplevelRequestSetTitle
	toplevelRequestSetAppID
	toplevelRequestShowWindowMenu
	toplevelRequestMove
	toplevelRequestResize
	toplevelRequestSetMaxSize
	toplevelRequestSetMinSize
	toplevelRequestSetMaximized
	toplevelRequestUnsetMaximized
	toplevelRequestSetFullscreen
	toplevelRequestUnsetFullscreen
	toplevelRequestSetMinimized
)

const (
	toplevelEventConfigure uint16 = iota
	toplevelEventClose
	toplevelEventConfigureBounds
	toplevelEventWmCapabilities
)

// xdg_toplevel error codes.
const (
	ToplevelErrorInvalidResizeEdge uint32 = iota
	ToplevelErrorInvalidParent
	ToplevelErrorInvalidSize
)

// ToplevelState is an xdg_toplevel.state value.
type ToplevelState uint32

const (
	StateMaximized ToplevelState = iota + 1
	StateFullscreen
	StateResizing
	StateActivated
	StateTiledLeft
	StateTiledRight
	StateTiledTop
	StateTiledBottom
	StateSuspended
)

// ResizeEdge names the edge or corner an interactive resize grabs.
type ResizeEdge uint32

const (
	ResizeEdgeNone        ResizeEdge = 0
	ResizeEdgeTop         ResizeEdge = 1
	ResizeEdgeBottom      ResizeEdge = 2
	ResizeEdgeLeft        ResizeEdge = 4
	ResizeEdgeTopLeft     ResizeEdge = 5
	ResizeEdgeBottomLeft  ResizeEdge = 6
	ResizeEdgeRight       ResizeEdge = 8
	ResizeEdgeTopRight    ResizeEdge = 9
	ResizeEdgeBottomRight ResizeEdge = 10
)

func (e ResizeEdge) valid() bool {
	switch e {
	case ResizeEdgeNone, ResizeEdgeTop, ResizeEdgeBottom, ResizeEdgeLeft,
		ResizeEdgeTopLeft, ResizeEdgeBottomLeft, ResizeEdgeRight,
		ResizeEdgeTopRight, ResizeEdgeBottomRight:
		return true
	}
	return false
}

// Toplevel is an xdg_toplevel, a desktop-style top-level window role.
type Toplevel struct {
	object
	xdg *XdgSurface

	title    string
	appID    string
	parentID uint32
	minSize  image.Point
	maxSize  image.Point

	// decorationID is the zxdg_toplevel_decoration_v1 attached to this
	// toplevel, if any.
	decorationID uint32
}

func (t *Toplevel) Interface() string {
	return ToplevelInterface
}

func (t *Toplevel) MethodName(op uint16) string {
	switch op {
	case toplevelRequestDestroy:
		return "destroy"
	case toplevelRequestSetParent:
		return "set_parent"
	case toplevelRequestSetTitle:
		return "set_title"
	case toplevelRequestSetAppID:
		return "set_app_id"
	case toplevelRequestShowWindowMenu:
		return "show_window_menu"
	case toplevelRequestMove:
		return "move"
	case toplevelRequestResize:
		return "resize"
	case toplevelRequestSetMaxSize:
		return "set_max_size"
	case toplevelRequestSetMinSize:
		return "set_min_size"
	case toplevelRequestSetMaximized:
		return "set_maximized"
	case toplevelRequestUnsetMaximized:
		return "unset_maximized"
	case toplevelRequestSetFullscreen:
		return "set_fullscreen"
	case toplevelRequestUnsetFullscreen:
		return "unset_fullscreen"
	case toplevelRequestSetMinimized:
		return "set_minimized"
	}
	return "unknown"
}

func (t *Toplevel) Dispatch(msg *wire.MessageBuffer) error {
	switch msg.Op() {
	case toplevelRequestDestroy:
		if err := msg.Err(); err != nil {
			return err
		}
		return t.destroy()

	case toplevelRequestSetParent:
		parentID := msg.ReadUint()
		if err := msg.Err(); err != nil {
			return err
		}
		if parentID != 0 {
			if _, ok := t.client.Get(parentID).(*Toplevel); !ok {
				return protoErr(t, ToplevelErrorInvalidParent, "set_parent: %v is not an xdg_toplevel", parentID)
			}
		}
		t.parentID = parentID
		return nil

	case toplevelRequestSetTitle:
		title := msg.ReadString()
		if err := msg.Err(); err != nil {
			return err
		}
		t.title = title
		return nil

	case toplevelRequestSetAppID:
		appID := msg.ReadString()
		if err := msg.Err(); err != nil {
			return err
		}
		t.appID = appID
		return nil

	case toplevelRequestShowWindowMenu:
		seatID := msg.ReadUint()
		serial := msg.ReadUint()
		x := msg.ReadInt()
		y := msg.ReadInt()
		if err := msg.Err(); err != nil {
			return err
		}
		debug.Printf("ignoring show_window_menu(seat=%v, serial=%v, %v, %v)", seatID, serial, x, y)
		return nil

	case toplevelRequestMove:
		seatID := msg.ReadUint()
		serial := msg.ReadUint()
		if err := msg.Err(); err != nil {
			return err
		}
		return t.move(seatID, serial)

	case toplevelRequestResize:
		seatID := msg.ReadUint()
		serial := msg.ReadUint()
		edges := msg.ReadUint()
		if err := msg.Err(); err != nil {
			return err
		}
		return t.resize(seatID, serial, ResizeEdge(edges))

	case toplevelRequestSetMaxSize:
		width := msg.ReadInt()
		height := msg.ReadInt()
		if err := msg.Err(); err != nil {
			return err
		}
		if width < 0 || height < 0 {
			return protoErr(t, ToplevelErrorInvalidSize, "set_max_size: negative size %vx%v", width, height)
		}
		t.maxSize = image.Pt(int(width), int(height))
		return nil

	case toplevelRequestSetMinSize:
		width := msg.ReadInt()
		height := msg.ReadInt()
		if err := msg.Err(); err != nil {
			return err
		}
		if width < 0 || height < 0 {
			return protoErr(t, ToplevelErrorInvalidSize, "set_min_size: negative size %vx%v", width, height)
		}
		t.minSize = image.Pt(int(width), int(height))
		return nil

	case toplevelRequestSetMaximized:
		if err := msg.Err(); err != nil {
			return err
		}
		if hook := t.client.server.OnMaximizeRequest; hook != nil {
			hook(t, true)
		}
		return nil

	case toplevelRequestUnsetMaximized:
		if err := msg.Err(); err != nil {
			return err
		}
		if hook := t.client.server.OnMaximizeRequest; hook != nil {
			hook(t, false)
		}
		return nil

	case toplevelRequestSetFullscreen:
		outputID := msg.ReadUint()
		if err := msg.Err(); err != nil {
			return err
		}
		_ = outputID
		if hook := t.client.server.OnFullscreenRequest; hook != nil {
			hook(t, true)
		}
		return nil

	case toplevelRequestUnsetFullscreen:
		if err := msg.Err(); err != nil {
			return err
		}
		if hook := t.client.server.OnFullscreenRequest; hook != nil {
			hook(t, false)
		}
		return nil

	case toplevelRequestSetMinimized:
		if err := msg.Err(); err != nil {
			return err
		}
		if hook := t.client.server.OnMinimizeRequest; hook != nil {
			hook(t)
		}
		return nil

	default:
		return wire.UnknownOpError{Interface: ToplevelInterface, Type: "request", Op: msg.Op()}
	}
}

func (t *Toplevel) destroy() error {
	if t.xdg.children > 0 {
		return protoErr(t, WmBaseErrorDefunctSurfaces, "toplevel destroyed with %v popups still alive", t.xdg.children)
	}
	if t.decorationID != 0 && t.client.Get(t.decorationID) != nil {
		return protoErr(t, DecorationErrorOrphaned, "toplevel destroyed before its decoration")
	}
	t.client.destroy(t)
	return nil
}

// move validates an interactive-move request and forwards it to
// policy. A serial that predates the client's latest input is stale;
// the request is quietly dropped, since the input that prompted it is
// long gone.
func (t *Toplevel) move(seatID, serial uint32) error {
	if _, ok := t.client.Get(seatID).(*SeatResource); !ok {
		return protoErr(t, DisplayErrorInvalidObject, "move: %v is not a wl_seat", seatID)
	}
	if serial < t.client.inputSerial {
		debug.Printf("ignoring move with stale serial %v", serial)
		return nil
	}
	if hook := t.client.server.OnMove; hook != nil {
		hook(t, serial)
	}
	return nil
}

func (t *Toplevel) resize(seatID, serial uint32, edges ResizeEdge) error {
	if _, ok := t.client.Get(seatID).(*SeatResource); !ok {
		return protoErr(t, DisplayErrorInvalidObject, "resize: %v is not a wl_seat", seatID)
	}
	if !edges.valid() {
		return protoErr(t, ToplevelErrorInvalidResizeEdge, "resize: invalid edge %v", uint32(edges))
	}
	if serial < t.client.inputSerial {
		debug.Printf("ignoring resize with stale serial %v", serial)
		return nil
	}
	if hook := t.client.server.OnResize; hook != nil {
		hook(t, serial, edges)
	}
	return nil
}

// precommit and postcommit tie the toplevel into the surface commit
// pipeline.
func (t *Toplevel) precommit(buf *Buffer, scale int32) error {
	return t.xdg.precommit(buf, scale)
}

func (t *Toplevel) postcommit(hasBuffer bool) {
	t.xdg.postcommit(hasBuffer)
}

// XdgSurface returns the xdg_surface the toplevel was created from.
func (t *Toplevel) XdgSurface() *XdgSurface {
	return t.xdg
}

// Surface returns the underlying wl_surface.
func (t *Toplevel) Surface() *Surface {
	return t.xdg.surface
}

// Title is the window title most recently set by the client.
func (t *Toplevel) Title() string {
	return t.title
}

// AppID is the application identifier most recently set by the client.
func (t *Toplevel) AppID() string {
	return t.appID
}

// MinSize and MaxSize are the client's size bounds; zero components
// mean unbounded.
func (t *Toplevel) MinSize() image.Point { return t.minSize }
func (t *Toplevel) MaxSize() image.Point { return t.maxSize }

// Parent returns the parent toplevel, or nil.
func (t *Toplevel) Parent() *Toplevel {
	if t.parentID == 0 {
		return nil
	}
	parent, _ := t.client.Get(t.parentID).(*Toplevel)
	return parent
}

// Configure tells the client to take on a new size and state set. A
// zero width or height leaves that dimension up to the client. It
// returns the serial the client must acknowledge.
func (t *Toplevel) Configure(width, height int32, states []ToplevelState) uint32 {
	var data []byte
	for _, state := range states {
		data = append(data, bin.Bytes(uint32(state))...)
	}

	msg := wire.NewMessage(t, toplevelEventConfigure)
	msg.Method = "configure"
	msg.Args = []any{width, height, states}
	msg.WriteInt(width)
	msg.WriteInt(height)
	msg.WriteArray(data)
	t.client.Enqueue(msg)

	return t.xdg.sendConfigure(image.Pt(int(width), int(height)))
}

// ConfigureBounds suggests the maximum sensible window size before a
// configure.
func (t *Toplevel) ConfigureBounds(width, height int32) {
	if t.version < 4 {
		return
	}
	msg := wire.NewMessage(t, toplevelEventConfigureBounds)
	msg.Method = "configure_bounds"
	msg.Args = []any{width, height}
	msg.WriteInt(width)
	msg.WriteInt(height)
	t.client.Enqueue(msg)
}

// Close asks the client to close the window. The client may ignore
// it.
func (t *Toplevel) Close() {
	msg := wire.NewMessage(t, toplevelEventClose)
	msg.Method = "close"
	t.client.Enqueue(msg)
}
