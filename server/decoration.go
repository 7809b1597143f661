package wl

import (
	"deedles.dev/shoji/wire"
)

const (
	DecorationManagerInterface = "zxdg_decoration_manager_v1"
	DecorationManagerVersion   = 1

	ToplevelDecorationInterface = "zxdg_toplevel_decoration_v1"
)

const (
	decorationManagerRequestDestroy uint16 = iota
	decorationManagerRequestGetToplevelDecoration
)

const (
	decorationRequestDestroy uint16 = iota
	decorationRequestSetMode
	decorationRequestUnsetMode
)

const (
	decorationEventConfigure uint16 = iota
)

// zxdg_toplevel_decoration_v1 error codes.
const (
	DecorationErrorUnconfiguredBuffer uint32 = iota
	DecorationErrorAlreadyConstructed
	DecorationErrorOrphaned
)

// DecorationMode says who draws window decorations.
type DecorationMode uint32

const (
	DecorationModeClientSide DecorationMode = 1
	DecorationModeServerSide DecorationMode = 2
)

// DecorationManager is a client's zxdg_decoration_manager_v1.
type DecorationManager struct {
	object
}

// AddDecorationManager advertises the zxdg_decoration_manager_v1
// global.
func (server *Server) AddDecorationManager() *Global {
	return server.AddGlobal(DecorationManagerInterface, DecorationManagerVersion, func(client *Client, id wire.NewID) error {
		m := &DecorationManager{object: object{version: id.Version, client: client}}
		if err := client.store.AddClient(id.ID, m); err != nil {
			return protoErr(client.Display(), DisplayErrorInvalidObject, "bind zxdg_decoration_manager_v1: %v", err)
		}
		return nil
	})
}

func (m *DecorationManager) Interface() string {
	return DecorationManagerInterface
}

func (m *DecorationManager) MethodName(op uint16) string {
	switch op {
	case decorationManagerRequestDestroy:
		return "destroy"
	case decorationManagerRequestGetToplevelDecoration:
		return "get_toplevel_decoration"
	}
	return "unknown"
}

func (m *DecorationManager) Dispatch(msg *wire.MessageBuffer) error {
	switch msg.Op() {
	case decorationManagerRequestDestroy:
		if err := msg.Err(); err != nil {
			return err
		}
		m.client.destroy(m)
		return nil

	case decorationManagerRequestGetToplevelDecoration:
		id := msg.ReadUint()
		toplevelID := msg.ReadUint()
		if err := msg.Err(); err != nil {
			return err
		}
		return m.getToplevelDecoration(id, toplevelID)

	default:
		return wire.UnknownOpError{Interface: DecorationManagerInterface, Type: "request", Op: msg.Op()}
	}
}

func (m *DecorationManager) getToplevelDecoration(id, toplevelID uint32) error {
	t, ok := m.client.Get(toplevelID).(*Toplevel)
	if !ok {
		return protoErr(m, DisplayErrorInvalidObject, "get_toplevel_decoration: %v is not an xdg_toplevel", toplevelID)
	}
	if t.decorationID != 0 && m.client.Get(t.decorationID) != nil {
		return protoErr(m, DecorationErrorAlreadyConstructed, "toplevel already has a decoration")
	}
	if t.xdg.Mapped() {
		return protoErr(m, DecorationErrorUnconfiguredBuffer, "get_toplevel_decoration on a mapped toplevel")
	}

	d := &ToplevelDecoration{
		object:   object{version: m.version, client: m.client},
		toplevel: t,
	}
	if err := m.client.store.AddClient(id, d); err != nil {
		return protoErr(m, DisplayErrorInvalidObject, "get_toplevel_decoration: %v", err)
	}
	t.decorationID = id

	d.sendMode()
	return nil
}

// ToplevelDecoration negotiates who decorates one toplevel. The
// compositor's forced and default modes come from the server
// configuration; the client's preference fills the gap between them.
type ToplevelDecoration struct {
	object
	toplevel  *Toplevel
	requested DecorationMode
}

func (d *ToplevelDecoration) Interface() string {
	return ToplevelDecorationInterface
}

func (d *ToplevelDecoration) MethodName(op uint16) string {
	switch op {
	case decorationRequestDestroy:
		return "destroy"
	case decorationRequestSetMode:
		return "set_mode"
	case decorationRequestUnsetMode:
		return "unset_mode"
	}
	return "unknown"
}

func (d *ToplevelDecoration) Dispatch(msg *wire.MessageBuffer) error {
	switch msg.Op() {
	case decorationRequestDestroy:
		if err := msg.Err(); err != nil {
			return err
		}
		d.client.destroy(d)
		return nil

	case decorationRequestSetMode:
		mode := msg.ReadUint()
		if err := msg.Err(); err != nil {
			return err
		}
		if mode != uint32(DecorationModeClientSide) && mode != uint32(DecorationModeServerSide) {
			return protoErr(d, DisplayErrorInvalidMethod, "set_mode: invalid mode %v", mode)
		}
		d.requested = DecorationMode(mode)
		d.sendMode()
		return nil

	case decorationRequestUnsetMode:
		if err := msg.Err(); err != nil {
			return err
		}
		d.requested = 0
		d.sendMode()
		return nil

	default:
		return wire.UnknownOpError{Interface: ToplevelDecorationInterface, Type: "request", Op: msg.Op()}
	}
}

// Mode is the decoration mode currently in effect for the toplevel.
func (d *ToplevelDecoration) Mode() DecorationMode {
	return d.decide()
}

// decide picks the effective mode: a compositor-forced mode wins,
// then the client's preference, then the compositor's default, then
// server-side.
func (d *ToplevelDecoration) decide() DecorationMode {
	server := d.client.server
	if server.ForcedDecorationMode != 0 {
		return server.ForcedDecorationMode
	}
	if d.requested != 0 {
		return d.requested
	}
	if server.DefaultDecorationMode != 0 {
		return server.DefaultDecorationMode
	}
	return DecorationModeServerSide
}

// sendMode announces the effective mode and issues the configure the
// client must ack before its next buffer.
func (d *ToplevelDecoration) sendMode() {
	d.Configure(d.decide())
	d.toplevel.xdg.sendConfigure(d.toplevel.xdg.tracker.sentSize)
}

// Configure announces a decoration mode. It takes effect on the next
// acked commit.
func (d *ToplevelDecoration) Configure(mode DecorationMode) {
	msg := wire.NewMessage(d, decorationEventConfigure)
	msg.Method = "configure"
	msg.Args = []any{uint32(mode)}
	msg.WriteUint(uint32(mode))
	d.client.Enqueue(msg)
}
