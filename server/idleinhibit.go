package wl

import (
	"deedles.dev/shoji/wire"
)

const (
	IdleInhibitManagerInterface = "zwp_idle_inhibit_manager_v1"
	IdleInhibitManagerVersion   = 1

	IdleInhibitorInterface = "zwp_idle_inhibitor_v1"
)

const (
	idleInhibitManagerRequestDestroy uint16 = iota
	idleInhibitManagerRequestCreateInhibitor
)

const (
	idleInhibitorRequestDestroy uint16 = iota
)

// IdleInhibitManager is a client's zwp_idle_inhibit_manager_v1.
type IdleInhibitManager struct {
	object
}

// AddIdleInhibitManager advertises the zwp_idle_inhibit_manager_v1
// global.
func (server *Server) AddIdleInhibitManager() *Global {
	return server.AddGlobal(IdleInhibitManagerInterface, IdleInhibitManagerVersion, func(client *Client, id wire.NewID) error {
		m := &IdleInhibitManager{object: object{version: id.Version, client: client}}
		if err := client.store.AddClient(id.ID, m); err != nil {
			return protoErr(client.Display(), DisplayErrorInvalidObject, "bind zwp_idle_inhibit_manager_v1: %v", err)
		}
		return nil
	})
}

func (m *IdleInhibitManager) Interface() string {
	return IdleInhibitManagerInterface
}

func (m *IdleInhibitManager) MethodName(op uint16) string {
	switch op {
	case idleInhibitManagerRequestDestroy:
		return "destroy"
	case idleInhibitManagerRequestCreateInhibitor:
		return "create_inhibitor"
	}
	return "unknown"
}

func (m *IdleInhibitManager) Dispatch(msg *wire.MessageBuffer) error {
	switch msg.Op() {
	case idleInhibitManagerRequestDestroy:
		if err := msg.Err(); err != nil {
			return err
		}
		m.client.destroy(m)
		return nil

	case idleInhibitManagerRequestCreateInhibitor:
		id := msg.ReadUint()
		surfaceID := msg.ReadUint()
		if err := msg.Err(); err != nil {
			return err
		}
		s, ok := m.client.Get(surfaceID).(*Surface)
		if !ok {
			return protoErr(m, DisplayErrorInvalidObject, "create_inhibitor: %v is not a wl_surface", surfaceID)
		}

		inhibitor := &IdleInhibitor{
			object:    object{version: m.version, client: m.client},
			surfaceID: surfaceID,
		}
		if err := m.client.store.AddClient(id, inhibitor); err != nil {
			return protoErr(m, DisplayErrorInvalidObject, "create_inhibitor: %v", err)
		}
		s.inhibitors++
		m.client.server.idleInhibitors++
		return nil

	default:
		return wire.UnknownOpError{Interface: IdleInhibitManagerInterface, Type: "request", Op: msg.Op()}
	}
}

// IdleInhibitor keeps the compositor from idling while its surface
// exists. The inhibition ends when either the inhibitor or its
// surface is destroyed, whichever comes first.
type IdleInhibitor struct {
	object
	surfaceID uint32
}

func (in *IdleInhibitor) Interface() string {
	return IdleInhibitorInterface
}

func (in *IdleInhibitor) MethodName(op uint16) string {
	if op == idleInhibitorRequestDestroy {
		return "destroy"
	}
	return "unknown"
}

func (in *IdleInhibitor) Dispatch(msg *wire.MessageBuffer) error {
	switch msg.Op() {
	case idleInhibitorRequestDestroy:
		if err := msg.Err(); err != nil {
			return err
		}
		in.client.destroy(in)
		return nil

	default:
		return wire.UnknownOpError{Interface: IdleInhibitorInterface, Type: "request", Op: msg.Op()}
	}
}

func (in *IdleInhibitor) Delete() {
	// If the surface went first it already uncounted this inhibitor.
	s, ok := in.client.Get(in.surfaceID).(*Surface)
	if !ok || s.inhibitors == 0 {
		return
	}
	s.inhibitors--
	in.client.server.idleInhibitors--
}
