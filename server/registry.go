package wl

import (
	"deedles.dev/shoji/wire"
)

const (
	RegistryInterface = "wl_registry"
	RegistryVersion   = 1
)

const (
	registryRequestBind uint16 = iota
)

const (
	registryEventGlobal uint16 = iota
	registryEventGlobalRemove
)

// Registry is a client's view of the process-wide global
// advertisement table.
type Registry struct {
	object
}

func (registry *Registry) Interface() string {
	return RegistryInterface
}

func (registry *Registry) MethodName(op uint16) string {
	if op == registryRequestBind {
		return "bind"
	}
	return "unknown"
}

func (registry *Registry) Dispatch(msg *wire.MessageBuffer) error {
	switch msg.Op() {
	case registryRequestBind:
		name := msg.ReadUint()
		id := msg.ReadNewID()
		if err := msg.Err(); err != nil {
			return err
		}
		return registry.bind(name, id)

	default:
		return wire.UnknownOpError{Interface: RegistryInterface, Type: "request", Op: msg.Op()}
	}
}

func (registry *Registry) bind(name uint32, id wire.NewID) error {
	g := registry.client.server.globals[name]
	if g == nil {
		return protoErr(registry, DisplayErrorInvalidObject, "bind: unknown global %v", name)
	}
	if id.Interface != g.iface {
		return protoErr(registry, DisplayErrorInvalidMethod, "bind: global %v is %v, not %v", name, g.iface, id.Interface)
	}
	if id.Version == 0 || id.Version > g.version {
		return UnsupportedVersionError{
			Interface: g.iface,
			Method:    "bind",
			Since:     id.Version,
			Version:   g.version,
		}
	}

	return g.bind(registry.client, id)
}

// Global advertises a single global to the client.
func (registry *Registry) Global(name uint32, iface string, version uint32) {
	msg := wire.NewMessage(registry, registryEventGlobal)
	msg.Method = "global"
	msg.Args = []any{name, iface, version}
	msg.WriteUint(name)
	msg.WriteString(iface)
	msg.WriteUint(version)
	registry.client.Enqueue(msg)
}

// GlobalRemove retracts a previously advertised global.
func (registry *Registry) GlobalRemove(name uint32) {
	msg := wire.NewMessage(registry, registryEventGlobalRemove)
	msg.Method = "global_remove"
	msg.Args = []any{name}
	msg.WriteUint(name)
	registry.client.Enqueue(msg)
}
