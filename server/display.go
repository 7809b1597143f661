package wl

import (
	"deedles.dev/shoji/wire"
)

const (
	DisplayInterface = "wl_display"
	DisplayVersion   = 1
)

const (
	displayRequestSync uint16 = iota
	displayRequestGetRegistry
)

const (
	displayEventError uint16 = iota
	displayEventDeleteID
)

// Display is a client's wl_display, the root object of every
// connection. It always has ID 1.
type Display struct {
	object
}

func (d *Display) Interface() string {
	return DisplayInterface
}

func (d *Display) MethodName(op uint16) string {
	switch op {
	case displayRequestSync:
		return "sync"
	case displayRequestGetRegistry:
		return "get_registry"
	}
	return "unknown"
}

func (d *Display) Dispatch(msg *wire.MessageBuffer) error {
	switch msg.Op() {
	case displayRequestSync:
		id := msg.ReadUint()
		if err := msg.Err(); err != nil {
			return err
		}
		return d.sync(id)

	case displayRequestGetRegistry:
		id := msg.ReadUint()
		if err := msg.Err(); err != nil {
			return err
		}
		return d.getRegistry(id)

	default:
		return wire.UnknownOpError{Interface: DisplayInterface, Type: "request", Op: msg.Op()}
	}
}

func (d *Display) sync(id uint32) error {
	cb := &Callback{object: object{version: CallbackVersion, client: d.client}}
	if err := d.client.store.AddClient(id, cb); err != nil {
		return protoErr(d, DisplayErrorInvalidObject, "sync: %v", err)
	}

	// The callback fires once everything before it has been
	// processed, which is now, given that dispatch is serial.
	cb.Done(d.client.server.NextSerial())
	return nil
}

func (d *Display) getRegistry(id uint32) error {
	registry := &Registry{object: object{version: RegistryVersion, client: d.client}}
	if err := d.client.store.AddClient(id, registry); err != nil {
		return protoErr(d, DisplayErrorInvalidObject, "get_registry: %v", err)
	}
	d.client.registries = append(d.client.registries, registry)

	for _, g := range d.client.server.globals {
		registry.Global(g.name, g.iface, g.version)
	}
	return nil
}

// Error sends the wl_display.error event naming the offending object,
// a reason code, and a human-readable description.
func (d *Display) Error(objectID, code uint32, message string) {
	msg := wire.NewMessage(d, displayEventError)
	msg.Method = "error"
	msg.Args = []any{objectID, code, message}
	msg.WriteUint(objectID)
	msg.WriteUint(code)
	msg.WriteString(message)
	d.client.Enqueue(msg)
}

// DeleteID acknowledges the destruction of a client-allocated object
// ID. The client may reuse the ID once it receives the event.
func (d *Display) DeleteID(id uint32) {
	msg := wire.NewMessage(d, displayEventDeleteID)
	msg.Method = "delete_id"
	msg.Args = []any{id}
	msg.WriteUint(id)
	d.client.Enqueue(msg)
}
