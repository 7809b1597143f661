package wl

import (
	"deedles.dev/shoji/wire"
)

const (
	CallbackInterface = "wl_callback"
	CallbackVersion   = 1
)

const (
	callbackEventDone uint16 = iota
)

// Callback is a wl_callback. It has no requests; it fires its done
// event exactly once and is then destroyed by the server.
type Callback struct {
	object
}

func (cb *Callback) Interface() string {
	return CallbackInterface
}

func (cb *Callback) MethodName(op uint16) string {
	return "unknown"
}

func (cb *Callback) Dispatch(msg *wire.MessageBuffer) error {
	return wire.UnknownOpError{Interface: CallbackInterface, Type: "request", Op: msg.Op()}
}

// Done fires the callback and destroys it.
func (cb *Callback) Done(data uint32) {
	if cb.client.Get(cb.id) != cb {
		return
	}
	msg := wire.NewMessage(cb, callbackEventDone)
	msg.Method = "done"
	msg.Args = []any{data}
	msg.WriteUint(data)
	cb.client.Enqueue(msg)
	cb.client.destroy(cb)
}
