package wl

import (
	"deedles.dev/shoji/wire"
)

// object is the state common to every server-side protocol object. It
// is embedded in each interface's resource type.
type object struct {
	id      uint32
	version uint32
	client  *Client
}

func (obj *object) ID() uint32 {
	return obj.id
}

func (obj *object) SetID(id uint32) {
	obj.id = id
}

func (obj *object) Version() uint32 {
	return obj.version
}

// Client returns the client that owns the object.
func (obj *object) Client() *Client {
	return obj.client
}

// Delete is the default no-op teardown. Resource types with cleanup
// of their own shadow it.
func (obj *object) Delete() {}

// since returns an error if the object's negotiated version is lower
// than v, the version that introduced method on the named interface.
func since(obj wire.Object, v uint32, method string) error {
	if obj.Version() < v {
		return UnsupportedVersionError{
			Interface: obj.Interface(),
			Method:    method,
			Since:     v,
			Version:   obj.Version(),
		}
	}
	return nil
}
