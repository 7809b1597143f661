// Package wire defines types for dealing with the Wayland wire
// protocol. It owns the byte-level framing and file descriptor
// passing; everything above it deals only in decoded messages.
package wire

import (
	"errors"
	"fmt"
	"io"
	"net"

	"golang.org/x/sys/unix"
)

// padding returns the number of bytes of padding necessary to align a
// block of size to the protocol's 32-bit boundary.
func padding(size uint32) uint32 {
	return (4 - (size & 3)) & 3
}

// unixTee reads from c, but also reads out-of-band data
// simultaneously, writing it into oob.
type unixTee struct {
	c   *net.UnixConn
	oob io.Writer
}

func (t unixTee) Read(buf []byte) (int, error) {
	oob := make([]byte, unix.CmsgSpace(len(buf))) // TODO: How big should this be?
	n, oobn, _, _, err := t.c.ReadMsgUnix(buf, oob)
	_, ooberr := t.oob.Write(oob[:oobn])
	return n, errors.Join(err, ooberr)
}

// Object represents a server-side Wayland protocol object. Every
// protocol interface implements it.
type Object interface {
	// ID is the object's ID in its client's namespace, or zero if it
	// has not been added to a store yet.
	ID() uint32
	SetID(id uint32)

	// Interface is the name of the object's protocol interface, such
	// as "wl_surface".
	Interface() string

	// Version is the version of the interface that was negotiated
	// when the object was created.
	Version() uint32

	// MethodName returns the name of the request selected by op. It
	// is used for debugging.
	MethodName(op uint16) string

	// Dispatch performs the operation requested by the message in the
	// buffer.
	Dispatch(msg *MessageBuffer) error

	// Delete runs the object's teardown. It is called exactly once,
	// when the object is removed from its store.
	Delete()
}

// NewID is the decoded form of a new_id argument with an
// unconstrained interface, such as the one in wl_registry.bind.
type NewID struct {
	Interface string
	Version   uint32
	ID        uint32
}

func (id NewID) String() string {
	return fmt.Sprintf("%v@%v.v%v", id.Interface, id.ID, id.Version)
}

// Interface identifies a protocol interface at a specific version.
type Interface struct {
	Name    string
	Version uint32
}

// Is returns true if i names the same interface as name at version or
// higher.
func (i Interface) Is(name string, version uint32) bool {
	return (i.Name == name) && (i.Version >= version)
}
