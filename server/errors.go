package wl

import (
	"errors"
	"fmt"

	"deedles.dev/shoji/wire"
)

// wl_display error codes. Protocol errors that have no more specific
// code defined by their interface use one of these.
const (
	DisplayErrorInvalidObject uint32 = iota
	DisplayErrorInvalidMethod
	DisplayErrorNoMemory
	DisplayErrorImplementation
)

// ProtocolError is a fatal protocol violation. Returning one from a
// request handler causes the core to emit a wl_display.error event
// naming the offending object and then tear down the connection.
type ProtocolError struct {
	ObjectID  uint32
	Interface string
	Code      uint32
	Message   string
}

func (err *ProtocolError) Error() string {
	return fmt.Sprintf("protocol error on %v@%v: %v (code %v)", err.Interface, err.ObjectID, err.Message, err.Code)
}

func protoErr(obj wire.Object, code uint32, format string, args ...any) *ProtocolError {
	return &ProtocolError{
		ObjectID:  obj.ID(),
		Interface: obj.Interface(),
		Code:      code,
		Message:   fmt.Sprintf(format, args...),
	}
}

// UnsupportedVersionError indicates a request whose opcode requires a
// higher interface version than the object negotiated. It is fatal.
type UnsupportedVersionError struct {
	Interface string
	Method    string
	Since     uint32
	Version   uint32
}

func (err UnsupportedVersionError) Error() string {
	return fmt.Sprintf("%v.%v requires version %v, object has version %v", err.Interface, err.Method, err.Since, err.Version)
}

// ImportError indicates a kernel buffer import that the core or the
// backend rejected. It is a recoverable client mistake: the request
// fails but the connection survives.
type ImportError struct {
	Reason string
}

func (err ImportError) Error() string {
	return fmt.Sprintf("buffer import failed: %v", err.Reason)
}

// OutOfBoundsError indicates a shared-memory buffer whose extents no
// longer fit inside its pool. It is recoverable: the attach fails and
// the surface's state is left unchanged.
type OutOfBoundsError struct {
	Offset   int32
	Stride   int32
	Height   int32
	PoolSize int32
}

func (err OutOfBoundsError) Error() string {
	return fmt.Sprintf("buffer extents out of pool bounds: offset %v + stride %v * height %v > pool size %v",
		err.Offset, err.Stride, err.Height, err.PoolSize)
}

// recoverable reports whether err is a resource-level failure with a
// defined protocol recovery path, as opposed to a fatal protocol
// violation.
func recoverable(err error) bool {
	var imp ImportError
	var oob OutOfBoundsError
	return errors.As(err, &imp) || errors.As(err, &oob)
}
