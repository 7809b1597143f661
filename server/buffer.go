package wl

import (
	"image"
	"sync"

	"deedles.dev/shoji/wire"
)

const (
	BufferInterface = "wl_buffer"
	BufferVersion   = 1
)

const (
	bufferRequestDestroy uint16 = iota
)

const (
	bufferEventRelease uint16 = iota
)

// bufferBacking is the storage behind a wl_buffer: a view of a
// shared-memory pool or an imported set of kernel buffer planes.
type bufferBacking interface {
	// size is the buffer's extent in buffer-local pixels.
	size() image.Point

	// validate re-checks the backing against its current storage. It
	// runs on every attach and again at commit; a client's earlier
	// declaration is not trusted.
	validate() error

	// destroy releases the storage. It runs once, after the buffer
	// object is gone and no use of the contents remains.
	destroy()
}

// Buffer is a wl_buffer. The compositor references the client's
// storage, it does not copy it, so the backing outlives the protocol
// object for as long as anything still uses the contents.
type Buffer struct {
	object
	backing bufferBacking

	// locks counts uses of the contents: membership in a surface's
	// current state, plus every outstanding backend acquisition.
	locks        int
	needsRelease bool
	destroyed    bool
}

func (buf *Buffer) Interface() string {
	return BufferInterface
}

func (buf *Buffer) MethodName(op uint16) string {
	if op == bufferRequestDestroy {
		return "destroy"
	}
	return "unknown"
}

func (buf *Buffer) Dispatch(msg *wire.MessageBuffer) error {
	switch msg.Op() {
	case bufferRequestDestroy:
		if err := msg.Err(); err != nil {
			return err
		}
		buf.client.destroy(buf)
		return nil

	default:
		return wire.UnknownOpError{Interface: BufferInterface, Type: "request", Op: msg.Op()}
	}
}

// Size is the buffer's extent in buffer-local pixels.
func (buf *Buffer) Size() image.Point {
	return buf.backing.size()
}

func (buf *Buffer) Delete() {
	buf.destroyed = true
	if buf.locks == 0 {
		buf.backing.destroy()
	}
}

// Acquire marks the buffer's contents as in use by the backend. The
// returned release function signals that the contents are no longer
// needed; the client's release notification is deferred until every
// acquisition has been released. Release may be called from any
// goroutine and is idempotent.
func (buf *Buffer) Acquire() (release func()) {
	buf.lock()
	var once sync.Once
	return func() {
		once.Do(func() {
			buf.client.server.mu.Lock()
			defer buf.client.server.mu.Unlock()
			buf.unlock()
		})
	}
}

func (buf *Buffer) lock() {
	buf.locks++
}

func (buf *Buffer) unlock() {
	buf.locks--
	if buf.locks > 0 {
		return
	}

	if buf.destroyed {
		buf.backing.destroy()
		return
	}
	if buf.needsRelease {
		buf.needsRelease = false
		buf.release()
	}
}

// release notifies the owner that the compositor is done with the
// contents. It is never sent synchronously with a commit; it is
// queued here, after the last use ended, and delivered on the next
// flush.
func (buf *Buffer) release() {
	if buf.client.dead {
		return
	}
	msg := wire.NewMessage(buf, bufferEventRelease)
	msg.Method = "release"
	buf.client.Enqueue(msg)
}
