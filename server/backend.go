package wl

// Backend is the rendering/scanout collaborator. The core hands it
// committed surface state and relies on it as the sole source of
// "buffer no longer referenced" signals: a backend that needs a
// committed buffer's contents must Acquire the buffer and call the
// returned release function once it is done with it. The buffer's
// owner only receives its release notification after every
// outstanding acquisition has been released.
type Backend interface {
	// Commit consumes a surface's newly committed state. It is called
	// with the core's shared-state lock held, so it must not block; a
	// backend that does real work acquires the surface's current
	// buffer and hands off to its own machinery.
	Commit(surface *Surface)

	// ImportDMABuf reports whether the backend can import a kernel
	// buffer with the given extents, format, and planes. A non-nil
	// error fails the import without tearing down the connection.
	ImportDMABuf(width, height int32, format uint32, planes []DMABufPlane) error
}
