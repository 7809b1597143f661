package wl

import (
	"image"
	"os"

	"deedles.dev/shoji/shm"
	"deedles.dev/shoji/wire"
	"deedles.dev/ximage"
)

const (
	ShmPoolInterface = "wl_shm_pool"
	ShmPoolVersion   = 2
)

const (
	shmPoolRequestCreateBuffer uint16 = iota
	shmPoolRequestDestroy
	shmPoolRequestResize
)

// ShmPool is a bounded view over a region of client memory. The pool
// object may be destroyed while buffers created from it remain; the
// mapping stays alive until the last buffer lets go of it.
type ShmPool struct {
	object
	file *os.File
	mmap shm.Mmap
	size int32
	refs int
}

func (pool *ShmPool) Interface() string {
	return ShmPoolInterface
}

func (pool *ShmPool) MethodName(op uint16) string {
	switch op {
	case shmPoolRequestCreateBuffer:
		return "create_buffer"
	case shmPoolRequestDestroy:
		return "destroy"
	case shmPoolRequestResize:
		return "resize"
	}
	return "unknown"
}

func (pool *ShmPool) Dispatch(msg *wire.MessageBuffer) error {
	switch msg.Op() {
	case shmPoolRequestCreateBuffer:
		id := msg.ReadUint()
		offset := msg.ReadInt()
		width := msg.ReadInt()
		height := msg.ReadInt()
		stride := msg.ReadInt()
		format := msg.ReadUint()
		if err := msg.Err(); err != nil {
			return err
		}
		return pool.createBuffer(id, offset, width, height, stride, ShmFormat(format))

	case shmPoolRequestDestroy:
		if err := msg.Err(); err != nil {
			return err
		}
		pool.client.destroy(pool)
		return nil

	case shmPoolRequestResize:
		size := msg.ReadInt()
		if err := msg.Err(); err != nil {
			return err
		}
		return pool.resize(size)

	default:
		return wire.UnknownOpError{Interface: ShmPoolInterface, Type: "request", Op: msg.Op()}
	}
}

func (pool *ShmPool) createBuffer(id uint32, offset, width, height, stride int32, format ShmFormat) error {
	bpp, ok := shmFormats[format]
	if !ok {
		return protoErr(pool, ShmErrorInvalidFormat, "create_buffer: unsupported format %v", uint32(format))
	}
	if width <= 0 || height <= 0 || int64(stride) < int64(width)*int64(bpp) || offset < 0 {
		return protoErr(pool, ShmErrorInvalidStride, "create_buffer: invalid geometry %vx%v stride %v offset %v", width, height, stride, offset)
	}
	// The extents are computed in 64 bits: stride*height can wrap int32
	// and slip a wild view past the pool bound.
	if int64(offset)+int64(stride)*int64(height) > int64(pool.size) {
		return protoErr(pool, ShmErrorInvalidStride, "create_buffer: extents exceed pool size %v", pool.size)
	}

	buf := &Buffer{
		object: object{version: BufferVersion, client: pool.client},
		backing: &shmBacking{
			pool:   pool,
			offset: offset,
			width:  width,
			height: height,
			stride: stride,
			format: format,
		},
	}
	if err := pool.client.store.AddClient(id, buf); err != nil {
		return protoErr(pool, DisplayErrorInvalidObject, "create_buffer: %v", err)
	}
	pool.refs++
	return nil
}

func (pool *ShmPool) resize(size int32) error {
	if size < pool.size {
		return protoErr(pool, ShmErrorInvalidStride, "resize: pools cannot shrink (%v < %v)", size, pool.size)
	}
	if size == pool.size {
		return nil
	}
	if fsize, err := shm.Size(pool.file); err != nil || fsize < int64(size) {
		return protoErr(pool, ShmErrorInvalidFd, "resize: fd smaller than declared size %v", size)
	}

	mmap, err := shm.MapPool(pool.file, int(size))
	if err != nil {
		return protoErr(pool, ShmErrorInvalidFd, "resize: mmap: %v", err)
	}
	pool.mmap.Unmap()
	pool.mmap = mmap
	pool.size = size
	return nil
}

func (pool *ShmPool) Delete() {
	pool.unref()
}

func (pool *ShmPool) unref() {
	pool.refs--
	if pool.refs > 0 {
		return
	}
	if pool.mmap != nil {
		pool.mmap.Unmap()
		pool.mmap = nil
	}
	pool.file.Close()
}

// shmBacking is a buffer backed by a range of a shared-memory pool.
type shmBacking struct {
	pool   *ShmPool
	offset int32
	width  int32
	height int32
	stride int32
	format ShmFormat
}

func (b *shmBacking) size() image.Point {
	return image.Pt(int(b.width), int(b.height))
}

// validate re-checks the view against the pool's current size. The
// declaration made at create_buffer time is not sufficient: the pool
// may have been remapped since.
func (b *shmBacking) validate() error {
	if int64(b.offset)+int64(b.stride)*int64(b.height) > int64(b.pool.size) {
		return OutOfBoundsError{
			Offset:   b.offset,
			Stride:   b.stride,
			Height:   b.height,
			PoolSize: b.pool.size,
		}
	}
	return nil
}

func (b *shmBacking) destroy() {
	b.pool.unref()
}

// Image returns a read-only view of the buffer contents as an image.
// It returns nil for formats or strides that the view cannot
// represent.
func (buf *Buffer) Image() image.Image {
	b, ok := buf.backing.(*shmBacking)
	if !ok || b.format != ShmFormatArgb8888 || b.stride != b.width*4 {
		return nil
	}
	if b.validate() != nil || b.pool.mmap == nil {
		return nil
	}
	return &ximage.FormatImage{
		Format: ximage.ARGB8888,
		Rect:   image.Rect(0, 0, int(b.width), int(b.height)),
		Pix:    b.pool.mmap[b.offset : b.offset+b.stride*b.height],
	}
}
