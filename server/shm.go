package wl

import (
	"os"

	"deedles.dev/shoji/shm"
	"deedles.dev/shoji/wire"
)

const (
	ShmInterface = "wl_shm"
	ShmVersion   = 2
)

const (
	shmRequestCreatePool uint16 = iota
	shmRequestRelease
)

const (
	shmEventFormat uint16 = iota
)

// wl_shm error codes.
const (
	ShmErrorInvalidFormat uint32 = iota
	ShmErrorInvalidStride
	ShmErrorInvalidFd
)

// ShmFormat is a wl_shm pixel format code.
type ShmFormat uint32

const (
	ShmFormatArgb8888 ShmFormat = 0
	ShmFormatXrgb8888 ShmFormat = 1
)

// shmFormats maps the supported wl_shm formats to their
// bytes-per-pixel. Both mandatory formats are 32-bit.
var shmFormats = map[ShmFormat]int32{
	ShmFormatArgb8888: 4,
	ShmFormatXrgb8888: 4,
}

// Shm is a client's wl_shm, the factory for shared-memory pools.
type Shm struct {
	object
}

// AddShm advertises the wl_shm global.
func (server *Server) AddShm() *Global {
	return server.AddGlobal(ShmInterface, ShmVersion, func(client *Client, id wire.NewID) error {
		s := &Shm{object: object{version: id.Version, client: client}}
		if err := client.store.AddClient(id.ID, s); err != nil {
			return protoErr(client.Display(), DisplayErrorInvalidObject, "bind wl_shm: %v", err)
		}
		for format := range shmFormats {
			s.Format(format)
		}
		return nil
	})
}

func (s *Shm) Interface() string {
	return ShmInterface
}

func (s *Shm) MethodName(op uint16) string {
	switch op {
	case shmRequestCreatePool:
		return "create_pool"
	case shmRequestRelease:
		return "release"
	}
	return "unknown"
}

func (s *Shm) Dispatch(msg *wire.MessageBuffer) error {
	switch msg.Op() {
	case shmRequestCreatePool:
		id := msg.ReadUint()
		file := msg.ReadFile()
		size := msg.ReadInt()
		if err := msg.Err(); err != nil {
			return err
		}
		return s.createPool(id, file, size)

	case shmRequestRelease:
		if err := since(s, 2, "release"); err != nil {
			return err
		}
		if err := msg.Err(); err != nil {
			return err
		}
		s.client.destroy(s)
		return nil

	default:
		return wire.UnknownOpError{Interface: ShmInterface, Type: "request", Op: msg.Op()}
	}
}

func (s *Shm) createPool(id uint32, file *os.File, size int32) error {
	if size <= 0 {
		file.Close()
		return protoErr(s, ShmErrorInvalidStride, "create_pool: invalid size %v", size)
	}
	if fsize, err := shm.Size(file); err != nil || fsize < int64(size) {
		file.Close()
		return protoErr(s, ShmErrorInvalidFd, "create_pool: fd smaller than declared size %v", size)
	}

	mmap, err := shm.MapPool(file, int(size))
	if err != nil {
		file.Close()
		return protoErr(s, ShmErrorInvalidFd, "create_pool: mmap: %v", err)
	}

	pool := &ShmPool{
		object: object{version: s.version, client: s.client},
		file:   file,
		mmap:   mmap,
		size:   size,
		refs:   1,
	}
	if err := s.client.store.AddClient(id, pool); err != nil {
		pool.unref()
		return protoErr(s, DisplayErrorInvalidObject, "create_pool: %v", err)
	}
	return nil
}

// Format advertises a supported pixel format.
func (s *Shm) Format(format ShmFormat) {
	msg := wire.NewMessage(s, shmEventFormat)
	msg.Method = "format"
	msg.Args = []any{uint32(format)}
	msg.WriteUint(uint32(format))
	s.client.Enqueue(msg)
}
