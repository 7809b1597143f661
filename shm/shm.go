// Package shm provides helpers for dealing with shared memory.
package shm

import (
	"os"

	"golang.org/x/sys/unix"
)

type Mmap []byte

// MapShared maps size bytes of file into memory with protection prot.
func MapShared(file *os.File, size int, prot int) (mmap Mmap, err error) {
	sc, err := file.SyscallConn()
	if err != nil {
		return nil, err
	}

	sc.Control(func(fd uintptr) {
		m, merr := unix.Mmap(int(fd), 0, size, prot, unix.MAP_SHARED)
		mmap, err = Mmap(m), merr
	})

	return mmap, err
}

// MapPool maps a client-provided pool file descriptor read-only, the
// way a compositor views client memory.
func MapPool(file *os.File, size int) (Mmap, error) {
	return MapShared(file, size, unix.PROT_READ)
}

func (mmap Mmap) Unmap() error {
	return unix.Munmap(mmap)
}

// Size returns the current size of the file backing a pool. It is
// used to validate client-declared pool sizes.
func Size(file *os.File) (int64, error) {
	info, err := file.Stat()
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}
