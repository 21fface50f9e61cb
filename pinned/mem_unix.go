//go:build unix

package pinned

import (
	"errors"
	"unsafe"

	"golang.org/x/sys/unix"
)

// mapLocked maps n zeroed words of anonymous memory and locks them in RAM.
func mapLocked(n int) (data []uint64, release func() error, err error) {

	var region []byte
	if region, err = unix.Mmap(-1, 0, n*8, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE); err != nil {
		return nil, nil, err
	}

	if err = unix.Mlock(region); err != nil {
		return nil, nil, errors.Join(err, unix.Munmap(region))
	}

	data = unsafe.Slice((*uint64)(unsafe.Pointer(&region[0])), n)

	release = func() error {
		return errors.Join(unix.Munlock(region), unix.Munmap(region))
	}

	return
}
