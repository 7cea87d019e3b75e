//go:build unix

package hostmem

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// PageSize is the alignment every block honours.
var PageSize = unix.Getpagesize()

// OffHeap reports whether blocks live outside the Go heap.
const OffHeap = true

func allocPages(size int) ([]byte, func([]byte) error, error) {
	buf, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return nil, nil, fmt.Errorf("hostmem: mmap %d bytes: %w", size, err)
	}

	return buf, unix.Munmap, nil
}
