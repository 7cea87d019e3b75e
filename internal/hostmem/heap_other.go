//go:build !unix && !windows

package hostmem

import (
	"os"
	"unsafe"
)

// PageSize is the alignment every block honours.
var PageSize = os.Getpagesize()

// OffHeap reports whether blocks live outside the Go heap. Here they do not,
// so drivers must not keep pointers into them after a call returns.
const OffHeap = false

// allocPages over-allocates on the Go heap and slices at the first page
// boundary. The backing array stays reachable through the returned slice.
func allocPages(size int) ([]byte, func([]byte) error, error) {
	raw := make([]byte, size+PageSize)
	off := 0

	if rem := uintptr(unsafe.Pointer(&raw[0])) % uintptr(PageSize); rem != 0 {
		off = PageSize - int(rem)
	}

	return raw[off : off+size : off+size], nil, nil
}
