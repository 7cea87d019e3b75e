//go:build windows

package hostmem

import (
	"fmt"
	"os"
	"unsafe"

	"golang.org/x/sys/windows"
)

// PageSize is the alignment every block honours.
var PageSize = os.Getpagesize()

// OffHeap reports whether blocks live outside the Go heap.
const OffHeap = true

func allocPages(size int) ([]byte, func([]byte) error, error) {
	addr, err := windows.VirtualAlloc(0, uintptr(size), windows.MEM_COMMIT|windows.MEM_RESERVE, windows.PAGE_READWRITE)
	if err != nil {
		return nil, nil, fmt.Errorf("hostmem: VirtualAlloc %d bytes: %w", size, err)
	}

	buf := unsafe.Slice((*byte)(unsafe.Pointer(addr)), size)

	return buf, func(b []byte) error {
		return windows.VirtualFree(uintptr(unsafe.Pointer(&b[0])), 0, windows.MEM_RELEASE)
	}, nil
}
