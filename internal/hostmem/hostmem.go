// Package hostmem allocates page-aligned host memory blocks that live outside
// the Go heap where the platform allows it (mmap on unix, VirtualAlloc on
// windows), so drivers may keep pointers into them across asynchronous
// transfers. OffHeap reports which case applies.
package hostmem

import (
	"errors"
	"fmt"
	"sync"
	"unsafe"
)

// ErrInvalidSize is returned for negative allocation sizes.
var ErrInvalidSize = errors.New("hostmem: invalid size")

// Block is an exclusively owned, page-aligned memory block.
type Block struct {
	buf     []byte
	release func([]byte) error
	once    sync.Once
}

// Alloc returns a zeroed block of exactly size bytes whose first byte is
// aligned to the system page size.
func Alloc(size int) (*Block, error) {
	if size < 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidSize, size)
	}

	if size == 0 {
		return &Block{buf: []byte{}}, nil
	}

	buf, release, err := allocPages(size)
	if err != nil {
		return nil, err
	}

	return &Block{buf: buf, release: release}, nil
}

// Bytes returns the block contents. The slice is nil after Free.
func (b *Block) Bytes() []byte {
	return b.buf
}

// Len returns the block size in bytes.
func (b *Block) Len() int {
	return len(b.buf)
}

// Free releases the block. Calls after the first are no-ops.
func (b *Block) Free() error {
	var err error

	b.once.Do(func() {
		if b.release != nil {
			err = b.release(b.buf)
		}
		b.buf = nil
	})

	return err
}

// Aligned reports whether p sits on an align-byte boundary.
func Aligned(p []byte, align int) bool {
	if len(p) == 0 {
		return true
	}

	return uintptr(unsafe.Pointer(&p[0]))%uintptr(align) == 0
}
