package soft

import (
	"fmt"
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/cwbudde/algo-bicgstab/device/driver"
	"github.com/cwbudde/algo-bicgstab/internal/hostmem"
)

// buffer is device memory. With MemUseHostPtr it aliases the caller's host
// memory; otherwise it owns a page-aligned block.
//
// Every submitted command pins the buffers it touches. Release only marks
// the buffer; the block is freed once the last pinning command finishes.
type buffer struct {
	ctx      *softContext
	flags    driver.MemFlags
	data     []byte
	block    *hostmem.Block
	id       uint64
	released atomic.Bool

	mu   sync.Mutex
	pins int
}

var bufferIDs atomic.Uint64

func newBuffer(ctx *softContext, flags driver.MemFlags, host []byte) (*buffer, error) {
	if flags.Has(driver.MemUseHostPtr) && flags.Has(driver.MemCopyHostPtr) {
		return nil, fmt.Errorf("%w: use-host-ptr with copy-host-ptr", driver.ErrInvalidFlags)
	}

	if flags.Has(driver.MemReadOnly) && flags.Has(driver.MemWriteOnly) {
		return nil, fmt.Errorf("%w: read-only with write-only", driver.ErrInvalidFlags)
	}

	b := &buffer{ctx: ctx, flags: flags, id: bufferIDs.Add(1)}

	if flags.Has(driver.MemUseHostPtr) {
		b.data = host
		return b, nil
	}

	block, err := hostmem.Alloc(len(host))
	if err != nil {
		return nil, err
	}

	b.block = block
	b.data = block.Bytes()

	if flags.Has(driver.MemCopyHostPtr) {
		copy(b.data, host)
	}

	return b, nil
}

func (b *buffer) Size() int {
	return len(b.data)
}

func (b *buffer) Flags() driver.MemFlags {
	return b.flags
}

func (b *buffer) String() string {
	return fmt.Sprintf("buffer#%d(%d bytes)", b.id, len(b.data))
}

func (b *buffer) Release() error {
	b.mu.Lock()
	if b.released.Load() {
		b.mu.Unlock()
		return driver.ErrReleased
	}

	b.released.Store(true)
	idle := b.pins == 0
	b.mu.Unlock()

	b.ctx.forget(b)

	if idle {
		return b.free()
	}

	return nil
}

func (b *buffer) free() error {
	if b.block == nil {
		return nil
	}

	return b.block.Free()
}

// pin keeps the memory alive for a command. It fails once Release has run.
func (b *buffer) pin() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.released.Load() {
		return fmt.Errorf("%s: %w", b, driver.ErrReleased)
	}

	b.pins++

	return nil
}

func (b *buffer) unpin() {
	b.mu.Lock()
	b.pins--
	last := b.pins == 0 && b.released.Load()
	b.mu.Unlock()

	if last {
		_ = b.free()
	}
}

// span validates a range at enqueue time.
func (b *buffer) span(offset, size int) ([]byte, error) {
	if b.released.Load() {
		return nil, driver.ErrReleased
	}

	return b.window(offset, size)
}

// window slices the memory without the release check. Commands use it while
// they hold a pin.
func (b *buffer) window(offset, size int) ([]byte, error) {
	if offset < 0 || size < 0 || offset+size > len(b.data) {
		return nil, fmt.Errorf("%w: [%d,%d) of %d bytes", driver.ErrOutOfRange, offset, offset+size, len(b.data))
	}

	return b.data[offset : offset+size], nil
}

func sameMemory(a, b []byte) bool {
	if len(a) == 0 || len(b) == 0 {
		return len(a) == len(b)
	}

	return unsafe.Pointer(&a[0]) == unsafe.Pointer(&b[0]) && len(a) == len(b)
}

// view reinterprets raw device memory as a slice of T.
func view[T any](raw []byte) []T {
	var zero T

	size := int(unsafe.Sizeof(zero))
	if len(raw) < size {
		return nil
	}

	return unsafe.Slice((*T)(unsafe.Pointer(&raw[0])), len(raw)/size)
}
