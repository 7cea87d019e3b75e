package device

import (
	"fmt"
	"sync"
	"unsafe"

	"github.com/cwbudde/algo-bicgstab/device/driver"
	"github.com/cwbudde/algo-bicgstab/internal/hostmem"
)

// HostArray is an exclusively owned, page-aligned block of n elements in host
// memory. It never resizes and is freed exactly once.
//
// Commands that touch the memory (transfers, and any command on a buffer
// created with MemUseHostPtr) are tracked; Free waits for them.
type HostArray[T Element] struct {
	block *hostmem.Block
	data  []T
	users hostUsers
}

// NewHostArray allocates a zeroed host array of n elements.
func NewHostArray[T Element](n int) (*HostArray[T], error) {
	if n < 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidLength, n)
	}

	block, err := hostmem.Alloc(n * elemSize[T]())
	if err != nil {
		return nil, fmt.Errorf("%w: host array of %d elements: %w", ErrAllocation, n, err)
	}

	h := &HostArray[T]{block: block}
	if n > 0 {
		h.data = unsafe.Slice((*T)(unsafe.Pointer(&block.Bytes()[0])), n)
	} else {
		h.data = []T{}
	}

	return h, nil
}

// HostArrayFrom allocates a host array holding a copy of src.
func HostArrayFrom[T Element](src []T) (*HostArray[T], error) {
	h, err := NewHostArray[T](len(src))
	if err != nil {
		return nil, err
	}

	copy(h.data, src)

	return h, nil
}

// Len returns the element count.
func (h *HostArray[T]) Len() int {
	return len(h.data)
}

// Slice returns the elements. The slice must not be used after Free.
func (h *HostArray[T]) Slice() []T {
	return h.data
}

// Bytes returns the raw backing memory.
func (h *HostArray[T]) Bytes() []byte {
	return h.block.Bytes()
}

// Free waits for pending commands on the memory, then releases it. Calls
// after the first are no-ops.
func (h *HostArray[T]) Free() error {
	if h == nil {
		return nil
	}

	h.users.drain()
	h.data = nil

	return h.block.Free()
}

// Buffer is a device allocation mirroring one HostArray element for element.
// It must be released no later than its HostArray.
type Buffer[T Element] struct {
	native driver.Buffer
	host   *HostArray[T]
	flags  MemFlags
}

// NewBuffer allocates device memory sized from host. With MemUseHostPtr the
// driver may back the allocation with host's memory directly; with
// MemCopyHostPtr the allocation starts out holding host's contents.
func NewBuffer[T Element](ctx *Context, host *HostArray[T], flags MemFlags) (*Buffer[T], error) {
	if ctx == nil || ctx.native == nil {
		return nil, ErrReleased
	}

	if host == nil || host.data == nil {
		return nil, fmt.Errorf("%w: host array", ErrReleased)
	}

	native, err := ctx.native.NewBuffer(flags, host.Bytes())
	if err != nil {
		return nil, fmt.Errorf("%w: buffer of %d elements: %w", ErrAllocation, host.Len(), err)
	}

	return &Buffer[T]{native: native, host: host, flags: flags}, nil
}

// Len returns the element count.
func (b *Buffer[T]) Len() int {
	return b.host.Len()
}

// Flags returns the access-intent flags the buffer was created with.
func (b *Buffer[T]) Flags() MemFlags {
	return b.flags
}

// Host returns the paired host array.
func (b *Buffer[T]) Host() *HostArray[T] {
	return b.host
}

// Read copies the buffer into its host array (device to host).
func (b *Buffer[T]) Read(q *Queue, blocking bool, wait WaitSet) (*Event, error) {
	if b.native == nil {
		return nil, ErrReleased
	}

	ev, err := q.enqueueRead(b.native, blocking, b.host.Bytes(), wait)
	if err != nil {
		return nil, err
	}

	b.host.users.add(ev)

	return ev, nil
}

// Write copies the host array into the buffer (host to device).
func (b *Buffer[T]) Write(q *Queue, blocking bool, wait WaitSet) (*Event, error) {
	if b.native == nil {
		return nil, ErrReleased
	}

	ev, err := q.enqueueWrite(b.native, blocking, b.host.Bytes(), wait)
	if err != nil {
		return nil, err
	}

	b.host.users.add(ev)

	return ev, nil
}

// CopyTo copies the buffer into dst on the device.
func (b *Buffer[T]) CopyTo(q *Queue, dst *Buffer[T], wait WaitSet) (*Event, error) {
	if b.native == nil || dst == nil || dst.native == nil {
		return nil, ErrReleased
	}

	if b.Len() != dst.Len() {
		return nil, fmt.Errorf("%w: copy %d elements into %d", ErrLengthMismatch, b.Len(), dst.Len())
	}

	ev, err := q.enqueueCopy(b.native, dst.native, b.Len()*elemSize[T](), wait)
	if err != nil {
		return nil, err
	}

	for _, u := range []*hostUsers{b.hostUse(), dst.hostUse()} {
		if u != nil {
			u.add(ev)
		}
	}

	return ev, nil
}

// Release frees the device allocation. Calls after the first are no-ops.
func (b *Buffer[T]) Release() error {
	if b == nil || b.native == nil {
		return nil
	}

	err := b.native.Release()
	b.native = nil

	return err
}

func (b *Buffer[T]) nativeBuffer() driver.Buffer {
	if b == nil {
		return nil
	}

	return b.native
}

// hostUse returns the host array's tracker when device commands on the
// buffer access host memory directly.
func (b *Buffer[T]) hostUse() *hostUsers {
	if b == nil || !b.flags.Has(MemUseHostPtr) {
		return nil
	}

	return &b.host.users
}

// memObject is implemented by everything that can be bound as a buffer
// kernel argument.
type memObject interface {
	nativeBuffer() driver.Buffer
	hostUse() *hostUsers
}

// hostUsers holds references to the unfinished commands that access one
// host array.
type hostUsers struct {
	mu     sync.Mutex
	events []*Event
}

func (u *hostUsers) add(e *Event) {
	u.mu.Lock()
	defer u.mu.Unlock()

	live := u.events[:0]

	for _, p := range u.events {
		if p.Complete() {
			_ = p.Release()
			continue
		}

		live = append(live, p)
	}

	u.events = live

	if !e.Complete() {
		u.events = append(u.events, e.Retain())
	}
}

// drain waits for every tracked command. Command failures were reported
// through the events themselves.
func (u *hostUsers) drain() {
	u.mu.Lock()
	events := u.events
	u.events = nil
	u.mu.Unlock()

	for _, e := range events {
		_ = e.Wait()
		_ = e.Release()
	}
}

func elemSize[T Element]() int {
	var zero T
	return int(unsafe.Sizeof(zero))
}
