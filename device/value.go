package device

import (
	"errors"
	"fmt"

	"github.com/cwbudde/algo-bicgstab/device/driver"
)

// Value bundles a HostArray, a Buffer of the same element count and the queue
// its transfers go to.
//
// Host and device copies are not kept coherent. Host-side element access is
// only meaningful after the Event of the last device write to the value (and
// a Read) has been waited on.
type Value[T Element] struct {
	host  *HostArray[T]
	buf   *Buffer[T]
	queue *Queue
}

// NewValue allocates a zeroed value of n elements on the session.
func NewValue[T Element](s *Session, n int, flags MemFlags) (*Value[T], error) {
	return NewValueOn[T](s.ctx, s.queue, n, flags)
}

// NewValueFrom allocates a value whose host copy holds src. The device copy
// holds src as well when flags include MemCopyHostPtr or MemUseHostPtr;
// otherwise call Write.
func NewValueFrom[T Element](s *Session, src []T, flags MemFlags) (*Value[T], error) {
	host, err := HostArrayFrom(src)
	if err != nil {
		return nil, err
	}

	return newValue(s.ctx, s.queue, host, flags)
}

// NewValueOn allocates a zeroed value of n elements on an explicit context
// and queue.
func NewValueOn[T Element](ctx *Context, q *Queue, n int, flags MemFlags) (*Value[T], error) {
	host, err := NewHostArray[T](n)
	if err != nil {
		return nil, err
	}

	return newValue(ctx, q, host, flags)
}

func newValue[T Element](ctx *Context, q *Queue, host *HostArray[T], flags MemFlags) (*Value[T], error) {
	if q == nil {
		_ = host.Free()
		return nil, fmt.Errorf("%w: nil queue", ErrReleased)
	}

	buf, err := NewBuffer(ctx, host, flags)
	if err != nil {
		_ = host.Free()
		return nil, err
	}

	return &Value[T]{host: host, buf: buf, queue: q}, nil
}

// Len returns the element count.
func (v *Value[T]) Len() int {
	return v.host.Len()
}

// Host returns the host copy. No synchronisation is implied.
func (v *Value[T]) Host() []T {
	return v.host.Slice()
}

// Buffer returns the device copy.
func (v *Value[T]) Buffer() *Buffer[T] {
	return v.buf
}

// At returns host element i. Unguarded: the caller must have synchronised.
func (v *Value[T]) At(i int) T {
	return v.host.data[i]
}

// Set stores host element i. Unguarded: the caller must Write afterwards.
func (v *Value[T]) Set(i int, x T) {
	v.host.data[i] = x
}

// Read copies device to host after wait and returns the guarding event. A
// blocking read returns once the host copy is valid.
func (v *Value[T]) Read(blocking bool, wait WaitSet) (*Event, error) {
	return v.buf.Read(v.queue, blocking, wait)
}

// Write copies host to device after wait and returns the guarding event.
// The host copy must not change until the event completes.
func (v *Value[T]) Write(blocking bool, wait WaitSet) (*Event, error) {
	return v.buf.Write(v.queue, blocking, wait)
}

// CopyTo copies the device copy into dst's device copy after wait.
func (v *Value[T]) CopyTo(dst *Value[T], wait WaitSet) (*Event, error) {
	return v.buf.CopyTo(v.queue, dst.buf, wait)
}

// Dot is the host-side inner product of the host copies.
func (v *Value[T]) Dot(other *Value[T]) T {
	return Dot(v.host.data, other.host.data)
}

// Release frees the device buffer, then the host array. Commands still
// using the value finish first: the driver keeps the device memory alive and
// the host array waits for its pending transfers.
func (v *Value[T]) Release() error {
	if v == nil {
		return nil
	}

	var errs []error

	if err := v.buf.Release(); err != nil && !errors.Is(err, driver.ErrReleased) {
		errs = append(errs, err)
	}

	if err := v.host.Free(); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

func (v *Value[T]) hostUse() *hostUsers {
	if v == nil {
		return nil
	}

	return v.buf.hostUse()
}

func (v *Value[T]) nativeBuffer() driver.Buffer {
	if v == nil {
		return nil
	}

	return v.buf.nativeBuffer()
}

// Dot returns Σ x[i]*y[i] over the shorter of the two slices.
func Dot[T Element](x, y []T) T {
	n := min(len(x), len(y))

	var acc T
	for i := 0; i < n; i++ {
		acc += x[i] * y[i]
	}

	return acc
}
