package device

import (
	"fmt"

	"github.com/cwbudde/algo-bicgstab/device/driver"
)

// Queue submits commands to one device. Unless created with QueueInOrder it
// may run commands that share no dependency in any order.
type Queue struct {
	native driver.Queue
	ctx    *Context
	props  QueueProperties
}

// Context returns the context the queue belongs to.
func (q *Queue) Context() *Context {
	return q.ctx
}

// InOrder reports whether the queue serialises its commands.
func (q *Queue) InOrder() bool {
	return q.props&QueueInOrder != 0
}

// EnqueueKernel dispatches k over global work-items grouped by local.
// The argument bindings in effect at this call are the ones used.
func (q *Queue) EnqueueKernel(k *Kernel, global, local NDRange, wait WaitSet) (*Event, error) {
	if q.native == nil {
		return nil, ErrReleased
	}

	if k == nil || k.native == nil {
		return nil, fmt.Errorf("%w: nil kernel", ErrQueueSubmission)
	}

	deps, err := wait.natives()
	if err != nil {
		return nil, err
	}

	ev, err := q.native.EnqueueKernel(k.native, global, local, deps)
	if err != nil {
		return nil, fmt.Errorf("%w: kernel %s: %w", ErrQueueSubmission, k.Name(), err)
	}

	e := newEvent(ev, CommandKernel)

	for _, u := range k.hosts {
		u.add(e)
	}

	return e, nil
}

func (q *Queue) enqueueRead(b driver.Buffer, blocking bool, dst []byte, wait WaitSet) (*Event, error) {
	if q.native == nil {
		return nil, ErrReleased
	}

	deps, err := wait.natives()
	if err != nil {
		return nil, err
	}

	ev, err := q.native.EnqueueRead(b, blocking, 0, dst, deps)
	if err != nil {
		return nil, fmt.Errorf("%w: read: %w", ErrQueueSubmission, err)
	}

	return newEvent(ev, CommandRead), nil
}

func (q *Queue) enqueueWrite(b driver.Buffer, blocking bool, src []byte, wait WaitSet) (*Event, error) {
	if q.native == nil {
		return nil, ErrReleased
	}

	deps, err := wait.natives()
	if err != nil {
		return nil, err
	}

	ev, err := q.native.EnqueueWrite(b, blocking, 0, src, deps)
	if err != nil {
		return nil, fmt.Errorf("%w: write: %w", ErrQueueSubmission, err)
	}

	return newEvent(ev, CommandWrite), nil
}

func (q *Queue) enqueueCopy(src, dst driver.Buffer, size int, wait WaitSet) (*Event, error) {
	if q.native == nil {
		return nil, ErrReleased
	}

	deps, err := wait.natives()
	if err != nil {
		return nil, err
	}

	ev, err := q.native.EnqueueCopy(src, dst, 0, 0, size, deps)
	if err != nil {
		return nil, fmt.Errorf("%w: copy: %w", ErrQueueSubmission, err)
	}

	return newEvent(ev, CommandCopy), nil
}

// Flush hands queued commands to the device without waiting.
func (q *Queue) Flush() error {
	if q.native == nil {
		return ErrReleased
	}

	return q.native.Flush()
}

// Finish is a full-queue barrier: it blocks until every command submitted
// so far has completed.
func (q *Queue) Finish() error {
	if q.native == nil {
		return ErrReleased
	}

	if err := q.native.Finish(); err != nil {
		return fmt.Errorf("%w: finish: %w", ErrQueueSubmission, err)
	}

	return nil
}

// Release drains and releases the queue. Calls after the first are no-ops.
func (q *Queue) Release() error {
	if q == nil || q.native == nil {
		return nil
	}

	err := q.native.Release()
	q.native = nil

	return err
}
