package bicgstab

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cwbudde/algo-bicgstab/device"
	"github.com/cwbudde/algo-bicgstab/internal/numeric"
)

// dotSlot holds the device storage of one inner product: the per-group
// partial sums and the final scalar.
type dotSlot[T Float] struct {
	partial *device.Value[T]
	result  *device.Value[T]
}

// workspace is the device state of one Solve. Every command goes through
// submit, which derives its wait set from the operands it touches.
type workspace[T Float] struct {
	sv *Solver[T]
	q  *device.Queue
	n  int

	global, local device.NDRange
	reduce        device.NDRange
	groups        int
	scratch       device.LocalMem

	diag, values, f     *device.Value[T]
	rowStart, colIndex  *device.Value[int32]
	x, r, rHat, p, nu   *device.Value[T]
	h, s, t             *device.Value[T]
	rnu, ss, ts, tt, rr *dotSlot[T]
	rho                 *dotSlot[T]

	owned  []interface{ Release() error }
	deps   *tracker[*device.Value[T]]
	events []*device.Event

	io, kernel, host time.Duration
}

func newWorkspace[T Float](sv *Solver[T], a *Matrix[T], f, x0 []T) (w *workspace[T], err error) {
	s := sv.session
	n := a.N()
	local := sv.opts.LocalSize
	groups := min(sv.opts.ReduceGroups, device.RoundUp(n, local)/local)

	elem := 4
	if numeric.Precision[T]() == "double" {
		elem = 8
	}

	w = &workspace[T]{
		sv:      sv,
		q:       s.Queue(),
		n:       n,
		global:  device.Range1(device.RoundUp(n, local)),
		local:   device.Range1(local),
		reduce:  device.Range1(groups * local),
		groups:  groups,
		scratch: device.Local(local * elem),
		deps:    newTracker[*device.Value[T]](),
	}

	defer func() {
		if err != nil {
			_ = w.close()
			w = nil
		}
	}()

	const constant = device.MemReadOnly | device.MemCopyHostPtr | device.MemHostNoAccess

	if w.diag, err = upload(w, s, a.Diag, constant); err != nil {
		return w, err
	}

	if w.values, err = upload(w, s, nonEmpty(a.Values), constant); err != nil {
		return w, err
	}

	if w.rowStart, err = upload(w, s, a.RowStart, constant); err != nil {
		return w, err
	}

	if w.colIndex, err = upload(w, s, nonEmpty(a.ColIndex), constant); err != nil {
		return w, err
	}

	if w.f, err = upload(w, s, f, constant); err != nil {
		return w, err
	}

	if w.x, err = upload(w, s, x0, device.MemReadWrite|device.MemCopyHostPtr); err != nil {
		return w, err
	}

	for _, v := range []**device.Value[T]{&w.r, &w.rHat, &w.p, &w.nu, &w.h, &w.s, &w.t} {
		if *v, err = alloc[T](w, s, n); err != nil {
			return w, err
		}
	}

	for _, slot := range []**dotSlot[T]{&w.rnu, &w.ss, &w.ts, &w.tt, &w.rr, &w.rho} {
		d := &dotSlot[T]{}
		if d.partial, err = alloc[T](w, s, groups); err != nil {
			return w, err
		}

		if d.result, err = alloc[T](w, s, 1); err != nil {
			return w, err
		}

		*slot = d
	}

	// The matrix is bound once; only the vector operands change between
	// dispatches.
	if err := bind(sv.mul, 0, w.diag, w.values, w.rowStart, w.colIndex, int32(n)); err != nil {
		return w, err
	}

	if err := bind(sv.prepare, 0, w.diag, w.values, w.rowStart, w.colIndex, int32(n), w.f, w.x, w.r); err != nil {
		return w, err
	}

	return w, nil
}

func upload[E device.Element, T Float](w *workspace[T], s *device.Session, src []E, flags device.MemFlags) (*device.Value[E], error) {
	v, err := device.NewValueFrom(s, src, flags)
	if err != nil {
		return nil, err
	}

	w.owned = append(w.owned, v)

	return v, nil
}

func alloc[T Float](w *workspace[T], s *device.Session, n int) (*device.Value[T], error) {
	v, err := device.NewValue[T](s, n, device.MemReadWrite)
	if err != nil {
		return nil, err
	}

	w.owned = append(w.owned, v)

	return v, nil
}

// nonEmpty pads an empty slice to one element; zero-sized device
// allocations are invalid on OpenCL.
func nonEmpty[E device.Element](s []E) []E {
	if len(s) == 0 {
		return make([]E, 1)
	}

	return s
}

func bind(k *device.Kernel, first int, args ...any) error {
	for i, a := range args {
		if err := k.SetArg(first+i, a); err != nil {
			return err
		}
	}

	return nil
}

// close drains the queue, accounts the remaining events and frees the
// device memory.
func (w *workspace[T]) close() error {
	var errs []error

	if err := w.q.Finish(); err != nil {
		errs = append(errs, err)
	}

	w.harvest(true)
	w.deps.reset()

	for i := len(w.owned) - 1; i >= 0; i-- {
		if err := w.owned[i].Release(); err != nil {
			errs = append(errs, err)
		}
	}

	w.owned = nil

	return errors.Join(errs...)
}

// submit issues one command that reads reads and writes writes.
func (w *workspace[T]) submit(reads, writes []*device.Value[T], issue func(device.WaitSet) (*device.Event, error)) (*device.Event, error) {
	ev, err := issue(w.deps.after(reads, writes))
	if err != nil {
		return nil, err
	}

	w.deps.record(ev, reads, writes)
	w.events = append(w.events, ev)

	return ev, nil
}

func (w *workspace[T]) dispatch(k *device.Kernel, global device.NDRange, reads, writes []*device.Value[T]) (*device.Event, error) {
	return w.submit(reads, writes, func(wait device.WaitSet) (*device.Event, error) {
		return k.Dispatch(w.q, global, w.local, wait)
	})
}

// prepareResidual computes r = f - A·x and seeds r_hat and p with r.
func (w *workspace[T]) prepareResidual() error {
	if _, err := w.dispatch(w.sv.prepare, w.global, []*device.Value[T]{w.x}, []*device.Value[T]{w.r}); err != nil {
		return err
	}

	if _, err := w.copy(w.r, w.rHat); err != nil {
		return err
	}

	_, err := w.copy(w.r, w.p)

	return err
}

// mulVec computes y = A·v.
func (w *workspace[T]) mulVec(v, y *device.Value[T]) (*device.Event, error) {
	if err := bind(w.sv.mul, 5, v, y); err != nil {
		return nil, err
	}

	return w.dispatch(w.sv.mul, w.global, []*device.Value[T]{v}, []*device.Value[T]{y})
}

func (w *workspace[T]) copy(src, dst *device.Value[T]) (*device.Event, error) {
	return w.submit([]*device.Value[T]{src}, []*device.Value[T]{dst}, func(wait device.WaitSet) (*device.Event, error) {
		return src.CopyTo(dst, wait)
	})
}

// axpy computes y += a·x.
func (w *workspace[T]) axpy(a T, x, y *device.Value[T]) (*device.Event, error) {
	if err := bind(w.sv.axpy, 0, int32(w.n), scalar(a), x, y); err != nil {
		return nil, err
	}

	return w.dispatch(w.sv.axpy, w.global, []*device.Value[T]{x}, []*device.Value[T]{y})
}

// scale computes x *= a.
func (w *workspace[T]) scale(a T, x *device.Value[T]) (*device.Event, error) {
	if err := bind(w.sv.scale, 0, int32(w.n), scalar(a), x); err != nil {
		return nil, err
	}

	return w.dispatch(w.sv.scale, w.global, nil, []*device.Value[T]{x})
}

// dot reduces ⟨x,y⟩ into slot on the device and starts reading the scalar
// back. The returned event guards slot.result's host copy.
func (w *workspace[T]) dot(x, y *device.Value[T], slot *dotSlot[T]) (*device.Event, error) {
	if err := bind(w.sv.dotPartial, 0, int32(w.n), x, y, slot.partial, w.scratch); err != nil {
		return nil, err
	}

	if _, err := w.dispatch(w.sv.dotPartial, w.reduce, []*device.Value[T]{x, y}, []*device.Value[T]{slot.partial}); err != nil {
		return nil, err
	}

	if err := bind(w.sv.dotEpil, 0, int32(w.groups), slot.partial, slot.result, w.scratch); err != nil {
		return nil, err
	}

	if _, err := w.dispatch(w.sv.dotEpil, w.local, []*device.Value[T]{slot.partial}, []*device.Value[T]{slot.result}); err != nil {
		return nil, err
	}

	return w.readback(slot.result)
}

// readback starts copying v's device contents to its host copy.
func (w *workspace[T]) readback(v *device.Value[T]) (*device.Event, error) {
	return w.submit([]*device.Value[T]{v}, nil, func(wait device.WaitSet) (*device.Event, error) {
		return v.Read(false, wait)
	})
}

// sync is a host synchronisation point: it blocks on evs, bounded by ctx,
// and accounts every completed command.
func (w *workspace[T]) sync(ctx context.Context, evs ...*device.Event) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("bicgstab: %w", err)
	}

	if err := device.After(evs...).WaitContext(ctx); err != nil {
		return fmt.Errorf("bicgstab: %w", err)
	}

	w.harvest(false)

	return nil
}

// fetch reads v back and returns its host copy.
func (w *workspace[T]) fetch(ctx context.Context, v *device.Value[T]) ([]T, error) {
	ev, err := w.readback(v)
	if err != nil {
		return nil, err
	}

	if err := w.sync(ctx, ev); err != nil {
		return nil, err
	}

	return v.Host(), nil
}

// harvest adds the device time of completed commands to the timings and
// drops the creator's reference. With all set, it takes every event.
func (w *workspace[T]) harvest(all bool) {
	pending := w.events[:0]

	for _, ev := range w.events {
		if !all && !ev.Complete() {
			pending = append(pending, ev)
			continue
		}

		if ev.Kind().IsTransfer() {
			w.io += ev.Elapsed()
		} else {
			w.kernel += ev.Elapsed()
		}

		_ = ev.Release()
	}

	clear(w.events[len(pending):])
	w.events = pending
}

// stopwatch adds the time since start to the host arithmetic total.
func (w *workspace[T]) stopwatch(start time.Time) {
	w.host += time.Since(start)
}

// update computes dst = src + a·x as a copy followed by an axpy.
func (w *workspace[T]) update(src *device.Value[T], a T, x, dst *device.Value[T]) error {
	if _, err := w.copy(src, dst); err != nil {
		return err
	}

	_, err := w.axpy(a, x, dst)

	return err
}
