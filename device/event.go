package device

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/cwbudde/algo-bicgstab/device/driver"
)

// Event is the completion token of one submitted command.
//
// Events are reference counted. The submitter owns the first reference;
// every additional holder calls Retain and later Release. The native handle
// is released when the last reference goes.
type Event struct {
	native driver.Event
	kind   CommandKind
	refs   atomic.Int32
}

func newEvent(native driver.Event, kind CommandKind) *Event {
	e := &Event{native: native, kind: kind}
	e.refs.Store(1)

	return e
}

// Kind reports which command the event guards.
func (e *Event) Kind() CommandKind {
	return e.kind
}

// Wait blocks until the command has completed. There is no timeout; use
// WaitContext to bound the wait.
func (e *Event) Wait() error {
	if e.refs.Load() <= 0 {
		return ErrReleased
	}

	if err := e.native.Wait(); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrQueueSubmission, e.kind, err)
	}

	return nil
}

// WaitContext is Wait bounded by ctx. On cancellation the command keeps
// running; only the caller stops waiting.
func (e *Event) WaitContext(ctx context.Context) error {
	if ctx.Done() == nil {
		return e.Wait()
	}

	if e.Complete() {
		return e.Wait()
	}

	// The waiter may outlive a cancelled caller, so it holds a reference.
	e.Retain()

	done := make(chan error, 1)

	go func() {
		defer func() { _ = e.Release() }()

		done <- e.Wait()
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Status returns the execution state of the command.
func (e *Event) Status() (Status, error) {
	if e.refs.Load() <= 0 {
		return driver.StatusFailed, ErrReleased
	}

	return e.native.Status()
}

// Complete reports without blocking whether the command has finished,
// successfully or not.
func (e *Event) Complete() bool {
	st, err := e.Status()
	if err != nil {
		return true
	}

	return st == driver.StatusComplete || st == driver.StatusFailed
}

// Profile returns the device timestamps of the command. It is only
// meaningful once the command has completed.
func (e *Event) Profile() (Profile, error) {
	if e.refs.Load() <= 0 {
		return Profile{}, ErrReleased
	}

	return e.native.Profile()
}

// Elapsed returns the execution time of the command, or zero if profiling
// information is unavailable.
func (e *Event) Elapsed() time.Duration {
	p, err := e.Profile()
	if err != nil {
		return 0
	}

	return p.Elapsed()
}

// Retain adds a reference and returns e.
func (e *Event) Retain() *Event {
	e.refs.Add(1)
	return e
}

// Release drops a reference. The native handle is released with the last one.
func (e *Event) Release() error {
	if e == nil {
		return nil
	}

	switch n := e.refs.Add(-1); {
	case n > 0:
		return nil
	case n == 0:
		return e.native.Release()
	default:
		return ErrReleased
	}
}

// WaitSet is the immutable set of events a command waits for.
type WaitSet struct {
	events []*Event
}

// After returns a wait set of the given events. Nil events and duplicates are
// dropped, so callers can pass optional dependencies directly.
func After(events ...*Event) WaitSet {
	var w WaitSet

	return w.With(events...)
}

// With returns a new set containing w and events.
func (w WaitSet) With(events ...*Event) WaitSet {
	out := make([]*Event, 0, len(w.events)+len(events))
	out = append(out, w.events...)

next:
	for _, e := range events {
		if e == nil {
			continue
		}

		for _, have := range out {
			if have == e {
				continue next
			}
		}

		out = append(out, e)
	}

	return WaitSet{events: out}
}

// Len returns the number of events in the set.
func (w WaitSet) Len() int {
	return len(w.events)
}

// Events returns a copy of the events in the set.
func (w WaitSet) Events() []*Event {
	return append([]*Event(nil), w.events...)
}

// Wait is a host fence: it blocks until every event in the set has
// completed and returns the joined errors.
func (w WaitSet) Wait() error {
	var errs []error

	for _, e := range w.events {
		if err := e.Wait(); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// WaitContext is Wait bounded by ctx.
func (w WaitSet) WaitContext(ctx context.Context) error {
	var errs []error

	for _, e := range w.events {
		if err := e.WaitContext(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}

			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

func (w WaitSet) natives() ([]driver.Event, error) {
	if len(w.events) == 0 {
		return nil, nil
	}

	out := make([]driver.Event, len(w.events))
	for i, e := range w.events {
		if e.refs.Load() <= 0 {
			return nil, fmt.Errorf("%w: event in wait set", ErrReleased)
		}

		out[i] = e.native
	}

	return out, nil
}
