package bicgstab

import "github.com/cwbudde/algo-bicgstab/device"

// access is the last write to one operand and the reads issued since.
type access struct {
	write *device.Event
	reads []*device.Event
}

// tracker derives the wait set of every submission from the operands it
// touches: reads wait for the last write (RAW), writes wait for the last
// write (WAW) and for every read since (WAR). It holds a reference on
// every event it remembers.
type tracker[K comparable] struct {
	ops map[K]*access
}

func newTracker[K comparable]() *tracker[K] {
	return &tracker[K]{ops: make(map[K]*access)}
}

func (t *tracker[K]) get(k K) *access {
	a := t.ops[k]
	if a == nil {
		a = &access{}
		t.ops[k] = a
	}

	return a
}

// after returns the wait set for a command reading reads and writing writes.
func (t *tracker[K]) after(reads, writes []K) device.WaitSet {
	var wait device.WaitSet

	for _, k := range reads {
		wait = wait.With(t.get(k).write)
	}

	for _, k := range writes {
		a := t.get(k)
		wait = wait.With(a.write).With(a.reads...)
	}

	return wait
}

// record makes ev the latest access to its operands.
func (t *tracker[K]) record(ev *device.Event, reads, writes []K) {
	for _, k := range writes {
		a := t.get(k)

		_ = a.write.Release()
		for _, r := range a.reads {
			_ = r.Release()
		}

		a.write = ev.Retain()
		a.reads = a.reads[:0]
	}

	for _, k := range reads {
		if contains(writes, k) {
			continue
		}

		a := t.get(k)
		a.reads = append(a.reads, ev.Retain())
	}
}

// reset drops every remembered event.
func (t *tracker[K]) reset() {
	for k, a := range t.ops {
		_ = a.write.Release()
		for _, r := range a.reads {
			_ = r.Release()
		}

		delete(t.ops, k)
	}
}

func contains[K comparable](s []K, k K) bool {
	for _, v := range s {
		if v == k {
			return true
		}
	}

	return false
}
