package soft

import (
	"fmt"
	"strings"
	"sync"

	"k8s.io/klog/v2"

	"github.com/cwbudde/algo-bicgstab/device/driver"
)

// HazardKind classifies an unordered pair of accesses to one buffer.
type HazardKind uint8

const (
	ReadAfterWrite HazardKind = iota
	WriteAfterRead
	WriteAfterWrite
)

func (k HazardKind) String() string {
	switch k {
	case ReadAfterWrite:
		return "read-after-write"
	case WriteAfterRead:
		return "write-after-read"
	case WriteAfterWrite:
		return "write-after-write"
	default:
		return fmt.Sprintf("HazardKind(%d)", uint8(k))
	}
}

// Hazard reports a command that touches a buffer without being ordered
// after an earlier conflicting command.
type Hazard struct {
	Kind     HazardKind
	Buffer   string
	Command  string
	Conflict string
}

func (h Hazard) String() string {
	return fmt.Sprintf("%s on %s: %s is not ordered after %s", h.Kind, h.Buffer, h.Command, h.Conflict)
}

type access struct {
	buf   *buffer
	write bool
}

type bufferState struct {
	writer  *event
	readers []*event
}

// hazardTracker keeps the last writer and the readers since that write for
// every buffer and checks new commands against them. A command is ordered
// after an earlier one when the host observed the earlier one's completion
// or the earlier one is reachable through the new command's dependencies.
type hazardTracker struct {
	mode HazardMode

	mu      sync.Mutex
	state   map[*buffer]*bufferState
	reports []Hazard
}

func newHazardTracker(mode HazardMode) *hazardTracker {
	if mode == HazardOff {
		return nil
	}

	return &hazardTracker{mode: mode, state: make(map[*buffer]*bufferState)}
}

// check validates the accesses of e and records them. In strict mode a
// hazard rejects e and leaves the state untouched.
func (t *hazardTracker) check(e *event, accesses []access) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	accesses = mergeAccesses(accesses)

	var found []Hazard

	report := func(kind HazardKind, b *buffer, other *event) {
		found = append(found, Hazard{Kind: kind, Buffer: b.String(), Command: e.String(), Conflict: other.String()})
	}

	for _, a := range accesses {
		st := t.state[a.buf]
		if st == nil {
			continue
		}

		if st.writer != nil && !t.ordered(st.writer, e) {
			if a.write {
				report(WriteAfterWrite, a.buf, st.writer)
			} else {
				report(ReadAfterWrite, a.buf, st.writer)
			}
		}

		if a.write {
			for _, r := range st.readers {
				if !t.ordered(r, e) {
					report(WriteAfterRead, a.buf, r)
				}
			}
		}
	}

	if len(found) > 0 {
		t.reports = append(t.reports, found...)

		msgs := make([]string, len(found))
		for i, h := range found {
			msgs[i] = h.String()
		}

		if t.mode == HazardStrict {
			return fmt.Errorf("%w: %s", driver.ErrUnorderedAccess, strings.Join(msgs, "; "))
		}

		for _, msg := range msgs {
			klog.Warningf("soft: unordered access: %s", msg)
		}
	}

	for _, a := range accesses {
		st := t.state[a.buf]
		if st == nil {
			st = &bufferState{}
			t.state[a.buf] = st
		}

		if a.write {
			st.writer = e
			st.readers = st.readers[:0]

			continue
		}

		live := st.readers[:0]
		for _, r := range st.readers {
			if !r.observed {
				live = append(live, r)
			}
		}

		st.readers = append(live, e)
	}

	return nil
}

// ordered reports whether a happens before e. Dependencies only point to
// older commands, so the search stops below a's sequence number.
func (t *hazardTracker) ordered(a, e *event) bool {
	if a == e || a.observed {
		return true
	}

	seen := make(map[*event]struct{})
	stack := append([]*event(nil), e.deps...)

	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if n == a {
			return true
		}

		if n.observed || n.seq < a.seq {
			continue
		}

		if _, ok := seen[n]; ok {
			continue
		}

		seen[n] = struct{}{}
		stack = append(stack, n.deps...)
	}

	return false
}

// observe marks e and everything it depends on as seen complete by the host.
func (t *hazardTracker) observe(e *event) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.observeLocked(e)
}

func (t *hazardTracker) observeLocked(e *event) {
	stack := []*event{e}

	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if n.observed {
			continue
		}

		n.observed = true
		stack = append(stack, n.deps...)
		n.deps = nil
	}
}

// observeAll marks every tracked command as observed.
func (t *hazardTracker) observeAll() {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, st := range t.state {
		if st.writer != nil {
			t.observeLocked(st.writer)
		}

		for _, r := range st.readers {
			t.observeLocked(r)
		}

		st.readers = st.readers[:0]
	}
}

func (t *hazardTracker) forget(b *buffer) {
	t.mu.Lock()
	delete(t.state, b)
	t.mu.Unlock()
}

func (t *hazardTracker) snapshot() []Hazard {
	t.mu.Lock()
	defer t.mu.Unlock()

	return append([]Hazard(nil), t.reports...)
}

func (t *hazardTracker) reset() {
	t.mu.Lock()
	t.reports = nil
	t.mu.Unlock()
}

// mergeAccesses folds repeated accesses to one buffer into a single access
// that writes if any of them writes.
func mergeAccesses(accesses []access) []access {
	out := make([]access, 0, len(accesses))

	for _, a := range accesses {
		merged := false

		for i := range out {
			if out[i].buf == a.buf {
				out[i].write = out[i].write || a.write
				merged = true

				break
			}
		}

		if !merged {
			out = append(out, a)
		}
	}

	return out
}
