package soft

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cwbudde/algo-bicgstab/device/driver"
	"github.com/cwbudde/algo-bicgstab/internal/cpu"
)

const defaultGroupLimit = 64

// queue runs every command on its own goroutine once the command's wait
// list has completed. In-order queues add the previous command to the wait
// list.
type queue struct {
	ctx     *softContext
	props   driver.QueueProperties
	epoch   time.Time
	hazards *hazardTracker

	mu       sync.Mutex
	seq      uint64
	tail     *event
	inflight map[*event]struct{}
	rng      *rand.Rand
	released bool
}

func newQueue(ctx *softContext, props driver.QueueProperties) *queue {
	opts := ctx.dev.drv.opts
	seed := uint64(opts.Seed)

	return &queue{
		ctx:      ctx,
		props:    props,
		epoch:    time.Now(),
		hazards:  ctx.dev.drv.hazards,
		inflight: make(map[*event]struct{}),
		rng:      rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	}
}

func (q *queue) now() uint64 {
	return uint64(time.Since(q.epoch).Nanoseconds())
}

// event is the completion record of one command.
type event struct {
	q     *queue
	seq   uint64
	label string
	done  chan struct{}

	mu      sync.Mutex
	status  driver.Status
	err     error
	profile driver.Profile

	// deps and observed belong to the hazard tracker and are guarded by its
	// mutex.
	deps     []*event
	observed bool

	released atomic.Bool
}

func (e *event) String() string {
	return fmt.Sprintf("%s#%d", e.label, e.seq)
}

func (e *event) Wait() error {
	<-e.done

	if e.q.hazards != nil {
		e.q.hazards.observe(e)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	return e.err
}

func (e *event) Status() (driver.Status, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.status, e.err
}

func (e *event) Profile() (driver.Profile, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.status != driver.StatusComplete && e.status != driver.StatusFailed {
		return driver.Profile{}, fmt.Errorf("%w: %s is %s", driver.ErrNotComplete, e, e.status)
	}

	return e.profile, nil
}

func (e *event) Release() error {
	if !e.released.CompareAndSwap(false, true) {
		return driver.ErrReleased
	}

	return nil
}

func (e *event) setStatus(s driver.Status, stamp *uint64) {
	now := e.q.now()

	e.mu.Lock()
	e.status = s
	*stamp = now
	e.mu.Unlock()
}

func (q *queue) waitList(wait []driver.Event) ([]*event, error) {
	deps := make([]*event, 0, len(wait)+1)

	for i, w := range wait {
		e, ok := w.(*event)
		if !ok || e == nil {
			return nil, fmt.Errorf("%w: wait list entry %d", driver.ErrInvalidEvent, i)
		}

		if e.q.ctx.dev.drv != q.ctx.dev.drv {
			return nil, fmt.Errorf("%w: wait list entry %d belongs to another device", driver.ErrInvalidEvent, i)
		}

		deps = append(deps, e)
	}

	return deps, nil
}

// submit registers a command and starts it. Hazard checks run before the
// command becomes visible, so a rejected command never executes.
func (q *queue) submit(label string, wait []driver.Event, accesses []access, run func() error) (*event, error) {
	deps, err := q.waitList(wait)
	if err != nil {
		return nil, err
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.released {
		return nil, driver.ErrReleased
	}

	pinned, err := pinAll(accesses)
	if err != nil {
		return nil, err
	}

	if q.props&driver.QueueInOrder != 0 && q.tail != nil {
		deps = append(deps, q.tail)
	}

	e := &event{
		q:     q,
		seq:   q.seq + 1,
		label: label,
		done:  make(chan struct{}),
	}
	e.profile.Queued = q.now()

	if q.hazards != nil {
		e.deps = deps

		if err := q.hazards.check(e, accesses); err != nil {
			unpinAll(pinned)
			return nil, err
		}
	}

	var delay time.Duration
	if jitter := q.ctx.dev.drv.opts.Jitter; jitter > 0 {
		delay = time.Duration(q.rng.Int64N(int64(jitter)))
	}

	q.seq++
	q.tail = e
	q.inflight[e] = struct{}{}

	go q.execute(e, deps, delay, pinned, run)

	return e, nil
}

func pinAll(accesses []access) ([]*buffer, error) {
	pinned := make([]*buffer, 0, len(accesses))

	for _, a := range accesses {
		if a.buf == nil {
			continue
		}

		if err := a.buf.pin(); err != nil {
			unpinAll(pinned)
			return nil, err
		}

		pinned = append(pinned, a.buf)
	}

	return pinned, nil
}

func unpinAll(pinned []*buffer) {
	for _, b := range pinned {
		b.unpin()
	}
}

func (q *queue) execute(e *event, deps []*event, delay time.Duration, pinned []*buffer, run func() error) {
	e.setStatus(driver.StatusSubmitted, &e.profile.Submit)

	var err error

	for _, d := range deps {
		<-d.done

		d.mu.Lock()
		derr := d.err
		d.mu.Unlock()

		if derr != nil && err == nil {
			err = fmt.Errorf("%w: %s: %w", driver.ErrDependencyFailed, d, derr)
		}
	}

	if delay > 0 {
		time.Sleep(delay)
	}

	e.setStatus(driver.StatusRunning, &e.profile.Start)

	if err == nil {
		err = run()
	}

	unpinAll(pinned)

	now := q.now()

	e.mu.Lock()
	e.profile.End = now
	e.err = err
	e.status = driver.StatusComplete
	if err != nil {
		e.status = driver.StatusFailed
	}
	e.mu.Unlock()

	close(e.done)

	q.mu.Lock()
	delete(q.inflight, e)
	q.mu.Unlock()
}

func (q *queue) finishBlocking(e *event, blocking bool) (driver.Event, error) {
	if !blocking {
		return e, nil
	}

	return e, e.Wait()
}

func (q *queue) EnqueueKernel(k driver.Kernel, global, local driver.NDRange, wait []driver.Event) (driver.Event, error) {
	kern, ok := k.(*kernel)
	if !ok || kern == nil {
		return nil, fmt.Errorf("%w: not a soft kernel", driver.ErrKernelNotFound)
	}

	if kern.released.Load() {
		return nil, driver.ErrReleased
	}

	if kern.prog.ctx != q.ctx {
		return nil, fmt.Errorf("%w: kernel %s belongs to another context", driver.ErrInvalidArgValue, kern.def.name)
	}

	args, err := kern.snapshot()
	if err != nil {
		return nil, err
	}

	groups, size, err := q.workShape(global, local)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", kern.def.name, err)
	}

	var accesses []access

	for i, p := range kern.def.params {
		if p.kind == paramGlobal {
			accesses = append(accesses, access{buf: args[i].buf, write: p.writable})
		}
	}

	def := kern.def

	return q.submit("kernel "+def.name, wait, accesses, func() error {
		return q.launch(def, args, groups, size)
	})
}

// workShape validates a dispatch and returns its group count and size. An
// unset local range picks the largest divisor of the global size up to 64.
func (q *queue) workShape(global, local driver.NDRange) (groups, size int, err error) {
	total := global.Total()
	if total <= 0 {
		return 0, 0, fmt.Errorf("%w: empty global range", driver.ErrInvalidWorkSize)
	}

	limit := q.ctx.dev.info.MaxWorkGroupSize

	if local.Dims == 0 {
		size = 1
		for s := min(defaultGroupLimit, limit); s > 1; s-- {
			if total%s == 0 {
				size = s
				break
			}
		}

		return total / size, size, nil
	}

	if local.Dims != global.Dims {
		return 0, 0, fmt.Errorf("%w: local range has %d dimensions, global has %d", driver.ErrInvalidWorkSize, local.Dims, global.Dims)
	}

	for d := range global.Dims {
		if local.Sizes[d] <= 0 || global.Sizes[d]%local.Sizes[d] != 0 {
			return 0, 0, fmt.Errorf("%w: global %v is not a multiple of local %v", driver.ErrInvalidWorkSize, global.Sizes[:global.Dims], local.Sizes[:local.Dims])
		}
	}

	size = local.Total()
	if size > limit {
		return 0, 0, fmt.Errorf("%w: local size %d exceeds %d", driver.ErrInvalidWorkSize, size, limit)
	}

	return total / size, size, nil
}

// launch spreads the work-groups over the compute units. Each worker owns
// its local memory and claims groups from a shared counter.
func (q *queue) launch(def *kernelDef, args []boundArg, groups, size int) error {
	workers := min(q.ctx.dev.info.ComputeUnits, groups)

	var (
		next    atomic.Int64
		wg      sync.WaitGroup
		results = make([]workerResult, workers)
	)

	for w := range workers {
		wg.Add(1)

		go func() {
			defer wg.Done()

			results[w].err = runGroups(def, args, groups, size, &next)
		}()
	}

	wg.Wait()

	errs := make([]error, workers)
	for i, r := range results {
		errs[i] = r.err
	}

	return errors.Join(errs...)
}

// workerResult is padded so workers finishing together do not share a line.
type workerResult struct {
	err error
	_   cpu.CacheLinePad
}

func runGroups(def *kernelDef, args []boundArg, groups, size int, next *atomic.Int64) (err error) {
	g := &Group{Size: size, Groups: groups, args: args, locals: make([][]byte, len(args))}

	for i, a := range args {
		if a.local > 0 {
			g.locals[i] = make([]byte, a.local)
		}
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("soft: kernel %s panicked in group %d: %v", def.name, g.ID, r)
		}
	}()

	for {
		id := int(next.Add(1) - 1)
		if id >= groups {
			return nil
		}

		g.ID = id
		def.fn(g)
	}
}

func (q *queue) hostBuffer(b driver.Buffer) (*buffer, error) {
	buf, ok := b.(*buffer)
	if !ok || buf == nil {
		return nil, fmt.Errorf("%w: not a soft buffer", driver.ErrInvalidArgValue)
	}

	if buf.ctx != q.ctx {
		return nil, fmt.Errorf("%w: %s belongs to another context", driver.ErrInvalidArgValue, buf)
	}

	return buf, nil
}

func (q *queue) EnqueueRead(b driver.Buffer, blocking bool, offset int, dst []byte, wait []driver.Event) (driver.Event, error) {
	buf, err := q.hostBuffer(b)
	if err != nil {
		return nil, err
	}

	if buf.flags.Has(driver.MemHostWriteOnly) || buf.flags.Has(driver.MemHostNoAccess) {
		return nil, fmt.Errorf("%w: read from %s (%s)", driver.ErrHostAccess, buf, buf.flags)
	}

	if _, err := buf.span(offset, len(dst)); err != nil {
		return nil, err
	}

	e, err := q.submit("read", wait, []access{{buf: buf}}, func() error {
		src, err := buf.window(offset, len(dst))
		if err != nil {
			return err
		}

		if !sameMemory(src, dst) {
			copy(dst, src)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return q.finishBlocking(e, blocking)
}

func (q *queue) EnqueueWrite(b driver.Buffer, blocking bool, offset int, src []byte, wait []driver.Event) (driver.Event, error) {
	buf, err := q.hostBuffer(b)
	if err != nil {
		return nil, err
	}

	if buf.flags.Has(driver.MemHostReadOnly) || buf.flags.Has(driver.MemHostNoAccess) {
		return nil, fmt.Errorf("%w: write to %s (%s)", driver.ErrHostAccess, buf, buf.flags)
	}

	if _, err := buf.span(offset, len(src)); err != nil {
		return nil, err
	}

	e, err := q.submit("write", wait, []access{{buf: buf, write: true}}, func() error {
		dst, err := buf.window(offset, len(src))
		if err != nil {
			return err
		}

		if !sameMemory(src, dst) {
			copy(dst, src)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return q.finishBlocking(e, blocking)
}

func (q *queue) EnqueueCopy(src, dst driver.Buffer, srcOffset, dstOffset, size int, wait []driver.Event) (driver.Event, error) {
	from, err := q.hostBuffer(src)
	if err != nil {
		return nil, err
	}

	to, err := q.hostBuffer(dst)
	if err != nil {
		return nil, err
	}

	if _, err := from.span(srcOffset, size); err != nil {
		return nil, err
	}

	if _, err := to.span(dstOffset, size); err != nil {
		return nil, err
	}

	if from == to && srcOffset < dstOffset+size && dstOffset < srcOffset+size {
		return nil, fmt.Errorf("%w: overlapping copy within %s", driver.ErrOutOfRange, from)
	}

	return q.submit("copy", wait, []access{{buf: from}, {buf: to, write: true}}, func() error {
		s, err := from.window(srcOffset, size)
		if err != nil {
			return err
		}

		d, err := to.window(dstOffset, size)
		if err != nil {
			return err
		}

		copy(d, s)

		return nil
	})
}

// Flush is a no-op: commands start as soon as they are enqueued.
func (q *queue) Flush() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.released {
		return driver.ErrReleased
	}

	return nil
}

func (q *queue) Finish() error {
	q.mu.Lock()
	if q.released {
		q.mu.Unlock()
		return driver.ErrReleased
	}

	pending := make([]*event, 0, len(q.inflight))
	for e := range q.inflight {
		pending = append(pending, e)
	}
	q.mu.Unlock()

	for _, e := range pending {
		<-e.done

		if q.hazards != nil {
			q.hazards.observe(e)
		}
	}

	if q.hazards != nil {
		q.hazards.observeAll()
	}

	return nil
}

func (q *queue) Release() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.released {
		return driver.ErrReleased
	}

	q.released = true

	return nil
}
