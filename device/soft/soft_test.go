package soft

import (
	"errors"
	"strings"
	"testing"
	"time"
	"unsafe"

	"github.com/cwbudde/algo-bicgstab/device/driver"
)

const testSource = `
#define REAL float

// __kernel void soft_test_commented(__global quad* x)
__kernel void soft_test_fill(__global REAL* out, const REAL v, const int n)
{
	/* body is implemented in Go */
}

__kernel void soft_test_add(__global const REAL* a, __global REAL* out, const int n)
{
}

__kernel void soft_test_panic(__global REAL* out)
{
}

__kernel void soft_test_groupsum(__global const REAL* in, __global REAL* out, __local REAL* scratch)
{
}
`

func init() {
	Register("soft_test_fill", Variants{
		Float32: fillKernel[float32],
		Float64: fillKernel[float64],
	})
	Register("soft_test_add", Variants{Float32: func(g *Group) {
		a := Global[float32](g, 0)
		out := Global[float32](g, 1)
		n := int(Scalar[int32](g, 2))

		for l := range g.Size {
			if i := g.GlobalID(l); i < n {
				out[i] += a[i]
			}
		}
	}})
	Register("soft_test_panic", Variants{Float32: func(*Group) {
		panic("boom")
	}})
	Register("soft_test_groupsum", Variants{Float32: func(g *Group) {
		in := Global[float32](g, 0)
		out := Global[float32](g, 1)
		scratch := Local[float32](g, 2)

		for l := range g.Size {
			scratch[l] = in[g.GlobalID(l)]
		}

		var acc float32
		for l := range g.Size {
			acc += scratch[l]
		}

		out[g.ID] = acc
	}})
}

func fillKernel[T float32 | float64](g *Group) {
	out := Global[T](g, 0)
	v := Scalar[T](g, 1)
	n := int(Scalar[int32](g, 2))

	for l := range g.Size {
		if i := g.GlobalID(l); i < n {
			out[i] = v
		}
	}
}

func newTestContext(t *testing.T, opts Options) (*Driver, *softContext) {
	t.Helper()

	drv := New(opts)

	ctx, err := drv.platform.dev.NewContext()
	if err != nil {
		t.Fatalf("NewContext: %v", err)
	}

	return drv, ctx.(*softContext)
}

func newTestQueue(t *testing.T, ctx *softContext, props driver.QueueProperties) *queue {
	t.Helper()

	q, err := ctx.NewQueue(props | driver.QueueProfiling)
	if err != nil {
		t.Fatalf("NewQueue: %v", err)
	}

	t.Cleanup(func() {
		_ = q.Finish()
	})

	return q.(*queue)
}

func newTestBuffer(t *testing.T, ctx *softContext, n int) *buffer {
	t.Helper()

	b, err := ctx.NewBuffer(driver.MemReadWrite, make([]byte, 4*n))
	if err != nil {
		t.Fatalf("NewBuffer: %v", err)
	}

	return b.(*buffer)
}

func buildTest(t *testing.T, ctx *softContext, options string) *program {
	t.Helper()

	prog, log, err := ctx.BuildProgram(testSource, options)
	if err != nil {
		t.Fatalf("BuildProgram: %v\n%s", err, log)
	}

	return prog.(*program)
}

func newKernel(t *testing.T, prog *program, name string, args ...driver.Arg) *kernel {
	t.Helper()

	k, err := prog.NewKernel(name)
	if err != nil {
		t.Fatalf("NewKernel(%q): %v", name, err)
	}

	for i, a := range args {
		if err := k.SetArg(i, a); err != nil {
			t.Fatalf("%s.SetArg(%d): %v", name, i, err)
		}
	}

	return k.(*kernel)
}

func f32(v float32) []byte {
	return append([]byte(nil), unsafe.Slice((*byte)(unsafe.Pointer(&v)), 4)...)
}

func i32(v int32) []byte {
	return append([]byte(nil), unsafe.Slice((*byte)(unsafe.Pointer(&v)), 4)...)
}

func readFloats(t *testing.T, q *queue, b *buffer, wait ...driver.Event) []float32 {
	t.Helper()

	dst := make([]float32, b.Size()/4)

	if _, err := q.EnqueueRead(b, true, 0, unsafe.Slice((*byte)(unsafe.Pointer(&dst[0])), b.Size()), wait); err != nil {
		t.Fatalf("EnqueueRead: %v", err)
	}

	return dst
}

func TestCompileKernelNames(t *testing.T) {
	t.Parallel()

	_, ctx := newTestContext(t, DefaultOptions())
	prog := buildTest(t, ctx, "")

	want := []string{"soft_test_add", "soft_test_fill", "soft_test_groupsum", "soft_test_panic"}
	got := prog.KernelNames()

	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("KernelNames() = %v, want %v", got, want)
	}

	if prog.precision != "float" {
		t.Errorf("precision = %q, want float", prog.precision)
	}

	fill := prog.kernels["soft_test_fill"]
	if len(fill.params) != 3 || fill.params[0].kind != paramGlobal || !fill.params[0].writable {
		t.Errorf("soft_test_fill params = %+v", fill.params)
	}

	add := prog.kernels["soft_test_add"]
	if add.params[0].writable {
		t.Error("__global const parameter reported writable")
	}

	if sum := prog.kernels["soft_test_groupsum"]; sum.params[2].kind != paramLocal {
		t.Errorf("__local parameter kind = %d", sum.params[2].kind)
	}
}

func TestCompilePrecisionOption(t *testing.T) {
	t.Parallel()

	_, ctx := newTestContext(t, DefaultOptions())

	src := "__kernel void soft_test_fill(__global REAL* out, const REAL v, const int n) {}\n"

	prog, log, err := ctx.BuildProgram(src, "-DREAL=double")
	if err != nil {
		t.Fatalf("BuildProgram: %v\n%s", err, log)
	}

	p := prog.(*program)
	if p.precision != "double" {
		t.Fatalf("precision = %q, want double", p.precision)
	}

	if size := p.kernels["soft_test_fill"].params[1].size; size != 8 {
		t.Errorf("REAL scalar size = %d, want 8", size)
	}

	if _, _, err := ctx.BuildProgram(testSource, "-DREAL=double"); err == nil {
		t.Error("double build of float-only kernels succeeded")
	}

	if _, log, err := ctx.BuildProgram(src, "-DREAL=half"); err == nil || !strings.Contains(log, "REAL must be float or double") {
		t.Errorf("-DREAL=half: err=%v log=%q", err, log)
	}
}

func TestCompileDiagnostics(t *testing.T) {
	t.Parallel()

	_, ctx := newTestContext(t, DefaultOptions())

	tests := []struct {
		name string
		src  string
		want string
	}{
		{
			name: "missing implementation",
			src:  "\n\n__kernel void soft_test_missing(__global float* x) {}\n",
			want: "<source>:3: error: kernel \"soft_test_missing\" has no implementation",
		},
		{
			name: "unknown type",
			src:  "__kernel void soft_test_panic(__global quad* out) {}\n",
			want: "unknown type name \"quad\"",
		},
		{
			name: "redefinition",
			src:  "__kernel void soft_test_panic(__global float* out) {}\n__kernel void soft_test_panic(__global float* out) {}\n",
			want: "<source>:2: error: redefinition of kernel \"soft_test_panic\"",
		},
		{
			name: "unbalanced braces",
			src:  "__kernel void soft_test_panic(__global float* out) {\n",
			want: "unbalanced braces",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			prog, log, err := ctx.BuildProgram(tt.src, "")
			if err == nil {
				t.Fatalf("BuildProgram succeeded with kernels %v", prog.KernelNames())
			}

			if !strings.Contains(log, tt.want) {
				t.Errorf("log = %q, want it to contain %q", log, tt.want)
			}
		})
	}
}

func TestSetArgValidation(t *testing.T) {
	t.Parallel()

	_, ctx := newTestContext(t, DefaultOptions())
	prog := buildTest(t, ctx, "")
	buf := newTestBuffer(t, ctx, 4)

	k, err := prog.NewKernel("soft_test_groupsum")
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		index int
		arg   driver.Arg
		want  error
	}{
		{3, driver.Arg{Buffer: buf}, driver.ErrInvalidArgIndex},
		{-1, driver.Arg{Buffer: buf}, driver.ErrInvalidArgIndex},
		{0, driver.Arg{Scalar: f32(1)}, driver.ErrInvalidArgValue},
		{2, driver.Arg{Buffer: buf}, driver.ErrInvalidArgValue},
		{2, driver.Arg{}, driver.ErrInvalidArgSize},
	}

	for _, tt := range tests {
		if err := k.SetArg(tt.index, tt.arg); !errors.Is(err, tt.want) {
			t.Errorf("SetArg(%d, %+v) = %v, want %v", tt.index, tt.arg, err, tt.want)
		}
	}

	fill, err := prog.NewKernel("soft_test_fill")
	if err != nil {
		t.Fatal(err)
	}

	if err := fill.SetArg(1, driver.Arg{Scalar: []byte{1, 2}}); !errors.Is(err, driver.ErrInvalidArgSize) {
		t.Errorf("short scalar: %v", err)
	}

	if _, err := prog.NewKernel("nope"); !errors.Is(err, driver.ErrKernelNotFound) {
		t.Errorf("NewKernel(nope) = %v", err)
	}
}

func TestEnqueueRequiresAllArgs(t *testing.T) {
	t.Parallel()

	_, ctx := newTestContext(t, DefaultOptions())
	prog := buildTest(t, ctx, "")
	q := newTestQueue(t, ctx, 0)
	buf := newTestBuffer(t, ctx, 4)

	k := newKernel(t, prog, "soft_test_fill", driver.Arg{Buffer: buf})

	if _, err := q.EnqueueKernel(k, driver.Range1(4), driver.NDRange{}, nil); !errors.Is(err, driver.ErrArgsNotSet) {
		t.Fatalf("EnqueueKernel = %v, want ErrArgsNotSet", err)
	}
}

func TestWorkShape(t *testing.T) {
	t.Parallel()

	_, ctx := newTestContext(t, DefaultOptions())
	q := newTestQueue(t, ctx, 0)

	tests := []struct {
		global, local driver.NDRange
		groups, size  int
		err           error
	}{
		{driver.Range1(1024), driver.NDRange{}, 16, 64, nil},
		{driver.Range1(100), driver.NDRange{}, 2, 50, nil},
		{driver.Range1(97), driver.NDRange{}, 97, 1, nil},
		{driver.Range1(128), driver.Range1(32), 4, 32, nil},
		{driver.Range2(8, 8), driver.Range2(4, 4), 4, 16, nil},
		{driver.Range1(100), driver.Range1(32), 0, 0, driver.ErrInvalidWorkSize},
		{driver.Range1(4096), driver.Range1(2048), 0, 0, driver.ErrInvalidWorkSize},
		{driver.NDRange{}, driver.NDRange{}, 0, 0, driver.ErrInvalidWorkSize},
	}

	for _, tt := range tests {
		groups, size, err := q.workShape(tt.global, tt.local)
		if !errors.Is(err, tt.err) {
			t.Errorf("workShape(%v, %v) err = %v, want %v", tt.global, tt.local, err, tt.err)
			continue
		}

		if groups != tt.groups || size != tt.size {
			t.Errorf("workShape(%v, %v) = (%d, %d), want (%d, %d)", tt.global, tt.local, groups, size, tt.groups, tt.size)
		}
	}
}

func TestDependenciesOrderCommands(t *testing.T) {
	t.Parallel()

	const n = 1000

	opts := DefaultOptions()
	opts.Jitter = 2 * time.Millisecond
	opts.Hazards = HazardStrict

	_, ctx := newTestContext(t, opts)
	prog := buildTest(t, ctx, "")
	q := newTestQueue(t, ctx, 0)

	a := newTestBuffer(t, ctx, 1024)
	out := newTestBuffer(t, ctx, 1024)

	fillA := newKernel(t, prog, "soft_test_fill", driver.Arg{Buffer: a}, driver.Arg{Scalar: f32(1)}, driver.Arg{Scalar: i32(n)})
	fillOut := newKernel(t, prog, "soft_test_fill", driver.Arg{Buffer: out}, driver.Arg{Scalar: f32(2)}, driver.Arg{Scalar: i32(n)})
	add := newKernel(t, prog, "soft_test_add", driver.Arg{Buffer: a}, driver.Arg{Buffer: out}, driver.Arg{Scalar: i32(n)})

	e1, err := q.EnqueueKernel(fillA, driver.Range1(1024), driver.Range1(32), nil)
	if err != nil {
		t.Fatal(err)
	}

	e2, err := q.EnqueueKernel(fillOut, driver.Range1(1024), driver.Range1(32), nil)
	if err != nil {
		t.Fatal(err)
	}

	e3, err := q.EnqueueKernel(add, driver.Range1(1024), driver.Range1(32), []driver.Event{e1, e2})
	if err != nil {
		t.Fatal(err)
	}

	got := readFloats(t, q, out, e3)

	for i, v := range got {
		want := float32(3)
		if i >= n {
			want = 0
		}

		if v != want {
			t.Fatalf("out[%d] = %v, want %v", i, v, want)
		}
	}
}

func TestInOrderQueueSerialises(t *testing.T) {
	t.Parallel()

	opts := DefaultOptions()
	opts.Jitter = time.Millisecond
	opts.Hazards = HazardStrict

	_, ctx := newTestContext(t, opts)
	prog := buildTest(t, ctx, "")
	q := newTestQueue(t, ctx, driver.QueueInOrder)
	out := newTestBuffer(t, ctx, 64)

	for v := 1; v <= 8; v++ {
		k := newKernel(t, prog, "soft_test_fill", driver.Arg{Buffer: out}, driver.Arg{Scalar: f32(float32(v))}, driver.Arg{Scalar: i32(64)})
		if _, err := q.EnqueueKernel(k, driver.Range1(64), driver.NDRange{}, nil); err != nil {
			t.Fatalf("fill %d: %v", v, err)
		}
	}

	for i, v := range readFloats(t, q, out) {
		if v != 8 {
			t.Fatalf("out[%d] = %v, want 8", i, v)
		}
	}
}

func TestStrictHazardRejectsUnorderedWrite(t *testing.T) {
	t.Parallel()

	opts := DefaultOptions()
	opts.Hazards = HazardStrict

	drv, ctx := newTestContext(t, opts)
	prog := buildTest(t, ctx, "")
	q := newTestQueue(t, ctx, 0)
	out := newTestBuffer(t, ctx, 32)
	fill := newKernel(t, prog, "soft_test_fill", driver.Arg{Buffer: out}, driver.Arg{Scalar: f32(1)}, driver.Arg{Scalar: i32(32)})

	first, err := q.EnqueueKernel(fill, driver.Range1(32), driver.NDRange{}, nil)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := q.EnqueueKernel(fill, driver.Range1(32), driver.NDRange{}, nil); !errors.Is(err, driver.ErrUnorderedAccess) {
		t.Fatalf("unordered second write = %v, want ErrUnorderedAccess", err)
	}

	hazards := drv.Hazards()
	if len(hazards) != 1 || hazards[0].Kind != WriteAfterWrite {
		t.Fatalf("Hazards() = %v", hazards)
	}

	if _, err := q.EnqueueKernel(fill, driver.Range1(32), driver.NDRange{}, []driver.Event{first}); err != nil {
		t.Fatalf("ordered second write: %v", err)
	}
}

func TestHostWaitOrdersLaterCommands(t *testing.T) {
	t.Parallel()

	opts := DefaultOptions()
	opts.Hazards = HazardStrict

	_, ctx := newTestContext(t, opts)
	prog := buildTest(t, ctx, "")
	q := newTestQueue(t, ctx, 0)
	out := newTestBuffer(t, ctx, 32)
	fill := newKernel(t, prog, "soft_test_fill", driver.Arg{Buffer: out}, driver.Arg{Scalar: f32(1)}, driver.Arg{Scalar: i32(32)})

	first, err := q.EnqueueKernel(fill, driver.Range1(32), driver.NDRange{}, nil)
	if err != nil {
		t.Fatal(err)
	}

	if err := first.Wait(); err != nil {
		t.Fatal(err)
	}

	if _, err := q.EnqueueKernel(fill, driver.Range1(32), driver.NDRange{}, nil); err != nil {
		t.Fatalf("write after host wait: %v", err)
	}
}

func TestTransitiveDependencyIsOrdered(t *testing.T) {
	t.Parallel()

	opts := DefaultOptions()
	opts.Hazards = HazardStrict
	opts.Jitter = time.Millisecond

	_, ctx := newTestContext(t, opts)
	prog := buildTest(t, ctx, "")
	q := newTestQueue(t, ctx, 0)
	a := newTestBuffer(t, ctx, 32)
	b := newTestBuffer(t, ctx, 32)
	c := newTestBuffer(t, ctx, 32)

	fill := newKernel(t, prog, "soft_test_fill", driver.Arg{Buffer: a}, driver.Arg{Scalar: f32(5)}, driver.Arg{Scalar: i32(32)})

	e1, err := q.EnqueueKernel(fill, driver.Range1(32), driver.NDRange{}, nil)
	if err != nil {
		t.Fatal(err)
	}

	e2, err := q.EnqueueCopy(a, b, 0, 0, 128, []driver.Event{e1})
	if err != nil {
		t.Fatal(err)
	}

	e3, err := q.EnqueueCopy(b, c, 0, 0, 128, []driver.Event{e2})
	if err != nil {
		t.Fatal(err)
	}

	// a was written by e1 and read by e2; e3 reaches both.
	if _, err := q.EnqueueKernel(fill, driver.Range1(32), driver.NDRange{}, []driver.Event{e3}); err != nil {
		t.Fatalf("rewrite after transitive dependency: %v", err)
	}

	for i, v := range readFloats(t, q, c, e3) {
		if v != 5 {
			t.Fatalf("c[%d] = %v, want 5", i, v)
		}
	}
}

func TestWarnHazardRecordsAndRuns(t *testing.T) {
	t.Parallel()

	opts := DefaultOptions()
	opts.Hazards = HazardWarn

	drv, ctx := newTestContext(t, opts)
	prog := buildTest(t, ctx, "")
	q := newTestQueue(t, ctx, driver.QueueInOrder)
	a := newTestBuffer(t, ctx, 32)
	b := newTestBuffer(t, ctx, 32)

	fill := newKernel(t, prog, "soft_test_fill", driver.Arg{Buffer: a}, driver.Arg{Scalar: f32(1)}, driver.Arg{Scalar: i32(32)})

	if _, err := q.EnqueueKernel(fill, driver.Range1(32), driver.NDRange{}, nil); err != nil {
		t.Fatal(err)
	}

	// In-order queues imply the dependency.
	c1, err := q.EnqueueCopy(a, b, 0, 0, 128, nil)
	if err != nil {
		t.Fatal(err)
	}

	if n := len(drv.Hazards()); n != 0 {
		t.Fatalf("in-order queue reported %d hazards", n)
	}

	// Let the commands finish without a host wait, so they stay unobserved
	// and the next command cannot race them.
	<-c1.(*event).done

	other := newTestQueue(t, ctx, 0)
	if _, err := other.EnqueueCopy(a, b, 0, 0, 128, nil); err != nil {
		t.Fatalf("warn mode rejected command: %v", err)
	}

	hazards := drv.Hazards()
	if len(hazards) != 2 {
		t.Fatalf("Hazards() = %v, want read-after-write on a and write-after-write on b", hazards)
	}

	drv.ResetHazards()

	if len(drv.Hazards()) != 0 {
		t.Error("ResetHazards kept reports")
	}
}

func TestLocalMemoryPerGroup(t *testing.T) {
	t.Parallel()

	opts := DefaultOptions()
	opts.ComputeUnits = 4

	_, ctx := newTestContext(t, opts)
	prog := buildTest(t, ctx, "")
	q := newTestQueue(t, ctx, 0)
	in := newTestBuffer(t, ctx, 256)
	out := newTestBuffer(t, ctx, 8)

	fill := newKernel(t, prog, "soft_test_fill", driver.Arg{Buffer: in}, driver.Arg{Scalar: f32(0.5)}, driver.Arg{Scalar: i32(256)})
	sum := newKernel(t, prog, "soft_test_groupsum", driver.Arg{Buffer: in}, driver.Arg{Buffer: out}, driver.Arg{Local: 32 * 4})

	e1, err := q.EnqueueKernel(fill, driver.Range1(256), driver.NDRange{}, nil)
	if err != nil {
		t.Fatal(err)
	}

	e2, err := q.EnqueueKernel(sum, driver.Range1(256), driver.Range1(32), []driver.Event{e1})
	if err != nil {
		t.Fatal(err)
	}

	for i, v := range readFloats(t, q, out, e2) {
		if v != 16 {
			t.Errorf("group %d sum = %v, want 16", i, v)
		}
	}
}

func TestFailurePropagates(t *testing.T) {
	t.Parallel()

	_, ctx := newTestContext(t, DefaultOptions())
	prog := buildTest(t, ctx, "")
	q := newTestQueue(t, ctx, 0)
	out := newTestBuffer(t, ctx, 32)

	boom := newKernel(t, prog, "soft_test_panic", driver.Arg{Buffer: out})

	e1, err := q.EnqueueKernel(boom, driver.Range1(32), driver.NDRange{}, nil)
	if err != nil {
		t.Fatal(err)
	}

	if err := e1.Wait(); err == nil || !strings.Contains(err.Error(), "panicked") {
		t.Fatalf("panicking kernel Wait() = %v", err)
	}

	if st, _ := e1.Status(); st != driver.StatusFailed {
		t.Errorf("status = %v, want failed", st)
	}

	dst := make([]byte, 128)

	_, err = q.EnqueueRead(out, true, 0, dst, []driver.Event{e1})
	if !errors.Is(err, driver.ErrDependencyFailed) {
		t.Fatalf("dependent read = %v, want ErrDependencyFailed", err)
	}
}

func TestProfileTimestampsOrdered(t *testing.T) {
	t.Parallel()

	opts := DefaultOptions()
	opts.Jitter = time.Millisecond

	_, ctx := newTestContext(t, opts)
	prog := buildTest(t, ctx, "")
	q := newTestQueue(t, ctx, 0)
	out := newTestBuffer(t, ctx, 1024)
	fill := newKernel(t, prog, "soft_test_fill", driver.Arg{Buffer: out}, driver.Arg{Scalar: f32(1)}, driver.Arg{Scalar: i32(1024)})

	e, err := q.EnqueueKernel(fill, driver.Range1(1024), driver.NDRange{}, nil)
	if err != nil {
		t.Fatal(err)
	}

	if err := e.Wait(); err != nil {
		t.Fatal(err)
	}

	p, err := e.Profile()
	if err != nil {
		t.Fatal(err)
	}

	if p.Queued > p.Submit || p.Submit > p.Start || p.Start > p.End {
		t.Errorf("profile not monotonic: %+v", p)
	}
}

func TestHostAccessFlags(t *testing.T) {
	t.Parallel()

	_, ctx := newTestContext(t, DefaultOptions())
	q := newTestQueue(t, ctx, 0)

	b, err := ctx.NewBuffer(driver.MemReadWrite|driver.MemHostNoAccess, make([]byte, 16))
	if err != nil {
		t.Fatal(err)
	}

	if _, err := q.EnqueueRead(b, true, 0, make([]byte, 16), nil); !errors.Is(err, driver.ErrHostAccess) {
		t.Errorf("read of host-no-access buffer = %v", err)
	}

	if _, err := q.EnqueueWrite(b, true, 0, make([]byte, 16), nil); !errors.Is(err, driver.ErrHostAccess) {
		t.Errorf("write of host-no-access buffer = %v", err)
	}

	if _, err := ctx.NewBuffer(driver.MemUseHostPtr|driver.MemCopyHostPtr, make([]byte, 16)); !errors.Is(err, driver.ErrInvalidFlags) {
		t.Errorf("use+copy host ptr = %v", err)
	}
}

func TestUseHostPtrAliases(t *testing.T) {
	t.Parallel()

	_, ctx := newTestContext(t, DefaultOptions())
	prog := buildTest(t, ctx, "")
	q := newTestQueue(t, ctx, 0)

	host := make([]float32, 64)

	b, err := ctx.NewBuffer(driver.MemUseHostPtr, unsafe.Slice((*byte)(unsafe.Pointer(&host[0])), 256))
	if err != nil {
		t.Fatal(err)
	}

	fill := newKernel(t, prog, "soft_test_fill", driver.Arg{Buffer: b}, driver.Arg{Scalar: f32(7)}, driver.Arg{Scalar: i32(64)})

	e, err := q.EnqueueKernel(fill, driver.Range1(64), driver.NDRange{}, nil)
	if err != nil {
		t.Fatal(err)
	}

	if err := e.Wait(); err != nil {
		t.Fatal(err)
	}

	if host[63] != 7 {
		t.Errorf("host[63] = %v, want 7", host[63])
	}
}

func TestOverlappingCopyRejected(t *testing.T) {
	t.Parallel()

	_, ctx := newTestContext(t, DefaultOptions())
	q := newTestQueue(t, ctx, 0)
	b := newTestBuffer(t, ctx, 16)

	if _, err := q.EnqueueCopy(b, b, 0, 8, 32, nil); !errors.Is(err, driver.ErrOutOfRange) {
		t.Errorf("overlapping copy = %v", err)
	}

	if _, err := q.EnqueueCopy(b, b, 0, 32, 32, nil); err != nil {
		t.Errorf("disjoint copy within buffer = %v", err)
	}
}

func TestReleasedBufferForgotten(t *testing.T) {
	t.Parallel()

	_, ctx := newTestContext(t, DefaultOptions())
	b := newTestBuffer(t, ctx, 4)

	if err := b.Release(); err != nil {
		t.Fatal(err)
	}

	if err := b.Release(); !errors.Is(err, driver.ErrReleased) {
		t.Errorf("second Release = %v", err)
	}

	if _, ok := ctx.buffers[b]; ok {
		t.Error("context still tracks released buffer")
	}
}

func TestReleaseDefersFreeUntilCommandsFinish(t *testing.T) {
	t.Parallel()

	_, ctx := newTestContext(t, DefaultOptions())
	prog := buildTest(t, ctx, "")
	q := newTestQueue(t, ctx, 0)
	b := newTestBuffer(t, ctx, 1<<16)

	gate := &event{q: q, label: "gate", done: make(chan struct{})}
	fill := newKernel(t, prog, "soft_test_fill", driver.Arg{Buffer: b}, driver.Arg{Scalar: f32(3)}, driver.Arg{Scalar: i32(1 << 16)})

	e, err := q.EnqueueKernel(fill, driver.Range1(1<<16), driver.NDRange{}, []driver.Event{gate})
	if err != nil {
		t.Fatal(err)
	}

	if err := b.Release(); err != nil {
		t.Fatal(err)
	}

	if b.block.Bytes() == nil {
		t.Fatal("memory freed while a kernel still holds it")
	}

	if _, err := q.EnqueueKernel(fill, driver.Range1(1<<16), driver.NDRange{}, nil); !errors.Is(err, driver.ErrReleased) {
		t.Errorf("kernel on released buffer = %v, want ErrReleased", err)
	}

	close(gate.done)

	if err := e.Wait(); err != nil {
		t.Fatalf("kernel pinned before Release: %v", err)
	}

	if b.block.Bytes() != nil {
		t.Error("memory not freed after the last command finished")
	}
}

func TestRejectedCommandUnpins(t *testing.T) {
	t.Parallel()

	opts := DefaultOptions()
	opts.Hazards = HazardStrict

	_, ctx := newTestContext(t, opts)
	prog := buildTest(t, ctx, "")
	q := newTestQueue(t, ctx, 0)
	a := newTestBuffer(t, ctx, 64)
	out := newTestBuffer(t, ctx, 64)

	gate := &event{q: q, label: "gate", done: make(chan struct{})}
	fill := newKernel(t, prog, "soft_test_fill", driver.Arg{Buffer: a}, driver.Arg{Scalar: f32(1)}, driver.Arg{Scalar: i32(64)})
	add := newKernel(t, prog, "soft_test_add", driver.Arg{Buffer: a}, driver.Arg{Buffer: out}, driver.Arg{Scalar: i32(64)})

	e, err := q.EnqueueKernel(fill, driver.Range1(64), driver.NDRange{}, []driver.Event{gate})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := q.EnqueueKernel(add, driver.Range1(64), driver.NDRange{}, nil); !errors.Is(err, driver.ErrUnorderedAccess) {
		t.Fatalf("unordered read = %v, want ErrUnorderedAccess", err)
	}

	close(gate.done)

	if err := e.Wait(); err != nil {
		t.Fatal(err)
	}

	for _, b := range []*buffer{a, out} {
		b.mu.Lock()
		pins := b.pins
		b.mu.Unlock()

		if pins != 0 {
			t.Errorf("%s pins = %d after all commands finished", b, pins)
		}
	}
}
