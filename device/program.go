package device

import (
	"fmt"
	"unsafe"

	"github.com/cwbudde/algo-bicgstab/device/driver"
)

// Program is device code compiled for one context.
type Program struct {
	native driver.Program
	ctx    *Context
	log    string
}

// BuildLog returns the compiler diagnostics of a successful build.
func (p *Program) BuildLog() string {
	return p.log
}

// KernelNames lists the program's entry points.
func (p *Program) KernelNames() []string {
	if p.native == nil {
		return nil
	}

	return p.native.KernelNames()
}

// Kernel creates an entry point. A missing entry point is a program defect
// and wraps ErrProgramBuild.
func (p *Program) Kernel(name string) (*Kernel, error) {
	if p.native == nil {
		return nil, ErrReleased
	}

	native, err := p.native.NewKernel(name)
	if err != nil {
		return nil, fmt.Errorf("%w: kernel %q: %w", ErrProgramBuild, name, err)
	}

	return &Kernel{native: native, prog: p}, nil
}

// Release frees the program. Kernels created from it stay valid until
// released themselves.
func (p *Program) Release() error {
	if p == nil || p.native == nil {
		return nil
	}

	err := p.native.Release()
	p.native = nil

	return err
}

// LocalMem requests per-work-group scratch memory as a kernel argument.
type LocalMem int

// Local returns a local-memory argument of n bytes.
func Local(n int) LocalMem {
	return LocalMem(n)
}

// Kernel is a callable entry point with positional argument slots.
//
// Bindings are mutable state owned by the Kernel: they persist across
// dispatches until overwritten, and each dispatch uses the bindings in
// effect when it is enqueued. Two pipelines that rebind the same arguments
// need separate Kernels.
type Kernel struct {
	native driver.Kernel
	prog   *Program
	next   int
	hosts  map[int]*hostUsers
}

// Name returns the entry point name.
func (k *Kernel) Name() string {
	if k.native == nil {
		return ""
	}

	return k.native.Name()
}

// NumArgs returns the number of argument slots.
func (k *Kernel) NumArgs() int {
	if k.native == nil {
		return 0
	}

	return k.native.NumArgs()
}

// SetArg binds argument index. arg is a *Buffer[T] or *Value[T], a LocalMem,
// or a scalar of type float32, float64, int32, uint32, int64 or uint64.
func (k *Kernel) SetArg(index int, arg any) error {
	if k.native == nil {
		return ErrReleased
	}

	a, err := encodeArg(arg)
	if err != nil {
		return fmt.Errorf("%w: %s arg %d: %w", ErrKernelArgument, k.Name(), index, err)
	}

	if err := k.native.SetArg(index, a); err != nil {
		return fmt.Errorf("%w: %s arg %d: %w", ErrKernelArgument, k.Name(), index, err)
	}

	delete(k.hosts, index)

	if m, ok := arg.(memObject); ok {
		if u := m.hostUse(); u != nil {
			if k.hosts == nil {
				k.hosts = make(map[int]*hostUsers)
			}

			k.hosts[index] = u
		}
	}

	return nil
}

// Push binds the next sequential argument slot, starting at 0, and returns
// the index it bound.
func (k *Kernel) Push(arg any) (int, error) {
	idx := k.next
	if err := k.SetArg(idx, arg); err != nil {
		return idx, err
	}

	k.next++

	return idx, nil
}

// Dispatch enqueues the kernel on q.
func (k *Kernel) Dispatch(q *Queue, global, local NDRange, wait WaitSet) (*Event, error) {
	return q.EnqueueKernel(k, global, local, wait)
}

// Release frees the kernel. Calls after the first are no-ops.
func (k *Kernel) Release() error {
	if k == nil || k.native == nil {
		return nil
	}

	err := k.native.Release()
	k.native = nil

	return err
}

func encodeArg(arg any) (driver.Arg, error) {
	switch v := arg.(type) {
	case memObject:
		b := v.nativeBuffer()
		if b == nil {
			return driver.Arg{}, ErrReleased
		}

		return driver.Arg{Buffer: b}, nil
	case LocalMem:
		if v <= 0 {
			return driver.Arg{}, fmt.Errorf("%w: local size %d", driver.ErrInvalidArgSize, int(v))
		}

		return driver.Arg{Local: int(v)}, nil
	case float32:
		return driver.Arg{Scalar: scalarBytes(v)}, nil
	case float64:
		return driver.Arg{Scalar: scalarBytes(v)}, nil
	case int32:
		return driver.Arg{Scalar: scalarBytes(v)}, nil
	case uint32:
		return driver.Arg{Scalar: scalarBytes(v)}, nil
	case int64:
		return driver.Arg{Scalar: scalarBytes(v)}, nil
	case uint64:
		return driver.Arg{Scalar: scalarBytes(v)}, nil
	default:
		return driver.Arg{}, fmt.Errorf("%w: unsupported type %T", driver.ErrInvalidArgValue, arg)
	}
}

// scalarBytes encodes v in host byte order, which is what devices sharing
// the host's address space and OpenCL's clSetKernelArg expect.
func scalarBytes[T float32 | float64 | int32 | uint32 | int64 | uint64](v T) []byte {
	b := make([]byte, unsafe.Sizeof(v))
	*(*T)(unsafe.Pointer(&b[0])) = v

	return b
}
