package bicgstab

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"k8s.io/klog/v2"

	"github.com/cwbudde/algo-bicgstab/device"
	"github.com/cwbudde/algo-bicgstab/internal/kernels"
	"github.com/cwbudde/algo-bicgstab/internal/numeric"
)

// Solver runs BiCGStab on one device session. It owns the compiled program
// and its kernels, whose argument bindings are mutable, so a Solver must not
// be used by two goroutines at once. Use one Solver per goroutine.
type Solver[T Float] struct {
	session *device.Session
	opts    Options
	prog    *device.Program

	mul, prepare        *device.Kernel
	hs, xr, p           *device.Kernel
	axpy, scale         *device.Kernel
	dotPartial, dotEpil *device.Kernel
}

// NewSolver builds the kernel program for T on s.
func NewSolver[T Float](s *device.Session, opts Options) (*Solver[T], error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	source := opts.ProgramSource
	if source == "" {
		source = kernels.Source
	}

	buildOpts := strings.TrimSpace(kernels.BuildOptions[T]() + " " + opts.BuildOptions)

	prog, err := s.BuildProgram(source, buildOpts)
	if err != nil {
		return nil, err
	}

	sv := &Solver[T]{session: s, opts: opts, prog: prog}

	slots := []struct {
		k    **device.Kernel
		name string
	}{
		{&sv.mul, kernels.MSRMul},
		{&sv.prepare, kernels.BiCGStabPrepare},
		{&sv.hs, kernels.BiCGStabHS},
		{&sv.xr, kernels.BiCGStabXR},
		{&sv.p, kernels.BiCGStabP},
		{&sv.axpy, kernels.Axpy},
		{&sv.scale, kernels.Scale},
		{&sv.dotPartial, kernels.DotPartial},
		{&sv.dotEpil, kernels.DotEpilogue},
	}

	for _, slot := range slots {
		k, err := prog.Kernel(slot.name)
		if err != nil {
			_ = sv.Close()
			return nil, err
		}

		*slot.k = k
	}

	klog.V(2).Infof("bicgstab: solver ready (%s, %s, local size %d)", numeric.Precision[T](), opts.Strategy, opts.LocalSize)

	return sv, nil
}

// Options returns the solver's options.
func (sv *Solver[T]) Options() Options {
	return sv.opts
}

// Close releases the kernels and the program. The session stays open.
func (sv *Solver[T]) Close() error {
	if sv.prog == nil {
		return nil
	}

	var errs []error

	for _, k := range []*device.Kernel{sv.mul, sv.prepare, sv.hs, sv.xr, sv.p, sv.axpy, sv.scale, sv.dotPartial, sv.dotEpil} {
		if err := k.Release(); err != nil {
			errs = append(errs, err)
		}
	}

	if err := sv.prog.Release(); err != nil {
		errs = append(errs, err)
	}

	sv.prog = nil

	return errors.Join(errs...)
}

// Solve solves a·x = f starting from x0 (zero when nil). Breakdown and an
// exhausted budget are reported in Result.Status; errors are device
// failures, invalid input or ctx expiring at a host synchronisation point.
func (sv *Solver[T]) Solve(ctx context.Context, a *Matrix[T], f, x0 []T) (*Result[T], error) {
	if sv.prog == nil {
		return nil, ErrClosed
	}

	if err := a.Validate(); err != nil {
		return nil, err
	}

	n := a.N()
	if len(f) != n {
		return nil, fmt.Errorf("%w: f has %d elements, matrix has %d rows", ErrLengthMismatch, len(f), n)
	}

	if x0 == nil {
		x0 = make([]T, n)
	} else if len(x0) != n {
		return nil, fmt.Errorf("%w: x0 has %d elements, matrix has %d rows", ErrLengthMismatch, len(x0), n)
	}

	start := time.Now()

	w, err := newWorkspace(sv, a, f, x0)
	if err != nil {
		return nil, err
	}

	res, err := sv.run(ctx, w)

	if cerr := w.close(); cerr != nil && err == nil {
		err = cerr
	}

	if err != nil {
		return nil, err
	}

	res.Timings.IO = w.io
	res.Timings.Kernel = w.kernel
	res.Timings.Host = w.host
	res.Timings.Total = time.Since(start)

	klog.V(2).Infof("bicgstab: %s after %d iterations (rr=%g, rho=%g, %s strategy, total %v, io %v, kernel %v, host %v)",
		res.Status, res.Iterations, float64(res.RR), float64(res.Rho), sv.opts.Strategy,
		res.Timings.Total, res.Timings.IO, res.Timings.Kernel, res.Timings.Host)

	return res, nil
}

func (sv *Solver[T]) run(ctx context.Context, w *workspace[T]) (*Result[T], error) {
	var (
		res *Result[T]
		err error
	)

	switch sv.opts.Strategy {
	case StrategyBasic:
		res, err = sv.runBasic(ctx, w)
	default:
		res, err = sv.runPipelined(ctx, w)
	}

	if err != nil {
		return nil, err
	}

	if res.Status == BreakdownDetected {
		klog.Warningf("bicgstab: breakdown in iteration %d (rho=%g)", res.Iterations, float64(res.Rho))
	}

	x, err := w.fetch(ctx, w.x)
	if err != nil {
		return nil, err
	}

	res.X = append([]T(nil), x...)

	return res, nil
}

// converged reports whether a squared norm is below the threshold. NaN
// never converges.
func (sv *Solver[T]) converged(v T) bool {
	return float64(v) < sv.opts.Eps
}

// scalar returns v as the kernel argument type of the program's REAL.
func scalar[T Float](v T) any {
	if numeric.Precision[T]() == "float" {
		return float32(v)
	}

	return float64(v)
}
