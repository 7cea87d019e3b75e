package bicgstab

import (
	"context"
	"errors"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cwbudde/algo-bicgstab/device"
	"github.com/cwbudde/algo-bicgstab/device/driver"
	"github.com/cwbudde/algo-bicgstab/internal/kernels"
)

var strategies = []Strategy{StrategyPipelined, StrategyBasic}

func TestTridiagonalConverges(t *testing.T) {
	t.Parallel()

	for _, st := range strategies {
		t.Run(st.String(), func(t *testing.T) {
			t.Parallel()

			s, drv := openSession(t)
			sv := newSolver[float64](t, s, withStrategy(st))

			const n = 100

			a := tridiagonal[float64](n, 2, -1)
			f := mulHost(t, a, ones[float64](n))

			res, err := sv.Solve(context.Background(), a, f, nil)
			require.NoError(t, err)

			require.Equal(t, Converged, res.Status)
			require.Less(t, res.Iterations, 100)
			require.Len(t, res.X, n)

			for i, v := range res.X {
				require.InDelta(t, 1.0, v, 1e-6, "x[%d]", i)
			}

			require.Less(t, float64(res.RR), DefaultOptions().Eps)
			require.Empty(t, drv.Hazards())
		})
	}
}

func TestBreakdownAtFirstIteration(t *testing.T) {
	t.Parallel()

	// Skew-symmetric: ⟨r, A·r⟩ = 0 for every r, so ρ' = 0 in the first step.
	a := &Matrix[float64]{
		Diag:     []float64{0, 0},
		Values:   []float64{1, -1},
		RowStart: []int32{0, 1, 2},
		ColIndex: []int32{1, 0},
	}

	for _, st := range strategies {
		t.Run(st.String(), func(t *testing.T) {
			t.Parallel()

			s, _ := openSession(t)
			sv := newSolver[float64](t, s, withStrategy(st))

			res, err := sv.Solve(context.Background(), a, []float64{1, 0}, nil)
			require.NoError(t, err)

			require.Equal(t, BreakdownDetected, res.Status)
			require.Equal(t, 0, res.Iterations)
			require.Equal(t, []float64{0, 0}, res.X)
			require.InDelta(t, 1.0, res.Rho, 0)
		})
	}
}

func TestInitialGuessExact(t *testing.T) {
	t.Parallel()

	s, _ := openSession(t)
	sv := newSolver[float64](t, s, DefaultOptions())

	rng := rand.New(rand.NewPCG(4, 4))
	a := randomDominant(rng, 30, 0.2)

	x0 := make([]float64, 30)
	for i := range x0 {
		x0[i] = rng.Float64()
	}

	res, err := sv.Solve(context.Background(), a, mulHost(t, a, x0), x0)
	require.NoError(t, err)

	require.Equal(t, Converged, res.Status)
	require.Equal(t, 0, res.Iterations)
	require.Equal(t, x0, res.X)
}

func TestRandomSystems(t *testing.T) {
	t.Parallel()

	rng := rand.New(rand.NewPCG(2024, 10))

	for _, n := range []int{7, 33, 120, 200} {
		a := randomDominant(rng, n, 0.1)

		f := make([]float64, n)
		for i := range f {
			f[i] = rng.Float64()*2 - 1
		}

		for _, st := range strategies {
			s, drv := openSession(t)
			sv := newSolver[float64](t, s, withStrategy(st))

			res, err := sv.Solve(context.Background(), a, f, nil)
			require.NoError(t, err)

			requireFinite(t, res.X)

			if res.Status == Converged {
				require.Less(t, residual(a, f, res.X), 1e-9, "n=%d %v", n, st)
			} else {
				require.Contains(t, []Status{BreakdownDetected, BudgetExhausted}, res.Status)
			}

			require.Empty(t, drv.Hazards())
		}
	}
}

func TestStrategiesAgree(t *testing.T) {
	t.Parallel()

	rng := rand.New(rand.NewPCG(9, 9))
	a := randomDominant(rng, 64, 0.15)
	f := mulHost(t, a, ones[float64](64))

	var results []*Result[float64]

	for _, st := range strategies {
		s, _ := openSession(t)
		sv := newSolver[float64](t, s, withStrategy(st))

		res, err := sv.Solve(context.Background(), a, f, nil)
		require.NoError(t, err)
		require.Equal(t, Converged, res.Status)

		results = append(results, res)
	}

	require.InDeltaSlice(t, results[0].X, results[1].X, 1e-6)
}

func TestFloat32Solve(t *testing.T) {
	t.Parallel()

	s, _ := openSession(t)

	opts := DefaultOptions()
	opts.Eps = 1e-8

	sv := newSolver[float32](t, s, opts)

	const n = 64

	a := tridiagonal[float32](n, 4, -1)
	f := mulHost(t, a, ones[float32](n))

	res, err := sv.Solve(context.Background(), a, f, nil)
	require.NoError(t, err)
	require.Equal(t, Converged, res.Status)

	for i, v := range res.X {
		require.InDelta(t, 1.0, float64(v), 1e-4, "x[%d]", i)
	}
}

func TestSolverReusable(t *testing.T) {
	t.Parallel()

	s, _ := openSession(t)
	sv := newSolver[float64](t, s, DefaultOptions())

	for _, n := range []int{10, 40} {
		a := tridiagonal[float64](n, 3, -1)
		f := mulHost(t, a, ones[float64](n))

		res, err := sv.Solve(context.Background(), a, f, nil)
		require.NoError(t, err)
		require.Equal(t, Converged, res.Status)
		require.InDeltaSlice(t, ones[float64](n), res.X, 1e-6)
	}
}

func TestBudgetExhausted(t *testing.T) {
	t.Parallel()

	s, _ := openSession(t)

	opts := DefaultOptions()
	opts.MaxIter = 2

	sv := newSolver[float64](t, s, opts)

	a := tridiagonal[float64](100, 2, -1)
	f := mulHost(t, a, ones[float64](100))

	res, err := sv.Solve(context.Background(), a, f, nil)
	require.NoError(t, err)
	require.Equal(t, BudgetExhausted, res.Status)
	require.Equal(t, 2, res.Iterations)
	requireFinite(t, res.X)
}

func TestTimingsAccounted(t *testing.T) {
	t.Parallel()

	s, _ := openSession(t)
	sv := newSolver[float64](t, s, withStrategy(StrategyBasic))

	a := tridiagonal[float64](50, 2, -1)
	f := mulHost(t, a, ones[float64](50))

	res, err := sv.Solve(context.Background(), a, f, nil)
	require.NoError(t, err)

	tm := res.Timings
	require.Positive(t, tm.Kernel)
	require.Positive(t, tm.IO)
	require.Positive(t, tm.Total)
	require.GreaterOrEqual(t, tm.Total, tm.Host)
}

func TestSolveInputValidation(t *testing.T) {
	t.Parallel()

	s, _ := openSession(t)
	sv := newSolver[float64](t, s, DefaultOptions())
	a := tridiagonal[float64](4, 2, -1)

	_, err := sv.Solve(context.Background(), a, make([]float64, 3), nil)
	require.ErrorIs(t, err, ErrLengthMismatch)

	_, err = sv.Solve(context.Background(), a, make([]float64, 4), make([]float64, 5))
	require.ErrorIs(t, err, ErrLengthMismatch)

	bad := tridiagonal[float64](4, 2, -1)
	bad.ColIndex[0] = 9

	_, err = sv.Solve(context.Background(), bad, make([]float64, 4), nil)
	require.ErrorIs(t, err, ErrInvalidMatrix)
}

func TestSolveAfterClose(t *testing.T) {
	t.Parallel()

	s, _ := openSession(t)

	sv, err := NewSolver[float64](s, DefaultOptions())
	require.NoError(t, err)
	require.NoError(t, sv.Close())
	require.NoError(t, sv.Close())

	_, err = sv.Solve(context.Background(), tridiagonal[float64](4, 2, -1), make([]float64, 4), nil)
	require.ErrorIs(t, err, ErrClosed)
}

func TestSolveCancelled(t *testing.T) {
	t.Parallel()

	s, _ := openSession(t)
	sv := newSolver[float64](t, s, DefaultOptions())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	a := tridiagonal[float64](20, 2, -1)

	_, err := sv.Solve(ctx, a, mulHost(t, a, ones[float64](20)), nil)
	require.ErrorIs(t, err, context.Canceled)

	// The session stays usable.
	res, err := sv.Solve(context.Background(), a, mulHost(t, a, ones[float64](20)), nil)
	require.NoError(t, err)
	require.Equal(t, Converged, res.Status)
}

func TestNewSolverValidation(t *testing.T) {
	t.Parallel()

	s, _ := openSession(t)

	opts := DefaultOptions()
	opts.LocalSize = 24

	_, err := NewSolver[float64](s, opts)
	require.ErrorIs(t, err, ErrInvalidOptions)

	opts = DefaultOptions()
	opts.ProgramSource = "__kernel void msr_mul(__global REAL* y, const half n) {}\n"

	_, err = NewSolver[float64](s, opts)
	require.ErrorIs(t, err, device.ErrProgramBuild)

	var buildErr *device.BuildError
	require.True(t, errors.As(err, &buildErr))
	require.Contains(t, buildErr.Log, "unknown type name \"half\"")

	opts.ProgramSource = "__kernel void msr_mul(__global const REAL* y) {}\n"

	_, err = NewSolver[float64](s, opts)
	require.ErrorIs(t, err, device.ErrProgramBuild, "missing entry points")
}

// TestUnorderedWriteDetected omits the write's event from the kernel's wait
// set and expects the software device to reject the kernel. With the
// dependency in place the chain is clean.
func TestUnorderedWriteDetected(t *testing.T) {
	t.Parallel()

	s, drv := openSession(t)

	prog, err := s.BuildProgram(kernels.Source, kernels.BuildOptions[float64]())
	require.NoError(t, err)

	defer prog.Release()

	k, err := prog.Kernel(kernels.Scale)
	require.NoError(t, err)

	defer k.Release()

	const n = 256

	v, err := device.NewValue[float64](s, n, device.MemReadWrite)
	require.NoError(t, err)

	defer v.Release()

	for i := range n {
		v.Set(i, float64(i))
	}

	write, err := v.Write(false, device.WaitSet{})
	require.NoError(t, err)

	for _, arg := range []any{int32(n), 2.0, v} {
		_, err := k.Push(arg)
		require.NoError(t, err)
	}

	_, err = k.Dispatch(s.Queue(), device.Range1(n), device.Range1(32), device.WaitSet{})
	require.ErrorIs(t, err, driver.ErrUnorderedAccess)
	require.ErrorIs(t, err, device.ErrQueueSubmission)
	require.Len(t, drv.Hazards(), 1)

	drv.ResetHazards()

	scaled, err := k.Dispatch(s.Queue(), device.Range1(n), device.Range1(32), device.After(write))
	require.NoError(t, err)

	_, err = v.Read(true, device.After(scaled))
	require.NoError(t, err)

	for i := range n {
		require.InDelta(t, 2*float64(i), v.At(i), 0)
	}

	require.Empty(t, drv.Hazards())
}
