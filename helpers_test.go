package bicgstab

import (
	"math/rand/v2"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/cwbudde/algo-bicgstab/device"
	"github.com/cwbudde/algo-bicgstab/device/soft"
)

// openSession opens a session on a private software device that rejects
// unordered buffer accesses and shuffles command start times.
func openSession(t *testing.T) (*device.Session, *soft.Driver) {
	t.Helper()

	opts := soft.DefaultOptions()
	opts.Hazards = soft.HazardStrict
	opts.Jitter = 50 * time.Microsecond
	opts.Seed = 42

	drv := soft.New(opts)

	s, err := device.Open(device.Config{Driver: drv, Type: device.TypeAll})
	require.NoError(t, err)

	t.Cleanup(func() { require.NoError(t, s.Close()) })

	return s, drv
}

func newSolver[T Float](t *testing.T, s *device.Session, opts Options) *Solver[T] {
	t.Helper()

	sv, err := NewSolver[T](s, opts)
	require.NoError(t, err)

	t.Cleanup(func() { require.NoError(t, sv.Close()) })

	return sv
}

func withStrategy(st Strategy) Options {
	opts := DefaultOptions()
	opts.Strategy = st

	return opts
}

// tridiagonal returns the n×n matrix with d on the diagonal and off on both
// neighbouring diagonals.
func tridiagonal[T Float](n int, d, off T) *Matrix[T] {
	m := &Matrix[T]{
		Diag:     make([]T, n),
		RowStart: make([]int32, n+1),
	}

	for i := range n {
		m.Diag[i] = d

		if i > 0 {
			m.Values = append(m.Values, off)
			m.ColIndex = append(m.ColIndex, int32(i-1))
		}

		if i < n-1 {
			m.Values = append(m.Values, off)
			m.ColIndex = append(m.ColIndex, int32(i+1))
		}

		m.RowStart[i+1] = int32(len(m.Values))
	}

	return m
}

// randomDominant returns a random non-symmetric sparse matrix whose
// diagonal dominates every row.
func randomDominant(rng *rand.Rand, n int, density float64) *Matrix[float64] {
	m := &Matrix[float64]{
		Diag:     make([]float64, n),
		RowStart: make([]int32, n+1),
	}

	for i := range n {
		var sum float64

		for j := range n {
			if j == i || rng.Float64() > density {
				continue
			}

			v := rng.Float64()*2 - 1
			sum += max(v, -v)

			m.Values = append(m.Values, v)
			m.ColIndex = append(m.ColIndex, int32(j))
		}

		m.Diag[i] = sum + 1 + rng.Float64()
		m.RowStart[i+1] = int32(len(m.Values))
	}

	return m
}

func ones[T Float](n int) []T {
	v := make([]T, n)
	for i := range v {
		v[i] = 1
	}

	return v
}

func mulHost[T Float](t *testing.T, m *Matrix[T], v []T) []T {
	t.Helper()

	out := make([]T, m.N())
	require.NoError(t, m.Mul(out, v))

	return out
}

// residual returns ‖f − A·x‖² computed with gonum in float64.
func residual[T Float](m *Matrix[T], f, x []T) float64 {
	n := m.N()
	dense := m.Dense()

	a := mat.NewDense(n, n, nil)
	xv := mat.NewVecDense(n, nil)
	fv := mat.NewVecDense(n, nil)

	for i := range n {
		for j := range n {
			a.Set(i, j, float64(dense[i*n+j]))
		}

		xv.SetVec(i, float64(x[i]))
		fv.SetVec(i, float64(f[i]))
	}

	var r mat.VecDense
	r.MulVec(a, xv)
	r.SubVec(fv, &r)

	return mat.Dot(&r, &r)
}

func requireFinite[T Float](t *testing.T, x []T) {
	t.Helper()

	for i, v := range x {
		require.False(t, v != v, "x[%d] is NaN", i)
	}
}
