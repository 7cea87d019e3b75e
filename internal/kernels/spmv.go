package kernels

import (
	"github.com/cwbudde/algo-bicgstab/device/soft"
	"github.com/cwbudde/algo-bicgstab/internal/numeric"
)

// msrRow computes row i of A*v.
func msrRow[T numeric.Float](diag, values []T, rowStart, colIndex []int32, v []T, i int) T {
	acc := diag[i] * v[i]
	for k := rowStart[i]; k < rowStart[i+1]; k++ {
		acc += values[k] * v[colIndex[k]]
	}

	return acc
}

// msrMul: diag, values, row_start, col_index, n, v, y.
func msrMul[T numeric.Float](g *soft.Group) {
	diag := soft.Global[T](g, 0)
	values := soft.Global[T](g, 1)
	rowStart := soft.Global[int32](g, 2)
	colIndex := soft.Global[int32](g, 3)
	n := int(soft.Scalar[int32](g, 4))
	v := soft.Global[T](g, 5)
	y := soft.Global[T](g, 6)

	lo, hi := rows(g, n)
	for i := lo; i < hi; i++ {
		y[i] = msrRow(diag, values, rowStart, colIndex, v, i)
	}
}

// prepare: diag, values, row_start, col_index, n, f, x, r.
func prepare[T numeric.Float](g *soft.Group) {
	diag := soft.Global[T](g, 0)
	values := soft.Global[T](g, 1)
	rowStart := soft.Global[int32](g, 2)
	colIndex := soft.Global[int32](g, 3)
	n := int(soft.Scalar[int32](g, 4))
	f := soft.Global[T](g, 5)
	x := soft.Global[T](g, 6)
	r := soft.Global[T](g, 7)

	lo, hi := rows(g, n)
	for i := lo; i < hi; i++ {
		r[i] = f[i] - msrRow(diag, values, rowStart, colIndex, x, i)
	}
}
