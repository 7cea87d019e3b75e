package bicgstab

import "fmt"

// Matrix is a square sparse matrix in modified sparse row (MSR) layout: the
// diagonal is stored densely and the off-diagonal entries of row i are
// Values[RowStart[i]:RowStart[i+1]] in columns ColIndex[RowStart[i]:RowStart[i+1]].
type Matrix[T Float] struct {
	Diag     []T
	Values   []T
	RowStart []int32
	ColIndex []int32
}

// N returns the dimension.
func (m *Matrix[T]) N() int {
	return len(m.Diag)
}

// NNZ returns the number of stored off-diagonal entries.
func (m *Matrix[T]) NNZ() int {
	return len(m.Values)
}

// Validate checks the MSR invariants.
func (m *Matrix[T]) Validate() error {
	if m == nil {
		return fmt.Errorf("%w: nil matrix", ErrInvalidMatrix)
	}

	n, nnz := len(m.Diag), len(m.Values)

	if n == 0 {
		return fmt.Errorf("%w: empty matrix", ErrInvalidMatrix)
	}

	if len(m.RowStart) != n+1 {
		return fmt.Errorf("%w: %d row starts for %d rows", ErrInvalidMatrix, len(m.RowStart), n)
	}

	if len(m.ColIndex) != nnz {
		return fmt.Errorf("%w: %d column indices for %d values", ErrInvalidMatrix, len(m.ColIndex), nnz)
	}

	if m.RowStart[0] != 0 {
		return fmt.Errorf("%w: RowStart[0] = %d", ErrInvalidMatrix, m.RowStart[0])
	}

	for i := range n {
		if m.RowStart[i+1] < m.RowStart[i] {
			return fmt.Errorf("%w: RowStart decreases at row %d", ErrInvalidMatrix, i)
		}
	}

	if int(m.RowStart[n]) != nnz {
		return fmt.Errorf("%w: RowStart[%d] = %d, want %d", ErrInvalidMatrix, n, m.RowStart[n], nnz)
	}

	for k, j := range m.ColIndex {
		if j < 0 || int(j) >= n {
			return fmt.Errorf("%w: ColIndex[%d] = %d out of [0,%d)", ErrInvalidMatrix, k, j, n)
		}
	}

	return nil
}

// Mul computes dst = m*v on the host.
func (m *Matrix[T]) Mul(dst, v []T) error {
	n := m.N()
	if len(dst) != n || len(v) != n {
		return fmt.Errorf("%w: matrix is %d×%d, dst %d, v %d", ErrLengthMismatch, n, n, len(dst), len(v))
	}

	for i := range n {
		acc := m.Diag[i] * v[i]
		for k := m.RowStart[i]; k < m.RowStart[i+1]; k++ {
			acc += m.Values[k] * v[m.ColIndex[k]]
		}

		dst[i] = acc
	}

	return nil
}

// FromDense converts a row-major n×n matrix, keeping non-zero off-diagonal
// entries.
func FromDense[T Float](n int, a []T) (*Matrix[T], error) {
	if n <= 0 || len(a) != n*n {
		return nil, fmt.Errorf("%w: %d elements for %d×%d", ErrLengthMismatch, len(a), n, n)
	}

	m := &Matrix[T]{
		Diag:     make([]T, n),
		RowStart: make([]int32, n+1),
	}

	for i := range n {
		row := a[i*n : (i+1)*n]
		m.Diag[i] = row[i]

		for j, v := range row {
			if j == i || v == 0 {
				continue
			}

			m.Values = append(m.Values, v)
			m.ColIndex = append(m.ColIndex, int32(j))
		}

		m.RowStart[i+1] = int32(len(m.Values))
	}

	return m, nil
}

// Dense expands m into a row-major n×n slice.
func (m *Matrix[T]) Dense() []T {
	n := m.N()
	out := make([]T, n*n)

	for i := range n {
		out[i*n+i] = m.Diag[i]
		for k := m.RowStart[i]; k < m.RowStart[i+1]; k++ {
			out[i*n+int(m.ColIndex[k])] += m.Values[k]
		}
	}

	return out
}
