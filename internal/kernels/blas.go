package kernels

import (
	"github.com/cwbudde/algo-bicgstab/device/soft"
	"github.com/cwbudde/algo-bicgstab/internal/numeric"
)

// updateHS: n, alpha, x, p, r, nu, h, s.
func updateHS[T numeric.Float](g *soft.Group) {
	n := int(soft.Scalar[int32](g, 0))
	alpha := soft.Scalar[T](g, 1)
	x := soft.Global[T](g, 2)
	p := soft.Global[T](g, 3)
	r := soft.Global[T](g, 4)
	nu := soft.Global[T](g, 5)
	h := soft.Global[T](g, 6)
	s := soft.Global[T](g, 7)

	lo, hi := rows(g, n)
	for i := lo; i < hi; i++ {
		h[i] = x[i] + alpha*p[i]
		s[i] = r[i] - alpha*nu[i]
	}
}

// updateXR: n, omega, h, s, t, x, r.
func updateXR[T numeric.Float](g *soft.Group) {
	n := int(soft.Scalar[int32](g, 0))
	omega := soft.Scalar[T](g, 1)
	h := soft.Global[T](g, 2)
	s := soft.Global[T](g, 3)
	t := soft.Global[T](g, 4)
	x := soft.Global[T](g, 5)
	r := soft.Global[T](g, 6)

	lo, hi := rows(g, n)
	for i := lo; i < hi; i++ {
		x[i] = h[i] + omega*s[i]
		r[i] = s[i] - omega*t[i]
	}
}

// updateP: n, beta, omega, r, nu, p.
func updateP[T numeric.Float](g *soft.Group) {
	n := int(soft.Scalar[int32](g, 0))
	beta := soft.Scalar[T](g, 1)
	omega := soft.Scalar[T](g, 2)
	r := soft.Global[T](g, 3)
	nu := soft.Global[T](g, 4)
	p := soft.Global[T](g, 5)

	lo, hi := rows(g, n)
	for i := lo; i < hi; i++ {
		p[i] = r[i] + beta*(p[i]-omega*nu[i])
	}
}

// axpy: n, a, x, y.
func axpy[T numeric.Float](g *soft.Group) {
	n := int(soft.Scalar[int32](g, 0))
	a := soft.Scalar[T](g, 1)
	x := soft.Global[T](g, 2)
	y := soft.Global[T](g, 3)

	lo, hi := rows(g, n)
	for i := lo; i < hi; i++ {
		y[i] += a * x[i]
	}
}

// scale: n, a, x.
func scale[T numeric.Float](g *soft.Group) {
	n := int(soft.Scalar[int32](g, 0))
	a := soft.Scalar[T](g, 1)
	x := soft.Global[T](g, 2)

	lo, hi := rows(g, n)
	for i := lo; i < hi; i++ {
		x[i] *= a
	}
}
