// Package kernels holds the device program used by the BiCGStab solver.
//
// Source is OpenCL C and runs unchanged on OpenCL devices. The software
// device cannot compile it, so this package also registers a Go
// implementation of every entry point with device/soft. Both follow the same
// work-item semantics, including padded global sizes.
package kernels

import (
	_ "embed"

	"github.com/cwbudde/algo-bicgstab/device/soft"
	"github.com/cwbudde/algo-bicgstab/internal/numeric"
)

// Source is the kernel program text.
//
//go:embed solvers.cl
var Source string

// Entry point names in Source.
const (
	MSRMul          = "msr_mul"
	BiCGStabPrepare = "bicgstab_prepare"
	BiCGStabHS      = "bicgstab_hs"
	BiCGStabXR      = "bicgstab_xr"
	BiCGStabP       = "bicgstab_p"
	Axpy            = "axpy"
	Scale           = "scale"
	DotPartial      = "dot_partial"
	DotEpilogue     = "dot_epilogue"
)

// Names lists every entry point in Source.
func Names() []string {
	return []string{
		MSRMul, BiCGStabPrepare, BiCGStabHS, BiCGStabXR, BiCGStabP,
		Axpy, Scale, DotPartial, DotEpilogue,
	}
}

// BuildOptions returns the compiler options selecting precision T.
func BuildOptions[T numeric.Float]() string {
	return "-DREAL=" + numeric.Precision[T]()
}

func init() {
	soft.Register(MSRMul, soft.Variants{Float32: msrMul[float32], Float64: msrMul[float64]})
	soft.Register(BiCGStabPrepare, soft.Variants{Float32: prepare[float32], Float64: prepare[float64]})
	soft.Register(BiCGStabHS, soft.Variants{Float32: updateHS[float32], Float64: updateHS[float64]})
	soft.Register(BiCGStabXR, soft.Variants{Float32: updateXR[float32], Float64: updateXR[float64]})
	soft.Register(BiCGStabP, soft.Variants{Float32: updateP[float32], Float64: updateP[float64]})
	soft.Register(Axpy, soft.Variants{Float32: axpy[float32], Float64: axpy[float64]})
	soft.Register(Scale, soft.Variants{Float32: scale[float32], Float64: scale[float64]})
	soft.Register(DotPartial, soft.Variants{Float32: dotPartial[float32], Float64: dotPartial[float64]})
	soft.Register(DotEpilogue, soft.Variants{Float32: dotEpilogue[float32], Float64: dotEpilogue[float64]})
}

// rows returns the range of row indices the group covers, clipped to n.
func rows(g *soft.Group, n int) (lo, hi int) {
	lo = g.GlobalID(0)
	hi = min(lo+g.Size, n)

	return lo, hi
}
