package kernels

import (
	"github.com/cwbudde/algo-bicgstab/device/soft"
	"github.com/cwbudde/algo-bicgstab/internal/numeric"
)

// foldScratch performs the work-group tree reduction of the OpenCL kernels,
// so both devices add in the same order.
func foldScratch[T numeric.Float](scratch []T, size int) T {
	for stride := size / 2; stride > 0; stride /= 2 {
		for l := range stride {
			scratch[l] += scratch[l+stride]
		}
	}

	return scratch[0]
}

// dotPartial: n, x, y, partial, scratch.
func dotPartial[T numeric.Float](g *soft.Group) {
	n := int(soft.Scalar[int32](g, 0))
	x := soft.Global[T](g, 1)
	y := soft.Global[T](g, 2)
	partial := soft.Global[T](g, 3)
	scratch := soft.Local[T](g, 4)

	stride := g.GlobalSize()

	for l := range g.Size {
		var acc T
		for i := g.GlobalID(l); i < n; i += stride {
			acc += x[i] * y[i]
		}

		scratch[l] = acc
	}

	partial[g.ID] = foldScratch(scratch, g.Size)
}

// dotEpilogue: count, partial, result, scratch.
func dotEpilogue[T numeric.Float](g *soft.Group) {
	count := int(soft.Scalar[int32](g, 0))
	partial := soft.Global[T](g, 1)
	result := soft.Global[T](g, 2)
	scratch := soft.Local[T](g, 3)

	for l := range g.Size {
		var acc T
		for i := l; i < count; i += g.Size {
			acc += partial[i]
		}

		scratch[l] = acc
	}

	result[0] = foldScratch(scratch, g.Size)
}
