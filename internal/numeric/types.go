// Package numeric holds the element-type constraints shared by the device
// layer and the solver.
package numeric

import "math"

// Float is the constraint for real scalar types a solver can run in.
type Float interface {
	~float32 | ~float64
}

// Index is the constraint for integer element types stored in device memory
// (row pointers, column indices).
type Index interface {
	~int32 | ~uint32
}

// Element is any type that may live in a host array or device buffer.
type Element interface {
	Float | Index | ~int64 | ~uint64
}

// IsFinite reports whether v is neither NaN nor an infinity.
func IsFinite[T Float](v T) bool {
	f := float64(v)
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// Precision names the device-side spelling of T ("float" or "double").
func Precision[T Float]() string {
	var zero T
	switch any(zero).(type) {
	case float32:
		return "float"
	default:
		return "double"
	}
}
