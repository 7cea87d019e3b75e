// Package cpu reports host CPU capabilities used to describe and size the
// software compute device.
package cpu

import (
	"runtime"

	"golang.org/x/sys/cpu"
)

// Features describes the SIMD capabilities of the host.
type Features struct {
	HasSSE2      bool
	HasSSE41     bool
	HasAVX       bool
	HasAVX2      bool
	HasAVX512    bool
	HasFMA       bool
	HasNEON      bool
	HasSVE       bool
	Architecture string
}

// DetectFeatures performs feature detection for the running process.
//
// golang.org/x/sys/cpu exposes the X86 and ARM64 flag sets on every
// architecture; flags for foreign architectures stay false.
func DetectFeatures() Features {
	return Features{
		HasSSE2:      cpu.X86.HasSSE2,
		HasSSE41:     cpu.X86.HasSSE41,
		HasAVX:       cpu.X86.HasAVX,
		HasAVX2:      cpu.X86.HasAVX2,
		HasAVX512:    cpu.X86.HasAVX512F,
		HasFMA:       cpu.X86.HasFMA,
		HasNEON:      cpu.ARM64.HasASIMD,
		HasSVE:       cpu.ARM64.HasSVE,
		Architecture: runtime.GOARCH,
	}
}

// VectorWidth returns the widest SIMD register size in bytes, or 8 when only
// scalar registers are known.
func (f Features) VectorWidth() int {
	switch {
	case f.HasAVX512:
		return 64
	case f.HasAVX2, f.HasAVX:
		return 32
	case f.HasSSE2, f.HasNEON:
		return 16
	default:
		return 8
	}
}

// Extensions lists the detected features in the space-separated style of a
// device extension string.
func (f Features) Extensions() []string {
	var ext []string

	add := func(ok bool, name string) {
		if ok {
			ext = append(ext, name)
		}
	}

	add(f.HasSSE2, "sse2")
	add(f.HasSSE41, "sse4.1")
	add(f.HasAVX, "avx")
	add(f.HasAVX2, "avx2")
	add(f.HasAVX512, "avx512f")
	add(f.HasFMA, "fma")
	add(f.HasNEON, "neon")
	add(f.HasSVE, "sve")

	return ext
}

// CacheLinePad separates hot fields written by different goroutines.
type CacheLinePad = cpu.CacheLinePad
