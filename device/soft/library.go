package soft

import (
	"sort"
	"sync"
)

// Func executes one work-group of a kernel.
type Func func(g *Group)

// Variants holds the implementations of one entry point per precision.
// Kernels without a REAL parameter may set only one of them; it then serves
// both precisions.
type Variants struct {
	Float32 Func
	Float64 Func
}

func (v Variants) pick(precision string, exact bool) Func {
	f := v.Float32
	if precision == "double" {
		f = v.Float64
	}

	if f != nil || exact {
		return f
	}

	if v.Float32 != nil {
		return v.Float32
	}

	return v.Float64
}

var (
	libraryMu sync.RWMutex
	library   = make(map[string]Variants)
)

// Register makes Go implementations of the kernel name available to programs
// built by the software device. Registering a name again replaces it.
func Register(name string, v Variants) {
	libraryMu.Lock()
	library[name] = v
	libraryMu.Unlock()
}

// Registered returns the sorted names of all registered kernels.
func Registered() []string {
	libraryMu.RLock()
	defer libraryMu.RUnlock()

	names := make([]string, 0, len(library))
	for name := range library {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}

func lookup(name string) (Variants, bool) {
	libraryMu.RLock()
	v, ok := library[name]
	libraryMu.RUnlock()

	return v, ok
}

// Group is the execution state of one work-group.
type Group struct {
	// ID is the linear work-group index.
	ID int
	// Size is the number of work-items in the group.
	Size int
	// Groups is the number of work-groups in the dispatch.
	Groups int

	args   []boundArg
	locals [][]byte
}

// GlobalID returns the linear global index of local work-item l.
func (g *Group) GlobalID(l int) int {
	return g.ID*g.Size + l
}

// GlobalSize returns the number of work-items in the dispatch.
func (g *Group) GlobalSize() int {
	return g.Groups * g.Size
}

// Global returns the buffer bound to argument i viewed as []T.
func Global[T any](g *Group, i int) []T {
	return view[T](g.args[i].buf.data)
}

// Scalar returns the scalar bound to argument i.
func Scalar[T any](g *Group, i int) T {
	return view[T](g.args[i].scalar)[0]
}

// Local returns the group's local memory for argument i viewed as []T.
func Local[T any](g *Group, i int) []T {
	return view[T](g.locals[i])
}
