package bicgstab

import (
	"fmt"
	"math"
)

// Options configure a Solver.
type Options struct {
	// MaxIter is the iteration budget.
	MaxIter int
	// Eps is the absolute threshold on ⟨s,s⟩ and ⟨r,r⟩.
	Eps float64
	// LocalSize is the work-group size of every dispatch. It must be a power
	// of two.
	LocalSize int
	// ReduceGroups bounds the work-groups of the first reduction stage.
	ReduceGroups int
	// Strategy selects the command schedule.
	Strategy Strategy
	// ProgramSource replaces the built-in kernel program when set. It must
	// define the same entry points.
	ProgramSource string
	// BuildOptions are appended to the precision define passed to the
	// device compiler.
	BuildOptions string
}

// DefaultOptions returns the settings used when none are given.
func DefaultOptions() Options {
	return Options{
		MaxIter:      1000,
		Eps:          1e-13,
		LocalSize:    32,
		ReduceGroups: 64,
		Strategy:     StrategyPipelined,
	}
}

// Validate reports the first invalid field.
func (o Options) Validate() error {
	switch {
	case o.MaxIter <= 0:
		return fmt.Errorf("%w: MaxIter %d", ErrInvalidOptions, o.MaxIter)
	case !(o.Eps > 0) || math.IsInf(o.Eps, 0):
		return fmt.Errorf("%w: Eps %g", ErrInvalidOptions, o.Eps)
	case o.LocalSize <= 0 || o.LocalSize&(o.LocalSize-1) != 0:
		return fmt.Errorf("%w: LocalSize %d is not a power of two", ErrInvalidOptions, o.LocalSize)
	case o.ReduceGroups <= 0:
		return fmt.Errorf("%w: ReduceGroups %d", ErrInvalidOptions, o.ReduceGroups)
	case o.Strategy != StrategyPipelined && o.Strategy != StrategyBasic:
		return fmt.Errorf("%w: %v", ErrInvalidOptions, o.Strategy)
	default:
		return nil
	}
}
