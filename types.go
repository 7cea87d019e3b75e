package bicgstab

import (
	"fmt"
	"time"

	"github.com/cwbudde/algo-bicgstab/internal/numeric"
)

// Float is the constraint for the solver's scalar type.
// The canonical definition is in internal/numeric.
type Float = numeric.Float

// Status is the terminal state of a solve.
type Status uint8

const (
	// Converged means ⟨s,s⟩ or ⟨r,r⟩ fell below Options.Eps.
	Converged Status = iota
	// BreakdownDetected means α, ω or β was not finite. The returned iterate is
	// the last one computed before the breakdown.
	BreakdownDetected
	// BudgetExhausted means Options.MaxIter iterations ran without
	// convergence.
	BudgetExhausted
)

func (s Status) String() string {
	switch s {
	case Converged:
		return "converged"
	case BreakdownDetected:
		return "breakdown"
	case BudgetExhausted:
		return "budget exhausted"
	default:
		return fmt.Sprintf("Status(%d)", uint8(s))
	}
}

// Strategy selects how an iteration is mapped onto device commands.
type Strategy uint8

const (
	// StrategyPipelined fuses the vector updates, reduces inner products on
	// the device and overlaps independent commands through per-operand
	// dependency tracking.
	StrategyPipelined Strategy = iota
	// StrategyBasic issues one unfused command per vector operation and
	// computes inner products on the host after reading vectors back.
	StrategyBasic
)

func (s Strategy) String() string {
	switch s {
	case StrategyPipelined:
		return "pipelined"
	case StrategyBasic:
		return "basic"
	default:
		return fmt.Sprintf("Strategy(%d)", uint8(s))
	}
}

// Timings splits the wall time of a solve.
type Timings struct {
	// Total is the wall time of Solve.
	Total time.Duration
	// IO is the summed device time of reads, writes and copies.
	IO time.Duration
	// Kernel is the summed device time of kernel dispatches.
	Kernel time.Duration
	// Host is the time spent in host-side scalar arithmetic and reductions.
	Host time.Duration
}

// Overhead returns the part of Total not accounted for by the other fields.
// Device commands overlap, so it can be negative.
func (t Timings) Overhead() time.Duration {
	return t.Total - t.IO - t.Kernel - t.Host
}

// Result is the outcome of a solve.
type Result[T Float] struct {
	// X is the final iterate.
	X []T
	// Status is the terminal state.
	Status Status
	// Iterations is the zero-based index of the iteration the solve stopped
	// in, or MaxIter when the budget ran out.
	Iterations int
	// RR is the last ⟨r,r⟩ evaluated.
	RR T
	// Rho is the last ρ = ⟨r_hat,r⟩.
	Rho T
	Timings Timings
}
