package bicgstab

import (
	"context"
	"time"

	"k8s.io/klog/v2"

	"github.com/cwbudde/algo-bicgstab/internal/numeric"
)

// runBasic is the unfused schedule: every vector update is a copy plus axpy
// and every inner product is computed on the host after reading the vectors
// back.
func (sv *Solver[T]) runBasic(ctx context.Context, w *workspace[T]) (*Result[T], error) {
	if err := w.prepareResidual(); err != nil {
		return nil, err
	}

	if _, err := w.fetch(ctx, w.r); err != nil {
		return nil, err
	}

	if _, err := w.fetch(ctx, w.rHat); err != nil {
		return nil, err
	}

	start := time.Now()
	rr := w.r.Dot(w.r)
	rho := w.rHat.Dot(w.r)
	w.stopwatch(start)

	res := &Result[T]{RR: rr, Rho: rho}

	if sv.converged(rr) {
		res.Status = Converged
		return res, nil
	}

	for iter := range sv.opts.MaxIter {
		res.Iterations = iter

		if _, err := w.mulVec(w.p, w.nu); err != nil {
			return nil, err
		}

		if _, err := w.fetch(ctx, w.nu); err != nil {
			return nil, err
		}

		start = time.Now()
		alpha := rho / w.rHat.Dot(w.nu)
		w.stopwatch(start)

		if !numeric.IsFinite(alpha) {
			res.Status = BreakdownDetected
			return res, nil
		}

		if err := w.update(w.x, alpha, w.p, w.h); err != nil {
			return nil, err
		}

		if err := w.update(w.r, -alpha, w.nu, w.s); err != nil {
			return nil, err
		}

		if _, err := w.fetch(ctx, w.s); err != nil {
			return nil, err
		}

		start = time.Now()
		ss := w.s.Dot(w.s)
		w.stopwatch(start)

		if sv.converged(ss) {
			if _, err := w.copy(w.h, w.x); err != nil {
				return nil, err
			}

			res.RR = ss
			res.Status = Converged

			return res, nil
		}

		if _, err := w.mulVec(w.s, w.t); err != nil {
			return nil, err
		}

		if _, err := w.fetch(ctx, w.t); err != nil {
			return nil, err
		}

		start = time.Now()
		omega := w.t.Dot(w.s) / w.t.Dot(w.t)
		w.stopwatch(start)

		if !numeric.IsFinite(omega) {
			res.Status = BreakdownDetected
			return res, nil
		}

		if err := w.update(w.h, omega, w.s, w.x); err != nil {
			return nil, err
		}

		if err := w.update(w.s, -omega, w.t, w.r); err != nil {
			return nil, err
		}

		if _, err := w.fetch(ctx, w.r); err != nil {
			return nil, err
		}

		start = time.Now()
		res.RR = w.r.Dot(w.r)
		w.stopwatch(start)

		if sv.converged(res.RR) {
			res.Status = Converged
			return res, nil
		}

		start = time.Now()
		rho1 := w.rHat.Dot(w.r)
		beta := (rho1 / rho) * (alpha / omega)
		w.stopwatch(start)

		if !numeric.IsFinite(beta) {
			res.Status = BreakdownDetected
			return res, nil
		}

		// p = r + β·(p − ω·nu)
		if _, err := w.axpy(-omega, w.nu, w.p); err != nil {
			return nil, err
		}

		if _, err := w.scale(beta, w.p); err != nil {
			return nil, err
		}

		if _, err := w.axpy(1, w.r, w.p); err != nil {
			return nil, err
		}

		rho = rho1
		res.Rho = rho

		klog.V(4).Infof("bicgstab: iteration %d: alpha=%g omega=%g beta=%g rr=%g",
			iter, float64(alpha), float64(omega), float64(beta), float64(res.RR))
	}

	res.Iterations = sv.opts.MaxIter
	res.Status = BudgetExhausted

	return res, nil
}
