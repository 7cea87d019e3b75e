package bicgstab

import (
	"context"
	"time"

	"k8s.io/klog/v2"

	"github.com/cwbudde/algo-bicgstab/device"
	"github.com/cwbudde/algo-bicgstab/internal/numeric"
)

// runPipelined fuses the vector updates of steps 3, 7 and 10 and reduces
// every inner product on the device. The host only waits where it needs a
// scalar to branch; everything else is ordered by the tracker's wait sets.
func (sv *Solver[T]) runPipelined(ctx context.Context, w *workspace[T]) (*Result[T], error) {
	if err := w.prepareResidual(); err != nil {
		return nil, err
	}

	rrEv, err := w.dot(w.r, w.r, w.rr)
	if err != nil {
		return nil, err
	}

	if err := w.sync(ctx, rrEv); err != nil {
		return nil, err
	}

	// r_hat = r, so ρ0 = ⟨r,r⟩.
	rho := w.rr.result.At(0)
	res := &Result[T]{RR: rho, Rho: rho}

	if sv.converged(rho) {
		res.Status = Converged
		return res, nil
	}

	for iter := range sv.opts.MaxIter {
		res.Iterations = iter

		// 1. nu = A·p
		if _, err := w.mulVec(w.p, w.nu); err != nil {
			return nil, err
		}

		// 2. α = ρ / ⟨r_hat,nu⟩
		ev, err := w.dot(w.rHat, w.nu, w.rnu)
		if err != nil {
			return nil, err
		}

		if err := w.sync(ctx, ev); err != nil {
			return nil, err
		}

		start := time.Now()
		alpha := rho / w.rnu.result.At(0)
		w.stopwatch(start)

		if !numeric.IsFinite(alpha) {
			res.Status = BreakdownDetected
			return res, nil
		}

		// 3. h = x + α·p, s = r − α·nu
		if err := bind(sv.hs, 0, int32(w.n), scalar(alpha), w.x, w.p, w.r, w.nu, w.h, w.s); err != nil {
			return nil, err
		}

		if _, err := w.dispatch(sv.hs, w.global, operands(w.x, w.p, w.r, w.nu), operands(w.h, w.s)); err != nil {
			return nil, err
		}

		// 4. ⟨s,s⟩, with 5. t = A·s issued before the host sees it.
		ssEv, err := w.dot(w.s, w.s, w.ss)
		if err != nil {
			return nil, err
		}

		if _, err := w.mulVec(w.s, w.t); err != nil {
			return nil, err
		}

		if err := w.sync(ctx, ssEv); err != nil {
			return nil, err
		}

		if ss := w.ss.result.At(0); sv.converged(ss) {
			if _, err := w.copy(w.h, w.x); err != nil {
				return nil, err
			}

			res.RR = ss
			res.Status = Converged

			return res, nil
		}

		// 6. ω = ⟨t,s⟩ / ⟨t,t⟩
		tsEv, err := w.dot(w.t, w.s, w.ts)
		if err != nil {
			return nil, err
		}

		ttEv, err := w.dot(w.t, w.t, w.tt)
		if err != nil {
			return nil, err
		}

		if err := w.sync(ctx, tsEv, ttEv); err != nil {
			return nil, err
		}

		start = time.Now()
		omega := w.ts.result.At(0) / w.tt.result.At(0)
		w.stopwatch(start)

		if !numeric.IsFinite(omega) {
			res.Status = BreakdownDetected
			return res, nil
		}

		// 7. x = h + ω·s, r = s − ω·t
		if err := bind(sv.xr, 0, int32(w.n), scalar(omega), w.h, w.s, w.t, w.x, w.r); err != nil {
			return nil, err
		}

		if _, err := w.dispatch(sv.xr, w.global, operands(w.h, w.s, w.t), operands(w.x, w.r)); err != nil {
			return nil, err
		}

		// 8. ⟨r,r⟩ and 9. ρ1 = ⟨r_hat,r⟩ behind one fence.
		rrEv, err := w.dot(w.r, w.r, w.rr)
		if err != nil {
			return nil, err
		}

		rhoEv, err := w.dot(w.rHat, w.r, w.rho)
		if err != nil {
			return nil, err
		}

		if err := w.sync(ctx, rrEv, rhoEv); err != nil {
			return nil, err
		}

		res.RR = w.rr.result.At(0)
		if sv.converged(res.RR) {
			res.Status = Converged
			return res, nil
		}

		start = time.Now()
		rho1 := w.rho.result.At(0)
		beta := (rho1 / rho) * (alpha / omega)
		w.stopwatch(start)

		if !numeric.IsFinite(beta) {
			res.Status = BreakdownDetected
			return res, nil
		}

		// 10. p = r + β·(p − ω·nu)
		if err := bind(sv.p, 0, int32(w.n), scalar(beta), scalar(omega), w.r, w.nu, w.p); err != nil {
			return nil, err
		}

		if _, err := w.dispatch(sv.p, w.global, operands(w.r, w.nu), operands(w.p)); err != nil {
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

func operands[T Float](vs ...*device.Value[T]) []*device.Value[T] {
	return vs
}
