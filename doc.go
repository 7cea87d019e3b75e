// Package bicgstab solves sparse linear systems with the biconjugate
// gradient stabilized method on an asynchronous compute device.
//
// Matrices use the modified sparse row (MSR) layout. Every vector operation
// and, in the default pipelined strategy, every inner product runs on the
// device; the host only waits where it needs a scalar to decide control
// flow. Commands are ordered by explicit wait sets derived from the vectors
// each command reads and writes, so independent work overlaps on
// out-of-order queues.
//
// Basic usage:
//
//	s, err := device.Open(device.DefaultConfig())
//	if err != nil {
//		return err
//	}
//	defer s.Close()
//
//	solver, err := bicgstab.NewSolver[float64](s, bicgstab.DefaultOptions())
//	if err != nil {
//		return err
//	}
//	defer solver.Close()
//
//	res, err := solver.Solve(ctx, a, f, nil)
//	if err != nil {
//		return err
//	}
//	if res.Status != bicgstab.Converged {
//		// res.X is the best iterate found.
//	}
//
// The "soft" backend registers itself when device/soft is imported, which
// this package does through its kernel library. The OpenCL backend is
// available with the opencl build tag.
package bicgstab
