// Package soft implements a software compute device.
//
// The device executes kernels written in Go on the host CPU while keeping the
// execution model of an accelerator behind an asynchronous command queue:
//
//   - every command runs on its own goroutine once the events in its wait
//     list have completed, so commands without a dependency may run
//     concurrently and complete in any order;
//   - a kernel's work-groups are spread over a pool of ComputeUnits workers,
//     each with private local memory;
//   - device memory is a separate page-aligned allocation unless the buffer
//     is created with MemUseHostPtr;
//   - every event records queued, submit, start and end timestamps.
//
// Programs are built from OpenCL C source text. The compiler parses the
// kernel signatures, checks that every entry point has a Go implementation
// registered with Register for the requested precision (-DREAL=float or
// -DREAL=double), and uses the parameter qualifiers to type-check argument
// bindings. Kernel bodies in the source are not interpreted.
//
// With HazardWarn or HazardStrict the queue checks each command's buffer
// accesses against the dependency graph and reports read-after-write,
// write-after-write and write-after-read pairs that no wait list or host
// wait orders. This is a debugging aid; the queue never reorders or delays
// commands to avoid a hazard.
package soft
