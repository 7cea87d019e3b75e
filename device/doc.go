// Package device provides the compute-device orchestration layer used by the
// solver.
//
// The package wraps a registered driver (see package driver) with typed,
// scoped handles: a directory of platforms and devices, a Context bound to one
// device, a profiling Queue, reference-counted Events, page-aligned
// HostArrays paired with device Buffers, compiled Programs with Kernels, and
// Values that bundle a host array, a device buffer and a queue.
//
// Every submission takes an explicit WaitSet and returns the Event that
// guards its result. The queue performs no hazard detection of its own; the
// caller orders conflicting commands through wait sets or fences.
//
//	s, err := device.Open(device.DefaultConfig())
//	if err != nil {
//	    return err
//	}
//	defer s.Close()
//
//	v, err := device.NewValueFrom(s, []float64{1, 2, 3}, device.MemReadWrite)
//	...
//	ev, err := v.Write(false, device.After())
//	...
//	rd, err := v.Read(true, device.After(ev))
package device
