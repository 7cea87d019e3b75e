// Package driver defines the contract between the device package and the
// compute runtimes that execute its commands.
//
// A driver exposes platforms, devices, contexts, queues, buffers, programs,
// kernels and events as opaque handles. The device package wraps them with
// typed, reference-counted values; drivers never see element types, only
// byte ranges. Every handle is released exactly once by its owner.
package driver

// Driver is implemented by compute runtimes (the software device, OpenCL).
type Driver interface {
	Info() BackendInfo
	// Platforms enumerates the platforms this runtime can reach.
	Platforms() ([]Platform, error)
}

// Platform groups the devices of one vendor implementation.
type Platform interface {
	Info() PlatformInfo
	// Devices returns the devices of class t. An empty result is not an error.
	Devices(t Type) ([]Device, error)
}

// Device is a single compute device.
type Device interface {
	Info() DeviceInfo
	// NewContext creates an allocation scope bound to this device only.
	NewContext() (Context, error)
}

// Context is a resource-allocation scope for one device.
type Context interface {
	NewQueue(props QueueProperties) (Queue, error)
	// NewBuffer allocates len(host) bytes of device memory. With MemUseHostPtr
	// the driver may back the allocation with host directly; with
	// MemCopyHostPtr it initialises the allocation from host.
	NewBuffer(flags MemFlags, host []byte) (Buffer, error)
	// BuildProgram compiles source. log carries the compiler diagnostics and
	// may be non-empty on success.
	BuildProgram(source, options string) (prog Program, log string, err error)
	Release() error
}

// Buffer is a device memory allocation.
type Buffer interface {
	Size() int
	Flags() MemFlags
	Release() error
}

// Program is compiled device code.
type Program interface {
	NewKernel(name string) (Kernel, error)
	// KernelNames lists the entry points the program defines.
	KernelNames() []string
	Release() error
}

// Kernel is an entry point with positional argument slots. Bindings persist
// until overwritten and are captured when the kernel is enqueued.
type Kernel interface {
	Name() string
	NumArgs() int
	SetArg(index int, arg Arg) error
	Release() error
}

// Arg is one kernel argument binding. Exactly one of the fields is set.
type Arg struct {
	Buffer Buffer
	Scalar []byte
	// Local requests a per-work-group scratch allocation of this many bytes.
	Local int
}

// Queue accepts asynchronous commands. Each command waits for the events in
// its wait list and yields a new event. Without QueueInOrder the queue may
// run commands that share no dependency in any order or concurrently.
type Queue interface {
	EnqueueKernel(k Kernel, global, local NDRange, wait []Event) (Event, error)
	EnqueueRead(b Buffer, blocking bool, offset int, dst []byte, wait []Event) (Event, error)
	EnqueueWrite(b Buffer, blocking bool, offset int, src []byte, wait []Event) (Event, error)
	EnqueueCopy(src, dst Buffer, srcOffset, dstOffset, size int, wait []Event) (Event, error)
	// Flush hands all queued commands to the device without waiting.
	Flush() error
	// Finish blocks until every command enqueued so far has completed.
	Finish() error
	Release() error
}

// Event tracks completion of one command.
type Event interface {
	// Wait blocks until the command completes and returns its error.
	Wait() error
	Status() (Status, error)
	Profile() (Profile, error)
	Release() error
}
