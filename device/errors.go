package device

import (
	"errors"
	"fmt"
)

// Errors returned by the device layer. All of them indicate a configuration
// or programming defect and should abort the run.
var (
	// ErrNoBackend is returned when no driver is registered under a name.
	ErrNoBackend = errors.New("device: no backend registered")

	// ErrDeviceEnumeration is returned when no device of the requested class exists.
	ErrDeviceEnumeration = errors.New("device: device enumeration failed")

	// ErrContextCreation is returned when a context or queue cannot be created.
	ErrContextCreation = errors.New("device: context creation failed")

	// ErrProgramBuild is returned when device source fails to compile or an
	// entry point is missing.
	ErrProgramBuild = errors.New("device: program build failed")

	// ErrAllocation is returned when host or device memory cannot be allocated.
	ErrAllocation = errors.New("device: allocation failed")

	// ErrKernelArgument is returned when a kernel argument cannot be bound.
	ErrKernelArgument = errors.New("device: kernel argument binding failed")

	// ErrQueueSubmission is returned when a command cannot be enqueued or
	// its execution failed.
	ErrQueueSubmission = errors.New("device: queue submission failed")

	// ErrReleased is returned when a handle is used after release.
	ErrReleased = errors.New("device: handle released")

	// ErrLengthMismatch is returned when paired memory objects differ in size.
	ErrLengthMismatch = errors.New("device: length mismatch")

	// ErrInvalidLength is returned for negative element counts.
	ErrInvalidLength = errors.New("device: invalid length")
)

// BuildError carries the compiler diagnostics of a failed program build.
type BuildError struct {
	Log string
	Err error
}

func (e *BuildError) Error() string {
	if e.Log == "" {
		return fmt.Sprintf("%v: %v", ErrProgramBuild, e.Err)
	}

	return fmt.Sprintf("%v: %v\n%s", ErrProgramBuild, e.Err, e.Log)
}

// Unwrap exposes both ErrProgramBuild and the driver error.
func (e *BuildError) Unwrap() []error {
	return []error{ErrProgramBuild, e.Err}
}
