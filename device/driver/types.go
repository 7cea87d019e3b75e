package driver

import (
	"strings"
	"time"
)

// Type is a device class.
type Type uint8

const (
	TypeDefault Type = iota
	TypeCPU
	TypeGPU
	TypeAccelerator
	TypeAll
)

// String returns the class name.
func (t Type) String() string {
	switch t {
	case TypeDefault:
		return "default"
	case TypeCPU:
		return "cpu"
	case TypeGPU:
		return "gpu"
	case TypeAccelerator:
		return "accelerator"
	case TypeAll:
		return "all"
	default:
		return "unknown"
	}
}

// Matches reports whether a device of class t satisfies a request for want.
func (t Type) Matches(want Type) bool {
	return want == TypeAll || want == TypeDefault || want == t
}

// MemFlags are buffer access-intent flags.
type MemFlags uint32

const (
	MemReadWrite MemFlags = 1 << iota
	MemReadOnly
	MemWriteOnly
	MemUseHostPtr
	MemCopyHostPtr
	MemHostWriteOnly
	MemHostReadOnly
	MemHostNoAccess
)

// Has reports whether all bits of x are set.
func (f MemFlags) Has(x MemFlags) bool {
	return f&x == x
}

// DeviceWritable reports whether kernels may write the buffer.
func (f MemFlags) DeviceWritable() bool {
	return !f.Has(MemReadOnly)
}

// String lists the set flags.
func (f MemFlags) String() string {
	names := []string{
		"read-write", "read-only", "write-only", "use-host-ptr",
		"copy-host-ptr", "host-write-only", "host-read-only", "host-no-access",
	}

	var parts []string
	for i, name := range names {
		if f&(1<<i) != 0 {
			parts = append(parts, name)
		}
	}

	if len(parts) == 0 {
		return "none"
	}

	return strings.Join(parts, "|")
}

// NDRange is an iteration shape of up to three dimensions.
type NDRange struct {
	Dims  int
	Sizes [3]int
}

// Range1 returns a one-dimensional range.
func Range1(n int) NDRange {
	return NDRange{Dims: 1, Sizes: [3]int{n, 1, 1}}
}

// Range2 returns a two-dimensional range.
func Range2(x, y int) NDRange {
	return NDRange{Dims: 2, Sizes: [3]int{x, y, 1}}
}

// Range3 returns a three-dimensional range.
func Range3(x, y, z int) NDRange {
	return NDRange{Dims: 3, Sizes: [3]int{x, y, z}}
}

// Total returns the number of work-items in the range.
func (r NDRange) Total() int {
	if r.Dims == 0 {
		return 0
	}

	n := 1
	for i := 0; i < r.Dims; i++ {
		n *= r.Sizes[i]
	}

	return n
}

// QueueProperties configure a command queue.
type QueueProperties uint32

const (
	// QueueProfiling records timestamps for every command.
	QueueProfiling QueueProperties = 1 << iota
	// QueueInOrder serialises commands in submission order.
	QueueInOrder
)

// Status is the execution state of a command.
type Status uint8

const (
	StatusQueued Status = iota
	StatusSubmitted
	StatusRunning
	StatusComplete
	StatusFailed
)

// String returns the state name.
func (s Status) String() string {
	switch s {
	case StatusQueued:
		return "queued"
	case StatusSubmitted:
		return "submitted"
	case StatusRunning:
		return "running"
	case StatusComplete:
		return "complete"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Profile holds device timestamps of one command in nanoseconds.
type Profile struct {
	Queued uint64
	Submit uint64
	Start  uint64
	End    uint64
}

// Elapsed is the execution time of the command.
func (p Profile) Elapsed() time.Duration {
	if p.End < p.Start {
		return 0
	}

	return time.Duration(p.End - p.Start)
}

// BackendInfo describes a driver implementation.
type BackendInfo struct {
	Name        string
	Version     string
	Description string
}

// PlatformInfo describes a platform.
type PlatformInfo struct {
	Name    string
	Vendor  string
	Version string
}

// DeviceInfo describes a device.
type DeviceInfo struct {
	Name             string
	Vendor           string
	Version          string
	Type             Type
	ComputeUnits     int
	MaxWorkGroupSize int
	Extensions       []string
}
