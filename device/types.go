package device

import (
	"github.com/cwbudde/algo-bicgstab/device/driver"
	"github.com/cwbudde/algo-bicgstab/internal/numeric"
)

// Element is the constraint for values stored in host arrays and buffers.
// The canonical definition is in internal/numeric.
type Element = numeric.Element

// Re-exported driver value types.
type (
	Type            = driver.Type
	MemFlags        = driver.MemFlags
	NDRange         = driver.NDRange
	Profile         = driver.Profile
	Status          = driver.Status
	QueueProperties = driver.QueueProperties
	DeviceInfo      = driver.DeviceInfo
	PlatformInfo    = driver.PlatformInfo
	BackendInfo     = driver.BackendInfo
)

const (
	TypeDefault     = driver.TypeDefault
	TypeCPU         = driver.TypeCPU
	TypeGPU         = driver.TypeGPU
	TypeAccelerator = driver.TypeAccelerator
	TypeAll         = driver.TypeAll

	MemReadWrite     = driver.MemReadWrite
	MemReadOnly      = driver.MemReadOnly
	MemWriteOnly     = driver.MemWriteOnly
	MemUseHostPtr    = driver.MemUseHostPtr
	MemCopyHostPtr   = driver.MemCopyHostPtr
	MemHostWriteOnly = driver.MemHostWriteOnly
	MemHostReadOnly  = driver.MemHostReadOnly
	MemHostNoAccess  = driver.MemHostNoAccess

	QueueProfiling = driver.QueueProfiling
	QueueInOrder   = driver.QueueInOrder
)

// Range1 returns a one-dimensional iteration shape.
func Range1(n int) NDRange { return driver.Range1(n) }

// Range2 returns a two-dimensional iteration shape.
func Range2(x, y int) NDRange { return driver.Range2(x, y) }

// RoundUp returns the smallest multiple of group that is >= n.
func RoundUp(n, group int) int {
	if group <= 0 {
		return n
	}

	return (n + group - 1) / group * group
}

// CommandKind classifies the command an Event guards.
type CommandKind uint8

const (
	CommandKernel CommandKind = iota
	CommandRead
	CommandWrite
	CommandCopy
)

// String returns the command name.
func (k CommandKind) String() string {
	switch k {
	case CommandKernel:
		return "kernel"
	case CommandRead:
		return "read"
	case CommandWrite:
		return "write"
	case CommandCopy:
		return "copy"
	default:
		return "unknown"
	}
}

// IsTransfer reports whether the command moves memory rather than runs code.
func (k CommandKind) IsTransfer() bool {
	return k != CommandKernel
}
