package driver

import "errors"

// Errors drivers report for invalid use of their handles. The device package
// wraps them with its own taxonomy.
var (
	ErrInvalidArgIndex  = errors.New("driver: invalid kernel argument index")
	ErrInvalidArgSize   = errors.New("driver: invalid kernel argument size")
	ErrInvalidArgValue  = errors.New("driver: invalid kernel argument value")
	ErrArgsNotSet       = errors.New("driver: kernel arguments not set")
	ErrInvalidWorkSize  = errors.New("driver: invalid work size")
	ErrKernelNotFound   = errors.New("driver: kernel not found")
	ErrOutOfRange       = errors.New("driver: buffer range out of bounds")
	ErrReleased         = errors.New("driver: handle already released")
	ErrUnorderedAccess  = errors.New("driver: unordered access to buffer")
	ErrDependencyFailed = errors.New("driver: dependency failed")
	ErrInvalidFlags     = errors.New("driver: invalid memory flags")
	ErrHostAccess       = errors.New("driver: host access not permitted by buffer flags")
	ErrInvalidEvent     = errors.New("driver: event does not belong to this driver")
	ErrNotComplete      = errors.New("driver: command not complete")
)
