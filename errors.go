package bicgstab

import "errors"

// Sentinel errors returned by the solver. Device failures are returned
// wrapped as they come from the device package.
var (
	// ErrInvalidMatrix is returned when an MSR matrix violates its layout
	// invariants.
	ErrInvalidMatrix = errors.New("bicgstab: invalid matrix")

	// ErrLengthMismatch is returned when a vector does not match the matrix
	// dimension.
	ErrLengthMismatch = errors.New("bicgstab: length mismatch")

	// ErrInvalidOptions is returned by Options.Validate.
	ErrInvalidOptions = errors.New("bicgstab: invalid options")

	// ErrClosed is returned when a closed Solver is used.
	ErrClosed = errors.New("bicgstab: solver closed")
)
