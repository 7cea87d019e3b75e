//go:build !opencl

package opencl

import "github.com/cwbudde/algo-bicgstab/device/driver"

// Available reports whether the driver was compiled in.
func Available() bool { return false }

// New reports ErrUnavailable.
func New() (driver.Driver, error) {
	return nil, ErrUnavailable
}
