// Package opencl is the native OpenCL driver.
//
// The driver needs an OpenCL 1.2 ICD loader and headers and is only compiled
// with the "opencl" build tag:
//
//	go build -tags opencl ./...
//
// With the tag, importing the package registers the driver as "opencl":
//
//	import _ "github.com/cwbudde/algo-bicgstab/device/opencl"
//
//	s, err := device.Open(device.Config{Backend: "opencl", Type: device.TypeGPU})
//
// Without it, New reports ErrUnavailable and nothing is registered.
package opencl

import "errors"

// Name is the name the driver registers under.
const Name = "opencl"

// ErrUnavailable is returned when the package was built without OpenCL
// support.
var ErrUnavailable = errors.New("opencl: driver not built (use -tags opencl)")
