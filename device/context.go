package device

import (
	"errors"
	"fmt"

	"k8s.io/klog/v2"

	"github.com/cwbudde/algo-bicgstab/device/driver"
)

// Context is a resource-allocation scope bound to exactly one device.
type Context struct {
	native driver.Context
	device *Device
}

// NewContext creates a context on dev.
func NewContext(dev *Device) (*Context, error) {
	if dev == nil {
		return nil, fmt.Errorf("%w: nil device", ErrContextCreation)
	}

	native, err := dev.native.NewContext()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrContextCreation, err)
	}

	return &Context{native: native, device: dev}, nil
}

// Device returns the device the context is bound to.
func (c *Context) Device() *Device {
	return c.device
}

// NewQueue creates a command queue on the context's device. Profiling is
// always enabled.
func (c *Context) NewQueue(props QueueProperties) (*Queue, error) {
	if c.native == nil {
		return nil, ErrReleased
	}

	props |= QueueProfiling

	native, err := c.native.NewQueue(props)
	if err != nil {
		return nil, fmt.Errorf("%w: queue: %w", ErrContextCreation, err)
	}

	return &Queue{native: native, ctx: c, props: props}, nil
}

// BuildProgram compiles source for the context's device. A failed build
// returns a *BuildError carrying the compiler log.
func (c *Context) BuildProgram(source, options string) (*Program, error) {
	if c.native == nil {
		return nil, ErrReleased
	}

	native, log, err := c.native.BuildProgram(source, options)
	if err != nil {
		klog.Errorf("program build failed on %s:\n%s", c.device, log)
		return nil, &BuildError{Log: log, Err: err}
	}

	p := &Program{native: native, ctx: c, log: log}

	klog.V(2).Infof("built program on %s: options=%q kernels=%v", c.device, options, native.KernelNames())

	return p, nil
}

// Close releases the context. Calls after the first are no-ops.
func (c *Context) Close() error {
	if c == nil || c.native == nil {
		return nil
	}

	err := c.native.Release()
	c.native = nil

	if err != nil && !errors.Is(err, driver.ErrReleased) {
		return err
	}

	return nil
}
