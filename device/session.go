package device

import (
	"errors"
	"fmt"

	"k8s.io/klog/v2"

	"github.com/cwbudde/algo-bicgstab/device/driver"
)

// Config selects the driver and device a Session opens.
type Config struct {
	// Backend names a registered driver. Ignored when Driver is set.
	Backend string
	// Driver is used directly instead of a registered one.
	Driver driver.Driver
	// Type is the requested device class.
	Type Type
	// InOrder serialises the session queue. The default is out-of-order.
	InOrder bool
}

// DefaultConfig returns a configuration for the first device of any class on
// the software backend.
func DefaultConfig() Config {
	return Config{
		Backend: "soft",
		Type:    TypeAll,
	}
}

// Session owns the device, context and queue of one run. Everything that
// needs them receives the Session explicitly.
type Session struct {
	drv    driver.Driver
	device *Device
	ctx    *Context
	queue  *Queue
}

// Open selects a device, creates its context and a profiling queue.
func Open(cfg Config) (*Session, error) {
	drv := cfg.Driver
	if drv == nil {
		var err error

		drv, err = Lookup(cfg.Backend)
		if err != nil {
			return nil, err
		}
	}

	dev, err := SelectDevice(drv, cfg.Type)
	if err != nil {
		return nil, err
	}

	ctx, err := NewContext(dev)
	if err != nil {
		return nil, err
	}

	var props QueueProperties
	if cfg.InOrder {
		props |= QueueInOrder
	}

	q, err := ctx.NewQueue(props)
	if err != nil {
		_ = ctx.Close()
		return nil, err
	}

	klog.V(1).Infof("opened session on %s via %s (in-order=%v)", dev, drv.Info().Name, cfg.InOrder)

	return &Session{drv: drv, device: dev, ctx: ctx, queue: q}, nil
}

// Device returns the selected device.
func (s *Session) Device() *Device {
	return s.device
}

// Context returns the session context.
func (s *Session) Context() *Context {
	return s.ctx
}

// Queue returns the session queue.
func (s *Session) Queue() *Queue {
	return s.queue
}

// Backend describes the driver in use.
func (s *Session) Backend() BackendInfo {
	return s.drv.Info()
}

// BuildProgram compiles source on the session context.
func (s *Session) BuildProgram(source, options string) (*Program, error) {
	if s.ctx == nil {
		return nil, ErrReleased
	}

	return s.ctx.BuildProgram(source, options)
}

// Finish blocks until the session queue is drained.
func (s *Session) Finish() error {
	if s.queue == nil {
		return ErrReleased
	}

	return s.queue.Finish()
}

// Close drains the queue and releases it, then the context.
func (s *Session) Close() error {
	if s == nil {
		return nil
	}

	var errs []error

	if s.queue != nil {
		if err := s.queue.Finish(); err != nil {
			errs = append(errs, err)
		}

		if err := s.queue.Release(); err != nil {
			errs = append(errs, fmt.Errorf("release queue: %w", err))
		}

		s.queue = nil
	}

	if s.ctx != nil {
		if err := s.ctx.Close(); err != nil {
			errs = append(errs, fmt.Errorf("release context: %w", err))
		}

		s.ctx = nil
	}

	klog.V(1).Infof("closed session on %s", s.device)

	return errors.Join(errs...)
}
