package soft

import (
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/cwbudde/algo-bicgstab/device"
	"github.com/cwbudde/algo-bicgstab/device/driver"
	"github.com/cwbudde/algo-bicgstab/internal/cpu"
)

// Name is the name the driver registers under.
const Name = "soft"

func init() {
	device.Register(Name, New(DefaultOptions()))
}

// HazardMode controls unordered-access detection on queues.
type HazardMode uint8

const (
	// HazardOff disables detection.
	HazardOff HazardMode = iota
	// HazardWarn logs and records hazards but still runs the command.
	HazardWarn
	// HazardStrict rejects the offending command with ErrUnorderedAccess.
	HazardStrict
)

// Options configure the software device.
type Options struct {
	// Type is the device class reported to the directory.
	Type driver.Type
	// ComputeUnits bounds the workers executing one kernel's work-groups.
	// Zero uses GOMAXPROCS.
	ComputeUnits int
	// MaxWorkGroupSize bounds the local size of a dispatch.
	MaxWorkGroupSize int
	// Jitter delays every command by a random duration up to this value
	// before it starts, to shake out missing dependencies.
	Jitter time.Duration
	// Seed seeds the jitter generator.
	Seed int64
	// Hazards selects unordered-access detection.
	Hazards HazardMode
}

// DefaultOptions returns the options of the registered "soft" driver.
func DefaultOptions() Options {
	return Options{
		Type:             driver.TypeCPU,
		ComputeUnits:     0,
		MaxWorkGroupSize: 1024,
	}
}

// Driver is the software compute runtime. It exposes one platform with one
// device.
type Driver struct {
	opts     Options
	platform *platform
	hazards  *hazardTracker
}

// New returns a driver configured by opts.
func New(opts Options) *Driver {
	if opts.ComputeUnits <= 0 {
		opts.ComputeUnits = runtime.GOMAXPROCS(0)
	}

	if opts.MaxWorkGroupSize <= 0 {
		opts.MaxWorkGroupSize = DefaultOptions().MaxWorkGroupSize
	}

	d := &Driver{opts: opts, hazards: newHazardTracker(opts.Hazards)}
	d.platform = &platform{drv: d}
	d.platform.dev = &softDevice{drv: d, info: d.deviceInfo()}

	return d
}

// Info describes the driver.
func (d *Driver) Info() driver.BackendInfo {
	return driver.BackendInfo{
		Name:        Name,
		Version:     "1.0",
		Description: "CPU-backed software compute device",
	}
}

// Platforms returns the single software platform.
func (d *Driver) Platforms() ([]driver.Platform, error) {
	return []driver.Platform{d.platform}, nil
}

// Options returns the effective options.
func (d *Driver) Options() Options {
	return d.opts
}

// Hazards returns the unordered accesses detected so far. It is empty when
// detection is off.
func (d *Driver) Hazards() []Hazard {
	if d.hazards == nil {
		return nil
	}

	return d.hazards.snapshot()
}

// ResetHazards discards the recorded hazards.
func (d *Driver) ResetHazards() {
	if d.hazards != nil {
		d.hazards.reset()
	}
}

func (d *Driver) deviceInfo() driver.DeviceInfo {
	features := cpu.DetectFeatures()

	return driver.DeviceInfo{
		Name:             fmt.Sprintf("Soft Compute Device (%s, %d-bit vectors)", features.Architecture, features.VectorWidth()*8),
		Vendor:           "algo-bicgstab",
		Version:          "soft 1.0",
		Type:             d.opts.Type,
		ComputeUnits:     d.opts.ComputeUnits,
		MaxWorkGroupSize: d.opts.MaxWorkGroupSize,
		Extensions:       features.Extensions(),
	}
}

type platform struct {
	drv *Driver
	dev *softDevice
}

func (p *platform) Info() driver.PlatformInfo {
	return driver.PlatformInfo{
		Name:    "Soft Compute Platform",
		Vendor:  "algo-bicgstab",
		Version: "1.0",
	}
}

func (p *platform) Devices(t driver.Type) ([]driver.Device, error) {
	if !p.dev.info.Type.Matches(t) {
		return nil, nil
	}

	return []driver.Device{p.dev}, nil
}

type softDevice struct {
	drv  *Driver
	info driver.DeviceInfo
}

func (d *softDevice) Info() driver.DeviceInfo {
	return d.info
}

func (d *softDevice) NewContext() (driver.Context, error) {
	return &softContext{dev: d, buffers: make(map[*buffer]struct{})}, nil
}

type softContext struct {
	dev *softDevice

	mu       sync.Mutex
	buffers  map[*buffer]struct{}
	released bool
}

func (c *softContext) NewQueue(props driver.QueueProperties) (driver.Queue, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.released {
		return nil, driver.ErrReleased
	}

	return newQueue(c, props), nil
}

func (c *softContext) NewBuffer(flags driver.MemFlags, host []byte) (driver.Buffer, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.released {
		return nil, driver.ErrReleased
	}

	b, err := newBuffer(c, flags, host)
	if err != nil {
		return nil, err
	}

	c.buffers[b] = struct{}{}

	return b, nil
}

func (c *softContext) BuildProgram(source, options string) (driver.Program, string, error) {
	c.mu.Lock()
	released := c.released
	c.mu.Unlock()

	if released {
		return nil, "", driver.ErrReleased
	}

	return compile(c, source, options)
}

func (c *softContext) forget(b *buffer) {
	c.mu.Lock()
	delete(c.buffers, b)
	c.mu.Unlock()

	if t := c.dev.drv.hazards; t != nil {
		t.forget(b)
	}
}

func (c *softContext) Release() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.released {
		return driver.ErrReleased
	}

	c.released = true

	return nil
}
