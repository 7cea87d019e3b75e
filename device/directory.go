package device

import (
	"fmt"

	"github.com/cwbudde/algo-bicgstab/device/driver"
)

// Platform is one vendor implementation exposed by a driver.
type Platform struct {
	native driver.Platform
	info   PlatformInfo
}

// Device is a compute device found on a platform.
type Device struct {
	native   driver.Device
	info     DeviceInfo
	platform PlatformInfo
}

// Platforms enumerates the platforms of drv.
func Platforms(drv driver.Driver) ([]*Platform, error) {
	natives, err := drv.Platforms()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDeviceEnumeration, err)
	}

	out := make([]*Platform, len(natives))
	for i, p := range natives {
		out[i] = &Platform{native: p, info: p.Info()}
	}

	return out, nil
}

// Info describes the platform.
func (p *Platform) Info() PlatformInfo {
	return p.info
}

// Devices returns the devices of class t on this platform.
func (p *Platform) Devices(t Type) ([]*Device, error) {
	natives, err := p.native.Devices(t)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDeviceEnumeration, err)
	}

	out := make([]*Device, len(natives))
	for i, d := range natives {
		out[i] = &Device{native: d, info: d.Info(), platform: p.info}
	}

	return out, nil
}

// SelectDevice returns the first device of class t on the first platform of
// drv. There is no ranking.
func SelectDevice(drv driver.Driver, t Type) (*Device, error) {
	platforms, err := Platforms(drv)
	if err != nil {
		return nil, err
	}

	if len(platforms) == 0 {
		return nil, fmt.Errorf("%w: no platforms", ErrDeviceEnumeration)
	}

	devices, err := platforms[0].Devices(t)
	if err != nil {
		return nil, err
	}

	if len(devices) == 0 {
		return nil, fmt.Errorf("%w: no %s devices on platform %q", ErrDeviceEnumeration, t, platforms[0].info.Name)
	}

	return devices[0], nil
}

// Info describes the device.
func (d *Device) Info() DeviceInfo {
	return d.info
}

// Platform describes the platform the device belongs to.
func (d *Device) Platform() PlatformInfo {
	return d.platform
}

func (d *Device) String() string {
	return fmt.Sprintf("%s (%s, %s)", d.info.Name, d.info.Vendor, d.info.Type)
}
