// SPDX-License-Identifier: GPL-3.0-only

package hid

import (
	"errors"
	"fmt"
	"strings"
	"syscall"

	karalabehid "github.com/karalabe/hid"
)

// ErrControllerNotFound is returned when no matching controller is connected.
var ErrControllerNotFound = errors.New("LED controller not found")

// HIDAPIDevice wraps a karalabe/hid device to implement the Device interface.
type HIDAPIDevice struct {
	device karalabehid.Device // karalabe/hid.Device is an interface
	info   DeviceInfo
}

// Verify HIDAPIDevice implements Device interface.
var _ Device = (*HIDAPIDevice)(nil)

// NewHIDAPIDevice creates a new HIDAPIDevice from an open hid.Device.
func NewHIDAPIDevice(device karalabehid.Device, info DeviceInfo) *HIDAPIDevice {
	return &HIDAPIDevice{
		device: device,
		info:   info,
	}
}

// GetFeatureReport reads a feature report from the device.
func (d *HIDAPIDevice) GetFeatureReport(data []byte) (int, error) {
	return d.device.GetFeatureReport(data)
}

// SendFeatureReport writes a feature report to the device.
func (d *HIDAPIDevice) SendFeatureReport(data []byte) (int, error) {
	return d.device.SendFeatureReport(data)
}

// Close closes the device handle.
func (d *HIDAPIDevice) Close() error {
	return d.device.Close()
}

// Info returns information about the device.
func (d *HIDAPIDevice) Info() DeviceInfo {
	return d.info
}

// Enumerate returns a list of all connected LED controllers with the given
// USB IDs. Returns an error if device enumeration fails.
func Enumerate(vendorID, productID uint16) ([]DeviceInfo, error) {
	devices, err := karalabehid.Enumerate(vendorID, productID)
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate HID devices: %w", err)
	}

	controllers := make([]DeviceInfo, 0, len(devices))
	for _, device := range devices {
		controllers = append(controllers, toDeviceInfo(device))
	}
	return controllers, nil
}

// Open opens a connection to an LED controller by serial number.
// If serial is empty, opens the first available controller.
func Open(vendorID, productID uint16, serial string) (*HIDAPIDevice, error) {
	devices, err := karalabehid.Enumerate(vendorID, productID)
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate devices: %w", err)
	}

	for _, deviceInfo := range devices {
		if serial != "" && deviceInfo.Serial != serial {
			continue
		}

		device, err := deviceInfo.Open()
		if err != nil {
			return nil, fmt.Errorf("failed to open controller %s: %w", deviceInfo.Serial, err)
		}

		return NewHIDAPIDevice(device, toDeviceInfo(deviceInfo)), nil
	}

	if serial != "" {
		return nil, fmt.Errorf("%w: serial %s", ErrControllerNotFound, serial)
	}
	return nil, fmt.Errorf("%w: %04x:%04x", ErrControllerNotFound, vendorID, productID)
}

// IsDeviceGoneError reports whether err indicates that the controller was
// unplugged while it was open.
func IsDeviceGoneError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrControllerClosed) ||
		errors.Is(err, syscall.ENODEV) ||
		errors.Is(err, syscall.EIO) ||
		errors.Is(err, syscall.ENXIO) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "no such device") || strings.Contains(msg, "device disconnected")
}

func toDeviceInfo(device karalabehid.DeviceInfo) DeviceInfo {
	return DeviceInfo{
		Path:         device.Path,
		VendorID:     device.VendorID,
		ProductID:    device.ProductID,
		Serial:       device.Serial,
		Manufacturer: device.Manufacturer,
		Product:      device.Product,
		Interface:    device.Interface,
	}
}
