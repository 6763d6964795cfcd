// SPDX-License-Identifier: GPL-3.0-only

package hid

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/bestelampe/lampd/internal/brightness"
)

const (
	// ReportID is the HID feature report ID for channel duty values.
	ReportID byte = 0x02

	// ReportSize is the size of the HID feature report in bytes:
	// report ID, channel, 16-bit little-endian duty.
	ReportSize = 4

	// MaxChannels is the highest channel count a controller can address.
	MaxChannels = 256

	// DefaultVendorID is the USB vendor ID of the LED controller firmware
	// (the shared V-USB vendor ID).
	DefaultVendorID uint16 = 0x16c0

	// DefaultProductID is the USB product ID of the LED controller firmware
	// (the shared V-USB HID product ID).
	DefaultProductID uint16 = 0x05df
)

// ErrControllerClosed is returned when an operation is attempted on a closed controller.
var ErrControllerClosed = errors.New("controller is closed")

// ErrInvalidChannel is returned for channel indices a report cannot address.
var ErrInvalidChannel = errors.New("invalid channel")

// Controller represents a USB LED controller with one PWM output per channel.
// All methods are thread-safe and can be called concurrently.
type Controller struct {
	device Device
	mu     sync.Mutex
	closed bool
}

// NewController creates a new Controller wrapping the given HID device.
func NewController(device Device) *Controller {
	return &Controller{device: device}
}

// Duty reads the current drive fraction of a channel from the controller.
func (c *Controller) Duty(channel int) (float64, error) {
	if channel < 0 || channel >= MaxChannels {
		return 0, fmt.Errorf("%w: %d", ErrInvalidChannel, channel)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return 0, ErrControllerClosed
	}

	data := make([]byte, ReportSize)
	data[0] = ReportID
	data[1] = byte(channel)

	_, err := c.device.GetFeatureReport(data)
	if err != nil {
		return 0, fmt.Errorf("failed to get feature report: %w", err)
	}

	// Parse duty value from little-endian bytes
	duty := binary.LittleEndian.Uint16(data[2:4])
	return brightness.DutyToFraction(duty), nil
}

// SetDutyFraction sets the drive fraction of a channel.
// Fractions outside of [0, 1] are clamped.
func (c *Controller) SetDutyFraction(channel int, fraction float64) error {
	if channel < 0 || channel >= MaxChannels {
		return fmt.Errorf("%w: %d", ErrInvalidChannel, channel)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrControllerClosed
	}

	data := make([]byte, ReportSize)
	data[0] = ReportID
	data[1] = byte(channel)
	binary.LittleEndian.PutUint16(data[2:4], brightness.FractionToDuty(fraction))

	_, err := c.device.SendFeatureReport(data)
	if err != nil {
		return fmt.Errorf("failed to send feature report: %w", err)
	}

	return nil
}

// Serial returns the serial number of the controller.
// This method does not require locking as device info is immutable.
func (c *Controller) Serial() string {
	return c.device.Info().Serial
}

// ProductName returns the product name of the controller.
// This method does not require locking as device info is immutable.
func (c *Controller) ProductName() string {
	return c.device.Info().Product
}

// Close closes the underlying HID device.
func (c *Controller) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil // Already closed
	}

	c.closed = true
	return c.device.Close()
}
