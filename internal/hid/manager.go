// SPDX-License-Identifier: GPL-3.0-only

package hid

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog/log"
)

// Manager handles the lifecycle of the attached LED controllers and mirrors
// every channel write to all of them. It implements mixer.ChannelDriver.
type Manager struct {
	controllers map[string]*Controller // serial -> controller
	duties      map[int]float64        // channel -> last written fraction
	mu          sync.RWMutex
	enumerator  func() ([]DeviceInfo, error)
	opener      func(serial string) (Device, error)
}

// ManagerOption is a functional option for configuring a Manager.
type ManagerOption func(*Manager)

// WithEnumerator sets a custom device enumerator for testing.
func WithEnumerator(fn func() ([]DeviceInfo, error)) ManagerOption {
	return func(m *Manager) {
		m.enumerator = fn
	}
}

// WithOpener sets a custom device opener for testing.
func WithOpener(fn func(serial string) (Device, error)) ManagerOption {
	return func(m *Manager) {
		m.opener = fn
	}
}

// WithUSBIDs selects the controllers to manage by USB vendor and product ID.
func WithUSBIDs(vendorID, productID uint16) ManagerOption {
	return func(m *Manager) {
		m.enumerator = func() ([]DeviceInfo, error) {
			return Enumerate(vendorID, productID)
		}
		m.opener = func(serial string) (Device, error) {
			return Open(vendorID, productID, serial)
		}
	}
}

// NewManager creates a new controller manager.
func NewManager(opts ...ManagerOption) *Manager {
	m := &Manager{
		controllers: make(map[string]*Controller),
		duties:      make(map[int]float64),
	}
	WithUSBIDs(DefaultVendorID, DefaultProductID)(m)
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// ListControllers returns information about all connected controllers,
// sorted by serial number.
func (m *Manager) ListControllers() []DeviceInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()

	infos := make([]DeviceInfo, 0, len(m.controllers))
	for _, c := range m.controllers {
		infos = append(infos, c.device.Info())
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Serial < infos[j].Serial })
	return infos
}

// GetController returns a controller by serial number.
func (m *Manager) GetController(serial string) (*Controller, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	controller, ok := m.controllers[serial]
	if !ok {
		return nil, fmt.Errorf("%w: serial %s", ErrControllerNotFound, serial)
	}
	return controller, nil
}

// ControllerDuties reads back the first channels duties of one controller.
// It shows whether a controller actually holds the mirrored values, for
// example after a replay.
func (m *Manager) ControllerDuties(serial string, channels int) ([]float64, error) {
	if channels < 0 || channels > MaxChannels {
		return nil, fmt.Errorf("%w: count %d", ErrInvalidChannel, channels)
	}

	controller, err := m.GetController(serial)
	if err != nil {
		return nil, err
	}

	duties := make([]float64, channels)
	for i := range duties {
		duty, err := controller.Duty(i)
		if err != nil {
			return nil, fmt.Errorf("controller %s channel %d: %w", serial, i, err)
		}
		duties[i] = duty
	}
	return duties, nil
}

// SetDutyFraction writes the fraction to the channel of every attached
// controller. Without controllers the value is only remembered; it is
// replayed to controllers that connect later.
func (m *Manager) SetDutyFraction(channel int, fraction float64) error {
	if channel < 0 || channel >= MaxChannels {
		return fmt.Errorf("%w: %d", ErrInvalidChannel, channel)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.duties[channel] = fraction

	var errs []error
	for serial, controller := range m.controllers {
		if err := controller.SetDutyFraction(channel, fraction); err != nil {
			errs = append(errs, fmt.Errorf("controller %s: %w", serial, err))
		}
	}
	return errors.Join(errs...)
}

// RefreshControllers re-enumerates connected controllers and updates the internal state.
// It opens new controllers, replays the current duties to them and closes disconnected ones.
func (m *Manager) RefreshControllers() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Enumerate current controllers
	currentDevices, err := m.enumerator()
	if err != nil {
		return fmt.Errorf("failed to enumerate controllers: %w", err)
	}

	currentSerials := make(map[string]DeviceInfo)
	for _, info := range currentDevices {
		currentSerials[info.Serial] = info
	}

	// Find and close disconnected controllers
	for serial, controller := range m.controllers {
		if _, exists := currentSerials[serial]; !exists {
			log.Info().Str("serial", serial).Msg("Controller disconnected")
			if err := controller.Close(); err != nil {
				log.Warn().Err(err).Str("serial", serial).Msg("Failed to close disconnected controller")
			}
			delete(m.controllers, serial)
		}
	}

	// Open new controllers
	for serial, info := range currentSerials {
		if _, exists := m.controllers[serial]; exists {
			continue
		}
		device, err := m.opener(serial)
		if err != nil {
			log.Error().Err(err).Str("serial", serial).Msg("Failed to open controller")
			continue
		}
		controller := NewController(device)
		m.replay(controller)
		m.controllers[serial] = controller
		log.Info().Str("serial", serial).Str("product", info.Product).Msg("Controller connected")
	}

	return nil
}

// replay writes the remembered duties to a freshly opened controller.
func (m *Manager) replay(controller *Controller) {
	for channel, fraction := range m.duties {
		if err := controller.SetDutyFraction(channel, fraction); err != nil {
			log.Warn().Err(err).Str("serial", controller.Serial()).Int("channel", channel).Msg("Failed to restore duty")
			return
		}
	}
}

// Close closes all open controllers.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for serial, controller := range m.controllers {
		if err := controller.Close(); err != nil {
			log.Error().Err(err).Str("serial", serial).Msg("Failed to close controller")
		}
		delete(m.controllers, serial)
	}
	return nil
}

// Count returns the number of connected controllers.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.controllers)
}
