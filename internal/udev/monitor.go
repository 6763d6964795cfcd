// SPDX-License-Identifier: GPL-3.0-only

// Package udev watches netlink uevents for USB LED controllers being
// plugged in or removed.
package udev

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/pilebones/go-udev/netlink"
	"github.com/rs/zerolog/log"

	"github.com/bestelampe/lampd/internal/hid"
)

const (
	// receiveBufferSize is the netlink socket buffer. Hubs with several
	// controllers emit bursts that overflow the kernel default.
	receiveBufferSize = 2 * 1024 * 1024

	// DefaultDebounceWindow is the period in which further removes of the
	// same PRODUCT are dropped.
	DefaultDebounceWindow = 2 * time.Second
)

// ErrAlreadyStarted is returned by Start on a running monitor.
var ErrAlreadyStarted = errors.New("udev monitor already started")

// EventHandler is called for every accepted controller event.
type EventHandler func(event Event)

// RecoveryHandler is called after the netlink socket overflowed, when
// events may have been lost and the controller set must be re-enumerated.
type RecoveryHandler func()

// Monitor watches for connect and disconnect events of one USB
// vendor/product pair.
type Monitor struct {
	vendorID  uint16
	productID uint16
	handler   EventHandler
	recovery  RecoveryHandler
	removes   *debouncer

	mu      sync.Mutex
	conn    *netlink.UEventConn
	quit    chan struct{}
	stopped bool
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithUSBIDs sets the watched vendor and product IDs.
func WithUSBIDs(vendorID, productID uint16) Option {
	return func(m *Monitor) {
		m.vendorID = vendorID
		m.productID = productID
	}
}

// WithRecoveryHandler sets the handler for netlink overflow recovery.
func WithRecoveryHandler(handler RecoveryHandler) Option {
	return func(m *Monitor) {
		m.recovery = handler
	}
}

// WithDebounceWindow overrides DefaultDebounceWindow.
func WithDebounceWindow(window time.Duration) Option {
	return func(m *Monitor) {
		m.removes = newDebouncer(window)
	}
}

// NewMonitor creates a monitor for the default LED controller IDs.
func NewMonitor(handler EventHandler, opts ...Option) *Monitor {
	m := &Monitor{
		vendorID:  hid.DefaultVendorID,
		productID: hid.DefaultProductID,
		handler:   handler,
		removes:   newDebouncer(DefaultDebounceWindow),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start connects to the kernel uevent socket and processes events in a
// background goroutine.
func (m *Monitor) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.conn != nil {
		return ErrAlreadyStarted
	}

	conn := &netlink.UEventConn{}
	if err := conn.Connect(netlink.UdevEvent); err != nil {
		return fmt.Errorf("failed to connect to netlink: %w", err)
	}

	if err := setReceiveBuffer(conn.Fd, receiveBufferSize); err != nil {
		log.Warn().Err(err).Int("size", receiveBufferSize).Msg("Failed to enlarge netlink buffer")
	}

	queue := make(chan netlink.UEvent)
	errs := make(chan error)
	m.conn = conn
	m.quit = conn.Monitor(queue, errs, matcher(m.vendorID, m.productID))
	m.stopped = false

	go m.run(queue, errs)

	log.Info().
		Str("vendor", fmt.Sprintf("%04x", m.vendorID)).
		Str("product", fmt.Sprintf("%04x", m.productID)).
		Msg("udev monitor started")
	return nil
}

// Stop closes the netlink socket. It is a no-op on a monitor that is not
// running.
func (m *Monitor) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.conn == nil || m.stopped {
		return nil
	}
	m.stopped = true

	select {
	case m.quit <- struct{}{}:
	default:
	}

	err := m.conn.Close()
	m.conn = nil
	if err != nil {
		return fmt.Errorf("failed to close netlink connection: %w", err)
	}

	log.Info().Msg("udev monitor stopped")
	return nil
}

func (m *Monitor) run(queue chan netlink.UEvent, errs chan error) {
	for {
		select {
		case uevent, ok := <-queue:
			if !ok {
				return
			}
			m.handleEvent(uevent)
		case err, ok := <-errs:
			if !ok || m.isStopped() {
				return
			}
			m.handleError(err)
		}
	}
}

func (m *Monitor) isStopped() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stopped
}

func (m *Monitor) handleError(err error) {
	if !isBufferOverflow(err) {
		log.Error().Err(err).Msg("udev monitor error")
		return
	}

	log.Warn().Msg("Netlink buffer overflow, re-enumerating controllers")
	if m.recovery != nil {
		go m.recovery()
	}
}

func (m *Monitor) handleEvent(uevent netlink.UEvent) {
	event, ok := classify(uevent)
	if !ok {
		return
	}
	if event.Type == EventRemove && m.removes.suppress(event.Product) {
		return
	}

	log.Info().
		Stringer("event", event.Type).
		Str("product", event.Product).
		Str("devpath", event.DevPath).
		Msg("LED controller hot-plug")

	if m.handler != nil {
		m.handler(event)
	}
}

// setReceiveBuffer sets SO_RCVBUFFORCE, which needs CAP_NET_ADMIN, and
// falls back to SO_RCVBUF.
func setReceiveBuffer(fd int, size int) error {
	if err := syscall.SetsockoptInt(fd, syscall.SOL_SOCKET, syscall.SO_RCVBUFFORCE, size); err == nil {
		return nil
	}
	return syscall.SetsockoptInt(fd, syscall.SOL_SOCKET, syscall.SO_RCVBUF, size)
}

// isBufferOverflow reports ENOBUFS. go-udev does not always wrap the errno,
// so the message is checked as well.
func isBufferOverflow(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, syscall.ENOBUFS) ||
		strings.Contains(strings.ToLower(err.Error()), "no buffer space available")
}
