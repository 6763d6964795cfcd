// SPDX-License-Identifier: GPL-3.0-only

package main

import (
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/bestelampe/lampd/internal/dbus"
	"github.com/bestelampe/lampd/internal/hid"
	"github.com/bestelampe/lampd/internal/udev"
)

const (
	// settleDelay is the time a USB device needs to enumerate all of its
	// interfaces before HID is accessible.
	settleDelay = 500 * time.Millisecond

	// refreshRetries is the number of retries after a failed refresh.
	refreshRetries = 3
)

// refreshMu serializes controller refresh operations to prevent race conditions
// between hotplug, recovery and device error handlers.
var refreshMu sync.Mutex

// controllerChanges holds the result of comparing two controller snapshots.
type controllerChanges struct {
	added   []hid.DeviceInfo
	removed []string
}

// refreshControllersWithRetry attempts to refresh controllers with linear backoff.
// It retries up to maxRetries times with increasing delays between attempts and
// reports whether at least one controller is connected afterwards.
func refreshControllersWithRetry(manager *hid.Manager, maxRetries int) (bool, error) {
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			// Linear backoff: 500ms, 1000ms, 1500ms, ...
			backoff := time.Duration(attempt) * settleDelay
			log.Debug().
				Int("attempt", attempt).
				Dur("backoff", backoff).
				Msg("Retrying controller refresh")
			time.Sleep(backoff)
		}

		if err := manager.RefreshControllers(); err != nil {
			lastErr = err
			log.Warn().
				Err(err).
				Int("attempt", attempt+1).
				Int("maxRetries", maxRetries+1).
				Msg("Controller refresh failed")
			continue
		}

		if manager.Count() > 0 {
			if attempt > 0 {
				log.Info().Int("attempts", attempt+1).Msg("Controller refresh succeeded after retry")
			}
			return true, nil
		}
		lastErr = nil
	}
	return false, lastErr
}

// getControllersSnapshot returns the connected controllers keyed by serial.
func getControllersSnapshot(manager *hid.Manager) map[string]hid.DeviceInfo {
	snapshot := make(map[string]hid.DeviceInfo)
	for _, c := range manager.ListControllers() {
		snapshot[c.Serial] = c
	}
	return snapshot
}

// diffControllers compares two snapshots. Both lists are sorted by serial.
func diffControllers(oldControllers, newControllers map[string]hid.DeviceInfo) controllerChanges {
	var changes controllerChanges
	for serial, info := range newControllers {
		if _, exists := oldControllers[serial]; !exists {
			changes.added = append(changes.added, info)
		}
	}
	for serial := range oldControllers {
		if _, exists := newControllers[serial]; !exists {
			changes.removed = append(changes.removed, serial)
		}
	}
	sort.Slice(changes.added, func(i, j int) bool { return changes.added[i].Serial < changes.added[j].Serial })
	sort.Strings(changes.removed)
	return changes
}

// emitControllerChanges emits one D-Bus signal per change.
func emitControllerChanges(server *dbus.Server, changes controllerChanges) {
	for _, info := range changes.added {
		server.EmitControllerAdded(info.Serial, info.Product)
	}
	for _, serial := range changes.removed {
		server.EmitControllerRemoved(serial)
	}
}

// refreshAndEmit refreshes the controllers and emits signals for the
// difference. Callers must hold refreshMu.
func refreshAndEmit(manager *hid.Manager, server *dbus.Server, expectRemoval bool) bool {
	oldControllers := getControllersSnapshot(manager)

	// After a removal an empty bus is a valid answer and not worth retrying.
	retries := refreshRetries
	if expectRemoval {
		retries = 0
	}

	found, err := refreshControllersWithRetry(manager, retries)
	if err != nil {
		log.Error().Err(err).Msg("Failed to refresh controllers (all retries exhausted)")
		return false
	}

	// An empty enumeration right after an add is usually a device that is
	// still initializing; only trust it when a removal was reported.
	if !found && !expectRemoval {
		return false
	}

	emitControllerChanges(server, diffControllers(oldControllers, getControllersSnapshot(manager)))
	return true
}

// createHotplugHandler returns an event handler that refreshes controllers and emits D-Bus signals.
// The handler uses the shared refreshMu to prevent race conditions with recovery handlers.
func createHotplugHandler(manager *hid.Manager, server *dbus.Server) udev.EventHandler {
	return func(event udev.Event) {
		refreshMu.Lock()
		defer refreshMu.Unlock()

		log.Debug().Stringer("event", event.Type).Str("product", event.Product).Msg("Refreshing controllers")

		// Remove events don't need a delay as the device is already gone.
		if event.Type == udev.EventAdd {
			time.Sleep(settleDelay)
		}

		refreshAndEmit(manager, server, event.Type == udev.EventRemove)
	}
}

// createRecoveryHandler returns a handler for netlink buffer overflow recovery.
// It triggers a controller refresh to recover from potentially missed udev events.
func createRecoveryHandler(manager *hid.Manager, server *dbus.Server) udev.RecoveryHandler {
	return func() {
		refreshMu.Lock()
		defer refreshMu.Unlock()

		log.Info().Msg("Performing recovery refresh after netlink buffer overflow")

		// Wait a moment for any pending USB operations to settle
		time.Sleep(settleDelay)

		if refreshAndEmit(manager, server, false) {
			log.Info().Int("controllers", manager.Count()).Msg("Recovery refresh completed")
		}
	}
}

// createDeviceErrorHandler returns a control loop error handler that starts a
// refresh when a write failed because a controller is gone. It never blocks
// the loop; errors during a running refresh are ignored.
func createDeviceErrorHandler(manager *hid.Manager, server *dbus.Server) func(error) {
	return func(err error) {
		if !hid.IsDeviceGoneError(err) {
			return
		}
		if !refreshMu.TryLock() {
			return
		}

		log.Warn().Err(err).Msg("Device error detected, triggering recovery")
		go func() {
			defer refreshMu.Unlock()
			refreshAndEmit(manager, server, true)
		}()
	}
}
