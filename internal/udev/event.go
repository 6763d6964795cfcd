// SPDX-License-Identifier: GPL-3.0-only

package udev

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pilebones/go-udev/netlink"
)

// EventType represents the type of device event.
type EventType int

const (
	// EventAdd indicates a controller was connected.
	EventAdd EventType = iota
	// EventRemove indicates a controller was disconnected.
	EventRemove
)

func (t EventType) String() string {
	switch t {
	case EventAdd:
		return "add"
	case EventRemove:
		return "remove"
	default:
		return fmt.Sprintf("EventType(%d)", int(t))
	}
}

// Event describes one controller hot-plug event.
type Event struct {
	Type EventType
	// Product is the udev PRODUCT value, "vendor/product/bcdDevice".
	Product string
	// DevPath is the kernel object path of the device.
	DevPath string
}

// classify turns a uevent into an Event. Adds are only reported for the
// usb_device node, since every USB interface produces its own uevent.
// Removes may arrive without DEVTYPE and are always accepted.
func classify(uevent netlink.UEvent) (Event, bool) {
	event := Event{Product: uevent.Env["PRODUCT"], DevPath: uevent.KObj}

	switch uevent.Action {
	case netlink.ADD:
		if uevent.Env["DEVTYPE"] != "usb_device" {
			return Event{}, false
		}
		event.Type = EventAdd
	case netlink.REMOVE:
		event.Type = EventRemove
	default:
		return Event{}, false
	}
	return event, true
}

// hexIDPattern returns a regular expression for a USB ID as it appears in
// PRODUCT. udev writes lowercase hex without leading zeros, but leading
// zeros and uppercase digits are accepted too.
func hexIDPattern(id uint16) string {
	var b strings.Builder
	b.WriteString("0*")
	for _, r := range strconv.FormatUint(uint64(id), 16) {
		if r >= 'a' && r <= 'f' {
			fmt.Fprintf(&b, "[%c%c]", r, r-'a'+'A')
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// matcher returns netlink rules accepting add and remove events of USB
// devices with the given IDs.
func matcher(vendorID, productID uint16) *netlink.RuleDefinitions {
	product := fmt.Sprintf("^%s/%s/[^/]+$", hexIDPattern(vendorID), hexIDPattern(productID))

	rules := &netlink.RuleDefinitions{}
	for _, action := range []string{string(netlink.ADD), string(netlink.REMOVE)} {
		action := action
		rules.AddRule(netlink.RuleDefinition{
			Action: &action,
			Env: map[string]string{
				"SUBSYSTEM": "^usb$",
				"PRODUCT":   product,
			},
		})
	}
	return rules
}
