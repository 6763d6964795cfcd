// SPDX-License-Identifier: GPL-3.0-only

package udev

import (
	"sync"
	"time"
)

// debouncer suppresses repeated keys within a window. Unplugging a
// controller emits one remove event per USB interface, all with the same
// PRODUCT.
type debouncer struct {
	mu        sync.Mutex
	window    time.Duration
	retention time.Duration
	now       func() time.Time
	seen      map[string]time.Time
}

func newDebouncer(window time.Duration) *debouncer {
	retention := time.Minute
	if window > retention {
		retention = window
	}
	return &debouncer{
		window:    window,
		retention: retention,
		now:       time.Now,
		seen:      make(map[string]time.Time),
	}
}

// suppress records key and reports whether it was already seen within the
// window. Entries older than the retention period are dropped.
func (d *debouncer) suppress(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	for k, ts := range d.seen {
		if now.Sub(ts) > d.retention {
			delete(d.seen, k)
		}
	}

	last, ok := d.seen[key]
	d.seen[key] = now
	return ok && now.Sub(last) < d.window
}

func (d *debouncer) len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.seen)
}
