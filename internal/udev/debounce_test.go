package udev

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time {
	return c.t
}

func (c *fakeClock) advance(d time.Duration) {
	c.t = c.t.Add(d)
}

func newTestDebouncer(window time.Duration) (*debouncer, *fakeClock) {
	clock := &fakeClock{t: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
	d := newDebouncer(window)
	d.now = clock.now
	return d, clock
}

func TestDebouncer_Suppress(t *testing.T) {
	d, clock := newTestDebouncer(2 * time.Second)

	assert.False(t, d.suppress(testProduct), "first occurrence passes")
	assert.True(t, d.suppress(testProduct), "repeat within the window is dropped")

	clock.advance(1900 * time.Millisecond)
	assert.True(t, d.suppress(testProduct), "window restarts on every occurrence")

	clock.advance(2 * time.Second)
	assert.False(t, d.suppress(testProduct), "passes once the window elapsed")
}

func TestDebouncer_KeysAreIndependent(t *testing.T) {
	d, _ := newTestDebouncer(2 * time.Second)

	assert.False(t, d.suppress("16c0/5df/100"))
	assert.False(t, d.suppress("16c0/5df/201"))
	assert.True(t, d.suppress("16c0/5df/100"))
}

func TestDebouncer_DropsStaleEntries(t *testing.T) {
	d, clock := newTestDebouncer(2 * time.Second)

	d.suppress("a")
	d.suppress("b")
	assert.Equal(t, 2, d.len())

	clock.advance(2 * time.Minute)
	d.suppress("c")
	assert.Equal(t, 1, d.len())
}

func TestDebouncer_RetentionCoversWindow(t *testing.T) {
	d, clock := newTestDebouncer(5 * time.Minute)

	d.suppress("a")
	clock.advance(3 * time.Minute)
	assert.True(t, d.suppress("a"))
}
