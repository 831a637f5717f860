// Package rtc provides the monotonic millisecond clock the duty-cycle
// scheduler runs on, plus the sync state that gates wall-clock timestamps.
//
// The clock is backed by CLOCK_BOOTTIME rather than Go's monotonic reading
// because the latter pauses while the platform is suspended; a scheduler that
// stops counting during sleep would never wake. Wall-clock accuracy is a
// separate concern: readings are always monotonic, but only trustworthy as
// UTC after the GNSS receiver has confirmed time.
package rtc

import (
	"sync"
	"sync/atomic"
	"time"
)

// Clock is the real-time clock facade. The zero value is not usable; call New.
type Clock struct {
	source func() uint64 // monotonic-across-sleep millisecond reading

	synced    atomic.Bool
	needsSync atomic.Bool

	mu       sync.Mutex
	offsetMs int64 // UTC unix-ms minus source-ms, valid when synced
}

// New returns a Clock backed by the platform boottime counter. The clock
// starts unsynced and wanting a sync.
func New() *Clock {
	return NewWithSource(bootMillis)
}

// NewWithSource returns a Clock reading from the given millisecond source.
// Tests use this to drive the clock deterministically.
func NewWithSource(source func() uint64) *Clock {
	c := &Clock{source: source}
	c.needsSync.Store(true)
	return c
}

// NowMillis returns the current monotonic millisecond reading. It never
// fails; before the first sync the value is monotonic but not wall-accurate.
func (c *Clock) NowMillis() uint64 {
	return c.source()
}

// Synced reports whether an external time source has confirmed UTC since the
// last wake.
func (c *Clock) Synced() bool {
	return c.synced.Load()
}

// NeedsSync reports whether a fresh time confirmation is wanted.
func (c *Clock) NeedsSync() bool {
	return c.needsSync.Load()
}

// MarkNeedsSync flags the clock as possibly skewed. The sequencer calls this
// on every transition out of sleep, since the millisecond counter and true
// time can drift apart across a low-power interval.
func (c *Clock) MarkNeedsSync() {
	c.needsSync.Store(true)
	c.synced.Store(false)
}

// SetFromUTC records the offset between the monotonic counter and the given
// UTC time, marking the clock synced. Called with time fetched from the GNSS
// receiver.
func (c *Clock) SetFromUTC(t time.Time) {
	now := c.source()

	c.mu.Lock()
	c.offsetMs = t.UTC().UnixMilli() - int64(now)
	c.mu.Unlock()

	c.synced.Store(true)
	c.needsSync.Store(false)
}

// Wall returns the current UTC wall-clock time. ok is false when the clock
// has never been synced (or a wake invalidated the sync), in which case
// callers must not write the returned value anywhere durable.
func (c *Clock) Wall() (t time.Time, ok bool) {
	if !c.synced.Load() {
		return time.Time{}, false
	}

	now := c.source()
	c.mu.Lock()
	off := c.offsetMs
	c.mu.Unlock()

	return time.UnixMilli(int64(now) + off).UTC(), true
}
