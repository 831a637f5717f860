// Package duty contains the pure duty-cycle window math that decides when
// the logger's active phase ends and when the next one begins. It has no
// dependencies on hardware or the OS clock; callers pass in the current
// monotonic millisecond reading.
package duty

// Window describes one active/sleep cycle. Start is a monotonic millisecond
// reading taken from the RTC facade; ActiveMs and SleepMs come from the
// settings record. SleepMs == 0 means continuous logging: no sleep phase is
// ever entered.
type Window struct {
	Start    uint64 // monotonic ms at which the active phase began
	ActiveMs uint64
	SleepMs  uint64
}

// PeriodMs returns the length of one full cycle.
func (w Window) PeriodMs() uint64 {
	return w.ActiveMs + w.SleepMs
}

// SleepUntil returns the monotonic ms at which the sleep phase of this
// window ends and the next active phase should begin.
func (w Window) SleepUntil() uint64 {
	return w.Start + w.PeriodMs()
}

// ShouldSleepNow reports whether the active phase of w has elapsed.
// Always false when SleepMs is zero (continuous logging).
func ShouldSleepNow(now uint64, w Window) bool {
	if w.SleepMs == 0 {
		return false
	}
	return now > w.Start+w.ActiveMs
}

// Next advances the window by exactly one period. It must be called once per
// completed sleep, never on a wake attempt that turned out to be premature;
// calling it twice for one sleep would push the schedule a full cycle ahead.
func Next(w Window) Window {
	w.Start += w.PeriodMs()
	return w
}

// Realign moves the window start forward to now if the computed start is
// already in the past. Sleep entry and wake-up both carry latency; without
// realignment that latency would accumulate into the schedule cycle after
// cycle.
func Realign(now uint64, w Window) Window {
	if now > w.Start {
		w.Start = now
	}
	return w
}
