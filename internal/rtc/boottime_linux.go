//go:build linux

package rtc

import "golang.org/x/sys/unix"

// bootMillis reads CLOCK_BOOTTIME, which keeps counting through suspend.
func bootMillis() uint64 {
	var ts unix.Timespec
	if err := unix.ClockGettime(unix.CLOCK_BOOTTIME, &ts); err != nil {
		// Fall back to the suspend-blind monotonic clock rather than fail;
		// scheduling degrades but stays monotonic.
		if err := unix.ClockGettime(unix.CLOCK_MONOTONIC, &ts); err != nil {
			return 0
		}
	}
	return uint64(ts.Sec)*1000 + uint64(ts.Nsec)/1e6
}
