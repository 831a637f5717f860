//go:build !linux

package rtc

import "time"

var processStart = time.Now()

// bootMillis on non-Linux hosts falls back to Go's monotonic clock. This
// does not count across suspend, which is acceptable for development builds.
func bootMillis() uint64 {
	return uint64(time.Since(processStart).Milliseconds())
}
