//go:build linux

package watchdog

import (
	"fmt"
	"os"
	"time"

	"golang.org/x/sys/unix"
)

// KernelDevice drives the Linux watchdog character device. Opening the
// device starts the countdown on most drivers; Arm then sets the timeout.
type KernelDevice struct {
	path string
	f    *os.File
}

// NewKernelDevice prepares a device at the given path, normally
// /dev/watchdog0. The device is not opened until Arm.
func NewKernelDevice(path string) *KernelDevice {
	return &KernelDevice{path: path}
}

// Arm opens the device and programs the reset threshold.
func (d *KernelDevice) Arm(resetTimeout time.Duration) error {
	if d.f != nil {
		return fmt.Errorf("watchdog device %s already armed", d.path)
	}

	f, err := os.OpenFile(d.path, os.O_WRONLY, 0)
	if err != nil {
		return fmt.Errorf("open watchdog %s: %w", d.path, err)
	}

	secs := int(resetTimeout.Round(time.Second).Seconds())
	if secs < 1 {
		secs = 1
	}
	if err := unix.IoctlSetPointerInt(int(f.Fd()), unix.WDIOC_SETTIMEOUT, secs); err != nil {
		f.Close()
		return fmt.Errorf("set watchdog timeout: %w", err)
	}

	d.f = f
	return nil
}

// Pet restarts the countdown.
func (d *KernelDevice) Pet() error {
	if d.f == nil {
		return fmt.Errorf("watchdog device %s not armed", d.path)
	}
	if err := unix.IoctlWatchdogKeepalive(int(d.f.Fd())); err != nil {
		return fmt.Errorf("watchdog keepalive: %w", err)
	}
	return nil
}
