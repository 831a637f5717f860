//go:build !linux

package app

import "errors"

// buildRealHardware needs the Linux GPIO and watchdog character devices.
func (a *App) buildRealHardware() (*hardware, error) {
	return nil, errors.New("real hardware requires linux; run with --simulate")
}
