//go:build linux

package app

import (
	"github.com/cobbett/gnsslogger/internal/gnss"
	"github.com/cobbett/gnsslogger/internal/hw/powerline"
	"github.com/cobbett/gnsslogger/internal/hw/rail"
	"github.com/cobbett/gnsslogger/internal/hw/watchdog"
)

// buildRealHardware opens the GPIO comparator line, the kernel watchdog,
// the configured power rails, and a gpsd client. Rails are requested in
// config order, which is also their quiesce order.
func (a *App) buildRealHardware() (*hardware, error) {
	cfg := a.getConfig()

	line, err := powerline.NewGPIOLine(cfg.Power.Chip, cfg.Power.LineOffset, cfg.Power.ActiveLow)
	if err != nil {
		return nil, err
	}

	hw := &hardware{
		line:     line,
		dev:      watchdog.NewKernelDevice(cfg.Watchdog.Device),
		receiver: gnss.NewClient(cfg.GNSS.GPSDHost),
	}

	for _, rc := range cfg.Power.Rails {
		r, err := rail.NewGPIORail(rc.Name, rc.Chip, rc.LineOffset, rc.ActiveLow)
		if err != nil {
			for _, c := range hw.closers {
				_ = c.Close()
			}
			_ = line.Close()
			return nil, err
		}
		hw.rails = append(hw.rails, r)
		hw.closers = append(hw.closers, r)
	}

	return hw, nil
}
