package app

import (
	"io"
	"time"

	"github.com/cobbett/gnsslogger/internal/gnss"
	"github.com/cobbett/gnsslogger/internal/hw/powerline"
	"github.com/cobbett/gnsslogger/internal/hw/rail"
	"github.com/cobbett/gnsslogger/internal/hw/watchdog"
)

// hardware bundles the platform bindings the component graph is built on.
// closers holds what must be released at shutdown beyond the power line,
// which the monitor owns.
type hardware struct {
	line     powerline.Line
	dev      watchdog.Device
	receiver gnss.Receiver
	rails    []rail.Rail
	closers  []io.Closer
}

// buildHardware returns fakes in simulate mode and platform devices
// otherwise.
func (a *App) buildHardware() (*hardware, error) {
	if a.simulate {
		return a.buildFakeHardware(), nil
	}
	return a.buildRealHardware()
}

// buildFakeHardware wires the same component graph as a real run, minus the
// kernel: a healthy power line, a watchdog that counts pets, a receiver
// reporting a fixed position, and one fake rail per configured rail.
func (a *App) buildFakeHardware() *hardware {
	cfg := a.getConfig()

	rails := make([]rail.Rail, 0, len(cfg.Power.Rails))
	for _, rc := range cfg.Power.Rails {
		rails = append(rails, rail.NewFakeRail(rc.Name))
	}
	if len(rails) == 0 {
		rails = append(rails, rail.NewFakeRail("storage"), rail.NewFakeRail("receiver"))
	}

	hw := &hardware{
		line: powerline.NewFakeLine(),
		dev:  watchdog.NewFakeDevice(),
		receiver: gnss.NewFakeReceiver(gnss.Fix{
			Time: time.Now().UTC(),
			Mode: 3,
			Lat:  51.1789,
			Lon:  -1.8262,
			Alt:  102.0,
		}),
		rails: rails,
	}
	for _, r := range hw.rails {
		hw.closers = append(hw.closers, r)
	}
	return hw
}
