//go:build linux

package powerline

import (
	"fmt"

	"github.com/warthog618/go-gpiocdev"
)

// GPIOLine reads the power-loss comparator through the Linux GPIO character
// device and delivers falling-edge events to a subscriber.
type GPIOLine struct {
	chip       string
	offset     int
	activeLow  bool
	line       *gpiocdev.Line
	subscriber func()
}

// NewGPIOLine opens the power-loss input. The comparator output is normally
// high while the supply is healthy; activeLow inverts that convention for
// boards wired the other way.
func NewGPIOLine(chip string, offset int, activeLow bool) (*GPIOLine, error) {
	return &GPIOLine{chip: chip, offset: offset, activeLow: activeLow}, nil
}

// Subscribe requests the line with an edge event handler. The handler runs
// on the gpiocdev event goroutine and must stay allocation- and I/O-free.
func (g *GPIOLine) Subscribe(fn func()) error {
	if g.line != nil {
		return fmt.Errorf("power line %s:%d already subscribed", g.chip, g.offset)
	}
	g.subscriber = fn

	edge := gpiocdev.WithFallingEdge
	if g.activeLow {
		edge = gpiocdev.WithRisingEdge
	}

	line, err := gpiocdev.RequestLine(g.chip, g.offset,
		gpiocdev.AsInput,
		gpiocdev.WithPullUp,
		edge,
		gpiocdev.WithEventHandler(func(gpiocdev.LineEvent) {
			g.subscriber()
		}),
	)
	if err != nil {
		return fmt.Errorf("request power line %s:%d: %w", g.chip, g.offset, err)
	}
	g.line = line
	return nil
}

// Asserted reads the current level. True means the supply has collapsed.
func (g *GPIOLine) Asserted() (bool, error) {
	if g.line == nil {
		return false, fmt.Errorf("power line %s:%d not requested", g.chip, g.offset)
	}
	v, err := g.line.Value()
	if err != nil {
		return false, fmt.Errorf("read power line: %w", err)
	}
	if g.activeLow {
		return v != 0, nil
	}
	return v == 0, nil
}

// Close releases the line back to the kernel.
func (g *GPIOLine) Close() error {
	if g.line == nil {
		return nil
	}
	if err := g.line.Close(); err != nil {
		return fmt.Errorf("close power line: %w", err)
	}
	g.line = nil
	return nil
}
