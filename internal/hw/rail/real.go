//go:build linux

package rail

import (
	"fmt"

	"github.com/warthog618/go-gpiocdev"
)

// GPIORail drives one enable line through the Linux GPIO character device.
type GPIORail struct {
	name      string
	line      *gpiocdev.Line
	activeLow bool
}

// NewGPIORail requests the enable line as an output and switches the rail
// on immediately, since boot expects every peripheral powered.
func NewGPIORail(name, chip string, offset int, activeLow bool) (*GPIORail, error) {
	r := &GPIORail{name: name, activeLow: activeLow}

	line, err := gpiocdev.RequestLine(chip, offset, gpiocdev.AsOutput(r.level(true)))
	if err != nil {
		return nil, fmt.Errorf("request rail %s (%s:%d): %w", name, chip, offset, err)
	}
	r.line = line
	return r, nil
}

// Name identifies the rail in logs and quiesce ordering.
func (r *GPIORail) Name() string { return r.name }

// PowerDown cuts the rail.
func (r *GPIORail) PowerDown() error {
	if err := r.line.SetValue(r.level(false)); err != nil {
		return fmt.Errorf("rail %s off: %w", r.name, err)
	}
	return nil
}

// PowerUp restores the rail.
func (r *GPIORail) PowerUp() error {
	if err := r.line.SetValue(r.level(true)); err != nil {
		return fmt.Errorf("rail %s on: %w", r.name, err)
	}
	return nil
}

// Close releases the line, leaving the rail in its last commanded state.
func (r *GPIORail) Close() error {
	return r.line.Close()
}

func (r *GPIORail) level(on bool) int {
	if on != r.activeLow {
		return 1
	}
	return 0
}
