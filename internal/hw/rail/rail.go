// Package rail models the switchable power rails feeding peripherals:
// the storage card, the receiver, the sensor bus. Each rail is an enable
// GPIO behind a high-side switch; dropping the line cuts the peripheral's
// supply during sleep.
package rail

// A Rail can be cut before sleep and restored after wake. It satisfies the
// sequencer's Peripheral interface.
type Rail interface {
	Name() string
	PowerDown() error
	PowerUp() error
	Close() error
}
