package watchdog

import (
	"sync"
	"time"
)

// FakeDevice is a test double for the hardware countdown. It records arms
// and pets instead of touching a kernel device.
type FakeDevice struct {
	mu sync.Mutex

	ArmedTimeout time.Duration
	ArmCalls     int
	PetCalls     int

	// ArmError and PetError, if set, are returned by the matching call.
	ArmError error
	PetError error
}

// NewFakeDevice returns an unarmed fake device.
func NewFakeDevice() *FakeDevice {
	return &FakeDevice{}
}

// Arm records the reset threshold.
func (d *FakeDevice) Arm(resetTimeout time.Duration) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.ArmError != nil {
		return d.ArmError
	}
	d.ArmCalls++
	d.ArmedTimeout = resetTimeout
	return nil
}

// Pet counts the keepalive.
func (d *FakeDevice) Pet() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.PetError != nil {
		return d.PetError
	}
	d.PetCalls++
	return nil
}

// Pets returns how many times Pet succeeded.
func (d *FakeDevice) Pets() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.PetCalls
}
