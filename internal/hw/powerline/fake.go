package powerline

import (
	"errors"
	"sync"
)

// FakeLine is a test double standing in for the GPIO comparator line.
// Tests script the level and fire edges by hand.
type FakeLine struct {
	mu       sync.Mutex
	asserted bool
	fn       func()

	// ReadError, if set, is returned by Asserted.
	ReadError error

	// Closed tracks whether Close was called.
	Closed bool
}

// NewFakeLine returns a fake line with the supply healthy.
func NewFakeLine() *FakeLine {
	return &FakeLine{}
}

// Subscribe records the edge handler.
func (f *FakeLine) Subscribe(fn func()) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fn != nil {
		return errors.New("already subscribed")
	}
	f.fn = fn
	return nil
}

// Asserted returns the scripted level.
func (f *FakeLine) Asserted() (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ReadError != nil {
		return false, f.ReadError
	}
	return f.asserted, nil
}

// Close marks the line closed.
func (f *FakeLine) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Closed = true
	return nil
}

// SetAsserted scripts the raw level without firing an edge, simulating a
// level change the interrupt machinery missed.
func (f *FakeLine) SetAsserted(v bool) {
	f.mu.Lock()
	f.asserted = v
	f.mu.Unlock()
}

// Drop simulates a supply collapse: the level goes asserted and the edge
// handler fires.
func (f *FakeLine) Drop() {
	f.mu.Lock()
	f.asserted = true
	fn := f.fn
	f.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// Restore simulates the supply returning. No edge fires; the monitor flag
// stays set until acknowledged.
func (f *FakeLine) Restore() {
	f.SetAsserted(false)
}
