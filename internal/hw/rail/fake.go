package rail

import "sync"

// FakeRail is a test and simulate-mode double that records switching.
type FakeRail struct {
	mu       sync.Mutex
	name     string
	on       bool
	Downs    int
	Ups      int
	Closed   bool
	FailDown error
	FailUp   error
}

// NewFakeRail returns a powered-on fake rail.
func NewFakeRail(name string) *FakeRail {
	return &FakeRail{name: name, on: true}
}

func (r *FakeRail) Name() string { return r.name }

func (r *FakeRail) PowerDown() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.FailDown != nil {
		return r.FailDown
	}
	r.on = false
	r.Downs++
	return nil
}

func (r *FakeRail) PowerUp() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.FailUp != nil {
		return r.FailUp
	}
	r.on = true
	r.Ups++
	return nil
}

func (r *FakeRail) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Closed = true
	return nil
}

// On reports the rail's current state.
func (r *FakeRail) On() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.on
}
