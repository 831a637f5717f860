package gnss

import (
	"errors"
	"sync"
	"time"
)

// FakeReceiver returns scripted fixes, for tests and --simulate runs.
// When the script runs out the last fix repeats.
type FakeReceiver struct {
	mu    sync.Mutex
	fixes []Fix
	index int

	// PollError and TimeError, if set, are returned by the matching call.
	PollError error
	TimeError error

	// Polls counts Poll calls.
	Polls int
}

// NewFakeReceiver creates a receiver scripted with the given fixes.
func NewFakeReceiver(fixes ...Fix) *FakeReceiver {
	return &FakeReceiver{fixes: fixes}
}

// Poll returns the next scripted fix.
func (f *FakeReceiver) Poll(time.Duration) (*Fix, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Polls++
	if f.PollError != nil {
		return nil, f.PollError
	}
	if len(f.fixes) == 0 {
		return nil, errors.New("no fixes scripted")
	}
	fix := f.fixes[f.index]
	if f.index < len(f.fixes)-1 {
		f.index++
	}
	return &fix, nil
}

// FetchTime returns the time of the first scripted fix with Mode >= 2.
func (f *FakeReceiver) FetchTime(time.Duration) (time.Time, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.TimeError != nil {
		return time.Time{}, f.TimeError
	}
	for _, fix := range f.fixes {
		if fix.Mode >= 2 && !fix.Time.IsZero() {
			return fix.Time, nil
		}
	}
	return time.Time{}, errors.New("no timed fix scripted")
}
