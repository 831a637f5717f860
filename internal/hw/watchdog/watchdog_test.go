package watchdog

import (
	"context"
	"testing"
	"time"

	"github.com/cobbett/gnsslogger/internal/hw/powerline"
)

func newTestSupervisor(t *testing.T, line *powerline.FakeLine, cfg Config) (*Supervisor, *FakeDevice) {
	t.Helper()
	dev := NewFakeDevice()
	mon, err := powerline.NewMonitor(line)
	if err != nil {
		t.Fatalf("NewMonitor: %v", err)
	}
	return New(dev, mon, cfg, nil), dev
}

func TestStartArmsExactlyOnce(t *testing.T) {
	line := powerline.NewFakeLine()
	s, dev := newTestSupervisor(t, line, Config{
		PetInterval:  time.Hour, // tick driven manually in tests
		ResetTimeout: 10 * time.Second,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if s.Armed() {
		t.Fatal("armed before Start")
	}
	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !s.Armed() {
		t.Fatal("not armed after Start")
	}
	if dev.ArmCalls != 1 || dev.ArmedTimeout != 10*time.Second {
		t.Fatalf("device armed %d times with %v", dev.ArmCalls, dev.ArmedTimeout)
	}

	if err := s.Start(ctx); err != ErrAlreadyStarted {
		t.Fatalf("second Start = %v, want ErrAlreadyStarted", err)
	}
}

func TestTickPetsByDefault(t *testing.T) {
	line := powerline.NewFakeLine()
	s, dev := newTestSupervisor(t, line, Config{WakeOnReconnect: true, DebounceReads: 1})

	s.Tick()
	s.Tick()
	if dev.Pets() != 2 {
		t.Fatalf("pets = %d, want 2", dev.Pets())
	}
}

func TestWithholdsPetWhenAllThreeHold(t *testing.T) {
	line := powerline.NewFakeLine()
	s, dev := newTestSupervisor(t, line, Config{WakeOnReconnect: true, DebounceReads: 1})

	line.SetAsserted(true)
	s.SetWaitingForReset(true)

	s.Tick()
	if dev.Pets() != 0 {
		t.Fatalf("pet issued while waiting for reset with power absent (pets=%d)", dev.Pets())
	}

	// Power returns: petting must resume.
	line.Restore()
	s.Tick()
	if dev.Pets() != 1 {
		t.Fatalf("pet not issued after power returned (pets=%d)", dev.Pets())
	}
}

func TestPetsWhenWakeOnReconnectDisabled(t *testing.T) {
	line := powerline.NewFakeLine()
	s, dev := newTestSupervisor(t, line, Config{WakeOnReconnect: false, DebounceReads: 1})

	line.SetAsserted(true)
	s.SetWaitingForReset(true)

	s.Tick()
	if dev.Pets() != 1 {
		t.Fatal("pet must be issued when wake-on-reconnect is disabled")
	}
}

func TestPetsWhenNotWaitingForReset(t *testing.T) {
	line := powerline.NewFakeLine()
	s, dev := newTestSupervisor(t, line, Config{WakeOnReconnect: true, DebounceReads: 1})

	line.SetAsserted(true)

	s.Tick()
	if dev.Pets() != 1 {
		t.Fatal("pet must be issued when the sequencer has not parked for reset")
	}
}

func TestDebounceReadsDelayWithholding(t *testing.T) {
	line := powerline.NewFakeLine()
	s, dev := newTestSupervisor(t, line, Config{WakeOnReconnect: true, DebounceReads: 3})

	line.SetAsserted(true)
	s.SetWaitingForReset(true)

	// First two asserted reads are still within the debounce allowance.
	s.Tick()
	s.Tick()
	if dev.Pets() != 2 {
		t.Fatalf("pets = %d before debounce threshold, want 2", dev.Pets())
	}

	// Third consecutive asserted read withholds.
	s.Tick()
	if dev.Pets() != 2 {
		t.Fatalf("pets = %d, third asserted read must withhold", dev.Pets())
	}

	// A deasserted read resets the consecutive counter.
	line.Restore()
	s.Tick()
	line.SetAsserted(true)
	s.Tick()
	s.Tick()
	if dev.Pets() != 5 {
		t.Fatalf("pets = %d, counter must restart after a deasserted read", dev.Pets())
	}
}

func TestPetsOnLineReadError(t *testing.T) {
	line := powerline.NewFakeLine()
	s, dev := newTestSupervisor(t, line, Config{WakeOnReconnect: true, DebounceReads: 1})

	s.SetWaitingForReset(true)
	line.ReadError = errTestRead

	s.Tick()
	if dev.Pets() != 1 {
		t.Fatal("a failed line read must not withhold the pet")
	}
}

var errTestRead = &testError{"read failed"}

type testError struct{ s string }

func (e *testError) Error() string { return e.s }
