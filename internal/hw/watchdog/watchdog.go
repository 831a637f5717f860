// Package watchdog supervises the hardware watchdog timer. Once started it
// is never disarmed; the supervisor only decides, tick by tick, whether to
// re-arm the countdown or deliberately let it expire.
//
// Letting the countdown expire is the recovery mechanism for "sleep until
// power returns": the hardware performs the reset even if every interrupt
// path is wedged, and the next boot resumes from persisted settings and the
// last log file name.
package watchdog

import (
	"context"
	"errors"
	"log"
	"sync/atomic"
	"time"
)

// ErrAlreadyStarted is returned by Start after the first successful call.
var ErrAlreadyStarted = errors.New("watchdog: already started")

// Device is the hardware countdown timer. Arm configures and enables it;
// Pet restarts the countdown. There is deliberately no disarm.
type Device interface {
	Arm(resetTimeout time.Duration) error
	Pet() error
}

// PowerLine is the subset of the power-loss monitor the tick decision reads.
type PowerLine interface {
	LineAsserted() (bool, error)
}

// Config carries the supervisor's timing and policy knobs.
type Config struct {
	// PetInterval is the tick period, the software analog of the countdown's
	// interrupt threshold. Must be comfortably below ResetTimeout.
	PetInterval time.Duration

	// ResetTimeout is the hardware reset threshold armed into the device.
	ResetTimeout time.Duration

	// WakeOnReconnect mirrors the settings flag of the same name. Petting is
	// only ever withheld when it is set.
	WakeOnReconnect bool

	// DebounceReads is how many consecutive asserted line reads are required
	// before petting is withheld. 1 trusts a single raw read.
	DebounceReads int
}

// Supervisor drives the Device. Interrupt-context discipline: the tick path
// touches only the device, the power line level, and primitive flags.
type Supervisor struct {
	dev  Device
	line PowerLine
	cfg  Config
	log  *log.Logger

	armed   atomic.Bool
	waiting atomic.Bool

	// consecutive asserted reads; only the tick goroutine touches this.
	consecAsserted int
}

// New creates a supervisor. Start must be called to arm the hardware.
func New(dev Device, line PowerLine, cfg Config, logger *log.Logger) *Supervisor {
	if cfg.DebounceReads < 1 {
		cfg.DebounceReads = 1
	}
	return &Supervisor{dev: dev, line: line, cfg: cfg, log: logger}
}

// Start arms the countdown exactly once and begins the tick loop. A second
// call returns ErrAlreadyStarted.
func (s *Supervisor) Start(ctx context.Context) error {
	if !s.armed.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}
	if err := s.dev.Arm(s.cfg.ResetTimeout); err != nil {
		s.armed.Store(false)
		return err
	}

	go func() {
		t := time.NewTicker(s.cfg.PetInterval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				// Keep petting is over; the device stays armed. If the
				// process is going away for good the platform must close
				// the device itself or accept the reset.
				return
			case <-t.C:
				s.Tick()
			}
		}
	}()

	return nil
}

// Armed reports whether Start has run. The supervisor never disarms at
// runtime.
func (s *Supervisor) Armed() bool {
	return s.armed.Load()
}

// SetWaitingForReset is owned by the power-down sequencer. It marks that the
// system has parked itself waiting for power to return, handing the eventual
// reset over to the hardware.
func (s *Supervisor) SetWaitingForReset(v bool) {
	s.waiting.Store(v)
	if !v {
		s.consecAsserted = 0
	}
}

// WaitingForReset reports the flag set by SetWaitingForReset.
func (s *Supervisor) WaitingForReset() bool {
	return s.waiting.Load()
}

// Tick runs one countdown-interrupt decision: pet, unless the system is
// parked waiting for a power-return reset and the line still reads absent.
func (s *Supervisor) Tick() {
	if s.shouldPet() {
		if err := s.dev.Pet(); err != nil && s.log != nil {
			s.log.Printf("watchdog: pet failed: %v", err)
		}
	}
}

// shouldPet implements the decision rule. Pet always, UNLESS all three hold:
// wake-on-power-reconnect is enabled, the sequencer has parked waiting for a
// reset, and the power-loss line (debounced over DebounceReads ticks) still
// reads power-absent. A wrongly withheld pet resets the system, which is the
// safe outcome: boot restores a known-good state from persisted settings.
func (s *Supervisor) shouldPet() bool {
	if !s.cfg.WakeOnReconnect || !s.waiting.Load() {
		s.consecAsserted = 0
		return true
	}

	asserted, err := s.line.LineAsserted()
	if err != nil {
		// A flaky read must not trigger a spurious reset; pet and retry on
		// the next tick.
		s.consecAsserted = 0
		return true
	}
	if !asserted {
		s.consecAsserted = 0
		return true
	}

	s.consecAsserted++
	return s.consecAsserted < s.cfg.DebounceReads
}
