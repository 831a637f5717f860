// Package sequencer is the power-state machine at the heart of the logger.
// It decides when the system is awake, asleep, or deliberately parked for a
// watchdog reset, and it enforces the one ordering rule that keeps storage
// consistent: the log file is flushed and closed before anything is
// de-powered.
//
// Asynchronous hardware events (the power-loss edge, the watchdog countdown)
// only ever set flags; this package polls those flags at every phase
// boundary and is the only code that acts on them.
package sequencer

import (
	"context"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"github.com/cobbett/gnsslogger/internal/duty"
	"github.com/cobbett/gnsslogger/internal/gnss"
	"github.com/cobbett/gnsslogger/internal/hw/powerline"
	"github.com/cobbett/gnsslogger/internal/hw/watchdog"
	"github.com/cobbett/gnsslogger/internal/logfile"
	"github.com/cobbett/gnsslogger/internal/rtc"
	"github.com/cobbett/gnsslogger/internal/ws"
)

// PowerState names the five states of the machine. Exactly one is current
// at any instant and only the sequencer performs transitions.
type PowerState string

const (
	StateActive       PowerState = "ACTIVE"
	StatePendingSleep PowerState = "PENDING_SLEEP"
	StateAsleep       PowerState = "ASLEEP"
	StateWaking       PowerState = "WAKING"
	StateResetting    PowerState = "RESETTING"
)

// Peripheral is anything that must be quiesced before sleep and restored
// after wake: the storage bus, the receiver UART, spare GPIO banks.
type Peripheral interface {
	Name() string
	PowerDown() error
	PowerUp() error
}

// sleepKind distinguishes why a sleep cycle was entered.
type sleepKind int

const (
	sleepScheduled sleepKind = iota // duty-cycle window elapsed
	sleepForced                     // operator requested power-down
	sleepPowerLoss                  // supply collapsed
)

// sleepSlice bounds every wait; flags are re-polled between slices.
const sleepSlice = 250 * time.Millisecond

// Options holds everything the Sequencer needs from the caller.
type Options struct {
	Clock    *rtc.Clock
	Monitor  *powerline.Monitor
	Watchdog *watchdog.Supervisor
	Files    *logfile.Manager
	Receiver gnss.Receiver
	Hub      *ws.Hub
	Log      *log.Logger

	ActiveMs        uint64
	SleepMs         uint64
	RotateOnWake    bool
	WakeOnReconnect bool
	SampleInterval  time.Duration
	GNSSTimeout     time.Duration

	// SleepFn replaces time.Sleep in tests. The fake advances a fake clock.
	SleepFn func(time.Duration)
}

// Sequencer runs the duty-cycle loop. Construct with New, register
// peripherals, then call Run on the control goroutine.
type Sequencer struct {
	clock *rtc.Clock
	mon   *powerline.Monitor
	dog   *watchdog.Supervisor
	files *logfile.Manager
	rx    gnss.Receiver
	hub   *ws.Hub
	log   *log.Logger

	activeMs        uint64
	sleepMs         uint64
	rotateOnWake    bool
	wakeOnReconnect bool
	sampleInterval  time.Duration
	gnssTimeout     time.Duration
	sleepFn         func(time.Duration)

	peripherals []Peripheral

	state      atomic.Value // PowerState
	onState    func(from, to PowerState)
	forceSleep atomic.Bool

	window      duty.Window
	sampled     bool   // at least one sample attempted this active phase
	sleepCycles uint64 // completed sleep/wake cycles
	lastSyncTry uint64 // monotonic ms of last sync attempt
}

// New creates a sequencer in the ACTIVE-pending (not yet running) state.
func New(opts Options) *Sequencer {
	s := &Sequencer{
		clock:           opts.Clock,
		mon:             opts.Monitor,
		dog:             opts.Watchdog,
		files:           opts.Files,
		rx:              opts.Receiver,
		hub:             opts.Hub,
		log:             opts.Log,
		activeMs:        opts.ActiveMs,
		sleepMs:         opts.SleepMs,
		rotateOnWake:    opts.RotateOnWake,
		wakeOnReconnect: opts.WakeOnReconnect,
		sampleInterval:  opts.SampleInterval,
		gnssTimeout:     opts.GNSSTimeout,
		sleepFn:         opts.SleepFn,
	}
	if s.sampleInterval <= 0 {
		s.sampleInterval = time.Second
	}
	if s.gnssTimeout <= 0 {
		s.gnssTimeout = 2 * time.Second
	}
	if s.sleepFn == nil {
		s.sleepFn = time.Sleep
	}
	s.state.Store(StateActive)
	return s
}

// SetStateCallback registers a function invoked on every transition.
func (s *Sequencer) SetStateCallback(fn func(from, to PowerState)) {
	s.onState = fn
}

// RegisterPeripheral appends p to the quiesce order. Peripherals power down
// in registration order and power back up in reverse.
func (s *Sequencer) RegisterPeripheral(p Peripheral) {
	s.peripherals = append(s.peripherals, p)
}

// State returns the current power state.
func (s *Sequencer) State() PowerState {
	return s.state.Load().(PowerState)
}

// RequestPowerDown asks the loop to enter a sleep cycle at the next
// checkpoint. Safe to call from any goroutine.
func (s *Sequencer) RequestPowerDown() {
	s.forceSleep.Store(true)
}

// LoggingOnline reports whether log writes are currently possible.
func (s *Sequencer) LoggingOnline() bool {
	return s.files.Online()
}

// SleepCycles returns the number of completed sleep/wake cycles.
func (s *Sequencer) SleepCycles() uint64 {
	return atomic.LoadUint64(&s.sleepCycles)
}

// Run executes boot initialization and then the main logging loop until ctx
// is cancelled. Every initialization stage ends with a Checkpoint so a
// supply collapse during any of them is acted on before the next stage runs.
func (s *Sequencer) Run(ctx context.Context) error {
	// Boot guard: the line may have been asserted before the edge handler
	// was attached.
	if err := s.mon.CheckMissedEdge(); err != nil {
		s.log.Printf("sequencer: missed-edge check: %v", err)
	}
	if !s.Checkpoint(ctx) {
		return ctx.Err()
	}

	// First log file. Failure degrades to logging-disabled; sampling, the
	// control surface, and sleep scheduling all continue.
	if _, err := s.files.EnsureOpen(false); err != nil {
		s.log.Printf("sequencer: %v (continuing without logging)", err)
	} else {
		s.emitFileEvent("opened")
	}
	if !s.Checkpoint(ctx) {
		return ctx.Err()
	}

	// The first duty window starts once settings are loaded and storage has
	// had its chance, never earlier.
	s.window = duty.Window{Start: s.clock.NowMillis(), ActiveMs: s.activeMs, SleepMs: s.sleepMs}
	s.sampled = false
	s.emitLog("info", fmt.Sprintf("logging window open: active=%dms sleep=%dms", s.activeMs, s.sleepMs))

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !s.Checkpoint(ctx) {
			return ctx.Err()
		}

		s.sampleOnce()
		if !s.Checkpoint(ctx) {
			return ctx.Err()
		}

		s.maybeSyncClock()

		switch {
		case s.forceSleep.CompareAndSwap(true, false):
			if !s.sleepCycle(ctx, sleepForced) {
				return ctx.Err()
			}
		case s.sampled && duty.ShouldSleepNow(s.clock.NowMillis(), s.window):
			if !s.sleepCycle(ctx, sleepScheduled) {
				return ctx.Err()
			}
		default:
			s.idle(ctx, s.sampleInterval)
		}
	}
}

// Checkpoint is the cross-cutting guard invoked at every phase boundary. It
// returns false when the context is done; a set power-loss flag is handled
// immediately, short-circuiting whatever phase was in progress.
func (s *Sequencer) Checkpoint(ctx context.Context) bool {
	if ctx.Err() != nil {
		return false
	}
	if !s.mon.Triggered() {
		return true
	}
	return s.handlePowerLoss(ctx)
}

// handlePowerLoss acts on an observed power-loss flag: either park for a
// watchdog reset (wake-on-reconnect) or take a protective sleep. The flag is
// never dropped; Acknowledge happens inside the chosen path after the file
// is safe.
func (s *Sequencer) handlePowerLoss(ctx context.Context) bool {
	s.emitLog("warn", "power loss detected")
	s.broadcast(map[string]any{"type": "power_loss"})

	if s.wakeOnReconnect {
		absent, err := s.mon.LineAsserted()
		if err != nil {
			s.log.Printf("sequencer: power line read: %v", err)
		}
		if absent {
			return s.enterResetting(ctx)
		}
		// Power already back: the collapse was a blip, but the flag still
		// demands a protective close/sleep before logging resumes.
	}
	return s.sleepCycle(ctx, sleepPowerLoss)
}

// sleepCycle runs one full PENDING_SLEEP -> ASLEEP -> WAKING -> ACTIVE pass.
// Returns false only when the context ended mid-cycle.
func (s *Sequencer) sleepCycle(ctx context.Context, kind sleepKind) bool {
	s.transition(StatePendingSleep)

	// Storage consistency: flush and close strictly before any peripheral
	// loses power. Truncation is the failure this ordering exists to prevent.
	if err := s.files.CloseForSleep(); err != nil {
		s.log.Printf("sequencer: close for sleep: %v", err)
	} else if s.files.CurrentName() != "" {
		s.emitFileEvent("closed")
	}

	s.powerDownPeripherals()
	s.mon.Acknowledge()
	s.transition(StateAsleep)

	if !s.sleepUntilWake(ctx, kind) {
		return false
	}

	s.transition(StateWaking)
	s.powerUpPeripherals()

	// The millisecond clock may have skewed against true time across the
	// low-power interval.
	s.clock.MarkNeedsSync()

	if _, err := s.files.EnsureOpen(s.rotateOnWake); err != nil {
		s.log.Printf("sequencer: reopen after wake: %v (continuing without logging)", err)
	} else {
		s.emitFileEvent("reopened")
	}

	now := s.clock.NowMillis()
	if kind == sleepScheduled {
		// Exactly one advance per completed sleep, then absorb wake latency
		// so it cannot accumulate into the schedule.
		s.window = duty.Realign(now, duty.Next(s.window))
	} else {
		s.window = duty.Window{Start: now, ActiveMs: s.activeMs, SleepMs: s.sleepMs}
	}
	s.sampled = false
	atomic.AddUint64(&s.sleepCycles, 1)

	s.transition(StateActive)
	return true
}

// sleepUntilWake blocks through the ASLEEP phase in bounded slices. Wake
// conditions: the duty timer expires; or, for a power-loss sleep, the supply
// returns. A fresh power collapse during a scheduled sleep re-routes to the
// resetting park when wake-on-reconnect is configured.
func (s *Sequencer) sleepUntilWake(ctx context.Context, kind sleepKind) bool {
	wakeAt := s.wakeDeadline(kind)

	for {
		if ctx.Err() != nil {
			return false
		}

		now := s.clock.NowMillis()
		if now >= wakeAt {
			return true
		}

		if kind == sleepPowerLoss {
			if absent, err := s.mon.LineAsserted(); err == nil && !absent {
				s.emitLog("info", "power restored, waking early")
				return true
			}
		} else if s.mon.Triggered() {
			if s.wakeOnReconnect {
				if absent, err := s.mon.LineAsserted(); err == nil && absent {
					return s.enterResetting(ctx)
				}
			}
			// File already closed, peripherals already down: sleeping is
			// the correct response. Extend to the power-loss wake rule.
			s.mon.Acknowledge()
			kind = sleepPowerLoss
		}

		remaining := time.Duration(wakeAt-now) * time.Millisecond
		if remaining > sleepSlice {
			remaining = sleepSlice
		}
		s.sleepFn(remaining)
	}
}

// wakeDeadline computes the monotonic ms at which this sleep ends.
func (s *Sequencer) wakeDeadline(kind sleepKind) uint64 {
	now := s.clock.NowMillis()
	switch kind {
	case sleepScheduled:
		return s.window.SleepUntil()
	default:
		// Forced and power-loss sleeps run one configured sleep duration
		// from now, with a floor so a zero-sleep configuration still naps.
		d := s.sleepMs
		if d == 0 {
			d = 1000
		}
		return now + d
	}
}

// enterResetting parks the machine waiting for the watchdog to reset it.
// The file is closed and peripherals are dropped first; then the supervisor
// is told to withhold pets while power stays absent. The only exit is
// external: the hardware reset, or process shutdown via ctx.
func (s *Sequencer) enterResetting(ctx context.Context) bool {
	s.transition(StatePendingSleep)

	if err := s.files.CloseForSleep(); err != nil {
		s.log.Printf("sequencer: close for reset: %v", err)
	}
	s.powerDownPeripherals()
	s.mon.Acknowledge()

	s.dog.SetWaitingForReset(true)
	s.transition(StateResetting)
	s.emitLog("warn", "parked for watchdog reset, waiting for power return")

	for {
		if ctx.Err() != nil {
			return false
		}
		s.sleepFn(sleepSlice)
	}
}

// sampleOnce polls the receiver for one fix and appends it to the log. The
// active phase always attempts at least one sample before any sleep check,
// even when the configured active duration is shorter than a sample
// interval.
func (s *Sequencer) sampleOnce() {
	defer func() { s.sampled = true }()

	fix, err := s.rx.Poll(s.gnssTimeout)
	if err != nil || fix == nil {
		return
	}

	if !s.files.Online() {
		return
	}
	if _, err := s.files.Write(fix.Record()); err != nil {
		s.log.Printf("sequencer: log write: %v", err)
	}
}

// maybeSyncClock attempts an RTC sync while one is wanted, throttled so a
// receiver with no fix is not hammered every loop iteration.
func (s *Sequencer) maybeSyncClock() {
	if !s.clock.NeedsSync() {
		return
	}
	now := s.clock.NowMillis()
	if s.lastSyncTry != 0 && now-s.lastSyncTry < 5000 {
		return
	}
	s.lastSyncTry = now

	t, err := s.rx.FetchTime(s.gnssTimeout)
	if err != nil {
		return
	}
	s.clock.SetFromUTC(t)
	s.files.RecordAccessTime()
	s.broadcast(map[string]any{"type": "rtc_sync", "utc": t.UTC().Format(time.RFC3339)})
	s.emitLog("info", "rtc synced from receiver")
}

// idle waits out one sample interval in bounded slices, re-polling the
// power-loss flag between slices rather than once per interval.
func (s *Sequencer) idle(ctx context.Context, d time.Duration) {
	deadline := s.clock.NowMillis() + uint64(d.Milliseconds())
	for {
		if ctx.Err() != nil || s.mon.Triggered() || s.forceSleep.Load() {
			return
		}
		now := s.clock.NowMillis()
		if now >= deadline {
			return
		}
		remaining := time.Duration(deadline-now) * time.Millisecond
		if remaining > sleepSlice {
			remaining = sleepSlice
		}
		s.sleepFn(remaining)
	}
}

func (s *Sequencer) powerDownPeripherals() {
	for _, p := range s.peripherals {
		if err := p.PowerDown(); err != nil {
			s.log.Printf("sequencer: power down %s: %v", p.Name(), err)
		}
	}
}

func (s *Sequencer) powerUpPeripherals() {
	for i := len(s.peripherals) - 1; i >= 0; i-- {
		if err := s.peripherals[i].PowerUp(); err != nil {
			s.log.Printf("sequencer: power up %s: %v", s.peripherals[i].Name(), err)
		}
	}
}

// transition updates the state and notifies listeners.
func (s *Sequencer) transition(to PowerState) {
	from := s.state.Load().(PowerState)
	if from == to {
		return
	}
	s.state.Store(to)
	if s.onState != nil {
		s.onState(from, to)
	}
	s.broadcast(map[string]any{"type": "state", "from": string(from), "to": string(to)})
}

func (s *Sequencer) emitLog(level, message string) {
	s.broadcast(map[string]any{"type": "log", "level": level, "message": message})
}

func (s *Sequencer) emitFileEvent(action string) {
	s.broadcast(map[string]any{
		"type":          "file",
		"action":        action,
		"name":          s.files.CurrentName(),
		"bytes_written": s.files.BytesWritten(),
		"rotations":     s.files.Rotations(),
	})
}

func (s *Sequencer) broadcast(v map[string]any) {
	if s.hub == nil {
		return
	}
	v["ts"] = time.Now().UTC().Format(time.RFC3339Nano)
	v["component"] = "sequencer"
	s.hub.BroadcastJSON(v)
}
