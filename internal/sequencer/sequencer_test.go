package sequencer

import (
	"context"
	"io"
	"log"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cobbett/gnsslogger/internal/duty"
	"github.com/cobbett/gnsslogger/internal/gnss"
	"github.com/cobbett/gnsslogger/internal/hw/powerline"
	"github.com/cobbett/gnsslogger/internal/hw/watchdog"
	"github.com/cobbett/gnsslogger/internal/logfile"
	"github.com/cobbett/gnsslogger/internal/rtc"
)

// testRig bundles the fakes behind one sequencer.
type testRig struct {
	seq   *Sequencer
	clock *rtc.Clock
	ms    *uint64
	line  *powerline.FakeLine
	mon   *powerline.Monitor
	dog   *watchdog.Supervisor
	dev   *watchdog.FakeDevice
	store *logfile.FakeStorage
	files *logfile.Manager
	rx    *gnss.FakeReceiver

	transitions []string
}

func newRig(t *testing.T, opts Options) *testRig {
	t.Helper()

	r := &testRig{ms: new(uint64)}
	r.clock = rtc.NewWithSource(func() uint64 { return atomic.LoadUint64(r.ms) })

	r.line = powerline.NewFakeLine()
	mon, err := powerline.NewMonitor(r.line)
	if err != nil {
		t.Fatalf("NewMonitor: %v", err)
	}
	r.mon = mon

	r.dev = watchdog.NewFakeDevice()
	r.dog = watchdog.New(r.dev, mon, watchdog.Config{
		PetInterval:     time.Hour,
		ResetTimeout:    10 * time.Second,
		WakeOnReconnect: opts.WakeOnReconnect,
	}, nil)

	r.store = logfile.NewFakeStorage()
	r.files = logfile.NewManager(r.store, r.clock, log.New(io.Discard, "", 0))

	if opts.Receiver == nil {
		r.rx = gnss.NewFakeReceiver(gnss.Fix{
			Time: time.Date(2026, 8, 24, 10, 0, 0, 0, time.UTC),
			Mode: 3, Lat: 51.5, Lon: -0.12, Alt: 30,
		})
		opts.Receiver = r.rx
	}

	opts.Clock = r.clock
	opts.Monitor = mon
	opts.Watchdog = r.dog
	opts.Files = r.files
	opts.Log = log.New(io.Discard, "", 0)
	if opts.SleepFn == nil {
		// Fake sleep advances the fake clock instead of blocking.
		opts.SleepFn = func(d time.Duration) {
			atomic.AddUint64(r.ms, uint64(d.Milliseconds())+1)
		}
	}

	r.seq = New(opts)
	r.seq.SetStateCallback(func(from, to PowerState) {
		r.transitions = append(r.transitions, string(from)+">"+string(to))
	})
	return r
}

func TestScheduledSleepCycleTransitions(t *testing.T) {
	r := newRig(t, Options{ActiveMs: 10000, SleepMs: 5000})
	ctx := context.Background()

	if _, err := r.files.EnsureOpen(false); err != nil {
		t.Fatalf("EnsureOpen: %v", err)
	}
	r.seq.window = duty.Window{Start: 0, ActiveMs: 10000, SleepMs: 5000}
	atomic.StoreUint64(r.ms, 10001)

	if !r.seq.sleepCycle(ctx, sleepScheduled) {
		t.Fatal("sleepCycle reported cancellation")
	}

	want := []string{
		"ACTIVE>PENDING_SLEEP",
		"PENDING_SLEEP>ASLEEP",
		"ASLEEP>WAKING",
		"WAKING>ACTIVE",
	}
	if len(r.transitions) != len(want) {
		t.Fatalf("transitions = %v, want %v", r.transitions, want)
	}
	for i := range want {
		if r.transitions[i] != want[i] {
			t.Fatalf("transition %d = %s, want %s", i, r.transitions[i], want[i])
		}
	}

	// One period advance, realigned to actual wake time.
	if r.seq.window.Start < 15000 {
		t.Errorf("window start = %d, want >= 15000", r.seq.window.Start)
	}
	if !r.clock.NeedsSync() {
		t.Error("wake must force needsSync")
	}
	if r.seq.SleepCycles() != 1 {
		t.Errorf("sleep cycles = %d, want 1", r.seq.SleepCycles())
	}
}

func TestFileClosedBeforePeripheralPowerDown(t *testing.T) {
	// The flag can be raised at any checkpoint; in every case the log file
	// must be flushed and closed before the first peripheral power-down.
	checkpoints := []string{"boot", "post-storage-init", "post-settings-load", "mid-loop"}

	for _, cp := range checkpoints {
		t.Run(cp, func(t *testing.T) {
			r := newRig(t, Options{ActiveMs: 10000, SleepMs: 1000})
			ctx := context.Background()

			if _, err := r.files.EnsureOpen(false); err != nil {
				t.Fatalf("EnsureOpen: %v", err)
			}
			if _, err := r.files.Write([]byte("sample\n")); err != nil {
				t.Fatalf("Write: %v", err)
			}

			closedFirst := false
			r.seq.RegisterPeripheral(&tracePeripheral{
				name: "storage-bus",
				onDown: func() {
					for _, op := range r.store.OpsTrace() {
						if strings.HasPrefix(op, "close") {
							closedFirst = true
						}
					}
				},
			})

			// Supply collapses, then returns; sequencer observes the flag
			// at its next checkpoint.
			r.line.Drop()
			r.line.Restore()

			if !r.seq.Checkpoint(ctx) {
				t.Fatal("Checkpoint reported cancellation")
			}
			if !closedFirst {
				t.Fatal("peripheral powered down before the log file was closed")
			}
			if r.mon.Triggered() {
				t.Fatal("flag not acknowledged after being acted on")
			}
		})
	}
}

func TestRotateOnWakeAllocatesNewFile(t *testing.T) {
	r := newRig(t, Options{ActiveMs: 1000, SleepMs: 1000, RotateOnWake: true})
	ctx := context.Background()

	r.files.EnsureOpen(false)
	before := r.files.CurrentName()

	r.seq.window = duty.Window{Start: 0, ActiveMs: 1000, SleepMs: 1000}
	atomic.StoreUint64(r.ms, 1001)
	r.seq.sleepCycle(ctx, sleepScheduled)

	after := r.files.CurrentName()
	if after == before {
		t.Fatalf("rotate-on-wake reused %q", after)
	}
}

func TestReopenOnWakeKeepsFile(t *testing.T) {
	r := newRig(t, Options{ActiveMs: 1000, SleepMs: 1000, RotateOnWake: false})
	ctx := context.Background()

	r.files.EnsureOpen(false)
	r.files.Write([]byte("pre"))
	before := r.files.CurrentName()

	r.seq.window = duty.Window{Start: 0, ActiveMs: 1000, SleepMs: 1000}
	atomic.StoreUint64(r.ms, 1001)
	r.seq.sleepCycle(ctx, sleepScheduled)

	if got := r.files.CurrentName(); got != before {
		t.Fatalf("reopen changed file %q -> %q", before, got)
	}
	r.files.Write([]byte("post"))
	if got := string(r.store.Contents(before)); got != "prepost" {
		t.Fatalf("contents = %q, pre-sleep bytes must survive", got)
	}
}

func TestResettingPathParksForWatchdog(t *testing.T) {
	r := newRig(t, Options{ActiveMs: 1000, SleepMs: 1000, WakeOnReconnect: true})

	ctx, cancel := context.WithCancel(context.Background())
	parkSlices := 0
	r.seq.sleepFn = func(d time.Duration) {
		parkSlices++
		if parkSlices >= 3 {
			cancel() // the "external" exit stands in for the hardware reset
		}
		atomic.AddUint64(r.ms, uint64(d.Milliseconds())+1)
	}

	r.files.EnsureOpen(false)
	r.line.Drop() // power absent and staying absent

	if r.seq.Checkpoint(ctx) {
		t.Fatal("Checkpoint must not report continue from the resetting park")
	}
	if got := r.seq.State(); got != StateResetting {
		t.Fatalf("state = %s, want RESETTING", got)
	}
	if !r.dog.WaitingForReset() {
		t.Fatal("watchdog not told to withhold pets")
	}
	if parkSlices < 3 {
		t.Fatalf("park loop ran %d slices, expected to spin until external exit", parkSlices)
	}
}

func TestPowerLossSleepWakesWhenPowerReturns(t *testing.T) {
	r := newRig(t, Options{ActiveMs: 10000, SleepMs: 60000, WakeOnReconnect: false})
	ctx := context.Background()

	r.files.EnsureOpen(false)
	r.line.Drop()

	// Restore the supply after two sleep slices.
	slices := 0
	r.seq.sleepFn = func(d time.Duration) {
		slices++
		if slices == 2 {
			r.line.Restore()
		}
		atomic.AddUint64(r.ms, uint64(d.Milliseconds())+1)
	}

	if !r.seq.Checkpoint(ctx) {
		t.Fatal("Checkpoint reported cancellation")
	}
	if got := r.seq.State(); got != StateActive {
		t.Fatalf("state = %s, want ACTIVE after power-return wake", got)
	}
	// Woke well before the 60s sleep duration.
	if now := r.clock.NowMillis(); now > 10000 {
		t.Fatalf("woke at %dms, expected early wake on power return", now)
	}
}

func TestRunSamplesBeforeSleepingWithTinyActiveWindow(t *testing.T) {
	// Active duration shorter than one sample interval: at least one sample
	// must land before the first sleep check fires.
	r := newRig(t, Options{ActiveMs: 1, SleepMs: 100, SampleInterval: time.Second})

	ctx, cancel := context.WithCancel(context.Background())
	r.seq.SetStateCallback(func(from, to PowerState) {
		if to == StateActive && r.seq.SleepCycles() >= 1 {
			cancel()
		}
	})

	err := r.seq.Run(ctx)
	if err != context.Canceled {
		t.Fatalf("Run returned %v", err)
	}

	if r.rx.Polls == 0 {
		t.Fatal("no sample attempted before first sleep")
	}
	if r.files.BytesWritten() == 0 {
		t.Fatal("no bytes logged before first sleep")
	}
	if r.seq.SleepCycles() < 1 {
		t.Fatal("no sleep cycle completed")
	}
}

func TestRunContinuousLoggingNeverSleeps(t *testing.T) {
	r := newRig(t, Options{ActiveMs: 1000, SleepMs: 0, SampleInterval: 100 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())

	// Cancel once enough fake time has passed for several windows.
	base := r.seq.sleepFn
	r.seq.sleepFn = func(d time.Duration) {
		base(d)
		if atomic.LoadUint64(r.ms) > 10000 {
			cancel()
		}
	}

	_ = r.seq.Run(ctx)

	if r.seq.SleepCycles() != 0 {
		t.Fatalf("slept %d times with sleep duration 0", r.seq.SleepCycles())
	}
	if r.files.BytesWritten() == 0 {
		t.Fatal("continuous mode logged nothing")
	}
}

func TestForcedPowerDown(t *testing.T) {
	r := newRig(t, Options{ActiveMs: 60000, SleepMs: 2000, SampleInterval: 100 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	r.seq.SetStateCallback(func(from, to PowerState) {
		if to == StateActive && r.seq.SleepCycles() >= 1 {
			cancel()
		}
	})

	r.seq.RequestPowerDown()
	err := r.seq.Run(ctx)
	if err != context.Canceled {
		t.Fatalf("Run returned %v", err)
	}
	if r.seq.SleepCycles() != 1 {
		t.Fatalf("sleep cycles = %d, want 1 from the forced request", r.seq.SleepCycles())
	}
}

func TestRunSyncsClockFromReceiver(t *testing.T) {
	r := newRig(t, Options{ActiveMs: 1000, SleepMs: 0, SampleInterval: 100 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	base := r.seq.sleepFn
	r.seq.sleepFn = func(d time.Duration) {
		base(d)
		if r.clock.Synced() {
			cancel()
		}
	}

	_ = r.seq.Run(ctx)

	if !r.clock.Synced() {
		t.Fatal("clock never synced from the receiver")
	}
}

// tracePeripheral calls onDown when powered down, so tests can assert what
// had already happened by then.
type tracePeripheral struct {
	name   string
	onDown func()
	downs  int
	ups    int
}

func (p *tracePeripheral) Name() string { return p.name }

func (p *tracePeripheral) PowerDown() error {
	p.downs++
	if p.onDown != nil {
		p.onDown()
	}
	return nil
}

func (p *tracePeripheral) PowerUp() error {
	p.ups++
	return nil
}
