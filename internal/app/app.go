// Package app wires together the HTTP control surface, the WebSocket hub,
// the hardware (real or simulated), and the power-state sequencer. It owns
// the daemon's lifecycle: hardware comes up first, then the watchdog is
// armed, then the sequencer loop and the network listeners start.
package app

import (
	"context"
	"errors"
	"io"
	"log"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/cobbett/gnsslogger/internal/config"
	"github.com/cobbett/gnsslogger/internal/hw/powerline"
	"github.com/cobbett/gnsslogger/internal/hw/watchdog"
	"github.com/cobbett/gnsslogger/internal/logfile"
	"github.com/cobbett/gnsslogger/internal/rtc"
	"github.com/cobbett/gnsslogger/internal/sequencer"
	"github.com/cobbett/gnsslogger/internal/telemetry"
	"github.com/cobbett/gnsslogger/internal/ws"
)

// Options holds everything the App needs from the caller.
type Options struct {
	Logger     *log.Logger
	Cfg        config.Config
	ConfigPath string
	Bind       string
	Simulate   bool
}

// App is the top-level daemon process. It manages the HTTP server, the
// WebSocket event hub, and the sequencer driving the duty cycle.
type App struct {
	log        *log.Logger
	configPath string
	bind       string
	simulate   bool

	cfgMu sync.RWMutex
	cfg   config.Config

	server    *http.Server
	startedAt time.Time

	wsHub *ws.Hub
	clock *rtc.Clock
	files *logfile.Manager
	mon   *powerline.Monitor
	dog   *watchdog.Supervisor
	seq   *sequencer.Sequencer

	closers []io.Closer
}

// New creates an App. Call Run to bring up hardware and start serving.
func New(opts Options) *App {
	return &App{
		log:        opts.Logger,
		cfg:        opts.Cfg,
		configPath: opts.ConfigPath,
		bind:       opts.Bind,
		simulate:   opts.Simulate,
		startedAt:  time.Now(),
		wsHub:      ws.NewHub(),
	}
}

// Run builds the component graph, arms the watchdog, and serves until the
// context is cancelled or the listener fails.
func (a *App) Run(ctx context.Context) error {
	if err := a.initComponents(ctx); err != nil {
		return err
	}
	defer a.closeHardware()

	cfg := a.getConfig()
	bind := a.bind
	if bind == "" && cfg.Server.Bind != "" {
		bind = cfg.Server.Bind
	}
	if bind == "" {
		bind = "0.0.0.0:8080"
	}

	a.server = &http.Server{
		Addr:              bind,
		Handler:           a.routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ln, err := net.Listen("tcp", bind)
	if err != nil {
		return err
	}

	a.log.Printf("listening on http://%s", bind)
	if a.simulate {
		a.log.Printf("simulate mode: power line, watchdog, rails, and receiver are fakes")
	}

	go a.wsHub.Run(ctx)
	go a.heartbeatLoop(ctx)
	go func() {
		if err := a.seq.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			a.log.Printf("sequencer stopped: %v", err)
		}
	}()

	go func() {
		<-ctx.Done()
		a.log.Printf("shutdown requested")
		_ = a.server.Shutdown(context.Background())
	}()

	err = a.server.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// initComponents builds the clock, storage, hardware, watchdog supervisor,
// and sequencer. The watchdog is armed here, before the sequencer runs, so
// a hang anywhere after this point still ends in a hardware reset.
func (a *App) initComponents(ctx context.Context) error {
	cfg := a.getConfig()

	a.clock = rtc.New()

	store, err := logfile.NewDirStorage(cfg.Data.Root)
	if err != nil {
		// Storage absence is a degraded mode, not a fatal one: sampling and
		// the control surface keep running with logging offline.
		a.log.Printf("data root %s: %v (logging stays offline)", cfg.Data.Root, err)
		store = &logfile.DirStorage{Root: cfg.Data.Root}
	}
	a.files = logfile.NewManager(store, a.clock, a.log)

	hw, err := a.buildHardware()
	if err != nil {
		return err
	}
	a.closers = hw.closers

	mon, err := powerline.NewMonitor(hw.line)
	if err != nil {
		return err
	}
	a.mon = mon

	a.dog = watchdog.New(hw.dev, mon, watchdog.Config{
		PetInterval:     time.Duration(cfg.Watchdog.PetSeconds) * time.Second,
		ResetTimeout:    time.Duration(cfg.Watchdog.ResetSeconds) * time.Second,
		WakeOnReconnect: cfg.Power.WakeOnReconnect,
		DebounceReads:   cfg.Watchdog.DebounceReads,
	}, a.log)
	if err := a.dog.Start(ctx); err != nil {
		return err
	}

	a.seq = sequencer.New(sequencer.Options{
		Clock:           a.clock,
		Monitor:         mon,
		Watchdog:        a.dog,
		Files:           a.files,
		Receiver:        hw.receiver,
		Hub:             a.wsHub,
		Log:             a.log,
		ActiveMs:        uint64(cfg.Duty.ActiveSeconds) * 1000,
		SleepMs:         uint64(cfg.Duty.SleepSeconds) * 1000,
		RotateOnWake:    cfg.Duty.RotateOnWake,
		WakeOnReconnect: cfg.Power.WakeOnReconnect,
		SampleInterval:  time.Duration(cfg.GNSS.SampleIntervalMs) * time.Millisecond,
		GNSSTimeout:     time.Duration(cfg.GNSS.FetchTimeoutSecond) * time.Second,
	})
	for _, r := range hw.rails {
		a.seq.RegisterPeripheral(r)
	}

	return nil
}

// routes builds the HTTP mux.
func (a *App) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", a.handleHealthz)
	mux.HandleFunc("/api/status", a.handleStatus)
	mux.HandleFunc("/api/version", a.handleVersion)
	mux.HandleFunc("/api/settings", a.handleSettings)
	mux.HandleFunc("/api/settings/save", a.handleSettingsSave)
	mux.HandleFunc("/api/files", a.handleFiles)
	mux.HandleFunc("/api/power-down", a.handlePowerDown)
	mux.Handle("/ws", a.wsHub.Handler())
	return mux
}

// heartbeatLoop sends a periodic heartbeat event so clients can detect
// connectivity and watch state and logging health without polling.
func (a *App) heartbeatLoop(ctx context.Context) {
	t := time.NewTicker(10 * time.Second)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			a.wsHub.BroadcastJSON(telemetry.Heartbeat{
				Event: telemetry.Event{
					Type:      telemetry.EventHeartbeat,
					TS:        telemetry.NowTS(),
					Component: "gnsslogd",
				},
				State:         string(a.seq.State()),
				UptimeSeconds: int64(time.Since(a.startedAt).Seconds()),
				LoggingOnline: a.seq.LoggingOnline(),
			})
		}
	}
}

// getConfig returns the current settings record.
func (a *App) getConfig() config.Config {
	a.cfgMu.RLock()
	defer a.cfgMu.RUnlock()
	return a.cfg
}

// setConfig replaces the settings record. Hardware bindings and durations
// already handed to the sequencer take effect on the next daemon start.
func (a *App) setConfig(cfg config.Config) {
	a.cfgMu.Lock()
	a.cfg = cfg
	a.cfgMu.Unlock()
}

// closeHardware releases GPIO lines and rails on the way out.
func (a *App) closeHardware() {
	if a.mon != nil {
		_ = a.mon.Close()
	}
	for _, c := range a.closers {
		_ = c.Close()
	}
}

// emit stamps a payload with a timestamp and component name, then pushes it
// to every connected WebSocket client.
func (a *App) emit(component string, payload map[string]any) {
	payload["ts"] = time.Now().UTC().Format(time.RFC3339Nano)
	payload["component"] = component
	a.wsHub.BroadcastJSON(payload)
}
