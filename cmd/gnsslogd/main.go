// Gnsslogd is the data-logger daemon. It owns the duty cycle: logging GNSS
// fixes while awake, powering peripherals down for the sleep phase, and
// reacting to supply collapse and operator power-down requests. An HTTP and
// WebSocket control surface exposes status, settings, and live events.
//
// Shutdown is handled gracefully on SIGINT or SIGTERM.
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/cobbett/gnsslogger/internal/app"
	"github.com/cobbett/gnsslogger/internal/config"
)

func main() {
	var (
		configPath = pflag.StringP("config", "c", "/etc/gnsslogger/gnsslogger.toml", "Path to config TOML")
		bind       = pflag.String("bind", "", "HTTP bind address (overrides config)")
		simulate   = pflag.Bool("simulate", false, "Run against fake hardware (no GPIO, watchdog, or gpsd)")
	)
	pflag.Parse()

	logger := log.New(os.Stdout, "gnsslogd ", log.LstdFlags|log.Lmicroseconds)

	cfg, err := config.Load(*configPath)
	if err != nil {
		if *simulate && os.IsNotExist(err) {
			logger.Printf("no config at %s, using defaults", *configPath)
			cfg = config.Default()
		} else {
			logger.Fatalf("config load failed: %v", err)
		}
	}

	a := app.New(app.Options{
		Logger:     logger,
		Cfg:        cfg,
		ConfigPath: *configPath,
		Bind:       *bind,
		Simulate:   *simulate,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := a.Run(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatalf("gnsslogd failed: %v", err)
	}

	// Brief pause so in-flight log writes can flush before exit.
	time.Sleep(50 * time.Millisecond)
}
