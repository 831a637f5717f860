// Package config handles loading, defaulting, validation, and explicit
// saving of the gnsslogd TOML settings record. Every section maps to a typed
// struct so the rest of the codebase gets strong typing without manual key
// lookups. The record is loaded once at boot, before the first duty-cycle
// window is established, and written back only on explicit request.
package config

import (
	"errors"
	"os"

	"github.com/pelletier/go-toml/v2"
)

// Config is the top-level settings record, mirroring the TOML sections.
type Config struct {
	Data     DataConfig     `toml:"data"     json:"data"`
	Logging  LoggingConfig  `toml:"logging"  json:"logging"`
	Server   ServerConfig   `toml:"server"   json:"server"`
	Duty     DutyConfig     `toml:"duty"     json:"duty"`
	Power    PowerConfig    `toml:"power"    json:"power"`
	Watchdog WatchdogConfig `toml:"watchdog" json:"watchdog"`
	GNSS     GNSSConfig     `toml:"gnss"     json:"gnss"`
}

type DataConfig struct {
	Root string `toml:"root" json:"root"`
}

type LoggingConfig struct {
	Level string `toml:"level" json:"level"`
}

type ServerConfig struct {
	Bind string `toml:"bind" json:"bind"`
}

// DutyConfig governs the active/sleep cycle. SleepSeconds == 0 selects
// continuous logging: no sleep phase is ever entered.
type DutyConfig struct {
	ActiveSeconds int  `toml:"active_seconds" json:"active_seconds"`
	SleepSeconds  int  `toml:"sleep_seconds"  json:"sleep_seconds"`
	RotateOnWake  bool `toml:"rotate_on_wake" json:"rotate_on_wake"`
}

// PowerConfig describes the power-loss comparator line, the policy for
// supply collapse, and the switchable peripheral power rails.
type PowerConfig struct {
	Chip            string       `toml:"chip"              json:"chip"`
	LineOffset      int          `toml:"line_offset"       json:"line_offset"`
	ActiveLow       bool         `toml:"active_low"        json:"active_low"`
	WakeOnReconnect bool         `toml:"wake_on_reconnect" json:"wake_on_reconnect"`
	Rails           []RailConfig `toml:"rails"             json:"rails"`
}

// RailConfig is one GPIO-switched power rail (SD card, receiver, sensor
// bus). Rails are quiesced before sleep in listed order and restored in
// reverse.
type RailConfig struct {
	Name       string `toml:"name"        json:"name"`
	Chip       string `toml:"chip"        json:"chip"`
	LineOffset int    `toml:"line_offset" json:"line_offset"`
	ActiveLow  bool   `toml:"active_low"  json:"active_low"`
}

// WatchdogConfig programs the two-stage countdown: PetSeconds is the tick
// (interrupt) threshold, ResetSeconds the hardware reset threshold.
// DebounceReads is how many consecutive asserted power-line reads the tick
// handler requires before withholding a pet; 1 trusts a single raw read.
type WatchdogConfig struct {
	Device        string `toml:"device"         json:"device"`
	PetSeconds    int    `toml:"pet_seconds"    json:"pet_seconds"`
	ResetSeconds  int    `toml:"reset_seconds"  json:"reset_seconds"`
	DebounceReads int    `toml:"debounce_reads" json:"debounce_reads"`
}

type GNSSConfig struct {
	GPSDHost           string `toml:"gpsd_host"            json:"gpsd_host"`
	SampleIntervalMs   int    `toml:"sample_interval_ms"   json:"sample_interval_ms"`
	FetchTimeoutSecond int    `toml:"fetch_timeout_seconds" json:"fetch_timeout_seconds"`
}

// Default returns a Config populated with sane defaults. Values here are
// used whenever the TOML file omits a field.
func Default() Config {
	return Config{
		Data: DataConfig{
			Root: "/var/lib/gnsslogger",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Server: ServerConfig{
			Bind: "0.0.0.0:8080",
		},
		Duty: DutyConfig{
			ActiveSeconds: 600,
			SleepSeconds:  0,
			RotateOnWake:  false,
		},
		Power: PowerConfig{
			Chip:            "gpiochip0",
			LineOffset:      17,
			ActiveLow:       false,
			WakeOnReconnect: false,
		},
		Watchdog: WatchdogConfig{
			Device:        "/dev/watchdog0",
			PetSeconds:    2,
			ResetSeconds:  15,
			DebounceReads: 2,
		},
		GNSS: GNSSConfig{
			GPSDHost:           "localhost:2947",
			SampleIntervalMs:   1000,
			FetchTimeoutSecond: 2,
		},
	}
}

// Load reads the TOML file at path, layers it on top of the defaults, and
// validates the result. An error is returned if the file can't be read,
// parsed, or if any constraint is violated.
func Load(path string) (Config, error) {
	cfg := Default()

	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}

	if err := toml.Unmarshal(b, &cfg); err != nil {
		return cfg, err
	}

	if err := Validate(cfg); err != nil {
		return cfg, err
	}

	return cfg, nil
}

// Save writes cfg back to path. Called only on explicit operator request;
// the daemon never persists settings behind the operator's back.
func Save(path string, cfg Config) error {
	if err := Validate(cfg); err != nil {
		return err
	}
	b, err := toml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o644)
}

// Validate checks every constraint the rest of the daemon relies on.
func Validate(cfg Config) error {
	if cfg.Data.Root == "" {
		return errors.New("data.root must not be empty")
	}
	if cfg.Duty.ActiveSeconds <= 0 {
		return errors.New("duty.active_seconds must be > 0")
	}
	if cfg.Duty.SleepSeconds < 0 {
		return errors.New("duty.sleep_seconds must be >= 0")
	}
	if cfg.Power.LineOffset < 0 {
		return errors.New("power.line_offset must be >= 0")
	}
	if cfg.Watchdog.PetSeconds <= 0 {
		return errors.New("watchdog.pet_seconds must be > 0")
	}
	if cfg.Watchdog.ResetSeconds <= cfg.Watchdog.PetSeconds {
		return errors.New("watchdog.reset_seconds must exceed watchdog.pet_seconds")
	}
	if cfg.Watchdog.DebounceReads < 1 {
		return errors.New("watchdog.debounce_reads must be >= 1")
	}
	if cfg.GNSS.SampleIntervalMs <= 0 {
		return errors.New("gnss.sample_interval_ms must be > 0")
	}
	if cfg.GNSS.FetchTimeoutSecond <= 0 {
		return errors.New("gnss.fetch_timeout_seconds must be > 0")
	}
	return nil
}
