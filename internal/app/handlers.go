package app

import (
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cobbett/gnsslogger/internal/config"
)

func (a *App) handleHealthz(w http.ResponseWriter, r *http.Request) {
	// If the client asks for JSON, return component-level health checks.
	if r.Header.Get("Accept") == "application/json" {
		a.handleHealthDetailed(w, r)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok\n"))
}

func (a *App) handleHealthDetailed(w http.ResponseWriter, _ *http.Request) {
	cfg := a.getConfig()

	checks := map[string]any{}
	allOK := true

	// Data directory writable.
	tmpPath := filepath.Join(cfg.Data.Root, ".healthcheck")
	if err := os.WriteFile(tmpPath, []byte("ok"), 0o644); err != nil {
		checks["data_dir"] = map[string]any{"ok": false, "error": err.Error()}
		allOK = false
	} else {
		os.Remove(tmpPath)
		checks["data_dir"] = map[string]any{"ok": true, "path": cfg.Data.Root}
	}

	// Watchdog armed.
	if a.dog.Armed() {
		checks["watchdog"] = map[string]any{"ok": true}
	} else {
		checks["watchdog"] = map[string]any{"ok": false, "error": "not armed"}
		allOK = false
	}

	// Config file readable.
	if a.configPath != "" {
		if _, err := os.Stat(a.configPath); err != nil {
			checks["config_file"] = map[string]any{"ok": false, "error": err.Error()}
			allOK = false
		} else {
			checks["config_file"] = map[string]any{"ok": true, "path": a.configPath}
		}
	}

	status := http.StatusOK
	if !allOK {
		status = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"healthy": allOK,
		"checks":  checks,
	})
}

func (a *App) handleStatus(w http.ResponseWriter, _ *http.Request) {
	cfg := a.getConfig()

	resp := map[string]any{
		"name":           "gnsslogger",
		"state":          string(a.seq.State()),
		"uptime_seconds": int64(time.Since(a.startedAt).Seconds()),
		"simulate":       a.simulate,
		"logging_online": a.seq.LoggingOnline(),
		"current_file":   a.files.CurrentName(),
		"bytes_written":  a.files.BytesWritten(),
		"rotations":      a.files.Rotations(),
		"sleep_cycles":   a.seq.SleepCycles(),
		"rtc_synced":     a.clock.Synced(),
		"data_root":      cfg.Data.Root,
	}

	if du := diskUsage(cfg.Data.Root); du != nil {
		resp["disk"] = du
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func (a *App) handleVersion(w http.ResponseWriter, _ *http.Request) {
	resp := map[string]any{
		"version":    Version,
		"go_version": GoVersion,
		"built_at":   BuiltAt,
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

// handleSettings serves the settings record. GET returns it; POST layers the
// request body over the current record, validates, and applies it in memory.
// Durations and hardware bindings already handed to the sequencer take
// effect on the next daemon start; nothing is written to disk until an
// explicit save.
func (a *App) handleSettings(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(a.getConfig())

	case http.MethodPost:
		cfg := a.getConfig()
		if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
			jsonError(w, "bad request: "+err.Error(), http.StatusBadRequest)
			return
		}
		if err := config.Validate(cfg); err != nil {
			jsonError(w, err.Error(), http.StatusBadRequest)
			return
		}
		a.setConfig(cfg)

		a.emit("gnsslogd", map[string]any{
			"type":    "log",
			"level":   "info",
			"message": "settings updated (not yet saved)",
		})

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"ok":               true,
			"restart_required": true,
			"config":           cfg,
		})

	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleSettingsSave writes the in-memory settings record back to the config
// file. This is the only path that persists settings; the daemon never saves
// behind the operator's back.
func (a *App) handleSettingsSave(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if a.configPath == "" {
		jsonError(w, "no config file path set", http.StatusInternalServerError)
		return
	}

	if err := config.Save(a.configPath, a.getConfig()); err != nil {
		jsonError(w, "save failed: "+err.Error(), http.StatusInternalServerError)
		return
	}

	a.emit("gnsslogd", map[string]any{
		"type":    "log",
		"level":   "info",
		"message": "settings saved to " + a.configPath,
	})

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"ok":      true,
		"message": "settings saved to " + a.configPath,
	})
}

// handleFiles lists the log files in the data root, or deletes one by name.
func (a *App) handleFiles(w http.ResponseWriter, r *http.Request) {
	cfg := a.getConfig()

	if r.Method == http.MethodDelete {
		name := r.URL.Query().Get("name")
		if name == "" {
			jsonError(w, "name parameter required", http.StatusBadRequest)
			return
		}
		// Prevent path traversal.
		if strings.Contains(name, "/") || strings.Contains(name, "..") {
			jsonError(w, "invalid filename", http.StatusBadRequest)
			return
		}
		if name == a.files.CurrentName() {
			jsonError(w, "refusing to delete the active log file", http.StatusConflict)
			return
		}
		path := filepath.Join(cfg.Data.Root, name)
		if err := os.Remove(path); err != nil {
			if os.IsNotExist(err) {
				jsonError(w, "file not found", http.StatusNotFound)
			} else {
				jsonError(w, err.Error(), http.StatusInternalServerError)
			}
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true, "message": "deleted " + name})
		return
	}

	matches, _ := filepath.Glob(filepath.Join(cfg.Data.Root, "gnsslog_*.ubx"))

	type fileInfo struct {
		Name     string `json:"name"`
		Size     int64  `json:"size"`
		Modified string `json:"modified"`
		Current  bool   `json:"current"`
	}

	current := a.files.CurrentName()
	files := make([]fileInfo, 0, len(matches))
	for _, m := range matches {
		info, err := os.Stat(m)
		if err != nil {
			continue
		}
		base := filepath.Base(m)
		files = append(files, fileInfo{
			Name:     base,
			Size:     info.Size(),
			Modified: info.ModTime().UTC().Format(time.RFC3339),
			Current:  base == current,
		})
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"files": files})
}

// handlePowerDown asks the sequencer to enter a sleep cycle at its next
// checkpoint. The request returns immediately; the transition shows up on
// the event stream and in status.
func (a *App) handlePowerDown(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	a.seq.RequestPowerDown()

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"ok":      true,
		"message": "power-down requested",
	})
}

// jsonError writes a JSON error response.
func jsonError(w http.ResponseWriter, msg string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"ok":    false,
		"error": msg,
	})
}
