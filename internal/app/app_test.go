package app

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/cobbett/gnsslogger/internal/config"
)

// newTestApp builds an App on fake hardware with a real temp data root and
// a saved config file, ready for handler tests.
func newTestApp(t *testing.T) *App {
	t.Helper()

	cfg := config.Default()
	cfg.Data.Root = t.TempDir()
	cfgPath := filepath.Join(t.TempDir(), "gnsslogger.toml")
	if err := config.Save(cfgPath, cfg); err != nil {
		t.Fatalf("seed config: %v", err)
	}

	a := New(Options{
		Logger:     log.New(io.Discard, "", 0),
		Cfg:        cfg,
		ConfigPath: cfgPath,
		Simulate:   true,
	})

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	if err := a.initComponents(ctx); err != nil {
		t.Fatalf("initComponents: %v", err)
	}
	t.Cleanup(a.closeHardware)

	return a
}

func do(t *testing.T, a *App, method, target string, body io.Reader) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, body)
	rec := httptest.NewRecorder()
	a.routes().ServeHTTP(rec, req)
	return rec
}

func decodeJSON(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &m); err != nil {
		t.Fatalf("decode response: %v\nbody: %s", err, rec.Body.String())
	}
	return m
}

func TestHealthzPlain(t *testing.T) {
	a := newTestApp(t)

	rec := do(t, a, http.MethodGet, "/healthz", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if rec.Body.String() != "ok\n" {
		t.Errorf("body = %q, want ok", rec.Body.String())
	}
}

func TestHealthzDetailed(t *testing.T) {
	a := newTestApp(t)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("Accept", "application/json")
	rec := httptest.NewRecorder()
	a.routes().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200\nbody: %s", rec.Code, rec.Body.String())
	}
	m := decodeJSON(t, rec)
	if m["healthy"] != true {
		t.Errorf("healthy = %v, want true", m["healthy"])
	}
}

func TestStatusEndpoint(t *testing.T) {
	a := newTestApp(t)

	rec := do(t, a, http.MethodGet, "/api/status", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	m := decodeJSON(t, rec)

	if m["name"] != "gnsslogger" {
		t.Errorf("name = %v", m["name"])
	}
	if m["state"] != "ACTIVE" {
		t.Errorf("state = %v, want ACTIVE before the loop runs", m["state"])
	}
	if m["simulate"] != true {
		t.Errorf("simulate = %v, want true", m["simulate"])
	}
	if m["rtc_synced"] != false {
		t.Errorf("rtc_synced = %v, want false before any sync", m["rtc_synced"])
	}
}

func TestSettingsUpdateAndSave(t *testing.T) {
	a := newTestApp(t)

	body := strings.NewReader(`{"duty":{"active_seconds":42,"sleep_seconds":18}}`)
	rec := do(t, a, http.MethodPost, "/api/settings", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("POST settings = %d\nbody: %s", rec.Code, rec.Body.String())
	}
	m := decodeJSON(t, rec)
	if m["restart_required"] != true {
		t.Error("expected restart_required = true")
	}

	// The in-memory record reflects the change.
	rec = do(t, a, http.MethodGet, "/api/settings", nil)
	var cfg config.Config
	if err := json.Unmarshal(rec.Body.Bytes(), &cfg); err != nil {
		t.Fatalf("decode settings: %v", err)
	}
	if cfg.Duty.ActiveSeconds != 42 || cfg.Duty.SleepSeconds != 18 {
		t.Errorf("duty = %+v, want 42/18", cfg.Duty)
	}
	// Untouched sections survive the layering.
	if cfg.Watchdog.ResetSeconds != config.Default().Watchdog.ResetSeconds {
		t.Errorf("watchdog section disturbed: %+v", cfg.Watchdog)
	}

	// Nothing hits the file until the explicit save.
	onDisk, err := config.Load(a.configPath)
	if err != nil {
		t.Fatal(err)
	}
	if onDisk.Duty.ActiveSeconds == 42 {
		t.Error("settings persisted without a save request")
	}

	rec = do(t, a, http.MethodPost, "/api/settings/save", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("save = %d\nbody: %s", rec.Code, rec.Body.String())
	}
	onDisk, err = config.Load(a.configPath)
	if err != nil {
		t.Fatal(err)
	}
	if onDisk.Duty.ActiveSeconds != 42 || onDisk.Duty.SleepSeconds != 18 {
		t.Errorf("saved duty = %+v, want 42/18", onDisk.Duty)
	}
}

func TestSettingsRejectsInvalid(t *testing.T) {
	a := newTestApp(t)

	rec := do(t, a, http.MethodPost, "/api/settings", strings.NewReader(`{"duty":{"active_seconds":0}}`))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}

	// The bad record must not have been applied.
	if a.getConfig().Duty.ActiveSeconds == 0 {
		t.Error("invalid settings were applied")
	}
}

func TestFilesListAndDelete(t *testing.T) {
	a := newTestApp(t)
	root := a.getConfig().Data.Root

	for _, name := range []string{"gnsslog_00001.ubx", "gnsslog_00002.ubx"} {
		if err := os.WriteFile(filepath.Join(root, name), []byte("data"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	rec := do(t, a, http.MethodGet, "/api/files", nil)
	m := decodeJSON(t, rec)
	files, ok := m["files"].([]any)
	if !ok || len(files) != 2 {
		t.Fatalf("files = %v, want 2 entries", m["files"])
	}

	rec = do(t, a, http.MethodDelete, "/api/files?name=gnsslog_00001.ubx", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("delete = %d\nbody: %s", rec.Code, rec.Body.String())
	}
	if _, err := os.Stat(filepath.Join(root, "gnsslog_00001.ubx")); !os.IsNotExist(err) {
		t.Error("file not deleted")
	}

	rec = do(t, a, http.MethodDelete, "/api/files?name=../etc/passwd", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("traversal delete = %d, want 400", rec.Code)
	}

	rec = do(t, a, http.MethodDelete, "/api/files?name=gnsslog_09999.ubx", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("missing delete = %d, want 404", rec.Code)
	}
}

func TestPowerDownEndpoint(t *testing.T) {
	a := newTestApp(t)

	rec := do(t, a, http.MethodGet, "/api/power-down", nil)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("GET = %d, want 405", rec.Code)
	}

	rec = do(t, a, http.MethodPost, "/api/power-down", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("POST = %d\nbody: %s", rec.Code, rec.Body.String())
	}
	m := decodeJSON(t, rec)
	if m["ok"] != true {
		t.Errorf("ok = %v", m["ok"])
	}
}

func TestVersionEndpoint(t *testing.T) {
	a := newTestApp(t)

	rec := do(t, a, http.MethodGet, "/api/version", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	m := decodeJSON(t, rec)
	if m["version"] != "dev" {
		t.Errorf("version = %v, want dev default", m["version"])
	}
}
