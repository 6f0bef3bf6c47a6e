package app

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"time"

	"github.com/urap-lab/pulse-engine/internal/config"
	"github.com/urap-lab/pulse-engine/internal/recorder"
	"github.com/urap-lab/pulse-engine/internal/store"
)

// ---------------------------------------------------------------------------
// Core handlers
// ---------------------------------------------------------------------------

func (a *App) handleHealthz(w http.ResponseWriter, r *http.Request) {
	// If the client asks for JSON, return component-level health checks.
	if r.Header.Get("Accept") == "application/json" {
		a.handleHealthDetailed(w, r)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok\n"))
}

func (a *App) handleStatus(w http.ResponseWriter, _ *http.Request) {
	cfg := a.getConfig()
	state := a.coord.State()

	resp := map[string]any{
		"name":           "pulse-engine",
		"state":          state.Kind.String(),
		"uptime_seconds": int64(time.Since(a.startedAt).Seconds()),
		"data_root":      cfg.Data.Root,
		"sensor_count":   len(a.coord.Sensors()),
		"demo_enabled":   cfg.Demo.Enabled,
	}

	switch {
	case cfg.Demo.Enabled:
		resp["mode"] = "demo"
	case cfg.MQTT.Broker != "":
		resp["mode"] = "mqtt"
		resp["broker"] = cfg.MQTT.Broker
	default:
		resp["mode"] = "none"
	}

	if state.Active() {
		resp["recording_id"] = a.coord.RecordingID()
		resp["recording_name"] = a.coord.RecordingName()
		resp["elapsed_seconds"] = int64(time.Since(state.StartTime).Seconds())
	}
	if state.Kind == recorder.StateError {
		resp["error"] = state.Message
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
		"runtime":    runtime.Version(),
		"os":         runtime.GOOS,
		"arch":       runtime.GOARCH,
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func (a *App) handleConfig(w http.ResponseWriter, _ *http.Request) {
	cfg := a.getConfig()
	// Never expose broker credentials over the control surface.
	cfg.MQTT.Password = ""
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(cfg)
}

func (a *App) handleSensors(w http.ResponseWriter, _ *http.Request) {
	sensors := a.coord.Sensors()
	if sensors == nil {
		sensors = []recorder.SensorStatus{}
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"sensors": sensors})
}

func (a *App) handleSensorAdd(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var body struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		jsonError(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if body.ID == "" {
		jsonError(w, "id required", http.StatusBadRequest)
		return
	}
	if body.Name == "" {
		body.Name = "Polar " + body.ID
	}

	a.coord.AddSensor(body.ID, body.Name)
	a.logf("info", "sensor %s (%s) added via control API", body.ID, body.Name)
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"ok":           true,
		"sensor_id":    body.ID,
		"sensor_count": len(a.coord.Sensors()),
	})
}

func (a *App) handleSensorRemove(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var body struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		jsonError(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if body.ID == "" {
		jsonError(w, "id required", http.StatusBadRequest)
		return
	}

	a.coord.RemoveSensor(body.ID)
	a.logf("info", "sensor %s removed via control API", body.ID)
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"ok":           true,
		"sensor_id":    body.ID,
		"sensor_count": len(a.coord.Sensors()),
	})
}

// ---------------------------------------------------------------------------
// Recordings + export
// ---------------------------------------------------------------------------

func (a *App) handleRecordings(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodDelete {
		id := r.URL.Query().Get("id")
		if id == "" {
			jsonError(w, "id parameter required", http.StatusBadRequest)
			return
		}
		if err := a.store.Delete(id); err != nil {
			if errors.Is(err, store.ErrRecordingNotFound) {
				jsonError(w, "recording not found", http.StatusNotFound)
			} else {
				jsonError(w, err.Error(), http.StatusInternalServerError)
			}
			return
		}
		a.logf("info", "recording %s deleted", id)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true, "message": "deleted " + id})
		return
	}

	summaries, err := a.store.LoadAll()
	if err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"recordings": summaries})
}

func (a *App) handleExport(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	if id == "" {
		jsonError(w, "id parameter required", http.StatusBadRequest)
		return
	}

	rec, err := a.store.LoadByID(id)
	if err != nil {
		if errors.Is(err, store.ErrRecordingNotFound) {
			jsonError(w, "recording not found", http.StatusNotFound)
		} else {
			jsonError(w, err.Error(), http.StatusInternalServerError)
		}
		return
	}

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=%q", "recording_"+id+"_csv.zip"))
	if err := store.ExportCSVZip(rec, w); err != nil {
		// Headers are gone already; all we can do is log.
		a.logf("error", "csv export of %s failed: %v", id, err)
	}
}

func (a *App) handleLogs(w http.ResponseWriter, r *http.Request) {
	a.logBufMu.Lock()
	entries := make([]logEntry, len(a.logBuf))
	copy(entries, a.logBuf)
	a.logBufMu.Unlock()

	levelFilter := r.URL.Query().Get("level")
	if levelFilter != "" {
		var filtered []logEntry
		for _, e := range entries {
			if e.Level == levelFilter {
				filtered = append(filtered, e)
			}
		}
		entries = filtered
	}

	limitStr := r.URL.Query().Get("limit")
	if limitStr != "" {
		if n, err := strconv.Atoi(limitStr); err == nil && n > 0 && n < len(entries) {
			entries = entries[len(entries)-n:]
		}
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"logs": entries})
}

// ---------------------------------------------------------------------------
// Recording lifecycle
// ---------------------------------------------------------------------------

func (a *App) handleStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var body struct {
		Name string `json:"name"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)

	id, err := a.coord.Start(body.Name)
	if err != nil {
		writeLifecycleError(w, err)
		return
	}

	a.logf("info", "recording %s started", id)
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"ok":           true,
		"recording_id": id,
		"state":        a.coord.State().Kind.String(),
	})
}

func (a *App) handlePause(w http.ResponseWriter, r *http.Request) {
	a.lifecycle(w, r, "paused", a.coord.Pause)
}

func (a *App) handleResume(w http.ResponseWriter, r *http.Request) {
	a.lifecycle(w, r, "resumed", a.coord.Resume)
}

func (a *App) handleStop(w http.ResponseWriter, r *http.Request) {
	a.lifecycle(w, r, "stopping", a.coord.Stop)
}

func (a *App) handleCancel(w http.ResponseWriter, r *http.Request) {
	a.lifecycle(w, r, "cancelled", a.coord.Cancel)
}

func (a *App) lifecycle(w http.ResponseWriter, r *http.Request, verb string, op func() error) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if err := op(); err != nil {
		writeLifecycleError(w, err)
		return
	}

	a.logf("info", "recording %s", verb)
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"ok":    true,
		"state": a.coord.State().Kind.String(),
	})
}

func (a *App) handleReload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if a.configPath == "" {
		jsonError(w, "no config file path set", http.StatusInternalServerError)
		return
	}

	newCfg, err := config.Load(a.configPath)
	if err != nil {
		jsonError(w, "config reload failed: "+err.Error(), http.StatusInternalServerError)
		return
	}

	a.cfgMu.Lock()
	a.cfg = newCfg
	a.cfgMu.Unlock()

	// Binds, the HRV window, and the sensor source are fixed at startup;
	// a reload only affects settings read per-request.
	a.logf("info", "config reloaded from %s (listener and recorder settings need a restart)", a.configPath)

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"ok":      true,
		"message": "configuration reloaded from " + a.configPath,
	})
}

func (a *App) handleHealthDetailed(w http.ResponseWriter, _ *http.Request) {
	cfg := a.getConfig()

	checks := map[string]any{}
	allOK := true

	// Data directory must be writable or saves will fail.
	tmpPath := filepath.Join(cfg.Data.Root, ".healthcheck")
	if err := os.WriteFile(tmpPath, []byte("ok"), 0o644); err != nil {
		checks["data_dir"] = map[string]any{"ok": false, "error": err.Error()}
		allOK = false
	} else {
		os.Remove(tmpPath)
		checks["data_dir"] = map[string]any{"ok": true, "path": cfg.Data.Root}
	}

	if a.configPath != "" {
		if _, err := os.Stat(a.configPath); err != nil {
			checks["config_file"] = map[string]any{"ok": false, "error": err.Error()}
			allOK = false
		} else {
			checks["config_file"] = map[string]any{"ok": true, "path": a.configPath}
		}
	}

	apiPort := a.apiSrv.Port()
	checks["recordings_api"] = map[string]any{"ok": apiPort != 0, "port": apiPort}
	if apiPort == 0 {
		allOK = false
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

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

// writeLifecycleError maps coordinator errors to HTTP status codes. State
// machine violations and missing sensors are client-resolvable conflicts.
func writeLifecycleError(w http.ResponseWriter, err error) {
	var te *recorder.TransitionError
	switch {
	case errors.As(err, &te):
		jsonError(w, te.Error(), http.StatusConflict)
	case errors.Is(err, recorder.ErrNoSensorsConnected):
		jsonError(w, err.Error(), http.StatusConflict)
	default:
		jsonError(w, err.Error(), http.StatusInternalServerError)
	}
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
