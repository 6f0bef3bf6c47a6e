// Package app wires together the recording coordinator, the session store,
// the two HTTP surfaces, and either the MQTT sensor bridge or the demo
// runner. It owns the daemon's lifecycle.
package app

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/urap-lab/pulse-engine/internal/api"
	"github.com/urap-lab/pulse-engine/internal/config"
	"github.com/urap-lab/pulse-engine/internal/demo"
	"github.com/urap-lab/pulse-engine/internal/recorder"
	"github.com/urap-lab/pulse-engine/internal/store"
	"github.com/urap-lab/pulse-engine/internal/telemetry"
	"github.com/urap-lab/pulse-engine/internal/transport"
	"github.com/urap-lab/pulse-engine/internal/ws"
)

// Options holds everything the App needs from the caller.
type Options struct {
	Logger     *log.Logger
	Cfg        config.Config
	ConfigPath string
	Bind       string // control bind override from the CLI, "" to use config
}

// App is the top-level daemon process. It manages the control HTTP server,
// the recordings API, the WebSocket event hub, the coordinator, and the
// active sensor source (MQTT bridge or demo runner).
type App struct {
	log        *log.Logger
	configPath string
	bind       string

	cfgMu sync.RWMutex
	cfg   config.Config

	startedAt time.Time
	server    *http.Server

	wsHub *ws.Hub
	store *store.FileStore
	coord *recorder.Coordinator

	apiSrv *api.Server

	logBufMu sync.Mutex
	logBuf   []logEntry
}

type logEntry struct {
	TS      string `json:"ts"`
	Level   string `json:"level"`
	Message string `json:"message"`
}

const maxLogEntries = 500

// New creates an App. Call Run to start serving.
func New(opts Options) *App {
	return &App{
		log:        opts.Logger,
		cfg:        opts.Cfg,
		configPath: opts.ConfigPath,
		bind:       opts.Bind,
		startedAt:  time.Now(),
		wsHub:      ws.NewHub(),
	}
}

func (a *App) getConfig() config.Config {
	a.cfgMu.RLock()
	defer a.cfgMu.RUnlock()
	return a.cfg
}

// Run starts everything and blocks until the context is cancelled or the
// control server returns an error. The recordings API is started on a
// separate port; a bind failure there is logged but does not take the
// daemon down, since the control surface and live capture still work.
func (a *App) Run(ctx context.Context) error {
	cfg := a.getConfig()

	st, err := store.NewFileStore(cfg.Data.Root, a.log)
	if err != nil {
		return err
	}
	a.store = st

	a.coord = recorder.New(recorder.Options{
		Store:      st,
		Hub:        a.wsHub,
		Log:        a.log,
		HRVWindow:  cfg.Recording.HRVWindow(),
		ErrorReset: cfg.Recording.ErrorReset(),
	})

	go a.wsHub.Run(ctx)
	go a.heartbeatLoop(ctx)

	a.apiSrv = api.New(st, a.log)
	go func() {
		if err := a.apiSrv.ListenAndServe(ctx, cfg.Server.Bind); err != nil {
			a.logf("warn", "recordings API unavailable: %v", err)
		}
	}()

	switch {
	case cfg.Demo.Enabled:
		r := demo.New(a.coord, a.wsHub)
		r.Sensors = cfg.Demo.Sensors
		r.Interval = time.Duration(cfg.Demo.IntervalMS) * time.Millisecond
		go r.Run(ctx)
	case cfg.MQTT.Broker != "":
		bridge := transport.NewBridge(cfg.MQTT, a.coord, a.log)
		go func() {
			if err := bridge.Run(ctx); err != nil {
				a.logf("error", "mqtt bridge stopped: %v", err)
			}
		}()
	default:
		a.logf("warn", "no sensor source configured: set mqtt.broker or enable demo mode")
	}

	bind := a.bind
	if bind == "" {
		bind = cfg.Control.Bind
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", a.handleHealthz)
	mux.HandleFunc("/api/status", a.handleStatus)
	mux.HandleFunc("/api/version", a.handleVersion)
	mux.HandleFunc("/api/config", a.handleConfig)
	mux.HandleFunc("/api/sensors", a.handleSensors)
	mux.HandleFunc("/api/sensors/add", a.handleSensorAdd)
	mux.HandleFunc("/api/sensors/remove", a.handleSensorRemove)
	mux.HandleFunc("/api/recordings", a.handleRecordings)
	mux.HandleFunc("/api/export", a.handleExport)
	mux.HandleFunc("/api/logs", a.handleLogs)
	mux.HandleFunc("/api/start", a.handleStart)
	mux.HandleFunc("/api/pause", a.handlePause)
	mux.HandleFunc("/api/resume", a.handleResume)
	mux.HandleFunc("/api/stop", a.handleStop)
	mux.HandleFunc("/api/cancel", a.handleCancel)
	mux.HandleFunc("/api/reload", a.handleReload)
	mux.Handle("/ws", a.wsHub.Handler())

	a.server = &http.Server{
		Addr:              bind,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	ln, err := net.Listen("tcp", bind)
	if err != nil {
		return err
	}

	a.log.Printf("control server listening on http://%s", bind)

	go func() {
		<-ctx.Done()
		a.log.Printf("shutdown requested")
		_ = a.server.Shutdown(context.Background())
	}()

	err = a.server.Serve(ln)
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// heartbeatLoop sends a periodic heartbeat event so clients can detect
// connectivity and track uptime without polling.
func (a *App) heartbeatLoop(ctx context.Context) {
	t := time.NewTicker(10 * time.Second)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			state := "IDLE"
			sensorCount := 0
			if a.coord != nil {
				state = a.coord.State().Kind.String()
				sensorCount = len(a.coord.Sensors())
			}
			a.wsHub.BroadcastJSON(telemetry.Heartbeat{
				Event:         telemetry.Event{Type: telemetry.EventHeartbeat, TS: telemetry.NowTS()},
				State:         state,
				UptimeSeconds: int64(time.Since(a.startedAt).Seconds()),
				SensorCount:   sensorCount,
			})
		}
	}
}

// logf logs locally, appends to the in-memory log ring served by /api/logs,
// and broadcasts the line to WebSocket clients.
func (a *App) logf(level, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	a.log.Printf("%s", msg)

	entry := logEntry{
		TS:      time.Now().UTC().Format(time.RFC3339Nano),
		Level:   level,
		Message: msg,
	}
	a.logBufMu.Lock()
	a.logBuf = append(a.logBuf, entry)
	if len(a.logBuf) > maxLogEntries {
		a.logBuf = a.logBuf[len(a.logBuf)-maxLogEntries:]
	}
	a.logBufMu.Unlock()

	a.wsHub.BroadcastJSON(map[string]any{
		"type":      "log",
		"ts":        entry.TS,
		"level":     level,
		"message":   msg,
		"component": "pulsed",
	})
}
