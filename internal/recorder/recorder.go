// Package recorder implements the recording lifecycle coordinator. It owns
// the set of active per-sensor collectors, routes incoming sensor events to
// the right collector, and drives the Idle/Recording/Paused/Saving/Error
// state machine through to an assembled, persisted session.
package recorder

import (
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/urap-lab/pulse-engine/internal/collector"
	"github.com/urap-lab/pulse-engine/internal/session"
	"github.com/urap-lab/pulse-engine/internal/timing"
)

// Store persists finalized recordings. The coordinator only ever calls Save;
// reads happen independently through the API server.
type Store interface {
	Save(rec *session.Recording) error
}

// Broadcaster fans events out to live-display clients. Broadcasts must never
// block; the ws hub drops messages when its queue is full.
type Broadcaster interface {
	BroadcastJSON(v any)
}

// SensorStatus describes one connected sensor for status reporting.
type SensorStatus struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	LatestHeartRate int    `json:"latest_heart_rate"`
	HRSamples       int    `json:"hr_samples"`
	RRSamples       int    `json:"rr_samples"`
}

// Options holds everything the coordinator needs from the caller.
type Options struct {
	Store      Store
	Hub        Broadcaster
	Log        *log.Logger
	HRVWindow  time.Duration
	ErrorReset time.Duration // delay before an Error state auto-resets to Idle
	Clock      func() float64
}

// Coordinator is the lifecycle state machine. All state transitions are
// atomic with respect to routing: a routed event observes either the old or
// the new state, never a half-applied one.
type Coordinator struct {
	store      Store
	hub        Broadcaster
	log        *log.Logger
	hrvWindow  time.Duration
	errorReset time.Duration
	clock      func() float64

	mu         sync.RWMutex
	state      State
	connected  map[string]string // sensor id -> name, maintained across recordings
	collectors map[string]*collector.Collector
	recID      string
	recName    string

	// saveGen invalidates the completion of an in-flight save (and any
	// pending error auto-reset) when a cancel supersedes it.
	saveGen int
}

// New creates a coordinator in the Idle state.
func New(opts Options) *Coordinator {
	if opts.HRVWindow <= 0 {
		opts.HRVWindow = collector.DefaultHRVWindow
	}
	if opts.ErrorReset <= 0 {
		opts.ErrorReset = 2 * time.Second
	}
	if opts.Clock == nil {
		opts.Clock = timing.Monotonic
	}
	return &Coordinator{
		store:      opts.Store,
		hub:        opts.Hub,
		log:        opts.Log,
		hrvWindow:  opts.HRVWindow,
		errorReset: opts.ErrorReset,
		clock:      opts.Clock,
		state:      State{Kind: StateIdle},
		connected:  make(map[string]string),
		collectors: make(map[string]*collector.Collector),
	}
}

// State returns the current lifecycle state.
func (c *Coordinator) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// RecordingID returns the id of the in-progress recording, or "" when idle.
func (c *Coordinator) RecordingID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.recID
}

// RecordingName returns the name of the in-progress recording.
func (c *Coordinator) RecordingName() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.recName
}

// Sensors returns a snapshot of the connected sensors with their live
// sample counts, sorted by id for stable output.
func (c *Coordinator) Sensors() []SensorStatus {
	c.mu.RLock()
	out := make([]SensorStatus, 0, len(c.connected))
	for id, name := range c.connected {
		st := SensorStatus{ID: id, Name: name}
		if col, ok := c.collectors[id]; ok {
			st.LatestHeartRate = col.LatestHeartRate()
			st.HRSamples, st.RRSamples = col.Counts()
		}
		out = append(out, st)
	}
	c.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// AddSensor registers a sensor. A collector is created only while a
// recording is active; while Idle the sensor just becomes eligible for the
// next Start. Re-adding a known id is a no-op.
func (c *Coordinator) AddSensor(id, name string) {
	c.mu.Lock()
	if _, known := c.connected[id]; known {
		c.mu.Unlock()
		return
	}
	c.connected[id] = name
	if c.state.Active() {
		if _, ok := c.collectors[id]; !ok {
			c.collectors[id] = collector.NewWithClock(id, name, c.hrvWindow, c.clock)
		}
	}
	c.mu.Unlock()

	c.logf("sensor added: %s (%s)", id, name)
	c.broadcast(map[string]any{"type": "sensor", "event": "added", "sensor_id": id, "name": name})
}

// RemoveSensor unregisters a sensor and discards its collector, in any
// state. Data the collector already forwarded into a finalized recording is
// unaffected.
func (c *Coordinator) RemoveSensor(id string) {
	c.mu.Lock()
	name, known := c.connected[id]
	delete(c.connected, id)
	delete(c.collectors, id)
	c.mu.Unlock()

	if known {
		c.logf("sensor removed: %s (%s)", id, name)
		c.broadcast(map[string]any{"type": "sensor", "event": "removed", "sensor_id": id})
	}
}

// Start begins a new recording over every currently connected sensor and
// returns the generated recording id. A human-readable name is optional.
func (c *Coordinator) Start(name string) (string, error) {
	c.mu.Lock()

	next, err := transition(c.state, State{Kind: StateRecording, StartTime: time.Now().UTC()})
	if err != nil {
		c.mu.Unlock()
		return "", err
	}
	if len(c.connected) == 0 {
		c.mu.Unlock()
		return "", ErrNoSensorsConnected
	}

	from := c.state.Kind
	c.state = next
	c.recID = uuid.NewString()
	if name == "" {
		name = "Recording " + next.StartTime.Format("2006-01-02 15:04")
	}
	c.recName = name
	c.collectors = make(map[string]*collector.Collector, len(c.connected))
	for id, sensorName := range c.connected {
		c.collectors[id] = collector.NewWithClock(id, sensorName, c.hrvWindow, c.clock)
	}
	id := c.recID
	sensorCount := len(c.collectors)
	c.mu.Unlock()

	c.logf("recording started: %s (%q, %d sensors)", id, name, sensorCount)
	c.broadcastState(from, StateRecording)
	return id, nil
}

// Pause suspends persistence of routed events. Live display continues.
func (c *Coordinator) Pause() error {
	c.mu.Lock()
	next, err := transition(c.state, State{
		Kind:      StatePaused,
		StartTime: c.state.StartTime,
		PausedAt:  time.Now().UTC(),
	})
	if err != nil {
		c.mu.Unlock()
		return err
	}
	from := c.state.Kind
	c.state = next
	c.mu.Unlock()

	c.logf("recording paused")
	c.broadcastState(from, StatePaused)
	return nil
}

// Resume continues a paused recording.
func (c *Coordinator) Resume() error {
	c.mu.Lock()
	if c.state.Kind != StatePaused {
		err := &TransitionError{From: c.state.Kind, To: StateRecording}
		c.mu.Unlock()
		return err
	}
	from := c.state.Kind
	c.state = State{Kind: StateRecording, StartTime: c.state.StartTime}
	c.mu.Unlock()

	c.logf("recording resumed")
	c.broadcastState(from, StateRecording)
	return nil
}

// Stop finalizes the recording asynchronously. The state moves to Saving
// immediately; capture and persistence run in a goroutine so event routing
// for sensors that stay connected is never blocked behind a slow save. A
// second Stop while one is in flight is rejected, since the state is
// already Saving.
func (c *Coordinator) Stop() error {
	c.mu.Lock()
	next, err := transition(c.state, State{Kind: StateSaving})
	if err != nil {
		c.mu.Unlock()
		return err
	}

	from := c.state.Kind
	startTime := c.state.StartTime
	c.state = next
	c.saveGen++
	gen := c.saveGen

	cols := make([]*collector.Collector, 0, len(c.collectors))
	for _, col := range c.collectors {
		cols = append(cols, col)
	}
	recID, recName := c.recID, c.recName
	c.mu.Unlock()

	c.logf("stopping recording %s, saving %d collectors", recID, len(cols))
	c.broadcastState(from, StateSaving)

	go c.finalize(gen, recID, recName, startTime, cols)
	return nil
}

// Cancel discards the in-progress recording without persisting anything.
// It is legal from any active state, including while a save is in flight;
// the superseded save result is dropped when it completes.
func (c *Coordinator) Cancel() error {
	c.mu.Lock()
	next, err := transition(c.state, State{Kind: StateIdle})
	if err != nil {
		c.mu.Unlock()
		return err
	}
	if c.state.Kind == StateError {
		// Error recovers on its own timer; cancel is for active states.
		c.mu.Unlock()
		return &TransitionError{From: StateError, To: StateIdle}
	}

	from := c.state.Kind
	c.state = next
	c.saveGen++ // invalidate any in-flight save completion
	c.collectors = make(map[string]*collector.Collector)
	c.recID, c.recName = "", ""
	c.mu.Unlock()

	c.logf("recording cancelled, data discarded")
	c.broadcastState(from, StateIdle)
	return nil
}

// RouteHeartRate delivers one heart rate event for a sensor. The live
// display side channel always sees the value; the collector only persists
// it while the state is Recording.
func (c *Coordinator) RouteHeartRate(sensorID string, value int) {
	c.mu.RLock()
	recording := c.state.Kind == StateRecording
	col := c.collectors[sensorID]
	c.mu.RUnlock()

	c.broadcast(map[string]any{
		"type":      "live_sample",
		"kind":      "hr",
		"sensor_id": sensorID,
		"value":     value,
	})

	if recording && col != nil {
		col.AddHeartRate(value)
	}
}

// RouteRRInterval delivers one RR interval event for a sensor, with the
// same state gating as RouteHeartRate.
func (c *Coordinator) RouteRRInterval(sensorID string, valueMs int) {
	c.mu.RLock()
	recording := c.state.Kind == StateRecording
	col := c.collectors[sensorID]
	c.mu.RUnlock()

	c.broadcast(map[string]any{
		"type":      "live_sample",
		"kind":      "rr",
		"sensor_id": sensorID,
		"value":     valueMs,
	})

	if recording && col != nil {
		col.AddRRInterval(valueMs)
	}
}

// finalize captures every collector, assembles the session, and persists
// it. It runs outside the coordinator lock; gen detects a cancel that
// supersedes this save.
func (c *Coordinator) finalize(gen int, recID, recName string, startTime time.Time, cols []*collector.Collector) {
	recordings := make([]session.SensorRecording, 0, len(cols))
	for _, col := range cols {
		if rec := col.Capture(); rec != nil {
			recordings = append(recordings, *rec)
		}
	}

	if len(recordings) == 0 {
		c.enterError(gen, ErrNoDataCaptured.Error())
		return
	}

	// Session bounds are the min/max of the per-sensor timing anchors, not
	// the coordinator's own clock: sensors added mid-recording start later.
	start := recordings[0].Timing.StartWallTime
	end := recordings[0].Timing.EndWallTime
	for i := 1; i < len(recordings); i++ {
		if t := recordings[i].Timing.StartWallTime; t.Before(start) {
			start = t
		}
		if t := recordings[i].Timing.EndWallTime; t.After(end) {
			end = t
		}
	}

	rec := &session.Recording{
		ID:               recID,
		Name:             recName,
		StartDate:        start,
		EndDate:          end,
		SensorRecordings: recordings,
	}

	if err := c.store.Save(rec); err != nil {
		c.logf("save failed for %s: %v", recID, err)
		c.enterError(gen, fmt.Sprintf("%v: %v", ErrSaveFailed, err))
		return
	}

	c.mu.Lock()
	if gen != c.saveGen || c.state.Kind != StateSaving {
		// Cancelled while saving; the stored file stays but the state
		// machine already moved on.
		c.mu.Unlock()
		return
	}
	c.state = State{Kind: StateIdle}
	c.collectors = make(map[string]*collector.Collector)
	c.recID, c.recName = "", ""
	c.mu.Unlock()

	c.logf("recording saved: %s (%d sensors, %.0fs)", recID, len(recordings), rec.Duration())
	c.broadcast(map[string]any{
		"type":         "recording_saved",
		"recording_id": recID,
		"name":         recName,
		"sensor_count": len(recordings),
		"duration_s":   int(rec.Duration()),
	})
	c.broadcastState(StateSaving, StateIdle)
}

// enterError moves the machine to Error and schedules the automatic reset
// back to Idle so the operator can retry without manual recovery.
func (c *Coordinator) enterError(gen int, msg string) {
	c.mu.Lock()
	if gen != c.saveGen || c.state.Kind != StateSaving {
		c.mu.Unlock()
		return
	}
	c.state = State{Kind: StateError, Message: msg}
	c.collectors = make(map[string]*collector.Collector)
	c.recID, c.recName = "", ""
	c.mu.Unlock()

	c.logf("recording failed: %s", msg)
	c.broadcastState(StateSaving, StateError)

	time.AfterFunc(c.errorReset, func() {
		c.mu.Lock()
		if gen != c.saveGen || c.state.Kind != StateError {
			c.mu.Unlock()
			return
		}
		c.state = State{Kind: StateIdle}
		c.mu.Unlock()
		c.broadcastState(StateError, StateIdle)
	})
}

func (c *Coordinator) broadcastState(from, to StateKind) {
	c.broadcast(map[string]any{
		"type": "state",
		"from": from.String(),
		"to":   to.String(),
	})
}

func (c *Coordinator) broadcast(v map[string]any) {
	if c.hub == nil {
		return
	}
	v["ts"] = time.Now().UTC().Format(time.RFC3339Nano)
	v["component"] = "recorder"
	c.hub.BroadcastJSON(v)
}

func (c *Coordinator) logf(format string, args ...any) {
	if c.log != nil {
		c.log.Printf("recorder: "+format, args...)
	}
}
