package recorder

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/urap-lab/pulse-engine/internal/session"
)

// memStore collects saved recordings and can be told to fail.
type memStore struct {
	mu    sync.Mutex
	saved []*session.Recording
	fail  error
}

func (m *memStore) Save(rec *session.Recording) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return m.fail
	}
	m.saved = append(m.saved, rec)
	return nil
}

func (m *memStore) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.saved)
}

func (m *memStore) last() *session.Recording {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.saved) == 0 {
		return nil
	}
	return m.saved[len(m.saved)-1]
}

func newTestCoordinator(store *memStore) *Coordinator {
	return New(Options{
		Store:      store,
		ErrorReset: 50 * time.Millisecond,
	})
}

// waitForState polls until the coordinator reaches the wanted state or the
// deadline expires. Stop finalizes asynchronously, so tests need this.
func waitForState(t *testing.T, c *Coordinator, kind StateKind) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if c.State().Kind == kind {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("coordinator never reached %s, stuck in %s", kind, c.State().Kind)
}

func TestStartRequiresSensors(t *testing.T) {
	c := newTestCoordinator(&memStore{})

	_, err := c.Start("morning run")
	assert.ErrorIs(t, err, ErrNoSensorsConnected)
	assert.Equal(t, StateIdle, c.State().Kind)
}

func TestIllegalTransitionsLeaveStateUnchanged(t *testing.T) {
	c := newTestCoordinator(&memStore{})
	c.AddSensor("s1", "Polar H10")

	var terr *TransitionError

	// From Idle only start is legal.
	require.ErrorAs(t, c.Pause(), &terr)
	require.ErrorAs(t, c.Resume(), &terr)
	require.ErrorAs(t, c.Stop(), &terr)
	require.ErrorAs(t, c.Cancel(), &terr)
	assert.Equal(t, StateIdle, c.State().Kind)

	_, err := c.Start("")
	require.NoError(t, err)
	assert.Equal(t, StateRecording, c.State().Kind)

	// Double start and resume are illegal while Recording.
	_, err = c.Start("")
	require.ErrorAs(t, err, &terr)
	require.ErrorAs(t, c.Resume(), &terr)
	assert.Equal(t, StateRecording, c.State().Kind)

	require.NoError(t, c.Pause())
	require.ErrorAs(t, c.Pause(), &terr)
	assert.Equal(t, StatePaused, c.State().Kind)

	require.NoError(t, c.Resume())
	assert.Equal(t, StateRecording, c.State().Kind)
}

func TestStartWhilePausedIsRejected(t *testing.T) {
	store := &memStore{}
	c := newTestCoordinator(store)
	c.AddSensor("s1", "Polar H10")

	id, err := c.Start("")
	require.NoError(t, err)
	c.RouteHeartRate("s1", 72)
	require.NoError(t, c.Pause())

	// Only resume may leave Paused for Recording; a fresh start would mint
	// a new recording and silently discard the paused buffers.
	var terr *TransitionError
	_, err = c.Start("second attempt")
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, StatePaused, c.State().Kind)
	assert.Equal(t, id, c.RecordingID())

	// The paused recording is intact and still saveable.
	require.NoError(t, c.Resume())
	require.NoError(t, c.Stop())
	waitForState(t, c, StateIdle)
	require.Equal(t, 1, store.count())
	assert.Equal(t, id, store.last().ID)
}

func TestStopAssemblesAndSavesSession(t *testing.T) {
	store := &memStore{}
	c := newTestCoordinator(store)
	c.AddSensor("s1", "Polar H10 A")
	c.AddSensor("s2", "Polar H10 B")

	id, err := c.Start("interval session")
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		c.RouteHeartRate("s1", 70+i)
		c.RouteHeartRate("s2", 80+i)
		c.RouteRRInterval("s1", 800+i)
	}

	require.NoError(t, c.Stop())
	waitForState(t, c, StateIdle)

	require.Equal(t, 1, store.count())
	rec := store.last()
	assert.Equal(t, id, rec.ID)
	assert.Equal(t, "interval session", rec.Name)
	require.Len(t, rec.SensorRecordings, 2)
	assert.False(t, rec.EndDate.Before(rec.StartDate))

	for _, sr := range rec.SensorRecordings {
		assert.Equal(t, 10, sr.Statistics.HeartRateSamples)
		assert.False(t, sr.Timing.StartWallTime.Before(rec.StartDate))
		assert.False(t, sr.Timing.EndWallTime.After(rec.EndDate))
	}
}

func TestStopWithNoDataEntersErrorThenIdle(t *testing.T) {
	store := &memStore{}
	c := newTestCoordinator(store)
	c.AddSensor("s1", "Polar H10")

	_, err := c.Start("")
	require.NoError(t, err)
	require.NoError(t, c.Stop())

	waitForState(t, c, StateError)
	assert.Contains(t, c.State().Message, "no heart rate data")
	assert.Zero(t, store.count())

	// Error auto-resets to Idle after the configured delay.
	waitForState(t, c, StateIdle)
}

func TestSaveFailureEntersErrorThenIdle(t *testing.T) {
	store := &memStore{fail: errors.New("disk full")}
	c := newTestCoordinator(store)
	c.AddSensor("s1", "Polar H10")

	_, err := c.Start("")
	require.NoError(t, err)
	c.RouteHeartRate("s1", 72)
	require.NoError(t, c.Stop())

	waitForState(t, c, StateError)
	assert.Contains(t, c.State().Message, "disk full")
	waitForState(t, c, StateIdle)

	// The operator can start over without manual recovery.
	store.mu.Lock()
	store.fail = nil
	store.mu.Unlock()
	_, err = c.Start("")
	require.NoError(t, err)
	c.RouteHeartRate("s1", 72)
	require.NoError(t, c.Stop())
	waitForState(t, c, StateIdle)
	assert.Equal(t, 1, store.count())
}

func TestPausedDataIsDroppedFromRecording(t *testing.T) {
	store := &memStore{}
	c := newTestCoordinator(store)
	c.AddSensor("s1", "Polar H10")

	_, err := c.Start("")
	require.NoError(t, err)
	c.RouteHeartRate("s1", 70)

	require.NoError(t, c.Pause())
	c.RouteHeartRate("s1", 120) // live only, not persisted
	c.RouteRRInterval("s1", 500)

	require.NoError(t, c.Resume())
	c.RouteHeartRate("s1", 71)

	require.NoError(t, c.Stop())
	waitForState(t, c, StateIdle)

	rec := store.last()
	require.NotNil(t, rec)
	require.Len(t, rec.SensorRecordings, 1)
	sr := rec.SensorRecordings[0]
	assert.Equal(t, 2, sr.Statistics.HeartRateSamples)
	assert.Equal(t, 0, sr.Statistics.RRIntervalSamples)
	assert.Equal(t, 71, sr.Statistics.MaxHeartRate)
}

func TestCancelDiscardsWithoutSaving(t *testing.T) {
	store := &memStore{}
	c := newTestCoordinator(store)
	c.AddSensor("s1", "Polar H10")

	_, err := c.Start("")
	require.NoError(t, err)
	c.RouteHeartRate("s1", 72)
	require.NoError(t, c.Cancel())

	assert.Equal(t, StateIdle, c.State().Kind)
	assert.Zero(t, store.count())

	// A new recording starts clean.
	_, err = c.Start("")
	require.NoError(t, err)
	sensors := c.Sensors()
	require.Len(t, sensors, 1)
	assert.Zero(t, sensors[0].HRSamples)
}

func TestEmptySensorIsDroppedFromSession(t *testing.T) {
	store := &memStore{}
	c := newTestCoordinator(store)
	c.AddSensor("s1", "with data")
	c.AddSensor("s2", "silent")

	_, err := c.Start("")
	require.NoError(t, err)
	c.RouteHeartRate("s1", 72)
	require.NoError(t, c.Stop())
	waitForState(t, c, StateIdle)

	rec := store.last()
	require.NotNil(t, rec)
	require.Len(t, rec.SensorRecordings, 1)
	assert.Equal(t, "s1", rec.SensorRecordings[0].SensorID)
}

func TestAddSensorSemantics(t *testing.T) {
	store := &memStore{}
	c := newTestCoordinator(store)

	// Adding while Idle registers the sensor but creates no collector and
	// does not touch the state machine.
	c.AddSensor("s1", "Polar H10")
	assert.Equal(t, StateIdle, c.State().Kind)

	// Duplicate add is a no-op.
	c.AddSensor("s1", "different name")
	sensors := c.Sensors()
	require.Len(t, sensors, 1)
	assert.Equal(t, "Polar H10", sensors[0].Name)

	// A sensor added mid-recording gets its own collector immediately.
	_, err := c.Start("")
	require.NoError(t, err)
	c.AddSensor("s2", "late joiner")
	c.RouteHeartRate("s1", 70)
	c.RouteHeartRate("s2", 90)

	require.NoError(t, c.Stop())
	waitForState(t, c, StateIdle)

	rec := store.last()
	require.NotNil(t, rec)
	assert.Len(t, rec.SensorRecordings, 2)
}

func TestRemoveSensorMidRecording(t *testing.T) {
	store := &memStore{}
	c := newTestCoordinator(store)
	c.AddSensor("s1", "keeper")
	c.AddSensor("s2", "dropper")

	_, err := c.Start("")
	require.NoError(t, err)
	c.RouteHeartRate("s1", 70)
	c.RouteHeartRate("s2", 90)
	c.RemoveSensor("s2")

	// Events for a removed sensor are ignored, not crashed on.
	c.RouteHeartRate("s2", 91)

	require.NoError(t, c.Stop())
	waitForState(t, c, StateIdle)

	rec := store.last()
	require.NotNil(t, rec)
	require.Len(t, rec.SensorRecordings, 1)
	assert.Equal(t, "s1", rec.SensorRecordings[0].SensorID)
}

func TestConcurrentRoutingAcrossSensors(t *testing.T) {
	store := &memStore{}
	c := newTestCoordinator(store)
	sensorIDs := []string{"a", "b", "c", "d"}
	for _, id := range sensorIDs {
		c.AddSensor(id, "sensor "+id)
	}

	_, err := c.Start("")
	require.NoError(t, err)

	const perSensor = 300
	var wg sync.WaitGroup
	for _, id := range sensorIDs {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			for i := 0; i < perSensor; i++ {
				c.RouteHeartRate(id, 60+i%40)
				c.RouteRRInterval(id, 700+i%300)
			}
		}(id)
	}
	wg.Wait()

	require.NoError(t, c.Stop())
	waitForState(t, c, StateIdle)

	rec := store.last()
	require.NotNil(t, rec)
	require.Len(t, rec.SensorRecordings, len(sensorIDs))
	for _, sr := range rec.SensorRecordings {
		assert.Equal(t, perSensor, sr.Statistics.HeartRateSamples, "sensor %s", sr.SensorID)
		assert.Equal(t, perSensor, sr.Statistics.RRIntervalSamples, "sensor %s", sr.SensorID)
	}
}

func TestCancelWhileSavingDropsResult(t *testing.T) {
	block := make(chan struct{})
	store := &blockingStore{unblock: block}
	c := New(Options{Store: store, ErrorReset: 50 * time.Millisecond})
	c.AddSensor("s1", "Polar H10")

	_, err := c.Start("")
	require.NoError(t, err)
	c.RouteHeartRate("s1", 72)
	require.NoError(t, c.Stop())
	waitForState(t, c, StateSaving)

	// Second stop while saving is rejected.
	var terr *TransitionError
	require.ErrorAs(t, c.Stop(), &terr)

	require.NoError(t, c.Cancel())
	assert.Equal(t, StateIdle, c.State().Kind)

	close(block)

	// The superseded save must not drag the machine back through
	// Saving/Idle transitions or error states.
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, StateIdle, c.State().Kind)
}

// blockingStore parks Save until unblocked.
type blockingStore struct {
	unblock chan struct{}
	saved   []*session.Recording
}

func (b *blockingStore) Save(rec *session.Recording) error {
	<-b.unblock
	b.saved = append(b.saved, rec)
	return nil
}
