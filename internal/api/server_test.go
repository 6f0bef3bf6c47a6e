package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/urap-lab/pulse-engine/internal/session"
	"github.com/urap-lab/pulse-engine/internal/store"
)

// fakeStore serves canned data to the server under test.
type fakeStore struct {
	summaries []session.Summary
	byID      map[string]*session.Recording
	fail      error
}

func (f *fakeStore) LoadAll() ([]session.Summary, error) {
	if f.fail != nil {
		return nil, f.fail
	}
	return f.summaries, nil
}

func (f *fakeStore) LoadByID(id string) (*session.Recording, error) {
	if f.fail != nil {
		return nil, f.fail
	}
	rec, ok := f.byID[id]
	if !ok {
		return nil, store.ErrRecordingNotFound
	}
	return rec, nil
}

// startServer runs the server on an ephemeral port and returns its base URL.
func startServer(t *testing.T, st Store) string {
	t.Helper()

	srv := New(st, log.New(io.Discard, "", 0))
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	done := make(chan error, 1)
	go func() { done <- srv.ListenAndServe(ctx, "127.0.0.1:0") }()

	deadline := time.Now().Add(2 * time.Second)
	for srv.Port() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	port := srv.Port()
	require.NotZero(t, port, "server never bound")

	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Error("server did not shut down")
		}
	})

	return "http://127.0.0.1:" + strconv.Itoa(port)
}

func testStore() *fakeStore {
	start := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	rec := &session.Recording{
		ID:        "abc",
		Name:      "morning",
		StartDate: start,
		EndDate:   start.Add(10 * time.Minute),
		SensorRecordings: []session.SensorRecording{
			{SensorID: "s1", SensorName: "Polar H10",
				HeartRateData: []session.HeartRatePoint{{Timestamp: start, Value: 72}},
				Statistics:    session.Statistics{AverageHeartRate: 72, SDNN: 7.1, RMSSD: 14.4}},
		},
	}
	return &fakeStore{
		summaries: []session.Summary{rec.Summarize()},
		byID:      map[string]*session.Recording{"abc": rec},
	}
}

func TestListRecordings(t *testing.T) {
	base := startServer(t, testStore())

	resp, err := http.Get(base + "/recordings")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "close", resp.Header.Get("Connection"))

	var got []map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	require.Len(t, got, 1)
	assert.Equal(t, "abc", got[0]["id"])
	assert.Equal(t, "morning", got[0]["name"])
	assert.Equal(t, 600.0, got[0]["duration"])
	assert.Equal(t, 1.0, got[0]["sensorCount"])
	assert.Equal(t, 72.0, got[0]["averageHeartRate"])
}

func TestGetRecordingByID(t *testing.T) {
	base := startServer(t, testStore())

	resp, err := http.Get(base + "/recordings/abc")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	var rec session.Recording
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&rec))
	assert.Equal(t, "abc", rec.ID)
	require.Len(t, rec.SensorRecordings, 1)
	assert.Equal(t, "s1", rec.SensorRecordings[0].SensorID)
}

func TestGetUnknownRecording(t *testing.T) {
	base := startServer(t, testStore())

	resp, err := http.Get(base + "/recordings/nope")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(body), "not found")
}

func TestUnknownPath(t *testing.T) {
	base := startServer(t, testStore())

	resp, err := http.Get(base + "/status")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestMethodNotAllowed(t *testing.T) {
	base := startServer(t, testStore())

	resp, err := http.Post(base+"/recordings", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestStorageFailureReturns500(t *testing.T) {
	st := testStore()
	st.fail = errors.New("backend down")
	base := startServer(t, st)

	resp, err := http.Get(base + "/recordings")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)

	resp2, err := http.Get(base + "/recordings/abc")
	require.NoError(t, err)
	defer resp2.Body.Close()
	assert.Equal(t, http.StatusInternalServerError, resp2.StatusCode)
}

func TestSequentialConnections(t *testing.T) {
	base := startServer(t, testStore())

	// The server accepts one connection at a time; a burst of sequential
	// requests must all complete.
	for i := 0; i < 10; i++ {
		resp, err := http.Get(base + "/recordings")
		require.NoError(t, err)
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	}
}

// logSink collects log output written from the server goroutine.
type logSink struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (s *logSink) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.Write(p)
}

func (s *logSink) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.String()
}

func TestListenLogsBoundAddress(t *testing.T) {
	sink := &logSink{}
	srv := New(testStore(), log.New(sink, "", 0))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- srv.ListenAndServe(ctx, "127.0.0.1:0") }()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	// The listening line is written only after the socket is bound, so it
	// always carries the real ephemeral port rather than 0.
	deadline := time.Now().Add(2 * time.Second)
	for !strings.Contains(sink.String(), "listening on") && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	out := sink.String()
	require.Contains(t, out, "listening on")
	port := srv.Port()
	require.NotZero(t, port)
	assert.Contains(t, out, ":"+strconv.Itoa(port))
	assert.NotContains(t, out, ":0/recordings")
}

func TestRawRequestLineParsing(t *testing.T) {
	base := startServer(t, testStore())
	addr := base[len("http://"):]

	// A minimal raw request with no headers at all still gets a response.
	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte("GET /recordings HTTP/1.1\r\n\r\n"))
	require.NoError(t, err)

	buf, err := io.ReadAll(conn)
	require.NoError(t, err)
	assert.Contains(t, string(buf), "HTTP/1.1 200 OK")
	assert.Contains(t, string(buf), "Connection: close")
}
