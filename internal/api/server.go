// Package api implements the read-only recordings API that analysis clients
// consume over the local network. The server is deliberately hand-rolled on
// a raw TCP listener: it handles one connection at a time, parses only the
// request line, and closes the connection after every response. The python
// analysis client and the CSV tooling depend on this wire contract.
package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/urap-lab/pulse-engine/internal/session"
	"github.com/urap-lab/pulse-engine/internal/store"
)

// Store is the read-only slice of the session store the server needs.
type Store interface {
	LoadAll() ([]session.Summary, error)
	LoadByID(id string) (*session.Recording, error)
}

// maxRequestLine bounds how much of a request the server will read. Only
// the request line matters; headers and body are discarded.
const maxRequestLine = 8192

// Server serves GET /recordings and GET /recordings/{id} over HTTP/1.1.
type Server struct {
	store Store
	log   *log.Logger

	mu sync.Mutex
	ln net.Listener
}

// New creates a server over the given store.
func New(st Store, logger *log.Logger) *Server {
	return &Server{store: st, log: logger}
}

// ListenAndServe binds the address and serves connections sequentially
// until ctx is cancelled. Each connection is fully handled before the next
// accept; there is no keep-alive and no connection pooling.
func (s *Server) ListenAndServe(ctx context.Context, bind string) error {
	ln, err := net.Listen("tcp", bind)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.ln = ln
	s.mu.Unlock()

	s.log.Printf("api: recordings API listening on %s", ln.Addr())
	for _, u := range BaseURLs(s.Port()) {
		s.log.Printf("api: recordings reachable at %s/recordings", u)
	}

	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			s.log.Printf("api: accept error: %v", err)
			continue
		}
		s.handleConn(conn)
	}
}

// Port returns the bound TCP port, or 0 before ListenAndServe.
func (s *Server) Port() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return 0
	}
	if addr, ok := s.ln.Addr().(*net.TCPAddr); ok {
		return addr.Port
	}
	return 0
}

// handleConn reads the request line, routes it, writes one response, and
// closes. I/O errors just drop the connection; they never stop the listener.
func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()

	method, path, ok := readRequestLine(conn)
	if !ok {
		return
	}

	if method != "GET" {
		s.writeText(conn, 405, "Method Not Allowed", "method not allowed\n")
		return
	}

	switch {
	case path == "/recordings" || path == "/recordings/":
		s.serveList(conn)
	case strings.HasPrefix(path, "/recordings/"):
		s.serveRecording(conn, strings.TrimPrefix(path, "/recordings/"))
	default:
		s.writeText(conn, 404, "Not Found", "not found\n")
	}
}

// serveList responds with a pretty-printed JSON array of recording
// summaries. Keys are emitted sorted so exports diff cleanly.
func (s *Server) serveList(conn net.Conn) {
	summaries, err := s.store.LoadAll()
	if err != nil {
		s.log.Printf("api: list failed: %v", err)
		s.writeText(conn, 500, "Internal Server Error", "failed to load recordings\n")
		return
	}

	payload := make([]map[string]any, len(summaries))
	for i, sum := range summaries {
		payload[i] = summaryToMap(sum)
	}
	b, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		s.writeText(conn, 500, "Internal Server Error", "failed to encode recordings\n")
		return
	}
	s.writeResponse(conn, 200, "OK", "application/json", b)
}

func (s *Server) serveRecording(conn net.Conn, id string) {
	rec, err := s.store.LoadByID(id)
	if err != nil {
		if errors.Is(err, store.ErrRecordingNotFound) {
			s.writeText(conn, 404, "Not Found", "recording not found\n")
			return
		}
		s.log.Printf("api: load %s failed: %v", id, err)
		s.writeText(conn, 500, "Internal Server Error", "failed to load recording\n")
		return
	}

	b, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		s.writeText(conn, 500, "Internal Server Error", "failed to encode recording\n")
		return
	}
	s.writeResponse(conn, 200, "OK", "application/json", b)
}

// readRequestLine extracts the method and path from the first line of the
// request. The read is bounded; anything past the request line is ignored.
func readRequestLine(conn net.Conn) (method, path string, ok bool) {
	r := bufio.NewReaderSize(io.LimitReader(conn, maxRequestLine), maxRequestLine)
	line, err := r.ReadString('\n')
	if err != nil && line == "" {
		return "", "", false
	}

	fields := strings.Fields(strings.TrimSpace(line))
	if len(fields) < 2 {
		return "", "", false
	}

	// Strip any query string; the API has no query parameters.
	target := fields[1]
	if i := strings.IndexByte(target, '?'); i >= 0 {
		target = target[:i]
	}
	return fields[0], target, true
}

func (s *Server) writeText(conn net.Conn, status int, reason, body string) {
	s.writeResponse(conn, status, reason, "text/plain; charset=utf-8", []byte(body))
}

// writeResponse emits a complete HTTP/1.1 response. Every response carries
// Connection: close and a permissive CORS header so browser dashboards on
// other local hosts can read the API.
func (s *Server) writeResponse(conn net.Conn, status int, reason, contentType string, body []byte) {
	var b strings.Builder
	fmt.Fprintf(&b, "HTTP/1.1 %d %s\r\n", status, reason)
	fmt.Fprintf(&b, "Content-Type: %s\r\n", contentType)
	fmt.Fprintf(&b, "Content-Length: %d\r\n", len(body))
	b.WriteString("Connection: close\r\n")
	b.WriteString("Access-Control-Allow-Origin: *\r\n")
	b.WriteString("\r\n")

	_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	if _, err := io.WriteString(conn, b.String()); err != nil {
		return
	}
	_, _ = conn.Write(body)
}

// summaryToMap converts a summary to a map so json.MarshalIndent emits its
// keys in sorted order.
func summaryToMap(s session.Summary) map[string]any {
	return map[string]any{
		"id":               s.ID,
		"name":             s.Name,
		"startDate":        s.StartDate.UTC().Format(time.RFC3339),
		"endDate":          s.EndDate.UTC().Format(time.RFC3339),
		"duration":         s.Duration,
		"sensorCount":      s.SensorCount,
		"averageHeartRate": s.AverageHeartRate,
		"averageSDNN":      s.AverageSDNN,
		"averageRMSSD":     s.AverageRMSSD,
	}
}
