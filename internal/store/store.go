// Package store persists finalized recordings as JSON files under the
// configured data root. Files are written atomically (temp file + rename)
// so a crash mid-save never leaves a half-written recording for the API
// server to trip over.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"syscall"

	"github.com/urap-lab/pulse-engine/internal/session"
)

// Sentinel errors surfaced to the API and control layers.
var (
	ErrRecordingNotFound = errors.New("recording not found")
	ErrStorageFull       = errors.New("storage full")
)

const filePrefix = "recording_"

// FileStore saves and loads recordings under a single directory.
// All methods are safe for concurrent use; reads take no lock at all since
// finalized files never change.
type FileStore struct {
	root string
	log  *log.Logger
}

// NewFileStore creates the data root if needed.
func NewFileStore(root string, logger *log.Logger) (*FileStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create data root: %w", err)
	}
	return &FileStore{root: root, log: logger}, nil
}

// Root returns the data directory.
func (s *FileStore) Root() string { return s.root }

// Save writes a finalized recording. ENOSPC is mapped to ErrStorageFull so
// the coordinator can report it distinctly.
func (s *FileStore) Save(rec *session.Recording) error {
	if err := validateID(rec.ID); err != nil {
		return err
	}

	b, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("encode recording: %w", err)
	}

	final := s.path(rec.ID)
	tmp := final + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return mapWriteError(err)
	}
	if err := os.Rename(tmp, final); err != nil {
		_ = os.Remove(tmp)
		return mapWriteError(err)
	}

	if s.log != nil {
		s.log.Printf("store: saved %s (%d bytes)", filepath.Base(final), len(b))
	}
	return nil
}

// LoadAll returns summaries for every stored recording, newest first.
// Unreadable files are skipped with a log line rather than failing the
// whole listing.
func (s *FileStore) LoadAll() ([]session.Summary, error) {
	matches, err := filepath.Glob(filepath.Join(s.root, filePrefix+"*.json"))
	if err != nil {
		return nil, err
	}

	summaries := make([]session.Summary, 0, len(matches))
	for _, m := range matches {
		rec, err := readRecording(m)
		if err != nil {
			if s.log != nil {
				s.log.Printf("store: skipping unreadable %s: %v", filepath.Base(m), err)
			}
			continue
		}
		summaries = append(summaries, rec.Summarize())
	}

	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].StartDate.After(summaries[j].StartDate)
	})
	return summaries, nil
}

// LoadByID returns the full recording, or ErrRecordingNotFound.
func (s *FileStore) LoadByID(id string) (*session.Recording, error) {
	if err := validateID(id); err != nil {
		return nil, ErrRecordingNotFound
	}
	rec, err := readRecording(s.path(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrRecordingNotFound
		}
		return nil, err
	}
	return rec, nil
}

// Delete removes a stored recording.
func (s *FileStore) Delete(id string) error {
	if err := validateID(id); err != nil {
		return ErrRecordingNotFound
	}
	if err := os.Remove(s.path(id)); err != nil {
		if os.IsNotExist(err) {
			return ErrRecordingNotFound
		}
		return err
	}
	if s.log != nil {
		s.log.Printf("store: deleted recording %s", id)
	}
	return nil
}

func (s *FileStore) path(id string) string {
	return filepath.Join(s.root, filePrefix+id+".json")
}

func readRecording(path string) (*session.Recording, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var rec session.Recording
	if err := json.Unmarshal(b, &rec); err != nil {
		return nil, fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	return &rec, nil
}

// validateID rejects ids that could escape the data root.
func validateID(id string) error {
	if id == "" || strings.ContainsAny(id, "/\\") || strings.Contains(id, "..") {
		return fmt.Errorf("invalid recording id %q", id)
	}
	return nil
}

func mapWriteError(err error) error {
	if errors.Is(err, syscall.ENOSPC) {
		return fmt.Errorf("%w: %v", ErrStorageFull, err)
	}
	return err
}
