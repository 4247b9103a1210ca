package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"

	"AdobeDigest/internal/domain"
	"AdobeDigest/internal/ports"
)

// JSONStore keeps the tracking document in a single JSON file.
// Updates hold an exclusive lock file and replace the document via temp file + rename.
type JSONStore struct {
	path string
	lock *flock.Flock
	now  func() time.Time
}

var _ ports.TrackingStore = (*JSONStore)(nil)

// NewJSONStore targets path; the lock lives next to it as path + ".lock".
func NewJSONStore(path string) *JSONStore {
	return &JSONStore{
		path: path,
		lock: flock.New(path + ".lock"),
		now:  time.Now,
	}
}

// Load reads the document; a missing file is an empty state.
func (s *JSONStore) Load(_ context.Context) (domain.TrackingState, error) {
	return s.read()
}

// Update applies fn to the current document and persists the result atomically.
func (s *JSONStore) Update(_ context.Context, fn func(*domain.TrackingState) error) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create tracking dir: %w", err)
	}

	ok, err := s.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire tracking lock: %w", err)
	}
	if !ok {
		return fmt.Errorf("tracking file %s is locked by another run", s.path)
	}
	defer func() { _ = s.lock.Unlock() }()

	state, err := s.read()
	if err != nil {
		return err
	}
	if err := fn(&state); err != nil {
		return err
	}
	state.LastUpdated = s.now().UTC()

	return s.write(state)
}

func (s *JSONStore) read() (domain.TrackingState, error) {
	var state domain.TrackingState

	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return state, nil
		}
		return state, fmt.Errorf("read tracking file: %w", err)
	}
	if len(data) == 0 {
		return state, nil
	}

	if err := json.Unmarshal(data, &state); err != nil {
		return state, fmt.Errorf("parse tracking file: %w", err)
	}
	return state, nil
}

func (s *JSONStore) write(state domain.TrackingState) error {
	if state.IDs == nil {
		state.IDs = []string{}
	}

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal tracking state: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(append(data, '\n')); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("close temp file: %w", err)
	}

	if err := os.Rename(tmpPath, s.path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}
