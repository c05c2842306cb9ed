// Package store persists the small local state the credential broker and
// pipeline rely on: device identity, cached credentials and the demo quota
// window. State lives in a single JSON file under the config directory;
// absent fields read back as zero values.
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"appforge/internal/fileutil"
)

const stateFile = "state.json"

// State is the persisted local state record.
type State struct {
	// DeviceID is the opaque identity issued by the registration endpoint.
	DeviceID string `json:"device_id,omitempty"`

	// DemoKey is the decrypted shared demo credential, cached until
	// cleared or replaced.
	DemoKey string `json:"demo_key,omitempty"`

	// Quota window: usage count and window start. The count only moves
	// forward after a confirmed successful use of the demo credential.
	QuotaCount       int       `json:"quota_count,omitempty"`
	QuotaWindowStart time.Time `json:"quota_window_start,omitempty"`
}

// Store is a mutex-guarded JSON file store. Every Update runs as a single
// read-modify-write transaction, so overlapping jobs cannot lose quota
// increments.
type Store struct {
	path string
	mu   sync.Mutex
}

// Open returns a store rooted at dir. The backing file is created lazily
// on first write.
func Open(dir string) *Store {
	return &Store{path: filepath.Join(dir, stateFile)}
}

// Path returns the backing file path.
func (s *Store) Path() string {
	return s.path
}

// Get returns the current state. A missing file yields the zero state.
func (s *Store) Get() (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read()
}

// Update applies fn to the current state and persists the result
// atomically. fn returning an error aborts without writing.
func (s *Store) Update(fn func(*State) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, err := s.read()
	if err != nil {
		return err
	}
	if err := fn(&state); err != nil {
		return err
	}
	return s.write(state)
}

func (s *Store) read() (State, error) {
	var state State
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return state, nil
		}
		return state, fmt.Errorf("failed to read state: %w", err)
	}
	if err := json.Unmarshal(data, &state); err != nil {
		return State{}, fmt.Errorf("failed to parse state file %s: %w", s.path, err)
	}
	return state, nil
}

func (s *Store) write(state State) error {
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return err
	}
	// 0600: the file holds credentials.
	return fileutil.AtomicWrite(s.path, data, 0600)
}
