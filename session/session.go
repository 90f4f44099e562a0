// Package session holds the signed-in user's backend token. Token issuance
// and verification happen on the server; this package only remembers the
// result and tells interested components when it changes.
package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"
)

var ErrNotAuthenticated = errors.New("not signed in")

type State struct {
	Token  string `json:"access_token"`
	Email  string `json:"user_email"`
	UserID string `json:"user_id"`
}

// Context is what components that talk to the backend need to know about the
// session. It is passed in explicitly; there is no package-level session.
type Context interface {
	IsAuthenticated() bool
	Token() string
	OnSessionChange(fn func(State))
}

// Store is a Context backed by a JSON file. A zero path keeps the session in
// memory only.
type Store struct {
	path string

	mu        sync.Mutex
	state     State
	listeners []func(State)
}

func NewStore(path string) *Store {
	return &Store{path: path}
}

// Load reads the session file. A missing file leaves the store signed out.
func (s *Store) Load() error {
	if s.path == "" {
		return nil
	}
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading session: %w", err)
	}
	var st State
	if err := json.Unmarshal(data, &st); err != nil {
		return fmt.Errorf("parsing session %s: %w", s.path, err)
	}
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
	return nil
}

func (s *Store) IsAuthenticated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Token != ""
}

func (s *Store) Token() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Token
}

func (s *Store) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Store) OnSessionChange(fn func(State)) {
	s.mu.Lock()
	s.listeners = append(s.listeners, fn)
	s.mu.Unlock()
}

// Set replaces the session, persists it, and notifies listeners.
func (s *Store) Set(st State) error {
	s.mu.Lock()
	s.state = st
	listeners := append([]func(State){}, s.listeners...)
	s.mu.Unlock()

	err := s.save(st)
	for _, fn := range listeners {
		fn(st)
	}
	return err
}

// Clear signs out and removes the session file.
func (s *Store) Clear() error {
	s.mu.Lock()
	wasSet := s.state != State{}
	s.state = State{}
	listeners := append([]func(State){}, s.listeners...)
	s.mu.Unlock()

	var err error
	if s.path != "" {
		if rmErr := os.Remove(s.path); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
			err = fmt.Errorf("removing session: %w", rmErr)
		}
	}
	if wasSet {
		for _, fn := range listeners {
			fn(State{})
		}
	}
	return err
}

func (s *Store) save(st State) error {
	if s.path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0700); err != nil {
		return fmt.Errorf("creating session dir: %w", err)
	}
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(s.path, data, 0600); err != nil {
		return fmt.Errorf("writing session: %w", err)
	}
	return nil
}

// ResolvePath returns the session file location: VOXDOC_SESSION_PATH if set,
// otherwise a file in the OS config directory.
func ResolvePath() (string, error) {
	if p := os.Getenv("VOXDOC_SESSION_PATH"); p != "" {
		return p, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}

	var base string
	switch runtime.GOOS {
	case "darwin":
		base = filepath.Join(home, "Library", "Application Support")
	case "windows":
		base = os.Getenv("APPDATA")
		if base == "" {
			base = filepath.Join(home, "AppData", "Roaming")
		}
	default:
		base = os.Getenv("XDG_CONFIG_HOME")
		if base == "" {
			base = filepath.Join(home, ".config")
		}
	}
	return filepath.Join(base, "voxdoc", "session.json"), nil
}
