// Package session remembers the last run between launcher invocations:
// the target used and where its workspace landed. Purely a convenience
// for the menu and for finding the previous report quickly.
package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// Session is the persisted launcher session state.
type Session struct {
	SessionID     string    `json:"session_id"`
	Target        string    `json:"target"`
	LastWorkspace string    `json:"last_workspace,omitempty"`
	LastModified  time.Time `json:"last_modified"`
}

// Manager handles session persistence.
type Manager struct {
	sessionFile string
}

// NewManager creates a session manager using the default file location.
func NewManager() *Manager {
	return &Manager{sessionFile: sessionFilePath()}
}

// sessionFilePath prefers an existing session in the current directory,
// then falls back to the home directory.
func sessionFilePath() string {
	if _, err := os.Stat(".cmtl_session"); err == nil {
		return ".cmtl_session"
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".cmtl_session")
	}
	return ".cmtl_session"
}

// Load reads the session from disk. A missing file is not an error; it
// returns (nil, nil).
func (m *Manager) Load() (*Session, error) {
	data, err := os.ReadFile(m.sessionFile)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("session: reading %s: %w", m.sessionFile, err)
	}

	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("session: parsing %s: %w", m.sessionFile, err)
	}
	return &s, nil
}

// Save writes the session to disk, stamping it with the current time
// and a session id if it does not have one yet.
func (m *Manager) Save(s *Session) error {
	if s.SessionID == "" {
		s.SessionID = uuid.NewString()
	}
	s.LastModified = time.Now()

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("session: marshaling: %w", err)
	}
	if err := os.WriteFile(m.sessionFile, data, 0644); err != nil {
		return fmt.Errorf("session: writing %s: %w", m.sessionFile, err)
	}
	return nil
}

// Clear removes the session file.
func (m *Manager) Clear() error {
	if err := os.Remove(m.sessionFile); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("session: clearing: %w", err)
	}
	return nil
}

// Path returns the session file location.
func (m *Manager) Path() string {
	return m.sessionFile
}
