package coord

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// LocalState is the handful of device-scoped scalars that survive a process
// restart. The coordinator owns it exclusively and saves it at defined save
// points, never implicitly on every mutation.
type LocalState struct {
	PartnerID       string    `yaml:"partner_id,omitempty"`
	LastSentAt      time.Time `yaml:"last_heartbeat_sent_at,omitempty"`
	LastReceivedAt  time.Time `yaml:"last_heartbeat_received_at,omitempty"`
	PresenceEnabled bool      `yaml:"presence_enabled"`
	LastEncounterAt time.Time `yaml:"last_encounter_at,omitempty"`
}

// Persister stores LocalState across restarts.
type Persister interface {
	Load() (*LocalState, error)
	Save(*LocalState) error
}

// StateFile persists LocalState as a YAML file on disk.
type StateFile struct {
	path string
}

// NewStateFile creates a file-backed persister at the given path.
func NewStateFile(path string) *StateFile {
	return &StateFile{path: path}
}

// Load reads the persisted state. A missing file yields zero state.
func (f *StateFile) Load() (*LocalState, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return &LocalState{}, nil
		}
		return nil, fmt.Errorf("failed to read state file: %w", err)
	}

	var st LocalState
	if err := yaml.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("failed to parse state file: %w", err)
	}
	return &st, nil
}

// Save writes the state file atomically via a temp file rename.
func (f *StateFile) Save(st *LocalState) error {
	data, err := yaml.Marshal(st)
	if err != nil {
		return fmt.Errorf("failed to encode state: %w", err)
	}

	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("failed to write state file: %w", err)
	}
	if err := os.Rename(tmp, f.path); err != nil {
		return fmt.Errorf("failed to replace state file: %w", err)
	}
	return nil
}

// memPersister keeps LocalState in memory; used when no file is configured.
type memPersister struct {
	st LocalState
}

func (m *memPersister) Load() (*LocalState, error) {
	cp := m.st
	return &cp, nil
}

func (m *memPersister) Save(st *LocalState) error {
	m.st = *st
	return nil
}
