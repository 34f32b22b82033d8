// Package settings persists the user-editable application settings file.
package settings

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

type Mode string

const (
	ModeLocal Mode = "local"
	ModeCloud Mode = "cloud"
)

var ErrInvalidMode = errors.New("mode must be local or cloud")

type AI struct {
	Endpoint string `json:"endpoint,omitempty"`
	Token    string `json:"token,omitempty"`
}

type Settings struct {
	Mode Mode `json:"mode"`
	AI   AI   `json:"ai"`
}

// Public returns a copy safe to send to clients.
func (s Settings) Public() Settings {
	out := s
	out.AI.Token = ""
	return out
}

// TokenSet reports whether an AI token is stored.
func (s Settings) TokenSet() bool {
	return strings.TrimSpace(s.AI.Token) != ""
}

// Update is a partial settings write. A nil Token keeps the stored value,
// an explicit JSON null clears it.
type Update struct {
	Mode *Mode    `json:"mode"`
	AI   *AIPatch `json:"ai"`
}

type AIPatch struct {
	Endpoint *string       `json:"endpoint"`
	Token    OptionalToken `json:"token"`
}

// OptionalToken distinguishes an omitted field from an explicit null.
type OptionalToken struct {
	Set   bool
	Value *string
}

func (o *OptionalToken) UnmarshalJSON(data []byte) error {
	o.Set = true
	if string(data) == "null" {
		o.Value = nil
		return nil
	}
	var value string
	if err := json.Unmarshal(data, &value); err != nil {
		return err
	}
	o.Value = &value
	return nil
}

type Store struct {
	path    string
	mu      sync.RWMutex
	current Settings
}

// Open loads the settings file at path. A missing or unreadable file yields
// defaults; the file is only created on the first Save.
func Open(path string) *Store {
	s := &Store{path: path}
	s.current = readFile(path)
	return s
}

func (s *Store) Path() string {
	return s.path
}

func (s *Store) Get() Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

func (s *Store) Mode() Mode {
	return s.Get().Mode
}

// Apply merges an update into the stored settings and writes the file.
func (s *Store) Apply(update Update) (Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.current
	if update.Mode != nil {
		switch *update.Mode {
		case ModeLocal, ModeCloud:
			next.Mode = *update.Mode
		default:
			return Settings{}, ErrInvalidMode
		}
	}
	if update.AI != nil {
		if update.AI.Endpoint != nil {
			next.AI.Endpoint = strings.TrimSpace(*update.AI.Endpoint)
		}
		if update.AI.Token.Set {
			switch {
			case update.AI.Token.Value == nil:
				next.AI.Token = ""
			case strings.TrimSpace(*update.AI.Token.Value) != "":
				next.AI.Token = strings.TrimSpace(*update.AI.Token.Value)
			}
		}
	}

	if err := writeFile(s.path, next); err != nil {
		return Settings{}, err
	}
	s.current = next
	return next, nil
}

func readFile(path string) Settings {
	defaults := Settings{Mode: ModeLocal}
	raw, err := os.ReadFile(path)
	if err != nil {
		return defaults
	}
	var parsed Settings
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return defaults
	}
	if parsed.Mode != ModeCloud {
		parsed.Mode = ModeLocal
	}
	return parsed
}

func writeFile(path string, value Settings) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create settings dir: %w", err)
	}
	raw, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o600); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replace settings: %w", err)
	}
	return nil
}
