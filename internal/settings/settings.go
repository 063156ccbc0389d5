// Package settings persists presentation preferences. These live outside the
// session store on purpose: the conversation core never reads them.
package settings

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/whoknows-ai/whoknows-go/internal/logger"
)

// ThemeMode selects the color scheme.
type ThemeMode string

const (
	ThemeLight  ThemeMode = "light"
	ThemeDark   ThemeMode = "dark"
	ThemeSystem ThemeMode = "system"
)

// Settings are the UI preferences shared across runs.
type Settings struct {
	ThemeMode        ThemeMode `json:"themeMode"`
	SidebarCollapsed bool      `json:"sidebarCollapsed"`
}

// Defaults returns the settings used before the user ever saved any.
func Defaults() Settings {
	return Settings{ThemeMode: ThemeSystem}
}

// ParseThemeMode validates user input for the theme command.
func ParseThemeMode(raw string) (ThemeMode, error) {
	switch mode := ThemeMode(strings.ToLower(strings.TrimSpace(raw))); mode {
	case ThemeLight, ThemeDark, ThemeSystem:
		return mode, nil
	}
	return "", fmt.Errorf("unknown theme mode: %q (want light, dark or system)", raw)
}

var (
	bucketSettings = []byte("settings")
	keyUI          = []byte("ui")
)

// Store is a bbolt-backed settings store.
type Store struct {
	db *bolt.DB
}

// Open opens (or creates) the settings database at path.
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, err
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketSettings)
		return err
	}); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// Load returns the stored settings, falling back to defaults when nothing has
// been saved yet or the stored payload is unreadable.
func (s *Store) Load() Settings {
	out := Defaults()
	err := s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(bucketSettings).Get(keyUI)
		if len(raw) == 0 {
			return nil
		}
		var stored Settings
		if err := json.Unmarshal(raw, &stored); err != nil {
			logger.L.Warn("stored settings are unreadable, using defaults", "error", err)
			return nil
		}
		out = stored
		return nil
	})
	if err != nil {
		logger.L.Warn("failed to read settings", "error", err)
		return Defaults()
	}
	if _, err := ParseThemeMode(string(out.ThemeMode)); err != nil {
		out.ThemeMode = ThemeSystem
	}
	return out
}

// Save writes the settings.
func (s *Store) Save(in Settings) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketSettings).Put(keyUI, payload)
	})
}

// Close releases the underlying database file.
func (s *Store) Close() error {
	return s.db.Close()
}
