// Package history provides SQLite-based persistence for the bounded session
// history. The whole history is stored as one version-tagged snapshot so that
// incompatible layouts from older builds are discarded on load instead of
// crashing the client.
package history

import (
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	_ "github.com/glebarez/go-sqlite"

	"github.com/whoknows-ai/whoknows-go/internal/chat"
	"github.com/whoknows-ai/whoknows-go/internal/logger"
)

// schemaVersion tags every saved snapshot. Bump it when the serialized shape
// of chat.Session changes.
const schemaVersion = 1

// Archive is the durable slot for session history. Only the history array is
// persisted; the current-session pointer, the error banner and pending flags
// are runtime state and never reach the database.
type Archive struct {
	db *sql.DB
}

// Open opens (or creates) the history database at path.
func Open(path string) (*Archive, error) {
	db, err := sql.Open("sqlite", "file:"+path+"?_busy_timeout=10000")
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS history_slot (
        id             INTEGER PRIMARY KEY CHECK (id = 1),
        schema_version INTEGER  NOT NULL,
        payload        TEXT     NOT NULL,
        saved_at       DATETIME NOT NULL
    );`); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Archive{db: db}, nil
}

// Save replaces the stored snapshot with the given history.
func (a *Archive) Save(sessions []chat.Session) error {
	payload, err := json.Marshal(sessions)
	if err != nil {
		return err
	}
	_, err = a.db.Exec(`INSERT INTO history_slot (id, schema_version, payload, saved_at)
        VALUES (1, ?, ?, ?)
        ON CONFLICT(id) DO UPDATE SET
            schema_version = excluded.schema_version,
            payload        = excluded.payload,
            saved_at       = excluded.saved_at;`,
		schemaVersion, string(payload), time.Now().UTC())
	return err
}

// Load returns the stored history. No snapshot yet, a snapshot written under
// a different schema version, or a corrupt payload all yield an empty history
// rather than an error.
func (a *Archive) Load() ([]chat.Session, error) {
	var (
		version int
		payload string
	)
	err := a.db.QueryRow(`SELECT schema_version, payload FROM history_slot WHERE id = 1;`).
		Scan(&version, &payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if version != schemaVersion {
		logger.L.Warn("discarding history snapshot with unsupported schema version",
			"stored", version, "supported", schemaVersion)
		return nil, nil
	}
	var sessions []chat.Session
	if err := json.Unmarshal([]byte(payload), &sessions); err != nil {
		logger.L.Warn("discarding corrupt history snapshot", "error", err)
		return nil, nil
	}
	return sessions, nil
}

// Close closes the underlying database.
func (a *Archive) Close() error {
	return a.db.Close()
}
