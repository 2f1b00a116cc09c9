// Package store is the local fetch journal: an audit log of every remote
// call with the raw response bodies kept compressed and deduplicated.
// Nothing reads it back to serve requests.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"

	_ "modernc.org/sqlite"

	"github.com/lox/rizz/internal/remote"
)

type Store struct {
	db *sql.DB
}

var _ remote.Recorder = (*Store)(nil)

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Open opens and migrates the journal database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}
	db.Exec("PRAGMA journal_mode=WAL")
	db.Exec("PRAGMA busy_timeout=5000")

	s := New(db)
	if err := s.Migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate journal: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// RecordCall journals a completed remote call. Successful responses also
// keep their body as a raw payload.
func (s *Store) RecordCall(ctx context.Context, call remote.Call) error {
	run := FetchRun{
		RequestID:         call.RequestID,
		Operation:         string(call.Operation),
		Method:            call.Method,
		URL:               remote.RedactURL(call.URL),
		StartedAt:         call.StartedAt,
		FinishedAt:        sql.NullTime{Time: call.FinishedAt, Valid: !call.FinishedAt.IsZero()},
		Status:            remote.StatusLabel(call.Err),
		Success:           call.Err == nil,
		HTTPStatus:        sql.NullInt64{Int64: int64(call.StatusCode), Valid: call.StatusCode != 0},
		ResponseSizeBytes: sql.NullInt64{Int64: int64(len(call.Body)), Valid: call.Body != nil},
	}
	if call.Err != nil {
		run.ErrorMessage = sql.NullString{String: call.Err.Error(), Valid: true}
	}

	id, err := s.InsertFetchRun(ctx, run)
	if err != nil {
		return fmt.Errorf("insert fetch run: %w", err)
	}
	if !run.Success || len(call.Body) == 0 {
		return nil
	}
	body := call.Body
	if call.Operation == remote.OpListLocations || call.Operation == remote.OpUpdateLocations {
		redacted, ok := redactSettingsPayload(body)
		if !ok {
			log.Printf("store: %s %s body is not a settings document, not journaled", run.Operation, run.RequestID)
			return nil
		}
		body = redacted
	}
	if _, err := s.StoreRawPayload(ctx, &id, run.Operation, body); err != nil {
		return err
	}
	log.Printf("store: journaled %s %s (%d bytes)", run.Operation, run.RequestID, len(body))
	return nil
}

// settingsSecrets are the credential fields of the settings record.
var settingsSecrets = map[string]string{
	"openWeather": "appId",
	"geoapify":    "apiKey",
}

// redactSettingsPayload replaces the API keys of a settings envelope. Other
// fields are kept as received.
func redactSettingsPayload(body []byte) ([]byte, bool) {
	var doc map[string]any
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, false
	}
	if rec, ok := doc["record"].(map[string]any); ok {
		for section, key := range settingsSecrets {
			m, ok := rec[section].(map[string]any)
			if !ok {
				continue
			}
			if _, ok := m[key]; ok {
				m[key] = "REDACTED"
			}
		}
	}
	out, err := json.Marshal(doc)
	if err != nil {
		return nil, false
	}
	return out, true
}
