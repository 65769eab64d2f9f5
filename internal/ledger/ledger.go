// Package ledger provides the append-only journal of light activity: every
// command pushed to the bridge and every tick of a repeated effect.
package ledger

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/lightfx/internal/eventbus"
)

// EventType represents the type of event in the ledger
type EventType string

const (
	EventPush         EventType = "push"
	EventPushFailed   EventType = "push_failed"
	EventTick         EventType = "tick"
	EventChainStopped EventType = "chain_stopped"
)

// Entry represents a single event in the ledger
type Entry struct {
	ID        int64
	EventType EventType
	Timestamp time.Time
	RunID     string // Repeater run, empty for one-shot commands
	Light     string // Pushed light, push events only
	Payload   map[string]any
}

// Ledger provides append-only event logging
type Ledger struct {
	db  *sql.DB
	now func() time.Time
}

// New creates a new Ledger using the provided database connection
func New(db *sql.DB) *Ledger {
	return &Ledger{db: db, now: time.Now}
}

// Append adds a new event to the ledger
func (l *Ledger) Append(eventType EventType, runID, light string, payload map[string]any) error {
	var payloadJSON []byte
	var err error

	if payload != nil {
		payloadJSON, err = json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal payload: %w", err)
		}
	}

	_, err = l.db.Exec(
		`INSERT INTO event_ledger (event_type, timestamp, run_id, light, payload) VALUES (?, ?, ?, ?, ?)`,
		string(eventType), l.now().UTC().UnixMilli(), runID, light, string(payloadJSON),
	)
	return err
}

// Recent returns the latest entries, newest first
func (l *Ledger) Recent(limit int) ([]*Entry, error) {
	rows, err := l.db.Query(`
		SELECT id, event_type, timestamp, run_id, light, payload
		FROM event_ledger
		ORDER BY timestamp DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return l.scanEntries(rows)
}

// GetByType returns entries filtered by event type, newest first
func (l *Ledger) GetByType(eventType EventType, limit int) ([]*Entry, error) {
	rows, err := l.db.Query(`
		SELECT id, event_type, timestamp, run_id, light, payload
		FROM event_ledger
		WHERE event_type = ?
		ORDER BY timestamp DESC, id DESC
		LIMIT ?
	`, string(eventType), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return l.scanEntries(rows)
}

// GetByRun returns the entries of one repeater run in order
func (l *Ledger) GetByRun(runID string) ([]*Entry, error) {
	rows, err := l.db.Query(`
		SELECT id, event_type, timestamp, run_id, light, payload
		FROM event_ledger
		WHERE run_id = ?
		ORDER BY timestamp ASC, id ASC
	`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return l.scanEntries(rows)
}

// DeleteOlderThan removes entries older than the specified duration (retention policy)
func (l *Ledger) DeleteOlderThan(retention time.Duration) (int64, error) {
	cutoff := l.now().Add(-retention).UTC().UnixMilli()
	result, err := l.db.Exec(`
		DELETE FROM event_ledger WHERE timestamp < ?
	`, cutoff)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// Record returns a bus handler that appends push, tick and chain_stopped events
func (l *Ledger) Record() eventbus.Handler {
	return func(e eventbus.Event) {
		eventType := EventType(e.Type)
		if e.Type == eventbus.EventTypePush && e.Str("error") != "" {
			eventType = EventPushFailed
		}

		payload := make(map[string]any, len(e.Data))
		for k, v := range e.Data {
			if k == "run_id" || k == "light" {
				continue
			}
			payload[k] = v
		}

		if err := l.Append(eventType, e.Str("run_id"), e.Str("light"), payload); err != nil {
			log.Error().Err(err).Str("event_type", string(e.Type)).Msg("Failed to append to journal")
		}
	}
}

func (l *Ledger) scanEntries(rows *sql.Rows) ([]*Entry, error) {
	var entries []*Entry
	for rows.Next() {
		var entry Entry
		var payloadStr, runID, light sql.NullString
		var timestamp int64

		err := rows.Scan(&entry.ID, &entry.EventType, &timestamp, &runID, &light, &payloadStr)
		if err != nil {
			return nil, err
		}

		entry.Timestamp = time.UnixMilli(timestamp).UTC()
		if runID.Valid {
			entry.RunID = runID.String
		}
		if light.Valid {
			entry.Light = light.String
		}

		if payloadStr.Valid && payloadStr.String != "" {
			entry.Payload = make(map[string]any)
			if err := json.Unmarshal([]byte(payloadStr.String), &entry.Payload); err != nil {
				return nil, fmt.Errorf("failed to unmarshal payload: %w", err)
			}
		}

		entries = append(entries, &entry)
	}

	return entries, rows.Err()
}
