package journal

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/roach88/ledger/internal/store"
)

// Entry is one journaled change.
type Entry struct {
	Seq     int64  `json:"seq"`
	EventID string `json:"event_id"`
	Source  string `json:"source"`
	Type    string `json:"type"`
	Action  string `json:"action"`
	At      int64  `json:"at"`
	Detail  string `json:"detail,omitempty"`
}

// Record appends c to the journal.
func (j *Journal) Record(ctx context.Context, c store.Change) error {
	_, err := j.db.ExecContext(ctx, `
		INSERT INTO changes (event_id, source, type, action, at, detail)
		VALUES (?, ?, ?, ?, ?, ?)
	`, c.EventID, c.Source, c.Type, c.Action, c.At, c.Detail)
	if err != nil {
		return fmt.Errorf("record change: %w", err)
	}
	return nil
}

// History returns every change of eventID in journal order.
//
// Returns an empty slice (not nil) if the event has no entries.
func (j *Journal) History(ctx context.Context, eventID string) ([]Entry, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT seq, event_id, source, type, action, at, detail
		FROM changes
		WHERE event_id = ?
		ORDER BY seq ASC
	`, eventID)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	return scanEntries(rows)
}

// Recent returns the newest limit changes across all events, newest first.
// A limit of zero or less returns everything.
func (j *Journal) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := j.db.QueryContext(ctx, `
		SELECT seq, event_id, source, type, action, at, detail
		FROM changes
		ORDER BY seq DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent: %w", err)
	}
	return scanEntries(rows)
}

func scanEntries(rows *sql.Rows) ([]Entry, error) {
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.Seq, &e.EventID, &e.Source, &e.Type, &e.Action, &e.At, &e.Detail); err != nil {
			return nil, fmt.Errorf("scan change: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate changes: %w", err)
	}
	return entries, nil
}
