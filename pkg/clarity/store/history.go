// Package store – history.go implements the client history log: an
// append-only audit trail of interactions tied to a client. Entries are
// never updated or deleted.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// History entry types.
const (
	HistoryEmail    = "email"
	HistoryNote     = "note"
	HistoryIncident = "incident"
	HistoryEvent    = "event"
	HistoryCall     = "call"
	HistoryMeeting  = "meeting"
)

// ValidHistoryType reports whether t is a known history entry type.
func ValidHistoryType(t string) bool {
	switch t {
	case HistoryEmail, HistoryNote, HistoryIncident, HistoryEvent, HistoryCall, HistoryMeeting:
		return true
	}
	return false
}

// HistoryEntry is one append-only audit record for a client.
type HistoryEntry struct {
	ID        string    `json:"id"`
	ClientID  string    `json:"client_id"`
	Type      string    `json:"type"`
	Summary   string    `json:"summary"`
	VisibleTo string    `json:"visible_to"`
	CreatedAt time.Time `json:"created_at"`
}

// AppendHistory inserts a new history entry.
func (s *Store) AppendHistory(ctx context.Context, e *HistoryEntry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.ClientID == "" {
		return fmt.Errorf("history entry requires a client id")
	}
	if !ValidHistoryType(e.Type) {
		return fmt.Errorf("invalid history type %q", e.Type)
	}
	if e.VisibleTo == "" {
		e.VisibleTo = VisibleBoth
	}
	e.CreatedAt = time.Now()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO client_history (id, client_id, type, summary, visible_to, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		e.ID, e.ClientID, e.Type, e.Summary, e.VisibleTo, formatTime(e.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert history entry: %w", err)
	}
	return nil
}

// RecentHistory returns the most recent entries for a client, newest first.
func (s *Store) RecentHistory(ctx context.Context, clientID string, limit int) ([]HistoryEntry, error) {
	if limit <= 0 {
		limit = 5
	}
	return s.queryHistory(ctx, `
		WHERE client_id = ?
		ORDER BY created_at DESC, rowid DESC LIMIT ?`, clientID, limit)
}

// RecentIncidents returns the most recent incident entries across all
// clients, newest first.
func (s *Store) RecentIncidents(ctx context.Context, limit int) ([]HistoryEntry, error) {
	if limit <= 0 {
		limit = 5
	}
	return s.queryHistory(ctx, `
		WHERE type = 'incident'
		ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit)
}

// CountIncidents returns the total number of incident entries.
func (s *Store) CountIncidents(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM client_history WHERE type = 'incident'").Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count incidents: %w", err)
	}
	return n, nil
}

func (s *Store) queryHistory(ctx context.Context, clause string, args ...any) ([]HistoryEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, client_id, type, summary, visible_to, created_at
		FROM client_history `+clause, args...)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var result []HistoryEntry
	for rows.Next() {
		var (
			e         HistoryEntry
			createdAt string
		)
		if err := rows.Scan(&e.ID, &e.ClientID, &e.Type, &e.Summary, &e.VisibleTo, &createdAt); err != nil {
			return nil, fmt.Errorf("scan history entry: %w", err)
		}
		e.CreatedAt = parseTime(createdAt)
		result = append(result, e)
	}
	return result, rows.Err()
}
