// Package store – reminder_state.go persists which event IDs have already
// produced a reminder, keyed by local day, so a process restart does not
// re-fire reminders the operator has already seen.
package store

import (
	"context"
	"fmt"
)

// MarkReminderFired records that an event's reminder fired on the given day.
// Insertion is idempotent per (day, event).
func (s *Store) MarkReminderFired(ctx context.Context, day, eventID string) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT OR IGNORE INTO reminder_fired (day, event_id) VALUES (?, ?)",
		day, eventID)
	if err != nil {
		return fmt.Errorf("mark reminder fired: %w", err)
	}
	return nil
}

// FiredReminderIDs returns the set of event IDs whose reminders already fired
// on the given day.
func (s *Store) FiredReminderIDs(ctx context.Context, day string) (map[string]bool, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT event_id FROM reminder_fired WHERE day = ?", day)
	if err != nil {
		return nil, fmt.Errorf("load fired reminders: %w", err)
	}
	defer rows.Close()

	fired := make(map[string]bool)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan fired reminder: %w", err)
		}
		fired[id] = true
	}
	return fired, rows.Err()
}

// ClearFiredRemindersBefore deletes firing state from days earlier than the
// given day key, allowing recurring daily events to fire again.
func (s *Store) ClearFiredRemindersBefore(ctx context.Context, day string) error {
	_, err := s.db.ExecContext(ctx,
		"DELETE FROM reminder_fired WHERE day < ?", day)
	if err != nil {
		return fmt.Errorf("clear fired reminders: %w", err)
	}
	return nil
}
