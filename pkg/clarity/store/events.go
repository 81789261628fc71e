// Package store – events.go implements the events table: scheduled calls,
// meetings and reminders. The start timestamp is the sole ordering key for
// agenda views. Events are never mutated in place, only created and deleted.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Event types.
const (
	EventCall     = "call"
	EventMeeting  = "meeting"
	EventReminder = "reminder"
)

// DefaultReminderMinutes is the reminder lead time applied when an event
// carries none.
const DefaultReminderMinutes = 15

// ValidEventType reports whether t is a known event type.
func ValidEventType(t string) bool {
	return t == EventCall || t == EventMeeting || t == EventReminder
}

// Event is a scheduled call, meeting or standalone reminder.
type Event struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Type  string `json:"type"`

	StartAt time.Time `json:"start_at"`

	// ReminderMinutes is the lead time before StartAt at which the reminder
	// fires. Nil means "unset" and is treated as DefaultReminderMinutes.
	ReminderMinutes *int `json:"reminder_minutes"`

	Notes     string  `json:"notes"`
	ClientID  *string `json:"client_id"`
	CreatedBy string  `json:"created_by"`

	CreatedAt time.Time `json:"created_at"`
}

// EffectiveReminderMinutes returns the reminder lead time with the default
// applied.
func (e *Event) EffectiveReminderMinutes() int {
	if e.ReminderMinutes == nil {
		return DefaultReminderMinutes
	}
	return *e.ReminderMinutes
}

// EventWithClient pairs an event with its resolved client name ("" when the
// event has no client reference).
type EventWithClient struct {
	Event
	ClientName string `json:"client_name"`
}

// CreateEvent inserts a new event row.
func (s *Store) CreateEvent(ctx context.Context, e *Event) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if !ValidEventType(e.Type) {
		return fmt.Errorf("invalid event type %q", e.Type)
	}
	if e.Title == "" {
		return fmt.Errorf("event title is required")
	}
	if e.StartAt.IsZero() {
		return fmt.Errorf("event start time is required")
	}
	e.CreatedAt = time.Now()

	var reminderMinutes sql.NullInt64
	if e.ReminderMinutes != nil {
		reminderMinutes = sql.NullInt64{Int64: int64(*e.ReminderMinutes), Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO events (id, title, type, start_at, reminder_minutes, notes, client_id, created_by, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Title, e.Type, formatTime(e.StartAt), reminderMinutes,
		e.Notes, nullString(e.ClientID), e.CreatedBy, formatTime(e.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

// DeleteEvent removes an event permanently.
func (s *Store) DeleteEvent(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM events WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete event: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("event %q not found", id)
	}
	return nil
}

// ListEventsForDay returns all events whose start timestamp falls within the
// calendar day containing the given time (in its location), ascending by
// start time, each annotated with its client name when one is referenced.
func (s *Store) ListEventsForDay(ctx context.Context, day time.Time) ([]EventWithClient, error) {
	dayStart := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	dayEnd := dayStart.Add(24 * time.Hour)

	rows, err := s.db.QueryContext(ctx, `
		SELECT e.id, e.title, e.type, e.start_at, e.reminder_minutes, e.notes,
			e.client_id, e.created_by, e.created_at, COALESCE(c.name, '')
		FROM events e
		LEFT JOIN clients c ON c.id = e.client_id
		WHERE e.start_at >= ? AND e.start_at < ?
		ORDER BY e.start_at ASC`,
		formatTime(dayStart), formatTime(dayEnd))
	if err != nil {
		return nil, fmt.Errorf("list events for day: %w", err)
	}
	defer rows.Close()

	var result []EventWithClient
	for rows.Next() {
		var (
			e               EventWithClient
			startAt         string
			reminderMinutes sql.NullInt64
			clientID        sql.NullString
			createdAt       string
		)
		if err := rows.Scan(&e.ID, &e.Title, &e.Type, &startAt, &reminderMinutes,
			&e.Notes, &clientID, &e.CreatedBy, &createdAt, &e.ClientName); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e.StartAt = parseTime(startAt).In(day.Location())
		e.CreatedAt = parseTime(createdAt)
		e.ClientID = fromNull(clientID)
		if reminderMinutes.Valid {
			m := int(reminderMinutes.Int64)
			e.ReminderMinutes = &m
		}
		result = append(result, e)
	}
	return result, rows.Err()
}
