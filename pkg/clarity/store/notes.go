// Package store – notes.go implements the notes table: messages routed
// between the team and the CEO.
//
// Status vocabulary: the canonical three-state cycle is
// pending → seen → resolved → pending. Older data written with the legacy
// value "done" is normalized to "resolved" on read.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Note visibility values.
const (
	VisibleTeam = "team"
	VisibleCEO  = "ceo"
	VisibleBoth = "both"
)

// Note statuses.
const (
	NotePending  = "pending"
	NoteSeen     = "seen"
	NoteResolved = "resolved"
)

// ValidVisibility reports whether v is a known note visibility.
func ValidVisibility(v string) bool {
	return v == VisibleTeam || v == VisibleCEO || v == VisibleBoth
}

// NormalizeNoteStatus maps legacy status values onto the canonical
// three-state vocabulary.
func NormalizeNoteStatus(s string) string {
	switch s {
	case "done":
		return NoteResolved
	case NotePending, NoteSeen, NoteResolved:
		return s
	default:
		return NotePending
	}
}

// NextNoteStatus advances a status along the cycle
// pending → seen → resolved → pending.
func NextNoteStatus(s string) string {
	switch NormalizeNoteStatus(s) {
	case NotePending:
		return NoteSeen
	case NoteSeen:
		return NoteResolved
	default:
		return NotePending
	}
}

// Note is a message routed between team and CEO.
type Note struct {
	ID        string  `json:"id"`
	Text      string  `json:"text"`
	VisibleTo string  `json:"visible_to"`
	Status    string  `json:"status"`
	Target    *string `json:"target_employee"`
	ClientID  *string `json:"client_id"`

	DueAt *time.Time `json:"due_at"`

	CreatedBy string    `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
}

// NoteWithClient pairs a note with its resolved client name.
type NoteWithClient struct {
	Note
	ClientName string `json:"client_name"`
}

// CreateNote inserts a new note with status pending.
func (s *Store) CreateNote(ctx context.Context, n *Note) error {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.Text == "" {
		return fmt.Errorf("note text is required")
	}
	if !ValidVisibility(n.VisibleTo) {
		return fmt.Errorf("invalid note visibility %q", n.VisibleTo)
	}
	if n.Status == "" {
		n.Status = NotePending
	}
	n.CreatedAt = time.Now()

	var dueAt sql.NullString
	if n.DueAt != nil {
		dueAt = sql.NullString{String: formatTime(*n.DueAt), Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO notes (id, text, visible_to, status, target_employee, client_id, due_at, created_by, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		n.ID, n.Text, n.VisibleTo, n.Status, nullString(n.Target),
		nullString(n.ClientID), dueAt, n.CreatedBy, formatTime(n.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert note: %w", err)
	}
	return nil
}

// ListCEONotes returns the most recent pending notes visible to the CEO
// (visibility ceo or both), newest first, capped at limit.
func (s *Store) ListCEONotes(ctx context.Context, limit int) ([]NoteWithClient, error) {
	if limit <= 0 {
		limit = 10
	}
	return s.listNotes(ctx, `
		WHERE n.visible_to IN ('ceo','both') AND n.status IN ('pending')
		ORDER BY n.created_at DESC, n.rowid DESC LIMIT ?`, limit)
}

// ListTeamNotes returns the most recent team-visible notes, newest first.
func (s *Store) ListTeamNotes(ctx context.Context, limit int) ([]NoteWithClient, error) {
	if limit <= 0 {
		limit = 10
	}
	return s.listNotes(ctx, `
		WHERE n.visible_to IN ('team','both')
		ORDER BY n.created_at DESC, n.rowid DESC LIMIT ?`, limit)
}

func (s *Store) listNotes(ctx context.Context, clause string, args ...any) ([]NoteWithClient, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT n.id, n.text, n.visible_to, n.status, n.target_employee,
			n.client_id, n.due_at, n.created_by, n.created_at, COALESCE(c.name, '')
		FROM notes n
		LEFT JOIN clients c ON c.id = n.client_id `+clause, args...)
	if err != nil {
		return nil, fmt.Errorf("list notes: %w", err)
	}
	defer rows.Close()

	var result []NoteWithClient
	for rows.Next() {
		var (
			n         NoteWithClient
			target    sql.NullString
			clientID  sql.NullString
			dueAt     sql.NullString
			createdAt string
		)
		if err := rows.Scan(&n.ID, &n.Text, &n.VisibleTo, &n.Status, &target,
			&clientID, &dueAt, &n.CreatedBy, &createdAt, &n.ClientName); err != nil {
			return nil, fmt.Errorf("scan note: %w", err)
		}
		n.Status = NormalizeNoteStatus(n.Status)
		n.Target = fromNull(target)
		n.ClientID = fromNull(clientID)
		if dueAt.Valid {
			t := parseTime(dueAt.String)
			n.DueAt = &t
		}
		n.CreatedAt = parseTime(createdAt)
		result = append(result, n)
	}
	return result, rows.Err()
}

// AdvanceNoteStatus moves a note one step along the status cycle and returns
// the new status.
func (s *Store) AdvanceNoteStatus(ctx context.Context, id string) (string, error) {
	var current string
	err := s.db.QueryRowContext(ctx, "SELECT status FROM notes WHERE id = ?", id).Scan(&current)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("note %q not found", id)
	}
	if err != nil {
		return "", fmt.Errorf("read note status: %w", err)
	}

	next := NextNoteStatus(current)
	if _, err := s.db.ExecContext(ctx, "UPDATE notes SET status = ? WHERE id = ?", next, id); err != nil {
		return "", fmt.Errorf("advance note status: %w", err)
	}
	return next, nil
}

// MarkNoteSeen sets a pending note to seen. Notes already seen or resolved
// are left untouched.
func (s *Store) MarkNoteSeen(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE notes SET status = 'seen' WHERE id = ? AND status = 'pending'", id)
	if err != nil {
		return fmt.Errorf("mark note seen: %w", err)
	}
	return nil
}
