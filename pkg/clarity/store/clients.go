// Package store – clients.go implements the clients table: the businesses
// being tracked on the executive dashboard, each carrying a four-value
// severity status (red > orange > yellow > green).
package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Client severity statuses, ordered from most to least urgent.
const (
	StatusRed    = "red"
	StatusOrange = "orange"
	StatusYellow = "yellow"
	StatusGreen  = "green"
)

// severityRank maps a status to its sort position (red first).
var severityRank = map[string]int{
	StatusRed:    0,
	StatusOrange: 1,
	StatusYellow: 2,
	StatusGreen:  3,
}

// ValidStatus reports whether s is one of the four severity values.
func ValidStatus(s string) bool {
	_, ok := severityRank[s]
	return ok
}

// Client is a business entity tracked on the dashboard.
type Client struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Status      string `json:"status"`
	ContactName string `json:"contact_name"`
	Phone       string `json:"phone"`
	Email       string `json:"email"`
	Address     string `json:"address"`

	ProjectType  string `json:"project_type"`
	Description  string `json:"description"`
	Budget       string `json:"budget"`
	StartDate    string `json:"start_date"`
	EndDate      string `json:"end_date"`
	Manager      string `json:"manager"`
	PendingTasks string `json:"pending_tasks"`

	// Incidents is nil when never set; an empty string is a cleared value.
	// Both render as "no incidents" but the distinction is preserved.
	Incidents *string `json:"incidents"`

	LastContact string    `json:"last_contact"`
	UpdatedAt   time.Time `json:"updated_at"`
}

const clientColumns = `id, name, status, contact_name, phone, email, address,
	project_type, description, budget, start_date, end_date, manager,
	pending_tasks, incidents, last_contact, updated_at`

// CreateClient inserts a new client row. A missing ID is generated; a missing
// status defaults to green.
func (s *Store) CreateClient(ctx context.Context, c *Client) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.Status == "" {
		c.Status = StatusGreen
	}
	if !ValidStatus(c.Status) {
		return fmt.Errorf("invalid client status %q", c.Status)
	}
	c.UpdatedAt = time.Now()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO clients (`+clientColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.Name, c.Status, c.ContactName, c.Phone, c.Email, c.Address,
		c.ProjectType, c.Description, c.Budget, c.StartDate, c.EndDate, c.Manager,
		c.PendingTasks, nullString(c.Incidents), c.LastContact, formatTime(c.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert client: %w", err)
	}
	return nil
}

// UpdateClient rewrites all mutable fields of an existing client.
func (s *Store) UpdateClient(ctx context.Context, c *Client) error {
	if !ValidStatus(c.Status) {
		return fmt.Errorf("invalid client status %q", c.Status)
	}
	c.UpdatedAt = time.Now()

	res, err := s.db.ExecContext(ctx, `
		UPDATE clients SET name = ?, status = ?, contact_name = ?, phone = ?,
			email = ?, address = ?, project_type = ?, description = ?, budget = ?,
			start_date = ?, end_date = ?, manager = ?, pending_tasks = ?,
			incidents = ?, last_contact = ?, updated_at = ?
		WHERE id = ?`,
		c.Name, c.Status, c.ContactName, c.Phone, c.Email, c.Address,
		c.ProjectType, c.Description, c.Budget, c.StartDate, c.EndDate, c.Manager,
		c.PendingTasks, nullString(c.Incidents), c.LastContact, formatTime(c.UpdatedAt),
		c.ID,
	)
	if err != nil {
		return fmt.Errorf("update client: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("client %q not found", c.ID)
	}
	return nil
}

// DeleteClient removes a client permanently. There is no soft-delete.
func (s *Store) DeleteClient(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM clients WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete client: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("client %q not found", id)
	}
	return nil
}

// GetClient fetches a client by ID.
func (s *Store) GetClient(ctx context.Context, id string) (*Client, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+clientColumns+" FROM clients WHERE id = ?", id)
	return scanClient(row)
}

// FindClientByName resolves a client by case-insensitive partial name match.
// Returns the first hit in insertion order, or an error when nothing matches.
func (s *Store) FindClientByName(ctx context.Context, name string) (*Client, error) {
	pattern := "%" + strings.ToLower(strings.TrimSpace(name)) + "%"
	row := s.db.QueryRowContext(ctx,
		"SELECT "+clientColumns+" FROM clients WHERE lower(name) LIKE ? ORDER BY rowid LIMIT 1",
		pattern)
	return scanClient(row)
}

// ListClients returns all clients ordered by severity (red first), ties
// broken by insertion order.
func (s *Store) ListClients(ctx context.Context) ([]Client, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+clientColumns+` FROM clients
		ORDER BY CASE status
			WHEN 'red' THEN 0 WHEN 'orange' THEN 1 WHEN 'yellow' THEN 2 ELSE 3
		END, rowid`)
	if err != nil {
		return nil, fmt.Errorf("list clients: %w", err)
	}
	defer rows.Close()

	var result []Client
	for rows.Next() {
		c, err := scanClientRows(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *c)
	}
	return result, rows.Err()
}

// ListClientsByStatus returns clients whose status is in the given set,
// ordered by severity.
func (s *Store) ListClientsByStatus(ctx context.Context, statuses ...string) ([]Client, error) {
	all, err := s.ListClients(ctx)
	if err != nil {
		return nil, err
	}
	want := make(map[string]bool, len(statuses))
	for _, st := range statuses {
		want[st] = true
	}
	var result []Client
	for _, c := range all {
		if want[c.Status] {
			result = append(result, c)
		}
	}
	return result, nil
}

// CountClientsByStatus returns the number of clients in each status bucket.
// All four buckets are present even when zero.
func (s *Store) CountClientsByStatus(ctx context.Context) (map[string]int, error) {
	counts := map[string]int{StatusRed: 0, StatusOrange: 0, StatusYellow: 0, StatusGreen: 0}

	rows, err := s.db.QueryContext(ctx, "SELECT status, COUNT(*) FROM clients GROUP BY status")
	if err != nil {
		return nil, fmt.Errorf("count clients: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan client count: %w", err)
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

// MarkClientReviewed records a review touch: only the last-contact note and
// the updated-at timestamp change.
func (s *Store) MarkClientReviewed(ctx context.Context, id, lastContact string) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE clients SET last_contact = ?, updated_at = ? WHERE id = ?",
		lastContact, formatTime(time.Now()), id)
	if err != nil {
		return fmt.Errorf("mark client reviewed: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("client %q not found", id)
	}
	return nil
}

// ---------- Scanning ----------

type rowScanner interface {
	Scan(dest ...any) error
}

func scanClient(row *sql.Row) (*Client, error) {
	c, err := scanClientInto(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("client not found")
	}
	return c, err
}

func scanClientRows(rows *sql.Rows) (*Client, error) {
	return scanClientInto(rows)
}

func scanClientInto(sc rowScanner) (*Client, error) {
	var (
		c         Client
		incidents sql.NullString
		updatedAt string
	)
	err := sc.Scan(&c.ID, &c.Name, &c.Status, &c.ContactName, &c.Phone, &c.Email,
		&c.Address, &c.ProjectType, &c.Description, &c.Budget, &c.StartDate,
		&c.EndDate, &c.Manager, &c.PendingTasks, &incidents, &c.LastContact,
		&updatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("scan client: %w", err)
	}
	c.Incidents = fromNull(incidents)
	c.UpdatedAt = parseTime(updatedAt)
	return &c, nil
}
