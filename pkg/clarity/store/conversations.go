// Package store – conversations.go implements chat thread persistence.
// Conversations are created lazily on first message; the most recent one per
// user is auto-selected. No deletion path is modeled.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Conversation is a named chat thread for one user.
type Conversation struct {
	ID        string    `json:"id"`
	UserName  string    `json:"user_name"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ChatMessage is one ordered (role, content) tuple in a conversation, with an
// optional client-context reference.
type ChatMessage struct {
	ConversationID string    `json:"conversation_id"`
	Role           string    `json:"role"`
	Content        string    `json:"content"`
	ClientID       *string   `json:"client_id"`
	CreatedAt      time.Time `json:"created_at"`
}

// LatestConversation returns the most recently updated conversation for a
// user, or nil when the user has none yet.
func (s *Store) LatestConversation(ctx context.Context, user string) (*Conversation, error) {
	var (
		c         Conversation
		createdAt string
		updatedAt string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, user_name, title, created_at, updated_at
		FROM conversations WHERE user_name = ?
		ORDER BY updated_at DESC, rowid DESC LIMIT 1`, user,
	).Scan(&c.ID, &c.UserName, &c.Title, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load latest conversation: %w", err)
	}
	c.CreatedAt = parseTime(createdAt)
	c.UpdatedAt = parseTime(updatedAt)
	return &c, nil
}

// EnsureConversation returns the user's latest conversation, creating one
// lazily when none exists. The title defaults to the creation date.
func (s *Store) EnsureConversation(ctx context.Context, user string) (*Conversation, error) {
	if c, err := s.LatestConversation(ctx, user); err != nil {
		return nil, err
	} else if c != nil {
		return c, nil
	}

	now := time.Now()
	c := &Conversation{
		ID:        uuid.NewString(),
		UserName:  user,
		Title:     now.Format("2006-01-02"),
		CreatedAt: now,
		UpdatedAt: now,
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO conversations (id, user_name, title, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)`,
		c.ID, c.UserName, c.Title, formatTime(c.CreatedAt), formatTime(c.UpdatedAt))
	if err != nil {
		return nil, fmt.Errorf("create conversation: %w", err)
	}
	return c, nil
}

// AppendMessage appends a message to a conversation and bumps its
// updated-at timestamp.
func (s *Store) AppendMessage(ctx context.Context, m *ChatMessage) error {
	if m.Role != "user" && m.Role != "assistant" {
		return fmt.Errorf("invalid message role %q", m.Role)
	}
	m.CreatedAt = time.Now()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO conversation_messages (conversation_id, role, content, client_id, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		m.ConversationID, m.Role, m.Content, nullString(m.ClientID), formatTime(m.CreatedAt))
	if err != nil {
		return fmt.Errorf("append message: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		"UPDATE conversations SET updated_at = ? WHERE id = ?",
		formatTime(m.CreatedAt), m.ConversationID)
	if err != nil {
		return fmt.Errorf("touch conversation: %w", err)
	}
	return nil
}

// RecentMessages returns the last n messages of a conversation in
// chronological order.
func (s *Store) RecentMessages(ctx context.Context, conversationID string, n int) ([]ChatMessage, error) {
	if n <= 0 {
		n = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT conversation_id, role, content, client_id, created_at FROM (
			SELECT id, conversation_id, role, content, client_id, created_at
			FROM conversation_messages
			WHERE conversation_id = ?
			ORDER BY id DESC LIMIT ?
		) ORDER BY id ASC`, conversationID, n)
	if err != nil {
		return nil, fmt.Errorf("load messages: %w", err)
	}
	defer rows.Close()

	var result []ChatMessage
	for rows.Next() {
		var (
			m         ChatMessage
			clientID  sql.NullString
			createdAt string
		)
		if err := rows.Scan(&m.ConversationID, &m.Role, &m.Content, &clientID, &createdAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.ClientID = fromNull(clientID)
		m.CreatedAt = parseTime(createdAt)
		result = append(result, m)
	}
	return result, rows.Err()
}
