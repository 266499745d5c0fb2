package sqlite

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"time"

	"github.com/sakif/codeofclans/internal/model"
)

func (db *DB) CreateMessage(ctx context.Context, m *model.ChatMessage) error {
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	res, err := db.q.ExecContext(ctx,
		`INSERT INTO messages (account_id, content, created_at) VALUES (?, ?, ?)`,
		m.AccountID, m.Content, m.CreatedAt)
	if err != nil {
		return writeErr(err, "inserting message", "account", strconv.FormatInt(m.AccountID, 10))
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("sqlite: reading message id: %w", err)
	}
	m.ID = id
	return nil
}

// RecentMessages picks the newest rows by id, which is also insertion
// order, and returns them oldest first for replay.
func (db *DB) RecentMessages(ctx context.Context, limit int) ([]model.ChatMessage, error) {
	rows, err := db.q.QueryContext(ctx,
		`SELECT m.id, m.account_id, m.content, m.created_at, a.username, COALESCE(l.avatar_url, '')
		 FROM messages m
		 JOIN accounts a ON a.id = m.account_id
		 LEFT JOIN identity_links l ON l.account_id = m.account_id
		 ORDER BY m.id DESC
		 LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing messages: %w", err)
	}
	defer rows.Close()

	out := []model.ChatMessage{}
	for rows.Next() {
		var m model.ChatMessage
		if err := rows.Scan(&m.ID, &m.AccountID, &m.Content, &m.CreatedAt, &m.Username, &m.AvatarURL); err != nil {
			return nil, fmt.Errorf("sqlite: scanning message: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating messages: %w", err)
	}
	slices.Reverse(out)
	return out, nil
}
