package storage

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// Message is one line of conversation history, either side.
type Message struct {
	ID        string
	UserID    string // empty when the line has no associated user
	Role      string // "user", "assistant" or "system"
	Content   string
	CreatedAt time.Time
}

// SaveMessage appends a conversation line. userID may be empty.
func (s *Store) SaveMessage(userID, role, content string) error {
	_, err := s.db.Exec(
		"INSERT INTO messages (id, user_id, role, content, created_at) VALUES (?,?,?,?,?)",
		uuid.NewString(), nullable(userID), role, content, time.Now().UnixMilli())
	return err
}

// RecentMessages returns up to limit messages in chronological order,
// filtered to one user when userID is non-empty.
func (s *Store) RecentMessages(userID string, limit int) ([]Message, error) {
	var rows *sql.Rows
	var err error
	// rowid breaks ties between messages landing in the same millisecond.
	if userID != "" {
		rows, err = s.db.Query(
			"SELECT id, user_id, role, content, created_at FROM messages WHERE user_id=? ORDER BY created_at DESC, rowid DESC LIMIT ?",
			userID, limit)
	} else {
		rows, err = s.db.Query(
			"SELECT id, user_id, role, content, created_at FROM messages ORDER BY created_at DESC, rowid DESC LIMIT ?", limit)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		var m Message
		var uid sql.NullString
		var createdAt int64
		if err := rows.Scan(&m.ID, &uid, &m.Role, &m.Content, &createdAt); err != nil {
			return nil, err
		}
		m.UserID = uid.String
		m.CreatedAt = time.UnixMilli(createdAt)
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Newest-first from the query; flip to chronological.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// PruneMessages deletes messages older than the retention window and
// returns how many went.
func (s *Store) PruneMessages(retention time.Duration) (int64, error) {
	cutoff := time.Now().Add(-retention).UnixMilli()
	res, err := s.db.Exec("DELETE FROM messages WHERE created_at < ?", cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
