package storage

import (
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
)

// User is one chatter identity, unique per (platform, external id).
type User struct {
	ID          string
	Platform    string
	ExternalID  string
	DisplayName string
	AvatarURL   string
}

// UpsertUser returns the stable internal id for a platform identity,
// creating the row on first sight and refreshing the display name and
// avatar when new values are provided.
func (s *Store) UpsertUser(platform, externalID, displayName, avatarURL string) (string, error) {
	var id string
	err := s.db.QueryRow("SELECT id FROM users WHERE platform=? AND external_id=?", platform, externalID).Scan(&id)
	switch {
	case err == nil:
		if displayName != "" || avatarURL != "" {
			_, err = s.db.Exec(
				"UPDATE users SET display_name=COALESCE(NULLIF(?,''), display_name), avatar_url=COALESCE(NULLIF(?,''), avatar_url) WHERE id=?",
				displayName, avatarURL, id)
		}
		return id, err
	case errors.Is(err, sql.ErrNoRows):
		id = uuid.NewString()
		_, err = s.db.Exec(
			"INSERT INTO users (id, platform, external_id, display_name, avatar_url, created_at) VALUES (?,?,?,?,?,?)",
			id, platform, externalID, nullable(displayName), nullable(avatarURL), time.Now().UnixMilli())
		return id, err
	default:
		return "", err
	}
}

// GetUser fetches a user by internal id; nil when absent.
func (s *Store) GetUser(id string) (*User, error) {
	var u User
	var displayName, avatarURL sql.NullString
	err := s.db.QueryRow("SELECT id, platform, external_id, display_name, avatar_url FROM users WHERE id=?", id).
		Scan(&u.ID, &u.Platform, &u.ExternalID, &displayName, &avatarURL)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	u.DisplayName = displayName.String
	u.AvatarURL = avatarURL.String
	return &u, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
