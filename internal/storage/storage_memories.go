package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Memory scopes.
const (
	ScopeGlobal   = "global"
	ScopePersonal = "personal"
)

// ErrUserIDRequired is a contract error: personal-scope memory access
// without a user id is a caller bug, surfaced immediately.
var ErrUserIDRequired = errors.New("storage: userID required for personal memory")

// SetMemory upserts a memory value under (key, scope, userID).
func (s *Store) SetMemory(key, value, scope, userID string) error {
	if scope == ScopePersonal && userID == "" {
		return ErrUserIDRequired
	}
	if scope != ScopeGlobal && scope != ScopePersonal {
		return fmt.Errorf("storage: unknown memory scope %q", scope)
	}
	if scope == ScopeGlobal {
		userID = ""
	}

	// Update-then-insert instead of ON CONFLICT: the unique index treats the
	// NULL user_id of global rows as distinct, so the conflict clause would
	// never fire for them.
	now := time.Now().UnixMilli()
	var res sql.Result
	var err error
	if userID != "" {
		res, err = s.db.Exec("UPDATE memories SET value=?, updated_at=? WHERE key=? AND scope=? AND user_id=?",
			value, now, key, scope, userID)
	} else {
		res, err = s.db.Exec("UPDATE memories SET value=?, updated_at=? WHERE key=? AND scope=? AND user_id IS NULL",
			value, now, key, scope)
	}
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err != nil {
		return err
	} else if n > 0 {
		return nil
	}

	_, err = s.db.Exec("INSERT INTO memories (id, user_id, key, value, scope, updated_at) VALUES (?,?,?,?,?,?)",
		uuid.NewString(), nullable(userID), key, value, scope, now)
	return err
}

// GetMemory fetches a memory value; empty string when absent.
func (s *Store) GetMemory(key, scope, userID string) (string, error) {
	if scope == ScopePersonal && userID == "" {
		return "", ErrUserIDRequired
	}
	var value string
	var err error
	if scope == ScopePersonal {
		err = s.db.QueryRow("SELECT value FROM memories WHERE key=? AND scope=? AND user_id=?", key, scope, userID).Scan(&value)
	} else {
		err = s.db.QueryRow("SELECT value FROM memories WHERE key=? AND scope=? AND user_id IS NULL", key, scope).Scan(&value)
	}
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return value, err
}
