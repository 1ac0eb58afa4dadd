package storage

import "time"

// Highlight is an append-only record of a detected stream moment.
type Highlight struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Reason    string    `json:"reason"`
}

// AddHighlight appends a highlight record.
func (s *Store) AddHighlight(id string, ts time.Time, reason string) error {
	_, err := s.db.Exec("INSERT INTO highlights (id, ts, reason) VALUES (?,?,?)", id, ts.UnixMilli(), reason)
	return err
}

// ListHighlights returns the most recent highlights, newest first.
func (s *Store) ListHighlights(limit int) ([]Highlight, error) {
	rows, err := s.db.Query("SELECT id, ts, reason FROM highlights ORDER BY ts DESC LIMIT ?", limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Highlight
	for rows.Next() {
		var h Highlight
		var ts int64
		if err := rows.Scan(&h.ID, &ts, &h.Reason); err != nil {
			return nil, err
		}
		h.Timestamp = time.UnixMilli(ts)
		out = append(out, h)
	}
	return out, rows.Err()
}
