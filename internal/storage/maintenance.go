package storage

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"tsubaki/internal/metrics"
)

// DefaultRetention is how long chat history is kept.
const DefaultRetention = 30 * 24 * time.Hour

// Backup writes a consistent snapshot into dir with a timestamped name.
// VACUUM INTO goes through the connection, so commits still sitting in the
// WAL are included; a plain file copy would miss them. In-memory databases
// are skipped.
func (s *Store) Backup(dir string) error {
	if s.path == "" || s.path == ":memory:" {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	stamp := time.Now().UTC().Format("2006-01-02T15-04-05Z")
	dst := filepath.Join(dir, fmt.Sprintf("tsubaki-%s.db", stamp))

	_, err := s.db.Exec("VACUUM INTO ?", dst)
	return err
}

// RunMaintenance prunes old messages and backs the file up once a day, and
// vacuums weekly, until ctx is done. Call from main in a goroutine.
func RunMaintenance(ctx context.Context, store *Store, backupDir string, retention time.Duration) {
	if retention <= 0 {
		retention = DefaultRetention
	}
	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()

	runs := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if pruned, err := store.PruneMessages(retention); err != nil {
				log.Println("[ERR] Message retention prune failed:", err)
			} else if pruned > 0 {
				metrics.PrunedMessages.Add(float64(pruned))
				log.Printf("[INFO] Pruned %d old messages", pruned)
			}
			if err := store.Backup(backupDir); err != nil {
				log.Println("[ERR] Database backup failed:", err)
			}
			runs++
			if runs%7 == 0 {
				if err := store.Vacuum(); err != nil {
					log.Println("[ERR] Vacuum failed:", err)
				}
			}
		}
	}
}
