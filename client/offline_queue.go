package client

import (
	"database/sql"
	"log"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// QueuedIntent is an intent persisted in the offline store, with a
// system-assigned id and a synced flag. Synced rows are purged by Cleanup.
type QueuedIntent struct {
	ID         int64
	TargetID   string
	TargetType string
	Action     string
	CreatedAt  time.Time
	RetryCount int
	Synced     bool
}

// OfflineQueue is a durable local queue of intents that could not be
// transmitted. It survives process restarts; replay drains it once
// connectivity returns.
type OfflineQueue struct {
	db *sql.DB
}

const offlineQueueSchema = `
CREATE TABLE IF NOT EXISTS offline_intents (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	target_id TEXT NOT NULL,
	target_type TEXT NOT NULL,
	action TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL,
	retry_count INTEGER NOT NULL DEFAULT 0,
	synced INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_offline_intents_synced ON offline_intents(synced);
`

// OpenOfflineQueue opens (creating if needed) the queue at path.
func OpenOfflineQueue(path string) (*OfflineQueue, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(offlineQueueSchema); err != nil {
		db.Close()
		return nil, err
	}
	return &OfflineQueue{db: db}, nil
}

// Persist stores an intent. It never fails outward: a storage error degrades
// to "intent is lost", which is logged and reported as ok=false.
func (q *OfflineQueue) Persist(intent Intent) (int64, bool) {
	res, err := q.db.Exec(
		`INSERT INTO offline_intents (target_id, target_type, action, created_at, retry_count, synced) VALUES (?, ?, ?, ?, ?, 0)`,
		intent.TargetID, intent.TargetType, intent.Action, intent.CreatedAt, intent.RetryCount,
	)
	if err != nil {
		log.Printf("Failed to persist offline intent %s: %v", intent.Key(), err)
		return 0, false
	}
	id, err := res.LastInsertId()
	if err != nil {
		log.Printf("Failed to read offline intent id for %s: %v", intent.Key(), err)
		return 0, false
	}
	return id, true
}

// DrainPending returns all not-yet-synced intents, oldest first. Rows stay
// in the store until marked synced, so a crashed replay can run again.
func (q *OfflineQueue) DrainPending() ([]QueuedIntent, error) {
	rows, err := q.db.Query(
		`SELECT id, target_id, target_type, action, created_at, retry_count, synced
		 FROM offline_intents WHERE synced = 0 ORDER BY id ASC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var intents []QueuedIntent
	for rows.Next() {
		var qi QueuedIntent
		if err := rows.Scan(&qi.ID, &qi.TargetID, &qi.TargetType, &qi.Action, &qi.CreatedAt, &qi.RetryCount, &qi.Synced); err != nil {
			return nil, err
		}
		intents = append(intents, qi)
	}
	return intents, rows.Err()
}

// MarkSynced flags a row as delivered. Safe to call twice: marking an
// already-synced or already-purged row is a no-op. The update is awaited, so
// a returned nil means the flag is durably committed.
func (q *OfflineQueue) MarkSynced(id int64) error {
	_, err := q.db.Exec(`UPDATE offline_intents SET synced = 1 WHERE id = ?`, id)
	return err
}

// Count returns the number of pending (not yet synced) intents.
func (q *OfflineQueue) Count() (int, error) {
	var count int
	err := q.db.QueryRow(`SELECT COUNT(*) FROM offline_intents WHERE synced = 0`).Scan(&count)
	return count, err
}

// Cleanup physically removes synced rows.
func (q *OfflineQueue) Cleanup() error {
	_, err := q.db.Exec(`DELETE FROM offline_intents WHERE synced = 1`)
	return err
}

// Close closes the underlying store.
func (q *OfflineQueue) Close() error {
	return q.db.Close()
}
