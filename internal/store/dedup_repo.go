package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"
)

// DedupRecord is an inbound channel message seen by the service.
type DedupRecord struct {
	MessageID   string     `json:"message_id"`
	SessionID   string     `json:"session_id"`
	ReceivedAt  time.Time  `json:"received_at"`
	ProcessedAt *time.Time `json:"processed_at"`
}

// DedupRepo claims inbound message IDs so a redelivered webhook runs its turn once.
//
// A claim is taken with RecordInbound before the turn runs. It becomes permanent with
// MarkProcessed, or is dropped with ReleaseInbound when the turn failed, so the channel's
// retry of the same message is processed instead of acknowledged as a duplicate.
type DedupRepo interface {
	// RecordInbound claims messageID. It returns false when the ID is already claimed.
	RecordInbound(messageID, sessionID string) (bool, error)
	// MarkProcessed stamps a claimed message as done.
	MarkProcessed(messageID string) error
	// ReleaseInbound drops an unprocessed claim. Processed messages are left alone.
	ReleaseInbound(messageID string) error
}

// dedupQueries holds the dialect-specific statements for inbound_dedup.
type dedupQueries struct {
	claim   string
	done    string
	release string
}

var (
	sqliteDedupQueries = dedupQueries{
		claim:   `INSERT OR IGNORE INTO inbound_dedup (message_id, session_id, received_at) VALUES (?, ?, ?)`,
		done:    `UPDATE inbound_dedup SET processed_at = ? WHERE message_id = ?`,
		release: `DELETE FROM inbound_dedup WHERE message_id = ? AND processed_at IS NULL`,
	}
	postgresDedupQueries = dedupQueries{
		claim:   `INSERT INTO inbound_dedup (message_id, session_id, received_at) VALUES ($1, $2, $3) ON CONFLICT (message_id) DO NOTHING`,
		done:    `UPDATE inbound_dedup SET processed_at = $1 WHERE message_id = $2`,
		release: `DELETE FROM inbound_dedup WHERE message_id = $1 AND processed_at IS NULL`,
	}
)

// sqlDedup implements DedupRepo on a database/sql handle.
type sqlDedup struct {
	db *sql.DB
	q  dedupQueries
}

func (d sqlDedup) RecordInbound(messageID, sessionID string) (bool, error) {
	res, err := d.db.Exec(d.q.claim, messageID, sessionID, time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("failed to claim inbound message %s: %w", messageID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read claim result for %s: %w", messageID, err)
	}
	if n == 0 {
		slog.Debug("store.RecordInbound: message already claimed", "messageID", messageID, "sessionID", sessionID)
	}
	return n > 0, nil
}

func (d sqlDedup) MarkProcessed(messageID string) error {
	if _, err := d.db.Exec(d.q.done, time.Now().UTC(), messageID); err != nil {
		return fmt.Errorf("failed to mark message %s processed: %w", messageID, err)
	}
	return nil
}

func (d sqlDedup) ReleaseInbound(messageID string) error {
	if _, err := d.db.Exec(d.q.release, messageID); err != nil {
		return fmt.Errorf("failed to release message %s: %w", messageID, err)
	}
	return nil
}

// RecordInbound claims messageID in SQLite.
func (s *SQLiteStore) RecordInbound(messageID, sessionID string) (bool, error) {
	return sqlDedup{s.db, sqliteDedupQueries}.RecordInbound(messageID, sessionID)
}

// MarkProcessed stamps messageID in SQLite.
func (s *SQLiteStore) MarkProcessed(messageID string) error {
	return sqlDedup{s.db, sqliteDedupQueries}.MarkProcessed(messageID)
}

// ReleaseInbound drops an unprocessed claim in SQLite.
func (s *SQLiteStore) ReleaseInbound(messageID string) error {
	return sqlDedup{s.db, sqliteDedupQueries}.ReleaseInbound(messageID)
}

// RecordInbound claims messageID in PostgreSQL.
func (s *PostgresStore) RecordInbound(messageID, sessionID string) (bool, error) {
	return sqlDedup{s.db, postgresDedupQueries}.RecordInbound(messageID, sessionID)
}

// MarkProcessed stamps messageID in PostgreSQL.
func (s *PostgresStore) MarkProcessed(messageID string) error {
	return sqlDedup{s.db, postgresDedupQueries}.MarkProcessed(messageID)
}

// ReleaseInbound drops an unprocessed claim in PostgreSQL.
func (s *PostgresStore) ReleaseInbound(messageID string) error {
	return sqlDedup{s.db, postgresDedupQueries}.ReleaseInbound(messageID)
}
