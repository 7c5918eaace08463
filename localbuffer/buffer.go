// Package localbuffer provides the daemon's durable local write buffer.
// Observations and log lines land here first so that a cloud outage never
// loses data: the forward tasks drain this buffer into the cloud store on
// their own schedule, independent of how fast the PLC is being polled.
package localbuffer

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // pure-Go SQLite driver, no CGO required

	"github.com/Ajility-Development/IM-Core-Daemon/catalog"
	"github.com/Ajility-Development/IM-Core-Daemon/logging"
)

// Buffer wraps a single SQLite connection holding the "facts" and "logs"
// tables. SQLite is single-writer, so the pool is pinned to exactly one
// connection — concurrent callers serialize through database/sql itself.
type Buffer struct {
	db *sql.DB
}

// Open creates or opens the buffer database at dir/store.db, enabling WAL
// mode and a busy timeout so readers never block writers for long, then runs
// migrations.
func Open(dir string) (*Buffer, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("localbuffer: create data dir: %w", err)
	}

	dbPath := filepath.Join(dir, "store.db")
	dsn := dbPath + "?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("localbuffer: open sqlite: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("localbuffer: ping sqlite: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	b := &Buffer{db: db}
	if err := b.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("localbuffer: migrate: %w", err)
	}
	return b, nil
}

// Close shuts down the underlying connection.
func (b *Buffer) Close() error {
	return b.db.Close()
}

func (b *Buffer) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS facts (
			tag_id INTEGER NOT NULL,
			time   TIMESTAMP NOT NULL,
			val    REAL NOT NULL
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS facts_tag_id_time_idx ON facts(tag_id, time)`,
		`CREATE TABLE IF NOT EXISTS logs (
			id        INTEGER PRIMARY KEY AUTOINCREMENT,
			time      TIMESTAMP NOT NULL,
			message   TEXT NOT NULL,
			level     TEXT NOT NULL,
			daemon_id INTEGER NOT NULL
		)`,
	}
	for _, m := range migrations {
		if _, err := b.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w\nSQL: %s", err, m)
		}
	}
	return nil
}

// InsertFacts bulk-inserts observations, ignoring any row that collides on
// (tag_id, time) — a source re-polling and re-storing the same instant is
// not an error, it's a no-op, matching the original's "INSERT OR IGNORE".
func (b *Buffer) InsertFacts(records []catalog.Record) error {
	if len(records) == 0 {
		return nil
	}
	tx, err := b.db.Begin()
	if err != nil {
		return fmt.Errorf("localbuffer: begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`INSERT OR IGNORE INTO facts (tag_id, time, val) VALUES (?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("localbuffer: prepare facts insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range records {
		if _, err := stmt.Exec(r.TagID, r.Time, r.Value); err != nil {
			return fmt.Errorf("localbuffer: insert fact: %w", err)
		}
	}
	return tx.Commit()
}

// SelectFactsBefore returns every buffered fact with time <= cutoff, in the
// shape the cloud store's bulk upsert expects.
func (b *Buffer) SelectFactsBefore(cutoff time.Time) ([]catalog.Record, error) {
	rows, err := b.db.Query(`SELECT tag_id, time, val FROM facts WHERE time <= ?`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("localbuffer: select facts: %w", err)
	}
	defer rows.Close()

	var out []catalog.Record
	for rows.Next() {
		var r catalog.Record
		if err := rows.Scan(&r.TagID, &r.Time, &r.Value); err != nil {
			return nil, fmt.Errorf("localbuffer: scan fact: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// DeleteFactsBefore removes every buffered fact with time <= cutoff. Callers
// only invoke this after a successful cloud upsert of the same rows.
func (b *Buffer) DeleteFactsBefore(cutoff time.Time) error {
	_, err := b.db.Exec(`DELETE FROM facts WHERE time <= ?`, cutoff)
	if err != nil {
		return fmt.Errorf("localbuffer: delete facts: %w", err)
	}
	return nil
}

// InsertLog appends one log record.
func (b *Buffer) InsertLog(rec logging.Record) error {
	_, err := b.db.Exec(
		`INSERT INTO logs (time, message, level, daemon_id) VALUES (?, ?, ?, ?)`,
		rec.Time, rec.Message, string(rec.Level), rec.DaemonID,
	)
	if err != nil {
		return fmt.Errorf("localbuffer: insert log: %w", err)
	}
	return nil
}

// SelectLogsBefore returns every buffered log record with time <= cutoff.
func (b *Buffer) SelectLogsBefore(cutoff time.Time) ([]logging.Record, error) {
	rows, err := b.db.Query(`SELECT id, time, message, level, daemon_id FROM logs WHERE time <= ?`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("localbuffer: select logs: %w", err)
	}
	defer rows.Close()

	var out []logging.Record
	for rows.Next() {
		var r logging.Record
		var level string
		if err := rows.Scan(&r.ID, &r.Time, &r.Message, &level, &r.DaemonID); err != nil {
			return nil, fmt.Errorf("localbuffer: scan log: %w", err)
		}
		r.Level = logging.Level(level)
		out = append(out, r)
	}
	return out, rows.Err()
}

// DeleteLogsBefore removes every buffered log record with time <= cutoff.
func (b *Buffer) DeleteLogsBefore(cutoff time.Time) error {
	_, err := b.db.Exec(`DELETE FROM logs WHERE time <= ?`, cutoff)
	if err != nil {
		return fmt.Errorf("localbuffer: delete logs: %w", err)
	}
	return nil
}
