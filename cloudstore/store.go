// Package cloudstore is the daemon's cloud-authoritative relational store:
// daemon/source configuration and heartbeat, the monitored-tag catalog, and
// the upstream side of the fact/log forwarding pipeline.
//
// Every bulk write here is parameterized and array-bound (via Postgres
// unnest) rather than built by string concatenation, and every operation is
// its own named method rather than one "execute(query)" entry point
// dispatching on a substring of the SQL text.
package cloudstore

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Ajility-Development/IM-Core-Daemon/catalog"
	"github.com/Ajility-Development/IM-Core-Daemon/logging"
	"github.com/Ajility-Development/IM-Core-Daemon/plcdriver"
)

// Config is the subset of connection parameters the store needs. It mirrors
// exactly the DB_* environment variables the original collector reads.
type Config struct {
	Host     string
	Port     int
	Database string
	Username string
	Password string
}

// Store wraps a pooled Postgres connection. The pool bounds mirror the
// original collector's ThreadedConnectionPool(minconn=5, maxconn=20).
type Store struct {
	pool *pgxpool.Pool
}

// Open connects to Postgres and configures the pool to minConns=5/maxConns=20.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	dsn := fmt.Sprintf("postgres://%s:%s@%s:%d/%s",
		cfg.Username, cfg.Password, cfg.Host, cfg.Port, cfg.Database)

	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("cloudstore: parse dsn: %w", err)
	}
	poolCfg.MinConns = 5
	poolCfg.MaxConns = 20

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("cloudstore: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("cloudstore: ping: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Close releases every pooled connection.
func (s *Store) Close() {
	s.pool.Close()
}

// Daemon is a daemon row as read from the cloud store.
type Daemon struct {
	ID     int64
	Active bool
}

// ErrDaemonNotFound is returned when no daemon row matches the configured
// CONFIGURATION_KEY — always a fatal configuration error for the caller.
var ErrDaemonNotFound = fmt.Errorf("cloudstore: no daemon registered for configuration key")

// GetDaemonByConfigKey resolves the configured CONFIGURATION_KEY to a daemon
// identity and its current active/paused state.
func (s *Store) GetDaemonByConfigKey(ctx context.Context, configKey string) (*Daemon, error) {
	var d Daemon
	err := s.pool.QueryRow(ctx,
		`SELECT id, active FROM daemons WHERE config_key = $1`, configKey,
	).Scan(&d.ID, &d.Active)
	if err == pgx.ErrNoRows {
		return nil, ErrDaemonNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("cloudstore: get daemon: %w", err)
	}
	return &d, nil
}

// GetDaemonActive re-reads just the active flag, used by the sync task to
// detect a pause/resume without re-resolving the config key.
func (s *Store) GetDaemonActive(ctx context.Context, daemonID int64) (bool, error) {
	var active bool
	err := s.pool.QueryRow(ctx, `SELECT active FROM daemons WHERE id = $1`, daemonID).Scan(&active)
	if err != nil {
		return false, fmt.Errorf("cloudstore: get daemon active: %w", err)
	}
	return active, nil
}

// HeartbeatDaemon stamps the daemon's last_communication column with now.
func (s *Store) HeartbeatDaemon(ctx context.Context, daemonID int64) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE daemons SET last_communication = $1 WHERE id = $2`, time.Now(), daemonID,
	)
	if err != nil {
		return fmt.Errorf("cloudstore: heartbeat daemon: %w", err)
	}
	return nil
}

// Source is a source row as read from the cloud store.
type Source struct {
	ID      int64
	Active  bool
	Address string
	Driver  string
}

// ListSources returns every source configured under a daemon.
func (s *Store) ListSources(ctx context.Context, daemonID int64) ([]Source, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, active, address, driver FROM sources WHERE daemon_id = $1`, daemonID,
	)
	if err != nil {
		return nil, fmt.Errorf("cloudstore: list sources: %w", err)
	}
	defer rows.Close()

	var out []Source
	for rows.Next() {
		var src Source
		if err := rows.Scan(&src.ID, &src.Active, &src.Address, &src.Driver); err != nil {
			return nil, fmt.Errorf("cloudstore: scan source: %w", err)
		}
		out = append(out, src)
	}
	return out, rows.Err()
}

// GetSourceActive re-reads a single source's active flag for the sync task.
func (s *Store) GetSourceActive(ctx context.Context, sourceID int64) (bool, error) {
	var active bool
	err := s.pool.QueryRow(ctx, `SELECT active FROM sources WHERE id = $1`, sourceID).Scan(&active)
	if err != nil {
		return false, fmt.Errorf("cloudstore: get source active: %w", err)
	}
	return active, nil
}

// HeartbeatSource stamps the source's last_communication column with now.
func (s *Store) HeartbeatSource(ctx context.Context, sourceID int64) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE sources SET last_communication = $1 WHERE id = $2`, time.Now(), sourceID,
	)
	if err != nil {
		return fmt.Errorf("cloudstore: heartbeat source: %w", err)
	}
	return nil
}

// MonitoredTag is a tag the cloud considers monitored for a source, along
// with the identity it needs for fact storage.
type MonitoredTag struct {
	ID           int64
	Name         string
	DataTypeName string
}

// ListMonitoredTags returns every tag flagged monitor=true for a source —
// the cloud-authoritative set the sync task reconciles the catalog against.
func (s *Store) ListMonitoredTags(ctx context.Context, sourceID int64) ([]MonitoredTag, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, data_type_name FROM tags WHERE source_id = $1 AND monitor = true`, sourceID,
	)
	if err != nil {
		return nil, fmt.Errorf("cloudstore: list monitored tags: %w", err)
	}
	defer rows.Close()

	var out []MonitoredTag
	for rows.Next() {
		var t MonitoredTag
		if err := rows.Scan(&t.ID, &t.Name, &t.DataTypeName); err != nil {
			return nil, fmt.Errorf("cloudstore: scan monitored tag: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// discoveredTagColumns splits a []plcdriver.DiscoveredTag into the parallel
// column slices unnest() binds as array parameters.
func discoveredTagColumns(tags []plcdriver.DiscoveredTag) (names, types []string) {
	names = make([]string, len(tags))
	types = make([]string, len(tags))
	for i, t := range tags {
		names[i] = t.Name
		types[i] = t.DataTypeName
	}
	return names, types
}

// factColumns splits a []catalog.Record into the parallel column slices
// unnest() binds as array parameters.
func factColumns(records []catalog.Record) (tagIDs []int64, times []time.Time, vals []float64) {
	tagIDs = make([]int64, len(records))
	times = make([]time.Time, len(records))
	vals = make([]float64, len(records))
	for i, r := range records {
		tagIDs[i] = r.TagID
		times[i] = r.Time
		vals[i] = r.Value
	}
	return tagIDs, times, vals
}

// logColumns splits a []logging.Record into the parallel column slices
// unnest() binds as array parameters. The local buffer's autoincrement id
// is deliberately left out: the cloud logs table doesn't have an id column
// (spec.md §6: logs(time, message, level, daemon_id)), so it never leaves
// localbuffer's own bookkeeping.
func logColumns(records []logging.Record) (times []time.Time, messages, levels []string, daemonIDs []int64) {
	times = make([]time.Time, len(records))
	messages = make([]string, len(records))
	levels = make([]string, len(records))
	daemonIDs = make([]int64, len(records))
	for i, r := range records {
		times[i] = r.Time
		messages[i] = r.Message
		levels[i] = string(r.Level)
		daemonIDs[i] = r.DaemonID
	}
	return times, messages, levels, daemonIDs
}

// UpsertDiscoveredTags records every tag a driver discovered against a
// source's catalog, creating new rows and refreshing the type name on
// existing ones. It never touches the monitor flag — that stays under
// operator/cloud control.
func (s *Store) UpsertDiscoveredTags(ctx context.Context, sourceID int64, tags []plcdriver.DiscoveredTag) error {
	if len(tags) == 0 {
		return nil
	}
	names, types := discoveredTagColumns(tags)

	_, err := s.pool.Exec(ctx, `
		INSERT INTO tags (source_id, name, data_type_name)
		SELECT $1, n, t FROM unnest($2::text[], $3::text[]) AS u(n, t)
		ON CONFLICT (source_id, name) DO UPDATE SET data_type_name = excluded.data_type_name
	`, sourceID, names, types)
	if err != nil {
		return fmt.Errorf("cloudstore: upsert discovered tags: %w", err)
	}
	return nil
}

// UpsertFacts bulk-upserts observations into the cloud facts table,
// discarding any row that collides with one already stored for the same
// (tag_id, time) — delivery here is at-least-once, so duplicates from a
// replay after a crash are expected and harmless.
func (s *Store) UpsertFacts(ctx context.Context, records []catalog.Record) error {
	if len(records) == 0 {
		return nil
	}
	tagIDs, times, vals := factColumns(records)

	_, err := s.pool.Exec(ctx, `
		INSERT INTO facts (tag_id, time, val)
		SELECT * FROM unnest($1::bigint[], $2::timestamptz[], $3::float8[])
		ON CONFLICT (tag_id, time) DO NOTHING
	`, tagIDs, times, vals)
	if err != nil {
		return fmt.Errorf("cloudstore: upsert facts: %w", err)
	}
	return nil
}

// UpsertLogs bulk-inserts log records into the cloud logs table. The logs
// table carries no unique key of its own (spec.md §6), so there is nothing
// for a conflict to collide on; duplicates from a replayed forward just
// become duplicate rows, same as the original collector's forward().
func (s *Store) UpsertLogs(records []logging.Record) error {
	return s.upsertLogs(context.Background(), records)
}

func (s *Store) upsertLogs(ctx context.Context, records []logging.Record) error {
	if len(records) == 0 {
		return nil
	}
	times, messages, levels, daemonIDs := logColumns(records)

	_, err := s.pool.Exec(ctx, `
		INSERT INTO logs (time, message, level, daemon_id)
		SELECT * FROM unnest($1::timestamptz[], $2::text[], $3::text[], $4::bigint[])
	`, times, messages, levels, daemonIDs)
	if err != nil {
		return fmt.Errorf("cloudstore: upsert logs: %w", err)
	}
	return nil
}
