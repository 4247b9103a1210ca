package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "modernc.org/sqlite"

	"AdobeDigest/internal/domain"
	"AdobeDigest/internal/ports"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS tracked_ids (
    id TEXT PRIMARY KEY
);
CREATE TABLE IF NOT EXISTS source_records (
    source       TEXT NOT NULL,
    id           TEXT NOT NULL,
    hash         TEXT NOT NULL DEFAULT '',
    state        TEXT NOT NULL DEFAULT '',
    last_scraped TEXT NOT NULL DEFAULT '',
    PRIMARY KEY (source, id)
);
CREATE TABLE IF NOT EXISTS tracking_meta (
    key   TEXT PRIMARY KEY,
    value TEXT NOT NULL
);`

const metaLastUpdated = "last_updated"

// SQLiteStore persists the tracking document in SQLite tables.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

var _ ports.TrackingStore = (*SQLiteStore)(nil)

type sqlRunner interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// OpenSQLiteStore opens (or creates) the database at path and applies the schema.
func OpenSQLiteStore(ctx context.Context, path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply %q: %w", pragma, err)
		}
	}

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &SQLiteStore{db: db, now: time.Now}, nil
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Load reads the whole document.
func (s *SQLiteStore) Load(ctx context.Context) (domain.TrackingState, error) {
	return loadState(ctx, s.db)
}

// Update runs fn inside one transaction and writes back only what changed.
func (s *SQLiteStore) Update(ctx context.Context, fn func(*domain.TrackingState) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	before, err := loadState(ctx, tx)
	if err != nil {
		return err
	}
	after, err := loadState(ctx, tx)
	if err != nil {
		return err
	}
	if err := fn(&after); err != nil {
		return err
	}
	after.LastUpdated = s.now().UTC()

	if err := writeDiff(ctx, tx, before, after); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func loadState(ctx context.Context, db sqlRunner) (domain.TrackingState, error) {
	state := domain.TrackingState{IDs: []string{}}

	query, args, err := sq.Select("id").From("tracked_ids").OrderBy("id").ToSql()
	if err != nil {
		return state, fmt.Errorf("build ids query: %w", err)
	}
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return state, fmt.Errorf("query ids: %w", err)
	}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			_ = rows.Close()
			return state, fmt.Errorf("scan id: %w", err)
		}
		state.IDs = append(state.IDs, id)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return state, fmt.Errorf("ids iteration: %w", err)
	}
	if err := rows.Close(); err != nil {
		return state, fmt.Errorf("close rows: %w", err)
	}

	query, args, err = sq.Select("source", "id", "hash", "state", "last_scraped").
		From("source_records").
		OrderBy("source", "id").
		ToSql()
	if err != nil {
		return state, fmt.Errorf("build records query: %w", err)
	}
	rows, err = db.QueryContext(ctx, query, args...)
	if err != nil {
		return state, fmt.Errorf("query records: %w", err)
	}
	for rows.Next() {
		var source, id, lastScraped string
		var rec domain.TrackingRecord
		if err := rows.Scan(&source, &id, &rec.Hash, &rec.State, &lastScraped); err != nil {
			_ = rows.Close()
			return state, fmt.Errorf("scan record: %w", err)
		}
		rec.LastScraped, _ = time.Parse(time.RFC3339Nano, lastScraped)
		state.SetRecord(source, id, rec)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return state, fmt.Errorf("records iteration: %w", err)
	}
	if err := rows.Close(); err != nil {
		return state, fmt.Errorf("close rows: %w", err)
	}

	query, args, err = sq.Select("value").From("tracking_meta").Where(sq.Eq{"key": metaLastUpdated}).ToSql()
	if err != nil {
		return state, fmt.Errorf("build meta query: %w", err)
	}
	var lastUpdated string
	switch err := db.QueryRowContext(ctx, query, args...).Scan(&lastUpdated); err {
	case nil:
		state.LastUpdated, _ = time.Parse(time.RFC3339Nano, lastUpdated)
	case sql.ErrNoRows:
	default:
		return state, fmt.Errorf("query meta: %w", err)
	}

	return state, nil
}

func writeDiff(ctx context.Context, db sqlRunner, before, after domain.TrackingState) error {
	for _, id := range after.IDs {
		if before.HasID(id) {
			continue
		}
		query, args, err := sq.Insert("tracked_ids").
			Columns("id").
			Values(id).
			Suffix("ON CONFLICT(id) DO NOTHING").
			ToSql()
		if err != nil {
			return fmt.Errorf("build id insert: %w", err)
		}
		if _, err := db.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("insert id %s: %w", id, err)
		}
	}

	for source, records := range after.Sources {
		for id, rec := range records {
			if old, ok := before.Record(source, id); ok && old == rec {
				continue
			}
			query, args, err := sq.Insert("source_records").
				Columns("source", "id", "hash", "state", "last_scraped").
				Values(source, id, rec.Hash, rec.State, rec.LastScraped.UTC().Format(time.RFC3339Nano)).
				Suffix("ON CONFLICT(source, id) DO UPDATE SET hash = excluded.hash, state = excluded.state, last_scraped = excluded.last_scraped").
				ToSql()
			if err != nil {
				return fmt.Errorf("build record upsert: %w", err)
			}
			if _, err := db.ExecContext(ctx, query, args...); err != nil {
				return fmt.Errorf("upsert record %s/%s: %w", source, id, err)
			}
		}
	}

	query, args, err := sq.Insert("tracking_meta").
		Columns("key", "value").
		Values(metaLastUpdated, after.LastUpdated.Format(time.RFC3339Nano)).
		Suffix("ON CONFLICT(key) DO UPDATE SET value = excluded.value").
		ToSql()
	if err != nil {
		return fmt.Errorf("build meta upsert: %w", err)
	}
	if _, err := db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("upsert meta: %w", err)
	}
	return nil
}
