package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	// Register Postgres SQL driver.
	_ "github.com/lib/pq"
	// Register SQLite SQL driver.
	_ "modernc.org/sqlite"
)

type sqlDialect string

const (
	dialectSQLite   sqlDialect = "sqlite"
	dialectPostgres sqlDialect = "postgres"
)

// SQLStore persists cache entries in SQL backends (SQLite or Postgres).
type SQLStore struct {
	db      *sql.DB
	dialect sqlDialect
}

// NewSQLiteStore creates a SQLite-backed entry store.
// dsn can be a file path (e.g. /var/lib/semcache/entries.db) or SQLite DSN.
func NewSQLiteStore(dsn string) (*SQLStore, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		dsn = "semcache-entries.db"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite store: %w", err)
	}
	s := &SQLStore{db: db, dialect: dialectSQLite}
	if err := s.init(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// NewPostgresStore creates a Postgres-backed entry store.
func NewPostgresStore(dsn string) (*SQLStore, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, fmt.Errorf("postgres dsn is required")
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres store: %w", err)
	}
	s := &SQLStore{db: db, dialect: dialectPostgres}
	if err := s.init(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Open creates a store for the given driver ("sqlite" or "postgres").
func Open(driver, dsn string) (*SQLStore, error) {
	switch driver {
	case "sqlite", "":
		return NewSQLiteStore(dsn)
	case "postgres":
		return NewPostgresStore(dsn)
	default:
		return nil, fmt.Errorf("unknown store driver: %q", driver)
	}
}

func (s *SQLStore) init() error {
	if err := s.db.Ping(); err != nil {
		return fmt.Errorf("ping %s store: %w: %w", s.dialect, ErrUnavailable, err)
	}

	var ddl string
	switch s.dialect {
	case dialectPostgres:
		ddl = `
CREATE TABLE IF NOT EXISTS entries (
	key TEXT PRIMARY KEY,
	embedding TEXT NOT NULL,
	response TEXT NOT NULL,
	tokens INTEGER NOT NULL,
	generated_at TIMESTAMPTZ NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	expires_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_entries_expires ON entries(expires_at);`
	default:
		ddl = `
CREATE TABLE IF NOT EXISTS entries (
	key TEXT PRIMARY KEY,
	embedding TEXT NOT NULL,
	response TEXT NOT NULL,
	tokens INTEGER NOT NULL,
	generated_at DATETIME NOT NULL,
	created_at DATETIME NOT NULL,
	expires_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_entries_expires ON entries(expires_at);`
	}

	if _, err := s.db.Exec(ddl); err != nil {
		return fmt.Errorf("initialize %s store schema: %w", s.dialect, err)
	}
	return nil
}

// Load returns every record that has not expired yet. Expired rows are
// deleted on the way out so the mirror does not grow without bound across
// restarts.
func (s *SQLStore) Load(ctx context.Context) ([]Record, error) {
	now := time.Now().UTC()

	q := s.bind(`DELETE FROM entries WHERE expires_at <= ?`)
	if _, err := s.db.ExecContext(ctx, q, now); err != nil {
		return nil, fmt.Errorf("prune expired entries: %w", err)
	}

	q = s.bind(`
SELECT key, embedding, response, tokens, generated_at, created_at, expires_at
FROM entries
WHERE expires_at > ?`)
	rows, err := s.db.QueryContext(ctx, q, now)
	if err != nil {
		return nil, fmt.Errorf("load entries: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var out []Record
	for rows.Next() {
		var (
			rec       Record
			embedding string
		)
		if err := rows.Scan(&rec.Key, &embedding, &rec.Response, &rec.Tokens,
			&rec.GeneratedAt, &rec.CreatedAt, &rec.ExpiresAt); err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		if err := json.Unmarshal([]byte(embedding), &rec.Embedding); err != nil {
			// A corrupt row is skipped, not fatal: the entry is simply
			// recomputed on its next miss.
			continue
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Save upserts rec by key.
func (s *SQLStore) Save(ctx context.Context, rec Record) error {
	embedding, err := json.Marshal(rec.Embedding)
	if err != nil {
		return fmt.Errorf("encode embedding: %w", err)
	}

	q := s.bind(`
INSERT INTO entries(key, embedding, response, tokens, generated_at, created_at, expires_at)
VALUES(?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(key) DO UPDATE SET
	embedding = excluded.embedding,
	response = excluded.response,
	tokens = excluded.tokens,
	generated_at = excluded.generated_at,
	created_at = excluded.created_at,
	expires_at = excluded.expires_at`)

	if _, err := s.db.ExecContext(ctx, q, rec.Key, string(embedding), rec.Response,
		rec.Tokens, rec.GeneratedAt.UTC(), rec.CreatedAt.UTC(), rec.ExpiresAt.UTC()); err != nil {
		return fmt.Errorf("save entry: %w", err)
	}
	return nil
}

// Delete removes the record for key.
func (s *SQLStore) Delete(ctx context.Context, key string) error {
	q := s.bind(`DELETE FROM entries WHERE key = ?`)
	if _, err := s.db.ExecContext(ctx, q, key); err != nil {
		return fmt.Errorf("delete entry: %w", err)
	}
	return nil
}

// Clear removes all records.
func (s *SQLStore) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM entries`); err != nil {
		return fmt.Errorf("clear entries: %w", err)
	}
	return nil
}

// Close closes the underlying database handle.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

// bind rewrites ?-placeholders into the $n form Postgres expects. SQLite
// queries pass through unchanged.
func (s *SQLStore) bind(query string) string {
	if s.dialect != dialectPostgres {
		return query
	}
	var (
		b      strings.Builder
		argNum = 1
	)
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			fmt.Fprintf(&b, "$%d", argNum)
			argNum++
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}
