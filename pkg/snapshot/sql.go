package snapshot

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// Dialect selects the DDL of a SQLStore. Queries are shared: both drivers
// accept $n placeholders.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

var schemas = map[Dialect]string{
	DialectSQLite: `
CREATE TABLE IF NOT EXISTS risk_snapshots (
	id TEXT PRIMARY KEY,
	hash TEXT NOT NULL,
	version TEXT,
	source TEXT,
	records INTEGER NOT NULL,
	created_at TIMESTAMP NOT NULL,
	raw BLOB
);
CREATE INDEX IF NOT EXISTS risk_snapshots_created ON risk_snapshots (created_at);
`,
	DialectPostgres: `
CREATE TABLE IF NOT EXISTS risk_snapshots (
	id TEXT PRIMARY KEY,
	hash TEXT NOT NULL,
	version TEXT,
	source TEXT,
	records INTEGER NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	raw BYTEA
);
CREATE INDEX IF NOT EXISTS risk_snapshots_created ON risk_snapshots (created_at);
`,
}

// SQLStore implements Store on database/sql for SQLite and Postgres.
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
}

// NewSQLStore wraps an open database.
func NewSQLStore(db *sql.DB, dialect Dialect) *SQLStore {
	return &SQLStore{db: db, dialect: dialect}
}

// OpenSQLite opens (creating if needed) the lite-mode database at path.
func OpenSQLite(path string) (*SQLStore, *sql.DB, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
			return nil, nil, fmt.Errorf("create data dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One writer; also keeps a :memory: database on a single connection.
	db.SetMaxOpenConns(1)
	return NewSQLStore(db, DialectSQLite), db, nil
}

// OpenPostgres connects to the database named by dsn.
func OpenPostgres(ctx context.Context, dsn string) (*SQLStore, *sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("ping postgres: %w", err)
	}
	return NewSQLStore(db, DialectPostgres), db, nil
}

func (s *SQLStore) Init(ctx context.Context) error {
	ddl, ok := schemas[s.dialect]
	if !ok {
		return fmt.Errorf("unknown dialect %q", s.dialect)
	}
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("init snapshot schema: %w", err)
	}
	return nil
}

func (s *SQLStore) Put(ctx context.Context, snap *Snapshot) error {
	query := `
		INSERT INTO risk_snapshots (id, hash, version, source, records, created_at, raw)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := s.db.ExecContext(ctx, query,
		snap.ID, snap.Hash, snap.Version, snap.Source, snap.Records, snap.CreatedAt, snap.Raw,
	)
	if err != nil {
		return fmt.Errorf("failed to persist snapshot: %w", err)
	}
	return nil
}

const selectColumns = `SELECT id, hash, version, source, records, created_at, raw FROM risk_snapshots`

func (s *SQLStore) Get(ctx context.Context, id string) (*Snapshot, error) {
	return s.one(ctx, selectColumns+` WHERE id = $1`, id)
}

func (s *SQLStore) Latest(ctx context.Context) (*Snapshot, error) {
	return s.one(ctx, selectColumns+` ORDER BY created_at DESC, id DESC LIMIT 1`)
}

func (s *SQLStore) one(ctx context.Context, query string, args ...any) (*Snapshot, error) {
	var snap Snapshot
	var version, source sql.NullString
	err := s.db.QueryRowContext(ctx, query, args...).Scan(
		&snap.ID, &snap.Hash, &version, &source, &snap.Records, &snap.CreatedAt, &snap.Raw,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	snap.Version, snap.Source = version.String, source.String
	return &snap, nil
}

func (s *SQLStore) List(ctx context.Context, limit int) ([]Snapshot, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `SELECT id, hash, version, source, records, created_at FROM risk_snapshots ORDER BY created_at DESC, id DESC LIMIT $1`
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	result := make([]Snapshot, 0)
	for rows.Next() {
		var snap Snapshot
		var version, source sql.NullString
		if err := rows.Scan(&snap.ID, &snap.Hash, &version, &source, &snap.Records, &snap.CreatedAt); err != nil {
			return nil, err
		}
		snap.Version, snap.Source = version.String, source.String
		result = append(result, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
