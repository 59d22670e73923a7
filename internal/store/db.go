package store

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaFS embed.FS

const (
	// CurrentSchemaVersion is the version of the database schema
	CurrentSchemaVersion = 1
)

// SQLiteStore keeps every collection in one SQLite file.
type SQLiteStore struct {
	sqlDB    *sql.DB
	path     string
	embedder Embedder
	logger   *slog.Logger

	mu          sync.Mutex
	collections map[string]*sqliteCollection
}

// OpenSQLite opens or creates the database at path.
func OpenSQLite(path string, embedder Embedder, logger *slog.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	sqlDB, err := sql.Open("sqlite", path+"?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One writer keeps batch transactions strictly serialized.
	sqlDB.SetMaxOpenConns(1)

	if err := sqlDB.Ping(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &SQLiteStore{
		sqlDB:       sqlDB,
		path:        path,
		embedder:    embedder,
		logger:      logger.With("component", "store", "backend", "sqlite"),
		collections: make(map[string]*sqliteCollection),
	}
	if err := s.migrate(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return s, nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.sqlDB.Close()
}

// Path returns the database file path.
func (s *SQLiteStore) Path() string {
	return s.path
}

// GetOrCreateCollection registers name on first use and returns a handle.
func (s *SQLiteStore) GetOrCreateCollection(ctx context.Context, name string) (Collection, error) {
	if name == "" {
		return nil, fmt.Errorf("collection name is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.collections[name]; ok {
		return c, nil
	}

	now := time.Now().UTC().Format(time.RFC3339)
	res, err := s.sqlDB.ExecContext(ctx,
		`INSERT OR IGNORE INTO collections (name, build_state, created_at, updated_at) VALUES (?, ?, ?, ?)`,
		name, string(BuildEmpty), now, now)
	if err != nil {
		return nil, fmt.Errorf("failed to create collection %s: %w", name, err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		s.logger.Info("collection created", "collection", name)
	}

	c := &sqliteCollection{store: s, name: name}
	s.collections[name] = c
	return c, nil
}

// ListCollections returns every known collection name.
func (s *SQLiteStore) ListCollections(ctx context.Context) ([]string, error) {
	rows, err := s.sqlDB.QueryContext(ctx, "SELECT name FROM collections ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("failed to list collections: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan collection: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// Stats returns database statistics
func (s *SQLiteStore) Stats(ctx context.Context) (*DBStats, error) {
	stats := &DBStats{}
	if err := s.sqlDB.QueryRowContext(ctx, "SELECT COUNT(*) FROM collections").Scan(&stats.CollectionCount); err != nil {
		return nil, fmt.Errorf("failed to get collection count: %w", err)
	}
	if err := s.sqlDB.QueryRowContext(ctx, "SELECT COUNT(*) FROM entries").Scan(&stats.EntryCount); err != nil {
		return nil, fmt.Errorf("failed to get entry count: %w", err)
	}
	if info, err := os.Stat(s.path); err == nil {
		stats.SizeBytes = info.Size()
	}
	return stats, nil
}

// DBStats represents database statistics
type DBStats struct {
	CollectionCount int64
	EntryCount      int64
	SizeBytes       int64
}

// migrate runs schema migrations
func (s *SQLiteStore) migrate() error {
	version, err := s.getSchemaVersion()
	if err != nil {
		return fmt.Errorf("failed to get schema version: %w", err)
	}
	if version >= CurrentSchemaVersion {
		return nil
	}
	if version != 0 {
		return fmt.Errorf("no migration path from schema version %d to %d", version, CurrentSchemaVersion)
	}

	tx, err := s.sqlDB.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	schema, err := schemaFS.ReadFile("schema.sql")
	if err != nil {
		return fmt.Errorf("failed to read schema: %w", err)
	}
	if _, err := tx.Exec(string(schema)); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	if _, err := tx.Exec(
		"INSERT INTO schema_version (version, applied_at) VALUES (?, ?)",
		CurrentSchemaVersion,
		time.Now().UTC().Format(time.RFC3339),
	); err != nil {
		return fmt.Errorf("failed to set schema version: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit migration: %w", err)
	}
	return nil
}

// getSchemaVersion returns the current schema version
func (s *SQLiteStore) getSchemaVersion() (int, error) {
	var exists int
	if err := s.sqlDB.QueryRow(
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	).Scan(&exists); err != nil {
		return 0, fmt.Errorf("failed to check schema_version table: %w", err)
	}
	if exists == 0 {
		return 0, nil
	}

	var version int
	if err := s.sqlDB.QueryRow("SELECT version FROM schema_version ORDER BY version DESC LIMIT 1").Scan(&version); err != nil {
		if err == sql.ErrNoRows {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to get schema version: %w", err)
	}
	return version, nil
}
