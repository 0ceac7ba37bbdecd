package sqlite

import (
	"database/sql"
	"fmt"
	"path/filepath"
	"sort"
	"time"

	"github.com/goodtune/screentime/internal/storage"
	_ "modernc.org/sqlite"
)

// Store implements the storage.Store interface using SQLite
type Store struct {
	db           *sql.DB
	changes      *storage.Broadcaster
	pollInterval time.Duration
}

// Option customises a Store.
type Option func(*Store)

// WithPollInterval sets how often other processes' exclusion changes are checked.
func WithPollInterval(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.pollInterval = d
		}
	}
}

// Open creates a new database connection and runs migrations
func Open(path string, opts ...Option) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := storage.EnsureDir(dir); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Set connection pool settings
	db.SetMaxOpenConns(1) // SQLite limitation
	db.SetMaxIdleConns(1)

	// Run migrations
	if err := runMigrations(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	store := &Store{
		db:           db,
		changes:      &storage.Broadcaster{},
		pollInterval: time.Second,
	}
	for _, opt := range opts {
		opt(store)
	}
	return store, nil
}

// Close closes the database
func (s *Store) Close() error {
	return s.db.Close()
}

// Usage returns the daily usage store
func (s *Store) Usage() storage.UsageStore { return &usageStore{db: s.db} }

// Exclusions returns the exclusion store
func (s *Store) Exclusions() storage.ExclusionStore {
	return &exclusionStore{db: s.db, changes: s.changes, pollInterval: s.pollInterval}
}

// Events returns the raw event log
func (s *Store) Events() storage.EventLogStore { return &eventStore{db: s.db} }

// Apps returns the app inventory store
func (s *Store) Apps() storage.AppStore { return &appStore{db: s.db} }

// runMigrations applies all database migrations
func runMigrations(db *sql.DB) error {
	// Create migrations table
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS migrations (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			version INTEGER NOT NULL UNIQUE,
			applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)
	`); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	// Get current version
	var currentVersion int
	err := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM migrations").Scan(&currentVersion)
	if err != nil {
		return fmt.Errorf("failed to get current migration version: %w", err)
	}

	// Apply migrations in order
	migrations := getMigrations()
	versions := make([]int, 0, len(migrations))
	for version := range migrations {
		versions = append(versions, version)
	}
	sort.Ints(versions)

	for _, version := range versions {
		if version <= currentVersion {
			continue
		}

		// Begin transaction
		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("failed to begin transaction for migration %d: %w", version, err)
		}

		// Execute migration
		if _, err := tx.Exec(migrations[version]); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to execute migration %d: %w", version, err)
		}

		// Record migration
		if _, err := tx.Exec("INSERT INTO migrations (version) VALUES (?)", version); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", version, err)
		}

		// Commit transaction
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", version, err)
		}
	}

	return nil
}

// getMigrations returns all database migrations
func getMigrations() map[int]string {
	return map[int]string{
		1: migration001DailyUsage,
		2: migration002Exclusions,
		3: migration003Events,
		4: migration004Apps,
	}
}

// Migration schemas
const migration001DailyUsage = `
CREATE TABLE IF NOT EXISTS daily_usage (
	date TEXT PRIMARY KEY, -- YYYY-MM-DD
	duration_ms INTEGER NOT NULL,
	updated_at TEXT NOT NULL -- RFC 3339
);
`

const migration002Exclusions = `
CREATE TABLE IF NOT EXISTS exclusions (
	app_key TEXT PRIMARY KEY,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS revisions (
	name TEXT PRIMARY KEY,
	value INTEGER NOT NULL
);

INSERT INTO revisions (name, value) VALUES ('exclusions', 0);
`

const migration003Events = `
CREATE TABLE IF NOT EXISTS events (
	seq INTEGER PRIMARY KEY AUTOINCREMENT,
	ts_ns INTEGER NOT NULL, -- unix nanoseconds
	package TEXT NOT NULL,
	type INTEGER NOT NULL,
	class TEXT
);

CREATE INDEX idx_events_ts ON events(ts_ns, seq);
`

const migration004Apps = `
CREATE TABLE IF NOT EXISTS apps (
	key TEXT PRIMARY KEY,
	label TEXT NOT NULL,
	system INTEGER NOT NULL DEFAULT 0,
	launchable INTEGER NOT NULL DEFAULT 0,
	updated_at TEXT NOT NULL -- RFC 3339
);
`
