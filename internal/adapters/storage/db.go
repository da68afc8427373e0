package storage

import (
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"
)

// migration is one forward-only schema step.
type migration struct {
	version int
	name    string
	stmts   []string
}

// serverMigrations builds the roster store schema.
var serverMigrations = []migration{
	{
		version: 1,
		name:    "baseline",
		stmts: []string{
			`CREATE TABLE IF NOT EXISTS member (
				id TEXT PRIMARY KEY,
				full_name TEXT NOT NULL DEFAULT '',
				email TEXT NOT NULL UNIQUE,
				phone TEXT NOT NULL DEFAULT '',
				password_hash TEXT NOT NULL DEFAULT '',
				document_path TEXT NOT NULL DEFAULT '',
				created_at TEXT NOT NULL
			)`,
			`CREATE TABLE IF NOT EXISTS course_row (
				course TEXT NOT NULL,
				month TEXT NOT NULL,
				row_index INTEGER NOT NULL,
				first_name TEXT NOT NULL DEFAULT '',
				last_name TEXT NOT NULL DEFAULT '',
				email TEXT NOT NULL DEFAULT '',
				phone TEXT NOT NULL DEFAULT '',
				card_number TEXT NOT NULL DEFAULT '',
				certificate_date TEXT NOT NULL DEFAULT '',
				paid INTEGER NOT NULL DEFAULT 0,
				paid_amount TEXT NOT NULL DEFAULT '',
				PRIMARY KEY (course, month, row_index)
			)`,
			`CREATE INDEX IF NOT EXISTS idx_course_row_email ON course_row(email)`,
			`CREATE TABLE IF NOT EXISTS course_totals (
				course TEXT NOT NULL,
				month TEXT NOT NULL,
				cash TEXT NOT NULL DEFAULT '0',
				instructor TEXT NOT NULL DEFAULT '0',
				PRIMARY KEY (course, month)
			)`,
			`CREATE TABLE IF NOT EXISTS login_attempt (
				scope TEXT NOT NULL,
				ip TEXT NOT NULL,
				failures INTEGER NOT NULL DEFAULT 0,
				last_attempt TEXT NOT NULL DEFAULT '',
				PRIMARY KEY (scope, ip)
			)`,
		},
	},
	{
		version: 2,
		name:    "outbox",
		stmts: []string{
			`CREATE TABLE IF NOT EXISTS outbox (
				id TEXT PRIMARY KEY,
				action_type TEXT NOT NULL,
				payload TEXT NOT NULL,
				status TEXT NOT NULL,
				attempts INTEGER NOT NULL DEFAULT 0,
				max_attempts INTEGER NOT NULL DEFAULT 5,
				last_attempted_at TEXT NOT NULL DEFAULT '',
				created_at TEXT NOT NULL,
				external_id TEXT NOT NULL DEFAULT '',
				error_message TEXT NOT NULL DEFAULT ''
			)`,
			`CREATE INDEX IF NOT EXISTS idx_outbox_status ON outbox(status, created_at)`,
		},
	},
}

// draftMigrations builds the console's session draft schema.
var draftMigrations = []migration{
	{
		version: 1,
		name:    "draft",
		stmts: []string{
			`CREATE TABLE IF NOT EXISTS draft (
				session_id TEXT NOT NULL,
				draft_key TEXT NOT NULL,
				payload TEXT NOT NULL,
				updated_at TEXT NOT NULL,
				PRIMARY KEY (session_id, draft_key)
			)`,
		},
	},
}

// LatestSchemaVersion returns the version MigrateDB brings a database to.
func LatestSchemaVersion() int {
	return serverMigrations[len(serverMigrations)-1].version
}

// LatestDraftSchemaVersion returns the version MigrateDraftDB brings a database to.
func LatestDraftSchemaVersion() int {
	return draftMigrations[len(draftMigrations)-1].version
}

// MigrateDB applies pending roster store migrations.
// A file-backed database is copied to "<dbPath>.bak-v<N>" before the first pending step.
// PRE: db is a valid database connection
// POST: schema_version equals LatestSchemaVersion()
func MigrateDB(db *sql.DB, dbPath string) error {
	return migrate(db, dbPath, serverMigrations)
}

// MigrateDraftDB applies pending console draft migrations.
// PRE: db is a valid database connection
// POST: schema_version equals LatestDraftSchemaVersion()
func MigrateDraftDB(db *sql.DB, dbPath string) error {
	return migrate(db, dbPath, draftMigrations)
}

// SchemaVersion returns the currently applied schema version (0 for a fresh database).
func SchemaVersion(db *sql.DB) (int, error) {
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (version INTEGER NOT NULL, applied_at TEXT NOT NULL)`); err != nil {
		return 0, fmt.Errorf("failed to create schema_version: %w", err)
	}
	var v sql.NullInt64
	if err := db.QueryRow(`SELECT MAX(version) FROM schema_version`).Scan(&v); err != nil {
		return 0, fmt.Errorf("failed to read schema_version: %w", err)
	}
	return int(v.Int64), nil
}

func migrate(db *sql.DB, dbPath string, steps []migration) error {
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		return fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	current, err := SchemaVersion(db)
	if err != nil {
		return err
	}

	backedUp := false
	for _, m := range steps {
		if m.version <= current {
			continue
		}
		if !backedUp {
			if err := backupDB(dbPath, current); err != nil {
				return err
			}
			backedUp = true
		}

		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("migration %d: %w", m.version, err)
		}
		for _, stmt := range m.stmts {
			if _, err := tx.Exec(stmt); err != nil {
				tx.Rollback()
				return fmt.Errorf("migration %d (%s): %w", m.version, m.name, err)
			}
		}
		if _, err := tx.Exec(`INSERT INTO schema_version (version, applied_at) VALUES (?, ?)`,
			m.version, time.Now().UTC().Format(time.RFC3339)); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d: record version: %w", m.version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("migration %d: commit: %w", m.version, err)
		}
		slog.Info("schema_migrated", "version", m.version, "name", m.name)
	}
	return nil
}

// backupDB copies an existing database file before it is migrated.
// In-memory databases and fresh files are skipped.
func backupDB(dbPath string, version int) error {
	if version == 0 || dbPath == "" || strings.HasPrefix(dbPath, ":memory:") || strings.HasPrefix(dbPath, "file::memory:") {
		return nil
	}
	src, err := os.Open(dbPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("open db for backup: %w", err)
	}
	defer src.Close()

	dst, err := os.Create(fmt.Sprintf("%s.bak-v%d", dbPath, version))
	if err != nil {
		return fmt.Errorf("create db backup: %w", err)
	}
	defer dst.Close()
	if _, err := io.Copy(dst, src); err != nil {
		return fmt.Errorf("copy db backup: %w", err)
	}
	return nil
}

// OpenSQLite opens a file-backed database in WAL mode with foreign keys
// and a busy timeout, and checks that it answers.
// PRE: a SQLite driver named "sqlite" is registered
func OpenSQLite(dbPath string) (*sql.DB, error) {
	dsn := dbPath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(ON)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("database unreachable: %w", err)
	}
	return db, nil
}
