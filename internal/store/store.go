package store

import (
	"database/sql"
	_ "embed"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// journalPragmas are applied to every connection before the schema.
// Calls and drops are written from the dispatcher while trace reads run,
// so the journal runs in WAL mode.
var journalPragmas = []struct {
	name  string
	value string
}{
	{"journal_mode", "WAL"},
	{"synchronous", "NORMAL"},
	{"busy_timeout", "5000"},
	{"foreign_keys", "ON"},
}

// migration upgrades a journal written by an older build. Migrations run in
// order for every version above the journal's user_version.
type migration struct {
	version int
	name    string
	stmt    string
}

var migrations = []migration{
	{
		// Session summaries count drops per session.
		version: 1,
		name:    "index drops by session",
		stmt:    `CREATE INDEX IF NOT EXISTS idx_drops_session ON drops(session, id)`,
	},
}

// currentSchemaVersion is the user_version of a fully migrated journal.
var currentSchemaVersion = migrations[len(migrations)-1].version

// Store is the durable call journal. One Store serves one dispatcher, but
// any number of sessions may share the file.
type Store struct {
	db *sql.DB
}

// Open opens the journal at path, creating and migrating it as needed.
// ":memory:" gives a private journal that lives as long as the Store.
// Opening an existing journal again is harmless.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open journal %s: %w", path, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect journal %s: %w", path, err)
	}

	// A single connection serializes journal writes and pins an in-memory
	// database to the Store.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := prepare(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("prepare journal %s: %w", path, err)
	}
	return &Store{db: db}, nil
}

// Close releases the journal.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func prepare(db *sql.DB) error {
	for _, p := range journalPragmas {
		if _, err := db.Exec(fmt.Sprintf("PRAGMA %s = %s", p.name, p.value)); err != nil {
			return fmt.Errorf("pragma %s: %w", p.name, err)
		}
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("create calls and drops tables: %w", err)
	}
	return migrate(db)
}

// migrate runs every migration newer than the journal and records the
// resulting version.
func migrate(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("read journal version: %w", err)
	}

	for _, m := range pendingMigrations(version) {
		if _, err := db.Exec(m.stmt); err != nil {
			return fmt.Errorf("migrate journal to v%d (%s): %w", m.version, m.name, err)
		}
	}

	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("record journal version: %w", err)
	}
	return nil
}

// pendingMigrations returns the migrations a journal at version still needs.
func pendingMigrations(version int) []migration {
	for i, m := range migrations {
		if m.version > version {
			return migrations[i:]
		}
	}
	return nil
}

// schemaVersion returns the journal's user_version.
func (s *Store) schemaVersion() (int, error) {
	var version int
	err := s.db.QueryRow("PRAGMA user_version").Scan(&version)
	return version, err
}

// verifyPragma compares a pragma's current value with want.
func (s *Store) verifyPragma(name, want string) error {
	var got string
	if err := s.db.QueryRow("PRAGMA " + name).Scan(&got); err != nil {
		return fmt.Errorf("query %s: %w", name, err)
	}
	if got != want {
		return fmt.Errorf("%s = %q, want %q", name, got, want)
	}
	return nil
}
