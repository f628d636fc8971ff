package sqlite

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"

	// Import the pure-Go SQLite driver.
	_ "modernc.org/sqlite"

	"github.com/aurachat/aura/internal/profile"
	"github.com/aurachat/aura/store"
)

type DB struct {
	db      *sql.DB
	profile *profile.Profile
}

// NewDB opens a SQLite database described by the profile DSN.
func NewDB(profile *profile.Profile) (store.Driver, error) {
	if profile == nil {
		return nil, errors.New("profile is nil")
	}

	// busy_timeout smooths over writer contention from background jobs;
	// WAL keeps readers unblocked during a streaming flush.
	db, err := sql.Open("sqlite", profile.DSN+"?_pragma=foreign_keys(0)&_pragma=busy_timeout(10000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open db with dsn: %s", profile.DSN)
	}

	return &DB{db: db, profile: profile}, nil
}

func (d *DB) GetDB() *sql.DB {
	return d.db
}

func (d *DB) Close() error {
	return d.db.Close()
}

// Migrate applies the latest schema. Statements are idempotent.
func (d *DB) Migrate(ctx context.Context) error {
	if _, err := d.db.ExecContext(ctx, latestSchema); err != nil {
		return errors.Wrap(err, "failed to apply schema")
	}
	return nil
}

const latestSchema = `
CREATE TABLE IF NOT EXISTS user (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	uid TEXT NOT NULL UNIQUE,
	username TEXT NOT NULL UNIQUE,
	nickname TEXT NOT NULL DEFAULT '',
	created_ts INTEGER NOT NULL,
	updated_ts INTEGER NOT NULL,
	row_status TEXT NOT NULL DEFAULT 'NORMAL'
);

CREATE TABLE IF NOT EXISTS access_token (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id INTEGER NOT NULL,
	digest TEXT NOT NULL UNIQUE,
	description TEXT NOT NULL DEFAULT '',
	created_ts INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS thread (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	uid TEXT NOT NULL UNIQUE,
	creator_id INTEGER NOT NULL,
	title TEXT NOT NULL DEFAULT '',
	pinned INTEGER NOT NULL DEFAULT 0,
	is_live INTEGER NOT NULL DEFAULT 0,
	stream_started_ts INTEGER,
	current_stream_id TEXT,
	created_ts INTEGER NOT NULL,
	updated_ts INTEGER NOT NULL,
	row_status TEXT NOT NULL DEFAULT 'NORMAL'
);

CREATE INDEX IF NOT EXISTS idx_thread_creator_id ON thread (creator_id);

CREATE TABLE IF NOT EXISTS message (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	uid TEXT NOT NULL UNIQUE,
	thread_id INTEGER NOT NULL,
	role TEXT NOT NULL,
	parts TEXT NOT NULL DEFAULT '[]',
	metadata TEXT NOT NULL DEFAULT '{}',
	created_ts INTEGER NOT NULL,
	updated_ts INTEGER NOT NULL,
	edited INTEGER NOT NULL DEFAULT 0,
	edited_ts INTEGER,
	row_status TEXT NOT NULL DEFAULT 'NORMAL'
);

CREATE INDEX IF NOT EXISTS idx_message_thread_id ON message (thread_id);

CREATE TABLE IF NOT EXISTS attachment (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	uid TEXT NOT NULL UNIQUE,
	creator_id INTEGER NOT NULL,
	filename TEXT NOT NULL,
	mime_type TEXT NOT NULL DEFAULT '',
	size INTEGER NOT NULL DEFAULT 0,
	url TEXT NOT NULL DEFAULT '',
	thumbnail_url TEXT NOT NULL DEFAULT '',
	created_ts INTEGER NOT NULL
);
`
