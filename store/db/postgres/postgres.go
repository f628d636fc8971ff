package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/pkg/errors"

	// Import the postgres driver.
	_ "github.com/lib/pq"

	"github.com/aurachat/aura/internal/profile"
	"github.com/aurachat/aura/store"
)

type DB struct {
	db      *sql.DB
	profile *profile.Profile
}

// NewDB opens a postgres database described by the profile DSN.
func NewDB(profile *profile.Profile) (store.Driver, error) {
	if profile == nil {
		return nil, errors.New("profile is nil")
	}

	db, err := sql.Open("postgres", profile.DSN)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open database")
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

// placeholder returns the n-th parameter placeholder ($n).
func placeholder(n int) string {
	return fmt.Sprintf("$%d", n)
}

// placeholders returns n comma-separated placeholders starting at $1.
func placeholders(n int) string {
	list := []string{}
	for i := 0; i < n; i++ {
		list = append(list, placeholder(i+1))
	}
	return strings.Join(list, ", ")
}

const latestSchema = `
CREATE TABLE IF NOT EXISTS "user" (
	id SERIAL PRIMARY KEY,
	uid TEXT NOT NULL UNIQUE,
	username TEXT NOT NULL UNIQUE,
	nickname TEXT NOT NULL DEFAULT '',
	created_ts BIGINT NOT NULL,
	updated_ts BIGINT NOT NULL,
	row_status TEXT NOT NULL DEFAULT 'NORMAL'
);

CREATE TABLE IF NOT EXISTS access_token (
	id SERIAL PRIMARY KEY,
	user_id INTEGER NOT NULL,
	digest TEXT NOT NULL UNIQUE,
	description TEXT NOT NULL DEFAULT '',
	created_ts BIGINT NOT NULL
);

CREATE TABLE IF NOT EXISTS thread (
	id SERIAL PRIMARY KEY,
	uid TEXT NOT NULL UNIQUE,
	creator_id INTEGER NOT NULL,
	title TEXT NOT NULL DEFAULT '',
	pinned BOOLEAN NOT NULL DEFAULT FALSE,
	is_live BOOLEAN NOT NULL DEFAULT FALSE,
	stream_started_ts BIGINT,
	current_stream_id TEXT,
	created_ts BIGINT NOT NULL,
	updated_ts BIGINT NOT NULL,
	row_status TEXT NOT NULL DEFAULT 'NORMAL'
);

CREATE INDEX IF NOT EXISTS idx_thread_creator_id ON thread (creator_id);

CREATE TABLE IF NOT EXISTS message (
	id SERIAL PRIMARY KEY,
	uid TEXT NOT NULL UNIQUE,
	thread_id INTEGER NOT NULL,
	role TEXT NOT NULL,
	parts JSONB NOT NULL DEFAULT '[]',
	metadata JSONB NOT NULL DEFAULT '{}',
	created_ts BIGINT NOT NULL,
	updated_ts BIGINT NOT NULL,
	edited BOOLEAN NOT NULL DEFAULT FALSE,
	edited_ts BIGINT,
	row_status TEXT NOT NULL DEFAULT 'NORMAL'
);

CREATE INDEX IF NOT EXISTS idx_message_thread_id ON message (thread_id);

CREATE TABLE IF NOT EXISTS attachment (
	id SERIAL PRIMARY KEY,
	uid TEXT NOT NULL UNIQUE,
	creator_id INTEGER NOT NULL,
	filename TEXT NOT NULL,
	mime_type TEXT NOT NULL DEFAULT '',
	size BIGINT NOT NULL DEFAULT 0,
	url TEXT NOT NULL DEFAULT '',
	thumbnail_url TEXT NOT NULL DEFAULT '',
	created_ts BIGINT NOT NULL
);
`
