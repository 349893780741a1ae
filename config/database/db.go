package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"docspace/pkg/logger"

	_ "github.com/lib/pq"
)

const schema = `
CREATE TABLE IF NOT EXISTS documents (
	id              TEXT PRIMARY KEY,
	seq             BIGSERIAL,
	title           TEXT NOT NULL,
	content         TEXT,
	cover_image     TEXT,
	icon            TEXT,
	parent_document TEXT,
	is_archived     BOOLEAN NOT NULL DEFAULT FALSE,
	is_published    BOOLEAN NOT NULL DEFAULT FALSE,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS documents_by_parent ON documents (parent_document);
CREATE INDEX IF NOT EXISTS documents_by_archived ON documents (is_archived);
`

// Connect opens the Postgres pool and pings it, retrying a few times in
// case of temporary DNS/network blips.
func Connect(dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	for i := 0; i < 5; i++ {
		if err = db.Ping(); err == nil {
			logger.Sugar.Info("Successfully connected to the database")
			return db, nil
		}
		logger.Sugar.Infof("Database connection failed, retrying in 2s... (%v)", err)
		time.Sleep(2 * time.Second)
	}
	db.Close()
	return nil, fmt.Errorf("could not connect to database after retries: %w", err)
}

// Migrate creates the documents table and its indexes if missing.
// There is deliberately no foreign key on parent_document: removing a
// document leaves its children in place.
func Migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrate schema: %w", err)
	}
	return nil
}
