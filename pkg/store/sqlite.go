package store

import (
	"database/sql"
	_ "embed"
	"fmt"
	"time"

	"github.com/cuemby/katalog/pkg/log"
	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// SQLiteStore is the relational store backend. It satisfies Store by
// exposing repository-style methods across this file and its sibling
// assets.go / metadata.go / changesets.go / collections.go.
type SQLiteStore struct {
	db *sql.DB
}

// Open creates (or reuses) a SQLite database at path, applies the
// embedded schema and the pragmas the spec requires: WAL journaling,
// foreign_keys=ON, synchronous=NORMAL and a busy timeout so concurrent
// single-row writers back off instead of erroring immediately.
func Open(path string) (*SQLiteStore, error) {
	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_foreign_keys=on&_synchronous=NORMAL&_busy_timeout=5000", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	db.SetMaxOpenConns(1) // sqlite3 driver: one writer connection avoids SQLITE_BUSY under WAL

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	log.WithComponent("store").Info().Str("path", path).Msg("store opened")
	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func nowISO() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

// parseISO parses a timestamp written by nowISO, returning the zero
// time if it can't be parsed (callers don't treat timestamps as
// authoritative, only advisory).
func parseISO(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
